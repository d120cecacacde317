package twilio

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"net/url"
	"sort"
	"strings"

	"prescreen-backend/internal/telephony"
)

// ErrRecordingNotReady aliases the provider-neutral sentinel; Twilio returns
// 404 for a recording whose media is still being processed.
var ErrRecordingNotReady = telephony.ErrRecordingNotReady

// ComputeSignature builds the X-Twilio-Signature value for a webhook: the
// full request URL concatenated with the form parameters sorted by key,
// HMAC-SHA1 signed with the auth token and base64 encoded.
func ComputeSignature(authToken, requestURL string, form url.Values) string {
	keys := make([]string, 0, len(form))
	for k := range form {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(requestURL)
	for _, k := range keys {
		for _, v := range form[k] {
			b.WriteString(k)
			b.WriteString(v)
		}
	}

	mac := hmac.New(sha1.New, []byte(authToken))
	mac.Write([]byte(b.String()))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// ValidateSignature checks a webhook signature in constant time.
func ValidateSignature(authToken, requestURL string, form url.Values, signature string) bool {
	expected := ComputeSignature(authToken, requestURL, form)
	return hmac.Equal([]byte(expected), []byte(signature))
}
