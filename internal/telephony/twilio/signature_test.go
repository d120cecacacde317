package twilio

import (
	"net/url"
	"testing"
)

func TestComputeSignatureMatchesDocumentedExample(t *testing.T) {
	// Worked example from the Twilio security docs.
	form := url.Values{}
	form.Set("CallSid", "CA1234567890ABCDE")
	form.Set("Caller", "+12349013030")
	form.Set("Digits", "1234")
	form.Set("From", "+12349013030")
	form.Set("To", "+18005551212")

	got := ComputeSignature(
		"12345",
		"https://mycompany.com/myapp.php?foo=1&bar=2",
		form,
	)
	want := "0/KCTR6DLpKmkAf8muzZqo1nDgQ="
	if got != want {
		t.Fatalf("signature = %q, want %q", got, want)
	}
}

func TestValidateSignature(t *testing.T) {
	form := url.Values{}
	form.Set("CallSid", "CAabc")
	form.Set("CallStatus", "completed")
	requestURL := "https://example.com/api/v1/webhooks/telephony/status"

	sig := ComputeSignature("token", requestURL, form)
	if !ValidateSignature("token", requestURL, form, sig) {
		t.Fatal("valid signature rejected")
	}
	if ValidateSignature("other-token", requestURL, form, sig) {
		t.Fatal("signature accepted with wrong token")
	}

	form.Set("CallStatus", "failed")
	if ValidateSignature("token", requestURL, form, sig) {
		t.Fatal("signature accepted after payload tampering")
	}
}
