package calls

import "errors"

var (
	ErrNotFound = errors.New("call attempt not found")
	// ErrConsentRequired blocks dialing without an active granted consent.
	ErrConsentRequired = errors.New("consent required before placing call")
	// ErrUntrustedEvent marks a webhook whose signature did not verify.
	ErrUntrustedEvent = errors.New("untrusted telephony event")
)
