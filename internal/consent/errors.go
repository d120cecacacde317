package consent

import "errors"

var (
	ErrNotFound             = errors.New("not found")
	ErrConsentMissing       = errors.New("consent missing")
	ErrConsentExpired       = errors.New("consent expired")
	ErrConsentDenied        = errors.New("consent denied")
	ErrTenantMismatch       = errors.New("tenant mismatch")
	ErrTokenAlreadyConsumed = errors.New("token already consumed")
)
