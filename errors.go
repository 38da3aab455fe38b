package authgate

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidCredential is returned when the identity is unknown or the
	// presented secret does not match the stored digest.
	ErrInvalidCredential = errors.New("invalid credential")
	// ErrCorruptCredential is returned when a stored digest cannot be parsed.
	// It is deliberately distinct from a plain mismatch.
	ErrCorruptCredential = errors.New("corrupt credential digest")
	// ErrExpiredToken is returned when a token is past its expiry.
	ErrExpiredToken = errors.New("token expired")
	// ErrBadSignature is returned when a token signature does not verify.
	ErrBadSignature = errors.New("token signature invalid")
	// ErrWrongPurpose is returned when a token is presented to an operation
	// expecting a different purpose claim.
	ErrWrongPurpose = errors.New("token purpose mismatch")
	// ErrMalformedToken is returned when a token cannot be parsed at all.
	ErrMalformedToken = errors.New("malformed token")
	// ErrReusedToken is returned when a refresh token's jti no longer matches
	// the recorded active session. The whole session is invalidated when this
	// is detected, not just the single request rejected.
	ErrReusedToken = errors.New("refresh token reuse detected")
	// ErrSessionNotFound is returned when no active refresh session exists
	// for the token's subject.
	ErrSessionNotFound = errors.New("session not found")
	// ErrAlreadyConsumed is returned when an email-verification ticket is
	// presented a second time, even if not yet expired.
	ErrAlreadyConsumed = errors.New("verification ticket already consumed")
	// ErrAlreadyVerified is returned when verification is requested for an
	// account whose email is already confirmed.
	ErrAlreadyVerified = errors.New("account already verified")
	// ErrUnverifiedAccount is returned on login before email confirmation.
	ErrUnverifiedAccount = errors.New("account not verified")
	// ErrAccountNotFound is returned by account lookups for unknown identities.
	ErrAccountNotFound = errors.New("account not found")
	// ErrAccountExists is returned by signup for a duplicate identity.
	ErrAccountExists = errors.New("account already exists")
	// ErrRateLimited is returned when admission control denies a request.
	// Concrete denials are a [*RateLimitError] carrying the retry-after hint.
	ErrRateLimited = errors.New("rate limited")
	// ErrStorageUnavailable is returned when a backing collaborator (Redis,
	// account store) fails. It is the only kind callers may retry.
	ErrStorageUnavailable = errors.New("storage unavailable")
	// ErrEngineNotReady is returned when the engine is used before Build
	// wired its dependencies.
	ErrEngineNotReady = errors.New("engine not initialized")
)

// RateLimitError is the concrete denial returned by admission checks. It
// matches [ErrRateLimited] under errors.Is and carries the window-derived
// backoff hint.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited: retry after %s", e.RetryAfter)
}

func (e *RateLimitError) Is(target error) bool {
	return target == ErrRateLimited
}

// RetryAfter extracts the backoff hint from a rate-limit denial. Returns
// zero for any other error.
func RetryAfter(err error) time.Duration {
	var rle *RateLimitError
	if errors.As(err, &rle) {
		return rle.RetryAfter
	}
	return 0
}

// ErrorKind maps a core error to the stable string kind surfaced at the HTTP
// boundary. Kinds are part of the response contract: clients branch on them
// (re-login vs. wait vs. re-verify), so they must never be collapsed.
func ErrorKind(err error) string {
	switch {
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrExpiredToken):
		return "expired_token"
	case errors.Is(err, ErrBadSignature):
		return "bad_signature"
	case errors.Is(err, ErrWrongPurpose):
		return "wrong_purpose"
	case errors.Is(err, ErrMalformedToken):
		return "malformed_token"
	case errors.Is(err, ErrReusedToken):
		return "reused_token"
	case errors.Is(err, ErrSessionNotFound):
		return "session_not_found"
	case errors.Is(err, ErrAlreadyConsumed):
		return "already_consumed"
	case errors.Is(err, ErrAlreadyVerified):
		return "already_verified"
	case errors.Is(err, ErrUnverifiedAccount):
		return "unverified_account"
	case errors.Is(err, ErrInvalidCredential):
		return "invalid_credential"
	case errors.Is(err, ErrCorruptCredential):
		return "corrupt_credential"
	case errors.Is(err, ErrAccountExists):
		return "account_exists"
	case errors.Is(err, ErrAccountNotFound):
		return "account_not_found"
	case errors.Is(err, ErrStorageUnavailable):
		return "storage_unavailable"
	default:
		return "internal"
	}
}
