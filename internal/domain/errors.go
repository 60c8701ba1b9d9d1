package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for credential and authorization handling.
var (
	// ErrCredentialNotFound means no credential row exists for the platform.
	// Decryption failures are downgraded to this by the store.
	ErrCredentialNotFound = errors.New("credential not found")

	// ErrAuthenticationRequired means no credential is on file; the caller
	// must complete the authorization handshake first.
	ErrAuthenticationRequired = errors.New("authentication required")

	// ErrTokenExpired means the stored credential is fully expired and the
	// refresh token is assumed invalid; only re-authorization recovers.
	ErrTokenExpired = errors.New("token expired")

	// ErrRefreshFailed means the upstream rejected a refresh attempt. The
	// previously stored credential is left untouched.
	ErrRefreshFailed = errors.New("refresh failed")

	// ErrAttemptNotFound means no in-flight authorization attempt exists for
	// the platform, or it already expired or was consumed.
	ErrAttemptNotFound = errors.New("authorization attempt not found")

	// ErrInvalidState means the callback state does not match the one issued
	// with the authorization URL.
	ErrInvalidState = errors.New("invalid state")

	// ErrInvalidRequest covers callbacks missing required parameters.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrPlatformUnknown means no adapter is registered for the platform key.
	ErrPlatformUnknown = errors.New("unknown platform")
)

// UpstreamError is a non-2xx response from the partner API. Status and body
// are preserved so callers can decide whether to retry or re-authorize.
type UpstreamError struct {
	Status int
	Body   []byte
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream api error: status %d", e.Status)
}

// NoResponseError means the upstream did not answer within the timeout.
// Distinct from UpstreamError so callers can tell "rejected" from
// "unreachable".
type NoResponseError struct {
	Cause error
}

func (e *NoResponseError) Error() string {
	return fmt.Sprintf("no response from upstream: %v", e.Cause)
}

func (e *NoResponseError) Unwrap() error {
	return e.Cause
}
