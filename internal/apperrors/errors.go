// Package apperrors defines the sentinel error taxonomy shared by every
// adapter (embedder, LLM client, vector store, graph store) and consumed
// by the HTTP layer to pick a status code.
package apperrors

import "errors"

var (
	// ErrTransport covers network/timeout/5xx failures talking to the LLM,
	// embedder, or a database. Retried per the caller's backoff policy,
	// then surfaced.
	ErrTransport = errors.New("transport error")

	// ErrRateLimited is a distinguished transport failure: callers may log
	// or meter it separately, but it is retried exactly like ErrTransport.
	ErrRateLimited = errors.New("rate limited")

	// ErrInvalidResponse means the LLM returned non-JSON where JSON was
	// required, or tokens that failed to parse. Never retried.
	ErrInvalidResponse = errors.New("invalid response")

	// ErrStorageUnavailable means the vector or graph store is
	// unreachable. Graph-store occurrences degrade gracefully; vector
	// store occurrences fail the request.
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrAuth covers invalid credentials or tokens; maps to HTTP 401.
	ErrAuth = errors.New("authentication error")

	// ErrNotFound covers feedback for an unknown proposal id; maps to 404.
	ErrNotFound = errors.New("not found")

	// ErrValidation covers request schema mismatches at the HTTP
	// boundary; maps to 422.
	ErrValidation = errors.New("validation error")
)

// rateLimited wraps ErrTransport so errors.Is(err, ErrTransport) is true
// for rate-limit failures while errors.Is(err, ErrRateLimited) still
// distinguishes the specific case.
type rateLimited struct {
	cause error
}

// RateLimited builds an error that is simultaneously ErrTransport (so
// retry logic needs only one check) and ErrRateLimited (so logging can
// tell the two apart).
func RateLimited(cause error) error {
	return &rateLimited{cause: cause}
}

func (e *rateLimited) Error() string {
	if e.cause != nil {
		return "rate limited: " + e.cause.Error()
	}
	return ErrRateLimited.Error()
}

func (e *rateLimited) Is(target error) bool {
	return target == ErrTransport || target == ErrRateLimited
}

func (e *rateLimited) Unwrap() error {
	return e.cause
}

// Retryable reports whether err should be retried under the embedder/LLM
// backoff policy: transport and rate-limit failures only, never
// InvalidResponse or 4xx-shaped validation/auth errors.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrTransport)
}
