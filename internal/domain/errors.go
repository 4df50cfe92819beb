package domain

import "errors"

var (
	ErrNotFound              = errors.New("not found")
	ErrUnauthorized          = errors.New("unauthorized")
	ErrInvalidInput          = errors.New("invalid input")
	ErrInsufficientCredits   = errors.New("insufficient credits")
	ErrAnonymousLimitReached = errors.New("anonymous daily limit reached")
	ErrQuotaExceeded         = errors.New("quota exceeded")
	ErrConflict              = errors.New("concurrent update conflict")
	ErrProviderFailure       = errors.New("provider failure")
)

// Stable error codes surfaced to API callers.
const (
	CodeInvalidInput          = "INVALID_INPUT"
	CodeInsufficientCredits   = "INSUFFICIENT_CREDITS"
	CodeAnonymousLimitReached = "ANONYMOUS_LIMIT_REACHED"
	CodeQuotaExceeded         = "QUOTA_EXCEEDED"
	CodeNotFound              = "NOT_FOUND"
	CodeUnauthorized          = "UNAUTHORIZED"
	CodeConflict              = "CONFLICT"
	CodeInternal              = "INTERNAL"
)

// ErrorKind maps an error chain to its stable code.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidInput):
		return CodeInvalidInput
	case errors.Is(err, ErrInsufficientCredits):
		return CodeInsufficientCredits
	case errors.Is(err, ErrAnonymousLimitReached):
		return CodeAnonymousLimitReached
	case errors.Is(err, ErrQuotaExceeded):
		return CodeQuotaExceeded
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	case errors.Is(err, ErrUnauthorized):
		return CodeUnauthorized
	case errors.Is(err, ErrConflict):
		return CodeConflict
	default:
		return CodeInternal
	}
}
