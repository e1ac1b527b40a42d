package llm

import (
	"errors"
	"fmt"
)

// ErrorCode is the closed set of failure classes the completion client can
// report. Callers switch on the code instead of probing provider-specific
// error types, so the mapping from transport failures to user-facing
// behavior lives in one place.
type ErrorCode string

const (
	// CodeConfiguration: the client was constructed without the settings it
	// needs (missing API key, empty model). Caught before any request.
	CodeConfiguration ErrorCode = "configuration"
	// CodeAuthentication: the provider rejected our credentials (401/403).
	CodeAuthentication ErrorCode = "authentication"
	// CodeRateLimit: the provider throttled the request (429). Retryable by
	// the user, never auto-retried here.
	CodeRateLimit ErrorCode = "rate_limit"
	// CodeBadRequest: the provider rejected the request shape (400).
	CodeBadRequest ErrorCode = "bad_request"
	// CodeAPI: any other non-2xx provider response.
	CodeAPI ErrorCode = "api"
	// CodeValidation: the provider answered but the output was not the JSON
	// we asked for, or failed the response schema.
	CodeValidation ErrorCode = "validation"
	// CodeNetwork: the request never completed (DNS, timeout, connection).
	CodeNetwork ErrorCode = "network"
)

// Error carries a taxonomy code alongside a human-readable message. The
// message is safe to surface to end users; provider response bodies are kept
// in the wrapped cause only.
type Error struct {
	Code    ErrorCode
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("llm: %s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("llm: %s", e.Code)
}

func (e *Error) Unwrap() error { return e.Err }

func newError(code ErrorCode, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Err: cause}
}

// CodeOf extracts the taxonomy code from err, walking wrapped causes. It
// returns CodeAPI for errors that did not originate in this package.
func CodeOf(err error) ErrorCode {
	var le *Error
	if errors.As(err, &le) {
		return le.Code
	}
	return CodeAPI
}
