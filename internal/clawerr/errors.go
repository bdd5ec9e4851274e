// Package clawerr defines the shared error taxonomy used across the
// routing engine, provider backends, the metrics store, and the HTTP
// surface.
package clawerr

import "fmt"

// Code identifies the broad class of a Error.
type Code string

const (
	CodeInvalidRequest  Code = "invalid_request"
	CodeProviderError   Code = "provider_error"
	CodeTimeout         Code = "timeout"
	CodeConnectionError Code = "connection_error"
	CodeConfig          Code = "config_error"
	CodeStorage         Code = "storage_error"
	CodeExhausted       Code = "attempts_exhausted"
)

// Error is the single error type threaded through the gateway. Every
// component that needs to distinguish retryable from terminal failures,
// or attach a provider/status to an error, builds one of these rather
// than returning a bare fmt.Errorf.
type Error struct {
	Code      Code
	Message   string
	Provider  string
	Status    int
	Retryable bool
	Cause     error
}

func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func (e *Error) Error() string {
	if e.Provider != "" {
		return fmt.Sprintf("%s: %s: %s", e.Code, e.Provider, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

func (e *Error) WithCause(err error) *Error {
	e.Cause = err
	return e
}

func (e *Error) WithProvider(name string) *Error {
	e.Provider = name
	return e
}

func (e *Error) WithStatus(status int) *Error {
	e.Status = status
	return e
}

func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// IsRetryable reports whether err (or a wrapped *Error within it) is
// marked retryable. A non-*Error is never considered retryable.
func IsRetryable(err error) bool {
	var ce *Error
	if As(err, &ce) {
		return ce.Retryable
	}
	return false
}

// GetCode extracts the Code from err, or "" if err is not a *Error.
func GetCode(err error) Code {
	var ce *Error
	if As(err, &ce) {
		return ce.Code
	}
	return ""
}

// As is a narrow local copy of errors.As specialized to *Error, avoiding
// an import of the errors package purely for this one call site pattern
// used by IsRetryable/GetCode.
func As(err error, target **Error) bool {
	for err != nil {
		if ce, ok := err.(*Error); ok {
			*target = ce
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// ProviderErrorFromStatus builds the Provider Backend's provider error
// (Code CodeProviderError) for an upstream HTTP status >= 400. status 0
// is also accepted and marked retryable; timeouts and connection
// failures have their own builders below.
func ProviderErrorFromStatus(provider string, status int, detail string) *Error {
	retryable := status == 0 || status >= 500 || status == 429
	return &Error{
		Code:      CodeProviderError,
		Message:   detail,
		Provider:  provider,
		Status:    status,
		Retryable: retryable,
	}
}

func Timeout(provider, detail string) *Error {
	return &Error{Code: CodeTimeout, Message: "Timeout: " + detail, Provider: provider, Retryable: true}
}

func ConnectionError(provider, detail string) *Error {
	return &Error{Code: CodeConnectionError, Message: "Connection error: " + detail, Provider: provider, Retryable: true}
}
