package core

import (
	"errors"
	"fmt"
	"strings"
)

// Error represents a studio error. Components store it in their state and
// return it to callers; the gateway serializes it as the "error" envelope.
type Error struct {
	Type          ErrorType `json:"type"`
	Message       string    `json:"message"`
	Param         string    `json:"param,omitempty"`
	Code          string    `json:"code,omitempty"`
	RequestID     string    `json:"request_id,omitempty"`
	ProviderError any       `json:"provider_error,omitempty"`
	RetryAfter    *int      `json:"retry_after,omitempty"`

	cause error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s (code: %s)", e.Type, e.Message, e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// ErrorType categorizes errors.
type ErrorType string

const (
	ErrInvalidRequest         ErrorType = "invalid_request_error"
	ErrAuthentication         ErrorType = "authentication_error"
	ErrPermission             ErrorType = "permission_error"
	ErrNotFound               ErrorType = "not_found_error"
	ErrRateLimit              ErrorType = "rate_limit_error"
	ErrAPI                    ErrorType = "api_error"
	ErrEnvironmentUnavailable ErrorType = "environment_unavailable"
	ErrCredentialInvalid      ErrorType = "credential_invalid"
	ErrTransport              ErrorType = "transport_error"
	ErrEmptyResult            ErrorType = "empty_result"
	ErrDeviceAccessDenied     ErrorType = "device_access_denied"
	ErrStream                 ErrorType = "stream_error"
	ErrStreamClosed           ErrorType = "stream_closed"
)

// Codes carried alongside ErrInvalidRequest.
const (
	CodeNothingToExtend = "nothing_to_extend"
	CodeEmptyPrompt     = "empty_prompt"
)

// User-facing messages shared by the orchestrators and the gateway.
const (
	MsgCredentialInvalid    = "API Key not found or invalid. Please select a valid API key."
	MsgEnvironment          = "AI Studio context is not available."
	MsgNothingToExtend      = "No previous video to extend. Please generate a video first."
	MsgGenerationEmpty      = "Video generation finished, but no video was returned."
	MsgExtensionEmpty       = "Video extension finished, but no video was returned."
	MsgMicrophoneDenied     = "Could not access microphone. Please check permissions."
	MsgConnection           = "A connection error occurred."
	MsgUnexpected           = "An unexpected error occurred. Please try again."
	entityNotFoundSubstring = "Requested entity was not found."
)

// NewInvalidRequestError creates an invalid request error.
func NewInvalidRequestError(message string) *Error {
	return &Error{
		Type:    ErrInvalidRequest,
		Message: message,
	}
}

// NewInvalidRequestErrorWithParam creates an invalid request error with a parameter.
func NewInvalidRequestErrorWithParam(message, param string) *Error {
	return &Error{
		Type:    ErrInvalidRequest,
		Message: message,
		Param:   param,
	}
}

// NewAuthenticationError creates an authentication error.
func NewAuthenticationError(message string) *Error {
	return &Error{
		Type:    ErrAuthentication,
		Message: message,
	}
}

// NewPermissionError creates a permission error.
func NewPermissionError(message string) *Error {
	return &Error{
		Type:    ErrPermission,
		Message: message,
	}
}

// NewNotFoundError creates a not found error.
func NewNotFoundError(message string) *Error {
	return &Error{
		Type:    ErrNotFound,
		Message: message,
	}
}

// NewRateLimitError creates a rate limit error.
func NewRateLimitError(message string, retryAfter int) *Error {
	return &Error{
		Type:       ErrRateLimit,
		Message:    message,
		RetryAfter: &retryAfter,
	}
}

// NewAPIError creates a generic API error.
func NewAPIError(message string) *Error {
	return &Error{
		Type:    ErrAPI,
		Message: message,
	}
}

// NewEnvironmentUnavailableError reports that no credential capability is
// wired into the running process.
func NewEnvironmentUnavailableError() *Error {
	return &Error{
		Type:    ErrEnvironmentUnavailable,
		Message: MsgEnvironment,
	}
}

// NewCredentialInvalidError wraps a remote "entity not found" failure.
func NewCredentialInvalidError(cause error) *Error {
	return &Error{
		Type:    ErrCredentialInvalid,
		Message: MsgCredentialInvalid,
		cause:   cause,
	}
}

// NewTransportError wraps a failure talking to the remote service.
func NewTransportError(cause error) *Error {
	return &Error{
		Type:    ErrTransport,
		Message: FriendlyMessage(cause),
		cause:   cause,
	}
}

// NewEmptyResultError creates an error for a finished operation without output.
func NewEmptyResultError(message string) *Error {
	return &Error{
		Type:    ErrEmptyResult,
		Message: message,
	}
}

// NewDeviceAccessDeniedError wraps a microphone or speaker acquisition failure.
func NewDeviceAccessDeniedError(cause error) *Error {
	return &Error{
		Type:    ErrDeviceAccessDenied,
		Message: MsgMicrophoneDenied,
		cause:   cause,
	}
}

// NewStreamError wraps a failure on an open live stream.
func NewStreamError(cause error) *Error {
	return &Error{
		Type:    ErrStream,
		Message: MsgConnection,
		cause:   cause,
	}
}

// NewProviderError creates a provider-specific error.
func NewProviderError(provider string, underlying error) *Error {
	return &Error{
		Type:          ErrAPI,
		Message:       fmt.Sprintf("%s: %v", provider, underlying),
		ProviderError: underlying.Error(),
		cause:         underlying,
	}
}

// WithCause attaches an underlying error and returns e.
func (e *Error) WithCause(err error) *Error {
	e.cause = err
	return e
}

// IsRetryable returns true if the error is retryable.
func (e *Error) IsRetryable() bool {
	switch e.Type {
	case ErrRateLimit, ErrAPI, ErrTransport:
		return true
	default:
		return false
	}
}

// Unwrap returns the underlying error for error wrapping.
func (e *Error) Unwrap() error {
	if e.cause != nil {
		return e.cause
	}
	if ue, ok := e.ProviderError.(error); ok {
		return ue
	}
	return nil
}

// TypeOf returns the ErrorType of the first *Error in err's chain, or "".
func TypeOf(err error) ErrorType {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Type
	}
	return ""
}

// IsEntityNotFound reports whether err is the remote service's signal that the
// selected credential does not resolve to a usable project or key.
func IsEntityNotFound(err error) bool {
	if err == nil {
		return false
	}
	var ce *Error
	if errors.As(err, &ce) && ce.Type == ErrCredentialInvalid {
		return true
	}
	return strings.Contains(err.Error(), entityNotFoundSubstring)
}
