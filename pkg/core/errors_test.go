package core

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestError_Error(t *testing.T) {
	err := &Error{
		Type:    ErrInvalidRequest,
		Message: "prompt is required",
	}

	expected := "invalid_request_error: prompt is required"
	if err.Error() != expected {
		t.Errorf("Error() = %q, want %q", err.Error(), expected)
	}
}

func TestError_WithCode(t *testing.T) {
	err := &Error{
		Type:    ErrInvalidRequest,
		Message: MsgNothingToExtend,
		Code:    CodeNothingToExtend,
	}

	expected := "invalid_request_error: " + MsgNothingToExtend + " (code: nothing_to_extend)"
	if err.Error() != expected {
		t.Errorf("Error() = %q, want %q", err.Error(), expected)
	}
}

func TestNewRateLimitError(t *testing.T) {
	err := NewRateLimitError("rate limit exceeded", 60)
	if err.Type != ErrRateLimit {
		t.Errorf("Type = %v, want %v", err.Type, ErrRateLimit)
	}
	if err.RetryAfter == nil || *err.RetryAfter != 60 {
		t.Errorf("RetryAfter = %v, want 60", err.RetryAfter)
	}
}

func TestDomainConstructors(t *testing.T) {
	cause := errors.New("boom")
	tests := []struct {
		name    string
		err     *Error
		typ     ErrorType
		message string
	}{
		{"environment", NewEnvironmentUnavailableError(), ErrEnvironmentUnavailable, MsgEnvironment},
		{"credential", NewCredentialInvalidError(cause), ErrCredentialInvalid, MsgCredentialInvalid},
		{"empty", NewEmptyResultError(MsgGenerationEmpty), ErrEmptyResult, MsgGenerationEmpty},
		{"device", NewDeviceAccessDeniedError(cause), ErrDeviceAccessDenied, MsgMicrophoneDenied},
		{"stream", NewStreamError(cause), ErrStream, MsgConnection},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Type != tt.typ {
				t.Fatalf("Type=%q, want %q", tt.err.Type, tt.typ)
			}
			if tt.err.Message != tt.message {
				t.Fatalf("Message=%q, want %q", tt.err.Message, tt.message)
			}
		})
	}
}

func TestError_UnwrapCause(t *testing.T) {
	cause := errors.New("socket reset")
	err := fmt.Errorf("start: %w", NewStreamError(cause))
	if !errors.Is(err, cause) {
		t.Fatalf("errors.Is(err, cause)=false, want true")
	}
	if TypeOf(err) != ErrStream {
		t.Fatalf("TypeOf=%q, want %q", TypeOf(err), ErrStream)
	}
	if TypeOf(cause) != "" {
		t.Fatalf("TypeOf(plain)=%q, want empty", TypeOf(cause))
	}
}

func TestIsRetryable(t *testing.T) {
	if !NewTransportError(errors.New("x")).IsRetryable() {
		t.Fatalf("transport error should be retryable")
	}
	if NewInvalidRequestError("x").IsRetryable() {
		t.Fatalf("invalid request should not be retryable")
	}
}

func TestIsEntityNotFound(t *testing.T) {
	if !IsEntityNotFound(errors.New(`{"error":{"code":404,"message":"Requested entity was not found.","status":"NOT_FOUND"}}`)) {
		t.Fatalf("expected entity-not-found match")
	}
	if !IsEntityNotFound(NewCredentialInvalidError(nil)) {
		t.Fatalf("credential_invalid should count as entity-not-found")
	}
	if IsEntityNotFound(errors.New("deadline exceeded")) {
		t.Fatalf("unexpected match")
	}
	if IsEntityNotFound(nil) {
		t.Fatalf("nil should not match")
	}
}

func TestFriendlyMessage(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		prefix string
	}{
		{"nil", nil, MsgUnexpected},
		{"empty", errors.New(""), MsgUnexpected},
		{"referrer", errors.New("API_KEY_HTTP_REFERRER_BLOCKED"), "API Key Error: Your API key has HTTP referrer restrictions"},
		{"referer text", errors.New("Requests from referer http://x are blocked."), "API Key Error: Your API key has HTTP referrer restrictions"},
		{"invalid key", errors.New("reason: API_KEY_INVALID"), "API Key Error: The provided API key is invalid."},
		{"permission", errors.New("PERMISSION_DENIED"), "Permission Denied:"},
		{"missing key", errors.New("API_KEY environment variable is not set"), "Configuration Error:"},
		{"mic", errors.New("getUserMedia failed"), "Microphone Error:"},
		{"bad request", errors.New("status 400"), "Bad Request: The server could not process the request. Please check your inputs. Details: status 400"},
		{"server", errors.New("got 503"), "Server Error: An internal server error occurred."},
		{"fallback", errors.New("weird"), "An error occurred: weird"},
		{"classified", NewEmptyResultError(MsgExtensionEmpty), MsgExtensionEmpty},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FriendlyMessage(tt.err)
			if !strings.HasPrefix(got, tt.prefix) {
				t.Fatalf("FriendlyMessage=%q, want prefix %q", got, tt.prefix)
			}
		})
	}
}

func TestFriendlyMessage_JSONEnvelope(t *testing.T) {
	err := errors.New(`{"error":{"status":"RESOURCE_EXHAUSTED","message":"quota"}}`)
	got := FriendlyMessage(err)
	want := "An error occurred: RESOURCE_EXHAUSTED: quota"
	if got != want {
		t.Fatalf("FriendlyMessage=%q, want %q", got, want)
	}
}
