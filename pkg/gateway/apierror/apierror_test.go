package apierror

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/Linkxee-Tech/CartoonLinkxee-AI/pkg/core"
)

func TestFromError_ContextCanceled_Is408Cancelled(t *testing.T) {
	ce, status := FromError(context.Canceled, "req_test")
	if status != 408 {
		t.Fatalf("status=%d", status)
	}
	if ce.Type != core.ErrAPI {
		t.Fatalf("type=%q", ce.Type)
	}
	if ce.Code != "cancelled" {
		t.Fatalf("code=%q", ce.Code)
	}
	if ce.RequestID != "req_test" {
		t.Fatalf("request_id=%q", ce.RequestID)
	}
}

func TestFromError_Deadline_Is504(t *testing.T) {
	_, status := FromError(fmt.Errorf("poll: %w", context.DeadlineExceeded), "req_test")
	if status != http.StatusGatewayTimeout {
		t.Fatalf("status=%d", status)
	}
}

func TestFromError_CoreTypes(t *testing.T) {
	tests := []struct {
		err  *core.Error
		want int
	}{
		{core.NewInvalidRequestError("bad"), http.StatusBadRequest},
		{core.NewAuthenticationError("missing"), http.StatusUnauthorized},
		{core.NewCredentialInvalidError(nil), http.StatusUnauthorized},
		{core.NewPermissionError("no"), http.StatusForbidden},
		{core.NewNotFoundError("gone"), http.StatusNotFound},
		{core.NewRateLimitError("slow down", 3), http.StatusTooManyRequests},
		{core.NewEnvironmentUnavailableError(), http.StatusServiceUnavailable},
		{&core.Error{Type: core.ErrDeviceAccessDenied, Message: "mic"}, http.StatusForbidden},
		{&core.Error{Type: core.ErrStreamClosed, Message: "closed"}, http.StatusBadGateway},
		{core.NewEmptyResultError("nothing"), http.StatusBadGateway},
		{core.NewTransportError(errors.New("dial")), http.StatusBadGateway},
		{core.NewAPIError("boom"), http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(string(tt.err.Type), func(t *testing.T) {
			ce, status := FromError(fmt.Errorf("wrapped: %w", tt.err), "req_1")
			if status != tt.want {
				t.Fatalf("status=%d, want %d", status, tt.want)
			}
			if ce.Type != tt.err.Type || ce.RequestID != "req_1" {
				t.Fatalf("ce=%+v", ce)
			}
			if tt.err.RequestID != "" {
				t.Fatalf("original error was mutated")
			}
		})
	}
}

func TestFromError_NothingToExtendIsConflict(t *testing.T) {
	err := &core.Error{Type: core.ErrInvalidRequest, Message: core.MsgNothingToExtend, Code: core.CodeNothingToExtend}
	ce, status := FromError(err, "req_1")
	if status != http.StatusConflict {
		t.Fatalf("status=%d, want 409", status)
	}
	if ce.Type != core.ErrInvalidRequest || ce.Code != core.CodeNothingToExtend {
		t.Fatalf("ce=%+v", ce)
	}
	if got := Status(core.NewInvalidRequestError("prompt is required")); got != http.StatusBadRequest {
		t.Fatalf("plain invalid request status=%d", got)
	}
}

func TestStatus_UnknownTypeIs500(t *testing.T) {
	if got := Status(&core.Error{Type: "mystery"}); got != http.StatusInternalServerError {
		t.Fatalf("status=%d", got)
	}
	if got := Status(nil); got != http.StatusOK {
		t.Fatalf("nil status=%d", got)
	}
}

func TestFromError_DecodeErrors(t *testing.T) {
	var v struct {
		N int `json:"n"`
	}
	typeErr := json.Unmarshal([]byte(`{"n":"x"}`), &v)
	ce, status := FromError(typeErr, "r")
	if status != http.StatusBadRequest || ce.Param != "n" {
		t.Fatalf("status=%d param=%q", status, ce.Param)
	}

	syntaxErr := json.Unmarshal([]byte(`{`), &v)
	if _, status := FromError(syntaxErr, "r"); status != http.StatusBadRequest {
		t.Fatalf("syntax status=%d", status)
	}

	if _, status := FromError(&http.MaxBytesError{Limit: 1}, "r"); status != http.StatusRequestEntityTooLarge {
		t.Fatalf("max bytes status=%d", status)
	}
}

func TestFromError_UnknownDoesNotLeak(t *testing.T) {
	ce, status := FromError(errors.New("dial tcp 10.0.0.3: secret"), "r")
	if status != http.StatusInternalServerError || ce.Message != "internal error" {
		t.Fatalf("status=%d message=%q", status, ce.Message)
	}
}

func TestFromUpstream_FriendlyMessage(t *testing.T) {
	ce, status := FromUpstream(core.NewPermissionError("PERMISSION_DENIED (403): caller lacks access"), "r")
	if status != http.StatusForbidden {
		t.Fatalf("status=%d", status)
	}
	want := "Permission Denied: Your API key may be invalid or lack necessary permissions. Please verify its configuration in the Google Cloud Console."
	if ce.Message != want {
		t.Fatalf("Message=%q", ce.Message)
	}

	ce, _ = FromUpstream(core.NewInvalidRequestError("prompt is required"), "r")
	if ce.Message != "prompt is required" {
		t.Fatalf("validation message rewritten: %q", ce.Message)
	}
}
