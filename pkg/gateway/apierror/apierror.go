// Package apierror turns studio failures into the gateway's JSON error
// envelope and the HTTP status that goes with it.
package apierror

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/Linkxee-Tech/CartoonLinkxee-AI/pkg/core"
)

type Envelope struct {
	Error *core.Error `json:"error"`
}

// statusByType is the status for each studio error category. Failures that
// originate at the model provider surface as 502 so clients can tell them
// apart from gateway faults.
var statusByType = map[core.ErrorType]int{
	core.ErrInvalidRequest:         http.StatusBadRequest,
	core.ErrAuthentication:         http.StatusUnauthorized,
	core.ErrCredentialInvalid:      http.StatusUnauthorized,
	core.ErrPermission:             http.StatusForbidden,
	core.ErrDeviceAccessDenied:     http.StatusForbidden,
	core.ErrNotFound:               http.StatusNotFound,
	core.ErrRateLimit:              http.StatusTooManyRequests,
	core.ErrEnvironmentUnavailable: http.StatusServiceUnavailable,
	core.ErrAPI:                    http.StatusBadGateway,
	core.ErrTransport:              http.StatusBadGateway,
	core.ErrEmptyResult:            http.StatusBadGateway,
	core.ErrStream:                 http.StatusBadGateway,
	core.ErrStreamClosed:           http.StatusBadGateway,
}

// statusByCode overrides statusByType for codes that describe orchestrator
// state rather than a malformed request.
var statusByCode = map[string]int{
	core.CodeNothingToExtend: http.StatusConflict,
}

// Status is the HTTP status for ce.
func Status(ce *core.Error) int {
	if ce == nil {
		return http.StatusOK
	}
	if status, ok := statusByCode[ce.Code]; ok {
		return status
	}
	if status, ok := statusByType[ce.Type]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// FromError maps err to a copy tagged with requestID. Errors that are not
// studio errors never leak their text.
func FromError(err error, requestID string) (*core.Error, int) {
	if err == nil {
		return nil, http.StatusOK
	}
	out, status := classify(err)
	out.RequestID = requestID
	return out, status
}

// FromUpstream is FromError for failed model calls: the message becomes the
// one the studio shows its users.
func FromUpstream(err error, requestID string) (*core.Error, int) {
	out, status := FromError(err, requestID)
	var ce *core.Error
	if out != nil && errors.As(err, &ce) {
		out.Message = core.FriendlyMessage(ce)
	}
	return out, status
}

func classify(err error) (*core.Error, int) {
	// A long poll that outlives its request deadline.
	if errors.Is(err, context.DeadlineExceeded) {
		return &core.Error{Type: core.ErrAPI, Message: "request timeout"}, http.StatusGatewayTimeout
	}
	// Reset or client disconnect while a chain was running.
	if errors.Is(err, context.Canceled) {
		return &core.Error{Type: core.ErrAPI, Message: "request cancelled", Code: "cancelled"}, http.StatusRequestTimeout
	}

	var ce *core.Error
	if errors.As(err, &ce) && ce != nil {
		out := *ce
		return &out, Status(ce)
	}

	// Character and generation bodies that failed to decode.
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return &core.Error{
			Type:    core.ErrInvalidRequest,
			Message: "request body too large",
			Code:    "body_too_large",
		}, http.StatusRequestEntityTooLarge
	}
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		out := &core.Error{Type: core.ErrInvalidRequest, Message: "invalid JSON body"}
		if typeErr != nil {
			out.Param = typeErr.Field
		}
		return out, http.StatusBadRequest
	}

	return &core.Error{Type: core.ErrAPI, Message: "internal error"}, http.StatusInternalServerError
}
