package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/Linkxee-Tech/CartoonLinkxee-AI/pkg/core"
)

// mapError converts an SDK failure into a *core.Error. Errors that are
// already classified, and context errors, pass through unchanged.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var ce *core.Error
	if errors.As(err, &ce) {
		return err
	}

	apiErr, ok := asAPIError(err)
	if !ok {
		return core.NewAPIError(err.Error()).WithCause(err)
	}

	msg := remoteMessage(apiErr.Code, apiErr.Status, apiErr.Message)
	if strings.Contains(apiErr.Message, "Requested entity was not found.") {
		out := core.NewCredentialInvalidError(err)
		out.Code = apiErr.Status
		return out
	}

	// Map Gemini status codes to our error types
	var out *core.Error
	switch apiErr.Status {
	case "INVALID_ARGUMENT", "FAILED_PRECONDITION":
		out = core.NewInvalidRequestError(msg)
	case "UNAUTHENTICATED":
		out = core.NewAuthenticationError(msg)
	case "PERMISSION_DENIED":
		out = core.NewPermissionError(msg)
	case "NOT_FOUND":
		out = core.NewNotFoundError(msg)
	case "RESOURCE_EXHAUSTED":
		out = core.NewRateLimitError(msg, 0)
		out.RetryAfter = nil
	default:
		out = core.NewAPIError(msg)
	}

	// Also check HTTP status code
	switch {
	case apiErr.Code == 429:
		out.Type = core.ErrRateLimit
	case apiErr.Code == 401:
		out.Type = core.ErrAuthentication
	case apiErr.Code >= 500:
		out.Type = core.ErrAPI
	}

	out.Code = apiErr.Status
	out.ProviderError = apiErr.Details
	return out.WithCause(err)
}

func asAPIError(err error) (genai.APIError, bool) {
	var v genai.APIError
	if errors.As(err, &v) {
		return v, true
	}
	var p *genai.APIError
	if errors.As(err, &p) && p != nil {
		return *p, true
	}
	return genai.APIError{}, false
}

// remoteMessage renders a remote failure as "STATUS (code): message" so the
// status and code stay visible to user-facing message matching.
func remoteMessage(code int, status, message string) string {
	switch {
	case status != "" && code != 0:
		return fmt.Sprintf("%s (%d): %s", status, code, message)
	case status != "":
		return status + ": " + message
	case code != 0:
		return fmt.Sprintf("%d: %s", code, message)
	default:
		return message
	}
}

// operationError extracts the failure carried by a terminal operation.
func operationError(m map[string]any) (code int, status, message string) {
	if len(m) == 0 {
		return 0, "", ""
	}
	switch v := m["code"].(type) {
	case float64:
		code = int(v)
	case int:
		code = v
	case int32:
		code = int(v)
	case int64:
		code = int(v)
	}
	status, _ = m["status"].(string)
	message, _ = m["message"].(string)
	if message == "" {
		message = fmt.Sprint(m)
	}
	return code, status, message
}
