package core

import (
	"encoding/json"
	"errors"
	"strings"
)

// FriendlyMessage turns an arbitrary failure into text suitable for an end
// user. Errors already classified by this package keep their message; raw
// remote failures are unwrapped from the {"error":{"status","message"}}
// envelope and matched against known key, permission and server conditions.
func FriendlyMessage(err error) string {
	if err == nil {
		return MsgUnexpected
	}
	var ce *Error
	if errors.As(err, &ce) {
		switch ce.Type {
		case ErrAPI, ErrRateLimit, ErrAuthentication, ErrPermission, ErrNotFound:
			// Provider failures carry the remote text.
			return friendlyText(ce.Message)
		default:
			return ce.Message
		}
	}
	return friendlyText(err.Error())
}

func friendlyText(msg string) string {
	if msg == "" {
		return MsgUnexpected
	}
	msg = unwrapEnvelope(msg)

	switch {
	case strings.Contains(msg, "API_KEY_HTTP_REFERRER_BLOCKED"),
		strings.Contains(msg, "Requests from referer") && strings.Contains(msg, "are blocked"):
		return `API Key Error: Your API key has HTTP referrer restrictions that are blocking requests from this origin. To fix this, go to your Google Cloud Console, find the API key you are using, and under "Website restrictions," either remove the restrictions or add this website's URL to the allowed list.`
	case strings.Contains(msg, "API_KEY_INVALID"):
		return "API Key Error: The provided API key is invalid. Please check your API key in the Google Cloud Console."
	case strings.Contains(msg, "PERMISSION_DENIED"):
		return "Permission Denied: Your API key may be invalid or lack necessary permissions. Please verify its configuration in the Google Cloud Console."
	case strings.Contains(msg, "API_KEY environment variable is not set"):
		return "Configuration Error: The API key is missing. Please ensure it is configured correctly."
	case strings.Contains(msg, "getUserMedia"):
		return "Microphone Error: Could not access the microphone. Please ensure you have granted the necessary permissions in your browser settings."
	case strings.Contains(msg, "400"):
		return "Bad Request: The server could not process the request. Please check your inputs. Details: " + msg
	case strings.Contains(msg, "500"), strings.Contains(msg, "503"):
		return "Server Error: An internal server error occurred. Please try again later. Details: " + msg
	}
	return "An error occurred: " + msg
}

func unwrapEnvelope(msg string) string {
	var env struct {
		Error *struct {
			Status  string `json:"status"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal([]byte(strings.TrimSpace(msg)), &env); err != nil {
		return msg
	}
	if env.Error == nil || env.Error.Message == "" {
		return msg
	}
	if env.Error.Status != "" {
		return env.Error.Status + ": " + env.Error.Message
	}
	return env.Error.Message
}
