package mw

import (
	"net/http"
	"strings"

	"github.com/Linkxee-Tech/CartoonLinkxee-AI/pkg/core"
)

const (
	apiVersionHeader    = "X-Studio-Version"
	supportedAPIVersion = "1"
)

// APIVersion pins /v1 requests to the one served API version and echoes it on
// the response. A request without the header gets version 1.
func APIVersion(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions || isWebSocketUpgrade(r) || !isV1Path(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}
		if v, ok := unsupportedVersion(r.Header.Values(apiVersionHeader)); ok {
			reqID, _ := RequestIDFrom(r.Context())
			writeJSONError(w, http.StatusBadRequest, &core.Error{
				Type:      core.ErrInvalidRequest,
				Message:   "unsupported API version " + v + "; this gateway serves version " + supportedAPIVersion,
				Param:     apiVersionHeader,
				Code:      "unsupported_version",
				RequestID: reqID,
			})
			return
		}
		w.Header().Set(apiVersionHeader, supportedAPIVersion)
		next.ServeHTTP(w, r)
	})
}

// unsupportedVersion returns the first listed version other than the served
// one. Header values may repeat and may be comma separated.
func unsupportedVersion(values []string) (string, bool) {
	for _, value := range values {
		for _, v := range strings.Split(value, ",") {
			if v = strings.TrimSpace(v); v != "" && v != supportedAPIVersion {
				return v, true
			}
		}
	}
	return "", false
}

func isV1Path(path string) bool {
	return path == "/v1" || strings.HasPrefix(path, "/v1/")
}

func isWebSocketUpgrade(r *http.Request) bool {
	return strings.EqualFold(strings.TrimSpace(r.Header.Get("Upgrade")), "websocket") &&
		headerHasToken(r.Header, "Connection", "upgrade")
}

func headerHasToken(h http.Header, name, token string) bool {
	for _, value := range h.Values(name) {
		for _, part := range strings.Split(value, ",") {
			if strings.EqualFold(strings.TrimSpace(part), token) {
				return true
			}
		}
	}
	return false
}
