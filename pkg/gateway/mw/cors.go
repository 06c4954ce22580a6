package mw

import (
	"net/http"
	"strings"

	"github.com/Linkxee-Tech/CartoonLinkxee-AI/pkg/gateway/config"
)

// corsAnyOrigin in STUDIO_CORS_ORIGINS allows every origin. Meant for local
// frontend development.
const corsAnyOrigin = "*"

var (
	corsAllowedMethods = "GET, POST, PUT, DELETE, OPTIONS"
	corsAllowedHeaders = strings.Join([]string{
		"Authorization",
		"Content-Type",
		"X-Request-ID",
		apiVersionHeader,
		"X-Workspace-ID",
		"X-Provider-Key-Gemini",
	}, ", ")
	corsExposedHeaders = strings.Join([]string{
		"X-Request-ID",
		apiVersionHeader,
		"Retry-After",
		"Location",
		"Content-Length",
	}, ", ")
)

// CORS answers preflights for allowlisted browser origins and tags their
// responses. With no origins configured it adds nothing and refuses
// preflights.
func CORS(cfg config.Config, next http.Handler) http.Handler {
	allowed := cfg.CORSAllowedOrigins
	_, anyOrigin := allowed[corsAnyOrigin]
	allows := func(origin string) bool {
		if origin == "" {
			return false
		}
		_, ok := allowed[origin]
		return ok || anyOrigin
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := strings.TrimSpace(r.Header.Get("Origin"))
		preflight := r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != ""

		if !allows(origin) {
			if preflight {
				http.Error(w, "cors preflight not allowed", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
			return
		}

		h := w.Header()
		h.Set("Access-Control-Allow-Origin", origin)
		h.Add("Vary", "Origin")
		if preflight {
			h.Set("Access-Control-Allow-Methods", corsAllowedMethods)
			h.Set("Access-Control-Allow-Headers", corsAllowedHeaders)
			h.Set("Access-Control-Max-Age", "600")
			w.WriteHeader(http.StatusNoContent)
			return
		}
		h.Set("Access-Control-Expose-Headers", corsExposedHeaders)
		next.ServeHTTP(w, r)
	})
}
