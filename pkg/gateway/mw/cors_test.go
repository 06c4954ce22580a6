package mw

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Linkxee-Tech/CartoonLinkxee-AI/pkg/gateway/config"
)

func TestCORS(t *testing.T) {
	const studio = "https://studio.example"
	tests := []struct {
		name       string
		origins    []string
		origin     string
		preflight  bool
		wantStatus int
		wantAllow  string
		wantNext   bool
	}{
		{name: "disabled adds nothing", origin: studio, wantStatus: http.StatusOK, wantNext: true},
		{name: "allowlisted", origins: []string{studio}, origin: studio, wantStatus: http.StatusOK, wantAllow: studio, wantNext: true},
		{name: "other origin untagged", origins: []string{studio}, origin: "https://evil.example", wantStatus: http.StatusOK, wantNext: true},
		{name: "no origin header", origins: []string{studio}, wantStatus: http.StatusOK, wantNext: true},
		{name: "wildcard", origins: []string{"*"}, origin: "http://localhost:5173", wantStatus: http.StatusOK, wantAllow: "http://localhost:5173", wantNext: true},
		{name: "preflight allowed", origins: []string{studio}, origin: studio, preflight: true, wantStatus: http.StatusNoContent, wantAllow: studio},
		{name: "preflight disallowed", origins: []string{studio}, origin: "https://evil.example", preflight: true, wantStatus: http.StatusForbidden},
		{name: "preflight when disabled", origin: studio, preflight: true, wantStatus: http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			allowed := map[string]struct{}{}
			for _, o := range tt.origins {
				allowed[o] = struct{}{}
			}
			reached := false
			h := CORS(config.Config{CORSAllowedOrigins: allowed}, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				reached = true
				w.WriteHeader(http.StatusOK)
			}))

			method := http.MethodGet
			if tt.preflight {
				method = http.MethodOptions
			}
			req := httptest.NewRequest(method, "/v1/characters", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			if tt.preflight {
				req.Header.Set("Access-Control-Request-Method", http.MethodDelete)
			}
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)

			if rr.Code != tt.wantStatus {
				t.Fatalf("status=%d, want %d", rr.Code, tt.wantStatus)
			}
			if got := rr.Header().Get("Access-Control-Allow-Origin"); got != tt.wantAllow {
				t.Fatalf("allow-origin=%q, want %q", got, tt.wantAllow)
			}
			if reached != tt.wantNext {
				t.Fatalf("next reached=%v, want %v", reached, tt.wantNext)
			}
		})
	}
}

func TestCORS_PreflightListsStudioHeaders(t *testing.T) {
	h := CORS(config.Config{CORSAllowedOrigins: map[string]struct{}{"https://studio.example": {}}}, http.NotFoundHandler())
	req := httptest.NewRequest(http.MethodOptions, "/v1/video/generate", nil)
	req.Header.Set("Origin", "https://studio.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	allowHeaders := rr.Header().Get("Access-Control-Allow-Headers")
	for _, want := range []string{"Authorization", "X-Studio-Version", "X-Workspace-ID", "X-Provider-Key-Gemini"} {
		if !strings.Contains(allowHeaders, want) {
			t.Fatalf("allow-headers=%q missing %s", allowHeaders, want)
		}
	}
	if got := rr.Header().Get("Access-Control-Allow-Methods"); !strings.Contains(got, "PUT") || !strings.Contains(got, "DELETE") {
		t.Fatalf("allow-methods=%q", got)
	}
}

func TestCORS_ExposesLocationForCreatedCharacters(t *testing.T) {
	h := CORS(config.Config{CORSAllowedOrigins: map[string]struct{}{"https://studio.example": {}}}, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))
	req := httptest.NewRequest(http.MethodPost, "/v1/characters", nil)
	req.Header.Set("Origin", "https://studio.example")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if got := rr.Header().Get("Access-Control-Expose-Headers"); !strings.Contains(got, "Location") {
		t.Fatalf("expose-headers=%q", got)
	}
}
