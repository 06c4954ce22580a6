package mw

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Linkxee-Tech/CartoonLinkxee-AI/pkg/gateway/auth"
	"github.com/Linkxee-Tech/CartoonLinkxee-AI/pkg/gateway/config"
)

func TestAuth_Modes(t *testing.T) {
	keys := map[string]struct{}{"studio_sk": {}}
	tests := []struct {
		name    string
		mode    config.AuthMode
		method  string
		target  string
		bearer  string
		upgrade bool
		want    int
		wantKey string
	}{
		{name: "required valid", mode: config.AuthModeRequired, target: "/v1/characters", bearer: "studio_sk", want: http.StatusNoContent, wantKey: "studio_sk"},
		{name: "required missing", mode: config.AuthModeRequired, method: http.MethodPost, target: "/v1/characters", want: http.StatusUnauthorized},
		{name: "required invalid", mode: config.AuthModeRequired, target: "/v1/characters", bearer: "nope", want: http.StatusUnauthorized},
		{name: "required health is public", mode: config.AuthModeRequired, target: "/healthz", want: http.StatusNoContent},
		{name: "required stored clip is public", mode: config.AuthModeRequired, target: "/v1/videos/clip.mp4", want: http.StatusNoContent},
		{name: "required live upgrade defers to hello", mode: config.AuthModeRequired, target: "/v1/live", upgrade: true, want: http.StatusNoContent},
		{name: "events accept query token", mode: config.AuthModeRequired, target: "/v1/video/events?access_token=studio_sk", want: http.StatusNoContent, wantKey: "studio_sk"},
		{name: "query token only on events", mode: config.AuthModeRequired, target: "/v1/video/state?access_token=studio_sk", want: http.StatusUnauthorized},
		{name: "query token rejected on post", mode: config.AuthModeRequired, method: http.MethodPost, target: "/v1/video/events?access_token=studio_sk", want: http.StatusUnauthorized},
		{name: "optional anonymous", mode: config.AuthModeOptional, target: "/v1/characters", want: http.StatusNoContent},
		{name: "optional invalid still rejected", mode: config.AuthModeOptional, target: "/v1/characters", bearer: "nope", want: http.StatusUnauthorized},
		{name: "disabled ignores bearer", mode: config.AuthModeDisabled, target: "/v1/characters", bearer: "nope", want: http.StatusNoContent},
		{name: "unknown mode", mode: "sometimes", target: "/v1/characters", want: http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotKey string
			h := Auth(config.Config{AuthMode: tt.mode, APIKeys: keys}, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if p, ok := auth.PrincipalFrom(r.Context()); ok {
					gotKey = p.APIKey
				}
				w.WriteHeader(http.StatusNoContent)
			}))
			method := tt.method
			if method == "" {
				method = http.MethodGet
			}
			req := httptest.NewRequest(method, tt.target, nil)
			if tt.bearer != "" {
				req.Header.Set("Authorization", "Bearer "+tt.bearer)
			}
			if tt.upgrade {
				req.Header.Set("Connection", "Upgrade")
				req.Header.Set("Upgrade", "websocket")
			}
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)
			if rr.Code != tt.want {
				t.Fatalf("status=%d, want %d body=%q", rr.Code, tt.want, rr.Body.String())
			}
			if gotKey != tt.wantKey {
				t.Fatalf("principal key=%q, want %q", gotKey, tt.wantKey)
			}
		})
	}
}
