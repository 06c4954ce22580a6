// Package auth carries the gateway caller identity through request contexts.
package auth

import (
	"context"
	"net/http"
	"strings"
)

const (
	// HeaderProviderKeyGemini carries a caller-supplied Gemini key.
	HeaderProviderKeyGemini = "X-Provider-Key-Gemini"

	// QueryAccessToken carries the gateway key for EventSource requests,
	// which cannot set an Authorization header.
	QueryAccessToken = "access_token"
)

// Principal is the authenticated caller. APIKey is the gateway key, never the
// upstream Gemini key.
type Principal struct {
	APIKey string
}

type ctxKey struct{}

func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, ctxKey{}, p)
}

func PrincipalFrom(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(ctxKey{}).(*Principal)
	return p, ok && p != nil
}

// GatewayKey returns the key presented with r: a bearer token, or for GET
// event streams the access_token query parameter.
func GatewayKey(r *http.Request) (string, bool) {
	if scheme, token, ok := strings.Cut(strings.TrimSpace(r.Header.Get("Authorization")), " "); ok && scheme == "Bearer" {
		if token = strings.TrimSpace(token); token != "" {
			return token, true
		}
		return "", false
	}
	if r.Method == http.MethodGet && strings.HasSuffix(r.URL.Path, "/events") {
		if token := strings.TrimSpace(r.URL.Query().Get(QueryAccessToken)); token != "" {
			return token, true
		}
	}
	return "", false
}

// ProviderKey returns the BYOK Gemini key sent with r, if any.
func ProviderKey(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(HeaderProviderKeyGemini))
}
