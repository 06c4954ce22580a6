package mw

import (
	"net/http"
	"strconv"
	"time"

	"github.com/Linkxee-Tech/CartoonLinkxee-AI/pkg/core"
	"github.com/Linkxee-Tech/CartoonLinkxee-AI/pkg/gateway/config"
	"github.com/Linkxee-Tech/CartoonLinkxee-AI/pkg/gateway/principal"
	"github.com/Linkxee-Tech/CartoonLinkxee-AI/pkg/gateway/ratelimit"
)

// RateLimit spends one token and one concurrency slot of the caller's
// workspace per request. A nil limiter disables it.
func RateLimit(cfg config.Config, limiter *ratelimit.Limiter, next http.Handler) http.Handler {
	if limiter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if exemptFromRateLimit(r) {
			next.ServeHTTP(w, r)
			return
		}
		dec := limiter.AcquireRequest(principal.Resolve(r, cfg).Key, time.Now())
		if !dec.Allowed {
			writeRateLimited(w, r, dec.RetryAfter)
			return
		}
		defer dec.Permit.Release()
		next.ServeHTTP(w, r)
	})
}

// Public paths and preflights skip the limiter. So do the live socket and
// the video event stream, which their handlers cap per session.
func exemptFromRateLimit(r *http.Request) bool {
	return isPublicPath(r.URL.Path) || r.Method == http.MethodOptions ||
		isWebSocketUpgrade(r) || headerHasToken(r.Header, "Accept", "text/event-stream")
}

func writeRateLimited(w http.ResponseWriter, r *http.Request, retryAfter int) {
	e := core.NewRateLimitError("rate limit exceeded", retryAfter)
	e.RequestID, _ = RequestIDFrom(r.Context())
	if retryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
	}
	writeJSONError(w, http.StatusTooManyRequests, e)
}
