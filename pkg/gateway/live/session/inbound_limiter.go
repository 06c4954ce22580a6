package session

import (
	"time"

	"golang.org/x/time/rate"
)

// inboundAudioLimiter caps client audio in bytes per second, allowing
// burstSeconds worth of audio at once.
type inboundAudioLimiter struct {
	now func() time.Time
	bps *rate.Limiter
}

func newInboundAudioLimiter(now func() time.Time, bps int64, burstSeconds int) *inboundAudioLimiter {
	if bps <= 0 {
		return nil
	}
	if now == nil {
		now = time.Now
	}
	if burstSeconds <= 0 {
		burstSeconds = 1
	}
	burst := bps * int64(burstSeconds)
	l := &inboundAudioLimiter{
		now: now,
		bps: rate.NewLimiter(rate.Limit(bps), int(burst)),
	}
	return l
}

// Allow consumes frameBytes tokens, or reports false leaving the bucket as is.
func (l *inboundAudioLimiter) Allow(frameBytes int) bool {
	if l == nil {
		return true
	}
	if frameBytes <= 0 {
		return true
	}
	return l.bps.AllowN(l.now(), frameBytes)
}
