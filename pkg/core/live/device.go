package live

import (
	"context"
	"time"

	"github.com/Linkxee-Tech/CartoonLinkxee-AI/pkg/core/audio"
)

// Microphone acquires an exclusive capture handle.
type Microphone interface {
	Open(ctx context.Context, format audio.Format) (Capture, error)
}

// Capture delivers mono float frames until closed. Frames is closed when
// capture ends.
type Capture interface {
	Frames() <-chan []float32
	Close() error
}

// Speaker acquires an exclusive output handle.
type Speaker interface {
	Open(ctx context.Context, format audio.Format) (Output, error)
}

// Output schedules buffers against its own clock. Now is relative to when
// the output was opened.
type Output interface {
	Now() time.Duration
	Schedule(buf *audio.Buffer, at time.Duration) (Source, error)
	Close() error
}

// Source is one scheduled buffer. Done is closed once it finished playing
// or was stopped.
type Source interface {
	Stop()
	Done() <-chan struct{}
}
