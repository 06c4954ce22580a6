package live

import (
	"time"

	"github.com/Linkxee-Tech/CartoonLinkxee-AI/pkg/core/audio"
)

// Playback schedules model audio back to back on an Output. It is not safe
// for concurrent use; the Manager serializes access.
type Playback struct {
	out     Output
	next    time.Duration
	sources []Source
}

// NewPlayback creates a scheduler for out.
func NewPlayback(out Output) *Playback {
	return &Playback{out: out}
}

// Enqueue schedules buf to start when the previous buffer ends, or now if
// the output already passed that point. It returns the start time.
func (p *Playback) Enqueue(buf *audio.Buffer) (time.Duration, error) {
	p.prune()
	start := p.next
	if now := p.out.Now(); now > start {
		start = now
	}
	src, err := p.out.Schedule(buf, start)
	if err != nil {
		return 0, err
	}
	p.next = start + buf.Duration()
	p.sources = append(p.sources, src)
	return start, nil
}

// Interrupt stops every pending source and resets the cursor to zero.
func (p *Playback) Interrupt() {
	for _, src := range p.sources {
		src.Stop()
	}
	p.sources = nil
	p.next = 0
}

// Cursor returns the time the next buffer would start at, ignoring the
// output clock.
func (p *Playback) Cursor() time.Duration {
	return p.next
}

// Pending returns the number of sources that have not finished.
func (p *Playback) Pending() int {
	p.prune()
	return len(p.sources)
}

func (p *Playback) prune() {
	kept := p.sources[:0]
	for _, src := range p.sources {
		select {
		case <-src.Done():
		default:
			kept = append(kept, src)
		}
	}
	for i := len(kept); i < len(p.sources); i++ {
		p.sources[i] = nil
	}
	p.sources = kept
}
