package device

import (
	"sync"
	"time"

	"github.com/Linkxee-Tech/CartoonLinkxee-AI/pkg/core/audio"
	"github.com/Linkxee-Tech/CartoonLinkxee-AI/pkg/core/live"
)

// mixer renders scheduled buffers into a mono output clock. Positions are in
// frames since the output opened.
type mixer struct {
	rate int

	mu      sync.Mutex
	pos     int64
	sources []*source
}

func newMixer(rate int) *mixer {
	return &mixer{rate: rate}
}

// now reports the output clock.
func (m *mixer) now() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return time.Duration(m.pos) * time.Second / time.Duration(m.rate)
}

// schedule queues buf to start at the given clock time. Multi-channel buffers
// are downmixed.
func (m *mixer) schedule(buf *audio.Buffer, at time.Duration) live.Source {
	src := &source{
		start:   int64(at) * int64(m.rate) / int64(time.Second),
		samples: downmix(buf),
		done:    make(chan struct{}),
	}
	if len(src.samples) == 0 {
		src.finish()
		return src
	}
	m.mu.Lock()
	if src.start < m.pos {
		src.start = m.pos
	}
	m.sources = append(m.sources, src)
	m.mu.Unlock()
	return src
}

// render fills out with the next len(out) frames and advances the clock.
func (m *mixer) render(out []float32) {
	clear(out)
	m.mu.Lock()
	defer m.mu.Unlock()
	end := m.pos + int64(len(out))
	kept := m.sources[:0]
	for _, src := range m.sources {
		if src.isStopped() {
			continue
		}
		if src.start < end {
			from := max(src.start, m.pos)
			for f := from; f < end; f++ {
				i := f - src.start
				if i >= int64(len(src.samples)) {
					break
				}
				out[f-m.pos] += src.samples[i]
			}
		}
		if src.start+int64(len(src.samples)) <= end {
			src.finish()
			continue
		}
		kept = append(kept, src)
	}
	clear(m.sources[len(kept):])
	m.sources = kept
	m.pos = end
	for i, v := range out {
		out[i] = clamp(v)
	}
}

// stopAll ends every queued source.
func (m *mixer) stopAll() {
	m.mu.Lock()
	srcs := m.sources
	m.sources = nil
	m.mu.Unlock()
	for _, src := range srcs {
		src.Stop()
	}
}

func downmix(buf *audio.Buffer) []float32 {
	switch buf.Channels() {
	case 0:
		return nil
	case 1:
		return buf.Samples[0]
	}
	n, chs := buf.Frames(), buf.Channels()
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		var sum float32
		for ch := 0; ch < chs; ch++ {
			sum += buf.Samples[ch][i]
		}
		out[i] = sum / float32(chs)
	}
	return out
}

func clamp(v float32) float32 {
	if v > 1 {
		return 1
	}
	if v < -1 {
		return -1
	}
	return v
}

type source struct {
	start   int64
	samples []float32

	mu      sync.Mutex
	stopped bool
	done    chan struct{}
}

func (s *source) Stop() { s.finish() }

func (s *source) Done() <-chan struct{} { return s.done }

func (s *source) finish() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.stopped {
		s.stopped = true
		close(s.done)
	}
}

func (s *source) isStopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}
