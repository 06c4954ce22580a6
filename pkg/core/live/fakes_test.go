package live

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Linkxee-Tech/CartoonLinkxee-AI/pkg/core/audio"
)

type fakeSource struct {
	mu      sync.Mutex
	at      time.Duration
	stopped bool
	done    chan struct{}
}

func (s *fakeSource) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.stopped {
		s.stopped = true
		close(s.done)
	}
}

func (s *fakeSource) Done() <-chan struct{} { return s.done }

func (s *fakeSource) isStopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

type fakeOutput struct {
	mu      sync.Mutex
	now     time.Duration
	sources []*fakeSource
	closed  int
}

func (o *fakeOutput) Now() time.Duration {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.now
}

func (o *fakeOutput) setNow(d time.Duration) {
	o.mu.Lock()
	o.now = d
	o.mu.Unlock()
}

func (o *fakeOutput) Schedule(buf *audio.Buffer, at time.Duration) (Source, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	src := &fakeSource{at: at, done: make(chan struct{})}
	o.sources = append(o.sources, src)
	return src, nil
}

func (o *fakeOutput) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.closed++
	return nil
}

func (o *fakeOutput) snapshot() ([]*fakeSource, int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]*fakeSource, len(o.sources))
	copy(out, o.sources)
	return out, o.closed
}

type fakeSpeaker struct {
	out *fakeOutput
	err error
}

func (s *fakeSpeaker) Open(ctx context.Context, f audio.Format) (Output, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.out, nil
}

type fakeCapture struct {
	frames chan []float32
	mu     sync.Mutex
	closed int
}

func (c *fakeCapture) Frames() <-chan []float32 { return c.frames }

func (c *fakeCapture) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed++
	return nil
}

func (c *fakeCapture) closeCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

type fakeMic struct {
	capture *fakeCapture
	err     error
	opens   int
}

func (m *fakeMic) Open(ctx context.Context, f audio.Format) (Capture, error) {
	m.opens++
	if m.err != nil {
		return nil, m.err
	}
	return m.capture, nil
}

type recv struct {
	msg *ServerMessage
	err error
}

type fakeStream struct {
	incoming chan recv
	sent     chan audio.Blob
	done     chan struct{}
	once     sync.Once
	mu       sync.Mutex
	closed   int
}

func newFakeStream() *fakeStream {
	return &fakeStream{
		incoming: make(chan recv, 16),
		sent:     make(chan audio.Blob, 16),
		done:     make(chan struct{}),
	}
}

func (s *fakeStream) SendAudio(b audio.Blob) error {
	select {
	case s.sent <- b:
	default:
	}
	return nil
}

func (s *fakeStream) Receive() (*ServerMessage, error) {
	select {
	case r := <-s.incoming:
		return r.msg, r.err
	case <-s.done:
		return nil, ErrStreamClosed
	}
}

func (s *fakeStream) Close() error {
	s.mu.Lock()
	s.closed++
	s.mu.Unlock()
	s.once.Do(func() { close(s.done) })
	return nil
}

func (s *fakeStream) closeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

type fakeConnector struct {
	stream *fakeStream
	err    error
	cfgs   []ConnectConfig
}

func (c *fakeConnector) Connect(ctx context.Context, cfg ConnectConfig) (Stream, error) {
	c.cfgs = append(c.cfgs, cfg)
	if c.err != nil {
		return nil, c.err
	}
	return c.stream, nil
}

type rig struct {
	mic       *fakeMic
	out       *fakeOutput
	stream    *fakeStream
	connector *fakeConnector
	mgr       *Manager
}

func newRig(mode Mode) *rig {
	r := &rig{
		mic:    &fakeMic{capture: &fakeCapture{frames: make(chan []float32, 4)}},
		out:    &fakeOutput{},
		stream: newFakeStream(),
	}
	r.connector = &fakeConnector{stream: r.stream}
	r.mgr = NewManager(Config{Mode: mode}, r.connector, r.mic, WithSpeaker(&fakeSpeaker{out: r.out}))
	return r
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// pcm returns d worth of silent 24 kHz mono PCM.
func pcm(d time.Duration) []byte {
	frames := int(d * audio.OutputSampleRate / time.Second)
	return make([]byte, frames*2)
}

var errBoom = errors.New("boom")
