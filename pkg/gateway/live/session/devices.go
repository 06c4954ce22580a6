package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Linkxee-Tech/CartoonLinkxee-AI/pkg/core/audio"
	"github.com/Linkxee-Tech/CartoonLinkxee-AI/pkg/core/live"
)

const captureQueueSize = 64

var errOutputClosed = errors.New("live output closed")

// wsMicrophone is a live.Microphone fed by client audio frames.
type wsMicrophone struct {
	mu      sync.Mutex
	capture *wsCapture
}

func (m *wsMicrophone) Open(ctx context.Context, format audio.Format) (live.Capture, error) {
	if format.SampleRate != audio.InputSampleRate || format.Channels != 1 {
		return nil, fmt.Errorf("unsupported capture format %d Hz x %d", format.SampleRate, format.Channels)
	}
	c := &wsCapture{frames: make(chan []float32, captureQueueSize)}
	m.mu.Lock()
	old := m.capture
	m.capture = c
	m.mu.Unlock()
	if old != nil {
		_ = old.Close()
	}
	return c, nil
}

// push hands samples to the open capture. It reports false when no capture
// is open or its queue is full.
func (m *wsMicrophone) push(samples []float32) bool {
	m.mu.Lock()
	c := m.capture
	m.mu.Unlock()
	if c == nil {
		return false
	}
	return c.push(samples)
}

type wsCapture struct {
	mu     sync.Mutex
	closed bool
	frames chan []float32
}

func (c *wsCapture) Frames() <-chan []float32 { return c.frames }

func (c *wsCapture) push(samples []float32) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.frames <- samples:
		return true
	default:
		return false
	}
}

func (c *wsCapture) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.frames)
	}
	return nil
}

// wsSpeaker is a live.Speaker that forwards scheduled buffers to the client.
// Its clock starts with the session.
type wsSpeaker struct {
	s *LiveSession
}

func (sp wsSpeaker) Open(ctx context.Context, format audio.Format) (live.Output, error) {
	if format.Channels != 1 {
		return nil, fmt.Errorf("unsupported output channels %d", format.Channels)
	}
	return &wsOutput{s: sp.s}, nil
}

type wsOutput struct {
	s *LiveSession

	mu     sync.Mutex
	closed bool
}

func (o *wsOutput) Now() time.Duration {
	return o.s.now().Sub(o.s.startTime)
}

func (o *wsOutput) Schedule(buf *audio.Buffer, at time.Duration) (live.Source, error) {
	o.mu.Lock()
	closed := o.closed
	o.mu.Unlock()
	if closed {
		return nil, errOutputClosed
	}

	id := o.s.nextSourceID()
	dur := buf.Duration()
	if err := o.s.sendAudio(id, at, dur, audio.EncodePCM16(buf.Interleaved())); err != nil {
		return nil, err
	}

	src := &wsSource{id: id, s: o.s, done: make(chan struct{})}
	wait := at + dur - o.Now()
	if wait < 0 {
		wait = 0
	}
	src.timer = time.AfterFunc(wait, src.finish)
	return src, nil
}

func (o *wsOutput) Close() error {
	o.mu.Lock()
	o.closed = true
	o.mu.Unlock()
	return nil
}

// wsSource is done when its buffer's end passes on the session clock.
type wsSource struct {
	id    string
	s     *LiveSession
	timer *time.Timer
	once  sync.Once
	done  chan struct{}
}

func (src *wsSource) finish() {
	src.once.Do(func() { close(src.done) })
}

func (src *wsSource) Stop() {
	stopped := false
	src.once.Do(func() {
		stopped = true
		src.timer.Stop()
		close(src.done)
	})
	if stopped {
		src.s.stopSource(src.id)
	}
}

func (src *wsSource) Done() <-chan struct{} { return src.done }
