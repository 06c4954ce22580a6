// Package device adapts the host sound card, through PortAudio, to the live
// session's microphone and speaker capabilities.
//
// Callers must run Init before opening devices and Terminate when done.
package device

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gordonklaus/portaudio"

	"github.com/Linkxee-Tech/CartoonLinkxee-AI/pkg/core/audio"
	"github.com/Linkxee-Tech/CartoonLinkxee-AI/pkg/core/live"
)

// FramesPerBuffer is the callback size for capture and playback.
const FramesPerBuffer = 1024

// Init initializes PortAudio.
func Init() error {
	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("portaudio init: %w", err)
	}
	return nil
}

// Terminate releases PortAudio.
func Terminate() error {
	return portaudio.Terminate()
}

// Microphone captures from the default input device.
type Microphone struct {
	// Buffer is the number of frames queued before capture drops audio.
	Buffer int
}

var _ live.Microphone = Microphone{}

// Open starts capturing mono float frames at format.SampleRate.
func (m Microphone) Open(ctx context.Context, format audio.Format) (live.Capture, error) {
	if format.Channels > 1 {
		return nil, errors.New("microphone capture is mono only")
	}
	size := m.Buffer
	if size <= 0 {
		size = 32
	}
	c := &capture{frames: make(chan []float32, size)}
	stream, err := portaudio.OpenDefaultStream(1, 0, float64(format.SampleRate), FramesPerBuffer, c.process)
	if err != nil {
		return nil, fmt.Errorf("open microphone: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return nil, fmt.Errorf("start microphone: %w", err)
	}
	c.stream = stream
	go func() {
		<-ctx.Done()
		c.Close()
	}()
	return c, nil
}

type capture struct {
	stream *portaudio.Stream
	frames chan []float32

	once sync.Once
	err  error
}

func (c *capture) process(in []float32) {
	frame := make([]float32, len(in))
	copy(frame, in)
	select {
	case c.frames <- frame:
	default:
	}
}

func (c *capture) Frames() <-chan []float32 { return c.frames }

func (c *capture) Close() error {
	c.once.Do(func() {
		// The callback no longer runs once Stop returns.
		if err := c.stream.Stop(); err != nil {
			c.err = err
		}
		if err := c.stream.Close(); err != nil && c.err == nil {
			c.err = err
		}
		close(c.frames)
	})
	return c.err
}

// Speaker plays through the default output device.
type Speaker struct{}

var _ live.Speaker = Speaker{}

// Open starts a mono output stream at format.SampleRate.
func (Speaker) Open(ctx context.Context, format audio.Format) (live.Output, error) {
	if format.SampleRate <= 0 {
		return nil, errors.New("speaker sample rate is required")
	}
	o := &output{mixer: newMixer(format.SampleRate)}
	stream, err := portaudio.OpenDefaultStream(0, 1, float64(format.SampleRate), FramesPerBuffer, o.mixer.render)
	if err != nil {
		return nil, fmt.Errorf("open speaker: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return nil, fmt.Errorf("start speaker: %w", err)
	}
	o.stream = stream
	return o, nil
}

type output struct {
	stream *portaudio.Stream
	mixer  *mixer

	once sync.Once
	err  error
}

func (o *output) Now() time.Duration { return o.mixer.now() }

func (o *output) Schedule(buf *audio.Buffer, at time.Duration) (live.Source, error) {
	if buf == nil {
		return nil, errors.New("nil buffer")
	}
	return o.mixer.schedule(buf, at), nil
}

func (o *output) Close() error {
	o.once.Do(func() {
		o.mixer.stopAll()
		if err := o.stream.Stop(); err != nil {
			o.err = err
		}
		if err := o.stream.Close(); err != nil && o.err == nil {
			o.err = err
		}
	})
	return o.err
}
