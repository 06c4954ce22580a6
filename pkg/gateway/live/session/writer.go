package session

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
)

const (
	defaultPingInterval = 20 * time.Second
	defaultWriteTimeout = 5 * time.Second

	// Frames flushed after cancellation: enough for a closing error plus a
	// few audio_stop messages.
	maxShutdownFrames = 8
	maxShutdownFlush  = 100 * time.Millisecond
)

type wsWriter interface {
	SetWriteDeadline(t time.Time) error
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	Close() error
}

// outboundFrame is one queued server message. Frames carrying model audio
// name their source so a stopped source can be skipped before it is written.
type outboundFrame struct {
	sourceID string

	text       []byte
	binaryPair *binaryPair
}

// binaryPair is an audio_header text message followed by its raw PCM.
type binaryPair struct {
	header []byte
	data   []byte
}

// outboundWriter is the only goroutine writing to the socket. Control
// messages (errors, warnings, audio_stop) go on the priority queue and are
// always written before queued model audio and transcripts.
type outboundWriter struct {
	ws        wsWriter
	ctx       context.Context
	cfg       Config
	priority  <-chan outboundFrame
	normal    <-chan outboundFrame
	isStopped func(sourceID string) bool
	closeCode func() (int, string)

	writeTimeout time.Duration
}

// Run writes until ctx is cancelled or both queues are closed. Cancellation
// flushes what control messages it can and sends a close frame.
func (w *outboundWriter) Run() error {
	pingEvery := w.cfg.PingInterval
	if pingEvery <= 0 {
		pingEvery = defaultPingInterval
	}
	w.writeTimeout = w.cfg.WriteTimeout
	if w.writeTimeout <= 0 {
		w.writeTimeout = defaultWriteTimeout
	}
	ping := time.NewTicker(pingEvery)
	defer ping.Stop()

	for w.priority != nil || w.normal != nil {
		if w.ctx.Err() != nil {
			w.shutdown()
			return nil
		}
		if err := w.flushPriority(); err != nil {
			return err
		}

		select {
		case <-w.ctx.Done():
			w.shutdown()
			return nil
		case <-ping.C:
			if err := w.ws.WriteControl(websocket.PingMessage, []byte("ping"), w.deadline()); err != nil {
				return err
			}
		case frame, ok := <-w.priority:
			if !ok {
				w.priority = nil
				continue
			}
			if err := w.write(frame); err != nil {
				return err
			}
		case frame, ok := <-w.normal:
			if !ok {
				w.normal = nil
				continue
			}
			// An audio_stop queued while this frame waited must land first.
			if err := w.flushPriority(); err != nil {
				return err
			}
			if err := w.write(frame); err != nil {
				return err
			}
		}
	}
	return nil
}

// nextPriority takes a queued control message without blocking.
func (w *outboundWriter) nextPriority() (outboundFrame, bool) {
	if w.priority == nil {
		return outboundFrame{}, false
	}
	select {
	case frame, ok := <-w.priority:
		if !ok {
			w.priority = nil
		}
		return frame, ok
	default:
		return outboundFrame{}, false
	}
}

func (w *outboundWriter) flushPriority() error {
	for {
		frame, ok := w.nextPriority()
		if !ok {
			return nil
		}
		if err := w.write(frame); err != nil {
			return err
		}
	}
}

func (w *outboundWriter) shutdown() {
	flushFor := maxShutdownFlush
	if w.writeTimeout < flushFor {
		flushFor = w.writeTimeout
	}
	until := time.Now().Add(flushFor)
	for n := 0; n < maxShutdownFrames && time.Now().Before(until); n++ {
		frame, ok := w.nextPriority()
		if !ok {
			break
		}
		_ = w.write(frame)
	}

	code, reason := websocket.CloseNormalClosure, ""
	if w.closeCode != nil {
		code, reason = w.closeCode()
	}
	_ = w.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), w.deadline())
	_ = w.ws.Close()
}

func (w *outboundWriter) deadline() time.Time {
	return time.Now().Add(w.writeTimeout)
}

func (w *outboundWriter) write(frame outboundFrame) error {
	if frame.sourceID != "" && w.isStopped != nil && w.isStopped(frame.sourceID) {
		return nil
	}
	switch {
	case frame.binaryPair != nil:
		return w.writeAudioPair(frame.binaryPair)
	case len(frame.text) > 0:
		if err := w.ws.SetWriteDeadline(w.deadline()); err != nil {
			return err
		}
		return w.ws.WriteMessage(websocket.TextMessage, frame.text)
	default:
		return nil
	}
}

// writeAudioPair writes the header and its PCM under one deadline so the
// client never sees a header without data.
func (w *outboundWriter) writeAudioPair(p *binaryPair) error {
	if err := w.ws.SetWriteDeadline(w.deadline()); err != nil {
		return err
	}
	if err := w.ws.WriteMessage(websocket.TextMessage, p.header); err != nil {
		return err
	}
	return w.ws.WriteMessage(websocket.BinaryMessage, p.data)
}
