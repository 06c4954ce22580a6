// Package sse writes server-sent event streams of JSON snapshots.
package sse

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"
)

// ErrNoFlush is returned by New when the response cannot be streamed.
var ErrNoFlush = errors.New("sse: response writer does not support flushing")

// Writer numbers every event it sends so clients can tell snapshots apart
// after a reconnect.
type Writer struct {
	mu      sync.Mutex
	w       http.ResponseWriter
	flusher http.Flusher
	seq     uint64
}

func New(w http.ResponseWriter) (*Writer, error) {
	f, ok := w.(http.Flusher)
	if !ok {
		return nil, ErrNoFlush
	}
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	return &Writer{w: w, flusher: f}, nil
}

// Retry tells EventSource clients how long to wait before reconnecting.
func (sw *Writer) Retry(d time.Duration) error {
	return sw.write(fmt.Sprintf("retry: %d\n\n", d.Milliseconds()))
}

// Send writes data as one JSON event.
func (sw *Writer) Send(event string, data any) error {
	b, err := json.Marshal(data)
	if err != nil {
		return err
	}
	sw.mu.Lock()
	defer sw.mu.Unlock()
	sw.seq++
	return sw.writeLocked(fmt.Sprintf("id: %d\nevent: %s\ndata: %s\n\n", sw.seq, event, b))
}

// Ping keeps idle intermediaries from closing the stream.
func (sw *Writer) Ping() error {
	return sw.write(": ping\n\n")
}

func (sw *Writer) write(s string) error {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	return sw.writeLocked(s)
}

func (sw *Writer) writeLocked(s string) error {
	if _, err := fmt.Fprint(sw.w, s); err != nil {
		return err
	}
	sw.flusher.Flush()
	return nil
}
