package live

import (
	"testing"
	"time"

	"github.com/Linkxee-Tech/CartoonLinkxee-AI/pkg/core/audio"
)

func mustBuffer(t *testing.T, d time.Duration) *audio.Buffer {
	t.Helper()
	buf, err := audio.DecodePCM16(pcm(d), audio.OutputSampleRate, 1)
	if err != nil {
		t.Fatalf("DecodePCM16: %v", err)
	}
	return buf
}

func TestPlayback_GaplessScheduling(t *testing.T) {
	out := &fakeOutput{}
	p := NewPlayback(out)

	tests := []struct {
		now  time.Duration
		dur  time.Duration
		want time.Duration
	}{
		{0, time.Second, 0},
		{0, 500 * time.Millisecond, time.Second},
		{200 * time.Millisecond, 250 * time.Millisecond, 1500 * time.Millisecond},
		// Output clock ran past the cursor: start now.
		{5 * time.Second, 100 * time.Millisecond, 5 * time.Second},
	}
	for i, tt := range tests {
		out.setNow(tt.now)
		got, err := p.Enqueue(mustBuffer(t, tt.dur))
		if err != nil {
			t.Fatalf("Enqueue[%d]: %v", i, err)
		}
		if got != tt.want {
			t.Fatalf("Enqueue[%d] start=%v, want %v", i, got, tt.want)
		}
	}
	if p.Cursor() != 5100*time.Millisecond {
		t.Fatalf("Cursor=%v", p.Cursor())
	}
}

func TestPlayback_InterruptResetsCursor(t *testing.T) {
	out := &fakeOutput{}
	p := NewPlayback(out)
	for i := 0; i < 3; i++ {
		if _, err := p.Enqueue(mustBuffer(t, time.Second)); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
	}
	if p.Pending() != 3 {
		t.Fatalf("Pending=%d, want 3", p.Pending())
	}

	p.Interrupt()

	srcs, _ := out.snapshot()
	for i, s := range srcs {
		if !s.isStopped() {
			t.Fatalf("source %d not stopped", i)
		}
	}
	if p.Pending() != 0 || p.Cursor() != 0 {
		t.Fatalf("Pending=%d Cursor=%v after interrupt", p.Pending(), p.Cursor())
	}
	start, err := p.Enqueue(mustBuffer(t, time.Second))
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if start != 0 {
		t.Fatalf("start after interrupt=%v, want 0", start)
	}
}

func TestPlayback_PrunesFinishedSources(t *testing.T) {
	out := &fakeOutput{}
	p := NewPlayback(out)
	for i := 0; i < 2; i++ {
		if _, err := p.Enqueue(mustBuffer(t, 100*time.Millisecond)); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
	}
	srcs, _ := out.snapshot()
	srcs[0].Stop() // finished playing
	if p.Pending() != 1 {
		t.Fatalf("Pending=%d, want 1", p.Pending())
	}
}
