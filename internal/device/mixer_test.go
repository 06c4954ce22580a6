package device

import (
	"testing"
	"time"

	"github.com/Linkxee-Tech/CartoonLinkxee-AI/pkg/core/audio"
)

func mono(samples ...float32) *audio.Buffer {
	return &audio.Buffer{SampleRate: 10, Samples: [][]float32{samples}}
}

func isDone(t *testing.T, ch <-chan struct{}) bool {
	t.Helper()
	select {
	case <-ch:
		return true
	default:
		return false
	}
}

func TestMixer_RenderAdvancesClockAndFinishesSources(t *testing.T) {
	m := newMixer(10)
	src := m.schedule(mono(0.1, 0.2, 0.3), 200*time.Millisecond)

	out := make([]float32, 4)
	m.render(out)
	want := []float32{0, 0, 0.1, 0.2}
	for i := range want {
		if out[i] != want[i] {
			t.Fatalf("out=%v, want %v", out, want)
		}
	}
	if got := m.now(); got != 400*time.Millisecond {
		t.Fatalf("now=%v, want 400ms", got)
	}
	if isDone(t, src.Done()) {
		t.Fatalf("source finished early")
	}

	m.render(out)
	if out[0] != 0.3 || out[1] != 0 {
		t.Fatalf("out=%v", out)
	}
	if !isDone(t, src.Done()) {
		t.Fatalf("source not finished")
	}
}

func TestMixer_LateScheduleStartsNowAndOverlapsMix(t *testing.T) {
	m := newMixer(10)
	out := make([]float32, 2)
	m.render(out)

	m.schedule(mono(0.5, 0.5), 0)
	m.schedule(mono(0.75), 200*time.Millisecond)
	m.render(out)
	if out[0] != 1 || out[1] != 0.5 {
		t.Fatalf("out=%v, want [1 0.5]", out)
	}
}

func TestMixer_StopSilencesSource(t *testing.T) {
	m := newMixer(10)
	a := m.schedule(mono(0.5, 0.5, 0.5), 0)
	b := m.schedule(mono(0.25, 0.25, 0.25), 0)
	a.Stop()

	out := make([]float32, 3)
	m.render(out)
	for _, v := range out {
		if v != 0.25 {
			t.Fatalf("out=%v, want all 0.25", out)
		}
	}
	if !isDone(t, a.Done()) || !isDone(t, b.Done()) {
		t.Fatalf("sources not finished")
	}
}

func TestMixer_StopAllAndEmptyBuffers(t *testing.T) {
	m := newMixer(10)
	empty := m.schedule(&audio.Buffer{SampleRate: 10}, 0)
	if !isDone(t, empty.Done()) {
		t.Fatalf("empty buffer should finish immediately")
	}
	src := m.schedule(mono(0.5), time.Second)
	m.stopAll()
	if !isDone(t, src.Done()) {
		t.Fatalf("stopAll did not stop source")
	}
}

func TestDownmix(t *testing.T) {
	got := downmix(&audio.Buffer{Samples: [][]float32{{1, 0}, {0, 0}}})
	if len(got) != 2 || got[0] != 0.5 || got[1] != 0 {
		t.Fatalf("downmix=%v", got)
	}
}
