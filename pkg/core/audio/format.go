// Package audio converts between captured float samples, the 16-bit PCM the
// live models speak, and decoded playable buffers.
package audio

import (
	"fmt"
	"time"
)

// Sample rates used by the live models.
const (
	InputSampleRate  = 16000
	OutputSampleRate = 24000
)

// Format specifies audio format parameters.
type Format struct {
	// SampleRate in Hz.
	SampleRate int `json:"sample_rate"`

	// Channels: 1 for mono, 2 for stereo.
	Channels int `json:"channels"`

	// BitsPerSample: 16 for PCM.
	BitsPerSample int `json:"bits_per_sample"`
}

// InputFormat is the microphone format sent to the remote service.
func InputFormat() Format {
	return Format{SampleRate: InputSampleRate, Channels: 1, BitsPerSample: 16}
}

// OutputFormat is the synthesized speech format returned by the remote service.
func OutputFormat() Format {
	return Format{SampleRate: OutputSampleRate, Channels: 1, BitsPerSample: 16}
}

// BytesPerSecond returns the audio byte rate.
func (f Format) BytesPerSecond() int {
	return f.SampleRate * f.Channels * (f.BitsPerSample / 8)
}

// DurationMs returns the duration in milliseconds for the given byte count.
func (f Format) DurationMs(bytes int) int {
	if f.BytesPerSecond() == 0 {
		return 0
	}
	return (bytes * 1000) / f.BytesPerSecond()
}

// BytesForDurationMs returns the byte count for the given duration in milliseconds.
func (f Format) BytesForDurationMs(ms int) int {
	return (f.BytesPerSecond() * ms) / 1000
}

// MIMEType returns the wire MIME type, e.g. "audio/pcm;rate=16000".
func (f Format) MIMEType() string {
	return fmt.Sprintf("audio/pcm;rate=%d", f.SampleRate)
}

// Buffer is decoded audio ready to schedule on an output device. Samples are
// planar: Samples[ch][i].
type Buffer struct {
	SampleRate int
	Samples    [][]float32
}

// Frames returns the number of sample frames per channel.
func (b *Buffer) Frames() int {
	if b == nil || len(b.Samples) == 0 {
		return 0
	}
	return len(b.Samples[0])
}

// Channels returns the channel count.
func (b *Buffer) Channels() int {
	if b == nil {
		return 0
	}
	return len(b.Samples)
}

// Duration returns the playback length of b.
func (b *Buffer) Duration() time.Duration {
	if b == nil || b.SampleRate <= 0 {
		return 0
	}
	return time.Duration(b.Frames()) * time.Second / time.Duration(b.SampleRate)
}

// Interleaved returns the samples interleaved by frame.
func (b *Buffer) Interleaved() []float32 {
	n, chs := b.Frames(), b.Channels()
	out := make([]float32, 0, n*chs)
	for i := 0; i < n; i++ {
		for ch := 0; ch < chs; ch++ {
			out = append(out, b.Samples[ch][i])
		}
	}
	return out
}
