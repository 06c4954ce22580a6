package audio

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"math"
)

// Blob is an encoded audio chunk with its wire MIME type.
type Blob struct {
	Data     []byte
	MIMEType string
}

// EncodePCM16 converts float samples in [-1, 1] to little-endian signed
// 16-bit PCM. Out of range samples are clamped.
func EncodePCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(floatToInt16(s)))
	}
	return out
}

func floatToInt16(s float32) int16 {
	if s != s { // NaN
		return 0
	}
	v := float64(s) * 32768
	if v > math.MaxInt16 {
		return math.MaxInt16
	}
	if v < math.MinInt16 {
		return math.MinInt16
	}
	return int16(v)
}

// NewPCMBlob encodes mono capture samples for the live stream.
func NewPCMBlob(samples []float32, sampleRate int) Blob {
	if sampleRate <= 0 {
		sampleRate = InputSampleRate
	}
	f := Format{SampleRate: sampleRate, Channels: 1, BitsPerSample: 16}
	return Blob{Data: EncodePCM16(samples), MIMEType: f.MIMEType()}
}

// EncodeBase64 is the standard base64 encoding used on the wire.
func EncodeBase64(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

// DecodeBase64 decodes a standard base64 payload.
func DecodeBase64(s string) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decode base64 audio: %w", err)
	}
	return data, nil
}

// DecodePCM16 converts interleaved little-endian 16-bit PCM to a planar
// float buffer. A trailing partial frame is dropped.
func DecodePCM16(data []byte, sampleRate, channels int) (*Buffer, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("invalid sample rate %d", sampleRate)
	}
	if channels <= 0 {
		return nil, fmt.Errorf("invalid channel count %d", channels)
	}
	frames := len(data) / (2 * channels)
	buf := &Buffer{SampleRate: sampleRate, Samples: make([][]float32, channels)}
	for ch := range buf.Samples {
		buf.Samples[ch] = make([]float32, frames)
	}
	for i := 0; i < frames; i++ {
		for ch := 0; ch < channels; ch++ {
			off := (i*channels + ch) * 2
			v := int16(binary.LittleEndian.Uint16(data[off:]))
			buf.Samples[ch][i] = float32(v) / 32768
		}
	}
	return buf, nil
}

// DecodeFloat32 converts interleaved little-endian float32 samples, as sent
// by browser capture worklets, into mono-or-interleaved float samples.
func DecodeFloat32(data []byte) ([]float32, error) {
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("float32 payload length %d is not a multiple of 4", len(data))
	}
	out := make([]float32, len(data)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return out, nil
}

// Int16ToFloat converts signed 16-bit samples to floats in [-1, 1).
func Int16ToFloat(in []int16) []float32 {
	out := make([]float32, len(in))
	for i, v := range in {
		out[i] = float32(v) / 32768
	}
	return out
}

// CalculateRMSEnergy computes the root-mean-square energy of 16-bit PCM,
// returning a value between 0.0 and 1.0.
func CalculateRMSEnergy(pcm []byte) float64 {
	samples := len(pcm) / 2
	if samples == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < len(pcm)-1; i += 2 {
		sample := int16(binary.LittleEndian.Uint16(pcm[i:]))
		normalized := float64(sample) / 32768.0
		sum += normalized * normalized
	}
	return math.Sqrt(sum / float64(samples))
}
