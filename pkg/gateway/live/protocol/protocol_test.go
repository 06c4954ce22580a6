package protocol

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/Linkxee-Tech/CartoonLinkxee-AI/pkg/core/live"
)

func TestDecodeClientMessage_Hello(t *testing.T) {
	raw := []byte(`{
		"type":"hello",
		"protocol_version":"1",
		"mode":"transcription",
		"character_id":"chr_1",
		"byok":{"gemini":"AIza-test"},
		"audio_in":{"encoding":"pcm_s16le","sample_rate_hz":16000,"channels":1}
	}`)
	msg, err := DecodeClientMessage(raw)
	if err != nil {
		t.Fatalf("DecodeClientMessage error: %v", err)
	}
	hello, ok := msg.(ClientHello)
	if !ok {
		t.Fatalf("type=%T, want ClientHello", msg)
	}
	if hello.Mode != live.ModeTranscription {
		t.Fatalf("mode=%q, want %q", hello.Mode, live.ModeTranscription)
	}
	if hello.CharacterID != "chr_1" {
		t.Fatalf("character_id=%q", hello.CharacterID)
	}
	if hello.BYOK.Gemini != "AIza-test" {
		t.Fatalf("byok.gemini=%q", hello.BYOK.Gemini)
	}
	if hello.AudioTransport != AudioTransportBase64JSON {
		t.Fatalf("audio_transport=%q, want %q", hello.AudioTransport, AudioTransportBase64JSON)
	}
}

func TestDecodeClientMessage_HelloWithoutMode(t *testing.T) {
	raw := []byte(`{"type":"hello","protocol_version":"1","audio_in":{"encoding":"f32le","sample_rate_hz":16000,"channels":1},"audio_transport":"binary"}`)
	msg, err := DecodeClientMessage(raw)
	if err != nil {
		t.Fatalf("DecodeClientMessage error: %v", err)
	}
	hello := msg.(ClientHello)
	if hello.Mode != "" {
		t.Fatalf("mode=%q, want empty", hello.Mode)
	}
	if hello.AudioTransport != AudioTransportBinary {
		t.Fatalf("audio_transport=%q", hello.AudioTransport)
	}
}

func TestResolveMode(t *testing.T) {
	tests := []struct {
		hello    live.Mode
		fallback string
		want     live.Mode
		wantErr  bool
	}{
		{hello: live.ModeTranscription, fallback: "conversation", want: live.ModeTranscription},
		{fallback: "transcription", want: live.ModeTranscription},
		{fallback: "", want: live.ModeConversation},
		{fallback: "karaoke", wantErr: true},
	}
	for _, tc := range tests {
		got, err := ResolveMode(ClientHello{Mode: tc.hello}, tc.fallback)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("ResolveMode(%q, %q) expected error", tc.hello, tc.fallback)
			}
			continue
		}
		if err != nil || got != tc.want {
			t.Fatalf("ResolveMode(%q, %q)=%q, %v, want %q", tc.hello, tc.fallback, got, err, tc.want)
		}
	}
}

func TestDecodeClientMessage_HelloRejected(t *testing.T) {
	base := `"type":"hello","protocol_version":"1"`
	audioIn := `"audio_in":{"encoding":"pcm_s16le","sample_rate_hz":16000,"channels":1}`
	tests := []struct {
		name  string
		raw   string
		code  string
		param string
	}{
		{
			name:  "missing protocol version",
			raw:   `{"type":"hello",` + audioIn + `}`,
			code:  "bad_request",
			param: "protocol_version",
		},
		{
			name:  "missing encoding",
			raw:   `{` + base + `,"audio_in":{"sample_rate_hz":16000,"channels":1}}`,
			code:  "bad_request",
			param: "audio_in.encoding",
		},
		{
			name:  "unknown mode",
			raw:   `{` + base + `,"mode":"karaoke",` + audioIn + `}`,
			code:  "unsupported",
			param: "mode",
		},
		{
			name:  "wrong sample rate",
			raw:   `{` + base + `,"audio_in":{"encoding":"pcm_s16le","sample_rate_hz":48000,"channels":1}}`,
			code:  "unsupported",
			param: "audio_in.sample_rate_hz",
		},
		{
			name:  "stereo",
			raw:   `{` + base + `,"audio_in":{"encoding":"pcm_s16le","sample_rate_hz":16000,"channels":2}}`,
			code:  "unsupported",
			param: "audio_in.channels",
		},
		{
			name:  "unknown transport",
			raw:   `{` + base + `,` + audioIn + `,"audio_transport":"carrier_pigeon"}`,
			code:  "unsupported",
			param: "audio_transport",
		},
		{
			name:  "invalid inline character",
			raw:   `{` + base + `,` + audioIn + `,"character":{"name":"Ada"}}`,
			code:  "bad_request",
			param: "character",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := DecodeClientMessage([]byte(tc.raw))
			if err == nil {
				t.Fatalf("expected error")
			}
			de, ok := err.(*DecodeError)
			if !ok {
				t.Fatalf("err=%T, want *DecodeError", err)
			}
			if de.Code != tc.code || de.Param != tc.param {
				t.Fatalf("code=%q param=%q, want %q %q", de.Code, de.Param, tc.code, tc.param)
			}
		})
	}
}

func TestDecodeClientMessage_AudioFrame(t *testing.T) {
	msg, err := DecodeClientMessage([]byte(`{"type":"audio_frame","seq":3,"data_b64":"AAAA"}`))
	if err != nil {
		t.Fatalf("DecodeClientMessage error: %v", err)
	}
	frame := msg.(ClientAudioFrame)
	if frame.Seq != 3 || frame.DataB64 != "AAAA" {
		t.Fatalf("frame=%+v", frame)
	}

	_, err = DecodeClientMessage([]byte(`{"type":"audio_frame"}`))
	if de, ok := err.(*DecodeError); !ok || de.Param != "data_b64" {
		t.Fatalf("err=%v, want data_b64 error", err)
	}
}

func TestDecodeClientMessage_Control(t *testing.T) {
	msg, err := DecodeClientMessage([]byte(`{"type":"control","op":" stop "}`))
	if err != nil {
		t.Fatalf("DecodeClientMessage error: %v", err)
	}
	if got := msg.(ClientControl).Op; got != ControlStop {
		t.Fatalf("op=%q, want %q", got, ControlStop)
	}

	_, err = DecodeClientMessage([]byte(`{"type":"control","op":"rewind"}`))
	de, ok := err.(*DecodeError)
	if !ok || de.Code != "unsupported" {
		t.Fatalf("err=%v, want unsupported", err)
	}
}

func TestDecodeClientMessage_Malformed(t *testing.T) {
	tests := []struct {
		raw   string
		param string
	}{
		{raw: `not json`, param: ""},
		{raw: `{}`, param: "type"},
		{raw: `{"type":"dance"}`, param: "type"},
	}
	for _, tc := range tests {
		_, err := DecodeClientMessage([]byte(tc.raw))
		de, ok := err.(*DecodeError)
		if !ok {
			t.Fatalf("%s: err=%T, want *DecodeError", tc.raw, err)
		}
		if de.Code != "bad_request" || de.Param != tc.param {
			t.Fatalf("%s: code=%q param=%q", tc.raw, de.Code, de.Param)
		}
	}
}

func TestClientHelloRedaction(t *testing.T) {
	hello := ClientHello{
		Type:            "hello",
		ProtocolVersion: ProtocolVersion1,
		Auth:            &HelloAuth{GatewayAPIKey: "gw_secret"},
		BYOK:            HelloBYOK{Gemini: "AIza-secret"},
	}
	b, err := json.Marshal(hello.RedactedForLog())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	s := string(b)
	if strings.Contains(s, "gw_secret") || strings.Contains(s, "AIza-secret") {
		t.Fatalf("redacted hello leaked a secret: %s", s)
	}
	if !strings.Contains(s, `"has_byok_gemini":true`) || !strings.Contains(s, `"has_gateway_key":true`) {
		t.Fatalf("redacted hello missing presence flags: %s", s)
	}
}

func TestDecodeError_Error(t *testing.T) {
	if got := badRequest("bad", "").Error(); got != "bad" {
		t.Fatalf("Error()=%q", got)
	}
	if got := unsupported("nope", "mode").Error(); got != "nope (mode)" {
		t.Fatalf("Error()=%q", got)
	}
}
