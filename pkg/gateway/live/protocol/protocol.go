// Package protocol defines the /v1/live websocket frames exchanged between a
// browser and the gateway's live session bridge.
package protocol

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Linkxee-Tech/CartoonLinkxee-AI/pkg/core/audio"
	"github.com/Linkxee-Tech/CartoonLinkxee-AI/pkg/core/live"
	"github.com/Linkxee-Tech/CartoonLinkxee-AI/pkg/core/types"
)

const (
	ProtocolVersion1 = "1"

	EncodingPCM16LE = "pcm_s16le"
	EncodingF32LE   = "f32le"

	AudioTransportBinary     = "binary"
	AudioTransportBase64JSON = "base64_json"

	ControlStop = "stop"
)

type DecodeError struct {
	Code    string
	Message string
	Param   string
}

func (e *DecodeError) Error() string {
	if e == nil {
		return ""
	}
	if strings.TrimSpace(e.Param) == "" {
		return e.Message
	}
	return fmt.Sprintf("%s (%s)", e.Message, e.Param)
}

func badRequest(message, param string) *DecodeError {
	return &DecodeError{Code: "bad_request", Message: message, Param: param}
}

func unsupported(message, param string) *DecodeError {
	return &DecodeError{Code: "unsupported", Message: message, Param: param}
}

// AudioFormat describes negotiated live audio shape.
type AudioFormat struct {
	Encoding     string `json:"encoding"`
	SampleRateHz int    `json:"sample_rate_hz"`
	Channels     int    `json:"channels"`
}

type HelloAuth struct {
	GatewayAPIKey string `json:"gateway_api_key,omitempty"`
}

type HelloBYOK struct {
	Gemini string `json:"gemini,omitempty"`
}

type ClientHello struct {
	Type            string           `json:"type"`
	ProtocolVersion string           `json:"protocol_version"`
	Mode            live.Mode        `json:"mode"`
	Workspace       string           `json:"workspace,omitempty"`
	CharacterID     string           `json:"character_id,omitempty"`
	Character       *types.Character `json:"character,omitempty"`
	Auth            *HelloAuth       `json:"auth,omitempty"`
	BYOK            HelloBYOK        `json:"byok,omitempty"`
	AudioIn         AudioFormat      `json:"audio_in"`
	AudioTransport  string           `json:"audio_transport,omitempty"`
}

// RedactedForLog returns the hello without credentials.
func (h ClientHello) RedactedForLog() map[string]any {
	return map[string]any{
		"type":             h.Type,
		"protocol_version": h.ProtocolVersion,
		"mode":             h.Mode,
		"character_id":     h.CharacterID,
		"inline_character": h.Character != nil,
		"audio_in":         h.AudioIn,
		"audio_transport":  h.AudioTransport,
		"has_gateway_key":  h.Auth != nil && strings.TrimSpace(h.Auth.GatewayAPIKey) != "",
		"has_byok_gemini":  strings.TrimSpace(h.BYOK.Gemini) != "",
	}
}

type ClientAudioFrame struct {
	Type    string `json:"type"`
	Seq     int64  `json:"seq,omitempty"`
	DataB64 string `json:"data_b64"`
}

type ClientControl struct {
	Type string `json:"type"`
	Op   string `json:"op"`
}

func DecodeClientMessage(data []byte) (any, error) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, badRequest("invalid json frame", "")
	}
	typ := strings.TrimSpace(envelope.Type)
	if typ == "" {
		return nil, badRequest("missing type", "type")
	}

	switch typ {
	case "hello":
		var msg ClientHello
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid hello frame", "")
		}
		msg, err := NormalizeHello(msg)
		if err != nil {
			return nil, err
		}
		return msg, nil
	case "audio_frame":
		var msg ClientAudioFrame
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid audio_frame", "")
		}
		if strings.TrimSpace(msg.DataB64) == "" {
			return nil, badRequest("audio_frame.data_b64 is required", "data_b64")
		}
		return msg, nil
	case "control":
		var msg ClientControl
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid control", "")
		}
		op := strings.TrimSpace(msg.Op)
		if op == "" {
			return nil, badRequest("control.op is required", "op")
		}
		if op != ControlStop {
			return nil, unsupported("unsupported control operation", "op")
		}
		msg.Op = op
		return msg, nil
	default:
		return nil, badRequest("unsupported message type", "type")
	}
}

// NormalizeHello validates msg and defaults the audio transport to base64
// JSON. An empty mode is left for the caller to resolve.
func NormalizeHello(msg ClientHello) (ClientHello, error) {
	if strings.TrimSpace(msg.ProtocolVersion) == "" {
		return msg, badRequest("hello.protocol_version is required", "protocol_version")
	}
	if msg.Mode != "" && !msg.Mode.Valid() {
		return msg, unsupported("hello.mode must be conversation or transcription", "mode")
	}

	switch strings.TrimSpace(msg.AudioIn.Encoding) {
	case EncodingPCM16LE, EncodingF32LE:
	case "":
		return msg, badRequest("hello.audio_in.encoding is required", "audio_in.encoding")
	default:
		return msg, unsupported("audio_in.encoding must be pcm_s16le or f32le", "audio_in.encoding")
	}
	if msg.AudioIn.SampleRateHz != audio.InputSampleRate {
		return msg, unsupported(fmt.Sprintf("audio_in.sample_rate_hz must be %d", audio.InputSampleRate), "audio_in.sample_rate_hz")
	}
	if msg.AudioIn.Channels != 1 {
		return msg, unsupported("audio_in.channels must be 1", "audio_in.channels")
	}

	switch strings.TrimSpace(msg.AudioTransport) {
	case "":
		msg.AudioTransport = AudioTransportBase64JSON
	case AudioTransportBinary, AudioTransportBase64JSON:
	default:
		return msg, unsupported("unsupported audio transport", "audio_transport")
	}

	if msg.Character != nil {
		if err := msg.Character.Validate(); err != nil {
			return msg, badRequest(err.Error(), "character")
		}
	}
	return msg, nil
}

// ResolveMode picks the hello's mode, then fallback (typically the ?mode=
// query parameter), then conversation.
func ResolveMode(hello ClientHello, fallback string) (live.Mode, error) {
	if hello.Mode != "" {
		return hello.Mode, nil
	}
	m := live.Mode(strings.TrimSpace(fallback))
	if m == "" {
		return live.ModeConversation, nil
	}
	if !m.Valid() {
		return "", unsupported("mode must be conversation or transcription", "mode")
	}
	return m, nil
}

// OutputFormat is the fixed format of model audio sent to the client.
func OutputFormat() AudioFormat {
	return AudioFormat{Encoding: EncodingPCM16LE, SampleRateHz: audio.OutputSampleRate, Channels: 1}
}

type HelloAckLimits struct {
	MaxAudioFrameBytes  int   `json:"max_audio_frame_bytes"`
	MaxJSONMessageBytes int   `json:"max_json_message_bytes"`
	MaxAudioBPS         int64 `json:"max_audio_bps,omitempty"`
	InboundBurstSeconds int   `json:"inbound_burst_seconds,omitempty"`
	MaxSessionMS        int64 `json:"max_session_ms,omitempty"`
}

type ServerHelloAck struct {
	Type            string          `json:"type"`
	ProtocolVersion string          `json:"protocol_version"`
	SessionID       string          `json:"session_id"`
	Mode            live.Mode       `json:"mode"`
	Voice           string          `json:"voice,omitempty"`
	AudioIn         AudioFormat     `json:"audio_in"`
	AudioOut        AudioFormat     `json:"audio_out"`
	AudioTransport  string          `json:"audio_transport"`
	Limits          *HelloAckLimits `json:"limits,omitempty"`
}

// ServerSession mirrors the manager's lifecycle flags.
type ServerSession struct {
	Type         string         `json:"type"`
	IsActive     bool           `json:"is_active"`
	IsConnecting bool           `json:"is_connecting"`
	Error        string         `json:"error,omitempty"`
	ErrorType    string         `json:"error_type,omitempty"`
	Extra        map[string]any `json:"extra,omitempty"`
}

type ServerTranscript struct {
	Type    string                  `json:"type"`
	Entries []types.TranscriptEntry `json:"entries"`
}

type ServerTranscription struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// ServerAudio is one scheduled chunk of model audio. StartMS is on the
// session clock that starts at hello_ack.
type ServerAudio struct {
	Type       string `json:"type"`
	SourceID   string `json:"source_id"`
	StartMS    int64  `json:"start_ms"`
	DurationMS int64  `json:"duration_ms"`
	AudioB64   string `json:"audio_b64,omitempty"`
}

// ServerAudioHeader precedes a binary audio frame.
type ServerAudioHeader struct {
	Type       string `json:"type"`
	SourceID   string `json:"source_id"`
	StartMS    int64  `json:"start_ms"`
	DurationMS int64  `json:"duration_ms"`
	Bytes      int    `json:"bytes"`
}

type ServerAudioStop struct {
	Type      string   `json:"type"`
	SourceIDs []string `json:"source_ids"`
}

type ServerError struct {
	Type      string         `json:"type"`
	Scope     string         `json:"scope,omitempty"`
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	Retryable bool           `json:"retryable,omitempty"`
	Close     bool           `json:"close,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
}

type ServerWarning struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}
