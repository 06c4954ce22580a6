package live

import (
	"context"
	"errors"
	"io"

	"github.com/Linkxee-Tech/CartoonLinkxee-AI/pkg/core/audio"
)

// Mode selects what the remote stream returns.
type Mode string

const (
	// ModeConversation streams audio both ways with transcripts for both speakers.
	ModeConversation Mode = "conversation"
	// ModeTranscription only transcribes the user's speech.
	ModeTranscription Mode = "transcription"
)

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	return m == ModeConversation || m == ModeTranscription
}

// ErrStreamClosed is returned by Stream.Receive when the remote side closed
// the connection normally.
var ErrStreamClosed = errors.New("live stream closed")

// ConnectConfig configures a remote stream.
type ConnectConfig struct {
	Mode              Mode
	Model             string
	Voice             string
	SystemInstruction string
	InputSampleRate   int
	OutputSampleRate  int
}

// Connector opens remote streams.
type Connector interface {
	Connect(ctx context.Context, cfg ConnectConfig) (Stream, error)
}

// Stream is an open realtime connection. Receive blocks until a message
// arrives; it returns ErrStreamClosed or io.EOF on normal remote close.
type Stream interface {
	SendAudio(blob audio.Blob) error
	Receive() (*ServerMessage, error)
	Close() error
}

// ServerMessage is one message from the remote model. Any combination of
// fields may be set.
type ServerMessage struct {
	// Audio holds raw 16-bit PCM chunks at the output sample rate.
	Audio [][]byte

	Interrupted  bool
	TurnComplete bool

	InputText  string
	HasInput   bool
	OutputText string
	HasOutput  bool
}

func isRemoteClose(err error) bool {
	return errors.Is(err, ErrStreamClosed) || errors.Is(err, io.EOF)
}
