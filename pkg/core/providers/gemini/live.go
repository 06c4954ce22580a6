package gemini

import (
	"context"
	"errors"
	"sync"

	"github.com/gorilla/websocket"
	"google.golang.org/genai"

	"github.com/Linkxee-Tech/CartoonLinkxee-AI/pkg/core/audio"
	"github.com/Linkxee-Tech/CartoonLinkxee-AI/pkg/core/live"
)

// LiveConnector opens native-audio live sessions.
type LiveConnector struct {
	p *Provider
}

var _ live.Connector = (*LiveConnector)(nil)

// Live returns the live connector.
func (p *Provider) Live() *LiveConnector {
	return &LiveConnector{p: p}
}

// Connect opens a session configured for cfg.Mode.
func (l *LiveConnector) Connect(ctx context.Context, cfg live.ConnectConfig) (live.Stream, error) {
	c, err := l.p.client(ctx)
	if err != nil {
		return nil, err
	}
	model := cfg.Model
	if model == "" {
		model = l.p.models.Live
	}
	session, err := c.Live.Connect(ctx, model, liveConfig(cfg))
	if err != nil {
		err = mapError(err)
		l.p.logFailure("live_connect", err)
		return nil, err
	}
	return &liveStream{session: session}, nil
}

// liveConfig builds the connect config. Transcription sessions only request
// input transcription; conversations add a voice, output transcription and
// the persona instruction.
func liveConfig(cfg live.ConnectConfig) *genai.LiveConnectConfig {
	conf := &genai.LiveConnectConfig{
		ResponseModalities:      []genai.Modality{genai.ModalityAudio},
		InputAudioTranscription: &genai.AudioTranscriptionConfig{},
	}
	if cfg.Mode == live.ModeTranscription {
		return conf
	}
	conf.OutputAudioTranscription = &genai.AudioTranscriptionConfig{}
	if cfg.Voice != "" {
		conf.SpeechConfig = speechConfig(cfg.Voice)
	}
	if cfg.SystemInstruction != "" {
		conf.SystemInstruction = genai.NewContentFromText(cfg.SystemInstruction, genai.RoleUser)
	}
	return conf
}

func speechConfig(voice string) *genai.SpeechConfig {
	return &genai.SpeechConfig{
		VoiceConfig: &genai.VoiceConfig{
			PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: voice},
		},
	}
}

type liveStream struct {
	session *genai.Session

	mu     sync.Mutex
	closed bool
}

func (s *liveStream) SendAudio(blob audio.Blob) error {
	if s.isClosed() {
		return live.ErrStreamClosed
	}
	return s.session.SendRealtimeInput(genai.LiveRealtimeInput{
		Audio: &genai.Blob{Data: blob.Data, MIMEType: blob.MIMEType},
	})
}

func (s *liveStream) Receive() (*live.ServerMessage, error) {
	msg, err := s.session.Receive()
	if err != nil {
		if s.isClosed() || isNormalClose(err) {
			return nil, live.ErrStreamClosed
		}
		return nil, err
	}
	return fromServerMessage(msg), nil
}

func (s *liveStream) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()
	return s.session.Close()
}

func (s *liveStream) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func isNormalClose(err error) bool {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return ce.Code == websocket.CloseNormalClosure || ce.Code == websocket.CloseGoingAway
	}
	return false
}

// fromServerMessage flattens a server message. Every inline audio part of the
// model turn is kept in order.
func fromServerMessage(msg *genai.LiveServerMessage) *live.ServerMessage {
	out := &live.ServerMessage{}
	if msg == nil || msg.ServerContent == nil {
		return out
	}
	sc := msg.ServerContent
	if sc.ModelTurn != nil {
		for _, part := range sc.ModelTurn.Parts {
			if part == nil || part.InlineData == nil || len(part.InlineData.Data) == 0 {
				continue
			}
			out.Audio = append(out.Audio, part.InlineData.Data)
		}
	}
	out.Interrupted = sc.Interrupted
	out.TurnComplete = sc.TurnComplete
	if sc.InputTranscription != nil {
		out.InputText, out.HasInput = sc.InputTranscription.Text, true
	}
	if sc.OutputTranscription != nil {
		out.OutputText, out.HasOutput = sc.OutputTranscription.Text, true
	}
	return out
}
