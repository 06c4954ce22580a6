package live

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/Linkxee-Tech/CartoonLinkxee-AI/pkg/core"
	"github.com/Linkxee-Tech/CartoonLinkxee-AI/pkg/core/audio"
	"github.com/Linkxee-Tech/CartoonLinkxee-AI/pkg/core/types"
)

// Phase is the session lifecycle position.
type Phase int

const (
	PhaseClosed Phase = iota
	PhaseConnecting
	PhaseOpen
)

// String returns a human-readable phase name.
func (p Phase) String() string {
	switch p {
	case PhaseClosed:
		return "closed"
	case PhaseConnecting:
		return "connecting"
	case PhaseOpen:
		return "open"
	default:
		return "unknown"
	}
}

// DefaultModel is the native-audio model used when Config.Model is empty.
const DefaultModel = "gemini-2.5-flash-native-audio-preview-09-2025"

// Config configures a Manager.
type Config struct {
	Mode              Mode
	Model             string
	Voice             string
	SystemInstruction string
	InputSampleRate   int
	OutputSampleRate  int
}

// ConfigFor builds a config for mode, applying c's persona and voice when c
// is set.
func ConfigFor(mode Mode, c *types.Character) Config {
	cfg := Config{Mode: mode, Voice: types.LiveVoice(c)}
	if c != nil {
		cfg.SystemInstruction = types.PersonaInstruction("", c)
	}
	return cfg
}

func (c Config) withDefaults() Config {
	if c.Mode == "" {
		c.Mode = ModeConversation
	}
	if c.Model == "" {
		c.Model = DefaultModel
	}
	if c.Voice == "" {
		c.Voice = types.PrebuiltZephyr
	}
	if c.InputSampleRate <= 0 {
		c.InputSampleRate = audio.InputSampleRate
	}
	if c.OutputSampleRate <= 0 {
		c.OutputSampleRate = audio.OutputSampleRate
	}
	return c
}

// State is the observable snapshot of a Manager.
type State struct {
	Mode         Mode                    `json:"mode"`
	IsActive     bool                    `json:"is_active"`
	IsConnecting bool                    `json:"is_connecting"`
	Error        string                  `json:"error,omitempty"`
	ErrorType    core.ErrorType          `json:"error_type,omitempty"`
	Transcript   []types.TranscriptEntry `json:"transcript,omitempty"`
	Text         string                  `json:"text,omitempty"`
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithSpeaker sets the output device. Conversation mode requires one.
func WithSpeaker(s Speaker) Option {
	return func(m *Manager) { m.speaker = s }
}

// Tagged events consumed by the dispatch loop.
type event interface{ isEvent() }

type messageEvent struct{ msg *ServerMessage }
type errorEvent struct{ err error }
type closedEvent struct{}

func (messageEvent) isEvent() {}
func (errorEvent) isEvent()   {}
func (closedEvent) isEvent()  {}

// resources is everything acquired by one Start. release runs once.
type resources struct {
	capture  Capture
	output   Output
	stream   Stream
	playback *Playback
	cancel   context.CancelFunc
	once     sync.Once
}

func (r *resources) release() {
	r.once.Do(func() {
		r.cancel()
		if r.stream != nil {
			_ = r.stream.Close()
		}
		if r.capture != nil {
			_ = r.capture.Close()
		}
		if r.output != nil {
			_ = r.output.Close()
		}
	})
}

// Manager runs at most one live session at a time.
type Manager struct {
	cfg       Config
	connector Connector
	mic       Microphone
	speaker   Speaker
	logger    *slog.Logger

	mu         sync.Mutex
	phase      Phase
	gen        uint64
	errMsg     string
	errType    core.ErrorType
	transcript Transcript
	text       strings.Builder
	res        *resources
	abort      context.CancelFunc // cancels an in-progress Start
	subs       map[chan State]struct{}
}

// NewManager creates a manager. Conversation mode needs WithSpeaker.
func NewManager(cfg Config, connector Connector, mic Microphone, opts ...Option) *Manager {
	m := &Manager{
		cfg:       cfg.withDefaults(),
		connector: connector,
		mic:       mic,
		logger:    slog.Default(),
		subs:      make(map[chan State]struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Mode returns the session mode.
func (m *Manager) Mode() Mode { return m.cfg.Mode }

// Snapshot returns the current state.
func (m *Manager) Snapshot() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

func (m *Manager) snapshotLocked() State {
	return State{
		Mode:         m.cfg.Mode,
		IsActive:     m.phase == PhaseOpen,
		IsConnecting: m.phase == PhaseConnecting,
		Error:        m.errMsg,
		ErrorType:    m.errType,
		Transcript:   m.transcript.Entries(),
		Text:         m.text.String(),
	}
}

// Phase returns the lifecycle phase.
func (m *Manager) Phase() Phase {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.phase
}

// PlaybackCursor returns the next scheduled start time of model audio.
func (m *Manager) PlaybackCursor() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.res == nil || m.res.playback == nil {
		return 0
	}
	return m.res.playback.Cursor()
}

// PendingPlayback returns the number of unfinished output sources.
func (m *Manager) PendingPlayback() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.res == nil || m.res.playback == nil {
		return 0
	}
	return m.res.playback.Pending()
}

// Subscribe delivers state snapshots until ctx is done. Slow readers only
// see the latest snapshot.
func (m *Manager) Subscribe(ctx context.Context) <-chan State {
	ch := make(chan State, 1)
	m.mu.Lock()
	m.subs[ch] = struct{}{}
	ch <- m.snapshotLocked()
	m.mu.Unlock()

	go func() {
		<-ctx.Done()
		m.mu.Lock()
		delete(m.subs, ch)
		close(ch)
		m.mu.Unlock()
	}()
	return ch
}

func (m *Manager) notifyLocked() {
	s := m.snapshotLocked()
	for ch := range m.subs {
		select {
		case <-ch:
		default:
		}
		ch <- s
	}
}

// Start opens a session. It is a no-op while connecting or open. The session
// is torn down when ctx is cancelled.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.phase != PhaseClosed {
		m.mu.Unlock()
		return nil
	}
	m.gen++
	gen := m.gen
	m.phase = PhaseConnecting
	m.errMsg, m.errType = "", ""
	m.transcript.Reset()
	m.text.Reset()
	sctx, cancel := context.WithCancel(ctx)
	m.abort = cancel
	m.notifyLocked()
	m.mu.Unlock()

	res := &resources{cancel: cancel}

	capture, err := m.mic.Open(sctx, audio.Format{SampleRate: m.cfg.InputSampleRate, Channels: 1, BitsPerSample: 16})
	if err != nil {
		res.release()
		return m.failStart(gen, core.NewDeviceAccessDeniedError(err))
	}
	res.capture = capture

	if m.cfg.Mode == ModeConversation {
		if m.speaker == nil {
			res.release()
			return m.failStart(gen, core.NewDeviceAccessDeniedError(errors.New("no output device configured")))
		}
		out, err := m.speaker.Open(sctx, audio.Format{SampleRate: m.cfg.OutputSampleRate, Channels: 1, BitsPerSample: 16})
		if err != nil {
			res.release()
			return m.failStart(gen, core.NewDeviceAccessDeniedError(err))
		}
		res.output = out
		res.playback = NewPlayback(out)
	}

	stream, err := m.connector.Connect(sctx, ConnectConfig{
		Mode:              m.cfg.Mode,
		Model:             m.cfg.Model,
		Voice:             m.cfg.Voice,
		SystemInstruction: m.cfg.SystemInstruction,
		InputSampleRate:   m.cfg.InputSampleRate,
		OutputSampleRate:  m.cfg.OutputSampleRate,
	})
	if err != nil {
		res.release()
		return m.failStart(gen, core.NewTransportError(err))
	}
	res.stream = stream

	m.mu.Lock()
	if m.gen != gen {
		// Stopped while connecting.
		m.mu.Unlock()
		res.release()
		return context.Canceled
	}
	m.res = res
	m.abort = nil
	m.phase = PhaseOpen
	m.notifyLocked()
	m.mu.Unlock()

	m.logger.Info("live session opened", "mode", m.cfg.Mode, "model", m.cfg.Model, "voice", m.cfg.Voice)

	events := make(chan event, 16)
	go m.pump(sctx, res, events)
	go m.read(sctx, res, events)
	go m.dispatch(sctx, gen, res, events)
	return nil
}

func (m *Manager) failStart(gen uint64, err *core.Error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gen != gen {
		return err
	}
	m.abort = nil
	m.phase = PhaseClosed
	m.errMsg, m.errType = err.Message, err.Type
	m.notifyLocked()
	m.logger.Warn("live session failed to start", "error_type", err.Type, "error", errors.Unwrap(err))
	return err
}

// Stop closes the session and releases every device. Safe to call at any
// time and more than once.
func (m *Manager) Stop() {
	m.shutdown(0, nil)
}

// shutdown tears down the session started as gen (0 matches any). cause is
// recorded as the session error when non-nil.
func (m *Manager) shutdown(gen uint64, cause *core.Error) {
	m.mu.Lock()
	if gen != 0 && gen != m.gen {
		m.mu.Unlock()
		return
	}
	res := m.res
	m.res = nil
	if m.abort != nil {
		m.abort()
		m.abort = nil
	}
	wasOpen := m.phase != PhaseClosed
	m.gen++
	m.phase = PhaseClosed
	if res != nil && res.playback != nil {
		res.playback.Interrupt()
	}
	m.transcript.Seal()
	if cause != nil {
		m.errMsg, m.errType = cause.Message, cause.Type
	}
	if wasOpen {
		m.notifyLocked()
	}
	m.mu.Unlock()

	if res != nil {
		res.release()
	}
	if wasOpen {
		if cause != nil {
			m.logger.Warn("live session closed", "mode", m.cfg.Mode, "error", errors.Unwrap(cause))
		} else {
			m.logger.Info("live session closed", "mode", m.cfg.Mode)
		}
	}
}

func post(ctx context.Context, events chan<- event, ev event) bool {
	select {
	case events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

// pump streams encoded capture frames until capture ends or ctx is done.
func (m *Manager) pump(ctx context.Context, res *resources, events chan<- event) {
	frames := res.capture.Frames()
	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-frames:
			if !ok {
				return
			}
			blob := audio.NewPCMBlob(frame, m.cfg.InputSampleRate)
			if err := res.stream.SendAudio(blob); err != nil {
				post(ctx, events, errorEvent{err: fmt.Errorf("send audio: %w", err)})
				return
			}
		}
	}
}

// read converts stream receives into events.
func (m *Manager) read(ctx context.Context, res *resources, events chan<- event) {
	for {
		msg, err := res.stream.Receive()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if isRemoteClose(err) {
				post(ctx, events, closedEvent{})
			} else {
				post(ctx, events, errorEvent{err: err})
			}
			return
		}
		if msg == nil {
			continue
		}
		if !post(ctx, events, messageEvent{msg: msg}) {
			return
		}
	}
}

// dispatch is the single consumer of session events.
func (m *Manager) dispatch(ctx context.Context, gen uint64, res *resources, events <-chan event) {
	for {
		select {
		case <-ctx.Done():
			m.shutdown(gen, nil)
			return
		case ev := <-events:
			switch ev := ev.(type) {
			case messageEvent:
				m.handleMessage(gen, res, ev.msg)
			case errorEvent:
				m.shutdown(gen, core.NewStreamError(ev.err))
				return
			case closedEvent:
				m.shutdown(gen, nil)
				return
			}
		}
	}
}

func (m *Manager) handleMessage(gen uint64, res *resources, msg *ServerMessage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if gen != m.gen {
		return
	}

	if m.cfg.Mode == ModeTranscription {
		if msg.HasInput && msg.InputText != "" {
			m.text.WriteString(msg.InputText)
			m.notifyLocked()
		}
		return
	}

	if res.playback != nil {
		for _, chunk := range msg.Audio {
			buf, err := audio.DecodePCM16(chunk, m.cfg.OutputSampleRate, 1)
			if err != nil || buf.Frames() == 0 {
				continue
			}
			if _, err := res.playback.Enqueue(buf); err != nil {
				m.logger.Warn("live playback schedule failed", "error", err)
			}
		}
		if msg.Interrupted {
			res.playback.Interrupt()
		}
	}

	changed := false
	if msg.HasInput && msg.InputText != "" {
		m.transcript.Add(types.SpeakerUser, msg.InputText)
		changed = true
	}
	if msg.HasOutput && msg.OutputText != "" {
		m.transcript.Add(types.SpeakerModel, msg.OutputText)
		changed = true
	}
	if msg.TurnComplete {
		m.transcript.Seal()
	}
	if changed {
		m.notifyLocked()
	}
}
