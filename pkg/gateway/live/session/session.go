// Package session bridges one /v1/live websocket to a live.Manager: client
// audio feeds the manager's microphone, and model audio, transcripts and
// state changes are written back to the client.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Linkxee-Tech/CartoonLinkxee-AI/pkg/core"
	"github.com/Linkxee-Tech/CartoonLinkxee-AI/pkg/core/audio"
	"github.com/Linkxee-Tech/CartoonLinkxee-AI/pkg/core/live"
	"github.com/Linkxee-Tech/CartoonLinkxee-AI/pkg/core/types"
	"github.com/Linkxee-Tech/CartoonLinkxee-AI/pkg/gateway/live/protocol"
)

const (
	maxStoppedSourceIDs       = 256
	outboundPriorityQueueSize = 8
)

var (
	errBackpressure = errors.New("live outbound backpressure")
	errClientStop   = errors.New("client requested stop")
)

type Config struct {
	MaxAudioFrameBytes     int
	MaxJSONMessageBytes    int64
	MaxAudioBytesPerSecond int64
	InboundBurstSeconds    int
	PingInterval           time.Duration
	WriteTimeout           time.Duration
	ReadTimeout            time.Duration
	MaxSessionDuration     time.Duration
	OutboundQueueSize      int
}

// Conn is the subset of *websocket.Conn a session uses.
type Conn interface {
	wsWriter
	ReadMessage() (messageType int, p []byte, err error)
	SetReadLimit(limit int64)
	SetReadDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
}

type Dependencies struct {
	Conn      Conn
	Logger    *slog.Logger
	Connector live.Connector
	Hello     protocol.ClientHello
	Live      live.Config
	SessionID string
	Config    Config
	StartTime time.Time
	Now       func() time.Time
}

type LiveSession struct {
	conn      Conn
	logger    *slog.Logger
	hello     protocol.ClientHello
	sessionID string
	cfg       Config
	startTime time.Time
	now       func() time.Time

	manager *live.Manager
	mic     *wsMicrophone
	limiter *inboundAudioLimiter

	ctx    context.Context
	cancel context.CancelFunc

	outboundPriority chan outboundFrame
	outboundNormal   chan outboundFrame

	sourceCounter atomic.Int64
	stoppedMu     sync.Mutex
	stopped       map[string]struct{}
	stoppedOrder  []string

	closeMu     sync.Mutex
	closeCode   int
	closeReason string

	started  atomic.Bool
	ended    chan struct{}
	endOnce  sync.Once
	lastWarn time.Time

	dropMu       sync.Mutex
	lastDropWarn time.Time
}

func New(deps Dependencies) (*LiveSession, error) {
	if deps.Conn == nil {
		return nil, fmt.Errorf("connection is required")
	}
	if deps.Connector == nil {
		return nil, fmt.Errorf("connector is required")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Config.OutboundQueueSize <= 0 {
		deps.Config.OutboundQueueSize = 256
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.StartTime.IsZero() {
		deps.StartTime = deps.Now()
	}
	if deps.Live.Mode == "" {
		deps.Live.Mode = deps.Hello.Mode
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &LiveSession{
		conn:             deps.Conn,
		logger:           deps.Logger.With("session_id", deps.SessionID, "mode", deps.Live.Mode),
		hello:            deps.Hello,
		sessionID:        deps.SessionID,
		cfg:              deps.Config,
		startTime:        deps.StartTime,
		now:              deps.Now,
		mic:              &wsMicrophone{},
		ctx:              ctx,
		cancel:           cancel,
		outboundPriority: make(chan outboundFrame, outboundPriorityQueueSize),
		outboundNormal:   make(chan outboundFrame, deps.Config.OutboundQueueSize),
		stopped:          make(map[string]struct{}),
		closeCode:        websocket.CloseNormalClosure,
		ended:            make(chan struct{}),
	}
	s.limiter = newInboundAudioLimiter(deps.Now, deps.Config.MaxAudioBytesPerSecond, deps.Config.InboundBurstSeconds)
	s.manager = live.NewManager(deps.Live, deps.Connector, s.mic,
		live.WithLogger(s.logger),
		live.WithSpeaker(wsSpeaker{s: s}),
	)
	return s, nil
}

func (s *LiveSession) ID() string { return s.sessionID }

// Run drives the session until the client leaves, asks to stop, the remote
// stream ends or the session is cancelled.
func (s *LiveSession) Run() error {
	defer s.cancel()

	readLimit := s.cfg.MaxJSONMessageBytes
	if int64(s.cfg.MaxAudioFrameBytes) > readLimit {
		readLimit = int64(s.cfg.MaxAudioFrameBytes)
	}
	if readLimit > 0 {
		s.conn.SetReadLimit(readLimit)
	}
	if s.cfg.ReadTimeout > 0 {
		_ = s.conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
		s.conn.SetPongHandler(func(string) error {
			return s.conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
		})
	}
	if s.cfg.MaxSessionDuration > 0 {
		expiry := time.AfterFunc(s.cfg.MaxSessionDuration, func() {
			s.setClose(websocket.CloseNormalClosure, "max session duration")
			_ = s.sendSessionError("session_expired", "maximum session duration reached", true)
			s.cancel()
		})
		defer expiry.Stop()
	}

	writerErrCh := make(chan error, 1)
	go func() {
		w := outboundWriter{
			ws:        s.conn,
			ctx:       s.ctx,
			cfg:       s.cfg,
			priority:  s.outboundPriority,
			normal:    s.outboundNormal,
			isStopped: s.isSourceStopped,
			closeCode: s.closeStatus,
		}
		writerErrCh <- w.Run()
		close(writerErrCh)
	}()

	flushAndClose := func(err error) error {
		s.manager.Stop()
		s.cancel()
		wait := 100 * time.Millisecond
		if s.cfg.WriteTimeout > 0 && s.cfg.WriteTimeout < wait {
			wait = s.cfg.WriteTimeout
		}
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-writerErrCh:
		case <-timer.C:
		}
		return err
	}

	if err := s.sendJSON(s.helloAck()); err != nil {
		return flushAndClose(err)
	}

	states := s.manager.Subscribe(s.ctx)
	<-states
	go s.forwardState(states)

	if err := s.manager.Start(s.ctx); err != nil {
		ce := asCoreError(err)
		s.setClose(websocket.CloseInternalServerErr, "session start failed")
		_ = s.sendSessionError(string(ce.Type), ce.Message, true)
		return flushAndClose(err)
	}
	s.started.Store(true)
	s.logger.Info("live session started", "audio_transport", s.hello.AudioTransport)

	readCh := make(chan inboundFrame, 64)
	go s.readLoop(readCh)

	for {
		select {
		case <-s.ctx.Done():
			return flushAndClose(nil)
		case <-s.ended:
			st := s.manager.Snapshot()
			if st.Error != "" {
				s.setClose(websocket.CloseInternalServerErr, "live stream failed")
				_ = s.sendSessionError(string(st.ErrorType), st.Error, true)
			}
			return flushAndClose(nil)
		case err, ok := <-writerErrCh:
			if ok && err != nil {
				s.logger.Warn("live writer failed", "error", err)
			}
			s.manager.Stop()
			return err
		case in, ok := <-readCh:
			if !ok {
				return flushAndClose(nil)
			}
			if in.err != nil {
				if websocket.IsCloseError(in.err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					return flushAndClose(nil)
				}
				return flushAndClose(in.err)
			}
			if err := s.handleInbound(in); err != nil {
				if errors.Is(err, errClientStop) {
					return flushAndClose(nil)
				}
				return flushAndClose(err)
			}
		}
	}
}

func (s *LiveSession) helloAck() protocol.ServerHelloAck {
	ack := protocol.ServerHelloAck{
		Type:            "hello_ack",
		ProtocolVersion: protocol.ProtocolVersion1,
		SessionID:       s.sessionID,
		Mode:            s.manager.Mode(),
		AudioIn:         s.hello.AudioIn,
		AudioOut:        protocol.OutputFormat(),
		AudioTransport:  s.hello.AudioTransport,
		Limits: &protocol.HelloAckLimits{
			MaxAudioFrameBytes:  s.cfg.MaxAudioFrameBytes,
			MaxJSONMessageBytes: int(s.cfg.MaxJSONMessageBytes),
			MaxAudioBPS:         s.cfg.MaxAudioBytesPerSecond,
			InboundBurstSeconds: s.cfg.InboundBurstSeconds,
			MaxSessionMS:        s.cfg.MaxSessionDuration.Milliseconds(),
		},
	}
	return ack
}

// forwardState turns manager snapshots into session, transcript and
// transcription messages. It marks the session ended once the manager
// closes after a successful start.
func (s *LiveSession) forwardState(states <-chan live.State) {
	var (
		prev     live.State
		havePrev bool
	)
	for st := range states {
		if !havePrev || st.IsActive != prev.IsActive || st.IsConnecting != prev.IsConnecting ||
			st.Error != prev.Error || st.ErrorType != prev.ErrorType {
			_ = s.sendJSON(protocol.ServerSession{
				Type:         "session",
				IsActive:     st.IsActive,
				IsConnecting: st.IsConnecting,
				Error:        st.Error,
				ErrorType:    string(st.ErrorType),
			})
		}
		if !transcriptEqual(st.Transcript, prev.Transcript) {
			entries := st.Transcript
			if entries == nil {
				entries = []types.TranscriptEntry{}
			}
			_ = s.sendJSON(protocol.ServerTranscript{Type: "transcript", Entries: entries})
		}
		if st.Text != prev.Text {
			_ = s.sendJSON(protocol.ServerTranscription{Type: "transcription", Text: st.Text})
		}
		prev, havePrev = st, true

		if s.started.Load() && !st.IsActive && !st.IsConnecting {
			s.endOnce.Do(func() { close(s.ended) })
		}
	}
}

func transcriptEqual(a, b []types.TranscriptEntry) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

type inboundFrame struct {
	messageType int
	data        []byte
	err         error
}

func (s *LiveSession) readLoop(out chan<- inboundFrame) {
	defer close(out)
	for {
		messageType, data, err := s.conn.ReadMessage()
		if err != nil {
			select {
			case out <- inboundFrame{err: err}:
			case <-s.ctx.Done():
			}
			return
		}
		select {
		case out <- inboundFrame{messageType: messageType, data: data}:
		case <-s.ctx.Done():
			return
		}
	}
}

func (s *LiveSession) handleInbound(in inboundFrame) error {
	if in.messageType == websocket.BinaryMessage {
		return s.ingestAudio(in.data)
	}

	msg, err := protocol.DecodeClientMessage(in.data)
	if err != nil {
		var de *protocol.DecodeError
		if errors.As(err, &de) {
			return s.sendSessionError(de.Code, de.Error(), false)
		}
		return s.sendSessionError("bad_request", err.Error(), false)
	}
	switch m := msg.(type) {
	case protocol.ClientHello:
		return s.sendSessionError("bad_request", "hello already received", false)
	case protocol.ClientAudioFrame:
		data, err := audio.DecodeBase64(m.DataB64)
		if err != nil {
			return s.sendSessionError("bad_request", "audio_frame.data_b64 is not valid base64", false)
		}
		return s.ingestAudio(data)
	case protocol.ClientControl:
		if m.Op == protocol.ControlStop {
			return errClientStop
		}
	}
	return nil
}

func (s *LiveSession) ingestAudio(data []byte) error {
	if s.cfg.MaxAudioFrameBytes > 0 && len(data) > s.cfg.MaxAudioFrameBytes {
		s.setClose(websocket.CloseMessageTooBig, "audio frame too large")
		_ = s.sendSessionError("audio_frame_too_large", fmt.Sprintf("audio frame exceeds %d bytes", s.cfg.MaxAudioFrameBytes), true)
		return fmt.Errorf("audio frame of %d bytes exceeds limit", len(data))
	}
	if !s.limiter.Allow(len(data)) {
		if now := s.now(); now.Sub(s.lastWarn) >= time.Second {
			s.lastWarn = now
			_ = s.SendWarning("audio_rate_limited", "inbound audio rate exceeded; frames dropped")
		}
		return nil
	}

	samples, err := decodeSamples(s.hello.AudioIn.Encoding, data)
	if err != nil {
		return s.sendSessionError("bad_request", err.Error(), false)
	}
	if len(samples) == 0 {
		return nil
	}
	if !s.mic.push(samples) {
		s.logger.Debug("live capture queue full; frame dropped", "bytes", len(data))
	}
	return nil
}

func decodeSamples(encoding string, data []byte) ([]float32, error) {
	switch encoding {
	case protocol.EncodingF32LE:
		return audio.DecodeFloat32(data)
	default:
		buf, err := audio.DecodePCM16(data, audio.InputSampleRate, 1)
		if err != nil {
			return nil, err
		}
		return buf.Samples[0], nil
	}
}

// sendAudio queues one model audio buffer for the client. When the client
// reads too slowly the buffer is dropped and the client is told, at most once
// per second, that playback has gaps.
func (s *LiveSession) sendAudio(sourceID string, at, dur time.Duration, pcm []byte) error {
	err := s.enqueueAudio(sourceID, at, dur, pcm)
	if errors.Is(err, errBackpressure) {
		s.warnAudioDropped(sourceID, dur)
	}
	return err
}

func (s *LiveSession) warnAudioDropped(sourceID string, dur time.Duration) {
	s.logger.Warn("live outbound queue full; model audio dropped", "source_id", sourceID, "duration_ms", dur.Milliseconds())
	now := s.now()
	s.dropMu.Lock()
	if !s.lastDropWarn.IsZero() && now.Sub(s.lastDropWarn) < time.Second {
		s.dropMu.Unlock()
		return
	}
	s.lastDropWarn = now
	s.dropMu.Unlock()
	_ = s.SendWarning("audio_dropped", "client is reading too slowly; model audio dropped")
}

func (s *LiveSession) enqueueAudio(sourceID string, at, dur time.Duration, pcm []byte) error {
	if s.hello.AudioTransport == protocol.AudioTransportBinary {
		header, err := json.Marshal(protocol.ServerAudioHeader{
			Type:       "audio_header",
			SourceID:   sourceID,
			StartMS:    at.Milliseconds(),
			DurationMS: dur.Milliseconds(),
			Bytes:      len(pcm),
		})
		if err != nil {
			return err
		}
		return s.enqueueNormal(outboundFrame{sourceID: sourceID, binaryPair: &binaryPair{header: header, data: pcm}})
	}
	payload, err := json.Marshal(protocol.ServerAudio{
		Type:       "audio",
		SourceID:   sourceID,
		StartMS:    at.Milliseconds(),
		DurationMS: dur.Milliseconds(),
		AudioB64:   audio.EncodeBase64(pcm),
	})
	if err != nil {
		return err
	}
	return s.enqueueNormal(outboundFrame{sourceID: sourceID, text: payload})
}

// stopSource drops any unsent audio for id and tells the client to stop it.
func (s *LiveSession) stopSource(id string) {
	s.stoppedMu.Lock()
	if _, ok := s.stopped[id]; !ok {
		s.stopped[id] = struct{}{}
		s.stoppedOrder = append(s.stoppedOrder, id)
		for len(s.stoppedOrder) > maxStoppedSourceIDs {
			delete(s.stopped, s.stoppedOrder[0])
			s.stoppedOrder = s.stoppedOrder[1:]
		}
	}
	s.stoppedMu.Unlock()
	_ = s.sendJSONPriority(protocol.ServerAudioStop{Type: "audio_stop", SourceIDs: []string{id}})
}

func (s *LiveSession) isSourceStopped(id string) bool {
	s.stoppedMu.Lock()
	defer s.stoppedMu.Unlock()
	_, ok := s.stopped[id]
	return ok
}

func (s *LiveSession) nextSourceID() string {
	return fmt.Sprintf("src_%d", s.sourceCounter.Add(1))
}

func (s *LiveSession) Cancel() {
	s.cancel()
}

func (s *LiveSession) SendWarning(code, message string) error {
	return s.sendJSONPriority(protocol.ServerWarning{Type: "warning", Code: code, Message: message})
}

func (s *LiveSession) sendSessionError(code, message string, close bool) error {
	msg := protocol.ServerError{Type: "error", Scope: "session", Code: code, Message: message, Close: close}
	if close {
		return s.sendJSONPriority(msg)
	}
	return s.sendJSON(msg)
}

func (s *LiveSession) sendJSON(v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.enqueueNormal(outboundFrame{text: payload})
}

func (s *LiveSession) sendJSONPriority(v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	select {
	case s.outboundPriority <- outboundFrame{text: payload}:
		return nil
	default:
		return errBackpressure
	}
}

func (s *LiveSession) enqueueNormal(frame outboundFrame) error {
	if frame.sourceID != "" && s.isSourceStopped(frame.sourceID) {
		return nil
	}
	select {
	case s.outboundNormal <- frame:
		return nil
	default:
		return errBackpressure
	}
}

func (s *LiveSession) setClose(code int, reason string) {
	s.closeMu.Lock()
	s.closeCode, s.closeReason = code, reason
	s.closeMu.Unlock()
}

func (s *LiveSession) closeStatus() (int, string) {
	s.closeMu.Lock()
	defer s.closeMu.Unlock()
	return s.closeCode, s.closeReason
}

func asCoreError(err error) *core.Error {
	var ce *core.Error
	if errors.As(err, &ce) {
		return ce
	}
	return &core.Error{Type: core.ErrStream, Message: err.Error()}
}
