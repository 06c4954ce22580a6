package handlers

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Linkxee-Tech/CartoonLinkxee-AI/pkg/core"
	"github.com/Linkxee-Tech/CartoonLinkxee-AI/pkg/core/character"
	"github.com/Linkxee-Tech/CartoonLinkxee-AI/pkg/core/live"
	"github.com/Linkxee-Tech/CartoonLinkxee-AI/pkg/core/types"
	"github.com/Linkxee-Tech/CartoonLinkxee-AI/pkg/gateway/config"
	"github.com/Linkxee-Tech/CartoonLinkxee-AI/pkg/gateway/lifecycle"
	"github.com/Linkxee-Tech/CartoonLinkxee-AI/pkg/gateway/live/protocol"
	"github.com/Linkxee-Tech/CartoonLinkxee-AI/pkg/gateway/live/session"
	"github.com/Linkxee-Tech/CartoonLinkxee-AI/pkg/gateway/live/sessions"
	"github.com/Linkxee-Tech/CartoonLinkxee-AI/pkg/gateway/principal"
	"github.com/Linkxee-Tech/CartoonLinkxee-AI/pkg/gateway/ratelimit"
	"github.com/Linkxee-Tech/CartoonLinkxee-AI/pkg/gateway/workspace"
)

// LiveHandler handles /v1/live websocket sessions.
type LiveHandler struct {
	Config       config.Config
	Workspaces   *workspace.Registry
	Characters   character.Store
	Logger       *slog.Logger
	Limiter      *ratelimit.Limiter
	Lifecycle    *lifecycle.Lifecycle
	LiveSessions *sessions.Tracker
}

func (h LiveHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	reqID := requestIDFromContext(r.Context())
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w, r, http.MethodGet)
		return
	}
	if h.Lifecycle != nil && h.Lifecycle.IsDraining() {
		writeCoreErrorJSON(w, reqID, &core.Error{Type: core.ErrEnvironmentUnavailable, Message: "gateway is draining", Code: "draining"}, http.StatusServiceUnavailable)
		return
	}
	if !h.originAllowed(r) {
		writeCoreErrorJSON(w, reqID, &core.Error{Type: core.ErrPermission, Message: "origin is not allowed", Param: "Origin"}, http.StatusForbidden)
		return
	}
	if h.Workspaces == nil {
		writeCoreErrorJSON(w, reqID, &core.Error{Type: core.ErrAPI, Message: "live sessions are not configured"}, http.StatusInternalServerError)
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: func(*http.Request) bool { return true },
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	if h.Config.LiveMaxJSONMessageBytes > 0 {
		conn.SetReadLimit(h.Config.LiveMaxJSONMessageBytes)
	}
	handshakeTimeout := h.Config.LiveHandshakeTimeout
	if handshakeTimeout <= 0 {
		handshakeTimeout = 5 * time.Second
	}
	_ = conn.SetReadDeadline(time.Now().Add(handshakeTimeout))
	messageType, firstFrame, err := conn.ReadMessage()
	if err != nil {
		h.writeWSError(conn, "bad_request", "failed to read hello", nil)
		return
	}
	if messageType != websocket.TextMessage {
		h.writeWSError(conn, "bad_request", "first frame must be hello", nil)
		return
	}

	decoded, err := protocol.DecodeClientMessage(firstFrame)
	if err != nil {
		var de *protocol.DecodeError
		if errors.As(err, &de) {
			if de.Param == "protocol_version" {
				h.writeWSError(conn, "unsupported_version", de.Message, nil)
				return
			}
			h.writeWSError(conn, de.Code, de.Message, paramDetails(de.Param))
			return
		}
		h.writeWSError(conn, "bad_request", "invalid hello frame", nil)
		return
	}
	hello, ok := decoded.(protocol.ClientHello)
	if !ok {
		h.writeWSError(conn, "bad_request", "first frame must be hello", nil)
		return
	}
	if hello.ProtocolVersion != protocol.ProtocolVersion1 {
		h.writeWSError(conn, "unsupported_version", "unsupported protocol_version", nil)
		return
	}
	mode, err := protocol.ResolveMode(hello, r.URL.Query().Get("mode"))
	if err != nil {
		h.writeWSError(conn, "unsupported", err.Error(), paramDetails("mode"))
		return
	}
	hello.Mode = mode

	apiKey := h.resolveGatewayKey(r, hello)
	principalKey, authErr := h.resolvePrincipal(r, apiKey)
	if authErr != nil {
		h.writeWSError(conn, "unauthorized", authErr.Error(), nil)
		return
	}

	var wsPermit *ratelimit.Permit
	if h.Limiter != nil && h.Config.WSMaxSessionsPerPrincipal > 0 {
		dec := h.Limiter.AcquireWSSession(principalKey, time.Now())
		if !dec.Allowed {
			h.writeWSError(conn, "rate_limited", "too many active live sessions", nil)
			return
		}
		wsPermit = dec.Permit
		defer wsPermit.Release()
	}

	char, err := h.resolveCharacter(r.Context(), hello)
	if err != nil {
		var ce *core.Error
		if errors.As(err, &ce) && ce.Type == core.ErrNotFound {
			h.writeWSError(conn, "not_found", ce.Message, paramDetails("character_id"))
			return
		}
		h.writeWSError(conn, "internal", "failed to load character", nil)
		return
	}

	ws := h.Workspaces.Get(principal.ScopeWorkspace(principalKey, hello.Workspace))
	if key := strings.TrimSpace(hello.BYOK.Gemini); key != "" {
		ws.Keys.Set(key)
	}
	if strings.TrimSpace(ws.Keys.Key()) == "" {
		h.writeWSError(conn, string(core.ErrEnvironmentUnavailable), "no Gemini API key is configured for this workspace", nil)
		return
	}

	sessionID := "s_" + randHex(8)
	startAt := time.Now()
	_ = conn.SetReadDeadline(time.Time{})

	s, err := session.New(session.Dependencies{
		Conn:      conn,
		Logger:    h.Logger,
		Connector: ws.Backend.Live,
		Hello:     hello,
		Live:      live.ConfigFor(mode, char),
		SessionID: sessionID,
		StartTime: startAt,
		Config: session.Config{
			MaxAudioFrameBytes:     h.Config.LiveMaxAudioFrameBytes,
			MaxJSONMessageBytes:    h.Config.LiveMaxJSONMessageBytes,
			MaxAudioBytesPerSecond: h.Config.LiveMaxAudioBytesPerSecond,
			InboundBurstSeconds:    h.Config.LiveInboundBurstSeconds,
			PingInterval:           h.Config.LiveWSPingInterval,
			WriteTimeout:           h.Config.LiveWSWriteTimeout,
			MaxSessionDuration:     h.Config.WSMaxSessionDuration,
			OutboundQueueSize:      256,
		},
	})
	if err != nil {
		h.writeWSError(conn, "internal", "failed to initialize live session", nil)
		return
	}

	unregister := h.LiveSessions.Register(sessions.Handle{
		Info: sessions.Info{
			ID:        sessionID,
			Principal: principalKey,
			Workspace: ws.Key,
			Mode:      mode,
			StartedAt: startAt,
		},
		Cancel: s.Cancel,
		Warn:   s.SendWarning,
	})
	defer unregister()

	if h.Logger != nil {
		h.Logger.Info("live session accepted",
			"session_id", sessionID,
			"request_id", reqID,
			"hello", hello.RedactedForLog(),
		)
	}
	if err := s.Run(); err != nil && h.Logger != nil {
		h.Logger.Warn("live session ended with error", "session_id", sessionID, "request_id", reqID, "error", err)
	}
}

func (h LiveHandler) resolveCharacter(ctx context.Context, hello protocol.ClientHello) (*types.Character, error) {
	if hello.Character != nil {
		c := *hello.Character
		return &c, nil
	}
	id := strings.TrimSpace(hello.CharacterID)
	if id == "" || h.Characters == nil {
		return nil, nil
	}
	c, err := h.Characters.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (h LiveHandler) originAllowed(r *http.Request) bool {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}
	if _, wildcard := h.Config.CORSAllowedOrigins["*"]; wildcard {
		return true
	}
	_, ok := h.Config.CORSAllowedOrigins[origin]
	return ok
}

func (h LiveHandler) resolveGatewayKey(r *http.Request, hello protocol.ClientHello) string {
	if hello.Auth != nil && strings.TrimSpace(hello.Auth.GatewayAPIKey) != "" {
		return strings.TrimSpace(hello.Auth.GatewayAPIKey)
	}
	return strings.TrimSpace(r.URL.Query().Get("gateway_api_key"))
}

func (h LiveHandler) resolvePrincipal(r *http.Request, apiKey string) (string, error) {
	apiKey = strings.TrimSpace(apiKey)
	switch h.Config.AuthMode {
	case config.AuthModeRequired:
		if apiKey == "" {
			return "", fmt.Errorf("missing gateway api key")
		}
		if _, ok := h.Config.APIKeys[apiKey]; !ok {
			return "", fmt.Errorf("invalid gateway api key")
		}
		return ratelimit.PrincipalKeyFromAPIKey(apiKey), nil
	case config.AuthModeOptional:
		if apiKey != "" {
			if _, ok := h.Config.APIKeys[apiKey]; !ok {
				return "", fmt.Errorf("invalid gateway api key")
			}
			return ratelimit.PrincipalKeyFromAPIKey(apiKey), nil
		}
		return principal.Resolve(r, h.Config).Key, nil
	case config.AuthModeDisabled:
		return principal.Resolve(r, h.Config).Key, nil
	default:
		return "", fmt.Errorf("invalid auth mode")
	}
}

func (h LiveHandler) writeWSError(conn *websocket.Conn, code, message string, details map[string]any) {
	if conn == nil {
		return
	}
	_ = conn.SetWriteDeadline(time.Now().Add(time.Second))
	_ = conn.WriteJSON(protocol.ServerError{
		Type:    "error",
		Scope:   "session",
		Code:    code,
		Message: message,
		Close:   true,
		Details: details,
	})
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, code), time.Now().Add(time.Second))
}

func paramDetails(param string) map[string]any {
	if param == "" {
		return nil
	}
	return map[string]any{"param": param}
}

func randHex(n int) string {
	if n <= 0 {
		n = 8
	}
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("%x", time.Now().UnixNano())
	}
	return hex.EncodeToString(b)
}
