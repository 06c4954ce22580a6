package handlers

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/Linkxee-Tech/CartoonLinkxee-AI/pkg/core"
	"github.com/Linkxee-Tech/CartoonLinkxee-AI/pkg/core/character"
	"github.com/Linkxee-Tech/CartoonLinkxee-AI/pkg/core/storage"
	"github.com/Linkxee-Tech/CartoonLinkxee-AI/pkg/core/types"
	"github.com/Linkxee-Tech/CartoonLinkxee-AI/pkg/core/video"
	"github.com/Linkxee-Tech/CartoonLinkxee-AI/pkg/gateway/config"
	"github.com/Linkxee-Tech/CartoonLinkxee-AI/pkg/gateway/lifecycle"
	"github.com/Linkxee-Tech/CartoonLinkxee-AI/pkg/gateway/sse"
	"github.com/Linkxee-Tech/CartoonLinkxee-AI/pkg/gateway/workspace"
)

// eventsRetry is the reconnect delay suggested to EventSource clients.
const eventsRetry = 3 * time.Second

type videoGenerateBody struct {
	Prompt      string              `json:"prompt"`
	Image       *mediaPayload       `json:"image,omitempty"`
	AspectRatio types.AspectRatio   `json:"aspect_ratio,omitempty"`
	Duration    types.VideoDuration `json:"duration,omitempty"`
	Character   *types.Character    `json:"character,omitempty"`
	CharacterID string              `json:"character_id,omitempty"`
}

type videoExtendBody struct {
	Prompt      string           `json:"prompt"`
	Character   *types.Character `json:"character,omitempty"`
	CharacterID string           `json:"character_id,omitempty"`
}

// VideoHandler serves the /v1/video endpoints of the caller's workspace.
// Generation runs in the background; clients follow it through /state or
// /events.
type VideoHandler struct {
	Config     config.Config
	Workspaces *workspace.Registry
	Characters character.Store
	Lifecycle  *lifecycle.Lifecycle
	Logger     *slog.Logger
}

func (h VideoHandler) Generate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w, r, http.MethodPost)
		return
	}
	var body videoGenerateBody
	if err := decodeBody(w, r, h.Config.MaxBodyBytes, &body); err != nil {
		writeErr(w, r, err)
		return
	}
	if body.AspectRatio != "" && !body.AspectRatio.Valid() {
		writeErr(w, r, core.NewInvalidRequestErrorWithParam("unsupported aspect_ratio", "aspect_ratio"))
		return
	}
	if body.Duration != "" && !body.Duration.Valid() {
		writeErr(w, r, core.NewInvalidRequestErrorWithParam("unsupported duration", "duration"))
		return
	}
	char, err := lookupCharacter(r.Context(), h.Characters, body.Character, body.CharacterID)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	req := video.GenerateRequest{
		Prompt:      body.Prompt,
		AspectRatio: body.AspectRatio,
		Duration:    body.Duration,
		Character:   char,
	}
	if body.Image != nil {
		data, mimeType, err := body.Image.decode("image")
		if err != nil {
			writeErr(w, r, err)
			return
		}
		req.Image = &video.Image{Data: data, MIMEType: mimeType}
	}

	ws, err := bindWorkspace(r, h.Config, h.Workspaces)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	if err := ws.Video.GenerateAsync(h.Workspaces.Context(), req); err != nil {
		writeErr(w, r, err)
		return
	}
	h.logger().Info("video generation started",
		"request_id", requestIDFromContext(r.Context()),
		"workspace", ws.Key,
		"duration", string(req.Duration),
		"steps", types.ExtensionCount(req.Duration)+1,
	)
	writeJSON(w, http.StatusAccepted, ws.Video.Snapshot())
}

func (h VideoHandler) Extend(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w, r, http.MethodPost)
		return
	}
	var body videoExtendBody
	if err := decodeBody(w, r, h.Config.MaxBodyBytes, &body); err != nil {
		writeErr(w, r, err)
		return
	}
	char, err := lookupCharacter(r.Context(), h.Characters, body.Character, body.CharacterID)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	ws, err := bindWorkspace(r, h.Config, h.Workspaces)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	if err := ws.Video.ExtendAsync(h.Workspaces.Context(), video.ExtendVideoRequest{Prompt: body.Prompt, Character: char}); err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, ws.Video.Snapshot())
}

func (h VideoHandler) Reset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w, r, http.MethodPost)
		return
	}
	ws, err := bindWorkspace(r, h.Config, h.Workspaces)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	ws.Video.Reset()
	writeJSON(w, http.StatusOK, ws.Video.Snapshot())
}

func (h VideoHandler) State(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w, r, http.MethodGet)
		return
	}
	ws, err := bindWorkspace(r, h.Config, h.Workspaces)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ws.Video.Snapshot())
}

// Events streams state snapshots as "state" events until the client leaves,
// the stream reaches its maximum duration or the gateway drains.
func (h VideoHandler) Events(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w, r, http.MethodGet)
		return
	}
	reqID := requestIDFromContext(r.Context())
	if h.Lifecycle != nil && h.Lifecycle.IsDraining() {
		writeCoreErrorJSON(w, reqID, &core.Error{Type: core.ErrEnvironmentUnavailable, Message: "gateway is draining", Code: "draining"}, http.StatusServiceUnavailable)
		return
	}
	ws, err := bindWorkspace(r, h.Config, h.Workspaces)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	sw, err := sse.New(w)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	if err := sw.Retry(eventsRetry); err != nil {
		return
	}

	ctx := r.Context()
	if h.Config.SSEMaxStreamDuration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.Config.SSEMaxStreamDuration)
		defer cancel()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var ping <-chan time.Time
	if h.Config.SSEPingInterval > 0 {
		ticker := time.NewTicker(h.Config.SSEPingInterval)
		defer ticker.Stop()
		ping = ticker.C
	}

	states := ws.Video.Subscribe(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-h.Lifecycle.Draining():
			_ = sw.Send("draining", map[string]string{"message": "gateway is draining"})
			return
		case <-ping:
			if err := sw.Ping(); err != nil {
				return
			}
		case st, ok := <-states:
			if !ok {
				return
			}
			if err := sw.Send("state", st); err != nil {
				return
			}
		}
	}
}

func (h VideoHandler) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

// VideoFileHandler serves finished videos held by an in-memory store under
// /v1/videos/{name}.
type VideoFileHandler struct {
	Store *storage.MemoryStore
}

func (h VideoFileHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		writeMethodNotAllowed(w, r, http.MethodGet, http.MethodHead)
		return
	}
	name := strings.TrimPrefix(r.URL.Path, "/v1/videos/")
	if h.Store == nil || name == "" || strings.Contains(name, "/") {
		NotFoundHandler{}.ServeHTTP(w, r)
		return
	}
	obj, ok := h.Store.Get(name)
	if !ok {
		NotFoundHandler{}.ServeHTTP(w, r)
		return
	}
	if obj.MIMEType != "" {
		w.Header().Set("Content-Type", obj.MIMEType)
	}
	w.Header().Set("Cache-Control", "private, max-age=3600")
	http.ServeContent(w, r, obj.Name, obj.Created, bytes.NewReader(obj.Data))
}
