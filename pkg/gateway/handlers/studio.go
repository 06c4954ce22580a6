package handlers

import (
	"encoding/base64"
	"log/slog"
	"net/http"
	"strings"

	"github.com/Linkxee-Tech/CartoonLinkxee-AI/pkg/core"
	"github.com/Linkxee-Tech/CartoonLinkxee-AI/pkg/core/audio"
	"github.com/Linkxee-Tech/CartoonLinkxee-AI/pkg/core/character"
	"github.com/Linkxee-Tech/CartoonLinkxee-AI/pkg/core/studio"
	"github.com/Linkxee-Tech/CartoonLinkxee-AI/pkg/core/types"
	"github.com/Linkxee-Tech/CartoonLinkxee-AI/pkg/gateway/config"
	"github.com/Linkxee-Tech/CartoonLinkxee-AI/pkg/gateway/workspace"
)

// MaxSpeechTextBytes bounds text sent for speech synthesis.
const MaxSpeechTextBytes = 5000

type studioImageBody struct {
	Prompt      string            `json:"prompt"`
	AspectRatio types.AspectRatio `json:"aspect_ratio,omitempty"`
	Character   *types.Character  `json:"character,omitempty"`
	CharacterID string            `json:"character_id,omitempty"`
}

type studioEditBody struct {
	Prompt string       `json:"prompt"`
	Image  mediaPayload `json:"image"`
}

type studioChatBody struct {
	History           []types.ChatMessage `json:"history,omitempty"`
	Message           string              `json:"message"`
	SystemInstruction string              `json:"system_instruction,omitempty"`
	Character         *types.Character    `json:"character,omitempty"`
	CharacterID       string              `json:"character_id,omitempty"`
}

type studioStoryBody struct {
	Image mediaPayload `json:"image"`
}

type studioInspirationBody struct {
	Subject string `json:"subject"`
}

type studioFramesBody struct {
	Frames []mediaPayload `json:"frames"`
}

type studioSpeechBody struct {
	Text        string           `json:"text"`
	Character   *types.Character `json:"character,omitempty"`
	CharacterID string           `json:"character_id,omitempty"`
}

type imageResponse struct {
	Image mediaPayload `json:"image"`
}

type textResponse struct {
	Text string `json:"text"`
}

type speechResponse struct {
	Audio      mediaPayload `json:"audio"`
	SampleRate int          `json:"sample_rate"`
}

// StudioHandler serves the single-shot /v1/studio endpoints.
type StudioHandler struct {
	Config     config.Config
	Workspaces *workspace.Registry
	Characters character.Store
	Logger     *slog.Logger
}

func (h StudioHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w, r, http.MethodPost)
		return
	}
	switch strings.TrimPrefix(r.URL.Path, "/v1/studio/") {
	case "image":
		h.image(w, r)
	case "image-edit":
		h.editImage(w, r)
	case "chat":
		h.chat(w, r)
	case "story":
		h.story(w, r)
	case "inspiration":
		h.inspiration(w, r)
	case "analyze-frames":
		h.analyzeFrames(w, r)
	case "speech":
		h.speech(w, r)
	default:
		NotFoundHandler{}.ServeHTTP(w, r)
	}
}

func (h StudioHandler) backend(w http.ResponseWriter, r *http.Request) (studio.Service, bool) {
	ws, err := bindWorkspace(r, h.Config, h.Workspaces)
	if err != nil {
		writeErr(w, r, err)
		return nil, false
	}
	if ws.Backend.Studio == nil {
		writeErr(w, r, core.NewAPIError("studio backend is not configured"))
		return nil, false
	}
	return ws.Backend.Studio, true
}

func (h StudioHandler) image(w http.ResponseWriter, r *http.Request) {
	var body studioImageBody
	if err := decodeBody(w, r, h.Config.MaxBodyBytes, &body); err != nil {
		writeErr(w, r, err)
		return
	}
	char, err := lookupCharacter(r.Context(), h.Characters, body.Character, body.CharacterID)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	req := studio.ImageRequest{Prompt: body.Prompt, AspectRatio: body.AspectRatio, Character: char}
	if err := req.Validate(); err != nil {
		writeErr(w, r, err)
		return
	}
	svc, ok := h.backend(w, r)
	if !ok {
		return
	}
	img, err := svc.GenerateImage(r.Context(), req)
	if err != nil {
		writeUpstreamErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, imageResponse{Image: encodeMedia(img.Data, img.MIMEType)})
}

func (h StudioHandler) editImage(w http.ResponseWriter, r *http.Request) {
	var body studioEditBody
	if err := decodeBody(w, r, h.Config.MaxBodyBytes, &body); err != nil {
		writeErr(w, r, err)
		return
	}
	data, mimeType, err := body.Image.decode("image")
	if err != nil {
		writeErr(w, r, err)
		return
	}
	req := studio.EditRequest{Prompt: body.Prompt, Image: studio.Media{Data: data, MIMEType: mimeType}}
	if err := req.Validate(); err != nil {
		writeErr(w, r, err)
		return
	}
	svc, ok := h.backend(w, r)
	if !ok {
		return
	}
	img, err := svc.EditImage(r.Context(), req)
	if err != nil {
		writeUpstreamErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, imageResponse{Image: encodeMedia(img.Data, img.MIMEType)})
}

func (h StudioHandler) chat(w http.ResponseWriter, r *http.Request) {
	var body studioChatBody
	if err := decodeBody(w, r, h.Config.MaxBodyBytes, &body); err != nil {
		writeErr(w, r, err)
		return
	}
	char, err := lookupCharacter(r.Context(), h.Characters, body.Character, body.CharacterID)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	req := studio.ChatRequest{
		History:           body.History,
		Message:           body.Message,
		SystemInstruction: body.SystemInstruction,
		Character:         char,
	}
	if err := req.Validate(); err != nil {
		writeErr(w, r, err)
		return
	}
	svc, ok := h.backend(w, r)
	if !ok {
		return
	}
	text, err := svc.Chat(r.Context(), req)
	if err != nil {
		writeUpstreamErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, textResponse{Text: text})
}

func (h StudioHandler) story(w http.ResponseWriter, r *http.Request) {
	var body studioStoryBody
	if err := decodeBody(w, r, h.Config.MaxBodyBytes, &body); err != nil {
		writeErr(w, r, err)
		return
	}
	data, mimeType, err := body.Image.decode("image")
	if err != nil {
		writeErr(w, r, err)
		return
	}
	svc, ok := h.backend(w, r)
	if !ok {
		return
	}
	text, err := svc.Story(r.Context(), studio.Media{Data: data, MIMEType: mimeType})
	if err != nil {
		writeUpstreamErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, textResponse{Text: text})
}

func (h StudioHandler) inspiration(w http.ResponseWriter, r *http.Request) {
	var body studioInspirationBody
	if err := decodeBody(w, r, h.Config.MaxBodyBytes, &body); err != nil {
		writeErr(w, r, err)
		return
	}
	subject := strings.TrimSpace(body.Subject)
	if subject == "" {
		writeErr(w, r, core.NewInvalidRequestErrorWithParam("subject is required", "subject"))
		return
	}
	svc, ok := h.backend(w, r)
	if !ok {
		return
	}
	text, err := svc.Inspiration(r.Context(), subject)
	if err != nil {
		writeUpstreamErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, textResponse{Text: text})
}

func (h StudioHandler) analyzeFrames(w http.ResponseWriter, r *http.Request) {
	var body studioFramesBody
	if err := decodeBody(w, r, h.Config.MaxBodyBytes, &body); err != nil {
		writeErr(w, r, err)
		return
	}
	frames := make([]studio.Media, 0, len(body.Frames))
	for _, f := range body.Frames {
		data, mimeType, err := f.decode("frames")
		if err != nil {
			writeErr(w, r, err)
			return
		}
		frames = append(frames, studio.Media{Data: data, MIMEType: mimeType})
	}
	if err := studio.ValidateFrames(frames); err != nil {
		writeErr(w, r, err)
		return
	}
	svc, ok := h.backend(w, r)
	if !ok {
		return
	}
	text, err := svc.AnalyzeFrames(r.Context(), frames)
	if err != nil {
		writeUpstreamErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, textResponse{Text: text})
}

func (h StudioHandler) speech(w http.ResponseWriter, r *http.Request) {
	var body studioSpeechBody
	if err := decodeBody(w, r, h.Config.MaxBodyBytes, &body); err != nil {
		writeErr(w, r, err)
		return
	}
	text := strings.TrimSpace(body.Text)
	if text == "" {
		writeErr(w, r, core.NewInvalidRequestErrorWithParam("text is required", "text"))
		return
	}
	if len(text) > MaxSpeechTextBytes {
		writeErr(w, r, core.NewInvalidRequestErrorWithParam("text is too long", "text"))
		return
	}
	char, err := lookupCharacter(r.Context(), h.Characters, body.Character, body.CharacterID)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	svc, ok := h.backend(w, r)
	if !ok {
		return
	}
	sp, err := svc.Speak(r.Context(), text, char)
	if err != nil {
		writeUpstreamErr(w, r, err)
		return
	}
	rate := sp.SampleRate
	if rate <= 0 {
		rate = audio.OutputSampleRate
	}
	writeJSON(w, http.StatusOK, speechResponse{
		Audio:      encodeMedia(sp.Data, "audio/pcm;rate="+itoa(rate)),
		SampleRate: rate,
	})
}

func encodeMedia(data []byte, mimeType string) mediaPayload {
	return mediaPayload{DataB64: base64.StdEncoding.EncodeToString(data), MIMEType: mimeType}
}
