// Package gemini implements the studio's remote services on the Google Gen AI
// SDK: Veo video operations, the native-audio live stream and the single-shot
// image, text and speech calls.
package gemini

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"google.golang.org/genai"

	"github.com/Linkxee-Tech/CartoonLinkxee-AI/pkg/core"
)

const (
	// DefaultBaseURL is the default Gemini API endpoint.
	DefaultBaseURL = "https://generativelanguage.googleapis.com/"

	// maxClients bounds the per-key client cache.
	maxClients = 64

	missingKeyMessage = "API_KEY environment variable is not set."
)

// Models names the remote model used for each call.
type Models struct {
	VideoStart  string
	VideoExtend string
	Live        string
	Speech      string
	Image       string
	ImageEdit   string
	Chat        string
	Inspiration string
	Analysis    string
}

// DefaultModels returns the production model set.
func DefaultModels() Models {
	return Models{
		VideoStart:  "veo-3.1-fast-generate-preview",
		VideoExtend: "veo-3.1-generate-preview",
		Live:        "gemini-2.5-flash-native-audio-preview-09-2025",
		Speech:      "gemini-2.5-flash-preview-tts",
		Image:       "imagen-4.0-generate-001",
		ImageEdit:   "gemini-2.5-flash-image",
		Chat:        "gemini-2.5-flash",
		Inspiration: "gemini-2.5-flash-lite",
		Analysis:    "gemini-2.5-pro",
	}
}

func (m Models) withDefaults() Models {
	d := DefaultModels()
	fill := func(dst *string, def string) {
		if *dst == "" {
			*dst = def
		}
	}
	fill(&m.VideoStart, d.VideoStart)
	fill(&m.VideoExtend, d.VideoExtend)
	fill(&m.Live, d.Live)
	fill(&m.Speech, d.Speech)
	fill(&m.Image, d.Image)
	fill(&m.ImageEdit, d.ImageEdit)
	fill(&m.Chat, d.Chat)
	fill(&m.Inspiration, d.Inspiration)
	fill(&m.Analysis, d.Analysis)
	return m
}

// KeySource yields the API key to use for the next call. *credential.Keyring
// satisfies it.
type KeySource interface {
	Key() string
}

// StaticKey is a fixed KeySource.
type StaticKey string

// Key returns the key.
func (k StaticKey) Key() string { return string(k) }

// Provider talks to the Gemini API. The key is read from the KeySource on
// every call so a reselected key takes effect immediately.
type Provider struct {
	keys       KeySource
	baseURL    string
	httpClient *http.Client
	models     Models
	logger     *slog.Logger

	mu      sync.Mutex
	clients map[string]*genai.Client
}

// New creates a new Gemini provider.
func New(keys KeySource, opts ...Option) *Provider {
	if keys == nil {
		keys = StaticKey("")
	}
	p := &Provider{
		keys:       keys,
		baseURL:    DefaultBaseURL,
		httpClient: &http.Client{},
		logger:     slog.Default(),
		clients:    make(map[string]*genai.Client),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.models = p.models.withDefaults()
	return p
}

// Name returns the provider identifier.
func (p *Provider) Name() string {
	return "gemini"
}

// Models returns the configured model set.
func (p *Provider) Models() Models {
	return p.models
}

func (p *Provider) key() (string, error) {
	key := strings.TrimSpace(p.keys.Key())
	if key == "" {
		return "", core.NewAuthenticationError(missingKeyMessage)
	}
	return key, nil
}

// client returns an SDK client bound to the current key.
func (p *Provider) client(ctx context.Context) (*genai.Client, error) {
	key, err := p.key()
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok := p.clients[key]; ok {
		return c, nil
	}
	c, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      key,
		Backend:     genai.BackendGeminiAPI,
		HTTPClient:  p.httpClient,
		HTTPOptions: genai.HTTPOptions{BaseURL: p.baseURL},
	})
	if err != nil {
		return nil, core.NewAPIError("gemini: create client").WithCause(err)
	}
	if len(p.clients) >= maxClients {
		clear(p.clients)
	}
	p.clients[key] = c
	return c, nil
}

// logFailure records a remote failure before it is returned.
func (p *Provider) logFailure(op string, err error) {
	var ce *core.Error
	if errors.As(err, &ce) {
		p.logger.Warn("gemini call failed", "op", op, "error_type", ce.Type, "code", ce.Code, "error", ce.Message)
		return
	}
	p.logger.Warn("gemini call failed", "op", op, "error", err)
}
