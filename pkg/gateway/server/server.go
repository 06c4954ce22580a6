package server

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/Linkxee-Tech/CartoonLinkxee-AI/pkg/core/character"
	"github.com/Linkxee-Tech/CartoonLinkxee-AI/pkg/core/storage"
	"github.com/Linkxee-Tech/CartoonLinkxee-AI/pkg/gateway/config"
	"github.com/Linkxee-Tech/CartoonLinkxee-AI/pkg/gateway/handlers"
	"github.com/Linkxee-Tech/CartoonLinkxee-AI/pkg/gateway/lifecycle"
	"github.com/Linkxee-Tech/CartoonLinkxee-AI/pkg/gateway/live/sessions"
	"github.com/Linkxee-Tech/CartoonLinkxee-AI/pkg/gateway/mw"
	"github.com/Linkxee-Tech/CartoonLinkxee-AI/pkg/gateway/ratelimit"
	"github.com/Linkxee-Tech/CartoonLinkxee-AI/pkg/gateway/workspace"
)

// Deps are the long-lived collaborators the gateway routes to.
type Deps struct {
	Workspaces *workspace.Registry
	Characters character.Store
	// VideoFiles serves finished clips when videos are kept in memory.
	// Nil when clips are stored elsewhere.
	VideoFiles *storage.MemoryStore
}

type Server struct {
	cfg    config.Config
	logger *slog.Logger
	mux    *http.ServeMux
	deps   Deps

	limiter      *ratelimit.Limiter
	lifecycle    *lifecycle.Lifecycle
	liveSessions *sessions.Tracker
}

func New(cfg config.Config, logger *slog.Logger, deps Deps) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if deps.Characters == nil {
		deps.Characters = character.NewMemoryStore()
	}

	s := &Server{
		cfg:    cfg,
		logger: logger,
		mux:    http.NewServeMux(),
		deps:   deps,
		limiter: ratelimit.New(ratelimit.Config{
			RPS:                     cfg.LimitRPS,
			Burst:                   cfg.LimitBurst,
			MaxConcurrentRequests:   cfg.LimitMaxConcurrentRequests,
			MaxConcurrentWSSessions: cfg.WSMaxSessionsPerPrincipal,
		}),
		lifecycle:    &lifecycle.Lifecycle{},
		liveSessions: sessions.NewTracker(),
	}

	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.Handle("/healthz", handlers.HealthHandler{})
	s.mux.Handle("/readyz", handlers.ReadyHandler{Config: s.cfg, LiveSessions: s.liveSessions})

	vh := handlers.VideoHandler{
		Config:     s.cfg,
		Workspaces: s.deps.Workspaces,
		Characters: s.deps.Characters,
		Lifecycle:  s.lifecycle,
		Logger:     s.logger,
	}
	s.mux.HandleFunc("/v1/video/generate", vh.Generate)
	s.mux.HandleFunc("/v1/video/extend", vh.Extend)
	s.mux.HandleFunc("/v1/video/reset", vh.Reset)
	s.mux.HandleFunc("/v1/video/state", vh.State)
	s.mux.HandleFunc("/v1/video/events", vh.Events)
	if s.deps.VideoFiles != nil {
		s.mux.Handle("/v1/videos/", handlers.VideoFileHandler{Store: s.deps.VideoFiles})
	}

	s.mux.Handle("/v1/live", handlers.LiveHandler{
		Config:       s.cfg,
		Workspaces:   s.deps.Workspaces,
		Characters:   s.deps.Characters,
		Logger:       s.logger,
		Limiter:      s.limiter,
		Lifecycle:    s.lifecycle,
		LiveSessions: s.liveSessions,
	})

	ch := handlers.CharactersHandler{Config: s.cfg, Store: s.deps.Characters}
	s.mux.Handle("/v1/characters", ch)
	s.mux.Handle("/v1/characters/", ch)

	s.mux.Handle("/v1/studio/", handlers.StudioHandler{
		Config:     s.cfg,
		Workspaces: s.deps.Workspaces,
		Characters: s.deps.Characters,
		Logger:     s.logger,
	})

	s.mux.Handle("/", handlers.NotFoundHandler{})
}

func (s *Server) Handler() http.Handler {
	var h http.Handler = s.mux
	h = mw.RateLimit(s.cfg, s.limiter, h)
	h = mw.Auth(s.cfg, h)
	h = mw.APIVersion(h)
	h = mw.CORS(s.cfg, h)
	h = mw.Recover(s.logger, h)
	h = mw.AccessLog(s.logger, h)
	h = mw.RequestID(h)
	return h
}

// SetDraining makes new live sessions and event streams fail fast and ends
// open event streams.
func (s *Server) SetDraining(draining bool) {
	s.lifecycle.SetDraining(draining)
}

// WarnLiveSessionsDraining tells every open live session that the gateway is
// shutting down. It returns the number of sessions warned.
func (s *Server) WarnLiveSessionsDraining() int {
	return s.liveSessions.WarnAll("draining", "gateway is shutting down")
}

// WaitLiveSessions blocks until every live session has ended or ctx is done.
func (s *Server) WaitLiveSessions(ctx context.Context) bool {
	return s.liveSessions.Wait(ctx)
}

// CancelLiveSessions ends every open live session.
func (s *Server) CancelLiveSessions() int {
	return s.liveSessions.CancelAll()
}

// LiveSessionCount reports how many live sessions are open.
func (s *Server) LiveSessionCount() int {
	return s.liveSessions.Count()
}

// Close stops background video work and releases every workspace.
func (s *Server) Close() {
	if s.deps.Workspaces != nil {
		s.deps.Workspaces.Close()
	}
}
