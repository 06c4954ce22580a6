// Package workspace keeps one video orchestrator and credential keyring per
// caller workspace.
package workspace

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Linkxee-Tech/CartoonLinkxee-AI/pkg/core/credential"
	"github.com/Linkxee-Tech/CartoonLinkxee-AI/pkg/core/live"
	"github.com/Linkxee-Tech/CartoonLinkxee-AI/pkg/core/storage"
	"github.com/Linkxee-Tech/CartoonLinkxee-AI/pkg/core/studio"
	"github.com/Linkxee-Tech/CartoonLinkxee-AI/pkg/core/video"
)

// Backend is the set of remote services a workspace talks to.
type Backend struct {
	Video  video.Service
	Live   live.Connector
	Studio studio.Service
}

// BackendFactory builds the backend for a workspace. keys is the
// workspace's keyring and must be consulted on every call.
type BackendFactory func(keys *credential.Keyring) Backend

type Config struct {
	// DefaultKey seeds every new keyring.
	DefaultKey   string
	PollInterval time.Duration
	Store        storage.Store
	// MaxWorkspaces bounds the registry; the least recently used workspace
	// is evicted beyond it.
	MaxWorkspaces int
	Logger        *slog.Logger
}

// Workspace is one caller's studio state.
type Workspace struct {
	Key     string
	Keys    *credential.Keyring
	Backend Backend
	Video   *video.Orchestrator

	mu       sync.Mutex
	lastUsed time.Time
}

func (w *Workspace) touch(now time.Time) {
	w.mu.Lock()
	w.lastUsed = now
	w.mu.Unlock()
}

func (w *Workspace) used() time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastUsed
}

// Registry creates workspaces on first use.
type Registry struct {
	ctx     context.Context
	cfg     Config
	factory BackendFactory
	now     func() time.Time

	mu sync.Mutex
	m  map[string]*Workspace
}

// NewRegistry creates a registry. Background video work runs under ctx, not
// under the request that started it.
func NewRegistry(ctx context.Context, cfg Config, factory BackendFactory) *Registry {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.MaxWorkspaces <= 0 {
		cfg.MaxWorkspaces = 256
	}
	if cfg.Store == nil {
		cfg.Store = storage.NewMemoryStore("", 0)
	}
	return &Registry{
		ctx:     ctx,
		cfg:     cfg,
		factory: factory,
		now:     time.Now,
		m:       make(map[string]*Workspace),
	}
}

// Context is the background context video attempts run under.
func (r *Registry) Context() context.Context { return r.ctx }

// Get returns the workspace for key, creating it if needed.
func (r *Registry) Get(key string) *Workspace {
	now := r.now()

	r.mu.Lock()
	defer r.mu.Unlock()
	if ws, ok := r.m[key]; ok {
		ws.touch(now)
		return ws
	}
	if len(r.m) >= r.cfg.MaxWorkspaces {
		r.evictLocked()
	}

	keys := credential.NewKeyring(r.cfg.DefaultKey, nil)
	backend := r.factory(keys)
	opts := []video.Option{
		video.WithCredentials(keys),
		video.WithStore(r.cfg.Store),
		video.WithLogger(r.cfg.Logger.With("workspace", key)),
	}
	if r.cfg.PollInterval > 0 {
		opts = append(opts, video.WithPollInterval(r.cfg.PollInterval))
	}
	ws := &Workspace{
		Key:      key,
		Keys:     keys,
		Backend:  backend,
		Video:    video.New(backend.Video, opts...),
		lastUsed: now,
	}
	r.m[key] = ws
	r.cfg.Logger.Debug("workspace created", "workspace", key, "workspaces", len(r.m))
	return ws
}

func (r *Registry) evictLocked() {
	var oldestKey string
	var oldest time.Time
	for k, ws := range r.m {
		if t := ws.used(); oldestKey == "" || t.Before(oldest) {
			oldestKey, oldest = k, t
		}
	}
	if ws, ok := r.m[oldestKey]; ok {
		ws.Video.Reset()
		delete(r.m, oldestKey)
		r.cfg.Logger.Info("workspace evicted", "workspace", oldestKey)
	}
}

// Len returns the number of live workspaces.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.m)
}

// Close stops every in-flight video attempt.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for k, ws := range r.m {
		ws.Video.Reset()
		delete(r.m, k)
	}
}
