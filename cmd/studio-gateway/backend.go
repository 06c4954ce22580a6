package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/Linkxee-Tech/CartoonLinkxee-AI/pkg/core/character"
	"github.com/Linkxee-Tech/CartoonLinkxee-AI/pkg/core/credential"
	"github.com/Linkxee-Tech/CartoonLinkxee-AI/pkg/core/providers/gemini"
	"github.com/Linkxee-Tech/CartoonLinkxee-AI/pkg/core/storage"
	"github.com/Linkxee-Tech/CartoonLinkxee-AI/pkg/gateway/config"
	gatewayserver "github.com/Linkxee-Tech/CartoonLinkxee-AI/pkg/gateway/server"
	"github.com/Linkxee-Tech/CartoonLinkxee-AI/pkg/gateway/workspace"
)

// videoURLPrefix is where the gateway serves clips kept in memory.
const videoURLPrefix = "/v1/videos/"

func upstreamHTTPClient(cfg config.Config) *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout: cfg.UpstreamConnectTimeout,
			}).DialContext,
			ForceAttemptHTTP2:     true,
			MaxIdleConns:          100,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
			ResponseHeaderTimeout: cfg.UpstreamResponseHeaderTimeout,
		},
	}
}

func characterBackend(cfg config.Config) string {
	if cfg.DatabaseURL != "" {
		return "postgres"
	}
	return "memory"
}

// geminiBackends returns a factory giving every workspace its own provider
// bound to the workspace keyring.
func geminiBackends(cfg config.Config, client *http.Client, logger *slog.Logger) workspace.BackendFactory {
	return func(keys *credential.Keyring) workspace.Backend {
		p := gemini.New(keys,
			gemini.WithBaseURL(cfg.GeminiBaseURL),
			gemini.WithHTTPClient(client),
			gemini.WithLogger(logger),
		)
		return workspace.Backend{Video: p.Video(), Live: p.Live(), Studio: p.Studio()}
	}
}

// newGateway assembles the production gateway. The returned cleanup stops
// background work and releases the database pool.
func newGateway(ctx context.Context, cfg config.Config, logger *slog.Logger) (*gatewayserver.Server, func(), error) {
	var cleanups []func()
	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}

	var (
		store storage.Store
		files *storage.MemoryStore
	)
	switch cfg.VideoStore {
	case config.VideoStoreS3:
		s3Store, err := storage.NewS3Store(ctx, storage.S3Config{
			Region:          cfg.S3Region,
			Bucket:          cfg.S3Bucket,
			Prefix:          cfg.S3Prefix,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
			PresignExpiry:   cfg.S3PresignExpiry,
		}, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("video store: %w", err)
		}
		store = s3Store
	default:
		files = storage.NewMemoryStore(videoURLPrefix, cfg.VideoMaxObjects)
		store = files
	}

	var chars character.Store = character.NewMemoryStore()
	if cfg.DatabaseURL != "" {
		pool, err := character.NewPostgresPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("characters: %w", err)
		}
		cleanups = append(cleanups, pool.Close)
		pg := character.NewPostgresStore(pool, logger)
		if err := pg.Migrate(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("characters: %w", err)
		}
		chars = pg
	}

	bgCtx, cancel := context.WithCancel(context.Background())
	cleanups = append(cleanups, cancel)
	reg := workspace.NewRegistry(bgCtx, workspace.Config{
		DefaultKey:    cfg.GeminiAPIKey,
		PollInterval:  cfg.VideoPollInterval,
		Store:         store,
		MaxWorkspaces: cfg.MaxWorkspaces,
		Logger:        logger,
	}, geminiBackends(cfg, upstreamHTTPClient(cfg), logger))

	gw := gatewayserver.New(cfg, logger, gatewayserver.Deps{
		Workspaces: reg,
		Characters: chars,
		VideoFiles: files,
	})
	cleanups = append(cleanups, gw.Close)
	return gw, cleanup, nil
}
