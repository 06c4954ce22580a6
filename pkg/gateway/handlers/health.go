package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/Linkxee-Tech/CartoonLinkxee-AI/pkg/gateway/config"
	"github.com/Linkxee-Tech/CartoonLinkxee-AI/pkg/gateway/live/sessions"
)

type HealthHandler struct{}

func (h HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}

type ReadyHandler struct {
	Config       config.Config
	LiveSessions *sessions.Tracker
}

func (h ReadyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	type readyResp struct {
		OK            bool     `json:"ok"`
		AuthMode      string   `json:"auth_mode"`
		VideoStore    string   `json:"video_store"`
		DefaultKeySet bool     `json:"default_key_set"`
		LimitsEnabled bool     `json:"limits_enabled"`
		LiveSessions  int      `json:"live_sessions"`
		Issues        []string `json:"issues,omitempty"`
		Warnings      []string `json:"warnings,omitempty"`
	}

	issues := make([]string, 0, 4)
	var warnings []string

	switch h.Config.AuthMode {
	case config.AuthModeRequired, config.AuthModeOptional, config.AuthModeDisabled:
	default:
		issues = append(issues, "invalid auth_mode")
	}
	if h.Config.AuthMode == config.AuthModeRequired && len(h.Config.APIKeys) == 0 {
		issues = append(issues, "auth_mode=required but no api keys configured")
	}

	if h.Config.MaxBodyBytes <= 0 {
		issues = append(issues, "max_body_bytes must be > 0")
	}
	switch h.Config.VideoStore {
	case config.VideoStoreMemory:
	case config.VideoStoreS3:
		if h.Config.S3Bucket == "" {
			issues = append(issues, "video_store=s3 but no bucket configured")
		}
	default:
		issues = append(issues, "invalid video_store")
	}
	if h.Config.VideoPollInterval <= 0 {
		issues = append(issues, "video poll interval must be > 0")
	}
	if h.Config.SSEPingInterval <= 0 {
		issues = append(issues, "sse ping interval must be > 0")
	}
	if h.Config.SSEMaxStreamDuration <= 0 {
		issues = append(issues, "sse max stream duration must be > 0")
	}
	if h.Config.WSMaxSessionDuration <= 0 {
		issues = append(issues, "ws max session duration must be > 0")
	}
	if h.Config.WSMaxSessionsPerPrincipal <= 0 {
		issues = append(issues, "ws max sessions per principal must be > 0")
	}
	if h.Config.LiveMaxAudioFrameBytes <= 0 || h.Config.LiveMaxJSONMessageBytes <= 0 {
		issues = append(issues, "live frame budgets must be > 0")
	}
	if h.Config.ReadHeaderTimeout <= 0 || h.Config.ReadTimeout <= 0 || h.Config.HandlerTimeout <= 0 {
		issues = append(issues, "timeouts must be > 0")
	}
	if h.Config.UpstreamConnectTimeout <= 0 || h.Config.UpstreamResponseHeaderTimeout <= 0 {
		issues = append(issues, "upstream timeouts must be > 0")
	}
	if h.Config.GeminiAPIKey == "" {
		warnings = append(warnings, "no default gemini key; callers must bring their own")
	}

	limitsEnabled := (h.Config.LimitRPS > 0 && h.Config.LimitBurst > 0) ||
		(h.Config.LimitMaxConcurrentRequests > 0)

	ok := len(issues) == 0
	status := http.StatusOK
	if !ok {
		status = http.StatusInternalServerError
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(readyResp{
		OK:            ok,
		AuthMode:      string(h.Config.AuthMode),
		VideoStore:    string(h.Config.VideoStore),
		DefaultKeySet: h.Config.GeminiAPIKey != "",
		LimitsEnabled: limitsEnabled,
		LiveSessions:  h.LiveSessions.Count(),
		Issues:        issues,
		Warnings:      warnings,
	})
}
