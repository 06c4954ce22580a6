package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type AuthMode string

const (
	AuthModeRequired AuthMode = "required"
	AuthModeOptional AuthMode = "optional"
	AuthModeDisabled AuthMode = "disabled"
)

type VideoStoreKind string

const (
	VideoStoreMemory VideoStoreKind = "memory"
	VideoStoreS3     VideoStoreKind = "s3"
)

type Config struct {
	Addr string

	AuthMode AuthMode
	APIKeys  map[string]struct{}

	// If true, client identity may be derived from proxy headers like X-Forwarded-For.
	// Only enable behind a trusted proxy/LB.
	TrustProxyHeaders bool

	MaxBodyBytes int64

	// CORS
	CORSAllowedOrigins map[string]struct{} // empty => disabled

	// SSE (/v1/video/events)
	SSEPingInterval      time.Duration
	SSEMaxStreamDuration time.Duration

	// Live WebSocket mode (/v1/live).
	WSMaxSessionDuration       time.Duration
	WSMaxSessionsPerPrincipal  int
	LiveMaxAudioFrameBytes     int
	LiveMaxJSONMessageBytes    int64
	LiveMaxAudioBytesPerSecond int64
	LiveInboundBurstSeconds    int
	LiveWSPingInterval         time.Duration
	LiveWSWriteTimeout         time.Duration
	LiveHandshakeTimeout       time.Duration

	// In-memory limits (per principal).
	LimitRPS                   float64
	LimitBurst                 int
	LimitMaxConcurrentRequests int

	// Operational defaults
	ReadHeaderTimeout   time.Duration
	ReadTimeout         time.Duration
	HandlerTimeout      time.Duration
	ShutdownGracePeriod time.Duration

	// Gemini upstream
	GeminiAPIKey                  string
	GeminiBaseURL                 string
	UpstreamConnectTimeout        time.Duration
	UpstreamResponseHeaderTimeout time.Duration

	// Video orchestration
	VideoPollInterval time.Duration
	VideoStore        VideoStoreKind
	VideoMaxObjects   int
	MaxWorkspaces     int

	S3Bucket          string
	S3Region          string
	S3Prefix          string
	S3Endpoint        string
	S3AccessKeyID     string
	S3SecretAccessKey string
	S3PresignExpiry   time.Duration

	// Characters are kept in memory when empty.
	DatabaseURL string

	LogLevel  string
	LogFormat string
	LogFile   string
}

func LoadFromEnv() (Config, error) {
	cfg := Config{
		Addr:                          envOr("STUDIO_ADDR", ":8080"),
		AuthMode:                      AuthMode(envOr("STUDIO_AUTH_MODE", string(AuthModeOptional))),
		APIKeys:                       make(map[string]struct{}),
		TrustProxyHeaders:             envBoolOr("STUDIO_TRUST_PROXY_HEADERS", false),
		MaxBodyBytes:                  envInt64Or("STUDIO_MAX_BODY_BYTES", 16<<20), // 16 MiB, frames and reference images
		CORSAllowedOrigins:            make(map[string]struct{}),
		SSEPingInterval:               envDurationOr("STUDIO_SSE_PING_INTERVAL", 15*time.Second),
		SSEMaxStreamDuration:          envDurationOr("STUDIO_SSE_MAX_DURATION", 30*time.Minute),
		WSMaxSessionDuration:          envDurationOr("STUDIO_WS_MAX_DURATION", time.Hour),
		WSMaxSessionsPerPrincipal:     envIntOr("STUDIO_WS_MAX_SESSIONS_PER_PRINCIPAL", 2),
		LiveMaxAudioFrameBytes:        envIntOr("STUDIO_LIVE_MAX_AUDIO_FRAME_BYTES", 32*1024),
		LiveMaxJSONMessageBytes:       envInt64Or("STUDIO_LIVE_MAX_JSON_MESSAGE_BYTES", 64*1024),
		LiveMaxAudioBytesPerSecond:    envInt64Or("STUDIO_LIVE_MAX_AUDIO_BPS", 128*1024),
		LiveInboundBurstSeconds:       envIntOr("STUDIO_LIVE_INBOUND_BURST_SECONDS", 2),
		LiveWSPingInterval:            envDurationOr("STUDIO_LIVE_WS_PING_INTERVAL", 20*time.Second),
		LiveWSWriteTimeout:            envDurationOr("STUDIO_LIVE_WS_WRITE_TIMEOUT", 5*time.Second),
		LiveHandshakeTimeout:          envDurationOr("STUDIO_LIVE_HANDSHAKE_TIMEOUT", 5*time.Second),
		LimitRPS:                      envFloat64Or("STUDIO_RATE_LIMIT_RPS", 2.0),
		LimitBurst:                    envIntOr("STUDIO_RATE_LIMIT_BURST", 8),
		LimitMaxConcurrentRequests:    envIntOr("STUDIO_MAX_CONCURRENT_REQUESTS", 8),
		ReadHeaderTimeout:             envDurationOr("STUDIO_READ_HEADER_TIMEOUT", 10*time.Second),
		ReadTimeout:                   envDurationOr("STUDIO_READ_TIMEOUT", 30*time.Second),
		HandlerTimeout:                envDurationOr("STUDIO_TOTAL_REQUEST_TIMEOUT", 3*time.Minute),
		ShutdownGracePeriod:           envDurationOr("STUDIO_SHUTDOWN_GRACE_PERIOD", 30*time.Second),
		GeminiAPIKey:                  firstEnv("STUDIO_GEMINI_API_KEY", "GEMINI_API_KEY", "API_KEY"),
		GeminiBaseURL:                 envOr("STUDIO_GEMINI_BASE_URL", ""),
		UpstreamConnectTimeout:        envDurationOr("STUDIO_CONNECT_TIMEOUT", 5*time.Second),
		UpstreamResponseHeaderTimeout: envDurationOr("STUDIO_RESPONSE_HEADER_TIMEOUT", 2*time.Minute),
		VideoPollInterval:             envDurationOr("STUDIO_VIDEO_POLL_INTERVAL", 10*time.Second),
		VideoStore:                    VideoStoreKind(strings.ToLower(envOr("STUDIO_VIDEO_STORE", string(VideoStoreMemory)))),
		VideoMaxObjects:               envIntOr("STUDIO_VIDEO_MAX_OBJECTS", 32),
		MaxWorkspaces:                 envIntOr("STUDIO_MAX_WORKSPACES", 256),
		S3Bucket:                      envOr("STUDIO_S3_BUCKET", ""),
		S3Region:                      envOr("STUDIO_S3_REGION", "us-east-1"),
		S3Prefix:                      envOr("STUDIO_S3_PREFIX", "videos/"),
		S3Endpoint:                    envOr("STUDIO_S3_ENDPOINT", ""),
		S3AccessKeyID:                 envOr("STUDIO_S3_ACCESS_KEY_ID", ""),
		S3SecretAccessKey:             envOr("STUDIO_S3_SECRET_ACCESS_KEY", ""),
		S3PresignExpiry:               envDurationOr("STUDIO_S3_PRESIGN_EXPIRY", time.Hour),
		DatabaseURL:                   envOr("STUDIO_DATABASE_URL", ""),
		LogLevel:                      envOr("STUDIO_LOG_LEVEL", "info"),
		LogFormat:                     envOr("STUDIO_LOG_FORMAT", "text"),
		LogFile:                       envOr("STUDIO_LOG_FILE", ""),
	}

	switch cfg.AuthMode {
	case AuthModeRequired, AuthModeOptional, AuthModeDisabled:
	default:
		return Config{}, fmt.Errorf("STUDIO_AUTH_MODE must be one of required|optional|disabled")
	}

	for _, key := range splitCSV(os.Getenv("STUDIO_API_KEYS")) {
		cfg.APIKeys[key] = struct{}{}
	}

	for _, origin := range splitCSV(os.Getenv("STUDIO_CORS_ORIGINS")) {
		cfg.CORSAllowedOrigins[origin] = struct{}{}
	}

	if cfg.MaxBodyBytes <= 0 {
		return Config{}, fmt.Errorf("STUDIO_MAX_BODY_BYTES must be > 0")
	}
	if cfg.SSEPingInterval <= 0 {
		return Config{}, fmt.Errorf("STUDIO_SSE_PING_INTERVAL must be > 0")
	}
	if cfg.SSEMaxStreamDuration <= 0 {
		return Config{}, fmt.Errorf("STUDIO_SSE_MAX_DURATION must be > 0")
	}
	if cfg.WSMaxSessionDuration <= 0 {
		return Config{}, fmt.Errorf("STUDIO_WS_MAX_DURATION must be > 0")
	}
	if cfg.WSMaxSessionsPerPrincipal <= 0 {
		return Config{}, fmt.Errorf("STUDIO_WS_MAX_SESSIONS_PER_PRINCIPAL must be > 0")
	}
	if cfg.LiveMaxAudioFrameBytes <= 0 {
		return Config{}, fmt.Errorf("STUDIO_LIVE_MAX_AUDIO_FRAME_BYTES must be > 0")
	}
	if cfg.LiveMaxJSONMessageBytes <= 0 {
		return Config{}, fmt.Errorf("STUDIO_LIVE_MAX_JSON_MESSAGE_BYTES must be > 0")
	}
	if cfg.LiveMaxAudioBytesPerSecond < 0 {
		return Config{}, fmt.Errorf("STUDIO_LIVE_MAX_AUDIO_BPS must be >= 0")
	}
	if cfg.LiveInboundBurstSeconds < 0 {
		return Config{}, fmt.Errorf("STUDIO_LIVE_INBOUND_BURST_SECONDS must be >= 0")
	}
	if cfg.LiveMaxAudioBytesPerSecond > 0 && cfg.LiveInboundBurstSeconds < 1 {
		return Config{}, fmt.Errorf("STUDIO_LIVE_INBOUND_BURST_SECONDS must be >= 1 when inbound audio limits are enabled")
	}
	if cfg.LiveWSPingInterval <= 0 {
		return Config{}, fmt.Errorf("STUDIO_LIVE_WS_PING_INTERVAL must be > 0")
	}
	if cfg.LiveWSWriteTimeout <= 0 {
		return Config{}, fmt.Errorf("STUDIO_LIVE_WS_WRITE_TIMEOUT must be > 0")
	}
	if cfg.LiveHandshakeTimeout <= 0 {
		return Config{}, fmt.Errorf("STUDIO_LIVE_HANDSHAKE_TIMEOUT must be > 0")
	}
	if cfg.ReadHeaderTimeout <= 0 {
		return Config{}, fmt.Errorf("STUDIO_READ_HEADER_TIMEOUT must be > 0")
	}
	if cfg.ReadTimeout <= 0 {
		return Config{}, fmt.Errorf("STUDIO_READ_TIMEOUT must be > 0")
	}
	if cfg.HandlerTimeout <= 0 {
		return Config{}, fmt.Errorf("STUDIO_TOTAL_REQUEST_TIMEOUT must be > 0")
	}
	if cfg.ShutdownGracePeriod <= 0 {
		return Config{}, fmt.Errorf("STUDIO_SHUTDOWN_GRACE_PERIOD must be > 0")
	}
	if cfg.UpstreamConnectTimeout <= 0 {
		return Config{}, fmt.Errorf("STUDIO_CONNECT_TIMEOUT must be > 0")
	}
	if cfg.UpstreamResponseHeaderTimeout <= 0 {
		return Config{}, fmt.Errorf("STUDIO_RESPONSE_HEADER_TIMEOUT must be > 0")
	}
	if cfg.VideoPollInterval <= 0 {
		return Config{}, fmt.Errorf("STUDIO_VIDEO_POLL_INTERVAL must be > 0")
	}
	if cfg.VideoMaxObjects <= 0 {
		return Config{}, fmt.Errorf("STUDIO_VIDEO_MAX_OBJECTS must be > 0")
	}
	if cfg.MaxWorkspaces <= 0 {
		return Config{}, fmt.Errorf("STUDIO_MAX_WORKSPACES must be > 0")
	}

	switch cfg.VideoStore {
	case VideoStoreMemory:
	case VideoStoreS3:
		if cfg.S3Bucket == "" {
			return Config{}, fmt.Errorf("STUDIO_S3_BUCKET must be set when STUDIO_VIDEO_STORE=s3")
		}
		if (cfg.S3AccessKeyID == "") != (cfg.S3SecretAccessKey == "") {
			return Config{}, fmt.Errorf("STUDIO_S3_ACCESS_KEY_ID and STUDIO_S3_SECRET_ACCESS_KEY must be set together")
		}
		if cfg.S3PresignExpiry <= 0 {
			return Config{}, fmt.Errorf("STUDIO_S3_PRESIGN_EXPIRY must be > 0")
		}
	default:
		return Config{}, fmt.Errorf("STUDIO_VIDEO_STORE must be one of memory|s3")
	}

	if cfg.LimitRPS < 0 {
		return Config{}, fmt.Errorf("STUDIO_RATE_LIMIT_RPS must be >= 0")
	}
	if cfg.LimitBurst < 0 {
		return Config{}, fmt.Errorf("STUDIO_RATE_LIMIT_BURST must be >= 0")
	}
	if cfg.LimitMaxConcurrentRequests < 0 {
		return Config{}, fmt.Errorf("STUDIO_MAX_CONCURRENT_REQUESTS must be >= 0")
	}

	if cfg.AuthMode == AuthModeRequired && len(cfg.APIKeys) == 0 {
		return Config{}, fmt.Errorf("STUDIO_API_KEYS must be set when STUDIO_AUTH_MODE=required")
	}

	return cfg, nil
}

func envOr(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

// firstEnv returns the first non-empty value among keys.
func firstEnv(keys ...string) string {
	for _, key := range keys {
		if v := envOr(key, ""); v != "" {
			return v
		}
	}
	return ""
}

func envInt64Or(key string, def int64) int64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return def
	}
	return n
}

func envIntOr(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

func envFloat64Or(key string, def float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return def
	}
	return n
}

func envBoolOr(key string, def bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	switch strings.ToLower(raw) {
	case "1", "true", "t", "yes", "y", "on":
		return true
	case "0", "false", "f", "no", "n", "off":
		return false
	default:
		return def
	}
}

func envDurationOr(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return def
	}
	return d
}

func splitCSV(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}
