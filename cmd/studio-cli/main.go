package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Linkxee-Tech/CartoonLinkxee-AI/internal/device"
	"github.com/Linkxee-Tech/CartoonLinkxee-AI/internal/dotenv"
	"github.com/Linkxee-Tech/CartoonLinkxee-AI/internal/logging"
	"github.com/Linkxee-Tech/CartoonLinkxee-AI/pkg/core/credential"
	"github.com/Linkxee-Tech/CartoonLinkxee-AI/pkg/core/live"
	"github.com/Linkxee-Tech/CartoonLinkxee-AI/pkg/core/providers/gemini"
	"github.com/Linkxee-Tech/CartoonLinkxee-AI/pkg/core/video"
)

const (
	defaultGatewayURL = "http://127.0.0.1:8080"
	defaultTimeout    = 30 * time.Second
)

const usage = `usage: studio-cli <command> [flags]

commands:
  video        generate a video and optionally extend it
  live         talk to the model through the microphone and speaker
  transcribe   transcribe microphone speech
  characters   list, show, create or delete saved characters
`

// commonConfig holds the flags every subcommand accepts.
type commonConfig struct {
	GeminiAPIKey  string
	GatewayURL    string
	GatewayAPIKey string
	LogLevel      string
	Timeout       time.Duration
}

func (c *commonConfig) register(fs *flag.FlagSet, getenv func(string) string) {
	fs.StringVar(&c.GeminiAPIKey, "api-key", firstNonEmpty(getenv("STUDIO_GEMINI_API_KEY"), getenv("GEMINI_API_KEY"), getenv("API_KEY")), "Gemini API key (or STUDIO_GEMINI_API_KEY)")
	fs.StringVar(&c.GatewayURL, "gateway", firstNonEmpty(getenv("STUDIO_GATEWAY_URL"), defaultGatewayURL), "studio gateway base URL for saved characters")
	fs.StringVar(&c.GatewayAPIKey, "gateway-api-key", strings.TrimSpace(getenv("STUDIO_GATEWAY_API_KEY")), "gateway API key (or STUDIO_GATEWAY_API_KEY)")
	fs.StringVar(&c.LogLevel, "log-level", firstNonEmpty(getenv("STUDIO_LOG_LEVEL"), "warn"), "debug, info, warn or error")
	fs.DurationVar(&c.Timeout, "timeout", defaultTimeout, "gateway request timeout")
}

func (c commonConfig) gateway(hc *http.Client) (*gatewayClient, error) {
	if hc == nil {
		hc = &http.Client{Timeout: c.Timeout}
	}
	return newGatewayClient(c.GatewayURL, c.GatewayAPIKey, hc)
}

// cliDeps are the outside-world hooks each command uses.
type cliDeps struct {
	getenv     func(string) string
	httpClient *http.Client
	newVideo   func(keys *credential.Keyring, logger *slog.Logger) video.Service
	newLive    func(keys *credential.Keyring, logger *slog.Logger) live.Connector
	mic        live.Microphone
	speaker    live.Speaker
	initAudio  func() (func(), error)
	pollEvery  time.Duration
}

func defaultCLIDeps() cliDeps {
	return cliDeps{
		getenv: os.Getenv,
		newVideo: func(keys *credential.Keyring, logger *slog.Logger) video.Service {
			return gemini.New(keys, gemini.WithLogger(logger)).Video()
		},
		newLive: func(keys *credential.Keyring, logger *slog.Logger) live.Connector {
			return gemini.New(keys, gemini.WithLogger(logger)).Live()
		},
		mic:     device.Microphone{},
		speaker: device.Speaker{},
		initAudio: func() (func(), error) {
			if err := device.Init(); err != nil {
				return nil, err
			}
			return func() { _ = device.Terminate() }, nil
		},
	}
}

type stdio struct {
	in  io.Reader
	out io.Writer
	err io.Writer
}

func newLogger(w io.Writer, level string) (*slog.Logger, error) {
	logger, _, err := logging.New(w, logging.Options{Level: level})
	return logger, err
}

func runMain(ctx context.Context, args []string, std stdio, deps cliDeps) int {
	if deps.getenv == nil {
		deps.getenv = os.Getenv
	}
	if err := dotenv.LoadFiles(".env.local", ".env"); err != nil {
		fmt.Fprintf(std.err, "studio-cli: %v\n", err)
		return 1
	}
	if len(args) == 0 {
		fmt.Fprint(std.err, usage)
		return 2
	}

	var err error
	switch cmd, rest := args[0], args[1:]; cmd {
	case "video":
		err = runVideo(ctx, rest, std, deps)
	case "live":
		err = runLive(ctx, live.ModeConversation, rest, std, deps)
	case "transcribe":
		err = runLive(ctx, live.ModeTranscription, rest, std, deps)
	case "characters":
		err = runCharacters(ctx, rest, std, deps)
	case "help", "-h", "--help":
		fmt.Fprint(std.out, usage)
		return 0
	default:
		fmt.Fprintf(std.err, "studio-cli: unknown command %q\n\n%s", cmd, usage)
		return 2
	}
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintf(std.err, "studio-cli: %v\n", err)
		return 1
	}
	return 0
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := runMain(ctx, os.Args[1:], stdio{in: os.Stdin, out: os.Stdout, err: os.Stderr}, defaultCLIDeps())
	stop()
	os.Exit(code)
}
