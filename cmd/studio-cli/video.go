package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/Linkxee-Tech/CartoonLinkxee-AI/pkg/core/credential"
	"github.com/Linkxee-Tech/CartoonLinkxee-AI/pkg/core/storage"
	"github.com/Linkxee-Tech/CartoonLinkxee-AI/pkg/core/types"
	"github.com/Linkxee-Tech/CartoonLinkxee-AI/pkg/core/video"
)

const localVideoPrefix = "local:"

type stringList []string

func (l *stringList) String() string { return strings.Join(*l, ", ") }

func (l *stringList) Set(v string) error {
	*l = append(*l, v)
	return nil
}

type videoConfig struct {
	commonConfig
	Prompt      string
	ImagePath   string
	AspectRatio string
	Duration    string
	Extends     stringList
	CharacterID string
	Out         string
	Poll        time.Duration
}

func parseVideoConfig(args []string, getenv func(string) string, out io.Writer) (videoConfig, error) {
	var cfg videoConfig
	fs := flag.NewFlagSet("video", flag.ContinueOnError)
	fs.SetOutput(out)
	cfg.register(fs, getenv)
	fs.StringVar(&cfg.Prompt, "prompt", "", "what the video shows")
	fs.StringVar(&cfg.ImagePath, "image", "", "optional starting frame (png or jpeg)")
	fs.StringVar(&cfg.AspectRatio, "aspect", string(types.AspectLandscape), "16:9 or 9:16; other ratios become 16:9")
	fs.StringVar(&cfg.Duration, "duration", string(types.DurationShort), "short, medium, long, two_minutes ... twenty_minutes")
	fs.Var(&cfg.Extends, "extend", "extend the finished video with this prompt (repeatable)")
	fs.StringVar(&cfg.CharacterID, "character", "", "saved character id to feature")
	fs.StringVar(&cfg.Out, "out", "video.mp4", "output file")
	fs.DurationVar(&cfg.Poll, "poll", 10*time.Second, "operation poll interval")
	if err := fs.Parse(args); err != nil {
		return videoConfig{}, err
	}
	if fs.NArg() > 0 && cfg.Prompt == "" {
		cfg.Prompt = strings.Join(fs.Args(), " ")
	}
	if strings.TrimSpace(cfg.Prompt) == "" {
		return videoConfig{}, errors.New("a prompt is required (-prompt)")
	}
	if !types.AspectRatio(cfg.AspectRatio).Valid() {
		return videoConfig{}, fmt.Errorf("unsupported aspect ratio %q", cfg.AspectRatio)
	}
	if !types.VideoDuration(cfg.Duration).Valid() {
		return videoConfig{}, fmt.Errorf("unsupported duration %q", cfg.Duration)
	}
	return cfg, nil
}

// keyPrompt asks for a Gemini key on the terminal.
func keyPrompt(in *bufio.Reader, out io.Writer) credential.PromptFunc {
	var mu sync.Mutex
	return func(ctx context.Context) (string, error) {
		mu.Lock()
		defer mu.Unlock()
		fmt.Fprint(out, "Enter a Gemini API key with video access: ")
		line, err := in.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return "", err
		}
		return strings.TrimSpace(line), nil
	}
}

func runVideo(ctx context.Context, args []string, std stdio, deps cliDeps) error {
	cfg, err := parseVideoConfig(args, deps.getenv, std.err)
	if err != nil {
		return err
	}
	logger, err := newLogger(std.err, cfg.LogLevel)
	if err != nil {
		return err
	}

	req := video.GenerateRequest{
		Prompt:      cfg.Prompt,
		AspectRatio: types.AspectRatio(cfg.AspectRatio),
		Duration:    types.VideoDuration(cfg.Duration),
	}
	if cfg.ImagePath != "" {
		data, err := os.ReadFile(cfg.ImagePath)
		if err != nil {
			return fmt.Errorf("read image: %w", err)
		}
		req.Image = &video.Image{Data: data, MIMEType: http.DetectContentType(data)}
	}
	if cfg.CharacterID != "" {
		gw, err := cfg.gateway(deps.httpClient)
		if err != nil {
			return err
		}
		if req.Character, err = gw.GetCharacter(ctx, cfg.CharacterID); err != nil {
			return fmt.Errorf("load character: %w", err)
		}
	}

	keys := credential.NewKeyring(cfg.GeminiAPIKey, keyPrompt(bufio.NewReader(std.in), std.err))
	store := storage.NewMemoryStore(localVideoPrefix, 1)
	poll := cfg.Poll
	if deps.pollEvery > 0 {
		poll = deps.pollEvery
	}
	orch := video.New(deps.newVideo(keys, logger),
		video.WithCredentials(keys),
		video.WithStore(store),
		video.WithPollInterval(poll),
		video.WithLogger(logger),
	)

	subCtx, stopProgress := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		printProgress(std.out, orch.Subscribe(subCtx))
	}()
	defer func() {
		stopProgress()
		<-done
	}()

	if err := orch.Generate(ctx, req); err != nil {
		return err
	}
	for _, prompt := range cfg.Extends {
		if err := orch.Extend(ctx, video.ExtendVideoRequest{Prompt: prompt, Character: req.Character}); err != nil {
			return err
		}
	}

	st := orch.Snapshot()
	obj, ok := store.Get(strings.TrimPrefix(st.VideoRef, localVideoPrefix))
	if !ok {
		return errors.New("finished video is missing")
	}
	if err := os.WriteFile(cfg.Out, obj.Data, 0o644); err != nil {
		return fmt.Errorf("write video: %w", err)
	}
	fmt.Fprintf(std.out, "saved %s (%d bytes)\n", cfg.Out, len(obj.Data))
	return nil
}

// printProgress writes one line per distinct progress message until states
// closes.
func printProgress(w io.Writer, states <-chan video.State) {
	var last string
	for st := range states {
		line := progressLine(st)
		if line == "" || line == last {
			continue
		}
		last = line
		fmt.Fprintln(w, line)
	}
}

func progressLine(st video.State) string {
	switch {
	case st.Error != "":
		return "error: " + st.Error
	case st.ProgressMessage != "":
		return st.ProgressMessage
	case st.Phase == video.PhaseReady:
		return "video ready"
	}
	return ""
}
