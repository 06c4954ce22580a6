package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/Linkxee-Tech/CartoonLinkxee-AI/pkg/core/credential"
	"github.com/Linkxee-Tech/CartoonLinkxee-AI/pkg/core/live"
	"github.com/Linkxee-Tech/CartoonLinkxee-AI/pkg/core/types"
)

type liveConfig struct {
	commonConfig
	CharacterID string
	Model       string
}

func parseLiveConfig(mode live.Mode, args []string, getenv func(string) string, out io.Writer) (liveConfig, error) {
	var cfg liveConfig
	fs := flag.NewFlagSet(string(mode), flag.ContinueOnError)
	fs.SetOutput(out)
	cfg.register(fs, getenv)
	fs.StringVar(&cfg.Model, "model", "", "live model override")
	if mode == live.ModeConversation {
		fs.StringVar(&cfg.CharacterID, "character", "", "saved character id to talk to")
	}
	if err := fs.Parse(args); err != nil {
		return liveConfig{}, err
	}
	if fs.NArg() > 0 {
		return liveConfig{}, fmt.Errorf("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}
	if cfg.GeminiAPIKey == "" {
		return liveConfig{}, errors.New("a Gemini API key is required (-api-key or STUDIO_GEMINI_API_KEY)")
	}
	return cfg, nil
}

func runLive(ctx context.Context, mode live.Mode, args []string, std stdio, deps cliDeps) error {
	cfg, err := parseLiveConfig(mode, args, deps.getenv, std.err)
	if err != nil {
		return err
	}
	logger, err := newLogger(std.err, cfg.LogLevel)
	if err != nil {
		return err
	}

	var char *types.Character
	if cfg.CharacterID != "" {
		gw, err := cfg.gateway(deps.httpClient)
		if err != nil {
			return err
		}
		if char, err = gw.GetCharacter(ctx, cfg.CharacterID); err != nil {
			return fmt.Errorf("load character: %w", err)
		}
	}

	if deps.initAudio != nil {
		release, err := deps.initAudio()
		if err != nil {
			return err
		}
		defer release()
	}

	lcfg := live.ConfigFor(mode, char)
	lcfg.Model = cfg.Model
	keys := credential.NewKeyring(cfg.GeminiAPIKey, nil)
	mgr := live.NewManager(lcfg, deps.newLive(keys, logger), deps.mic,
		live.WithSpeaker(deps.speaker),
		live.WithLogger(logger),
	)
	defer mgr.Stop()

	if err := mgr.Start(ctx); err != nil {
		return err
	}
	if char != nil {
		fmt.Fprintf(std.out, "talking to %s. Press Enter to stop.\n", char.Name)
	} else {
		fmt.Fprintf(std.out, "%s started. Press Enter to stop.\n", mode)
	}

	enter := make(chan struct{})
	go func() {
		line, err := bufio.NewReader(std.in).ReadString('\n')
		if err == nil || line != "" {
			close(enter)
		}
	}()

	subCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	states := mgr.Subscribe(subCtx)
	view := &liveView{mode: mode, w: std.out}
	for running := true; running; {
		select {
		case st, ok := <-states:
			if !ok {
				running = false
				break
			}
			view.update(st, false)
			if !st.IsActive && !st.IsConnecting {
				running = false
			}
		case <-enter:
			running = false
		case <-ctx.Done():
			running = false
		}
	}

	mgr.Stop()
	final := mgr.Snapshot()
	view.update(final, true)
	if final.Error != "" {
		return errors.New(final.Error)
	}
	return nil
}

// liveView prints transcript lines once they stop changing and the running
// transcription text as it grows.
type liveView struct {
	mode    live.Mode
	w       io.Writer
	printed int
	text    int
}

func (v *liveView) update(st live.State, final bool) {
	if v.mode == live.ModeTranscription {
		if len(st.Text) > v.text {
			fmt.Fprint(v.w, st.Text[v.text:])
			v.text = len(st.Text)
		}
		if final && v.text > 0 {
			fmt.Fprintln(v.w)
			v.text = 0
		}
		return
	}

	stable := len(st.Transcript) - 1
	if final {
		stable = len(st.Transcript)
	}
	for ; v.printed < stable; v.printed++ {
		e := st.Transcript[v.printed]
		fmt.Fprintf(v.w, "[%s] %s\n", speakerLabel(e.Speaker), strings.TrimSpace(e.Text))
	}
}

func speakerLabel(s types.Speaker) string {
	if s == types.SpeakerModel {
		return "model"
	}
	return "you"
}
