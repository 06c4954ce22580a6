package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/Linkxee-Tech/CartoonLinkxee-AI/pkg/core/types"
)

const charactersUsage = `usage: studio-cli characters <list|show|create|delete> [flags]`

func runCharacters(ctx context.Context, args []string, std stdio, deps cliDeps) error {
	if len(args) == 0 {
		return errors.New(charactersUsage)
	}
	action, rest := args[0], args[1:]

	var (
		common commonConfig
		ch     types.Character
		voice  string
	)
	fs := flag.NewFlagSet("characters "+action, flag.ContinueOnError)
	fs.SetOutput(std.err)
	common.register(fs, deps.getenv)
	if action == "create" {
		fs.StringVar(&ch.Name, "name", "", "character name")
		fs.StringVar(&ch.Role, "role", "", "role, e.g. detective")
		fs.StringVar(&ch.Personality, "personality", "", "personality, e.g. grumpy")
		fs.StringVar(&voice, "voice", string(types.VoiceChild), "voice type: "+voiceTypeList())
		fs.StringVar(&ch.Style, "style", "", "visual style")
		if err := fs.Parse(rest); err != nil {
			return err
		}
		ch.VoiceType = types.VoiceType(voice)
	} else if err := fs.Parse(rest); err != nil {
		return err
	}

	gw, err := common.gateway(deps.httpClient)
	if err != nil {
		return err
	}

	switch action {
	case "list":
		list, err := gw.ListCharacters(ctx)
		if err != nil {
			return err
		}
		printCharacters(std.out, list.Data)
		return nil
	case "show":
		id, err := singleArg(fs)
		if err != nil {
			return err
		}
		c, err := gw.GetCharacter(ctx, id)
		if err != nil {
			return err
		}
		printCharacters(std.out, []types.Character{*c})
		return nil
	case "create":
		if err := ch.Validate(); err != nil {
			return err
		}
		c, err := gw.CreateCharacter(ctx, ch)
		if err != nil {
			return err
		}
		fmt.Fprintln(std.out, c.ID)
		return nil
	case "delete":
		id, err := singleArg(fs)
		if err != nil {
			return err
		}
		if err := gw.DeleteCharacter(ctx, id); err != nil {
			return err
		}
		fmt.Fprintf(std.out, "deleted %s\n", id)
		return nil
	default:
		return fmt.Errorf("unknown characters action %q\n%s", action, charactersUsage)
	}
}

func singleArg(fs *flag.FlagSet) (string, error) {
	if fs.NArg() != 1 || strings.TrimSpace(fs.Arg(0)) == "" {
		return "", errors.New("expected exactly one character id")
	}
	return fs.Arg(0), nil
}

func voiceTypeList() string {
	vs := types.VoiceTypes()
	names := make([]string, len(vs))
	for i, v := range vs {
		names[i] = fmt.Sprintf("%q", v)
	}
	return strings.Join(names, ", ")
}

func printCharacters(w io.Writer, chars []types.Character) {
	if len(chars) == 0 {
		fmt.Fprintln(w, "no characters")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tROLE\tPERSONALITY\tVOICE\tSTYLE")
	for _, c := range chars {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", c.ID, c.Name, c.Role, c.Personality, c.VoiceType, c.Style)
	}
	tw.Flush()
}
