package main

import (
	"context"
	"errors"
	"flag"
	"fmt"

	"seam/internal/clock"
	"seam/internal/replay"
	"seam/internal/session"
	"seam/internal/types"
)

type ReplayCommand struct {
	wiring commandWiring
}

func NewReplayCommand(wiring commandWiring) *ReplayCommand {
	return &ReplayCommand{wiring: wiring}
}

// Run re-emits a session's events to stdout on their original schedule,
// scaled by --speed. The live side comes from captured envelopes, the
// persisted side from stored records.
func (c *ReplayCommand) Run(args []string) error {
	fs := flag.NewFlagSet("replay", flag.ContinueOnError)
	fs.SetOutput(c.wiring.stderr)
	speed := fs.Float64("speed", 0, "playback speed multiplier (default from config)")
	mode := fs.String("mode", string(types.ReplayModeBoth), "both, live-only or persisted-only")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		return errors.New("replay requires a session id")
	}
	sessionID := fs.Arg(0)

	replayMode := types.ReplayMode(*mode)
	switch replayMode {
	case types.ReplayModeBoth, types.ReplayModeLiveOnly, types.ReplayModePersistedOnly:
	default:
		return fmt.Errorf("unknown mode %q", *mode)
	}

	cfg, err := c.wiring.loadConfig()
	if err != nil {
		return err
	}
	logger := c.wiring.logger(cfg)
	db, err := c.wiring.openStore(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx := context.Background()
	manager := session.NewManager(db, clock.System(), managerOptions(cfg), logger)
	defer manager.Close()

	if err := replayCaptures(ctx, manager, db, sessionID); err != nil {
		return err
	}

	done := make(chan struct{})
	hooks := replay.Hooks{
		OnEvent: func(source types.Source, rev types.ReplayEvent) {
			fmt.Fprintf(c.wiring.stdout, "[%-9s] %6dms  %s\n", source, rev.RelativeMs, eventLine(rev.Event))
		},
		OnFinished: func() {
			close(done)
		},
	}
	player, err := manager.NewReplay(ctx, sessionID, replayMode, hooks)
	if err != nil {
		return err
	}
	defer player.Close()
	if *speed > 0 {
		player.SetSpeed(*speed)
	}

	player.Play()
	<-done
	return nil
}
