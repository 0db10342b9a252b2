package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os/signal"
	"sync"
	"syscall"

	"seam/internal/clock"
	"seam/internal/session"
	"seam/internal/store"
	"seam/internal/types"
)

type TailCommand struct {
	wiring commandWiring
}

func NewTailCommand(wiring commandWiring) *TailCommand {
	return &TailCommand{wiring: wiring}
}

// Run follows one session's live stream, printing each coalesced batch
// of timeline changes. With --capture the raw envelopes are also stored
// for offline verify/replay.
func (c *TailCommand) Run(args []string) error {
	fs := flag.NewFlagSet("tail", flag.ContinueOnError)
	fs.SetOutput(c.wiring.stderr)
	capture := fs.Bool("capture", false, "record raw envelopes for offline replay")
	asJSON := fs.Bool("json", false, "print events as JSON lines")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		return errors.New("tail requires a session id")
	}
	sessionID := fs.Arg(0)

	cfg, err := c.wiring.loadConfig()
	if err != nil {
		return err
	}
	logger := c.wiring.logger(cfg)

	var captureStore *store.Store
	if *capture {
		captureStore, err = c.wiring.openStore(cfg)
		if err != nil {
			return err
		}
		defer captureStore.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	streamClient := c.wiring.newClient(cfg, logger)
	manager := session.NewManager(streamClient, clock.System(), managerOptions(cfg), logger)
	manager.Start()
	defer manager.Close()

	var mu sync.Mutex
	printed := 0
	printBatch := func(string) {
		mu.Lock()
		defer mu.Unlock()
		events := manager.Timeline(sessionID, types.SourceLive)
		for _, ev := range events[min(printed, len(events)):] {
			c.printEvent(ev, *asJSON)
		}
		printed = len(events)
	}
	defer manager.Subscribe(sessionID, printBatch)()

	envs, cancel, err := streamClient.EventStream(ctx, sessionID)
	if err != nil {
		return err
	}
	defer cancel()

	for env := range envs {
		if captureStore != nil {
			if err := captureStore.AppendEnvelope(ctx, env); err != nil {
				return fmt.Errorf("capture envelope: %w", err)
			}
		}
		manager.Apply(env)
	}
	manager.Flush(sessionID)
	return ctx.Err()
}

func (c *TailCommand) printEvent(ev *types.Event, asJSON bool) {
	if asJSON {
		_ = json.NewEncoder(c.wiring.stdout).Encode(ev)
		return
	}
	fmt.Fprintf(c.wiring.stdout, "%s  %-11s %-9s %s\n",
		ev.Timestamp.Format("15:04:05.000"), ev.Kind, ev.Role, eventLine(ev))
}

func eventLine(ev *types.Event) string {
	switch {
	case ev.Message != nil:
		if ev.Message.Partial {
			return ev.Message.Content + " …"
		}
		return ev.Message.Content
	case ev.ToolCall != nil:
		raw, _ := json.Marshal(ev.ToolCall.Params)
		return ev.ToolCall.Name + "(" + string(raw) + ")"
	case ev.ToolResult != nil:
		if !ev.ToolResult.Success {
			return "error: " + ev.ToolResult.Error
		}
		raw, _ := json.Marshal(ev.ToolResult.Result)
		return string(raw)
	}
	return ""
}
