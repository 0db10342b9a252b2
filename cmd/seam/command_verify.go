package main

import (
	"context"
	"errors"
	"flag"
	"fmt"

	"seam/internal/clock"
	"seam/internal/session"
	"seam/internal/store"
	"seam/internal/verify"
)

type VerifyCommand struct {
	wiring commandWiring
}

func NewVerifyCommand(wiring commandWiring) *VerifyCommand {
	return &VerifyCommand{wiring: wiring}
}

// Run rebuilds the live timeline from captured envelopes and the
// persisted timeline from stored records, then prints the comparison
// report. Exits non-zero when the sources disagree.
func (c *VerifyCommand) Run(args []string) error {
	fs := flag.NewFlagSet("verify", flag.ContinueOnError)
	fs.SetOutput(c.wiring.stderr)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		return errors.New("verify requires a session id")
	}
	sessionID := fs.Arg(0)

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

	result, err := manager.Verify(ctx, sessionID)
	if err != nil {
		return err
	}
	fmt.Fprint(c.wiring.stdout, verify.RenderReport(result))
	if !result.Clean() {
		return fmt.Errorf("%d discrepancies", len(result.Discrepancies))
	}
	return nil
}

// replayCaptures pushes a session's captured envelopes back through the
// merge engine so the live timeline reflects what was seen on the wire.
func replayCaptures(ctx context.Context, manager *session.Manager, db *store.Store, sessionID string) error {
	envs, err := db.Envelopes(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("load captures: %w", err)
	}
	for _, env := range envs {
		manager.Apply(env)
	}
	manager.Flush(sessionID)
	return nil
}
