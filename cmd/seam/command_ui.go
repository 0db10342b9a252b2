package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"path/filepath"

	"seam/internal/app"
	"seam/internal/clock"
	"seam/internal/config"
	"seam/internal/logging"
	"seam/internal/session"
)

type UICommand struct {
	wiring commandWiring
}

func NewUICommand(wiring commandWiring) *UICommand {
	return &UICommand{wiring: wiring}
}

func (c *UICommand) Run(args []string) error {
	fs := flag.NewFlagSet("ui", flag.ContinueOnError)
	fs.SetOutput(c.wiring.stderr)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		return errors.New("ui requires a session id")
	}
	sessionID := fs.Arg(0)

	cfg, err := c.wiring.loadConfig()
	if err != nil {
		return err
	}
	// Log to a file while the TUI owns the terminal.
	logger := uiLogger(cfg)

	db, err := c.wiring.openStore(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	manager := session.NewManager(db, clock.System(), managerOptions(cfg), logger)
	manager.Start()
	defer manager.Close()

	streamClient := c.wiring.newClient(cfg, logger)
	return app.Run(context.Background(), manager, streamClient.EventStream, sessionID)
}

func uiLogger(cfg config.Config) logging.Logger {
	dir, err := config.DataDir()
	if err != nil {
		return logging.Nop()
	}
	path := filepath.Join(dir, "ui.log")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return logging.Nop()
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return logging.Nop()
	}
	return logging.New(file, logging.ParseLevel(cfg.LogLevel()))
}
