package main

import (
	"fmt"
	"io"
	"os"

	"seam/internal/client"
	"seam/internal/config"
	"seam/internal/logging"
	"seam/internal/session"
	"seam/internal/store"
	"seam/internal/stream"
)

type commandRunner interface {
	Run(args []string) error
}

type commandWiring struct {
	stdout     io.Writer
	stderr     io.Writer
	loadConfig func() (config.Config, error)
	openStore  func(cfg config.Config) (*store.Store, error)
	newClient  func(cfg config.Config, logger logging.Logger) *client.Client
}

func defaultCommandWiring(stdout, stderr io.Writer) commandWiring {
	if stdout == nil {
		stdout = os.Stdout
	}
	if stderr == nil {
		stderr = os.Stderr
	}
	return commandWiring{
		stdout:     stdout,
		stderr:     stderr,
		loadConfig: config.Load,
		openStore:  openConfiguredStore,
		newClient: func(cfg config.Config, logger logging.Logger) *client.Client {
			return client.New(cfg.StreamBaseURL(), logger)
		},
	}
}

func buildCommands(wiring commandWiring) map[string]commandRunner {
	return map[string]commandRunner{
		"tail":   NewTailCommand(wiring),
		"import": NewImportCommand(wiring),
		"verify": NewVerifyCommand(wiring),
		"replay": NewReplayCommand(wiring),
		"ui":     NewUICommand(wiring),
		"config": NewConfigCommand(wiring),
	}
}

func openConfiguredStore(cfg config.Config) (*store.Store, error) {
	path, err := cfg.StoreDBPath()
	if err != nil {
		return nil, err
	}
	return store.Open(path)
}

func (w commandWiring) logger(cfg config.Config) logging.Logger {
	return logging.New(w.stderr, logging.ParseLevel(cfg.LogLevel()))
}

func managerOptions(cfg config.Config) session.Options {
	return session.Options{
		SessionCap: cfg.SessionCacheCap(),
		Stream: stream.Options{
			FastDelay:    cfg.FastDelay(),
			DefaultDelay: cfg.DefaultDelay(),
			SlowDelay:    cfg.SlowDelay(),
			FastGap:      cfg.FastGap(),
			SlowGap:      cfg.SlowGap(),
		},
		WatchdogInterval: cfg.WatchdogInterval(),
		MinStep:          cfg.MinStep(),
		Speed:            cfg.Speed(),
	}
}

func exitOnErr(label string, err error, stderr io.Writer) {
	if err == nil {
		return
	}
	fmt.Fprintf(stderr, "%s error: %v\n", label, err)
	os.Exit(1)
}
