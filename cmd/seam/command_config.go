package main

import (
	"encoding/json"
	"flag"
	"fmt"

	toml "github.com/pelletier/go-toml/v2"

	"seam/internal/config"
)

type ConfigCommand struct {
	wiring commandWiring
}

func NewConfigCommand(wiring commandWiring) *ConfigCommand {
	return &ConfigCommand{wiring: wiring}
}

func (c *ConfigCommand) Run(args []string) error {
	fs := flag.NewFlagSet("config", flag.ContinueOnError)
	fs.SetOutput(c.wiring.stderr)
	defaults := fs.Bool("defaults", false, "print built-in defaults instead of the effective config")
	format := fs.String("format", "toml", "output format: toml or json")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var cfg config.Config
	if *defaults {
		cfg = config.Default()
	} else {
		loaded, err := c.wiring.loadConfig()
		if err != nil {
			return err
		}
		cfg = loaded
	}

	switch *format {
	case "toml":
		raw, err := toml.Marshal(cfg)
		if err != nil {
			return err
		}
		_, err = c.wiring.stdout.Write(raw)
		return err
	case "json":
		enc := json.NewEncoder(c.wiring.stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(cfg)
	default:
		return fmt.Errorf("unknown format %q", *format)
	}
}
