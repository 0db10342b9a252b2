package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"seam/internal/types"
)

type ImportCommand struct {
	wiring commandWiring
}

func NewImportCommand(wiring commandWiring) *ImportCommand {
	return &ImportCommand{wiring: wiring}
}

// Run loads persisted conversation records from a JSONL file into the
// local store, one record per line. Blank lines are skipped; a
// malformed line aborts the import with its line number.
func (c *ImportCommand) Run(args []string) error {
	fs := flag.NewFlagSet("import", flag.ContinueOnError)
	fs.SetOutput(c.wiring.stderr)
	appendRecords := fs.Bool("append", false, "append to existing records instead of replacing")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 2 {
		return errors.New("import requires a session id and a JSONL file")
	}
	sessionID := fs.Arg(0)
	path := fs.Arg(1)

	cfg, err := c.wiring.loadConfig()
	if err != nil {
		return err
	}
	db, err := c.wiring.openStore(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	var records []types.Record
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var rec types.Record
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			return fmt.Errorf("line %d: %w", lineNo, err)
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return err
	}

	ctx := context.Background()
	if *appendRecords {
		err = db.AppendRecords(ctx, sessionID, records)
	} else {
		err = db.PutRecords(ctx, sessionID, records)
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(c.wiring.stdout, "imported %d records for session %s\n", len(records), sessionID)
	return nil
}
