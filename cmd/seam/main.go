package main

import (
	"fmt"
	"os"
)

const usageText = `seam inspects conversational agent sessions: it merges the live event
stream into an ordered timeline, checks it against the persisted record,
and replays either source deterministically.

Usage:
  seam <command> [flags]

Commands:
  tail     follow a session's live event stream
  import   load persisted conversation records from a JSONL file
  verify   compare live and persisted tool activity for a session
  replay   re-emit a session's timeline on its original schedule
  ui       run the terminal viewer
  config   print configuration (effective or defaults)
  help     show help

Flags:
  -h, --help   show help

Examples:
  seam tail 9f3c --capture
  seam import 9f3c transcript.jsonl
  seam verify 9f3c
  seam replay 9f3c --speed 4 --mode live-only
  seam ui 9f3c
`

func printUsage() {
	fmt.Fprint(os.Stderr, usageText)
}

func main() {
	args := os.Args[1:]
	if len(args) == 0 {
		printUsage()
		return
	}

	wiring := defaultCommandWiring(os.Stdout, os.Stderr)
	commands := buildCommands(wiring)

	switch args[0] {
	case "-h", "--help", "help":
		printUsage()
		return
	}

	runner, ok := commands[args[0]]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", args[0])
		printUsage()
		os.Exit(2)
	}
	exitOnErr(args[0], runner.Run(args[1:]), wiring.stderr)
}
