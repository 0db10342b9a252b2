package app

import (
	"encoding/base64"
	"errors"
	"strings"
	"testing"
)

func TestCopyTextFallsBackToOSC52(t *testing.T) {
	origSystem, origOSC := clipboardWriteAll, clipboardWriteOSC52
	defer func() { clipboardWriteAll, clipboardWriteOSC52 = origSystem, origOSC }()

	var oscGot string
	clipboardWriteAll = func(string) error { return errors.New("no display") }
	clipboardWriteOSC52 = func(text string) error {
		oscGot = text
		return nil
	}

	if err := copyTextToClipboard("payload"); err != nil {
		t.Fatalf("fallback copy: %v", err)
	}
	if oscGot != "payload" {
		t.Fatalf("osc52 received %q", oscGot)
	}
}

func TestCopyTextBothPathsFail(t *testing.T) {
	origSystem, origOSC := clipboardWriteAll, clipboardWriteOSC52
	defer func() { clipboardWriteAll, clipboardWriteOSC52 = origSystem, origOSC }()

	clipboardWriteAll = func(string) error { return errors.New("no display") }
	clipboardWriteOSC52 = func(string) error { return errors.New("no tty") }

	err := copyTextToClipboard("payload")
	if err == nil {
		t.Fatal("both failures must surface an error")
	}
	if !strings.Contains(err.Error(), "no display") || !strings.Contains(err.Error(), "no tty") {
		t.Fatalf("error %v", err)
	}
}

func TestWriteOSC52SequencePlain(t *testing.T) {
	t.Setenv("TERM", "xterm-256color")
	t.Setenv("TMUX", "")

	var buf strings.Builder
	if err := writeOSC52Sequence(&buf, "hello"); err != nil {
		t.Fatalf("write: %v", err)
	}
	encoded := base64.StdEncoding.EncodeToString([]byte("hello"))
	if !strings.Contains(buf.String(), encoded) {
		t.Fatalf("sequence %q missing payload %q", buf.String(), encoded)
	}
}

func TestWriteOSC52SequenceTmux(t *testing.T) {
	t.Setenv("TERM", "xterm-256color")
	t.Setenv("TMUX", "/tmp/tmux-0/default,123,0")

	var buf strings.Builder
	if err := writeOSC52Sequence(&buf, "hello"); err != nil {
		t.Fatalf("write: %v", err)
	}
	out := buf.String()
	encoded := base64.StdEncoding.EncodeToString([]byte("hello"))
	// Both the plain and tmux-wrapped sequences must be present.
	if strings.Count(out, encoded) != 2 {
		t.Fatalf("sequence %q", out)
	}
	if !strings.Contains(out, "\x1bPtmux;") {
		t.Fatalf("tmux wrapping missing in %q", out)
	}
}
