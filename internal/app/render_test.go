package app

import (
	"strings"
	"testing"
	"time"

	"seam/internal/types"
	"seam/internal/verify"
)

func TestEventSummary(t *testing.T) {
	cases := []struct {
		name string
		ev   *types.Event
		want string
	}{
		{
			name: "final message",
			ev:   &types.Event{Message: &types.MessagePayload{Content: "hello\nworld"}},
			want: "hello world",
		},
		{
			name: "partial message shows cursor",
			ev:   &types.Event{Message: &types.MessagePayload{Content: "strea", Partial: true}},
			want: "strea ▌",
		},
		{
			name: "tool call with params",
			ev:   &types.Event{ToolCall: &types.ToolCallPayload{Name: "bash", Params: map[string]any{"cmd": "ls"}}},
			want: `bash({"cmd":"ls"})`,
		},
		{
			name: "tool call without params",
			ev:   &types.Event{ToolCall: &types.ToolCallPayload{Name: "bash"}},
			want: "bash()",
		},
		{
			name: "successful result",
			ev:   &types.Event{ToolResult: &types.ToolResultPayload{Success: true, Result: "done"}},
			want: "done",
		},
		{
			name: "failed result",
			ev:   &types.Event{ToolResult: &types.ToolResultPayload{Success: false, Error: "exit 1"}},
			want: "error: exit 1",
		},
		{
			name: "payloadless event",
			ev:   &types.Event{},
			want: "",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := eventSummary(tc.ev); got != tc.want {
				t.Fatalf("summary %q, want %q", got, tc.want)
			}
		})
	}
}

func TestResultPreviewStructured(t *testing.T) {
	got := resultPreview(map[string]any{"files": 3})
	if got != `{"files":3}` {
		t.Fatalf("preview %q", got)
	}
	if got := resultPreview(nil); got != "" {
		t.Fatalf("nil preview %q", got)
	}
}

func TestRenderEventRowTruncates(t *testing.T) {
	ev := &types.Event{
		Kind:      types.EventKindMessage,
		Role:      types.RoleAssistant,
		Timestamp: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Message:   &types.MessagePayload{Content: strings.Repeat("long ", 40)},
	}
	row := renderEventRow(ev, 40)
	if !strings.HasPrefix(row, "12:00:00.000") {
		t.Fatalf("row %q", row)
	}
	if !strings.HasSuffix(row, "…") {
		t.Fatalf("row not truncated: %q", row)
	}
}

func TestRenderVerifyPanelClean(t *testing.T) {
	result := verify.Compare("s1", nil, nil)
	panel := renderVerifyPanel(result)
	if !strings.Contains(panel, "sources agree") {
		t.Fatalf("panel %q", panel)
	}
}
