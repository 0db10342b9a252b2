package verify

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"seam/internal/types"
)

func toolCall(id, name string, params map[string]any, source types.Source) *types.Event {
	return &types.Event{
		ID:        id,
		SessionID: "s1",
		Kind:      types.EventKindToolCall,
		Role:      types.RoleAssistant,
		Timestamp: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Source:    source,
		ToolCall:  &types.ToolCallPayload{Name: name, Params: params},
	}
}

func toolResult(id, callID string, success bool, result any, source types.Source) *types.Event {
	return &types.Event{
		ID:         id,
		SessionID:  "s1",
		Kind:       types.EventKindToolResult,
		Timestamp:  time.Date(2026, 3, 1, 12, 0, 1, 0, time.UTC),
		Source:     source,
		ToolResult: &types.ToolResultPayload{CallID: callID, Success: success, Result: result},
	}
}

func message(id, content string) *types.Event {
	return &types.Event{
		ID:        id,
		SessionID: "s1",
		Kind:      types.EventKindMessage,
		Role:      types.RoleAssistant,
		Message:   &types.MessagePayload{Content: content},
	}
}

func TestCompareAgreeingSources(t *testing.T) {
	params := map[string]any{"path": "main.go"}
	live := []*types.Event{
		message("m1", "reading the file now"),
		toolCall("c1", "read_file", params, types.SourceLive),
		toolResult("r1", "c1", true, "package main", types.SourceLive),
	}
	persisted := []*types.Event{
		message("rec-1#0", "reading the file"),
		toolCall("c1", "read_file", params, types.SourcePersisted),
		toolResult("result:c1", "c1", true, "package main", types.SourcePersisted),
	}

	result := Compare("s1", live, persisted)
	require.True(t, result.Clean(), "discrepancies: %+v", result.Discrepancies)
	require.Equal(t, 2, result.TotalLive)
	require.Equal(t, 2, result.TotalPersisted)
	require.Equal(t, 2, result.Matched)
	require.Zero(t, result.UnmatchedLive)
	require.Zero(t, result.UnmatchedPersisted)
}

func TestCompareIgnoresMessageDifferences(t *testing.T) {
	live := []*types.Event{message("m1", "one long streamed message")}
	persisted := []*types.Event{
		message("rec#0", "one long"),
		message("rec#1", "streamed message"),
	}
	result := Compare("s1", live, persisted)
	require.True(t, result.Clean())
	require.Zero(t, result.TotalLive)
	require.Zero(t, result.TotalPersisted)
}

func TestCompareFlagsNameMismatch(t *testing.T) {
	live := []*types.Event{toolCall("c1", "read_file", nil, types.SourceLive)}
	persisted := []*types.Event{toolCall("c1", "write_file", nil, types.SourcePersisted)}

	result := Compare("s1", live, persisted)
	require.Len(t, result.Discrepancies, 1)
	require.Equal(t, types.DiscrepancyNameMismatch, result.Discrepancies[0].Kind)
	require.Equal(t, 1, result.Matched)
}

func TestCompareFlagsParameterMismatch(t *testing.T) {
	live := []*types.Event{toolCall("c1", "bash", map[string]any{"cmd": "ls"}, types.SourceLive)}
	persisted := []*types.Event{toolCall("c1", "bash", map[string]any{"cmd": "ls -la"}, types.SourcePersisted)}

	result := Compare("s1", live, persisted)
	require.Len(t, result.Discrepancies, 1)
	d := result.Discrepancies[0]
	require.Equal(t, types.DiscrepancyParameterMismatch, d.Kind)
	require.Contains(t, d.Detail, "live")
	require.Contains(t, d.Detail, "persisted")
}

func TestCompareParamsAcrossDecodePaths(t *testing.T) {
	// Live params decode as float64, persisted may carry int. The two
	// must still compare equal structurally.
	live := []*types.Event{toolCall("c1", "bash", map[string]any{"timeout": float64(30)}, types.SourceLive)}
	persisted := []*types.Event{toolCall("c1", "bash", map[string]any{"timeout": 30}, types.SourcePersisted)}

	result := Compare("s1", live, persisted)
	require.True(t, result.Clean(), "discrepancies: %+v", result.Discrepancies)
}

func TestCompareFlagsSuccessAndContentMismatch(t *testing.T) {
	live := []*types.Event{toolResult("r1", "c1", true, "ok", types.SourceLive)}
	persisted := []*types.Event{toolResult("result:c1", "c1", false, "boom", types.SourcePersisted)}

	result := Compare("s1", live, persisted)
	require.Len(t, result.Discrepancies, 2)
	kinds := []types.DiscrepancyKind{result.Discrepancies[0].Kind, result.Discrepancies[1].Kind}
	require.Contains(t, kinds, types.DiscrepancySuccessMismatch)
	require.Contains(t, kinds, types.DiscrepancyContentMismatch)
}

func TestCompareMissingCounterparts(t *testing.T) {
	live := []*types.Event{toolCall("live-only", "bash", nil, types.SourceLive)}
	persisted := []*types.Event{toolCall("persisted-only", "bash", nil, types.SourcePersisted)}

	result := Compare("s1", live, persisted)
	require.Len(t, result.Discrepancies, 2)
	require.Equal(t, 1, result.UnmatchedLive)
	require.Equal(t, 1, result.UnmatchedPersisted)
	require.Zero(t, result.Matched)
	for _, d := range result.Discrepancies {
		require.Equal(t, types.DiscrepancyMissingCounterpart, d.Kind)
	}
}

// Swapping the inputs must flag the same findings from the other side.
func TestCompareSymmetry(t *testing.T) {
	live := []*types.Event{
		toolCall("c1", "bash", map[string]any{"cmd": "ls"}, types.SourceLive),
		toolCall("c2", "read_file", nil, types.SourceLive),
	}
	persisted := []*types.Event{
		toolCall("c1", "bash", map[string]any{"cmd": "ls"}, types.SourcePersisted),
	}

	forward := Compare("s1", live, persisted)
	backward := Compare("s1", persisted, live)

	require.Len(t, forward.Discrepancies, 1)
	require.Len(t, backward.Discrepancies, 1)
	require.Equal(t, forward.UnmatchedLive, backward.UnmatchedPersisted)
	require.Equal(t, forward.Matched, backward.Matched)
}

func TestCompareDeterministicOrder(t *testing.T) {
	live := []*types.Event{
		toolCall("z", "bash", nil, types.SourceLive),
		toolCall("a", "bash", nil, types.SourceLive),
		toolCall("m", "bash", nil, types.SourceLive),
	}
	result := Compare("s1", live, nil)

	var order []string
	for _, d := range result.Discrepancies {
		order = append(order, d.Live.ID)
	}
	require.Equal(t, []string{"a", "m", "z"}, order)
}

func TestCompareDoesNotMutateInputs(t *testing.T) {
	live := []*types.Event{toolCall("c1", "bash", map[string]any{"cmd": "ls"}, types.SourceLive)}
	persisted := []*types.Event{toolCall("c1", "bash", map[string]any{"cmd": "ls"}, types.SourcePersisted)}

	_ = Compare("s1", live, persisted)
	require.Equal(t, "ls", live[0].ToolCall.Params["cmd"])
	require.Equal(t, "bash", persisted[0].ToolCall.Name)
}
