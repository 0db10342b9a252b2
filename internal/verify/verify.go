// Package verify proves or disproves that the live-sourced and
// persisted-sourced event sets for a session describe the same tool
// activity. Messages are excluded: the two sources legitimately split
// and merge text at different granularity.
package verify

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"

	"seam/internal/types"
)

// Compare is pure: it never mutates either input collection.
func Compare(sessionID string, live, persisted []*types.Event) *types.VerifyResult {
	result := &types.VerifyResult{SessionID: sessionID}

	liveCalls, liveResults := partition(live)
	persistedCalls, persistedResults := partition(persisted)
	result.TotalLive = len(liveCalls) + len(liveResults)
	result.TotalPersisted = len(persistedCalls) + len(persistedResults)

	compareCalls(result, liveCalls, persistedCalls)
	compareResults(result, liveResults, persistedResults)

	sort.SliceStable(result.Discrepancies, func(i, j int) bool {
		return discrepancyKey(result.Discrepancies[i]) < discrepancyKey(result.Discrepancies[j])
	})
	return result
}

func partition(events []*types.Event) (calls, results map[string]*types.Event) {
	calls = map[string]*types.Event{}
	results = map[string]*types.Event{}
	for _, ev := range events {
		switch {
		case ev == nil:
		case ev.Kind == types.EventKindToolCall && ev.ToolCall != nil:
			calls[ev.ID] = ev
		case ev.Kind == types.EventKindToolResult && ev.ToolResult != nil:
			results[ev.ToolResult.CallID] = ev
		}
	}
	return calls, results
}

func compareCalls(result *types.VerifyResult, live, persisted map[string]*types.Event) {
	for _, id := range sortedKeys(live) {
		liveCall := live[id]
		persistedCall, ok := persisted[id]
		if !ok {
			result.UnmatchedLive++
			result.Discrepancies = append(result.Discrepancies, types.Discrepancy{
				Kind:        types.DiscrepancyMissingCounterpart,
				Live:        liveCall,
				Description: fmt.Sprintf("tool call %s has no persisted counterpart", id),
			})
			continue
		}
		result.Matched++
		if liveCall.ToolCall.Name != persistedCall.ToolCall.Name {
			result.Discrepancies = append(result.Discrepancies, types.Discrepancy{
				Kind:        types.DiscrepancyNameMismatch,
				Live:        liveCall,
				Persisted:   persistedCall,
				Description: fmt.Sprintf("tool call %s name differs: live=%q persisted=%q", id, liveCall.ToolCall.Name, persistedCall.ToolCall.Name),
			})
		}
		if !reflect.DeepEqual(normalizeParams(liveCall.ToolCall.Params), normalizeParams(persistedCall.ToolCall.Params)) {
			result.Discrepancies = append(result.Discrepancies, types.Discrepancy{
				Kind:        types.DiscrepancyParameterMismatch,
				Live:        liveCall,
				Persisted:   persistedCall,
				Description: fmt.Sprintf("tool call %s parameters differ", id),
				Detail: map[string]any{
					"live":      liveCall.ToolCall.Params,
					"persisted": persistedCall.ToolCall.Params,
				},
			})
		}
	}
	for _, id := range sortedKeys(persisted) {
		if _, ok := live[id]; ok {
			continue
		}
		result.UnmatchedPersisted++
		result.Discrepancies = append(result.Discrepancies, types.Discrepancy{
			Kind:        types.DiscrepancyMissingCounterpart,
			Persisted:   persisted[id],
			Description: fmt.Sprintf("tool call %s has no live counterpart", id),
		})
	}
}

func compareResults(result *types.VerifyResult, live, persisted map[string]*types.Event) {
	for _, callID := range sortedKeys(live) {
		liveResult := live[callID]
		persistedResult, ok := persisted[callID]
		if !ok {
			result.UnmatchedLive++
			result.Discrepancies = append(result.Discrepancies, types.Discrepancy{
				Kind:        types.DiscrepancyMissingCounterpart,
				Live:        liveResult,
				Description: fmt.Sprintf("tool result for call %s has no persisted counterpart", callID),
			})
			continue
		}
		result.Matched++
		if liveResult.ToolResult.Success != persistedResult.ToolResult.Success {
			result.Discrepancies = append(result.Discrepancies, types.Discrepancy{
				Kind:        types.DiscrepancySuccessMismatch,
				Live:        liveResult,
				Persisted:   persistedResult,
				Description: fmt.Sprintf("tool result for call %s success differs: live=%t persisted=%t", callID, liveResult.ToolResult.Success, persistedResult.ToolResult.Success),
			})
		}
		liveValue := canonical(liveResult.ToolResult.Result)
		persistedValue := canonical(persistedResult.ToolResult.Result)
		if liveValue != persistedValue {
			result.Discrepancies = append(result.Discrepancies, types.Discrepancy{
				Kind:        types.DiscrepancyContentMismatch,
				Live:        liveResult,
				Persisted:   persistedResult,
				Description: fmt.Sprintf("tool result for call %s content differs", callID),
				Detail: map[string]any{
					"live":      liveResult.ToolResult.Result,
					"persisted": persistedResult.ToolResult.Result,
				},
			})
		}
	}
	for _, callID := range sortedKeys(persisted) {
		if _, ok := live[callID]; ok {
			continue
		}
		result.UnmatchedPersisted++
		result.Discrepancies = append(result.Discrepancies, types.Discrepancy{
			Kind:        types.DiscrepancyMissingCounterpart,
			Persisted:   persisted[callID],
			Description: fmt.Sprintf("tool result for call %s has no live counterpart", callID),
		})
	}
}

// canonical serializes a result value for comparison. JSON keys are
// emitted in sorted order by encoding/json, so structurally equal maps
// compare equal.
func canonical(value any) string {
	if value == nil {
		return "null"
	}
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Sprintf("%v", value)
	}
	return string(data)
}

// normalizeParams round-trips params through JSON so numeric types from
// the two decode paths (e.g. int vs float64) compare structurally.
func normalizeParams(params map[string]any) map[string]any {
	if len(params) == 0 {
		return nil
	}
	data, err := json.Marshal(params)
	if err != nil {
		return params
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return params
	}
	return out
}

func sortedKeys(m map[string]*types.Event) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func discrepancyKey(d types.Discrepancy) string {
	id := ""
	if d.Live != nil {
		id = d.Live.ID
	} else if d.Persisted != nil {
		id = d.Persisted.ID
	}
	return id + "/" + string(d.Kind)
}
