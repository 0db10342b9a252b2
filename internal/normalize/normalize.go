// Package normalize converts the two raw input shapes — live stream
// envelopes and persisted conversation records — into unified events.
package normalize

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"seam/internal/logging"
	"seam/internal/types"
)

type Normalizer struct {
	logger logging.Logger
}

func New(logger logging.Logger) *Normalizer {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Normalizer{logger: logger}
}

// FromEnvelope produces at most one event from a live envelope. Status
// and completion envelopes carry no user-visible payload and return nil;
// so does a chunk with an empty delta. Malformed envelopes are logged
// and skipped, never failing the batch.
func (n *Normalizer) FromEnvelope(env types.StreamEnvelope, arrival int, now time.Time) *types.Event {
	ts := env.TS
	if ts.IsZero() {
		ts = now
	}

	switch env.Type {
	case types.EnvelopeChunk:
		var data types.ChunkData
		if len(env.Data) > 0 {
			if err := json.Unmarshal(env.Data, &data); err != nil {
				n.skip(env, err)
				return nil
			}
		}
		if data.Delta == "" {
			return nil
		}
		id := strings.TrimSpace(env.MessageID)
		if id == "" {
			n.skip(env, errMissingMessageID)
			return nil
		}
		return &types.Event{
			ID:        id,
			SessionID: env.SessionID,
			Kind:      types.EventKindMessage,
			Role:      chunkRole(data.Role),
			Timestamp: ts,
			Arrival:   arrival,
			Source:    types.SourceLive,
			Message: &types.MessagePayload{
				Content: data.Delta,
				Partial: data.Streaming == nil || *data.Streaming,
			},
		}

	case types.EnvelopeToolCall:
		var data types.ToolCallData
		if err := json.Unmarshal(env.Data, &data); err != nil {
			n.skip(env, err)
			return nil
		}
		id := strings.TrimSpace(data.ID)
		if id == "" {
			id = strings.TrimSpace(env.MessageID)
		}
		if id == "" || data.Name == "" {
			n.skip(env, errMissingToolFields)
			return nil
		}
		return &types.Event{
			ID:        id,
			SessionID: env.SessionID,
			Kind:      types.EventKindToolCall,
			Role:      types.RoleAssistant,
			Timestamp: ts,
			Arrival:   arrival,
			Source:    types.SourceLive,
			ToolCall: &types.ToolCallPayload{
				Name:   data.Name,
				Params: data.Input,
			},
		}

	case types.EnvelopeToolResult:
		var data types.ToolResultData
		if err := json.Unmarshal(env.Data, &data); err != nil {
			n.skip(env, err)
			return nil
		}
		callID := strings.TrimSpace(data.ToolUseID)
		if callID == "" {
			n.skip(env, errMissingCallID)
			return nil
		}
		id := strings.TrimSpace(data.ID)
		if id == "" {
			id = "result:" + callID
		}
		parsed := parseToolResult(data.Content, data.IsError)
		return &types.Event{
			ID:        id,
			SessionID: env.SessionID,
			Kind:      types.EventKindToolResult,
			Timestamp: ts,
			Arrival:   arrival,
			Source:    types.SourceLive,
			ToolResult: &types.ToolResultPayload{
				CallID:   callID,
				Success:  parsed.success,
				Result:   parsed.result,
				Error:    parsed.errText,
				Encoding: parsed.encoding,
			},
		}

	case types.EnvelopeStatus, types.EnvelopeCompletion:
		// Liveness signals, handled by the stream engine.
		return nil

	default:
		n.logger.Warn("unknown envelope type skipped",
			logging.F("type", env.Type),
			logging.F("session_id", env.SessionID),
		)
		return nil
	}
}

// FromRecord explodes one persisted record into events, one per content
// block. Block timestamps are offset by one millisecond per block so
// intra-record order survives a timestamp sort. Unknown block types are
// logged and skipped.
func (n *Normalizer) FromRecord(rec types.Record, arrival int) []*types.Event {
	recordID := strings.TrimSpace(rec.ID)
	if recordID == "" {
		recordID = uuid.NewString()
	}
	role := recordRole(rec.Role)

	out := make([]*types.Event, 0, len(rec.Content))
	for i, block := range rec.Content {
		ts := rec.TS.Add(time.Duration(i) * time.Millisecond)
		ev := n.fromBlock(recordID, role, block, i)
		if ev == nil {
			continue
		}
		ev.Timestamp = ts
		ev.Arrival = arrival + i
		out = append(out, ev)
	}
	return out
}

func (n *Normalizer) fromBlock(recordID string, role types.Role, block types.Block, index int) *types.Event {
	switch block.Type {
	case types.BlockText:
		if block.Text == "" {
			return nil
		}
		return &types.Event{
			ID:     blockID(recordID, block.ID, index),
			Kind:   types.EventKindMessage,
			Role:   role,
			Source: types.SourcePersisted,
			Message: &types.MessagePayload{
				Content: block.Text,
				Partial: false,
			},
		}

	case types.BlockToolUse:
		if block.Name == "" {
			n.logger.Warn("tool_use block missing name skipped",
				logging.F("record_id", recordID),
				logging.F("index", index),
			)
			return nil
		}
		return &types.Event{
			ID:     blockID(recordID, block.ID, index),
			Kind:   types.EventKindToolCall,
			Role:   types.RoleAssistant,
			Source: types.SourcePersisted,
			ToolCall: &types.ToolCallPayload{
				Name:   block.Name,
				Params: block.Input,
			},
		}

	case types.BlockToolResult:
		callID := strings.TrimSpace(block.ToolUseID)
		if callID == "" {
			n.logger.Warn("tool_result block missing tool_use_id skipped",
				logging.F("record_id", recordID),
				logging.F("index", index),
			)
			return nil
		}
		id := strings.TrimSpace(block.ID)
		if id == "" {
			id = "result:" + callID
		}
		parsed := parseToolResult(block.Content, block.IsError)
		return &types.Event{
			ID:     id,
			Kind:   types.EventKindToolResult,
			Source: types.SourcePersisted,
			ToolResult: &types.ToolResultPayload{
				CallID:   callID,
				Success:  parsed.success,
				Result:   parsed.result,
				Error:    parsed.errText,
				Encoding: parsed.encoding,
			},
		}

	default:
		n.logger.Debug("unknown block type skipped",
			logging.F("record_id", recordID),
			logging.F("type", block.Type),
		)
		return nil
	}
}

func (n *Normalizer) skip(env types.StreamEnvelope, err error) {
	n.logger.Warn("malformed envelope skipped",
		logging.F("type", env.Type),
		logging.F("session_id", env.SessionID),
		logging.F("error", err),
	)
}

func blockID(recordID, explicit string, index int) string {
	if id := strings.TrimSpace(explicit); id != "" {
		return id
	}
	return recordID + "#" + strconv.Itoa(index)
}

func chunkRole(raw string) types.Role {
	if recordRole(raw) == types.RoleUser {
		return types.RoleUser
	}
	return types.RoleAssistant
}

func recordRole(raw string) types.Role {
	if strings.EqualFold(strings.TrimSpace(raw), string(types.RoleUser)) {
		return types.RoleUser
	}
	return types.RoleAssistant
}
