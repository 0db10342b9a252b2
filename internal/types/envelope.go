package types

import (
	"encoding/json"
	"time"
)

// Envelope type tags emitted by the live event source.
const (
	EnvelopeChunk      = "chunk"
	EnvelopeToolCall   = "tool_call"
	EnvelopeToolResult = "tool_result"
	EnvelopeStatus     = "status"
	EnvelopeCompletion = "completion"
)

// StreamEnvelope is one decoded push event from the live source. Data is
// a type-specific payload; MessageID carries the logical message id for
// chunk envelopes.
type StreamEnvelope struct {
	Type      string          `json:"type"`
	SessionID string          `json:"session_id"`
	MessageID string          `json:"message_id,omitempty"`
	TS        time.Time       `json:"ts,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// ChunkData is the payload of a chunk envelope. Streaming defaults to
// true when absent: a chunk is partial unless the source says otherwise.
type ChunkData struct {
	Delta     string `json:"delta"`
	Role      string `json:"role,omitempty"`
	Streaming *bool  `json:"streaming,omitempty"`
}

type ToolCallData struct {
	ID    string         `json:"id"`
	Name  string         `json:"name"`
	Input map[string]any `json:"input,omitempty"`
}

type ToolResultData struct {
	ID        string          `json:"id,omitempty"`
	ToolUseID string          `json:"tool_use_id"`
	Content   json.RawMessage `json:"content,omitempty"`
	IsError   *bool           `json:"is_error,omitempty"`
}

// StatusData signals session-level liveness without carrying content.
type StatusData struct {
	State string `json:"state"`
}

const (
	StatusStateActive = "active"
	StatusStateIdle   = "idle"
)
