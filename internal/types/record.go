package types

import (
	"encoding/json"
	"time"
)

// Record is one persisted conversation entry as returned by the history
// store: a role plus an ordered list of content blocks. A single record
// may normalize into several Events (one per block).
type Record struct {
	ID      string    `json:"id,omitempty"`
	Role    string    `json:"role"`
	TS      time.Time `json:"ts,omitempty"`
	Content []Block   `json:"content"`
}

// Block content types found in persisted records.
const (
	BlockText       = "text"
	BlockToolUse    = "tool_use"
	BlockToolResult = "tool_result"
)

// Block is one content block inside a persisted record. Content carries
// the raw tool_result payload, which historically appears in several
// encodings; the normalizer's parser chain resolves it.
type Block struct {
	Type      string          `json:"type"`
	Text      string          `json:"text,omitempty"`
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Input     map[string]any  `json:"input,omitempty"`
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   json.RawMessage `json:"content,omitempty"`
	IsError   *bool           `json:"is_error,omitempty"`
}
