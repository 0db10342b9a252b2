package types

import "time"

type EventKind string

const (
	EventKindMessage    EventKind = "message"
	EventKindToolCall   EventKind = "tool_call"
	EventKindToolResult EventKind = "tool_result"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Source string

const (
	SourceLive      Source = "live"
	SourcePersisted Source = "persisted"
)

// Event is the canonical, source-agnostic representation of one
// conversational happening. Exactly one of Message, ToolCall, ToolResult
// is set, matching Kind. ID is the logical identifier: streamed message
// deltas share the id of the message they belong to, so that deltas
// merge instead of duplicating.
type Event struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Kind      EventKind `json:"kind"`
	Role      Role      `json:"role,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	// Arrival is the order the event reached the store. It breaks
	// timestamp ties for display and replay.
	Arrival int    `json:"arrival,omitempty"`
	Source  Source `json:"source"`

	Message    *MessagePayload    `json:"message,omitempty"`
	ToolCall   *ToolCallPayload   `json:"tool_call,omitempty"`
	ToolResult *ToolResultPayload `json:"tool_result,omitempty"`
}

type MessagePayload struct {
	Content string `json:"content"`
	// Partial is true while more deltas are expected for this message.
	Partial bool `json:"partial"`
}

type ToolCallPayload struct {
	Name   string         `json:"name"`
	Params map[string]any `json:"params,omitempty"`
}

type ToolResultPayload struct {
	CallID  string `json:"call_id"`
	Success bool   `json:"success"`
	Result  any    `json:"result,omitempty"`
	Error   string `json:"error,omitempty"`
	// Encoding records which historical result encoding the parser
	// chain matched: "block-array", "json-string", or "plain-string".
	Encoding string `json:"encoding,omitempty"`
}

func CloneEvent(ev *Event) *Event {
	if ev == nil {
		return nil
	}
	out := *ev
	if ev.Message != nil {
		msg := *ev.Message
		out.Message = &msg
	}
	if ev.ToolCall != nil {
		call := *ev.ToolCall
		if len(ev.ToolCall.Params) > 0 {
			call.Params = make(map[string]any, len(ev.ToolCall.Params))
			for k, v := range ev.ToolCall.Params {
				call.Params[k] = v
			}
		}
		out.ToolCall = &call
	}
	if ev.ToolResult != nil {
		result := *ev.ToolResult
		out.ToolResult = &result
	}
	return &out
}
