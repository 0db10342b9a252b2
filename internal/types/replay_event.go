package types

type ReplayMode string

const (
	ReplayModeBoth          ReplayMode = "both"
	ReplayModeLiveOnly      ReplayMode = "live-only"
	ReplayModePersistedOnly ReplayMode = "persisted-only"
)

// ReplayEvent wraps an Event with its position in the prepared sequence
// and its offset from the first event. Computed once per replay
// preparation; immutable afterwards.
type ReplayEvent struct {
	Event         *Event `json:"event"`
	OriginalIndex int    `json:"original_index"`
	RelativeMs    int64  `json:"relative_ms"`
}

// Includes reports whether events from source pass the mode's filter.
func (m ReplayMode) Includes(source Source) bool {
	switch m {
	case ReplayModeLiveOnly:
		return source == SourceLive
	case ReplayModePersistedOnly:
		return source == SourcePersisted
	default:
		return true
	}
}
