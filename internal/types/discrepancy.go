package types

type DiscrepancyKind string

const (
	DiscrepancyMissingCounterpart DiscrepancyKind = "missing-counterpart"
	DiscrepancyNameMismatch       DiscrepancyKind = "name-mismatch"
	DiscrepancyParameterMismatch  DiscrepancyKind = "parameter-mismatch"
	DiscrepancySuccessMismatch    DiscrepancyKind = "success-mismatch"
	DiscrepancyContentMismatch    DiscrepancyKind = "content-mismatch"
)

// Discrepancy is one detected difference between the live-sourced and
// persisted-sourced event sets. Either event reference may be nil for
// missing-counterpart findings.
type Discrepancy struct {
	Kind        DiscrepancyKind `json:"kind"`
	Live        *Event          `json:"live,omitempty"`
	Persisted   *Event          `json:"persisted,omitempty"`
	Description string          `json:"description"`
	Detail      map[string]any  `json:"detail,omitempty"`
}

// VerifyResult is the output of one equivalence check over the two
// sources of a session.
type VerifyResult struct {
	SessionID          string        `json:"session_id"`
	Discrepancies      []Discrepancy `json:"discrepancies"`
	TotalLive          int           `json:"total_live"`
	TotalPersisted     int           `json:"total_persisted"`
	Matched            int           `json:"matched"`
	UnmatchedLive      int           `json:"unmatched_live"`
	UnmatchedPersisted int           `json:"unmatched_persisted"`
}

func (r *VerifyResult) Clean() bool {
	return r != nil && len(r.Discrepancies) == 0
}
