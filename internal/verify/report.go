package verify

import (
	"fmt"
	"strings"

	"seam/internal/types"
)

// RenderReport formats a verification result for terminal output. The
// layout is stable so it can be golden-tested.
func RenderReport(result *types.VerifyResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "verification report: session %s\n", result.SessionID)
	fmt.Fprintf(&b, "  live tool events:      %d\n", result.TotalLive)
	fmt.Fprintf(&b, "  persisted tool events: %d\n", result.TotalPersisted)
	fmt.Fprintf(&b, "  matched:               %d\n", result.Matched)
	fmt.Fprintf(&b, "  unmatched live:        %d\n", result.UnmatchedLive)
	fmt.Fprintf(&b, "  unmatched persisted:   %d\n", result.UnmatchedPersisted)
	b.WriteString("\n")

	if result.Clean() {
		b.WriteString("sources agree: no discrepancies\n")
		return b.String()
	}

	fmt.Fprintf(&b, "%d discrepancies:\n", len(result.Discrepancies))
	for i, d := range result.Discrepancies {
		fmt.Fprintf(&b, "  %d. [%s] %s\n", i+1, d.Kind, d.Description)
	}
	return b.String()
}
