package app

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss/v2"
	xansi "github.com/charmbracelet/x/ansi"
	"github.com/mattn/go-runewidth"

	"seam/internal/types"
	"seam/internal/verify"
)

var (
	headerStyle   = lipgloss.NewStyle().Bold(true)
	selectedStyle = lipgloss.NewStyle().Reverse(true)
	dimStyle      = lipgloss.NewStyle().Faint(true)
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
)

const (
	timeColumnWidth = 12
	kindColumnWidth = 11
	roleColumnWidth = 9
)

func (m *Model) renderHeader() string {
	state := "idle"
	if m.liveness == types.LivenessAwaiting {
		state = "awaiting"
	}
	title := fmt.Sprintf("seam  %s  [%s]  %s", m.sessionID, m.source, state)
	return headerStyle.Render(xansi.Truncate(title, m.panelWidth(), "…"))
}

func (m *Model) renderList() string {
	height := m.listHeight()
	if len(m.events) == 0 {
		return dimStyle.Render("No events.") + strings.Repeat("\n", height-1)
	}

	top := 0
	if m.selected >= height {
		top = m.selected - height + 1
	}
	rows := make([]string, 0, height)
	for i := top; i < len(m.events) && len(rows) < height; i++ {
		row := renderEventRow(m.events[i], m.panelWidth())
		if i == m.selected {
			row = selectedStyle.Render(row)
		}
		rows = append(rows, row)
	}
	for len(rows) < height {
		rows = append(rows, "")
	}
	return strings.Join(rows, "\n")
}

func renderEventRow(ev *types.Event, width int) string {
	ts := ev.Timestamp.Format("15:04:05.000")
	kind := runewidth.FillRight(string(ev.Kind), kindColumnWidth)
	role := runewidth.FillRight(string(ev.Role), roleColumnWidth)
	summary := eventSummary(ev)
	row := fmt.Sprintf("%s  %s %s %s", ts, kind, role, summary)
	return xansi.Truncate(row, width, "…")
}

func eventSummary(ev *types.Event) string {
	switch {
	case ev.Message != nil:
		text := strings.ReplaceAll(ev.Message.Content, "\n", " ")
		if ev.Message.Partial {
			return text + " ▌"
		}
		return text
	case ev.ToolCall != nil:
		return ev.ToolCall.Name + paramsPreview(ev.ToolCall.Params)
	case ev.ToolResult != nil:
		if !ev.ToolResult.Success {
			return "error: " + ev.ToolResult.Error
		}
		return resultPreview(ev.ToolResult.Result)
	}
	return ""
}

func paramsPreview(params map[string]any) string {
	if len(params) == 0 {
		return "()"
	}
	raw, err := json.Marshal(params)
	if err != nil {
		return "(…)"
	}
	return "(" + string(raw) + ")"
}

func resultPreview(result any) string {
	switch v := result.(type) {
	case string:
		return strings.ReplaceAll(v, "\n", " ")
	case nil:
		return ""
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(raw)
	}
}

func renderEventDetail(ev *types.Event, width int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s  %s  %s  %s\n", ev.ID, ev.Kind, ev.Role, ev.Timestamp.Format("15:04:05.000"))

	switch {
	case ev.Message != nil:
		b.WriteString(renderMarkdown(ev.Message.Content, width))
		if ev.Message.Partial {
			b.WriteString("\n")
			b.WriteString(dimStyle.Render("(streaming)"))
		}
	case ev.ToolCall != nil:
		fmt.Fprintf(&b, "tool: %s\n", ev.ToolCall.Name)
		b.WriteString(indentJSON(ev.ToolCall.Params))
	case ev.ToolResult != nil:
		fmt.Fprintf(&b, "call: %s  encoding: %s\n", ev.ToolResult.CallID, ev.ToolResult.Encoding)
		if !ev.ToolResult.Success {
			b.WriteString(errorStyle.Render("error: "+ev.ToolResult.Error) + "\n")
		}
		b.WriteString(indentJSON(ev.ToolResult.Result))
	}
	return b.String()
}

func indentJSON(value any) string {
	raw, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", value)
	}
	return string(raw)
}

func renderVerifyPanel(result *types.VerifyResult) string {
	report := verify.RenderReport(result)
	if result.Clean() {
		return report
	}
	lines := strings.Split(report, "\n")
	for i, line := range lines {
		if strings.Contains(line, "[") {
			lines[i] = errorStyle.Render(line)
		}
	}
	return strings.Join(lines, "\n")
}

func (m *Model) renderStatusLine() string {
	hints := "q quit · tab source · v verify · r replay · c copy"
	if m.pane == paneReplay {
		hints = "space play/pause · ←/→ seek · +/- speed · m mode · esc back"
	}
	line := hints
	if m.status != "" {
		line = m.status + "  " + dimStyle.Render(hints)
	} else {
		line = dimStyle.Render(hints)
	}
	return xansi.Truncate(line, m.panelWidth(), "…")
}
