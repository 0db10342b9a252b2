// Package app is the terminal viewer: a session timeline list, a
// rendered detail pane, the verification report panel and replay
// controls. It is a thin consumer of the engine; all merge, verify and
// replay semantics live in the internal packages it calls.
package app

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/v2/viewport"
	tea "github.com/charmbracelet/bubbletea/v2"

	"seam/internal/replay"
	"seam/internal/types"
)

const (
	minViewportWidth = 20
	minListHeight    = 6
	statusReserved   = 2
)

// Engine is the surface the viewer drives. Satisfied by
// *session.Manager.
type Engine interface {
	Apply(env types.StreamEnvelope)
	Subscribe(sessionID string, fn func(sessionID string)) func()
	Flush(sessionID string)
	Timeline(sessionID string, source types.Source) []*types.Event
	State(sessionID string) types.LivenessState
	LoadPersisted(ctx context.Context, sessionID string) (int, error)
	Verify(ctx context.Context, sessionID string) (*types.VerifyResult, error)
	NewReplay(ctx context.Context, sessionID string, mode types.ReplayMode, hooks replay.Hooks) (*replay.Player, error)
	SubscribeLiveness(fn func(sessionID string, state types.LivenessState))
}

// StreamOpener opens the live envelope stream for a session. Satisfied
// by (*client.Client).EventStream.
type StreamOpener func(ctx context.Context, sessionID string) (<-chan types.StreamEnvelope, func(), error)

type paneMode int

const (
	paneTimeline paneMode = iota
	paneVerify
	paneReplay
)

type timelineUpdatedMsg struct{ sessionID string }

type livenessMsg struct {
	sessionID string
	state     types.LivenessState
}

type verifyDoneMsg struct {
	report string
	err    error
}

type replayEventMsg struct {
	source types.Source
	event  types.ReplayEvent
}

type replayResetMsg struct{}

type replayFinishedMsg struct{}

type Model struct {
	engine    Engine
	sessionID string
	ctx       context.Context

	pane     paneMode
	source   types.Source
	events   []*types.Event
	selected int
	follow   bool

	detail    viewport.Model
	panel     viewport.Model
	replayCtl *ReplayController

	liveness types.LivenessState
	status   string
	width    int
	height   int
	send     func(tea.Msg)
}

func NewModel(ctx context.Context, engine Engine, sessionID string) *Model {
	detail := viewport.New(viewport.WithWidth(minViewportWidth), viewport.WithHeight(minListHeight))
	panel := viewport.New(viewport.WithWidth(minViewportWidth), viewport.WithHeight(minListHeight))
	return &Model{
		engine:    engine,
		sessionID: sessionID,
		ctx:       ctx,
		pane:      paneTimeline,
		source:    types.SourceLive,
		follow:    true,
		detail:    detail,
		panel:     panel,
		liveness:  types.LivenessIdle,
	}
}

// Run wires the live stream into the engine, pumps engine batch
// notifications into the program and blocks until the viewer exits.
func Run(ctx context.Context, engine Engine, open StreamOpener, sessionID string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	model := NewModel(ctx, engine, sessionID)
	p := tea.NewProgram(model, tea.WithAltScreen())
	model.send = p.Send

	unsubscribe := engine.Subscribe(sessionID, func(id string) {
		p.Send(timelineUpdatedMsg{sessionID: id})
	})
	defer unsubscribe()
	engine.SubscribeLiveness(func(id string, state types.LivenessState) {
		p.Send(livenessMsg{sessionID: id, state: state})
	})

	if open != nil {
		envs, stop, err := open(ctx, sessionID)
		if err != nil {
			return fmt.Errorf("open event stream: %w", err)
		}
		defer stop()
		go func() {
			for env := range envs {
				engine.Apply(env)
			}
		}()
	}

	_, err := p.Run()
	return err
}

func (m *Model) Init() tea.Cmd {
	return func() tea.Msg {
		return timelineUpdatedMsg{sessionID: m.sessionID}
	}
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		return m, nil

	case timelineUpdatedMsg:
		if msg.sessionID != m.sessionID {
			return m, nil
		}
		m.reload()
		return m, nil

	case livenessMsg:
		if msg.sessionID == m.sessionID {
			m.liveness = msg.state
		}
		return m, nil

	case verifyDoneMsg:
		if msg.err != nil {
			m.status = "verify error: " + msg.err.Error()
			return m, nil
		}
		m.pane = paneVerify
		m.panel.SetContent(msg.report)
		m.status = "verification complete"
		return m, nil

	case replayEventMsg:
		if m.replayCtl != nil {
			m.replayCtl.Append(msg.source, msg.event)
			m.panel.SetContent(m.replayCtl.Render(m.panelWidth()))
			m.panel.GotoBottom()
		}
		return m, nil

	case replayResetMsg:
		if m.replayCtl != nil {
			m.replayCtl.Clear()
			m.panel.SetContent(m.replayCtl.Render(m.panelWidth()))
		}
		return m, nil

	case replayFinishedMsg:
		m.status = "replay finished"
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.pane == paneReplay && m.replayCtl != nil {
		if handled := m.replayCtl.HandleKey(msg); handled {
			m.status = m.replayCtl.Status()
			return m, nil
		}
	}

	switch msg.String() {
	case "q", "ctrl+c":
		m.closeReplay()
		return m, tea.Quit

	case "esc":
		if m.pane != paneTimeline {
			m.closeReplay()
			m.pane = paneTimeline
			m.status = ""
		}
		return m, nil

	case "tab":
		if m.source == types.SourceLive {
			m.source = types.SourcePersisted
			if len(m.engine.Timeline(m.sessionID, types.SourcePersisted)) == 0 {
				if _, err := m.engine.LoadPersisted(m.ctx, m.sessionID); err != nil {
					m.status = "load persisted: " + err.Error()
				}
			}
		} else {
			m.source = types.SourceLive
		}
		m.reload()
		return m, nil

	case "up", "k":
		m.moveSelection(-1)
		return m, nil

	case "down", "j":
		m.moveSelection(1)
		return m, nil

	case "g":
		m.setSelection(0)
		return m, nil

	case "G":
		m.setSelection(len(m.events) - 1)
		return m, nil

	case "v":
		return m, m.verifyCmd()

	case "r":
		m.startReplay()
		return m, nil

	case "c":
		m.copySelected()
		return m, nil
	}
	return m, nil
}

func (m *Model) verifyCmd() tea.Cmd {
	engine, ctx, sessionID := m.engine, m.ctx, m.sessionID
	return func() tea.Msg {
		result, err := engine.Verify(ctx, sessionID)
		if err != nil {
			return verifyDoneMsg{err: err}
		}
		return verifyDoneMsg{report: renderVerifyPanel(result)}
	}
}

func (m *Model) startReplay() {
	m.closeReplay()
	send := m.send
	if send == nil {
		send = func(tea.Msg) {}
	}
	ctl, err := NewReplayController(m.ctx, m.engine, m.sessionID, send)
	if err != nil {
		m.status = "replay error: " + err.Error()
		return
	}
	m.replayCtl = ctl
	m.pane = paneReplay
	m.panel.SetContent(ctl.Render(m.panelWidth()))
	m.status = ctl.Status()
}

func (m *Model) closeReplay() {
	if m.replayCtl != nil {
		m.replayCtl.Close()
		m.replayCtl = nil
	}
}

func (m *Model) copySelected() {
	ev := m.selectedEvent()
	if ev == nil {
		m.status = "nothing selected"
		return
	}
	raw, err := json.MarshalIndent(ev, "", "  ")
	if err != nil {
		m.status = "copy failed: " + err.Error()
		return
	}
	if err := copyTextToClipboard(string(raw)); err != nil {
		m.status = "copy failed: " + err.Error()
		return
	}
	m.status = "event copied"
}

func (m *Model) reload() {
	m.events = m.engine.Timeline(m.sessionID, m.source)
	m.liveness = m.engine.State(m.sessionID)
	if m.follow {
		m.selected = len(m.events) - 1
	}
	if m.selected >= len(m.events) {
		m.selected = len(m.events) - 1
	}
	if m.selected < 0 {
		m.selected = 0
	}
	m.refreshDetail()
}

func (m *Model) moveSelection(delta int) {
	m.setSelection(m.selected + delta)
}

func (m *Model) setSelection(i int) {
	if len(m.events) == 0 {
		return
	}
	if i < 0 {
		i = 0
	}
	if i >= len(m.events) {
		i = len(m.events) - 1
	}
	m.selected = i
	m.follow = i == len(m.events)-1
	m.refreshDetail()
}

func (m *Model) selectedEvent() *types.Event {
	if m.selected < 0 || m.selected >= len(m.events) {
		return nil
	}
	return m.events[m.selected]
}

func (m *Model) refreshDetail() {
	ev := m.selectedEvent()
	if ev == nil {
		m.detail.SetContent("No events.")
		return
	}
	m.detail.SetContent(renderEventDetail(ev, m.panelWidth()))
	m.detail.GotoTop()
}

func (m *Model) resize(width, height int) {
	m.width = width
	m.height = height
	paneWidth := m.panelWidth()
	paneHeight := max(minListHeight, height-m.listHeight()-statusReserved)
	m.detail.SetWidth(paneWidth)
	m.detail.SetHeight(paneHeight)
	m.panel.SetWidth(paneWidth)
	m.panel.SetHeight(max(minListHeight, height-statusReserved-1))
	m.refreshDetail()
}

func (m *Model) panelWidth() int {
	return max(minViewportWidth, m.width-2)
}

func (m *Model) listHeight() int {
	if m.height <= 0 {
		return minListHeight
	}
	return max(minListHeight, (m.height-statusReserved)/2)
}

func (m *Model) View() string {
	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString("\n")

	switch m.pane {
	case paneVerify, paneReplay:
		b.WriteString(m.panel.View())
	default:
		b.WriteString(m.renderList())
		b.WriteString("\n")
		b.WriteString(m.detail.View())
	}

	b.WriteString("\n")
	b.WriteString(m.renderStatusLine())
	return b.String()
}
