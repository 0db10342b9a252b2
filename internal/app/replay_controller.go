package app

import (
	"context"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea/v2"
	xansi "github.com/charmbracelet/x/ansi"

	"seam/internal/replay"
	"seam/internal/types"
)

// ReplayController owns one replay player and the two emission buffers
// it fills. Player hooks fire on timer goroutines, so they post
// messages back to the program loop; buffer mutation happens only in
// Update.
type ReplayController struct {
	player *replay.Player

	liveBuffer      []types.ReplayEvent
	persistedBuffer []types.ReplayEvent
}

func NewReplayController(ctx context.Context, engine Engine, sessionID string, send func(tea.Msg)) (*ReplayController, error) {
	c := &ReplayController{}
	hooks := replay.Hooks{
		OnEvent: func(source types.Source, ev types.ReplayEvent) {
			send(replayEventMsg{source: source, event: ev})
		},
		OnReset: func() {
			send(replayResetMsg{})
		},
		OnFinished: func() {
			send(replayFinishedMsg{})
		},
	}
	player, err := engine.NewReplay(ctx, sessionID, types.ReplayModeBoth, hooks)
	if err != nil {
		return nil, err
	}
	c.player = player
	return c, nil
}

func (c *ReplayController) Append(source types.Source, ev types.ReplayEvent) {
	if source == types.SourcePersisted {
		c.persistedBuffer = append(c.persistedBuffer, ev)
		return
	}
	c.liveBuffer = append(c.liveBuffer, ev)
}

func (c *ReplayController) Clear() {
	c.liveBuffer = nil
	c.persistedBuffer = nil
}

func (c *ReplayController) Close() {
	if c.player != nil {
		c.player.Close()
	}
}

// HandleKey consumes replay control keys; anything else falls through
// to the model.
func (c *ReplayController) HandleKey(msg tea.KeyMsg) bool {
	switch msg.String() {
	case " ", "space":
		if c.player.Playing() {
			c.player.Pause()
		} else {
			c.player.Play()
		}
		return true
	case "left":
		c.player.SeekTo(c.player.Index() - 1)
		return true
	case "right":
		c.player.SeekTo(c.player.Index() + 1)
		return true
	case "0":
		c.player.Reset()
		return true
	case "+", "=":
		c.player.SetSpeed(c.player.Speed() * 2)
		return true
	case "-":
		c.player.SetSpeed(c.player.Speed() / 2)
		return true
	case "m":
		c.player.SetMode(nextMode(c.player.Mode()))
		return true
	}
	return false
}

func nextMode(mode types.ReplayMode) types.ReplayMode {
	switch mode {
	case types.ReplayModeBoth:
		return types.ReplayModeLiveOnly
	case types.ReplayModeLiveOnly:
		return types.ReplayModePersistedOnly
	default:
		return types.ReplayModeBoth
	}
}

func (c *ReplayController) Status() string {
	state := "paused"
	if c.player.Playing() {
		state = "playing"
	}
	return fmt.Sprintf("replay %s  %d/%d  %.2gx  %s",
		state, c.player.Index(), c.player.Len(), c.player.Speed(), c.player.Mode())
}

func (c *ReplayController) Render(width int) string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("live"))
	b.WriteString("\n")
	b.WriteString(renderBuffer(c.liveBuffer, width))
	b.WriteString("\n")
	b.WriteString(headerStyle.Render("persisted"))
	b.WriteString("\n")
	b.WriteString(renderBuffer(c.persistedBuffer, width))
	return b.String()
}

func renderBuffer(buffer []types.ReplayEvent, width int) string {
	if len(buffer) == 0 {
		return dimStyle.Render("(empty)")
	}
	rows := make([]string, 0, len(buffer))
	for _, rev := range buffer {
		row := fmt.Sprintf("%5dms  %s", rev.RelativeMs, eventSummary(rev.Event))
		rows = append(rows, xansi.Truncate(row, width, "…"))
	}
	return strings.Join(rows, "\n")
}
