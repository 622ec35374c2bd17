// Package tui is the terminal UI boundary (spec.md §1's "TUI widget
// tree, rendering, colors, and pixel-level layout" are explicitly
// out-of-scope collaborators): a thin tcell screen and event loop that
// renders the orchestrator's immutable Snapshot and translates key
// events into orchestrator intents. It never holds state of its own
// beyond the current input mode for a modal dialog's text field.
package tui

import (
	"fmt"

	"github.com/gdamore/tcell/v2"

	"github.com/warrengalyen/gateway/internal/gwlog"
	"github.com/warrengalyen/gateway/internal/orchestrator"
)

// inputMode tracks what a free-text dialog (mkdir, rename, save
// bookmark) is currently collecting, since tcell delivers keys one at
// a time and the orchestrator's Snapshot has no text-field state of
// its own (spec.md §9, "UI coupling": the orchestrator is event-in /
// state-out, so buffering partial text input is the TUI's job).
type inputMode int

const (
	inputNone inputMode = iota
	inputMkdir
	inputRename
	inputBookmarkName
)

// Screen owns the tcell.Screen and drives the event loop against an
// *orchestrator.Activity.
type Screen struct {
	screen tcell.Screen
	act    *orchestrator.Activity

	mode   inputMode
	buffer string

	quit bool
}

// New initializes a tcell screen in raw/alt-screen mode.
func New(act *orchestrator.Activity) (*Screen, error) {
	screen, err := tcell.NewScreen()
	if err != nil {
		return nil, err
	}
	if err := screen.Init(); err != nil {
		return nil, err
	}
	screen.EnableMouse()
	return &Screen{screen: screen, act: act}, nil
}

// Close tears the terminal back down to cooked mode.
func (s *Screen) Close() {
	s.screen.Fini()
}

// Run drives the poll/translate/render loop until the user quits (q or
// Ctrl-C); a disconnect does not end the loop.
func (s *Screen) Run() {
	s.render()
	for !s.quit {
		ev := s.screen.PollEvent()
		switch e := ev.(type) {
		case *tcell.EventResize:
			s.screen.Sync()
		case *tcell.EventKey:
			s.handleKey(e)
		}
		s.render()
	}
}

// pollAbort gives the orchestrator's transfer loop a zero-timeout
// input check between chunks, per spec.md §5: "after each chunk, the
// loop polls pending input with zero timeout so the abort key can be
// observed without waiting for the chunk boundary to be a
// time-boundary." tcell has no direct zero-timeout poll, so this drains
// whatever is already queued and looks for the dedicated abort key.
func (s *Screen) pollAbort() bool {
	for s.screen.HasPendingEvent() {
		ev := s.screen.PollEvent()
		if key, ok := ev.(*tcell.EventKey); ok && isAbortKey(key) {
			return true
		}
	}
	return false
}

func isAbortKey(e *tcell.EventKey) bool {
	return e.Key() == tcell.KeyEscape || e.Rune() == 'x'
}

func (s *Screen) handleKey(e *tcell.EventKey) {
	if s.mode != inputNone {
		s.handleTextInput(e)
		return
	}

	switch {
	case e.Key() == tcell.KeyCtrlC || e.Rune() == 'q':
		s.quit = true
	case e.Key() == tcell.KeyTab:
		s.toggleFocus()
	case e.Key() == tcell.KeyUp:
		s.act.MoveSelection(-1)
	case e.Key() == tcell.KeyDown:
		s.act.MoveSelection(1)
	case e.Key() == tcell.KeyEnter:
		s.enterSelected()
	case e.Rune() == 'u', e.Rune() == 'U':
		s.startTransfer()
	case e.Rune() == 'e', e.Rune() == 'E':
		s.edit()
	case e.Rune() == 'd', e.Rune() == 'D':
		s.act.Remove()
	case e.Rune() == 'm', e.Rune() == 'M':
		s.mode, s.buffer = inputMkdir, ""
	case e.Rune() == 'r', e.Rune() == 'R':
		s.mode, s.buffer = inputRename, ""
	case e.Rune() == 'b', e.Rune() == 'B':
		s.mode, s.buffer = inputBookmarkName, ""
	case e.Rune() == 'x', e.Rune() == 'X':
		s.act.Abort()
	}
}

func (s *Screen) toggleFocus() {
	if s.act.Focus() == orchestrator.PaneLocal {
		s.act.SetFocus(orchestrator.PaneRemote)
	} else {
		s.act.SetFocus(orchestrator.PaneLocal)
	}
}

func (s *Screen) enterSelected() {
	entry, ok := s.act.Selected()
	if !ok {
		return
	}
	if entry.IsDir() {
		s.act.EnterDirectory(entry.Name)
	}
}

func (s *Screen) startTransfer() {
	if s.act.InProgress() {
		return
	}
	err := s.act.StartTransfer(func(fraction float64) {
		s.render()
	}, s.pollAbort)
	if err != nil {
		gwlog.Errorf("transfer: %v", err)
	}
}

func (s *Screen) edit() {
	if err := s.act.EditSelected(nil); err != nil {
		gwlog.Errorf("edit: %v", err)
	}
}

func (s *Screen) handleTextInput(e *tcell.EventKey) {
	switch e.Key() {
	case tcell.KeyEnter:
		s.submitTextInput()
	case tcell.KeyEscape:
		s.mode, s.buffer = inputNone, ""
	case tcell.KeyBackspace, tcell.KeyBackspace2:
		if len(s.buffer) > 0 {
			s.buffer = s.buffer[:len(s.buffer)-1]
		}
	default:
		if e.Rune() != 0 {
			s.buffer += string(e.Rune())
		}
	}
}

func (s *Screen) submitTextInput() {
	mode, text := s.mode, s.buffer
	s.mode, s.buffer = inputNone, ""
	switch mode {
	case inputMkdir:
		s.act.Mkdir(text)
	case inputRename:
		s.act.Rename(text)
	case inputBookmarkName:
		if err := s.act.SaveBookmark(text, true); err != nil {
			gwlog.Errorf("save bookmark: %v", err)
		}
	}
}

// render paints the two panes, a status line, and the message log from
// the orchestrator's current snapshot. This is deliberately simple
// per spec.md §1 and §4.11: no colors, no scrolling viewport math
// beyond a naive top-N slice, no widget framework.
func (s *Screen) render() {
	snap := s.act.Snapshot()
	s.screen.Clear()
	w, h := s.screen.Size()
	half := w / 2

	drawText(s.screen, 0, 0, fmt.Sprintf("LOCAL  %s", snap.LocalPwd))
	drawText(s.screen, half+1, 0, fmt.Sprintf("%s  %s", protocolLabel(snap), snap.RemotePwd))

	paneHeight := h - 4
	drawPane(s.screen, 0, 1, half-1, paneHeight, snap.LocalEntries, snap.LocalSelect, snap.Focus == orchestrator.PaneLocal)
	drawPane(s.screen, half+1, 1, w-half-1, paneHeight, snap.RemoteEntries, snap.RemoteSelect, snap.Focus == orchestrator.PaneRemote)

	status := snap.State.String()
	if snap.Transfer != nil {
		status = fmt.Sprintf("%s  %s %.0f%%", status, snap.Transfer.Name, snap.Transfer.Fraction*100)
	}
	drawText(s.screen, 0, h-3, status)

	if s.mode != inputNone {
		drawText(s.screen, 0, h-2, "> "+s.buffer)
	} else if n := len(snap.Log); n > 0 {
		drawText(s.screen, 0, h-2, snap.Log[n-1])
	}

	s.screen.Show()
}

func protocolLabel(snap orchestrator.Snapshot) string {
	if !snap.Connected {
		return "REMOTE (disconnected)"
	}
	return "REMOTE " + string(snap.Protocol)
}

func drawPane(screen tcell.Screen, x, y, w, h int, entries []orchestrator.EntryView, selected int, focused bool) {
	style := tcell.StyleDefault
	if focused {
		style = style.Bold(true)
	}
	for i, entry := range entries {
		if i >= h {
			break
		}
		line := entry.Name
		if entry.IsDir {
			line += "/"
		}
		lineStyle := style
		if i == selected {
			lineStyle = lineStyle.Reverse(true)
		}
		drawTextStyled(screen, x, y+i, w, line, lineStyle)
	}
}

func drawText(screen tcell.Screen, x, y int, text string) {
	drawTextStyled(screen, x, y, len(text)+1, text, tcell.StyleDefault)
}

func drawTextStyled(screen tcell.Screen, x, y, maxWidth int, text string, style tcell.Style) {
	col := x
	for _, r := range text {
		if col-x >= maxWidth {
			break
		}
		screen.SetContent(col, y, r, nil, style)
		col++
	}
}
