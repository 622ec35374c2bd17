// Package orchestrator implements the transfer/editor activity state
// machine that drives the TUI (spec.md §4.7): it owns both filesystems,
// schedules streaming transfers with progress and abort, and
// implements the edit-remote-file round trip. The package exposes a
// pure event-in / state-out interface (spec.md §9, "UI coupling") so it
// can be driven from tests without a real terminal.
package orchestrator

import "github.com/warrengalyen/gateway/internal/pathutil"

// Pane identifies which of the two panes has focus.
type Pane int

const (
	PaneLocal Pane = iota
	PaneRemote
)

// State is the activity's current top-level state.
type State int

const (
	StateConnecting State = iota
	StateExplorer
	StateDialog
	StateTransferring
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "Connecting"
	case StateExplorer:
		return "Explorer"
	case StateDialog:
		return "Dialog"
	case StateTransferring:
		return "Transferring"
	case StateDisconnected:
		return "Disconnected"
	default:
		return "Unknown"
	}
}

// DialogKind distinguishes the modal prompts the Explorer state can
// spawn (confirmation, rename-input, mkdir-input, info popup, ...).
type DialogKind int

const (
	DialogNone DialogKind = iota
	DialogConfirmDelete
	DialogMkdir
	DialogRename
	DialogInfo
	DialogSaveBookmark
)

// maxLogLines bounds the in-memory event log for the message area.
const maxLogLines = 200

// logRing is a bounded FIFO of log lines, kept as orchestrator state
// (not routed through the ambient gwlog logger, which is a process-wide
// diagnostic stream, not user-facing TUI state).
type logRing struct {
	lines []string
}

func (r *logRing) push(line string) {
	r.lines = append(r.lines, line)
	if len(r.lines) > maxLogLines {
		r.lines = r.lines[len(r.lines)-maxLogLines:]
	}
}

// Snapshot is the immutable state the TUI renders from after every
// intent, per spec.md §9's "UI coupling" design note.
type Snapshot struct {
	State         State
	Dialog        DialogKind
	Focus         Pane
	LocalPwd      string
	RemotePwd     string
	LocalEntries  []EntryView
	RemoteEntries []EntryView
	LocalSelect   int
	RemoteSelect  int
	Log           []string
	Transfer      *TransferView
	Connected     bool
	Protocol      pathutil.Protocol
}

// EntryView is the display-ready projection of an fsentry.Entry the TUI
// renders a row from.
type EntryView struct {
	Name       string
	Path       string
	IsDir      bool
	Size       int64
	ModTimeUTC string
	IsSymlink  bool
}

// TransferView is the display-ready projection of the in-progress
// TransferTask, if any.
type TransferView struct {
	Name     string
	Fraction float64
	Done     bool
	Aborted  bool
}
