package orchestrator

import (
	"fmt"
	"path"
	"sort"
	"strconv"
	"time"

	"github.com/warrengalyen/gateway/internal/bookmark"
	"github.com/warrengalyen/gateway/internal/fsentry"
	"github.com/warrengalyen/gateway/internal/gwerr"
	"github.com/warrengalyen/gateway/internal/pathutil"
	"github.com/warrengalyen/gateway/internal/remotefs"
)

// Activity is the single-threaded activity loop from spec.md §4.7. It
// holds a local working directory (through the local filesystem view),
// a remote session (through the remotefs.Filesystem contract), two
// directory listings, focus, per-pane selection, the message log, and
// an optional in-progress TransferTask.
type Activity struct {
	local  remotefs.Filesystem
	remote remotefs.Filesystem

	protocol pathutil.Protocol
	state    State
	dialog   DialogKind
	focus    Pane

	localEntries  []fsentry.Entry
	remoteEntries []fsentry.Entry
	localSelect   int
	remoteSelect  int

	log  logRing
	task *TransferTask

	store *bookmark.Store

	// connAddress/connPort/connUsername/connPassword are the
	// credentials the current remote session connected with, kept only
	// so SaveBookmark can seal/persist them on request — the connect
	// operation itself never touches the bookmark store.
	connAddress  string
	connPort     string
	connUsername string
	connPassword string

	// RemovePartialRemoteOnFailure controls whether a failed/aborted
	// upload's partial remote file is deleted. spec.md §4.7 step 5
	// and §9's open question both say the source leaves partials in
	// place by default; local partials are always removed since that
	// filesystem is always cheap to clean up. Left false by default,
	// exposed for the caller to override — this is the "make it
	// configurable" resolution recorded in DESIGN.md.
	RemovePartialRemoteOnFailure bool
}

// New builds an Activity rooted at local (already connected — it is
// the host OS view, which never needs authentication) with remote not
// yet connected.
func New(local remotefs.Filesystem) *Activity {
	a := &Activity{local: local, state: StateConnecting, focus: PaneLocal}
	a.refreshLocal()
	return a
}

// Snapshot renders the current immutable state for the TUI boundary.
func (a *Activity) Snapshot() Snapshot {
	localPwd, _ := a.local.Pwd()
	remotePwd := ""
	connected := false
	if a.remote != nil {
		remotePwd, _ = a.remote.Pwd()
		connected = a.remote.IsConnected()
	}
	snap := Snapshot{
		State:         a.state,
		Dialog:        a.dialog,
		Focus:         a.focus,
		LocalPwd:      localPwd,
		RemotePwd:     remotePwd,
		LocalEntries:  viewEntries(a.localEntries),
		RemoteEntries: viewEntries(a.remoteEntries),
		LocalSelect:   a.localSelect,
		RemoteSelect:  a.remoteSelect,
		Log:           append([]string(nil), a.log.lines...),
		Connected:     connected,
		Protocol:      a.protocol,
	}
	if a.task != nil {
		snap.Transfer = &TransferView{
			Name:     a.task.Name,
			Fraction: ClampProgress(a.task.Transferred, a.task.Total),
			Aborted:  a.task.Aborted(),
		}
	}
	return snap
}

func viewEntries(entries []fsentry.Entry) []EntryView {
	out := make([]EntryView, len(entries))
	for i, e := range entries {
		out[i] = EntryView{
			Name:       e.Name,
			Path:       e.Path,
			IsDir:      e.IsDir(),
			Size:       e.Size,
			ModTimeUTC: e.ModTime.Format(time.RFC3339),
			IsSymlink:  e.IsSymlink(),
		}
	}
	return out
}

func (a *Activity) logf(format string, args ...interface{}) {
	a.log.push(fmt.Sprintf(format, args...))
}

// Connect attaches remote (already constructed for the requested
// protocol by the caller — cmd/gateway picks the backend from the
// address URI) and authenticates, per spec.md §4.1's connect operation.
func (a *Activity) Connect(remote remotefs.Filesystem, protocol pathutil.Protocol, address, port, username, password string) error {
	banner, err := remote.Connect(address, port, username, password)
	if err != nil {
		a.state = StateDisconnected
		a.logf("connect failed: %v", err)
		return err
	}
	a.remote = remote
	a.protocol = protocol
	a.connAddress = address
	a.connPort = port
	a.connUsername = username
	a.connPassword = password
	a.state = StateExplorer
	a.logf("connected: %s", banner)
	a.refreshLocal()
	a.refreshRemote()
	return nil
}

// SetBookmarkStore attaches the bookmark catalog cmd/gateway opened at
// startup, enabling SaveBookmark. An Activity with no store configured
// still works for every other intent; only bookmark persistence needs it.
func (a *Activity) SetBookmarkStore(store *bookmark.Store) { a.store = store }

// SaveBookmark persists the connection currently in use under name,
// sealing the in-memory connection password when savePassword is true,
// per spec.md §4.6's upsert semantics and §8's "Bookmark save with
// password" scenario.
func (a *Activity) SaveBookmark(name string, savePassword bool) error {
	if a.store == nil {
		return gwerr.New(gwerr.UnsupportedFeature, "no bookmark store configured")
	}
	port, _ := strconv.Atoi(a.connPort)
	b := bookmark.Bookmark{
		Address:  a.connAddress,
		Port:     port,
		Protocol: a.protocol,
		Username: a.connUsername,
	}
	if err := a.store.SealAndUpsert(name, b, a.connPassword, savePassword); err != nil {
		a.logf("save bookmark %s failed: %v", name, err)
		return err
	}
	a.logf("bookmark saved: %s", name)
	return nil
}

// Disconnect tears the remote session down and returns to the
// connecting view, per spec.md §7 ("Connection loss ... transitions
// the activity to Disconnected, returning to the authentication view").
func (a *Activity) Disconnect() {
	if a.remote != nil {
		_ = a.remote.Disconnect()
	}
	a.state = StateDisconnected
	a.remoteEntries = nil
}

func (a *Activity) refreshLocal() {
	pwd, err := a.local.Pwd()
	if err != nil {
		a.logf("local pwd failed: %v", err)
		return
	}
	entries, err := a.local.ListDir(pwd)
	if err != nil {
		a.logf("local listing failed: %v", err)
		return
	}
	sortEntries(entries)
	a.localEntries = entries
	if a.localSelect >= len(entries) {
		a.localSelect = max0(len(entries) - 1)
	}
}

func (a *Activity) refreshRemote() {
	if a.remote == nil {
		return
	}
	pwd, err := a.remote.Pwd()
	if err != nil {
		a.onRemoteErr(err, "remote pwd")
		return
	}
	entries, err := a.remote.ListDir(pwd)
	if err != nil {
		a.onRemoteErr(err, "remote listing")
		return
	}
	sortEntries(entries)
	a.remoteEntries = entries
	if a.remoteSelect >= len(entries) {
		a.remoteSelect = max0(len(entries) - 1)
	}
}

// onRemoteErr logs err and, if it is a connection-level failure,
// transitions to Disconnected per spec.md §7.
func (a *Activity) onRemoteErr(err error, context string) {
	a.logf("%s: %v", context, err)
	if gwerr.Is(err, gwerr.ConnectionError) {
		a.Disconnect()
	}
}

func sortEntries(entries []fsentry.Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].IsDir() != entries[j].IsDir() {
			return entries[i].IsDir()
		}
		return entries[i].Name < entries[j].Name
	})
}

func max0(n int) int {
	if n < 0 {
		return 0
	}
	return n
}

// filesystemFor returns the pane's contract-typed filesystem.
func (a *Activity) filesystemFor(p Pane) remotefs.Filesystem {
	if p == PaneLocal {
		return a.local
	}
	return a.remote
}

func (a *Activity) entriesFor(p Pane) []fsentry.Entry {
	if p == PaneLocal {
		return a.localEntries
	}
	return a.remoteEntries
}

func (a *Activity) refresh(p Pane) {
	if p == PaneLocal {
		a.refreshLocal()
	} else {
		a.refreshRemote()
	}
}

// SetFocus switches which pane receives selection-move and
// enter/leave-directory intents.
func (a *Activity) SetFocus(p Pane) { a.focus = p }

// Focus returns the pane currently focused.
func (a *Activity) Focus() Pane { return a.focus }

// MoveSelection shifts the focused pane's selection index by delta,
// clamped to the listing's bounds.
func (a *Activity) MoveSelection(delta int) {
	entries := a.entriesFor(a.focus)
	sel := a.selectionPtr()
	*sel += delta
	if *sel < 0 {
		*sel = 0
	}
	if *sel >= len(entries) {
		*sel = max0(len(entries) - 1)
	}
}

func (a *Activity) selectionPtr() *int {
	if a.focus == PaneLocal {
		return &a.localSelect
	}
	return &a.remoteSelect
}

// Selected returns the currently selected entry in the focused pane, or
// false if the pane's listing is empty.
func (a *Activity) Selected() (fsentry.Entry, bool) {
	entries := a.entriesFor(a.focus)
	sel := *a.selectionPtr()
	if sel < 0 || sel >= len(entries) {
		return fsentry.Entry{}, false
	}
	return entries[sel], true
}

// EnterDirectory changes into the selected entry if it is a directory,
// or into ".." when name == "..". On success the pane's listing is
// re-read; on failure the error is logged and state is unchanged, per
// spec.md §4.7's "Transitions" paragraph.
func (a *Activity) EnterDirectory(name string) {
	fs := a.filesystemFor(a.focus)
	if fs == nil {
		a.logf("no active remote session")
		return
	}
	if _, err := fs.ChangeDir(name); err != nil {
		a.onPaneErr(err, "change_dir "+name)
		return
	}
	a.refresh(a.focus)
}

func (a *Activity) onPaneErr(err error, context string) {
	if a.focus == PaneRemote {
		a.onRemoteErr(err, context)
		return
	}
	a.logf("%s: %v", context, err)
}

// Mkdir creates name as a child of the focused pane's working
// directory.
func (a *Activity) Mkdir(name string) {
	fs := a.filesystemFor(a.focus)
	if fs == nil {
		a.logf("no active remote session")
		return
	}
	if err := fs.Mkdir(name); err != nil {
		a.onPaneErr(err, "mkdir "+name)
		return
	}
	a.refresh(a.focus)
}

// Remove deletes the selected entry from the focused pane (recursing
// through the contract for directories per spec.md §4.1).
func (a *Activity) Remove() {
	entry, ok := a.Selected()
	if !ok {
		return
	}
	fs := a.filesystemFor(a.focus)
	if fs == nil {
		return
	}
	if err := fs.Remove(entry); err != nil {
		a.onPaneErr(err, "remove "+entry.Path)
		return
	}
	a.logf("removed %s", entry.Path)
	a.refresh(a.focus)
}

// Rename moves the selected entry to newName within its own directory.
func (a *Activity) Rename(newName string) {
	entry, ok := a.Selected()
	if !ok {
		return
	}
	fs := a.filesystemFor(a.focus)
	if fs == nil {
		return
	}
	dir := path.Dir(entry.Path)
	target := path.Join(dir, newName)
	if err := fs.Rename(entry, target); err != nil {
		a.onPaneErr(err, "rename "+entry.Path)
		return
	}
	a.refresh(a.focus)
}

// DirSize computes the recursive size of the selected entry, dispatched
// polymorphically through the contract per spec.md §4.7's
// "Recursive operations that need polymorphism" paragraph.
func (a *Activity) DirSize() (int64, error) {
	entry, ok := a.Selected()
	if !ok {
		return 0, gwerr.New(gwerr.NoSuchFile, "nothing selected")
	}
	fs := a.filesystemFor(a.focus)
	if fs == nil {
		return 0, gwerr.New(gwerr.UninitializedSession, "no active remote session")
	}
	return remotefs.DirSize(fs, entry)
}

// InProgress reports whether a transfer is currently running.
func (a *Activity) InProgress() bool { return a.task != nil }

// CurrentTask exposes the in-progress transfer, or nil.
func (a *Activity) CurrentTask() *TransferTask { return a.task }
