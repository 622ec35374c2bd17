package orchestrator

import (
	"path"

	"github.com/warrengalyen/gateway/internal/fsentry"
	"github.com/warrengalyen/gateway/internal/gwerr"
	"github.com/warrengalyen/gateway/internal/remotefs"
)

// Direction is which way a transfer moves bytes relative to the
// focused pane's selection.
type Direction int

const (
	// Upload moves the focused (local) selection to the other
	// (remote) pane.
	Upload Direction = iota
	// Download moves the focused (remote) selection to the other
	// (local) pane.
	Download
)

// StartTransfer resolves source/destination per spec.md §4.7 step 1-2
// and runs the transfer to completion (or abort), reporting progress
// through onProgress and consulting pollAbort between chunks. The
// caller (the TUI boundary) supplies pollAbort so the core stays
// UI-agnostic.
func (a *Activity) StartTransfer(onProgress ProgressFunc, pollAbort func() bool) error {
	entry, ok := a.Selected()
	if !ok {
		return gwerr.New(gwerr.NoSuchFile, "nothing selected to transfer")
	}
	if a.remote == nil {
		return gwerr.New(gwerr.UninitializedSession, "no active remote session")
	}

	var srcFs, dstFs remotefs.Filesystem
	var dstDir string
	if a.focus == PaneLocal {
		srcFs, dstFs = a.local, a.remote
		dstDir, _ = a.remote.Pwd()
	} else {
		srcFs, dstFs = a.remote, a.local
		dstDir, _ = a.local.Pwd()
	}
	destPath := path.Join(dstDir, entry.Name)

	task := &TransferTask{Name: entry.Name, Total: entry.Size, Progress: onProgress}
	a.task = task
	defer func() { a.task = nil }()

	var err error
	if entry.IsDir() {
		err = a.transferDir(srcFs, dstFs, entry, destPath, task, pollAbort)
	} else {
		err = a.transferFile(srcFs, dstFs, entry, destPath, task, pollAbort)
	}

	if err == ErrAborted {
		a.logf("aborted transferring %s", entry.Name)
		a.refresh(PaneLocal)
		a.refresh(PaneRemote)
		return err
	}
	if err != nil {
		a.logf("transfer failed: %v", err)
		a.maybeCleanupPartial(dstFs, destPath)
		a.refresh(PaneLocal)
		a.refresh(PaneRemote)
		return err
	}
	a.logf("transferred %s (%.0f B/s)", entry.Name, task.rate())
	a.refresh(PaneLocal)
	a.refresh(PaneRemote)
	return nil
}

// Abort requests cooperative cancellation of the in-progress transfer,
// per spec.md §4.7's "Abort" paragraph.
func (a *Activity) Abort() {
	if a.task != nil {
		a.task.RequestAbort()
	}
}

func (a *Activity) transferFile(srcFs, dstFs remotefs.Filesystem, src fsentry.Entry, destPath string, task *TransferTask, pollAbort func() bool) error {
	source, err := srcFs.RecvFile(src)
	if err != nil {
		return err
	}
	dest, err := dstFs.SendFile(src, destPath)
	if err != nil {
		_ = srcFs.OnRecv(source)
		return err
	}

	loopErr := runTransferLoop(source, dest, task, pollAbort)

	// Finalizers run on every exit path, success, error, or abort,
	// per spec.md §5's resource-acquisition guarantee.
	recvErr := srcFs.OnRecv(source)
	sentErr := dstFs.OnSent(dest)

	if loopErr != nil {
		return loopErr
	}
	if recvErr != nil {
		return recvErr
	}
	return sentErr
}

// transferDir recurses: mkdir on the destination, then dispatches a
// child transfer per entry. A child failure marks the parent failed
// but siblings already completed are kept, per spec.md §4.7's
// "Directories" paragraph.
func (a *Activity) transferDir(srcFs, dstFs remotefs.Filesystem, src fsentry.Entry, destPath string, task *TransferTask, pollAbort func() bool) error {
	if err := dstFs.Mkdir(destPath); err != nil {
		return err
	}
	children, err := srcFs.ListDir(src.Path)
	if err != nil {
		return err
	}
	for _, child := range children {
		childDest := path.Join(destPath, child.Name)
		var childErr error
		if child.IsDir() {
			childErr = a.transferDir(srcFs, dstFs, child, childDest, task, pollAbort)
		} else {
			childTask := &TransferTask{Name: child.Name, Total: child.Size, Progress: task.Progress}
			childErr = a.transferFile(srcFs, dstFs, child, childDest, childTask, pollAbort)
			task.Transferred += childTask.Transferred
		}
		if childErr == ErrAborted {
			return ErrAborted
		}
		if childErr != nil {
			return childErr
		}
	}
	return nil
}

// maybeCleanupPartial discards the partial destination file only when
// policy allows it: local destinations are always cheap to clean up;
// remote destinations are only cleaned up if the caller opted in via
// RemovePartialRemoteOnFailure, per spec.md §4.7 step 5 and the open
// question in §9.
func (a *Activity) maybeCleanupPartial(dstFs remotefs.Filesystem, destPath string) {
	isLocalDest := dstFs == a.local
	if !isLocalDest && !a.RemovePartialRemoteOnFailure {
		return
	}
	entry, err := dstFs.Stat(destPath)
	if err != nil {
		return
	}
	if err := dstFs.Remove(entry); err != nil {
		a.logf("cleanup of partial %s failed: %v", destPath, err)
	}
}
