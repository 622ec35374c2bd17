// Package remotefs declares the capability contract every remote
// backend (SFTP, SCP, FTP/FTPS) implements, and the recursive-remove
// helper shared by backends whose wire protocol has no native
// recursive delete.
package remotefs

import (
	"io"

	"github.com/warrengalyen/gateway/internal/fsentry"
	"github.com/warrengalyen/gateway/internal/gwerr"
)

// WriteStream is the sink returned by SendFile. Callers do not Close it
// themselves; they hand it to OnSent, which closes it and performs any
// backend-specific finalize (FTP waits there for its STOR to complete).
type WriteStream = io.WriteCloser

// ReadStream is the source returned by RecvFile.
type ReadStream = io.ReadCloser

// Filesystem is the polymorphic capability set from spec.md §4.1. Every
// backend (and the local OS view, for the orchestrator's symmetric
// dispatch of recursive delete / directory size) implements it.
type Filesystem interface {
	// Connect establishes the session and authenticates, returning the
	// server banner (or an empty string for the local view). Must seed
	// the working directory with an initial pwd.
	Connect(address, port, username, password string) (banner string, err error)
	// Disconnect tears the session down. Idempotent.
	Disconnect() error
	// IsConnected is advisory only; it is not a liveness check.
	IsConnected() bool

	// Pwd returns the current absolute working directory. Requires a
	// live session.
	Pwd() (string, error)
	// ChangeDir resolves path (may be relative) against Pwd and, on
	// success, makes it the new working directory.
	ChangeDir(path string) (string, error)

	// ListDir lists path (may be relative), returning entries in
	// whatever order the server provides.
	ListDir(path string) ([]fsentry.Entry, error)
	// Mkdir creates a directory.
	Mkdir(path string) error
	// Remove deletes entry. For a directory, if the protocol lacks
	// recursive removal, the backend performs RemoveRecursive itself.
	Remove(entry fsentry.Entry) error
	// Rename moves entry to newPath (absolute).
	Rename(entry fsentry.Entry, newPath string) error
	// Stat produces a single entry for path.
	Stat(path string) (fsentry.Entry, error)

	// SendFile opens a byte sink for remotePath, sized from local.
	SendFile(local fsentry.Entry, remotePath string) (WriteStream, error)
	// RecvFile opens a byte source for a remote entry.
	RecvFile(remote fsentry.Entry) (ReadStream, error)
	// OnSent finalizes a write stream, closing it. For backends whose
	// library finalizes on Close, that Close is all it does.
	OnSent(stream WriteStream) error
	// OnRecv finalizes a read stream.
	OnRecv(stream ReadStream) error
}

// RemoveRecursive implements the depth-first list/recurse/remove
// fallback from spec.md §4.1 for backends (SFTP, FTP) whose native
// remove is not recursive. On any child failure it aborts and returns
// the first error; partial progress is not rolled back.
//
// It is deliberately not a method that calls back into Filesystem.Remove
// for the directory itself — Remove is the one dispatching TO this
// helper for directories, so looping back through it would recurse
// forever. Instead the caller passes removeEmptyDir, its low-level
// non-recursive directory-removal primitive (SFTP's rmdir, FTP's RMD).
func RemoveRecursive(list func(path string) ([]fsentry.Entry, error), removeFile func(fsentry.Entry) error, removeEmptyDir func(path string) error, dir fsentry.Entry) error {
	children, err := list(dir.Path)
	if err != nil {
		return gwerr.Wrap(err, gwerr.DirStatFailed, "list before recursive remove")
	}
	for _, child := range children {
		if child.IsDir() {
			if err := RemoveRecursive(list, removeFile, removeEmptyDir, child); err != nil {
				return err
			}
			continue
		}
		if err := removeFile(child); err != nil {
			return err
		}
	}
	return removeEmptyDir(dir.Path)
}

// DirSize recursively sums the size of every file under dir, used by
// the orchestrator's info popup. It dispatches through the same
// contract against either the local or the remote filesystem.
func DirSize(fs Filesystem, dir fsentry.Entry) (int64, error) {
	if !dir.IsDir() {
		return dir.Size, nil
	}
	children, err := fs.ListDir(dir.Path)
	if err != nil {
		return 0, gwerr.Wrap(err, gwerr.DirStatFailed, "list for size")
	}
	var total int64
	for _, child := range children {
		n, err := DirSize(fs, child)
		if err != nil {
			return 0, err
		}
		total += n
	}
	return total, nil
}
