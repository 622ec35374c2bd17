// Package localfs implements the remotefs.Filesystem contract over the
// host OS filesystem, so the orchestrator can dispatch recursive
// delete and directory-size against either pane through the same
// contract (spec.md §4.7, "recursive operations that need
// polymorphism").
package localfs

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/warrengalyen/gateway/internal/fsentry"
	"github.com/warrengalyen/gateway/internal/gwerr"
	"github.com/warrengalyen/gateway/internal/remotefs"
)

// Fs is a local-OS-backed remotefs.Filesystem. Connect/Disconnect are
// no-ops: there is no session, only a working directory.
type Fs struct {
	mu  sync.Mutex
	pwd string
}

var _ remotefs.Filesystem = (*Fs)(nil)

// New returns a local filesystem view rooted at pwd (typically the
// process's starting directory).
func New(pwd string) *Fs {
	abs, err := filepath.Abs(pwd)
	if err != nil {
		abs = pwd
	}
	return &Fs{pwd: fsentry.Normalize(abs)}
}

func (f *Fs) Connect(_, _, _, _ string) (string, error) { return "", nil }
func (f *Fs) Disconnect() error                         { return nil }
func (f *Fs) IsConnected() bool                         { return true }

func (f *Fs) Pwd() (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pwd, nil
}

func (f *Fs) ChangeDir(p string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	target := resolve(f.pwd, p)
	info, err := os.Stat(osPath(target))
	if err != nil {
		return "", translateErr(err, "change_dir "+target)
	}
	if !info.IsDir() {
		return "", gwerr.New(gwerr.NoSuchFile, target+" is not a directory")
	}
	f.pwd = target
	return f.pwd, nil
}

func (f *Fs) ListDir(p string) ([]fsentry.Entry, error) {
	f.mu.Lock()
	pwd := f.pwd
	f.mu.Unlock()
	target := resolve(pwd, p)
	infos, err := os.ReadDir(osPath(target))
	if err != nil {
		return nil, translateErr(err, "list_dir "+target)
	}
	entries := make([]fsentry.Entry, 0, len(infos))
	for _, de := range infos {
		info, err := de.Info()
		if err != nil {
			continue
		}
		entries = append(entries, toEntry(filepath.ToSlash(target+"/"+de.Name()), info))
	}
	return entries, nil
}

func (f *Fs) Mkdir(p string) error {
	f.mu.Lock()
	pwd := f.pwd
	f.mu.Unlock()
	target := resolve(pwd, p)
	if err := os.Mkdir(osPath(target), 0o755); err != nil {
		return gwerr.Wrap(err, gwerr.FileCreateDenied, "mkdir "+target)
	}
	return nil
}

func (f *Fs) Remove(entry fsentry.Entry) error {
	if entry.IsDir() {
		if err := os.RemoveAll(osPath(entry.Path)); err != nil {
			return gwerr.Wrap(err, gwerr.IoErr, "remove "+entry.Path)
		}
		return nil
	}
	if err := os.Remove(osPath(entry.Path)); err != nil {
		return translateErr(err, "remove "+entry.Path)
	}
	return nil
}

func (f *Fs) Rename(entry fsentry.Entry, newPath string) error {
	f.mu.Lock()
	pwd := f.pwd
	f.mu.Unlock()
	target := resolve(pwd, newPath)
	if err := os.Rename(osPath(entry.Path), osPath(target)); err != nil {
		return gwerr.Wrap(err, gwerr.IoErr, "rename "+entry.Path+" -> "+target)
	}
	return nil
}

func (f *Fs) Stat(p string) (fsentry.Entry, error) {
	f.mu.Lock()
	pwd := f.pwd
	f.mu.Unlock()
	target := resolve(pwd, p)
	info, err := os.Lstat(osPath(target))
	if err != nil {
		return fsentry.Entry{}, translateErr(err, "stat "+target)
	}
	e := toEntry(target, info)
	if info.Mode()&os.ModeSymlink != 0 {
		if linkTarget, err := os.Readlink(osPath(target)); err == nil {
			e.SymlinkTarget = filepath.ToSlash(linkTarget)
		}
	}
	return e, nil
}

func (f *Fs) SendFile(_ fsentry.Entry, remotePath string) (remotefs.WriteStream, error) {
	f.mu.Lock()
	pwd := f.pwd
	f.mu.Unlock()
	target := resolve(pwd, remotePath)
	file, err := os.Create(osPath(target))
	if err != nil {
		return nil, gwerr.Wrap(err, gwerr.FileCreateDenied, "create "+target)
	}
	return file, nil
}

func (f *Fs) RecvFile(remote fsentry.Entry) (remotefs.ReadStream, error) {
	file, err := os.Open(osPath(remote.Path))
	if err != nil {
		return nil, translateErr(err, "open "+remote.Path)
	}
	return file, nil
}

// OnSent/OnRecv close the file: *os.File has no finalize step beyond
// Close, and callers finalize streams only through these two calls.
func (f *Fs) OnSent(stream remotefs.WriteStream) error { return stream.Close() }
func (f *Fs) OnRecv(stream remotefs.ReadStream) error  { return stream.Close() }

func resolve(pwd, p string) string {
	return fsentry.Normalize(joinSlash(pwd, p))
}

func joinSlash(pwd, p string) string {
	if p == "" || p == "." {
		return pwd
	}
	if len(p) > 0 && (p[0] == '/' || (len(p) > 1 && p[1] == ':')) {
		return p
	}
	return pwd + "/" + p
}

// osPath converts the contract's forward-slash absolute path into the
// host OS's native separator (a no-op on non-Windows).
func osPath(p string) string {
	return filepath.FromSlash(p)
}

func toEntry(absPath string, info os.FileInfo) fsentry.Entry {
	var e fsentry.Entry
	if info.IsDir() {
		e = fsentry.NewDirectory(info.Name(), absPath, info.ModTime())
	} else {
		e = fsentry.NewFile(info.Name(), absPath, info.Size(), info.ModTime())
	}
	perm := info.Mode().Perm()
	e.Perm = &fsentry.Perm{
		User:    fsentry.Mode{Read: perm&0o400 != 0, Write: perm&0o200 != 0, Execute: perm&0o100 != 0},
		Group:   fsentry.Mode{Read: perm&0o040 != 0, Write: perm&0o020 != 0, Execute: perm&0o010 != 0},
		Other:   fsentry.Mode{Read: perm&0o004 != 0, Write: perm&0o002 != 0, Execute: perm&0o001 != 0},
		Present: true,
	}
	return e
}

func translateErr(err error, msg string) error {
	if os.IsNotExist(err) {
		return gwerr.Wrap(err, gwerr.NoSuchFile, msg)
	}
	if os.IsPermission(err) {
		return gwerr.Wrap(err, gwerr.PexError, msg)
	}
	return gwerr.Wrap(err, gwerr.IoErr, msg)
}
