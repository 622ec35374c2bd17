// Package sftpfs implements the remotefs.Filesystem contract over the
// SFTP subsystem, using github.com/pkg/sftp on top of a
// golang.org/x/crypto/ssh session, exactly as the teacher's own
// backend/sftp package wires the two libraries together.
package sftpfs

import (
	"io"
	"os"
	"path"
	"sync"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"

	"github.com/warrengalyen/gateway/internal/fsentry"
	"github.com/warrengalyen/gateway/internal/gwerr"
	"github.com/warrengalyen/gateway/internal/remotefs"
	"github.com/warrengalyen/gateway/internal/sshsession"
)

// Fs is an SFTP-backed remotefs.Filesystem. One Fs holds exactly one
// live session; Gateway is single-threaded so no connection pool is
// needed (unlike the teacher's multi-worker pool in backend/sftp).
type Fs struct {
	mu     sync.Mutex
	client *ssh.Client
	sftp   *sftp.Client
	pwd    string
}

var _ remotefs.Filesystem = (*Fs)(nil)

// New returns an unconnected SFTP filesystem.
func New() *Fs { return &Fs{} }

func (f *Fs) Connect(address, port, username, password string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	portNum := 22
	if p, err := parsePort(port); err == nil && p > 0 {
		portNum = p
	}
	client, err := sshsession.Dial(address, portNum, username, password)
	if err != nil {
		return "", err
	}
	sc, err := sftp.NewClient(client)
	if err != nil {
		_ = client.Close()
		return "", gwerr.Wrap(err, gwerr.ProtocolError, "starting sftp subsystem")
	}
	f.client = client
	f.sftp = sc

	cwd, err := sc.RealPath(".")
	if err != nil {
		_ = f.disconnectLocked()
		return "", gwerr.Wrap(err, gwerr.ProtocolError, "initial realpath")
	}
	f.pwd = fsentry.Normalize(cwd)
	return "SSH-SFTP/" + client.ServerVersion(), nil
}

func (f *Fs) Disconnect() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.disconnectLocked()
}

func (f *Fs) disconnectLocked() error {
	var sftpErr, sshErr error
	if f.sftp != nil {
		sftpErr = f.sftp.Close()
		f.sftp = nil
	}
	if f.client != nil {
		sshErr = f.client.Close()
		f.client = nil
	}
	if sftpErr != nil {
		return sftpErr
	}
	return sshErr
}

func (f *Fs) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sftp != nil
}

func (f *Fs) Pwd() (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sftp == nil {
		return "", gwerr.New(gwerr.UninitializedSession, "pwd")
	}
	return f.pwd, nil
}

func (f *Fs) ChangeDir(p string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sftp == nil {
		return "", gwerr.New(gwerr.UninitializedSession, "change_dir")
	}
	target := resolve(f.pwd, p)
	info, err := f.sftp.Stat(target)
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
	defer f.mu.Unlock()
	if f.sftp == nil {
		return nil, gwerr.New(gwerr.UninitializedSession, "list_dir")
	}
	target := resolve(f.pwd, p)
	infos, err := f.sftp.ReadDir(target)
	if err != nil {
		return nil, translateErr(err, "list_dir "+target)
	}
	entries := make([]fsentry.Entry, 0, len(infos))
	for _, info := range infos {
		abs := path.Join(target, info.Name())
		e := toEntry(abs, info)
		if info.Mode()&os.ModeSymlink != 0 {
			if linkTarget, err := f.sftp.ReadLink(abs); err == nil {
				e.SymlinkTarget = linkTarget
			}
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func (f *Fs) Mkdir(p string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sftp == nil {
		return gwerr.New(gwerr.UninitializedSession, "mkdir")
	}
	target := resolve(f.pwd, p)
	if err := f.sftp.Mkdir(target); err != nil {
		return gwerr.Wrap(err, gwerr.FileCreateDenied, "mkdir "+target)
	}
	return nil
}

func (f *Fs) Remove(entry fsentry.Entry) error {
	f.mu.Lock()
	sc := f.sftp
	f.mu.Unlock()
	if sc == nil {
		return gwerr.New(gwerr.UninitializedSession, "remove")
	}
	if entry.IsDir() {
		return remotefs.RemoveRecursive(f.ListDir, f.Remove, f.removeEmptyDir, entry)
	}
	if err := sc.Remove(entry.Path); err != nil {
		return translateErr(err, "remove "+entry.Path)
	}
	return nil
}

// removeEmptyDir issues the SFTP subsystem's non-recursive rmdir, used
// as the base case of remotefs.RemoveRecursive once a directory's
// children have all been removed.
func (f *Fs) removeEmptyDir(p string) error {
	f.mu.Lock()
	sc := f.sftp
	f.mu.Unlock()
	if sc == nil {
		return gwerr.New(gwerr.UninitializedSession, "rmdir")
	}
	if err := sc.RemoveDirectory(p); err != nil {
		return translateErr(err, "rmdir "+p)
	}
	return nil
}

func (f *Fs) Rename(entry fsentry.Entry, newPath string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sftp == nil {
		return gwerr.New(gwerr.UninitializedSession, "rename")
	}
	target := resolve(f.pwd, newPath)
	if err := f.sftp.Rename(entry.Path, target); err != nil {
		return translateErr(err, "rename "+entry.Path+" -> "+target)
	}
	return nil
}

func (f *Fs) Stat(p string) (fsentry.Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sftp == nil {
		return fsentry.Entry{}, gwerr.New(gwerr.UninitializedSession, "stat")
	}
	target := resolve(f.pwd, p)
	info, err := f.sftp.Lstat(target)
	if err != nil {
		return fsentry.Entry{}, translateErr(err, "stat "+target)
	}
	e := toEntry(target, info)
	if info.Mode()&os.ModeSymlink != 0 {
		if linkTarget, err := f.sftp.ReadLink(target); err == nil {
			e.SymlinkTarget = linkTarget
		}
	}
	return e, nil
}

func (f *Fs) SendFile(local fsentry.Entry, remotePath string) (remotefs.WriteStream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sftp == nil {
		return nil, gwerr.New(gwerr.UninitializedSession, "send_file")
	}
	target := resolve(f.pwd, remotePath)
	file, err := f.sftp.Create(target)
	if err != nil {
		return nil, gwerr.Wrap(err, gwerr.FileCreateDenied, "create "+target)
	}
	return file, nil
}

func (f *Fs) RecvFile(remote fsentry.Entry) (remotefs.ReadStream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sftp == nil {
		return nil, gwerr.New(gwerr.UninitializedSession, "recv_file")
	}
	file, err := f.sftp.Open(remote.Path)
	if err != nil {
		return nil, translateErr(err, "open "+remote.Path)
	}
	return file, nil
}

// OnSent closes the stream: pkg/sftp's *sftp.File finalizes fully on
// Close, and callers finalize streams only through OnSent/OnRecv.
func (f *Fs) OnSent(stream remotefs.WriteStream) error {
	if c, ok := stream.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// OnRecv mirrors OnSent: no library-specific finalize beyond Close.
func (f *Fs) OnRecv(stream remotefs.ReadStream) error {
	if c, ok := stream.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func resolve(pwd, p string) string {
	if p == "" || p == "." {
		return pwd
	}
	if path.IsAbs(p) {
		return path.Clean(p)
	}
	return path.Clean(path.Join(pwd, p))
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
	if sftpStat, ok := info.Sys().(*sftp.FileStat); ok {
		uid := int(sftpStat.UID)
		gid := int(sftpStat.GID)
		e.UID = &uid
		e.GID = &gid
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
	if se, ok := err.(*sftp.StatusError); ok {
		switch se.Code {
		case 3: // SSH_FX_PERMISSION_DENIED
			return gwerr.Wrap(err, gwerr.PexError, msg)
		case 2: // SSH_FX_NO_SUCH_FILE
			return gwerr.Wrap(err, gwerr.NoSuchFile, msg)
		}
	}
	return gwerr.Wrap(err, gwerr.IoErr, msg)
}

func parsePort(s string) (int, error) {
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, gwerr.New(gwerr.BadAddress, "invalid port")
		}
		n = n*10 + int(r-'0')
	}
	if s == "" {
		return 0, gwerr.New(gwerr.BadAddress, "empty port")
	}
	return n, nil
}
