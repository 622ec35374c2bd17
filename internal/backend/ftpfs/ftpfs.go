// Package ftpfs implements the remotefs.Filesystem contract over plain
// FTP and FTP-over-explicit-TLS (FTPS), using github.com/jlaffaye/ftp —
// the exact client library the teacher's backend/ftp package imports.
package ftpfs

import (
	"crypto/tls"
	"fmt"
	"io"
	"path"
	"strconv"
	"sync"
	"time"

	"github.com/jlaffaye/ftp"

	"github.com/warrengalyen/gateway/internal/fsentry"
	"github.com/warrengalyen/gateway/internal/gwerr"
	"github.com/warrengalyen/gateway/internal/remotefs"
)

const dialTimeout = 15 * time.Second

// Fs is an FTP/FTPS-backed remotefs.Filesystem.
type Fs struct {
	// TLS selects explicit FTPS. Set before calling Connect.
	TLS bool

	mu   sync.Mutex
	conn *ftp.ServerConn
	pwd  string
}

var _ remotefs.Filesystem = (*Fs)(nil)

// New returns an unconnected FTP filesystem. Pass tlsMode true for the
// ftps protocol variant.
func New(tlsMode bool) *Fs { return &Fs{TLS: tlsMode} }

func (f *Fs) Connect(address, port, username, password string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	portNum := 21
	if p, err := strconv.Atoi(port); err == nil && p > 0 {
		portNum = p
	}
	addr := fmt.Sprintf("%s:%d", address, portNum)

	opts := []ftp.DialOption{ftp.DialWithTimeout(dialTimeout)}
	if f.TLS {
		opts = append(opts, ftp.DialWithExplicitTLS(&tls.Config{ServerName: address}))
	}
	conn, err := ftp.Dial(addr, opts...)
	if err != nil {
		return "", gwerr.Wrap(err, gwerr.ConnectionRefused, "dial "+addr)
	}
	if err := conn.Login(username, password); err != nil {
		_ = conn.Quit()
		return "", gwerr.Wrap(err, gwerr.AuthenticationFailed, "login")
	}
	f.conn = conn

	cwd, err := conn.CurrentDir()
	if err != nil {
		_ = conn.Quit()
		f.conn = nil
		return "", gwerr.Wrap(err, gwerr.ProtocolError, "initial pwd")
	}
	f.pwd = fsentry.Normalize(cwd)
	return "FTP/" + addr, nil
}

func (f *Fs) Disconnect() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.conn == nil {
		return nil
	}
	err := f.conn.Quit()
	f.conn = nil
	return err
}

func (f *Fs) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.conn != nil
}

func (f *Fs) Pwd() (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.conn == nil {
		return "", gwerr.New(gwerr.UninitializedSession, "pwd")
	}
	return f.pwd, nil
}

func (f *Fs) ChangeDir(p string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.conn == nil {
		return "", gwerr.New(gwerr.UninitializedSession, "change_dir")
	}
	target := resolve(f.pwd, p)
	if err := f.conn.ChangeDir(target); err != nil {
		return "", gwerr.Wrap(err, gwerr.NoSuchFile, "change_dir "+target)
	}
	f.pwd = target
	return f.pwd, nil
}

func (f *Fs) ListDir(p string) ([]fsentry.Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.conn == nil {
		return nil, gwerr.New(gwerr.UninitializedSession, "list_dir")
	}
	target := resolve(f.pwd, p)
	raw, err := f.conn.List(target)
	if err != nil {
		return nil, gwerr.Wrap(err, gwerr.DirStatFailed, "list_dir "+target)
	}
	entries := make([]fsentry.Entry, 0, len(raw))
	for _, r := range raw {
		if r.Name == "." || r.Name == ".." {
			continue
		}
		entries = append(entries, entryFromFTP(target, r))
	}
	return entries, nil
}

func (f *Fs) Mkdir(p string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.conn == nil {
		return gwerr.New(gwerr.UninitializedSession, "mkdir")
	}
	target := resolve(f.pwd, p)
	if err := f.conn.MakeDir(target); err != nil {
		return gwerr.Wrap(err, gwerr.FileCreateDenied, "mkdir "+target)
	}
	return nil
}

func (f *Fs) Remove(entry fsentry.Entry) error {
	if entry.IsDir() {
		return remotefs.RemoveRecursive(f.ListDir, f.Remove, f.removeEmptyDir, entry)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.conn == nil {
		return gwerr.New(gwerr.UninitializedSession, "remove")
	}
	if err := f.conn.Delete(entry.Path); err != nil {
		return gwerr.Wrap(err, gwerr.IoErr, "dele "+entry.Path)
	}
	return nil
}

// removeEmptyDir issues RMD for a directory RemoveRecursive has already
// emptied; Remove itself always routes directories through
// RemoveRecursive, which calls back into Remove per-child and finally
// here for the now-empty directory.
func (f *Fs) removeEmptyDir(p string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.conn == nil {
		return gwerr.New(gwerr.UninitializedSession, "rmd")
	}
	if err := f.conn.RemoveDir(p); err != nil {
		return gwerr.Wrap(err, gwerr.IoErr, "rmd "+p)
	}
	return nil
}

func (f *Fs) Rename(entry fsentry.Entry, newPath string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.conn == nil {
		return gwerr.New(gwerr.UninitializedSession, "rename")
	}
	target := resolve(f.pwd, newPath)
	if err := f.conn.Rename(entry.Path, target); err != nil {
		return gwerr.Wrap(err, gwerr.IoErr, "rename "+entry.Path+" -> "+target)
	}
	return nil
}

func (f *Fs) Stat(p string) (fsentry.Entry, error) {
	f.mu.Lock()
	conn := f.conn
	pwd := f.pwd
	f.mu.Unlock()
	if conn == nil {
		return fsentry.Entry{}, gwerr.New(gwerr.UninitializedSession, "stat")
	}
	target := resolve(pwd, p)
	parent := path.Dir(target)
	base := path.Base(target)
	raw, err := conn.List(parent)
	if err != nil {
		return fsentry.Entry{}, gwerr.Wrap(err, gwerr.DirStatFailed, "stat "+target)
	}
	for _, r := range raw {
		if r.Name == base {
			return entryFromFTP(parent, r), nil
		}
	}
	return fsentry.Entry{}, gwerr.New(gwerr.NoSuchFile, target)
}

// SendFile opens a STOR data connection. jlaffaye's Stor blocks on an
// io.Reader, so the returned stream is the write side of a pipe; the
// goroutine's Stor result is collected in OnSent, which is where the
// spec requires the library-specific finalize to happen since the pipe
// write alone never reports whether the transfer actually completed.
func (f *Fs) SendFile(local fsentry.Entry, remotePath string) (remotefs.WriteStream, error) {
	f.mu.Lock()
	conn := f.conn
	pwd := f.pwd
	f.mu.Unlock()
	if conn == nil {
		return nil, gwerr.New(gwerr.UninitializedSession, "send_file")
	}
	target := resolve(pwd, remotePath)
	pr, pw := io.Pipe()
	done := make(chan error, 1)
	go func() {
		done <- conn.Stor(target, pr)
	}()
	return &storStream{pw: pw, pr: pr, done: done}, nil
}

// RecvFile opens a RETR data connection.
func (f *Fs) RecvFile(remote fsentry.Entry) (remotefs.ReadStream, error) {
	f.mu.Lock()
	conn := f.conn
	f.mu.Unlock()
	if conn == nil {
		return nil, gwerr.New(gwerr.UninitializedSession, "recv_file")
	}
	resp, err := conn.Retr(remote.Path)
	if err != nil {
		return nil, gwerr.Wrap(err, gwerr.NoSuchFile, "retr "+remote.Path)
	}
	return resp, nil
}

// OnSent waits for the STOR goroutine and propagates its result — this
// is the library-specific finalize spec.md §4.1 requires for FTP write
// streams.
func (f *Fs) OnSent(stream remotefs.WriteStream) error {
	s, ok := stream.(*storStream)
	if !ok {
		return stream.Close()
	}
	return s.finish()
}

// OnRecv calls the jlaffaye Response's Close, which reads the FTP
// server's final "226 transfer complete" reply off the control
// connection — without this, the session is left in a state that
// errors on the next command.
func (f *Fs) OnRecv(stream remotefs.ReadStream) error {
	if resp, ok := stream.(*ftp.Response); ok {
		return resp.Close()
	}
	return stream.Close()
}

type storStream struct {
	pw   *io.PipeWriter
	pr   *io.PipeReader
	done chan error
}

func (s *storStream) Write(p []byte) (int, error) { return s.pw.Write(p) }

// Close only closes the pipe; the real finalize (waiting for Stor to
// return) happens in finish, called from OnSent on every exit path.
func (s *storStream) Close() error { return s.pw.Close() }

func (s *storStream) finish() error {
	_ = s.pw.Close()
	err := <-s.done
	_ = s.pr.Close()
	if err != nil {
		return gwerr.Wrap(err, gwerr.IoErr, "stor")
	}
	return nil
}

// entryFromFTP maps a jlaffaye/ftp listing entry onto the shared
// fsentry shape. jlaffaye parses the raw LIST/MLSD line itself and
// leaves Time at its zero value when a server's locale or format
// defeats its parser; this falls back to the Unix epoch in that case,
// the same graceful-degradation contract internal/listing applies for
// SCP's hand-rolled listing parser, per spec.md §4.4.
func entryFromFTP(dir string, r *ftp.Entry) fsentry.Entry {
	abs := path.Join(dir, r.Name)
	modTime := r.Time.UTC()
	if r.Time.IsZero() {
		modTime = time.Unix(0, 0).UTC()
	}
	var e fsentry.Entry
	switch r.Type {
	case ftp.EntryTypeFolder:
		e = fsentry.NewDirectory(r.Name, abs, modTime)
	case ftp.EntryTypeLink:
		e = fsentry.NewFile(r.Name, abs, int64(r.Size), modTime)
		e.SymlinkTarget = r.Target
	default:
		e = fsentry.NewFile(r.Name, abs, int64(r.Size), modTime)
	}
	return e
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
