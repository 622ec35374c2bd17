package orchestrator

import (
	"bytes"
	"crypto/sha256"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/warrengalyen/gateway/internal/editorlaunch"
	"github.com/warrengalyen/gateway/internal/fsentry"
	"github.com/warrengalyen/gateway/internal/gwerr"
)

// sniffWindow is how many leading bytes are inspected to decide whether
// a file looks binary, per spec.md §4.7 step 3 of the edit round-trip.
const sniffWindow = 512

// EditLauncher lets tests substitute a fake editor; the default is
// editorlaunch.Launch.
type EditLauncher func(path string) error

// EditSelected implements spec.md §4.7's edit round-trip for the
// currently selected File entry. launch defaults to
// editorlaunch.Launch when nil.
func (a *Activity) EditSelected(launch EditLauncher) error {
	entry, ok := a.Selected()
	if !ok {
		return gwerr.New(gwerr.NoSuchFile, "nothing selected to edit")
	}
	if entry.IsDir() {
		return gwerr.New(gwerr.UnsupportedFeature, "cannot edit a directory")
	}
	if launch == nil {
		launch = editorlaunch.Launch
	}

	if a.focus == PaneLocal {
		return a.editLocal(entry, launch)
	}
	return a.editRemote(entry, launch)
}

// editLocal invokes the editor on the local path directly: no hashing
// and no re-upload decision, but the same binary-content refusal step 1
// requires of every edit target, local or remote.
func (a *Activity) editLocal(entry fsentry.Entry, launch EditLauncher) error {
	binary, err := fileLooksBinary(entry.Path)
	if err != nil {
		return err
	}
	if binary {
		return gwerr.New(gwerr.UnsupportedFeature, "refusing to edit binary file "+entry.Name)
	}
	if err := launch(entry.Path); err != nil {
		return err
	}
	a.refreshLocal()
	return nil
}

// fileLooksBinary sniffs the leading sniffWindow bytes of the file at
// path, the same window editRemote inspects while streaming the
// download.
func fileLooksBinary(path string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, gwerr.Wrap(err, gwerr.IoErr, "opening for binary sniff")
	}
	defer f.Close()
	buf := make([]byte, sniffWindow)
	n, err := io.ReadFull(f, buf)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return false, gwerr.Wrap(err, gwerr.IoErr, "reading for binary sniff")
	}
	return looksBinary(buf[:n]), nil
}

// editRemote downloads to a temporary path, hashes it, edits it, and
// re-uploads only if the content changed, per spec.md §4.7 step 2.
func (a *Activity) editRemote(entry fsentry.Entry, launch EditLauncher) error {
	if a.remote == nil {
		return gwerr.New(gwerr.UninitializedSession, "no active remote session")
	}

	source, err := a.remote.RecvFile(entry)
	if err != nil {
		return err
	}

	tmpPath := filepath.Join(os.TempDir(), "gateway-edit-"+uuid.NewString()+"-"+entry.Name)
	tmp, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		_ = a.remote.OnRecv(source)
		return gwerr.Wrap(err, gwerr.IoErr, "creating staging file")
	}
	defer os.Remove(tmpPath) // deleted unconditionally, per spec.md step 2

	sniffed := make([]byte, 0, sniffWindow)
	hasher := sha256.New()
	buf := make([]byte, 32*1024)
	for {
		n, rerr := source.Read(buf)
		if n > 0 {
			chunk := buf[:n]
			if len(sniffed) < sniffWindow {
				room := sniffWindow - len(sniffed)
				if room > n {
					room = n
				}
				sniffed = append(sniffed, chunk[:room]...)
			}
			if _, werr := tmp.Write(chunk); werr != nil {
				_ = tmp.Close()
				_ = a.remote.OnRecv(source)
				return gwerr.Wrap(werr, gwerr.IoErr, "writing staging file")
			}
			hasher.Write(chunk)
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			_ = tmp.Close()
			_ = a.remote.OnRecv(source)
			return gwerr.Wrap(rerr, gwerr.IoErr, "downloading for edit")
		}
	}
	if err := tmp.Close(); err != nil {
		_ = a.remote.OnRecv(source)
		return gwerr.Wrap(err, gwerr.IoErr, "closing staging file")
	}
	if err := a.remote.OnRecv(source); err != nil {
		return err
	}

	if looksBinary(sniffed) {
		return gwerr.New(gwerr.UnsupportedFeature, "refusing to edit binary file "+entry.Name)
	}
	beforeSum := hasher.Sum(nil)

	if err := launch(tmpPath); err != nil {
		return err
	}

	afterSum, err := sha256File(tmpPath)
	if err != nil {
		return err
	}
	if bytes.Equal(beforeSum, afterSum) {
		a.logf("edit of %s: no change, no upload", entry.Name)
		return nil
	}

	return a.reuploadEdited(tmpPath, entry)
}

func (a *Activity) reuploadEdited(tmpPath string, remote fsentry.Entry) error {
	info, err := os.Stat(tmpPath)
	if err != nil {
		return gwerr.Wrap(err, gwerr.IoErr, "stat staging file")
	}
	localEntry := fsentry.NewFile(remote.Name, tmpPath, info.Size(), info.ModTime())

	local, err := os.Open(tmpPath)
	if err != nil {
		return gwerr.Wrap(err, gwerr.IoErr, "reopening staging file")
	}
	defer local.Close()

	dest, err := a.remote.SendFile(localEntry, remote.Path)
	if err != nil {
		return err
	}

	task := &TransferTask{Name: remote.Name, Total: info.Size()}
	loopErr := runTransferLoop(local, dest, task, nil)
	sentErr := a.remote.OnSent(dest)
	if loopErr != nil {
		return loopErr
	}
	if sentErr != nil {
		return sentErr
	}
	a.logf("edit of %s: re-uploaded %d bytes", remote.Name, info.Size())
	a.refreshRemote()
	return nil
}

func sha256File(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, gwerr.Wrap(err, gwerr.IoErr, "reopening for hash")
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return nil, gwerr.Wrap(err, gwerr.IoErr, "hashing staging file")
	}
	return h.Sum(nil), nil
}

// looksBinary sniffs for NUL bytes or a high density of non-printable
// control characters, per spec.md §4.7 step 3.
func looksBinary(sample []byte) bool {
	if len(sample) == 0 {
		return false
	}
	controlCount := 0
	for _, b := range sample {
		if b == 0 {
			return true
		}
		if b < 0x09 || (b > 0x0d && b < 0x20) {
			controlCount++
		}
	}
	return float64(controlCount)/float64(len(sample)) > 0.3
}
