package localfs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warrengalyen/gateway/internal/fsentry"
	"github.com/warrengalyen/gateway/internal/gwerr"
)

func TestJoinSlash(t *testing.T) {
	assert.Equal(t, "/home/alice", joinSlash("/home/alice", ""))
	assert.Equal(t, "/home/alice", joinSlash("/home/alice", "."))
	assert.Equal(t, "/home/alice/sub", joinSlash("/home/alice", "sub"))
	assert.Equal(t, "/etc", joinSlash("/home/alice", "/etc"))
}

func TestResolveNormalizes(t *testing.T) {
	assert.Equal(t, "/home/alice/sub", resolve("/home/alice", "sub/../sub"))
}

func TestTranslateErrNotExist(t *testing.T) {
	_, statErr := os.Stat(filepath.Join(t.TempDir(), "missing"))
	err := translateErr(statErr, "stat")
	assert.Equal(t, gwerr.NoSuchFile, gwerr.KindOf(err))
}

func TestTranslateErrFallsBackToIoErr(t *testing.T) {
	err := translateErr(boomErr{}, "read")
	assert.Equal(t, gwerr.IoErr, gwerr.KindOf(err))
}

type boomErr struct{}

func (boomErr) Error() string { return "boom" }

func TestConnectIsNoopAndAlwaysConnected(t *testing.T) {
	f := New(t.TempDir())
	assert.True(t, f.IsConnected())
	_, err := f.Connect("", "", "", "")
	assert.NoError(t, err)
	assert.NoError(t, f.Disconnect())
	assert.True(t, f.IsConnected())
}

func TestMkdirListDirChangeDirRoundTrip(t *testing.T) {
	root := t.TempDir()
	f := New(root)

	require.NoError(t, f.Mkdir("sub"))

	entries, err := f.ListDir("")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "sub", entries[0].Name)
	assert.True(t, entries[0].IsDir())

	pwd, err := f.ChangeDir("sub")
	require.NoError(t, err)
	assert.Equal(t, pwd, entries[0].Path)

	got, err := f.Pwd()
	require.NoError(t, err)
	assert.Equal(t, pwd, got)
}

func TestChangeDirRejectsFile(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "plain.txt"), []byte("x"), 0o644))
	f := New(root)

	_, err := f.ChangeDir("plain.txt")
	assert.Error(t, err)
}

func TestSendFileAndRecvFileRoundTrip(t *testing.T) {
	root := t.TempDir()
	f := New(root)

	w, err := f.SendFile(fsentry.Entry{}, "data.bin")
	require.NoError(t, err)
	_, err = w.Write([]byte("payload"))
	require.NoError(t, err)
	require.NoError(t, f.OnSent(w))

	entry, err := f.Stat("data.bin")
	require.NoError(t, err)
	assert.Equal(t, int64(len("payload")), entry.Size)

	r, err := f.RecvFile(entry)
	require.NoError(t, err)
	buf := make([]byte, len("payload"))
	_, err = r.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(buf))
	require.NoError(t, f.OnRecv(r))
}

func TestRemoveFileAndDirectory(t *testing.T) {
	root := t.TempDir()
	f := New(root)

	require.NoError(t, os.WriteFile(filepath.Join(root, "gone.txt"), []byte("x"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(root, "dir"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "dir", "nested.txt"), []byte("x"), 0o644))

	fileEntry, err := f.Stat("gone.txt")
	require.NoError(t, err)
	require.NoError(t, f.Remove(fileEntry))
	_, err = os.Stat(filepath.Join(root, "gone.txt"))
	assert.True(t, os.IsNotExist(err))

	dirEntry, err := f.Stat("dir")
	require.NoError(t, err)
	require.NoError(t, f.Remove(dirEntry))
	_, err = os.Stat(filepath.Join(root, "dir"))
	assert.True(t, os.IsNotExist(err))
}

func TestRename(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "old.txt"), []byte("x"), 0o644))
	f := New(root)

	oldEntry, err := f.Stat("old.txt")
	require.NoError(t, err)
	require.NoError(t, f.Rename(oldEntry, "new.txt"))
	_, err = os.Stat(filepath.Join(root, "new.txt"))
	assert.NoError(t, err)
}

func TestStatResolvesSymlinkTarget(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "real.txt"), []byte("x"), 0o644))
	require.NoError(t, os.Symlink(filepath.Join(root, "real.txt"), filepath.Join(root, "link.txt")))

	f := New(root)
	entry, err := f.Stat("link.txt")
	require.NoError(t, err)
	assert.True(t, entry.IsSymlink())
	assert.Equal(t, filepath.ToSlash(filepath.Join(root, "real.txt")), entry.SymlinkTarget)
}
