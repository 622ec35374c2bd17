package remotefs

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warrengalyen/gateway/internal/fsentry"
)

// fakeTree is a tiny in-memory directory tree used to exercise
// RemoveRecursive without a real backend.
type fakeTree struct {
	children map[string][]fsentry.Entry
	removed  []string
	failAt   string // path whose removeFile call fails
}

func (f *fakeTree) list(path string) ([]fsentry.Entry, error) {
	return f.children[path], nil
}

func (f *fakeTree) removeFile(e fsentry.Entry) error {
	if e.Path == f.failAt {
		return errors.New("boom")
	}
	f.removed = append(f.removed, e.Path)
	return nil
}

func (f *fakeTree) removeEmptyDir(path string) error {
	f.removed = append(f.removed, path)
	return nil
}

func buildTree() *fakeTree {
	// /root
	//   /root/a (dir)
	//     /root/a/f1.txt
	//     /root/a/b (dir)
	//       /root/a/b/f2.txt
	return &fakeTree{children: map[string][]fsentry.Entry{
		"/root": {
			fsentry.NewDirectory("a", "/root/a", zeroTime()),
		},
		"/root/a": {
			fsentry.NewFile("f1.txt", "/root/a/f1.txt", 10, zeroTime()),
			fsentry.NewDirectory("b", "/root/a/b", zeroTime()),
		},
		"/root/a/b": {
			fsentry.NewFile("f2.txt", "/root/a/b/f2.txt", 5, zeroTime()),
		},
	}}
}

func TestRemoveRecursiveSucceedsOnFullTree(t *testing.T) {
	tree := buildTree()
	root := fsentry.NewDirectory("root", "/root", zeroTime())

	err := RemoveRecursive(tree.list, tree.removeFile, tree.removeEmptyDir, root)
	require.NoError(t, err)

	assert.Contains(t, tree.removed, "/root/a/f1.txt")
	assert.Contains(t, tree.removed, "/root/a/b/f2.txt")
	assert.Contains(t, tree.removed, "/root/a/b")
	assert.Contains(t, tree.removed, "/root")
}

func TestRemoveRecursiveFirstErrorWinsNoRollback(t *testing.T) {
	tree := buildTree()
	tree.failAt = "/root/a/b/f2.txt"
	root := fsentry.NewDirectory("root", "/root", zeroTime())

	err := RemoveRecursive(tree.list, tree.removeFile, tree.removeEmptyDir, root)
	assert.Error(t, err)

	assert.Contains(t, tree.removed, "/root/a/f1.txt", "siblings removed before the failing child are not rolled back")
	assert.NotContains(t, tree.removed, "/root/a/b/f2.txt")
	assert.NotContains(t, tree.removed, "/root/a/b", "no further removals are attempted past the first error")
	assert.NotContains(t, tree.removed, "/root")
}

func TestDirSizeSumsRecursively(t *testing.T) {
	tree := buildTree()
	fs := &listOnlyFs{tree: tree}
	root := fsentry.NewDirectory("root", "/root", zeroTime())

	size, err := DirSize(fs, root)
	require.NoError(t, err)
	assert.Equal(t, int64(15), size)
}

// listOnlyFs adapts fakeTree's list function to the Filesystem
// interface's subset DirSize actually calls (ListDir).
type listOnlyFs struct {
	Filesystem
	tree *fakeTree
}

func (l *listOnlyFs) ListDir(path string) ([]fsentry.Entry, error) {
	return l.tree.list(path)
}

func zeroTime() time.Time { return time.Time{} }
