package bookmark

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warrengalyen/gateway/internal/pathutil"
	"github.com/warrengalyen/gateway/internal/seal"
)

func newTestStore(t *testing.T) (*Store, seal.Key) {
	t.Helper()
	dir := t.TempDir()
	key, err := seal.LoadOrGenerate(filepath.Join(dir, "sealkey"))
	require.NoError(t, err)
	store, err := Open(filepath.Join(dir, "bookmarks.toml"), key)
	require.NoError(t, err)
	return store, key
}

func TestRecentListNeverExceedsBoundAndDedupsAndOrdersMostRecentFirst(t *testing.T) {
	store, _ := newTestStore(t)

	for i := 0; i < maxRecent+10; i++ {
		b := Bookmark{
			Address:  fmt.Sprintf("host%d.example.com", i),
			Port:     22,
			Protocol: pathutil.ProtocolSFTP,
			Username: "alice",
		}
		require.NoError(t, store.PushRecent(b))
	}
	recents := store.ListRecent()
	assert.Len(t, recents, maxRecent)
	assert.Equal(t, fmt.Sprintf("host%d.example.com", maxRecent+9), recents[0].Address)

	seen := map[string]bool{}
	for _, r := range recents {
		key := r.dedupKey()
		assert.False(t, seen[key], "duplicate dedup key %s", key)
		seen[key] = true
	}
}

func TestPushRecentDedupMovesToFront(t *testing.T) {
	store, _ := newTestStore(t)
	first := Bookmark{Address: "a.example.com", Port: 22, Protocol: pathutil.ProtocolSFTP, Username: "alice"}
	second := Bookmark{Address: "b.example.com", Port: 22, Protocol: pathutil.ProtocolSFTP, Username: "alice"}

	require.NoError(t, store.PushRecent(first))
	require.NoError(t, store.PushRecent(second))
	require.NoError(t, store.PushRecent(first))

	recents := store.ListRecent()
	require.Len(t, recents, 2)
	assert.Equal(t, "a.example.com", recents[0].Address)
	assert.Equal(t, "b.example.com", recents[1].Address)
}

func TestBookmarkPersistenceRoundTrip(t *testing.T) {
	dir := t.TempDir()
	key, err := seal.LoadOrGenerate(filepath.Join(dir, "sealkey"))
	require.NoError(t, err)
	catalogPath := filepath.Join(dir, "bookmarks.toml")

	store, err := Open(catalogPath, key)
	require.NoError(t, err)
	require.NoError(t, store.SealAndUpsert("prod", Bookmark{
		Address:  "prod.example.com",
		Port:     22,
		Protocol: pathutil.ProtocolSFTP,
		Username: "deploy",
	}, "s3cret", true))
	require.NoError(t, store.Upsert("scratch", Bookmark{
		Address:  "scratch.example.com",
		Port:     2121,
		Protocol: pathutil.ProtocolFTPS,
		Username: "anon",
	}, false))

	reloaded, err := Open(catalogPath, key)
	require.NoError(t, err)

	prod, err := reloaded.Get("prod")
	require.NoError(t, err)
	assert.Equal(t, "prod.example.com", prod.Address)
	require.NotNil(t, prod.Password)
	plain, err := reloaded.Reveal(prod)
	require.NoError(t, err)
	assert.Equal(t, "s3cret", plain)

	scratch, err := reloaded.Get("scratch")
	require.NoError(t, err)
	assert.Equal(t, "scratch.example.com", scratch.Address)
	assert.Nil(t, scratch.Password, "savePassword=false must never persist a password")

	raw, err := os.ReadFile(catalogPath)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "s3cret", "plaintext password must never reach disk")
}
