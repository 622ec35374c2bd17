// Package bookmark implements the persisted catalog of named hosts and
// the bounded recent-connection log (spec.md §4.6), backed by a single
// human-readable TOML document rewritten atomically on every mutation,
// using github.com/BurntSushi/toml — a direct dependency of the
// teacher lineage.
package bookmark

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/BurntSushi/toml"
	"golang.org/x/text/unicode/norm"

	"github.com/warrengalyen/gateway/internal/gwerr"
	"github.com/warrengalyen/gateway/internal/seal"
)

// normalizeName NFC-normalizes a bookmark name before it is used as a
// map key, the same way the teacher NFC-normalizes config passwords
// (fs/config's TestPassword) before comparison — so two names that
// look identical but differ in Unicode composition never collide or
// silently fail to collide.
func normalizeName(name string) string {
	return norm.NFC.String(name)
}

// Store is the in-memory, process-local cache of the catalog, loaded on
// demand and rewritten atomically on every mutation.
type Store struct {
	path string
	key  seal.Key

	mu  sync.Mutex
	doc document
}

// Open loads the catalog at path (treating a missing file as an empty
// catalog, per spec.md §4.6) and returns a Store bound to key for
// sealing/unsealing passwords.
func Open(path string, key seal.Key) (*Store, error) {
	s := &Store{path: path, key: key, doc: document{Bookmarks: map[string]Bookmark{}}}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, gwerr.Wrap(err, gwerr.InvalidFormat, "reading bookmark catalog")
	}
	var doc document
	if _, err := toml.Decode(string(data), &doc); err != nil {
		return nil, gwerr.Wrap(err, gwerr.InvalidFormat, "parsing bookmark catalog")
	}
	if doc.Bookmarks == nil {
		doc.Bookmarks = map[string]Bookmark{}
	}
	for name, b := range doc.Bookmarks {
		b.Name = name
		doc.Bookmarks[name] = b
	}
	s.doc = doc
	return s, nil
}

// Get returns the bookmark named name, or a gwerr.NoSuchFile-kind error.
// (spec.md's taxonomy has no literal NotFound entry; this uses
// NoSuchFile, the closest existing kind, as bookmarks are host
// records keyed like paths in every other respect.)
func (s *Store) Get(name string) (Bookmark, error) {
	name = normalizeName(name)
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.doc.Bookmarks[name]
	if !ok {
		return Bookmark{}, gwerr.New(gwerr.NoSuchFile, "no bookmark named "+name)
	}
	return b, nil
}

// Upsert creates or replaces the bookmark named name. If savePassword
// is false, the stored record never carries a sealed password even if
// b.Password is set — matching spec.md §4.6's upsert semantics exactly.
func (s *Store) Upsert(name string, b Bookmark, savePassword bool) error {
	name = normalizeName(name)
	s.mu.Lock()
	defer s.mu.Unlock()
	b.Name = name
	if !savePassword {
		b.Password = nil
	}
	s.doc.Bookmarks[name] = b
	return s.saveLocked()
}

// SealAndUpsert seals plaintextPassword with the store's key before
// calling Upsert — the convenience path the orchestrator's "save
// bookmark" intent uses.
func (s *Store) SealAndUpsert(name string, b Bookmark, plaintextPassword string, savePassword bool) error {
	if savePassword && plaintextPassword != "" {
		sealed, err := seal.Seal(plaintextPassword, s.key)
		if err != nil {
			return err
		}
		b.Password = &SealedPassword{CipherText: sealed.CipherText, Nonce: sealed.Nonce}
	}
	return s.Upsert(name, b, savePassword)
}

// Reveal unseals b's stored password, if any.
func (s *Store) Reveal(b Bookmark) (string, error) {
	if b.Password == nil {
		return "", nil
	}
	return seal.Unseal(seal.Sealed{CipherText: b.Password.CipherText, Nonce: b.Password.Nonce}, s.key)
}

// Remove deletes the bookmark named name. Removing an absent name is
// not an error.
func (s *Store) Remove(name string) error {
	name = normalizeName(name)
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.doc.Bookmarks, name)
	return s.saveLocked()
}

// PushRecent inserts b into the bounded recent log: deduplicated by
// (address, port, protocol, username), moved to the front on a repeat
// push, truncated to maxRecent, per spec.md §3/§8.
func (s *Store) PushRecent(b Bookmark) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry := fromBookmark(b)
	key := entry.dedupKey()

	filtered := make([]RecentEntry, 0, len(s.doc.Recents)+1)
	filtered = append(filtered, entry)
	for _, existing := range s.doc.Recents {
		if existing.dedupKey() == key {
			continue
		}
		filtered = append(filtered, existing)
	}
	if len(filtered) > maxRecent {
		filtered = filtered[:maxRecent]
	}
	s.doc.Recents = filtered
	return s.saveLocked()
}

// ListBookmarks returns all bookmarks. Order is unspecified (it is a
// map on disk); callers that need a stable order should sort by Name.
func (s *Store) ListBookmarks() []Bookmark {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Bookmark, 0, len(s.doc.Bookmarks))
	for _, b := range s.doc.Bookmarks {
		out = append(out, b)
	}
	return out
}

// ListRecent returns the recent-connection log, most recent first.
func (s *Store) ListRecent() []RecentEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]RecentEntry, len(s.doc.Recents))
	copy(out, s.doc.Recents)
	return out
}

// saveLocked rewrites the catalog atomically: write to a sibling
// temporary file, fsync, then rename over the target, per spec.md §4.6.
// Callers must hold s.mu.
func (s *Store) saveLocked() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return gwerr.Wrap(err, gwerr.InvalidFormat, "creating config dir")
	}
	tmp := s.path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return gwerr.Wrap(err, gwerr.InvalidFormat, "opening temp catalog")
	}
	enc := toml.NewEncoder(f)
	if err := enc.Encode(s.doc); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return gwerr.Wrap(err, gwerr.InvalidFormat, "encoding catalog")
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return gwerr.Wrap(err, gwerr.InvalidFormat, "syncing catalog")
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return gwerr.Wrap(err, gwerr.InvalidFormat, "closing catalog")
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return gwerr.Wrap(err, gwerr.InvalidFormat, "installing catalog")
	}
	return nil
}
