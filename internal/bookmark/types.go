package bookmark

import (
	"strconv"

	"github.com/warrengalyen/gateway/internal/pathutil"
)

// SealedPassword is the persisted, opaque form of a saved password:
// ciphertext and nonce, both base64 (spec.md §3, "Bookmark").
type SealedPassword struct {
	CipherText string `toml:"cipher"`
	Nonce      string `toml:"nonce"`
}

// Bookmark is a named host record.
type Bookmark struct {
	Name     string            `toml:"-"`
	Address  string            `toml:"address"`
	Port     int               `toml:"port"`
	Protocol pathutil.Protocol `toml:"protocol"`
	Username string            `toml:"username"`
	Password *SealedPassword   `toml:"password,omitempty"`
}

// dedupKey identifies a connection target for recent-list
// deduplication: same address+port+protocol+username.
func (b Bookmark) dedupKey() string {
	return string(b.Protocol) + "://" + b.Username + "@" + b.Address + ":" + strconv.Itoa(b.Port)
}

// RecentEntry has the same connection fields as Bookmark, minus name
// and password: spec.md §3 says recent entries never carry passwords.
type RecentEntry struct {
	Address  string            `toml:"address"`
	Port     int               `toml:"port"`
	Protocol pathutil.Protocol `toml:"protocol"`
	Username string            `toml:"username"`
}

func (r RecentEntry) dedupKey() string {
	return string(r.Protocol) + "://" + r.Username + "@" + r.Address + ":" + strconv.Itoa(r.Port)
}

func fromBookmark(b Bookmark) RecentEntry {
	return RecentEntry{Address: b.Address, Port: b.Port, Protocol: b.Protocol, Username: b.Username}
}

// maxRecent bounds the recent-connection log per spec.md §3.
const maxRecent = 16

// document is the on-disk TOML shape: bookmarks keyed by name under
// [bookmarks.<name>], and an ordered [[recents]] array, per spec.md §6.
type document struct {
	Bookmarks map[string]Bookmark `toml:"bookmarks"`
	Recents   []RecentEntry       `toml:"recents"`
}
