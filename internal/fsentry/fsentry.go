// Package fsentry is the unified representation of a directory entry
// shared by every remote backend and the local OS filesystem view, so
// the orchestrator never has to branch on which side of a transfer it
// is looking at.
package fsentry

import (
	"path"
	"strings"
	"time"
)

// Kind discriminates the two FsEntry shapes.
type Kind int

const (
	// KindFile is a regular (or symlinked-to-regular) file.
	KindFile Kind = iota
	// KindDirectory is a directory.
	KindDirectory
)

// Mode is a POSIX read/write/execute triple for one of user/group/other.
type Mode struct {
	Read, Write, Execute bool
}

// Perm is the full user/group/other permission triple. A zero Perm with
// Present == false means the backend could not determine permissions
// (e.g. some FTP servers never report them).
type Perm struct {
	User, Group, Other Mode
	Present            bool
}

// Entry is an immutable snapshot of one directory entry. Every Entry
// returned by a listing or a stat is a fresh value; nothing caches them
// above the backend that produced them.
type Entry struct {
	Kind Kind

	// Name is the display name (last path component).
	Name string
	// Path is absolute and normalized: no "." or ".." components,
	// forward-slash separated even for a Windows local root.
	Path string

	ModTime  time.Time  // UTC, required
	CreateAt *time.Time // UTC, optional
	AccessAt *time.Time // UTC, optional

	UID *int // owning user id, optional
	GID *int // owning group id, optional

	Perm *Perm // POSIX mode triple, optional

	// SymlinkTarget is non-empty when this entry is a symlink. Its
	// other metadata (size, mode, timestamps) reflects the link
	// itself, not whatever it points at.
	SymlinkTarget string

	// Size and Ext are meaningful only when Kind == KindFile.
	Size int64
	Ext  string
}

// IsDir reports whether the entry is a directory.
func (e Entry) IsDir() bool { return e.Kind == KindDirectory }

// IsSymlink reports whether the entry is a symlink (to anything).
func (e Entry) IsSymlink() bool { return e.SymlinkTarget != "" }

// NewFile builds a File-kind entry, deriving Ext from Name.
func NewFile(name, absPath string, size int64, modTime time.Time) Entry {
	return Entry{
		Kind:    KindFile,
		Name:    name,
		Path:    Normalize(absPath),
		Size:    size,
		Ext:     extOf(name),
		ModTime: modTime.UTC(),
	}
}

// NewDirectory builds a Directory-kind entry.
func NewDirectory(name, absPath string, modTime time.Time) Entry {
	return Entry{
		Kind:    KindDirectory,
		Name:    name,
		Path:    Normalize(absPath),
		ModTime: modTime.UTC(),
	}
}

func extOf(name string) string {
	e := path.Ext(name)
	if e == "" {
		return ""
	}
	return strings.TrimPrefix(e, ".")
}

// Normalize forces forward slashes, collapses "." and ".." components,
// and guarantees a leading "/". It is a pure function so it can be unit
// tested in isolation per the "path normalization" testable property.
func Normalize(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	if p == "" {
		p = "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	cleaned := path.Clean(p)
	if cleaned == "." {
		cleaned = "/"
	}
	return cleaned
}
