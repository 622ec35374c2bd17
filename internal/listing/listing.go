// Package listing implements the POSIX long-listing ("ls -la") parser
// shared by the SCP and FTP/FTPS backends, as a pure function with its
// own test suite per the teacher's design note that the parser be
// independent of either backend's transport.
package listing

import (
	"strconv"
	"strings"
	"time"

	"github.com/warrengalyen/gateway/internal/fsentry"
)

// Entry is a parsed long-listing line, already normalized into a
// fsentry.Entry, plus the raw name for the caller to path.Join against
// whatever directory was listed.
type Entry struct {
	fsentry.Entry
}

// Parse parses a single POSIX long-listing line such as:
//
//	-rw-r--r--   1 user group  1048576 Jan  2 03:04 file name.txt
//	lrwxrwxrwx   1 user group       11 Jan  2  2023 link -> target
//
// now is used to resolve "HH:MM" timestamps (assume current year) and
// to fall back to the epoch when the fields are unrecognizable (a known
// limitation for non-POSIX server locales, not a parse error: the
// caller gets an entry back with ModTime at the Unix epoch).
func Parse(line string, now time.Time) (fsentry.Entry, bool) {
	fields := strings.Fields(line)
	if len(fields) < 8 {
		return fsentry.Entry{}, false
	}
	mode := fields[0]
	if mode == "" {
		return fsentry.Entry{}, false
	}
	switch mode[0] {
	case 'd', '-', 'l':
	default:
		return fsentry.Entry{}, false
	}

	// size is the field just before the three-token timestamp; some
	// servers omit the group column, so locate the timestamp by
	// scanning for the "Mon Day Year-or-time" pattern from the end
	// rather than assuming a fixed column count.
	monthIdx := -1
	for i := 3; i < len(fields)-2; i++ {
		if isMonth(fields[i]) {
			monthIdx = i
		}
	}
	if monthIdx < 0 {
		// No English month token (a foreign server locale): read the
		// standard nine-column layout so the entry is kept, and let
		// parseTimestamp fall back to the epoch for its timestamp.
		if len(fields) < 9 {
			return fsentry.Entry{}, false
		}
		monthIdx = 5
	}
	sizeStr := fields[monthIdx-1]
	size, _ := strconv.ParseInt(sizeStr, 10, 64)

	month := fields[monthIdx]
	day := fields[monthIdx+1]
	yearOrTime := fields[monthIdx+2]
	modTime := parseTimestamp(month, day, yearOrTime, now)

	nameStart := indexOfNthField(line, monthIdx+3)
	name := ""
	if nameStart >= 0 {
		name = strings.TrimRight(line[nameStart:], "\r\n")
	}
	if name == "" {
		return fsentry.Entry{}, false
	}

	symlinkTarget := ""
	if mode[0] == 'l' {
		if idx := strings.Index(name, " -> "); idx >= 0 {
			symlinkTarget = name[idx+4:]
			name = name[:idx]
		}
	}
	if name == "." || name == ".." {
		return fsentry.Entry{}, false
	}

	var e fsentry.Entry
	if mode[0] == 'd' {
		e = fsentry.NewDirectory(name, name, modTime)
	} else {
		e = fsentry.NewFile(name, name, size, modTime)
	}
	e.SymlinkTarget = symlinkTarget
	e.Perm = parsePerm(mode)
	return e, true
}

// ParseAll parses every recognizable line of a "ls -la" style listing,
// silently skipping malformed lines (header/summary lines such as
// "total 24") rather than erroring the whole listing.
func ParseAll(output string, now time.Time) []fsentry.Entry {
	var out []fsentry.Entry
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimRight(line, "\r")
		if line == "" || strings.HasPrefix(line, "total ") {
			continue
		}
		if e, ok := Parse(line, now); ok {
			out = append(out, e)
		}
	}
	return out
}

var months = map[string]time.Month{
	"jan": time.January, "feb": time.February, "mar": time.March,
	"apr": time.April, "may": time.May, "jun": time.June,
	"jul": time.July, "aug": time.August, "sep": time.September,
	"oct": time.October, "nov": time.November, "dec": time.December,
}

func isMonth(s string) bool {
	_, ok := months[strings.ToLower(s)]
	return ok
}

func parseTimestamp(month, day, yearOrTime string, now time.Time) time.Time {
	m, ok := months[strings.ToLower(month)]
	if !ok {
		return time.Unix(0, 0).UTC()
	}
	d, err := strconv.Atoi(day)
	if err != nil {
		return time.Unix(0, 0).UTC()
	}
	if strings.Contains(yearOrTime, ":") {
		parts := strings.SplitN(yearOrTime, ":", 2)
		hh, err1 := strconv.Atoi(parts[0])
		mm, err2 := strconv.Atoi(parts[1])
		if err1 != nil || err2 != nil {
			return time.Unix(0, 0).UTC()
		}
		return time.Date(now.Year(), m, d, hh, mm, 0, 0, time.UTC)
	}
	y, err := strconv.Atoi(yearOrTime)
	if err != nil {
		return time.Unix(0, 0).UTC()
	}
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func parsePerm(mode string) *fsentry.Perm {
	if len(mode) < 10 {
		return nil
	}
	bits := mode[1:10]
	parse := func(s string) fsentry.Mode {
		return fsentry.Mode{
			Read:    s[0] == 'r',
			Write:   s[1] == 'w',
			Execute: s[2] == 'x' || s[2] == 's' || s[2] == 't',
		}
	}
	return &fsentry.Perm{
		User:    parse(bits[0:3]),
		Group:   parse(bits[3:6]),
		Other:   parse(bits[6:9]),
		Present: true,
	}
}

// indexOfNthField returns the byte offset in line where Fields()[n]
// begins, so names containing spaces can be recovered verbatim instead
// of rejoining Fields() with single spaces.
func indexOfNthField(line string, n int) int {
	i := 0
	count := 0
	inField := false
	for idx, r := range line {
		isSpace := r == ' ' || r == '\t'
		if !isSpace && !inField {
			inField = true
			if count == n {
				return idx
			}
			count++
		} else if isSpace {
			inField = false
		}
		i = idx
	}
	_ = i
	return -1
}
