// Package pathutil implements the path-normalization and address-URI
// parsing utilities consumed by the orchestrator and the CLI boundary.
// Resolve is a pure function by design (see spec.md's "Path
// normalization" testable property): for any input and any pwd it
// returns the same absolute path every time, with no I/O.
package pathutil

import (
	"fmt"
	"net/url"
	"os/user"
	"path"
	"strconv"
	"strings"

	"github.com/warrengalyen/gateway/internal/gwerr"
)

// Resolve normalizes p against pwd exactly as every contract call does:
// "" and "." resolve to pwd itself; a relative path is joined onto pwd;
// an absolute path is used as-is (after normalization). The result
// always has a leading "/", forward slashes, and no "." or ".."
// components.
func Resolve(pwd, p string) string {
	if pwd == "" {
		pwd = "/"
	}
	pwd = toSlash(pwd)
	p = toSlash(p)

	if p == "" || p == "." {
		return clean(pwd)
	}
	if strings.HasPrefix(p, "/") {
		return clean(p)
	}
	return clean(path.Join(pwd, p))
}

func toSlash(p string) string {
	return strings.ReplaceAll(p, "\\", "/")
}

func clean(p string) string {
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	c := path.Clean(p)
	if c == "." {
		return "/"
	}
	return c
}

// Protocol is one of the four wire protocols Gateway speaks.
type Protocol string

const (
	ProtocolSFTP Protocol = "sftp"
	ProtocolSCP  Protocol = "scp"
	ProtocolFTP  Protocol = "ftp"
	ProtocolFTPS Protocol = "ftps"
)

// DefaultPort returns the conventional port for a protocol.
func DefaultPort(p Protocol) int {
	switch p {
	case ProtocolFTP, ProtocolFTPS:
		return 21
	default:
		return 22
	}
}

// Address is the parsed form of the CLI's positional address URI:
// [protocol]://[username@]host[:port]
type Address struct {
	Protocol Protocol
	Username string
	Host     string
	Port     int
}

// ParseAddress parses the address-URI grammar from spec.md §6. Protocol
// defaults to sftp, username defaults to the current OS user, and port
// defaults per-protocol.
func ParseAddress(raw string) (Address, error) {
	if raw == "" {
		return Address{}, gwerr.New(gwerr.BadAddress, "empty address")
	}
	s := raw
	proto := ProtocolSFTP
	if idx := strings.Index(s, "://"); idx >= 0 {
		p := Protocol(strings.ToLower(s[:idx]))
		switch p {
		case ProtocolSFTP, ProtocolSCP, ProtocolFTP, ProtocolFTPS:
			proto = p
		default:
			return Address{}, gwerr.New(gwerr.BadAddress, fmt.Sprintf("unknown protocol %q", p))
		}
		s = s[idx+3:]
	}
	if s == "" {
		return Address{}, gwerr.New(gwerr.BadAddress, "missing host")
	}

	username := currentUsername()
	if idx := strings.LastIndex(s, "@"); idx >= 0 {
		username = s[:idx]
		s = s[idx+1:]
		if username == "" {
			return Address{}, gwerr.New(gwerr.BadAddress, "empty username before @")
		}
	}
	if s == "" {
		return Address{}, gwerr.New(gwerr.BadAddress, "missing host")
	}

	host := s
	port := DefaultPort(proto)
	if idx := strings.LastIndex(s, ":"); idx >= 0 && !strings.Contains(s[idx+1:], "]") {
		host = s[:idx]
		portStr := s[idx+1:]
		p, err := strconv.Atoi(portStr)
		if err != nil || p <= 0 || p > 65535 {
			return Address{}, gwerr.New(gwerr.BadAddress, fmt.Sprintf("invalid port %q", portStr))
		}
		port = p
	}
	if host == "" {
		return Address{}, gwerr.New(gwerr.BadAddress, "missing host")
	}
	// Reject embedded whitespace/control bytes so callers never hand a
	// backend an address url.Parse would silently have mangled.
	if u, err := url.Parse("x://" + host); err != nil || u.Host == "" {
		return Address{}, gwerr.New(gwerr.BadAddress, fmt.Sprintf("invalid host %q", host))
	}

	return Address{Protocol: proto, Username: username, Host: host, Port: port}, nil
}

func currentUsername() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	return "anonymous"
}
