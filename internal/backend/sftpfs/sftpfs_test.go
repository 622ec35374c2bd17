package sftpfs

import (
	"os"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/warrengalyen/gateway/internal/gwerr"
)

func TestParsePort(t *testing.T) {
	n, err := parsePort("2222")
	assert.NoError(t, err)
	assert.Equal(t, 2222, n)
}

func TestParsePortRejectsEmpty(t *testing.T) {
	_, err := parsePort("")
	assert.Error(t, err)
}

func TestParsePortRejectsNonNumeric(t *testing.T) {
	_, err := parsePort("22x")
	assert.Error(t, err)
}

func TestResolve(t *testing.T) {
	assert.Equal(t, "/home/alice", resolve("/home/alice", ""))
	assert.Equal(t, "/home/alice", resolve("/home/alice", "."))
	assert.Equal(t, "/home/alice/sub", resolve("/home/alice", "sub"))
	assert.Equal(t, "/etc", resolve("/home/alice", "/etc"))
}

func TestTranslateErrNotExist(t *testing.T) {
	_, statErr := os.Stat("/nonexistent/path/that/should/not/exist")
	err := translateErr(statErr, "stat")
	assert.Equal(t, gwerr.NoSuchFile, gwerr.KindOf(err))
}

func TestTranslateErrPermission(t *testing.T) {
	permErr := &os.PathError{Op: "open", Path: "secret", Err: syscall.EACCES}
	err := translateErr(permErr, "open")
	assert.Equal(t, gwerr.PexError, gwerr.KindOf(err))
}

func TestTranslateErrFallsBackToIoErr(t *testing.T) {
	err := translateErr(syscall.ECONNRESET, "read")
	assert.Equal(t, gwerr.IoErr, gwerr.KindOf(err))
}
