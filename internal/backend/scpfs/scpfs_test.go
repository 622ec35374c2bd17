package scpfs

import (
	"bufio"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShellEscape(t *testing.T) {
	assert.Equal(t, `'simple'`, shellEscape("simple"))
	assert.Equal(t, `'has space'`, shellEscape("has space"))
	assert.Equal(t, `'it'\''s'`, shellEscape("it's"))
}

func TestShQuoteJoinsEscapedArgs(t *testing.T) {
	assert.Equal(t, `'ls' '-la' '/has space/dir'`, shQuote("ls", "-la", "/has space/dir"))
}

func TestResolve(t *testing.T) {
	assert.Equal(t, "/home/alice", resolve("/home/alice", ""))
	assert.Equal(t, "/home/alice", resolve("/home/alice", "."))
	assert.Equal(t, "/home/alice/sub", resolve("/home/alice", "sub"))
	assert.Equal(t, "/etc", resolve("/home/alice", "/etc"))
}

func TestParseCHeader(t *testing.T) {
	size, err := parseCHeader("C0644 1234 report.csv\n")
	require.NoError(t, err)
	assert.Equal(t, int64(1234), size)
}

func TestParseCHeaderRejectsMalformed(t *testing.T) {
	_, err := parseCHeader("not a header\n")
	assert.Error(t, err)

	_, err = parseCHeader("C0644\n")
	assert.Error(t, err)

	_, err = parseCHeader("C0644 notanumber report.csv\n")
	assert.Error(t, err)
}

func TestReadAckSuccess(t *testing.T) {
	r := bufio.NewReader(strings.NewReader("\x00"))
	assert.NoError(t, readAck(r))
}

func TestReadAckFailureCarriesServerMessage(t *testing.T) {
	r := bufio.NewReader(strings.NewReader("\x01permission denied\n"))
	err := readAck(r)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "permission denied")
}
