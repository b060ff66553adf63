package asciichat

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func key_of(b byte) [SESSION_KEY_LEN]byte {
	var key [SESSION_KEY_LEN]byte
	for i := range key {
		key[i] = b
	}
	return key
}

func with_temp_home(t *testing.T) string {
	t.Helper()
	var home = t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("USERPROFILE", home)
	return home
}

func TestKnownHostFirstUse(t *testing.T) {
	with_temp_home(t)

	// No file at all: unknown host.
	var status, err = check_known_host("example.com", 9001, key_of(0xAA))
	require.NoError(t, err)
	assert.Equal(t, 0, status)
}

func TestKnownHostAddThenMatch(t *testing.T) {
	var home = with_temp_home(t)

	require.NoError(t, add_known_host("example.com", 9001, key_of(0xAA), "laptop"))

	var status, err = check_known_host("example.com", 9001, key_of(0xAA))
	require.NoError(t, err)
	assert.Equal(t, 1, status)

	// check is read-only and repeatable.
	status, err = check_known_host("example.com", 9001, key_of(0xAA))
	require.NoError(t, err)
	assert.Equal(t, 1, status)

	// Directory and file modes.
	var dir_info, dir_err = os.Stat(filepath.Join(home, KNOWN_HOSTS_DIR))
	require.NoError(t, dir_err)
	assert.Equal(t, os.FileMode(0o700), dir_info.Mode().Perm())

	var file_info, file_err = os.Stat(known_hosts_path())
	require.NoError(t, file_err)
	assert.Equal(t, os.FileMode(0o600), file_info.Mode().Perm())
}

func TestKnownHostMismatchIsMITM(t *testing.T) {
	with_temp_home(t)

	require.NoError(t, add_known_host("h", 1234, key_of(0xAA), ""))

	var status, err = check_known_host("h", 1234, key_of(0xBB))
	require.NoError(t, err)
	assert.Equal(t, -1, status)

	var banner = mitm_warning("h", 1234, key_of(0xAA), key_of(0xBB))
	assert.Contains(t, banner, "REMOTE HOST IDENTIFICATION HAS CHANGED")
	assert.Contains(t, banner, "h:1234")
	assert.Contains(t, banner, "aaaaaaaa")
	assert.Contains(t, banner, "bbbbbbbb")
}

func TestKnownHostPortsAreDistinct(t *testing.T) {
	with_temp_home(t)

	require.NoError(t, add_known_host("h", 1234, key_of(0x01), ""))

	var status, err = check_known_host("h", 12345, key_of(0x01))
	require.NoError(t, err)
	assert.Equal(t, 0, status, "h:1234 must not answer for h:12345")
}

func TestKnownHostRemove(t *testing.T) {
	with_temp_home(t)

	require.NoError(t, add_known_host("a", 1, key_of(0x01), ""))
	require.NoError(t, add_known_host("b", 2, key_of(0x02), "keep me"))

	require.NoError(t, remove_known_host("a", 1))

	var status, err = check_known_host("a", 1, key_of(0x01))
	require.NoError(t, err)
	assert.Equal(t, 0, status)

	status, err = check_known_host("b", 2, key_of(0x02))
	require.NoError(t, err)
	assert.Equal(t, 1, status, "unrelated records survive a remove")
}

func TestKnownHostRemoveMissingFileIsFine(t *testing.T) {
	with_temp_home(t)
	assert.NoError(t, remove_known_host("nobody", 1))
}

func TestKnownHostCommentsIgnored(t *testing.T) {
	var home = with_temp_home(t)

	require.NoError(t, os.MkdirAll(filepath.Join(home, KNOWN_HOSTS_DIR), 0o700))
	var content = "# this is a comment\n" +
		"h:1 x25519 " + strings.Repeat("01", SESSION_KEY_LEN) + " trailing comment\n"
	require.NoError(t, os.WriteFile(known_hosts_path(), []byte(content), 0o600))

	var status, err = check_known_host("h", 1, key_of(0x01))
	require.NoError(t, err)
	assert.Equal(t, 1, status)
}

func TestVerifyPeerKeyFlow(t *testing.T) {
	with_temp_home(t)
	LogSetOutput(io.Discard)
	defer LogSetOutput(os.Stderr)

	// First use pins.
	require.NoError(t, verify_peer_key("peer", 7000, key_of(0x42)))

	// Same key verifies.
	require.NoError(t, verify_peer_key("peer", 7000, key_of(0x42)))

	// Different key aborts.
	var err = verify_peer_key("peer", 7000, key_of(0x43))
	assert.ErrorIs(t, err, ErrMITMDetected)
}
