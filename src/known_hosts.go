package asciichat

/*------------------------------------------------------------------
 *
 * Purpose:   	Trust-on-first-use pinning of the peer's session key.
 *
 * Description:	Works the way SSH's known_hosts does.  One record per
 *		line in ~/.ascii-chat/known_hosts:
 *
 *		    hostname:port x25519 <64 hex digits> [comment]
 *
 *		Lines starting with '#' are comments.  Adding appends;
 *		removing rewrites the file without the matching lines.
 *		A key mismatch on a known host means someone is in the
 *		middle, and the session must not proceed.
 *
 *		File operations are serialized within the process by one
 *		mutex; nothing guards against another process racing us,
 *		same as ssh.
 *
 *---------------------------------------------------------------*/

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

const KNOWN_HOSTS_DIR = ".ascii-chat"
const KNOWN_HOSTS_FILE = "known_hosts"
const KNOWN_HOSTS_KEY_ALGO = "x25519"

const SESSION_KEY_LEN = 32

var known_hosts_mutex tracked_mutex

func home_dir() string {
	if runtime.GOOS == "windows" {
		if profile := os.Getenv("USERPROFILE"); profile != "" {
			return profile
		}
	}
	return os.Getenv("HOME")
}

func known_hosts_path() string {
	return filepath.Join(home_dir(), KNOWN_HOSTS_DIR, KNOWN_HOSTS_FILE)
}

func host_prefix(host string, port int) string {
	return fmt.Sprintf("%s:%d ", host, port)
}

/*-------------------------------------------------------------------
 *
 * Name:        check_known_host
 *
 * Purpose:     Compare a received session key against the pinned one.
 *
 * Inputs:	host, port - Peer address as dialed.
 *		key	   - The 32-byte public key the peer presented.
 *
 * Returns:	+1  key matches the pinned key.
 *		-1  key DIFFERS: treat as an active MITM.
 *		 0  no file, or host never seen (first use).
 *
 * Description:	Read-only and repeatable; the first line with a matching
 *		"host:port " prefix decides.
 *
 *--------------------------------------------------------------------*/

func check_known_host(host string, port int, key [SESSION_KEY_LEN]byte) (int, error) {
	var stored, found, err = lookup_known_host(host, port)
	if err != nil {
		return 0, err
	}
	if !found {
		return 0, nil
	}
	if stored == key {
		return 1, nil
	}
	return -1, nil
}

/* The pinned key for a host, if any. */

func lookup_known_host(host string, port int) ([SESSION_KEY_LEN]byte, bool, error) {
	known_hosts_mutex.Lock()
	defer known_hosts_mutex.Unlock()

	var none [SESSION_KEY_LEN]byte
	var data, err = os.ReadFile(known_hosts_path())
	if err != nil {
		if os.IsNotExist(err) {
			return none, false, nil
		}
		return none, false, fmt.Errorf("reading known hosts: %w", err)
	}

	var prefix = host_prefix(host, port)
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.HasPrefix(line, "#") || !strings.HasPrefix(line, prefix) {
			continue
		}

		var fields = strings.Fields(line)
		if len(fields) < 3 {
			logger.Warn("malformed known_hosts line skipped", "line", line)
			continue
		}
		var stored, decode_err = hex.DecodeString(fields[2])
		if decode_err != nil || len(stored) != SESSION_KEY_LEN {
			logger.Warn("malformed known_hosts key skipped", "host", fields[0])
			continue
		}

		var key [SESSION_KEY_LEN]byte
		copy(key[:], stored)
		return key, true, nil
	}

	return none, false, nil
}

/*-------------------------------------------------------------------
 *
 * Name:        add_known_host
 *
 * Purpose:     Pin a key: append one record, creating ~/.ascii-chat
 *		(mode 0700) and the file (mode 0600) if needed.
 *
 *--------------------------------------------------------------------*/

func add_known_host(host string, port int, key [SESSION_KEY_LEN]byte, comment string) error {
	known_hosts_mutex.Lock()
	defer known_hosts_mutex.Unlock()

	var dir = filepath.Join(home_dir(), KNOWN_HOSTS_DIR)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}

	var f, err = os.OpenFile(known_hosts_path(), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("opening known hosts: %w", err)
	}
	defer f.Close()

	var record = fmt.Sprintf("%s:%d %s %s", host, port, KNOWN_HOSTS_KEY_ALGO, hex.EncodeToString(key[:]))
	if comment != "" {
		record += " " + comment
	}
	if _, err := fmt.Fprintln(f, record); err != nil {
		return fmt.Errorf("appending known host: %w", err)
	}

	logger.Info("pinned host key", "host", host, "port", port)
	return nil
}

/*-------------------------------------------------------------------
 *
 * Name:        remove_known_host
 *
 * Purpose:     Forget a host: rewrite the file without its lines.
 *
 *--------------------------------------------------------------------*/

func remove_known_host(host string, port int) error {
	known_hosts_mutex.Lock()
	defer known_hosts_mutex.Unlock()

	var path = known_hosts_path()
	var data, err = os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading known hosts: %w", err)
	}

	var prefix = host_prefix(host, port)
	var kept []string
	for _, line := range strings.Split(strings.TrimRight(string(data), "\n"), "\n") {
		if strings.HasPrefix(strings.TrimRight(line, "\r"), prefix) {
			continue
		}
		kept = append(kept, line)
	}

	var out = strings.Join(kept, "\n")
	if out != "" {
		out += "\n"
	}
	if err := os.WriteFile(path, []byte(out), 0o600); err != nil {
		return fmt.Errorf("rewriting known hosts: %w", err)
	}
	return nil
}

/*
 * The warning the user sees when the pinned key and the presented key
 * disagree.  The session aborts after printing it.
 */

func mitm_warning(host string, port int, expected [SESSION_KEY_LEN]byte, received [SESSION_KEY_LEN]byte) string {
	var b strings.Builder
	b.WriteString("@@@@@@@@@@@@@@@@@@@@@@@@@@@@@@@@@@@@@@@@@@@@@@@@@@@@@@@@@@@\n")
	b.WriteString("@  WARNING: REMOTE HOST IDENTIFICATION HAS CHANGED!       @\n")
	b.WriteString("@@@@@@@@@@@@@@@@@@@@@@@@@@@@@@@@@@@@@@@@@@@@@@@@@@@@@@@@@@@\n")
	b.WriteString("IT IS POSSIBLE THAT SOMEONE IS DOING SOMETHING NASTY!\n")
	b.WriteString("Someone could be eavesdropping on you right now (man-in-the-middle attack)!\n")
	fmt.Fprintf(&b, "Host: %s:%d\n", host, port)
	fmt.Fprintf(&b, "Expected key: %s\n", hex.EncodeToString(expected[:]))
	fmt.Fprintf(&b, "Received key: %s\n", hex.EncodeToString(received[:]))
	fmt.Fprintf(&b, "Remove the old key with: ascii-chat-client --forget %s:%d\n", host, port)
	return b.String()
}

/*
 * Client-side gate: first use pins, match proceeds, mismatch aborts.
 */

func verify_peer_key(host string, port int, received [SESSION_KEY_LEN]byte) error {
	var status, err = check_known_host(host, port, received)
	if err != nil {
		return err
	}
	switch status {
	case 1:
		logger.Debug("host key matches pinned key", "host", host, "port", port)
		return nil
	case 0:
		logger.Info("first connection to host, pinning key", "host", host, "port", port)
		return add_known_host(host, port, received, "")
	default:
		var expected, _, _ = lookup_known_host(host, port)
		fmt.Fprint(os.Stderr, mitm_warning(host, port, expected, received))
		return fmt.Errorf("host %s:%d: %w", host, port, ErrMITMDetected)
	}
}
