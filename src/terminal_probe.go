package asciichat

/*------------------------------------------------------------------
 *
 * Purpose:   	Figure out what the local terminal can display.
 *
 * Description:	No terminfo spelunking, just the signals terminals
 *		actually set: COLORTERM for truecolor, TERM substrings
 *		for 256/16 color, LANG/LC_ALL for UTF-8, and the
 *		TIOCGWINSZ ioctl for the window size.  The result feeds
 *		the SDP offer as an ordered capability vector, best
 *		codec first, always ending in monochrome so negotiation
 *		can never come up empty.
 *
 *---------------------------------------------------------------*/

import (
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"golang.org/x/sys/unix"
)

type terminal_info_t struct {
	rows   int
	cols   int
	codec  terminal_codec_t /* best supported */
	utf8   bool
	is_tty bool
}

const TERMINAL_DEFAULT_COLS = 80
const TERMINAL_DEFAULT_ROWS = 24

/* Best color depth the environment admits to. */

func terminal_detect_codec() terminal_codec_t {
	var colorterm = strings.ToLower(os.Getenv("COLORTERM"))
	if strings.Contains(colorterm, "truecolor") || strings.Contains(colorterm, "24bit") {
		return TERM_CODEC_TRUECOLOR
	}

	var term = strings.ToLower(os.Getenv("TERM"))
	if strings.Contains(term, "256color") {
		return TERM_CODEC_256
	}
	if strings.Contains(term, "color") || strings.Contains(term, "xterm") {
		return TERM_CODEC_16
	}
	return TERM_CODEC_MONO
}

func terminal_detect_utf8() bool {
	for _, name := range []string{"LC_ALL", "LC_CTYPE", "LANG"} {
		var v = os.Getenv(name)
		if v == "" {
			continue
		}
		var upper = strings.ToUpper(v)
		return strings.Contains(upper, "UTF-8") || strings.Contains(upper, "UTF8")
	}
	return false
}

/* Window size from the controlling TTY; the usual defaults when we are
 * not talking to one. */

func terminal_detect_size() (int, int, bool) {
	for _, f := range []*os.File{os.Stdout, os.Stderr, os.Stdin} {
		if !isatty.IsTerminal(f.Fd()) {
			continue
		}
		var ws, err = unix.IoctlGetWinsize(int(f.Fd()), unix.TIOCGWINSZ)
		if err != nil || ws.Col == 0 || ws.Row == 0 {
			continue
		}
		return int(ws.Row), int(ws.Col), true
	}
	return TERMINAL_DEFAULT_ROWS, TERMINAL_DEFAULT_COLS, false
}

func terminal_probe() terminal_info_t {
	var rows, cols, is_tty = terminal_detect_size()
	var info = terminal_info_t{
		rows:   rows,
		cols:   cols,
		codec:  terminal_detect_codec(),
		utf8:   terminal_detect_utf8(),
		is_tty: is_tty,
	}
	logger.Debug("terminal probe",
		"codec", info.codec, "utf8", info.utf8,
		"rows", info.rows, "cols", info.cols, "tty", info.is_tty)
	return info
}

/*-------------------------------------------------------------------
 *
 * Name:        terminal_capabilities
 *
 * Purpose:     Turn a probe result into the ordered preference vector
 *		for the SDP offer.
 *
 * Description:	Best to worst from the detected depth down, always
 *		terminated by monochrome.  All entries share the probed
 *		format; the charset downgrades to ascii for the mono
 *		tail so the worst case renders anywhere.
 *
 *--------------------------------------------------------------------*/

func terminal_capabilities(info terminal_info_t, renderer renderer_t, compression compression_t) []terminal_capability_t {
	var format = terminal_format_t{
		width:       info.cols,
		height:      info.rows,
		renderer:    renderer,
		charset:     IfThenElse(info.utf8, CHARSET_UTF8, CHARSET_ASCII),
		compression: compression,
		csi_rep:     true,
	}
	if !info.utf8 && renderer != RENDERER_BLOCK {
		format.renderer = RENDERER_BLOCK
	}

	var ladder []terminal_codec_t
	switch info.codec {
	case TERM_CODEC_TRUECOLOR:
		ladder = []terminal_codec_t{TERM_CODEC_TRUECOLOR, TERM_CODEC_256, TERM_CODEC_16}
	case TERM_CODEC_256:
		ladder = []terminal_codec_t{TERM_CODEC_256, TERM_CODEC_16}
	case TERM_CODEC_16:
		ladder = []terminal_codec_t{TERM_CODEC_16}
	}

	var caps []terminal_capability_t
	for _, codec := range ladder {
		caps = append(caps, terminal_capability_t{codec: codec, format: format})
	}

	var mono_format = format
	mono_format.charset = CHARSET_ASCII
	mono_format.renderer = RENDERER_BLOCK
	caps = append(caps, terminal_capability_t{codec: TERM_CODEC_MONO, format: mono_format})

	return caps
}
