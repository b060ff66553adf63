package asciichat

/*------------------------------------------------------------------
 *
 * Purpose:   	Common types and error values shared by the whole
 *		ascii-chat core.
 *
 * Description:	ascii-chat is a peer-to-peer terminal video/audio chat.
 *		A webcam image comes in as 8-bit RGB, gets quantized and
 *		rendered into colorized glyphs sized for the remote
 *		terminal, then framed, checksummed, and queued for the
 *		transport.  The pieces here are the vocabulary every
 *		other file speaks: pixels, images, terminal codecs and
 *		formats, and the error taxonomy.
 *
 *---------------------------------------------------------------*/

import (
	"errors"
)

/* Error taxonomy.  Every core operation reports failure as one of
 * these (possibly wrapped with context); nothing signals out of band. */

var ErrInvalidParam = errors.New("invalid parameter")
var ErrNotFound = errors.New("not found")
var ErrResourceExhausted = errors.New("resource exhausted")
var ErrCorrupt = errors.New("corrupt data")
var ErrShortWrite = errors.New("short write")
var ErrMITMDetected = errors.New("known host key mismatch")
var ErrQueueClosed = errors.New("queue closed")

/* One pixel.  Capture hands us 8 bits per channel and that is all the
 * pipeline ever assumes. */

type rgb_t struct {
	r, g, b uint8
}

/* One captured frame.  Row-major, w*h pixels.  Created by a video
 * source, consumed once by the render pipeline, then released. */

type image_t struct {
	w, h   int
	pixels []rgb_t
}

func image_create(w int, h int) (*image_t, error) {
	if w <= 0 || h <= 0 || w > 1<<14 || h > 1<<14 {
		return nil, ErrInvalidParam
	}
	return &image_t{
		w:      w,
		h:      h,
		pixels: make([]rgb_t, w*h),
	}, nil
}

func (img *image_t) at(x int, y int) rgb_t {
	return img.pixels[y*img.w+x]
}

func (img *image_t) set(x int, y int, p rgb_t) {
	img.pixels[y*img.w+x] = p
}

/*
 * Terminal codec.  The color depth the remote terminal can display.
 * Negotiation picks exactly one of these per session.
 */

type terminal_codec_t int

const (
	TERM_CODEC_TRUECOLOR terminal_codec_t = iota /* 24-bit SGR 38;2 */
	TERM_CODEC_256                               /* xterm 256 palette, SGR 38;5 */
	TERM_CODEC_16                                /* classic 16 colors */
	TERM_CODEC_MONO                              /* glyphs only, no color */
)

func (c terminal_codec_t) String() string {
	switch c {
	case TERM_CODEC_TRUECOLOR:
		return "truecolor"
	case TERM_CODEC_256:
		return "256color"
	case TERM_CODEC_16:
		return "16color"
	case TERM_CODEC_MONO:
		return "mono"
	}
	return "unknown"
}

/* SDP capability tag for each codec ("ACIP" namespace). */

func (c terminal_codec_t) acip_tag() string {
	switch c {
	case TERM_CODEC_TRUECOLOR:
		return "ACIP-TC"
	case TERM_CODEC_256:
		return "ACIP-256"
	case TERM_CODEC_16:
		return "ACIP-16"
	case TERM_CODEC_MONO:
		return "ACIP-MONO"
	}
	return ""
}

type renderer_t int

const (
	RENDERER_BLOCK renderer_t = iota /* one cell per pixel */
	RENDERER_HALFBLOCK               /* U+2580, two pixel rows per cell */
	RENDERER_BRAILLE                 /* U+2800.., 2x4 pixels per cell */
)

func (r renderer_t) String() string {
	switch r {
	case RENDERER_BLOCK:
		return "block"
	case RENDERER_HALFBLOCK:
		return "halfblock"
	case RENDERER_BRAILLE:
		return "braille"
	}
	return "unknown"
}

func renderer_from_string(s string) (renderer_t, bool) {
	switch s {
	case "block":
		return RENDERER_BLOCK, true
	case "halfblock":
		return RENDERER_HALFBLOCK, true
	case "braille":
		return RENDERER_BRAILLE, true
	}
	return RENDERER_BLOCK, false
}

type charset_t int

const (
	CHARSET_ASCII charset_t = iota
	CHARSET_UTF8
	CHARSET_UTF8_WIDE
)

func (c charset_t) String() string {
	switch c {
	case CHARSET_ASCII:
		return "ascii"
	case CHARSET_UTF8:
		return "utf8"
	case CHARSET_UTF8_WIDE:
		return "utf8_wide"
	}
	return "unknown"
}

func charset_from_string(s string) (charset_t, bool) {
	switch s {
	case "ascii":
		return CHARSET_ASCII, true
	case "utf8":
		return CHARSET_UTF8, true
	case "utf8_wide":
		return CHARSET_UTF8_WIDE, true
	}
	return CHARSET_ASCII, false
}

type compression_t int

const (
	COMPRESS_NONE compression_t = iota
	COMPRESS_RLE
	COMPRESS_ZSTD
)

func (c compression_t) String() string {
	switch c {
	case COMPRESS_NONE:
		return "none"
	case COMPRESS_RLE:
		return "rle"
	case COMPRESS_ZSTD:
		return "zstd"
	}
	return "unknown"
}

func compression_from_string(s string) (compression_t, bool) {
	switch s {
	case "none":
		return COMPRESS_NONE, true
	case "rle":
		return COMPRESS_RLE, true
	case "zstd":
		return COMPRESS_ZSTD, true
	}
	return COMPRESS_NONE, false
}

/*
 * Terminal format.  Everything about the remote terminal besides color
 * depth: size, renderer style, charset, stream compression, and whether
 * CSI REP (ECMA-48 repeat) is understood.
 */

type terminal_format_t struct {
	width       int
	height      int
	renderer    renderer_t
	charset     charset_t
	compression compression_t
	csi_rep     bool
}

/* A (codec, format) pair.  Capability vectors are ordered best first. */

type terminal_capability_t struct {
	codec  terminal_codec_t
	format terminal_format_t
}

func default_terminal_format() terminal_format_t {
	return terminal_format_t{
		width:       80,
		height:      24,
		renderer:    RENDERER_BLOCK,
		charset:     CHARSET_ASCII,
		compression: COMPRESS_NONE,
		csi_rep:     false,
	}
}
