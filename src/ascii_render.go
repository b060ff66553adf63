package asciichat

/*------------------------------------------------------------------
 *
 * Purpose:   	Pixels to glyphs and ANSI escapes, one row at a time.
 *
 * Description:	Four renderer variants share one output-side RLE driver:
 *
 *		  foreground  - one glyph per pixel from the luma ramp,
 *				pixel color as SGR foreground.
 *		  background  - one space per pixel, pixel color as SGR
 *				background ("block").
 *		  halfblock   - U+2580 per cell, top pixel as foreground,
 *				bottom pixel as background.  Doubles the
 *				vertical resolution.
 *		  braille     - U+2800..U+28FF per cell, one dot per
 *				pixel of a 2x4 tile, on/off by luma.
 *
 *		A "style" is the pair (foreground, background) as it will
 *		be emitted for the negotiated codec.  Adjacent cells with
 *		the same style and glyph coalesce into a run; a run
 *		flushes as at most one style change plus either CSI REP
 *		or the glyph repeated literally.
 *
 *		Every write respects the destination capacity.  When the
 *		next block does not fit, the row returns a short write
 *		and the caller grows the buffer and retries the row.
 *
 *---------------------------------------------------------------*/

import (
	"strconv"

	"github.com/mattn/go-runewidth"
)

/* Monotone luminance ramp, darkest to brightest. */
const ASCII_RAMP = "   ...',;:clodxkO0KXNWM"

/* Unicode ramps for terminals that can take them.  The wide ramp is
 * fullwidth, two columns per glyph. */
var utf8_ramp = []rune{' ', '·', ':', '░', '▒', '▓', '█'}
var utf8_wide_ramp = []rune{'　', '．', '：', 'ｏ', 'ｘ', '０', '＠', 'Ｍ'}

const REP_MIN_RUN_DEFAULT = 3

const luma_dot_threshold = 128

/*
 * Everything the renderer needs to know about the session, fixed at
 * negotiation time.
 */

type render_context_t struct {
	codec       terminal_codec_t
	format      terminal_format_t
	background  bool /* background-block mode */
	rep_min_run int
	dither      bool

	rle rle_state_t
}

func render_context_create(codec terminal_codec_t, format terminal_format_t, background bool) *render_context_t {
	var ctx = &render_context_t{
		codec:       codec,
		format:      format,
		background:  background,
		rep_min_run: REP_MIN_RUN_DEFAULT,
		dither:      codec != TERM_CODEC_MONO,
	}
	// Unicode renderers need a unicode charset.
	if format.charset == CHARSET_ASCII && format.renderer != RENDERER_BLOCK {
		ctx.format.renderer = RENDERER_BLOCK
	}
	return ctx
}

/*
 * Run-length state.  One pending run (style bytes + glyph bytes +
 * count) and the last style actually written to the output.  The
 * style bytes are the exact escape sequence for the negotiated codec,
 * so style equality is byte equality.
 */

const rle_style_max = 48
const rle_glyph_max = 8

type rle_state_t struct {
	style     [rle_style_max]byte
	style_len int
	glyph     [rle_glyph_max]byte
	glyph_len int
	count     int
	valid     bool /* count > 0 implies the style/glyph fields are meaningful */

	last_style     [rle_style_max]byte
	last_style_len int
	last_valid     bool
}

/* Frame start: no pending run, no style memory. */

func (st *rle_state_t) reset_frame() {
	st.count = 0
	st.valid = false
	st.last_valid = false
}

func (st *rle_state_t) same_run(style []byte, glyph []byte) bool {
	return st.valid &&
		st.style_len == len(style) && string(st.style[:st.style_len]) == string(style) &&
		st.glyph_len == len(glyph) && string(st.glyph[:st.glyph_len]) == string(glyph)
}

func (st *rle_state_t) start_run(style []byte, glyph []byte) {
	st.style_len = copy(st.style[:], style)
	st.glyph_len = copy(st.glyph[:], glyph)
	st.count = 1
	st.valid = true
}

func (st *rle_state_t) style_changed() bool {
	return !st.last_valid ||
		st.last_style_len != st.style_len ||
		string(st.last_style[:st.last_style_len]) != string(st.style[:st.style_len])
}

/*-------------------------------------------------------------------
 *
 * Name:        rle_state_t.flush
 *
 * Purpose:     Write the pending run: at most one style change, at
 *		most one glyph-plus-repeat block, then clear the counter.
 *
 * Inputs:	dst	- Destination buffer.
 *		pos	- Write offset so far.
 *		csi_rep	- Remote understands ECMA-48 REP.
 *		rep_min	- Minimum run length worth a REP sequence;
 *			  below it the literal bytes are cheaper.
 *
 * Returns:	New write offset.  ErrShortWrite (with pos unchanged and
 *		the run intact) when the run does not fit.
 *
 *--------------------------------------------------------------------*/

func (st *rle_state_t) flush(dst []byte, pos int, csi_rep bool, rep_min int) (int, error) {
	if st.count == 0 {
		return pos, nil
	}

	var rep [16]byte
	var rep_seq []byte
	var use_rep = csi_rep && st.count >= rep_min

	var needed = 0
	if st.style_changed() {
		needed += st.style_len
	}
	if use_rep {
		rep_seq = append(rep[:0], 0x1b, '[')
		rep_seq = strconv.AppendInt(rep_seq, int64(st.count-1), 10)
		rep_seq = append(rep_seq, 'b')
		needed += st.glyph_len + len(rep_seq)
	} else {
		needed += st.glyph_len * st.count
	}

	if pos+needed > len(dst) {
		return pos, ErrShortWrite
	}

	if st.style_changed() {
		pos += copy(dst[pos:], st.style[:st.style_len])
		st.last_style_len = copy(st.last_style[:], st.style[:st.style_len])
		st.last_valid = true
	}

	if use_rep {
		pos += copy(dst[pos:], st.glyph[:st.glyph_len])
		pos += copy(dst[pos:], rep_seq)
	} else {
		for i := 0; i < st.count; i++ {
			pos += copy(dst[pos:], st.glyph[:st.glyph_len])
		}
	}

	st.count = 0
	st.valid = false
	return pos, nil
}

/* Push one cell into the run machinery, flushing on style/glyph change. */

func (ctx *render_context_t) rle_push(dst []byte, pos int, style []byte, glyph []byte) (int, error) {
	if ctx.rle.same_run(style, glyph) {
		ctx.rle.count++
		return pos, nil
	}
	var new_pos, err = ctx.rle.flush(dst, pos, ctx.format.csi_rep, ctx.rep_min_run)
	if err != nil {
		return pos, err
	}
	ctx.rle.start_run(style, glyph)
	return new_pos, nil
}

/* SGR builders.  Each appends to the caller's scratch and returns it. */

func append_sgr_rgb(buf []byte, selector string, c rgb_t) []byte {
	buf = append(buf, 0x1b, '[')
	buf = append(buf, selector...)
	buf = strconv.AppendInt(buf, int64(c.r), 10)
	buf = append(buf, ';')
	buf = strconv.AppendInt(buf, int64(c.g), 10)
	buf = append(buf, ';')
	buf = strconv.AppendInt(buf, int64(c.b), 10)
	buf = append(buf, 'm')
	return buf
}

func append_sgr_256(buf []byte, selector string, n uint8) []byte {
	buf = append(buf, 0x1b, '[')
	buf = append(buf, selector...)
	buf = strconv.AppendInt(buf, int64(n), 10)
	buf = append(buf, 'm')
	return buf
}

func append_sgr_16(buf []byte, n uint8, background bool) []byte {
	var code int
	if n < 8 {
		code = IfThenElse(background, 40, 30) + int(n)
	} else {
		code = IfThenElse(background, 100, 90) + int(n) - 8
	}
	buf = append(buf, 0x1b, '[')
	buf = strconv.AppendInt(buf, int64(code), 10)
	buf = append(buf, 'm')
	return buf
}

/*
 * Style bytes for one cell.  has_bg selects whether a background color
 * is part of the style (block-background and halfblock modes).
 * Mono has no style at all.
 */

func (ctx *render_context_t) cell_style(buf []byte, fg rgb_t, bg rgb_t, has_bg bool, x int, y int) []byte {
	switch ctx.codec {
	case TERM_CODEC_TRUECOLOR:
		buf = append_sgr_rgb(buf, "38;2;", fg)
		if has_bg {
			buf = append_sgr_rgb(buf, "48;2;", bg)
		}
	case TERM_CODEC_256:
		var n, m uint8
		if ctx.dither {
			n = palette256_dithered(fg.r, fg.g, fg.b, x, y)
			m = palette256_dithered(bg.r, bg.g, bg.b, x, y)
		} else {
			n = palette256(fg.r, fg.g, fg.b)
			m = palette256(bg.r, bg.g, bg.b)
		}
		buf = append_sgr_256(buf, "38;5;", n)
		if has_bg {
			buf = append_sgr_256(buf, "48;5;", m)
		}
	case TERM_CODEC_16:
		buf = append_sgr_16(buf, ansi16(fg.r, fg.g, fg.b), false)
		if has_bg {
			buf = append_sgr_16(buf, ansi16(bg.r, bg.g, bg.b), true)
		}
	case TERM_CODEC_MONO:
		// no color
	}
	return buf
}

/* Glyph for a luma value, honoring the charset. */

func (ctx *render_context_t) ramp_glyph(buf []byte, y uint8) []byte {
	switch ctx.format.charset {
	case CHARSET_UTF8:
		var r = utf8_ramp[int(y)*(len(utf8_ramp)-1)/255]
		return utf8_append_rune(buf, r)
	case CHARSET_UTF8_WIDE:
		var r = utf8_wide_ramp[int(y)*(len(utf8_wide_ramp)-1)/255]
		return utf8_append_rune(buf, r)
	default:
		return append(buf, ASCII_RAMP[int(y)*(len(ASCII_RAMP)-1)/255])
	}
}

func utf8_append_rune(buf []byte, r rune) []byte {
	return append(buf, string(r)...)
}

/* Terminal columns one ramp glyph occupies for this charset. */

func render_cell_columns(charset charset_t) int {
	if charset == CHARSET_UTF8_WIDE {
		return runewidth.RuneWidth(utf8_wide_ramp[len(utf8_wide_ramp)-1])
	}
	return 1
}

/*-------------------------------------------------------------------
 *
 * Name:        render_row
 *
 * Purpose:     Render width pixels as one row of glyphs and escapes.
 *
 * Inputs:	pixels	- At least width pixels.
 *		dst	- Destination; len(dst) is the capacity.
 *		width	- Cells to emit.
 *		y	- Absolute pixel row, for dither seeding.
 *
 * Returns:	Bytes written.  ErrShortWrite when dst is too small; the
 *		RLE state is restored so the caller can grow and retry
 *		the row.
 *
 *--------------------------------------------------------------------*/

func (ctx *render_context_t) render_row(pixels []rgb_t, dst []byte, width int, y int) (int, error) {
	if width < 0 || len(pixels) < width {
		return 0, ErrInvalidParam
	}

	var saved = ctx.rle
	var pos = 0
	var style_scratch [rle_style_max]byte
	var glyph_scratch [rle_glyph_max]byte

	for x := 0; x < width; x++ {
		var p = pixels[x]
		var style, glyph []byte

		if ctx.background {
			style = ctx.cell_style(style_scratch[:0], p, p, true, x, y)
			glyph = append(glyph_scratch[:0], ' ')
		} else {
			style = ctx.cell_style(style_scratch[:0], p, rgb_t{}, false, x, y)
			glyph = ctx.ramp_glyph(glyph_scratch[:0], luma(p.r, p.g, p.b))
		}

		var new_pos, err = ctx.rle_push(dst, pos, style, glyph)
		if err != nil {
			ctx.rle = saved
			return pos, err
		}
		pos = new_pos
	}

	var new_pos, err = ctx.rle.flush(dst, pos, ctx.format.csi_rep, ctx.rep_min_run)
	if err != nil {
		ctx.rle = saved
		return pos, err
	}
	return new_pos, nil
}

/*-------------------------------------------------------------------
 *
 * Name:        render_row_halfblock
 *
 * Purpose:     Render a pair of pixel rows as one row of U+2580 cells:
 *		top pixel in the foreground, bottom in the background.
 *
 * Inputs:	top, bottom - Pixel rows.  bottom may be nil on an odd
 *			      final row; it renders as black.
 *
 *--------------------------------------------------------------------*/

func (ctx *render_context_t) render_row_halfblock(top []rgb_t, bottom []rgb_t, dst []byte, width int, y int) (int, error) {
	if width < 0 || len(top) < width || (bottom != nil && len(bottom) < width) {
		return 0, ErrInvalidParam
	}

	var saved = ctx.rle
	var pos = 0
	var style_scratch [rle_style_max]byte
	var glyph_scratch [rle_glyph_max]byte

	for x := 0; x < width; x++ {
		var t = top[x]
		var b = rgb_t{}
		if bottom != nil {
			b = bottom[x]
		}

		var style, glyph []byte
		if ctx.codec == TERM_CODEC_MONO {
			// No colors to carry the two sub-pixels; average them
			// onto the luma ramp instead.
			var avg = uint8((int(luma(t.r, t.g, t.b)) + int(luma(b.r, b.g, b.b))) / 2)
			glyph = ctx.ramp_glyph(glyph_scratch[:0], avg)
		} else {
			style = ctx.cell_style(style_scratch[:0], t, b, true, x, y)
			glyph = utf8_append_rune(glyph_scratch[:0], '▀')
		}

		var new_pos, err = ctx.rle_push(dst, pos, style, glyph)
		if err != nil {
			ctx.rle = saved
			return pos, err
		}
		pos = new_pos
	}

	var new_pos, err = ctx.rle.flush(dst, pos, ctx.format.csi_rep, ctx.rep_min_run)
	if err != nil {
		ctx.rle = saved
		return pos, err
	}
	return new_pos, nil
}

/* Braille dot bit for tile position (dx, dy), per U+2800 layout. */

var braille_dot_bits = [4][2]rune{
	{0x01, 0x08},
	{0x02, 0x10},
	{0x04, 0x20},
	{0x40, 0x80},
}

/*-------------------------------------------------------------------
 *
 * Name:        render_row_braille
 *
 * Purpose:     Render up to four pixel rows as one row of braille
 *		cells.  Each cell is a 2x4 pixel tile; a dot is set when
 *		the pixel's luma crosses the threshold.  Cell color is
 *		the tile average.
 *
 * Inputs:	rows	- 1..4 pixel rows; short tiles pad with black.
 *		width	- Pixel width (cells emitted = ceil(width/2)).
 *		y	- Absolute pixel row of rows[0].
 *
 *--------------------------------------------------------------------*/

func (ctx *render_context_t) render_row_braille(rows [][]rgb_t, dst []byte, width int, y int) (int, error) {
	if width < 0 || len(rows) == 0 || len(rows) > 4 {
		return 0, ErrInvalidParam
	}
	for _, row := range rows {
		if len(row) < width {
			return 0, ErrInvalidParam
		}
	}

	var saved = ctx.rle
	var pos = 0
	var style_scratch [rle_style_max]byte
	var glyph_scratch [rle_glyph_max]byte

	for x := 0; x < width; x += 2 {
		var glyph_rune rune = 0x2800
		var sum_r, sum_g, sum_b, n int

		for dy := 0; dy < len(rows); dy++ {
			for dx := 0; dx < 2; dx++ {
				if x+dx >= width {
					continue
				}
				var p = rows[dy][x+dx]
				sum_r += int(p.r)
				sum_g += int(p.g)
				sum_b += int(p.b)
				n++
				if luma(p.r, p.g, p.b) >= luma_dot_threshold {
					glyph_rune |= braille_dot_bits[dy][dx]
				}
			}
		}

		var style []byte
		if ctx.codec != TERM_CODEC_MONO && n > 0 {
			var avg = rgb_t{uint8(sum_r / n), uint8(sum_g / n), uint8(sum_b / n)}
			style = ctx.cell_style(style_scratch[:0], avg, rgb_t{}, false, x, y)
		}
		var glyph = utf8_append_rune(glyph_scratch[:0], glyph_rune)

		var new_pos, err = ctx.rle_push(dst, pos, style, glyph)
		if err != nil {
			ctx.rle = saved
			return pos, err
		}
		pos = new_pos
	}

	var new_pos, err = ctx.rle.flush(dst, pos, ctx.format.csi_rep, ctx.rep_min_run)
	if err != nil {
		ctx.rle = saved
		return pos, err
	}
	return new_pos, nil
}

/*-------------------------------------------------------------------
 *
 * Name:        render_frame
 *
 * Purpose:     Render a whole image into an output buffer, rows
 *		separated by CRLF, colors reset at each row end.
 *
 * Description:	Rows render into the buffer's spare capacity; a short
 *		write grows the buffer and retries the same row.  The
 *		RLE short-write path restores its own state, so a retry
 *		is exact.
 *
 *--------------------------------------------------------------------*/

func render_frame(ctx *render_context_t, img *image_t, out *outbuf_t) error {
	if img == nil || out == nil {
		return ErrInvalidParam
	}

	out.reset()
	ctx.rle.reset_frame()

	var render_one = func(render func(dst []byte) (int, error)) error {
		for {
			var n, err = render(out.tail())
			if err == nil {
				out.advance(n)
				return nil
			}
			if err != ErrShortWrite {
				return err
			}
			out.grow(IfThenElse(out.cap() == 0, OUTBUF_INITIAL_CAP, out.cap()) + 1)
		}
	}

	var row_end = func() {
		if ctx.codec != TERM_CODEC_MONO {
			out.append_string("\x1b[0m")
			ctx.rle.last_valid = false
		}
		out.append_string("\r\n")
	}

	switch ctx.format.renderer {
	case RENDERER_HALFBLOCK:
		for y := 0; y < img.h; y += 2 {
			var top = img.pixels[y*img.w : (y+1)*img.w]
			var bottom []rgb_t
			if y+1 < img.h {
				bottom = img.pixels[(y+1)*img.w : (y+2)*img.w]
			}
			var yy = y
			if err := render_one(func(dst []byte) (int, error) {
				return ctx.render_row_halfblock(top, bottom, dst, img.w, yy)
			}); err != nil {
				return err
			}
			row_end()
		}

	case RENDERER_BRAILLE:
		for y := 0; y < img.h; y += 4 {
			var rows [][]rgb_t
			for dy := 0; dy < 4 && y+dy < img.h; dy++ {
				rows = append(rows, img.pixels[(y+dy)*img.w:(y+dy+1)*img.w])
			}
			var yy = y
			if err := render_one(func(dst []byte) (int, error) {
				return ctx.render_row_braille(rows, dst, img.w, yy)
			}); err != nil {
				return err
			}
			row_end()
		}

	default:
		for y := 0; y < img.h; y++ {
			var row = img.pixels[y*img.w : (y+1)*img.w]
			var yy = y
			if err := render_one(func(dst []byte) (int, error) {
				return ctx.render_row(row, dst, img.w, yy)
			}); err != nil {
				return err
			}
			row_end()
		}
	}

	return nil
}

/*
 * Pixel dimensions a video source should deliver so the rendered frame
 * fills a cols x rows terminal with this format.
 */

func render_target_size(format terminal_format_t) (int, int) {
	var cols = format.width / render_cell_columns(format.charset)
	switch format.renderer {
	case RENDERER_HALFBLOCK:
		return cols, format.height * 2
	case RENDERER_BRAILLE:
		return cols * 2, format.height * 4
	}
	return cols, format.height
}
