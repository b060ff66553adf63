package asciichat

/*------------------------------------------------------------------
 *
 * Purpose:   	Pixel quantizers: RGB down to whatever the remote
 *		terminal can actually show.
 *
 * Description:	Four depths.  Truecolor passes RGB through untouched.
 *		256-color maps onto the xterm 6x6x6 cube (or the 24-step
 *		gray ramp for near-gray pixels).  16-color picks the
 *		nearest CGA entry.  Mono keeps only luma for the glyph
 *		ramp.
 *
 *		Everything here is pure and constant-time per pixel, and
 *		batched variants process pixels in groups of 16 so a SIMD
 *		rewrite slots in without touching callers.  Outputs must
 *		stay bit-identical to these scalar references.
 *
 *---------------------------------------------------------------*/

import (
	colorful "github.com/lucasb-eyer/go-colorful"
)

/* Near-gray pixels look better on the dedicated gray ramp than on the
 * cube diagonal. */
const CUBE_GRAY_THRESHOLD = 10

const QUANT_BATCH = 16

/*
 * 6-level channel quantizer: round((x*5)/255) without a divide.
 * The magic form ((x*5 + 127) * 257) >> 16 is exact for all x in 0..255.
 */

func quant6(x uint8) uint8 {
	return uint8(((uint32(x)*5 + 127) * 257) >> 16)
}

func quant6_batch(in []uint8, out []uint8) {
	var i = 0
	for ; i+QUANT_BATCH <= len(in); i += QUANT_BATCH {
		for j := 0; j < QUANT_BATCH; j++ {
			out[i+j] = quant6(in[i+j])
		}
	}
	for ; i < len(in); i++ {
		out[i] = quant6(in[i])
	}
}

/* Index into the xterm 6x6x6 cube, 0..215. */

func cube_index(r6 uint8, g6 uint8, b6 uint8) int {
	return 36*int(r6) + 6*int(g6) + int(b6)
}

/*-------------------------------------------------------------------
 *
 * Name:        palette256
 *
 * Purpose:     Map an RGB pixel to its xterm 256-palette entry.
 *
 * Description:	Near-equal channels (max-min <= CUBE_GRAY_THRESHOLD) go
 *		to the 24-step grayscale ramp at 232..255, picked by
 *		luma.  Everything else goes through the 6x6x6 cube,
 *		offset by 16.
 *
 *--------------------------------------------------------------------*/

func palette256(r uint8, g uint8, b uint8) uint8 {
	var lo, hi = r, r
	if g < lo {
		lo = g
	}
	if g > hi {
		hi = g
	}
	if b < lo {
		lo = b
	}
	if b > hi {
		hi = b
	}

	if int(hi)-int(lo) <= CUBE_GRAY_THRESHOLD {
		var gray = int(luma(r, g, b)) * 24 / 256
		return uint8(232 + gray)
	}

	return uint8(16 + cube_index(quant6(r), quant6(g), quant6(b)))
}

/* The classic 16, in SGR numbering: 0-7 normal, 8-15 bright. */

var ansi16_palette = [16]rgb_t{
	{0, 0, 0},       /* black */
	{170, 0, 0},     /* red */
	{0, 170, 0},     /* green */
	{170, 85, 0},    /* yellow (brown) */
	{0, 0, 170},     /* blue */
	{170, 0, 170},   /* magenta */
	{0, 170, 170},   /* cyan */
	{170, 170, 170}, /* white */
	{85, 85, 85},    /* bright black */
	{255, 85, 85},   /* bright red */
	{85, 255, 85},   /* bright green */
	{255, 255, 85},  /* bright yellow */
	{85, 85, 255},   /* bright blue */
	{255, 85, 255},  /* bright magenta */
	{85, 255, 255},  /* bright cyan */
	{255, 255, 255}, /* bright white */
}

/*
 * Nearest of the 16 CGA-style colors by Euclidean distance in RGB.
 * go-colorful does the distance math; ties resolve to the lower index.
 */

func ansi16(r uint8, g uint8, b uint8) uint8 {
	var pixel = colorful.Color{
		R: float64(r) / 255.0,
		G: float64(g) / 255.0,
		B: float64(b) / 255.0,
	}

	var best = 0
	var best_dist = -1.0
	for i, entry := range ansi16_palette {
		var candidate = colorful.Color{
			R: float64(entry.r) / 255.0,
			G: float64(entry.g) / 255.0,
			B: float64(entry.b) / 255.0,
		}
		var dist = pixel.DistanceRgb(candidate)
		if best_dist < 0 || dist < best_dist {
			best_dist = dist
			best = i
		}
	}
	return uint8(best)
}

/* Approximate BT.601 luma: (77R + 150G + 29B) >> 8. */

func luma(r uint8, g uint8, b uint8) uint8 {
	return uint8((77*uint32(r) + 150*uint32(g) + 29*uint32(b)) >> 8)
}

func luma_batch(in []rgb_t, out []uint8) {
	var i = 0
	for ; i+QUANT_BATCH <= len(in); i += QUANT_BATCH {
		for j := 0; j < QUANT_BATCH; j++ {
			var p = in[i+j]
			out[i+j] = luma(p.r, p.g, p.b)
		}
	}
	for ; i < len(in); i++ {
		out[i] = luma(in[i].r, in[i].g, in[i].b)
	}
}

/*
 * 4x4 ordered (Bayer) dither, applied per channel before 256-palette
 * quantization.  The matrix index is a pure function of the ABSOLUTE
 * pixel coordinates (x mod 4, y mod 4), never of call order, so partial
 * rows and out-of-order rendering dither identically.
 */

var bayer4 = [4][4]int{
	{0, 8, 2, 10},
	{12, 4, 14, 6},
	{3, 11, 1, 9},
	{15, 7, 13, 5},
}

/* Offset range is about one half cube step (255/5 = 51) either way. */

func dither_offset(x int, y int) int {
	return ((bayer4[y&3][x&3] - 7) * 51) / 16
}

func palette256_dithered(r uint8, g uint8, b uint8, x int, y int) uint8 {
	var d = dither_offset(x, y)
	return palette256(
		clamp_u8(int(r)+d),
		clamp_u8(int(g)+d),
		clamp_u8(int(b)+d))
}
