package asciichat

/*------------------------------------------------------------------
 *
 * Purpose:   	Video frame sources.
 *
 * Description:	The render pipeline pulls frames from anything that
 *		satisfies video_source_t.  Real webcam backends (V4L2,
 *		AVFoundation) plug in behind the same interface; the
 *		test pattern below exists so the whole pipeline runs on
 *		machines with no camera at all, and so tests have a
 *		deterministic source.
 *
 *---------------------------------------------------------------*/

import "math"

type video_source_t interface {
	/* Next frame, sized to the source's configured dimensions. */
	read_frame() (*image_t, error)
	close() error
}

/*
 * Animated gradient with a sweeping bright bar.  Every pixel is a pure
 * function of (x, y, frame number), so two sources with the same
 * geometry produce identical frames.
 */

type test_pattern_source_t struct {
	w, h  int
	frame int
}

func test_pattern_create(w int, h int) (*test_pattern_source_t, error) {
	if w <= 0 || h <= 0 {
		return nil, ErrInvalidParam
	}
	return &test_pattern_source_t{w: w, h: h}, nil
}

func (s *test_pattern_source_t) read_frame() (*image_t, error) {
	var img, err = image_create(s.w, s.h)
	if err != nil {
		return nil, err
	}

	var sweep = s.frame % (s.w + s.h)
	for y := 0; y < s.h; y++ {
		for x := 0; x < s.w; x++ {
			var r = uint8((x * 255) / max(s.w-1, 1))
			var g = uint8((y * 255) / max(s.h-1, 1))
			var b = uint8(((x + y + s.frame) * 7) & 0xFF)
			if x+y == sweep {
				r, g, b = 255, 255, 255
			}
			img.set(x, y, rgb_t{r, g, b})
		}
	}

	s.frame++
	return img, nil
}

func (s *test_pattern_source_t) close() error {
	return nil
}

/*
 * Nearest-neighbor resize, for adapting a source's native geometry to
 * the negotiated terminal size.  Quality does not matter much at
 * terminal resolutions; speed does.
 */

func image_resize(src *image_t, w int, h int) (*image_t, error) {
	if src == nil || w <= 0 || h <= 0 {
		return nil, ErrInvalidParam
	}
	if src.w == w && src.h == h {
		return src, nil
	}

	var dst, err = image_create(w, h)
	if err != nil {
		return nil, err
	}

	var x_ratio = float64(src.w) / float64(w)
	var y_ratio = float64(src.h) / float64(h)
	for y := 0; y < h; y++ {
		var sy = int(math.Floor((float64(y) + 0.5) * y_ratio))
		if sy >= src.h {
			sy = src.h - 1
		}
		for x := 0; x < w; x++ {
			var sx = int(math.Floor((float64(x) + 0.5) * x_ratio))
			if sx >= src.w {
				sx = src.w - 1
			}
			dst.set(x, y, src.at(sx, sy))
		}
	}
	return dst, nil
}
