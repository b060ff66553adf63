package asciichat

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTestPatternDeterministic(t *testing.T) {
	var a, err = test_pattern_create(32, 16)
	require.NoError(t, err)
	var b, err2 = test_pattern_create(32, 16)
	require.NoError(t, err2)

	for i := 0; i < 3; i++ {
		var frame_a, _ = a.read_frame()
		var frame_b, _ = b.read_frame()
		assert.Equal(t, frame_a.pixels, frame_b.pixels, "frame %d", i)
	}
}

func TestTestPatternAnimates(t *testing.T) {
	var s, err = test_pattern_create(16, 16)
	require.NoError(t, err)

	var first, _ = s.read_frame()
	var second, _ = s.read_frame()
	assert.NotEqual(t, first.pixels, second.pixels)
}

func TestTestPatternBadGeometry(t *testing.T) {
	var _, err = test_pattern_create(0, 10)
	assert.ErrorIs(t, err, ErrInvalidParam)
}

func TestImageResize(t *testing.T) {
	var src, err = image_create(4, 4)
	require.NoError(t, err)
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			src.set(x, y, rgb_t{uint8(x * 60), uint8(y * 60), 0})
		}
	}

	var dst, resize_err = image_resize(src, 2, 2)
	require.NoError(t, resize_err)
	assert.Equal(t, 2, dst.w)
	assert.Equal(t, 2, dst.h)

	// Same size short-circuits to the same image.
	var same, same_err = image_resize(src, 4, 4)
	require.NoError(t, same_err)
	assert.Same(t, src, same)
}

func TestImageResizeFeedsRenderer(t *testing.T) {
	var source, err = test_pattern_create(64, 48)
	require.NoError(t, err)

	var format = default_terminal_format()
	format.renderer = RENDERER_HALFBLOCK
	format.charset = CHARSET_UTF8

	var w, h = render_target_size(format)
	var frame, _ = source.read_frame()
	var sized, resize_err = image_resize(frame, w, h)
	require.NoError(t, resize_err)

	var ctx = render_context_create(TERM_CODEC_256, format, false)
	var out = outbuf_create(0)
	require.NoError(t, render_frame(ctx, sized, out))
	assert.Greater(t, out.len(), 0)
}
