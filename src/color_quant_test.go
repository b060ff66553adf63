package asciichat

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func TestQuant6MatchesRounding(t *testing.T) {
	for x := 0; x <= 255; x++ {
		var expected = uint8(math.Round(float64(x) * 5.0 / 255.0))
		var got = quant6(uint8(x))
		assert.Equal(t, expected, got, "quant6(%d)", x)
		assert.LessOrEqual(t, got, uint8(5))
	}
}

func TestQuant6Batch(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		var in = rapid.SliceOf(rapid.Byte()).Draw(t, "in")
		var out = make([]uint8, len(in))

		quant6_batch(in, out)

		for i, x := range in {
			assert.Equal(t, quant6(x), out[i], "batch diverges from scalar at %d", i)
		}
	})
}

func TestCubeIndexRange(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		var r = rapid.Byte().Draw(t, "r")
		var g = rapid.Byte().Draw(t, "g")
		var b = rapid.Byte().Draw(t, "b")

		var idx = cube_index(quant6(r), quant6(g), quant6(b))
		assert.GreaterOrEqual(t, idx, 0)
		assert.LessOrEqual(t, idx, 215)
	})
}

func TestCubeIndexCorners(t *testing.T) {
	assert.Equal(t, 0, cube_index(0, 0, 0))
	assert.Equal(t, 215, cube_index(5, 5, 5))
	assert.Equal(t, 36, cube_index(1, 0, 0))
	assert.Equal(t, 6, cube_index(0, 1, 0))
	assert.Equal(t, 1, cube_index(0, 0, 1))
}

func TestPalette256GrayBranch(t *testing.T) {
	// Pure grays land on the 232..255 ramp, not the cube diagonal.
	assert.Equal(t, uint8(232), palette256(0, 0, 0))
	assert.Equal(t, uint8(255), palette256(255, 255, 255))

	var mid = palette256(128, 128, 128)
	assert.GreaterOrEqual(t, mid, uint8(232))
	assert.LessOrEqual(t, mid, uint8(255))

	// Near-gray within the threshold still counts.
	var near = palette256(128, 130, 126)
	assert.GreaterOrEqual(t, near, uint8(232))
}

func TestPalette256CubeBranch(t *testing.T) {
	// Saturated colors go through the cube: 16 + 36r + 6g + b.
	assert.Equal(t, uint8(16+36*5), palette256(255, 0, 0))
	assert.Equal(t, uint8(16+6*5), palette256(0, 255, 0))
	assert.Equal(t, uint8(16+5), palette256(0, 0, 255))
	assert.Equal(t, uint8(16+36*5+6*5), palette256(255, 255, 0))
}

func TestAnsi16Primaries(t *testing.T) {
	assert.Equal(t, uint8(0), ansi16(0, 0, 0))
	assert.Equal(t, uint8(15), ansi16(255, 255, 255))
	assert.Equal(t, uint8(1), ansi16(170, 0, 0))
	assert.Equal(t, uint8(2), ansi16(0, 170, 0))
	assert.Equal(t, uint8(4), ansi16(0, 0, 170))
	assert.Equal(t, uint8(9), ansi16(255, 85, 85))
	assert.Equal(t, uint8(10), ansi16(85, 255, 85))
	assert.Equal(t, uint8(12), ansi16(85, 85, 255))
	// Saturated primaries sit nearer the dim entries than the bright ones.
	assert.Equal(t, uint8(1), ansi16(255, 0, 0))
}

func TestAnsi16InRange(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		var n = ansi16(rapid.Byte().Draw(t, "r"), rapid.Byte().Draw(t, "g"), rapid.Byte().Draw(t, "b"))
		assert.LessOrEqual(t, n, uint8(15))
	})
}

func TestLumaKnownValues(t *testing.T) {
	assert.Equal(t, uint8(0), luma(0, 0, 0))
	// (77+150+29)*255 >> 8 = 255*256>>8 = 255
	assert.Equal(t, uint8(255), luma(255, 255, 255))
	// Green weighs most, blue least.
	assert.Greater(t, luma(0, 255, 0), luma(255, 0, 0))
	assert.Greater(t, luma(255, 0, 0), luma(0, 0, 255))
}

func TestLumaBatch(t *testing.T) {
	var in = make([]rgb_t, 37) // deliberately not a multiple of 16
	for i := range in {
		in[i] = rgb_t{uint8(i * 7), uint8(i * 5), uint8(i * 3)}
	}
	var out = make([]uint8, len(in))

	luma_batch(in, out)

	for i, p := range in {
		assert.Equal(t, luma(p.r, p.g, p.b), out[i])
	}
}

func TestDitherIsDeterministic(t *testing.T) {
	// Same absolute coordinates, same result, regardless of call order.
	var first = palette256_dithered(100, 150, 200, 3, 2)
	for i := 0; i < 10; i++ {
		_ = palette256_dithered(uint8(i), uint8(i), uint8(i), i, i)
	}
	assert.Equal(t, first, palette256_dithered(100, 150, 200, 3, 2))
}

func TestDitherTilesEvery4(t *testing.T) {
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			assert.Equal(t, dither_offset(x, y), dither_offset(x+4, y))
			assert.Equal(t, dither_offset(x, y), dither_offset(x, y+4))
		}
	}
}

func TestDitherOffsetBounded(t *testing.T) {
	// Offsets stay within half a cube step either way.
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			var d = dither_offset(x, y)
			assert.GreaterOrEqual(t, d, -26)
			assert.LessOrEqual(t, d, 26)
		}
	}
}
