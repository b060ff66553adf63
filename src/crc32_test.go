package asciichat

import (
	"hash/crc32"
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func TestCRC32CheckValue(t *testing.T) {
	// The standard check value for CRC-32/ISO-HDLC.
	assert.Equal(t, uint32(0xCBF43926), crc32_soft([]byte("123456789")))
	assert.Equal(t, uint32(0xCBF43926), crc32_buf([]byte("123456789")))
}

func TestCRC32Empty(t *testing.T) {
	assert.Equal(t, uint32(0x00000000), crc32_soft(nil))
	assert.Equal(t, uint32(0x00000000), crc32_buf([]byte{}))
}

func TestCRC32KnownVectors(t *testing.T) {
	var vectors = map[string]uint32{
		"a":                                  0xE8B7BE43,
		"abc":                                0x352441C2,
		"The quick brown fox jumps over the lazy dog": 0x414FA339,
	}
	for input, expected := range vectors {
		assert.Equal(t, expected, crc32_soft([]byte(input)), "crc32_soft(%q)", input)
		assert.Equal(t, expected, crc32_buf([]byte(input)), "crc32_buf(%q)", input)
	}
}

func TestCRC32SoftMatchesAccel(t *testing.T) {
	// The bit-serial reference and the accelerated path must agree on
	// every input, regardless of which one crc32_buf dispatches to.
	rapid.Check(t, func(t *rapid.T) {
		var in = rapid.SliceOf(rapid.Byte()).Draw(t, "in")

		var soft = crc32_soft(in)
		var accel = crc32.ChecksumIEEE(in)

		assert.Equal(t, accel, soft)
		assert.Equal(t, soft, crc32_buf(in))
	})
}

func TestCRC32DetectIsMemoized(t *testing.T) {
	// Force the probe, then confirm repeated calls agree.  The probe
	// runs under a sync.Once so this is mostly exercising the path.
	var first = crc32_buf([]byte("probe"))
	for i := 0; i < 8; i++ {
		assert.Equal(t, first, crc32_buf([]byte("probe")))
	}
}
