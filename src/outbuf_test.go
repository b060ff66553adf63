package asciichat

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func TestOutbufLengthNeverExceedsCap(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		var o = outbuf_create(rapid.IntRange(1, 64).Draw(t, "cap"))
		var appended []byte

		var steps = rapid.IntRange(1, 50).Draw(t, "steps")
		for i := 0; i < steps; i++ {
			var chunk = rapid.SliceOfN(rapid.Byte(), 0, 300).Draw(t, "chunk")
			o.append_bytes(chunk)
			appended = append(appended, chunk...)

			assert.LessOrEqual(t, o.len(), o.cap())
			assert.Equal(t, appended, o.bytes())
		}
	})
}

func TestOutbufGeometricGrowth(t *testing.T) {
	var o = outbuf_create(8)
	assert.Equal(t, 8, o.cap())

	o.append_bytes(make([]byte, 9))
	assert.Equal(t, 16, o.cap())

	o.append_bytes(make([]byte, 100))
	assert.Equal(t, 128, o.cap())
}

func TestOutbufReset(t *testing.T) {
	var o = outbuf_create(0)
	o.append_string("hello")
	assert.Equal(t, 5, o.len())

	o.reset()
	assert.Equal(t, 0, o.len())
	assert.Empty(t, o.bytes())
	assert.Equal(t, OUTBUF_INITIAL_CAP, o.cap(), "reset keeps the capacity")
}

func TestOutbufTailAdvance(t *testing.T) {
	var o = outbuf_create(16)
	var n = copy(o.tail(), "abc")
	o.advance(n)
	assert.Equal(t, []byte("abc"), o.bytes())
	assert.Equal(t, 13, len(o.tail()))
}
