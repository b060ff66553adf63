package asciichat

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestPacketRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		var payload = rapid.SliceOf(rapid.Byte()).Draw(t, "payload")
		var compress = rapid.Bool().Draw(t, "compress")

		var pkt, err = packet_serialize(PACKET_TYPE_VIDEO_FRAME, payload, compress)
		require.NoError(t, err)

		var ptype, got, consumed, de_err = packet_deserialize(pkt)
		require.NoError(t, de_err)
		assert.Equal(t, PACKET_TYPE_VIDEO_FRAME, ptype)
		assert.Equal(t, len(pkt), consumed)
		if len(payload) == 0 {
			assert.Empty(t, got)
		} else {
			assert.Equal(t, payload, got)
		}
	})
}

func TestPacketCompressibleFrameShrinks(t *testing.T) {
	// A rendered ASCII frame is hugely repetitive; zstd must win.
	var payload = bytes.Repeat([]byte("\x1b[38;2;10;20;30mxxxxxxxxxx"), 500)

	var pkt, err = packet_serialize(PACKET_TYPE_VIDEO_FRAME, payload, true)
	require.NoError(t, err)
	assert.Less(t, len(pkt), len(payload)/2)

	var flags = binary.BigEndian.Uint16(pkt[6:8])
	assert.NotZero(t, flags&PACKET_FLAG_ZSTD)

	var _, got, _, de_err = packet_deserialize(pkt)
	require.NoError(t, de_err)
	assert.Equal(t, payload, got)
}

func TestPacketIncompressibleStaysRaw(t *testing.T) {
	// High-entropy payload: compression would grow it, so the flag
	// stays clear and the bytes go out verbatim.
	var payload = make([]byte, 256)
	for i := range payload {
		payload[i] = uint8(i*167 + 13)
	}

	var pkt, err = packet_serialize(PACKET_TYPE_AUDIO_BATCH, payload, true)
	require.NoError(t, err)

	var flags = binary.BigEndian.Uint16(pkt[6:8])
	assert.Zero(t, flags&PACKET_FLAG_ZSTD)
	assert.Equal(t, PACKET_HEADER_LEN+len(payload), len(pkt))
}

func TestPacketCorruptMagic(t *testing.T) {
	var pkt, err = packet_serialize(PACKET_TYPE_PING, nil, false)
	require.NoError(t, err)

	pkt[0] ^= 0xFF
	var _, _, _, de_err = packet_deserialize(pkt)
	assert.ErrorIs(t, de_err, ErrCorrupt)
}

func TestPacketCorruptPayload(t *testing.T) {
	var pkt, err = packet_serialize(PACKET_TYPE_VIDEO_FRAME, []byte("hello frame"), false)
	require.NoError(t, err)

	pkt[PACKET_HEADER_LEN] ^= 0x01
	var _, _, _, de_err = packet_deserialize(pkt)
	assert.ErrorIs(t, de_err, ErrCorrupt, "crc must catch a payload bit flip")
}

func TestPacketTruncated(t *testing.T) {
	var pkt, err = packet_serialize(PACKET_TYPE_VIDEO_FRAME, []byte("some payload"), false)
	require.NoError(t, err)

	var _, _, _, de_err = packet_deserialize(pkt[:PACKET_HEADER_LEN-1])
	assert.ErrorIs(t, de_err, ErrCorrupt)

	_, _, _, de_err = packet_deserialize(pkt[:len(pkt)-3])
	assert.ErrorIs(t, de_err, ErrCorrupt)
}

func TestPacketStreamReadWrite(t *testing.T) {
	var stream bytes.Buffer

	require.NoError(t, packet_write(&stream, PACKET_TYPE_SDP_OFFER, []byte("v=0"), false))
	require.NoError(t, packet_write(&stream, PACKET_TYPE_PING, nil, false))

	var ptype, payload, err = packet_read(&stream)
	require.NoError(t, err)
	assert.Equal(t, PACKET_TYPE_SDP_OFFER, ptype)
	assert.Equal(t, []byte("v=0"), payload)

	ptype, payload, err = packet_read(&stream)
	require.NoError(t, err)
	assert.Equal(t, PACKET_TYPE_PING, ptype)
	assert.Empty(t, payload)
}

func TestPacketOversizeRejected(t *testing.T) {
	var _, err = packet_serialize(PACKET_TYPE_VIDEO_FRAME, make([]byte, PACKET_MAX_PAYLOAD+1), false)
	assert.ErrorIs(t, err, ErrInvalidParam)
}
