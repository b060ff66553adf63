package asciichat

/*------------------------------------------------------------------
 *
 * Purpose:   	Wire framing for frames, audio, and control messages.
 *
 * Description:	Every payload travels inside one packet:
 *
 *		    0        4      6       8        12       16
 *		    | magic  | type | flags | length | crc32  | payload...
 *
 *		Big-endian throughout.  The CRC covers the payload as it
 *		appears on the wire, so a receiver verifies before
 *		decompressing.  When the negotiated format says zstd and
 *		compression actually helps, the payload is compressed
 *		and the flag set; incompressible frames go out raw.
 *
 *---------------------------------------------------------------*/

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
)

const PACKET_MAGIC = 0x41434854 /* "ACHT" */
const PACKET_HEADER_LEN = 16
const PACKET_MAX_PAYLOAD = 8 * 1024 * 1024

type packet_type_t uint16

const (
	PACKET_TYPE_VIDEO_FRAME packet_type_t = iota + 1
	PACKET_TYPE_AUDIO_BATCH
	PACKET_TYPE_SDP_OFFER
	PACKET_TYPE_SDP_ANSWER
	PACKET_TYPE_KEY_EXCHANGE
	PACKET_TYPE_PING
	PACKET_TYPE_PONG
	PACKET_TYPE_BYE
)

const (
	PACKET_FLAG_ZSTD = 1 << 0
)

/* One encoder/decoder pair for the process; both are safe for
 * concurrent EncodeAll/DecodeAll use. */

var zstd_encoder, _ = zstd.NewWriter(nil)
var zstd_decoder, _ = zstd.NewReader(nil)

/*-------------------------------------------------------------------
 *
 * Name:        packet_serialize
 *
 * Purpose:     Frame a payload for the wire.
 *
 * Inputs:	ptype	 - Packet type tag.
 *		payload	 - May be empty (PING and friends).
 *		compress - Attempt zstd; kept only when smaller.
 *
 * Returns:	Header plus wire payload in a single buffer.
 *
 *--------------------------------------------------------------------*/

func packet_serialize(ptype packet_type_t, payload []byte, compress bool) ([]byte, error) {
	if len(payload) > PACKET_MAX_PAYLOAD {
		return nil, fmt.Errorf("payload %d exceeds limit: %w", len(payload), ErrInvalidParam)
	}

	var flags uint16
	var wire = payload
	if compress && len(payload) > 0 {
		var squeezed = zstd_encoder.EncodeAll(payload, nil)
		if len(squeezed) < len(payload) {
			wire = squeezed
			flags |= PACKET_FLAG_ZSTD
		}
	}

	var pkt = make([]byte, PACKET_HEADER_LEN+len(wire))
	binary.BigEndian.PutUint32(pkt[0:4], PACKET_MAGIC)
	binary.BigEndian.PutUint16(pkt[4:6], uint16(ptype))
	binary.BigEndian.PutUint16(pkt[6:8], flags)
	binary.BigEndian.PutUint32(pkt[8:12], uint32(len(wire)))
	binary.BigEndian.PutUint32(pkt[12:16], crc32_buf(wire))
	copy(pkt[PACKET_HEADER_LEN:], wire)
	return pkt, nil
}

/*-------------------------------------------------------------------
 *
 * Name:        packet_deserialize
 *
 * Purpose:     Validate and unwrap one packet from a buffer.
 *
 * Returns:	Type, payload (decompressed when flagged), and the total
 *		bytes consumed.  ErrCorrupt on bad magic, bad CRC, or a
 *		truncated buffer.
 *
 *--------------------------------------------------------------------*/

func packet_deserialize(buf []byte) (packet_type_t, []byte, int, error) {
	if len(buf) < PACKET_HEADER_LEN {
		return 0, nil, 0, fmt.Errorf("truncated header: %w", ErrCorrupt)
	}
	if binary.BigEndian.Uint32(buf[0:4]) != PACKET_MAGIC {
		return 0, nil, 0, fmt.Errorf("bad magic: %w", ErrCorrupt)
	}

	var ptype = packet_type_t(binary.BigEndian.Uint16(buf[4:6]))
	var flags = binary.BigEndian.Uint16(buf[6:8])
	var length = int(binary.BigEndian.Uint32(buf[8:12]))
	if length > PACKET_MAX_PAYLOAD {
		return 0, nil, 0, fmt.Errorf("oversized payload %d: %w", length, ErrCorrupt)
	}
	if len(buf) < PACKET_HEADER_LEN+length {
		return 0, nil, 0, fmt.Errorf("truncated payload: %w", ErrCorrupt)
	}

	var wire = buf[PACKET_HEADER_LEN : PACKET_HEADER_LEN+length]
	if crc32_buf(wire) != binary.BigEndian.Uint32(buf[12:16]) {
		return 0, nil, 0, fmt.Errorf("crc mismatch: %w", ErrCorrupt)
	}

	var payload = wire
	if flags&PACKET_FLAG_ZSTD != 0 {
		var expanded, err = zstd_decoder.DecodeAll(wire, nil)
		if err != nil {
			return 0, nil, 0, fmt.Errorf("zstd: %w", ErrCorrupt)
		}
		payload = expanded
	}

	return ptype, payload, PACKET_HEADER_LEN + length, nil
}

/* Stream variants for a TCP-ish transport. */

func packet_write(w io.Writer, ptype packet_type_t, payload []byte, compress bool) error {
	var pkt, err = packet_serialize(ptype, payload, compress)
	if err != nil {
		return err
	}
	if _, err := w.Write(pkt); err != nil {
		return fmt.Errorf("writing packet: %w", err)
	}
	return nil
}

func packet_read(r io.Reader) (packet_type_t, []byte, error) {
	var header [PACKET_HEADER_LEN]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return 0, nil, fmt.Errorf("reading packet header: %w", err)
	}
	if binary.BigEndian.Uint32(header[0:4]) != PACKET_MAGIC {
		return 0, nil, fmt.Errorf("bad magic: %w", ErrCorrupt)
	}
	var length = int(binary.BigEndian.Uint32(header[8:12]))
	if length > PACKET_MAX_PAYLOAD {
		return 0, nil, fmt.Errorf("oversized payload %d: %w", length, ErrCorrupt)
	}

	var rest = make([]byte, length)
	if _, err := io.ReadFull(r, rest); err != nil {
		return 0, nil, fmt.Errorf("reading packet payload: %w", err)
	}

	var full = append(header[:], rest...)
	var ptype, payload, _, err = packet_deserialize(full)
	return ptype, payload, err
}
