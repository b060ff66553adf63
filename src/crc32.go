package asciichat

/*------------------------------------------------------------------
 *
 * Purpose:   	Frame and packet integrity check.
 *
 * Description:	Reflected CRC-32 with polynomial 0xEDB88320, initial
 *		value 0xFFFFFFFF, final XOR 0xFFFFFFFF.  Same CRC as
 *		zlib and Ethernet, so any capture of the wire can be
 *		checked with standard tools.
 *
 *		The CPU is probed once for CRC acceleration (ARMv8 CRC32
 *		instructions on aarch64, SSE4.2 on x86-64).  When present
 *		we go through the platform-tuned table implementation;
 *		otherwise a bit-serial reference loop.  Both paths are
 *		bit-identical for every input.
 *
 *---------------------------------------------------------------*/

import (
	"hash/crc32"
	"sync"

	"golang.org/x/sys/cpu"
)

const CRC32_POLY_REFLECTED = 0xEDB88320

var crc32_detect_once sync.Once
var crc32_hw_available bool
var crc32_table *crc32.Table

func crc32_detect() {
	crc32_hw_available = cpu.X86.HasSSE42 || cpu.ARM64.HasCRC32
	crc32_table = crc32.MakeTable(crc32.IEEE)
	logger.Debug("crc32 feature probe", "hw", crc32_hw_available)
}

/*-------------------------------------------------------------------
 *
 * Name:        crc32_buf
 *
 * Purpose:     Checksum a byte buffer with whichever implementation
 *		the CPU supports.
 *
 * Inputs:	data	- Bytes to checksum.  May be empty; the CRC of
 *			  the empty input is 0x00000000.
 *
 * Returns:	32-bit CRC.
 *
 *--------------------------------------------------------------------*/

func crc32_buf(data []byte) uint32 {
	crc32_detect_once.Do(crc32_detect)

	if crc32_hw_available {
		return crc32_accel(data)
	}
	return crc32_soft(data)
}

/* Accelerated path.  hash/crc32 selects the vectorized kernel when the
 * instructions exist, which is exactly the feature set probed above. */

func crc32_accel(data []byte) uint32 {
	return crc32.Checksum(data, crc32_table)
}

/* Reference path.  Canonical table-less bit-serial loop. */

func crc32_soft(data []byte) uint32 {
	var crc uint32 = 0xFFFFFFFF

	for _, b := range data {
		crc ^= uint32(b)
		for bit := 0; bit < 8; bit++ {
			if crc&1 != 0 {
				crc = (crc >> 1) ^ CRC32_POLY_REFLECTED
			} else {
				crc >>= 1
			}
		}
	}

	return crc ^ 0xFFFFFFFF
}
