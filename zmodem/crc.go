package zmodem

// CRC16Accum and CRC32Accum are incremental accumulators used by the parser
// (C4) and the frame encoder (C3). Both fold one byte at a time so the
// parser can verify a header or subpacket's CRC without a second pass over
// the already-unescaped bytes.
//
// CRC16Accum implements CRC-16/XMODEM (poly 0x1021, init 0, no final xor),
// and CRC32Accum implements the ZMODEM CRC-32 (poly 0xEDB88320, init 0xFFFFFFFF,
// final xor 0xFFFFFFFF). A correctly terminated ZBIN header drives CRC16 to
// exactly 0; a correctly terminated ZBIN32 header drives CRC32 to the
// residue constant crc32Residue (0xDEBB20E3), per the standard CRC-32
// "check value appended" identity.

const crc32Residue = 0xDEBB20E3

var crc16Table [256]uint16
var crc32Table [256]uint32

func init() {
	const poly16 = 0x1021
	for i := 0; i < 256; i++ {
		crc := uint16(i) << 8
		for bit := 0; bit < 8; bit++ {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ poly16
			} else {
				crc <<= 1
			}
		}
		crc16Table[i] = crc
	}

	const poly32 = 0xEDB88320
	for i := 0; i < 256; i++ {
		crc := uint32(i)
		for bit := 0; bit < 8; bit++ {
			if crc&1 != 0 {
				crc = crc>>1 ^ poly32
			} else {
				crc >>= 1
			}
		}
		crc32Table[i] = crc
	}
}

// CRC16Accum accumulates a CRC-16/XMODEM value byte by byte.
type CRC16Accum struct {
	crc uint16
}

// Update folds one byte into the running CRC-16 and returns the new value.
func (a *CRC16Accum) Update(b byte) uint16 {
	a.crc = a.crc<<8 ^ crc16Table[byte(a.crc>>8)^b]
	return a.crc
}

// Value returns the current CRC-16 accumulator value.
func (a *CRC16Accum) Value() uint16 { return a.crc }

// Reset zeroes the accumulator for a new header or subpacket.
func (a *CRC16Accum) Reset() { a.crc = 0 }

// CRC32Accum accumulates the ZMODEM CRC-32 value byte by byte.
type CRC32Accum struct {
	crc uint32
}

// NewCRC32Accum returns an accumulator primed with the ZMODEM CRC-32 init
// value (0xFFFFFFFF).
func NewCRC32Accum() *CRC32Accum {
	return &CRC32Accum{crc: 0xFFFFFFFF}
}

// Update folds one byte into the running CRC-32.
func (a *CRC32Accum) Update(b byte) uint32 {
	a.crc = a.crc>>8 ^ crc32Table[byte(a.crc)^b]
	return a.crc
}

// Finalize returns the CRC-32 value with the trailing complement applied,
// as used when the encoder emits a CRC-32 field.
func (a *CRC32Accum) Finalize() uint32 { return ^a.crc }

// Residue reports whether the accumulator, having folded in the 4
// little-endian CRC bytes already transmitted by the peer, has reached the
// expected residue constant.
func (a *CRC32Accum) Residue() bool { return a.crc == crc32Residue }

// Reset primes the accumulator back to the CRC-32 init value.
func (a *CRC32Accum) Reset() { a.crc = 0xFFFFFFFF }

// crc16 computes the CRC-16/XMODEM of buf in a single pass. Used by the
// encoder, where the whole header is available up front.
func crc16(buf []byte) uint16 {
	var acc CRC16Accum
	for _, b := range buf {
		acc.Update(b)
	}
	return acc.Value()
}

// crc32Compute computes the finalized ZMODEM CRC-32 of buf in a single pass.
func crc32Compute(buf []byte) uint32 {
	acc := NewCRC32Accum()
	for _, b := range buf {
		acc.Update(b)
	}
	return acc.Finalize()
}
