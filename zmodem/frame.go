package zmodem

import "fmt"

// Header is the 4-byte payload of a ZModem header (position or flag bytes,
// depending on frame type).
type Header [4]byte

// stohdr stores a 32-bit position value in a header using little-endian
// byte order, matching Forsberg's stohdr().
func stohdr(pos uint32) Header {
	var hdr Header
	hdr[ZP0] = byte(pos)
	hdr[ZP1] = byte(pos >> 8)
	hdr[ZP2] = byte(pos >> 16)
	hdr[ZP3] = byte(pos >> 24)
	return hdr
}

// rclhdr recovers a 32-bit position value from a header, the inverse of
// stohdr.
func rclhdr(hdr Header) uint32 {
	return uint32(hdr[ZP0]) |
		uint32(hdr[ZP1])<<8 |
		uint32(hdr[ZP2])<<16 |
		uint32(hdr[ZP3])<<24
}

// maxEncodedHeader bounds the largest header this encoder ever produces: a
// ZBIN32 header worst case is 3 framing bytes plus 9 payload/CRC bytes each
// possibly doubled by escaping, well under this margin.
const maxEncodedHeader = 40

// cursor is a bounds-checked write position over a fixed scratch array, the
// allocation-free replacement for the ad hoc pointer arithmetic a C encoder
// uses to fill a header buffer.
type cursor struct {
	buf [maxEncodedHeader]byte
	pos int
}

func (c *cursor) put(b byte) error {
	if c.pos >= len(c.buf) {
		return fmt.Errorf("zmodem: encoded header exceeds %d bytes", len(c.buf))
	}
	c.buf[c.pos] = b
	c.pos++
	return nil
}

func (c *cursor) bytes() []byte {
	return c.buf[:c.pos]
}

const hexDigits = "0123456789abcdef"

func putHex(c *cursor, b byte) error {
	if err := c.put(hexDigits[b>>4]); err != nil {
		return err
	}
	return c.put(hexDigits[b&0x0F])
}

// EncodeHexHeader builds a ZHEX header: two ZPAD bytes, ZDLE, the ZHEX tag,
// seven hex-encoded bytes (type + 4 payload + 2 CRC-16), CR, LF with its
// high bit set (0x8A), and an XON suffix for every frame type except ZACK
// and ZFIN.
func EncodeHexHeader(frameType int, hdr Header) ([]byte, error) {
	var cur cursor

	raw := []byte{byte(frameType & 0x7F), hdr[0], hdr[1], hdr[2], hdr[3]}
	crc := crc16(raw)

	if err := cur.put(ZPAD); err != nil {
		return nil, err
	}
	if err := cur.put(ZPAD); err != nil {
		return nil, err
	}
	if err := cur.put(ZDLE); err != nil {
		return nil, err
	}
	if err := cur.put(ZHEX); err != nil {
		return nil, err
	}
	for _, b := range raw {
		if err := putHex(&cur, b); err != nil {
			return nil, err
		}
	}
	if err := putHex(&cur, byte(crc>>8)); err != nil {
		return nil, err
	}
	if err := putHex(&cur, byte(crc)); err != nil {
		return nil, err
	}
	if err := cur.put('\r'); err != nil {
		return nil, err
	}
	if err := cur.put('\n' | 0x80); err != nil {
		return nil, err
	}
	if frameType != ZFIN && frameType != ZACK {
		if err := cur.put(XON); err != nil {
			return nil, err
		}
	}
	return append([]byte(nil), cur.bytes()...), nil
}

// EncodeBinHeader builds a ZBIN header: ZPAD, ZDLE, the ZBIN tag, then the
// type and 4 payload bytes and their CRC-16 (big-endian), all ZDLE-escaped.
func EncodeBinHeader(frameType int, hdr Header, escCtrl bool) ([]byte, error) {
	var cur cursor
	if err := cur.put(ZPAD); err != nil {
		return nil, err
	}
	if err := cur.put(ZDLE); err != nil {
		return nil, err
	}
	if err := cur.put(ZBIN); err != nil {
		return nil, err
	}

	raw := []byte{byte(frameType), hdr[0], hdr[1], hdr[2], hdr[3]}
	crc := crc16(raw)

	ew := newEscapeWriter(&cur, escCtrl)
	for _, b := range raw {
		if err := ew.put(b); err != nil {
			return nil, err
		}
	}
	if err := ew.put(byte(crc >> 8)); err != nil {
		return nil, err
	}
	if err := ew.put(byte(crc)); err != nil {
		return nil, err
	}
	return append([]byte(nil), cur.bytes()...), nil
}

// EncodeBin32Header builds a ZBIN32 header: ZPAD, ZDLE, the ZBIN32 tag, then
// the type and 4 payload bytes and their finalized CRC-32 (little-endian),
// all ZDLE-escaped.
func EncodeBin32Header(frameType int, hdr Header, escCtrl bool) ([]byte, error) {
	var cur cursor
	if err := cur.put(ZPAD); err != nil {
		return nil, err
	}
	if err := cur.put(ZDLE); err != nil {
		return nil, err
	}
	if err := cur.put(ZBIN32); err != nil {
		return nil, err
	}

	raw := []byte{byte(frameType), hdr[0], hdr[1], hdr[2], hdr[3]}
	crc := crc32Compute(raw)

	ew := newEscapeWriter(&cur, escCtrl)
	for _, b := range raw {
		if err := ew.put(b); err != nil {
			return nil, err
		}
	}
	for i := 0; i < 4; i++ {
		if err := ew.put(byte(crc)); err != nil {
			return nil, err
		}
		crc >>= 8
	}
	return append([]byte(nil), cur.bytes()...), nil
}

// EncodeDataSubpacket builds a ZBIN or ZBIN32 data subpacket: the
// (ZDLE-escaped) payload, ZDLE, the terminator byte, and the CRC over
// payload+terminator (escaped). Subpacket payloads are not bounded by the
// small fixed-size header scratch buffer, so this writes to a plain slice.
func EncodeDataSubpacket(payload []byte, term byte, use32bitCRC, escCtrl bool) ([]byte, error) {
	out := make([]byte, 0, len(payload)+8)
	appendEscaped := func(b byte, atsign *bool) {
		if needsEscape(b, escCtrl, *atsign) {
			out = append(out, ZDLE, escapeByte(b))
		} else {
			out = append(out, b)
		}
		*atsign = isAtsign(b)
	}

	atsign := false
	if use32bitCRC {
		crc := NewCRC32Accum()
		for _, b := range payload {
			crc.Update(b)
			appendEscaped(b, &atsign)
		}
		crc.Update(term)
		out = append(out, ZDLE, term)
		final := crc.Finalize()
		for i := 0; i < 4; i++ {
			appendEscaped(byte(final), &atsign)
			final >>= 8
		}
		return out, nil
	}

	var crc CRC16Accum
	for _, b := range payload {
		crc.Update(b)
		appendEscaped(b, &atsign)
	}
	crc.Update(term)
	out = append(out, ZDLE, term)
	sum := crc.Value()
	appendEscaped(byte(sum>>8), &atsign)
	appendEscaped(byte(sum), &atsign)
	return out, nil
}
