package zmodem

// escapeTable marks which raw (unescaped) byte values must always be ZDLE
// escaped on the wire, independent of the ATSIGN and ESCCTRL state. Built
// once at init time, in the style of the table-driven escape codecs this
// corpus favors over an if/else ladder evaluated per byte.
var escapeTable [256]bool

func init() {
	always := []byte{ZDLE, 0x10, XON, XOFF, 0x1D, 0x7F, 0xFF}
	for _, b := range always {
		escapeTable[b] = true
		escapeTable[b|0x80] = true
	}
}

// needsEscape reports whether ch must be ZDLE-escaped before transmission,
// given whether control-character escaping is active and whether the
// previously emitted byte was '@' (the ATSIGN CR-protection rule).
func needsEscape(ch byte, escCtrl, atsign bool) bool {
	if escapeTable[ch] {
		return true
	}
	if atsign && ch == '\r' {
		return true
	}
	if escCtrl && (ch&0x7F) < 0x20 {
		return true
	}
	return false
}

// escapeByte returns the byte that follows ZDLE on the wire when ch is
// escaped: ch XOR 0x40, except the two bytes that would otherwise escape to
// control characters troublesome for real terminals (DEL and 0xFF), which
// get their own reserved codes.
func escapeByte(ch byte) byte {
	switch ch {
	case 0x7F:
		return ZRUB0
	case 0xFF:
		return ZRUB1
	default:
		return ch ^ 0x40
	}
}

// unescapeByte is the inverse of escapeByte: given the byte that followed
// ZDLE on the wire, recover the original byte.
func unescapeByte(escaped byte) byte {
	switch escaped {
	case ZRUB0:
		return 0x7F
	case ZRUB1:
		return 0xFF
	default:
		return escaped ^ 0x40
	}
}

// isAtsign reports whether the unescaped 7-bit value of b is '@', per the
// spec's resolution of the ATSIGN ambiguity: the flag tracks the logical
// (unescaped) byte just written, not its wire encoding.
func isAtsign(b byte) bool {
	return b&0x7F == '@'
}

// escapeWriter accumulates ZDLE-escaped output into a cursor-bounded
// scratch buffer, tracking the ATSIGN state across calls the way the
// encoder (C3) needs to when building a header or subpacket byte by byte.
type escapeWriter struct {
	cur     *cursor
	escCtrl bool
	atsign  bool
}

func newEscapeWriter(cur *cursor, escCtrl bool) *escapeWriter {
	return &escapeWriter{cur: cur, escCtrl: escCtrl}
}

// putRaw appends a byte with no escaping, for the fixed framing bytes
// (ZPAD, ZDLE, the format tag) that are never escaped themselves.
func (e *escapeWriter) putRaw(b byte) error {
	e.atsign = false
	return e.cur.put(b)
}

// put appends a byte, escaping it if required, and updates the ATSIGN
// state from the logical (unescaped) byte just written.
func (e *escapeWriter) put(b byte) error {
	if needsEscape(b, e.escCtrl, e.atsign) {
		if err := e.cur.put(ZDLE); err != nil {
			return err
		}
		if err := e.cur.put(escapeByte(b)); err != nil {
			return err
		}
	} else {
		if err := e.cur.put(b); err != nil {
			return err
		}
	}
	e.atsign = isAtsign(b)
	return nil
}
