package zmodem

import "testing"

func TestEscapeRoundTrip(t *testing.T) {
	for _, escCtrl := range []bool{false, true} {
		for _, atsign := range []bool{false, true} {
			for b := 0; b < 256; b++ {
				ch := byte(b)
				if !needsEscape(ch, escCtrl, atsign) {
					continue
				}
				escaped := escapeByte(ch)
				got := unescapeByte(escaped)
				if got != ch {
					t.Fatalf("escCtrl=%v atsign=%v: roundtrip(0x%02x) = 0x%02x via escaped 0x%02x",
						escCtrl, atsign, ch, got, escaped)
				}
			}
		}
	}
}

func TestEscapeForbiddenBytesAlwaysEscaped(t *testing.T) {
	forbidden := []byte{ZDLE, 0x10, XON, XOFF, 0x1D, 0x7F, 0xFF}
	for _, b := range forbidden {
		if !needsEscape(b, false, false) {
			t.Fatalf("byte 0x%02x should always require escaping", b)
		}
	}
}

func TestEscapeAtsignCRRule(t *testing.T) {
	if needsEscape('\r', false, false) {
		t.Fatalf("CR should not require escaping without a preceding '@'")
	}
	if !needsEscape('\r', false, true) {
		t.Fatalf("CR must be escaped immediately after '@'")
	}
}

func TestEscapeCtrlRule(t *testing.T) {
	if needsEscape(0x41, true, false) {
		t.Fatalf("non-control byte should not require escaping under ESCCTRL")
	}
	if !needsEscape(0x05, true, false) {
		t.Fatalf("control byte 0x05 must be escaped when ESCCTRL is set")
	}
	if needsEscape(0x05, false, false) {
		t.Fatalf("control byte 0x05 should not require escaping without ESCCTRL")
	}
}

func TestIsAtsign(t *testing.T) {
	if !isAtsign('@') || !isAtsign('@'|0x80) {
		t.Fatalf("isAtsign should match '@' in both 7-bit and 8-bit form")
	}
	if isAtsign('A') {
		t.Fatalf("isAtsign should not match 'A'")
	}
}
