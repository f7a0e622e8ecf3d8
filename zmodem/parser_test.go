package zmodem

import "testing"

func feedAll(t *testing.T, p *Parser, chunks [][]byte) []Event {
	t.Helper()
	var events []Event
	for _, c := range chunks {
		evs, err := p.Feed(c)
		if err != nil {
			t.Fatalf("Feed error: %v", err)
		}
		events = append(events, evs...)
	}
	return events
}

func buildHexHeader(t *testing.T, frameType int, hdr Header) []byte {
	t.Helper()
	b, err := EncodeHexHeader(frameType, hdr)
	if err != nil {
		t.Fatalf("EncodeHexHeader: %v", err)
	}
	return b
}

func TestParserHexHeaderRoundTrip(t *testing.T) {
	p := NewParser()
	wire := buildHexHeader(t, ZRQINIT, Header{})
	events, err := p.Feed(wire)
	if err != nil {
		t.Fatalf("Feed error: %v", err)
	}
	if len(events) != 1 || events[0].Kind != EventHeader {
		t.Fatalf("events = %+v, want one EventHeader", events)
	}
	if events[0].FrameType != ZRQINIT {
		t.Fatalf("FrameType = %d, want ZRQINIT", events[0].FrameType)
	}
}

func TestParserBinHeaderRoundTrip(t *testing.T) {
	p := NewParser()
	wire, err := EncodeBinHeader(ZRINIT, stohdr(0), false)
	if err != nil {
		t.Fatalf("EncodeBinHeader: %v", err)
	}
	events, err := p.Feed(wire)
	if err != nil {
		t.Fatalf("Feed error: %v", err)
	}
	if len(events) != 1 || events[0].Kind != EventHeader || events[0].FrameType != ZRINIT {
		t.Fatalf("events = %+v, want one ZRINIT EventHeader", events)
	}
}

func TestParserBin32HeaderRoundTrip(t *testing.T) {
	p := NewParser()
	wire, err := EncodeBin32Header(ZDATA, stohdr(42), false)
	if err != nil {
		t.Fatalf("EncodeBin32Header: %v", err)
	}
	events, err := p.Feed(wire)
	if err != nil {
		t.Fatalf("Feed error: %v", err)
	}
	if len(events) != 1 || events[0].Kind != EventHeader || events[0].FrameType != ZDATA {
		t.Fatalf("events = %+v, want one ZDATA EventHeader", events)
	}
	if rclhdr(events[0].Header) != 42 {
		t.Fatalf("offset = %d, want 42", rclhdr(events[0].Header))
	}
}

func TestParserBadHexCRCYieldsNAK(t *testing.T) {
	p := NewParser()
	wire := buildHexHeader(t, ZRQINIT, Header{})
	wire[10] ^= 0x01 // turn a payload hex digit '0' into '1': still valid hex, so only the CRC check can reject it
	events, err := p.Feed(wire)
	if err != nil {
		t.Fatalf("Feed error: %v", err)
	}
	if len(events) != 1 || events[0].Kind != EventHeader || events[0].FrameType != -1 {
		t.Fatalf("events = %+v, want one NAK EventHeader", events)
	}
}

func TestParserDataSubpacketRoundTrip(t *testing.T) {
	p := NewParser()
	p.ArmData(false, 1024)
	wire, err := EncodeDataSubpacket([]byte("hello"), ZCRCW, false, false)
	if err != nil {
		t.Fatalf("EncodeDataSubpacket: %v", err)
	}
	events, err := p.Feed(wire)
	if err != nil {
		t.Fatalf("Feed error: %v", err)
	}
	if len(events) != 1 || events[0].Kind != EventDataRcvd {
		t.Fatalf("events = %+v, want one EventDataRcvd", events)
	}
	if !events[0].CRCOK {
		t.Fatalf("CRCOK = false, want true")
	}
	if string(events[0].Packet) != "hello" {
		t.Fatalf("Packet = %q, want hello", events[0].Packet)
	}
	if events[0].PacketType != ZCRCW {
		t.Fatalf("PacketType = %q, want ZCRCW", events[0].PacketType)
	}
}

func TestParserDataSubpacket32RoundTrip(t *testing.T) {
	p := NewParser()
	p.ArmData(true, 1024)
	wire, err := EncodeDataSubpacket([]byte("world"), ZCRCE, true, false)
	if err != nil {
		t.Fatalf("EncodeDataSubpacket: %v", err)
	}
	events, err := p.Feed(wire)
	if err != nil {
		t.Fatalf("Feed error: %v", err)
	}
	if len(events) != 1 || !events[0].CRCOK || string(events[0].Packet) != "world" {
		t.Fatalf("events = %+v", events)
	}
}

func TestParserCorruptDataCRCFails(t *testing.T) {
	p := NewParser()
	p.ArmData(false, 1024)
	wire, err := EncodeDataSubpacket([]byte("hello"), ZCRCW, false, false)
	if err != nil {
		t.Fatalf("EncodeDataSubpacket: %v", err)
	}
	wire[1] ^= 0xFF // corrupt payload byte
	events, err := p.Feed(wire)
	if err != nil {
		t.Fatalf("Feed error: %v", err)
	}
	if len(events) != 1 || events[0].CRCOK {
		t.Fatalf("events = %+v, want CRCOK=false", events)
	}
}

// TestParserChunkingInvariance verifies property 3: any partition of the
// same byte stream yields the same events.
func TestParserChunkingInvariance(t *testing.T) {
	wire := buildHexHeader(t, ZRINIT, stohdr(7))

	full := NewParser()
	wantEvents, err := full.Feed(wire)
	if err != nil {
		t.Fatalf("Feed error: %v", err)
	}

	for chunkSize := 1; chunkSize <= len(wire); chunkSize++ {
		p := NewParser()
		var chunks [][]byte
		for i := 0; i < len(wire); i += chunkSize {
			end := i + chunkSize
			if end > len(wire) {
				end = len(wire)
			}
			chunks = append(chunks, wire[i:end])
		}
		got := feedAll(t, p, chunks)
		if len(got) != len(wantEvents) {
			t.Fatalf("chunkSize=%d: got %d events, want %d", chunkSize, len(got), len(wantEvents))
		}
		for i := range got {
			if got[i].Kind != wantEvents[i].Kind || got[i].FrameType != wantEvents[i].FrameType {
				t.Fatalf("chunkSize=%d: event %d = %+v, want %+v", chunkSize, i, got[i], wantEvents[i])
			}
		}
	}
}

// TestParserCancelLatency verifies property 6: five consecutive CAN bytes
// anywhere produce a Cancel event within the same Feed call.
func TestParserCancelLatency(t *testing.T) {
	p := NewParser()
	cancel := []byte{CAN, CAN, CAN, CAN, CAN}
	events, err := p.Feed(cancel)
	if err != nil {
		t.Fatalf("Feed error: %v", err)
	}
	if len(events) != 1 || events[0].Kind != EventCancel {
		t.Fatalf("events = %+v, want one EventCancel", events)
	}
}

func TestParserCancelMidHeader(t *testing.T) {
	p := NewParser()
	wire := buildHexHeader(t, ZRQINIT, Header{})
	mixed := append(append([]byte{}, wire[:4]...), []byte{CAN, CAN, CAN, CAN, CAN}...)
	events, err := p.Feed(mixed)
	if err != nil {
		t.Fatalf("Feed error: %v", err)
	}
	found := false
	for _, e := range events {
		if e.Kind == EventCancel {
			found = true
		}
	}
	if !found {
		t.Fatalf("events = %+v, want a Cancel event", events)
	}
}

func TestParserOOSequence(t *testing.T) {
	p := NewParser()
	p.ExpectOO(true)
	events, err := p.Feed([]byte("OO"))
	if err != nil {
		t.Fatalf("Feed error: %v", err)
	}
	if len(events) != 1 || events[0].Kind != EventOO {
		t.Fatalf("events = %+v, want one EventOO", events)
	}
}
