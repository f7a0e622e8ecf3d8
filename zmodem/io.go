package zmodem

// FrameWriter is the outbound half of the I/O adapter contract (C6): the
// host writes the reply bytes Feed/Tick/Cancel returns to whatever
// transport carries the session. Short writes are the caller's problem to
// loop on; a FrameWriter only needs to report how much landed.
type FrameWriter interface {
	Write(p []byte) (int, error)
}

// FileSink is the inbound half of the I/O adapter contract (C6): the
// engine calls OnReceive for every successfully verified data subpacket
// belonging to the file currently in progress. zcnl is true when the file
// was offered with ZCNL conversion, in which case the sink is responsible
// for translating CR, LF, and CRLF/LFCR pairs to a single newline,
// idempotently across calls (a pair may straddle two subpackets). A
// negative-equivalent (non-nil) return aborts the transfer.
type FileSink interface {
	OnReceive(p []byte, zcnl bool) error
}
