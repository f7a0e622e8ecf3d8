package zmodem

import "time"

// Config configures a Receiver. A nil Config passed to NewReceiver is
// replaced with DefaultConfig's values.
type Config struct {
	// Use32BitCRC selects CRC-32 (ZBIN32) for outbound headers and for
	// arming the parser's data-subpacket CRC mode.
	Use32BitCRC bool

	// EscapeControl requests that control characters be ZDLE-escaped on
	// the wire, advertised to the peer via ESCCTL in our ZRINIT.
	EscapeControl bool

	// BufferSize bounds a single data subpacket; exceeding it is a fatal
	// parse error (the sender is misbehaving or out of sync).
	BufferSize int

	// MaxErrors is the CRC-failure budget for one file's data before the
	// session is aborted outright.
	MaxErrors int

	// Capabilities is the capability byte advertised in our ZRINIT (ZF0).
	Capabilities byte

	// Timeout is how long Tick lets the session sit idle before treating
	// it as a retry opportunity or, past the state's retry budget, a
	// timeout failure.
	Timeout time.Duration
}

// DefaultConfig returns the configuration a plain command-line receive
// session wants: 32-bit CRC, no control-character escaping, generous
// buffering, a ten-second idle timeout.
func DefaultConfig() *Config {
	return &Config{
		Use32BitCRC:   true,
		EscapeControl: false,
		BufferSize:    8192,
		MaxErrors:     10,
		Capabilities:  CANFDX | CANOVIO | CANFC32,
		Timeout:       10 * time.Second,
	}
}

// Receiver is the receive-side protocol engine (C5) wired to the byte
// parser (C4). It is fed bytes and handed bytes back to write; it never
// touches a transport, a clock, or a filesystem directly.
//
// Not safe for concurrent use: Feed, Tick, and Cancel must not be called
// from more than one goroutine at a time, and none may be called
// reentrantly from within a FileSink or Callbacks hook.
type Receiver struct {
	cfg        *Config
	sink       FileSink
	activeSink FileSink
	logger     Logger
	callbacks  *Callbacks

	parser   *Parser
	state    State
	progress *ProgressTracker

	offset     uint32
	info       FileInfo
	fileZF0    byte
	fileZF1    byte
	zcnl       bool
	attn       []byte
	escapeCtrl bool

	nerrors int
	retries int
	elapsed time.Duration

	waitFlag bool

	lastRequest []byte
	outBuf      []byte
}

// NewReceiver builds a Receiver in State START, ready to be fed bytes.
func NewReceiver(cfg *Config, sink FileSink, logger Logger) *Receiver {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = NoopLogger{}
	}
	r := &Receiver{
		cfg:        cfg,
		sink:       sink,
		activeSink: sink,
		logger:     logger,
		callbacks:  defaultCallbacks(),
		parser:     NewParser(),
		state:      StateStart,
	}
	r.progress = NewProgressTracker(func(filename string, transferred, total int64, rate float64) {
		if r.callbacks.OnProgress != nil {
			r.callbacks.OnProgress(filename, transferred, total, rate)
		}
	}, 0)
	return r
}

// SetCallbacks installs host hooks, merging with the defaults for any left
// nil.
func (r *Receiver) SetCallbacks(cb *Callbacks) {
	r.callbacks = mergeCallbacks(cb)
}

// State reports the engine's current position in the session life cycle.
func (r *Receiver) State() State {
	return r.state
}

// Offset reports the number of file-content bytes delivered so far for the
// file currently in progress.
func (r *Receiver) Offset() uint32 {
	return r.offset
}

// Feed hands the engine the next chunk of bytes read from the transport
// and returns the reply bytes the caller must write back, in order. A
// non-nil error is either ErrTransferComplete (the session finished
// cleanly; any returned bytes should still be written first) or a fatal
// protocol failure. Any received bytes restart the idle clock Tick measures.
func (r *Receiver) Feed(p []byte) ([]byte, error) {
	r.outBuf = r.outBuf[:0]
	if len(p) > 0 {
		r.elapsed = 0
	}

	events, perr := r.parser.Feed(p)
	for _, ev := range events {
		var err error
		switch ev.Kind {
		case EventCancel:
			err = r.abort(ErrCancelled, "peer sent CAN*5")
		case EventHeader:
			err = r.handleHeader(ev)
		case EventDataRcvd:
			err = r.handleData(ev)
		case EventOO:
			err = r.handleOO(ev)
		}
		if err != nil {
			return r.flushOut(), err
		}
	}
	if perr != nil {
		r.send(cancelSequence())
		r.state = StateDone
		return r.flushOut(), perr
	}
	return r.flushOut(), nil
}

// Tick advances the engine's idle clock by elapsed. Call it on whatever
// cadence the host's event loop uses; the engine owns no timer of its own.
func (r *Receiver) Tick(elapsed time.Duration) ([]byte, error) {
	r.outBuf = r.outBuf[:0]
	if r.state == StateDone {
		return r.flushOut(), nil
	}

	r.elapsed += elapsed
	if r.elapsed < r.cfg.Timeout {
		return r.flushOut(), nil
	}
	r.elapsed = 0
	r.retries++
	if r.retries > maxRetriesFor(r.state) {
		r.send(cancelSequence())
		r.state = StateDone
		return r.flushOut(), NewError(ErrTimeout, "timed out waiting for "+r.state.String())
	}
	if err := r.resendLastRequest(Event{FrameType: -1}); err != nil {
		return r.flushOut(), err
	}
	return r.flushOut(), nil
}

// Cancel ends the session immediately and returns the outbound cancel
// sequence (8 CAN bytes, 10 backspaces) the caller must write.
func (r *Receiver) Cancel() []byte {
	r.state = StateDone
	return cancelSequence()
}

func cancelSequence() []byte {
	b := make([]byte, 0, 18)
	for i := 0; i < 8; i++ {
		b = append(b, CAN)
	}
	for i := 0; i < 10; i++ {
		b = append(b, 0x08)
	}
	return b
}

func (r *Receiver) send(b []byte) {
	r.outBuf = append(r.outBuf, b...)
}

func (r *Receiver) flushOut() []byte {
	return append([]byte(nil), r.outBuf...)
}

func (r *Receiver) sendHexHeader(frameType int, hdr Header) error {
	b, err := EncodeHexHeader(frameType, hdr)
	if err != nil {
		return err
	}
	r.lastRequest = b
	r.send(b)
	r.elapsed = 0
	return nil
}

func (r *Receiver) rinitHeader() Header {
	h := stohdr(0)
	h[ZF0] = r.cfg.Capabilities
	if r.cfg.EscapeControl {
		h[ZF0] |= ESCCTL
	}
	return h
}

func (r *Receiver) resendLastRequest(ev Event) error {
	r.send(r.lastRequest)
	return nil
}

func (r *Receiver) abort(t ErrorType, msg string) error {
	r.send(cancelSequence())
	r.state = StateDone
	return NewError(t, msg)
}

// nakAndRearm is the retry path for a corrupted control subpacket (ZSINIT
// attention string, ZFILE name, ZCOMMAND/ZSTDERR text): NAK it and arm the
// parser to collect it again, bounded by MaxErrors.
func (r *Receiver) nakAndRearm(use32 bool) error {
	r.nerrors++
	if r.nerrors > r.cfg.MaxErrors {
		return r.abort(ErrCRC, "too many subpacket errors")
	}
	if err := r.sendHexHeader(ZNAK, stohdr(0)); err != nil {
		return err
	}
	r.parser.ArmData(use32, r.cfg.BufferSize)
	return nil
}

// --- header-driven actions (see statemachine.go's transitions table) ---

func (r *Receiver) onRQINIT(ev Event) error {
	return r.sendHexHeader(ZRINIT, r.rinitHeader())
}

func (r *Receiver) onSINIT(ev Event) error {
	r.escapeCtrl = r.escapeCtrl || ev.Header[ZF0]&TESCCTL != 0
	r.parser.ArmData(r.cfg.Use32BitCRC, r.cfg.BufferSize)
	return nil
}

func (r *Receiver) armFileInfo(ev Event) error {
	r.fileZF0 = ev.Header[ZF0]
	r.fileZF1 = ev.Header[ZF1]
	r.nerrors = 0
	r.parser.ArmData(r.cfg.Use32BitCRC, r.cfg.BufferSize)
	return nil
}

func (r *Receiver) onFIN(ev Event) error {
	r.parser.ExpectOO(true)
	return r.sendHexHeader(ZFIN, stohdr(0))
}

func (r *Receiver) onFREECNT(ev Event) error {
	return r.sendHexHeader(ZACK, stohdr(0xFFFFFFFF))
}

func (r *Receiver) armCommand(ev Event) error {
	r.parser.ArmData(r.cfg.Use32BitCRC, r.cfg.BufferSize)
	return nil
}

func (r *Receiver) armMessage(ev Event) error {
	r.parser.ArmData(r.cfg.Use32BitCRC, r.cfg.BufferSize)
	return nil
}

func (r *Receiver) onCRCReply(ev Event) error {
	r.beginFileTransfer()
	return r.sendHexHeader(ZRPOS, stohdr(r.offset))
}

func (r *Receiver) armReading(ev Event) error {
	if rclhdr(ev.Header) != r.offset {
		r.state = StateReadReady
		r.send(r.attn)
		return r.sendHexHeader(ZRPOS, stohdr(r.offset))
	}
	r.parser.ArmData(r.cfg.Use32BitCRC, r.cfg.BufferSize)
	return nil
}

func (r *Receiver) onEOF(ev Event) error {
	duration := r.progress.Complete()
	if r.callbacks.OnFileComplete != nil {
		r.callbacks.OnFileComplete(r.info.Name, int64(r.offset), duration)
	}
	return r.sendHexHeader(ZRINIT, r.rinitHeader())
}

// --- data-driven actions (DATARCVD events, dispatched by handleData) ---

func (r *Receiver) onSinitData(ev Event) error {
	if !ev.CRCOK {
		return r.nakAndRearm(r.cfg.Use32BitCRC)
	}
	r.attn = append([]byte(nil), ev.Packet...)
	r.state = StateStart
	return r.sendHexHeader(ZACK, stohdr(0))
}

func (r *Receiver) onFileInfoData(ev Event) error {
	if !ev.CRCOK {
		return r.nakAndRearm(r.cfg.Use32BitCRC)
	}
	info, err := ParseFileInfo(ev.Packet)
	if err != nil {
		return r.abort(ErrInvalidFrame, err.Error())
	}
	info.Name = SanitizeFilename(info.Name)
	r.info = info
	r.offset = 0
	r.nerrors = 0
	r.zcnl = r.fileZF0 == ZCNL

	accept := true
	if r.callbacks.OnFilePrompt != nil {
		accept, err = r.callbacks.OnFilePrompt(info.Name, info.Size, info.Mode)
		if err != nil {
			return r.abort(ErrProtocol, err.Error())
		}
	}
	if !accept {
		r.state = StateStart
		return r.sendHexHeader(ZSKIP, stohdr(0))
	}

	r.activeSink = r.sink
	if r.callbacks.OnFileCreate != nil {
		created, err := r.callbacks.OnFileCreate(info.Name, info.Size, info.Mode)
		if err != nil {
			return r.abort(ErrIO, err.Error())
		}
		if created != nil {
			r.activeSink = created
		}
	}

	if r.fileZF1&ZF1_ZMMASK == ZF1_ZMCRC {
		r.state = StateCRCWait
		return r.sendHexHeader(ZCRC, stohdr(0))
	}

	r.beginFileTransfer()
	r.state = StateReadReady
	return r.sendHexHeader(ZRPOS, stohdr(r.offset))
}

// beginFileTransfer fires the file-start callback and starts progress
// tracking. Called once per file, from whichever path (direct or via
// ZMCRC's CRCWAIT round trip) first reaches StateReadReady.
func (r *Receiver) beginFileTransfer() {
	if r.callbacks.OnFileStart != nil {
		r.callbacks.OnFileStart(r.info.Name, r.info.Size, r.info.Mode)
	}
	r.progress.Start(r.info.Name, r.info.Size)
}

// onFileData implements the file-data handler contract from spec.md §4.5.
func (r *Receiver) onFileData(ev Event) error {
	if !ev.CRCOK {
		r.nerrors++
		if r.nerrors > r.cfg.MaxErrors {
			return r.abort(ErrCRC, "too many errors receiving file content")
		}
		r.state = StateReadReady
		r.send(r.attn)
		return r.sendHexHeader(ZRPOS, stohdr(r.offset))
	}

	if err := r.activeSink.OnReceive(ev.Packet, r.zcnl); err != nil {
		if r.callbacks.OnError != nil {
			r.callbacks.OnError(err, "file sink")
		}
		if werr := r.sendHexHeader(ZFERR, stohdr(r.offset)); werr != nil {
			return werr
		}
		r.parser.ExpectOO(true)
		r.state = StateFinish
		return r.sendHexHeader(ZFIN, stohdr(0))
	}

	r.offset += uint32(len(ev.Packet))
	r.nerrors = 0
	r.progress.Update(int64(r.offset))

	switch ev.PacketType {
	case ZCRCE, ZCRCW:
		r.state = StateReadReady
	default:
		r.parser.ArmData(r.cfg.Use32BitCRC, r.cfg.BufferSize)
	}

	switch ev.PacketType {
	case ZCRCQ, ZCRCW:
		return r.sendHexHeader(ZACK, stohdr(r.offset))
	}
	return nil
}

func (r *Receiver) onCommandData(ev Event) error {
	if !ev.CRCOK {
		return r.nakAndRearm(r.cfg.Use32BitCRC)
	}
	if r.callbacks.OnEvent != nil {
		r.callbacks.OnEvent(ev)
	}
	r.state = StateStart
	return r.sendHexHeader(ZCOMPL, stohdr(0))
}

func (r *Receiver) onMessageData(ev Event) error {
	if !ev.CRCOK {
		return r.nakAndRearm(r.cfg.Use32BitCRC)
	}
	if r.callbacks.OnEvent != nil {
		r.callbacks.OnEvent(ev)
	}
	r.state = StateStart
	return nil
}
