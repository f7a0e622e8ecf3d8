package zmodem

// State is a step in the receive session's life cycle (C5's state
// variable). Unarmed DATA collection never starts on its own; every
// transition that expects a subpacket to follow arms the parser explicitly.
type State int

const (
	StateStart State = iota
	StateInitWait
	StateFileInfo
	StateCRCWait
	StateReadReady
	StateReading
	StateFinish
	StateCommand
	StateMessage
	StateDone
)

func (s State) String() string {
	switch s {
	case StateStart:
		return "START"
	case StateInitWait:
		return "INITWAIT"
	case StateFileInfo:
		return "FILEINFO"
	case StateCRCWait:
		return "CRCWAIT"
	case StateReadReady:
		return "READREADY"
	case StateReading:
		return "READING"
	case StateFinish:
		return "FINISH"
	case StateCommand:
		return "COMMAND"
	case StateMessage:
		return "MESSAGE"
	case StateDone:
		return "DONE"
	default:
		return "UNKNOWN"
	}
}

// maxRetries per state, matching spec.md's timeout policy: 4 retries in
// the header-hunting states, 2 once data is flowing.
func maxRetriesFor(s State) int {
	switch s {
	case StateStart, StateInitWait, StateFileInfo:
		return 4
	case StateCRCWait, StateReadReady, StateReading:
		return 2
	default:
		return 4
	}
}

// headerTransition describes what happens in a given state when a header
// of a given frame type arrives: the resulting state and the action to run.
// Looked up as transitions[state][frameType]; frameType -1 (this package's
// parser-NAK sentinel) and unlisted frame types fall through to the
// wildcard handlers below.
type headerTransition struct {
	next   State
	action func(r *Receiver, ev Event) error
}

var transitions map[State]map[int]headerTransition

func init() {
	transitions = map[State]map[int]headerTransition{
		StateStart: {
			ZRQINIT:  {StateStart, (*Receiver).onRQINIT},
			ZSINIT:   {StateInitWait, (*Receiver).onSINIT},
			ZFILE:    {StateFileInfo, (*Receiver).armFileInfo},
			ZFIN:     {StateFinish, (*Receiver).onFIN},
			ZNAK:     {StateStart, (*Receiver).resendLastRequest},
			ZFREECNT: {StateStart, (*Receiver).onFREECNT},
			ZCOMMAND: {StateCommand, (*Receiver).armCommand},
			ZSTDERR:  {StateMessage, (*Receiver).armMessage},
		},
		StateInitWait: {
			// DATARCVD for the ZSINIT payload is handled via handleData,
			// not a header event; nothing else is expected here.
		},
		StateFileInfo: {
			// Likewise: the ZFILE data subpacket arrives as DATARCVD.
		},
		StateCRCWait: {
			ZCRC: {StateReadReady, (*Receiver).onCRCReply},
			ZNAK: {StateCRCWait, (*Receiver).resendLastRequest},
		},
		StateReadReady: {
			ZDATA: {StateReading, (*Receiver).armReading},
			ZEOF:  {StateStart, (*Receiver).onEOF},
			ZNAK:  {StateReadReady, (*Receiver).resendLastRequest},
		},
		StateReading: {
			// DATARCVD carries the payload; ZEOF can also arrive directly
			// if the sender ends the file between subpackets.
			ZEOF: {StateStart, (*Receiver).onEOF},
		},
		StateFinish: {
			// OO is not a header event; handled via handleOO.
		},
		StateCommand: {},
		StateMessage: {},
		StateDone:    {},
	}
}

func (r *Receiver) handleHeader(ev Event) error {
	if ev.FrameType == -1 {
		return r.sendHexHeader(ZNAK, stohdr(0))
	}
	if ev.FrameType == ZCAN {
		return r.abort(ErrCancelled, "peer sent ZCAN")
	}
	if ev.FrameType == ZABORT {
		return r.abort(ErrCancelled, "peer sent ZABORT")
	}

	table, ok := transitions[r.state]
	if !ok {
		return nil
	}
	t, ok := table[ev.FrameType]
	if !ok {
		// Wildcard ERROR row: an unexpected-but-not-fatal header in this
		// state. Mark wait and keep going rather than abort the session.
		r.waitFlag = true
		r.logger.Debug("unexpected frame %s in state %s", FrameTypeName(ev.FrameType), r.state)
		return nil
	}
	r.retries = 0
	r.state = t.next
	return t.action(r, ev)
}

// handleData applies the file-data handler contract from spec.md §4.5 when
// in a state where a data subpacket is meaningful (ZSINIT payload,
// ZFILE payload, file content, or ZCOMMAND/ZSTDERR text).
func (r *Receiver) handleData(ev Event) error {
	switch r.state {
	case StateInitWait:
		return r.onSinitData(ev)
	case StateFileInfo:
		return r.onFileInfoData(ev)
	case StateReading:
		return r.onFileData(ev)
	case StateCommand:
		return r.onCommandData(ev)
	case StateMessage:
		return r.onMessageData(ev)
	default:
		r.waitFlag = true
		return nil
	}
}

func (r *Receiver) handleOO(ev Event) error {
	if r.state != StateFinish {
		r.waitFlag = true
		return nil
	}
	r.state = StateDone
	return ErrTransferComplete
}
