package zmodem

import (
	"os"
	"time"
)

// Callbacks provides hooks for receive-side transfer events. All callbacks
// are optional; nil callbacks fall back to permissive defaults.
type Callbacks struct {
	// OnFilePrompt is called when a ZFILE offer arrives, before any data
	// flows. Return true to accept the file, false to skip it. A non-nil
	// error aborts the whole session.
	OnFilePrompt func(filename string, size int64, mode os.FileMode) (bool, error)

	// OnProgress is called as data subpackets are delivered, at most once
	// per progress interval (100ms), and once more when the file ends.
	OnProgress func(filename string, transferred, total int64, rate float64)

	// OnFileStart is called once a file offer has been accepted.
	OnFileStart func(filename string, size int64, mode os.FileMode)

	// OnFileComplete is called when the sender ends a file with ZEOF. It is
	// not called when the transfer aborts or the file is skipped.
	OnFileComplete func(filename string, bytesTransferred int64, duration time.Duration)

	// OnError is called when the file sink rejects data. The return value
	// is currently advisory only; the session always aborts the batch.
	OnError func(err error, context string) bool

	// OnEvent is called with the data event carrying a ZCOMMAND or ZSTDERR
	// payload.
	OnEvent func(event Event)

	// OnFileCreate is called to open the destination for a file, if the
	// host wants to supply its own FileSink per file rather than a single
	// session-wide one.
	OnFileCreate func(filename string, size int64, mode os.FileMode) (FileSink, error)
}

func defaultCallbacks() *Callbacks {
	return &Callbacks{
		OnFilePrompt: func(string, int64, os.FileMode) (bool, error) {
			return true, nil
		},
		OnProgress:     func(string, int64, int64, float64) {},
		OnFileStart:    func(string, int64, os.FileMode) {},
		OnFileComplete: func(string, int64, time.Duration) {},
		OnError: func(error, string) bool {
			return false
		},
		OnEvent:      func(Event) {},
		OnFileCreate: nil,
	}
}

// mergeCallbacks merges user callbacks with defaults; a nil field in user
// falls back to the default, a nil user returns the defaults outright.
func mergeCallbacks(user *Callbacks) *Callbacks {
	if user == nil {
		return defaultCallbacks()
	}

	def := defaultCallbacks()
	result := &Callbacks{}

	if user.OnFilePrompt != nil {
		result.OnFilePrompt = user.OnFilePrompt
	} else {
		result.OnFilePrompt = def.OnFilePrompt
	}
	if user.OnProgress != nil {
		result.OnProgress = user.OnProgress
	} else {
		result.OnProgress = def.OnProgress
	}
	if user.OnFileStart != nil {
		result.OnFileStart = user.OnFileStart
	} else {
		result.OnFileStart = def.OnFileStart
	}
	if user.OnFileComplete != nil {
		result.OnFileComplete = user.OnFileComplete
	} else {
		result.OnFileComplete = def.OnFileComplete
	}
	if user.OnError != nil {
		result.OnError = user.OnError
	} else {
		result.OnError = def.OnError
	}
	if user.OnEvent != nil {
		result.OnEvent = user.OnEvent
	} else {
		result.OnEvent = def.OnEvent
	}
	result.OnFileCreate = user.OnFileCreate

	return result
}
