package zmodem

import (
	"context"
	"io"
	"time"
)

// Session drives a Receiver against a real transport: an idle-read
// goroutine feeds inbound bytes in, a ticker drives Tick so retries and
// timeouts progress even when the peer goes quiet, and every reply Feed or
// Tick produces is written back out in order.
type Session struct {
	reader io.Reader
	writer io.Writer

	receiver  *Receiver
	callbacks *Callbacks
	logger    Logger

	ctx          context.Context
	tickInterval time.Duration
	readBufSize  int

	active bool
}

// Option configures a Session.
type Option func(*Session)

// WithCallbacks sets the session's event hooks.
func WithCallbacks(callbacks *Callbacks) Option {
	return func(s *Session) {
		s.callbacks = mergeCallbacks(callbacks)
	}
}

// WithContext sets the context Run uses when it is called with a nil
// context.
func WithContext(ctx context.Context) Option {
	return func(s *Session) {
		s.ctx = ctx
	}
}

// WithSessionLogger sets a logger for protocol debugging.
func WithSessionLogger(logger Logger) Option {
	return func(s *Session) {
		s.logger = logger
	}
}

// WithTickInterval sets how often Run calls Tick while idle. The default
// is a fifth of the receiver's configured timeout, so a timeout is never
// missed by more than that margin.
func WithTickInterval(d time.Duration) Option {
	return func(s *Session) {
		s.tickInterval = d
	}
}

// WithReadBufferSize sets the chunk size the read goroutine uses.
func WithReadBufferSize(n int) Option {
	return func(s *Session) {
		s.readBufSize = n
	}
}

// NewSession builds a Session around a transport and a Receiver configured
// with cfg (nil for defaults) delivering file content to sink.
func NewSession(reader io.Reader, writer io.Writer, cfg *Config, sink FileSink, opts ...Option) *Session {
	s := &Session{
		reader:       reader,
		writer:       writer,
		callbacks:    defaultCallbacks(),
		logger:       NoopLogger{},
		ctx:          context.Background(),
		readBufSize:  4096,
		tickInterval: 2 * time.Second,
	}
	if cfg != nil && cfg.Timeout > 0 {
		s.tickInterval = cfg.Timeout / 5
		if s.tickInterval <= 0 {
			s.tickInterval = 100 * time.Millisecond
		}
	}
	for _, opt := range opts {
		opt(s)
	}

	if _, noop := s.logger.(NoopLogger); !noop {
		s.reader = NewLoggingReader(s.reader, s.logger, "rx")
		s.writer = NewLoggingWriter(s.writer, s.logger, "tx")
	}

	s.receiver = NewReceiver(cfg, sink, s.logger)
	s.receiver.SetCallbacks(s.callbacks)

	return s
}

// Receiver exposes the underlying engine, for callers that want to read
// State()/Offset() directly.
func (s *Session) Receiver() *Receiver {
	return s.receiver
}

type readResult struct {
	chunk []byte
	err   error
}

// Run drives the receive loop to completion: it reads from the transport,
// feeds the engine, writes replies, and ticks on idle, until the session
// finishes cleanly (nil error) or fails.
func (s *Session) Run(ctx context.Context) error {
	if s.active {
		return NewError(ErrProtocol, "session already running")
	}
	s.active = true
	defer func() { s.active = false }()

	if ctx == nil {
		ctx = s.ctx
	}

	reads := make(chan readResult, 1)
	done := make(chan struct{})
	defer close(done)

	go func() {
		buf := make([]byte, s.readBufSize)
		for {
			n, err := s.reader.Read(buf)
			var chunk []byte
			if n > 0 {
				chunk = append([]byte(nil), buf[:n]...)
			}
			select {
			case reads <- readResult{chunk: chunk, err: err}:
			case <-done:
				return
			}
			if err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()

	last := time.Now()

	for {
		select {
		case <-ctx.Done():
			s.writeOut(s.receiver.Cancel())
			return ctx.Err()

		case rr := <-reads:
			if len(rr.chunk) > 0 {
				last = time.Now()
				out, err := s.receiver.Feed(rr.chunk)
				if werr := s.writeOut(out); werr != nil {
					return werr
				}
				if err != nil {
					return s.finish(err)
				}
			}
			if rr.err != nil {
				if rr.err == io.EOF {
					return NewError(ErrIO, "transport closed before session completed")
				}
				return rr.err
			}

		case now := <-ticker.C:
			out, err := s.receiver.Tick(now.Sub(last))
			last = now
			if werr := s.writeOut(out); werr != nil {
				return werr
			}
			if err != nil {
				return s.finish(err)
			}
		}
	}
}

func (s *Session) finish(err error) error {
	if IsComplete(err) {
		return nil
	}
	return err
}

func (s *Session) writeOut(b []byte) error {
	if len(b) == 0 {
		return nil
	}
	for written := 0; written < len(b); {
		n, err := s.writer.Write(b[written:])
		if err != nil {
			return err
		}
		written += n
	}
	return nil
}
