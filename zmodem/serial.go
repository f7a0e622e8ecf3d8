package zmodem

import (
	"context"
	"fmt"
	"time"

	"go.bug.st/serial"
)

// SerialSession drives a receive-only ZModem Session over a serial port,
// ZMODEM's original habitat: a noisy, half-duplex link where retries and
// the escape-codec's control-character stripping actually earn their keep.
type SerialSession struct {
	*Session
	port serial.Port
}

// SerialConfig describes how to open the port, independent of the ZModem
// protocol Config.
type SerialConfig struct {
	BaudRate    int
	DataBits    int
	Parity      serial.Parity
	StopBits    serial.StopBits
	ReadTimeout time.Duration
}

// DefaultSerialConfig returns 8N1 at 115200 baud, the usual default for a
// ZMODEM-capable terminal link.
func DefaultSerialConfig() *SerialConfig {
	return &SerialConfig{
		BaudRate:    115200,
		DataBits:    8,
		Parity:      serial.NoParity,
		StopBits:    serial.OneStopBit,
		ReadTimeout: 200 * time.Millisecond,
	}
}

// NewSerialSession opens portName and wraps it in a receive-only ZModem
// session, configured with cfg (nil for defaults) delivering file content
// to sink.
func NewSerialSession(portName string, sc *SerialConfig, cfg *Config, sink FileSink, opts ...Option) (*SerialSession, error) {
	if sc == nil {
		sc = DefaultSerialConfig()
	}

	mode := &serial.Mode{
		BaudRate: sc.BaudRate,
		DataBits: sc.DataBits,
		Parity:   sc.Parity,
		StopBits: sc.StopBits,
	}

	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, fmt.Errorf("opening serial port %s: %w", portName, err)
	}

	if sc.ReadTimeout > 0 {
		if err := port.SetReadTimeout(sc.ReadTimeout); err != nil {
			port.Close()
			return nil, fmt.Errorf("configuring read timeout on %s: %w", portName, err)
		}
	}

	session := NewSession(port, port, cfg, sink, opts...)

	return &SerialSession{
		Session: session,
		port:    port,
	}, nil
}

// Receive drives the session to completion over the open port.
func (s *SerialSession) Receive(ctx context.Context) error {
	return s.Session.Run(ctx)
}

// Close closes the underlying serial port.
func (s *SerialSession) Close() error {
	return s.port.Close()
}
