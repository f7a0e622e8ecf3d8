package zmodem

import (
	"context"
	"io"

	"golang.org/x/crypto/ssh"
)

// SSHSession wraps an SSH session for ZModem receiving: it starts the
// remote "sz" command over an *ssh.Session's stdio pipes and drives a
// Session against them.
type SSHSession struct {
	*Session
	sshSession *ssh.Session
	stdin      io.WriteCloser
	stdout     io.Reader
	stderr     io.Reader
}

// NewSSHSession creates a receive-only ZModem session from an SSH session,
// configured with cfg (nil for defaults) delivering file content to sink.
func NewSSHSession(sshSession *ssh.Session, cfg *Config, sink FileSink, opts ...Option) (*SSHSession, error) {
	stdin, err := sshSession.StdinPipe()
	if err != nil {
		return nil, err
	}

	stdout, err := sshSession.StdoutPipe()
	if err != nil {
		stdin.Close()
		return nil, err
	}

	stderr, err := sshSession.StderrPipe()
	if err != nil {
		stdin.Close()
		return nil, err
	}

	session := NewSession(stdout, stdin, cfg, sink, opts...)

	return &SSHSession{
		Session:    session,
		sshSession: sshSession,
		stdin:      stdin,
		stdout:     stdout,
		stderr:     stderr,
	}, nil
}

// ReceiveFile starts the remote "sz" command and drives the session to
// completion, returning once the transfer finishes or fails.
func (s *SSHSession) ReceiveFile(ctx context.Context) error {
	if err := s.sshSession.Start("sz --zmodem -"); err != nil {
		return err
	}

	done := make(chan error, 1)
	go func() {
		done <- s.sshSession.Wait()
	}()

	err := s.Session.Run(ctx)

	s.stdin.Close()

	select {
	case remoteErr := <-done:
		if err == nil {
			err = remoteErr
		}
	case <-ctx.Done():
		return ctx.Err()
	}

	return err
}

// Close closes the SSH session and cleans up resources.
func (s *SSHSession) Close() error {
	var firstErr error

	if s.stdin != nil {
		if err := s.stdin.Close(); err != nil {
			firstErr = err
		}
	}

	if s.sshSession != nil {
		if err := s.sshSession.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	return firstErr
}

// Stderr returns the stderr reader for monitoring remote command output.
func (s *SSHSession) Stderr() io.Reader {
	return s.stderr
}
