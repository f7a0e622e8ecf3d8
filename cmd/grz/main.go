package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/term"

	"github.com/haldane-labs/zmrecv/zmodem"
)

var (
	verbose   = flag.Bool("v", false, "verbose mode")
	quiet     = flag.Bool("q", false, "quiet mode")
	binary    = flag.Bool("b", false, "binary transfer")
	ascii     = flag.Bool("a", false, "ASCII transfer")
	overwrite = flag.Bool("y", false, "overwrite existing files")
	protect   = flag.Bool("p", false, "protect existing files")
	escape    = flag.Bool("e", false, "escape control characters")
	timeoutT  = flag.Int("t", 100, "timeout in tenths of seconds")
	help      = flag.Bool("h", false, "show help")
	version   = flag.Bool("version", false, "show version")
	serialDev = flag.String("serial", "", "receive over a serial port instead of stdio")
	sshTarget = flag.String("ssh", "", "receive from user@host over SSH instead of stdio")
	logPath   = flag.String("log", "", "log protocol traffic to this file")
)

const versionString = "grz version 0.1.0"

func main() {
	flag.Parse()

	if *help {
		showUsage(0)
	}

	if *version {
		fmt.Println(versionString)
		os.Exit(0)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	ctx, cancel := signalContext(sigChan)
	defer cancel()

	cfg := zmodem.DefaultConfig()
	cfg.EscapeControl = *escape
	cfg.Timeout = time.Duration(*timeoutT) * 100 * time.Millisecond

	sink := &dirSink{}
	callbacks := buildCallbacks(sink)

	var logger zmodem.Logger = zmodem.NoopLogger{}
	if *logPath != "" {
		fileLogger, err := zmodem.NewFileLogger(*logPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening log file: %v\n", err)
			os.Exit(1)
		}
		defer fileLogger.Close()
		logger = fileLogger
	}

	var err error
	switch {
	case *serialDev != "":
		err = runSerial(ctx, *serialDev, cfg, sink, callbacks, logger)
	case *sshTarget != "":
		err = runSSH(ctx, *sshTarget, cfg, sink, callbacks, logger)
	default:
		err = runStdio(ctx, cfg, sink, callbacks, logger)
	}

	if err != nil {
		if !*quiet {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

func runStdio(ctx context.Context, cfg *zmodem.Config, sink zmodem.FileSink, callbacks *zmodem.Callbacks, logger zmodem.Logger) error {
	session := zmodem.NewSession(os.Stdin, os.Stdout, cfg, sink,
		zmodem.WithCallbacks(callbacks),
		zmodem.WithContext(ctx),
		zmodem.WithSessionLogger(logger),
	)
	return session.Run(ctx)
}

func runSerial(ctx context.Context, dev string, cfg *zmodem.Config, sink zmodem.FileSink, callbacks *zmodem.Callbacks, logger zmodem.Logger) error {
	session, err := zmodem.NewSerialSession(dev, nil, cfg, sink,
		zmodem.WithCallbacks(callbacks),
		zmodem.WithContext(ctx),
		zmodem.WithSessionLogger(logger),
	)
	if err != nil {
		return err
	}
	defer session.Close()
	return session.Receive(ctx)
}

func runSSH(ctx context.Context, target string, cfg *zmodem.Config, sink zmodem.FileSink, callbacks *zmodem.Callbacks, logger zmodem.Logger) error {
	client, err := dialSSH(target)
	if err != nil {
		return fmt.Errorf("dialing %s: %w", target, err)
	}
	defer client.Close()

	sshSess, err := client.NewSession()
	if err != nil {
		return fmt.Errorf("opening ssh session: %w", err)
	}

	var restore func()
	if term.IsTerminal(int(os.Stdin.Fd())) {
		oldState, err := term.MakeRaw(int(os.Stdin.Fd()))
		if err == nil {
			restore = func() { term.Restore(int(os.Stdin.Fd()), oldState) }
			defer restore()
		}
	}

	session, err := zmodem.NewSSHSession(sshSess, cfg, sink,
		zmodem.WithCallbacks(callbacks),
		zmodem.WithContext(ctx),
		zmodem.WithSessionLogger(logger),
	)
	if err != nil {
		return err
	}
	defer session.Close()

	return session.ReceiveFile(ctx)
}

func dialSSH(target string) (*ssh.Client, error) {
	user, host := splitUserHost(target)
	sshConfig := &ssh.ClientConfig{
		User:            user,
		Auth:            []ssh.AuthMethod{ssh.PasswordCallback(readPassword)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         10 * time.Second,
	}
	return ssh.Dial("tcp", host, sshConfig)
}

func splitUserHost(target string) (user, host string) {
	for i := 0; i < len(target); i++ {
		if target[i] == '@' {
			user = target[:i]
			host = target[i+1:]
			if !hasPort(host) {
				host += ":22"
			}
			return user, host
		}
	}
	host = target
	if !hasPort(host) {
		host += ":22"
	}
	return os.Getenv("USER"), host
}

func hasPort(host string) bool {
	for i := len(host) - 1; i >= 0; i-- {
		if host[i] == ':' {
			return true
		}
		if host[i] == ']' {
			return false
		}
	}
	return false
}

func readPassword() (string, error) {
	fmt.Fprint(os.Stderr, "Password: ")
	b, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	return string(b), err
}

func buildCallbacks(sink *dirSink) *zmodem.Callbacks {
	return &zmodem.Callbacks{
		OnFilePrompt: func(filename string, size int64, mode os.FileMode) (bool, error) {
			if *overwrite {
				return true, nil
			}
			if *protect {
				if _, err := os.Stat(filename); err == nil {
					if *verbose && !*quiet {
						fmt.Fprintf(os.Stderr, "Skipping %s (protected)\n", filename)
					}
					return false, nil
				}
			}
			if *verbose && !*quiet {
				fmt.Fprintf(os.Stderr, "Receiving: %s (%d bytes)\n", filename, size)
			}
			return true, nil
		},
		OnProgress: func(filename string, transferred, total int64, rate float64) {
			if *quiet || !*verbose {
				return
			}
			percent := float64(0)
			if total > 0 {
				percent = float64(transferred) / float64(total) * 100
			}
			fmt.Fprintf(os.Stderr, "\r%s: %.1f%% (%.0f bytes/s)", filename, percent, rate)
		},
		OnFileStart: func(filename string, size int64, mode os.FileMode) {
			if *verbose && !*quiet {
				fmt.Fprintf(os.Stderr, "Starting: %s\n", filename)
			}
			if err := sink.open(filename, mode); err != nil {
				fmt.Fprintf(os.Stderr, "Error creating %s: %v\n", filename, err)
			}
		},
		OnFileComplete: func(filename string, bytesTransferred int64, duration time.Duration) {
			sink.close()
			if *quiet {
				return
			}
			if *verbose {
				fmt.Fprintf(os.Stderr, "\nCompleted: %s (%d bytes in %v)\n", filename, bytesTransferred, duration)
			} else {
				fmt.Fprintf(os.Stderr, "%s\n", filename)
			}
		},
		OnError: func(err error, context string) bool {
			fmt.Fprintf(os.Stderr, "Error in %s: %v\n", context, err)
			return false
		},
	}
}

// dirSink is the receiver-wide FileSink: it opens the destination file
// when OnFileStart fires and writes subsequent data subpackets to it,
// translating newlines when -a is given, or when the file was offered with
// ZCNL conversion and -b is not given. Translation turns CR and CRLF into
// LF within one subpacket; an LFCR pair, or a CRLF pair split across two
// subpackets, becomes two newlines.
type dirSink struct {
	f *os.File
}

func (d *dirSink) open(filename string, mode os.FileMode) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	if err := file.Chmod(mode); err != nil {
		file.Close()
		return err
	}
	d.f = file
	return nil
}

func (d *dirSink) close() {
	if d.f != nil {
		d.f.Close()
		d.f = nil
	}
}

func (d *dirSink) OnReceive(p []byte, zcnl bool) error {
	if d.f == nil {
		return nil
	}
	if *ascii || (zcnl && !*binary) {
		p = translateNewlines(p)
	}
	_, err := d.f.Write(p)
	return err
}

func translateNewlines(p []byte) []byte {
	out := make([]byte, 0, len(p))
	for i := 0; i < len(p); i++ {
		switch p[i] {
		case '\r':
			if i+1 < len(p) && p[i+1] == '\n' {
				i++
			}
			out = append(out, '\n')
		default:
			out = append(out, p[i])
		}
	}
	return out
}

func signalContext(sigChan chan os.Signal) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-sigChan
		cancel()
	}()
	return ctx, cancel
}

func showUsage(exitcode int) {
	fmt.Fprintf(os.Stderr, `%s - receive files with ZMODEM protocol

Usage: %s [options]

Options:
  -a               ASCII transfer (change CR and CR/LF to LF)
  -b               binary transfer (ignore a sender's newline conversion request)
  -e               escape control characters
  -h               show this help message
  -p               protect existing files
  -q               quiet mode, minimal output
  -t N             timeout in tenths of seconds (default: 100)
  -v               verbose mode
  -y               overwrite existing files
  -serial PORT     receive over a serial port instead of stdio
  -ssh USER@HOST   receive from a remote sz over SSH instead of stdio
  -log PATH        log protocol traffic to PATH
  --version        show version

Examples:
  %s                      # Receive files from stdio
  %s -serial /dev/ttyUSB0 # Receive over a serial link
  %s -ssh pi@host         # Receive from a remote sz over SSH

`, versionString, os.Args[0], os.Args[0], os.Args[0], os.Args[0])
	os.Exit(exitcode)
}
