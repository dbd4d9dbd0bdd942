package console

import (
	"fmt"
	"io"
	"os"

	"golang.org/x/sys/unix"
	"golang.org/x/term"
)

// Terminal puts a terminal into raw mode and reads it without blocking.
type Terminal struct {
	*Source

	fd       int
	oldState *term.State
	nonblock bool
}

// OpenTerminal switches f to raw, non-blocking mode and starts reading it.
// Restore undoes both.
func OpenTerminal(f *os.File) (*Terminal, error) {
	t := &Terminal{fd: int(f.Fd())}

	if !term.IsTerminal(t.fd) {
		return nil, fmt.Errorf("console: %s is not a terminal", f.Name())
	}

	oldState, err := term.MakeRaw(t.fd)
	if err != nil {
		return nil, fmt.Errorf("console: setting raw mode: %w", err)
	}
	t.oldState = oldState

	if err := unix.SetNonblock(t.fd, true); err != nil {
		_ = term.Restore(t.fd, t.oldState)
		return nil, fmt.Errorf("console: setting non-blocking input: %w", err)
	}
	t.nonblock = true

	t.Source = newSource(func(buf []byte) (int, error) {
		return unix.Read(t.fd, buf)
	})

	return t, nil
}

// Restore stops reading and gives the terminal back in its original mode.
func (t *Terminal) Restore() {
	t.Stop()
	<-t.stopped

	if t.nonblock {
		_ = unix.SetNonblock(t.fd, false)
		t.nonblock = false
	}

	if t.oldState != nil {
		_ = term.Restore(t.fd, t.oldState)
		t.oldState = nil
	}
}

// RawWriter turns LF into CR LF, which a terminal in raw mode needs to start
// a new line.
type RawWriter struct {
	W io.Writer
}

func (w RawWriter) Write(p []byte) (int, error) {
	written := 0

	for len(p) > 0 {
		i := 0
		for i < len(p) && p[i] != '\n' {
			i++
		}

		n, err := w.W.Write(p[:i])
		written += n
		if err != nil {
			return written, err
		}

		if i == len(p) {
			break
		}

		if _, err := w.W.Write([]byte("\r\n")); err != nil {
			return written, err
		}
		written++
		p = p[i+1:]
	}

	return written, nil
}
