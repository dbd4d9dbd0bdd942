// Package console connects the UART to the host terminal.
package console

import (
	"errors"
	"io"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// EscapeByte ends a console session. It is Ctrl-].
const EscapeByte byte = 0x1D

const pollInterval = 5 * time.Millisecond

// A Source reads host input in the background and hands it out one byte at
// a time. It holds at most one byte that has not been taken, so a slow
// guest pushes back on the reader.
type Source struct {
	read func([]byte) (int, error)

	ch      chan byte
	stopCh  chan struct{}
	done    chan struct{}
	stopped chan struct{}

	stopOnce sync.Once
	doneOnce sync.Once

	mu  sync.Mutex
	err error
}

// NewReaderSource starts reading r.
func NewReaderSource(r io.Reader) *Source {
	return newSource(r.Read)
}

func newSource(read func([]byte) (int, error)) *Source {
	s := &Source{
		read:    read,
		ch:      make(chan byte, 1),
		stopCh:  make(chan struct{}),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}

	go s.loop()

	return s
}

func (s *Source) loop() {
	defer close(s.stopped)

	buf := make([]byte, 1)

	for {
		select {
		case <-s.stopCh:
			return
		default:
		}

		n, err := s.read(buf)
		if n > 0 && !s.deliver(buf[0]) {
			return
		}

		switch {
		case errors.Is(err, unix.EAGAIN):
			time.Sleep(pollInterval)
		case err != nil:
			s.finish(err)
			return
		case n == 0:
			time.Sleep(pollInterval)
		}
	}
}

func (s *Source) deliver(b byte) bool {
	if b == EscapeByte {
		s.finish(nil)
		return false
	}

	select {
	case s.ch <- b:
		return true
	case <-s.stopCh:
		return false
	}
}

func (s *Source) finish(err error) {
	s.doneOnce.Do(func() {
		if err != nil && err != io.EOF {
			s.mu.Lock()
			s.err = err
			s.mu.Unlock()
		}

		close(s.done)
	})
}

// TryRecv returns the next byte if there is one.
func (s *Source) TryRecv() (byte, bool) {
	select {
	case b := <-s.ch:
		return b, true
	default:
		return 0, false
	}
}

// Done is closed when the user types the escape byte or the input ends.
func (s *Source) Done() <-chan struct{} {
	return s.done
}

// Err returns the read error that ended the input, if any.
func (s *Source) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.err
}

// Stop ends reading. A reader blocked in Read is abandoned.
func (s *Source) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}
