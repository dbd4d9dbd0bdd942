package uart

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrTxTimeout is returned by a QueuedTransmitter that could not queue a
// byte in time.
var ErrTxTimeout = errors.New("uart: transmit timed out")

// A Transmitter sends bytes out of the UART. Transmit returns once the byte
// is accepted by the outbound channel.
type Transmitter interface {
	Transmit(b byte) error
}

// WriterTransmitter writes every byte synchronously to an io.Writer.
type WriterTransmitter struct {
	W io.Writer
}

// Transmit writes b.
func (t WriterTransmitter) Transmit(b byte) error {
	_, err := t.W.Write([]byte{b})
	return err
}

// QueuedTransmitter decouples the UART from a slow sink. A byte counts as
// accepted once it is in the queue. When the queue stays full longer than
// the timeout the byte is refused.
type QueuedTransmitter struct {
	queue   chan byte
	timeout time.Duration
}

// NewQueuedTransmitter creates a transmitter with a queue of depth bytes.
func NewQueuedTransmitter(depth int, timeout time.Duration) *QueuedTransmitter {
	if depth <= 0 {
		panic("queue depth must be positive")
	}

	return &QueuedTransmitter{
		queue:   make(chan byte, depth),
		timeout: timeout,
	}
}

// Transmit queues b.
func (t *QueuedTransmitter) Transmit(b byte) error {
	select {
	case t.queue <- b:
		return nil
	default:
	}

	timer := time.NewTimer(t.timeout)
	defer timer.Stop()

	select {
	case t.queue <- b:
		return nil
	case <-timer.C:
		return ErrTxTimeout
	}
}

// Bytes returns the queue for consumers that drain it themselves.
func (t *QueuedTransmitter) Bytes() <-chan byte {
	return t.queue
}

// Run copies queued bytes to w until ctx is done or w fails.
func (t *QueuedTransmitter) Run(ctx context.Context, w io.Writer) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case b := <-t.queue:
			if _, err := w.Write([]byte{b}); err != nil {
				return err
			}
		}
	}
}
