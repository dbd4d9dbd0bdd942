package uart

import (
	"bytes"
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("WriterTransmitter", func() {
	It("should write every byte", func() {
		buf := &bytes.Buffer{}
		c := MakeBuilder().WithTransmitter(WriterTransmitter{W: buf}).Build("UART")

		for _, b := range []byte("hi\n") {
			c.Write(RegTxData, uint64(b), 4)
		}

		Expect(buf.String()).To(Equal("hi\n"))
		Expect(c.Status()).To(Equal(StatusTx))
	})
})

var _ = Describe("QueuedTransmitter", func() {
	It("should accept bytes while there is room", func() {
		t := NewQueuedTransmitter(2, time.Millisecond)

		Expect(t.Transmit(1)).To(Succeed())
		Expect(t.Transmit(2)).To(Succeed())
		Expect(<-t.Bytes()).To(Equal(byte(1)))
	})

	It("should time out on a full queue", func() {
		t := NewQueuedTransmitter(1, time.Millisecond)
		Expect(t.Transmit(1)).To(Succeed())

		err := t.Transmit(2)

		Expect(errors.Is(err, ErrTxTimeout)).To(BeTrue())
	})

	It("should panic on an empty queue", func() {
		Expect(func() { NewQueuedTransmitter(0, time.Second) }).To(Panic())
	})

	It("should drain into a writer until cancelled", func() {
		t := NewQueuedTransmitter(4, time.Second)
		buf := &bytes.Buffer{}
		Expect(t.Transmit('o')).To(Succeed())
		Expect(t.Transmit('k')).To(Succeed())

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error)
		go func() { done <- t.Run(ctx, buf) }()

		Eventually(func() int { return len(t.Bytes()) }).Should(BeZero())
		cancel()

		Eventually(done).Should(Receive(MatchError(context.Canceled)))
		Expect(buf.String()).To(Equal("ok"))
	})
})
