package console

import (
	"bytes"
	"errors"
	"io"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"golang.org/x/sys/unix"
)

func drain(s *Source) []byte {
	var got []byte
	Eventually(func() bool {
		if b, ok := s.TryRecv(); ok {
			got = append(got, b)
		}
		select {
		case <-s.Done():
			b, ok := s.TryRecv()
			if ok {
				got = append(got, b)
			}
			return !ok
		default:
			return false
		}
	}).Should(BeTrue())

	return got
}

type scriptedReader struct {
	steps []func([]byte) (int, error)
}

func (r *scriptedReader) Read(p []byte) (int, error) {
	if len(r.steps) == 0 {
		return 0, io.EOF
	}

	step := r.steps[0]
	r.steps = r.steps[1:]

	return step(p)
}

func emit(b byte) func([]byte) (int, error) {
	return func(p []byte) (int, error) {
		p[0] = b
		return 1, nil
	}
}

var _ = Describe("Source", func() {
	It("should hand out bytes in order and end at EOF", func() {
		s := NewReaderSource(strings.NewReader("abc"))
		defer s.Stop()

		Expect(drain(s)).To(Equal([]byte("abc")))
		Expect(s.Err()).ToNot(HaveOccurred())
	})

	It("should hold one byte at a time", func() {
		s := NewReaderSource(strings.NewReader("xy"))
		defer s.Stop()

		Eventually(func() int { return len(s.ch) }).Should(Equal(1))
		Consistently(func() int { return len(s.ch) }).Should(Equal(1))

		b, ok := s.TryRecv()
		Expect(ok).To(BeTrue())
		Expect(b).To(Equal(byte('x')))
	})

	It("should end the session at the escape byte", func() {
		s := NewReaderSource(bytes.NewReader([]byte{'q', EscapeByte, 'z'}))
		defer s.Stop()

		Expect(drain(s)).To(Equal([]byte("q")))
	})

	It("should retry on EAGAIN", func() {
		r := &scriptedReader{steps: []func([]byte) (int, error){
			func([]byte) (int, error) { return 0, unix.EAGAIN },
			emit('k'),
			func([]byte) (int, error) { return 0, nil },
			emit('o'),
		}}
		s := NewReaderSource(r)
		defer s.Stop()

		Expect(drain(s)).To(Equal([]byte("ko")))
	})

	It("should keep the read error", func() {
		boom := errors.New("boom")
		r := &scriptedReader{steps: []func([]byte) (int, error){
			func([]byte) (int, error) { return 0, boom },
		}}
		s := NewReaderSource(r)
		defer s.Stop()

		Eventually(s.Done()).Should(BeClosed())
		Expect(s.Err()).To(MatchError(boom))
	})

	It("should stop a reader waiting on a full channel", func() {
		s := NewReaderSource(strings.NewReader("abc"))

		Eventually(func() int { return len(s.ch) }).Should(Equal(1))
		s.Stop()

		Eventually(s.stopped).Should(BeClosed())
	})
})

var _ = Describe("RawWriter", func() {
	It("should turn LF into CR LF", func() {
		buf := &bytes.Buffer{}
		w := RawWriter{W: buf}

		n, err := w.Write([]byte("a\nb\n\nc"))

		Expect(err).ToNot(HaveOccurred())
		Expect(n).To(Equal(6))
		Expect(buf.String()).To(Equal("a\r\nb\r\n\r\nc"))
	})
})
