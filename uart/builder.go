package uart

import "io"

// Builder constructs a Comp.
type Builder struct {
	tx Transmitter
}

// MakeBuilder returns a Builder whose UART discards transmitted bytes.
func MakeBuilder() Builder {
	return Builder{tx: WriterTransmitter{W: io.Discard}}
}

// WithTransmitter sets the outbound channel.
func (b Builder) WithTransmitter(tx Transmitter) Builder {
	b.tx = tx
	return b
}

// Build creates the UART.
func (b Builder) Build(name string) *Comp {
	return &Comp{
		name: name,
		tx:   b.tx,
	}
}
