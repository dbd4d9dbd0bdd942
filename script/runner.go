package script

import (
	"errors"
	"fmt"
	"io"
)

// ErrMismatch is returned when a read does not return the expected value.
var ErrMismatch = errors.New("read mismatch")

// A Target is what a script drives.
type Target interface {
	Read(addr uint64, size int) uint64
	Write(addr uint64, value uint64, size int)
	Reset()
	Receive(b byte) error
}

// Runner executes commands one after another.
type Runner struct {
	Target Target

	// Out receives one line per read. Nil discards them.
	Out io.Writer
}

// Run executes cmds and stops at the first failure.
func (r *Runner) Run(cmds []Command) error {
	for _, cmd := range cmds {
		if err := r.exec(cmd); err != nil {
			return fmt.Errorf("script: line %d: %w", cmd.Line, err)
		}
	}

	return nil
}

func (r *Runner) exec(cmd Command) error {
	switch cmd.Op {
	case OpWrite:
		r.Target.Write(cmd.Addr, cmd.Value, cmd.Size)

	case OpRead:
		v := r.Target.Read(cmd.Addr, cmd.Size)
		r.printf("r%d 0x%08x = 0x%0*x\n", cmd.Size*8, cmd.Addr, cmd.Size*2, v)

		if cmd.HasExpect && v != cmd.Expect {
			return fmt.Errorf("%w: 0x%08x is 0x%x, expect 0x%x",
				ErrMismatch, cmd.Addr, v, cmd.Expect)
		}

	case OpRx:
		for i, b := range cmd.Data {
			if err := r.Target.Receive(b); err != nil {
				return fmt.Errorf("rx byte %d (0x%02x): %w", i, b, err)
			}
		}

	case OpReset:
		r.Target.Reset()

	default:
		return fmt.Errorf("unknown op %v", cmd.Op)
	}

	return nil
}

func (r *Runner) printf(format string, args ...any) {
	if r.Out == nil {
		return
	}

	fmt.Fprintf(r.Out, format, args...)
}
