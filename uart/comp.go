// Package uart models the serial console of the CIU secure element.
package uart

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/sarchlab/ciuse/hooking"
)

// ErrRxBusy is returned when a byte is delivered while the previous one has
// not been read.
var ErrRxBusy = errors.New("uart: receive register is full")

// HookPosUnimp marks accesses to unknown registers.
var HookPosUnimp = &hooking.HookPos{Name: "UARTUnimp", Mask: hooking.LogUnimp}

// HookPosGuestError marks transmits the outbound channel refused.
var HookPosGuestError = &hooking.HookPos{
	Name: "UARTGuestError",
	Mask: hooking.LogGuestError,
}

// HookPosTransmit marks a transmitted byte. The item is the byte.
var HookPosTransmit = &hooking.HookPos{Name: "UARTTransmit", Mask: hooking.LogTrace}

// State is the register state of the UART.
type State struct {
	RxByte uint32
	Status uint32
}

// Comp is the UART.
type Comp struct {
	hooking.HookableBase

	name  string
	state State
	tx    Transmitter
}

// Name returns the name of the UART.
func (c *Comp) Name() string {
	return c.name
}

// Status returns the status register.
func (c *Comp) Status() uint32 {
	return c.state.Status
}

// Read handles a read of the register window.
func (c *Comp) Read(offset uint64, size int) uint64 {
	switch offset {
	case RegStatus:
		return uint64(c.state.Status)
	case RegRxData:
		c.state.Status &^= StatusRxReady
		return uint64(c.state.RxByte)
	}

	c.Notify(c, HookPosUnimp, "read access to unknown register",
		slog.String("offset", fmt.Sprintf("0x%x", offset)),
		slog.Int("size", size))

	return 0
}

// Write handles a write to the register window.
func (c *Comp) Write(offset uint64, value uint64, size int) {
	switch offset {
	case RegTxData:
		c.transmit(byte(value))
	case RegStatus:
		if uint32(value)&StatusTx == 0 {
			c.state.Status &^= StatusTx
		}
	default:
		c.Notify(c, HookPosUnimp, "write access to unknown register",
			slog.String("offset", fmt.Sprintf("0x%x", offset)),
			slog.Int("size", size))
	}
}

func (c *Comp) transmit(b byte) {
	c.state.Status &^= StatusTx

	if err := c.tx.Transmit(b); err != nil {
		c.Notify(c, HookPosGuestError, "transmit failed",
			slog.Int("byte", int(b)),
			slog.String("err", err.Error()))
		return
	}

	c.state.Status |= StatusTx

	if c.NumHooks() > 0 {
		c.InvokeHook(hooking.HookCtx{
			Domain: c,
			Pos:    HookPosTransmit,
			Item:   b,
			Detail: hooking.Note{
				Msg:   "byte transmitted",
				Attrs: []slog.Attr{slog.Int("byte", int(b))},
			},
		})
	}
}

// CanReceive reports whether the previous byte has been read.
func (c *Comp) CanReceive() bool {
	return c.state.Status&StatusRxReady == 0
}

// Receive delivers a byte from the host side. It never overwrites a byte
// the guest has not read.
func (c *Comp) Receive(b byte) error {
	if !c.CanReceive() {
		return ErrRxBusy
	}

	c.state.RxByte = uint32(b)
	c.state.Status |= StatusRxReady

	return nil
}

// Reset clears both registers.
func (c *Comp) Reset() {
	c.state = State{}
}

// SnapshotState returns the register state.
func (c *Comp) SnapshotState() any {
	return c.state
}

// ValidateState checks that snapshot is a State.
func (c *Comp) ValidateState(snapshot any) error {
	_, err := stateOf(snapshot)
	return err
}

// RestoreState restores the register state.
func (c *Comp) RestoreState(snapshot any) error {
	s, err := stateOf(snapshot)
	if err != nil {
		return err
	}

	c.state = s

	return nil
}

func stateOf(snapshot any) (State, error) {
	switch s := snapshot.(type) {
	case State:
		return s, nil
	case *State:
		return *s, nil
	default:
		return State{}, fmt.Errorf("uart: cannot restore from %T", snapshot)
	}
}
