package soc

import (
	"fmt"
	"log/slog"

	"github.com/sarchlab/ciuse/hooking"
)

// RegClock is the offset of the system clock register.
const RegClock uint64 = 0x208

// Clock sources selected by the sel bit.
const (
	ClockSourceHz   uint32 = 40_000_000
	ClockSource48Hz uint32 = 48_000_000
	maxClockShift   uint32 = 5
)

// HookPosSysregUnimp marks accesses to unmodeled system registers.
var HookPosSysregUnimp = &hooking.HookPos{
	Name: "SysregUnimp",
	Mask: hooking.LogUnimp,
}

// HookPosClock marks a change of the system clock. The item is the new
// frequency in Hz.
var HookPosClock = &hooking.HookPos{Name: "SysregClock", Mask: hooking.LogTrace}

// SysregState is the state of the system register block.
type SysregState struct {
	Sel uint32
	Div uint32
}

// Sysreg is the system register block. Only the clock register is modeled.
type Sysreg struct {
	hooking.HookableBase

	name  string
	state SysregState
}

// NewSysreg creates a system register block out of reset.
func NewSysreg(name string) *Sysreg {
	s := &Sysreg{name: name}
	s.Reset()

	return s
}

// Name returns the name of the block.
func (s *Sysreg) Name() string {
	return s.name
}

// Reset selects the 40 MHz source and divider 3.
func (s *Sysreg) Reset() {
	s.state = SysregState{Sel: 0, Div: 3}
}

// Frequency returns the system clock frequency in Hz. The hardware scales
// the source by the select bit, not by the divider field.
func (s *Sysreg) Frequency() uint32 {
	hz := ClockSourceHz
	if s.state.Sel != 0 {
		hz = ClockSource48Hz
	}

	return hz >> min(s.state.Sel, maxClockShift)
}

// Read handles a read of the register block. The 48 MHz ready bit always
// reads as set.
func (s *Sysreg) Read(offset uint64, size int) uint64 {
	if offset == RegClock {
		return uint64(s.state.Div<<4 | s.state.Sel<<3 | 1<<2)
	}

	s.Notify(s, HookPosSysregUnimp, "read access to unknown register",
		slog.String("offset", fmt.Sprintf("0x%x", offset)),
		slog.Int("size", size))

	return 0
}

// Write handles a write to the register block.
func (s *Sysreg) Write(offset uint64, value uint64, size int) {
	if offset != RegClock {
		s.Notify(s, HookPosSysregUnimp, "write access to unknown register",
			slog.String("offset", fmt.Sprintf("0x%x", offset)),
			slog.String("value", fmt.Sprintf("0x%x", value)),
			slog.Int("size", size))
		return
	}

	s.state.Div = uint32(value>>4) & 0xF
	s.state.Sel = uint32(value>>3) & 1

	hz := s.Frequency()
	if s.NumHooks() > 0 {
		s.InvokeHook(hooking.HookCtx{
			Domain: s,
			Pos:    HookPosClock,
			Item:   hz,
			Detail: hooking.Note{
				Msg:   "set SYSCLK",
				Attrs: []slog.Attr{slog.Uint64("hz", uint64(hz))},
			},
		})
	}
}

// SnapshotState returns the clock selection.
func (s *Sysreg) SnapshotState() any {
	return s.state
}

// ValidateState checks that snapshot is a SysregState.
func (s *Sysreg) ValidateState(snapshot any) error {
	if _, ok := snapshot.(SysregState); !ok {
		return fmt.Errorf("sysreg: cannot restore from %T", snapshot)
	}

	return nil
}

// RestoreState restores the clock selection.
func (s *Sysreg) RestoreState(snapshot any) error {
	if err := s.ValidateState(snapshot); err != nil {
		return err
	}

	s.state = snapshot.(SysregState)

	return nil
}
