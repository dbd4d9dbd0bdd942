// Package nvm models the NVM controller of the CIU secure element.
//
// Firmware unlocks the controller by writing three keys, stages data into a
// 512-byte page buffer through the data windows of the two regions, and then
// triggers an erase or program operation through the operation register.
// Every access completes before the call returns. Invalid programming never
// fails the caller; it is reported through hooks and leaves the controller
// unchanged.
package nvm

import (
	"fmt"
	"log/slog"

	"github.com/sarchlab/ciuse/hooking"
)

// HookPosGuestError marks invalid programming by the guest.
var HookPosGuestError = &hooking.HookPos{
	Name: "NVMGuestError",
	Mask: hooking.LogGuestError,
}

// HookPosUnimp marks accesses to registers or opcodes that are not modeled.
var HookPosUnimp = &hooking.HookPos{
	Name: "NVMUnimp",
	Mask: hooking.LogUnimp,
}

// HookPosOperation marks a completed operation. The hook item is an
// Operation.
var HookPosOperation = &hooking.HookPos{
	Name: "NVMOperation",
	Mask: hooking.LogTrace,
}

// State is the mutable state of the controller, apart from the storage.
type State struct {
	Keys    KeyState
	EInt    bool
	PageBuf PageBuffer
	Staging StagingPointer
}

// Comp is the NVM controller.
type Comp struct {
	hooking.HookableBase

	name    string
	state   State
	regions map[RegionID]*Region
	windows map[RegionID]*Window
}

// Name returns the name of the controller.
func (c *Comp) Name() string {
	return c.name
}

// Region returns the region with the given id, or nil if there is none.
func (c *Comp) Region(id RegionID) *Region {
	return c.regions[id]
}

// Window returns the data-staging window of a region.
func (c *Comp) Window(id RegionID) *Window {
	w, ok := c.windows[id]
	if !ok {
		panic(fmt.Sprintf("nvm: no window for region %d", id))
	}

	return w
}

// Unlocked reports whether all three keys are armed.
func (c *Comp) Unlocked() bool {
	return c.state.Keys.Unlocked()
}

// KeyMask returns the key bits.
func (c *Comp) KeyMask() KeyState {
	return c.state.Keys
}

// EInt returns the event flag.
func (c *Comp) EInt() bool {
	return c.state.EInt
}

// Staging returns the staging pointer.
func (c *Comp) Staging() StagingPointer {
	return c.state.Staging
}

// PageBuffer returns a copy of the page buffer. The guest cannot read the
// buffer; this is for host-side inspection.
func (c *Comp) PageBuffer() []byte {
	buf := make([]byte, PageSize)
	copy(buf, c.state.PageBuf[:])

	return buf
}

// Reset clears the keys and the event flag. Storage, page buffer and staging
// pointer survive a reset.
func (c *Comp) Reset() {
	c.state.Keys = 0
	c.state.EInt = false
}

// ReadReg handles a read of the register window. Any access width is
// accepted.
func (c *Comp) ReadReg(offset uint64, size int) uint64 {
	switch offset {
	case RegStatus:
		if c.state.EInt {
			return StatusEInt
		}
		return 0
	}

	c.Notify(c, HookPosUnimp, "read access to unknown register",
		slog.String("offset", hex(offset)),
		slog.Int("size", size))

	return 0
}

// WriteReg handles a write to the register window. Any access width is
// accepted.
func (c *Comp) WriteReg(offset uint64, value uint64, size int) {
	switch offset {
	case RegStatus:
		if value&StatusEInt == 0 {
			c.state.EInt = false
		}
	case RegOperation:
		c.trigger(value)
	case RegRegionKey:
		c.state.Keys.Write(KeyRegion, value)
	case RegParamKey:
		c.state.Keys.Write(KeyParam, value)
	case RegGlobalKey:
		c.state.Keys.Write(KeyGlobal, value)
	default:
		c.Notify(c, HookPosUnimp, "write access to unknown register",
			slog.String("offset", hex(offset)),
			slog.String("value", hex(value)),
			slog.Int("size", size))
	}
}

func (c *Comp) trigger(value uint64) {
	if value&OperationMagicMask != OperationMagic {
		c.Notify(c, HookPosGuestError, "operation trigger without magic",
			slog.String("value", hex(value)))
		return
	}

	c.Operate(uint8(value & opcodeMask))
}

// Stage stores a 32-bit value into the page buffer on behalf of the data
// window of a region, and moves the staging pointer there. It is the only
// path into the page buffer. It reports whether the store was accepted.
func (c *Comp) Stage(id RegionID, addr uint64, value uint32) bool {
	if !c.state.Keys.Unlocked() {
		c.Notify(c, HookPosGuestError, "NVM is locked",
			slog.String("region", id.String()),
			slog.String("addr", hex(addr)))
		return false
	}

	region := c.regions[id]
	if region == nil {
		c.Notify(c, HookPosGuestError, "store to unknown region",
			slog.Int("region", int(id)))
		return false
	}

	if addr%StagingAccessSize != 0 ||
		addr >= region.Size() ||
		region.Size()-addr < StagingAccessSize {
		c.Notify(c, HookPosGuestError, "store out of range",
			slog.String("region", id.String()),
			slog.String("addr", hex(addr)))
		return false
	}

	c.state.Staging = StagingPointer{Region: id, Addr: uint32(addr)}
	c.state.PageBuf.store(addr, value)

	return true
}

func hex(v uint64) string {
	return fmt.Sprintf("0x%x", v)
}
