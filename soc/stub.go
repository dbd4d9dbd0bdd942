package soc

import (
	"fmt"
	"log/slog"

	"github.com/sarchlab/ciuse/hooking"
)

// HookPosStubAccess marks an access to a device that is only stubbed.
var HookPosStubAccess = &hooking.HookPos{
	Name: "StubAccess",
	Mask: hooking.LogUnimp,
}

// gpioLogLimit is the number of reads, and of writes, the GPIO stub reports
// before it goes quiet. Firmware polls the GPIO block in tight loops.
const gpioLogLimit = 99

// GPIO is a stub of the GPIO block. All pins read high.
type GPIO struct {
	hooking.HookableBase

	name   string
	reads  int
	writes int
}

// NewGPIO creates a GPIO stub.
func NewGPIO(name string) *GPIO {
	return &GPIO{name: name}
}

// Name returns the name of the stub.
func (g *GPIO) Name() string {
	return g.name
}

// Read returns all ones.
func (g *GPIO) Read(offset uint64, size int) uint64 {
	g.reads++
	if g.reads <= gpioLogLimit {
		g.Notify(g, HookPosStubAccess, "read",
			slog.String("offset", fmt.Sprintf("0x%x", offset)),
			slog.Int("size", size))
	}

	return allOnes(size)
}

// allOnes returns a value with the low size bytes set.
func allOnes(size int) uint64 {
	if size >= 8 {
		return ^uint64(0)
	}

	return 1<<(8*uint(size)) - 1
}

// Write drops the value.
func (g *GPIO) Write(offset uint64, value uint64, size int) {
	g.writes++
	if g.writes <= gpioLogLimit {
		g.Notify(g, HookPosStubAccess, "write",
			slog.String("offset", fmt.Sprintf("0x%x", offset)),
			slog.String("value", fmt.Sprintf("0x%x", value)),
			slog.Int("size", size))
	}
}

// Unimp is a device that is present in the memory map but not modeled. It
// reads as zero, drops writes and reports every access.
type Unimp struct {
	hooking.HookableBase

	name string
}

// NewUnimp creates an unimplemented device.
func NewUnimp(name string) *Unimp {
	return &Unimp{name: name}
}

// Name returns the name of the device.
func (u *Unimp) Name() string {
	return u.name
}

// Read returns 0.
func (u *Unimp) Read(offset uint64, size int) uint64 {
	u.Notify(u, HookPosStubAccess, "unimplemented device read",
		slog.String("offset", fmt.Sprintf("0x%x", offset)),
		slog.Int("size", size))

	return 0
}

// Write drops the value.
func (u *Unimp) Write(offset uint64, value uint64, size int) {
	u.Notify(u, HookPosStubAccess, "unimplemented device write",
		slog.String("offset", fmt.Sprintf("0x%x", offset)),
		slog.String("value", fmt.Sprintf("0x%x", value)),
		slog.Int("size", size))
}
