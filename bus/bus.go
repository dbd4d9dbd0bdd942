// Package bus composes device register windows into one address space.
package bus

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/sarchlab/ciuse/hooking"
)

// A Handler serves the accesses that fall into a window. Offsets are
// relative to the window base. Values are big-endian.
type Handler interface {
	Read(offset uint64, size int) uint64
	Write(offset uint64, value uint64, size int)
}

// A Resetter is reset together with the bus.
type Resetter interface {
	Reset()
}

// HookPosGuestError marks accesses that no window accepts.
var HookPosGuestError = &hooking.HookPos{
	Name: "BusGuestError",
	Mask: hooking.LogGuestError,
}

// A Window maps a Handler at Base. When windows overlap, the one with the
// higher Priority serves the access.
type Window struct {
	Name      string
	Base      uint64
	Size      uint64
	Handler   Handler
	MinAccess int
	MaxAccess int
	Priority  int
}

// End returns the first address after the window.
func (w *Window) End() uint64 {
	return w.Base + w.Size
}

func (w *Window) contains(addr uint64, size int) bool {
	return addr >= w.Base && addr < w.End() && w.End()-addr >= uint64(size)
}

func (w *Window) overlaps(o *Window) bool {
	return w.Base < o.End() && o.Base < w.End()
}

// Bus routes accesses to windows.
type Bus struct {
	hooking.HookableBase

	name      string
	windows   []*Window
	resetters []Resetter
}

// New creates an empty bus.
func New(name string) *Bus {
	return &Bus{name: name}
}

// Name returns the name of the bus.
func (b *Bus) Name() string {
	return b.name
}

// Map adds a window. A zero MinAccess or MaxAccess allows 1 or 4 bytes. It
// panics if the window overlaps another one of the same priority.
func (b *Bus) Map(w Window) {
	if w.Size == 0 || w.Handler == nil {
		panic(fmt.Sprintf("bus: invalid window %q", w.Name))
	}

	if w.MinAccess == 0 {
		w.MinAccess = 1
	}

	if w.MaxAccess == 0 {
		w.MaxAccess = 4
	}

	for _, o := range b.windows {
		if o.Priority == w.Priority && o.overlaps(&w) {
			panic(fmt.Sprintf("bus: window %q overlaps %q", w.Name, o.Name))
		}
	}

	b.windows = append(b.windows, &w)
	sort.SliceStable(b.windows, func(i, j int) bool {
		if b.windows[i].Priority != b.windows[j].Priority {
			return b.windows[i].Priority > b.windows[j].Priority
		}
		return b.windows[i].Base < b.windows[j].Base
	})
}

// Windows returns the windows, highest priority first.
func (b *Bus) Windows() []*Window {
	return b.windows
}

// Lookup returns the window serving an access, or nil.
func (b *Bus) Lookup(addr uint64, size int) *Window {
	for _, w := range b.windows {
		if w.contains(addr, size) {
			return w
		}
	}

	return nil
}

// AddResetter registers a device to reset with the bus.
func (b *Bus) AddResetter(r Resetter) {
	b.resetters = append(b.resetters, r)
}

// Reset resets the devices in the order they were added.
func (b *Bus) Reset() {
	for _, r := range b.resetters {
		r.Reset()
	}
}

// Read reads size bytes at addr. Faulting reads return 0.
func (b *Bus) Read(addr uint64, size int) uint64 {
	w := b.route(addr, size, "read")
	if w == nil {
		return 0
	}

	return w.Handler.Read(addr-w.Base, size)
}

// Write writes size bytes at addr. Faulting writes are dropped.
func (b *Bus) Write(addr uint64, value uint64, size int) {
	w := b.route(addr, size, "write")
	if w == nil {
		return
	}

	w.Handler.Write(addr-w.Base, value, size)
}

func (b *Bus) route(addr uint64, size int, kind string) *Window {
	if size != 1 && size != 2 && size != 4 && size != 8 {
		b.fault("invalid access size", kind, addr, size, "")
		return nil
	}

	w := b.Lookup(addr, size)
	if w == nil {
		b.fault("unmapped access", kind, addr, size, "")
		return nil
	}

	if size < w.MinAccess || size > w.MaxAccess {
		b.fault("invalid access size", kind, addr, size, w.Name)
		return nil
	}

	return w
}

func (b *Bus) fault(msg, kind string, addr uint64, size int, window string) {
	attrs := []slog.Attr{
		slog.String("access", kind),
		slog.String("addr", fmt.Sprintf("0x%x", addr)),
		slog.Int("size", size),
	}
	if window != "" {
		attrs = append(attrs, slog.String("window", window))
	}

	b.Notify(b, HookPosGuestError, msg, attrs...)
}

// Funcs adapts a pair of functions to a Handler.
type Funcs struct {
	ReadFunc  func(offset uint64, size int) uint64
	WriteFunc func(offset uint64, value uint64, size int)
}

// Read calls ReadFunc.
func (f Funcs) Read(offset uint64, size int) uint64 {
	return f.ReadFunc(offset, size)
}

// Write calls WriteFunc.
func (f Funcs) Write(offset uint64, value uint64, size int) {
	f.WriteFunc(offset, value, size)
}
