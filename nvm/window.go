package nvm

import (
	"log/slog"
)

// A Window is the data window of a region. Reads return the stored bytes,
// big-endian. Writes are 4-byte stores into the page buffer and never reach
// the storage directly.
type Window struct {
	comp   *Comp
	region RegionID
}

// Region returns the id of the region behind the window.
func (w *Window) Region() RegionID {
	return w.region
}

// Size returns the size of the window in bytes.
func (w *Window) Size() uint64 {
	return w.comp.regions[w.region].Size()
}

// Read returns size bytes of storage at offset as a big-endian value.
func (w *Window) Read(offset uint64, size int) uint64 {
	region := w.comp.regions[w.region]

	data, err := region.Storage.Read(offset, uint64(size))
	if err != nil {
		w.comp.Notify(w.comp, HookPosGuestError, "read out of range",
			slog.String("region", w.region.String()),
			slog.String("addr", hex(offset)),
			slog.Int("size", size))
		return 0
	}

	value := uint64(0)
	for _, b := range data {
		value = value<<8 | uint64(b)
	}

	return value
}

// Write stages a 4-byte store.
func (w *Window) Write(offset uint64, value uint64, size int) {
	if size != StagingAccessSize {
		w.comp.Notify(w.comp, HookPosGuestError, "invalid store width",
			slog.String("region", w.region.String()),
			slog.String("addr", hex(offset)),
			slog.Int("size", size))
		return
	}

	w.comp.Stage(w.region, offset, uint32(value))
}
