package bus

import (
	"fmt"

	"github.com/sarchlab/ciuse/mem"
)

// RAM serves a window from a storage.
type RAM struct {
	Storage *mem.Storage
}

// NewRAM creates a zero-filled RAM of the given size.
func NewRAM(size uint64) *RAM {
	return &RAM{Storage: mem.NewStorage(size)}
}

// Read returns the bytes at offset, big-endian. The bus only routes accesses
// that fit the window, so an access beyond the storage panics.
func (r *RAM) Read(offset uint64, size int) uint64 {
	data, err := r.Storage.Read(offset, uint64(size))
	if err != nil {
		panic(fmt.Errorf("bus: RAM read of %d bytes at 0x%x: %w",
			size, offset, err))
	}

	value := uint64(0)
	for _, b := range data {
		value = value<<8 | uint64(b)
	}

	return value
}

// Write stores value big-endian at offset. Like Read, it panics on an
// access beyond the storage.
func (r *RAM) Write(offset uint64, value uint64, size int) {
	data := make([]byte, size)
	for i := size - 1; i >= 0; i-- {
		data[i] = byte(value)
		value >>= 8
	}

	if err := r.Storage.Write(offset, data); err != nil {
		panic(fmt.Errorf("bus: RAM write of %d bytes at 0x%x: %w",
			size, offset, err))
	}
}
