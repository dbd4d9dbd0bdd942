package nvm

import "encoding/binary"

// PageBuffer collects the data of a page before it is programmed.
type PageBuffer [PageSize]byte

// store writes value big-endian at the in-page offset of addr. The address
// must be 4-byte aligned.
func (b *PageBuffer) store(addr uint64, value uint32) {
	offset := addr & pageMask
	binary.BigEndian.PutUint32(b[offset:offset+StagingAccessSize], value)
}

func (b *PageBuffer) erase() {
	for i := range b {
		b[i] = 0xFF
	}
}

// StagingPointer records the region and address of the latest accepted
// store. Both regions share a single pointer: an operation targets
// whichever region was written last.
type StagingPointer struct {
	Region RegionID
	Addr   uint32
}

// Page returns the address of the page the pointer is in.
func (p StagingPointer) Page() uint64 {
	return uint64(p.Addr) &^ pageMask
}
