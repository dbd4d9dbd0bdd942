// Package mem provides the byte storage behind the memory regions of the
// device.
package mem

import (
	"errors"
	"fmt"
)

// Units of capacity.
const (
	KB uint64 = 1 << 10
	MB uint64 = 1 << 20
)

// ErrOutOfRange is returned when an access leaves the storage capacity.
var ErrOutOfRange = errors.New("accessing address beyond the storage capacity")

// A Storage keeps the data of one memory region.
//
// The storage manages the data in units, similar to pages in memory
// management. A unit that has never been written is not allocated and reads
// as the fill byte. Flash regions use 0xFF as the fill byte, which is the
// erased state of flash cells.
type Storage struct {
	unitSize uint64
	capacity uint64
	fill     byte
	data     map[uint64][]byte
}

// NewStorage creates a zero-filled storage object with the specified
// capacity.
func NewStorage(capacity uint64) *Storage {
	return NewStorageWithFill(capacity, 4*KB, 0)
}

// NewStorageWithFill creates a storage object whose untouched bytes read as
// fill.
func NewStorageWithFill(capacity, unitSize uint64, fill byte) *Storage {
	if unitSize == 0 {
		panic("unit size cannot be 0")
	}

	return &Storage{
		unitSize: unitSize,
		capacity: capacity,
		fill:     fill,
		data:     make(map[uint64][]byte),
	}
}

// Capacity returns the number of bytes the storage holds.
func (s *Storage) Capacity() uint64 {
	return s.capacity
}

// FillByte returns the value of bytes that were never written.
func (s *Storage) FillByte() byte {
	return s.fill
}

func (s *Storage) mustBeInRange(address, length uint64) error {
	if address > s.capacity || length > s.capacity-address {
		return fmt.Errorf("%w: 0x%x+0x%x (capacity 0x%x)",
			ErrOutOfRange, address, length, s.capacity)
	}

	return nil
}

func (s *Storage) parseAddress(addr uint64) (baseAddr, inUnitAddr uint64) {
	inUnitAddr = addr % s.unitSize
	baseAddr = addr - inUnitAddr
	return
}

// createOrGetUnit retrieves a storage unit if the unit has been created
// before. Otherwise it initializes the unit with the fill byte.
func (s *Storage) createOrGetUnit(baseAddr uint64) []byte {
	unit, ok := s.data[baseAddr]
	if !ok {
		unit = make([]byte, s.unitSize)
		if s.fill != 0 {
			for i := range unit {
				unit[i] = s.fill
			}
		}
		s.data[baseAddr] = unit
	}

	return unit
}

// walk visits the storage chunk by chunk, never crossing a unit boundary.
func (s *Storage) walk(
	address, length uint64,
	visit func(baseAddr, inUnitAddr, dataOffset, n uint64),
) {
	currAddr := address
	dataOffset := uint64(0)

	for dataOffset < length {
		baseAddr, inUnitAddr := s.parseAddress(currAddr)
		n := s.unitSize - inUnitAddr
		if left := length - dataOffset; left < n {
			n = left
		}

		visit(baseAddr, inUnitAddr, dataOffset, n)

		dataOffset += n
		currAddr += n
	}
}

// Read returns a copy of length bytes starting at address.
func (s *Storage) Read(address, length uint64) ([]byte, error) {
	if err := s.mustBeInRange(address, length); err != nil {
		return nil, err
	}

	res := make([]byte, length)
	s.walk(address, length, func(baseAddr, inUnitAddr, off, n uint64) {
		unit, ok := s.data[baseAddr]
		if !ok {
			for i := off; i < off+n; i++ {
				res[i] = s.fill
			}
			return
		}

		copy(res[off:off+n], unit[inUnitAddr:inUnitAddr+n])
	})

	return res, nil
}

// Write stores data starting at address. Nothing is written if any byte
// falls out of range.
func (s *Storage) Write(address uint64, data []byte) error {
	length := uint64(len(data))
	if err := s.mustBeInRange(address, length); err != nil {
		return err
	}

	s.walk(address, length, func(baseAddr, inUnitAddr, off, n uint64) {
		unit := s.createOrGetUnit(baseAddr)
		copy(unit[inUnitAddr:inUnitAddr+n], data[off:off+n])
	})

	return nil
}

// Fill sets length bytes starting at address to b.
func (s *Storage) Fill(address, length uint64, b byte) error {
	if err := s.mustBeInRange(address, length); err != nil {
		return err
	}

	s.walk(address, length, func(baseAddr, inUnitAddr, _, n uint64) {
		unit := s.createOrGetUnit(baseAddr)
		for i := inUnitAddr; i < inUnitAddr+n; i++ {
			unit[i] = b
		}
	})

	return nil
}

// Bytes returns a copy of the whole storage.
func (s *Storage) Bytes() []byte {
	data, err := s.Read(0, s.capacity)
	if err != nil {
		panic(err)
	}

	return data
}

// Load replaces the whole content of the storage. Data shorter than the
// capacity leaves the tail as the fill byte.
func (s *Storage) Load(data []byte) error {
	if uint64(len(data)) > s.capacity {
		return fmt.Errorf("%w: image of 0x%x bytes (capacity 0x%x)",
			ErrOutOfRange, len(data), s.capacity)
	}

	s.data = make(map[uint64][]byte)

	return s.Write(0, data)
}
