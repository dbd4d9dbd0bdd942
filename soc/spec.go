package soc

import (
	"fmt"

	"github.com/sarchlab/ciuse/mem"
	"github.com/sarchlab/ciuse/nvm"
)

// The memory map of the CIU.
const (
	UserCodeBase    uint64 = 0x0000_0000
	UserParamBase   uint64 = 0x0008_0000
	FactoryCodeBase uint64 = 0x1FFF_FE00
	FactoryCodeSize uint64 = 0x40
	SRAMBase        uint64 = 0x2000_0000
	WDTBase         uint64 = 0x4000_0000
	TIMBase         uint64 = 0x4000_0800
	SPIBase         uint64 = 0x4000_1800
	GPIOBase        uint64 = 0x4000_3000
	GPIOSize        uint64 = 0x1000
	UARTBase        uint64 = 0x4000_5000
	USBBase         uint64 = 0x5000_2000
	CRCBase         uint64 = 0x5000_5000
	SysregBase      uint64 = 0x5000_7000
	SysregSize      uint64 = 0x1000
	NVMRegsBase            = SysregBase + 0x80
	UnimpDeviceSize uint64 = 0x100
)

// Spec holds the sizes of the configurable memories.
type Spec struct {
	UserCodeSize  uint64
	UserParamSize uint64
	SRAMSize      uint64
}

// Defaults returns the configuration of the CIU part.
func Defaults() Spec {
	n := nvm.Defaults()

	return Spec{
		UserCodeSize:  n.UserCodeSize,
		UserParamSize: n.UserParamSize,
		SRAMSize:      16 * mem.KB,
	}
}

// NVM returns the configuration of the NVM controller.
func (s Spec) NVM() nvm.Spec {
	return nvm.Spec{
		UserCodeSize:  s.UserCodeSize,
		UserParamSize: s.UserParamSize,
	}
}

// Validate checks that the memories fit in the memory map.
func (s Spec) Validate() error {
	if err := s.NVM().Validate(); err != nil {
		return err
	}

	if s.UserCodeSize > UserParamBase-UserCodeBase {
		return fmt.Errorf("soc: user code size 0x%x overlaps user param",
			s.UserCodeSize)
	}

	if s.UserParamSize > FactoryCodeBase-UserParamBase {
		return fmt.Errorf("soc: user param size 0x%x overlaps factory code",
			s.UserParamSize)
	}

	if s.SRAMSize == 0 || s.SRAMSize > WDTBase-SRAMBase {
		return fmt.Errorf("soc: invalid SRAM size 0x%x", s.SRAMSize)
	}

	return nil
}
