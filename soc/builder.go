package soc

import (
	"github.com/sarchlab/ciuse/bus"
	"github.com/sarchlab/ciuse/nvm"
	"github.com/sarchlab/ciuse/uart"
)

// Builder constructs a Machine.
type Builder struct {
	spec Spec
	tx   uart.Transmitter
}

// MakeBuilder returns a Builder with the default Spec.
func MakeBuilder() Builder {
	return Builder{spec: Defaults()}
}

// WithSpec sets the configuration.
func (b Builder) WithSpec(spec Spec) Builder {
	b.spec = spec
	return b
}

// WithTransmitter sets where UART output goes.
func (b Builder) WithTransmitter(tx uart.Transmitter) Builder {
	b.tx = tx
	return b
}

// Build creates the machine and maps every device.
func (b Builder) Build(name string) *Machine {
	if err := b.spec.Validate(); err != nil {
		panic(err)
	}

	m := &Machine{
		name: name,
		spec: b.spec,
		bus:  bus.New(name + ".Bus"),
	}

	m.nvm = nvm.MakeBuilder().WithSpec(b.spec.NVM()).Build(name + ".NVM")

	ub := uart.MakeBuilder()
	if b.tx != nil {
		ub = ub.WithTransmitter(b.tx)
	}
	m.uart = ub.Build(name + ".UART")

	m.sysreg = NewSysreg(name + ".Sysreg")
	m.gpio = NewGPIO(name + ".GPIO")
	m.sram = bus.NewRAM(b.spec.SRAMSize)
	m.factoryCode = bus.NewRAM(FactoryCodeSize)

	b.mapMemories(m)
	b.mapDevices(m)

	m.bus.AddResetter(m.nvm)
	m.bus.AddResetter(m.uart)
	m.bus.AddResetter(m.sysreg)

	return m
}

func (b Builder) mapMemories(m *Machine) {
	m.bus.Map(bus.Window{
		Name:    "UserCode",
		Base:    UserCodeBase,
		Size:    b.spec.UserCodeSize,
		Handler: m.nvm.Window(nvm.RegionUserCode),
	})
	m.bus.Map(bus.Window{
		Name:    "UserParam",
		Base:    UserParamBase,
		Size:    b.spec.UserParamSize,
		Handler: m.nvm.Window(nvm.RegionUserParam),
	})
	m.bus.Map(bus.Window{
		Name:      "FactoryCode",
		Base:      FactoryCodeBase,
		Size:      FactoryCodeSize,
		Handler:   m.factoryCode,
		MaxAccess: 8,
	})
	m.bus.Map(bus.Window{
		Name:      "SRAM",
		Base:      SRAMBase,
		Size:      b.spec.SRAMSize,
		Handler:   m.sram,
		MaxAccess: 8,
	})
}

func (b Builder) mapDevices(m *Machine) {
	m.bus.Map(bus.Window{
		Name:      "UART",
		Base:      UARTBase,
		Size:      uart.RegsSize,
		Handler:   m.uart,
		MinAccess: uart.AccessSize,
		MaxAccess: uart.AccessSize,
	})
	m.bus.Map(bus.Window{
		Name:    "GPIO",
		Base:    GPIOBase,
		Size:    GPIOSize,
		Handler: m.gpio,
	})
	m.bus.Map(bus.Window{
		Name:     "Sysreg",
		Base:     SysregBase,
		Size:     SysregSize,
		Handler:  m.sysreg,
		Priority: -1,
	})
	m.bus.Map(bus.Window{
		Name: "NVMRegs",
		Base: NVMRegsBase,
		Size: nvm.RegsSize,
		Handler: bus.Funcs{
			ReadFunc:  m.nvm.ReadReg,
			WriteFunc: m.nvm.WriteReg,
		},
	})

	unimps := []struct {
		name string
		base uint64
	}{
		{"WDT", WDTBase},
		{"TIM", TIMBase},
		{"SPI", SPIBase},
		{"USB", USBBase},
		{"CRC", CRCBase},
	}
	for _, u := range unimps {
		dev := NewUnimp(m.name + "." + u.name)
		m.unimps = append(m.unimps, dev)
		m.bus.Map(bus.Window{
			Name:    u.name,
			Base:    u.base,
			Size:    UnimpDeviceSize,
			Handler: dev,
		})
	}
}
