// Package soc puts the devices of the CIU secure element on one bus.
package soc

import (
	"fmt"
	"sync"

	"github.com/sarchlab/ciuse/bus"
	"github.com/sarchlab/ciuse/hooking"
	"github.com/sarchlab/ciuse/mem"
	"github.com/sarchlab/ciuse/nvm"
	"github.com/sarchlab/ciuse/snapshot"
	"github.com/sarchlab/ciuse/uart"
)

// A ByteSource supplies bytes for the UART without blocking.
type ByteSource interface {
	TryRecv() (byte, bool)
}

// Machine is the CIU as seen from the CPU.
//
// The devices are not safe for concurrent use. Host code that touches the
// machine from more than one goroutine holds the machine lock.
type Machine struct {
	sync.Mutex

	name   string
	spec   Spec
	bus    *bus.Bus
	nvm    *nvm.Comp
	uart   *uart.Comp
	sysreg *Sysreg
	gpio   *GPIO
	unimps []*Unimp

	sram        *bus.RAM
	factoryCode *bus.RAM
}

// Name returns the name of the machine.
func (m *Machine) Name() string {
	return m.name
}

// Spec returns the configuration the machine was built with.
func (m *Machine) Spec() Spec {
	return m.spec
}

// Bus returns the system bus.
func (m *Machine) Bus() *bus.Bus {
	return m.bus
}

// NVM returns the NVM controller.
func (m *Machine) NVM() *nvm.Comp {
	return m.nvm
}

// UART returns the UART.
func (m *Machine) UART() *uart.Comp {
	return m.uart
}

// Sysreg returns the system register block.
func (m *Machine) Sysreg() *Sysreg {
	return m.sysreg
}

// SRAM returns the SRAM.
func (m *Machine) SRAM() *bus.RAM {
	return m.sram
}

// Read reads from the system bus.
func (m *Machine) Read(addr uint64, size int) uint64 {
	return m.bus.Read(addr, size)
}

// Write writes to the system bus.
func (m *Machine) Write(addr uint64, value uint64, size int) {
	m.bus.Write(addr, value, size)
}

// Reset resets the devices. Memories keep their content.
func (m *Machine) Reset() {
	m.bus.Reset()
}

// Receive hands a byte to the UART. It fails with uart.ErrRxBusy if the
// previous byte has not been read.
func (m *Machine) Receive(b byte) error {
	return m.uart.Receive(b)
}

// PumpRx moves one byte from src into the UART if the UART can take it. It
// reports whether a byte was delivered.
func (m *Machine) PumpRx(src ByteSource) bool {
	if !m.uart.CanReceive() {
		return false
	}

	b, ok := src.TryRecv()
	if !ok {
		return false
	}

	if err := m.uart.Receive(b); err != nil {
		panic(err)
	}

	return true
}

// Components returns the named parts of the machine.
func (m *Machine) Components() []hooking.Named {
	named := []hooking.Named{m.bus, m.nvm, m.uart, m.sysreg, m.gpio}
	for _, u := range m.unimps {
		named = append(named, u)
	}

	return named
}

// AcceptHook registers a hook with every device.
func (m *Machine) AcceptHook(h hooking.Hook) {
	for _, c := range m.Components() {
		c.(hooking.Hookable).AcceptHook(h)
	}
}

// RegisterSnapshots adds the stateful parts of the machine to a snapshot
// manager.
func (m *Machine) RegisterSnapshots(sm *snapshot.Manager) {
	sm.Register("nvm", m.nvm)
	sm.Register("uart", m.uart)
	sm.Register("sysreg", m.sysreg)
	sm.Register("sram", storageSnapshotter{m.sram.Storage})
	sm.Register("factory_code", storageSnapshotter{m.factoryCode.Storage})
}

type storageSnapshotter struct {
	storage *mem.Storage
}

func (s storageSnapshotter) SnapshotState() any {
	return s.storage.Bytes()
}

func (s storageSnapshotter) ValidateState(snapshot any) error {
	_, err := s.image(snapshot)
	return err
}

func (s storageSnapshotter) RestoreState(snapshot any) error {
	data, err := s.image(snapshot)
	if err != nil {
		return err
	}

	return s.storage.Load(data)
}

func (s storageSnapshotter) image(snapshot any) ([]byte, error) {
	data, ok := snapshot.([]byte)
	if !ok {
		return nil, fmt.Errorf("soc: cannot restore memory from %T", snapshot)
	}

	if uint64(len(data)) != s.storage.Capacity() {
		return nil, fmt.Errorf("soc: memory image of 0x%x bytes, expect 0x%x",
			len(data), s.storage.Capacity())
	}

	return data, nil
}
