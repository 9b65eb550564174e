// Package regio is the register access boundary between the SMBus engine
// and the hardware: 8-bit port I/O, PCI configuration bytes and a single
// interrupt line. Backends exist for Linux (/dev/port, sysfs config space,
// UIO interrupts), for a remote register window over a serial link, and
// for the simulated controller in package sim.
package regio

import "errors"

// ErrNoInterrupt is returned by Interrupt implementations that cannot
// deliver interrupts; the engine then falls back to polling.
var ErrNoInterrupt = errors.New("regio: no interrupt line")

// Bus is 8-bit port I/O. Reads of unreachable ports return 0xFF, which is
// what a floating ISA bus reads as.
type Bus interface {
	In8(port uint16) uint8
	Out8(port uint16, v uint8)
}

// ConfigSpace is the PCI configuration space of one function
type ConfigSpace interface {
	ReadConfig8(offset uint8) uint8
	WriteConfig8(offset uint8, v uint8)
}

// Interrupt is a single interrupt line. The handler runs on a goroutine
// owned by the implementation, one invocation at a time, and must not
// block for long.
type Interrupt interface {
	Enable(handler func()) error
	Disable()
}

// ReadConfig16 reads a little-endian 16-bit config register
func ReadConfig16(cs ConfigSpace, offset uint8) uint16 {
	return uint16(cs.ReadConfig8(offset)) | uint16(cs.ReadConfig8(offset+1))<<8
}

// Regs is a window of I/O ports starting at Base
type Regs struct {
	Bus  Bus
	Base uint16
}

func (r Regs) Read(off uint16) uint8 {
	return r.Bus.In8(r.Base + off)
}

func (r Regs) Write(off uint16, v uint8) {
	r.Bus.Out8(r.Base+off, v)
}

// Set ORs bits into the register
func (r Regs) Set(off uint16, bits uint8) {
	r.Write(off, r.Read(off)|bits)
}

// Clear removes bits from the register
func (r Regs) Clear(off uint16, bits uint8) {
	r.Write(off, r.Read(off)&^bits)
}

// NoInterrupt is an Interrupt that never fires
type NoInterrupt struct{}

func (NoInterrupt) Enable(func()) error { return ErrNoInterrupt }
func (NoInterrupt) Disable()            {}
