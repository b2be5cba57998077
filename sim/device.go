// Package sim provides a software model of an STM32F1-style I2C peripheral, a bus
// master to drive it, and simulated key-matrix and SPI hardware. It lets the slave
// engine and the firmware run on a host without real hardware.
package sim

import (
	"sync"
	"sync/atomic"

	"github.com/topisani/ottofw/slave"
)

// rc_w0 bits of SR1: cleared by writing 0, untouched by writing 1
const sr1ErrorBits = uint32(slave.FaultMask)

var _ slave.Registers = &Device{}
var _ slave.InterruptController = &Device{}

// Device is a simulated I2C peripheral and its interrupt controller. Masking the
// interrupt lines holds mu; interrupts are delivered with mu held, so register
// accesses are always serialized.
type Device struct {
	mu sync.Mutex

	clock bool
	sr1   uint32
	sr2   uint32
	cr1   uint32
	cr2   uint32
	oar1  uint32
	oar2  uint32
	rx    byte // byte presented to DR by the bus
	tx    byte // last byte written to DR
	txSet bool

	// armed by an SR1 read; consumed by the SR2 read or CR1 write that follows
	sr1Read bool

	event, fault func()
	inISR        atomic.Bool
}

func NewDevice() *Device {
	return &Device{}
}

// Registers. Callers hold mu, either as a driver critical section or because the
// call comes from an interrupt handler.

func (d *Device) EnableClock()  { d.clock = true }
func (d *Device) DisableClock() { d.clock = false }

func (d *Device) ReadSR1() uint32 {
	d.sr1Read = true
	return d.sr1
}

func (d *Device) WriteSR1(v uint32) {
	d.sr1 &^= sr1ErrorBits &^ v
}

func (d *Device) ReadSR2() uint32 {
	if d.sr1Read && d.sr1&uint32(slave.FlagAddressMatch) != 0 {
		d.sr1 &^= uint32(slave.FlagAddressMatch)
	}
	d.sr1Read = false
	return d.sr2
}

func (d *Device) ReadCR1() uint32 {
	return d.cr1
}

func (d *Device) WriteCR1(v uint32) {
	if d.sr1Read && d.sr1&uint32(slave.FlagStop) != 0 {
		d.sr1 &^= uint32(slave.FlagStop)
	}
	d.sr1Read = false
	if v&slave.CR1Enable == 0 {
		v &^= slave.CR1Ack
	}
	d.cr1 = v
}

func (d *Device) ReadCR2() uint32   { return d.cr2 }
func (d *Device) WriteCR2(v uint32) { d.cr2 = v }

func (d *Device) WriteOAR1(v uint32) { d.oar1 = v }
func (d *Device) WriteOAR2(v uint32) { d.oar2 = v }

func (d *Device) ReadDR() uint32 {
	d.sr1 &^= uint32(slave.FlagRxNotEmpty)
	return uint32(d.rx)
}

func (d *Device) WriteDR(v uint32) {
	d.sr1 &^= uint32(slave.FlagTxEmpty)
	d.tx = byte(v)
	d.txSet = true
}

// Interrupt controller

func (d *Device) Attach(event, fault func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.event = event
	d.fault = fault
}

func (d *Device) Detach() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.event = nil
	d.fault = nil
}

func (d *Device) Disable() { d.mu.Lock() }
func (d *Device) Enable()  { d.mu.Unlock() }

func (d *Device) InInterrupt() bool {
	return d.inISR.Load()
}

// line selects an interrupt line
type line int

const (
	lineEvent line = iota
	lineError
)

// raise applies mutate to the registers and delivers the interrupt, all with the
// lines masked. The interrupt is suppressed when the peripheral has it disabled.
func (d *Device) raise(l line, mutate func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if mutate != nil {
		mutate()
	}
	d.deliver(l)
}

func (d *Device) deliver(l line) {
	var handler func()
	switch l {
	case lineEvent:
		if d.cr2&slave.CR2EventIRQ != 0 {
			handler = d.event
		}
	case lineError:
		if d.cr2&slave.CR2ErrorIRQ != 0 {
			handler = d.fault
		}
	}
	if handler == nil || !d.clock {
		return
	}
	d.inISR.Store(true)
	defer d.inISR.Store(false)
	handler()
}

// RaiseEvent sets flags in SR1 and fires the event line.
func (d *Device) RaiseEvent(flags slave.Flags) {
	d.raise(lineEvent, func() {
		d.sr1 |= uint32(flags)
	})
}

// RaiseFault sets flags in SR1 and fires the error line.
func (d *Device) RaiseFault(flags slave.Flags) {
	d.raise(lineError, func() {
		d.sr1 |= uint32(flags)
	})
}

// InInterruptContext runs fn as if it were an interrupt handler.
func (d *Device) InInterruptContext(fn func()) {
	d.inISR.Store(true)
	defer d.inISR.Store(false)
	fn()
}

// Flags returns the current SR1 contents without read side effects.
func (d *Device) Flags() slave.Flags {
	d.mu.Lock()
	defer d.mu.Unlock()
	return slave.Flags(d.sr1)
}

func (d *Device) AckEnabled() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cr1&slave.CR1Ack != 0
}

func (d *Device) ClockEnabled() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.clock
}

func (d *Device) Enabled() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cr1&slave.CR1Enable != 0
}

// Address returns the 7-bit address programmed into OAR1.
func (d *Device) Address() byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return byte(d.oar1>>1) & 0x7F
}

// acks reports whether the peripheral would acknowledge address. Callers hold mu.
func (d *Device) acks(address byte) bool {
	return d.clock &&
		d.cr1&slave.CR1Enable != 0 &&
		d.cr1&slave.CR1Ack != 0 &&
		byte(d.oar1>>1)&0x7F == address
}
