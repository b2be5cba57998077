//go:build tinygo && stm32f103

package slave

import (
	"device/stm32"
	"runtime/interrupt"
)

// I2C1Registers is the register file of the I2C1 block.
type I2C1Registers struct{}

var _ Registers = I2C1Registers{}

func (I2C1Registers) EnableClock()  { stm32.RCC.APB1ENR.SetBits(stm32.RCC_APB1ENR_I2C1EN) }
func (I2C1Registers) DisableClock() { stm32.RCC.APB1ENR.ClearBits(stm32.RCC_APB1ENR_I2C1EN) }

func (I2C1Registers) ReadSR1() uint32    { return stm32.I2C1.SR1.Get() }
func (I2C1Registers) WriteSR1(v uint32)  { stm32.I2C1.SR1.Set(v) }
func (I2C1Registers) ReadSR2() uint32    { return stm32.I2C1.SR2.Get() }
func (I2C1Registers) ReadCR1() uint32    { return stm32.I2C1.CR1.Get() }
func (I2C1Registers) WriteCR1(v uint32)  { stm32.I2C1.CR1.Set(v) }
func (I2C1Registers) ReadCR2() uint32    { return stm32.I2C1.CR2.Get() }
func (I2C1Registers) WriteCR2(v uint32)  { stm32.I2C1.CR2.Set(v) }
func (I2C1Registers) WriteOAR1(v uint32) { stm32.I2C1.OAR1.Set(v) }
func (I2C1Registers) WriteOAR2(v uint32) { stm32.I2C1.OAR2.Set(v) }
func (I2C1Registers) ReadDR() uint32     { return stm32.I2C1.DR.Get() }
func (I2C1Registers) WriteDR(v uint32)   { stm32.I2C1.DR.Set(v) }

var i2c1Event, i2c1Fault func()

// I2C1Interrupts routes I2C1_EV and I2C1_ER to the attached handlers.
type I2C1Interrupts struct {
	ev interrupt.Interrupt
	er interrupt.Interrupt
}

var _ InterruptController = &I2C1Interrupts{}

func NewI2C1Interrupts() *I2C1Interrupts {
	return &I2C1Interrupts{
		ev: interrupt.New(stm32.IRQ_I2C1_EV, func(interrupt.Interrupt) {
			if i2c1Event != nil {
				i2c1Event()
			}
		}),
		er: interrupt.New(stm32.IRQ_I2C1_ER, func(interrupt.Interrupt) {
			if i2c1Fault != nil {
				i2c1Fault()
			}
		}),
	}
}

func (i *I2C1Interrupts) Attach(event, fault func()) {
	i.Disable()
	i2c1Event = event
	i2c1Fault = fault
	i.Enable()
}

func (i *I2C1Interrupts) Detach() {
	i.Disable()
	i2c1Event = nil
	i2c1Fault = nil
}

func (i *I2C1Interrupts) Disable() {
	i.ev.Disable()
	i.er.Disable()
}

func (i *I2C1Interrupts) Enable() {
	i.ev.Enable()
	i.er.Enable()
}

func (i *I2C1Interrupts) InInterrupt() bool {
	return interrupt.In()
}
