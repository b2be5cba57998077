//go:build tinygo && stm32f103

// Command firmware is the controller image for the STM32F103 board.
package main

import (
	"context"
	"device/stm32"
	"log/slog"
	"machine"
	"time"

	"periph.io/x/conn/v3/gpio"
	"tinygo.org/x/drivers"

	"github.com/topisani/ottofw"
	"github.com/topisani/ottofw/app"
	"github.com/topisani/ottofw/keys"
	"github.com/topisani/ottofw/leds"
	"github.com/topisani/ottofw/slave"
)

// inputPin reads a row with the internal pull-down.
type inputPin machine.Pin

func (p inputPin) Read() gpio.Level {
	return gpio.Level(machine.Pin(p).Get())
}

type outputPin machine.Pin

func (p outputPin) Out(l gpio.Level) error {
	machine.Pin(p).Set(bool(l))
	return nil
}

var rowPins = []machine.Pin{
	machine.PC9, machine.PB12, machine.PB13, machine.PB14,
	machine.PB15, machine.PB8, machine.PB4, machine.PB9,
}

var colPins = []machine.Pin{
	machine.PB11, machine.PB0, machine.PC1, machine.PC4,
	machine.PC5, machine.PB10, machine.PB1, machine.PB3,
}

const heartbeatPin = machine.PC6

// releaseJTAG frees PB3 and PB4 for the key matrix, keeping SWD.
func releaseJTAG() {
	stm32.RCC.APB2ENR.SetBits(stm32.RCC_APB2ENR_AFIOEN)
	stm32.AFIO.MAPR.ReplaceBits(0b010, stm32.AFIO_MAPR_SWJ_CFG_Msk>>stm32.AFIO_MAPR_SWJ_CFG_Pos, stm32.AFIO_MAPR_SWJ_CFG_Pos)
}

func main() {
	releaseJTAG()

	rows := make([]keys.InputPin, len(rowPins))
	for i, p := range rowPins {
		p.Configure(machine.PinConfig{Mode: machine.PinInputPulldown})
		rows[i] = inputPin(p)
	}
	cols := make([]keys.OutputPin, len(colPins))
	for i, p := range colPins {
		p.Configure(machine.PinConfig{Mode: machine.PinOutput})
		cols[i] = outputPin(p)
	}
	matrix, err := keys.NewMatrix(rows, cols)
	if err != nil {
		panic(err)
	}

	spi := machine.SPI0
	if err := spi.Configure(machine.SPIConfig{Frequency: leds.SPIFrequency, Mode: 0}); err != nil {
		panic(err)
	}
	var conn drivers.SPI = spi
	strip := leds.NewStrip(conn)

	machine.PB6.Configure(machine.PinConfig{Mode: machine.PinOutput50MHz + machine.PinOutputModeAltOpenDrain})
	machine.PB7.Configure(machine.PinConfig{Mode: machine.PinOutput50MHz + machine.PinOutputModeAltOpenDrain})
	driver, err := slave.New(slave.NewPeripheral(slave.I2C1Registers{}), slave.NewI2C1Interrupts(),
		slave.WithAddress(ottofw.DefaultAddress))
	if err != nil {
		panic(err)
	}

	heartbeatPin.Configure(machine.PinConfig{Mode: machine.PinOutput})
	fw := app.New(driver, matrix, strip,
		app.WithHeartbeat(outputPin(heartbeatPin), 300*time.Millisecond),
		app.WithBootPattern(leds.PatternWipe),
	)
	if err := fw.Run(context.Background()); err != nil {
		slog.Error("firmware stopped", "error", err)
	}
	for {
		time.Sleep(time.Second)
	}
}
