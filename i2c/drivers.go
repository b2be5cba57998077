package i2c

import (
	"context"
	"fmt"
	"sync"

	"tinygo.org/x/drivers"

	"github.com/topisani/ottofw"
)

var _ ottofw.I2CBus = &DriversBus{}

// DriversBus adapts a TinyGo bus (machine.I2C or anything else satisfying
// drivers.I2C) so a microcontroller can act as the controller's host.
type DriversBus struct {
	mx  sync.Mutex
	bus drivers.I2C
}

func NewDriversBus(bus drivers.I2C) *DriversBus {
	return &DriversBus{bus: bus}
}

func (b *DriversBus) ReadFromAddr(ctx context.Context, address byte, buffer []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mx.Lock()
	defer b.mx.Unlock()
	if err := b.bus.Tx(uint16(address), nil, buffer); err != nil {
		return fmt.Errorf("could not read from i2c address %#x: %w", address, err)
	}
	return nil
}

func (b *DriversBus) WriteToAddr(ctx context.Context, address byte, buffer []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mx.Lock()
	defer b.mx.Unlock()
	if err := b.bus.Tx(uint16(address), buffer, nil); err != nil {
		return fmt.Errorf("could not write to i2c address %#x: %w", address, err)
	}
	return nil
}

func (b *DriversBus) Release(ctx context.Context) error {
	return nil
}
