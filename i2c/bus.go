// Package i2c provides host-side I2C buses able to reach the controller.
package i2c

import (
	"context"
	"fmt"
	"log/slog"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"

	"github.com/topisani/ottofw"
)

// MaxSpeed is the fastest clock the controller's slave peripheral follows.
const MaxSpeed = 400 * physic.KiloHertz

type BusOpts struct {
	// Speed is applied on open when set; zero keeps the kernel default.
	Speed  physic.Frequency
	Logger *slog.Logger
}

type BusOpt func(*BusOpts)

func WithSpeed(f physic.Frequency) BusOpt {
	return func(o *BusOpts) {
		o.Speed = f
	}
}

func WithLogger(logger *slog.Logger) BusOpt {
	return func(o *BusOpts) {
		o.Logger = logger
	}
}

var _ ottofw.I2CBus = &GenericBus{}

// GenericBus is any bus periph.io can open, e.g. "/dev/i2c-1" or "1".
type GenericBus struct {
	bus i2c.BusCloser
	log *slog.Logger
}

func NewGenericBus(dev string, opts ...BusOpt) (*GenericBus, error) {
	config := BusOpts{Logger: slog.Default()}
	for _, opt := range opts {
		opt(&config)
	}
	log := config.Logger.With("bus", dev)
	state, err := host.Init()
	if err != nil {
		return nil, fmt.Errorf("could not init host: %w", err)
	}
	for _, driver := range state.Loaded {
		log.Debug("host driver loaded", "driver", driver.String())
	}
	bus, err := i2creg.Open(dev)
	if err != nil {
		return nil, fmt.Errorf("could not open i2c bus %q: %w", dev, err)
	}
	b := &GenericBus{bus: bus, log: log}
	if config.Speed > 0 {
		if err := b.SetSpeed(config.Speed); err != nil {
			_ = bus.Close()
			return nil, err
		}
	}
	return b, nil
}

// SetSpeed changes the bus clock. Anything above fast mode is refused.
func (b *GenericBus) SetSpeed(f physic.Frequency) error {
	if f > MaxSpeed {
		return fmt.Errorf("i2c speed %s above %s", f, MaxSpeed)
	}
	if err := b.bus.SetSpeed(f); err != nil {
		return fmt.Errorf("could not set i2c bus speed to %s: %w", f, err)
	}
	b.log.Debug("bus speed set", "speed", f.String())
	return nil
}

func (b *GenericBus) ReadFromAddr(ctx context.Context, address byte, buffer []byte) error {
	return b.tx(ctx, address, nil, buffer)
}

func (b *GenericBus) WriteToAddr(ctx context.Context, address byte, buffer []byte) error {
	return b.tx(ctx, address, buffer, nil)
}

// tx runs one transfer. The controller never combines a write and a read, so only
// one of w and r is set.
func (b *GenericBus) tx(ctx context.Context, address byte, w, r []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := b.bus.Tx(uint16(address), w, r); err != nil {
		op := "write to"
		if r != nil {
			op = "read from"
		}
		return fmt.Errorf("could not %s i2c address %#x: %w", op, address, err)
	}
	return nil
}

// Release is a no-op: the kernel driver recovers a stuck bus itself.
func (b *GenericBus) Release(ctx context.Context) error {
	return nil
}

func (b *GenericBus) Close() error {
	return b.bus.Close()
}
