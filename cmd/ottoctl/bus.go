package main

import (
	"fmt"
	"log/slog"

	"github.com/urfave/cli/v2"
	"periph.io/x/conn/v3/physic"

	"github.com/topisani/ottofw"
	"github.com/topisani/ottofw/adapter"
	"github.com/topisani/ottofw/client"
	"github.com/topisani/ottofw/i2c"
)

func openBus(config Config) (ottofw.I2CBus, func() error, error) {
	nop := func() error { return nil }
	switch config.Adapter {
	case adapterMCP2221:
		a := adapter.NewMCP2221(adapter.WithLogger(slog.Default()))
		if err := a.Init(); err != nil {
			return nil, nop, fmt.Errorf("adapter initialization error: %w", err)
		}
		return a, nop, nil
	case adapterPeriph:
		b, err := i2c.NewGenericBus(config.Device,
			i2c.WithSpeed(physic.Frequency(config.SpeedHz)*physic.Hertz),
			i2c.WithLogger(slog.Default()),
		)
		if err != nil {
			return nil, nop, err
		}
		return b, b.Close, nil
	case adapterGobot:
		b, err := i2c.NewGobotBus(config.Bus)
		if err != nil {
			return nil, nop, err
		}
		return b, b.Close, nil
	default:
		return nil, nop, fmt.Errorf("unknown adapter %q", config.Adapter)
	}
}

// openDevice resolves the configuration and connects to the controller.
func openDevice(c *cli.Context) (*client.Device, Config, func() error, error) {
	config, err := configFromContext(c)
	if err != nil {
		return nil, config, nil, fmt.Errorf("configuration error: %w", err)
	}
	bus, closer, err := openBus(config)
	if err != nil {
		return nil, config, nil, err
	}
	d := client.New(bus,
		client.WithAddress(config.Address),
		client.WithRetries(config.Retries),
		client.WithRetryDelay(config.RetryDelay),
		client.WithLogger(slog.Default()),
	)
	return d, config, closer, nil
}
