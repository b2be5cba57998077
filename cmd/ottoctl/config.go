package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/topisani/ottofw"
	"github.com/topisani/ottofw/cmd/ottoctl/console"
)

const (
	adapterMCP2221 = "mcp2221"
	adapterPeriph  = "periph"
	adapterGobot   = "gobot"
)

// Config selects how ottoctl reaches the controller.
type Config struct {
	// Adapter is one of mcp2221, periph or gobot.
	Adapter string `yaml:"adapter"`
	// Device is the periph bus name, e.g. "/dev/i2c-1".
	Device string `yaml:"device,omitempty"`
	// Bus is the gobot board bus number.
	Bus          int           `yaml:"bus"`
	Address      uint8         `yaml:"address"`
	Retries      int           `yaml:"retries"`
	RetryDelay   time.Duration `yaml:"retry_delay"`
	SpeedHz      int64         `yaml:"speed_hz,omitempty"`
	PollInterval time.Duration `yaml:"poll_interval"`
}

func defaultConfig() Config {
	return Config{
		Adapter:      adapterMCP2221,
		Bus:          0,
		Address:      ottofw.DefaultAddress,
		Retries:      5,
		RetryDelay:   2 * time.Millisecond,
		PollInterval: 20 * time.Millisecond,
	}
}

func defaultConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "ottoctl", "config.yaml")
}

// loadConfig reads path over the defaults. A missing file is not an error unless
// required is set.
func loadConfig(path string, required bool) (Config, error) {
	config := defaultConfig()
	if path == "" {
		return config, nil
	}
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) && !required {
			return config, nil
		}
		return config, fmt.Errorf("could not open config: %w", err)
	}
	defer func() { _ = f.Close() }()
	if err := decodeConfig(f, &config); err != nil {
		return config, fmt.Errorf("%s: %w", path, err)
	}
	return config, nil
}

func decodeConfig(r io.Reader, config *Config) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(config); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("invalid config: %w", err)
	}
	return config.validate()
}

func (c Config) validate() error {
	switch c.Adapter {
	case adapterMCP2221, adapterGobot:
	case adapterPeriph:
		if c.Device == "" {
			return errors.New("periph adapter needs a device")
		}
	default:
		return fmt.Errorf("unknown adapter %q", c.Adapter)
	}
	if c.Address < 0x08 || c.Address > 0x77 {
		return fmt.Errorf("address %#x outside the 7-bit range", c.Address)
	}
	if c.Retries < 0 {
		return fmt.Errorf("retries must not be negative")
	}
	return nil
}

// applyFlags overrides config with flags set on the command line.
func applyFlags(c *cli.Context, config *Config) error {
	if c.IsSet("adapter") {
		config.Adapter = c.String("adapter")
	}
	if c.IsSet("device") {
		config.Device = c.String("device")
	}
	if c.IsSet("bus") {
		config.Bus = c.Int("bus")
	}
	if c.IsSet("address") {
		config.Address = uint8(c.Uint("address"))
	}
	if c.IsSet("retries") {
		config.Retries = c.Int("retries")
	}
	return config.validate()
}

// configFromContext builds the effective configuration for a command.
func configFromContext(c *cli.Context) (Config, error) {
	path := c.String("config")
	config, err := loadConfig(path, c.IsSet("config"))
	if err != nil {
		return config, err
	}
	return config, applyFlags(c, &config)
}

var configCmd = cli.Command{
	Name:  "config",
	Usage: "inspect the effective configuration",
	Subcommands: cli.Commands{
		&configShowCmd,
		&configInitCmd,
	},
}

var configShowCmd = cli.Command{
	Name:  "show",
	Usage: "print the configuration after files and flags are applied",
	Action: func(c *cli.Context) error {
		config, err := configFromContext(c)
		if err != nil {
			return console.Exit(1, "configuration error: %s", console.Red(err))
		}
		enc := yaml.NewEncoder(c.App.Writer)
		defer func() { _ = enc.Close() }()
		if err := enc.Encode(config); err != nil {
			return console.Exit(1, "encoding error: %s", console.Red(err))
		}
		return nil
	},
}

var configInitCmd = cli.Command{
	Name:  "init",
	Usage: "write the default configuration file",
	Flags: []cli.Flag{
		&cli.BoolFlag{Name: "force", Aliases: []string{"f"}, Usage: "overwrite without asking"},
	},
	Action: func(c *cli.Context) error {
		path := c.String("config")
		if path == "" {
			return console.Exit(1, "no config path; pass --config")
		}
		if _, err := os.Stat(path); err == nil && !c.Bool("force") {
			ok, err := console.YesOrNo(fmt.Sprintf("%s exists, overwrite?", path))
			if err != nil || !ok {
				return nil
			}
		}
		if err := writeConfig(path, defaultConfig()); err != nil {
			return console.Exit(1, "could not write config: %s", console.Red(err))
		}
		return nil
	},
}

func writeConfig(path string, config Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	out, err := yaml.Marshal(config)
	if err != nil {
		return err
	}
	return os.WriteFile(path, out, 0o644)
}
