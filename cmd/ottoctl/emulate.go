package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/chzyer/readline"
	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/topisani/ottofw"
	"github.com/topisani/ottofw/app"
	"github.com/topisani/ottofw/client"
	"github.com/topisani/ottofw/cmd/ottoctl/console"
	"github.com/topisani/ottofw/keys"
	"github.com/topisani/ottofw/leds"
	"github.com/topisani/ottofw/sim"
	"github.com/topisani/ottofw/slave"
)

var errQuit = errors.New("quit")

// emulator runs the firmware against a simulated peripheral and talks to it through a
// simulated host.
type emulator struct {
	out    io.Writer
	dev    *sim.Device
	matrix *sim.Matrix
	spi    *sim.SPI
	driver *slave.Driver
	fw     *app.Firmware
	host   *client.Device
	poll   time.Duration

	cancel context.CancelFunc
	wg     sync.WaitGroup
	runErr error
}

func newEmulator(out io.Writer, logger *slog.Logger) (*emulator, error) {
	e := &emulator{
		out:    out,
		dev:    sim.NewDevice(),
		matrix: sim.NewMatrix(keys.Rows, keys.Cols),
		spi:    sim.NewSPI(),
		poll:   5 * time.Millisecond,
	}
	driver, err := slave.New(slave.NewPeripheral(e.dev), e.dev,
		slave.WithAddress(ottofw.DefaultAddress),
		slave.WithLogger(logger),
	)
	if err != nil {
		return nil, err
	}
	e.driver = driver
	matrix, err := keys.NewMatrix(keys.Inputs(e.matrix.RowPins()), keys.Outputs(e.matrix.ColumnPins()),
		keys.WithSettle(0))
	if err != nil {
		_ = driver.Close()
		return nil, err
	}
	e.fw = app.New(driver, matrix, leds.NewStrip(e.spi),
		app.WithLogger(logger),
		app.WithPollInterval(e.poll),
		app.WithHeartbeat(&sim.Pin{}, 300*time.Millisecond),
	)
	e.host = client.New(sim.NewMaster(e.dev),
		client.WithRetries(50),
		client.WithRetryDelay(time.Millisecond),
		client.WithLogger(logger),
	)
	return e, nil
}

func (e *emulator) start(ctx context.Context) {
	ctx, e.cancel = context.WithCancel(ctx)
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.runErr = e.fw.Run(ctx)
	}()
}

func (e *emulator) close() error {
	if e.cancel != nil {
		e.cancel()
	}
	e.wg.Wait()
	return errors.Join(e.runErr, e.driver.Close())
}

// exec runs one prompt line. It returns errQuit when the session should end.
func (e *emulator) exec(ctx context.Context, line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	cmd, args := strings.ToLower(fields[0]), fields[1:]
	switch cmd {
	case "quit", "exit":
		return errQuit
	case "help":
		e.help()
		return nil
	case "press", "release", "tap":
		if len(args) != 1 {
			return fmt.Errorf("usage: %s <key>", cmd)
		}
		return e.key(cmd, args[0])
	case "read":
		return e.read(ctx)
	case "fill":
		if len(args) != 1 {
			return errors.New("usage: fill <colour>")
		}
		c, err := parseColor(args[0])
		if err != nil {
			return err
		}
		return e.host.Fill(ctx, c)
	case "set":
		if len(args) < 2 {
			return errors.New("usage: set <start> <colour>...")
		}
		start, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid start %q", args[0])
		}
		colors, err := parseColors(args[1:])
		if err != nil {
			return err
		}
		return e.host.SetLEDs(ctx, start, colors)
	case "animate":
		if len(args) != 1 {
			return errors.New("usage: animate <pattern>")
		}
		p, err := parsePattern(args[0])
		if err != nil {
			return err
		}
		return e.host.Animate(ctx, p)
	case "off":
		return e.host.Off(ctx)
	case "leds":
		return e.showLEDs()
	case "stats":
		return e.stats()
	default:
		return fmt.Errorf("unknown command %q, try help", cmd)
	}
}

func (e *emulator) help() {
	_, _ = fmt.Fprint(e.out, `press <key>        hold a key down
release <key>      let a key go
tap <key>          press and release
read               drain key events from the controller
fill <colour>      set every LED
set <i> <colour>.. set LEDs from index i
animate <pattern>  wipe, rainbow or none
off                turn LEDs off
leds               show the strip
stats              engine and firmware counters
quit               leave
`)
}

func (e *emulator) key(action, name string) error {
	k, err := keys.ParseKey(name)
	if err != nil {
		return err
	}
	row, col, ok := keys.DefaultLayout.Position(k)
	if !ok {
		return fmt.Errorf("%s is not wired to the matrix", k)
	}
	switch action {
	case "press":
		e.matrix.Press(row, col)
	case "release":
		e.matrix.Release(row, col)
	case "tap":
		e.matrix.Press(row, col)
		time.Sleep(3 * e.poll)
		e.matrix.Release(row, col)
	}
	time.Sleep(3 * e.poll)
	return nil
}

func (e *emulator) read(ctx context.Context) error {
	n := 0
	for {
		ev, ok, err := e.host.NextEvent(ctx)
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		printEvent(e.out, ev)
		n++
	}
	if n == 0 {
		console.PInfof(console.PictoGhost, "no events")
	}
	return nil
}

func (e *emulator) showLEDs() error {
	frame := e.spi.Last()
	if frame == nil {
		console.PInfof(console.PictoGhost, "strip never written")
		return nil
	}
	colors, err := leds.Decode(frame)
	if err != nil {
		return err
	}
	var b strings.Builder
	for i, c := range colors {
		if i > 0 && i%18 == 0 {
			b.WriteString("\n")
		}
		b.WriteString(console.Swatch(c.R, c.G, c.B))
	}
	_, _ = fmt.Fprintln(e.out, b.String())
	return nil
}

func (e *emulator) stats() error {
	report := struct {
		Stage    string      `yaml:"stage"`
		Pending  int         `yaml:"pending"`
		Engine   slave.Stats `yaml:"engine"`
		Firmware app.Stats   `yaml:"firmware"`
		Frames   int         `yaml:"frames"`
		Lost     uint32      `yaml:"lost_events"`
	}{
		Stage:    e.driver.Stage().String(),
		Pending:  e.driver.Pending(),
		Engine:   e.driver.Stats(),
		Firmware: e.fw.Stats(),
		Frames:   e.spi.Frames(),
		Lost:     e.host.Lost(),
	}
	enc := yaml.NewEncoder(e.out)
	defer func() { _ = enc.Close() }()
	return enc.Encode(report)
}

func keyCompleter() *readline.PrefixCompleter {
	names := make([]readline.PrefixCompleterInterface, 0, len(keys.All()))
	for _, k := range keys.All() {
		names = append(names, readline.PcItem(k.String()))
	}
	patterns := []readline.PrefixCompleterInterface{
		readline.PcItem(leds.PatternWipe.String()),
		readline.PcItem(leds.PatternRainbow.String()),
		readline.PcItem(leds.PatternNone.String()),
	}
	return readline.NewPrefixCompleter(
		readline.PcItem("press", names...),
		readline.PcItem("release", names...),
		readline.PcItem("tap", names...),
		readline.PcItem("read"),
		readline.PcItem("fill"),
		readline.PcItem("set"),
		readline.PcItem("animate", patterns...),
		readline.PcItem("off"),
		readline.PcItem("leds"),
		readline.PcItem("stats"),
		readline.PcItem("help"),
		readline.PcItem("quit"),
	)
}

var emulateCmd = cli.Command{
	Name:  "emulate",
	Usage: "run the firmware against a simulated peripheral",
	Action: func(c *cli.Context) error {
		rl, err := readline.NewEx(&readline.Config{
			Prompt:          "otto> ",
			AutoComplete:    keyCompleter(),
			InterruptPrompt: "^C",
			EOFPrompt:       "quit",
		})
		if err != nil {
			return console.Exit(1, "could not open prompt: %s", console.Red(err))
		}
		defer func() { _ = rl.Close() }()
		console.SetOutput(rl.Stdout(), rl.Stderr())
		defer console.SetOutput(os.Stdout, os.Stderr)

		e, err := newEmulator(rl.Stdout(), slog.Default())
		if err != nil {
			return console.Exit(1, "could not start emulator: %s", console.Red(err))
		}
		e.start(c.Context)
		console.Infof("emulated controller at %#x, type help", ottofw.DefaultAddress)
		for {
			line, err := rl.Readline()
			if errors.Is(err, readline.ErrInterrupt) {
				if line == "" {
					break
				}
				continue
			}
			if err != nil {
				break
			}
			err = e.exec(c.Context, line)
			if errors.Is(err, errQuit) {
				break
			}
			if err != nil {
				console.Errorf("%s", err)
			}
		}
		if err := e.close(); err != nil {
			return console.Exit(1, "emulator stopped with error: %s", console.Red(err))
		}
		return nil
	},
}
