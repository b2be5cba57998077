package main

import (
	"fmt"
	"image/color"
	"strconv"
	"strings"

	"github.com/lucasb-eyer/go-colorful"
	"github.com/urfave/cli/v2"

	"github.com/topisani/ottofw/cmd/ottoctl/console"
	"github.com/topisani/ottofw/leds"
)

// parseColor accepts "#rrggbb", "rrggbb" or the short "#rgb" form.
func parseColor(s string) (color.RGBA, error) {
	if !strings.HasPrefix(s, "#") {
		s = "#" + s
	}
	c, err := colorful.Hex(s)
	if err != nil {
		return color.RGBA{}, fmt.Errorf("invalid colour %q: %w", s, err)
	}
	r, g, b := c.RGB255()
	return color.RGBA{R: r, G: g, B: b, A: 0xFF}, nil
}

func parseColors(args []string) ([]color.RGBA, error) {
	colors := make([]color.RGBA, 0, len(args))
	for _, a := range args {
		c, err := parseColor(a)
		if err != nil {
			return nil, err
		}
		colors = append(colors, c)
	}
	return colors, nil
}

func parsePattern(s string) (leds.Pattern, error) {
	for _, p := range []leds.Pattern{leds.PatternNone, leds.PatternWipe, leds.PatternRainbow} {
		if p.String() == strings.ToLower(s) {
			return p, nil
		}
	}
	return leds.PatternNone, fmt.Errorf("unknown pattern %q", s)
}

var ledsCmd = cli.Command{
	Name:  "leds",
	Usage: "control the LED strip",
	Subcommands: cli.Commands{
		&ledsFillCmd,
		&ledsSetCmd,
		&ledsAnimateCmd,
		&ledsOffCmd,
	},
}

var ledsFillCmd = cli.Command{
	Name:      "fill",
	Usage:     "set every LED to one colour",
	ArgsUsage: "<colour>",
	Action: func(c *cli.Context) error {
		if c.NArg() != 1 {
			return console.Exit(1, "usage: ottoctl leds fill <colour>")
		}
		col, err := parseColor(c.Args().First())
		if err != nil {
			return console.Exit(1, "%s", console.Red(err))
		}
		d, _, closer, err := openDevice(c)
		if err != nil {
			return console.Exit(1, "%s", console.Red(err))
		}
		defer func() { _ = closer() }()
		if err := d.Fill(c.Context, col); err != nil {
			return console.Exit(1, "fill failed: %s", console.Red(err))
		}
		console.PInfof(console.PictoLight, "filled with %s", console.Swatch(col.R, col.G, col.B))
		return nil
	},
}

var ledsSetCmd = cli.Command{
	Name:      "set",
	Usage:     "set consecutive LEDs",
	ArgsUsage: "<start> <colour>...",
	Action: func(c *cli.Context) error {
		if c.NArg() < 2 {
			return console.Exit(1, "usage: ottoctl leds set <start> <colour>...")
		}
		start, err := strconv.Atoi(c.Args().First())
		if err != nil || start < 0 || start >= leds.StripLength {
			return console.Exit(1, "invalid start index: %s", c.Args().First())
		}
		colors, err := parseColors(c.Args().Tail())
		if err != nil {
			return console.Exit(1, "%s", console.Red(err))
		}
		d, _, closer, err := openDevice(c)
		if err != nil {
			return console.Exit(1, "%s", console.Red(err))
		}
		defer func() { _ = closer() }()
		if err := d.SetLEDs(c.Context, start, colors); err != nil {
			return console.Exit(1, "set failed: %s", console.Red(err))
		}
		return nil
	},
}

var ledsAnimateCmd = cli.Command{
	Name:      "animate",
	Usage:     "start a built-in pattern (wipe, rainbow, none)",
	ArgsUsage: "<pattern>",
	Action: func(c *cli.Context) error {
		p, err := parsePattern(c.Args().First())
		if err != nil {
			return console.Exit(1, "%s", console.Red(err))
		}
		d, _, closer, err := openDevice(c)
		if err != nil {
			return console.Exit(1, "%s", console.Red(err))
		}
		defer func() { _ = closer() }()
		if err := d.Animate(c.Context, p); err != nil {
			return console.Exit(1, "animate failed: %s", console.Red(err))
		}
		return nil
	},
}

var ledsOffCmd = cli.Command{
	Name:  "off",
	Usage: "turn every LED off",
	Action: func(c *cli.Context) error {
		d, _, closer, err := openDevice(c)
		if err != nil {
			return console.Exit(1, "%s", console.Red(err))
		}
		defer func() { _ = closer() }()
		if err := d.Off(c.Context); err != nil {
			return console.Exit(1, "off failed: %s", console.Red(err))
		}
		return nil
	},
}
