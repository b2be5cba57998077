package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"text/tabwriter"

	"github.com/urfave/cli/v2"

	"github.com/topisani/ottofw/cmd/ottoctl/console"
	"github.com/topisani/ottofw/keys"
	"github.com/topisani/ottofw/proto"
)

var keysCmd = cli.Command{
	Name:  "keys",
	Usage: "key matrix events",
	Subcommands: cli.Commands{
		&keysWatchCmd,
		&keysListCmd,
	},
}

var keysWatchCmd = cli.Command{
	Name:  "watch",
	Usage: "print key events until interrupted",
	Action: func(c *cli.Context) error {
		d, config, closer, err := openDevice(c)
		if err != nil {
			return console.Exit(1, "%s", console.Red(err))
		}
		defer func() { _ = closer() }()
		ctx, stop := signal.NotifyContext(c.Context, os.Interrupt)
		defer stop()
		err = d.Watch(ctx, config.PollInterval, func(ev proto.KeyEvent) error {
			printEvent(c.App.Writer, ev)
			return nil
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			return console.Exit(1, "watch failed: %s", console.Red(err))
		}
		if lost := d.Lost(); lost > 0 {
			console.Warnf("%d key events lost", lost)
		}
		return nil
	},
}

func printEvent(w io.Writer, ev proto.KeyEvent) {
	action := console.Yellow("release")
	if ev.Pressed {
		action = console.Green("press")
	}
	_, _ = fmt.Fprintf(w, "%s %5d %s %s\n", console.PictoKey, ev.Seq, action, console.White(ev.Key))
}

var keysListCmd = cli.Command{
	Name:  "list",
	Usage: "list key codes and their matrix positions",
	Action: func(c *cli.Context) error {
		w := tabwriter.NewWriter(c.App.Writer, 8, 0, 1, ' ', 0)
		_, _ = fmt.Fprintf(w, "CODE\tKEY\tROW\tCOL\n")
		for _, k := range keys.All() {
			row, col, ok := keys.DefaultLayout.Position(k)
			if !ok {
				_, _ = fmt.Fprintf(w, "%d\t%s\t-\t-\n", k, k)
				continue
			}
			_, _ = fmt.Fprintf(w, "%d\t%s\t%d\t%d\n", k, k, row, col)
		}
		return w.Flush()
	},
}
