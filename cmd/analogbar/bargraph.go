package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/mklimuk/analogbar/adc"
	"github.com/mklimuk/analogbar/cmd/analogbar/console"
	"github.com/mklimuk/analogbar/config"
	"github.com/mklimuk/analogbar/display"
	"github.com/mklimuk/analogbar/gpio"
)

var bargraphCmd = cli.Command{
	Name:    "bargraph",
	Aliases: []string{"bar"},
	Usage:   "mirror a converter channel on an expander port",
	Flags: []cli.Flag{
		&cli.IntFlag{Name: "channel", Usage: "converter channel"},
		&cli.StringFlag{Name: "port", Aliases: []string{"p"}, Usage: "expander port, A or B"},
		&cli.StringFlag{Name: "kind", Aliases: []string{"k"}, Usage: "bar or digit"},
		&cli.IntFlag{Name: "iterations", Aliases: []string{"n"}, Usage: "rounds to run, 0 runs until interrupted"},
		&cli.DurationFlag{Name: "interval", Aliases: []string{"i"}, Usage: "pause between rounds"},
		&cli.BoolFlag{Name: "clear", Usage: "turn the port off on exit"},
	},
	Action: func(c *cli.Context) error {
		dcfg, err := displayConfig(c, loadedConfig(c))
		if err != nil {
			return console.Exit(1, "%s", console.Red(err))
		}
		if err := confirmOutputs(c, fmt.Sprintf("bargraph on port %s", dcfg.Port)); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(commandContext(c), os.Interrupt, syscall.SIGTERM)
		defer stop()
		hw := newHardware(loadedConfig(c))
		defer hw.Close()
		exp, err := hw.expander(ctx)
		if err != nil {
			return console.Exit(1, "could not initialize expander: %s", console.Red(err))
		}
		conv, err := hw.converter()
		if err != nil {
			return console.Exit(1, "could not open converter: %s", console.Red(err))
		}
		r := &display.Runner{
			ADC:    conv,
			Out:    exp,
			Config: dcfg,
			Reading: func(rd display.Reading) {
				console.Printf("%4d  channel %d: %4d (%.3fV) %s\n", rd.Iteration, rd.Channel, rd.Value, rd.Voltage, console.Bar(rd.Pattern))
			},
		}
		err = r.Run(ctx)
		if errors.Is(err, context.Canceled) {
			console.PInfof(console.PictoFinish, "interrupted")
			return nil
		}
		if err != nil {
			return console.Exit(1, "bargraph failed: %s", console.Red(err))
		}
		console.PInfof(console.PictoFinish, "done")
		return nil
	},
}

// displayConfig merges the configuration file with command flags.
func displayConfig(c *cli.Context, cfg config.Config) (display.Config, error) {
	dcfg := display.DefaultConfig()
	dcfg.Channel = cfg.Converter.Channel
	dcfg.VRef = cfg.Converter.VRef
	dcfg.Step = cfg.Display.Step
	dcfg.Iterations = cfg.Display.Iterations
	dcfg.Interval = cfg.Display.Interval
	dcfg.Clear = cfg.Display.Clear

	mode, err := adc.ParseMode(cfg.Converter.Mode)
	if err != nil {
		return dcfg, err
	}
	dcfg.Mode = mode

	portName := cfg.Display.Port
	if c.IsSet("port") {
		portName = c.String("port")
	}
	dcfg.Port, err = gpio.ParsePort(portName)
	if err != nil {
		return dcfg, err
	}

	kind := cfg.Display.Kind
	if c.IsSet("kind") {
		kind = c.String("kind")
	}
	dcfg.Kind, err = display.ParseKind(kind)
	if err != nil {
		return dcfg, err
	}

	if c.IsSet("channel") {
		dcfg.Channel = c.Int("channel")
	}
	if _, err := adc.EncodeCommand(dcfg.Channel, dcfg.Mode); err != nil {
		return dcfg, err
	}
	if c.IsSet("iterations") {
		dcfg.Iterations = c.Int("iterations")
	}
	if c.IsSet("interval") {
		dcfg.Interval = c.Duration("interval")
	}
	if c.IsSet("clear") {
		dcfg.Clear = c.Bool("clear")
	}
	return dcfg, nil
}
