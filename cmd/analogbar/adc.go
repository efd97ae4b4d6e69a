package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/urfave/cli/v2"

	"github.com/mklimuk/analogbar/adc"
	"github.com/mklimuk/analogbar/cmd/analogbar/console"
)

var adcCmd = cli.Command{
	Name:  "adc",
	Usage: "MCP3208 converter operations",
	Subcommands: []*cli.Command{
		&adcReadCmd,
	},
}

var adcReadCmd = cli.Command{
	Name:      "read",
	Usage:     "sample one channel, or all of them with --all",
	ArgsUsage: "[channel]",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "mode", Aliases: []string{"m"}, Usage: "single or diff"},
		&cli.Float64Flag{Name: "vref", Usage: "reference voltage"},
		&cli.BoolFlag{Name: "all", Aliases: []string{"a"}, Usage: "sample every channel of the mode"},
	},
	Action: func(c *cli.Context) error {
		cfg := loadedConfig(c)
		modeName := cfg.Converter.Mode
		if c.IsSet("mode") {
			modeName = c.String("mode")
		}
		mode, err := adc.ParseMode(modeName)
		if err != nil {
			return console.Exit(1, "%s", console.Red(err))
		}
		vref := cfg.Converter.VRef
		if c.IsSet("vref") {
			vref = c.Float64("vref")
		}
		channel := cfg.Converter.Channel
		if c.NArg() > 0 {
			channel, err = strconv.Atoi(c.Args().Get(0))
			if err != nil {
				return console.Exit(1, "invalid channel %q", c.Args().Get(0))
			}
		}

		ctx, cancel := context.WithTimeout(commandContext(c), commandTimeout)
		defer cancel()
		hw := newHardware(cfg)
		defer hw.Close()
		conv, err := hw.converter()
		if err != nil {
			return console.Exit(1, "could not open converter: %s", console.Red(err))
		}
		if c.Bool("all") {
			values, err := conv.SampleAll(ctx, mode)
			if err != nil {
				return console.Exit(1, "could not sample: %s", console.Red(err))
			}
			for ch, v := range values {
				printSample(ch, v, vref)
			}
			return nil
		}
		v, err := conv.Sample(ctx, channel, mode)
		if err != nil {
			return console.Exit(1, "could not sample channel %d: %s", channel, console.Red(err))
		}
		printSample(channel, v, vref)
		return nil
	},
}

func printSample(channel int, value uint16, vref float64) {
	console.PInfof(console.PictoVoltage, "channel %d: %s (%s)", channel,
		console.White(value), console.Cyan(fmt.Sprintf("%.3fV", adc.ToVoltage(value, vref))))
}
