package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/mklimuk/analogbar/cmd/analogbar/console"
	"github.com/mklimuk/analogbar/gpio"
)

const commandTimeout = 5 * time.Second

var gpioCmd = cli.Command{
	Name:  "gpio",
	Usage: "MCP23017 expander operations",
	Subcommands: []*cli.Command{
		&gpioStatusCmd,
		&gpioReadCmd,
		&gpioSetupCmd,
		&gpioWriteCmd,
		&gpioPortSetupCmd,
		&gpioPortWriteCmd,
		&gpioPullCmd,
		&gpioPolarityCmd,
		&gpioSettingsCmd,
	},
}

func withExpander(c *cli.Context, fn func(ctx context.Context, exp *gpio.MCP23017) error) error {
	ctx, cancel := context.WithTimeout(commandContext(c), commandTimeout)
	defer cancel()
	hw := newHardware(loadedConfig(c))
	defer hw.Close()
	exp, err := hw.expander(ctx)
	if err != nil {
		return console.Exit(1, "could not initialize expander: %s", console.Red(err))
	}
	return fn(ctx, exp)
}

func confirmOutputs(c *cli.Context, what string) error {
	ok, err := console.Confirm(fmt.Sprintf("%s will drive expander outputs, continue?", what), c.Bool("yes"))
	if err != nil {
		return console.Exit(1, "prompt error: %s", console.Red(err))
	}
	if !ok {
		return console.Exit(3, "%s aborted", console.PictoStop)
	}
	return nil
}

func parseByte(s string) (byte, error) {
	v, err := strconv.ParseUint(s, 0, 8)
	if err != nil {
		return 0, fmt.Errorf("invalid byte %q (use 0xFF, 0b1010 or decimal)", s)
	}
	return byte(v), nil
}

func parsePin(s string) (int, error) {
	pin, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid pin %q", s)
	}
	return pin, nil
}

func expectArgs(c *cli.Context, n int) error {
	if c.NArg() != n {
		return console.Exit(1, "expected %d argument(s), got %d", n, c.NArg())
	}
	return nil
}

var gpioStatusCmd = cli.Command{
	Name:  "status",
	Usage: "print IOCON and both ports",
	Action: func(c *cli.Context) error {
		return withExpander(c, func(ctx context.Context, exp *gpio.MCP23017) error {
			settings, err := exp.ReadSettings(ctx)
			if err != nil {
				return console.Exit(1, "could not read settings: %s", console.Red(err))
			}
			ports, err := exp.Read(ctx)
			if err != nil {
				return console.Exit(1, "could not read ports: %s", console.Red(err))
			}
			console.Printf("address: %s\n", console.White(fmt.Sprintf("%#x", exp.Address())))
			console.Printf("IOCON:   %s\n", console.White(fmt.Sprintf("%#02x", settings)))
			console.Printf("GPIO A:  %s %s\n", console.White(fmt.Sprintf("%08b", ports[0])), console.Bar(ports[0]))
			console.Printf("GPIO B:  %s %s\n", console.White(fmt.Sprintf("%08b", ports[1])), console.Bar(ports[1]))
			return nil
		})
	},
}

var gpioReadCmd = cli.Command{
	Name:      "read",
	Usage:     "read one pin (0-15) or a whole port with --port",
	ArgsUsage: "[pin]",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "port", Aliases: []string{"p"}, Usage: "A or B"},
	},
	Action: func(c *cli.Context) error {
		if c.IsSet("port") {
			port, err := gpio.ParsePort(c.String("port"))
			if err != nil {
				return console.Exit(1, "%s", console.Red(err))
			}
			return withExpander(c, func(ctx context.Context, exp *gpio.MCP23017) error {
				v, err := exp.ReadPort(ctx, port)
				if err != nil {
					return console.Exit(1, "could not read port: %s", console.Red(err))
				}
				console.Printf("GPIO %s: %s\n", port, console.White(fmt.Sprintf("%#02x", v)))
				return nil
			})
		}
		if err := expectArgs(c, 1); err != nil {
			return err
		}
		pin, err := parsePin(c.Args().Get(0))
		if err != nil {
			return console.Exit(1, "%s", console.Red(err))
		}
		return withExpander(c, func(ctx context.Context, exp *gpio.MCP23017) error {
			level, err := exp.DigitalRead(ctx, pin)
			if err != nil {
				return console.Exit(1, "could not read pin: %s", console.Red(err))
			}
			console.PInfof(console.PictoPin, "pin %d: %s", pin, console.White(level))
			return nil
		})
	},
}

var gpioSetupCmd = cli.Command{
	Name:      "setup",
	Usage:     "configure a pin direction",
	ArgsUsage: "<pin> <in|out>",
	Flags: []cli.Flag{
		&cli.BoolFlag{Name: "pull-up", Usage: "enable the 100k pull-up (inputs only)"},
		&cli.StringFlag{Name: "port", Aliases: []string{"p"}, Usage: "A or B; the pin is then 0-7"},
	},
	Action: func(c *cli.Context) error {
		if err := expectArgs(c, 2); err != nil {
			return err
		}
		pin, err := parsePin(c.Args().Get(0))
		if err != nil {
			return console.Exit(1, "%s", console.Red(err))
		}
		var dir gpio.Direction
		switch c.Args().Get(1) {
		case "in", "input":
			dir = gpio.Input
		case "out", "output":
			dir = gpio.Output
			if err := confirmOutputs(c, "gpio setup"); err != nil {
				return err
			}
		default:
			return console.Exit(1, "invalid direction %q (expected in or out)", c.Args().Get(1))
		}
		return withExpander(c, func(ctx context.Context, exp *gpio.MCP23017) error {
			var err error
			if c.IsSet("port") {
				port, perr := gpio.ParsePort(c.String("port"))
				if perr != nil {
					return console.Exit(1, "%s", console.Red(perr))
				}
				err = exp.SetupPortPin(ctx, port, pin, dir, c.Bool("pull-up"))
			} else {
				err = exp.SetupPin(ctx, pin, dir, c.Bool("pull-up"))
			}
			if err != nil {
				return console.Exit(1, "could not configure pin: %s", console.Red(err))
			}
			console.Infof("pin %d configured as %s", pin, console.Green(dir))
			return nil
		})
	},
}

var gpioWriteCmd = cli.Command{
	Name:      "write",
	Usage:     "set the output latch of one pin (0-15)",
	ArgsUsage: "<pin> <0|1>",
	Action: func(c *cli.Context) error {
		if err := expectArgs(c, 2); err != nil {
			return err
		}
		pin, err := parsePin(c.Args().Get(0))
		if err != nil {
			return console.Exit(1, "%s", console.Red(err))
		}
		level := gpio.Low
		switch c.Args().Get(1) {
		case "0", "low":
		case "1", "high":
			level = gpio.High
		default:
			return console.Exit(1, "invalid level %q (expected 0 or 1)", c.Args().Get(1))
		}
		if err := confirmOutputs(c, "gpio write"); err != nil {
			return err
		}
		return withExpander(c, func(ctx context.Context, exp *gpio.MCP23017) error {
			err := exp.SetupPin(ctx, pin, gpio.Output, false)
			if err != nil {
				return console.Exit(1, "could not configure pin: %s", console.Red(err))
			}
			err = exp.DigitalWrite(ctx, pin, level)
			if err != nil {
				return console.Exit(1, "could not write pin: %s", console.Red(err))
			}
			console.PInfof(console.PictoPin, "pin %d set to %d", pin, level)
			return nil
		})
	},
}

func portByteAction(what string, drives bool, op func(ctx context.Context, exp *gpio.MCP23017, port gpio.Port, v byte) error) cli.ActionFunc {
	return func(c *cli.Context) error {
		if err := expectArgs(c, 2); err != nil {
			return err
		}
		port, err := gpio.ParsePort(c.Args().Get(0))
		if err != nil {
			return console.Exit(1, "%s", console.Red(err))
		}
		v, err := parseByte(c.Args().Get(1))
		if err != nil {
			return console.Exit(1, "%s", console.Red(err))
		}
		if drives {
			if err := confirmOutputs(c, what); err != nil {
				return err
			}
		}
		return withExpander(c, func(ctx context.Context, exp *gpio.MCP23017) error {
			if err := op(ctx, exp, port, v); err != nil {
				return console.Exit(1, "%s failed: %s", what, console.Red(err))
			}
			console.Infof("%s: port %s = %s", what, port, console.White(fmt.Sprintf("%08b", v)))
			return nil
		})
	}
}

var gpioPortSetupCmd = cli.Command{
	Name:      "port-setup",
	Usage:     "overwrite the direction register of a port (1 = input)",
	ArgsUsage: "<A|B> <byte>",
	Action: portByteAction("port setup", true, func(ctx context.Context, exp *gpio.MCP23017, port gpio.Port, v byte) error {
		return exp.SetupPort(ctx, port, v)
	}),
}

var gpioPortWriteCmd = cli.Command{
	Name:      "port-write",
	Usage:     "configure a port as outputs and overwrite its latch",
	ArgsUsage: "<A|B> <byte>",
	Action: portByteAction("port write", true, func(ctx context.Context, exp *gpio.MCP23017, port gpio.Port, v byte) error {
		if err := exp.SetupPort(ctx, port, 0x00); err != nil {
			return err
		}
		return exp.WritePort(ctx, port, v)
	}),
}

var gpioPullCmd = cli.Command{
	Name:      "pull",
	Usage:     "overwrite the pull-up register of a port",
	ArgsUsage: "<A|B> <byte>",
	Action: portByteAction("pull-up", false, func(ctx context.Context, exp *gpio.MCP23017, port gpio.Port, v byte) error {
		return exp.PullUpPort(ctx, port, v)
	}),
}

var gpioPolarityCmd = cli.Command{
	Name:      "polarity",
	Usage:     "invert or restore the input polarity of a pin (0-15)",
	ArgsUsage: "<pin> <normal|inverted>",
	Action: func(c *cli.Context) error {
		if err := expectArgs(c, 2); err != nil {
			return err
		}
		pin, err := parsePin(c.Args().Get(0))
		if err != nil {
			return console.Exit(1, "%s", console.Red(err))
		}
		var inverted bool
		switch c.Args().Get(1) {
		case "normal":
		case "inverted":
			inverted = true
		default:
			return console.Exit(1, "invalid polarity %q", c.Args().Get(1))
		}
		return withExpander(c, func(ctx context.Context, exp *gpio.MCP23017) error {
			if err := exp.SetPolarity(ctx, pin, inverted); err != nil {
				return console.Exit(1, "could not set polarity: %s", console.Red(err))
			}
			return nil
		})
	},
}

var gpioSettingsCmd = cli.Command{
	Name:      "settings",
	Usage:     "overwrite the IOCON register",
	ArgsUsage: "<byte>",
	Action: func(c *cli.Context) error {
		if err := expectArgs(c, 1); err != nil {
			return err
		}
		v, err := parseByte(c.Args().Get(0))
		if err != nil {
			return console.Exit(1, "%s", console.Red(err))
		}
		return withExpander(c, func(ctx context.Context, exp *gpio.MCP23017) error {
			if err := exp.WriteSettings(ctx, v); err != nil {
				return console.Exit(1, "could not write settings: %s", console.Red(err))
			}
			console.Printf("\nWrote IOCON content: %#X\n", v)
			return nil
		})
	},
}
