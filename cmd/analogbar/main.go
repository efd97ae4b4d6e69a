package main

import (
	"errors"
	"log/slog"
	"os"
	"time"

	chlog "github.com/charmbracelet/log"
	"github.com/muesli/termenv"
	"github.com/urfave/cli/v2"

	"github.com/mklimuk/analogbar/cmd/analogbar/console"
	"github.com/mklimuk/analogbar/config"
)

const metaConfig = "config"

func main() {
	os.Exit(run(os.Args))
}

func run(args []string) int {
	app := newApp()
	err := app.Run(args)
	if err != nil {
		console.Errorf("%v", err)
		var exerr cli.ExitCoder
		if errors.As(err, &exerr) {
			return exerr.ExitCode()
		}
		return 1
	}
	return 0
}

func newApp() *cli.App {
	app := cli.NewApp()
	app.Name = "analogbar"
	app.EnableBashCompletion = true
	app.Version = config.VersionString()
	app.Usage = "MCP23017 expander and MCP3208 converter tool"
	// exit codes are returned by run instead of exiting inside the app
	app.ExitErrHandler = func(*cli.Context, error) {}
	app.Flags = []cli.Flag{
		&cli.BoolFlag{
			Name:  "verbose",
			Usage: "enable debug logging and adapter wire dumps",
		},
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Value:   "analogbar.yaml",
			Usage:   "configuration file; defaults apply when it does not exist",
		},
		&cli.StringFlag{
			Name:    "transport",
			Aliases: []string{"t"},
			Usage:   "generic, nanopi or mcp2221 (overrides the configuration)",
		},
		&cli.BoolFlag{
			Name:    "yes",
			Aliases: []string{"y"},
			Usage:   "do not ask before driving outputs",
		},
	}
	app.Before = func(c *cli.Context) error {
		charm := chlog.NewWithOptions(os.Stdout, chlog.Options{
			ReportCaller:    true,
			ReportTimestamp: true,
			TimeFormat:      time.DateTime,
		})
		charm.SetColorProfile(termenv.TrueColor)
		charm.SetLevel(chlog.InfoLevel)
		if c.Bool("verbose") {
			charm.SetLevel(chlog.DebugLevel)
		}
		slog.SetDefault(slog.New(charm))

		cfg, err := config.Load(c.String("config"))
		if err != nil {
			return console.Exit(2, "configuration error: %s", console.Red(err))
		}
		if c.IsSet("transport") {
			cfg.Transport = c.String("transport")
			if err := cfg.Validate(); err != nil {
				return console.Exit(2, "configuration error: %s", console.Red(err))
			}
		}
		c.App.Metadata = map[string]interface{}{metaConfig: cfg}
		return nil
	}
	app.Commands = cli.Commands{
		&gpioCmd,
		&adcCmd,
		&bargraphCmd,
		&configCmd,
		&usbCmd,
		&mcp2221Cmd,
	}
	return app
}

func loadedConfig(c *cli.Context) config.Config {
	if cfg, ok := c.App.Metadata[metaConfig].(config.Config); ok {
		return cfg
	}
	return config.Default()
}

var configCmd = cli.Command{
	Name:  "config",
	Usage: "print the effective configuration",
	Action: func(c *cli.Context) error {
		err := loadedConfig(c).Write(console.Output())
		if err != nil {
			return console.Exit(1, "%s", console.Red(err))
		}
		return nil
	},
}
