package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/urfave/cli/v2"
	"gobot.io/x/gobot/v2/platforms/friendlyelec/nanopi"
	"periph.io/x/conn/v3/physic"
	periphspi "periph.io/x/conn/v3/spi"

	"github.com/mklimuk/analogbar"
	"github.com/mklimuk/analogbar/adapter"
	"github.com/mklimuk/analogbar/adc"
	"github.com/mklimuk/analogbar/board"
	"github.com/mklimuk/analogbar/config"
	"github.com/mklimuk/analogbar/gpio"
	"github.com/mklimuk/analogbar/i2c"
	"github.com/mklimuk/analogbar/spi"
	"github.com/mklimuk/analogbar/snsctx"
)

// hardware opens the transports named in the configuration and closes
// whatever it opened.
type hardware struct {
	cfg     config.Config
	nanopi  *nanopi.Adaptor
	closers []io.Closer
}

func newHardware(cfg config.Config) *hardware {
	return &hardware{cfg: cfg}
}

func (h *hardware) board() (*nanopi.Adaptor, error) {
	if h.nanopi != nil {
		return h.nanopi, nil
	}
	a, err := board.ConnectNanoPi()
	if err != nil {
		return nil, err
	}
	h.nanopi = a
	return a, nil
}

func (h *hardware) i2cBus() (analogbar.I2CBus, error) {
	cfg := h.cfg.Expander
	switch h.cfg.Transport {
	case config.TransportMCP2221:
		a := adapter.NewMCP2221()
		if err := a.Init(); err != nil {
			return nil, fmt.Errorf("adapter initialization error: %w", err)
		}
		return a, nil
	case config.TransportNanoPi:
		a, err := h.board()
		if err != nil {
			return nil, err
		}
		return board.NewI2CBus(a, cfg.BusNumber), nil
	default:
		bus, err := i2c.NewGenericBus(cfg.Bus)
		if err != nil {
			return nil, err
		}
		if cfg.SpeedHz > 0 {
			if err := bus.SetSpeed(physic.Frequency(cfg.SpeedHz) * physic.Hertz); err != nil {
				_ = bus.Close()
				return nil, err
			}
		}
		return bus, nil
	}
}

func (h *hardware) spiConn() (analogbar.SPIConn, error) {
	cfg := h.cfg.Converter
	switch h.cfg.Transport {
	case config.TransportMCP2221:
		return nil, fmt.Errorf("transport %s has no SPI port", h.cfg.Transport)
	case config.TransportNanoPi:
		a, err := h.board()
		if err != nil {
			return nil, err
		}
		conn, err := board.OpenSPI(a, cfg.Bus, cfg.Chip, cfg.SPIMode, cfg.SpeedHz)
		if err != nil {
			return nil, err
		}
		return conn, nil
	default:
		port, err := spi.Open(cfg.Port,
			spi.WithSpeed(physic.Frequency(cfg.SpeedHz)*physic.Hertz),
			spi.WithMode(periphspi.Mode(cfg.SPIMode)))
		if err != nil {
			return nil, err
		}
		return port, nil
	}
}

func (h *hardware) expander(ctx context.Context) (*gpio.MCP23017, error) {
	bus, err := h.i2cBus()
	if err != nil {
		return nil, err
	}
	cfg := h.cfg.Expander
	exp, err := gpio.NewMCP23017(ctx, bus,
		gpio.WithAddress(cfg.Address),
		gpio.WithBank(cfg.Bank),
		gpio.WithRetryLimit(cfg.RetryLimit))
	if err != nil {
		closeTransport(bus)
		return nil, err
	}
	h.closers = append(h.closers, exp)
	return exp, nil
}

func (h *hardware) converter() (*adc.MCP3208, error) {
	conn, err := h.spiConn()
	if err != nil {
		return nil, err
	}
	d := adc.NewMCP3208(conn)
	h.closers = append(h.closers, d)
	return d, nil
}

func closeTransport(t any) {
	if c, ok := t.(io.Closer); ok {
		if err := c.Close(); err != nil {
			slog.Warn("could not close transport", "error", err)
		}
	}
}

// Close closes the device handles (and with them their transports) in
// reverse order of opening, then releases the board adaptor.
func (h *hardware) Close() {
	for i := len(h.closers) - 1; i >= 0; i-- {
		if err := h.closers[i].Close(); err != nil {
			slog.Warn("could not close device", "error", err)
		}
	}
	h.closers = nil
	if h.nanopi != nil {
		if err := h.nanopi.Finalize(); err != nil {
			slog.Warn("could not finalize adaptor", "error", err)
		}
		h.nanopi = nil
	}
}

// commandContext carries the verbose flag to the transports.
func commandContext(c *cli.Context) context.Context {
	return snsctx.SetVerbose(c.Context, c.Bool("verbose"))
}
