// Package spi opens Linux spidev devices through periph.io and exposes them as
// analogbar.SPIConn.
package spi

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/mklimuk/analogbar"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"
)

// DefaultSpeed is the clock used when none is configured.
const DefaultSpeed = 1 * physic.MegaHertz

var _ analogbar.SPIConn = &Port{}

var hostInit = sync.OnceValue(func() error {
	state, err := host.Init()
	if err != nil {
		return err
	}
	for _, driver := range state.Loaded {
		slog.Debug("periph driver loaded", "driver", driver.String())
	}
	return nil
})

type Options struct {
	Speed physic.Frequency
	Mode  spi.Mode
	Bits  int
}

type Option func(*Options)

// WithSpeed sets the clock; zero keeps DefaultSpeed.
func WithSpeed(f physic.Frequency) Option {
	return func(o *Options) {
		if f > 0 {
			o.Speed = f
		}
	}
}

func WithMode(m spi.Mode) Option {
	return func(o *Options) {
		o.Mode = m
	}
}

// Port is one chip select on a SPI bus, connected with a fixed clock, mode and
// word size.
type Port struct {
	port spi.PortCloser
	conn spi.Conn
}

// Open opens a spidev port by name ("/dev/spidev0.0", "SPI0.0"); an empty
// name selects the first available port. The connection defaults to mode 0,
// 8 bit words at DefaultSpeed.
func Open(name string, opts ...Option) (*Port, error) {
	if err := hostInit(); err != nil {
		return nil, fmt.Errorf("could not init host: %w", err)
	}
	p, err := spireg.Open(name)
	if err != nil {
		return nil, fmt.Errorf("could not open spi port: %w", err)
	}
	port, err := Connect(p, opts...)
	if err != nil {
		_ = p.Close()
		return nil, err
	}
	return port, nil
}

// Connect configures an already opened periph.io port.
func Connect(p spi.PortCloser, opts ...Option) (*Port, error) {
	o := Options{
		Speed: DefaultSpeed,
		Mode:  spi.Mode0,
		Bits:  8,
	}
	for _, opt := range opts {
		opt(&o)
	}
	conn, err := p.Connect(o.Speed, o.Mode, o.Bits)
	if err != nil {
		return nil, fmt.Errorf("could not connect to spi port %s: %w", p, err)
	}
	return &Port{port: p, conn: conn}, nil
}

// Tx performs one full-duplex transaction with chip select held for its whole
// length.
func (p *Port) Tx(ctx context.Context, w, r []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := p.conn.Tx(w, r); err != nil {
		return fmt.Errorf("spi transaction failed: %w", err)
	}
	return nil
}

func (p *Port) Close() error {
	return p.port.Close()
}

func (p *Port) String() string {
	return p.port.String()
}
