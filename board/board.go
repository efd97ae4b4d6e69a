// Package board exposes gobot platform adaptors (NanoPi by default) as
// analogbar transports, for boards where the gobot sysfs/periph drivers are
// preferred over opening /dev nodes directly.
package board

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"gobot.io/x/gobot/v2/drivers/i2c"
	"gobot.io/x/gobot/v2/drivers/spi"
	"gobot.io/x/gobot/v2/platforms/friendlyelec/nanopi"

	"github.com/mklimuk/analogbar"
)

var (
	_ analogbar.I2CBus  = &I2CBus{}
	_ analogbar.SPIConn = &SPIConn{}
)

// ConnectNanoPi connects a NanoPi NEO adaptor. Callers Finalize it when done.
func ConnectNanoPi() (*nanopi.Adaptor, error) {
	a := nanopi.NewNeoAdaptor()
	if err := a.Connect(); err != nil {
		return nil, fmt.Errorf("adaptor connect error: %w", err)
	}
	return a, nil
}

// I2CBus opens one gobot connection per device address on demand.
type I2CBus struct {
	mx    sync.Mutex
	open  func(address byte) (io.ReadWriteCloser, error)
	conns map[byte]io.ReadWriteCloser
}

// NewI2CBus uses bus busNr of the adaptor; a negative busNr selects the
// adaptor default.
func NewI2CBus(c i2c.Connector, busNr int) *I2CBus {
	if busNr < 0 {
		busNr = c.DefaultI2cBus()
	}
	return newI2CBus(func(address byte) (io.ReadWriteCloser, error) {
		return c.GetI2cConnection(int(address), busNr)
	})
}

func newI2CBus(open func(address byte) (io.ReadWriteCloser, error)) *I2CBus {
	return &I2CBus{open: open, conns: make(map[byte]io.ReadWriteCloser)}
}

func (b *I2CBus) conn(address byte) (io.ReadWriteCloser, error) {
	b.mx.Lock()
	defer b.mx.Unlock()
	if c, ok := b.conns[address]; ok {
		return c, nil
	}
	c, err := b.open(address)
	if err != nil {
		return nil, fmt.Errorf("could not open i2c connection to %x: %w", address, err)
	}
	b.conns[address] = c
	return c, nil
}

func (b *I2CBus) WriteToAddr(ctx context.Context, address byte, buffer []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c, err := b.conn(address)
	if err != nil {
		return err
	}
	n, err := c.Write(buffer)
	if err != nil {
		return fmt.Errorf("could not write to i2c bus %x: %w", address, err)
	}
	if n != len(buffer) {
		return fmt.Errorf("short write to i2c bus %x: %d of %d", address, n, len(buffer))
	}
	return nil
}

func (b *I2CBus) ReadFromAddr(ctx context.Context, address byte, buffer []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c, err := b.conn(address)
	if err != nil {
		return err
	}
	n, err := c.Read(buffer)
	if err != nil {
		return fmt.Errorf("could not read from i2c bus %x: %w", address, err)
	}
	if n != len(buffer) {
		return fmt.Errorf("short read from i2c bus %x: %d of %d", address, n, len(buffer))
	}
	return nil
}

func (b *I2CBus) Release(ctx context.Context) error {
	return nil
}

// Close closes every connection opened so far.
func (b *I2CBus) Close() error {
	b.mx.Lock()
	defer b.mx.Unlock()
	var first error
	for addr, c := range b.conns {
		if err := c.Close(); err != nil {
			slog.Warn("could not close i2c connection", "address", fmt.Sprintf("%#x", addr), "error", err)
			if first == nil {
				first = err
			}
		}
		delete(b.conns, addr)
	}
	return first
}

type spiTransceiver interface {
	ReadCommandData(command []byte, data []byte) error
	Close() error
}

// SPIConn is a gobot SPI connection to one chip select.
type SPIConn struct {
	conn spiTransceiver
}

// OpenSPI opens a connection on the adaptor. maxSpeed is in Hz.
func OpenSPI(c spi.Connector, busNum, chip, mode int, maxSpeed int64) (*SPIConn, error) {
	conn, err := c.GetSpiConnection(busNum, chip, mode, 8, maxSpeed)
	if err != nil {
		return nil, fmt.Errorf("SPI device start error: %w", err)
	}
	return &SPIConn{conn: conn}, nil
}

// Tx exchanges w and r in one transfer; both have the same length, as
// gobot's own MCP3208 driver expects from ReadCommandData.
func (s *SPIConn) Tx(ctx context.Context, w, r []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(w) != len(r) {
		return fmt.Errorf("tx/rx length mismatch: %d != %d", len(w), len(r))
	}
	if err := s.conn.ReadCommandData(w, r); err != nil {
		return fmt.Errorf("spi transaction failed: %w", err)
	}
	return nil
}

func (s *SPIConn) Close() error {
	return s.conn.Close()
}
