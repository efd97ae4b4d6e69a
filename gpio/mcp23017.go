package gpio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/mklimuk/analogbar"
)

const DefaultMCP23017Address = 0x20

/*
	Register access:

1. Write the register offset to set the address pointer
2. Write one data byte after the offset, or
3. Read one byte back from the pointer

Pin updates are read-modify-write: the register is read, one bit is changed
and the whole byte is written back. The handle mutex serialises callers of one
handle only; other bus masters writing the same register in between are not
detected.
*/
type MCP23017 struct {
	mx         sync.Mutex
	transport  analogbar.I2CBus
	bank       int
	address    byte
	retryLimit int
	closed     bool
}

type Option func(*MCP23017)

// WithAddress sets the 7-bit bus address (0x20-0x27).
func WithAddress(address byte) Option {
	return func(m *MCP23017) {
		m.address = address
	}
}

// WithBank selects the register layout the chip is configured for.
func WithBank(bank int) Option {
	return func(m *MCP23017) {
		if bank == BankSeparate {
			m.bank = BankSeparate
			return
		}
		m.bank = BankPaired
	}
}

// WithRetryLimit sets how many times a transaction is attempted when the
// transport reports analogbar.ErrBusBusy. The default is a single attempt.
func WithRetryLimit(limit int) Option {
	return func(m *MCP23017) {
		if limit < 1 {
			limit = 1
		}
		m.retryLimit = limit
	}
}

// NewMCP23017 returns a handle to the expander and resets both ports to
// inputs, whatever their previous configuration.
func NewMCP23017(ctx context.Context, bus analogbar.I2CBus, opts ...Option) (*MCP23017, error) {
	m := &MCP23017{retryLimit: 1, transport: bus, address: DefaultMCP23017Address}
	for _, opt := range opts {
		opt(m)
	}
	err := m.writeRegistry(ctx, IODIRA, 0xFF)
	if err != nil {
		return nil, fmt.Errorf("could not initialize gpio A set: %w", err)
	}
	err = m.writeRegistry(ctx, IODIRB, 0xFF)
	if err != nil {
		return nil, fmt.Errorf("could not initialize gpio B set: %w", err)
	}
	return m, nil
}

// Address returns the bus address of the device.
func (m *MCP23017) Address() byte {
	return m.address
}

// SetupPin configures the direction of a flattened pin (0-15). pullUp enables
// the pull-up of an input; without it GPPU is left untouched.
func (m *MCP23017) SetupPin(ctx context.Context, pin int, dir Direction, pullUp bool) error {
	p, err := Resolve(pin)
	if err != nil {
		return err
	}
	return m.setup(ctx, p, dir, pullUp)
}

// SetupPortPin is SetupPin with an explicit port and a pin in 0-7.
func (m *MCP23017) SetupPortPin(ctx context.Context, port Port, pin int, dir Direction, pullUp bool) error {
	p, err := ResolvePort(port, pin)
	if err != nil {
		return err
	}
	return m.setup(ctx, p, dir, pullUp)
}

func (m *MCP23017) setup(ctx context.Context, p Pin, dir Direction, pullUp bool) error {
	if dir != Input && dir != Output {
		return fmt.Errorf("%w: %d", ErrInvalidDirection, dir)
	}
	if pullUp && dir == Output {
		return fmt.Errorf("pin %s: %w", p, ErrPullUpOnOutput)
	}
	if err := m.acquire(); err != nil {
		return err
	}
	defer m.mx.Unlock()
	err := m.updateRegistry(ctx, p.Port.pick(IODIRA, IODIRB), p.mask(), dir == Input)
	if err != nil {
		return fmt.Errorf("could not set direction of pin %s: %w", p, err)
	}
	if !pullUp {
		return nil
	}
	err = m.updateRegistry(ctx, p.Port.pick(GPPUA, GPPUB), p.mask(), true)
	if err != nil {
		return fmt.Errorf("could not set pull-up of pin %s: %w", p, err)
	}
	return nil
}

// SetupPort overwrites the direction register of a port (1 = input, 0 = output).
func (m *MCP23017) SetupPort(ctx context.Context, port Port, directions byte) error {
	if err := checkPort(port); err != nil {
		return err
	}
	if err := m.acquire(); err != nil {
		return err
	}
	defer m.mx.Unlock()
	err := m.writeRegistry(ctx, port.pick(IODIRA, IODIRB), directions)
	if err != nil {
		return fmt.Errorf("could not set direction of gpio %s set: %w", port, err)
	}
	return nil
}

// PullUpPort overwrites the pull-up register of a port.
func (m *MCP23017) PullUpPort(ctx context.Context, port Port, settings byte) error {
	if err := checkPort(port); err != nil {
		return err
	}
	if err := m.acquire(); err != nil {
		return err
	}
	defer m.mx.Unlock()
	err := m.writeRegistry(ctx, port.pick(GPPUA, GPPUB), settings)
	if err != nil {
		return fmt.Errorf("could not set pull-up on gpio %s set: %w", port, err)
	}
	return nil
}

// DigitalWrite sets the output latch bit of a flattened pin, keeping the
// other bits of the latch.
func (m *MCP23017) DigitalWrite(ctx context.Context, pin int, level Level) error {
	p, err := Resolve(pin)
	if err != nil {
		return err
	}
	if err := m.acquire(); err != nil {
		return err
	}
	defer m.mx.Unlock()
	err = m.updateRegistry(ctx, p.Port.pick(OLATA, OLATB), p.mask(), level != Low)
	if err != nil {
		return fmt.Errorf("could not write pin %s: %w", p, err)
	}
	return nil
}

// WritePort overwrites the output latch of a port.
func (m *MCP23017) WritePort(ctx context.Context, port Port, value byte) error {
	if err := checkPort(port); err != nil {
		return err
	}
	if err := m.acquire(); err != nil {
		return err
	}
	defer m.mx.Unlock()
	err := m.writeRegistry(ctx, port.pick(OLATA, OLATB), value)
	if err != nil {
		return fmt.Errorf("could not write gpio %s set: %w", port, err)
	}
	return nil
}

// DigitalRead returns the live level of a flattened pin (GPIO register, not
// the latch).
func (m *MCP23017) DigitalRead(ctx context.Context, pin int) (Level, error) {
	p, err := Resolve(pin)
	if err != nil {
		return Low, err
	}
	if err := m.acquire(); err != nil {
		return Low, err
	}
	defer m.mx.Unlock()
	res, err := m.readRegistry(ctx, p.Port.pick(GPIOA, GPIOB))
	if err != nil {
		return Low, fmt.Errorf("could not read pin %s: %w", p, err)
	}
	return Level((res >> p.Bit) & 0x01), nil
}

// ReadPort reads the GPIO register of a port.
func (m *MCP23017) ReadPort(ctx context.Context, port Port) (byte, error) {
	if err := checkPort(port); err != nil {
		return 0, err
	}
	if err := m.acquire(); err != nil {
		return 0, err
	}
	defer m.mx.Unlock()
	res, err := m.readRegistry(ctx, port.pick(GPIOA, GPIOB))
	if err != nil {
		return 0, fmt.Errorf("could not read gpio %s set: %w", port, err)
	}
	return res, nil
}

// Read returns the GPIO registers of both ports, A first.
func (m *MCP23017) Read(ctx context.Context) ([]byte, error) {
	res := make([]byte, 2)
	var err error
	res[0], err = m.ReadPort(ctx, PortA)
	if err != nil {
		return nil, err
	}
	res[1], err = m.ReadPort(ctx, PortB)
	if err != nil {
		return nil, err
	}
	return res, nil
}

// SetPolarity inverts (or restores) the input polarity of a flattened pin.
// With inverted polarity the GPIO register reads the complement of the pin.
func (m *MCP23017) SetPolarity(ctx context.Context, pin int, inverted bool) error {
	p, err := Resolve(pin)
	if err != nil {
		return err
	}
	if err := m.acquire(); err != nil {
		return err
	}
	defer m.mx.Unlock()
	err = m.updateRegistry(ctx, p.Port.pick(IPOLA, IPOLB), p.mask(), inverted)
	if err != nil {
		return fmt.Errorf("could not set polarity of pin %s: %w", p, err)
	}
	return nil
}

// ReadSettings reads contents of IOCON registry
func (m *MCP23017) ReadSettings(ctx context.Context) (byte, error) {
	if err := m.acquire(); err != nil {
		return 0, err
	}
	defer m.mx.Unlock()
	res, err := m.readRegistry(ctx, IOCON)
	if err != nil {
		return 0, fmt.Errorf("could not read settings: %w", err)
	}
	return res, nil
}

// WriteSettings overwrites the IOCON registry. Changing the BANK bit here does
// not change the layout used by the handle; see WithBank.
func (m *MCP23017) WriteSettings(ctx context.Context, settings byte) error {
	if err := m.acquire(); err != nil {
		return err
	}
	defer m.mx.Unlock()
	err := m.writeRegistry(ctx, IOCON, settings)
	if err != nil {
		return fmt.Errorf("could not write settings: %w", err)
	}
	return nil
}

// Close releases the transport when it can be closed. The handle is unusable
// afterwards.
func (m *MCP23017) Close() error {
	m.mx.Lock()
	defer m.mx.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	if c, ok := m.transport.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// acquire locks the handle; the caller unlocks on success.
func (m *MCP23017) acquire() error {
	m.mx.Lock()
	if m.closed {
		m.mx.Unlock()
		return analogbar.ErrClosed
	}
	return nil
}

func (m *MCP23017) updateRegistry(ctx context.Context, reg registry, mask byte, set bool) error {
	current, err := m.readRegistry(ctx, reg)
	if err != nil {
		return err
	}
	next := current &^ mask
	if set {
		next |= mask
	}
	slog.Debug("mcp23017 registry update", "address", fmt.Sprintf("%#x", m.address), "registry", reg.String(),
		"from", fmt.Sprintf("%08b", current), "to", fmt.Sprintf("%08b", next))
	return m.writeRegistry(ctx, reg, next)
}

func (m *MCP23017) writeRegistry(ctx context.Context, reg registry, value byte) error {
	buf := []byte{BankAddr[m.bank][reg], value}
	return m.retry(ctx, func() error {
		return m.transport.WriteToAddr(ctx, m.address, buf)
	})
}

func (m *MCP23017) readRegistry(ctx context.Context, reg registry) (byte, error) {
	addr := BankAddr[m.bank][reg]
	buf := make([]byte, 1)
	err := m.retry(ctx, func() error {
		err := m.transport.WriteToAddr(ctx, m.address, []byte{addr})
		if err != nil {
			return fmt.Errorf("could not set I/O registry address: %w", err)
		}
		err = m.transport.ReadFromAddr(ctx, m.address, buf)
		if err != nil {
			return fmt.Errorf("could not read %s: %w", reg, err)
		}
		return nil
	})
	return buf[0], err
}

func (m *MCP23017) retry(ctx context.Context, op func() error) error {
	var err error
	for i := m.retryLimit; i > 0; i-- {
		err = op()
		if err == nil {
			return nil
		}
		if !errors.Is(err, analogbar.ErrBusBusy) {
			return err
		}
		// try to release the bus
		_ = m.transport.Release(ctx)
	}
	return fmt.Errorf("retry limit reached: %w", err)
}
