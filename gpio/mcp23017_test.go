package gpio

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/mklimuk/analogbar"
)

func newExpander(t *testing.T, f *registerFile) *MCP23017 {
	t.Helper()
	exp, err := NewMCP23017(context.Background(), f)
	require.NoError(t, err)
	return exp
}

func TestResolve(t *testing.T) {
	for pin := 0; pin < 16; pin++ {
		t.Run(fmt.Sprintf("pin %d", pin), func(t *testing.T) {
			p, err := Resolve(pin)
			require.NoError(t, err)
			expected := PortA
			if pin >= 8 {
				expected = PortB
			}
			assert.Equal(t, expected, p.Port)
			assert.Equal(t, uint8(pin%8), p.Bit)
		})
	}
	for _, pin := range []int{-1, 16, 255} {
		_, err := Resolve(pin)
		assert.ErrorIs(t, err, ErrPinOutOfRange)
		assert.ErrorIs(t, err, analogbar.ErrOutOfRange)
	}
}

func TestResolvePort(t *testing.T) {
	tests := []struct {
		name string
		port Port
		pin  int
		err  error
	}{
		{"A0", PortA, 0, nil},
		{"B7", PortB, 7, nil},
		{"pin 8 with port", PortA, 8, ErrPinOutOfRange},
		{"negative pin", PortB, -1, ErrPinOutOfRange},
		{"port 2", Port(2), 3, ErrInvalidPort},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			p, err := ResolvePort(test.port, test.pin)
			if test.err != nil {
				assert.ErrorIs(t, err, test.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, Pin{Port: test.port, Bit: uint8(test.pin)}, p)
		})
	}
}

func TestParsePort(t *testing.T) {
	p, err := ParsePort("a")
	require.NoError(t, err)
	assert.Equal(t, PortA, p)
	p, err = ParsePort("B")
	require.NoError(t, err)
	assert.Equal(t, PortB, p)
	_, err = ParsePort("C")
	assert.ErrorIs(t, err, analogbar.ErrOutOfRange)
}

func TestNewMCP23017_ResetsDirections(t *testing.T) {
	bus := new(MockI2CBus)
	ctx := context.Background()
	first := bus.On("WriteToAddr", ctx, byte(DefaultMCP23017Address), []byte{0x00, 0xFF}).Return(nil).Once()
	bus.On("WriteToAddr", ctx, byte(DefaultMCP23017Address), []byte{0x01, 0xFF}).Return(nil).Once().NotBefore(first)

	exp, err := NewMCP23017(ctx, bus)
	require.NoError(t, err)
	assert.Equal(t, byte(DefaultMCP23017Address), exp.Address())
	bus.AssertExpectations(t)
	bus.AssertNotCalled(t, "ReadFromAddr", mock.Anything, mock.Anything, mock.Anything)
}

func TestNewMCP23017_OverridesPreviousState(t *testing.T) {
	f := &registerFile{}
	f.regs[0x00] = 0x0F
	f.regs[0x01] = 0x00
	newExpander(t, f)
	assert.Equal(t, byte(0xFF), f.regs[0x00])
	assert.Equal(t, byte(0xFF), f.regs[0x01])
}

func TestNewMCP23017_Address(t *testing.T) {
	bus := new(MockI2CBus)
	bus.On("WriteToAddr", mock.Anything, byte(0x27), mock.Anything).Return(nil).Twice()
	_, err := NewMCP23017(context.Background(), bus, WithAddress(0x27))
	require.NoError(t, err)
	bus.AssertExpectations(t)
}

func TestNewMCP23017_SeparateBank(t *testing.T) {
	bus := new(MockI2CBus)
	bus.On("WriteToAddr", mock.Anything, byte(DefaultMCP23017Address), []byte{0x00, 0xFF}).Return(nil).Once()
	bus.On("WriteToAddr", mock.Anything, byte(DefaultMCP23017Address), []byte{0x10, 0xFF}).Return(nil).Once()
	_, err := NewMCP23017(context.Background(), bus, WithBank(BankSeparate))
	require.NoError(t, err)
	bus.AssertExpectations(t)
}

func TestNewMCP23017_TransportError(t *testing.T) {
	bus := new(MockI2CBus)
	busErr := errors.New("nack")
	bus.On("WriteToAddr", mock.Anything, mock.Anything, mock.Anything).Return(busErr).Once()
	_, err := NewMCP23017(context.Background(), bus)
	assert.ErrorIs(t, err, busErr)
	bus.AssertNumberOfCalls(t, "WriteToAddr", 1)
}

func TestMCP23017_WriteThenRead(t *testing.T) {
	ctx := context.Background()
	for pin := 0; pin < 16; pin++ {
		t.Run(fmt.Sprintf("pin %d", pin), func(t *testing.T) {
			exp := newExpander(t, &registerFile{})
			require.NoError(t, exp.SetupPin(ctx, pin, Output, false))
			for _, level := range []Level{High, Low, High} {
				require.NoError(t, exp.DigitalWrite(ctx, pin, level))
				got, err := exp.DigitalRead(ctx, pin)
				require.NoError(t, err)
				assert.Equal(t, level, got)
			}
		})
	}
}

func TestMCP23017_SetupPinPreservesOtherBits(t *testing.T) {
	ctx := context.Background()
	f := &registerFile{}
	exp := newExpander(t, f)

	require.NoError(t, exp.SetupPin(ctx, 3, Output, false))
	assert.Equal(t, byte(0b11110111), f.regs[0x00])
	assert.Equal(t, byte(0xFF), f.regs[0x01])

	require.NoError(t, exp.SetupPin(ctx, 12, Output, false))
	assert.Equal(t, byte(0b11101111), f.regs[0x01])

	require.NoError(t, exp.SetupPin(ctx, 3, Input, true))
	assert.Equal(t, byte(0xFF), f.regs[0x00])
	assert.Equal(t, byte(0b00001000), f.regs[0x0C])

	require.NoError(t, exp.SetupPin(ctx, 3, Input, false))
	assert.Equal(t, byte(0b00001000), f.regs[0x0C])
	assert.Equal(t, byte(0x00), f.regs[0x0D])
}

func TestMCP23017_SetupInputKeepsPullUps(t *testing.T) {
	ctx := context.Background()
	f := &registerFile{}
	exp := newExpander(t, f)

	require.NoError(t, exp.PullUpPort(ctx, PortA, 0xFF))
	require.NoError(t, exp.SetupPin(ctx, 3, Output, false))
	before := f.transactions()
	require.NoError(t, exp.SetupPin(ctx, 3, Input, false))

	assert.Equal(t, byte(0xFF), f.regs[0x0C])
	assert.Equal(t, byte(0xFF), f.regs[0x00])
	// IODIRA read-modify-write only
	assert.Equal(t, 3, f.transactions()-before)
}

func TestMCP23017_SetupPortPin(t *testing.T) {
	ctx := context.Background()
	f := &registerFile{}
	exp := newExpander(t, f)

	require.NoError(t, exp.SetupPortPin(ctx, PortB, 5, Input, true))
	assert.Equal(t, byte(0xFF), f.regs[0x01])
	assert.Equal(t, byte(0b00100000), f.regs[0x0D])
	assert.Equal(t, byte(0x00), f.regs[0x0C])

	require.NoError(t, exp.SetupPortPin(ctx, PortA, 7, Output, false))
	assert.Equal(t, byte(0x7F), f.regs[0x00])
}

func TestMCP23017_RejectsBeforeTransaction(t *testing.T) {
	ctx := context.Background()
	f := &registerFile{}
	exp := newExpander(t, f)
	before := f.transactions()

	tests := []struct {
		name string
		call func() error
		err  error
	}{
		{"setup pin 16", func() error { return exp.SetupPin(ctx, 16, Output, false) }, ErrPinOutOfRange},
		{"setup port pin 8", func() error { return exp.SetupPortPin(ctx, PortA, 8, Input, false) }, ErrPinOutOfRange},
		{"setup invalid port", func() error { return exp.SetupPortPin(ctx, Port(3), 1, Input, false) }, ErrInvalidPort},
		{"invalid direction", func() error { return exp.SetupPin(ctx, 1, Direction(2), false) }, ErrInvalidDirection},
		{"pull-up on output", func() error { return exp.SetupPin(ctx, 1, Output, true) }, ErrPullUpOnOutput},
		{"write pin 16", func() error { return exp.DigitalWrite(ctx, 16, High) }, ErrPinOutOfRange},
		{"read pin -1", func() error { _, err := exp.DigitalRead(ctx, -1); return err }, ErrPinOutOfRange},
		{"polarity pin 20", func() error { return exp.SetPolarity(ctx, 20, true) }, ErrPinOutOfRange},
		{"write invalid port", func() error { return exp.WritePort(ctx, Port(2), 0x01) }, ErrInvalidPort},
		{"read invalid port", func() error { _, err := exp.ReadPort(ctx, Port(-2)); return err }, ErrInvalidPort},
		{"setup port invalid", func() error { return exp.SetupPort(ctx, Port(2), 0x00) }, ErrInvalidPort},
		{"pull-up invalid port", func() error { return exp.PullUpPort(ctx, Port(2), 0x00) }, ErrInvalidPort},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			assert.ErrorIs(t, test.call(), test.err)
			assert.Equal(t, before, f.transactions())
		})
	}
}

func TestMCP23017_WritePortOverwrites(t *testing.T) {
	bus := new(MockI2CBus)
	ctx := context.Background()
	bus.On("WriteToAddr", ctx, mock.Anything, mock.Anything).Return(nil).Twice()
	exp, err := NewMCP23017(ctx, bus)
	require.NoError(t, err)

	bus.On("WriteToAddr", ctx, byte(DefaultMCP23017Address), []byte{0x15, 0b00000111}).Return(nil).Once()
	require.NoError(t, exp.WritePort(ctx, PortB, 0b00000111))
	bus.AssertExpectations(t)
	bus.AssertNotCalled(t, "ReadFromAddr", mock.Anything, mock.Anything, mock.Anything)
}

func TestMCP23017_WritePortIdempotent(t *testing.T) {
	ctx := context.Background()
	f := &registerFile{}
	exp := newExpander(t, f)
	require.NoError(t, exp.SetupPort(ctx, PortB, 0x00))

	require.NoError(t, exp.WritePort(ctx, PortB, 0x3F))
	first, err := exp.ReadPort(ctx, PortB)
	require.NoError(t, err)
	require.NoError(t, exp.WritePort(ctx, PortB, 0x3F))
	second, err := exp.ReadPort(ctx, PortB)
	require.NoError(t, err)

	assert.Equal(t, byte(0x3F), first)
	assert.Equal(t, first, second)
	assert.Equal(t, byte(0x3F), f.regs[0x15])
}

func TestMCP23017_ReadInputs(t *testing.T) {
	ctx := context.Background()
	f := &registerFile{}
	f.external = [2]byte{0b10000001, 0b01000000}
	exp := newExpander(t, f)

	data, err := exp.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte{0b10000001, 0b01000000}, data)

	level, err := exp.DigitalRead(ctx, 14)
	require.NoError(t, err)
	assert.Equal(t, High, level)
	level, err = exp.DigitalRead(ctx, 13)
	require.NoError(t, err)
	assert.Equal(t, Low, level)
}

func TestMCP23017_SetPolarity(t *testing.T) {
	ctx := context.Background()
	f := &registerFile{}
	f.external = [2]byte{0x00, 0x00}
	exp := newExpander(t, f)

	require.NoError(t, exp.SetPolarity(ctx, 9, true))
	assert.Equal(t, byte(0b00000010), f.regs[0x03])
	level, err := exp.DigitalRead(ctx, 9)
	require.NoError(t, err)
	assert.Equal(t, High, level)

	require.NoError(t, exp.SetPolarity(ctx, 9, false))
	assert.Equal(t, byte(0x00), f.regs[0x03])
	level, err = exp.DigitalRead(ctx, 9)
	require.NoError(t, err)
	assert.Equal(t, Low, level)
}

func TestMCP23017_Settings(t *testing.T) {
	ctx := context.Background()
	f := &registerFile{}
	exp := newExpander(t, f)
	require.NoError(t, exp.WriteSettings(ctx, 0b00100000))
	assert.Equal(t, byte(0b00100000), f.regs[0x0A])
	res, err := exp.ReadSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, byte(0b00100000), res)

	require.NoError(t, exp.PullUpPort(ctx, PortA, 0xF0))
	assert.Equal(t, byte(0xF0), f.regs[0x0C])
}

func TestMCP23017_TransportErrorPropagates(t *testing.T) {
	bus := new(MockI2CBus)
	ctx := context.Background()
	bus.On("WriteToAddr", ctx, mock.Anything, mock.Anything).Return(nil).Twice()
	exp, err := NewMCP23017(ctx, bus)
	require.NoError(t, err)

	busErr := errors.New("arbitration lost")
	bus.On("WriteToAddr", ctx, byte(DefaultMCP23017Address), []byte{0x14}).Return(nil).Once()
	bus.On("ReadFromAddr", ctx, byte(DefaultMCP23017Address), mock.Anything).Return(nil, busErr).Once()
	err = exp.DigitalWrite(ctx, 2, High)
	assert.ErrorIs(t, err, busErr)
	bus.AssertExpectations(t)
	bus.AssertNotCalled(t, "Release", mock.Anything)
}

func TestMCP23017_RetryOnBusyBus(t *testing.T) {
	bus := new(MockI2CBus)
	ctx := context.Background()
	bus.On("WriteToAddr", ctx, byte(DefaultMCP23017Address), []byte{0x00, 0xFF}).Return(analogbar.ErrBusBusy).Once()
	bus.On("Release", ctx).Return(nil).Once()
	bus.On("WriteToAddr", ctx, byte(DefaultMCP23017Address), []byte{0x00, 0xFF}).Return(nil).Once()
	bus.On("WriteToAddr", ctx, byte(DefaultMCP23017Address), []byte{0x01, 0xFF}).Return(nil).Once()

	_, err := NewMCP23017(ctx, bus, WithRetryLimit(2))
	require.NoError(t, err)
	bus.AssertExpectations(t)
}

func TestMCP23017_BusyWithoutRetry(t *testing.T) {
	bus := new(MockI2CBus)
	ctx := context.Background()
	bus.On("WriteToAddr", ctx, mock.Anything, mock.Anything).Return(analogbar.ErrBusBusy).Once()
	bus.On("Release", ctx).Return(nil).Once()

	_, err := NewMCP23017(ctx, bus)
	assert.ErrorIs(t, err, analogbar.ErrBusBusy)
	bus.AssertNumberOfCalls(t, "WriteToAddr", 1)
}

func TestMCP23017_Close(t *testing.T) {
	ctx := context.Background()
	f := &registerFile{}
	exp := newExpander(t, f)

	require.NoError(t, exp.Close())
	assert.True(t, f.closed)
	require.NoError(t, exp.Close())

	assert.ErrorIs(t, exp.WritePort(ctx, PortA, 0x00), analogbar.ErrClosed)
	_, err := exp.DigitalRead(ctx, 0)
	assert.ErrorIs(t, err, analogbar.ErrClosed)
}
