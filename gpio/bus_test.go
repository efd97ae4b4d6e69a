package gpio

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"
)

// MockI2CBus is a mock implementation of analogbar.I2CBus using testify/mock
type MockI2CBus struct {
	mock.Mock
}

func (m *MockI2CBus) WriteToAddr(ctx context.Context, address byte, buffer []byte) error {
	args := m.Called(ctx, address, append([]byte(nil), buffer...))
	return args.Error(0)
}

func (m *MockI2CBus) ReadFromAddr(ctx context.Context, address byte, buffer []byte) error {
	args := m.Called(ctx, address, buffer)
	if data, ok := args.Get(0).([]byte); ok && len(data) <= len(buffer) {
		copy(buffer, data)
	}
	return args.Error(1)
}

func (m *MockI2CBus) Release(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// registerFile emulates an MCP23017 in the power-on register layout. Reading
// GPIO returns the latch for output pins and the externally driven level for
// inputs, inverted where IPOL is set, as the chip does.
type registerFile struct {
	mx       sync.Mutex
	regs     [0x16]byte
	pointer  byte
	external [2]byte
	writes   int
	ops      int
	closed   bool
}

func (f *registerFile) WriteToAddr(_ context.Context, _ byte, buffer []byte) error {
	f.mx.Lock()
	defer f.mx.Unlock()
	f.ops++
	if len(buffer) == 0 {
		return nil
	}
	f.pointer = buffer[0]
	if len(buffer) > 1 {
		f.writes++
		reg := f.pointer
		// writing GPIO modifies the output latch
		if reg == 0x12 || reg == 0x13 {
			reg += 2
		}
		f.regs[reg] = buffer[1]
	}
	return nil
}

func (f *registerFile) ReadFromAddr(_ context.Context, _ byte, buffer []byte) error {
	f.mx.Lock()
	defer f.mx.Unlock()
	f.ops++
	buffer[0] = f.value(f.pointer)
	return nil
}

func (f *registerFile) Release(context.Context) error {
	return nil
}

func (f *registerFile) Close() error {
	f.closed = true
	return nil
}

func (f *registerFile) value(reg byte) byte {
	if reg != 0x12 && reg != 0x13 {
		return f.regs[reg]
	}
	port := reg - 0x12
	iodir := f.regs[0x00+port]
	ipol := f.regs[0x02+port]
	olat := f.regs[0x14+port]
	return (olat &^ iodir) | ((f.external[port] ^ ipol) & iodir)
}

func (f *registerFile) transactions() int {
	f.mx.Lock()
	defer f.mx.Unlock()
	return f.ops
}
