package board

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/mklimuk/analogbar/adc"
)

type fakeConn struct {
	bytes.Buffer
	written [][]byte
	closed  bool
}

func (f *fakeConn) Write(p []byte) (int, error) {
	f.written = append(f.written, append([]byte(nil), p...))
	return len(p), nil
}

func (f *fakeConn) Close() error {
	f.closed = true
	return nil
}

func TestI2CBus_OpensOneConnectionPerAddress(t *testing.T) {
	opened := map[byte]*fakeConn{}
	b := newI2CBus(func(address byte) (io.ReadWriteCloser, error) {
		c := &fakeConn{}
		c.WriteString("\x5a")
		opened[address] = c
		return c, nil
	})
	ctx := context.Background()
	require.NoError(t, b.WriteToAddr(ctx, 0x20, []byte{0x00, 0xFF}))
	require.NoError(t, b.WriteToAddr(ctx, 0x20, []byte{0x01, 0xFF}))
	buf := make([]byte, 1)
	require.NoError(t, b.ReadFromAddr(ctx, 0x21, buf))

	assert.Len(t, opened, 2)
	assert.Equal(t, [][]byte{{0x00, 0xFF}, {0x01, 0xFF}}, opened[0x20].written)
	assert.Equal(t, byte(0x5a), buf[0])

	require.NoError(t, b.Close())
	assert.True(t, opened[0x20].closed)
	assert.True(t, opened[0x21].closed)
}

func TestI2CBus_ShortRead(t *testing.T) {
	b := newI2CBus(func(address byte) (io.ReadWriteCloser, error) {
		return &fakeConn{}, nil
	})
	err := b.ReadFromAddr(context.Background(), 0x20, make([]byte, 1))
	assert.Error(t, err)
}

func TestI2CBus_OpenError(t *testing.T) {
	openErr := errors.New("no such bus")
	b := newI2CBus(func(address byte) (io.ReadWriteCloser, error) {
		return nil, openErr
	})
	err := b.WriteToAddr(context.Background(), 0x20, []byte{0x00})
	assert.ErrorIs(t, err, openErr)
}

type mockTransceiver struct {
	mock.Mock
}

func (m *mockTransceiver) ReadCommandData(command []byte, data []byte) error {
	args := m.Called(append([]byte(nil), command...))
	if rx, ok := args.Get(0).([]byte); ok {
		copy(data, rx)
	}
	return args.Error(1)
}

func (m *mockTransceiver) Close() error {
	return m.Called().Error(0)
}

func TestSPIConn_ConverterFrame(t *testing.T) {
	tr := new(mockTransceiver)
	tr.On("ReadCommandData", []byte{0x06, 0x40, 0x00}).Return([]byte{0x00, 0x0A, 0xFF}, nil).Once()
	tr.On("Close").Return(nil).Once()

	d := adc.NewMCP3208(&SPIConn{conn: tr})
	value, err := d.Sample(context.Background(), 1, adc.SingleEnded)
	require.NoError(t, err)
	assert.Equal(t, uint16(2815), value)
	require.NoError(t, d.Close())
	tr.AssertExpectations(t)
}

func TestSPIConn_LengthMismatch(t *testing.T) {
	tr := new(mockTransceiver)
	s := &SPIConn{conn: tr}
	err := s.Tx(context.Background(), make([]byte, 3), make([]byte, 2))
	assert.Error(t, err)
	tr.AssertNotCalled(t, "ReadCommandData", mock.Anything)
}
