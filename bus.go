package analogbar

import (
	"context"
	"errors"
	"fmt"
)

var ErrBusBusy = fmt.Errorf("I2C engine is busy (command not completed)")

// ErrOutOfRange is wrapped by every argument validation error (pin, port,
// channel). It is returned before any bus transaction is issued.
var ErrOutOfRange = errors.New("argument out of range")

// ErrClosed is returned by device handles after Close.
var ErrClosed = errors.New("device closed")

type AddressableReader interface {
	ReadFromAddr(ctx context.Context, address byte, buffer []byte) error
}

type AddressableWriter interface {
	WriteToAddr(ctx context.Context, address byte, buffer []byte) error
	Release(ctx context.Context) error
}

type I2CBus interface {
	AddressableReader
	AddressableWriter
}

// SPIConn is a full-duplex connection to a single device on a SPI bus
// (bus + chip select). Tx clocks w out while filling r; both buffers have the
// same length.
type SPIConn interface {
	Tx(ctx context.Context, w, r []byte) error
}
