// Package adc provides a driver for the Microchip MCP3208 8-channel 12-bit
// analog-to-digital converter.
//
// Each conversion is one 3-byte full-duplex SPI exchange:
//
//	tx: 0 0 0 0 0 S M D2 | D1 D0 x x x x x x | x x x x x x x x
//	rx: ? ? ? ? ? ? ? ?  | ? ? ? 0 B11..B8   | B7 .. B0
//
// where S is the start bit, M selects single-ended (1) or differential (0)
// inputs and D2..D0 is the channel. The device is used in SPI mode 0 at up to
// 1 MHz with a 2.7 V supply.
//
// Datasheet: https://ww1.microchip.com/downloads/en/DeviceDoc/21298e.pdf
package adc

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/mklimuk/analogbar"
)

// Resolution is the number of distinct codes the converter returns.
const Resolution = 4096

// MaxValue is the largest sample the converter returns.
const MaxValue = Resolution - 1

var (
	ErrChannelOutOfRange = fmt.Errorf("channel %w", analogbar.ErrOutOfRange)
	ErrInvalidMode       = fmt.Errorf("mode %w", analogbar.ErrOutOfRange)
)

// Mode selects how the input multiplexer is configured for a conversion.
type Mode byte

const (
	// Differential measures the voltage between a pair of inputs (channels 0-3).
	Differential Mode = 0
	// SingleEnded measures one input against ground (channels 0-7).
	SingleEnded Mode = 1
)

func (m Mode) String() string {
	switch m {
	case SingleEnded:
		return "single"
	case Differential:
		return "diff"
	default:
		return fmt.Sprintf("Mode(%d)", byte(m))
	}
}

// ParseMode accepts "single" and "diff".
func ParseMode(s string) (Mode, error) {
	switch s {
	case "single", "single-ended", "se":
		return SingleEnded, nil
	case "diff", "differential":
		return Differential, nil
	}
	return 0, fmt.Errorf("%w: %q (expected single or diff)", ErrInvalidMode, s)
}

// Channels returns the number of channels available in the mode.
func (m Mode) Channels() int {
	if m == Differential {
		return 4
	}
	return 8
}

// EncodeCommand builds the outbound frame selecting channel in mode.
func EncodeCommand(channel int, mode Mode) ([3]byte, error) {
	var tx [3]byte
	if mode != SingleEnded && mode != Differential {
		return tx, fmt.Errorf("%w: %d", ErrInvalidMode, byte(mode))
	}
	if channel < 0 || channel >= mode.Channels() {
		return tx, fmt.Errorf("%w: %d (expected 0-%d in %s mode)", ErrChannelOutOfRange, channel, mode.Channels()-1, mode)
	}
	ch := byte(channel)
	tx[0] = 0x04 | byte(mode)<<1 | (ch&0x04)>>2
	tx[1] = (ch & 0x03) << 6
	return tx, nil
}

// DecodeSample extracts the 12-bit conversion result from the inbound frame.
func DecodeSample(rx [3]byte) uint16 {
	return uint16(rx[1]&0x0F)<<8 | uint16(rx[2])
}

// ToVoltage scales a sample linearly to the reference voltage.
func ToVoltage(sample uint16, vref float64) float64 {
	return float64(sample) * vref / Resolution
}

// MCP3208 is a handle to one converter (one chip select).
type MCP3208 struct {
	mx     sync.Mutex
	conn   analogbar.SPIConn
	closed bool
}

func NewMCP3208(conn analogbar.SPIConn) *MCP3208 {
	return &MCP3208{conn: conn}
}

// Sample performs one conversion on channel and returns the raw 12-bit value.
// Channel and mode are validated before the bus is touched.
func (d *MCP3208) Sample(ctx context.Context, channel int, mode Mode) (uint16, error) {
	tx, err := EncodeCommand(channel, mode)
	if err != nil {
		return 0, err
	}
	d.mx.Lock()
	defer d.mx.Unlock()
	if d.closed {
		return 0, analogbar.ErrClosed
	}
	var rx [3]byte
	err = d.conn.Tx(ctx, tx[:], rx[:])
	if err != nil {
		return 0, fmt.Errorf("mcp3208: conversion on channel %d failed: %w", channel, err)
	}
	value := DecodeSample(rx)
	slog.Debug("mcp3208 sample", "channel", channel, "mode", mode.String(), "value", value)
	return value, nil
}

// Voltage performs one conversion and scales it to vref.
func (d *MCP3208) Voltage(ctx context.Context, channel int, vref float64, mode Mode) (float64, error) {
	value, err := d.Sample(ctx, channel, mode)
	if err != nil {
		return 0, err
	}
	return ToVoltage(value, vref), nil
}

// SampleAll converts every channel available in mode, in channel order.
func (d *MCP3208) SampleAll(ctx context.Context, mode Mode) ([]uint16, error) {
	if mode != SingleEnded && mode != Differential {
		return nil, fmt.Errorf("%w: %d", ErrInvalidMode, byte(mode))
	}
	res := make([]uint16, mode.Channels())
	for ch := range res {
		value, err := d.Sample(ctx, ch, mode)
		if err != nil {
			return nil, err
		}
		res[ch] = value
	}
	return res, nil
}

// Close releases the SPI connection when it can be closed.
func (d *MCP3208) Close() error {
	d.mx.Lock()
	defer d.mx.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	if c, ok := d.conn.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
