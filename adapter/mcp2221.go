// Package adapter drives the Microchip MCP2221 USB-to-I2C bridge over HID.
package adapter

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/karalabe/hid"

	"github.com/mklimuk/analogbar"
	"github.com/mklimuk/analogbar/snsctx"
)

const VendorID = 0x04D8
const ProductID = 0x00DD

const reportSize = 64

const (
	cmdStatus     = 0x10
	cmdI2CWrite   = 0x90
	cmdI2CRead    = 0x91
	cmdI2CGetData = 0x40
	cancelI2C     = 0x10
	statusBusy    = 0x01
	readEngineErr = 0x41
	readSizeErr   = 127
)

var ErrDeviceNotFound = errors.New("MCP2221 device not found")
var ErrAmbiguousDevice = errors.New("ambiguous device identification")
var ErrCommandFailed = errors.New("command failed")

// maxPayload is what fits in one write report after the 4 header bytes.
const maxPayload = reportSize - 4

type hidDevice interface {
	Write(b []byte) (int, error)
	Read(b []byte) (int, error)
	Close() error
}

type MCP2221 struct {
	mx           sync.Mutex
	dev          hidDevice
	index        int
	request      []byte
	response     []byte
	responseWait time.Duration
	open         func(index int) (hidDevice, error)
}

type MCP2221Status struct {
	I2CDataBufferCounter   int    `yaml:"i2c_buffer_counter"`
	I2CSpeedDivider        int    `yaml:"i2c_speed_divider"`
	I2CTimeout             int    `yaml:"i2c_timeout"`
	CurrentAddress         string `yaml:"current_address"`
	LastWriteRequestedSize uint16 `yaml:"last_write_requested"`
	LastWriteSentSize      uint16 `yaml:"last_write_sent"`
	ReadPending            int    `yaml:"read_pending"`
}

type Option func(*MCP2221)

// WithDeviceIndex selects one of several attached bridges, in enumeration
// order.
func WithDeviceIndex(index int) Option {
	return func(d *MCP2221) {
		d.index = index
	}
}

// WithResponseWait sets the pause between a request and reading its response.
func WithResponseWait(wait time.Duration) Option {
	return func(d *MCP2221) {
		d.responseWait = wait
	}
}

func NewMCP2221(opts ...Option) *MCP2221 {
	d := &MCP2221{
		index:        -1,
		request:      make([]byte, reportSize),
		response:     make([]byte, reportSize),
		responseWait: 50 * time.Millisecond,
		open:         openHID,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func openHID(index int) (hidDevice, error) {
	devs := hid.Enumerate(VendorID, ProductID)
	if len(devs) == 0 {
		return nil, ErrDeviceNotFound
	}
	if index < 0 {
		if len(devs) > 1 {
			return nil, ErrAmbiguousDevice
		}
		index = 0
	}
	if index >= len(devs) {
		return nil, fmt.Errorf("no device with index %d: %w", index, ErrDeviceNotFound)
	}
	dev, err := devs[index].Open()
	if err != nil {
		return nil, fmt.Errorf("error opening device: %w", err)
	}
	return dev, nil
}

// Init opens the HID device. Calling it more than once is a no-op; the bus
// methods call it on first use.
func (d *MCP2221) Init() error {
	d.mx.Lock()
	defer d.mx.Unlock()
	return d.init()
}

func (d *MCP2221) init() error {
	if d.dev != nil {
		return nil
	}
	dev, err := d.open(d.index)
	if err != nil {
		return err
	}
	d.dev = dev
	return nil
}

func (d *MCP2221) Close() error {
	d.mx.Lock()
	defer d.mx.Unlock()
	if d.dev == nil {
		return nil
	}
	err := d.dev.Close()
	d.dev = nil
	return err
}

func (d *MCP2221) WriteToAddr(ctx context.Context, address byte, buffer []byte) error {
	if len(buffer) > maxPayload {
		return fmt.Errorf("write of %d bytes: %w", len(buffer), analogbar.ErrOutOfRange)
	}
	d.mx.Lock()
	defer d.mx.Unlock()
	encodeWrite(d.request, address, buffer)
	err := d.send(ctx)
	if err != nil {
		return fmt.Errorf("write to %#x failed: %w", address, err)
	}
	if d.response[1] == statusBusy {
		slog.Debug("adapter busy", "address", fmt.Sprintf("%#x", address))
		return analogbar.ErrBusBusy
	}
	return nil
}

func (d *MCP2221) ReadFromAddr(ctx context.Context, address byte, buffer []byte) error {
	if len(buffer) > maxPayload {
		return fmt.Errorf("read of %d bytes: %w", len(buffer), analogbar.ErrOutOfRange)
	}
	d.mx.Lock()
	defer d.mx.Unlock()
	encodeRead(d.request, address, len(buffer))
	err := d.send(ctx)
	if err != nil {
		return fmt.Errorf("bus read from %#x failed: %w", address, err)
	}
	if d.response[1] == statusBusy {
		return analogbar.ErrBusBusy
	}
	encodeCommand(d.request, cmdI2CGetData)
	err = d.send(ctx)
	if err != nil {
		return fmt.Errorf("error getting read data from adapter: %w", err)
	}
	return decodeReadData(d.response, buffer)
}

func (d *MCP2221) Status(ctx context.Context) (*MCP2221Status, error) {
	d.mx.Lock()
	defer d.mx.Unlock()
	encodeCommand(d.request, cmdStatus)
	err := d.send(ctx)
	if err != nil {
		return nil, fmt.Errorf("status request failed: %w", err)
	}
	return decodeStatus(d.response), nil
}

// Release cancels the current I2C transfer so the engine can accept a new one.
func (d *MCP2221) Release(ctx context.Context) error {
	_, err := d.ReleaseBus(ctx)
	return err
}

func (d *MCP2221) ReleaseBus(ctx context.Context) (*MCP2221Status, error) {
	d.mx.Lock()
	defer d.mx.Unlock()
	encodeCommand(d.request, cmdStatus)
	d.request[2] = cancelI2C
	err := d.send(ctx)
	if err != nil {
		return nil, fmt.Errorf("release request failed: %w", err)
	}
	return decodeStatus(d.response), nil
}

func (d *MCP2221) send(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := d.init(); err != nil {
		return err
	}
	clear(d.response)
	snsctx.Dump(ctx, "sending message to adapter", d.request)
	n, err := d.dev.Write(d.request)
	if err != nil {
		return fmt.Errorf("could not write request: %w", err)
	}
	if n != reportSize {
		return fmt.Errorf("short write: %d", n)
	}
	if d.responseWait > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(d.responseWait):
		}
	}
	n, err = d.dev.Read(d.response)
	if err != nil {
		return fmt.Errorf("could not read response: %w", err)
	}
	if n != reportSize {
		return fmt.Errorf("short read: %d", n)
	}
	snsctx.Dump(ctx, "read message from adapter", d.response)
	return nil
}

func encodeCommand(req []byte, cmd byte) {
	clear(req)
	req[0] = cmd
}

// encodeWrite fills an "I2C write data" report: length (LE), 8-bit address,
// payload.
func encodeWrite(req []byte, address byte, data []byte) {
	encodeCommand(req, cmdI2CWrite)
	binary.LittleEndian.PutUint16(req[1:3], uint16(len(data)))
	req[3] = address << 1
	copy(req[4:], data)
}

func encodeRead(req []byte, address byte, size int) {
	encodeCommand(req, cmdI2CRead)
	binary.LittleEndian.PutUint16(req[1:3], uint16(size))
	req[3] = address<<1 | 1
}

func decodeReadData(resp []byte, buffer []byte) error {
	if resp[1] == readEngineErr {
		return fmt.Errorf("error reading the I2C slave data from the I2C engine: %w", ErrCommandFailed)
	}
	if resp[3] == readSizeErr || int(resp[3]) != len(buffer) {
		return fmt.Errorf("invalid data size byte; expected %d, got %d", len(buffer), resp[3])
	}
	copy(buffer, resp[4:])
	return nil
}

func decodeStatus(buffer []byte) *MCP2221Status {
	/*
		9-10:  requested I2C transfer length (LE)
		11-12: already transferred number of bytes (LE)
		13:    internal I2C data buffer counter
		14:    current I2C speed divider
		15:    current I2C timeout
		16-17: I2C address being used
		25:    read pending
	*/
	return &MCP2221Status{
		I2CDataBufferCounter:   int(buffer[13]),
		I2CSpeedDivider:        int(buffer[14]),
		I2CTimeout:             int(buffer[15]),
		ReadPending:            int(buffer[25]),
		CurrentAddress:         hex.EncodeToString(buffer[16:18]),
		LastWriteRequestedSize: binary.LittleEndian.Uint16(buffer[9:11]),
		LastWriteSentSize:      binary.LittleEndian.Uint16(buffer[11:13]),
	}
}
