package gpio

import (
	"errors"
	"fmt"
	"strings"

	"github.com/mklimuk/analogbar"
)

var (
	ErrPinOutOfRange    = fmt.Errorf("pin %w", analogbar.ErrOutOfRange)
	ErrInvalidPort      = fmt.Errorf("port %w", analogbar.ErrOutOfRange)
	ErrInvalidDirection = fmt.Errorf("direction %w", analogbar.ErrOutOfRange)
	ErrPullUpOnOutput   = errors.New("pull-up can only be enabled on input pins")
)

// Port selects one of the two 8-bit banks of the expander.
type Port int

const (
	PortA Port = iota
	PortB

	portAuto Port = -1
)

func (p Port) String() string {
	switch p {
	case PortA:
		return "A"
	case PortB:
		return "B"
	default:
		return fmt.Sprintf("Port(%d)", int(p))
	}
}

// ParsePort accepts "A" or "B" in either case.
func ParsePort(s string) (Port, error) {
	switch strings.ToUpper(s) {
	case "A":
		return PortA, nil
	case "B":
		return PortB, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidPort, s)
}

func (p Port) valid() bool {
	return p == PortA || p == PortB
}

// pick returns the registry of the pair that belongs to the port.
func (p Port) pick(a, b registry) registry {
	if p == PortB {
		return b
	}
	return a
}

// Direction is the IODIR bit value of a pin.
type Direction byte

const (
	Output Direction = 0
	Input  Direction = 1
)

func (d Direction) String() string {
	switch d {
	case Input:
		return "input"
	case Output:
		return "output"
	default:
		return fmt.Sprintf("Direction(%d)", byte(d))
	}
}

// Level is a logic level of a single pin.
type Level byte

const (
	Low  Level = 0
	High Level = 1
)

// Pin is a pin resolved to its port and bit within the port.
type Pin struct {
	Port Port
	Bit  uint8
}

func (p Pin) mask() byte {
	return 1 << p.Bit
}

func (p Pin) String() string {
	return fmt.Sprintf("%s%d", p.Port, p.Bit)
}

// Resolve maps a flattened pin number (0-15) to its port and bit. Pins 0-7 are
// on port A, 8-15 on port B.
func Resolve(pin int) (Pin, error) {
	return resolve(portAuto, pin)
}

// ResolvePort validates an explicit port and pin (0-7) pair.
func ResolvePort(port Port, pin int) (Pin, error) {
	return resolve(port, pin)
}

func resolve(port Port, pin int) (Pin, error) {
	if port == portAuto {
		if pin < 0 || pin > 15 {
			return Pin{}, fmt.Errorf("%w: %d (expected 0-15)", ErrPinOutOfRange, pin)
		}
		if pin >= 8 {
			return Pin{Port: PortB, Bit: uint8(pin % 8)}, nil
		}
		return Pin{Port: PortA, Bit: uint8(pin)}, nil
	}
	if pin < 0 || pin > 7 {
		return Pin{}, fmt.Errorf("%w: %d (expected 0-7)", ErrPinOutOfRange, pin)
	}
	if !port.valid() {
		return Pin{}, fmt.Errorf("%w: %s", ErrInvalidPort, port)
	}
	return Pin{Port: port, Bit: uint8(pin)}, nil
}

func checkPort(port Port) error {
	if !port.valid() {
		return fmt.Errorf("%w: %s", ErrInvalidPort, port)
	}
	return nil
}
