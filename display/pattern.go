// Package display maps converter readings to LED patterns on an expander port
// and runs the polling loop that keeps the port in sync with the reading.
package display

import (
	"fmt"

	"github.com/mklimuk/analogbar"
	"github.com/mklimuk/analogbar/adc"
)

// DefaultStep splits the 12-bit range into nine buckets.
const DefaultStep = 409

// Segments is the number of LEDs in the bar.
const Segments = 8

type Kind string

const (
	Bar   Kind = "bar"
	Digit Kind = "digit"
)

var ErrInvalidKind = fmt.Errorf("display kind %w", analogbar.ErrOutOfRange)

func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case Bar, Digit:
		return Kind(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidKind, s)
}

// BarLevel returns how many segments to light for value: 0 up to and
// including step, then one more per step, capped at Segments.
func BarLevel(value uint16, step uint16) int {
	if step == 0 {
		step = DefaultStep
	}
	if value <= step {
		return 0
	}
	level := int((value - 1) / step)
	if level > Segments {
		return Segments
	}
	return level
}

// BarPattern lights the lowest level bits.
func BarPattern(level int) byte {
	if level <= 0 {
		return 0x00
	}
	if level >= Segments {
		return 0xFF
	}
	return byte(1<<level) - 1
}

// segment encoding, bit 0 = a ... bit 6 = g
var digits = [10]byte{
	0b00111111,
	0b00000110,
	0b01011011,
	0b01001111,
	0b01100110,
	0b01101101,
	0b01111101,
	0b00000111,
	0b01111111,
	0b01101111,
}

var ErrInvalidDigit = fmt.Errorf("digit %w", analogbar.ErrOutOfRange)

// DigitPattern returns the seven-segment pattern of a decimal digit.
func DigitPattern(d int) (byte, error) {
	if d < 0 || d > 9 {
		return 0, fmt.Errorf("%w: %d", ErrInvalidDigit, d)
	}
	return digits[d], nil
}

// ScaleDigit maps a sample to 0-9 in tenths of full scale.
func ScaleDigit(value uint16) int {
	d := int(value) * 10 / adc.Resolution
	if d > 9 {
		return 9
	}
	return d
}

// Pattern returns the port value for a sample in the given display kind.
func Pattern(kind Kind, value uint16, step uint16) (byte, error) {
	switch kind {
	case Bar, "":
		return BarPattern(BarLevel(value, step)), nil
	case Digit:
		return DigitPattern(ScaleDigit(value))
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidKind, kind)
}
