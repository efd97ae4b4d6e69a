package gpio

import "fmt"

type registry int

// Registries. The order follows the power-on (IOCON.BANK=0) layout where A/B
// registers are paired; BankAddr maps them to bus offsets for either layout.
const (
	IODIRA registry = iota
	IODIRB
	IPOLA
	IPOLB
	GPINTENA
	GPINTENB
	DEFVALA
	DEFVALB
	INTCONA
	INTCONB
	IOCON
	GPPUA
	GPPUB
	INTFA
	INTFB
	INTCAPA
	INTCAPB
	GPIOA
	GPIOB
	OLATA
	OLATB
)

// Register layouts selected by the IOCON.BANK bit.
const (
	BankPaired   = 0 // IOCON.BANK=0, power-on default
	BankSeparate = 1 // IOCON.BANK=1
)

var (
	BankAddr = [2]map[registry]byte{
		{
			IODIRA:   0x00,
			IODIRB:   0x01,
			IPOLA:    0x02,
			IPOLB:    0x03,
			GPINTENA: 0x04,
			GPINTENB: 0x05,
			DEFVALA:  0x06,
			DEFVALB:  0x07,
			INTCONA:  0x08,
			INTCONB:  0x09,
			IOCON:    0x0A,
			GPPUA:    0x0C,
			GPPUB:    0x0D,
			INTFA:    0x0E,
			INTFB:    0x0F,
			INTCAPA:  0x10,
			INTCAPB:  0x11,
			GPIOA:    0x12,
			GPIOB:    0x13,
			OLATA:    0x14,
			OLATB:    0x15,
		},
		{
			IODIRA:   0x00,
			IPOLA:    0x01,
			GPINTENA: 0x02,
			DEFVALA:  0x03,
			INTCONA:  0x04,
			IOCON:    0x05,
			GPPUA:    0x06,
			INTFA:    0x07,
			INTCAPA:  0x08,
			GPIOA:    0x09,
			OLATA:    0x0A,
			IODIRB:   0x10,
			IPOLB:    0x11,
			GPINTENB: 0x12,
			DEFVALB:  0x13,
			INTCONB:  0x14,
			GPPUB:    0x16,
			INTFB:    0x17,
			INTCAPB:  0x18,
			GPIOB:    0x19,
			OLATB:    0x1A,
		},
	}
)

var registryNames = [...]string{
	"IODIRA", "IODIRB", "IPOLA", "IPOLB", "GPINTENA", "GPINTENB",
	"DEFVALA", "DEFVALB", "INTCONA", "INTCONB", "IOCON", "GPPUA", "GPPUB",
	"INTFA", "INTFB", "INTCAPA", "INTCAPB", "GPIOA", "GPIOB", "OLATA", "OLATB",
}

func (r registry) String() string {
	if r < 0 || int(r) >= len(registryNames) {
		return fmt.Sprintf("registry(%d)", int(r))
	}
	return registryNames[r]
}
