// Package config holds the command line defaults and the build version.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Set at build time with -ldflags -X.
var (
	Version = "latest"
	Commit  = "none"
	Date    = "unknown"
)

// Transport names accepted in Config.Transport.
const (
	TransportGeneric = "generic"
	TransportNanoPi  = "nanopi"
	TransportMCP2221 = "mcp2221"
)

type Config struct {
	Transport string    `yaml:"transport"`
	Expander  Expander  `yaml:"expander"`
	Converter Converter `yaml:"converter"`
	Display   Display   `yaml:"display"`
}

type Expander struct {
	Bus        string `yaml:"bus"`
	BusNumber  int    `yaml:"bus_number"`
	Address    uint8  `yaml:"address"`
	Bank       int    `yaml:"bank"`
	RetryLimit int    `yaml:"retry_limit"`
	// SpeedHz of 0 keeps the bus default.
	SpeedHz int64 `yaml:"speed_hz"`
}

type Converter struct {
	Port    string `yaml:"port"`
	Bus     int    `yaml:"bus"`
	Chip    int    `yaml:"chip"`
	SpeedHz int64  `yaml:"speed_hz"`
	// SPIMode is the clock mode, 0 or 3; the converter supports both.
	SPIMode int     `yaml:"spi_mode"`
	VRef    float64 `yaml:"vref"`
	Channel int     `yaml:"channel"`
	Mode    string  `yaml:"mode"`
}

type Display struct {
	Kind       string        `yaml:"kind"`
	Port       string        `yaml:"port"`
	Step       uint16        `yaml:"step"`
	Iterations int           `yaml:"iterations"`
	Interval   time.Duration `yaml:"interval"`
	Clear      bool          `yaml:"clear"`
}

func Default() Config {
	return Config{
		Transport: TransportGeneric,
		Expander: Expander{
			Bus:        "/dev/i2c-1",
			BusNumber:  1,
			Address:    0x20,
			RetryLimit: 1,
		},
		Converter: Converter{
			Port:    "/dev/spidev0.0",
			SpeedHz: 1_000_000,
			VRef:    3.3,
			Mode:    "single",
		},
		Display: Display{
			Kind:       "bar",
			Port:       "B",
			Step:       409,
			Iterations: 100,
			Interval:   500 * time.Millisecond,
		},
	}
}

// Load reads a YAML file over the defaults. A missing file yields the
// defaults.
func Load(path string) (Config, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("could not open config file: %w", err)
	}
	defer f.Close()
	return Decode(f)
}

func Decode(r io.Reader) (Config, error) {
	cfg := Default()
	err := yaml.NewDecoder(r).Decode(&cfg)
	if err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("could not decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch c.Transport {
	case TransportGeneric, TransportNanoPi, TransportMCP2221:
	default:
		return fmt.Errorf("unknown transport %q", c.Transport)
	}
	if c.Expander.Address < 0x20 || c.Expander.Address > 0x27 {
		return fmt.Errorf("expander address %#x outside 0x20-0x27", c.Expander.Address)
	}
	if c.Expander.Bank != 0 && c.Expander.Bank != 1 {
		return fmt.Errorf("expander bank must be 0 or 1, got %d", c.Expander.Bank)
	}
	if c.Expander.RetryLimit < 1 {
		return fmt.Errorf("expander retry limit must be at least 1, got %d", c.Expander.RetryLimit)
	}
	if c.Expander.SpeedHz < 0 {
		return fmt.Errorf("negative expander bus speed %d", c.Expander.SpeedHz)
	}
	if c.Converter.SpeedHz < 0 {
		return fmt.Errorf("negative converter bus speed %d", c.Converter.SpeedHz)
	}
	if c.Converter.SPIMode != 0 && c.Converter.SPIMode != 3 {
		return fmt.Errorf("converter spi mode must be 0 or 3, got %d", c.Converter.SPIMode)
	}
	if c.Converter.VRef <= 0 {
		return fmt.Errorf("reference voltage must be positive, got %v", c.Converter.VRef)
	}
	if c.Display.Interval < 0 {
		return fmt.Errorf("negative display interval %s", c.Display.Interval)
	}
	return nil
}

func (c Config) Write(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	err := enc.Encode(c)
	if err != nil {
		return fmt.Errorf("could not encode config: %w", err)
	}
	return enc.Close()
}

func VersionString() string {
	return fmt.Sprintf("%s-%s-%s", Version, Date, Commit)
}
