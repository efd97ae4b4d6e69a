package display

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mklimuk/analogbar/adc"
	"github.com/mklimuk/analogbar/gpio"
)

type Sampler interface {
	Sample(ctx context.Context, channel int, mode adc.Mode) (uint16, error)
}

type PortWriter interface {
	SetupPort(ctx context.Context, port gpio.Port, directions byte) error
	WritePort(ctx context.Context, port gpio.Port, value byte) error
}

type Config struct {
	Channel int
	Mode    adc.Mode
	VRef    float64
	Port    gpio.Port
	Kind    Kind
	Step    uint16
	// Iterations <= 0 polls until the context is canceled.
	Iterations int
	Interval   time.Duration
	// Clear turns the port off when the loop ends.
	Clear bool
}

func DefaultConfig() Config {
	return Config{
		Channel:    0,
		Mode:       adc.SingleEnded,
		VRef:       3.3,
		Port:       gpio.PortB,
		Kind:       Bar,
		Step:       DefaultStep,
		Iterations: 100,
		Interval:   500 * time.Millisecond,
	}
}

type Reading struct {
	Iteration int
	Channel   int
	Value     uint16
	Voltage   float64
	Pattern   byte
}

type Runner struct {
	ADC    Sampler
	Out    PortWriter
	Config Config
	// Reading is called after every round, when set.
	Reading func(Reading)
}

// Run drives the configured port as outputs and mirrors the channel reading
// on it until the iterations are done or ctx is canceled. Cancellation returns
// ctx.Err().
func (r *Runner) Run(ctx context.Context) (err error) {
	cfg := r.Config
	if _, err := Pattern(cfg.Kind, 0, cfg.Step); err != nil {
		return err
	}
	err = r.Out.SetupPort(ctx, cfg.Port, 0x00)
	if err != nil {
		return fmt.Errorf("could not configure port %s as outputs: %w", cfg.Port, err)
	}
	if cfg.Clear {
		defer func() {
			// the loop context may already be done
			clearErr := r.Out.WritePort(context.WithoutCancel(ctx), cfg.Port, 0x00)
			if clearErr != nil && err == nil {
				err = fmt.Errorf("could not clear port %s: %w", cfg.Port, clearErr)
			}
		}()
	}
	for i := 0; cfg.Iterations <= 0 || i < cfg.Iterations; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		reading, err := r.round(ctx, i)
		if err != nil {
			return err
		}
		if r.Reading != nil {
			r.Reading(reading)
		}
		if cfg.Iterations > 0 && i == cfg.Iterations-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(cfg.Interval):
		}
	}
	return nil
}

func (r *Runner) round(ctx context.Context, i int) (Reading, error) {
	cfg := r.Config
	value, err := r.ADC.Sample(ctx, cfg.Channel, cfg.Mode)
	if err != nil {
		return Reading{}, fmt.Errorf("could not sample channel %d: %w", cfg.Channel, err)
	}
	res := Reading{
		Iteration: i,
		Channel:   cfg.Channel,
		Value:     value,
		Voltage:   adc.ToVoltage(value, cfg.VRef),
	}
	slog.Debug("reading", "channel", cfg.Channel, "value", value, "voltage", fmt.Sprintf("%.3f", res.Voltage))
	res.Pattern, err = Pattern(cfg.Kind, value, cfg.Step)
	if err != nil {
		return Reading{}, err
	}
	err = r.Out.WritePort(ctx, cfg.Port, res.Pattern)
	if err != nil {
		return Reading{}, fmt.Errorf("could not write pattern %08b: %w", res.Pattern, err)
	}
	return res, nil
}
