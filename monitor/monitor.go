// Package monitor runs the measurement cycle of a climate sensor feeding
// compensation data into an air quality sensor.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/SinaHosseini7/ens160-aht21/air"
	"github.com/SinaHosseini7/ens160-aht21/environment"
)

var ErrInvalidInterval = errors.New("monitor: interval must be positive")

// Climate is implemented by environment.AHT21 and its mock.
type Climate interface {
	ReadTemperatureHumidity(ctx context.Context, retries int) (float64, float64, error)
}

// AirQuality is implemented by air.ENS160 and its mock.
type AirQuality interface {
	SetCompensation(ctx context.Context, tempC, humPct float64) error
	Update(ctx context.Context) (bool, error)
	Measurement() air.Measurement
	Status() string
}

// PoorAQI is the lowest index reported as poor air quality.
const PoorAQI = 4

type Reading struct {
	TemperatureC float64
	HumidityPct  float64
	Measurement  air.Measurement
	// Valid is set when Measurement comes from a fresh sensor read.
	Valid  bool
	Status string
	Rating string
}

func (r Reading) PoorAir() bool {
	return r.Valid && r.Measurement.AQI >= PoorAQI
}

type Opt func(*Monitor)

func WithRetries(retries int) Opt {
	return func(m *Monitor) {
		m.retries = retries
	}
}

func WithMetrics(metrics *Metrics) Opt {
	return func(m *Monitor) {
		m.metrics = metrics
	}
}

// Monitor drives both sensors. Both are expected to share one bus so the
// monitor lock is held for a whole cycle.
type Monitor struct {
	mx      sync.Mutex
	climate Climate
	air     AirQuality
	retries int
	metrics *Metrics
	stats   Stats
}

func New(climate Climate, aq AirQuality, opts ...Opt) *Monitor {
	m := &Monitor{
		climate: climate,
		air:     aq,
		retries: environment.DefaultRetries,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Step reads temperature and humidity, feeds them to the air quality sensor as
// compensation and updates it.
func (m *Monitor) Step(ctx context.Context) (Reading, error) {
	m.mx.Lock()
	defer m.mx.Unlock()
	m.stats.Measurements++
	reading, err := m.step(ctx)
	if err != nil {
		m.stats.Errors++
		m.metrics.observeError()
		return reading, err
	}
	m.stats.record(reading)
	m.metrics.observe(reading)
	return reading, nil
}

func (m *Monitor) step(ctx context.Context) (Reading, error) {
	temp, hum, err := m.climate.ReadTemperatureHumidity(ctx, m.retries)
	if err != nil {
		return Reading{}, fmt.Errorf("could not read temperature and humidity: %w", err)
	}
	reading := Reading{TemperatureC: temp, HumidityPct: hum}
	if err := m.air.SetCompensation(ctx, temp, hum); err != nil {
		return reading, fmt.Errorf("could not set compensation: %w", err)
	}
	valid, err := m.air.Update(ctx)
	if err != nil {
		return reading, fmt.Errorf("could not update air quality: %w", err)
	}
	reading.Valid = valid
	reading.Status = m.air.Status()
	reading.Measurement = m.air.Measurement()
	if valid {
		reading.Rating = reading.Measurement.Rating()
	}
	return reading, nil
}

// Stats returns a copy of the statistics collected so far.
func (m *Monitor) Stats() Stats {
	m.mx.Lock()
	defer m.mx.Unlock()
	return m.stats
}

// Run calls Step immediately and then every interval until ctx is done.
// Step errors are passed to sink and do not stop the loop.
func (m *Monitor) Run(ctx context.Context, interval time.Duration, sink func(Reading, error)) error {
	if interval <= 0 {
		return fmt.Errorf("%w, got %s", ErrInvalidInterval, interval)
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		reading, err := m.Step(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			slog.Debug("monitor: measurement failed", "error", err)
		}
		if sink != nil {
			sink(reading, err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
