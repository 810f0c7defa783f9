package air

import (
	"context"
)

// Sample is what a mock air quality sensor reports for one Update call.
// Fresh marks a new measurement; stale samples only update the mode.
type Sample struct {
	Measurement Measurement
	Mode        Mode
	Fresh       bool
}

// AirQualityBehaviorFunc defines the function signature for air quality behavior.
type AirQualityBehaviorFunc func(ctx context.Context) (Sample, error)

// MockAirQualitySensor is a mock implementation of an air quality sensor
// that uses a behavior function to produce results without requiring hardware.
// It mirrors the ENS160 update/cache contract.
type MockAirQualitySensor struct {
	behavior     AirQualityBehaviorFunc
	mode         Mode
	measurement  Measurement
	compensation Compensation
}

// NewMockAirQualitySensor creates a new mock air quality sensor with the given behavior function.
// The behavior function is called whenever Update is invoked.
//
// Example usage:
//
//	sensor := NewMockAirQualitySensor(func(ctx context.Context) (Sample, error) {
//		return Sample{Measurement: Measurement{AQI: 2, TVOC: 120, ECO2: 450}, Mode: ModeOperational, Fresh: true}, nil
//	})
func NewMockAirQualitySensor(behavior AirQualityBehaviorFunc) *MockAirQualitySensor {
	return &MockAirQualitySensor{
		behavior:     behavior,
		measurement:  Measurement{ECO2: 400},
		compensation: DefaultCompensation,
	}
}

// SetCompensation stores the clamped compensation values.
func (m *MockAirQualitySensor) SetCompensation(ctx context.Context, tempC, humPct float64) error {
	m.compensation = clampCompensation(tempC, humPct)
	return nil
}

// Update calls the behavior function and caches fresh measurements.
func (m *MockAirQualitySensor) Update(ctx context.Context) (bool, error) {
	sample, err := m.behavior(ctx)
	if err != nil {
		return false, err
	}
	m.mode = sample.Mode
	if !sample.Fresh {
		return false, nil
	}
	m.measurement = sample.Measurement
	return true, nil
}

func (m *MockAirQualitySensor) Measurement() Measurement {
	return m.measurement
}

func (m *MockAirQualitySensor) Mode() Mode {
	return m.mode
}

func (m *MockAirQualitySensor) Status() string {
	return m.mode.String()
}

func (m *MockAirQualitySensor) Compensation() Compensation {
	return m.compensation
}

// NewMockENS160 creates a new mock ENS160 sensor (alias for NewMockAirQualitySensor).
func NewMockENS160(behavior AirQualityBehaviorFunc) *MockAirQualitySensor {
	return NewMockAirQualitySensor(behavior)
}
