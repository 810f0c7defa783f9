package environment

import (
	"context"
)

// TemperatureBehaviorFunc defines the function signature for temperature behavior.
// It returns the temperature in Celsius or an error.
type TemperatureBehaviorFunc func(ctx context.Context) (float64, error)

// HumidityBehaviorFunc defines the function signature for humidity behavior.
// It returns the relative humidity in %RH or an error.
type HumidityBehaviorFunc func(ctx context.Context) (float64, error)

// MockTemperatureAndHumiditySensor is a mock implementation of a temperature and humidity sensor
// that uses behavior functions to produce results without requiring any hardware.
// It satisfies the same read contract as AHT21.
type MockTemperatureAndHumiditySensor struct {
	tempBehavior TemperatureBehaviorFunc
	humBehavior  HumidityBehaviorFunc
	reads        int
}

// NewMockTemperatureAndHumiditySensor creates a new mock temperature/humidity sensor with the given behavior functions.
// Both behaviors are called once per ReadTemperatureHumidity; the retries argument is ignored.
//
// Example usage:
//
//	sensor := NewMockTemperatureAndHumiditySensor(
//		func(ctx context.Context) (float64, error) { return 22.5, nil },
//		func(ctx context.Context) (float64, error) { return 45.0, nil },
//	)
func NewMockTemperatureAndHumiditySensor(tempBehavior TemperatureBehaviorFunc, humBehavior HumidityBehaviorFunc) *MockTemperatureAndHumiditySensor {
	return &MockTemperatureAndHumiditySensor{
		tempBehavior: tempBehavior,
		humBehavior:  humBehavior,
	}
}

// ReadTemperatureHumidity returns temperature and humidity by calling both behavior functions.
func (m *MockTemperatureAndHumiditySensor) ReadTemperatureHumidity(ctx context.Context, retries int) (float64, float64, error) {
	m.reads++
	temp, err := m.tempBehavior(ctx)
	if err != nil {
		return 0, 0, err
	}
	hum, err := m.humBehavior(ctx)
	if err != nil {
		return 0, 0, err
	}
	return temp, hum, nil
}

func (m *MockTemperatureAndHumiditySensor) Read(ctx context.Context) (float64, float64, error) {
	return m.ReadTemperatureHumidity(ctx, DefaultRetries)
}

// Reads returns the number of ReadTemperatureHumidity calls.
func (m *MockTemperatureAndHumiditySensor) Reads() int {
	return m.reads
}

// NewMockAHT21 creates a new mock AHT21 sensor (alias for NewMockTemperatureAndHumiditySensor).
func NewMockAHT21(tempBehavior TemperatureBehaviorFunc, humBehavior HumidityBehaviorFunc) *MockTemperatureAndHumiditySensor {
	return NewMockTemperatureAndHumiditySensor(tempBehavior, humBehavior)
}
