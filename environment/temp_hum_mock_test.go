package environment

import (
	"context"
	"fmt"
	"math/rand"
	"testing"
)

func TestMockTemperatureAndHumiditySensor_StaticValues(t *testing.T) {
	sensor := NewMockTemperatureAndHumiditySensor(
		func(ctx context.Context) (float64, error) { return 22.5, nil },
		func(ctx context.Context) (float64, error) { return 45.0, nil },
	)

	temp, hum, err := sensor.ReadTemperatureHumidity(context.Background(), 3)
	if err != nil {
		t.Fatalf("ReadTemperatureHumidity: unexpected error: %v", err)
	}
	if temp != 22.5 {
		t.Errorf("expected temperature 22.5, got %f", temp)
	}
	if hum != 45.0 {
		t.Errorf("expected humidity 45.0, got %f", hum)
	}
}

func TestMockTemperatureAndHumiditySensor_DynamicBehavior(t *testing.T) {
	currentTemp := 20.0
	currentHum := 50.0

	sensor := NewMockAHT21(
		func(ctx context.Context) (float64, error) { return currentTemp, nil },
		func(ctx context.Context) (float64, error) { return currentHum, nil },
	)

	ctx := context.Background()

	temp, hum, err := sensor.Read(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if temp != 20.0 || hum != 50.0 {
		t.Errorf("expected 20.0/50.0, got %f/%f", temp, hum)
	}

	currentTemp = 25.0
	currentHum = 60.0

	temp, hum, err = sensor.Read(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if temp != 25.0 || hum != 60.0 {
		t.Errorf("expected 25.0/60.0, got %f/%f", temp, hum)
	}
	if sensor.Reads() != 2 {
		t.Errorf("expected 2 reads, got %d", sensor.Reads())
	}
}

func TestMockTemperatureAndHumiditySensor_ErrorHandling(t *testing.T) {
	humCalls := 0
	sensor := NewMockTemperatureAndHumiditySensor(
		func(ctx context.Context) (float64, error) {
			return 0, fmt.Errorf("temperature sensor error")
		},
		func(ctx context.Context) (float64, error) {
			humCalls++
			return 50.0, nil
		},
	)

	_, _, err := sensor.ReadTemperatureHumidity(context.Background(), 1)
	if err == nil || err.Error() != "temperature sensor error" {
		t.Errorf("expected temperature sensor error, got %v", err)
	}
	if humCalls != 0 {
		t.Errorf("humidity behavior called after temperature failure")
	}
}

func TestMockTemperatureAndHumiditySensor_ContextUsage(t *testing.T) {
	var receivedTempCtx context.Context
	var receivedHumCtx context.Context

	sensor := NewMockTemperatureAndHumiditySensor(
		func(ctx context.Context) (float64, error) {
			receivedTempCtx = ctx
			return 20.0, nil
		},
		func(ctx context.Context) (float64, error) {
			receivedHumCtx = ctx
			return 50.0, nil
		},
	)

	type contextKey string
	key := contextKey("test")
	ctx := context.WithValue(context.Background(), key, "test-value")

	_, _, err := sensor.ReadTemperatureHumidity(ctx, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if receivedTempCtx.Value(key) != "test-value" {
		t.Error("context was not passed through to temperature behavior")
	}
	if receivedHumCtx.Value(key) != "test-value" {
		t.Error("context was not passed through to humidity behavior")
	}
}

func TestMockTemperatureAndHumiditySensor_EnvironmentalSimulation(t *testing.T) {
	// indoor climate over a day
	hourOfDay := 0

	getTempForHour := func() float64 {
		switch {
		case hourOfDay >= 6 && hourOfDay < 12:
			return 18.0
		case hourOfDay >= 12 && hourOfDay < 18:
			return 24.0
		case hourOfDay >= 18 && hourOfDay < 22:
			return 22.0
		default:
			return 16.0
		}
	}

	getHumForHour := func() float64 {
		switch {
		case hourOfDay >= 6 && hourOfDay < 12:
			return 55.0
		case hourOfDay >= 12 && hourOfDay < 18:
			return 45.0
		case hourOfDay >= 18 && hourOfDay < 22:
			return 50.0
		default:
			return 60.0
		}
	}

	sensor := NewMockTemperatureAndHumiditySensor(
		func(ctx context.Context) (float64, error) { return getTempForHour(), nil },
		func(ctx context.Context) (float64, error) { return getHumForHour(), nil },
	)

	ctx := context.Background()

	testCases := []struct {
		hour         int
		expectedTemp float64
		expectedHum  float64
	}{
		{0, 16.0, 60.0},  // Night
		{8, 18.0, 55.0},  // Morning
		{14, 24.0, 45.0}, // Afternoon
		{20, 22.0, 50.0}, // Evening
		{23, 16.0, 60.0}, // Night
	}

	for _, tc := range testCases {
		hourOfDay = tc.hour
		temp, hum, err := sensor.ReadTemperatureHumidity(ctx, 3)
		if err != nil {
			t.Fatalf("hour %d: unexpected error: %v", tc.hour, err)
		}
		if temp != tc.expectedTemp || hum != tc.expectedHum {
			t.Errorf("hour %d: expected %f°C/%f%%RH, got %f°C/%f%%RH",
				tc.hour, tc.expectedTemp, tc.expectedHum, temp, hum)
		}
	}
}

func TestMockTemperatureAndHumiditySensor_RandomValues(t *testing.T) {
	sensor := NewMockTemperatureAndHumiditySensor(
		func(ctx context.Context) (float64, error) {
			// 15-30°C
			return 15.0 + rand.Float64()*15.0, nil
		},
		func(ctx context.Context) (float64, error) {
			// 30-70%
			return 30.0 + rand.Float64()*40.0, nil
		},
	)

	ctx := context.Background()

	for i := 0; i < 10; i++ {
		temp, hum, err := sensor.ReadTemperatureHumidity(ctx, 3)
		if err != nil {
			t.Fatalf("iteration %d: unexpected error: %v", i, err)
		}
		if temp < 15.0 || temp > 30.0 {
			t.Errorf("iteration %d: temperature %f out of range [15, 30]", i, temp)
		}
		if hum < 30.0 || hum > 70.0 {
			t.Errorf("iteration %d: humidity %f out of range [30, 70]", i, hum)
		}
	}
}
