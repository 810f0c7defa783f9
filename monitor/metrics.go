package monitor

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	resultValid = "valid"
	resultStale = "stale"
	resultError = "error"
)

// Metrics exposes monitor readings to Prometheus. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	temperature prometheus.Gauge
	humidity    prometheus.Gauge
	aqi         prometheus.Gauge
	tvoc        prometheus.Gauge
	eco2        prometheus.Gauge
	readings    *prometheus.CounterVec
}

func newGauge(name string, help string) prometheus.Gauge {
	return prometheus.NewGauge(prometheus.GaugeOpts{
		Name: name,
		Help: help,
	})
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		temperature: newGauge("air_temperature", "Air Temperature (units: degrees Celsius)"),
		humidity:    newGauge("air_humidity", "Humidity (units: % of relative Humidity)"),
		aqi:         newGauge("air_quality_index", "UBA Air Quality Index (1-5)"),
		tvoc:        newGauge("air_voc_level", "Air Volatile Organic Compounds level (units: ppb)"),
		eco2:        newGauge("air_co2_level", "Air equivalent Carbon Dioxide level (units: ppm)"),
		readings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "air_readings_total",
			Help: "Measurement cycles by result",
		}, []string{"result"}),
	}
	reg.MustRegister(m.temperature, m.humidity, m.aqi, m.tvoc, m.eco2, m.readings)
	return m
}

func (m *Metrics) observe(r Reading) {
	if m == nil {
		return
	}
	m.temperature.Set(r.TemperatureC)
	m.humidity.Set(r.HumidityPct)
	if !r.Valid {
		m.readings.WithLabelValues(resultStale).Inc()
		return
	}
	m.aqi.Set(float64(r.Measurement.AQI))
	m.tvoc.Set(float64(r.Measurement.TVOC))
	m.eco2.Set(float64(r.Measurement.ECO2))
	m.readings.WithLabelValues(resultValid).Inc()
}

func (m *Metrics) observeError() {
	if m == nil {
		return
	}
	m.readings.WithLabelValues(resultError).Inc()
}
