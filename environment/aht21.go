package environment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sigurn/crc8"
	"periph.io/x/conn/v3/physic"

	sensors "github.com/SinaHosseini7/ens160-aht21"
)

// AHT21 I2C address (7-bit)
const aht21DefaultAddress = 0x38

// Commands
var (
	aht21CmdStatus     = []byte{0x71}
	aht21CmdInitialize = []byte{0xBE, 0x08, 0x00}
	aht21CmdMeasure    = []byte{0xAC, 0x33, 0x00}
	aht21CmdSoftReset  = []byte{0xBA}
)

// Status byte bits:
// Bit7: busy (measurement in progress)
// Bit3: calibration coefficients loaded
const (
	aht21StatusBusy       = 0x80
	aht21StatusCalibrated = 0x08
)

// status + 5 data bytes + CRC
const aht21FrameLength = 7

// DefaultRetries is the number of measurement attempts made by Read.
const DefaultRetries = 3

// CRC-8/NRSC-5: x^8 + x^5 + x^4 + 1, init 0xFF, no reflection, no final xor.
var crcTable = crc8.MakeTable(crc8.Params{
	Poly:   0x31,
	Init:   0xFF,
	RefIn:  false,
	RefOut: false,
	XorOut: 0x00,
	Check:  0xF7,
	Name:   "CRC-8/NRSC-5",
})

// CRC8 returns the checksum used by Aosong and Sensirion sensors.
func CRC8(data []byte) byte {
	return crc8.Checksum(data, crcTable)
}

var ErrAHT21 = errors.New("aht21")

var (
	ErrCalibration   = fmt.Errorf("%w: calibration failed", ErrAHT21)
	ErrNotCalibrated = fmt.Errorf("%w: sensor not calibrated", ErrAHT21)
	ErrCommunication = fmt.Errorf("%w: communication failure", ErrAHT21)
	ErrCRC           = fmt.Errorf("%w: crc mismatch", ErrAHT21)
	ErrTimeout       = fmt.Errorf("%w: measurement timeout", ErrAHT21)
)

type AHT21Opts struct {
	Address             byte
	CalibrationAttempts int
	ResetOnInit         bool
	PowerUpDelay        time.Duration
	InitDelay           time.Duration
	SoftResetDelay      time.Duration
	MeasurementDelay    time.Duration
	BusyTimeout         time.Duration
	PollInterval        time.Duration
	RetryDelay          time.Duration
}

type AHT21Opt func(*AHT21Opts)

func WithAHT21Address(address byte) AHT21Opt {
	return func(o *AHT21Opts) {
		o.Address = address
	}
}

func WithCalibrationAttempts(attempts int) AHT21Opt {
	return func(o *AHT21Opts) {
		o.CalibrationAttempts = attempts
	}
}

// WithResetOnInit makes NewAHT21 wait PowerUpDelay and soft reset the sensor
// before the calibration handshake.
func WithResetOnInit(reset bool) AHT21Opt {
	return func(o *AHT21Opts) {
		o.ResetOnInit = reset
	}
}

func WithPowerUpDelay(delay time.Duration) AHT21Opt {
	return func(o *AHT21Opts) {
		o.PowerUpDelay = delay
	}
}

func WithInitDelay(delay time.Duration) AHT21Opt {
	return func(o *AHT21Opts) {
		o.InitDelay = delay
	}
}

func WithSoftResetDelay(delay time.Duration) AHT21Opt {
	return func(o *AHT21Opts) {
		o.SoftResetDelay = delay
	}
}

func WithMeasurementDelay(delay time.Duration) AHT21Opt {
	return func(o *AHT21Opts) {
		o.MeasurementDelay = delay
	}
}

func WithBusyTimeout(timeout time.Duration) AHT21Opt {
	return func(o *AHT21Opts) {
		o.BusyTimeout = timeout
	}
}

func WithPollInterval(interval time.Duration) AHT21Opt {
	return func(o *AHT21Opts) {
		o.PollInterval = interval
	}
}

func WithRetryDelay(delay time.Duration) AHT21Opt {
	return func(o *AHT21Opts) {
		o.RetryDelay = delay
	}
}

// AHT21 represents Aosong AHT21 Temperature/Humidity sensor
// Typical usage:
//
//	s, err := NewAHT21(ctx, bus)
//	t, h, err := s.ReadTemperatureHumidity(ctx, 3)
//
// Like the other drivers it keeps no lock; callers serialize access.
type AHT21 struct {
	config     AHT21Opts
	transport  sensors.I2CBus
	addr       byte
	buf        []byte
	calibrated bool
	lastTemp   float64
	lastHum    float64
}

// NewAHT21 creates the driver and runs the calibration handshake. No driver is
// returned when the sensor does not report calibration.
func NewAHT21(ctx context.Context, trans sensors.I2CBus, opts ...AHT21Opt) (*AHT21, error) {
	config := AHT21Opts{
		Address:             aht21DefaultAddress,
		CalibrationAttempts: 3,
		PowerUpDelay:        100 * time.Millisecond,
		InitDelay:           10 * time.Millisecond,
		SoftResetDelay:      20 * time.Millisecond,
		MeasurementDelay:    80 * time.Millisecond,
		BusyTimeout:         150 * time.Millisecond,
		PollInterval:        5 * time.Millisecond,
		RetryDelay:          50 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(&config)
	}
	if config.CalibrationAttempts < 0 {
		config.CalibrationAttempts = 0
	}
	s := &AHT21{
		config:    config,
		transport: trans,
		addr:      config.Address,
		buf:       make([]byte, aht21FrameLength),
	}
	if config.ResetOnInit {
		if err := sensors.Sleep(ctx, config.PowerUpDelay); err != nil {
			return nil, err
		}
		if err := s.SoftReset(ctx); err != nil {
			return nil, err
		}
	}
	if err := s.Calibrate(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Calibrate checks the calibration bit and sends the initialization command
// until it is set, at most CalibrationAttempts times.
func (s *AHT21) Calibrate(ctx context.Context) error {
	s.calibrated = false
	for attempt := 0; ; attempt++ {
		status, err := s.readStatus(ctx)
		if err != nil {
			return err
		}
		if status&aht21StatusCalibrated != 0 {
			s.calibrated = true
			return nil
		}
		if attempt >= s.config.CalibrationAttempts {
			return sensors.NewError(ErrCalibration, fmt.Sprintf("calibration bit unset after %d attempts", attempt), nil)
		}
		slog.Debug("aht21: sensor not calibrated, sending initialization", "attempt", attempt+1, "status", fmt.Sprintf("%#02x", status))
		if err := s.write(ctx, aht21CmdInitialize, "write initialization command"); err != nil {
			return err
		}
		if err := sensors.Sleep(ctx, s.config.InitDelay); err != nil {
			return err
		}
	}
}

// SoftReset reboots the sensor. It has to be calibrated again before the next read.
func (s *AHT21) SoftReset(ctx context.Context) error {
	s.calibrated = false
	if err := s.write(ctx, aht21CmdSoftReset, "write soft reset command"); err != nil {
		return err
	}
	return sensors.Sleep(ctx, s.config.SoftResetDelay)
}

// Read performs a measurement with DefaultRetries attempts.
func (s *AHT21) Read(ctx context.Context) (float64, float64, error) {
	return s.ReadTemperatureHumidity(ctx, DefaultRetries)
}

// ReadTemperatureHumidity triggers a measurement and returns temperature in
// Celsius and relative humidity in %RH. CRC mismatches and busy timeouts are
// retried until retries attempts were made; the error of the last attempt is
// returned. Bus errors are returned immediately.
func (s *AHT21) ReadTemperatureHumidity(ctx context.Context, retries int) (float64, float64, error) {
	if !s.calibrated {
		return 0, 0, sensors.NewError(ErrNotCalibrated, "", nil)
	}
	if retries < 1 {
		retries = 1
	}
	var lastErr error
	for attempt := 1; attempt <= retries; attempt++ {
		if attempt > 1 {
			if err := sensors.Sleep(ctx, s.config.RetryDelay); err != nil {
				return 0, 0, err
			}
		}
		err := s.measure(ctx)
		if err == nil {
			return s.lastTemp, s.lastHum, nil
		}
		if !errors.Is(err, ErrCRC) && !errors.Is(err, ErrTimeout) {
			return 0, 0, err
		}
		slog.Debug("aht21: measurement attempt failed", "attempt", attempt, "retries", retries, "error", err)
		lastErr = err
	}
	return 0, 0, lastErr
}

// Sense fills temperature and humidity of e. Pressure is left untouched.
func (s *AHT21) Sense(ctx context.Context, e *physic.Env) error {
	temp, hum, err := s.Read(ctx)
	if err != nil {
		return err
	}
	e.Temperature = physic.ZeroCelsius + physic.Temperature(temp*float64(physic.Celsius))
	e.Humidity = physic.RelativeHumidity(hum * float64(physic.PercentRH))
	return nil
}

func (s *AHT21) measure(ctx context.Context) error {
	if err := s.write(ctx, aht21CmdMeasure, "write measurement command"); err != nil {
		return err
	}
	// conversion takes at least 80ms
	if err := sensors.Sleep(ctx, s.config.MeasurementDelay); err != nil {
		return err
	}
	deadline := time.Now().Add(s.config.BusyTimeout)
	for {
		status, err := s.readStatus(ctx)
		if err != nil {
			return err
		}
		if status&aht21StatusBusy == 0 {
			break
		}
		if !time.Now().Before(deadline) {
			return sensors.NewError(ErrTimeout, fmt.Sprintf("sensor busy after %s", s.config.BusyTimeout), nil)
		}
		if err := sensors.Sleep(ctx, s.config.PollInterval); err != nil {
			return err
		}
	}
	frame := s.buf[:aht21FrameLength]
	if err := s.transport.ReadFromAddr(ctx, s.addr, frame); err != nil {
		return sensors.NewError(ErrCommunication, "read measurement", err)
	}
	if crc := CRC8(frame[:6]); crc != frame[6] {
		return sensors.NewError(ErrCRC, fmt.Sprintf("calculated %#02x, received %#02x", crc, frame[6]), nil)
	}
	s.lastHum, s.lastTemp = decodeFrame(frame)
	return nil
}

// decodeFrame extracts the two 20-bit raw values: humidity in the upper bits
// of data bytes 1..3, temperature in the lower bits of bytes 3..5.
func decodeFrame(frame []byte) (float64, float64) {
	rawHum := uint32(frame[1])<<12 | uint32(frame[2])<<4 | uint32(frame[3])>>4
	rawTemp := (uint32(frame[3])&0x0F)<<16 | uint32(frame[4])<<8 | uint32(frame[5])
	return convertHumidity(rawHum), convertTemperature(rawTemp)
}

func convertHumidity(raw uint32) float64 {
	return float64(raw) * 100 / (1 << 20)
}

func convertTemperature(raw uint32) float64 {
	return float64(raw)*200/(1<<20) - 50
}

func (s *AHT21) readStatus(ctx context.Context) (byte, error) {
	if err := s.write(ctx, aht21CmdStatus, "write status command"); err != nil {
		return 0, err
	}
	status := s.buf[:1]
	if err := s.transport.ReadFromAddr(ctx, s.addr, status); err != nil {
		return 0, sensors.NewError(ErrCommunication, "read status", err)
	}
	return status[0], nil
}

func (s *AHT21) write(ctx context.Context, cmd []byte, op string) error {
	if err := s.transport.WriteToAddr(ctx, s.addr, cmd); err != nil {
		return sensors.NewError(ErrCommunication, op, err)
	}
	return nil
}

func (s *AHT21) Calibrated() bool {
	return s.calibrated
}

func (s *AHT21) LastTemperature() float64 {
	return s.lastTemp
}

func (s *AHT21) LastHumidity() float64 {
	return s.lastHum
}
