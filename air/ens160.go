package air

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	sensors "github.com/SinaHosseini7/ens160-aht21"
)

// ENS160 default 7-bit I2C address (ADDR pin high). 0x52 with ADDR low.
const ens160DefaultAddress = 0x53

// Value of PART_ID register for every ENS160.
const ens160PartID uint16 = 0x0160

// Register map
//
//	0x00: PART_ID (2 bytes LE)
//	0x10: OPMODE
//	0x12: COMMAND (only accepted in idle mode)
//	0x13: TEMP_IN (2 bytes LE, (T + 273.15) * 64)
//	0x15: RH_IN (2 bytes LE, RH * 512)
//	0x20: DEVICE_STATUS
//	0x21: DATA_AQI, 0x22: DATA_TVOC (2 bytes LE), 0x24: DATA_ECO2 (2 bytes LE)
//	0x48: GPR_READ (8 bytes)
const (
	regPartID       byte = 0x00
	regOpMode       byte = 0x10
	regCommand      byte = 0x12
	regTempIn       byte = 0x13
	regDeviceStatus byte = 0x20
	regDataAQI      byte = 0x21
	regGPRRead      byte = 0x48
)

const (
	opModeIdle     byte = 0x01
	opModeStandard byte = 0x02
	opModeReset    byte = 0xF0
)

const cmdGetAppVer byte = 0x0E

// DEVICE_STATUS bits:
// Bit7: STATAS (an OPMODE is running)
// Bit6: STATER (error detected)
// Bit3..2: validity flag (0 normal, 1 warm-up, 2 initial start-up, 3 invalid output)
// Bit1: NEWDAT (new data in DATA_x registers)
// Bit0: NEWGPR (new data in GPR_READ registers)
const (
	statusValidityShift = 2
	statusValidityMask  = 0x03
	statusBitNewData    = 0x02
	statusBitNewGPR     = 0x01
)

// burst of DATA_AQI, DATA_TVOC and DATA_ECO2
const dataLength = 5

const gprLength = 8

const (
	minCompensationTemp = -40.0
	maxCompensationTemp = 85.0
	minCompensationHum  = 0.0
	maxCompensationHum  = 100.0
)

var ErrENS160 = errors.New("ens160")

var (
	ErrInit            = fmt.Errorf("%w: initialization failed", ErrENS160)
	ErrCommunication   = fmt.Errorf("%w: communication failure", ErrENS160)
	ErrData            = fmt.Errorf("%w: invalid data", ErrENS160)
	ErrInvalidArgument = fmt.Errorf("%w: invalid argument", ErrENS160)
)

// Mode is the operating state reported by the validity flag of DEVICE_STATUS.
type Mode int

const (
	ModeUninitialized Mode = iota
	ModeOperational
	ModeWarmup
	ModeInitialStartup
	ModeError
)

func (m Mode) String() string {
	switch m {
	case ModeOperational:
		return "OK"
	case ModeWarmup:
		return "Warm-up"
	case ModeInitialStartup:
		return "Initial Startup"
	case ModeError:
		return "Error"
	default:
		return "Uninitialized"
	}
}

func modeFromStatus(status byte) Mode {
	switch (status >> statusValidityShift) & statusValidityMask {
	case 0:
		return ModeOperational
	case 1:
		return ModeWarmup
	case 2:
		return ModeInitialStartup
	default:
		return ModeError
	}
}

// Ratings maps the UBA air quality index to its description.
var Ratings = map[uint8]string{
	1: "Excellent",
	2: "Good",
	3: "Moderate",
	4: "Poor",
	5: "Unhealthy",
}

func Rating(aqi uint8) string {
	if r, ok := Ratings[aqi]; ok {
		return r
	}
	return "Unknown"
}

// Measurement is a consistent snapshot of the ENS160 output registers.
// TVOC is in ppb, ECO2 in ppm.
type Measurement struct {
	AQI  uint8
	TVOC uint16
	ECO2 uint16
}

func (m Measurement) Rating() string {
	return Rating(m.AQI)
}

func decodeMeasurement(data []byte) Measurement {
	return Measurement{
		AQI:  data[0] & 0x07,
		TVOC: binary.LittleEndian.Uint16(data[1:3]),
		ECO2: binary.LittleEndian.Uint16(data[3:5]),
	}
}

// Compensation holds the ambient conditions fed to the sensor algorithm.
type Compensation struct {
	TemperatureC float64
	HumidityPct  float64
}

var DefaultCompensation = Compensation{TemperatureC: 25, HumidityPct: 50}

func clamp(v, low, high, fallback float64) float64 {
	if math.IsNaN(v) {
		return fallback
	}
	return math.Max(low, math.Min(high, v))
}

func clampCompensation(tempC, humPct float64) Compensation {
	return Compensation{
		TemperatureC: clamp(tempC, minCompensationTemp, maxCompensationTemp, DefaultCompensation.TemperatureC),
		HumidityPct:  clamp(humPct, minCompensationHum, maxCompensationHum, DefaultCompensation.HumidityPct),
	}
}

// EncodeCompensation returns the TEMP_IN and RH_IN register contents for the
// given conditions after clamping them to the supported range.
func EncodeCompensation(tempC, humPct float64) [4]byte {
	return clampCompensation(tempC, humPct).encode()
}

func (c Compensation) encode() [4]byte {
	var out [4]byte
	binary.LittleEndian.PutUint16(out[0:2], uint16((c.TemperatureC+273.15)*64))
	binary.LittleEndian.PutUint16(out[2:4], uint16(c.HumidityPct*512))
	return out
}

type ENS160Opts struct {
	Address         byte
	ResetDelay      time.Duration
	ModeSwitchDelay time.Duration
	CommandTimeout  time.Duration
	PollInterval    time.Duration
}

type ENS160Opt func(*ENS160Opts)

func WithENS160Address(address byte) ENS160Opt {
	return func(o *ENS160Opts) {
		o.Address = address
	}
}

func WithResetDelay(delay time.Duration) ENS160Opt {
	return func(o *ENS160Opts) {
		o.ResetDelay = delay
	}
}

func WithModeSwitchDelay(delay time.Duration) ENS160Opt {
	return func(o *ENS160Opts) {
		o.ModeSwitchDelay = delay
	}
}

func WithCommandTimeout(timeout time.Duration) ENS160Opt {
	return func(o *ENS160Opts) {
		o.CommandTimeout = timeout
	}
}

func WithPollInterval(interval time.Duration) ENS160Opt {
	return func(o *ENS160Opts) {
		o.PollInterval = interval
	}
}

// ENS160 represents ScioSense ENS160 digital metal-oxide multi-gas sensor.
// Typical usage:
//
//	s, err := NewENS160(ctx, bus)
//	err = s.SetCompensation(ctx, temp, hum)
//	ok, err := s.Update(ctx)
//	if ok {
//		m := s.Measurement()
//	}
//
// The driver keeps no lock. Callers sharing the bus between goroutines (or with
// other devices) must serialize whole sequences themselves.
type ENS160 struct {
	config    ENS160Opts
	transport sensors.RegisterBus
	addr      byte
	buf       []byte

	partID       uint16
	mode         Mode
	status       byte
	measurement  Measurement
	compensation Compensation
}

// NewENS160 verifies the part id, resets the device and leaves it in standard
// mode with default compensation. On error no driver is returned.
func NewENS160(ctx context.Context, transport sensors.RegisterBus, opts ...ENS160Opt) (*ENS160, error) {
	config := ENS160Opts{
		Address:         ens160DefaultAddress,
		ResetDelay:      20 * time.Millisecond,
		ModeSwitchDelay: 10 * time.Millisecond,
		CommandTimeout:  100 * time.Millisecond,
		PollInterval:    5 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(&config)
	}
	id := make([]byte, 2)
	if err := transport.ReadRegister(ctx, config.Address, regPartID, id); err != nil {
		return nil, sensors.NewError(ErrInit, fmt.Sprintf("read part id at address %#x", config.Address), err)
	}
	partID := binary.LittleEndian.Uint16(id)
	if partID != ens160PartID {
		return nil, sensors.NewError(ErrInit, fmt.Sprintf("unexpected part id %#04x, expected %#04x", partID, ens160PartID), nil)
	}
	s := &ENS160{
		config:       config,
		transport:    transport,
		addr:         config.Address,
		buf:          make([]byte, gprLength),
		partID:       partID,
		measurement:  Measurement{ECO2: 400},
		compensation: DefaultCompensation,
	}
	if err := s.restart(ctx); err != nil {
		return nil, sensors.NewError(ErrInit, "start", err)
	}
	s.mode = ModeInitialStartup
	return s, nil
}

// restart performs the soft reset sequence and brings the device back to
// standard mode with the current compensation.
func (s *ENS160) restart(ctx context.Context) error {
	if err := s.writeOpMode(ctx, opModeReset); err != nil {
		return err
	}
	if err := sensors.Sleep(ctx, s.config.ResetDelay); err != nil {
		return err
	}
	if err := s.writeOpMode(ctx, opModeIdle); err != nil {
		return err
	}
	if err := sensors.Sleep(ctx, s.config.ModeSwitchDelay); err != nil {
		return err
	}
	if err := s.writeCompensation(ctx, s.compensation); err != nil {
		return err
	}
	if err := s.writeOpMode(ctx, opModeStandard); err != nil {
		return err
	}
	return sensors.Sleep(ctx, s.config.ModeSwitchDelay)
}

// SetCompensation clamps the values to [-40, 85] °C and [0, 100] %RH and writes
// both registers in one transaction.
func (s *ENS160) SetCompensation(ctx context.Context, tempC, humPct float64) error {
	c := clampCompensation(tempC, humPct)
	if err := s.writeCompensation(ctx, c); err != nil {
		return err
	}
	s.compensation = c
	return nil
}

func (s *ENS160) writeCompensation(ctx context.Context, c Compensation) error {
	data := c.encode()
	if err := s.transport.WriteRegister(ctx, s.addr, regTempIn, data[:]); err != nil {
		return sensors.NewError(ErrCommunication, "write compensation", err)
	}
	return nil
}

func (s *ENS160) writeOpMode(ctx context.Context, mode byte) error {
	if err := s.transport.WriteRegister(ctx, s.addr, regOpMode, []byte{mode}); err != nil {
		return sensors.NewError(ErrCommunication, fmt.Sprintf("write opmode %#02x", mode), err)
	}
	return nil
}

// Update reads the device status and, when fresh data is flagged, the output
// registers. It returns true only when the cached measurement was replaced.
// Warm-up, initial start-up and missing data are reported as false without
// error; the cached measurement keeps its last good value. An error state
// triggers a reset and returns false.
func (s *ENS160) Update(ctx context.Context) (bool, error) {
	status := s.buf[:1]
	if err := s.transport.ReadRegister(ctx, s.addr, regDeviceStatus, status); err != nil {
		return false, sensors.NewError(ErrCommunication, "read device status", err)
	}
	s.status = status[0]
	s.mode = modeFromStatus(s.status)
	switch s.mode {
	case ModeError:
		slog.Debug("ens160: device reports invalid output, resetting", "status", fmt.Sprintf("%#02x", s.status))
		if err := s.Reset(ctx); err != nil {
			return false, err
		}
		return false, nil
	case ModeWarmup, ModeInitialStartup:
		return false, nil
	}
	if s.status&statusBitNewData == 0 {
		return false, nil
	}
	data := s.buf[:dataLength]
	if err := s.transport.ReadRegister(ctx, s.addr, regDataAQI, data); err != nil {
		return false, sensors.NewError(ErrCommunication, "read data registers", err)
	}
	s.measurement = decodeMeasurement(data)
	return true, nil
}

// Reset soft-resets the device and restores standard mode and compensation.
func (s *ENS160) Reset(ctx context.Context) error {
	return s.restart(ctx)
}

// FirmwareVersion runs the GET_APPVER command and returns major.minor.release.
// The device is switched to idle for the command and back to standard mode
// afterwards, also on failure.
func (s *ENS160) FirmwareVersion(ctx context.Context) (version string, err error) {
	if err := s.writeOpMode(ctx, opModeIdle); err != nil {
		return "", err
	}
	defer func() {
		restoreErr := s.writeOpMode(ctx, opModeStandard)
		if restoreErr == nil {
			restoreErr = sensors.Sleep(ctx, s.config.ModeSwitchDelay)
		}
		if err == nil && restoreErr != nil {
			version, err = "", restoreErr
		}
	}()
	if err := sensors.Sleep(ctx, s.config.ModeSwitchDelay); err != nil {
		return "", err
	}
	if err := s.transport.WriteRegister(ctx, s.addr, regCommand, []byte{cmdGetAppVer}); err != nil {
		return "", sensors.NewError(ErrCommunication, "write command", err)
	}
	if err := s.waitForGPR(ctx); err != nil {
		return "", err
	}
	gpr := s.buf[:gprLength]
	if err := s.transport.ReadRegister(ctx, s.addr, regGPRRead, gpr); err != nil {
		return "", sensors.NewError(ErrCommunication, "read general purpose registers", err)
	}
	return fmt.Sprintf("%d.%d.%d", gpr[4], gpr[5], gpr[6]), nil
}

func (s *ENS160) waitForGPR(ctx context.Context) error {
	deadline := time.Now().Add(s.config.CommandTimeout)
	status := s.buf[:1]
	for {
		if err := s.transport.ReadRegister(ctx, s.addr, regDeviceStatus, status); err != nil {
			return sensors.NewError(ErrCommunication, "read device status", err)
		}
		if status[0]&statusBitNewGPR != 0 {
			return nil
		}
		if !time.Now().Before(deadline) {
			return sensors.NewError(ErrData, fmt.Sprintf("command not completed within %s", s.config.CommandTimeout), nil)
		}
		if err := sensors.Sleep(ctx, s.config.PollInterval); err != nil {
			return err
		}
	}
}

// RawResistance returns the raw value of hot plate 1 or 4 from the general
// purpose registers. The value is logarithmic: R[Ω] = 2^(raw/2048).
func (s *ENS160) RawResistance(ctx context.Context, sensorNum int) (uint16, error) {
	var offset int
	switch sensorNum {
	case 1:
		offset = 0
	case 4:
		offset = 6
	default:
		return 0, sensors.NewError(ErrInvalidArgument, fmt.Sprintf("sensor number must be 1 or 4, got %d", sensorNum), nil)
	}
	gpr := s.buf[:gprLength]
	if err := s.transport.ReadRegister(ctx, s.addr, regGPRRead, gpr); err != nil {
		return 0, sensors.NewError(ErrCommunication, "read general purpose registers", err)
	}
	return binary.LittleEndian.Uint16(gpr[offset : offset+2]), nil
}

func (s *ENS160) PartID() uint16 {
	return s.partID
}

func (s *ENS160) Mode() Mode {
	return s.mode
}

// Status returns "OK", "Warm-up", "Initial Startup" or "Error".
func (s *ENS160) Status() string {
	return s.mode.String()
}

// DeviceStatus returns the raw DEVICE_STATUS byte of the last update.
func (s *ENS160) DeviceStatus() byte {
	return s.status
}

func (s *ENS160) WarmingUp() bool {
	return s.mode == ModeWarmup
}

func (s *ENS160) Measurement() Measurement {
	return s.measurement
}

func (s *ENS160) AQI() uint8 {
	return s.measurement.AQI
}

func (s *ENS160) TVOC() uint16 {
	return s.measurement.TVOC
}

func (s *ENS160) ECO2() uint16 {
	return s.measurement.ECO2
}

func (s *ENS160) Compensation() Compensation {
	return s.compensation
}
