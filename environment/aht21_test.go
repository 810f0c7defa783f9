package environment

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/physic"
)

// MockI2CBus is a mock implementation of sensors.I2CBus using testify/mock
type MockI2CBus struct {
	mock.Mock
}

func (m *MockI2CBus) WriteToAddr(ctx context.Context, address byte, buffer []byte) error {
	args := m.Called(ctx, address, buffer)
	return args.Error(0)
}

func (m *MockI2CBus) ReadFromAddr(ctx context.Context, address byte, buffer []byte) error {
	args := m.Called(ctx, address, len(buffer))
	if data, ok := args.Get(0).([]byte); ok {
		copy(buffer, data)
	}
	return args.Error(1)
}

func (m *MockI2CBus) Release(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

const testAddr = byte(aht21DefaultAddress)

// 50 %RH, ~30 °C
var validFrame = []byte{0x1C, 0x80, 0x00, 0x06, 0x66, 0x66, 0x5C}

func (m *MockI2CBus) expectStatus(status byte) *mock.Call {
	m.On("WriteToAddr", mock.Anything, testAddr, aht21CmdStatus).Return(nil).Once()
	return m.On("ReadFromAddr", mock.Anything, testAddr, 1).Return([]byte{status}, nil).Once()
}

func (m *MockI2CBus) expectTrigger() *mock.Call {
	return m.On("WriteToAddr", mock.Anything, testAddr, aht21CmdMeasure).Return(nil).Once()
}

func (m *MockI2CBus) expectFrame(frame []byte) *mock.Call {
	return m.On("ReadFromAddr", mock.Anything, testAddr, aht21FrameLength).Return(frame, nil).Once()
}

func testOpts() []AHT21Opt {
	return []AHT21Opt{
		WithInitDelay(0),
		WithSoftResetDelay(0),
		WithMeasurementDelay(0),
		WithBusyTimeout(0),
		WithPollInterval(0),
		WithRetryDelay(0),
	}
}

func newTestAHT21(t *testing.T, bus *MockI2CBus) *AHT21 {
	t.Helper()
	bus.expectStatus(0x18)
	s, err := NewAHT21(context.Background(), bus, testOpts()...)
	require.NoError(t, err)
	require.True(t, s.Calibrated())
	return s
}

func corrupt(frame []byte) []byte {
	bad := append([]byte(nil), frame...)
	bad[6] ^= 0xFF
	return bad
}

func TestCRC8(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want byte
	}{
		{"check string", []byte("123456789"), 0xF7},
		{"two bytes", []byte{0xBE, 0xEF}, 0x92},
		{"measurement frame", []byte{0x18, 0x75, 0x52, 0x05, 0x8E, 0x40}, 0x7F},
		{"fixture frame", validFrame[:6], 0x5C},
		{"empty", []byte{}, 0xFF},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CRC8(tt.data))
		})
	}
}

func TestCRC8_DetectsSingleBitFlips(t *testing.T) {
	original := CRC8(validFrame[:6])
	for i := 0; i < 6; i++ {
		for bit := 0; bit < 8; bit++ {
			data := append([]byte(nil), validFrame[:6]...)
			data[i] ^= 1 << bit
			assert.NotEqual(t, original, CRC8(data), "flip of byte %d bit %d not detected", i, bit)
		}
	}
}

func TestDecodeFrame(t *testing.T) {
	tests := []struct {
		name     string
		frame    []byte
		wantHum  float64
		wantTemp float64
	}{
		{"half scale", validFrame, 50.0, 30.0},
		{"room conditions", []byte{0x18, 0x75, 0x52, 0x05, 0x8E, 0x40, 0x7F}, 45.83, 19.45},
		{"minimum", []byte{0x18, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00}, 0, -50},
		{"maximum", []byte{0x18, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0x00}, 100, 150},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hum, temp := decodeFrame(tt.frame)
			assert.InDelta(t, tt.wantHum, hum, 0.01)
			assert.InDelta(t, tt.wantTemp, temp, 0.01)
		})
	}
}

func TestAHT21_New(t *testing.T) {
	bus := new(MockI2CBus)
	s := newTestAHT21(t, bus)
	assert.Equal(t, 0.0, s.LastTemperature())
	assert.Equal(t, 0.0, s.LastHumidity())
	bus.AssertExpectations(t)
}

func TestAHT21_New_CustomAddress(t *testing.T) {
	bus := new(MockI2CBus)
	bus.On("WriteToAddr", mock.Anything, byte(0x39), aht21CmdStatus).Return(nil).Once()
	bus.On("ReadFromAddr", mock.Anything, byte(0x39), 1).Return([]byte{0x08}, nil).Once()
	_, err := NewAHT21(context.Background(), bus, append(testOpts(), WithAHT21Address(0x39))...)
	require.NoError(t, err)
	bus.AssertExpectations(t)
}

func TestAHT21_Calibrate_SendsInitialization(t *testing.T) {
	bus := new(MockI2CBus)
	bus.expectStatus(0x10)
	bus.On("WriteToAddr", mock.Anything, testAddr, aht21CmdInitialize).Return(nil).Once()
	bus.expectStatus(0x18)

	s, err := NewAHT21(context.Background(), bus, testOpts()...)
	require.NoError(t, err)
	assert.True(t, s.Calibrated())
	bus.AssertExpectations(t)
}

func TestAHT21_Calibrate_Fails(t *testing.T) {
	bus := new(MockI2CBus)
	bus.On("WriteToAddr", mock.Anything, testAddr, aht21CmdStatus).Return(nil).Times(4)
	bus.On("ReadFromAddr", mock.Anything, testAddr, 1).Return([]byte{0x00}, nil).Times(4)
	bus.On("WriteToAddr", mock.Anything, testAddr, aht21CmdInitialize).Return(nil).Times(3)

	s, err := NewAHT21(context.Background(), bus, testOpts()...)
	require.Error(t, err)
	assert.Nil(t, s)
	assert.ErrorIs(t, err, ErrCalibration)
	assert.ErrorIs(t, err, ErrAHT21)
	bus.AssertExpectations(t)
}

func TestAHT21_Calibrate_BusError(t *testing.T) {
	busErr := errors.New("nack")
	bus := new(MockI2CBus)
	bus.On("WriteToAddr", mock.Anything, testAddr, aht21CmdStatus).Return(busErr).Once()

	s, err := NewAHT21(context.Background(), bus, testOpts()...)
	require.Error(t, err)
	assert.Nil(t, s)
	assert.ErrorIs(t, err, ErrCommunication)
	assert.ErrorIs(t, err, busErr)
	assert.EqualError(t, err, "aht21: communication failure: write status command: nack")
}

func TestAHT21_Calibrate_NegativeAttempts(t *testing.T) {
	bus := new(MockI2CBus)
	bus.expectStatus(0x00)

	s, err := NewAHT21(context.Background(), bus, append(testOpts(), WithCalibrationAttempts(-1))...)
	require.Error(t, err)
	assert.Nil(t, s)
	assert.ErrorIs(t, err, ErrCalibration)
	bus.AssertExpectations(t)
	bus.AssertNotCalled(t, "WriteToAddr", mock.Anything, testAddr, aht21CmdInitialize)
}

func TestAHT21_New_ResetOnInit(t *testing.T) {
	bus := new(MockI2CBus)
	reset := bus.On("WriteToAddr", mock.Anything, testAddr, aht21CmdSoftReset).Return(nil).Once()
	bus.expectStatus(0x18).NotBefore(reset)

	s, err := NewAHT21(context.Background(), bus, append(testOpts(), WithResetOnInit(true), WithPowerUpDelay(0))...)
	require.NoError(t, err)
	assert.True(t, s.Calibrated())
	bus.AssertExpectations(t)
}

func TestAHT21_New_ResetOnInitBusError(t *testing.T) {
	busErr := errors.New("nack")
	bus := new(MockI2CBus)
	bus.On("WriteToAddr", mock.Anything, testAddr, aht21CmdSoftReset).Return(busErr).Once()

	s, err := NewAHT21(context.Background(), bus, append(testOpts(), WithResetOnInit(true), WithPowerUpDelay(0))...)
	require.Error(t, err)
	assert.Nil(t, s)
	assert.ErrorIs(t, err, ErrCommunication)
	bus.AssertExpectations(t)
}

func TestAHT21_ReadTemperatureHumidity(t *testing.T) {
	bus := new(MockI2CBus)
	s := newTestAHT21(t, bus)

	bus.expectTrigger()
	bus.expectStatus(0x1C)
	bus.expectFrame(validFrame)

	temp, hum, err := s.ReadTemperatureHumidity(context.Background(), 3)
	require.NoError(t, err)
	assert.InDelta(t, 30.0, temp, 0.01)
	assert.InDelta(t, 50.0, hum, 0.01)
	assert.Equal(t, temp, s.LastTemperature())
	assert.Equal(t, hum, s.LastHumidity())
	bus.AssertExpectations(t)
}

func TestAHT21_ReadTemperatureHumidity_PollsWhileBusy(t *testing.T) {
	bus := new(MockI2CBus)
	bus.expectStatus(0x18)
	s, err := NewAHT21(context.Background(), bus, append(testOpts(), WithBusyTimeout(time.Second))...)
	require.NoError(t, err)

	bus.expectTrigger()
	bus.expectStatus(0x9C)
	bus.expectStatus(0x9C)
	bus.expectStatus(0x1C)
	bus.expectFrame(validFrame)

	_, hum, err := s.Read(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 50.0, hum, 0.01)
	bus.AssertExpectations(t)
}

func TestAHT21_ReadTemperatureHumidity_PersistentCRCFailure(t *testing.T) {
	bus := new(MockI2CBus)
	s := newTestAHT21(t, bus)

	bus.On("WriteToAddr", mock.Anything, testAddr, aht21CmdMeasure).Return(nil).Times(3)
	bus.On("WriteToAddr", mock.Anything, testAddr, aht21CmdStatus).Return(nil).Times(3)
	bus.On("ReadFromAddr", mock.Anything, testAddr, 1).Return([]byte{0x1C}, nil).Times(3)
	bus.On("ReadFromAddr", mock.Anything, testAddr, aht21FrameLength).Return(corrupt(validFrame), nil).Times(3)

	_, _, err := s.ReadTemperatureHumidity(context.Background(), 3)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCRC)
	assert.NotErrorIs(t, err, ErrTimeout)
	assert.EqualError(t, err, "aht21: crc mismatch: calculated 0x5c, received 0xa3")
	bus.AssertExpectations(t)
}

func TestAHT21_ReadTemperatureHumidity_RecoversAfterCRCFailure(t *testing.T) {
	bus := new(MockI2CBus)
	s := newTestAHT21(t, bus)

	bus.expectTrigger()
	bus.expectStatus(0x1C)
	bus.expectFrame(corrupt(validFrame))
	bus.expectTrigger()
	bus.expectStatus(0x1C)
	bus.expectFrame(validFrame)

	temp, _, err := s.ReadTemperatureHumidity(context.Background(), 3)
	require.NoError(t, err)
	assert.InDelta(t, 30.0, temp, 0.01)
	bus.AssertExpectations(t)
}

func TestAHT21_ReadTemperatureHumidity_Timeout(t *testing.T) {
	bus := new(MockI2CBus)
	s := newTestAHT21(t, bus)

	bus.On("WriteToAddr", mock.Anything, testAddr, aht21CmdMeasure).Return(nil).Times(2)
	bus.On("WriteToAddr", mock.Anything, testAddr, aht21CmdStatus).Return(nil).Times(2)
	bus.On("ReadFromAddr", mock.Anything, testAddr, 1).Return([]byte{0x9C}, nil).Times(2)

	_, _, err := s.ReadTemperatureHumidity(context.Background(), 2)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.NotErrorIs(t, err, ErrCRC)
	bus.AssertExpectations(t)
}

func TestAHT21_ReadTemperatureHumidity_LastFailureWins(t *testing.T) {
	bus := new(MockI2CBus)
	s := newTestAHT21(t, bus)

	bus.expectTrigger()
	bus.expectStatus(0x1C)
	bus.expectFrame(corrupt(validFrame))
	bus.expectTrigger()
	bus.expectStatus(0x9C)

	_, _, err := s.ReadTemperatureHumidity(context.Background(), 2)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.NotErrorIs(t, err, ErrCRC)
	bus.AssertExpectations(t)
}

func TestAHT21_ReadTemperatureHumidity_ZeroRetriesMakesOneAttempt(t *testing.T) {
	bus := new(MockI2CBus)
	s := newTestAHT21(t, bus)

	bus.expectTrigger()
	bus.expectStatus(0x1C)
	bus.expectFrame(corrupt(validFrame))

	_, _, err := s.ReadTemperatureHumidity(context.Background(), 0)
	assert.ErrorIs(t, err, ErrCRC)
	bus.AssertExpectations(t)
}

func TestAHT21_ReadTemperatureHumidity_TransportErrorAborts(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(bus *MockI2CBus, busErr error)
		wantMsg string
	}{
		{
			name: "trigger write fails",
			setup: func(bus *MockI2CBus, busErr error) {
				bus.On("WriteToAddr", mock.Anything, testAddr, aht21CmdMeasure).Return(busErr).Once()
			},
			wantMsg: "aht21: communication failure: write measurement command: bus fault",
		},
		{
			name: "status read fails",
			setup: func(bus *MockI2CBus, busErr error) {
				bus.expectTrigger()
				bus.On("WriteToAddr", mock.Anything, testAddr, aht21CmdStatus).Return(nil).Once()
				bus.On("ReadFromAddr", mock.Anything, testAddr, 1).Return(nil, busErr).Once()
			},
			wantMsg: "aht21: communication failure: read status: bus fault",
		},
		{
			name: "frame read fails",
			setup: func(bus *MockI2CBus, busErr error) {
				bus.expectTrigger()
				bus.expectStatus(0x1C)
				bus.On("ReadFromAddr", mock.Anything, testAddr, aht21FrameLength).Return(nil, busErr).Once()
			},
			wantMsg: "aht21: communication failure: read measurement: bus fault",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bus := new(MockI2CBus)
			s := newTestAHT21(t, bus)
			busErr := errors.New("bus fault")
			tt.setup(bus, busErr)

			_, _, err := s.ReadTemperatureHumidity(context.Background(), 3)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrCommunication)
			assert.ErrorIs(t, err, busErr)
			assert.EqualError(t, err, tt.wantMsg)
			bus.AssertExpectations(t)
		})
	}
}

func TestAHT21_ReadTemperatureHumidity_ContextCancelled(t *testing.T) {
	bus := new(MockI2CBus)
	bus.expectStatus(0x18)
	s, err := NewAHT21(context.Background(), bus, append(testOpts(), WithMeasurementDelay(time.Second))...)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	bus.expectTrigger()

	_, _, err = s.ReadTemperatureHumidity(ctx, 3)
	assert.ErrorIs(t, err, context.Canceled)
	bus.AssertExpectations(t)
}

func TestAHT21_SoftReset(t *testing.T) {
	bus := new(MockI2CBus)
	s := newTestAHT21(t, bus)

	bus.On("WriteToAddr", mock.Anything, testAddr, aht21CmdSoftReset).Return(nil).Once()
	require.NoError(t, s.SoftReset(context.Background()))
	assert.False(t, s.Calibrated())

	_, _, err := s.ReadTemperatureHumidity(context.Background(), 3)
	assert.ErrorIs(t, err, ErrNotCalibrated)

	bus.expectStatus(0x18)
	require.NoError(t, s.Calibrate(context.Background()))
	assert.True(t, s.Calibrated())
	bus.AssertExpectations(t)
}

func TestAHT21_Sense(t *testing.T) {
	bus := new(MockI2CBus)
	s := newTestAHT21(t, bus)

	bus.expectTrigger()
	bus.expectStatus(0x1C)
	bus.expectFrame(validFrame)

	var env physic.Env
	require.NoError(t, s.Sense(context.Background(), &env))
	assert.InDelta(t, 30.0, float64(env.Temperature-physic.ZeroCelsius)/float64(physic.Celsius), 0.01)
	assert.InDelta(t, 50.0, float64(env.Humidity)/float64(physic.PercentRH), 0.01)
	assert.Equal(t, physic.Pressure(0), env.Pressure)
	bus.AssertExpectations(t)
}
