package aht20dev

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sensorcode-go/errcode"
	"sensorcode-go/services/config"
	"sensorcode-go/services/devices"
	"sensorcode-go/services/platform"
	"sensorcode-go/services/sensor"
	"sensorcode-go/types"
	"sensorcode-go/x/timex"
)

// fakeChip models calibration, a busy period after each trigger and the
// 7-byte result frame.
type fakeChip struct {
	mu         sync.Mutex
	calibrated bool
	busyReads  int
	busy       int
	frame      [6]byte
	fail       error
	cmds       []byte
}

func (c *fakeChip) respond(_ uint16, w, r []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail != nil {
		return c.fail
	}
	if len(w) > 0 {
		c.cmds = append(c.cmds, w[0])
		switch w[0] {
		case cmdStatus:
			r[0] = 0
			if c.calibrated {
				r[0] = statusCalibrated
			}
		case cmdInitialize:
			c.calibrated = true
		case cmdSoftReset:
			c.calibrated = false
		case cmdTrigger:
			c.busy = c.busyReads
		}
		return nil
	}
	copy(r, c.frame[:])
	if c.calibrated {
		r[0] |= statusCalibrated
	}
	if c.busy > 0 {
		c.busy--
		r[0] |= statusBusy
	}
	return nil
}

// 25 °C and 50 %RH.
var frame25C50RH = [6]byte{0x10, 0x80, 0x00, 0x06, 0x00, 0x00}

func setup(t *testing.T, c *fakeChip, params map[string]float64) (*sensor.Manager, *sensor.Sensor) {
	t.Helper()
	buses := platform.DefaultI2CFactory()
	host, _ := buses.Host("i2c1")
	host.Attach(Addr, c.respond)

	m := sensor.NewManager(sensor.Config{
		Clock:       timex.NewFake(1000, 0),
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		ReadTimeout: time.Second,
	})
	t.Cleanup(m.Close)
	inst, err := devices.Install(context.Background(), m, devices.Env{Buses: buses}, []config.SensorConfig{
		{Name: "env1", Driver: "aht20", Bus: "i2c1", Types: []string{"temperature", "relative_humidity"}, Params: params},
	})
	require.NoError(t, err)
	t.Cleanup(inst.Close)
	return m, inst.Sensors()[0]
}

func readAll(t *testing.T, m *sensor.Manager, s *sensor.Sensor) map[types.SensorType]types.Data {
	t.Helper()
	got := map[types.SensorType]types.Data{}
	err := m.Read(context.Background(), s, types.TypeAll, func(_ *sensor.Sensor, t types.SensorType, d types.Data) error {
		got[t] = d
		return nil
	})
	require.NoError(t, err)
	return got
}

func TestSampleConversion(t *testing.T) {
	s := Sample{RawHumidity: 0x80000, RawTemp: 0x60000}
	assert.InDelta(t, 25.0, s.Celsius(), 1e-9)
	assert.InDelta(t, 50.0, s.RelHumidity(), 1e-9)
}

func TestReadCalibratesThenMeasures(t *testing.T) {
	c := &fakeChip{frame: frame25C50RH}
	m, s := setup(t, c, nil)

	got := readAll(t, m, s)
	assert.Equal(t, types.TempData{Temp: types.F(25)}, got[types.TypeTemperature])
	assert.Equal(t, types.HumidData{Humid: types.F(50)}, got[types.TypeRelativeHumidity])
	assert.Equal(t, []byte{cmdStatus, cmdInitialize, cmdTrigger}, c.cmds)

	// Calibration is not repeated.
	readAll(t, m, s)
	assert.Equal(t, []byte{cmdStatus, cmdInitialize, cmdTrigger, cmdTrigger}, c.cmds)
}

func TestReadWaitsWhileBusy(t *testing.T) {
	c := &fakeChip{calibrated: true, busyReads: 2, frame: frame25C50RH}
	m, s := setup(t, c, map[string]float64{"poll_ms": 1})

	got := readAll(t, m, s)
	assert.Equal(t, types.TempData{Temp: types.F(25)}, got[types.TypeTemperature])
	assert.Equal(t, 0, c.busy)
}

func TestReadTimesOutOnStuckChip(t *testing.T) {
	c := &fakeChip{calibrated: true, busyReads: 1 << 30, frame: frame25C50RH}
	m, s := setup(t, c, map[string]float64{"poll_ms": 1})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	err := m.Read(ctx, s, types.TypeTemperature, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestBusFailureRecalibrates(t *testing.T) {
	nack := errors.New("nack")
	c := &fakeChip{frame: frame25C50RH}
	m, s := setup(t, c, nil)
	readAll(t, m, s)

	c.mu.Lock()
	c.fail = nack
	c.mu.Unlock()
	err := m.Read(context.Background(), s, types.TypeTemperature, nil)
	assert.ErrorIs(t, err, errcode.CommFailure)
	assert.ErrorIs(t, err, nack)

	c.mu.Lock()
	c.fail = nil
	c.cmds = nil
	c.mu.Unlock()
	readAll(t, m, s)
	assert.Equal(t, byte(cmdStatus), c.cmds[0])
}

func TestResetForcesCalibration(t *testing.T) {
	c := &fakeChip{frame: frame25C50RH}
	m, s := setup(t, c, nil)
	readAll(t, m, s)

	require.NoError(t, s.Driver().(*Device).Reset())
	c.mu.Lock()
	c.cmds = nil
	c.mu.Unlock()
	readAll(t, m, s)
	assert.Equal(t, []byte{cmdStatus, cmdInitialize, cmdTrigger}, c.cmds)
}

func TestBuildValidation(t *testing.T) {
	buses := platform.DefaultI2CFactory()
	cases := []struct {
		name string
		sc   config.SensorConfig
		code errcode.Code
	}{
		{"no bus", config.SensorConfig{Name: "a", Types: []string{"temperature"}}, errcode.InvalidArgument},
		{"bad type", config.SensorConfig{Name: "a", Bus: "i2c0", Types: []string{"pressure"}}, errcode.InvalidArgument},
		{"bad poll", config.SensorConfig{Name: "a", Bus: "i2c0", Types: []string{"temperature"}, Params: map[string]float64{"poll_ms": 0}}, errcode.InvalidArgument},
		{"unknown bus", config.SensorConfig{Name: "a", Bus: "i2c7", Types: []string{"temperature"}}, errcode.NoDevice},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			caps, err := tc.sc.TypeMask()
			require.NoError(t, err)
			_, err = builder{}.Build(devices.BuildInput{Config: tc.sc, Types: caps, Buses: buses})
			assert.ErrorIs(t, err, tc.code)
		})
	}
}
