package telemetry

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yl5006/sitl-gazebo/internal/geo"
	"github.com/yl5006/sitl-gazebo/internal/mavlink"
	"github.com/yl5006/sitl-gazebo/internal/noise"
	"github.com/yl5006/sitl-gazebo/internal/sensor"
	"gonum.org/v1/gonum/spatial/r3"
)

// quietConfig keeps the default rates but removes every noise term.
func quietConfig() Config {
	cfg := DefaultConfig()
	cfg.Imu.Gyro = noise.Params{}
	cfg.Imu.Accel = noise.Params{}
	cfg.Imu.Mag = noise.Params{}
	cfg.Imu.Baro = noise.Params{}
	cfg.Gps.Horizontal = noise.Params{}
	cfg.Gps.Vertical = noise.Params{}
	cfg.Gps.VelocityHorizontal = noise.Params{}
	cfg.Gps.VelocityVertical = noise.Params{}
	cfg.Vision.Noise = noise.Params{}
	return cfg
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Gps.Interval = -time.Second
	_, err := New(cfg)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	cfg = DefaultConfig()
	cfg.Imu.Accel.Tau = -1
	_, err = New(cfg)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	cfg = DefaultConfig()
	cfg.Home = geo.LLA{Lat: 91}
	_, err = New(cfg)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestProcess_GpsSuppressedWithinInterval(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Gps.Interval = 100 * time.Millisecond
	p, err := New(cfg)
	require.NoError(t, err)

	fix := sensor.Gps{At: time.Second, Position: geo.LLA{Lat: 47.0, Lon: 8.5, Alt: 500.0}}
	msg, err := p.Process(fix)
	require.NoError(t, err)
	assert.IsType(t, &mavlink.HilGps{}, msg)

	fix.At += 50 * time.Millisecond
	msg, err = p.Process(fix)
	assert.ErrorIs(t, err, noise.ErrSuppressed)
	assert.Nil(t, msg)

	fix.At += 50 * time.Millisecond
	msg, err = p.Process(fix)
	require.NoError(t, err)
	assert.NotNil(t, msg)
}

func TestProcess_GpsWithoutNoise(t *testing.T) {
	p, err := New(quietConfig())
	require.NoError(t, err)

	msg, err := p.Process(sensor.Gps{
		At:       time.Second,
		Position: geo.LLA{Lat: 47.0, Lon: 8.5, Alt: 500.0},
		Velocity: r3.Vec{X: 3, Y: 4},
	})
	require.NoError(t, err)

	gps := msg.(*mavlink.HilGps)
	assert.Equal(t, uint64(1_000_000), gps.TimeUsec)
	assert.Equal(t, int32(470000000), gps.Lat)
	assert.Equal(t, int32(85000000), gps.Lon)
	assert.Equal(t, int32(500000), gps.Alt)
	// ENU (3, 4) is 4 north, 3 east
	assert.Equal(t, int16(400), gps.Vn)
	assert.Equal(t, int16(300), gps.Ve)
	assert.Equal(t, uint16(500), gps.Vel)
	assert.InDelta(t, 3687, int(gps.Cog), 1)
	assert.EqualValues(t, mavlink.GpsFix3D, gps.FixType)
	assert.Equal(t, uint8(10), gps.SatellitesVisible)
	assert.Equal(t, uint16(100), gps.Eph)
}

func TestProcess_ImuWithoutNoise(t *testing.T) {
	p, err := New(quietConfig())
	require.NoError(t, err)

	pos := geo.LLA{Lat: 47.0, Lon: 8.5, Alt: 500}
	msg, err := p.Process(sensor.Imu{
		At:                 4 * time.Millisecond,
		AngularVelocity:    r3.Vec{X: 0.1, Y: 0.2, Z: 0.3},
		LinearAcceleration: r3.Vec{Z: 9.81},
		Position:           pos,
	})
	require.NoError(t, err)

	imu := msg.(*mavlink.HilSensor)
	assert.InDelta(t, -9.81, imu.Zacc, 1e-5)
	assert.InDelta(t, 0.1, imu.Xgyro, 1e-6)
	assert.InDelta(t, -0.2, imu.Ygyro, 1e-6)
	assert.InDelta(t, -0.3, imu.Zgyro, 1e-6)

	// identity orientation faces east: body forward is NED east, right is south
	field := geo.MagneticField(pos.Lat, pos.Lon)
	assert.InDelta(t, field.Y, imu.Xmag, 1e-5)
	assert.InDelta(t, -field.X, imu.Ymag, 1e-5)
	assert.InDelta(t, field.Z, imu.Zmag, 1e-5)
	assert.Greater(t, imu.Zmag, float32(0))

	pressure, temperature := geo.Atmosphere(500)
	assert.InDelta(t, pressure, imu.AbsPressure, 1e-3)
	assert.InDelta(t, temperature, imu.Temperature, 1e-3)
	assert.InDelta(t, 954.6, imu.AbsPressure, 0.1)
	assert.Equal(t, float32(500), imu.PressureAlt)
	assert.EqualValues(t, mavlink.HilSensorFieldsAll, imu.FieldsUpdated)
}

func TestProcess_ImuDefaultsToHomePosition(t *testing.T) {
	cfg := quietConfig()
	p, err := New(cfg)
	require.NoError(t, err)

	msg, err := p.Process(sensor.Imu{At: time.Millisecond})
	require.NoError(t, err)
	assert.Equal(t, float32(cfg.Home.Alt), msg.(*mavlink.HilSensor).PressureAlt)
}

func TestProcess_ClockNonMonotonic(t *testing.T) {
	p, err := New(DefaultConfig())
	require.NoError(t, err)

	_, err = p.Process(sensor.Imu{At: 10 * time.Millisecond})
	require.NoError(t, err)

	_, err = p.Process(sensor.Imu{At: 10 * time.Millisecond})
	assert.ErrorIs(t, err, noise.ErrClockNonMonotonic)

	_, err = p.Process(sensor.Imu{At: 2 * time.Millisecond})
	assert.ErrorIs(t, err, noise.ErrClockNonMonotonic)

	_, err = p.Process(sensor.Imu{At: 14 * time.Millisecond})
	assert.NoError(t, err)
}

func TestProcess_RateGateAcrossTicks(t *testing.T) {
	p, err := New(DefaultConfig())
	require.NoError(t, err)

	const step = 3 * time.Millisecond
	var emitted []time.Duration
	for now := step; now < 2*time.Second; now += step {
		_, err := p.Process(sensor.Lidar{At: now, Distance: 2, MaxDistance: 40})
		if err != nil {
			require.ErrorIs(t, err, noise.ErrSuppressed)
			continue
		}
		emitted = append(emitted, now)
	}

	require.NotEmpty(t, emitted)
	for i := 1; i < len(emitted); i++ {
		gap := emitted[i] - emitted[i-1]
		assert.GreaterOrEqual(t, gap, 20*time.Millisecond)
		assert.Less(t, gap, 20*time.Millisecond+step)
	}
}

func TestProcess_Groundtruth(t *testing.T) {
	p, err := New(DefaultConfig())
	require.NoError(t, err)

	msg, err := p.Process(sensor.Groundtruth{
		At:                 time.Second,
		Position:           geo.LLA{Lat: 47.3977418, Lon: 8.5455938, Alt: 488},
		Velocity:           r3.Vec{X: 1, Y: 2, Z: 0.5},
		LinearAcceleration: r3.Vec{Z: 9.80665},
		AngularVelocity:    r3.Vec{Z: 0.4},
		Airspeed:           12.5,
	})
	require.NoError(t, err)

	gt := msg.(*mavlink.HilStateQuaternion)
	assert.Equal(t, int32(473977418), gt.Lat)
	assert.Equal(t, int32(85455938), gt.Lon)
	assert.Equal(t, int32(488000), gt.Alt)
	assert.Equal(t, int16(200), gt.Vx)
	assert.Equal(t, int16(100), gt.Vy)
	assert.Equal(t, int16(-50), gt.Vz)
	assert.Equal(t, int16(-1000), gt.Zacc)
	assert.InDelta(t, -0.4, gt.Yawspeed, 1e-6)
	assert.Equal(t, uint16(1250), gt.TrueAirspeed)

	// facing east is a 90 degree NED yaw
	q := gt.AttitudeQuaternion
	yaw := math.Atan2(2*float64(q[0]*q[3]+q[1]*q[2]), 1-2*float64(q[2]*q[2]+q[3]*q[3]))
	assert.InDelta(t, math.Pi/2, yaw, 1e-5)
}

func TestProcess_RangefinderClamped(t *testing.T) {
	p, err := New(DefaultConfig())
	require.NoError(t, err)

	msg, err := p.Process(sensor.Lidar{At: time.Second, Distance: 50, MinDistance: 0.1, MaxDistance: 40, ID: 3})
	require.NoError(t, err)
	d := msg.(*mavlink.DistanceSensor)
	assert.Equal(t, uint16(4000), d.CurrentDistance)
	assert.Equal(t, uint16(10), d.MinDistance)
	assert.EqualValues(t, mavlink.DistanceLaser, d.Type)
	assert.Equal(t, uint8(3), d.Id)
	assert.Equal(t, uint32(1000), d.TimeBootMs)

	msg, err = p.Process(sensor.Sonar{At: time.Second, Distance: 0.01, MinDistance: 0.2, MaxDistance: 5})
	require.NoError(t, err)
	d = msg.(*mavlink.DistanceSensor)
	assert.Equal(t, uint16(20), d.CurrentDistance)
	assert.EqualValues(t, mavlink.DistanceUltrasound, d.Type)
}

func TestProcess_VisionRelativeToFirstSample(t *testing.T) {
	p, err := New(quietConfig())
	require.NoError(t, err)

	origin := r3.Vec{X: 10, Y: 5, Z: 1}
	msg, err := p.Process(sensor.Vision{At: time.Second, Position: origin})
	require.NoError(t, err)
	first := msg.(*mavlink.VisionPositionEstimate)
	assert.InDelta(t, 0, first.X, 1e-6)
	assert.InDelta(t, 0, first.Y, 1e-6)
	assert.InDelta(t, 0, first.Z, 1e-6)

	msg, err = p.Process(sensor.Vision{At: 2 * time.Second, Position: r3.Add(origin, r3.Vec{X: 1, Z: 2})})
	require.NoError(t, err)
	second := msg.(*mavlink.VisionPositionEstimate)
	assert.InDelta(t, 0, second.X, 1e-6)
	assert.InDelta(t, 1, second.Y, 1e-6)
	assert.InDelta(t, -2, second.Z, 1e-6)
	assert.InDelta(t, math.Pi/2, second.Yaw, 1e-6)
}

func TestProcess_PassThroughStreams(t *testing.T) {
	p, err := New(DefaultConfig())
	require.NoError(t, err)

	msg, err := p.Process(sensor.OpticalFlow{
		At: time.Second, IntegrationTime: 20 * time.Millisecond,
		IntegratedX: 0.01, IntegratedGyro: r3.Vec{Y: 0.5},
		Distance: 3, Temperature: 21.5, Quality: 200, SensorID: 1,
	})
	require.NoError(t, err)
	flow := msg.(*mavlink.HilOpticalFlow)
	assert.Equal(t, uint32(20000), flow.IntegrationTimeUs)
	assert.InDelta(t, -0.5, flow.IntegratedYgyro, 1e-6)
	assert.Equal(t, int16(2150), flow.Temperature)

	msg, err = p.Process(sensor.BeaconDetect{At: time.Second, AngleX: 0.1, Distance: 4, TargetNum: 2})
	require.NoError(t, err)
	target := msg.(*mavlink.LandingTarget)
	assert.EqualValues(t, mavlink.FrameBodyNED, target.Frame)
	assert.Equal(t, uint8(2), target.TargetNum)
}

func TestProcess_Deterministic(t *testing.T) {
	run := func() []mavlink.Message {
		p, err := New(DefaultConfig())
		require.NoError(t, err)
		var out []mavlink.Message
		for i := 1; i <= 50; i++ {
			msg, err := p.Process(sensor.Imu{At: time.Duration(i) * 4 * time.Millisecond})
			require.NoError(t, err)
			out = append(out, msg)
		}
		return out
	}
	assert.Equal(t, run(), run())
}
