package convert

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yl5006/sitl-gazebo/pkg/core"
)

var zurich = core.Geodetic{Lat: 47.397742, Lon: 8.545594, Alt: 488}

func TestGeodeticToPoint(t *testing.T) {
	pt := geodeticToPoint(zurich)

	coord, ok := pt.Coordinates()
	require.True(t, ok)
	assert.InDelta(t, 951291.2, coord.XY.X, 1)
	assert.InDelta(t, 6007239.1, coord.XY.Y, 1)
	assert.Equal(t, 488.0, coord.Z)
}

func TestGeodeticToPoint_Invalid(t *testing.T) {
	pt := geodeticToPoint(core.Geodetic{Lat: 91})
	assert.True(t, pt.IsEmpty())
}

func TestCoreToSession(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := core.Session{
		ID:        3,
		UUID:      "c0ffee00-0000-4000-8000-000000000001",
		Name:      "bench",
		SystemID:  1,
		Transport: "0.0.0.0:14560",
		Home:      zurich,
		StartTime: start,
	}

	m := CoreToSession(s)
	assert.Equal(t, uint(3), m.ID)
	assert.Equal(t, s.UUID, m.UUID)
	assert.Equal(t, "bench", m.Name)
	assert.Equal(t, 488.0, m.HomeAltitude)
	assert.Equal(t, start, m.StartTime)
	assert.False(t, m.EndTime.Valid)
	assert.False(t, m.Home.IsEmpty())

	s.EndTime = start.Add(time.Minute)
	m = CoreToSession(s)
	assert.True(t, m.EndTime.Valid)
	assert.Equal(t, start.Add(time.Minute), m.EndTime.Time)
}

func TestCoreToLinkEvent(t *testing.T) {
	now := time.Now()
	m := CoreToLinkEvent(core.LinkEvent{Time: now, From: "connected", To: "running", Peer: "127.0.0.1:14580"}, 9)
	assert.Equal(t, uint(9), m.SessionID)
	assert.Equal(t, "connected", m.FromState)
	assert.Equal(t, "running", m.ToState)
	assert.Equal(t, "127.0.0.1:14580", m.Peer)
	assert.Equal(t, now, m.Time)
}

func TestCoreToTrackPoint(t *testing.T) {
	p := core.TrackPoint{
		SimTime:  1500 * time.Millisecond,
		Position: zurich,
		Velocity: core.Vector3{X: 1, Y: 2, Z: -0.5},
		Yaw:      math.Pi / 2,
		Airspeed: 12,
	}

	m := CoreToTrackPoint(p, 4)
	assert.Equal(t, uint(4), m.SessionID)
	assert.Equal(t, int64(1_500_000), m.SimTimeUs)
	assert.Equal(t, 488.0, m.Altitude)
	assert.Equal(t, float32(1), m.VelocityN)
	assert.Equal(t, float32(-0.5), m.VelocityD)
	assert.InDelta(t, math.Pi/2, float64(m.Yaw), 1e-6)
	assert.Equal(t, float32(12), m.Airspeed)
}

func TestCoreToCommand(t *testing.T) {
	c := core.CommandRecord{
		Seq:      300,
		Armed:    true,
		Controls: []float64{0.5, 0.25},
		Outputs:  []core.JointOutput{{Joint: "rotor_0_joint", Setpoint: 600, Value: 600}},
	}

	m := CoreToCommand(c, 1)
	assert.Equal(t, uint64(300), m.Seq)
	assert.True(t, m.Armed)
	assert.JSONEq(t, `[0.5, 0.25]`, string(m.Controls))

	var outputs []core.JointOutput
	require.NoError(t, json.Unmarshal(m.Outputs, &outputs))
	require.Len(t, outputs, 1)
	assert.Equal(t, "rotor_0_joint", outputs[0].Joint)
	assert.Equal(t, 600.0, outputs[0].Value)
}

func TestCoreToCommand_Empty(t *testing.T) {
	m := CoreToCommand(core.CommandRecord{}, 1)
	assert.Equal(t, "[]", string(m.Controls))
	assert.Equal(t, "[]", string(m.Outputs))
}

func TestCoreToTelemetry(t *testing.T) {
	m := CoreToTelemetry(core.TelemetryRecord{
		SimTime: time.Second,
		Message: "HIL_GPS",
		Fields:  map[string]any{"Lat": 473977420, "FixType": 3},
	}, 2)
	assert.Equal(t, "HIL_GPS", m.Message)
	assert.Equal(t, int64(1_000_000), m.SimTimeUs)
	assert.JSONEq(t, `{"Lat": 473977420, "FixType": 3}`, string(m.Fields))
}

func TestCoreToTelemetry_NaN(t *testing.T) {
	m := CoreToTelemetry(core.TelemetryRecord{
		Message: "HIL_SENSOR",
		Fields:  map[string]any{"AbsPressure": math.NaN()},
	}, 2)
	assert.Equal(t, "{}", string(m.Fields))
}

func TestTrackToPath(t *testing.T) {
	path := TrackToPath([]core.Geodetic{
		zurich,
		{Lat: 200}, // dropped
		{Lat: zurich.Lat + 0.001, Lon: zurich.Lon, Alt: 500},
	})
	assert.Equal(t, 2, path.Coordinates().Length())

	assert.True(t, TrackToPath([]core.Geodetic{zurich}).IsEmpty())
	// a vehicle that never moved has no path
	assert.True(t, TrackToPath([]core.Geodetic{zurich, zurich, zurich}).IsEmpty())
}
