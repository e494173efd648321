// pkg/core/records.go
package core

import "time"

// Vector3 is a plain three-component vector.
type Vector3 struct {
	X float64
	Y float64
	Z float64
}

// LinkEvent is a bridge state transition.
type LinkEvent struct {
	Time time.Time
	From string
	To   string
	Peer string
}

// TrackPoint is one ground-truth pose of the vehicle.
type TrackPoint struct {
	Time     time.Time
	SimTime  time.Duration
	Position Geodetic
	Velocity Vector3 // NED, m/s
	Roll     float64 // rad
	Pitch    float64 // rad
	Yaw      float64 // rad, clockwise from north
	Airspeed float64 // m/s
}

// JointOutput is the value handed to one joint on a tick.
type JointOutput struct {
	Joint    string
	Setpoint float64
	Value    float64
}

// CommandRecord is an actuator command as the mapper applied it.
type CommandRecord struct {
	Time     time.Time
	SimTime  time.Duration
	Seq      uint64
	Armed    bool
	Stale    bool
	Controls []float64
	Outputs  []JointOutput
}

// TelemetryRecord is one message the bridge sent to the autopilot.
type TelemetryRecord struct {
	Time    time.Time
	SimTime time.Duration
	Message string
	Fields  map[string]any
}
