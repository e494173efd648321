package main

import (
	"time"

	"github.com/yl5006/sitl-gazebo/internal/actuation"
	"github.com/yl5006/sitl-gazebo/internal/geo"
	"github.com/yl5006/sitl-gazebo/internal/sensor"
	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

const standardGravity = 9.80665

// stationaryVehicle stands level on the ground at home, nose north. Joints
// follow their setpoints exactly so position controllers settle.
type stationaryVehicle struct {
	home   geo.LLA
	joints map[string]float64
}

func newStationaryVehicle(home geo.LLA) *stationaryVehicle {
	return &stationaryVehicle{home: home, joints: make(map[string]float64)}
}

// nose north: a quarter turn about up from the ENU x axis
var northFacing = quat.Number{Real: 0.7071067811865476, Kmag: 0.7071067811865476}

// Samples returns the true measurements at simulation time now.
func (v *stationaryVehicle) Samples(now time.Duration) []sensor.Sample {
	return []sensor.Sample{
		sensor.Imu{
			At:                 now,
			LinearAcceleration: r3.Vec{Z: standardGravity},
			Orientation:        northFacing,
			Position:           v.home,
		},
		sensor.Gps{
			At:         now,
			Position:   v.home,
			FixType:    3,
			Satellites: 10,
			Eph:        1,
			Epv:        1,
		},
		sensor.Groundtruth{
			At:          now,
			Position:    v.home,
			Orientation: northFacing,
		},
		sensor.Lidar{
			At:          now,
			Distance:    0.1,
			MinDistance: 0.06,
			MaxDistance: 35,
		},
	}
}

// Joints returns the joint positions fed back to the position controllers.
func (v *stationaryVehicle) Joints() map[string]float64 {
	return v.joints
}

// Apply moves position joints to their setpoints.
func (v *stationaryVehicle) Apply(outputs []actuation.Output) {
	for _, o := range outputs {
		if o.Kind == actuation.KindPosition || o.Kind == actuation.KindPositionPID {
			v.joints[o.Joint] = o.Setpoint
		}
	}
}
