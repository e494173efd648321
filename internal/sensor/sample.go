// Package sensor defines the true vehicle measurements handed to the bridge
// by the simulation on every tick. Vectors use the simulator conventions:
// world ENU and body FLU, SI units.
package sensor

import (
	"time"

	"github.com/yl5006/sitl-gazebo/internal/geo"
	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

// Kind tags a Sample.
type Kind uint8

const (
	KindImu Kind = iota
	KindGps
	KindGroundtruth
	KindLidar
	KindSonar
	KindOpticalFlow
	KindBeacon
	KindVision
)

var kindNames = [...]string{
	KindImu:         "imu",
	KindGps:         "gps",
	KindGroundtruth: "groundtruth",
	KindLidar:       "lidar",
	KindSonar:       "sonar",
	KindOpticalFlow: "optical_flow",
	KindBeacon:      "beacon",
	KindVision:      "vision",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// Kinds lists every sample kind in declaration order.
func Kinds() []Kind {
	return []Kind{KindImu, KindGps, KindGroundtruth, KindLidar, KindSonar, KindOpticalFlow, KindBeacon, KindVision}
}

// Sample is one true measurement taken at simulation time Time.
type Sample interface {
	Kind() Kind
	Time() time.Duration
}

// Imu carries the body rates and specific force, plus the attitude and
// position used to derive magnetometer and barometer readings.
type Imu struct {
	At                 time.Duration
	AngularVelocity    r3.Vec      // body FLU, rad/s
	LinearAcceleration r3.Vec      // body FLU, m/s^2
	Orientation        quat.Number // body FLU to world ENU
	Position           geo.LLA
}

func (s Imu) Kind() Kind          { return KindImu }
func (s Imu) Time() time.Duration { return s.At }

// Gps is a geodetic fix and ENU velocity.
type Gps struct {
	At         time.Duration
	Position   geo.LLA
	Velocity   r3.Vec // world ENU, m/s
	FixType    uint8
	Satellites uint8
	Eph        float64 // m
	Epv        float64 // m
}

func (s Gps) Kind() Kind          { return KindGps }
func (s Gps) Time() time.Duration { return s.At }

// Groundtruth is the exact vehicle state.
type Groundtruth struct {
	At                 time.Duration
	Position           geo.LLA
	Velocity           r3.Vec      // world ENU, m/s
	Orientation        quat.Number // body FLU to world ENU
	AngularVelocity    r3.Vec      // body FLU, rad/s
	LinearAcceleration r3.Vec      // body FLU, m/s^2
	Airspeed           float64     // m/s
}

func (s Groundtruth) Kind() Kind          { return KindGroundtruth }
func (s Groundtruth) Time() time.Duration { return s.At }

// Range is a rangefinder reading shared by lidar and sonar.
type Range struct {
	At          time.Duration
	Distance    float64 // m
	MinDistance float64 // m
	MaxDistance float64 // m
	ID          uint8
}

// Lidar is a downward laser rangefinder reading.
type Lidar Range

func (s Lidar) Kind() Kind          { return KindLidar }
func (s Lidar) Time() time.Duration { return s.At }

// Sonar is a downward ultrasound rangefinder reading.
type Sonar Range

func (s Sonar) Kind() Kind          { return KindSonar }
func (s Sonar) Time() time.Duration { return s.At }

// OpticalFlow is an integrated flow reading over IntegrationTime.
type OpticalFlow struct {
	At              time.Duration
	IntegrationTime time.Duration
	IntegratedX     float64 // rad
	IntegratedY     float64 // rad
	IntegratedGyro  r3.Vec  // body FLU, rad
	Distance        float64 // m, negative if unknown
	Temperature     float64 // °C
	Quality         uint8
	SensorID        uint8
}

func (s OpticalFlow) Kind() Kind          { return KindOpticalFlow }
func (s OpticalFlow) Time() time.Duration { return s.At }

// BeaconDetect is an IR-lock detection in camera angles.
type BeaconDetect struct {
	At        time.Duration
	AngleX    float64 // rad
	AngleY    float64 // rad
	Distance  float64 // m
	SizeX     float64 // rad
	SizeY     float64 // rad
	TargetNum uint8
}

func (s BeaconDetect) Kind() Kind          { return KindBeacon }
func (s BeaconDetect) Time() time.Duration { return s.At }

// Vision is an external odometry pose in the world frame.
type Vision struct {
	At          time.Duration
	Position    r3.Vec      // world ENU, m
	Orientation quat.Number // body FLU to world ENU
}

func (s Vision) Kind() Kind          { return KindVision }
func (s Vision) Time() time.Duration { return s.At }
