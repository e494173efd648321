// Package telemetry turns true sensor samples into the noisy, rate limited
// MAVLink messages an autopilot expects in HIL mode.
package telemetry

import (
	"fmt"
	"math"
	"time"

	"github.com/yl5006/sitl-gazebo/internal/geo"
	"github.com/yl5006/sitl-gazebo/internal/mavlink"
	"github.com/yl5006/sitl-gazebo/internal/noise"
	"github.com/yl5006/sitl-gazebo/internal/sensor"
	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

const standardGravity = 9.80665

type stream struct {
	gate    *noise.Gate
	nominal time.Duration
}

// Pipeline owns the rate gates and noise state of every stream. It must only
// be used from the tick path.
type Pipeline struct {
	cfg     Config
	src     *noise.Source
	ref     *geo.Reference
	streams map[sensor.Kind]*stream

	gyro, accel, mag, baro *noise.Model
	gpsHorizontal          *noise.Model
	gpsVertical            *noise.Model
	gpsVelHorizontal       *noise.Model
	gpsVelVertical         *noise.Model
	lidar, sonar           *noise.Model
	vision                 *noise.Model

	visionOrigin *visionOrigin
}

type visionOrigin struct {
	position r3.Vec
	yaw      quat.Number
}

// New validates cfg and builds a pipeline seeded from cfg.Seed.
func New(cfg Config) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	p := &Pipeline{
		cfg:              cfg,
		src:              noise.NewSource(cfg.Seed),
		ref:              geo.NewReference(cfg.Home),
		streams:          make(map[sensor.Kind]*stream),
		gyro:             noise.NewModel(cfg.Imu.Gyro),
		accel:            noise.NewModel(cfg.Imu.Accel),
		mag:              noise.NewModel(cfg.Imu.Mag),
		baro:             noise.NewModel(cfg.Imu.Baro),
		gpsHorizontal:    noise.NewModel(cfg.Gps.Horizontal),
		gpsVertical:      noise.NewModel(cfg.Gps.Vertical),
		gpsVelHorizontal: noise.NewModel(cfg.Gps.VelocityHorizontal),
		gpsVelVertical:   noise.NewModel(cfg.Gps.VelocityVertical),
		lidar:            noise.NewModel(cfg.Lidar.Noise),
		sonar:            noise.NewModel(cfg.Sonar.Noise),
		vision:           noise.NewModel(cfg.Vision.Noise),
	}

	for kind, interval := range map[sensor.Kind]time.Duration{
		sensor.KindImu:         cfg.Imu.Interval,
		sensor.KindGps:         cfg.Gps.Interval,
		sensor.KindGroundtruth: cfg.Groundtruth.Interval,
		sensor.KindLidar:       cfg.Lidar.Interval,
		sensor.KindSonar:       cfg.Sonar.Interval,
		sensor.KindOpticalFlow: cfg.OpticalFlow.Interval,
		sensor.KindBeacon:      cfg.Beacon.Interval,
		sensor.KindVision:      cfg.Vision.Interval,
	} {
		nominal := interval
		if nominal <= 0 {
			nominal = DefaultStep
		}
		p.streams[kind] = &stream{gate: noise.NewGate(interval), nominal: nominal}
	}

	return p, nil
}

// Reference returns the tangent-plane projection around the home position.
func (p *Pipeline) Reference() *geo.Reference {
	return p.ref
}

// Process runs s through its stream's rate gate and noise models and
// encodes the result. It returns noise.ErrSuppressed when the gate is closed
// and noise.ErrClockNonMonotonic when the sample time did not advance; in
// both cases no noise state is touched.
func (p *Pipeline) Process(s sensor.Sample) (mavlink.Message, error) {
	st, ok := p.streams[s.Kind()]
	if !ok {
		return nil, fmt.Errorf("no stream for %s samples", s.Kind())
	}

	now := s.Time()
	dt := st.gate.Since(now, st.nominal)
	if err := st.gate.Allow(now); err != nil {
		return nil, fmt.Errorf("%s: %w", s.Kind(), err)
	}

	var (
		msg mavlink.Message
		err error
	)
	switch v := s.(type) {
	case sensor.Imu:
		msg, err = p.imu(v, dt)
	case sensor.Gps:
		msg, err = p.gps(v, dt)
	case sensor.Groundtruth:
		msg = groundtruth(v)
	case sensor.Lidar:
		msg, err = rangefinder(p.lidar, p.src, sensor.Range(v), false, dt)
	case sensor.Sonar:
		msg, err = rangefinder(p.sonar, p.src, sensor.Range(v), true, dt)
	case sensor.OpticalFlow:
		msg = opticalFlow(v)
	case sensor.BeaconDetect:
		msg = beacon(v)
	case sensor.Vision:
		msg, err = p.visionEstimate(v, dt)
	default:
		return nil, fmt.Errorf("unsupported sample type %T", s)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", s.Kind(), err)
	}
	return msg, nil
}

// unit treats the zero quaternion as the identity rotation.
func unit(q quat.Number) quat.Number {
	if q == (quat.Number{}) {
		return quat.Number{Real: 1}
	}
	return q
}

func usec(d time.Duration) uint64 {
	return uint64(d / time.Microsecond)
}

func (p *Pipeline) imu(s sensor.Imu, dt time.Duration) (mavlink.Message, error) {
	gyro, err := p.gyro.Apply(p.src, geo.FluToFrd(s.AngularVelocity), dt)
	if err != nil {
		return nil, err
	}
	accel, err := p.accel.Apply(p.src, geo.FluToFrd(s.LinearAcceleration), dt)
	if err != nil {
		return nil, err
	}

	pos := s.Position
	if pos == (geo.LLA{}) {
		pos = p.cfg.Home
	}
	attitude := geo.AttitudeNed(unit(s.Orientation))
	field := geo.RotateInverse(attitude, geo.MagneticField(pos.Lat, pos.Lon))
	mag, err := p.mag.Apply(p.src, field, dt)
	if err != nil {
		return nil, err
	}

	pressure, temperature := geo.Atmosphere(pos.Alt)
	pressure, err = p.baro.ApplyScalar(p.src, pressure, dt)
	if err != nil {
		return nil, err
	}

	return &mavlink.HilSensor{
		TimeUsec:      usec(s.At),
		Xacc:          float32(accel.X),
		Yacc:          float32(accel.Y),
		Zacc:          float32(accel.Z),
		Xgyro:         float32(gyro.X),
		Ygyro:         float32(gyro.Y),
		Zgyro:         float32(gyro.Z),
		Xmag:          float32(mag.X),
		Ymag:          float32(mag.Y),
		Zmag:          float32(mag.Z),
		AbsPressure:   float32(pressure),
		PressureAlt:   float32(pos.Alt),
		Temperature:   float32(temperature),
		FieldsUpdated: mavlink.HilSensorFieldsAll,
	}, nil
}

func (p *Pipeline) gps(s sensor.Gps, dt time.Duration) (mavlink.Message, error) {
	north, east := p.ref.Project(s.Position.Lat, s.Position.Lon)
	horizontal, err := p.gpsHorizontal.Apply(p.src, r3.Vec{X: north, Y: east}, dt)
	if err != nil {
		return nil, err
	}
	alt, err := p.gpsVertical.ApplyScalar(p.src, s.Position.Alt, dt)
	if err != nil {
		return nil, err
	}
	lat, lon := p.ref.Reproject(horizontal.X, horizontal.Y)

	ned := geo.EnuToNed(s.Velocity)
	velH, err := p.gpsVelHorizontal.Apply(p.src, r3.Vec{X: ned.X, Y: ned.Y}, dt)
	if err != nil {
		return nil, err
	}
	vd, err := p.gpsVelVertical.ApplyScalar(p.src, ned.Z, dt)
	if err != nil {
		return nil, err
	}

	cog := math.Atan2(velH.Y, velH.X) * 180 / math.Pi
	if cog < 0 {
		cog += 360
	}

	eph, epv := s.Eph, s.Epv
	if eph == 0 {
		eph = 1
	}
	if epv == 0 {
		epv = 1
	}
	fix, sats := s.FixType, s.Satellites
	if fix == 0 {
		fix = mavlink.GpsFix3D
	}
	if sats == 0 {
		sats = 10
	}

	return &mavlink.HilGps{
		TimeUsec:          usec(s.At),
		Lat:               int32(math.Round(lat * 1e7)),
		Lon:               int32(math.Round(lon * 1e7)),
		Alt:               int32(math.Round(alt * 1000)),
		Eph:               uint16(eph * 100),
		Epv:               uint16(epv * 100),
		Vel:               uint16(math.Hypot(velH.X, velH.Y) * 100),
		Vn:                int16(velH.X * 100),
		Ve:                int16(velH.Y * 100),
		Vd:                int16(vd * 100),
		Cog:               uint16(cog*100) % 36000,
		FixType:           fix,
		SatellitesVisible: sats,
	}, nil
}

func groundtruth(s sensor.Groundtruth) mavlink.Message {
	q := geo.AttitudeNed(unit(s.Orientation))
	rates := geo.FluToFrd(s.AngularVelocity)
	vel := geo.EnuToNed(s.Velocity)
	acc := r3.Scale(1000/standardGravity, geo.FluToFrd(s.LinearAcceleration))
	acc = r3.Vec{X: math.Round(acc.X), Y: math.Round(acc.Y), Z: math.Round(acc.Z)}
	airspeed := uint16(math.Max(0, s.Airspeed) * 100)

	return &mavlink.HilStateQuaternion{
		TimeUsec:           usec(s.At),
		AttitudeQuaternion: [4]float32{float32(q.Real), float32(q.Imag), float32(q.Jmag), float32(q.Kmag)},
		Rollspeed:          float32(rates.X),
		Pitchspeed:         float32(rates.Y),
		Yawspeed:           float32(rates.Z),
		Lat:                int32(math.Round(s.Position.Lat * 1e7)),
		Lon:                int32(math.Round(s.Position.Lon * 1e7)),
		Alt:                int32(math.Round(s.Position.Alt * 1000)),
		Vx:                 int16(vel.X * 100),
		Vy:                 int16(vel.Y * 100),
		Vz:                 int16(vel.Z * 100),
		IndAirspeed:        airspeed,
		TrueAirspeed:       airspeed,
		Xacc:               int16(acc.X),
		Yacc:               int16(acc.Y),
		Zacc:               int16(acc.Z),
	}
}

func rangefinder(m *noise.Model, src *noise.Source, s sensor.Range, ultrasound bool, dt time.Duration) (mavlink.Message, error) {
	d, err := m.ApplyScalar(src, s.Distance, dt)
	if err != nil {
		return nil, err
	}
	if s.MaxDistance > s.MinDistance {
		d = math.Max(s.MinDistance, math.Min(s.MaxDistance, d))
	}
	msg := &mavlink.DistanceSensor{
		TimeBootMs:      uint32(s.At / time.Millisecond),
		MinDistance:     uint16(s.MinDistance * 100),
		MaxDistance:     uint16(s.MaxDistance * 100),
		CurrentDistance: uint16(d * 100),
		Type:            mavlink.DistanceLaser,
		Id:              s.ID,
		Orientation:     mavlink.SensorOrientDown,
	}
	if ultrasound {
		msg.Type = mavlink.DistanceUltrasound
	}
	return msg, nil
}

func opticalFlow(s sensor.OpticalFlow) mavlink.Message {
	gyro := geo.FluToFrd(s.IntegratedGyro)
	return &mavlink.HilOpticalFlow{
		TimeUsec:          usec(s.At),
		IntegrationTimeUs: uint32(s.IntegrationTime / time.Microsecond),
		IntegratedX:       float32(s.IntegratedX),
		IntegratedY:       float32(s.IntegratedY),
		IntegratedXgyro:   float32(gyro.X),
		IntegratedYgyro:   float32(gyro.Y),
		IntegratedZgyro:   float32(gyro.Z),
		Distance:          float32(s.Distance),
		Temperature:       int16(s.Temperature * 100),
		SensorId:          s.SensorID,
		Quality:           s.Quality,
	}
}

func beacon(s sensor.BeaconDetect) mavlink.Message {
	return &mavlink.LandingTarget{
		TimeUsec:  usec(s.At),
		AngleX:    float32(s.AngleX),
		AngleY:    float32(s.AngleY),
		Distance:  float32(s.Distance),
		SizeX:     float32(s.SizeX),
		SizeY:     float32(s.SizeY),
		TargetNum: s.TargetNum,
		Frame:     mavlink.FrameBodyNED,
	}
}

// visionEstimate reports the pose relative to the first vision sample, in a
// frame aligned with the initial heading.
func (p *Pipeline) visionEstimate(s sensor.Vision, dt time.Duration) (mavlink.Message, error) {
	orientation := unit(s.Orientation)
	if p.visionOrigin == nil {
		yaw := geo.Yaw(orientation)
		p.visionOrigin = &visionOrigin{
			position: s.Position,
			yaw:      quat.Number{Real: math.Cos(yaw / 2), Kmag: math.Sin(yaw / 2)},
		}
	}
	o := p.visionOrigin

	local := geo.RotateInverse(o.yaw, r3.Sub(s.Position, o.position))
	local, err := p.vision.Apply(p.src, local, dt)
	if err != nil {
		return nil, err
	}
	attitude := quat.Mul(quat.Conj(o.yaw), orientation)

	pos := geo.EnuToNed(local)
	roll, pitch, yaw := geo.Euler(geo.AttitudeNed(attitude))
	return &mavlink.VisionPositionEstimate{
		Usec:  usec(s.At),
		X:     float32(pos.X),
		Y:     float32(pos.Y),
		Z:     float32(pos.Z),
		Roll:  float32(roll),
		Pitch: float32(pitch),
		Yaw:   float32(yaw),
	}, nil
}
