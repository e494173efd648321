package telemetry

import (
	"errors"
	"fmt"
	"time"

	"github.com/yl5006/sitl-gazebo/internal/geo"
	"github.com/yl5006/sitl-gazebo/internal/noise"
)

// ErrInvalidConfig wraps every validation failure of Config.
var ErrInvalidConfig = errors.New("invalid telemetry config")

// DefaultStep is the integration step assumed for the first sample of a
// stream that has no configured interval.
const DefaultStep = 4 * time.Millisecond

// StreamConfig throttles a stream that carries no noise.
type StreamConfig struct {
	Interval time.Duration `json:"interval" mapstructure:"interval"`
}

// ImuConfig configures the HIL_SENSOR stream.
type ImuConfig struct {
	Interval time.Duration `json:"interval" mapstructure:"interval"`
	Gyro     noise.Params  `json:"gyro" mapstructure:"gyro"`
	Accel    noise.Params  `json:"accel" mapstructure:"accel"`
	Mag      noise.Params  `json:"mag" mapstructure:"mag"`
	Baro     noise.Params  `json:"baro" mapstructure:"baro"`
}

// GpsConfig configures the HIL_GPS stream. Horizontal position noise is
// applied on the tangent plane around Config.Home.
type GpsConfig struct {
	Interval           time.Duration `json:"interval" mapstructure:"interval"`
	Horizontal         noise.Params  `json:"horizontal" mapstructure:"horizontal"`
	Vertical           noise.Params  `json:"vertical" mapstructure:"vertical"`
	VelocityHorizontal noise.Params  `json:"velocityHorizontal" mapstructure:"velocityHorizontal"`
	VelocityVertical   noise.Params  `json:"velocityVertical" mapstructure:"velocityVertical"`
}

// RangeConfig configures a rangefinder stream.
type RangeConfig struct {
	Interval time.Duration `json:"interval" mapstructure:"interval"`
	Noise    noise.Params  `json:"noise" mapstructure:"noise"`
}

// Config is the full telemetry pipeline configuration.
type Config struct {
	Home        geo.LLA      `json:"home" mapstructure:"home"`
	Seed        uint64       `json:"seed" mapstructure:"seed"`
	Imu         ImuConfig    `json:"imu" mapstructure:"imu"`
	Gps         GpsConfig    `json:"gps" mapstructure:"gps"`
	Groundtruth StreamConfig `json:"groundtruth" mapstructure:"groundtruth"`
	Lidar       RangeConfig  `json:"lidar" mapstructure:"lidar"`
	Sonar       RangeConfig  `json:"sonar" mapstructure:"sonar"`
	OpticalFlow StreamConfig `json:"opticalFlow" mapstructure:"opticalFlow"`
	Beacon      StreamConfig `json:"beacon" mapstructure:"beacon"`
	Vision      RangeConfig  `json:"vision" mapstructure:"vision"`
}

// DefaultConfig returns the stock sensor suite of a small multicopter.
func DefaultConfig() Config {
	return Config{
		Home: geo.LLA{Lat: 47.397742, Lon: 8.545594, Alt: 488},
		Seed: 1,
		Imu: ImuConfig{
			Interval: 4 * time.Millisecond,
			Gyro:     noise.Params{NoiseDensity: 3.394e-4, RandomWalk: 3.879e-5, Tau: 1000},
			Accel:    noise.Params{NoiseDensity: 4e-3, RandomWalk: 6e-3, Tau: 300},
			Mag:      noise.Params{NoiseDensity: 4e-4, RandomWalk: 6.4e-6, Tau: 600},
			Baro:     noise.Params{NoiseDensity: 5e-4},
		},
		Gps: GpsConfig{
			Interval:           200 * time.Millisecond,
			Horizontal:         noise.Params{NoiseDensity: 2e-4, RandomWalk: 2.0, Tau: 60},
			Vertical:           noise.Params{NoiseDensity: 4e-4, RandomWalk: 4.0, Tau: 60},
			VelocityHorizontal: noise.Params{NoiseDensity: 0.2},
			VelocityVertical:   noise.Params{NoiseDensity: 0.4},
		},
		Groundtruth: StreamConfig{Interval: 20 * time.Millisecond},
		Lidar:       RangeConfig{Interval: 20 * time.Millisecond},
		Sonar:       RangeConfig{Interval: 50 * time.Millisecond},
		Vision: RangeConfig{
			Interval: 50 * time.Millisecond,
			Noise:    noise.Params{NoiseDensity: 2e-4, RandomWalk: 2.0, Tau: 60},
		},
	}
}

// Validate checks intervals, noise parameters and the home position.
func (c Config) Validate() error {
	if !c.Home.Valid() {
		return fmt.Errorf("%w: home %s out of range", ErrInvalidConfig, c.Home)
	}
	intervals := map[string]time.Duration{
		"imu":         c.Imu.Interval,
		"gps":         c.Gps.Interval,
		"groundtruth": c.Groundtruth.Interval,
		"lidar":       c.Lidar.Interval,
		"sonar":       c.Sonar.Interval,
		"opticalFlow": c.OpticalFlow.Interval,
		"beacon":      c.Beacon.Interval,
		"vision":      c.Vision.Interval,
	}
	for name, d := range intervals {
		if d < 0 {
			return fmt.Errorf("%w: %s interval %s is negative", ErrInvalidConfig, name, d)
		}
	}
	params := map[string]noise.Params{
		"imu.gyro":               c.Imu.Gyro,
		"imu.accel":              c.Imu.Accel,
		"imu.mag":                c.Imu.Mag,
		"imu.baro":               c.Imu.Baro,
		"gps.horizontal":         c.Gps.Horizontal,
		"gps.vertical":           c.Gps.Vertical,
		"gps.velocityHorizontal": c.Gps.VelocityHorizontal,
		"gps.velocityVertical":   c.Gps.VelocityVertical,
		"lidar.noise":            c.Lidar.Noise,
		"sonar.noise":            c.Sonar.Noise,
		"vision.noise":           c.Vision.Noise,
	}
	for name, p := range params {
		if err := p.Validate(); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidConfig, name, err)
		}
	}
	return nil
}
