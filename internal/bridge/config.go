package bridge

import (
	"errors"
	"fmt"
	"time"

	"github.com/yl5006/sitl-gazebo/internal/actuation"
	"github.com/yl5006/sitl-gazebo/internal/telemetry"
	"github.com/yl5006/sitl-gazebo/internal/transport"
)

// ErrInvalidConfig wraps validation failures of the bridge section itself.
// Failures of the nested sections wrap their own package's sentinel.
var ErrInvalidConfig = errors.New("invalid bridge config")

// Config is the complete bridge configuration.
type Config struct {
	SystemID          uint8         `json:"systemId" mapstructure:"systemId"`
	ComponentID       uint8         `json:"componentId" mapstructure:"componentId"`
	PollTimeout       time.Duration `json:"pollTimeout" mapstructure:"pollTimeout"`
	HeartbeatInterval time.Duration `json:"heartbeatInterval" mapstructure:"heartbeatInterval"`
	// TimesyncAlpha weights a new offset sample against the running estimate.
	TimesyncAlpha float64 `json:"timesyncAlpha" mapstructure:"timesyncAlpha"`
	// TimesyncMaxRTT discards offset samples whose round trip took longer.
	TimesyncMaxRTT time.Duration `json:"timesyncMaxRtt" mapstructure:"timesyncMaxRtt"`
	FeedSize       int           `json:"feedSize" mapstructure:"feedSize"`

	Telemetry telemetry.Config `json:"telemetry" mapstructure:"telemetry"`
	Actuation actuation.Config `json:"actuation" mapstructure:"actuation"`
	Transport transport.Config `json:"transport" mapstructure:"transport"`
}

// DefaultConfig returns a bridge for a quadrotor on the default HIL port.
func DefaultConfig() Config {
	return Config{
		SystemID:          1,
		ComponentID:       51,
		PollTimeout:       100 * time.Millisecond,
		HeartbeatInterval: time.Second,
		TimesyncAlpha:     0.05,
		TimesyncMaxRTT:    10 * time.Millisecond,
		FeedSize:          256,
		Telemetry:         telemetry.DefaultConfig(),
		Actuation:         actuation.DefaultConfig(),
		Transport:         transport.DefaultConfig(),
	}
}

func (c Config) Validate() error {
	if c.PollTimeout <= 0 {
		return fmt.Errorf("%w: pollTimeout must be positive, got %s", ErrInvalidConfig, c.PollTimeout)
	}
	if c.HeartbeatInterval <= 0 {
		return fmt.Errorf("%w: heartbeatInterval must be positive, got %s", ErrInvalidConfig, c.HeartbeatInterval)
	}
	if c.TimesyncAlpha <= 0 || c.TimesyncAlpha > 1 {
		return fmt.Errorf("%w: timesyncAlpha %g outside (0, 1]", ErrInvalidConfig, c.TimesyncAlpha)
	}
	if c.TimesyncMaxRTT < 0 {
		return fmt.Errorf("%w: timesyncMaxRtt is negative", ErrInvalidConfig)
	}
	if c.FeedSize < 0 {
		return fmt.Errorf("%w: feedSize is negative", ErrInvalidConfig)
	}
	if err := c.Telemetry.Validate(); err != nil {
		return err
	}
	if err := c.Actuation.Validate(); err != nil {
		return err
	}
	return c.Transport.Validate()
}
