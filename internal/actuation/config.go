package actuation

import (
	"errors"
	"fmt"
	"time"

	"github.com/yl5006/sitl-gazebo/internal/mavlink"
)

// MaxChannels is the number of controls carried by HIL_ACTUATOR_CONTROLS.
const MaxChannels = mavlink.MaxControls

// ErrInvalidConfig wraps every validation failure of Config.
var ErrInvalidConfig = errors.New("invalid actuation config")

// Kind selects how a channel drives its joint.
type Kind string

const (
	KindPosition    Kind = "position"
	KindVelocity    Kind = "velocity"
	KindPositionPID Kind = "position_pid"
)

// FailsafePolicy is applied once commands go stale.
type FailsafePolicy string

const (
	// FailsafeHold keeps applying the last fresh command.
	FailsafeHold FailsafePolicy = "hold"
	// FailsafeDisarm moves every channel to its disarmed zero.
	FailsafeDisarm FailsafePolicy = "disarm"
)

// PIDGains parameterise a position_pid channel. A bound pair with
// min >= max disables that clamp.
type PIDGains struct {
	P      float64 `json:"p" mapstructure:"p"`
	I      float64 `json:"i" mapstructure:"i"`
	D      float64 `json:"d" mapstructure:"d"`
	IMax   float64 `json:"iMax" mapstructure:"iMax"`
	IMin   float64 `json:"iMin" mapstructure:"iMin"`
	CmdMax float64 `json:"cmdMax" mapstructure:"cmdMax"`
	CmdMin float64 `json:"cmdMin" mapstructure:"cmdMin"`
}

// Channel maps one control input onto a joint.
type Channel struct {
	Joint        string   `json:"joint" mapstructure:"joint"`
	Input        int      `json:"input" mapstructure:"input"`
	Kind         Kind     `json:"kind" mapstructure:"kind"`
	Scale        float64  `json:"scale" mapstructure:"scale"`
	Offset       float64  `json:"offset" mapstructure:"offset"`
	ZeroArmed    float64  `json:"zeroArmed" mapstructure:"zeroArmed"`
	ZeroDisarmed float64  `json:"zeroDisarmed" mapstructure:"zeroDisarmed"`
	PID          PIDGains `json:"pid" mapstructure:"pid"`
}

// Config is the ordered channel table and the stale command policy.
type Config struct {
	Channels        []Channel      `json:"channels" mapstructure:"channels"`
	Failsafe        FailsafePolicy `json:"failsafe" mapstructure:"failsafe"`
	FailsafeTimeout time.Duration  `json:"failsafeTimeout" mapstructure:"failsafeTimeout"`
}

// DefaultConfig drives the four rotors of a quadrotor.
func DefaultConfig() Config {
	cfg := Config{
		Failsafe:        FailsafeHold,
		FailsafeTimeout: 500 * time.Millisecond,
	}
	for i := 0; i < 4; i++ {
		cfg.Channels = append(cfg.Channels, Channel{
			Joint:     fmt.Sprintf("rotor_%d_joint", i),
			Input:     i,
			Kind:      KindVelocity,
			Scale:     1000,
			ZeroArmed: 100,
		})
	}
	return cfg
}

// Validate reports table errors; they are never left to surface at runtime.
func (c Config) Validate() error {
	if len(c.Channels) > MaxChannels {
		return fmt.Errorf("%w: %d channels, at most %d", ErrInvalidConfig, len(c.Channels), MaxChannels)
	}
	seen := make(map[string]bool, len(c.Channels))
	for i, ch := range c.Channels {
		if ch.Joint == "" {
			return fmt.Errorf("%w: channel %d has no joint", ErrInvalidConfig, i)
		}
		if seen[ch.Joint] {
			return fmt.Errorf("%w: joint %q mapped twice", ErrInvalidConfig, ch.Joint)
		}
		seen[ch.Joint] = true
		if ch.Input < 0 || ch.Input >= MaxChannels {
			return fmt.Errorf("%w: channel %q input index %d out of range", ErrInvalidConfig, ch.Joint, ch.Input)
		}
		switch ch.Kind {
		case KindPosition, KindVelocity, KindPositionPID:
		default:
			return fmt.Errorf("%w: channel %q has unknown kind %q", ErrInvalidConfig, ch.Joint, ch.Kind)
		}
	}
	switch c.Failsafe {
	case FailsafeHold, FailsafeDisarm:
	default:
		return fmt.Errorf("%w: unknown failsafe policy %q", ErrInvalidConfig, c.Failsafe)
	}
	if c.FailsafeTimeout <= 0 {
		return fmt.Errorf("%w: failsafe timeout must be positive", ErrInvalidConfig)
	}
	return nil
}
