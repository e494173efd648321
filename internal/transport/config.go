package transport

import (
	"errors"
	"fmt"
	"net"
	"time"
)

// DefaultPort is the local UDP port the autopilot connects to.
const DefaultPort = 14560

// ErrInvalidConfig wraps every validation failure of Config.
var ErrInvalidConfig = errors.New("invalid transport config")

// SerialConfig selects a serial link instead of UDP.
type SerialConfig struct {
	Device string `json:"device" mapstructure:"device"`
	Baud   int    `json:"baud" mapstructure:"baud"`
}

// Config configures the bridge endpoint.
type Config struct {
	// Listen is the local UDP address, host:port.
	Listen string `json:"listen" mapstructure:"listen"`
	// Secondary is an optional observer that receives a mirror of all
	// outbound datagrams.
	Secondary string `json:"secondary" mapstructure:"secondary"`
	// SendTimeout bounds a single write; a write that would block longer is dropped.
	SendTimeout time.Duration `json:"sendTimeout" mapstructure:"sendTimeout"`
	ReadBuffer  int           `json:"readBuffer" mapstructure:"readBuffer"`
	MirrorQueue int           `json:"mirrorQueue" mapstructure:"mirrorQueue"`
	Serial      SerialConfig  `json:"serial" mapstructure:"serial"`
}

// DefaultConfig listens on all interfaces at DefaultPort.
func DefaultConfig() Config {
	return Config{
		Listen:      fmt.Sprintf("0.0.0.0:%d", DefaultPort),
		SendTimeout: time.Millisecond,
		ReadBuffer:  1 << 20,
		MirrorQueue: 1000,
		Serial:      SerialConfig{Baud: 921600},
	}
}

// Validate checks addresses and bounds.
func (c Config) Validate() error {
	if c.Serial.Device == "" {
		if _, err := net.ResolveUDPAddr("udp", c.Listen); err != nil {
			return fmt.Errorf("%w: listen %q: %v", ErrInvalidConfig, c.Listen, err)
		}
	} else if c.Serial.Baud <= 0 {
		return fmt.Errorf("%w: serial baud %d", ErrInvalidConfig, c.Serial.Baud)
	}
	if c.Secondary != "" {
		if _, err := net.ResolveUDPAddr("udp", c.Secondary); err != nil {
			return fmt.Errorf("%w: secondary %q: %v", ErrInvalidConfig, c.Secondary, err)
		}
	}
	if c.SendTimeout < 0 {
		return fmt.Errorf("%w: negative send timeout", ErrInvalidConfig)
	}
	if c.MirrorQueue < 0 || c.ReadBuffer < 0 {
		return fmt.Errorf("%w: negative buffer size", ErrInvalidConfig)
	}
	return nil
}
