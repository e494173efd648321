// Package actuation turns autopilot control arrays into joint commands.
package actuation

import (
	"time"
)

// Input is everything the mapper needs for one tick.
type Input struct {
	Command *Command
	// Joints holds the measured position of each PID driven joint.
	Joints      map[string]float64
	ForceDisarm bool
	Now         time.Duration
	Dt          time.Duration
}

// Output is the command for one joint. For position and velocity channels
// Value equals Setpoint; for PID channels Value is the controller effort.
type Output struct {
	Joint    string
	Kind     Kind
	Setpoint float64
	Value    float64
}

// Result is the mapper output for one tick.
type Result struct {
	Outputs []Output
	Armed   bool
	// Seq is the sequence number of the command in effect, 0 if none.
	Seq uint64
	// Stale is set when no fresh command arrived within the failsafe timeout.
	Stale bool
	// Engaged is set on the tick the failsafe policy takes over.
	Engaged bool
}

// Mapper applies the channel table. It is owned by the tick path.
type Mapper struct {
	cfg       Config
	pids      []*PID
	current   *Command
	lastFresh time.Duration
	armed     bool
	stale     bool
}

// NewMapper validates cfg and creates one PID per position_pid channel.
func NewMapper(cfg Config) (*Mapper, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	m := &Mapper{cfg: cfg, pids: make([]*PID, len(cfg.Channels))}
	for i, ch := range cfg.Channels {
		if ch.Kind == KindPositionPID {
			m.pids[i] = NewPID(ch.PID)
		}
	}
	return m, nil
}

// Channels returns the channel table.
func (m *Mapper) Channels() []Channel {
	return m.cfg.Channels
}

// Apply maps the latest command onto every channel.
func (m *Mapper) Apply(in Input) Result {
	if c := in.Command; c != nil && (m.current == nil || c.Seq > m.current.Seq) {
		m.current = c
		m.lastFresh = in.Now
	}

	stale := m.current == nil || in.Now-m.lastFresh > m.cfg.FailsafeTimeout
	engaged := stale && !m.stale && m.current != nil
	m.stale = stale

	armed := m.current != nil && m.current.Armed && !in.ForceDisarm
	if stale && m.cfg.Failsafe == FailsafeDisarm {
		armed = false
	}
	if armed != m.armed {
		for _, pid := range m.pids {
			if pid != nil {
				pid.Reset()
			}
		}
		m.armed = armed
	}

	res := Result{
		Outputs: make([]Output, len(m.cfg.Channels)),
		Armed:   armed,
		Stale:   stale,
		Engaged: engaged,
	}
	if m.current != nil {
		res.Seq = m.current.Seq
	}

	for i, ch := range m.cfg.Channels {
		setpoint := ch.ZeroDisarmed
		if armed {
			setpoint = ch.ZeroArmed + m.current.Controls[ch.Input]*ch.Scale + ch.Offset
		}
		out := Output{Joint: ch.Joint, Kind: ch.Kind, Setpoint: setpoint, Value: setpoint}
		if pid := m.pids[i]; pid != nil {
			out.Value = pid.Update(setpoint-in.Joints[ch.Joint], in.Dt)
		}
		res.Outputs[i] = out
	}
	return res
}
