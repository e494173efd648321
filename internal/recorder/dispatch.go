package recorder

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/yl5006/sitl-gazebo/internal/actuation"
	"github.com/yl5006/sitl-gazebo/internal/dispatcher"
	"github.com/yl5006/sitl-gazebo/internal/geo"
	"github.com/yl5006/sitl-gazebo/internal/influx"
	"github.com/yl5006/sitl-gazebo/internal/sensor"
	"github.com/yl5006/sitl-gazebo/pkg/core"
)

// Event names of the recorder streams.
const (
	EventLink      = ":LINK:"
	EventTrack     = ":TRACK:"
	EventCommand   = ":COMMAND:"
	EventTelemetry = ":TELEMETRY:"
)

type telemetryJob struct {
	at      time.Time
	simTime time.Duration
	name    string
	raw     json.RawMessage
}

// RegisterHandlers registers one buffered handler per record stream.
func (m *Manager) RegisterHandlers(d *dispatcher.Dispatcher) {
	n := m.deps.QueueSize

	// Link transitions are rare but must not be lost behind telemetry
	d.Register(EventLink, m.handleLink, dispatcher.Buffered(64), dispatcher.Logged())

	d.Register(EventTrack, m.handleTrack, dispatcher.Buffered(n), dispatcher.Logged())
	d.Register(EventCommand, m.handleCommand, dispatcher.Buffered(n), dispatcher.Logged())
	d.Register(EventTelemetry, m.handleTelemetry, dispatcher.Buffered(n), dispatcher.Logged())
}

func (m *Manager) handleLink(e dispatcher.Event) (any, error) {
	obj, ok := e.Payload.(*core.LinkEvent)
	if !ok {
		return nil, fmt.Errorf("unexpected link payload %T", e.Payload)
	}
	return nil, m.backend.RecordLinkEvent(obj)
}

func (m *Manager) handleTrack(e dispatcher.Event) (any, error) {
	obj, ok := e.Payload.(*core.TrackPoint)
	if !ok {
		return nil, fmt.Errorf("unexpected track payload %T", e.Payload)
	}
	return nil, m.backend.RecordTrackPoint(obj)
}

func (m *Manager) handleCommand(e dispatcher.Event) (any, error) {
	obj, ok := e.Payload.(*core.CommandRecord)
	if !ok {
		return nil, fmt.Errorf("unexpected command payload %T", e.Payload)
	}
	return nil, m.backend.RecordCommand(obj)
}

func (m *Manager) handleTelemetry(e dispatcher.Event) (any, error) {
	job, ok := e.Payload.(telemetryJob)
	if !ok {
		return nil, fmt.Errorf("unexpected telemetry payload %T", e.Payload)
	}

	fields := make(map[string]any)
	if err := json.Unmarshal(job.raw, &fields); err != nil {
		return nil, fmt.Errorf("failed to decode %s fields: %w", job.name, err)
	}
	obj := &core.TelemetryRecord{
		Time:    job.at,
		SimTime: job.simTime,
		Message: job.name,
		Fields:  fields,
	}

	if m.deps.Influx != nil {
		p := influx.TelemetryPoint(m.deps.Session.GetSession().UUID, obj)
		if err := m.deps.Influx.WritePoint(influx.BucketTelemetry, p); err != nil {
			m.deps.Logger.Debug("Influx write failed", "message", job.name, "error", err)
		}
	}

	return nil, m.backend.RecordTelemetry(obj)
}

// TrackPoint converts a ground-truth sample to a NED track point.
func TrackPoint(s sensor.Groundtruth, at time.Time) *core.TrackPoint {
	v := geo.EnuToNed(s.Velocity)
	roll, pitch, yaw := geo.Euler(geo.AttitudeNed(s.Orientation))
	return &core.TrackPoint{
		Time:    at,
		SimTime: s.At,
		Position: core.Geodetic{
			Lat: s.Position.Lat,
			Lon: s.Position.Lon,
			Alt: s.Position.Alt,
		},
		Velocity: core.Vector3{X: v.X, Y: v.Y, Z: v.Z},
		Roll:     roll,
		Pitch:    pitch,
		Yaw:      yaw,
		Airspeed: s.Airspeed,
	}
}

// CommandRecord captures the command in effect and the joint outputs it
// produced. cmd may be nil when only the failsafe is driving the joints.
func CommandRecord(cmd *actuation.Command, res actuation.Result, simTime time.Duration, at time.Time) *core.CommandRecord {
	rec := &core.CommandRecord{
		Time:    at,
		SimTime: simTime,
		Seq:     res.Seq,
		Armed:   res.Armed,
		Stale:   res.Stale,
		Outputs: make([]core.JointOutput, len(res.Outputs)),
	}
	if cmd != nil {
		rec.Controls = append([]float64(nil), cmd.Controls[:]...)
	}
	for i, o := range res.Outputs {
		rec.Outputs[i] = core.JointOutput{Joint: o.Joint, Setpoint: o.Setpoint, Value: o.Value}
	}
	return rec
}
