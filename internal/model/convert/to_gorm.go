// Package convert turns core session records into GORM models.
package convert

import (
	"database/sql"
	"encoding/json"

	geom "github.com/peterstace/simplefeatures/geom"
	"github.com/yl5006/sitl-gazebo/internal/geo"
	"github.com/yl5006/sitl-gazebo/internal/model"
	"github.com/yl5006/sitl-gazebo/pkg/core"
	"gorm.io/datatypes"
)

func toLLA(p core.Geodetic) geo.LLA {
	return geo.LLA{Lat: p.Lat, Lon: p.Lon, Alt: p.Alt}
}

// geodeticToPoint projects p to EPSG:3857. Positions outside the geodetic
// domain become an empty point.
func geodeticToPoint(p core.Geodetic) geom.Point {
	pt, err := geo.Point3857(toLLA(p))
	if err != nil {
		return geom.NewEmptyPoint(geom.DimXYZ)
	}
	return pt
}

// toJSON marshals v for a JSON column. Values json cannot represent (NaN)
// are stored as an empty document of the right shape.
func toJSON(v any, empty string) datatypes.JSON {
	data, err := json.Marshal(v)
	if err != nil || string(data) == "null" {
		return datatypes.JSON(empty)
	}
	return datatypes.JSON(data)
}

// CoreToSession converts a core.Session. core.Session.ID maps to the GORM
// primary key.
func CoreToSession(s core.Session) model.Session {
	m := model.Session{
		UUID:         s.UUID,
		Name:         s.Name,
		SystemID:     s.SystemID,
		Transport:    s.Transport,
		Version:      s.Version,
		Home:         geodeticToPoint(s.Home),
		HomeAltitude: s.Home.Alt,
		StartTime:    s.StartTime,
	}
	m.ID = s.ID
	if s.Ended() {
		m.EndTime = sql.NullTime{Time: s.EndTime, Valid: true}
	}
	return m
}

// CoreToLinkEvent converts a core.LinkEvent.
func CoreToLinkEvent(e core.LinkEvent, sessionID uint) model.LinkEvent {
	return model.LinkEvent{
		Time:      e.Time,
		SessionID: sessionID,
		FromState: e.From,
		ToState:   e.To,
		Peer:      e.Peer,
	}
}

// CoreToTrackPoint converts a core.TrackPoint.
func CoreToTrackPoint(p core.TrackPoint, sessionID uint) model.TrackPoint {
	return model.TrackPoint{
		Time:      p.Time,
		SessionID: sessionID,
		SimTimeUs: p.SimTime.Microseconds(),
		Position:  geodeticToPoint(p.Position),
		Altitude:  p.Position.Alt,
		VelocityN: float32(p.Velocity.X),
		VelocityE: float32(p.Velocity.Y),
		VelocityD: float32(p.Velocity.Z),
		Roll:      float32(p.Roll),
		Pitch:     float32(p.Pitch),
		Yaw:       float32(p.Yaw),
		Airspeed:  float32(p.Airspeed),
	}
}

// CoreToCommand converts a core.CommandRecord. Controls and outputs are
// stored as JSON arrays.
func CoreToCommand(c core.CommandRecord, sessionID uint) model.Command {
	return model.Command{
		Time:      c.Time,
		SessionID: sessionID,
		SimTimeUs: c.SimTime.Microseconds(),
		Seq:       c.Seq,
		Armed:     c.Armed,
		Stale:     c.Stale,
		Controls:  toJSON(c.Controls, "[]"),
		Outputs:   toJSON(c.Outputs, "[]"),
	}
}

// CoreToTelemetry converts a core.TelemetryRecord.
func CoreToTelemetry(r core.TelemetryRecord, sessionID uint) model.Telemetry {
	return model.Telemetry{
		Time:      r.Time,
		SessionID: sessionID,
		SimTimeUs: r.SimTime.Microseconds(),
		Message:   r.Message,
		Fields:    toJSON(r.Fields, "{}"),
	}
}

// TrackToPath builds the session path from recorded positions. Fewer than
// two valid positions give an empty line string.
func TrackToPath(points []core.Geodetic) geom.LineString {
	lla := make([]geo.LLA, 0, len(points))
	for _, p := range points {
		if l := toLLA(p); l.Valid() {
			lla = append(lla, l)
		}
	}
	path, err := geo.Track(lla)
	if err != nil {
		return geom.LineString{}
	}
	return path
}
