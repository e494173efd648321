package model

import (
	"database/sql"
	"time"

	geom "github.com/peterstace/simplefeatures/geom"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

////////////////////////
// DATABASE STRUCTURES //
////////////////////////

// DatabaseModels is a list of all the structs exported here which represent tables in the database schema
var DatabaseModels = []interface{}{
	&Session{},
	&LinkEvent{},
	&TrackPoint{},
	&Command{},
	&Telemetry{},
}

////////////////////////
// SESSION
////////////////////////

// Session is one bridge run. Home and Path are stored in EPSG:3857.
type Session struct {
	gorm.Model
	UUID         string          `json:"uuid" gorm:"size:36;uniqueIndex"`
	Name         string          `json:"name" gorm:"size:127"`
	SystemID     uint8           `json:"systemId"`
	Transport    string          `json:"transport" gorm:"size:127"`
	Version      string          `json:"version" gorm:"size:32"`
	Home         geom.Point      `json:"home"`
	HomeAltitude float64         `json:"homeAltitude"`
	StartTime    time.Time       `json:"startTime" gorm:"type:timestamptz;index:idx_session_start_time"`
	EndTime      sql.NullTime    `json:"endTime" gorm:"type:timestamptz"`
	Path         geom.LineString `json:"path"`
}

func (*Session) TableName() string {
	return "sessions"
}

////////////////////////
// RECORDS
////////////////////////

// LinkEvent is a bridge state transition.
type LinkEvent struct {
	ID        uint      `json:"id" gorm:"primarykey;autoIncrement;"`
	Time      time.Time `json:"time" gorm:"type:timestamptz;"`
	SessionID uint      `json:"sessionId" gorm:"index:idx_linkevent_session_id"`
	Session   Session   `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;foreignkey:SessionID;"`
	FromState string    `json:"fromState" gorm:"size:32"`
	ToState   string    `json:"toState" gorm:"size:32"`
	Peer      string    `json:"peer" gorm:"size:64"`
}

func (*LinkEvent) TableName() string {
	return "link_events"
}

// TrackPoint is a ground-truth pose, position in EPSG:3857.
type TrackPoint struct {
	ID        uint       `json:"id" gorm:"primarykey;autoIncrement;"`
	Time      time.Time  `json:"time" gorm:"type:timestamptz;index:idx_trackpoint_time"`
	SessionID uint       `json:"sessionId" gorm:"index:idx_trackpoint_session_id"`
	Session   Session    `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;foreignkey:SessionID;"`
	SimTimeUs int64      `json:"simTimeUs" gorm:"index:idx_trackpoint_sim_time"`
	Position  geom.Point `json:"position"`
	Altitude  float64    `json:"altitude"`
	VelocityN float32    `json:"velocityN"`
	VelocityE float32    `json:"velocityE"`
	VelocityD float32    `json:"velocityD"`
	Roll      float32    `json:"roll"`
	Pitch     float32    `json:"pitch"`
	Yaw       float32    `json:"yaw"`
	Airspeed  float32    `json:"airspeed"`
}

func (*TrackPoint) TableName() string {
	return "track_points"
}

// Command is an actuator command as it was applied to the joints.
type Command struct {
	ID        uint           `json:"id" gorm:"primarykey;autoIncrement;"`
	Time      time.Time      `json:"time" gorm:"type:timestamptz;index:idx_command_time"`
	SessionID uint           `json:"sessionId" gorm:"index:idx_command_session_id"`
	Session   Session        `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;foreignkey:SessionID;"`
	SimTimeUs int64          `json:"simTimeUs"`
	Seq       uint64         `json:"seq" gorm:"index:idx_command_seq"`
	Armed     bool           `json:"armed"`
	Stale     bool           `json:"stale"`
	Controls  datatypes.JSON `json:"controls"`
	Outputs   datatypes.JSON `json:"outputs"`
}

func (*Command) TableName() string {
	return "commands"
}

// Telemetry is one outbound message with its decoded fields.
type Telemetry struct {
	ID        uint           `json:"id" gorm:"primarykey;autoIncrement;"`
	Time      time.Time      `json:"time" gorm:"type:timestamptz;index:idx_telemetry_time"`
	SessionID uint           `json:"sessionId" gorm:"index:idx_telemetry_session_id"`
	Session   Session        `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;foreignkey:SessionID;"`
	SimTimeUs int64          `json:"simTimeUs"`
	Message   string         `json:"message" gorm:"size:64;index:idx_telemetry_message"`
	Fields    datatypes.JSON `json:"fields"`
}

func (*Telemetry) TableName() string {
	return "telemetry"
}
