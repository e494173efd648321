package mavlink

import (
	"github.com/bluenviron/gomavlib/v3/pkg/dialects/common"
	"github.com/bluenviron/gomavlib/v3/pkg/message"
)

// MessageID identifies a MAVLink message type.
type MessageID uint32

// Message IDs of the common dialect subset spoken by the bridge.
const (
	MsgIDHeartbeat              MessageID = 0
	MsgIDSystemTime             MessageID = 2
	MsgIDHilActuatorControls    MessageID = 93
	MsgIDVisionPositionEstimate MessageID = 102
	MsgIDHilSensor              MessageID = 107
	MsgIDTimesync               MessageID = 111
	MsgIDHilGps                 MessageID = 113
	MsgIDHilOpticalFlow         MessageID = 114
	MsgIDHilStateQuaternion     MessageID = 115
	MsgIDDistanceSensor         MessageID = 132
	MsgIDLandingTarget          MessageID = 149
)

// Enum values used by the bridge. They are untyped so they assign to the
// dialect's enum fields directly.
const (
	ModeFlagSafetyArmed = 128

	TypeGeneric        = 0
	AutopilotInvalid   = 8
	StateActive        = 4
	FrameBodyNED       = 8
	SensorOrientDown   = 25 // MAV_SENSOR_ROTATION_PITCH_270
	DistanceLaser      = 0
	DistanceUltrasound = 1

	GpsFix3D uint8 = 3

	// HilSensorFieldsAll marks every HIL_SENSOR field as updated.
	HilSensorFieldsAll = 4095

	// MaxControls is the width of the HIL_ACTUATOR_CONTROLS array.
	MaxControls = 16
)

// Message is implemented by every payload type of the dialect.
type Message = message.Message

// Payload types, shared with the common dialect.
type (
	Heartbeat              = common.MessageHeartbeat
	SystemTime             = common.MessageSystemTime
	HilActuatorControls    = common.MessageHilActuatorControls
	VisionPositionEstimate = common.MessageVisionPositionEstimate
	HilSensor              = common.MessageHilSensor
	Timesync               = common.MessageTimesync
	HilGps                 = common.MessageHilGps
	HilOpticalFlow         = common.MessageHilOpticalFlow
	HilStateQuaternion     = common.MessageHilStateQuaternion
	DistanceSensor         = common.MessageDistanceSensor
	LandingTarget          = common.MessageLandingTarget
)

// messages is the dialect the codec accepts. Frames of any other id decode
// to ErrUnknownMessageID.
var messages = []message.Message{
	&Heartbeat{},
	&SystemTime{},
	&HilActuatorControls{},
	&VisionPositionEstimate{},
	&HilSensor{},
	&Timesync{},
	&HilGps{},
	&HilOpticalFlow{},
	&HilStateQuaternion{},
	&DistanceSensor{},
	&LandingTarget{},
}

var names = map[MessageID]string{
	MsgIDHeartbeat:              "HEARTBEAT",
	MsgIDSystemTime:             "SYSTEM_TIME",
	MsgIDHilActuatorControls:    "HIL_ACTUATOR_CONTROLS",
	MsgIDVisionPositionEstimate: "VISION_POSITION_ESTIMATE",
	MsgIDHilSensor:              "HIL_SENSOR",
	MsgIDTimesync:               "TIMESYNC",
	MsgIDHilGps:                 "HIL_GPS",
	MsgIDHilOpticalFlow:         "HIL_OPTICAL_FLOW",
	MsgIDHilStateQuaternion:     "HIL_STATE_QUATERNION",
	MsgIDDistanceSensor:         "DISTANCE_SENSOR",
	MsgIDLandingTarget:          "LANDING_TARGET",
}

// Name returns the protocol name of a message ID, or "UNKNOWN".
func Name(id MessageID) string {
	if name, ok := names[id]; ok {
		return name
	}
	return "UNKNOWN"
}

// NameOf returns the protocol name of m.
func NameOf(m Message) string {
	return Name(MessageID(m.GetID()))
}

// Armed reports whether the safety-armed bit of the command's mode is set.
func Armed(m *HilActuatorControls) bool {
	return uint64(m.Mode)&ModeFlagSafetyArmed != 0
}

// IsTimesyncRequest reports whether m asks the receiver to answer (tc1 == 0).
func IsTimesyncRequest(m *Timesync) bool {
	return m.Tc1 == 0
}
