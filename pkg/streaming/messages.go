package streaming

import (
	"encoding/json"

	"github.com/yl5006/sitl-gazebo/pkg/core"
)

// Message type constants matching the streaming protocol.
const (
	TypeStartSession = "start_session"
	TypeEndSession   = "end_session"
	TypeLinkEvent    = "link_event"
	TypeTrackPoint   = "track_point"
	TypeCommand      = "command"
	TypeTelemetry    = "telemetry"
)

// TypeAck is sent by the server only.
const TypeAck = "ack"

// Envelope wraps all messages sent over the WebSocket. Every envelope after
// start_session carries a seq that restarts at 1 with each session; after a
// reconnect the client replays start_session and then every envelope the
// server has not acknowledged, so receivers drop seqs they already stored.
type Envelope struct {
	Type    string          `json:"type"`
	Seq     uint64          `json:"seq,omitempty"`
	Payload json.RawMessage `json:"payload"`
}

// AckMessage is the server's acknowledgement. Seq is cumulative: every
// envelope up to and including it is stored. For names the control message
// (start_session, end_session) being confirmed, if any.
type AckMessage struct {
	Type string `json:"type"`
	For  string `json:"for,omitempty"`
	Seq  uint64 `json:"seq,omitempty"`
}

// StartSessionPayload carries the session header.
type StartSessionPayload struct {
	Session *core.Session `json:"session"`
}
