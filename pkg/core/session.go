// pkg/core/session.go
package core

import "time"

// Geodetic is a WGS84 position. Alt is AMSL in meters.
type Geodetic struct {
	Lat float64
	Lon float64
	Alt float64
}

// Session is one run of the bridge, from Start to Shutdown.
type Session struct {
	ID        uint
	UUID      string
	Name      string
	SystemID  uint8
	Transport string // listen address or serial device
	Home      Geodetic
	Version   string
	StartTime time.Time
	EndTime   time.Time
}

// Ended reports whether the session has been closed.
func (s *Session) Ended() bool {
	return !s.EndTime.IsZero()
}

// UploadMetadata describes an exported session file sent to a recordings
// server.
type UploadMetadata struct {
	UUID     string
	Name     string
	SystemID uint8
	Duration float64 // seconds
	Tag      string
}
