// internal/storage/memory/export.go
package memory

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ExportVersion is bumped whenever the export layout changes.
const ExportVersion = 1

// SessionExport is the root JSON structure
type SessionExport struct {
	Version   int             `json:"version"`
	Session   SessionJSON     `json:"session"`
	Links     []LinkJSON      `json:"links"`
	Track     [][]float64     `json:"track"` // [simTimeMs, lat, lon, alt, vn, ve, vd, roll, pitch, yaw]
	Commands  []CommandJSON   `json:"commands"`
	Telemetry []TelemetryJSON `json:"telemetry"`
}

// SessionJSON is the session header
type SessionJSON struct {
	UUID       string    `json:"uuid"`
	Name       string    `json:"name"`
	SystemID   uint8     `json:"systemId"`
	Transport  string    `json:"transport"`
	Version    string    `json:"version,omitempty"`
	Home       []float64 `json:"home"` // [lat, lon, alt]
	StartTime  time.Time `json:"startTime"`
	EndTime    time.Time `json:"endTime"`
	DurationMs int64     `json:"durationMs"`
	Dropped    uint64    `json:"dropped"`
}

// LinkJSON is a state transition
type LinkJSON struct {
	Time time.Time `json:"time"`
	From string    `json:"from"`
	To   string    `json:"to"`
	Peer string    `json:"peer,omitempty"`
}

// CommandJSON is an applied actuator command
type CommandJSON struct {
	SimTimeMs int64              `json:"simTimeMs"`
	Seq       uint64             `json:"seq"`
	Armed     bool               `json:"armed"`
	Stale     bool               `json:"stale,omitempty"`
	Controls  []float64          `json:"controls"`
	Outputs   map[string]float64 `json:"outputs"`
}

// TelemetryJSON is an outbound message
type TelemetryJSON struct {
	SimTimeMs int64          `json:"simTimeMs"`
	Message   string         `json:"message"`
	Fields    map[string]any `json:"fields"`
}

// exportJSON writes the session data to a (gzipped) JSON file. Caller holds mu.
func (b *Backend) exportJSON() error {
	export := b.buildExport()

	// Build filename
	name := strings.ReplaceAll(b.session.Name, " ", "_")
	name = strings.ReplaceAll(name, ":", "_")
	timestamp := b.session.StartTime.Format("20060102_150405")

	var filename string
	if b.cfg.CompressOutput {
		filename = fmt.Sprintf("%s_%s.json.gz", name, timestamp)
	} else {
		filename = fmt.Sprintf("%s_%s.json", name, timestamp)
	}

	outputPath := filepath.Join(b.cfg.OutputDir, filename)

	// Ensure output directory exists
	if err := os.MkdirAll(b.cfg.OutputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	// Write file
	if b.cfg.CompressOutput {
		if err := writeGzipJSON(outputPath, export); err != nil {
			return err
		}
	} else {
		if err := writeJSON(outputPath, export); err != nil {
			return err
		}
	}

	b.lastExportPath = outputPath
	return nil
}

func (b *Backend) buildExport() SessionExport {
	s := b.session
	export := SessionExport{
		Version: ExportVersion,
		Session: SessionJSON{
			UUID:       s.UUID,
			Name:       s.Name,
			SystemID:   s.SystemID,
			Transport:  s.Transport,
			Version:    s.Version,
			Home:       []float64{s.Home.Lat, s.Home.Lon, s.Home.Alt},
			StartTime:  s.StartTime,
			EndTime:    s.EndTime,
			DurationMs: s.EndTime.Sub(s.StartTime).Milliseconds(),
			Dropped:    b.dropped,
		},
		Links:     make([]LinkJSON, 0, len(b.links)),
		Track:     make([][]float64, 0, len(b.track)),
		Commands:  make([]CommandJSON, 0, len(b.commands)),
		Telemetry: make([]TelemetryJSON, 0, len(b.telemetry)),
	}

	for _, l := range b.links {
		export.Links = append(export.Links, LinkJSON{Time: l.Time, From: l.From, To: l.To, Peer: l.Peer})
	}

	for _, p := range b.track {
		export.Track = append(export.Track, []float64{
			float64(p.SimTime.Milliseconds()),
			p.Position.Lat, p.Position.Lon, p.Position.Alt,
			p.Velocity.X, p.Velocity.Y, p.Velocity.Z,
			p.Roll, p.Pitch, p.Yaw,
		})
	}

	for _, c := range b.commands {
		outputs := make(map[string]float64, len(c.Outputs))
		for _, o := range c.Outputs {
			outputs[o.Joint] = o.Value
		}
		export.Commands = append(export.Commands, CommandJSON{
			SimTimeMs: c.SimTime.Milliseconds(),
			Seq:       c.Seq,
			Armed:     c.Armed,
			Stale:     c.Stale,
			Controls:  c.Controls,
			Outputs:   outputs,
		})
	}

	for _, r := range b.telemetry {
		export.Telemetry = append(export.Telemetry, TelemetryJSON{
			SimTimeMs: r.SimTime.Milliseconds(),
			Message:   r.Message,
			Fields:    finiteFields(r.Fields),
		})
	}

	return export
}

// finiteFields replaces values json cannot encode with nil.
func finiteFields(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		switch f := v.(type) {
		case float64:
			if math.IsNaN(f) || math.IsInf(f, 0) {
				v = nil
			}
		case float32:
			if math.IsNaN(float64(f)) || math.IsInf(float64(f), 0) {
				v = nil
			}
		}
		out[k] = v
	}
	return out
}

func writeJSON(path string, data SessionExport) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	encoder := json.NewEncoder(f)
	return encoder.Encode(data)
}

func writeGzipJSON(path string, data SessionExport) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	gzWriter := gzip.NewWriter(f)
	defer gzWriter.Close()

	encoder := json.NewEncoder(gzWriter)
	return encoder.Encode(data)
}
