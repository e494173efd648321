package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// OpenLogFile creates dir if needed and opens the run's log file for
// appending. The name carries the start time, e.g.
// hil_bridge.20260212_213836.log, so runs never share a file.
func OpenLogFile(dir, app string, start time.Time) (*os.File, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating logs dir: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("%s.%s.log", app, start.Format("20060102_150405")))
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		return nil, fmt.Errorf("opening log file: %w", err)
	}
	return f, nil
}
