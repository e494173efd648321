package monitor

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yl5006/sitl-gazebo/internal/bridge"
	"github.com/yl5006/sitl-gazebo/internal/session"
	"github.com/yl5006/sitl-gazebo/internal/storage"
	"github.com/yl5006/sitl-gazebo/pkg/core"
)

// statsBackend is a storage backend that reports write statistics.
type statsBackend struct {
	storage.Backend
}

func (statsBackend) Pending() int                          { return 12 }
func (statsBackend) GetLastDBWriteDuration() time.Duration { return 1500 * time.Microsecond }

func fakeStatus() bridge.Status {
	return bridge.Status{
		State:         bridge.Running,
		Peer:          "127.0.0.1:41000",
		TelemetrySent: 42,
		LastSeq:       7,
		Armed:         true,
	}
}

func TestGetReport(t *testing.T) {
	sc := session.NewContext()
	sc.SetSession(&core.Session{UUID: "0b6f"})

	s := NewService(Dependencies{
		Status:          fakeStatus,
		Backend:         statsBackend{},
		RecorderDropped: func() uint64 { return 3 },
		Session:         sc,
	})

	r := s.GetReport()
	assert.Equal(t, "0b6f", r.Session)
	assert.Equal(t, uint64(42), r.Bridge.TelemetrySent)
	require.NotNil(t, r.Storage)
	assert.Equal(t, 12, r.Storage.Pending)
	assert.Equal(t, 1.5, r.Storage.LastWriteMs)
	assert.Equal(t, uint64(3), r.Storage.RecorderDropped)

	f := r.Fields()
	assert.Equal(t, "running", f["state"])
	assert.Equal(t, uint64(7), f["last_seq"])
	assert.Equal(t, true, f["armed"])
	assert.Equal(t, 12, f["pending"])
}

func TestGetReport_NoStorage(t *testing.T) {
	s := NewService(Dependencies{Status: fakeStatus})
	r := s.GetReport()
	assert.Nil(t, r.Storage)
	assert.NotContains(t, r.Fields(), "pending")
}

func TestStartStop_WritesStatusFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "status.json")
	s := NewService(Dependencies{
		Status:     fakeStatus,
		StatusFile: path,
		Interval:   10 * time.Millisecond,
	})

	require.NoError(t, s.Start())
	assert.True(t, s.IsRunning())
	require.NoError(t, s.Start())

	assert.Eventually(t, func() bool {
		data, err := os.ReadFile(path)
		if err != nil || len(data) == 0 {
			return false
		}
		var r Report
		return json.Unmarshal(data, &r) == nil && r.Bridge.LastSeq == 7
	}, time.Second, 10*time.Millisecond)

	s.Stop()
	assert.False(t, s.IsRunning())
	s.Stop()
}
