package gormstorage

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yl5006/sitl-gazebo/internal/database"
	"github.com/yl5006/sitl-gazebo/internal/model"
	"github.com/yl5006/sitl-gazebo/internal/storage"
	"github.com/yl5006/sitl-gazebo/pkg/core"
	"gorm.io/gorm"
)

// Compile-time interface checks
var (
	_ storage.Backend    = (*Backend)(nil)
	_ storage.WriteStats = (*Backend)(nil)
)

var start = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// newTestBackend creates a Backend with no DB (queue-only mode for unit testing).
func newTestBackend(t *testing.T) *Backend {
	t.Helper()
	b := New(Dependencies{QueueSize: 4})
	require.NoError(t, b.Init())
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func newSqliteBackend(t *testing.T) (*Backend, *gorm.DB) {
	t.Helper()
	m := database.NewManager(zerolog.Nop())
	db, err := m.OpenSqlite("")
	require.NoError(t, err)
	require.NoError(t, m.Setup(db))

	b := New(Dependencies{DB: db, FlushInterval: time.Hour})
	require.NoError(t, b.Init())
	t.Cleanup(func() { _ = b.Close() })
	return b, db
}

func testSession() *core.Session {
	return &core.Session{
		UUID:      "0b9c2d9e-8a55-4c64-9b6c-2f0f6d1e0a01",
		Name:      "bench",
		SystemID:  1,
		Transport: "0.0.0.0:14560",
		Home:      core.Geodetic{Lat: 47.397742, Lon: 8.545594, Alt: 488},
		StartTime: start,
	}
}

func TestRecordBeforeSession(t *testing.T) {
	b := newTestBackend(t)

	assert.ErrorIs(t, b.RecordLinkEvent(&core.LinkEvent{}), storage.ErrNoSession)
	assert.ErrorIs(t, b.RecordTrackPoint(&core.TrackPoint{}), storage.ErrNoSession)
	assert.ErrorIs(t, b.RecordCommand(&core.CommandRecord{}), storage.ErrNoSession)
	assert.ErrorIs(t, b.RecordTelemetry(&core.TelemetryRecord{}), storage.ErrNoSession)
	assert.ErrorIs(t, b.EndSession(start), storage.ErrNoSession)
}

func TestStartSession_QueueOnlyAssignsIDs(t *testing.T) {
	b := newTestBackend(t)

	s1 := testSession()
	require.NoError(t, b.StartSession(s1))
	assert.Equal(t, uint(1), s1.ID)
	require.NoError(t, b.EndSession(start))

	s2 := testSession()
	require.NoError(t, b.StartSession(s2))
	assert.Equal(t, uint(2), s2.ID)
}

func TestRecords_QueueToInternalQueues(t *testing.T) {
	b := newTestBackend(t)
	require.NoError(t, b.StartSession(testSession()))

	require.NoError(t, b.RecordLinkEvent(&core.LinkEvent{From: "connected", To: "running"}))
	require.NoError(t, b.RecordTrackPoint(&core.TrackPoint{Position: core.Geodetic{Lat: 47.4, Lon: 8.5}}))
	require.NoError(t, b.RecordCommand(&core.CommandRecord{Seq: 257}))
	require.NoError(t, b.RecordTelemetry(&core.TelemetryRecord{Message: "HIL_GPS"}))

	assert.Equal(t, 1, b.queues.LinkEvents.Len())
	assert.Equal(t, 1, b.queues.TrackPoints.Len())
	assert.Equal(t, 1, b.queues.Commands.Len())
	assert.Equal(t, 1, b.queues.Telemetry.Len())
	assert.Equal(t, 4, b.Pending())

	cmds := b.queues.Commands.Take(1)
	require.Len(t, cmds, 1)
	cmd := cmds[0]
	assert.Equal(t, uint(1), cmd.SessionID)
	assert.Equal(t, uint64(257), cmd.Seq)
}

func TestRecords_QueueFull(t *testing.T) {
	b := newTestBackend(t)
	require.NoError(t, b.StartSession(testSession()))

	for i := 0; i < 4; i++ {
		require.NoError(t, b.RecordTelemetry(&core.TelemetryRecord{Message: "HIL_SENSOR"}))
	}
	assert.ErrorIs(t, b.RecordTelemetry(&core.TelemetryRecord{Message: "HIL_SENSOR"}), storage.ErrQueueFull)
	assert.Equal(t, uint64(1), b.Dropped())
}

func TestSqlite_SessionLifecycle(t *testing.T) {
	b, db := newSqliteBackend(t)

	s := testSession()
	require.NoError(t, b.StartSession(s))
	require.NotZero(t, s.ID)

	require.NoError(t, b.RecordLinkEvent(&core.LinkEvent{Time: start, From: "connected", To: "running", Peer: "127.0.0.1:14580"}))
	for i := 0; i < 3; i++ {
		require.NoError(t, b.RecordTrackPoint(&core.TrackPoint{
			Time:     start.Add(time.Duration(i) * time.Second),
			SimTime:  time.Duration(i) * time.Second,
			Position: core.Geodetic{Lat: 47.397742 + float64(i)*1e-4, Lon: 8.545594, Alt: 488},
		}))
	}
	require.NoError(t, b.RecordCommand(&core.CommandRecord{Time: start, Seq: 257, Armed: true, Controls: []float64{0.5}}))
	require.NoError(t, b.RecordTelemetry(&core.TelemetryRecord{Time: start, Message: "HIL_GPS", Fields: map[string]any{"FixType": 3}}))

	// nothing written until a flush
	var n int64
	require.NoError(t, db.Model(&model.TrackPoint{}).Count(&n).Error)
	assert.Equal(t, int64(0), n)

	require.NoError(t, b.EndSession(start.Add(time.Minute)))
	assert.Equal(t, 0, b.Pending())

	require.NoError(t, db.Model(&model.TrackPoint{}).Where("session_id = ?", s.ID).Count(&n).Error)
	assert.Equal(t, int64(3), n)
	require.NoError(t, db.Model(&model.LinkEvent{}).Where("session_id = ?", s.ID).Count(&n).Error)
	assert.Equal(t, int64(1), n)
	require.NoError(t, db.Model(&model.Command{}).Where("seq = ?", 257).Count(&n).Error)
	assert.Equal(t, int64(1), n)
	require.NoError(t, db.Model(&model.Telemetry{}).Where("message = ?", "HIL_GPS").Count(&n).Error)
	assert.Equal(t, int64(1), n)

	var ended []string
	require.NoError(t, db.Model(&model.Session{}).Where("end_time IS NOT NULL").Pluck("uuid", &ended).Error)
	assert.Equal(t, []string{s.UUID}, ended)
	assert.Greater(t, b.GetLastDBWriteDuration(), time.Duration(0))
}

func TestFlush_WritesInBatches(t *testing.T) {
	b, db := newSqliteBackend(t)
	require.NoError(t, b.StartSession(testSession()))

	total := 2*writeBatch + 5
	for i := 0; i < total; i++ {
		require.NoError(t, b.RecordTelemetry(&core.TelemetryRecord{Time: start, Message: "HIL_SENSOR"}))
	}
	b.flush()

	var n int64
	require.NoError(t, db.Model(&model.Telemetry{}).Count(&n).Error)
	assert.Equal(t, int64(total), n)
	assert.Zero(t, b.Pending())
}

func TestClose_FlushesPending(t *testing.T) {
	b, db := newSqliteBackend(t)
	require.NoError(t, b.StartSession(testSession()))
	require.NoError(t, b.RecordCommand(&core.CommandRecord{Seq: 300}))

	require.NoError(t, b.Close())
	require.NoError(t, b.Close())

	var n int64
	require.NoError(t, db.Model(&model.Command{}).Count(&n).Error)
	assert.Equal(t, int64(1), n)
}

func TestPathSampler_Bounded(t *testing.T) {
	var p pathSampler
	for i := 0; i < 3*maxPathPoints; i++ {
		p.add(core.Geodetic{Lat: float64(i) * 1e-6})
	}
	assert.Less(t, len(p.points), maxPathPoints)
	assert.Greater(t, len(p.points), maxPathPoints/4)
	assert.Equal(t, 0.0, p.points[0].Lat)
	for i := 1; i < len(p.points); i++ {
		assert.Greater(t, p.points[i].Lat, p.points[i-1].Lat)
	}
}
