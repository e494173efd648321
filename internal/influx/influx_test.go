package influx

import (
	"bufio"
	"compress/gzip"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yl5006/sitl-gazebo/pkg/core"
)

func TestConnect_Disabled(t *testing.T) {
	t.Cleanup(viper.Reset)
	viper.Set("influx.enabled", false)

	m := NewManager(zerolog.Nop(), filepath.Join(t.TempDir(), "influx.gz"))
	assert.ErrorIs(t, m.Connect(context.Background()), ErrDisabled)
	assert.False(t, m.IsValid)
}

func TestTelemetryPoint(t *testing.T) {
	at := time.Unix(1700000000, 0)
	p := TelemetryPoint("abc", &core.TelemetryRecord{
		Time:    at,
		SimTime: 1500 * time.Millisecond,
		Message: "HIL_SENSOR",
		Fields: map[string]any{
			"xacc":     0.1,
			"controls": []any{0.5, -0.5},
			"label":    "skipped",
		},
	})

	assert.Equal(t, "HIL_SENSOR", p.Name())
	assert.Equal(t, at, p.Time())
	require.Len(t, p.TagList(), 1)
	assert.Equal(t, "abc", p.TagList()[0].Value)

	fields := map[string]any{}
	for _, f := range p.FieldList() {
		fields[f.Key] = f.Value
	}
	assert.Equal(t, int64(1500000), fields["sim_time_us"])
	assert.Equal(t, 0.1, fields["xacc"])
	assert.Equal(t, 0.5, fields["controls_0"])
	assert.Equal(t, -0.5, fields["controls_1"])
	assert.NotContains(t, fields, "label")
}

func TestWritePoint_Backup(t *testing.T) {
	path := filepath.Join(t.TempDir(), "influx.gz")
	m := NewManager(zerolog.Nop(), path)
	require.NoError(t, m.openBackup())

	at := time.Unix(1700000000, 0)
	require.NoError(t, m.WritePoint(BucketPerformance, PerformancePoint("abc", at, map[string]any{"ticks": int64(3)})))
	require.NoError(t, m.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	gz, err := gzip.NewReader(f)
	require.NoError(t, err)

	sc := bufio.NewScanner(gz)
	require.True(t, sc.Scan())
	assert.Equal(t, "bridge,session=abc ticks=3i 1700000000000000000", sc.Text())
}

func TestWritePoint_NoWriter(t *testing.T) {
	m := NewManager(zerolog.Nop(), "")
	err := m.WritePoint(BucketTelemetry, PerformancePoint("x", time.Now(), map[string]any{"a": 1.0}))
	assert.Error(t, err)
}
