package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yl5006/sitl-gazebo/internal/actuation"
	"github.com/yl5006/sitl-gazebo/internal/bridge"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte(body), 0644))
	return dir
}

func TestLoad_WithValidConfigFile(t *testing.T) {
	t.Cleanup(viper.Reset)

	dir := writeConfig(t, `{
		"logLevel": "debug",
		"sessionName": "bench",
		"db": { "host": "10.0.0.1", "port": "5433" }
	}`)

	err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "debug", viper.GetString("logLevel"))
	assert.Equal(t, "bench", viper.GetString("sessionName"))
	assert.Equal(t, "10.0.0.1", viper.GetString("db.host"))
	assert.Equal(t, "5433", viper.GetString("db.port"))
}

func TestLoad_DefaultValues(t *testing.T) {
	t.Cleanup(viper.Reset)

	err := Load(writeConfig(t, `{}`))
	require.NoError(t, err)

	assert.Equal(t, "info", viper.GetString("logLevel"))
	assert.Equal(t, "./logs", viper.GetString("logsDir"))
	assert.Equal(t, "hil", viper.GetString("sessionName"))
	assert.Equal(t, "localhost", viper.GetString("db.host"))
	assert.Equal(t, "5432", viper.GetString("db.port"))
	assert.Equal(t, "postgres", viper.GetString("db.username"))
	assert.Equal(t, "postgres", viper.GetString("db.password"))
	assert.Equal(t, "hil_bridge", viper.GetString("db.database"))
	assert.Equal(t, false, viper.GetBool("influx.enabled"))
	assert.Equal(t, "hil-bridge", viper.GetString("influx.org"))
	assert.Equal(t, false, viper.GetBool("graylog.enabled"))
	assert.Equal(t, "localhost:12201", viper.GetString("graylog.address"))
	assert.Equal(t, false, viper.GetBool("capture.enabled"))
	assert.Equal(t, 10*time.Second, GetDuration("monitor.interval"))
	assert.Equal(t, 4*time.Millisecond, GetDuration("sim.step"))
	assert.Equal(t, false, viper.GetBool("upload.enabled"))
	assert.Equal(t, "http://localhost:5000", viper.GetString("upload.serverUrl"))
	assert.Equal(t, "memory", viper.GetString("storage.type"))
	assert.Equal(t, "./recordings", viper.GetString("storage.memory.outputDir"))
	assert.Equal(t, true, viper.GetBool("storage.memory.compressOutput"))
	assert.Equal(t, "3m", viper.GetString("storage.sqlite.dumpInterval"))
	assert.Equal(t, false, viper.GetBool("otel.enabled"))
	assert.Equal(t, "hil-bridge", viper.GetString("otel.serviceName"))
	assert.Equal(t, "5s", viper.GetString("otel.batchTimeout"))
	assert.Equal(t, "", viper.GetString("otel.endpoint"))
	assert.Equal(t, true, viper.GetBool("otel.insecure"))
}

func TestLoad_MissingFile(t *testing.T) {
	t.Cleanup(viper.Reset)

	err := Load("/nonexistent/path")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "error reading config file")
}

func TestGetString(t *testing.T) {
	t.Cleanup(viper.Reset)
	viper.Set("testKey", "testValue")
	assert.Equal(t, "testValue", GetString("testKey"))
}

func TestGetInt(t *testing.T) {
	t.Cleanup(viper.Reset)
	viper.Set("testInt", 42)
	assert.Equal(t, 42, GetInt("testInt"))
}

func TestGetBool(t *testing.T) {
	t.Cleanup(viper.Reset)
	viper.Set("testBool", true)
	assert.Equal(t, true, GetBool("testBool"))
}

func TestGetStorageConfig_Defaults(t *testing.T) {
	t.Cleanup(viper.Reset)
	require.NoError(t, Load(writeConfig(t, `{}`)))

	cfg := GetStorageConfig()
	assert.False(t, cfg.Enabled)
	assert.Equal(t, "memory", cfg.Type)
	assert.Equal(t, 4096, cfg.QueueSize)
	assert.Equal(t, 100*time.Millisecond, cfg.TrackInterval)
	assert.Equal(t, "./recordings", cfg.Memory.OutputDir)
	assert.Equal(t, true, cfg.Memory.CompressOutput)
	assert.Equal(t, 500000, cfg.Memory.MaxRecords)
	assert.Equal(t, 3*time.Minute, cfg.SQLite.DumpInterval)
	assert.Equal(t, "ws://localhost:5000/ingest", cfg.WebSocket.URL)
}

func TestGetStorageConfig_Override(t *testing.T) {
	t.Cleanup(viper.Reset)
	require.NoError(t, Load(writeConfig(t, `{
		"storage": {
			"enabled": true,
			"type": "sqlite",
			"memory": { "outputDir": "/tmp/out", "compressOutput": false },
			"sqlite": { "path": "/tmp/run.db", "dumpInterval": "10m" }
		}
	}`)))

	sc := GetStorageConfig()
	assert.True(t, sc.Enabled)
	assert.Equal(t, "sqlite", sc.Type)
	assert.Equal(t, "/tmp/out", sc.Memory.OutputDir)
	assert.Equal(t, false, sc.Memory.CompressOutput)
	assert.Equal(t, "/tmp/run.db", sc.SQLite.Path)
	assert.Equal(t, 10*time.Minute, sc.SQLite.DumpInterval)
}

func TestGetOTelConfig_Defaults(t *testing.T) {
	t.Cleanup(viper.Reset)
	require.NoError(t, Load(writeConfig(t, `{}`)))

	cfg := GetOTelConfig()
	assert.Equal(t, false, cfg.Enabled)
	assert.Equal(t, "hil-bridge", cfg.ServiceName)
	assert.Equal(t, 5*time.Second, cfg.BatchTimeout)
	assert.Equal(t, "", cfg.Endpoint)
	assert.Equal(t, true, cfg.Insecure)
}

func TestGetOTelConfig_Override(t *testing.T) {
	t.Cleanup(viper.Reset)
	require.NoError(t, Load(writeConfig(t, `{
		"otel": {
			"enabled": true,
			"serviceName": "my-service",
			"batchTimeout": "30s",
			"endpoint": "localhost:4317",
			"insecure": false
		}
	}`)))

	oc := GetOTelConfig()
	assert.Equal(t, true, oc.Enabled)
	assert.Equal(t, "my-service", oc.ServiceName)
	assert.Equal(t, 30*time.Second, oc.BatchTimeout)
	assert.Equal(t, "localhost:4317", oc.Endpoint)
	assert.Equal(t, false, oc.Insecure)
}

func TestBridge_Defaults(t *testing.T) {
	t.Cleanup(viper.Reset)
	require.NoError(t, Load(writeConfig(t, `{}`)))

	cfg, err := Bridge()
	require.NoError(t, err)
	assert.Equal(t, bridge.DefaultConfig(), cfg)
}

func TestBridge_Override(t *testing.T) {
	t.Cleanup(viper.Reset)
	require.NoError(t, Load(writeConfig(t, `{
		"bridge": {
			"systemId": 7,
			"pollTimeout": "50ms",
			"telemetry": {
				"home": { "lat": 47.0, "lon": 8.5, "alt": 500 },
				"gps": { "interval": "100ms" }
			},
			"actuation": {
				"failsafe": "disarm",
				"failsafeTimeout": "250ms",
				"channels": [
					{ "joint": "left_elevon_joint", "input": 4, "kind": "position_pid", "scale": 0.5,
					  "pid": { "p": 10, "cmdMax": 2, "cmdMin": -2 } }
				]
			},
			"transport": { "listen": "127.0.0.1:14570", "secondary": "127.0.0.1:14540" }
		}
	}`)))

	cfg, err := Bridge()
	require.NoError(t, err)

	assert.Equal(t, uint8(7), cfg.SystemID)
	assert.Equal(t, bridge.DefaultConfig().ComponentID, cfg.ComponentID)
	assert.Equal(t, 50*time.Millisecond, cfg.PollTimeout)
	assert.Equal(t, 47.0, cfg.Telemetry.Home.Lat)
	assert.Equal(t, 100*time.Millisecond, cfg.Telemetry.Gps.Interval)
	assert.Equal(t, bridge.DefaultConfig().Telemetry.Imu, cfg.Telemetry.Imu)

	assert.Equal(t, actuation.FailsafeDisarm, cfg.Actuation.Failsafe)
	assert.Equal(t, 250*time.Millisecond, cfg.Actuation.FailsafeTimeout)
	require.Len(t, cfg.Actuation.Channels, 1)
	ch := cfg.Actuation.Channels[0]
	assert.Equal(t, "left_elevon_joint", ch.Joint)
	assert.Equal(t, actuation.KindPositionPID, ch.Kind)
	assert.Equal(t, 0.5, ch.Scale)
	assert.Equal(t, 0.0, ch.ZeroArmed)
	assert.Equal(t, 10.0, ch.PID.P)

	assert.Equal(t, "127.0.0.1:14570", cfg.Transport.Listen)
	assert.Equal(t, "127.0.0.1:14540", cfg.Transport.Secondary)
	assert.Equal(t, bridge.DefaultConfig().Transport.SendTimeout, cfg.Transport.SendTimeout)
}

func TestBridge_Invalid(t *testing.T) {
	t.Cleanup(viper.Reset)
	require.NoError(t, Load(writeConfig(t, `{
		"bridge": { "actuation": { "failsafe": "panic" } }
	}`)))

	_, err := Bridge()
	assert.ErrorIs(t, err, actuation.ErrInvalidConfig)
}
