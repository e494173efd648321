package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
	"github.com/yl5006/sitl-gazebo/internal/bridge"
)

// FileName is the configuration file looked up in the config directory.
const FileName = "hil_bridge.cfg.json"

// MemoryConfig holds in-memory/JSON storage backend settings
type MemoryConfig struct {
	OutputDir      string `json:"outputDir" mapstructure:"outputDir"`
	CompressOutput bool   `json:"compressOutput" mapstructure:"compressOutput"`
	MaxRecords     int    `json:"maxRecords" mapstructure:"maxRecords"` // per stream, 0 = unlimited
}

// SQLiteConfig holds settings of the in-memory SQLite backend that is
// periodically dumped to Path.
type SQLiteConfig struct {
	Path         string        `json:"path" mapstructure:"path"`
	DumpInterval time.Duration `json:"dumpInterval" mapstructure:"dumpInterval"`
}

// WebSocketConfig holds the streaming backend settings.
type WebSocketConfig struct {
	URL    string `json:"url" mapstructure:"url"`
	Secret string `json:"secret" mapstructure:"secret"`
}

// StorageConfig selects and configures the session recorder backend.
type StorageConfig struct {
	Enabled       bool            `json:"enabled" mapstructure:"enabled"`
	Type          string          `json:"type" mapstructure:"type"`
	QueueSize     int             `json:"queueSize" mapstructure:"queueSize"`
	TrackInterval time.Duration   `json:"trackInterval" mapstructure:"trackInterval"`
	Memory        MemoryConfig    `json:"memory" mapstructure:"memory"`
	SQLite        SQLiteConfig    `json:"sqlite" mapstructure:"sqlite"`
	WebSocket     WebSocketConfig `json:"websocket" mapstructure:"websocket"`
}

// OTelConfig holds the OpenTelemetry settings.
type OTelConfig struct {
	Enabled      bool          `json:"enabled" mapstructure:"enabled"`
	ServiceName  string        `json:"serviceName" mapstructure:"serviceName"`
	BatchTimeout time.Duration `json:"batchTimeout" mapstructure:"batchTimeout"`
	Endpoint     string        `json:"endpoint" mapstructure:"endpoint"`
	Insecure     bool          `json:"insecure" mapstructure:"insecure"`
}

// Load reads configuration from JSON file and sets default values.
// configDir is the directory containing the config file.
func Load(configDir string) error {
	setDefaults()

	viper.SetConfigName(FileName)
	viper.AddConfigPath(configDir)
	viper.SetConfigType("json")

	err := viper.ReadInConfig()
	if err != nil {
		return fmt.Errorf("error reading config file: %w", err)
	}

	return nil
}

func setDefaults() {
	viper.SetDefault("logLevel", "info")
	viper.SetDefault("logsDir", "./logs")
	viper.SetDefault("sessionName", "hil")

	viper.SetDefault("db.host", "localhost")
	viper.SetDefault("db.port", "5432")
	viper.SetDefault("db.username", "postgres")
	viper.SetDefault("db.password", "postgres")
	viper.SetDefault("db.database", "hil_bridge")

	viper.SetDefault("influx.enabled", false)
	viper.SetDefault("influx.host", "localhost")
	viper.SetDefault("influx.port", "8086")
	viper.SetDefault("influx.protocol", "http")
	viper.SetDefault("influx.token", "supersecrettoken")
	viper.SetDefault("influx.org", "hil-bridge")

	viper.SetDefault("graylog.enabled", false)
	viper.SetDefault("graylog.address", "localhost:12201")

	viper.SetDefault("capture.enabled", false)
	viper.SetDefault("capture.path", "./logs/hil_bridge.pcap")

	viper.SetDefault("monitor.interval", "10s")
	viper.SetDefault("monitor.statusFile", "")

	viper.SetDefault("sim.step", "4ms")

	viper.SetDefault("upload.enabled", false)
	viper.SetDefault("upload.serverUrl", "http://localhost:5000")
	viper.SetDefault("upload.apiKey", "")
	viper.SetDefault("upload.tag", "")

	viper.SetDefault("storage.enabled", false)
	viper.SetDefault("storage.type", "memory")
	viper.SetDefault("storage.queueSize", 4096)
	viper.SetDefault("storage.trackInterval", "100ms")
	viper.SetDefault("storage.memory.outputDir", "./recordings")
	viper.SetDefault("storage.memory.compressOutput", true)
	viper.SetDefault("storage.memory.maxRecords", 500000)
	viper.SetDefault("storage.sqlite.path", "./recordings/hil_bridge.db")
	viper.SetDefault("storage.sqlite.dumpInterval", "3m")
	viper.SetDefault("storage.websocket.url", "ws://localhost:5000/ingest")
	viper.SetDefault("storage.websocket.secret", "")

	viper.SetDefault("otel.enabled", false)
	viper.SetDefault("otel.serviceName", "hil-bridge")
	viper.SetDefault("otel.batchTimeout", "5s")
	viper.SetDefault("otel.endpoint", "")
	viper.SetDefault("otel.insecure", true)
}

// GetString returns a string config value.
func GetString(key string) string {
	return viper.GetString(key)
}

// GetInt returns an int config value.
func GetInt(key string) int {
	return viper.GetInt(key)
}

// GetBool returns a bool config value.
func GetBool(key string) bool {
	return viper.GetBool(key)
}

// GetDuration returns a duration config value.
func GetDuration(key string) time.Duration {
	return viper.GetDuration(key)
}

// GetStorageConfig returns the recorder storage settings.
func GetStorageConfig() StorageConfig {
	return StorageConfig{
		Enabled:       viper.GetBool("storage.enabled"),
		Type:          viper.GetString("storage.type"),
		QueueSize:     viper.GetInt("storage.queueSize"),
		TrackInterval: viper.GetDuration("storage.trackInterval"),
		Memory: MemoryConfig{
			OutputDir:      viper.GetString("storage.memory.outputDir"),
			CompressOutput: viper.GetBool("storage.memory.compressOutput"),
			MaxRecords:     viper.GetInt("storage.memory.maxRecords"),
		},
		SQLite: SQLiteConfig{
			Path:         viper.GetString("storage.sqlite.path"),
			DumpInterval: viper.GetDuration("storage.sqlite.dumpInterval"),
		},
		WebSocket: WebSocketConfig{
			URL:    viper.GetString("storage.websocket.url"),
			Secret: viper.GetString("storage.websocket.secret"),
		},
	}
}

// GetOTelConfig returns the OpenTelemetry settings.
func GetOTelConfig() OTelConfig {
	return OTelConfig{
		Enabled:      viper.GetBool("otel.enabled"),
		ServiceName:  viper.GetString("otel.serviceName"),
		BatchTimeout: viper.GetDuration("otel.batchTimeout"),
		Endpoint:     viper.GetString("otel.endpoint"),
		Insecure:     viper.GetBool("otel.insecure"),
	}
}

// Bridge decodes the "bridge" section on top of bridge.DefaultConfig and
// validates the result. Keys left out of the file keep their defaults.
func Bridge() (bridge.Config, error) {
	cfg := bridge.DefaultConfig()
	// a configured channel table replaces the default one instead of
	// merging into it index by index
	if viper.IsSet("bridge.actuation.channels") {
		cfg.Actuation.Channels = nil
	}
	if err := viper.UnmarshalKey("bridge", &cfg); err != nil {
		return bridge.Config{}, fmt.Errorf("decoding bridge config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return bridge.Config{}, err
	}
	return cfg, nil
}
