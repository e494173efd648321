// Command hil_bridge runs the HIL bridge against a stationary vehicle so an
// autopilot can be brought up and its link exercised without a simulator.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	sdklog "go.opentelemetry.io/otel/sdk/log"

	"github.com/yl5006/sitl-gazebo/internal/api"
	"github.com/yl5006/sitl-gazebo/internal/bridge"
	"github.com/yl5006/sitl-gazebo/internal/capture"
	"github.com/yl5006/sitl-gazebo/internal/config"
	"github.com/yl5006/sitl-gazebo/internal/database"
	"github.com/yl5006/sitl-gazebo/internal/geo"
	"github.com/yl5006/sitl-gazebo/internal/influx"
	"github.com/yl5006/sitl-gazebo/internal/logging"
	"github.com/yl5006/sitl-gazebo/internal/monitor"
	intOtel "github.com/yl5006/sitl-gazebo/internal/otel"
	"github.com/yl5006/sitl-gazebo/internal/recorder"
	"github.com/yl5006/sitl-gazebo/internal/session"
	"github.com/yl5006/sitl-gazebo/internal/storage"
	"github.com/yl5006/sitl-gazebo/pkg/core"
)

// BuildDate can be set at build time via ldflags
var (
	Version   = "0.1.0"
	BuildDate = "unknown"
)

const appName = "hil_bridge"

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", appName, err)
		os.Exit(1)
	}
}

// app holds everything run sets up, in the order it must be torn down.
type app struct {
	logger   *slog.Logger
	logs     *logging.SlogManager
	logFile  *os.File
	otel     *intOtel.Provider
	influx   *influx.Manager
	capture  *capture.Writer
	backend  storage.Backend
	recorder *recorder.Manager
	monitor  *monitor.Service
	bridge   *bridge.Bridge
	uploader *api.Client
}

func newFlagSet() *pflag.FlagSet {
	flags := pflag.NewFlagSet(appName, pflag.ContinueOnError)
	flags.StringP("config", "c", ".", "directory holding "+config.FileName)
	flags.String("log-level", "", "log level (debug, info, warn, error)")
	flags.String("listen", "", "local UDP address, host:port")
	flags.String("serial", "", "serial device, replaces UDP when set")
	flags.Duration("step", 0, "simulation step")
	flags.Bool("record", false, "record the session")
	flags.String("home", "", "home position as lat,lon[,alt]")
	flags.BoolP("version", "v", false, "print version and exit")
	return flags
}

func run(args []string) error {
	flags := newFlagSet()
	if err := flags.Parse(args); err != nil {
		return err
	}
	configDir, _ := flags.GetString("config")
	if v, _ := flags.GetBool("version"); v {
		fmt.Printf("%s %s (%s)\n", appName, Version, BuildDate)
		return nil
	}

	configErr := config.Load(configDir)
	for _, b := range [][2]string{
		{"logLevel", "log-level"},
		{"sim.step", "step"},
		{"storage.enabled", "record"},
	} {
		if flags.Changed(b[1]) {
			_ = viper.BindPFlag(b[0], flags.Lookup(b[1]))
		}
	}

	a := &app{}
	defer a.close()

	start := time.Now()
	if err := a.setupLogging(start); err != nil {
		return err
	}
	if configErr != nil {
		a.logger.Warn("Failed to load config, using defaults!", "error", configErr)
	} else {
		a.logger.Info("Loaded config", "dir", configDir)
	}

	bridgeCfg, err := config.Bridge()
	if err != nil {
		return err
	}
	if err := applyFlags(&bridgeCfg, flags); err != nil {
		return err
	}

	// dispatcher adapters and storage managers log through zerolog
	zlog := zerolog.New(a.logFile).With().Timestamp().Logger().
		Level(zerologLevel(viper.GetString("logLevel")))

	sessions := session.NewContext()
	var current atomic.Pointer[bridge.Bridge]
	a.logger = a.logs.WithLink(logging.LinkFunc(func() logging.Link {
		link := logging.Link{Session: sessions.ID()}
		if b := current.Load(); b != nil {
			link.State = b.State().String()
			if peer := b.Peer(); peer != nil {
				link.Peer = peer.String()
			}
		}
		return link
	}))

	deps := bridge.Deps{
		Logger:      a.logger,
		EventLogger: logging.NewEventLogger(zlog.With().Str("component", "dispatcher").Logger()),
	}

	if viper.GetBool("capture.enabled") {
		path := viper.GetString("capture.path")
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return err
		}
		a.capture, err = capture.Create(path, a.logger)
		if err != nil {
			return err
		}
		deps.Observer = a.capture
		a.logger.Info("Capturing traffic", "path", path)
	}

	storageCfg := config.GetStorageConfig()
	if storageCfg.Enabled {
		if err := a.setupRecorder(storageCfg, zlog, sessions, start); err != nil {
			return err
		}
		deps.Recorder = a.recorder
	}

	a.bridge, err = bridge.New(bridgeCfg, deps)
	if err != nil {
		return err
	}
	current.Store(a.bridge)

	if a.recorder != nil {
		transport := bridgeCfg.Transport.Listen
		if bridgeCfg.Transport.Serial.Device != "" {
			transport = bridgeCfg.Transport.Serial.Device
		}
		home := bridgeCfg.Telemetry.Home
		_, err := a.recorder.Start(core.Session{
			Name:      viper.GetString("sessionName"),
			SystemID:  bridgeCfg.SystemID,
			Transport: transport,
			Home:      core.Geodetic{Lat: home.Lat, Lon: home.Lon, Alt: home.Alt},
			Version:   Version,
		})
		if err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.bridge.Start(ctx); err != nil {
		return err
	}

	monDeps := monitor.Dependencies{
		Status:     a.bridge.Status,
		Backend:    a.backend,
		Influx:     a.influx,
		Session:    sessions,
		Logger:     a.logger,
		StatusFile: viper.GetString("monitor.statusFile"),
		Interval:   config.GetDuration("monitor.interval"),
	}
	if a.recorder != nil {
		monDeps.RecorderDropped = a.recorder.Dropped
	}
	a.monitor = monitor.NewService(monDeps)
	_ = a.monitor.Start()

	step := config.GetDuration("sim.step")
	a.logger.Info("Bridge running", "version", Version, "step", step, "local", a.bridge.Status().Local)
	return drive(ctx, a.bridge, newStationaryVehicle(bridgeCfg.Telemetry.Home), step, a.logger)
}

// applyFlags overrides bridge settings given on the command line. They are
// applied after unmarshaling since nested keys do not pick up bound flags.
func applyFlags(cfg *bridge.Config, flags *pflag.FlagSet) error {
	if flags.Changed("listen") {
		cfg.Transport.Listen, _ = flags.GetString("listen")
	}
	if flags.Changed("serial") {
		cfg.Transport.Serial.Device, _ = flags.GetString("serial")
	}
	if flags.Changed("home") {
		raw, _ := flags.GetString("home")
		home, err := geo.ParseLLA(raw)
		if err != nil {
			return fmt.Errorf("--home %q: %w", raw, err)
		}
		cfg.Telemetry.Home = home
	}
	return cfg.Validate()
}

// drive ticks the bridge in real time until ctx is done.
func drive(ctx context.Context, b *bridge.Bridge, v *stationaryVehicle, step time.Duration, logger *slog.Logger) error {
	if step <= 0 {
		return fmt.Errorf("sim.step must be positive, got %s", step)
	}
	ticker := time.NewTicker(step)
	defer ticker.Stop()

	var now time.Duration
	for {
		select {
		case <-ctx.Done():
			logger.Info("Shutdown requested")
			return nil
		case <-ticker.C:
		}

		now += step
		act, err := b.Tick(bridge.TickInput{
			Now:     now,
			Samples: v.Samples(now),
			Joints:  v.Joints(),
		})
		if errors.Is(err, bridge.ErrShutdown) {
			return nil
		}
		if err != nil {
			logger.Error("Tick failed", "error", err)
			continue
		}
		v.Apply(act.Outputs)
	}
}

func (a *app) setupLogging(start time.Time) error {
	a.logs = logging.NewSlogManager()
	level := viper.GetString("logLevel")

	f, err := logging.OpenLogFile(viper.GetString("logsDir"), appName, start)
	if err != nil {
		return err
	}
	a.logFile = f

	var extra []slog.Handler
	var gelfErr error
	if viper.GetBool("graylog.enabled") {
		w, err := logging.NewGelfWriter(viper.GetString("graylog.address"))
		if err != nil {
			gelfErr = err
		} else {
			extra = append(extra, logging.NewGelfHandler(w, slog.LevelInfo))
		}
	}

	var otelErr error
	var provider *sdklog.LoggerProvider
	if otelCfg := config.GetOTelConfig(); otelCfg.Enabled {
		a.otel, otelErr = intOtel.New(context.Background(), intOtel.Config{
			ServiceName: otelCfg.ServiceName,
			Version:     Version,
			Instance:    instanceID(),
			Timeout:     otelCfg.BatchTimeout,
			File:        f,
			Endpoint:    otelCfg.Endpoint,
			Insecure:    otelCfg.Insecure,
		})
		if otelErr == nil {
			provider = a.otel.LoggerProvider()
		}
	}

	a.logs.Setup(f, level, provider, extra...)
	a.logger = a.logs.Logger()
	a.logger.Info("Logging to file", "path", f.Name())
	if a.otel != nil {
		a.logger.Info("OTel log export enabled", "sinks", a.otel.Sinks())
	}
	if gelfErr != nil {
		a.logger.Error("Failed to connect to Graylog", "error", gelfErr)
	}
	if otelErr != nil {
		a.logger.Error("Failed to initialize OTel provider", "error", otelErr)
	}
	return nil
}

func (a *app) setupRecorder(cfg config.StorageConfig, zlog zerolog.Logger, sessions *session.Context, start time.Time) error {
	storeLog := zlog.With().Str("component", "storage").Logger()
	dbm := database.NewManager(storeLog)

	backend, err := initStorage(cfg, dbm, a.logger, start)
	if err != nil {
		return err
	}
	a.backend = backend

	if viper.GetBool("influx.enabled") {
		backup := filepath.Join(viper.GetString("logsDir"),
			fmt.Sprintf("influx_backup_%s.log.gz", start.Format("20060102_150405")))
		m := influx.NewManager(storeLog, backup)
		if err := m.Connect(context.Background()); err != nil {
			a.logger.Error("Failed to set up InfluxDB", "error", err)
		} else {
			a.influx = m
		}
	}

	if viper.GetBool("upload.enabled") {
		a.uploader = api.New(viper.GetString("upload.serverUrl"), viper.GetString("upload.apiKey"))
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := a.uploader.Healthcheck(ctx)
		cancel()
		if err != nil {
			a.logger.Warn("Recordings server not reachable, will retry on upload", "error", err)
		}
	}

	a.recorder, err = recorder.NewManager(recorder.Dependencies{
		Backend:       backend,
		Influx:        a.influx,
		Session:       sessions,
		Logger:        a.logger,
		EventLogger:   logging.NewEventLogger(zlog.With().Str("component", "recorder").Logger()),
		QueueSize:     cfg.QueueSize,
		TrackInterval: cfg.TrackInterval,
	})
	return err
}

func (a *app) close() {
	if a.monitor != nil {
		a.monitor.Stop()
	}
	if a.bridge != nil {
		a.bridge.Shutdown()
	}
	if a.recorder != nil {
		if err := a.recorder.Stop(); err != nil && !errors.Is(err, recorder.ErrNotStarted) {
			a.logger.Error("Failed to end session", "error", err)
		}
	}
	if a.backend != nil {
		if err := a.backend.Close(); err != nil {
			a.logger.Error("Failed to close storage", "error", err)
		}
		if ex, ok := a.backend.(storage.Exporter); ok && ex.GetExportedFilePath() != "" {
			a.logger.Info("Session exported", "path", ex.GetExportedFilePath())
			a.upload(ex.GetExportedFilePath())
		}
	}
	if a.influx != nil {
		if err := a.influx.Close(); err != nil {
			a.logger.Error("Failed to close InfluxDB", "error", err)
		}
	}
	if a.capture != nil {
		if err := a.capture.Close(); err != nil {
			a.logger.Error("Failed to close capture", "error", err)
		}
		a.logger.Info("Capture closed", "packets", a.capture.Written())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if a.logs != nil {
		_ = a.logs.Flush(ctx)
	}
	if a.otel != nil {
		_ = a.otel.Shutdown(ctx)
	}
	if a.logFile != nil {
		_ = a.logFile.Close()
	}
}

// instanceID tells bridges sharing a host apart in exported records.
func instanceID() string {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}
	return fmt.Sprintf("%s/%d", host, os.Getpid())
}

// upload sends the exported session to the recordings server.
func (a *app) upload(path string) {
	if a.uploader == nil || a.recorder == nil {
		return
	}
	s := a.recorder.Session().GetSession()
	meta := core.UploadMetadata{
		UUID:     s.UUID,
		Name:     s.Name,
		SystemID: s.SystemID,
		Duration: s.EndTime.Sub(s.StartTime).Seconds(),
		Tag:      viper.GetString("upload.tag"),
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	if err := a.uploader.Upload(ctx, path, meta); err != nil {
		a.logger.Error("Failed to upload session", "path", path, "error", err)
		return
	}
	a.logger.Info("Session uploaded", "path", path, "server", viper.GetString("upload.serverUrl"))
}

func zerologLevel(level string) zerolog.Level {
	l, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		return zerolog.InfoLevel
	}
	return l
}
