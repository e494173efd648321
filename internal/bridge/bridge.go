// Package bridge ties the telemetry pipeline, the transport and the
// actuation mapper together. The simulation drives Tick synchronously; a
// poller goroutine owned by the bridge handles everything the autopilot
// sends back.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/yl5006/sitl-gazebo/internal/actuation"
	"github.com/yl5006/sitl-gazebo/internal/channel"
	"github.com/yl5006/sitl-gazebo/internal/dispatcher"
	"github.com/yl5006/sitl-gazebo/internal/mavlink"
	"github.com/yl5006/sitl-gazebo/internal/noise"
	"github.com/yl5006/sitl-gazebo/internal/sensor"
	"github.com/yl5006/sitl-gazebo/internal/telemetry"
	"github.com/yl5006/sitl-gazebo/internal/transport"
	"go.opentelemetry.io/otel/attribute"
)

var (
	// ErrNotStarted is returned by Tick before Start succeeded.
	ErrNotStarted = errors.New("bridge not started")
	// ErrAlreadyStarted is returned by a second Start.
	ErrAlreadyStarted = errors.New("bridge already started")
	// ErrShutdown is returned by Tick and Start after Shutdown.
	ErrShutdown = errors.New("bridge shut down")
)

// Recorder observes a session. It is called from the tick path and the
// poller and must not block.
type Recorder interface {
	RecordLink(from, to string, peer string)
	RecordCommand(cmd *actuation.Command, res actuation.Result, simTime time.Duration)
	RecordTelemetry(msg mavlink.Message, simTime time.Duration)
	RecordTrack(s sensor.Groundtruth)
}

// Deps are the collaborators of a Bridge. Every field is optional.
type Deps struct {
	Logger *slog.Logger
	// EventLogger receives inbound dispatcher diagnostics; Logger if nil.
	EventLogger dispatcher.Logger
	// Endpoint replaces the one Start would otherwise open from the config.
	Endpoint transport.Endpoint
	Factory  transport.SocketFactory
	Observer transport.Observer
	Recorder Recorder
	// Clock is the wall clock used for TIMESYNC and SYSTEM_TIME.
	Clock func() time.Time
}

// TickInput is what the simulation hands over on every step.
type TickInput struct {
	// Now is the elapsed simulation time.
	Now         time.Duration
	Samples     []sensor.Sample
	Joints      map[string]float64
	ForceDisarm bool
}

// Actuation is the per-step result for the simulation.
type Actuation struct {
	Outputs  []actuation.Output
	Armed    bool
	Seq      uint64
	Stale    bool
	Failsafe bool
	State    State
}

// Bridge is the update coordinator. Tick must be called from one goroutine.
type Bridge struct {
	cfg      Config
	logger   *slog.Logger
	deps     Deps
	clock    func() time.Time
	recorder Recorder

	state    stateBox
	encoder  *mavlink.Encoder
	pipeline *telemetry.Pipeline
	mapper   *actuation.Mapper
	slot     actuation.Slot
	feed     channel.Channel[sensor.Sample]
	events   *dispatcher.Dispatcher
	metrics  *metrics
	tsync    *timesync

	endpoint transport.Endpoint
	cancel   context.CancelFunc
	wg       sync.WaitGroup

	// poller-owned
	unwrapper  actuation.SeqUnwrapper
	remoteTime inboundTime

	// tick-owned
	heartbeat *noise.Gate
	lastNow   time.Duration
	ticked    bool
	lastSeq   uint64
	lastArmed bool

	shutdownOnce sync.Once
}

// New validates cfg and builds every tick-path component. Nothing touches
// the network until Start.
func New(cfg Config, deps Deps) (*Bridge, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.EventLogger == nil {
		deps.EventLogger = deps.Logger
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}

	pipeline, err := telemetry.New(cfg.Telemetry)
	if err != nil {
		return nil, err
	}
	mapper, err := actuation.NewMapper(cfg.Actuation)
	if err != nil {
		return nil, err
	}
	m, err := newMetrics()
	if err != nil {
		return nil, err
	}
	events, err := dispatcher.New("bridge", deps.EventLogger)
	if err != nil {
		return nil, fmt.Errorf("creating dispatcher: %w", err)
	}

	b := &Bridge{
		cfg:       cfg,
		logger:    deps.Logger,
		deps:      deps,
		clock:     deps.Clock,
		recorder:  deps.Recorder,
		encoder:   mavlink.NewEncoder(cfg.SystemID, cfg.ComponentID),
		pipeline:  pipeline,
		mapper:    mapper,
		feed:      channel.New[sensor.Sample](cfg.FeedSize),
		events:    events,
		metrics:   m,
		tsync:     newTimesync(cfg.TimesyncAlpha, cfg.TimesyncMaxRTT),
		heartbeat: noise.NewGate(cfg.HeartbeatInterval),
	}
	b.registerHandlers()
	return b, nil
}

// Feed accepts samples pushed outside of Tick. They are drained at the start
// of the next Tick. Producers that must not wait use Offer, which drops the
// oldest queued sample when the feed is full; drops show in Status.
func (b *Bridge) Feed() channel.Sender[sensor.Sample] {
	return b.feed
}

// Start binds the endpoint and launches the poller. A bind failure is
// returned as a *transport.BindError and leaves the bridge Uninitialized.
func (b *Bridge) Start(ctx context.Context) error {
	switch b.state.load() {
	case Uninitialized:
	case ShuttingDown:
		return ErrShutdown
	default:
		return ErrAlreadyStarted
	}

	ep := b.deps.Endpoint
	if ep == nil {
		var err error
		ep, err = b.open(ctx)
		if err != nil {
			return err
		}
	}
	b.endpoint = ep

	if !b.state.advance(Uninitialized, Connected) {
		_ = ep.Close()
		return ErrAlreadyStarted
	}
	b.transition(Uninitialized, Connected)

	pctx, cancel := context.WithCancel(ctx)
	b.cancel = cancel
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.poll(pctx)
	}()

	b.logger.Info("Bridge started", "local", ep.LocalAddr().String(), "state", Connected.String())
	return nil
}

func (b *Bridge) open(ctx context.Context) (transport.Endpoint, error) {
	if b.cfg.Transport.Serial.Device != "" {
		return transport.OpenSerial(b.cfg.Transport.Serial, b.deps.Observer, b.logger)
	}
	ep, err := transport.Bind(b.cfg.Transport, transport.Options{
		Factory:  b.deps.Factory,
		Observer: b.deps.Observer,
		Logger:   b.logger,
	})
	if err != nil {
		return nil, err
	}
	ep.Start(ctx)
	return ep, nil
}

// Tick runs one simulation step: telemetry out, actuation in. Per-sample
// failures are logged and counted, never returned.
func (b *Bridge) Tick(in TickInput) (Actuation, error) {
	state := b.state.load()
	switch state {
	case Uninitialized:
		return Actuation{State: state}, ErrNotStarted
	case ShuttingDown:
		return Actuation{State: state}, ErrShutdown
	}

	samples := in.Samples
	if queued := channel.Drain[sensor.Sample](b.feed, 0); len(queued) > 0 {
		samples = append(append([]sensor.Sample(nil), queued...), samples...)
	}

	if state == Running {
		for _, s := range samples {
			b.emit(s)
		}
		b.sendHeartbeat(in.Now)
	}

	var dt time.Duration
	if b.ticked && in.Now > b.lastNow {
		dt = in.Now - b.lastNow
	}
	b.lastNow, b.ticked = in.Now, true

	res := b.mapper.Apply(actuation.Input{
		Command:     b.slot.Load(),
		Joints:      in.Joints,
		ForceDisarm: in.ForceDisarm,
		Now:         in.Now,
		Dt:          dt,
	})
	b.observeActuation(res, in.Now)

	return Actuation{
		Outputs:  res.Outputs,
		Armed:    res.Armed,
		Seq:      res.Seq,
		Stale:    res.Stale,
		Failsafe: res.Stale && res.Seq != 0,
		State:    b.state.load(),
	}, nil
}

func (b *Bridge) emit(s sensor.Sample) {
	if gt, ok := s.(sensor.Groundtruth); ok && b.recorder != nil {
		b.recorder.RecordTrack(gt)
	}

	msg, err := b.pipeline.Process(s)
	switch {
	case err == nil:
	case errors.Is(err, noise.ErrSuppressed):
		b.metrics.suppressed.add(1, attribute.String("stream", s.Kind().String()))
		return
	case errors.Is(err, noise.ErrClockNonMonotonic):
		b.logger.Warn("Sample dropped, clock did not advance", "stream", s.Kind().String(), "error", err)
		return
	default:
		b.logger.Error("Sample dropped", "stream", s.Kind().String(), "error", err)
		return
	}

	if err := b.send(msg); err != nil {
		b.metrics.sendErrors.add(1)
		b.logger.Debug("Telemetry send failed", "message", mavlink.NameOf(msg), "error", err)
		return
	}
	b.metrics.sent.add(1, attribute.String("message", mavlink.NameOf(msg)))
	if b.recorder != nil {
		b.recorder.RecordTelemetry(msg, s.Time())
	}
}

// sendHeartbeat announces the bridge once per interval of simulation time
// and piggybacks a TIMESYNC request to keep the offset estimate fresh.
func (b *Bridge) sendHeartbeat(now time.Duration) {
	if err := b.heartbeat.Allow(now); err != nil {
		return
	}
	hb := &mavlink.Heartbeat{
		Type:           mavlink.TypeGeneric,
		Autopilot:      mavlink.AutopilotInvalid,
		SystemStatus:   mavlink.StateActive,
		MavlinkVersion: 3,
	}
	if err := b.send(hb); err != nil {
		b.metrics.sendErrors.add(1)
		b.logger.Debug("Heartbeat send failed", "error", err)
		return
	}
	req := &mavlink.Timesync{Ts1: b.clock().UnixNano()}
	if err := b.send(req); err != nil {
		b.metrics.sendErrors.add(1)
	}
}

// send encodes m with the bridge identity and hands it to the endpoint.
func (b *Bridge) send(m mavlink.Message) error {
	buf, err := b.encoder.Encode(m)
	if err != nil {
		return err
	}
	return b.endpoint.Send(buf)
}

func (b *Bridge) observeActuation(res actuation.Result, now time.Duration) {
	if res.Engaged {
		b.metrics.failsafe.add(1)
		b.logger.Warn("Actuator commands stale, failsafe engaged",
			"policy", string(b.cfg.Actuation.Failsafe), "lastSeq", res.Seq)
	}
	if res.Armed != b.lastArmed {
		b.logger.Info("Arm state changed", "armed", res.Armed, "seq", res.Seq)
		b.lastArmed = res.Armed
	}
	if res.Seq != b.lastSeq {
		b.lastSeq = res.Seq
		if b.recorder != nil {
			b.recorder.RecordCommand(b.slot.Load(), res, now)
		}
	}
}

// transition reports a state change to the log and the recorder.
func (b *Bridge) transition(from, to State) {
	peer := ""
	if b.endpoint != nil {
		if p := b.endpoint.Peer(); p != nil {
			peer = p.String()
		}
	}
	b.logger.Info("Bridge state changed", "from", from.String(), "to", to.String(), "peer", peer)
	if b.recorder != nil {
		b.recorder.RecordLink(from.String(), to.String(), peer)
	}
}

// State returns the current lifecycle state.
func (b *Bridge) State() State {
	return b.state.load()
}

// Peer returns the learned autopilot address, nil until one is known.
func (b *Bridge) Peer() net.Addr {
	if b.endpoint == nil {
		return nil
	}
	return b.endpoint.Peer()
}

// Shutdown stops the poller and closes the endpoint. Pending telemetry is
// not flushed. It is safe to call more than once.
func (b *Bridge) Shutdown() {
	b.shutdownOnce.Do(func() {
		prev := b.state.swap(ShuttingDown)
		if prev != ShuttingDown {
			b.transition(prev, ShuttingDown)
		}
		if b.cancel != nil {
			b.cancel()
		}
		if b.endpoint != nil {
			if err := b.endpoint.Close(); err != nil {
				b.logger.Warn("Failed to close endpoint", "error", err)
			}
		}
		b.wg.Wait()
		b.events.Close()
		b.logger.Info("Bridge stopped")
	})
}
