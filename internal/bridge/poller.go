package bridge

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"github.com/yl5006/sitl-gazebo/internal/actuation"
	"github.com/yl5006/sitl-gazebo/internal/dispatcher"
	"github.com/yl5006/sitl-gazebo/internal/mavlink"
	"github.com/yl5006/sitl-gazebo/internal/transport"
	"go.opentelemetry.io/otel/attribute"
)

// inbound is the payload of every event the poller dispatches.
type inbound struct {
	frame    mavlink.Frame
	source   net.Addr
	received time.Time
}

// inboundTime keeps the last SYSTEM_TIME reported by the autopilot.
type inboundTime struct {
	unixUsec atomic.Uint64
	bootMs   atomic.Uint32
}

// poll is the inbound loop. It ends when ctx is cancelled or the endpoint is
// closed; each wait is bounded by the configured poll timeout.
func (b *Bridge) poll(ctx context.Context) {
	decoder, framed := b.endpoint.(transport.FrameDecoder)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		d, ok, err := b.endpoint.PollReceive(b.cfg.PollTimeout)
		if err != nil {
			if errors.Is(err, transport.ErrClosed) {
				return
			}
			b.logger.Warn("Receive failed", "error", err)
			continue
		}
		if !ok {
			continue
		}

		var (
			frames []mavlink.Frame
			errs   []error
		)
		if framed {
			frames, errs = decoder.Decode(d.Data)
		} else {
			frames, errs = mavlink.DecodeDatagram(d.Data)
		}
		for _, err := range errs {
			b.metrics.decodeErrors.add(1, attribute.String("reason", decodeReason(err)))
			b.logger.Debug("Dropped inbound frame", "source", addrString(d.Source), "error", err)
		}

		received := b.clock()
		for _, f := range frames {
			b.route(inbound{frame: f, source: d.Source, received: received})
		}
	}
}

func (b *Bridge) route(in inbound) {
	name := mavlink.NameOf(in.frame.Message)
	_, err := b.events.Dispatch(dispatcher.Event{
		Name:      name,
		Payload:   in,
		Source:    addrString(in.source),
		Timestamp: in.received,
	})
	switch {
	case err == nil:
		b.metrics.received.add(1, attribute.String("message", name))
	case errors.Is(err, dispatcher.ErrUnknownEvent):
		b.metrics.unrouted.add(1, attribute.String("message", name))
	default:
		b.logger.Warn("Inbound message failed", "message", name, "error", err)
	}
}

func (b *Bridge) registerHandlers() {
	b.events.Register(mavlink.Name(mavlink.MsgIDHeartbeat), b.handleHeartbeat)
	b.events.Register(mavlink.Name(mavlink.MsgIDTimesync), b.handleTimesync)
	b.events.Register(mavlink.Name(mavlink.MsgIDSystemTime), b.handleSystemTime)
	b.events.Register(mavlink.Name(mavlink.MsgIDHilActuatorControls), b.handleActuatorControls)
}

func payload[T mavlink.Message](e dispatcher.Event) (inbound, T, error) {
	in, ok := e.Payload.(inbound)
	if !ok {
		var zero T
		return inbound{}, zero, fmt.Errorf("%s: unexpected payload %T", e.Name, e.Payload)
	}
	m, ok := in.frame.Message.(T)
	if !ok {
		var zero T
		return inbound{}, zero, fmt.Errorf("%s: unexpected message %T", e.Name, in.frame.Message)
	}
	return in, m, nil
}

// learnPeer makes src the telemetry destination and promotes a Connected
// bridge to Running.
func (b *Bridge) learnPeer(src net.Addr) {
	if src != nil {
		if cur := b.endpoint.Peer(); cur == nil || cur.String() != src.String() {
			b.endpoint.SetPeer(src)
			b.logger.Info("Learned autopilot address", "peer", src.String())
		}
	}
	if b.state.advance(Connected, Running) {
		b.transition(Connected, Running)
	}
}

func (b *Bridge) handleHeartbeat(e dispatcher.Event) (any, error) {
	in, _, err := payload[*mavlink.Heartbeat](e)
	if err != nil {
		return nil, err
	}
	b.learnPeer(in.source)
	return nil, nil
}

// handleTimesync answers requests with the bridge clock and folds answers to
// our own requests into the offset estimate.
func (b *Bridge) handleTimesync(e dispatcher.Event) (any, error) {
	in, m, err := payload[*mavlink.Timesync](e)
	if err != nil {
		return nil, err
	}
	b.learnPeer(in.source)

	if mavlink.IsTimesyncRequest(m) {
		reply, err := b.encoder.Encode(&mavlink.Timesync{Tc1: b.clock().UnixNano(), Ts1: m.Ts1})
		if err != nil {
			return nil, fmt.Errorf("answer timesync: %w", err)
		}
		if err := b.endpoint.SendTo(reply, in.source); err != nil {
			b.metrics.sendErrors.add(1)
			return nil, fmt.Errorf("answer timesync: %w", err)
		}
		return nil, nil
	}

	if !b.tsync.observe(m.Ts1, m.Tc1, in.received.UnixNano()) {
		b.logger.Debug("Timesync sample discarded", "ts1", m.Ts1, "tc1", m.Tc1)
	}
	return nil, nil
}

func (b *Bridge) handleSystemTime(e dispatcher.Event) (any, error) {
	_, m, err := payload[*mavlink.SystemTime](e)
	if err != nil {
		return nil, err
	}
	if b.remoteTime.unixUsec.Swap(m.TimeUnixUsec) == 0 && m.TimeUnixUsec != 0 {
		b.logger.Info("Autopilot clock received",
			"time", time.UnixMicro(int64(m.TimeUnixUsec)).UTC().Format(time.RFC3339), "bootMs", m.TimeBootMs)
	}
	b.remoteTime.bootMs.Store(m.TimeBootMs)
	return nil, nil
}

// handleActuatorControls publishes the command for the next Tick. A frame
// that arrives after a newer one is counted and dropped.
func (b *Bridge) handleActuatorControls(e dispatcher.Event) (any, error) {
	in, m, err := payload[*mavlink.HilActuatorControls](e)
	if err != nil {
		return nil, err
	}
	seq := b.unwrapper.Unwrap(in.frame.Seq)
	if !b.slot.Publish(actuation.FromMessage(m, seq, in.received)) {
		b.metrics.stale.add(1)
		b.logger.Debug("Stale actuator command dropped", "seq", seq)
	}
	return nil, nil
}

func decodeReason(err error) string {
	switch {
	case errors.Is(err, mavlink.ErrTruncatedPayload):
		return "truncated"
	case errors.Is(err, mavlink.ErrUnknownMessageID):
		return "unknown_id"
	case errors.Is(err, mavlink.ErrMalformedMessage):
		return "malformed"
	default:
		return "other"
	}
}

func addrString(a net.Addr) string {
	if a == nil {
		return ""
	}
	return a.String()
}
