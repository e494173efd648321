package bridge

import (
	"context"
	"fmt"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/yl5006/sitl-gazebo/internal/bridge"

// counter is an OTel counter that also keeps a local total for Status.
type counter struct {
	total atomic.Uint64
	inst  metric.Int64Counter
}

func (c *counter) add(n int64, attrs ...attribute.KeyValue) {
	c.total.Add(uint64(n))
	if len(attrs) > 0 {
		c.inst.Add(context.Background(), n, metric.WithAttributes(attrs...))
		return
	}
	c.inst.Add(context.Background(), n)
}

func (c *counter) load() uint64 {
	return c.total.Load()
}

type metrics struct {
	sent         counter
	suppressed   counter
	sendErrors   counter
	decodeErrors counter
	unrouted     counter
	stale        counter
	failsafe     counter
	received     counter
}

func newMetrics() (*metrics, error) {
	m := otel.Meter(instrumentationName)
	out := &metrics{}

	specs := []struct {
		c    *counter
		name string
		desc string
	}{
		{&out.sent, "bridge.telemetry.sent", "Telemetry messages handed to the transport"},
		{&out.suppressed, "bridge.telemetry.suppressed", "Sensor samples held back by a rate gate"},
		{&out.sendErrors, "bridge.transport.send_errors", "Datagrams the transport failed to send"},
		{&out.decodeErrors, "bridge.decode.errors", "Inbound frames that failed to decode"},
		{&out.unrouted, "bridge.decode.unrouted", "Decoded messages with no handler"},
		{&out.stale, "bridge.commands.stale", "Actuator commands older than the one in effect"},
		{&out.failsafe, "bridge.failsafe.engaged", "Times the failsafe policy took over"},
		{&out.received, "bridge.messages.received", "Inbound messages routed to a handler"},
	}
	for _, s := range specs {
		inst, err := m.Int64Counter(s.name, metric.WithDescription(s.desc))
		if err != nil {
			return nil, fmt.Errorf("creating %s counter: %w", s.name, err)
		}
		s.c.inst = inst
	}
	return out, nil
}
