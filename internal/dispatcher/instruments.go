package dispatcher

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/yl5006/sitl-gazebo/internal/dispatcher"

// instruments are shared by every dispatcher; the scope attribute tells the
// bridge's message routing apart from the recorder's job queues.
type instruments struct {
	scope     attribute.KeyValue
	processed metric.Int64Counter
	dropped   metric.Int64Counter
	depth     metric.Int64ObservableGauge
}

func newInstruments(scope string) (*instruments, error) {
	m := otel.Meter(instrumentationName)
	in := &instruments{scope: attribute.String("dispatcher", scope)}

	var err error
	if in.processed, err = m.Int64Counter("dispatcher.events.processed",
		metric.WithDescription("Queued events handled")); err != nil {
		return nil, fmt.Errorf("processed counter: %w", err)
	}
	if in.dropped, err = m.Int64Counter("dispatcher.events.dropped",
		metric.WithDescription("Events dropped on a full queue")); err != nil {
		return nil, fmt.Errorf("dropped counter: %w", err)
	}
	if in.depth, err = m.Int64ObservableGauge("dispatcher.queue.size",
		metric.WithDescription("Events waiting in a queue")); err != nil {
		return nil, fmt.Errorf("queue gauge: %w", err)
	}
	return in, nil
}

func (in *instruments) attrs(event string) metric.MeasurementOption {
	return metric.WithAttributes(in.scope, attribute.String("event", event))
}

// observe reports each queue's depth on collection.
func (in *instruments) observe(depths func(yield func(event string, n int))) error {
	_, err := otel.Meter(instrumentationName).RegisterCallback(
		func(_ context.Context, o metric.Observer) error {
			depths(func(event string, n int) {
				o.ObserveInt64(in.depth, int64(n), in.attrs(event))
			})
			return nil
		},
		in.depth,
	)
	if err != nil {
		return fmt.Errorf("queue gauge callback: %w", err)
	}
	return nil
}
