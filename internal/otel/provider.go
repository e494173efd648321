// Package otel builds the OpenTelemetry log pipeline the bridge's slog
// records are bridged into.
package otel

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutlog"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

const (
	DefaultServiceName = "hil-bridge"
	defaultTimeout     = 5 * time.Second
)

// ErrNoSink is returned when neither a file nor an OTLP endpoint is given.
var ErrNoSink = errors.New("otel: no log sink configured")

// Config describes one bridge run's export pipeline.
type Config struct {
	ServiceName string
	Version     string
	// Instance tells bridges on the same host apart, e.g. the listen
	// address or serial device.
	Instance string
	Timeout  time.Duration

	File     io.Writer
	Endpoint string
	Insecure bool
}

// Provider owns the log pipeline. A nil *Provider is valid and does nothing.
type Provider struct {
	logs  *sdklog.LoggerProvider
	sinks []string
}

// New assembles the pipeline: a pretty-printed copy in File and, when an
// endpoint is set, an OTLP/HTTP export.
func New(ctx context.Context, cfg Config) (*Provider, error) {
	if cfg.ServiceName == "" {
		cfg.ServiceName = DefaultServiceName
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}

	res, err := resource.New(ctx, resource.WithAttributes(identity(cfg)...))
	if err != nil {
		return nil, fmt.Errorf("otel resource: %w", err)
	}

	p := &Provider{}
	opts := []sdklog.LoggerProviderOption{sdklog.WithResource(res)}
	for _, s := range sinks(cfg) {
		if !s.enabled {
			continue
		}
		exp, err := s.build(ctx)
		if err != nil {
			return nil, fmt.Errorf("otel %s exporter: %w", s.name, err)
		}
		opts = append(opts, sdklog.WithProcessor(
			sdklog.NewBatchProcessor(exp, sdklog.WithExportTimeout(cfg.Timeout))))
		p.sinks = append(p.sinks, s.name)
	}
	if len(p.sinks) == 0 {
		return nil, ErrNoSink
	}

	p.logs = sdklog.NewLoggerProvider(opts...)
	return p, nil
}

type sink struct {
	name    string
	enabled bool
	build   func(context.Context) (sdklog.Exporter, error)
}

func sinks(cfg Config) []sink {
	return []sink{
		{"file", cfg.File != nil, func(context.Context) (sdklog.Exporter, error) {
			return stdoutlog.New(stdoutlog.WithWriter(cfg.File), stdoutlog.WithPrettyPrint())
		}},
		{"otlp", cfg.Endpoint != "", func(ctx context.Context) (sdklog.Exporter, error) {
			opts := []otlploghttp.Option{otlploghttp.WithEndpoint(cfg.Endpoint)}
			if cfg.Insecure {
				opts = append(opts, otlploghttp.WithInsecure())
			}
			return otlploghttp.New(ctx, opts...)
		}},
	}
}

func identity(cfg Config) []attribute.KeyValue {
	attrs := []attribute.KeyValue{semconv.ServiceName(cfg.ServiceName)}
	if cfg.Version != "" {
		attrs = append(attrs, semconv.ServiceVersion(cfg.Version))
	}
	if cfg.Instance != "" {
		attrs = append(attrs, semconv.ServiceInstanceID(cfg.Instance))
	}
	return attrs
}

// LoggerProvider feeds the otelslog bridge.
func (p *Provider) LoggerProvider() *sdklog.LoggerProvider {
	if p == nil {
		return nil
	}
	return p.logs
}

// Sinks names the active exporters in build order.
func (p *Provider) Sinks() []string {
	if p == nil {
		return nil
	}
	return p.sinks
}

// Flush exports everything batched so far, e.g. when a session ends.
func (p *Provider) Flush(ctx context.Context) error {
	if p == nil || p.logs == nil {
		return nil
	}
	if err := p.logs.ForceFlush(ctx); err != nil {
		return fmt.Errorf("otel flush: %w", err)
	}
	return nil
}

// Shutdown flushes and stops every exporter.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p == nil || p.logs == nil {
		return nil
	}
	if err := p.logs.Shutdown(ctx); err != nil {
		return fmt.Errorf("otel shutdown: %w", err)
	}
	return nil
}
