package otel

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProvider_NilIsNoop(t *testing.T) {
	var p *Provider

	assert.Nil(t, p.LoggerProvider())
	assert.Empty(t, p.Sinks())
	assert.NoError(t, p.Flush(context.Background()))
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestNew_NoSink(t *testing.T) {
	_, err := New(context.Background(), Config{})
	assert.ErrorIs(t, err, ErrNoSink)
}

func TestNew_FileSink(t *testing.T) {
	var buf bytes.Buffer
	p, err := New(context.Background(), Config{File: &buf})
	require.NoError(t, err)

	require.NotNil(t, p.LoggerProvider())
	assert.Equal(t, []string{"file"}, p.Sinks())
	assert.NoError(t, p.Flush(context.Background()))
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestNew_FileAndOTLPSinks(t *testing.T) {
	var buf bytes.Buffer
	p, err := New(context.Background(), Config{
		File:     &buf,
		Endpoint: "127.0.0.1:4318",
		Insecure: true,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"file", "otlp"}, p.Sinks())

	// nothing was logged, so shutdown does not reach the endpoint
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestIdentity(t *testing.T) {
	attrs := identity(Config{ServiceName: DefaultServiceName})
	require.Len(t, attrs, 1)
	assert.Equal(t, DefaultServiceName, attrs[0].Value.AsString())

	attrs = identity(Config{ServiceName: "bench", Version: "0.1.0", Instance: "rig-2/4411"})
	require.Len(t, attrs, 3)
	assert.Equal(t, "service.version", string(attrs[1].Key))
	assert.Equal(t, "rig-2/4411", attrs[2].Value.AsString())
}
