package otel

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Disabled(t *testing.T) {
	p, err := New(Config{Enabled: false, LogWriter: &bytes.Buffer{}})
	require.NoError(t, err)

	assert.False(t, p.Enabled())
	assert.Nil(t, p.LoggerProvider())
	assert.Empty(t, p.InstanceID())
	assert.NoError(t, p.Flush(context.Background()))
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestNew_EnabledWithoutOutputs(t *testing.T) {
	_, err := New(Config{Enabled: true, ServiceName: "bouncelog"})
	assert.ErrorIs(t, err, ErrNoExporter)
}

func TestNew_EnabledWithWriter(t *testing.T) {
	var buf bytes.Buffer
	p, err := New(Config{
		Enabled:        true,
		ServiceName:    "bouncelog",
		ServiceVersion: "v1.2.3",
		BatchTimeout:   time.Second,
		LogWriter:      &buf,
	})
	require.NoError(t, err)

	assert.True(t, p.Enabled())
	assert.NotNil(t, p.LoggerProvider())
	assert.Len(t, p.InstanceID(), 36, "random uuid")
	assert.NoError(t, p.Flush(context.Background()))
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestNew_KeepsGivenInstanceID(t *testing.T) {
	p, err := New(Config{Enabled: true, ServiceName: "bouncelog", InstanceID: "server-a", LogWriter: &bytes.Buffer{}})
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Shutdown(context.Background()) })
	assert.Equal(t, "server-a", p.InstanceID())
}

func TestNew_EnabledWithEndpoint(t *testing.T) {
	p, err := New(Config{
		Enabled:      true,
		ServiceName:  "bouncelog",
		BatchTimeout: time.Second,
		Endpoint:     "127.0.0.1:4318",
		Insecure:     true,
	})
	require.NoError(t, err)
	assert.True(t, p.Enabled())

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_ = p.Shutdown(ctx)
}
