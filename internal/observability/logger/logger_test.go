package logger

import (
	"context"
	"testing"

	obscontext "github.com/smallbiznis/learnboard/internal/observability/context"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestWithContextAddsRequestFields(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	base := zap.New(core)

	ctx := obscontext.WithRequestID(context.Background(), "req-1")
	ctx = obscontext.WithRequester(ctx, "e-1", "employee")
	ctx = obscontext.WithScope(ctx, "employee:e-1")
	WithContext(ctx, base).Info("served")

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "req-1", fields["request_id"])
	assert.Equal(t, "e-1", fields["requester_id"])
	assert.Equal(t, "employee", fields["requester_role"])
	assert.Equal(t, "employee:e-1", fields["scope"])
	assert.NotContains(t, fields, "trace_id")
}

func TestWithContextWithoutValuesKeepsBase(t *testing.T) {
	base := zap.NewNop()
	assert.Same(t, base, WithContext(context.Background(), base))
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{}.withDefaults()
	assert.Equal(t, "learnboard", cfg.ServiceName)
	assert.Equal(t, "info", cfg.Level)
	assert.Equal(t, 100, cfg.SamplingInitial)
	assert.Equal(t, "json", normalizeFormat("JSON"))
	assert.Equal(t, "console", normalizeFormat(" Console "))
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	_, err := New(nil, Config{Level: "loud"})
	assert.Error(t, err)
}
