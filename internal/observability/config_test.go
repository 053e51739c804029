package observability

import (
	"testing"

	"github.com/smallbiznis/learnboard/internal/config"
	"github.com/stretchr/testify/assert"
)

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("LOG_LEVEL", " DEBUG ")
	t.Setenv("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc")
	t.Setenv("OTEL_EXPORTER_OTLP_TRACES_PROTOCOL", "HTTP/protobuf")
	t.Setenv("OTEL_SAMPLING_RATIO", "3")

	cfg := LoadConfig(config.Config{AppName: "learnboard", Environment: "production", WorkerOnly: true})

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "http/protobuf", cfg.OtelExporterProtocol)
	assert.Equal(t, 1.0, cfg.OtelSamplingRatio)
	assert.Equal(t, "production", cfg.Environment)
	assert.Equal(t, ComponentWorker, cfg.Component)
	assert.Equal(t, "learnboard-refresh-worker", cfg.QualifiedServiceName())
	assert.True(t, cfg.Debug())
}

func TestDebugFollowsEnvironment(t *testing.T) {
	assert.True(t, Config{Environment: "Local", LogLevel: "info"}.Debug())
	assert.False(t, Config{Environment: "production", LogLevel: "info"}.Debug())
	assert.Equal(t, "learnboard", Config{ServiceName: "learnboard", Component: ComponentAPI}.QualifiedServiceName())
}
