package observability

import (
	"strings"

	"github.com/smallbiznis/learnboard/internal/config"
	"github.com/spf13/viper"
)

// Config holds logging, tracing and metrics settings. The service name is
// suffixed with the process role so API and refresh worker telemetry can be
// told apart.
type Config struct {
	ServiceName string
	Component   string
	Environment string
	Version     string

	LogLevel            string
	LogFormat           string
	LogSampleInitial    int
	LogSampleThereafter int

	OtelEnabled          bool
	OtelExporterEndpoint string
	OtelExporterProtocol string
	OtelSamplingRatio    float64
}

const (
	ComponentAPI    = "api"
	ComponentWorker = "refresh-worker"
)

func LoadConfig(cfg config.Config) Config {
	v := viper.New()
	v.AutomaticEnv()
	v.SetDefault("DEPLOYMENT_ENV", cfg.Environment)
	v.SetDefault("SERVICE_VERSION", cfg.AppVersion)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
	v.SetDefault("LOG_SAMPLE_INITIAL", 100)
	v.SetDefault("LOG_SAMPLE_THEREAFTER", 100)
	v.SetDefault("OTEL_ENABLED", true)
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", cfg.OTLPEndpoint)
	v.SetDefault("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc")
	v.SetDefault("OTEL_SAMPLING_RATIO", 0.1)

	protocol := v.GetString("OTEL_EXPORTER_OTLP_PROTOCOL")
	if traces := strings.TrimSpace(v.GetString("OTEL_EXPORTER_OTLP_TRACES_PROTOCOL")); traces != "" {
		protocol = traces
	}

	serviceName := strings.TrimSpace(cfg.AppName)
	if serviceName == "" {
		serviceName = "learnboard"
	}

	return Config{
		ServiceName:          serviceName,
		Component:            componentOf(cfg),
		Environment:          strings.TrimSpace(v.GetString("DEPLOYMENT_ENV")),
		Version:              strings.TrimSpace(v.GetString("SERVICE_VERSION")),
		LogLevel:             lowerTrim(v.GetString("LOG_LEVEL")),
		LogFormat:            lowerTrim(v.GetString("LOG_FORMAT")),
		LogSampleInitial:     v.GetInt("LOG_SAMPLE_INITIAL"),
		LogSampleThereafter:  v.GetInt("LOG_SAMPLE_THEREAFTER"),
		OtelEnabled:          v.GetBool("OTEL_ENABLED"),
		OtelExporterEndpoint: strings.TrimSpace(v.GetString("OTEL_EXPORTER_OTLP_ENDPOINT")),
		OtelExporterProtocol: lowerTrim(protocol),
		OtelSamplingRatio:    clampRatio(v.GetFloat64("OTEL_SAMPLING_RATIO")),
	}
}

// componentOf reports the process role. A process that serves HTTP is the
// API even when it also drains the refresh queue.
func componentOf(cfg config.Config) string {
	if cfg.WorkerOnly {
		return ComponentWorker
	}
	return ComponentAPI
}

// QualifiedServiceName is the name exported to traces and metrics.
func (c Config) QualifiedServiceName() string {
	if c.Component == "" || c.Component == ComponentAPI {
		return c.ServiceName
	}
	return c.ServiceName + "-" + c.Component
}

// Debug is on for an explicit debug level or any development environment.
func (c Config) Debug() bool {
	if c.LogLevel == "debug" {
		return true
	}
	switch lowerTrim(c.Environment) {
	case "dev", "development", "local", "test":
		return true
	default:
		return false
	}
}

func lowerTrim(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func clampRatio(r float64) float64 {
	switch {
	case r < 0:
		return 0
	case r > 1:
		return 1
	default:
		return r
	}
}
