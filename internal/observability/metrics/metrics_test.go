package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric/noop"
)

func TestFilterAttributesDropsForbiddenLabels(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("scope_kind", "team"),
		attribute.String("employee_id", "e-1"),
		attribute.String("source", "fallback"),
	)
	if len(attrs) != 2 {
		t.Fatalf("expected 2 attributes, got %d", len(attrs))
	}
	if attrs[0].Key != "scope_kind" && attrs[1].Key != "scope_kind" {
		t.Fatalf("expected scope_kind to be retained")
	}
	if attrs[0].Key != "source" && attrs[1].Key != "source" {
		t.Fatalf("expected source to be retained")
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.RecordProjectionRead(context.Background(), "employee", "stored")
	m.RecordStoreWriteFailure(context.Background(), "team")
}

func TestNewWithNoopProvider(t *testing.T) {
	m, err := New(Config{ServiceName: "learnboard"}, noop.NewMeterProvider())
	if err != nil {
		t.Fatalf("new metrics: %v", err)
	}
	m.RecordProjectionRead(context.Background(), "org", "computed")
	m.RecordRefreshEnqueued(context.Background(), "employee", "learning_logged")
}

func TestHTTPMetricsMiddlewareCountsRoute(t *testing.T) {
	gin.SetMode(gin.TestMode)
	registry := prometheus.NewRegistry()
	m := newHTTPMetrics(registry, Config{ServiceName: "learnboard"})

	router := gin.New()
	router.Use(m.GinMiddleware())
	router.GET("/api/stats/org", func(c *gin.Context) { c.Status(http.StatusOK) })

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/stats/org", nil))

	got := testutil.ToFloat64(m.requests.WithLabelValues(http.MethodGet, "/api/stats/org", "200"))
	if got != 1 {
		t.Fatalf("expected 1 request, got %v", got)
	}
}
