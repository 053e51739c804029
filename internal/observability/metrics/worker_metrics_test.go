package metrics

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"gorm.io/gorm"
)

func TestClassifyWorkerJobReason(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "deadline",
			err:  fmt.Errorf("refresh: %w", context.DeadlineExceeded),
			want: WorkerJobReasonDeadlineExceeded,
		},
		{
			name: "db_lock_timeout",
			err:  &pgconn.PgError{Code: "55P03"},
			want: WorkerJobReasonDBLockTimeout,
		},
		{
			name: "serialization_failure",
			err:  &pgconn.PgError{Code: "40001"},
			want: WorkerJobReasonSerializationFailure,
		},
		{
			name: "unique_violation",
			err:  gorm.ErrDuplicatedKey,
			want: WorkerJobReasonUniqueViolation,
		},
		{
			name: "other_pg",
			err:  &pgconn.PgError{Code: "42P01"},
			want: WorkerJobReasonDB,
		},
		{
			name: "unknown",
			err:  errors.New("boom"),
			want: WorkerJobReasonUnknown,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ClassifyWorkerJobReason(tc.err); got != tc.want {
				t.Fatalf("expected reason %q, got %q", tc.want, got)
			}
		})
	}
}

func TestIsRetryable(t *testing.T) {
	if !IsRetryable(&pgconn.PgError{Code: "40001"}) {
		t.Fatalf("expected serialization failure to be retryable")
	}
	if IsRetryable(errors.New("boom")) {
		t.Fatalf("expected plain error to be terminal")
	}
}

func TestAddBatchProcessed(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := newWorkerMetrics(registry, Config{
		ServiceName: "learnboard",
		Environment: "test",
	})

	metrics.AddBatchProcessed("refresh", "completed", 3)
	metrics.AddBatchProcessed("refresh", "completed", 0)

	got := testutil.ToFloat64(metrics.batchProcessed.WithLabelValues("refresh", "completed"))
	if got != 3 {
		t.Fatalf("expected processed count 3, got %v", got)
	}
}

func TestSetQueueDepth(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := newWorkerMetrics(registry, Config{ServiceName: "learnboard", Environment: "test"})

	metrics.SetQueueDepth(7)
	metrics.SetQueueDepth(-1)

	if got := testutil.ToFloat64(metrics.queueDepth); got != 7 {
		t.Fatalf("expected queue depth 7, got %v", got)
	}

	var nilMetrics *WorkerMetrics
	nilMetrics.SetQueueDepth(3)
}
