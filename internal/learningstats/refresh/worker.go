package refresh

import (
	"context"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/smallbiznis/learnboard/internal/clock"
	"github.com/smallbiznis/learnboard/internal/config"
	"github.com/smallbiznis/learnboard/internal/learningstats/domain"
	obslogger "github.com/smallbiznis/learnboard/internal/observability/logger"
	"github.com/smallbiznis/learnboard/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	jobName = "stats_refresh"

	outcomeCompleted = "completed"
	outcomeRetried   = "retried"
	outcomeFailed    = "failed"
	outcomeDropped   = "dropped"

	bookkeepingTimeout = 5 * time.Second
)

type WorkerParams struct {
	fx.In

	Log     *zap.Logger
	Clock   clock.Clock
	Config  *config.StatsConfigHolder
	Refresh *Service
	Stats   domain.Service
	Metrics *metrics.WorkerMetrics `optional:"true"`
}

type Worker struct {
	log     *zap.Logger
	clock   clock.Clock
	cfg     *config.StatsConfigHolder
	queue   *Queue
	store   domain.Store
	stats   domain.Service
	metrics *metrics.WorkerMetrics
}

func NewWorker(p WorkerParams) *Worker {
	return &Worker{
		log:     p.Log.Named("learningstats.refresh.worker"),
		clock:   p.Clock,
		cfg:     p.Config,
		queue:   p.Refresh.queue,
		store:   p.Refresh.store,
		stats:   p.Stats,
		metrics: p.Metrics,
	}
}

func (w *Worker) RunForever(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.Get().Refresh.PollInterval)
	defer ticker.Stop()

	for {
		if err := w.RunOnce(ctx); err != nil {
			w.log.Warn("stats refresh run failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ticker.Reset(w.cfg.Get().Refresh.PollInterval)
		}
	}
}

// RunOnce claims one batch of pending requests and recomputes each scope.
func (w *Worker) RunOnce(parentCtx context.Context) error {
	cfg := w.cfg.Get().Refresh
	ctx, cancel := context.WithTimeout(parentCtx, cfg.RunTimeout)
	defer cancel()

	start := time.Now()
	w.metrics.IncJobRun(jobName)
	defer func() { w.metrics.ObserveJobDuration(jobName, time.Since(start)) }()

	log := w.log.With(zap.String("run_id", ulid.Make().String()))

	claimStart := time.Now()
	requests, err := w.queue.Claim(ctx, cfg.BatchSize, w.clock.Now())
	w.metrics.ObserveLockWait(metrics.LockResourceRefreshRequests, time.Since(claimStart))
	if err != nil {
		w.recordError(err)
		return err
	}
	if len(requests) == 0 {
		w.reportDepth(ctx)
		return nil
	}

	outcomes := make(map[string]int, 4)
	for _, req := range requests {
		if ctx.Err() != nil {
			w.release(req, ctx.Err())
			outcomes[outcomeRetried]++
			continue
		}
		w.metrics.ObserveQueueLag(w.clock.Now().Sub(req.CreatedAt))
		outcomes[w.process(ctx, log, req)]++
	}

	for outcome, count := range outcomes {
		w.metrics.AddBatchProcessed(jobName, outcome, count)
	}
	log.Debug("stats refresh batch done",
		zap.Int("claimed", len(requests)),
		zap.Int("completed", outcomes[outcomeCompleted]),
		zap.Int("retried", outcomes[outcomeRetried]),
		zap.Int("failed", outcomes[outcomeFailed]+outcomes[outcomeDropped]),
	)

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		w.metrics.IncJobTimeout(jobName)
	}
	w.reportDepth(ctx)
	return nil
}

func (w *Worker) reportDepth(ctx context.Context) {
	if w.metrics == nil {
		return
	}
	bctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), bookkeepingTimeout)
	defer cancel()
	depth, err := w.queue.Pending(bctx)
	if err != nil {
		w.log.Debug("failed to count pending refresh requests", zap.Error(err))
		return
	}
	w.metrics.SetQueueDepth(depth)
}

func (w *Worker) process(ctx context.Context, log *zap.Logger, req Request) string {
	scope := req.Scope()
	log = obslogger.WithScope(log, string(scope.Kind), scope.ID).With(zap.String("request_id", req.ID.String()))
	_, err := w.stats.Recompute(ctx, scope)

	bctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), bookkeepingTimeout)
	defer cancel()

	switch {
	case err == nil:
		if err := w.queue.Complete(bctx, req.ID, w.clock.Now()); err != nil {
			log.Warn("failed to complete refresh request", zap.Error(err))
		}
		return outcomeCompleted

	case errors.Is(err, domain.ErrScopeNotFound), errors.Is(err, domain.ErrInvalidScope):
		// The scope no longer exists; drop whatever is stored for it.
		if derr := w.store.Delete(bctx, scope); derr != nil {
			log.Warn("failed to delete orphaned projection", zap.Error(derr))
		}
		if ferr := w.queue.Fail(bctx, req.ID, err, w.clock.Now()); ferr != nil {
			log.Warn("failed to mark refresh request failed", zap.Error(ferr))
		}
		return outcomeDropped

	case errors.Is(err, domain.ErrScopeBusy):
		w.release(req, err)
		return outcomeRetried
	}

	w.recordError(err)
	if req.Attempts >= MaxAttempts {
		log.Error("refresh request exhausted retries",
			zap.Int("attempts", req.Attempts),
			zap.Error(err),
		)
		if ferr := w.queue.Fail(bctx, req.ID, err, w.clock.Now()); ferr != nil {
			log.Warn("failed to mark refresh request failed", zap.Error(ferr))
		}
		return outcomeFailed
	}

	log.Warn("refresh request failed, will retry",
		zap.Int("attempts", req.Attempts),
		zap.Bool("transient", metrics.IsRetryable(err)),
		zap.Error(err),
	)
	w.release(req, err)
	return outcomeRetried
}

func (w *Worker) release(req Request, cause error) {
	ctx, cancel := context.WithTimeout(context.Background(), bookkeepingTimeout)
	defer cancel()
	if err := w.queue.Release(ctx, req.ID, cause); err != nil {
		w.log.Warn("failed to release refresh request",
			zap.String("request_id", req.ID.String()),
			zap.Error(err),
		)
	}
}

func (w *Worker) recordError(err error) {
	w.metrics.IncJobError(jobName, err)
	if errors.Is(err, context.DeadlineExceeded) {
		w.metrics.IncJobTimeout(jobName)
	}
}
