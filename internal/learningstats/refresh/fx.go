package refresh

import (
	"context"

	"github.com/smallbiznis/learnboard/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// RunWorker starts the refresh worker with the application and stops it on
// shutdown. Instances with STATS_REFRESH_WORKER=false only enqueue.
func RunWorker(lc fx.Lifecycle, cfg config.Config, log *zap.Logger, worker *Worker) {
	if !cfg.RefreshWorker {
		log.Info("stats refresh worker disabled in this instance")
		return
	}
	lc.Append(workerHook(worker))
}

// workerHook runs the loop detached from the start context. Stop cancels it
// and waits for the current batch to wind down.
func workerHook(worker *Worker) fx.Hook {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	return fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				defer close(done)
				worker.RunForever(ctx)
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			select {
			case <-done:
				return nil
			case <-stopCtx.Done():
				return stopCtx.Err()
			}
		},
	}
}
