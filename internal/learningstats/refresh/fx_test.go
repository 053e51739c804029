package refresh

import (
	"testing"

	"github.com/smallbiznis/learnboard/internal/config"
	"go.uber.org/fx/fxtest"
	"go.uber.org/zap"
)

func TestRunWorkerStopsLoopOnShutdown(t *testing.T) {
	h := setup(t)

	lc := fxtest.NewLifecycle(t)
	RunWorker(lc, config.Config{RefreshWorker: true}, zap.NewNop(), h.worker)

	lc.RequireStart()
	// Stop blocks until the loop has returned, so a missed cancel fails here.
	lc.RequireStop()
}

func TestRunWorkerDisabledAddsNoHook(t *testing.T) {
	h := setup(t)

	lc := fxtest.NewLifecycle(t)
	RunWorker(lc, config.Config{RefreshWorker: false}, zap.NewNop(), h.worker)

	lc.RequireStart()
	lc.RequireStop()
}
