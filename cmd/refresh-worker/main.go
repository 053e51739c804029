package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/learnboard/internal/clock"
	"github.com/smallbiznis/learnboard/internal/config"
	"github.com/smallbiznis/learnboard/internal/learning"
	"github.com/smallbiznis/learnboard/internal/learningstats"
	"github.com/smallbiznis/learnboard/internal/lock"
	"github.com/smallbiznis/learnboard/internal/membership"
	"github.com/smallbiznis/learnboard/internal/observability"
	"github.com/smallbiznis/learnboard/pkg/db"
	"go.uber.org/fx"
)

// The worker only drains the refresh queue. It always runs the loop,
// whatever STATS_REFRESH_WORKER says.
func main() {
	app := fx.New(
		fx.Provide(func() (config.Config, error) {
			cfg, err := config.New()
			cfg.RefreshWorker = true
			cfg.WorkerOnly = true
			return cfg, err
		}),
		fx.Provide(config.NewStatsConfigHolder),
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		lock.Module,

		membership.Module,
		learning.Module,
		learningstats.Module,

		// No server module!
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(2)
	if err != nil {
		panic(err)
	}
	return node
}
