package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/learnboard/internal/clock"
	"github.com/smallbiznis/learnboard/internal/config"
	"github.com/smallbiznis/learnboard/internal/learning"
	"github.com/smallbiznis/learnboard/internal/learningstats"
	"github.com/smallbiznis/learnboard/internal/lock"
	"github.com/smallbiznis/learnboard/internal/membership"
	"github.com/smallbiznis/learnboard/internal/migration"
	"github.com/smallbiznis/learnboard/internal/observability"
	"github.com/smallbiznis/learnboard/internal/server"
	"github.com/smallbiznis/learnboard/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core Infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		migration.Module,
		clock.Module,
		lock.Module,

		// Functional Domains
		membership.Module,
		learning.Module,
		learningstats.Module,

		server.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
