package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/iaaps/internal/assistant"
	"github.com/smallbiznis/iaaps/internal/clock"
	"github.com/smallbiznis/iaaps/internal/config"
	"github.com/smallbiznis/iaaps/internal/dashboard"
	"github.com/smallbiznis/iaaps/internal/indicator"
	"github.com/smallbiznis/iaaps/internal/indicator/repository"
	"github.com/smallbiznis/iaaps/internal/migration"
	"github.com/smallbiznis/iaaps/internal/observability"
	"github.com/smallbiznis/iaaps/internal/providers"
	"github.com/smallbiznis/iaaps/internal/ratelimit"
	"github.com/smallbiznis/iaaps/internal/report"
	"github.com/smallbiznis/iaaps/internal/scheduler"
	"github.com/smallbiznis/iaaps/internal/server"
	"github.com/smallbiznis/iaaps/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core Infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		clock.Module,
		storage(),

		// Functional Domains
		indicator.Module,
		dashboard.Module,
		providers.Module,
		report.Module,
		assistant.Module,
		ratelimit.Module,
		scheduler.Module,

		server.Module,
	)
	app.Run()
}

// storage wires the database only when it backs the indicator source.
func storage() fx.Option {
	if !config.Load().UsesDatabase() {
		return fx.Options()
	}
	return fx.Options(
		db.Module,
		migration.Module,
		repository.Module,
	)
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
