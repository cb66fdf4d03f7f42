package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/playden/playden/internal/audit"
	"github.com/playden/playden/internal/catalog"
	"github.com/playden/playden/internal/clock"
	"github.com/playden/playden/internal/config"
	"github.com/playden/playden/internal/customer"
	"github.com/playden/playden/internal/migration"
	"github.com/playden/playden/internal/observability"
	"github.com/playden/playden/internal/retention"
	"github.com/playden/playden/internal/server"
	"github.com/playden/playden/internal/session"
	"github.com/playden/playden/internal/sessionlock"
	"github.com/playden/playden/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,

		// Functional domains
		audit.Module,
		customer.Module,
		catalog.Module,
		sessionlock.Module,
		session.Module,
		retention.Module,

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
