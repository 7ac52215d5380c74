package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/chatboard/chatboard/internal/clock"
	"github.com/chatboard/chatboard/internal/config"
	"github.com/chatboard/chatboard/internal/migration"
	"github.com/chatboard/chatboard/internal/observability"
	"github.com/chatboard/chatboard/internal/server"
	"github.com/chatboard/chatboard/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,
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
