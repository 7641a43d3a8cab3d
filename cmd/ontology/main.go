package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/shohq/ontology/internal/auth"
	"github.com/shohq/ontology/internal/clock"
	"github.com/shohq/ontology/internal/config"
	"github.com/shohq/ontology/internal/connection"
	"github.com/shohq/ontology/internal/event"
	"github.com/shohq/ontology/internal/group"
	"github.com/shohq/ontology/internal/guard"
	"github.com/shohq/ontology/internal/knowledge"
	"github.com/shohq/ontology/internal/locking"
	"github.com/shohq/ontology/internal/migration"
	"github.com/shohq/ontology/internal/observability"
	"github.com/shohq/ontology/internal/person"
	"github.com/shohq/ontology/internal/pipeline"
	"github.com/shohq/ontology/internal/thing"
	"github.com/shohq/ontology/pkg/db"
	"github.com/shohq/ontology/pkg/log"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

func main() {
	app := fx.New(
		// Core infrastructure
		config.Module,
		log.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		locking.Module,

		// Functional domains
		group.Module,
		person.Module,
		guard.Module,
		thing.Module,
		connection.Module,
		event.Module,
		knowledge.Module,
		auth.Module,
		pipeline.Module,

		migration.Module,

		fx.Invoke(func(logger *zap.Logger) {
			logger.Info("ontology engine ready")
		}),
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
