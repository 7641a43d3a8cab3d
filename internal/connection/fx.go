package connection

import (
	"github.com/shohq/ontology/internal/connection/repository"
	"github.com/shohq/ontology/internal/connection/service"
	"go.uber.org/fx"
)

var Module = fx.Module("connection.service",
	fx.Provide(repository.NewRepository),
	fx.Provide(service.NewService),
)
