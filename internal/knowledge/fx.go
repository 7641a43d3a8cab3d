package knowledge

import (
	"github.com/shohq/ontology/internal/knowledge/repository"
	"github.com/shohq/ontology/internal/knowledge/service"
	"go.uber.org/fx"
)

var Module = fx.Module("knowledge.service",
	fx.Provide(repository.NewRepository),
	fx.Provide(service.NewService),
)
