package thing

import (
	"github.com/shohq/ontology/internal/thing/domain"
	"github.com/shohq/ontology/internal/thing/repository"
	"github.com/shohq/ontology/internal/thing/service"
	"go.uber.org/fx"
)

var Module = fx.Module("thing.service",
	fx.Provide(domain.NewRegistry),
	fx.Provide(repository.NewRepository),
	fx.Provide(service.NewService),
)
