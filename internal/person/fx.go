package person

import (
	"github.com/shohq/ontology/internal/person/repository"
	"github.com/shohq/ontology/internal/person/service"
	"go.uber.org/fx"
)

var Module = fx.Module("person.service",
	fx.Provide(repository.NewRepository),
	fx.Provide(service.NewService),
)
