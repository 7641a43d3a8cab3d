package event

import (
	"github.com/shohq/ontology/internal/event/repository"
	"github.com/shohq/ontology/internal/event/service"
	"go.uber.org/fx"
)

var Module = fx.Module("event.service",
	fx.Provide(repository.NewRepository),
	fx.Provide(service.NewService),
)
