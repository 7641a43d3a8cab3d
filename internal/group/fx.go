package group

import (
	"github.com/shohq/ontology/internal/group/repository"
	"github.com/shohq/ontology/internal/group/service"
	"go.uber.org/fx"
)

var Module = fx.Module("group.service",
	fx.Provide(repository.NewRepository),
	fx.Provide(service.NewService),
)
