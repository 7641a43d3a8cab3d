package auth

import (
	"github.com/shohq/ontology/internal/auth/resolver"
	"go.uber.org/fx"
)

var Module = fx.Module("auth",
	fx.Provide(resolver.NewResolver),
)
