package pipeline

import (
	"github.com/shohq/ontology/internal/pipeline/ops"
	"go.uber.org/fx"
)

var Module = fx.Module("pipeline",
	fx.Provide(
		New,
		ops.NewFactory,
	),
)
