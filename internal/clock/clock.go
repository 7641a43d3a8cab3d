// Package clock provides the time source used for every timestamp in the
// ontology. Valid-time comparisons and audit ordering both depend on a single
// monotonic, UTC source that tests can substitute.
package clock

import (
	"time"

	"go.uber.org/fx"
)

// Module provides the system clock.
var Module = fx.Module("clock",
	fx.Provide(NewSystemClock),
)

type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func NewSystemClock() Clock { return systemClock{} }

func (systemClock) Now() time.Time { return time.Now().UTC() }
