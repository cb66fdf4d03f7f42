// Package clock abstracts the wall clock so billing transitions and
// tests share one notion of "now".
package clock

import (
	"time"

	"go.uber.org/fx"
)

// Clock supplies the current instant. Billing code always reads "now"
// exactly once per operation through this interface.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// NewSystem returns the system wall clock in UTC.
func NewSystem() Clock { return systemClock{} }

var Module = fx.Module("clock",
	fx.Provide(NewSystem),
)
