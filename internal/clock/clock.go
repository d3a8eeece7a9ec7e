package clock

import (
	"time"

	"go.uber.org/fx"
)

// Clock is the time source of every service that stamps or expires records.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

func System() Clock { return systemClock{} }

var Module = fx.Module("clock",
	fx.Provide(System),
)
