package notification

import (
	"context"

	"go.uber.org/fx"
)

var Module = fx.Module("notification",
	fx.Provide(NewDispatcher),
	fx.Provide(func(d *Dispatcher) Notifier { return d }),
	fx.Invoke(drainOnStop),
)

func drainOnStop(lc fx.Lifecycle, d *Dispatcher) {
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			d.Wait()
			return nil
		},
	})
}
