package retention

import (
	"context"

	"go.uber.org/fx"
)

var Module = fx.Module("retention",
	fx.Provide(New),
	fx.Invoke(Run),
)

func Run(lc fx.Lifecycle, worker *Worker) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			ctx, cancel := context.WithCancel(context.Background())

			go worker.RunForever(ctx)

			lc.Append(fx.Hook{
				OnStop: func(context.Context) error {
					cancel()
					return nil
				},
			})

			return nil
		},
	})
}
