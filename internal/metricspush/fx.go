package metricspush

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/smallbiznis/hyperion/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("metrics.push",
	fx.Provide(NewPusher),
	fx.Invoke(startWorker),
)

func startWorker(lc fx.Lifecycle, cfg config.Config, pusher Pusher, log *zap.Logger) {
	if pusher == nil {
		return
	}
	log = log.Named("metricspush")
	interval := cfg.Metrics.Interval
	if interval <= 0 {
		interval = 30 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			log.Info("starting metrics push worker", zap.Duration("interval", interval))
			go func() {
				defer close(done)
				run(ctx, pusher, prometheus.DefaultGatherer, interval, log)
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			select {
			case <-done:
				return nil
			case <-stopCtx.Done():
				return stopCtx.Err()
			}
		},
	})
}

// run pushes once immediately, then on every tick, and a last time when ctx
// ends so the final counters are not lost.
func run(ctx context.Context, pusher Pusher, gatherer prometheus.Gatherer, interval time.Duration, log *zap.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	pushOnce(ctx, pusher, gatherer, log)
	for {
		select {
		case <-ticker.C:
			pushOnce(ctx, pusher, gatherer, log)
		case <-ctx.Done():
			pushOnce(context.WithoutCancel(ctx), pusher, gatherer, log)
			log.Info("stopping metrics push worker")
			return
		}
	}
}

func pushOnce(ctx context.Context, pusher Pusher, gatherer prometheus.Gatherer, log *zap.Logger) {
	ctx, cancel := context.WithTimeout(ctx, defaultPushTimeout)
	defer cancel()
	if err := pusher.Push(ctx, gatherer); err != nil {
		log.Warn("metrics push failed", zap.Error(err))
	}
}
