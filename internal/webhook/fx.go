package webhook

import (
	"context"

	"github.com/chatboard/chatboard/internal/config"
	"github.com/chatboard/chatboard/internal/webhook/dispatcher"
	"github.com/chatboard/chatboard/internal/webhook/repository"
	"github.com/chatboard/chatboard/internal/webhook/service"
	"go.uber.org/fx"
)

var Module = fx.Module("webhook.service",
	fx.Provide(repository.NewRepository),
	fx.Provide(service.NewService),
	fx.Provide(provideDispatcherConfig),
	fx.Provide(dispatcher.New),
	fx.Invoke(runDispatcher),
)

func provideDispatcherConfig(cfg config.Config) dispatcher.Config {
	return dispatcher.Config{
		RunInterval:    cfg.WebhookRunInterval,
		BatchSize:      cfg.WebhookBatchSize,
		AttemptTimeout: cfg.WebhookAttemptTimeout,
	}
}

func runDispatcher(lc fx.Lifecycle, d *dispatcher.Dispatcher) {
	ctx, cancel := context.WithCancel(context.Background())

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go d.RunForever(ctx)
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			return nil
		},
	})
}
