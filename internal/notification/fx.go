package notification

import (
	"github.com/chatboard/chatboard/internal/notification/repository"
	"github.com/chatboard/chatboard/internal/notification/service"
	"go.uber.org/fx"
)

var Module = fx.Module("notification.service",
	fx.Provide(repository.NewRepository),
	fx.Provide(service.NewService),
)
