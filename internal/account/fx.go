package account

import (
	"github.com/chatboard/chatboard/internal/account/repository"
	"github.com/chatboard/chatboard/internal/account/service"
	"go.uber.org/fx"
)

var Module = fx.Module("account.service",
	fx.Provide(repository.NewRepository),
	fx.Provide(service.NewService),
)
