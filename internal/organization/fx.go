package organization

import (
	"github.com/chatboard/chatboard/internal/organization/repository"
	"github.com/chatboard/chatboard/internal/organization/service"
	"go.uber.org/fx"
)

var Module = fx.Module("organization.service",
	fx.Provide(repository.NewRepository),
	fx.Provide(service.NewService),
)
