package room

import (
	"github.com/chatboard/chatboard/internal/room/repository"
	"github.com/chatboard/chatboard/internal/room/service"
	"go.uber.org/fx"
)

var Module = fx.Module("room.service",
	fx.Provide(repository.NewRepository),
	fx.Provide(service.NewService),
)
