package message

import (
	accountdomain "github.com/chatboard/chatboard/internal/account/domain"
	"github.com/bwmarrin/snowflake"
	"github.com/chatboard/chatboard/internal/chat/hub"
	"github.com/chatboard/chatboard/internal/clock"
	"github.com/chatboard/chatboard/internal/event"
	messagedomain "github.com/chatboard/chatboard/internal/message/domain"
	"github.com/chatboard/chatboard/internal/message/repository"
	"github.com/chatboard/chatboard/internal/message/service"
	notificationdomain "github.com/chatboard/chatboard/internal/notification/domain"
	orgdomain "github.com/chatboard/chatboard/internal/organization/domain"
	roomdomain "github.com/chatboard/chatboard/internal/room/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("message.service",
	fx.Provide(repository.NewRepository),
	fx.Provide(newService),
)

func newService(
	db *gorm.DB,
	repo messagedomain.Repository,
	rooms roomdomain.Repository,
	orgs orgdomain.Repository,
	accounts accountdomain.Repository,
	notifications notificationdomain.Repository,
	broadcaster hub.Broadcaster,
	publisher event.Publisher,
	genID *snowflake.Node,
	clk clock.Clock,
	log *zap.Logger,
) messagedomain.Service {
	return service.NewService(service.Params{
		DB:            db,
		Repo:          repo,
		Rooms:         rooms,
		Orgs:          orgs,
		Accounts:      accounts,
		Notifications: notifications,
		Broadcaster:   broadcaster,
		Publisher:     publisher,
		GenID:         genID,
		Clock:         clk,
		Logger:        log,
	})
}
