package migration

import (
	accountdomain "github.com/chatboard/chatboard/internal/account/domain"
	"github.com/chatboard/chatboard/internal/config"
	messagedomain "github.com/chatboard/chatboard/internal/message/domain"
	notificationdomain "github.com/chatboard/chatboard/internal/notification/domain"
	organizationdomain "github.com/chatboard/chatboard/internal/organization/domain"
	roomdomain "github.com/chatboard/chatboard/internal/room/domain"
	"github.com/chatboard/chatboard/internal/seed"
	"github.com/chatboard/chatboard/internal/upload"
	webhookdomain "github.com/chatboard/chatboard/internal/webhook/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
		if cfg.DBType == "postgres" {
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			if err := RunMigrations(sqlDB); err != nil {
				return err
			}
		} else {
			// golang-migrate files target postgres; other dialects lean on
			// the model definitions instead.
			if err := autoMigrate(conn); err != nil {
				return err
			}
		}

		if cfg.SeedDefaultOrg {
			return seed.EnsureDefaultOrgAndAdmin(conn)
		}
		return nil
	}),
)

func autoMigrate(conn *gorm.DB) error {
	return conn.AutoMigrate(
		&accountdomain.User{},
		&organizationdomain.Organization{},
		&organizationdomain.OrganizationMember{},
		&organizationdomain.OrganizationInvite{},
		&roomdomain.Room{},
		&roomdomain.RoomMember{},
		&messagedomain.Message{},
		&webhookdomain.Webhook{},
		&webhookdomain.Outbox{},
		&notificationdomain.Notification{},
		&upload.FileUpload{},
	)
}
