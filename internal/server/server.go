package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/chatboard/chatboard/internal/access"
	"github.com/chatboard/chatboard/internal/account"
	accountdomain "github.com/chatboard/chatboard/internal/account/domain"
	"github.com/chatboard/chatboard/internal/chat/gateway"
	"github.com/chatboard/chatboard/internal/chat/hub"
	"github.com/chatboard/chatboard/internal/config"
	"github.com/chatboard/chatboard/internal/event"
	"github.com/chatboard/chatboard/internal/message"
	messagedomain "github.com/chatboard/chatboard/internal/message/domain"
	"github.com/chatboard/chatboard/internal/notification"
	notificationdomain "github.com/chatboard/chatboard/internal/notification/domain"
	obslogger "github.com/chatboard/chatboard/internal/observability/logger"
	obstracing "github.com/chatboard/chatboard/internal/observability/tracing"
	"github.com/chatboard/chatboard/internal/organization"
	organizationdomain "github.com/chatboard/chatboard/internal/organization/domain"
	"github.com/chatboard/chatboard/internal/room"
	roomdomain "github.com/chatboard/chatboard/internal/room/domain"
	"github.com/chatboard/chatboard/internal/upload"
	"github.com/chatboard/chatboard/internal/webhook"
	webhookdomain "github.com/chatboard/chatboard/internal/webhook/domain"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	account.Module,
	organization.Module,
	access.Module,
	room.Module,
	message.Module,
	notification.Module,
	event.Module,
	webhook.Module,
	upload.Module,
	hub.Module,
	gateway.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obslogger.GinMiddleware())
	r.Use(obstracing.GinMiddleware())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin() *gin.Engine {
	return NewEngine()
}

func run(lc fx.Lifecycle, r *gin.Engine, cfg config.Config, log *zap.Logger) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatal("http server failed", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine          *gin.Engine
	cfg             config.Config
	db              *gorm.DB
	genID           *snowflake.Node
	accountSvc      accountdomain.Service
	organizationSvc organizationdomain.Service
	roomSvc         roomdomain.Service
	messageSvc      messagedomain.Service
	notificationSvc notificationdomain.Service
	webhookSvc      webhookdomain.Service
	uploadSvc       upload.Service
	gateway         *gateway.Gateway
}

type ServerParams struct {
	fx.In

	Gin             *gin.Engine
	Cfg             config.Config
	DB              *gorm.DB
	GenID           *snowflake.Node
	AccountSvc      accountdomain.Service
	OrganizationSvc organizationdomain.Service
	RoomSvc         roomdomain.Service
	MessageSvc      messagedomain.Service
	NotificationSvc notificationdomain.Service
	WebhookSvc      webhookdomain.Service
	UploadSvc       upload.Service
	Gateway         *gateway.Gateway
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:          p.Gin,
		cfg:             p.Cfg,
		db:              p.DB,
		genID:           p.GenID,
		accountSvc:      p.AccountSvc,
		organizationSvc: p.OrganizationSvc,
		roomSvc:         p.RoomSvc,
		messageSvc:      p.MessageSvc,
		notificationSvc: p.NotificationSvc,
		webhookSvc:      p.WebhookSvc,
		uploadSvc:       p.UploadSvc,
		gateway:         p.Gateway,
	}

	svc.registerAuthRoutes()
	svc.registerAPIRoutes()
	svc.registerWSRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAuthRoutes() {
	auth := s.engine.Group("/auth")

	auth.POST("/signup", s.Signup)
	auth.POST("/login", s.Login)
	auth.GET("/me", s.AuthRequired(), s.Me)
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api", s.AuthRequired())

	// -------- Organizations --------
	api.POST("/orgs", s.CreateOrganization)
	api.GET("/orgs", s.ListOrganizations)
	api.GET("/orgs/:id", s.GetOrganization)
	api.GET("/orgs/:id/members", s.ListOrganizationMembers)
	api.POST("/orgs/:id/invites", s.InviteOrganizationMembers)
	api.POST("/orgs/accept-invite", s.AcceptOrganizationInvite)
	api.PUT("/orgs/:id/members/:userId/role", s.ChangeOrganizationRole)

	// -------- Rooms --------
	api.POST("/rooms", s.CreateRoom)
	api.GET("/rooms", s.ListRooms)
	api.GET("/rooms/unread-counts", s.RoomUnreadCounts)
	api.GET("/rooms/:id", s.GetRoom)
	api.POST("/rooms/:id/join", s.JoinRoom)
	api.POST("/rooms/:id/invite", s.InviteRoomMember)
	api.POST("/rooms/:id/leave", s.LeaveRoom)
	api.GET("/rooms/:id/members", s.ListRoomMembers)
	api.POST("/rooms/:id/read/:messageId", s.MarkRoomRead)

	// -------- Messages --------
	api.GET("/rooms/:id/messages", s.ListMessages)
	api.POST("/rooms/:id/messages", s.CreateMessage)
	api.DELETE("/messages/:id", s.DeleteMessage)

	// -------- Notifications --------
	api.GET("/notifications", s.ListNotifications)
	api.GET("/notifications/unread-count", s.NotificationUnreadCount)
	api.POST("/notifications/read-all", s.MarkAllNotificationsRead)
	api.POST("/notifications/:id/read", s.MarkNotificationRead)

	// -------- Webhooks --------
	api.GET("/webhooks/events", s.ListWebhookEvents)
	api.POST("/webhooks", s.CreateWebhook)
	api.GET("/webhooks", s.ListWebhooks)
	api.PUT("/webhooks/:id", s.UpdateWebhook)
	api.DELETE("/webhooks/:id", s.DeleteWebhook)
	api.POST("/webhooks/:id/test", s.TestWebhook)
	api.GET("/webhooks/:id/deliveries", s.ListWebhookDeliveries)

	// -------- Uploads --------
	api.POST("/uploads", s.CreateUpload)
	api.GET("/uploads", s.ListUploads)
}

// registerWSRoutes leaves auth to the gateway itself so the close code can
// travel over the upgraded connection.
func (s *Server) registerWSRoutes() {
	s.engine.GET("/ws/rooms/:id", s.gateway.Handle)
}
