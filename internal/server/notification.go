package server

import (
	"net/http"

	notificationdomain "github.com/chatboard/chatboard/internal/notification/domain"
	"github.com/gin-gonic/gin"
)

const defaultNotificationPageSize = 50

func (s *Server) ListNotifications(c *gin.Context) {
	identity, ok := identityFrom(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	unreadOnly := c.Query("unread") == "true"
	limit := queryInt(c, "limit", defaultNotificationPageSize)

	items, err := s.notificationSvc.List(c.Request.Context(), identity.UserID, unreadOnly, limit)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": items})
}

func (s *Server) MarkNotificationRead(c *gin.Context) {
	identity, ok := identityFrom(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}
	notificationID, ok := pathID(c, "id")
	if !ok {
		AbortWithError(c, notificationdomain.ErrNotFound)
		return
	}

	if err := s.notificationSvc.MarkRead(c.Request.Context(), identity.UserID, notificationID); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "read"})
}

func (s *Server) MarkAllNotificationsRead(c *gin.Context) {
	identity, ok := identityFrom(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	if err := s.notificationSvc.MarkAllRead(c.Request.Context(), identity.UserID); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "read"})
}

func (s *Server) NotificationUnreadCount(c *gin.Context) {
	identity, ok := identityFrom(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	count, err := s.notificationSvc.UnreadCount(c.Request.Context(), identity.UserID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"count": count})
}
