package server

import (
	"net/http"
	"strings"

	"github.com/chatboard/chatboard/internal/event"
	organizationdomain "github.com/chatboard/chatboard/internal/organization/domain"
	webhookdomain "github.com/chatboard/chatboard/internal/webhook/domain"
	"github.com/gin-gonic/gin"
)

type createWebhookRequest struct {
	OrgID  string   `json:"org_id"`
	URL    string   `json:"url"`
	Events []string `json:"events"`
}

type updateWebhookRequest struct {
	URL    *string  `json:"url"`
	Events []string `json:"events"`
	Active *bool    `json:"active"`
}

func (s *Server) ListWebhookEvents(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"data": event.Topics})
}

func (s *Server) CreateWebhook(c *gin.Context) {
	identity, ok := identityFrom(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req createWebhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	orgID, ok := parseID(req.OrgID)
	if !ok {
		AbortWithError(c, organizationdomain.ErrInvalidOrganization)
		return
	}

	resp, err := s.webhookSvc.Create(c.Request.Context(), identity.UserID, orgID, webhookdomain.CreateWebhookRequest{
		URL:    strings.TrimSpace(req.URL),
		Events: req.Events,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

func (s *Server) ListWebhooks(c *gin.Context) {
	identity, ok := identityFrom(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}
	orgID, ok := queryID(c, "org_id")
	if !ok {
		AbortWithError(c, organizationdomain.ErrInvalidOrganization)
		return
	}

	items, err := s.webhookSvc.List(c.Request.Context(), identity.UserID, orgID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": items})
}

func (s *Server) UpdateWebhook(c *gin.Context) {
	identity, ok := identityFrom(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}
	webhookID, ok := pathID(c, "id")
	if !ok {
		AbortWithError(c, webhookdomain.ErrWebhookNotFound)
		return
	}

	var req updateWebhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.webhookSvc.Update(c.Request.Context(), identity.UserID, webhookID, webhookdomain.UpdateWebhookRequest{
		URL:    req.URL,
		Events: req.Events,
		Active: req.Active,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (s *Server) DeleteWebhook(c *gin.Context) {
	identity, ok := identityFrom(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}
	webhookID, ok := pathID(c, "id")
	if !ok {
		AbortWithError(c, webhookdomain.ErrWebhookNotFound)
		return
	}

	if err := s.webhookSvc.Delete(c.Request.Context(), identity.UserID, webhookID); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

func (s *Server) TestWebhook(c *gin.Context) {
	identity, ok := identityFrom(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}
	webhookID, ok := pathID(c, "id")
	if !ok {
		AbortWithError(c, webhookdomain.ErrWebhookNotFound)
		return
	}

	if err := s.webhookSvc.Test(c.Request.Context(), identity.UserID, webhookID); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"status": "queued"})
}

func (s *Server) ListWebhookDeliveries(c *gin.Context) {
	identity, ok := identityFrom(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}
	webhookID, ok := pathID(c, "id")
	if !ok {
		AbortWithError(c, webhookdomain.ErrWebhookNotFound)
		return
	}

	items, err := s.webhookSvc.ListDeliveries(c.Request.Context(), identity.UserID, webhookID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": items})
}
