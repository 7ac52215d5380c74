package server

import (
	"net/http"

	messagedomain "github.com/chatboard/chatboard/internal/message/domain"
	roomdomain "github.com/chatboard/chatboard/internal/room/domain"
	"github.com/gin-gonic/gin"
)

const defaultMessagePageSize = 50

type createMessageRequest struct {
	Body    string `json:"body"`
	FileURL string `json:"file_url"`
}

func (s *Server) CreateMessage(c *gin.Context) {
	identity, ok := identityFrom(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}
	roomID, ok := pathID(c, "id")
	if !ok {
		AbortWithError(c, roomdomain.ErrRoomNotFound)
		return
	}

	var req createMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.messageSvc.Create(c.Request.Context(), identity.UserID, roomID, messagedomain.CreateMessageRequest{
		Body:    req.Body,
		FileURL: req.FileURL,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

func (s *Server) ListMessages(c *gin.Context) {
	identity, ok := identityFrom(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}
	roomID, ok := pathID(c, "id")
	if !ok {
		AbortWithError(c, roomdomain.ErrRoomNotFound)
		return
	}

	// before is an exclusive cursor; zero means newest page.
	before, _ := queryID(c, "before")
	limit := queryInt(c, "limit", defaultMessagePageSize)

	messages, err := s.messageSvc.List(c.Request.Context(), identity.UserID, roomID, before, limit)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": messages})
}

func (s *Server) DeleteMessage(c *gin.Context) {
	identity, ok := identityFrom(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}
	messageID, ok := pathID(c, "id")
	if !ok {
		AbortWithError(c, messagedomain.ErrMessageNotFound)
		return
	}

	if err := s.messageSvc.Delete(c.Request.Context(), identity.UserID, messageID); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}
