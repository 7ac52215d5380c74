package server

import (
	"net/http"
	"strings"

	organizationdomain "github.com/chatboard/chatboard/internal/organization/domain"
	roomdomain "github.com/chatboard/chatboard/internal/room/domain"
	"github.com/gin-gonic/gin"
)

type createRoomRequest struct {
	OrgID       string `json:"org_id"`
	Name        string `json:"name"`
	AccessLevel string `json:"access_level"`
}

type inviteRoomMemberRequest struct {
	UserID string `json:"user_id"`
}

func (s *Server) CreateRoom(c *gin.Context) {
	identity, ok := identityFrom(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req createRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	orgID, ok := parseID(req.OrgID)
	if !ok {
		AbortWithError(c, organizationdomain.ErrInvalidOrganization)
		return
	}

	resp, err := s.roomSvc.Create(c.Request.Context(), identity.UserID, orgID, roomdomain.CreateRoomRequest{
		Name:        strings.TrimSpace(req.Name),
		AccessLevel: strings.TrimSpace(req.AccessLevel),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

func (s *Server) ListRooms(c *gin.Context) {
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

	rooms, err := s.roomSvc.ListByOrg(c.Request.Context(), identity.UserID, orgID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": rooms})
}

func (s *Server) GetRoom(c *gin.Context) {
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

	resp, err := s.roomSvc.GetByID(c.Request.Context(), identity.UserID, roomID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (s *Server) JoinRoom(c *gin.Context) {
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

	if err := s.roomSvc.Join(c.Request.Context(), identity.UserID, roomID); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "joined"})
}

func (s *Server) InviteRoomMember(c *gin.Context) {
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

	var req inviteRoomMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	userID, ok := parseID(req.UserID)
	if !ok {
		AbortWithError(c, newValidationError("user_id", "invalid_user", "invalid user id"))
		return
	}

	if err := s.roomSvc.InviteMember(c.Request.Context(), identity.UserID, roomID, userID); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "invited"})
}

func (s *Server) LeaveRoom(c *gin.Context) {
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

	if err := s.roomSvc.Leave(c.Request.Context(), identity.UserID, roomID); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "left"})
}

func (s *Server) ListRoomMembers(c *gin.Context) {
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

	members, err := s.roomSvc.ListMembers(c.Request.Context(), identity.UserID, roomID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": members})
}

func (s *Server) MarkRoomRead(c *gin.Context) {
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
	messageID, ok := pathID(c, "messageId")
	if !ok {
		AbortWithError(c, newValidationError("message_id", "invalid_message", "invalid message id"))
		return
	}

	if err := s.roomSvc.MarkRead(c.Request.Context(), identity.UserID, roomID, messageID); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "read"})
}

func (s *Server) RoomUnreadCounts(c *gin.Context) {
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

	counts, err := s.roomSvc.UnreadCounts(c.Request.Context(), identity.UserID, orgID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": counts})
}
