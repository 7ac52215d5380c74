package server

import (
	"net/http"
	"strings"

	organizationdomain "github.com/chatboard/chatboard/internal/organization/domain"
	"github.com/chatboard/chatboard/internal/upload"
	"github.com/gin-gonic/gin"
)

type createUploadRequest struct {
	OrgID       string `json:"org_id"`
	RoomID      string `json:"room_id"`
	FileName    string `json:"file_name"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
	URL         string `json:"url"`
}

func (s *Server) CreateUpload(c *gin.Context) {
	identity, ok := identityFrom(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req createUploadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	orgID, ok := parseID(req.OrgID)
	if !ok {
		AbortWithError(c, organizationdomain.ErrInvalidOrganization)
		return
	}

	create := upload.CreateUploadRequest{
		FileName:    strings.TrimSpace(req.FileName),
		ContentType: strings.TrimSpace(req.ContentType),
		Size:        req.Size,
		URL:         strings.TrimSpace(req.URL),
	}
	if roomID, ok := parseID(req.RoomID); ok {
		create.RoomID = roomID
	}

	resp, err := s.uploadSvc.Create(c.Request.Context(), identity.UserID, orgID, create)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

func (s *Server) ListUploads(c *gin.Context) {
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

	items, err := s.uploadSvc.ListMine(c.Request.Context(), identity.UserID, orgID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": items})
}
