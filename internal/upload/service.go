package upload

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/chatboard/chatboard/internal/clock"
	"github.com/google/uuid"
)

type service struct {
	repo Repository
	clk  clock.Clock
}

func NewService(repo Repository, clk clock.Clock) Service {
	return &service{repo: repo, clk: clk}
}

func (s *service) Create(ctx context.Context, userID, orgID snowflake.ID, req CreateUploadRequest) (*FileUpload, error) {
	fileName := normalize(req.FileName)
	if fileName == "" {
		return nil, ErrInvalidFileName
	}
	fileURL := normalize(req.URL)
	if fileURL == "" {
		return nil, ErrInvalidFileURL
	}

	upload := FileUpload{
		ID:          uuid.NewString(),
		OrgID:       orgID,
		RoomID:      req.RoomID,
		UploaderID:  userID,
		FileName:    fileName,
		ContentType: normalize(req.ContentType),
		Size:        req.Size,
		URL:         fileURL,
		CreatedAt:   s.clk.Now(),
	}

	if err := s.repo.Create(ctx, upload); err != nil {
		return nil, err
	}
	return &upload, nil
}

func (s *service) ListMine(ctx context.Context, userID, orgID snowflake.ID) ([]FileUpload, error) {
	return s.repo.ListByUploader(ctx, orgID, userID)
}
