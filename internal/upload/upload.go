// Package upload records file metadata attached to messages. Storage itself
// lives behind the URL; only bookkeeping happens here.
package upload

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

// FileUpload is one recorded file.
type FileUpload struct {
	ID          string       `gorm:"primaryKey;type:text" json:"id"`
	OrgID       snowflake.ID `gorm:"not null;index" json:"org_id"`
	RoomID      snowflake.ID `gorm:"index" json:"room_id,omitempty"`
	UploaderID  snowflake.ID `gorm:"column:uploader_id;not null" json:"uploader_id"`
	FileName    string       `gorm:"column:file_name;type:text;not null" json:"file_name"`
	ContentType string       `gorm:"column:content_type;type:text;not null;default:''" json:"content_type"`
	Size        int64        `gorm:"not null;default:0" json:"size"`
	URL         string       `gorm:"type:text;not null" json:"url"`
	CreatedAt   time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (FileUpload) TableName() string { return "file_uploads" }

type CreateUploadRequest struct {
	RoomID      snowflake.ID
	FileName    string
	ContentType string
	Size        int64
	URL         string
}

type Service interface {
	Create(ctx context.Context, userID, orgID snowflake.ID, req CreateUploadRequest) (*FileUpload, error)
	ListMine(ctx context.Context, userID, orgID snowflake.ID) ([]FileUpload, error)
}

var (
	ErrInvalidFileName = errors.New("invalid_file_name")
	ErrInvalidFileURL  = errors.New("invalid_file_url")
)

type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, upload FileUpload) error
	ListByUploader(ctx context.Context, orgID, userID snowflake.ID) ([]FileUpload, error)
}

func normalize(s string) string { return strings.TrimSpace(s) }

var Module = fx.Module("upload.service",
	fx.Provide(NewRepository),
	fx.Provide(NewService),
)
