package upload

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, upload FileUpload) error {
	return r.db.WithContext(ctx).Exec(
		`INSERT INTO file_uploads (id, org_id, room_id, uploader_id, file_name, content_type, size, url, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		upload.ID,
		upload.OrgID,
		upload.RoomID,
		upload.UploaderID,
		upload.FileName,
		upload.ContentType,
		upload.Size,
		upload.URL,
		upload.CreatedAt,
	).Error
}

func (r *repository) ListByUploader(ctx context.Context, orgID, userID snowflake.ID) ([]FileUpload, error) {
	var uploads []FileUpload
	err := r.db.WithContext(ctx).Raw(
		`SELECT id, org_id, room_id, uploader_id, file_name, content_type, size, url, created_at
		 FROM file_uploads
		 WHERE org_id = ? AND uploader_id = ?
		 ORDER BY created_at DESC`,
		orgID, userID,
	).Scan(&uploads).Error
	if err != nil {
		return nil, err
	}
	return uploads, nil
}
