// Package seed bootstraps a usable default tenant for fresh installs.
package seed

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	accountdomain "github.com/chatboard/chatboard/internal/account/domain"
	"github.com/chatboard/chatboard/internal/account/password"
	organizationdomain "github.com/chatboard/chatboard/internal/organization/domain"
	roomdomain "github.com/chatboard/chatboard/internal/room/domain"
	"gorm.io/gorm"
)

const (
	defaultOrgName       = "Main"
	defaultOrgSlug       = "main"
	defaultRoomName      = "general"
	defaultRoomSlug      = "general"
	defaultAdminEmail    = "admin@chatboard.local"
	defaultAdminPassword = "admin"
	defaultAdminDisplay  = "ChatBoard Admin"
)

// EnsureDefaultOrgAndAdmin seeds the default organization, admin user and a
// public general room. Safe to run on every startup.
func EnsureDefaultOrgAndAdmin(db *gorm.DB) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		return err
	}

	ctx := context.Background()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		org, err := ensureOrgTx(ctx, tx, node)
		if err != nil {
			return err
		}

		admin, err := ensureAdminTx(ctx, tx, node)
		if err != nil {
			return err
		}

		if err := ensureMembershipTx(ctx, tx, node, org.ID, admin.ID); err != nil {
			return err
		}

		return ensureGeneralRoomTx(ctx, tx, node, org.ID, admin.ID)
	})
}

func ensureOrgTx(ctx context.Context, tx *gorm.DB, node *snowflake.Node) (*organizationdomain.Organization, error) {
	var org organizationdomain.Organization
	err := tx.WithContext(ctx).Where("slug = ?", defaultOrgSlug).First(&org).Error
	if err == nil {
		return &org, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	now := time.Now().UTC()
	org = organizationdomain.Organization{
		ID:        node.Generate(),
		Name:      defaultOrgName,
		Slug:      defaultOrgSlug,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := tx.WithContext(ctx).Create(&org).Error; err != nil {
		return nil, err
	}
	return &org, nil
}

func ensureAdminTx(ctx context.Context, tx *gorm.DB, node *snowflake.Node) (*accountdomain.User, error) {
	var user accountdomain.User
	err := tx.WithContext(ctx).Where("email = ?", strings.ToLower(defaultAdminEmail)).First(&user).Error
	if err == nil {
		return &user, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	hashed, err := password.Hash(defaultAdminPassword)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	user = accountdomain.User{
		ID:           node.Generate(),
		Email:        strings.ToLower(defaultAdminEmail),
		DisplayName:  defaultAdminDisplay,
		PasswordHash: hashed,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := tx.WithContext(ctx).Create(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func ensureMembershipTx(ctx context.Context, tx *gorm.DB, node *snowflake.Node, orgID, userID snowflake.ID) error {
	var member organizationdomain.OrganizationMember
	err := tx.WithContext(ctx).Where("org_id = ? AND user_id = ?", orgID, userID).First(&member).Error
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	member = organizationdomain.OrganizationMember{
		ID:        node.Generate(),
		OrgID:     orgID,
		UserID:    userID,
		Role:      organizationdomain.RoleAdmin,
		CreatedAt: time.Now().UTC(),
	}
	return tx.WithContext(ctx).Create(&member).Error
}

func ensureGeneralRoomTx(ctx context.Context, tx *gorm.DB, node *snowflake.Node, orgID, adminID snowflake.ID) error {
	var room roomdomain.Room
	err := tx.WithContext(ctx).Where("org_id = ? AND slug = ?", orgID, defaultRoomSlug).First(&room).Error
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	now := time.Now().UTC()
	room = roomdomain.Room{
		ID:          node.Generate(),
		OrgID:       orgID,
		Name:        defaultRoomName,
		Slug:        defaultRoomSlug,
		AccessLevel: roomdomain.AccessPublic,
		CreatedBy:   adminID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := tx.WithContext(ctx).Create(&room).Error; err != nil {
		return err
	}

	member := roomdomain.RoomMember{
		ID:        node.Generate(),
		RoomID:    room.ID,
		UserID:    adminID,
		CreatedAt: now,
	}
	return tx.WithContext(ctx).Create(&member).Error
}
