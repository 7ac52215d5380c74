package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type OrganizationListItem struct {
	ID        snowflake.ID
	Name      string
	Slug      string
	Role      string
	CreatedAt time.Time
}

type MemberListItem struct {
	UserID      snowflake.ID
	Email       string
	DisplayName string
	Role        string
	CreatedAt   time.Time
}

type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateOrganization(ctx context.Context, org Organization) error
	GetOrganization(ctx context.Context, id snowflake.ID) (*Organization, error)
	AddMember(ctx context.Context, member OrganizationMember) error
	GetMember(ctx context.Context, orgID, userID snowflake.ID) (*OrganizationMember, error)
	UpdateMemberRole(ctx context.Context, orgID, userID snowflake.ID, role string) error
	ListMembers(ctx context.Context, orgID snowflake.ID) ([]MemberListItem, error)
	ListOrganizationsByUser(ctx context.Context, userID snowflake.ID) ([]OrganizationListItem, error)
	CreateInvites(ctx context.Context, invites []OrganizationInvite) error
	GetInviteByToken(ctx context.Context, token string) (*OrganizationInvite, error)
	UpdateInvite(ctx context.Context, invite OrganizationInvite) error
}
