package service

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/chatboard/chatboard/internal/access"
	"github.com/chatboard/chatboard/internal/clock"
	"github.com/chatboard/chatboard/internal/event"
	"github.com/chatboard/chatboard/internal/organization/domain"
	pkgdb "github.com/chatboard/chatboard/pkg/db"
	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type service struct {
	db        *gorm.DB
	repo      domain.Repository
	resolver  *access.Resolver
	genID     *snowflake.Node
	clk       clock.Clock
	publisher event.Publisher
	log       *zap.Logger
}

func NewService(db *gorm.DB, repo domain.Repository, resolver *access.Resolver, genID *snowflake.Node, clk clock.Clock, publisher event.Publisher, log *zap.Logger) domain.Service {
	return &service{
		db:        db,
		repo:      repo,
		resolver:  resolver,
		genID:     genID,
		clk:       clk,
		publisher: publisher,
		log:       log.Named("organization.service"),
	}
}

func (s *service) Create(ctx context.Context, userID snowflake.ID, req domain.CreateOrganizationRequest) (*domain.OrganizationResponse, error) {
	if userID == 0 {
		return nil, domain.ErrInvalidUser
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, domain.ErrInvalidName
	}

	now := s.clk.Now()
	orgID := s.genID.Generate()
	org := domain.Organization{
		ID:        orgID,
		Name:      name,
		Slug:      slug.Make(name),
		CreatedAt: now,
		UpdatedAt: now,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.CreateOrganization(ctx, org); err != nil {
			return err
		}

		return repo.AddMember(ctx, domain.OrganizationMember{
			ID:        s.genID.Generate(),
			OrgID:     orgID,
			UserID:    userID,
			Role:      domain.RoleAdmin,
			CreatedAt: now,
		})
	})
	if err != nil {
		return nil, err
	}

	return &domain.OrganizationResponse{
		ID:   orgID.String(),
		Name: name,
		Slug: org.Slug,
	}, nil
}

func (s *service) GetByID(ctx context.Context, userID, orgID snowflake.ID) (*domain.OrganizationResponse, error) {
	if _, err := s.requireRole(ctx, orgID, userID); err != nil {
		return nil, err
	}

	org, err := s.repo.GetOrganization(ctx, orgID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrInvalidOrganization
	}
	if err != nil {
		return nil, err
	}

	return &domain.OrganizationResponse{
		ID:   org.ID.String(),
		Name: org.Name,
		Slug: org.Slug,
	}, nil
}

func (s *service) ListByUser(ctx context.Context, userID snowflake.ID) ([]domain.OrganizationListResponseItem, error) {
	if userID == 0 {
		return nil, domain.ErrInvalidUser
	}

	items, err := s.repo.ListOrganizationsByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	resp := make([]domain.OrganizationListResponseItem, 0, len(items))
	for _, item := range items {
		resp = append(resp, domain.OrganizationListResponseItem{
			ID:        item.ID.String(),
			Name:      item.Name,
			Slug:      item.Slug,
			Role:      item.Role,
			CreatedAt: item.CreatedAt,
		})
	}
	return resp, nil
}

func (s *service) ListMembers(ctx context.Context, userID, orgID snowflake.ID) ([]domain.MemberResponse, error) {
	if _, err := s.requireRole(ctx, orgID, userID); err != nil {
		return nil, err
	}

	items, err := s.repo.ListMembers(ctx, orgID)
	if err != nil {
		return nil, err
	}

	resp := make([]domain.MemberResponse, 0, len(items))
	for _, item := range items {
		resp = append(resp, domain.MemberResponse{
			UserID:      item.UserID.String(),
			Email:       item.Email,
			DisplayName: item.DisplayName,
			Role:        item.Role,
			CreatedAt:   item.CreatedAt,
		})
	}
	return resp, nil
}

// InviteMembers records pending invites and enqueues a member.invited webhook
// event per invite.
func (s *service) InviteMembers(ctx context.Context, userID, orgID snowflake.ID, invites []domain.InviteRequest) ([]domain.InviteResponse, error) {
	role, err := s.requireRole(ctx, orgID, userID)
	if err != nil {
		return nil, err
	}
	if role != domain.RoleAdmin && role != domain.RoleManager {
		return nil, domain.ErrForbidden
	}

	now := s.clk.Now()
	rows := make([]domain.OrganizationInvite, 0, len(invites))
	for _, req := range invites {
		email := strings.ToLower(strings.TrimSpace(req.Email))
		if email == "" || !strings.Contains(email, "@") {
			return nil, domain.ErrInvalidEmail
		}
		inviteRole := strings.TrimSpace(req.Role)
		if inviteRole == "" {
			inviteRole = domain.RoleMember
		}
		if !domain.ValidRole(inviteRole) {
			return nil, domain.ErrInvalidRole
		}

		rows = append(rows, domain.OrganizationInvite{
			ID:        s.genID.Generate(),
			OrgID:     orgID,
			Email:     email,
			Role:      inviteRole,
			Token:     uuid.NewString(),
			Status:    domain.InviteStatusPending,
			InvitedBy: userID,
			CreatedAt: now,
		})
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).CreateInvites(ctx, rows); err != nil {
			return err
		}

		publisher := s.publisher.WithTx(tx)
		for _, invite := range rows {
			err := publisher.Publish(ctx, orgID, event.TopicMemberInvited, map[string]any{
				"org_id":     orgID.String(),
				"email":      invite.Email,
				"role":       invite.Role,
				"invited_by": userID.String(),
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	resp := make([]domain.InviteResponse, 0, len(rows))
	for _, invite := range rows {
		resp = append(resp, domain.InviteResponse{
			ID:    invite.ID.String(),
			Email: invite.Email,
			Role:  invite.Role,
			Token: invite.Token,
		})
	}

	return resp, nil
}

// AcceptInvite converts a pending invite into membership. When the user is
// already a member their existing role wins and the invite is still consumed.
func (s *service) AcceptInvite(ctx context.Context, userID snowflake.ID, email, token string) error {
	if userID == 0 {
		return domain.ErrInvalidUser
	}

	invite, err := s.repo.GetInviteByToken(ctx, strings.TrimSpace(token))
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.ErrInviteNotFound
	}
	if err != nil {
		return err
	}

	if invite.Status != domain.InviteStatusPending {
		return domain.ErrInviteNotPending
	}
	if !strings.EqualFold(strings.TrimSpace(email), invite.Email) {
		return domain.ErrInviteEmailMismatch
	}

	now := s.clk.Now()
	var member *domain.OrganizationMember
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		err := repo.AddMember(ctx, domain.OrganizationMember{
			ID:        s.genID.Generate(),
			OrgID:     invite.OrgID,
			UserID:    userID,
			Role:      invite.Role,
			CreatedAt: now,
		})
		if err != nil && !pkgdb.IsDuplicateKeyErr(err) {
			return err
		}

		accepted := *invite
		accepted.Status = domain.InviteStatusAccepted
		accepted.AcceptedAt = &now
		if err := repo.UpdateInvite(ctx, accepted); err != nil {
			return err
		}

		// The stored role may differ from the invite when membership already
		// existed, so re-read before reporting.
		member, err = repo.GetMember(ctx, invite.OrgID, userID)
		if err != nil {
			return err
		}

		return s.publisher.WithTx(tx).Publish(ctx, invite.OrgID, event.TopicMemberJoined, map[string]any{
			"org_id":  invite.OrgID.String(),
			"user_id": userID.String(),
			"email":   invite.Email,
			"role":    member.Role,
		})
	})
	if err != nil {
		return err
	}

	return s.resolver.PropagateMember(ctx, invite.OrgID, userID, member.Role)
}

// ChangeRole updates another member's org role. Admin only.
func (s *service) ChangeRole(ctx context.Context, actorID, orgID, userID snowflake.ID, role string) error {
	actorRole, err := s.requireRole(ctx, orgID, actorID)
	if err != nil {
		return err
	}
	if actorRole != domain.RoleAdmin {
		return domain.ErrForbidden
	}
	if !domain.ValidRole(role) {
		return domain.ErrInvalidRole
	}

	if _, err := s.requireRole(ctx, orgID, userID); err != nil {
		return err
	}

	if err := s.repo.UpdateMemberRole(ctx, orgID, userID, role); err != nil {
		return err
	}

	// A promotion may unlock MANAGER_ONLY rooms the member could not see
	// before.
	return s.resolver.PropagateMember(ctx, orgID, userID, role)
}

func (s *service) requireRole(ctx context.Context, orgID, userID snowflake.ID) (string, error) {
	role, err := s.resolver.RoleOf(ctx, orgID, userID)
	if errors.Is(err, access.ErrNotMember) {
		return "", domain.ErrNotMember
	}
	if err != nil {
		return "", err
	}
	return role, nil
}
