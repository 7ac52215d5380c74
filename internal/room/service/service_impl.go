package service

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/chatboard/chatboard/internal/access"
	"github.com/chatboard/chatboard/internal/clock"
	"github.com/chatboard/chatboard/internal/event"
	orgdomain "github.com/chatboard/chatboard/internal/organization/domain"
	"github.com/chatboard/chatboard/internal/room/domain"
	pkgdb "github.com/chatboard/chatboard/pkg/db"
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
		log:       log.Named("room.service"),
	}
}

// Create builds a room, joins the creator unconditionally and sweeps eligible
// org members in. PRIVATE rooms start with only the creator.
func (s *service) Create(ctx context.Context, userID, orgID snowflake.ID, req domain.CreateRoomRequest) (*domain.RoomResponse, error) {
	role, err := s.requireOrgRole(ctx, orgID, userID)
	if err != nil {
		return nil, err
	}
	if !access.CanCreateRoom(role) {
		return nil, domain.ErrForbidden
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, domain.ErrInvalidName
	}
	level := strings.TrimSpace(req.AccessLevel)
	if level == "" {
		level = domain.AccessPublic
	}
	if !domain.ValidAccessLevel(level) {
		return nil, domain.ErrInvalidAccessLevel
	}

	now := s.clk.Now()
	room := domain.Room{
		ID:          s.genID.Generate(),
		OrgID:       orgID,
		Name:        name,
		Slug:        slug.Make(name),
		AccessLevel: level,
		CreatedBy:   userID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.CreateRoom(ctx, room); err != nil {
			return err
		}

		err := repo.AddMember(ctx, domain.RoomMember{
			ID:        s.genID.Generate(),
			RoomID:    room.ID,
			UserID:    userID,
			CreatedAt: now,
		})
		if err != nil {
			return err
		}

		return s.publisher.WithTx(tx).Publish(ctx, orgID, event.TopicRoomCreated, map[string]any{
			"org_id":       orgID.String(),
			"room_id":      room.ID.String(),
			"name":         room.Name,
			"access_level": room.AccessLevel,
			"created_by":   userID.String(),
		})
	})
	if err != nil {
		return nil, err
	}

	if err := s.resolver.PropagateRoom(ctx, room); err != nil {
		return nil, err
	}

	resp := roomResponse(room)
	return &resp, nil
}

func (s *service) GetByID(ctx context.Context, userID, roomID snowflake.ID) (*domain.RoomResponse, error) {
	room, err := s.getRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}

	role, err := s.requireOrgRole(ctx, room.OrgID, userID)
	if err != nil {
		return nil, err
	}
	if !s.canSee(ctx, *room, role, userID) {
		return nil, domain.ErrForbidden
	}

	resp := roomResponse(*room)
	return &resp, nil
}

// ListByOrg returns the rooms visible to the user: PUBLIC and MANAGER_ONLY
// by role, PRIVATE only via membership.
func (s *service) ListByOrg(ctx context.Context, userID, orgID snowflake.ID) ([]domain.RoomResponse, error) {
	role, err := s.requireOrgRole(ctx, orgID, userID)
	if err != nil {
		return nil, err
	}

	rooms, err := s.repo.ListRoomsByOrg(ctx, orgID)
	if err != nil {
		return nil, err
	}

	resp := make([]domain.RoomResponse, 0, len(rooms))
	for _, room := range rooms {
		if !s.canSee(ctx, room, role, userID) {
			continue
		}
		resp = append(resp, roomResponse(room))
	}
	return resp, nil
}

// Join is idempotent: joining a room twice leaves a single membership row.
func (s *service) Join(ctx context.Context, userID, roomID snowflake.ID) error {
	room, err := s.getRoom(ctx, roomID)
	if err != nil {
		return err
	}

	role, err := s.requireOrgRole(ctx, room.OrgID, userID)
	if err != nil {
		return err
	}
	if !access.CanJoin(room.AccessLevel, role) {
		return domain.ErrForbidden
	}

	err = s.repo.AddMember(ctx, domain.RoomMember{
		ID:        s.genID.Generate(),
		RoomID:    roomID,
		UserID:    userID,
		CreatedAt: s.clk.Now(),
	})
	if err != nil && !pkgdb.IsDuplicateKeyErr(err) {
		return err
	}
	return nil
}

// InviteMember adds an org member to a room directly. This is the only path
// into PRIVATE rooms and is restricted to the room creator or an org ADMIN.
func (s *service) InviteMember(ctx context.Context, actorID, roomID, userID snowflake.ID) error {
	room, err := s.getRoom(ctx, roomID)
	if err != nil {
		return err
	}

	actorRole, err := s.requireOrgRole(ctx, room.OrgID, actorID)
	if err != nil {
		return err
	}
	if actorID != room.CreatedBy && actorRole != orgdomain.RoleAdmin {
		return domain.ErrForbidden
	}

	// The invitee must already belong to the organization.
	if _, err := s.requireOrgRole(ctx, room.OrgID, userID); err != nil {
		return err
	}

	err = s.repo.AddMember(ctx, domain.RoomMember{
		ID:        s.genID.Generate(),
		RoomID:    roomID,
		UserID:    userID,
		CreatedAt: s.clk.Now(),
	})
	if err != nil && !pkgdb.IsDuplicateKeyErr(err) {
		return err
	}
	return nil
}

// Leave removes the membership row. Leaving a room twice is a no-op.
func (s *service) Leave(ctx context.Context, userID, roomID snowflake.ID) error {
	if _, err := s.getRoom(ctx, roomID); err != nil {
		return err
	}
	return s.repo.RemoveMember(ctx, roomID, userID)
}

func (s *service) ListMembers(ctx context.Context, userID, roomID snowflake.ID) ([]domain.RoomMemberResponse, error) {
	if err := s.requireRoomMember(ctx, roomID, userID); err != nil {
		return nil, err
	}

	items, err := s.repo.ListMembers(ctx, roomID)
	if err != nil {
		return nil, err
	}

	resp := make([]domain.RoomMemberResponse, 0, len(items))
	for _, item := range items {
		resp = append(resp, domain.RoomMemberResponse{
			UserID:      item.UserID.String(),
			Email:       item.Email,
			DisplayName: item.DisplayName,
			JoinedAt:    item.CreatedAt,
		})
	}
	return resp, nil
}

// MarkRead advances the read pointer. Stale ids are ignored and the pointer
// never moves past the newest message in the room.
func (s *service) MarkRead(ctx context.Context, userID, roomID, messageID snowflake.ID) error {
	if err := s.requireRoomMember(ctx, roomID, userID); err != nil {
		return err
	}

	max, err := s.repo.MaxMessageID(ctx, roomID)
	if err != nil {
		return err
	}
	if messageID > max {
		messageID = max
	}
	if messageID == 0 {
		return nil
	}

	return s.repo.AdvanceLastRead(ctx, roomID, userID, messageID)
}

func (s *service) UnreadCounts(ctx context.Context, userID, orgID snowflake.ID) (map[string]int64, error) {
	if _, err := s.requireOrgRole(ctx, orgID, userID); err != nil {
		return nil, err
	}

	counts, err := s.repo.UnreadCounts(ctx, orgID, userID)
	if err != nil {
		return nil, err
	}

	resp := make(map[string]int64, len(counts))
	for _, count := range counts {
		resp[count.RoomID.String()] = count.Count
	}
	return resp, nil
}

func (s *service) getRoom(ctx context.Context, roomID snowflake.ID) (*domain.Room, error) {
	room, err := s.repo.GetRoom(ctx, roomID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrRoomNotFound
	}
	if err != nil {
		return nil, err
	}
	return room, nil
}

func (s *service) canSee(ctx context.Context, room domain.Room, role string, userID snowflake.ID) bool {
	if access.CanJoin(room.AccessLevel, role) {
		return true
	}
	_, err := s.repo.GetMember(ctx, room.ID, userID)
	return err == nil
}

func (s *service) requireOrgRole(ctx context.Context, orgID, userID snowflake.ID) (string, error) {
	role, err := s.resolver.RoleOf(ctx, orgID, userID)
	if errors.Is(err, access.ErrNotMember) {
		return "", domain.ErrForbidden
	}
	if err != nil {
		return "", err
	}
	return role, nil
}

func (s *service) requireRoomMember(ctx context.Context, roomID, userID snowflake.ID) error {
	if _, err := s.getRoom(ctx, roomID); err != nil {
		return err
	}
	_, err := s.repo.GetMember(ctx, roomID, userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.ErrNotRoomMember
	}
	return err
}

func roomResponse(room domain.Room) domain.RoomResponse {
	return domain.RoomResponse{
		ID:          room.ID.String(),
		OrgID:       room.OrgID.String(),
		Name:        room.Name,
		Slug:        room.Slug,
		AccessLevel: room.AccessLevel,
		IsDM:        room.IsDM,
		CreatedBy:   room.CreatedBy.String(),
		CreatedAt:   room.CreatedAt,
	}
}
