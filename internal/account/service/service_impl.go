package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/chatboard/chatboard/internal/account/domain"
	"github.com/chatboard/chatboard/internal/account/password"
	"github.com/chatboard/chatboard/internal/clock"
	"github.com/chatboard/chatboard/internal/config"
	pkgdb "github.com/chatboard/chatboard/pkg/db"
	"github.com/golang-jwt/jwt/v5"
	"gorm.io/gorm"
)

const minPasswordLen = 8

type tokenClaims struct {
	UserID string `json:"uid"`
	Email  string `json:"email"`
	jwt.RegisteredClaims
}

type service struct {
	repo     domain.Repository
	genID    *snowflake.Node
	clk      clock.Clock
	secret   []byte
	tokenTTL time.Duration
}

func NewService(repo domain.Repository, genID *snowflake.Node, clk clock.Clock, cfg config.Config) domain.Service {
	return &service{
		repo:     repo,
		genID:    genID,
		clk:      clk,
		secret:   []byte(cfg.AuthJWTSecret),
		tokenTTL: cfg.TokenTTL,
	}
}

func (s *service) Signup(ctx context.Context, req domain.SignupRequest) (*domain.AuthResponse, error) {
	email := normalizeEmail(req.Email)
	if email == "" || !strings.Contains(email, "@") {
		return nil, domain.ErrInvalidEmail
	}
	if len(req.Password) < minPasswordLen {
		return nil, domain.ErrInvalidPassword
	}

	hash, err := password.Hash(req.Password)
	if err != nil {
		return nil, err
	}

	now := s.clk.Now()
	user := domain.User{
		ID:           s.genID.Generate(),
		Email:        email,
		DisplayName:  strings.TrimSpace(req.DisplayName),
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.repo.CreateUser(ctx, user); err != nil {
		if pkgdb.IsDuplicateKeyErr(err) {
			return nil, domain.ErrEmailTaken
		}
		return nil, err
	}

	return s.authResponse(user)
}

func (s *service) Login(ctx context.Context, req domain.LoginRequest) (*domain.AuthResponse, error) {
	email := normalizeEmail(req.Email)
	if email == "" {
		return nil, domain.ErrInvalidCredentials
	}

	user, err := s.repo.GetUserByEmail(ctx, email)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}

	if !password.Verify(req.Password, user.PasswordHash) {
		return nil, domain.ErrInvalidCredentials
	}

	return s.authResponse(*user)
}

// VerifyToken validates a bearer token without touching the database so the
// gateway can authenticate upgrades cheaply.
func (s *service) VerifyToken(ctx context.Context, token string) (*domain.Identity, error) {
	_ = ctx

	claims := &tokenClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, domain.ErrInvalidToken
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.clk.Now))
	if err != nil || !parsed.Valid {
		return nil, domain.ErrInvalidToken
	}

	userID, err := snowflake.ParseString(claims.UserID)
	if err != nil {
		return nil, domain.ErrInvalidToken
	}

	return &domain.Identity{UserID: userID, Email: claims.Email}, nil
}

func (s *service) GetByID(ctx context.Context, id snowflake.ID) (*domain.UserResponse, error) {
	user, err := s.repo.GetUserByID(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}

	resp := userResponse(*user)
	return &resp, nil
}

func (s *service) authResponse(user domain.User) (*domain.AuthResponse, error) {
	now := s.clk.Now()
	claims := tokenClaims{
		UserID: user.ID.String(),
		Email:  user.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL)),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return nil, err
	}

	return &domain.AuthResponse{Token: token, User: userResponse(user)}, nil
}

func userResponse(user domain.User) domain.UserResponse {
	return domain.UserResponse{
		ID:          user.ID.String(),
		Email:       user.Email,
		DisplayName: user.DisplayName,
		CreatedAt:   user.CreatedAt,
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
