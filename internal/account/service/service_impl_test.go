package service

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/chatboard/chatboard/internal/account/domain"
	"github.com/chatboard/chatboard/internal/account/repository"
	"github.com/chatboard/chatboard/internal/clock"
	"github.com/chatboard/chatboard/internal/config"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newService(t *testing.T) (domain.Service, *clock.FakeClock) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&domain.User{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	clk := clock.NewFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))

	cfg := config.Config{
		AuthJWTSecret: "test-secret",
		TokenTTL:      time.Hour,
	}
	return NewService(repository.NewRepository(db), node, clk, cfg), clk
}

func TestSignupValidation(t *testing.T) {
	svc, _ := newService(t)

	_, err := svc.Signup(context.Background(), domain.SignupRequest{Email: "nope", Password: "long-enough"})
	assert.ErrorIs(t, err, domain.ErrInvalidEmail)

	_, err = svc.Signup(context.Background(), domain.SignupRequest{Email: "a@b.test", Password: "short"})
	assert.ErrorIs(t, err, domain.ErrInvalidPassword)
}

func TestSignupAndLogin(t *testing.T) {
	svc, _ := newService(t)

	resp, err := svc.Signup(context.Background(), domain.SignupRequest{
		Email:       "Ada@Acme.Test",
		DisplayName: "Ada",
		Password:    "correct horse",
	})
	require.NoError(t, err)
	assert.Equal(t, "ada@acme.test", resp.User.Email)
	assert.NotEmpty(t, resp.Token)

	// Email uniqueness is case insensitive.
	_, err = svc.Signup(context.Background(), domain.SignupRequest{
		Email:    "ada@acme.test",
		Password: "correct horse",
	})
	assert.ErrorIs(t, err, domain.ErrEmailTaken)

	login, err := svc.Login(context.Background(), domain.LoginRequest{
		Email:    "ada@acme.test",
		Password: "correct horse",
	})
	require.NoError(t, err)
	assert.Equal(t, resp.User.ID, login.User.ID)

	_, err = svc.Login(context.Background(), domain.LoginRequest{
		Email:    "ada@acme.test",
		Password: "wrong",
	})
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)

	_, err = svc.Login(context.Background(), domain.LoginRequest{
		Email:    "nobody@acme.test",
		Password: "correct horse",
	})
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)
}

func TestVerifyToken(t *testing.T) {
	svc, clk := newService(t)

	resp, err := svc.Signup(context.Background(), domain.SignupRequest{
		Email:    "ada@acme.test",
		Password: "correct horse",
	})
	require.NoError(t, err)

	identity, err := svc.VerifyToken(context.Background(), resp.Token)
	require.NoError(t, err)
	assert.Equal(t, resp.User.ID, identity.UserID.String())
	assert.Equal(t, "ada@acme.test", identity.Email)

	_, err = svc.VerifyToken(context.Background(), resp.Token+"tampered")
	assert.ErrorIs(t, err, domain.ErrInvalidToken)

	_, err = svc.VerifyToken(context.Background(), "")
	assert.ErrorIs(t, err, domain.ErrInvalidToken)

	clk.Advance(2 * time.Hour)
	_, err = svc.VerifyToken(context.Background(), resp.Token)
	assert.ErrorIs(t, err, domain.ErrInvalidToken)
}

func TestGetByID(t *testing.T) {
	svc, _ := newService(t)

	resp, err := svc.Signup(context.Background(), domain.SignupRequest{
		Email:    "ada@acme.test",
		Password: "correct horse",
	})
	require.NoError(t, err)

	userID, err := snowflake.ParseString(resp.User.ID)
	require.NoError(t, err)
	user, err := svc.GetByID(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, "ada@acme.test", user.Email)

	_, err = svc.GetByID(context.Background(), userID+1)
	assert.ErrorIs(t, err, domain.ErrUserNotFound)
}
