package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/qs3c/deal_anal_server/config"
	"github.com/qs3c/deal_anal_server/internal/model/dto"
	"github.com/qs3c/deal_anal_server/internal/repository"
	"github.com/qs3c/deal_anal_server/internal/testutil"
)

func setupAuthService(t *testing.T) (*AuthService, *gorm.DB, func()) {
	t.Helper()

	db := testutil.SetupTestDB(t)
	cfg := &config.Config{
		JWT:   config.JWTConfig{Secret: "test-secret", ExpireHours: 24},
		Quota: config.QuotaConfig{DailyQuota: 5},
	}
	svc := NewAuthService(repository.NewUserRepository(db), cfg)
	return svc, db, func() { testutil.CleanupTestDB(t, db) }
}

func TestAuthService_RegisterAndLogin(t *testing.T) {
	svc, _, cleanup := setupAuthService(t)
	defer cleanup()

	resp, err := svc.Register(&dto.RegisterRequest{
		Username: "alice",
		Email:    "alice@example.com",
		Password: "password123",
	})
	require.NoError(t, err)
	assert.NotZero(t, resp.UserID)

	// 注册即带默认配额
	user, err := svc.GetUserByID(resp.UserID)
	require.NoError(t, err)
	assert.Equal(t, 5, user.DailyQuota)
	require.NotNil(t, user.QuotaResetAt)

	loginResp, err := svc.Login(&dto.LoginRequest{
		Email:    "alice@example.com",
		Password: "password123",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, loginResp.Token)
	assert.Equal(t, resp.UserID, loginResp.UserID)
	assert.Equal(t, "alice", loginResp.Username)
}

func TestAuthService_RegisterDuplicate(t *testing.T) {
	svc, _, cleanup := setupAuthService(t)
	defer cleanup()

	req := &dto.RegisterRequest{Username: "bob", Email: "bob@example.com", Password: "password123"}
	_, err := svc.Register(req)
	require.NoError(t, err)

	_, err = svc.Register(req)
	assert.ErrorIs(t, err, ErrEmailExists)

	_, err = svc.Register(&dto.RegisterRequest{Username: "bob", Email: "bob2@example.com", Password: "password123"})
	assert.ErrorIs(t, err, ErrUsernameExists)
}

func TestAuthService_LoginWrongPassword(t *testing.T) {
	svc, _, cleanup := setupAuthService(t)
	defer cleanup()

	_, err := svc.Register(&dto.RegisterRequest{
		Username: "carol",
		Email:    "carol@example.com",
		Password: "password123",
	})
	require.NoError(t, err)

	_, err = svc.Login(&dto.LoginRequest{Email: "carol@example.com", Password: "wrong-password"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.Login(&dto.LoginRequest{Email: "nobody@example.com", Password: "password123"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}
