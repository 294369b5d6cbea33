package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/jwalitptl/booking-assistant/internal/model"
	"github.com/jwalitptl/booking-assistant/pkg/auth"
	"github.com/jwalitptl/booking-assistant/pkg/logger"
	"github.com/jwalitptl/booking-assistant/pkg/security"
)

func newService(t *testing.T) *Service {
	t.Helper()
	hasher := security.NewBcryptHasher(bcrypt.MinCost)
	hash, err := hasher.Hash("s3cret-pass")
	require.NoError(t, err)
	return NewService(
		[]Admin{{Username: "admin", PasswordHash: hash}},
		hasher,
		auth.NewJWTService("secret", time.Hour),
		logger.Nop(),
	)
}

func TestLoginIssuesValidToken(t *testing.T) {
	s := newService(t)
	resp, err := s.Login(context.Background(), "admin", "s3cret-pass")
	require.NoError(t, err)
	assert.NotEmpty(t, resp.AccessToken)
	assert.True(t, resp.ExpiresAt.After(time.Now()))

	claims, err := s.ValidateToken(context.Background(), resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "admin", claims.Username)
	assert.Equal(t, model.RoleAdmin, claims.Role)
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	s := newService(t)
	_, err := s.Login(context.Background(), "admin", "wrong-pass")
	assert.ErrorIs(t, err, model.ErrInvalidCredentials)

	_, err = s.Login(context.Background(), "nobody", "s3cret-pass")
	assert.ErrorIs(t, err, model.ErrInvalidCredentials)
}

func TestLockoutAfterRepeatedFailures(t *testing.T) {
	s := newService(t)
	for i := 0; i < maxLoginAttempts; i++ {
		_, err := s.Login(context.Background(), "admin", "wrong-pass")
		require.ErrorIs(t, err, model.ErrInvalidCredentials)
	}

	_, err := s.Login(context.Background(), "admin", "s3cret-pass")
	assert.ErrorIs(t, err, model.ErrAccountLocked)

	s.attempts.Delete("admin")
	_, err = s.Login(context.Background(), "admin", "s3cret-pass")
	assert.NoError(t, err)
}

func TestSuccessResetsFailureCount(t *testing.T) {
	s := newService(t)
	for i := 0; i < maxLoginAttempts-1; i++ {
		_, _ = s.Login(context.Background(), "admin", "wrong-pass")
	}
	_, err := s.Login(context.Background(), "admin", "s3cret-pass")
	require.NoError(t, err)

	_, err = s.Login(context.Background(), "admin", "wrong-pass")
	require.ErrorIs(t, err, model.ErrInvalidCredentials)
	_, err = s.Login(context.Background(), "admin", "s3cret-pass")
	assert.NoError(t, err)
}

func TestTokenForRemovedAdminIsRejected(t *testing.T) {
	jwtSvc := auth.NewJWTService("secret", time.Hour)
	token, _, err := jwtSvc.GenerateAccessToken("ghost", model.RoleAdmin)
	require.NoError(t, err)

	_, err = newService(t).ValidateToken(context.Background(), token)
	assert.Error(t, err)
}
