package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"github.com/jwalitptl/booking-assistant/internal/model"
	"github.com/jwalitptl/booking-assistant/pkg/auth"
	"github.com/jwalitptl/booking-assistant/pkg/logger"
	"github.com/jwalitptl/booking-assistant/pkg/security"
)

const (
	maxLoginAttempts = 5
	lockoutDuration  = 15 * time.Minute
)

// Admin is an operator allowed to use the admin API.
type Admin struct {
	Username     string
	PasswordHash string
}

// Service authenticates admins against a fixed set of accounts. Failed
// attempts are counted in memory per username.
type Service struct {
	admins   map[string]string
	dummy    string
	hasher   security.PasswordHasher
	jwtSvc   auth.JWTService
	attempts *cache.Cache
	logger   *logger.Logger
}

func NewService(admins []Admin, hasher security.PasswordHasher, jwtSvc auth.JWTService, log *logger.Logger) *Service {
	byName := make(map[string]string, len(admins))
	for _, a := range admins {
		byName[a.Username] = a.PasswordHash
	}
	dummy, _ := hasher.Hash(uuid.NewString())
	return &Service{
		admins:   byName,
		dummy:    dummy,
		hasher:   hasher,
		jwtSvc:   jwtSvc,
		attempts: cache.New(lockoutDuration, 2*lockoutDuration),
		logger:   log,
	}
}

func (s *Service) Login(ctx context.Context, username, password string) (*model.TokenResponse, error) {
	if n, ok := s.attempts.Get(username); ok && n.(int) >= maxLoginAttempts {
		s.logger.Warn("Login refused for locked account", "username", username)
		return nil, model.ErrAccountLocked
	}

	hash, known := s.admins[username]
	if !known {
		// Compare anyway so unknown usernames cost the same as wrong passwords.
		hash = s.dummy
	}
	if err := s.hasher.Compare(hash, password); err != nil || !known {
		s.fail(username)
		return nil, model.ErrInvalidCredentials
	}
	s.attempts.Delete(username)

	token, expiresAt, err := s.jwtSvc.GenerateAccessToken(username, model.RoleAdmin)
	if err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}

	s.logger.Info("Admin logged in", "username", username)
	return &model.TokenResponse{AccessToken: token, ExpiresAt: expiresAt}, nil
}

// fail records a failed attempt. The lockout window restarts with each one.
func (s *Service) fail(username string) {
	n := 1
	if prev, ok := s.attempts.Get(username); ok {
		n = prev.(int) + 1
	}
	s.attempts.Set(username, n, cache.DefaultExpiration)
	if n == maxLoginAttempts {
		s.logger.Warn("Account locked after failed logins", "username", username, "attempts", n)
	}
}

func (s *Service) ValidateToken(ctx context.Context, token string) (*model.TokenClaims, error) {
	claims, err := s.jwtSvc.ValidateToken(token)
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}
	if _, ok := s.admins[claims.Username]; !ok {
		return nil, fmt.Errorf("invalid token: unknown admin %q", claims.Username)
	}
	return claims, nil
}
