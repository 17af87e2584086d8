package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/rollcall/internal/common"
	"github.com/dmitrijs2005/rollcall/internal/logging"
	"github.com/dmitrijs2005/rollcall/internal/server/auth"
	"github.com/dmitrijs2005/rollcall/internal/server/models"
)

// Authenticator verifies login credentials.
type Authenticator interface {
	Authenticate(ctx context.Context, email, password string) (*models.Credential, error)
	LookupByEmail(ctx context.Context, email string) (*models.Credential, error)
}

// AuthService logs callers in and bootstraps the first admin.
type AuthService struct {
	identity    Authenticator
	provisioner *Provisioner
	jwtSecret   []byte
	validity    time.Duration
	logger      logging.Logger
}

func NewAuthService(identity Authenticator, provisioner *Provisioner, jwtSecret []byte, validity time.Duration, l logging.Logger) *AuthService {
	if l == nil {
		l = logging.Nop()
	}
	return &AuthService{
		identity:    identity,
		provisioner: provisioner,
		jwtSecret:   jwtSecret,
		validity:    validity,
		logger:      l.With("module", "auth"),
	}
}

// Login returns an access token carrying the caller's role claim.
func (s *AuthService) Login(ctx context.Context, email, password string) (string, error) {
	c, err := s.identity.Authenticate(ctx, email, password)
	if err != nil {
		return "", err
	}
	token, err := auth.GenerateToken(c.ID, c.Role, s.jwtSecret, s.validity)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return token, nil
}

// BootstrapAdmin provisions an admin account for email unless one is
// already registered. It lets a fresh deployment create its first admin,
// who can then create everyone else.
func (s *AuthService) BootstrapAdmin(ctx context.Context, email, password string) (*models.Account, error) {
	_, err := s.identity.LookupByEmail(ctx, email)
	switch {
	case err == nil:
		s.logger.Info(ctx, "bootstrap admin already present")
		return nil, nil
	case !errors.Is(err, common.ErrorNotFound):
		return nil, fmt.Errorf("look up bootstrap admin: %w", err)
	}

	acc, err := s.provisioner.ProvisionRole(ctx, ProvisionRequest{
		Email:       email,
		Password:    password,
		Role:        common.RoleAdmin,
		DisplayName: "Administrator",
	})
	if err != nil {
		return nil, fmt.Errorf("bootstrap admin: %w", err)
	}
	s.logger.Info(ctx, "bootstrap admin created", "uid", acc.UID, "userId", acc.UserID)
	return acc, nil
}
