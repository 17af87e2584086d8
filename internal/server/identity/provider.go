// Package identity implements the identity provider: credentials with
// bcrypt-hashed passwords and a single role claim.
package identity

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/dmitrijs2005/rollcall/internal/common"
	"github.com/dmitrijs2005/rollcall/internal/logging"
	"github.com/dmitrijs2005/rollcall/internal/server/models"
	"github.com/dmitrijs2005/rollcall/internal/server/repositories/credentials"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// MinPasswordLength is the shortest password accepted.
const MinPasswordLength = 6

// Provider creates, looks up and removes credentials.
type Provider struct {
	repo     credentials.Repository
	hashCost int
	newID    func() string
	logger   logging.Logger
}

type Option func(*Provider)

// WithHashCost overrides the bcrypt cost. Tests use bcrypt.MinCost.
func WithHashCost(cost int) Option {
	return func(p *Provider) { p.hashCost = cost }
}

func WithLogger(l logging.Logger) Option {
	return func(p *Provider) { p.logger = l }
}

func NewProvider(repo credentials.Repository, opts ...Option) *Provider {
	p := &Provider{
		repo:     repo,
		hashCost: bcrypt.DefaultCost,
		newID:    func() string { return uuid.NewString() },
		logger:   logging.Nop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With("module", "identity")
	return p
}

// normalizeEmail accepts a bare address only ("ann@x.org", not
// "Ann <ann@x.org>") and lowercases it.
func normalizeEmail(email string) (string, error) {
	email = strings.TrimSpace(email)
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", fmt.Errorf("%w: %q", common.ErrInvalidEmail, email)
	}
	return strings.ToLower(addr.Address), nil
}

// CreateCredential registers a new login. It fails with
// common.ErrInvalidEmail, common.ErrWeakPassword or common.ErrDuplicateEmail.
func (p *Provider) CreateCredential(ctx context.Context, email, password, displayName string) (*models.Credential, error) {
	addr, err := normalizeEmail(email)
	if err != nil {
		return nil, err
	}
	if len(password) < MinPasswordLength {
		return nil, fmt.Errorf("%w: at least %d characters required", common.ErrWeakPassword, MinPasswordLength)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), p.hashCost)
	if err != nil {
		// bcrypt refuses passwords over 72 bytes
		return nil, fmt.Errorf("%w: %v", common.ErrWeakPassword, err)
	}

	c := &models.Credential{
		ID:           p.newID(),
		Email:        addr,
		PasswordHash: hash,
		DisplayName:  strings.TrimSpace(displayName),
	}
	if err := p.repo.Create(ctx, c); err != nil {
		if errors.Is(err, common.ErrDuplicateEmail) {
			return nil, fmt.Errorf("%w: %s", common.ErrDuplicateEmail, addr)
		}
		return nil, fmt.Errorf("%w: %w", common.ErrStoreUnavailable, err)
	}

	p.logger.Info(ctx, "credential created", "uid", c.ID)
	return c, nil
}

// AssignRoleClaim sets the role carried by tokens issued to id.
func (p *Provider) AssignRoleClaim(ctx context.Context, id, role string) error {
	if err := p.repo.SetRole(ctx, id, role); err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return err
		}
		return fmt.Errorf("%w: %w", common.ErrStoreUnavailable, err)
	}
	p.logger.Info(ctx, "role claim assigned", "uid", id, "role", role)
	return nil
}

// DeleteCredential removes id. Removing a missing credential succeeds.
func (p *Provider) DeleteCredential(ctx context.Context, id string) error {
	if err := p.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("%w: %w", common.ErrStoreUnavailable, err)
	}
	p.logger.Info(ctx, "credential deleted", "uid", id)
	return nil
}

// LookupByEmail returns the credential registered for email or
// common.ErrorNotFound.
func (p *Provider) LookupByEmail(ctx context.Context, email string) (*models.Credential, error) {
	addr, err := normalizeEmail(email)
	if err != nil {
		return nil, err
	}
	c, err := p.repo.GetByEmail(ctx, addr)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", common.ErrStoreUnavailable, err)
	}
	return c, nil
}

// Authenticate checks email and password. Unknown emails and wrong
// passwords both yield common.ErrUnauthenticated.
func (p *Provider) Authenticate(ctx context.Context, email, password string) (*models.Credential, error) {
	c, err := p.LookupByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) || errors.Is(err, common.ErrInvalidEmail) {
			return nil, common.ErrUnauthenticated
		}
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword(c.PasswordHash, []byte(password)); err != nil {
		return nil, common.ErrUnauthenticated
	}
	return c, nil
}
