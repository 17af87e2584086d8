// Package credentials declares and implements storage for login
// credentials owned by the identity provider.
package credentials

import (
	"context"

	"github.com/dmitrijs2005/rollcall/internal/server/models"
)

// Repository stores credentials. Emails are unique case-insensitively.
type Repository interface {
	// Create inserts c; a taken email yields common.ErrDuplicateEmail.
	Create(ctx context.Context, c *models.Credential) error
	GetByEmail(ctx context.Context, email string) (*models.Credential, error)
	GetByID(ctx context.Context, id string) (*models.Credential, error)
	// SetRole replaces the role claim; unknown ids yield common.ErrorNotFound.
	SetRole(ctx context.Context, id, role string) error
	Delete(ctx context.Context, id string) error
}
