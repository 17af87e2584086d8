// Package documents declares and implements storage for schemaless
// documents addressed by collection path and key.
package documents

import (
	"context"

	"github.com/dmitrijs2005/rollcall/internal/server/models"
)

// Repository stores documents.
type Repository interface {
	// Put upserts the document, replacing its fields.
	Put(ctx context.Context, collection, key string, fields map[string]any) error

	// Create inserts the document and fails with common.ErrAlreadyExists if
	// the key is taken.
	Create(ctx context.Context, collection, key string, fields map[string]any) (*models.Document, error)

	// Get returns the document or common.ErrorNotFound.
	Get(ctx context.Context, collection, key string) (*models.Document, error)

	// Delete removes the document. Deleting a missing document is not an error.
	Delete(ctx context.Context, collection, key string) error
}
