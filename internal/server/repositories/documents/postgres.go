package documents

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/rollcall/internal/common"
	"github.com/dmitrijs2005/rollcall/internal/dbx"
	"github.com/dmitrijs2005/rollcall/internal/server/models"
)

// PostgresRepository keeps documents in a JSONB column.
type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func encodeFields(fields map[string]any) ([]byte, error) {
	if fields == nil {
		fields = map[string]any{}
	}
	b, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("%w: fields are not JSON-encodable: %v", common.ErrInvalidArgument, err)
	}
	return b, nil
}

func (r *PostgresRepository) Put(ctx context.Context, collection, key string, fields map[string]any) error {
	body, err := encodeFields(fields)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO documents (collection, key, fields)
		VALUES ($1, $2, $3)
		ON CONFLICT (collection, key)
		DO UPDATE SET fields = EXCLUDED.fields, updated_at = now()
	`
	if _, err := r.db.ExecContext(ctx, query, collection, key, body); err != nil {
		if dbx.IsUniqueViolation(err) {
			return fmt.Errorf("%w: %v", common.ErrAlreadyExists, err)
		}
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Create(ctx context.Context, collection, key string, fields map[string]any) (*models.Document, error) {
	body, err := encodeFields(fields)
	if err != nil {
		return nil, err
	}
	query := `
		INSERT INTO documents (collection, key, fields)
		VALUES ($1, $2, $3)
		ON CONFLICT DO NOTHING
		RETURNING created_at, updated_at
	`
	doc := &models.Document{Collection: collection, Key: key, Fields: fields}
	err = r.db.QueryRowContext(ctx, query, collection, key, body).Scan(&doc.CreatedAt, &doc.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrAlreadyExists
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return doc, nil
}

func (r *PostgresRepository) Get(ctx context.Context, collection, key string) (*models.Document, error) {
	query := `
		SELECT fields, created_at, updated_at
		FROM documents
		WHERE collection = $1 AND key = $2
	`
	doc := &models.Document{Collection: collection, Key: key}
	var body []byte
	if err := r.db.QueryRowContext(ctx, query, collection, key).Scan(&body, &doc.CreatedAt, &doc.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	if err := json.Unmarshal(body, &doc.Fields); err != nil {
		return nil, fmt.Errorf("decode document %s/%s: %w", collection, key, err)
	}
	return doc, nil
}

func (r *PostgresRepository) Delete(ctx context.Context, collection, key string) error {
	query := `
		DELETE FROM documents
		WHERE collection = $1 AND key = $2
	`
	if _, err := r.db.ExecContext(ctx, query, collection, key); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}
