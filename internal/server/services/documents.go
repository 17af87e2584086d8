package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/rollcall/internal/common"
	"github.com/dmitrijs2005/rollcall/internal/logging"
	"github.com/dmitrijs2005/rollcall/internal/server/models"
	"github.com/google/uuid"
)

// DocumentWriter creates and loads documents.
type DocumentWriter interface {
	Create(ctx context.Context, collection, key string, fields map[string]any) (*models.Document, error)
	Get(ctx context.Context, collection, key string) (*models.Document, error)
}

// Dispatcher runs triggers for a created document without blocking.
type Dispatcher interface {
	Dispatch(ctx context.Context, path string, fields map[string]any) int
}

type DocumentService struct {
	docs     DocumentWriter
	triggers Dispatcher
	logger   logging.Logger
}

func NewDocumentService(docs DocumentWriter, triggers Dispatcher, l logging.Logger) *DocumentService {
	if l == nil {
		l = logging.Nop()
	}
	return &DocumentService{docs: docs, triggers: triggers, logger: l.With("module", "documents")}
}

// SplitPath splits a document path into collection and key. A path with an
// odd number of segments names a collection, and key comes back empty.
func SplitPath(path string) (collection, key string, err error) {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	for _, p := range parts {
		if p == "" {
			return "", "", fmt.Errorf("%w: malformed document path %q", common.ErrInvalidArgument, path)
		}
	}
	if len(parts)%2 == 1 {
		return strings.Join(parts, "/"), "", nil
	}
	return strings.Join(parts[:len(parts)-1], "/"), parts[len(parts)-1], nil
}

// CreateDocument stores a new document at path. A collection path gets a
// generated key. Triggers fire after the write and never fail the call.
func (s *DocumentService) CreateDocument(ctx context.Context, path string, fields map[string]any) (*models.Document, error) {
	collection, key, err := SplitPath(path)
	if err != nil {
		return nil, err
	}
	if key == "" {
		key = uuid.NewString()
	}
	if fields == nil {
		fields = map[string]any{}
	}

	doc, err := s.docs.Create(ctx, collection, key, fields)
	if err != nil {
		return nil, storeError(err)
	}

	n := s.triggers.Dispatch(ctx, doc.Path(), doc.Fields)
	s.logger.Debug(ctx, "document created", "path", doc.Path(), "triggers", n)
	return doc, nil
}

// GetDocument loads the document at path.
func (s *DocumentService) GetDocument(ctx context.Context, path string) (*models.Document, error) {
	collection, key, err := SplitPath(path)
	if err != nil {
		return nil, err
	}
	if key == "" {
		return nil, fmt.Errorf("%w: %q is a collection", common.ErrInvalidArgument, path)
	}
	doc, err := s.docs.Get(ctx, collection, key)
	if err != nil {
		return nil, storeError(err)
	}
	return doc, nil
}

// storeError passes known conditions through and marks anything else as
// the store being unavailable.
func storeError(err error) error {
	switch {
	case errors.Is(err, common.ErrorNotFound),
		errors.Is(err, common.ErrAlreadyExists),
		errors.Is(err, common.ErrInvalidArgument),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return err
	}
	return fmt.Errorf("%w: %w", common.ErrStoreUnavailable, err)
}
