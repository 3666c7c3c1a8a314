package ports

import (
	"context"

	"github.com/eduadmin/student-lifecycle/internal/core/domain"
)

// BatchOpKind selects the write performed by a BatchOp.
type BatchOpKind int

const (
	BatchSet BatchOpKind = iota
	BatchUpdate
	BatchDelete
)

// BatchOp is a single write inside an atomic batch.
type BatchOp struct {
	Kind       BatchOpKind
	Collection string
	ID         string
	Fields     map[string]any // ignored for BatchDelete
}

// DocumentStore is the document database gateway.
//
// Get and Update return domain.ErrDocumentNotFound for absent documents;
// Delete of an absent document succeeds. AtomicBatch applies all ops or none.
type DocumentStore interface {
	Get(ctx context.Context, collection, id string) (*domain.Document, error)
	Set(ctx context.Context, collection, id string, fields map[string]any) error
	// Create inserts a document only if id is free; otherwise it returns
	// domain.ErrDocumentExists and leaves the stored document untouched.
	Create(ctx context.Context, collection, id string, fields map[string]any) error
	Update(ctx context.Context, collection, id string, fields map[string]any) error
	Delete(ctx context.Context, collection, id string) error
	// QueryEquals returns documents whose field equals value. limit <= 0 means no limit.
	QueryEquals(ctx context.Context, collection, field string, value any, limit int) ([]domain.Document, error)
	// QueryEqualsNot returns documents whose field equals value and whose
	// notField differs from notValue.
	QueryEqualsNot(ctx context.Context, collection, field string, value any, notField string, notValue any, limit int) ([]domain.Document, error)
	AtomicBatch(ctx context.Context, ops []BatchOp) error
}
