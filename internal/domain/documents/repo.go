package documents

import (
	"context"

	"github.com/google/uuid"
)

// Repository persists document metadata and resolves category names.
// CategoryID returns (0, nil) when no category with that name exists.
type Repository interface {
	CategoryID(ctx context.Context, name string) (int64, error)
	Create(ctx context.Context, doc *Document) error
	GetByID(ctx context.Context, id uuid.UUID) (*Document, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*Document, error)
}
