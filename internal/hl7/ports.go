package hl7

import (
	"context"

	"github.com/google/uuid"

	"github.com/ehr/labfeed/internal/domain/orders"
	"github.com/ehr/labfeed/internal/domain/results"
)

// OrderStore resolves previously placed orders and their line items.
// GetByID and NextLineItem return (nil, nil) when no row matches.
type OrderStore interface {
	GetByID(ctx context.Context, id int64) (*orders.Order, error)
	NextLineItem(ctx context.Context, orderID int64, code string, afterSeq int64) (*orders.LineItem, error)
	CreateLineItem(ctx context.Context, li *orders.LineItem) error
}

// ResultStore receives flushed report and result rows. InsertReport returns
// the identifier later results reference.
type ResultStore interface {
	InsertReport(ctx context.Context, rep *results.Report) (uuid.UUID, error)
	InsertResult(ctx context.Context, res *results.Result) error
}

// DocumentStore files embedded document payloads. CategoryID returns (0, nil)
// when the named category is not configured.
type DocumentStore interface {
	CategoryID(ctx context.Context, name string) (int64, error)
	CreateDocument(ctx context.Context, patientID uuid.UUID, categoryID int64, filename, mimeType string, data []byte) (uuid.UUID, error)
}

// Stores bundles the collaborators a Processor persists through.
type Stores struct {
	Orders    OrderStore
	Results   ResultStore
	Documents DocumentStore
}
