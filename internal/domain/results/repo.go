package results

import (
	"context"

	"github.com/google/uuid"
)

// Repository persists flushed reports and results and serves the read API.
// InsertReport returns the identifier results must reference.
type Repository interface {
	InsertReport(ctx context.Context, rep *Report) (uuid.UUID, error)
	InsertResult(ctx context.Context, res *Result) error
	ReportsByOrder(ctx context.Context, orderID int64) ([]*Report, error)
	ResultsByReport(ctx context.Context, reportID uuid.UUID) ([]*Result, error)
}
