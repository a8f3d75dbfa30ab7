package orders

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ehr/labfeed/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type repoPG struct{ pool *pgxpool.Pool }

// NewRepoPG returns the PostgreSQL-backed order repository.
func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

func (r *repoPG) conn(ctx context.Context) queryable {
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const orderCols = `id, patient_id, encounter_id, provider_id, status, ordered_at, created_at`

func (r *repoPG) GetByID(ctx context.Context, id int64) (*Order, error) {
	var o Order
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT `+orderCols+` FROM procedure_order WHERE id = $1`, id).
		Scan(&o.ID, &o.PatientID, &o.EncounterID, &o.ProviderID, &o.Status, &o.OrderedAt, &o.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get order %d: %w", id, err)
	}
	return &o, nil
}

// NextLineItem selects the order line a result should attach to. The boolean
// expression in ORDER BY sorts already-used sequence numbers (seq <= afterSeq)
// after unused ones, so repeated codes are consumed in ordered sequence and
// wrap around once exhausted.
func (r *repoPG) NextLineItem(ctx context.Context, orderID int64, code string, afterSeq int64) (*LineItem, error) {
	var li LineItem
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT order_id, seq, procedure_code, procedure_name, source
		FROM procedure_order_code
		WHERE order_id = $1 AND procedure_code = $2
		ORDER BY (seq <= $3), seq
		LIMIT 1`, orderID, code, afterSeq).
		Scan(&li.OrderID, &li.Seq, &li.Code, &li.Name, &li.Source)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("next line item for order %d code %q: %w", orderID, code, err)
	}
	return &li, nil
}

func (r *repoPG) CreateLineItem(ctx context.Context, li *LineItem) error {
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO procedure_order_code (order_id, seq, procedure_code, procedure_name, source)
		VALUES ($1,
			(SELECT COALESCE(MAX(seq), 0) + 1 FROM procedure_order_code WHERE order_id = $1),
			$2, $3, $4)
		RETURNING seq`,
		li.OrderID, li.Code, li.Name, li.Source).Scan(&li.Seq)
	if err != nil {
		return fmt.Errorf("create line item for order %d code %q: %w", li.OrderID, li.Code, err)
	}
	return nil
}
