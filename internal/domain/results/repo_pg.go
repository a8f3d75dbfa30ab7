package results

import (
	"context"
	"fmt"

	"github.com/google/uuid"
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

// NewRepoPG returns the PostgreSQL-backed report/result repository.
func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

func (r *repoPG) conn(ctx context.Context) queryable {
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

func (r *repoPG) InsertReport(ctx context.Context, rep *Report) (uuid.UUID, error) {
	rep.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO procedure_report (id, order_id, order_seq, date_collected, date_report, status, notes)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		rep.ID, rep.OrderID, rep.OrderSeq, rep.DateCollected, rep.DateReport, rep.Status, rep.Notes)
	if err != nil {
		return uuid.Nil, fmt.Errorf("insert report for order %d: %w", rep.OrderID, err)
	}
	return rep.ID, nil
}

func (r *repoPG) InsertResult(ctx context.Context, res *Result) error {
	res.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO procedure_result (id, report_id, data_type, result_code, result_text,
			value, units, ref_range, abnormal, status, result_date, facility, document_id, comments)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
		res.ID, res.ReportID, res.DataType, res.Code, res.Text,
		res.Value, res.Units, res.Range, res.Abnormal, res.Status,
		res.Date, res.Facility, res.DocumentID, res.Comments)
	if err != nil {
		return fmt.Errorf("insert result %q: %w", res.Code, err)
	}
	return nil
}

const reportCols = `id, order_id, order_seq, date_collected, date_report, status, notes, created_at`

func (r *repoPG) ReportsByOrder(ctx context.Context, orderID int64) ([]*Report, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+reportCols+` FROM procedure_report WHERE order_id = $1 ORDER BY created_at`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Report
	for rows.Next() {
		var rep Report
		if err := rows.Scan(&rep.ID, &rep.OrderID, &rep.OrderSeq, &rep.DateCollected,
			&rep.DateReport, &rep.Status, &rep.Notes, &rep.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, &rep)
	}
	return items, rows.Err()
}

const resultCols = `id, report_id, data_type, result_code, result_text, value, units,
	ref_range, abnormal, status, result_date, facility, document_id, comments, created_at`

func (r *repoPG) ResultsByReport(ctx context.Context, reportID uuid.UUID) ([]*Result, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+resultCols+` FROM procedure_result WHERE report_id = $1 ORDER BY created_at`, reportID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Result
	for rows.Next() {
		var res Result
		if err := rows.Scan(&res.ID, &res.ReportID, &res.DataType, &res.Code, &res.Text,
			&res.Value, &res.Units, &res.Range, &res.Abnormal, &res.Status,
			&res.Date, &res.Facility, &res.DocumentID, &res.Comments, &res.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, &res)
	}
	return items, rows.Err()
}
