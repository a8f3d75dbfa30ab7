package documents

import (
	"context"
	"errors"
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

// NewRepoPG returns the PostgreSQL-backed document repository.
func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

func (r *repoPG) conn(ctx context.Context) queryable {
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

func (r *repoPG) CategoryID(ctx context.Context, name string) (int64, error) {
	var id int64
	err := r.conn(ctx).QueryRow(ctx, `SELECT id FROM categories WHERE name = $1`, name).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("lookup category %q: %w", name, err)
	}
	return id, nil
}

func (r *repoPG) Create(ctx context.Context, doc *Document) error {
	doc.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO documents (id, patient_id, category_id, filename, mime_type, size, blob_id)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		doc.ID, doc.PatientID, doc.CategoryID, doc.Filename, doc.MimeType, doc.Size, doc.BlobID)
	if err != nil {
		return fmt.Errorf("insert document %q: %w", doc.Filename, err)
	}
	return nil
}

const docCols = `id, patient_id, category_id, filename, mime_type, size, blob_id, created_at`

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Document, error) {
	var doc Document
	err := r.conn(ctx).QueryRow(ctx, `SELECT `+docCols+` FROM documents WHERE id = $1`, id).
		Scan(&doc.ID, &doc.PatientID, &doc.CategoryID, &doc.Filename, &doc.MimeType,
			&doc.Size, &doc.BlobID, &doc.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("get document %s: %w", id, err)
	}
	return &doc, nil
}

func (r *repoPG) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*Document, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+docCols+` FROM documents WHERE patient_id = $1 ORDER BY created_at DESC`, patientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Document
	for rows.Next() {
		var doc Document
		if err := rows.Scan(&doc.ID, &doc.PatientID, &doc.CategoryID, &doc.Filename,
			&doc.MimeType, &doc.Size, &doc.BlobID, &doc.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, &doc)
	}
	return items, rows.Err()
}
