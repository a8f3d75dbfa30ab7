package documents

import (
	"time"

	"github.com/google/uuid"
)

// Category maps to the categories table. Extracted lab documents are filed
// under a configured category name.
type Category struct {
	ID   int64  `db:"id" json:"id"`
	Name string `db:"name" json:"name"`
}

// Document maps to the documents table: metadata for one stored patient
// document. The bytes themselves live in the blob store under BlobID.
type Document struct {
	ID         uuid.UUID `db:"id" json:"id"`
	PatientID  uuid.UUID `db:"patient_id" json:"patient_id"`
	CategoryID int64     `db:"category_id" json:"category_id"`
	Filename   string    `db:"filename" json:"filename"`
	MimeType   string    `db:"mime_type" json:"mime_type"`
	Size       int64     `db:"size" json:"size"`
	BlobID     string    `db:"blob_id" json:"blob_id"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}
