package documents

import (
	"bytes"
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/ehr/labfeed/internal/platform/blobstore"
)

// Service stores document content in the blob store and its metadata row in
// the repository.
type Service struct {
	repo  Repository
	blobs blobstore.BlobStore
}

// NewService creates a document service.
func NewService(repo Repository, blobs blobstore.BlobStore) *Service {
	return &Service{repo: repo, blobs: blobs}
}

// CategoryID resolves a category name; (0, nil) when not configured.
func (s *Service) CategoryID(ctx context.Context, name string) (int64, error) {
	return s.repo.CategoryID(ctx, name)
}

// CreateDocument uploads the payload and records the document under the given
// patient and category, returning the new document identifier.
func (s *Service) CreateDocument(ctx context.Context, patientID uuid.UUID, categoryID int64, filename, mimeType string, data []byte) (uuid.UUID, error) {
	meta, err := s.blobs.Upload(ctx, blobstore.BlobMetadata{
		FileName:    filename,
		ContentType: mimeType,
		PatientID:   patientID.String(),
		Category:    "lab-report",
	}, bytes.NewReader(data))
	if err != nil {
		return uuid.Nil, fmt.Errorf("upload %q: %w", filename, err)
	}
	doc := &Document{
		PatientID:  patientID,
		CategoryID: categoryID,
		Filename:   filename,
		MimeType:   mimeType,
		Size:       meta.Size,
		BlobID:     meta.ID,
	}
	if err := s.repo.Create(ctx, doc); err != nil {
		return uuid.Nil, err
	}
	return doc.ID, nil
}

// ListPatientDocuments returns the metadata of every document filed for a
// patient, newest first.
func (s *Service) ListPatientDocuments(ctx context.Context, patientID uuid.UUID) ([]*Document, error) {
	return s.repo.ListByPatient(ctx, patientID)
}

// GetDocument returns a document's metadata and content.
func (s *Service) GetDocument(ctx context.Context, id uuid.UUID) (*Document, []byte, error) {
	doc, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	data, err := s.blobs.Get(ctx, doc.BlobID)
	if err != nil {
		return nil, nil, fmt.Errorf("fetch blob for document %s: %w", id, err)
	}
	return doc, data, nil
}
