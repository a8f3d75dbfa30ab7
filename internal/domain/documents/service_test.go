package documents

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/ehr/labfeed/internal/platform/blobstore"
)

type memRepo struct {
	categories map[string]int64
	docs       map[uuid.UUID]*Document
}

func newMemRepo() *memRepo {
	return &memRepo{
		categories: map[string]int64{"Lab Report": 7},
		docs:       map[uuid.UUID]*Document{},
	}
}

func (m *memRepo) CategoryID(_ context.Context, name string) (int64, error) {
	return m.categories[name], nil
}

func (m *memRepo) Create(_ context.Context, doc *Document) error {
	doc.ID = uuid.New()
	cp := *doc
	m.docs[doc.ID] = &cp
	return nil
}

func (m *memRepo) GetByID(_ context.Context, id uuid.UUID) (*Document, error) {
	return m.docs[id], nil
}

func (m *memRepo) ListByPatient(_ context.Context, patientID uuid.UUID) ([]*Document, error) {
	var out []*Document
	for _, doc := range m.docs {
		if doc.PatientID == patientID {
			out = append(out, doc)
		}
	}
	return out, nil
}

func TestService_CreateAndGetDocument(t *testing.T) {
	repo := newMemRepo()
	svc := NewService(repo, blobstore.NewInMemoryBlobStore())
	ctx := context.Background()
	patientID := uuid.New()

	id, err := svc.CreateDocument(ctx, patientID, 7, "20240116_093000.pdf",
		"application/pdf", []byte("pdf bytes"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id == uuid.Nil {
		t.Fatal("expected a document id")
	}

	doc, data, err := svc.GetDocument(ctx, id)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if doc.PatientID != patientID || doc.CategoryID != 7 {
		t.Errorf("document = %+v", doc)
	}
	if doc.MimeType != "application/pdf" {
		t.Errorf("mime type = %q", doc.MimeType)
	}
	if doc.Size != int64(len("pdf bytes")) {
		t.Errorf("size = %d", doc.Size)
	}
	if string(data) != "pdf bytes" {
		t.Errorf("content = %q", data)
	}
}

func TestService_ListPatientDocuments(t *testing.T) {
	repo := newMemRepo()
	svc := NewService(repo, blobstore.NewInMemoryBlobStore())
	ctx := context.Background()
	patientID := uuid.New()

	if _, err := svc.CreateDocument(ctx, patientID, 7, "a.pdf", "application/pdf", []byte("a")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := svc.CreateDocument(ctx, uuid.New(), 7, "b.pdf", "application/pdf", []byte("b")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	docs, err := svc.ListPatientDocuments(ctx, patientID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(docs) != 1 || docs[0].Filename != "a.pdf" {
		t.Errorf("documents = %+v", docs)
	}
}

func TestService_CategoryID(t *testing.T) {
	svc := NewService(newMemRepo(), blobstore.NewInMemoryBlobStore())
	ctx := context.Background()

	id, err := svc.CategoryID(ctx, "Lab Report")
	if err != nil || id != 7 {
		t.Errorf("CategoryID = %d, %v", id, err)
	}

	id, err = svc.CategoryID(ctx, "Imaging")
	if err != nil || id != 0 {
		t.Errorf("expected (0, nil) for unknown category, got %d, %v", id, err)
	}
}
