package hl7

import (
	"context"
	"errors"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ehr/labfeed/internal/domain/orders"
	"github.com/ehr/labfeed/internal/domain/results"
)

// =========== Mock Stores ===========

type mockOrderStore struct {
	orders map[int64]*orders.Order
	lines  []*orders.LineItem
}

func newMockOrderStore() *mockOrderStore {
	return &mockOrderStore{orders: make(map[int64]*orders.Order)}
}

func (m *mockOrderStore) GetByID(_ context.Context, id int64) (*orders.Order, error) {
	o, ok := m.orders[id]
	if !ok {
		return nil, nil
	}
	cp := *o
	return &cp, nil
}

func (m *mockOrderStore) NextLineItem(_ context.Context, orderID int64, code string, afterSeq int64) (*orders.LineItem, error) {
	var matched []*orders.LineItem
	for _, li := range m.lines {
		if li.OrderID == orderID && li.Code == code {
			matched = append(matched, li)
		}
	}
	if len(matched) == 0 {
		return nil, nil
	}
	// Used sequence numbers (seq <= afterSeq) sort after unused ones.
	sort.SliceStable(matched, func(i, j int) bool {
		ui, uj := matched[i].Seq <= afterSeq, matched[j].Seq <= afterSeq
		if ui != uj {
			return !ui
		}
		return matched[i].Seq < matched[j].Seq
	})
	cp := *matched[0]
	return &cp, nil
}

func (m *mockOrderStore) CreateLineItem(_ context.Context, li *orders.LineItem) error {
	var max int64
	for _, l := range m.lines {
		if l.OrderID == li.OrderID && l.Seq > max {
			max = l.Seq
		}
	}
	li.Seq = max + 1
	cp := *li
	m.lines = append(m.lines, &cp)
	return nil
}

type mockResultStore struct {
	reports []*results.Report
	results []*results.Result
}

func (m *mockResultStore) InsertReport(_ context.Context, rep *results.Report) (uuid.UUID, error) {
	rep.ID = uuid.New()
	cp := *rep
	m.reports = append(m.reports, &cp)
	return rep.ID, nil
}

func (m *mockResultStore) InsertResult(_ context.Context, res *results.Result) error {
	res.ID = uuid.New()
	cp := *res
	m.results = append(m.results, &cp)
	return nil
}

type storedDoc struct {
	id         uuid.UUID
	patientID  uuid.UUID
	categoryID int64
	filename   string
	mimeType   string
	data       []byte
}

type mockDocStore struct {
	categories map[string]int64
	docs       []storedDoc
	createErr  error
}

func newMockDocStore() *mockDocStore {
	return &mockDocStore{categories: map[string]int64{"Lab Report": 7}}
}

func (m *mockDocStore) CategoryID(_ context.Context, name string) (int64, error) {
	return m.categories[name], nil
}

func (m *mockDocStore) CreateDocument(_ context.Context, patientID uuid.UUID, categoryID int64, filename, mimeType string, data []byte) (uuid.UUID, error) {
	if m.createErr != nil {
		return uuid.Nil, m.createErr
	}
	doc := storedDoc{
		id:         uuid.New(),
		patientID:  patientID,
		categoryID: categoryID,
		filename:   filename,
		mimeType:   mimeType,
		data:       data,
	}
	m.docs = append(m.docs, doc)
	return doc.id, nil
}

// =========== Fixtures ===========

type fixture struct {
	orders  *mockOrderStore
	results *mockResultStore
	docs    *mockDocStore
	proc    *Processor
}

func newFixture() *fixture {
	f := &fixture{
		orders:  newMockOrderStore(),
		results: &mockResultStore{},
		docs:    newMockDocStore(),
	}
	f.proc = NewProcessor(Stores{Orders: f.orders, Results: f.results, Documents: f.docs},
		"Lab Report", zerolog.Nop())
	f.proc.now = func() time.Time {
		return time.Date(2024, 1, 16, 9, 30, 0, 0, time.UTC)
	}
	return f
}

func (f *fixture) addOrder(id int64, encounterID int64) uuid.UUID {
	patientID := uuid.New()
	f.orders.orders[id] = &orders.Order{
		ID:          id,
		PatientID:   patientID,
		EncounterID: encounterID,
		Status:      "active",
	}
	return patientID
}

func (f *fixture) addLine(orderID, seq int64, code, name string) {
	f.orders.lines = append(f.orders.lines, &orders.LineItem{
		OrderID: orderID,
		Seq:     seq,
		Code:    code,
		Name:    name,
		Source:  orders.SourceOrdered,
	})
}

const mshORU = "MSH|^~\\&|LabSystem|LabFac|EHR|EHRFac|20240116||ORU^R01|MSG001|P|2.3"

func obrSeg(orderID, code, name, collected, reported, status string) string {
	f := make([]string, 26)
	f[0] = "OBR"
	f[1] = "1"
	f[2] = orderID
	f[4] = code + "^" + name
	f[7] = collected
	f[22] = reported
	f[25] = status
	return strings.Join(f, "|")
}

func obxSeg(valueType, code, text, value, units, rng, abnormal, status string) string {
	f := make([]string, 16)
	f[0] = "OBX"
	f[1] = "1"
	f[2] = valueType
	f[3] = code + "^" + text
	f[5] = value
	f[6] = units
	f[7] = rng
	f[8] = abnormal
	f[11] = status
	f[14] = "202401151030"
	f[15] = "Main Lab"
	return strings.Join(f, "|")
}

func message(segs ...string) string {
	return strings.Join(segs, "\r")
}

// =========== Tests ===========

func TestProcess_EndToEnd_MinimalMessage(t *testing.T) {
	f := newFixture()
	f.addOrder(77, 0)
	f.addLine(77, 1, "85025", "CBC")

	msg := message(
		mshORU,
		"PID|1||MRN12345|123456789|Doe^Jane||19800515|F",
		"ORC|RE|77",
		obrSeg("77", "85025", "CBC", "20240115093000", "20240116", "F"),
		obxSeg("NM", "718-7", "Hemoglobin", "13.5", "g/dL", "12.0-17.5", "", "F"),
	)
	if err := f.proc.Process(context.Background(), msg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(f.results.reports) != 1 {
		t.Fatalf("expected 1 report, got %d", len(f.results.reports))
	}
	rep := f.results.reports[0]
	if rep.OrderID != 77 || rep.OrderSeq != 1 {
		t.Errorf("report order binding = (%d, %d), want (77, 1)", rep.OrderID, rep.OrderSeq)
	}
	if rep.DateCollected != "2024-01-15 09:30:00" {
		t.Errorf("date collected = %q", rep.DateCollected)
	}
	if rep.DateReport != "2024-01-16" {
		t.Errorf("date report = %q", rep.DateReport)
	}
	if rep.Status != "final" {
		t.Errorf("status = %q, want final", rep.Status)
	}

	if len(f.results.results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(f.results.results))
	}
	res := f.results.results[0]
	if res.ReportID != rep.ID {
		t.Errorf("result references report %s, want %s", res.ReportID, rep.ID)
	}
	if res.DataType != "N" || res.Value != "13.5" {
		t.Errorf("result = type %q value %q", res.DataType, res.Value)
	}
	if res.Code != "718-7" || res.Text != "Hemoglobin" {
		t.Errorf("result code = %q / %q", res.Code, res.Text)
	}
	if res.Units != "g/dL" || res.Range != "12.0-17.5" {
		t.Errorf("units/range = %q / %q", res.Units, res.Range)
	}
	if res.Abnormal != "normal" {
		t.Errorf("abnormal = %q, want normal", res.Abnormal)
	}
	if res.Status != "final" {
		t.Errorf("result status = %q, want final", res.Status)
	}
	if res.Date != "2024-01-15 10:30:00" {
		t.Errorf("result date = %q", res.Date)
	}
	if res.Facility != "Main Lab" {
		t.Errorf("facility = %q", res.Facility)
	}
}

func TestProcess_RepeatedCodeWrapsAround(t *testing.T) {
	f := newFixture()
	f.addOrder(5, 0)
	f.addLine(5, 1, "X", "Test X")
	f.addLine(5, 2, "X", "Test X")

	msg := message(
		mshORU,
		"PID|1||MRN1",
		"ORC|RE|5",
		obrSeg("5", "X", "Test X", "20240115", "20240116", "F"),
		obrSeg("5", "X", "Test X", "20240115", "20240116", "F"),
		obrSeg("5", "X", "Test X", "20240115", "20240116", "F"),
	)
	if err := f.proc.Process(context.Background(), msg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(f.results.reports) != 3 {
		t.Fatalf("expected 3 reports, got %d", len(f.results.reports))
	}
	want := []int64{1, 2, 1} // third repeat wraps to the smallest sequence
	for i, rep := range f.results.reports {
		if rep.OrderSeq != want[i] {
			t.Errorf("report %d matched seq %d, want %d", i, rep.OrderSeq, want[i])
		}
	}
}

func TestProcess_NewOrderResetsSequenceTracking(t *testing.T) {
	f := newFixture()
	f.addOrder(5, 0)
	f.addLine(5, 1, "X", "Test X")
	f.addLine(5, 2, "X", "Test X")
	f.addOrder(6, 0)
	f.addLine(6, 1, "X", "Test X")
	f.addLine(6, 2, "X", "Test X")

	// Two orders in one message, both carrying code X. The second order's
	// first result must match its seq 1 line; stale tracking from order 5
	// would skip it to seq 2.
	msg := message(
		mshORU,
		"PID|1||MRN1",
		"ORC|RE|5",
		obrSeg("5", "X", "Test X", "20240115", "20240116", "F"),
		"ORC|RE|6",
		obrSeg("6", "X", "Test X", "20240115", "20240116", "F"),
	)
	if err := f.proc.Process(context.Background(), msg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(f.results.reports) != 2 {
		t.Fatalf("expected 2 reports, got %d", len(f.results.reports))
	}
	first, second := f.results.reports[0], f.results.reports[1]
	if first.OrderID != 5 || first.OrderSeq != 1 {
		t.Errorf("first report bound to order %d seq %d, want 5/1", first.OrderID, first.OrderSeq)
	}
	if second.OrderID != 6 || second.OrderSeq != 1 {
		t.Errorf("second report bound to order %d seq %d, want 6/1", second.OrderID, second.OrderSeq)
	}
}

func TestProcess_AdHocLineItem(t *testing.T) {
	f := newFixture()
	f.addOrder(5, 0)
	f.addLine(5, 1, "85025", "CBC")

	msg := message(
		mshORU,
		"PID|1||MRN1",
		"ORC|RE|5",
		obrSeg("5", "83036", "Hemoglobin A1c", "20240115", "20240116", "F"),
	)
	if err := f.proc.Process(context.Background(), msg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var added *orders.LineItem
	for _, li := range f.orders.lines {
		if li.Code == "83036" {
			added = li
		}
	}
	if added == nil {
		t.Fatal("expected an ad-hoc line item to be created")
	}
	if added.Source != orders.SourceReceived {
		t.Errorf("source = %q, want %q", added.Source, orders.SourceReceived)
	}
	if added.Seq != 2 {
		t.Errorf("seq = %d, want 2", added.Seq)
	}
	if added.Name != "Hemoglobin A1c" {
		t.Errorf("name = %q", added.Name)
	}
	if len(f.results.reports) != 1 || f.results.reports[0].OrderSeq != 2 {
		t.Errorf("report not bound to the new line: %+v", f.results.reports)
	}
}

func TestProcess_LongTextValue(t *testing.T) {
	f := newFixture()
	f.addOrder(5, 0)
	f.addLine(5, 1, "X", "Test X")

	long := strings.Repeat("a", 201)
	msg := message(
		mshORU,
		"PID|1||MRN1",
		"ORC|RE|5",
		obrSeg("5", "X", "Test X", "20240115", "20240116", "F"),
		obxSeg("TX", "C1", "Culture", long, "", "", "", "F"),
	)
	if err := f.proc.Process(context.Background(), msg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	res := f.results.results[0]
	if res.DataType != results.DataTypeLongText {
		t.Errorf("data type = %q, want L", res.DataType)
	}
	if res.Value != "" {
		t.Errorf("value should be empty, got %q", res.Value)
	}
	if res.Comments != long+"\n" {
		t.Errorf("comments should hold the full text as the first line")
	}
}

func TestProcess_ExactThresholdStaysInline(t *testing.T) {
	f := newFixture()
	f.addOrder(5, 0)
	f.addLine(5, 1, "X", "Test X")

	exact := strings.Repeat("a", 200)
	msg := message(
		mshORU,
		"PID|1||MRN1",
		"ORC|RE|5",
		obrSeg("5", "X", "Test X", "20240115", "20240116", "F"),
		obxSeg("TX", "C1", "Culture", exact, "", "", "", "F"),
	)
	if err := f.proc.Process(context.Background(), msg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	res := f.results.results[0]
	if res.DataType != "T" {
		t.Errorf("data type = %q, want T", res.DataType)
	}
	if res.Value != exact {
		t.Errorf("value should keep the full 200-character text")
	}
}

func TestProcess_NoteContexts(t *testing.T) {
	f := newFixture()
	f.addOrder(5, 0)
	f.addLine(5, 1, "X", "Test X")

	msg := message(
		mshORU,
		"PID|1||MRN1",
		"ORC|RE|5",
		"NTE|1||order level note", // reserved, ignored
		obrSeg("5", "X", "Test X", "20240115", "20240116", "F"),
		"NTE|1||report note one",
		"NTE|2||report note two",
		obxSeg("NM", "718-7", "Hemoglobin", "13.5", "g/dL", "", "", "F"),
		"NTE|1||result note",
	)
	if err := f.proc.Process(context.Background(), msg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	rep := f.results.reports[0]
	if rep.Notes != "report note one\nreport note two\n" {
		t.Errorf("report notes = %q", rep.Notes)
	}
	res := f.results.results[0]
	if !strings.Contains(res.Comments, "result note\n") {
		t.Errorf("result comments = %q", res.Comments)
	}
}

func TestProcess_ReportWithNoResults(t *testing.T) {
	f := newFixture()
	f.addOrder(5, 0)
	f.addLine(5, 1, "X", "Test X")

	msg := message(
		mshORU,
		"PID|1||MRN1",
		"ORC|RE|5",
		obrSeg("5", "X", "Test X", "20240115", "20240116", "P"),
		"NTE|1||specimen lost",
	)
	if err := f.proc.Process(context.Background(), msg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(f.results.reports) != 1 {
		t.Fatalf("expected the empty report to be persisted, got %d", len(f.results.reports))
	}
	if len(f.results.results) != 0 {
		t.Errorf("expected no results, got %d", len(f.results.results))
	}
	if f.results.reports[0].Status != "preliminary" {
		t.Errorf("status = %q", f.results.reports[0].Status)
	}
}

func TestProcess_UnknownSegmentAborts(t *testing.T) {
	f := newFixture()
	f.addOrder(5, 0)
	f.addLine(5, 1, "X", "Test X")

	msg := message(
		mshORU,
		"PID|1||MRN1",
		"ORC|RE|5",
		obrSeg("5", "X", "Test X", "20240115", "20240116", "F"),
		obxSeg("NM", "718-7", "Hemoglobin", "13.5", "g/dL", "", "", "F"),
		"QRD|misplaced",
		obxSeg("NM", "4544-3", "Hematocrit", "40.1", "%", "", "", "F"),
	)
	err := f.proc.Process(context.Background(), msg)
	if !errors.Is(err, ErrUnknownSegment) {
		t.Fatalf("expected ErrUnknownSegment, got %v", err)
	}

	// The report was flushed when the first OBX needed its identifier and
	// stays persisted; the in-flight result and later segments do not.
	if len(f.results.reports) != 1 {
		t.Errorf("expected 1 persisted report, got %d", len(f.results.reports))
	}
	if len(f.results.results) != 0 {
		t.Errorf("expected no persisted results after abort, got %d", len(f.results.results))
	}
}

func TestProcess_RejectsWrongMessageType(t *testing.T) {
	f := newFixture()
	msg := "MSH|^~\\&|App|Fac|App2|Fac2|20240116||ADT^A01|MSG002|P|2.3"
	err := f.proc.Process(context.Background(), msg)
	if !errors.Is(err, ErrUnsupportedMessageType) {
		t.Errorf("expected ErrUnsupportedMessageType, got %v", err)
	}
}

func TestProcess_RejectsNonMSHStart(t *testing.T) {
	f := newFixture()
	err := f.proc.Process(context.Background(), "PID|1||MRN1")
	if !errors.Is(err, ErrMalformedHeader) {
		t.Errorf("expected ErrMalformedHeader, got %v", err)
	}
}

func TestProcess_OrderNotFound(t *testing.T) {
	f := newFixture()
	msg := message(
		mshORU,
		"PID|1||MRN1",
		"ORC|RE|404",
		obrSeg("404", "X", "Test X", "20240115", "20240116", "F"),
	)
	err := f.proc.Process(context.Background(), msg)
	if !errors.Is(err, ErrOrderNotFound) {
		t.Errorf("expected ErrOrderNotFound, got %v", err)
	}
}

func TestProcess_EncounterMismatch(t *testing.T) {
	f := newFixture()
	f.addOrder(5, 42)
	f.addLine(5, 1, "X", "Test X")

	pv1 := make([]string, 20)
	pv1[0] = "PV1"
	pv1[1] = "1"
	pv1[19] = "99^visit"

	msg := message(
		mshORU,
		"PID|1||MRN1",
		strings.Join(pv1, "|"),
		"ORC|RE|5",
		obrSeg("5", "X", "Test X", "20240115", "20240116", "F"),
	)
	err := f.proc.Process(context.Background(), msg)
	if !errors.Is(err, ErrEncounterMismatch) {
		t.Errorf("expected ErrEncounterMismatch, got %v", err)
	}
}

func TestProcess_MatchingEncounterAccepted(t *testing.T) {
	f := newFixture()
	f.addOrder(5, 42)
	f.addLine(5, 1, "X", "Test X")

	pv1 := make([]string, 20)
	pv1[0] = "PV1"
	pv1[1] = "1"
	pv1[19] = "42^visit"

	msg := message(
		mshORU,
		"PID|1||MRN1",
		strings.Join(pv1, "|"),
		"ORC|RE|5",
		obrSeg("5", "X", "Test X", "20240115", "20240116", "F"),
	)
	if err := f.proc.Process(context.Background(), msg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestProcess_CategoryNotConfigured(t *testing.T) {
	f := newFixture()
	f.docs.categories = map[string]int64{}
	err := f.proc.Process(context.Background(), mshORU)
	if !errors.Is(err, ErrCategoryNotConfigured) {
		t.Errorf("expected ErrCategoryNotConfigured, got %v", err)
	}
}

func TestProcess_EmbeddedDocument(t *testing.T) {
	f := newFixture()
	patientID := f.addOrder(5, 0)
	f.addLine(5, 1, "X", "Test X")

	obx := make([]string, 16)
	obx[0] = "OBX"
	obx[1] = "1"
	obx[2] = "ED"
	obx[3] = "RPT^Report"
	obx[5] = "PDF^^^Base64^aGVsbG8="
	obx[11] = "F"

	msg := message(
		mshORU,
		"PID|1||MRN1",
		"ORC|RE|5",
		obrSeg("5", "X", "Test X", "20240115", "20240116", "F"),
		strings.Join(obx, "|"),
	)
	if err := f.proc.Process(context.Background(), msg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(f.docs.docs) != 1 {
		t.Fatalf("expected 1 stored document, got %d", len(f.docs.docs))
	}
	doc := f.docs.docs[0]
	if doc.patientID != patientID {
		t.Errorf("document patient = %s, want %s", doc.patientID, patientID)
	}
	if doc.categoryID != 7 {
		t.Errorf("category id = %d, want 7", doc.categoryID)
	}
	if doc.filename != "20240116_093000.pdf" {
		t.Errorf("filename = %q", doc.filename)
	}
	if doc.mimeType != "application/pdf" {
		t.Errorf("mime type = %q", doc.mimeType)
	}
	if string(doc.data) != "hello" {
		t.Errorf("payload = %q", doc.data)
	}

	res := f.results.results[0]
	if res.DataType != results.DataTypeEmbedded {
		t.Errorf("data type = %q, want E", res.DataType)
	}
	if res.DocumentID == nil || *res.DocumentID != doc.id {
		t.Errorf("result does not reference the stored document")
	}
	if res.Value != "" {
		t.Errorf("embedded result should carry no plain value, got %q", res.Value)
	}
}

func TestProcess_EmbeddedDocumentBadEncoding(t *testing.T) {
	f := newFixture()
	f.addOrder(5, 0)
	f.addLine(5, 1, "X", "Test X")

	obx := make([]string, 16)
	obx[0] = "OBX"
	obx[1] = "1"
	obx[2] = "ED"
	obx[3] = "RPT^Report"
	obx[5] = "PDF^^^GZip^data"

	msg := message(
		mshORU,
		"PID|1||MRN1",
		"ORC|RE|5",
		obrSeg("5", "X", "Test X", "20240115", "20240116", "F"),
		strings.Join(obx, "|"),
	)
	err := f.proc.Process(context.Background(), msg)
	if !errors.Is(err, ErrInvalidEncoding) {
		t.Fatalf("expected ErrInvalidEncoding, got %v", err)
	}
	if len(f.results.results) != 0 {
		t.Errorf("failed result must not be persisted")
	}
}

func TestProcess_DocumentStoreFailure(t *testing.T) {
	f := newFixture()
	f.addOrder(5, 0)
	f.addLine(5, 1, "X", "Test X")
	f.docs.createErr = errors.New("disk full")

	msg := message(
		mshORU,
		"PID|1||MRN1",
		"ORC|RE|5",
		obrSeg("5", "X", "Test X", "20240115", "20240116", "F"),
		"ZEF|1|aGVsbG8=",
	)
	err := f.proc.Process(context.Background(), msg)
	if !errors.Is(err, ErrDocumentStore) {
		t.Fatalf("expected ErrDocumentStore, got %v", err)
	}
}

func TestProcess_ZEFSegment(t *testing.T) {
	f := newFixture()
	f.addOrder(5, 0)
	f.addLine(5, 1, "X", "Test X")

	msg := message(
		mshORU,
		"PID|1||MRN1",
		"ORC|RE|5",
		obrSeg("5", "X", "Test X", "20240115", "20240116", "F"),
		"ZEF|1|aGVsbG8=",
	)
	if err := f.proc.Process(context.Background(), msg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(f.docs.docs) != 1 {
		t.Fatalf("expected 1 stored document, got %d", len(f.docs.docs))
	}
	if f.docs.docs[0].mimeType != "application/pdf" {
		t.Errorf("ZEF document mime = %q", f.docs.docs[0].mimeType)
	}

	res := f.results.results[0]
	if res.DataType != results.DataTypeEmbedded {
		t.Errorf("data type = %q, want E", res.DataType)
	}
	if res.Date != "2024-01-16" {
		t.Errorf("ZEF result date = %q, want the report date", res.Date)
	}
}

func TestProcess_EscapedValueDecoded(t *testing.T) {
	f := newFixture()
	f.addOrder(5, 0)
	f.addLine(5, 1, "X", "Test X")

	msg := message(
		mshORU,
		"PID|1||MRN1",
		"ORC|RE|5",
		obrSeg("5", "X", "Test X", "20240115", "20240116", "F"),
		obxSeg("ST", "C1", "Note", `positive \T\ confirmed`, "", "", "", "F"),
	)
	if err := f.proc.Process(context.Background(), msg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := f.results.results[0].Value; got != "positive & confirmed" {
		t.Errorf("value = %q", got)
	}
}
