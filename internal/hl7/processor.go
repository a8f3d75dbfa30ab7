package hl7

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ehr/labfeed/internal/domain/orders"
	"github.com/ehr/labfeed/internal/domain/results"
)

// MessageTypeORU is the only message type the feed accepts.
const MessageTypeORU = "ORU^R01"

// Values longer than this never fit the result value column; they move to the
// first line of the comment buffer instead, with data type L.
const longTextThreshold = 200

// commentDelim separates lines in the result comment buffer.
const commentDelim = "\n"

// parseContext tracks what kind of segment came most recently, so that
// segment types legal in more than one place (NTE) dispatch correctly.
type parseContext int

const (
	ctxNone parseContext = iota
	ctxHeader
	ctxPatient
	ctxOrder
	ctxReport
	ctxResult
)

func (c parseContext) String() string {
	switch c {
	case ctxHeader:
		return "header"
	case ctxPatient:
		return "patient"
	case ctxOrder:
		return "order-request"
	case ctxReport:
		return "report-request"
	case ctxResult:
		return "result"
	}
	return "none"
}

// Processor parses ORU^R01 messages and persists the reports and results they
// carry. Messages are processed one at a time; every store call blocks and
// the first error aborts the rest of the message. Rows flushed before the
// failure stay persisted: there is deliberately no message-level transaction,
// so callers doing batch accounting must treat a failed message as possibly
// partially applied.
type Processor struct {
	stores       Stores
	categoryName string
	log          zerolog.Logger
	now          func() time.Time
}

// NewProcessor creates a Processor. categoryName is the document category
// extracted lab documents are filed under.
func NewProcessor(stores Stores, categoryName string, log zerolog.Logger) *Processor {
	return &Processor{
		stores:       stores,
		categoryName: categoryName,
		log:          log,
		now:          time.Now,
	}
}

// Process parses one raw HL7 message and persists its contents. It returns
// the first error encountered, or nil when the whole message was applied.
func (p *Processor) Process(ctx context.Context, raw string) error {
	delims, err := ResolveDelimiters(raw)
	if err != nil {
		return err
	}

	// Embedded documents need the category up front; refuse the message
	// before touching any segment if it is missing.
	categoryID, err := p.stores.Documents.CategoryID(ctx, p.categoryName)
	if err != nil {
		return err
	}
	if categoryID == 0 {
		return fmt.Errorf("%w: %q", ErrCategoryNotConfigured, p.categoryName)
	}

	run := &messageRun{p: p, categoryID: categoryID, matcher: newLineMatcher(p.stores.Orders)}

	for _, seg := range Tokenize(raw, delims) {
		if err := run.handle(ctx, seg); err != nil {
			return err
		}
	}
	return run.finish(ctx)
}

// messageRun is the state for parsing a single message: the current context,
// the in-flight report and result buffers, and the resolved order. At most
// one report and one result buffer are open at any time, and both are cleared
// the moment they are flushed.
type messageRun struct {
	p          *Processor
	categoryID int64
	context    parseContext
	matcher    *lineMatcher

	messageID   string
	ssn         string
	dob         string
	lastName    string
	firstName   string
	encounterID int64

	orderID int64
	order   *orders.Order
	line    *orders.LineItem

	report     *results.Report
	reportID   uuid.UUID // assigned lazily at the first result of a report
	reportDate string    // survives the report flush for ZEF result dates
	result     *results.Result

	reportCount int
	resultCount int
}

func (r *messageRun) handle(ctx context.Context, seg Segment) error {
	switch seg.Type() {
	case "MSH":
		return r.handleMSH(seg)
	case "PID":
		return r.handlePID(ctx, seg)
	case "PV1":
		return r.handlePV1(seg)
	case "ORC":
		return r.handleORC(ctx, seg)
	case "OBR":
		return r.handleOBR(ctx, seg)
	case "OBX":
		return r.handleOBX(ctx, seg)
	case "ZEF":
		return r.handleZEF(ctx, seg)
	case "NTE":
		return r.handleNTE(seg)
	}
	return fmt.Errorf("%w: %q in context %s", ErrUnknownSegment, seg.Type(), r.context)
}

func (r *messageRun) handleMSH(seg Segment) error {
	r.context = ctxHeader
	if mt := seg.Field(8); mt != MessageTypeORU {
		return fmt.Errorf("%w: %q", ErrUnsupportedMessageType, mt)
	}
	r.messageID = seg.Field(9)
	r.p.log.Debug().Str("message_id", r.messageID).Msg("accepted results message")
	return nil
}

func (r *messageRun) handlePID(ctx context.Context, seg Segment) error {
	r.context = ctxPatient
	if err := r.flushResult(ctx); err != nil {
		return err
	}
	// Does something only if there was a report with no results.
	if _, err := r.flushReport(ctx); err != nil {
		return err
	}
	r.ssn = seg.Field(4)
	r.dob = seg.Field(7)
	r.lastName = seg.Component(5, 0)
	r.firstName = seg.Component(5, 1)
	r.p.log.Debug().
		Str("message_id", r.messageID).
		Str("name", r.lastName+", "+r.firstName).
		Msg("patient identification")
	return nil
}

// handlePV1 records the placer encounter number if present. It does not
// change the parsing context.
func (r *messageRun) handlePV1(seg Segment) error {
	if seg.Field(19) != "" {
		r.encounterID = parseIntField(seg.Component(19, 0))
	}
	return nil
}

func (r *messageRun) handleORC(ctx context.Context, seg Segment) error {
	r.context = ctxOrder
	if err := r.flushResult(ctx); err != nil {
		return err
	}
	if _, err := r.flushReport(ctx); err != nil {
		return err
	}
	r.order = nil
	r.line = nil
	r.matcher.reset()
	if seg.Field(2) != "" {
		r.orderID = parseIntField(seg.Field(2))
	}
	return nil
}

func (r *messageRun) handleOBR(ctx context.Context, seg Segment) error {
	r.context = ctxReport
	if err := r.flushResult(ctx); err != nil {
		return err
	}
	if _, err := r.flushReport(ctx); err != nil {
		return err
	}
	r.reportID = uuid.Nil
	if seg.Field(2) != "" {
		r.orderID = parseIntField(seg.Field(2))
	}
	code := seg.Component(4, 0)
	name := seg.Component(4, 1)

	if r.order == nil {
		order, err := r.p.stores.Orders.GetByID(ctx, r.orderID)
		if err != nil {
			return err
		}
		// The order must already exist; electronic results for manual
		// orders are not handled.
		if order == nil {
			return fmt.Errorf("%w: %d", ErrOrderNotFound, r.orderID)
		}
		if r.encounterID != 0 && order.EncounterID != r.encounterID {
			return fmt.Errorf("%w: order %d has encounter %d, message has %d",
				ErrEncounterMismatch, r.orderID, order.EncounterID, r.encounterID)
		}
		r.order = order
		r.matcher.reset()
	}

	line, err := r.matcher.match(ctx, r.orderID, code, DecodeText(name))
	if err != nil {
		return err
	}
	r.line = line

	r.report = &results.Report{
		OrderID:       r.orderID,
		OrderSeq:      line.Seq,
		DateCollected: NormalizeDateTime(seg.Field(7)),
		DateReport:    NormalizeDate(seg.Field(22)),
		Status:        ReportStatus(seg.Field(25)),
	}
	r.reportDate = r.report.DateReport
	return nil
}

func (r *messageRun) handleOBX(ctx context.Context, seg Segment) error {
	r.context = ctxResult
	if err := r.flushResult(ctx); err != nil {
		return err
	}
	if err := r.assignReportID(ctx); err != nil {
		return err
	}

	res := &results.Result{
		ReportID: r.reportID,
		DataType: substr(seg.Field(2), 0, 1), // N, S, F or E
		Comments: commentDelim,
	}

	switch {
	case seg.Field(2) == "ED":
		// Results as an embedded document: file a regular patient
		// document in the lab results category.
		fileext := strings.ToLower(seg.Component(5, 0))
		data, err := DecodePayload(seg.Component(5, 3), seg.Component(5, 4))
		if err != nil {
			return err
		}
		docID, err := r.createDocument(ctx, fileext, data)
		if err != nil {
			return err
		}
		res.DocumentID = &docID
	case len(seg.Field(5)) > longTextThreshold:
		// OBX-5 can be a very long text with "~" as line separators.
		// The first comment line is reserved for such values.
		res.DataType = results.DataTypeLongText
		res.Value = ""
		res.Comments = DecodeText(seg.Field(5)) + commentDelim
	default:
		res.Value = DecodeText(seg.Field(5))
	}

	res.Code = DecodeText(seg.Component(3, 0))
	res.Text = DecodeText(seg.Component(3, 1))
	res.Date = NormalizeDateTime(seg.Field(14))
	res.Facility = DecodeText(seg.Field(15))
	res.Units = DecodeText(seg.Field(6))
	res.Range = DecodeText(seg.Field(7))
	res.Abnormal = AbnormalFlag(seg.Field(8)) // values are lab dependent
	res.Status = ReportStatus(seg.Field(11))

	r.result = res
	return nil
}

// handleZEF treats a ZEF segment as an OBX carrying an embedded
// Base64-encoded PDF.
func (r *messageRun) handleZEF(ctx context.Context, seg Segment) error {
	r.context = ctxResult
	if err := r.flushResult(ctx); err != nil {
		return err
	}
	if err := r.assignReportID(ctx); err != nil {
		return err
	}

	data, err := DecodePayload("Base64", seg.Field(2))
	if err != nil {
		return err
	}
	docID, err := r.createDocument(ctx, "pdf", data)
	if err != nil {
		return err
	}

	r.result = &results.Result{
		ReportID:   r.reportID,
		DataType:   results.DataTypeEmbedded,
		Comments:   commentDelim,
		DocumentID: &docID,
		Date:       r.reportDate,
	}
	return nil
}

func (r *messageRun) handleNTE(seg Segment) error {
	switch r.context {
	case ctxOrder:
		// Order-level notes are accepted but not recorded anywhere.
	case ctxReport:
		r.report.Notes += DecodeText(seg.Field(3)) + "\n"
	case ctxResult:
		r.result.Comments += DecodeText(seg.Field(3)) + commentDelim
	default:
		return fmt.Errorf("%w: %q in context %s", ErrUnknownSegment, seg.Type(), r.context)
	}
	return nil
}

// assignReportID flushes the open report, if the current report has not been
// written yet, to obtain the identifier its results reference.
func (r *messageRun) assignReportID(ctx context.Context) error {
	if r.reportID != uuid.Nil {
		return nil
	}
	id, err := r.flushReport(ctx)
	if err != nil {
		return err
	}
	r.reportID = id
	return nil
}

func (r *messageRun) createDocument(ctx context.Context, fileext string, data []byte) (uuid.UUID, error) {
	filename := r.p.now().Format("20060102_150405") + "." + fileext
	var patientID uuid.UUID
	if r.order != nil {
		patientID = r.order.PatientID
	}
	docID, err := r.p.stores.Documents.CreateDocument(ctx, patientID, r.categoryID,
		filename, MimeType(fileext), data)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %v", ErrDocumentStore, err)
	}
	return docID, nil
}

// flushResult writes the open result buffer, if any, and clears it
// unconditionally. Flushing with no open buffer is a no-op.
func (r *messageRun) flushResult(ctx context.Context) error {
	if r.result == nil {
		return nil
	}
	res := r.result
	r.result = nil
	if err := r.p.stores.Results.InsertResult(ctx, res); err != nil {
		return err
	}
	r.resultCount++
	return nil
}

// flushReport writes the open report buffer, if any, and clears it
// unconditionally, returning the new report identifier. Flushing with no open
// buffer returns uuid.Nil.
func (r *messageRun) flushReport(ctx context.Context) (uuid.UUID, error) {
	if r.report == nil {
		return uuid.Nil, nil
	}
	rep := r.report
	r.report = nil
	id, err := r.p.stores.Results.InsertReport(ctx, rep)
	if err != nil {
		return uuid.Nil, err
	}
	r.reportCount++
	return id, nil
}

// finish performs the end-of-message flush of both buffers.
func (r *messageRun) finish(ctx context.Context) error {
	if err := r.flushResult(ctx); err != nil {
		return err
	}
	if _, err := r.flushReport(ctx); err != nil {
		return err
	}
	r.p.log.Info().
		Str("message_id", r.messageID).
		Int("reports", r.reportCount).
		Int("results", r.resultCount).
		Msg("results message processed")
	return nil
}

// parseIntField reads the leading integer of a field, tolerating trailing
// non-digit text the way lab systems sometimes pad order numbers.
func parseIntField(s string) int64 {
	s = strings.TrimSpace(s)
	end := 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	n, err := strconv.ParseInt(s[:end], 10, 64)
	if err != nil {
		return 0
	}
	return n
}
