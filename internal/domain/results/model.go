package results

import (
	"time"

	"github.com/google/uuid"
)

// Report maps to the procedure_report table: one OBR-level report tied to a
// specific line of a procedure order. Collection and report dates keep the
// normalized string form produced by the feed (a message may carry the
// all-zero sentinel, which is not a representable time.Time).
type Report struct {
	ID            uuid.UUID `db:"id" json:"id"`
	OrderID       int64     `db:"order_id" json:"order_id"`
	OrderSeq      int64     `db:"order_seq" json:"order_seq"`
	DateCollected string    `db:"date_collected" json:"date_collected"`
	DateReport    string    `db:"date_report" json:"date_report"`
	Status        string    `db:"status" json:"status"`
	Notes         string    `db:"notes" json:"notes"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

// Result data type tags carried in procedure_result.data_type.
const (
	DataTypeNumeric  = "N"
	DataTypeString   = "S"
	DataTypeFreeText = "F"
	DataTypeEmbedded = "E"
	DataTypeLongText = "L"
)

// Result maps to the procedure_result table: one OBX-level observation.
// Embedded-document results reference a stored Document instead of carrying a
// value.
type Result struct {
	ID         uuid.UUID  `db:"id" json:"id"`
	ReportID   uuid.UUID  `db:"report_id" json:"report_id"`
	DataType   string     `db:"data_type" json:"data_type"`
	Code       string     `db:"result_code" json:"result_code"`
	Text       string     `db:"result_text" json:"result_text"`
	Value      string     `db:"value" json:"value"`
	Units      string     `db:"units" json:"units"`
	Range      string     `db:"ref_range" json:"ref_range"`
	Abnormal   string     `db:"abnormal" json:"abnormal"`
	Status     string     `db:"status" json:"status"`
	Date       string     `db:"result_date" json:"result_date"`
	Facility   string     `db:"facility" json:"facility"`
	DocumentID *uuid.UUID `db:"document_id" json:"document_id,omitempty"`
	Comments   string     `db:"comments" json:"comments"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
}
