package orders

import (
	"time"

	"github.com/google/uuid"
)

// Line item source tags. Lines added while receiving results were not part of
// the original order (physician add-on or lab reflex).
const (
	SourceOrdered  = "ordered"
	SourceReceived = "received"
)

// Order maps to the procedure_order table. Orders are placed by the ordering
// side of the system; the results feed only reads them. The ID travels inside
// HL7 messages as the placer order number, so it is numeric rather than a UUID.
type Order struct {
	ID          int64      `db:"id" json:"id"`
	PatientID   uuid.UUID  `db:"patient_id" json:"patient_id"`
	EncounterID int64      `db:"encounter_id" json:"encounter_id,omitempty"`
	ProviderID  *uuid.UUID `db:"provider_id" json:"provider_id,omitempty"`
	Status      string     `db:"status" json:"status"`
	OrderedAt   time.Time  `db:"ordered_at" json:"ordered_at"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
}

// LineItem maps to the procedure_order_code table: one ordered procedure,
// identified within its order by a sequence number.
type LineItem struct {
	OrderID int64  `db:"order_id" json:"order_id"`
	Seq     int64  `db:"seq" json:"seq"`
	Code    string `db:"procedure_code" json:"procedure_code"`
	Name    string `db:"procedure_name" json:"procedure_name"`
	Source  string `db:"source" json:"source"`
}
