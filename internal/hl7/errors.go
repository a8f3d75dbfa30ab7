package hl7

import "errors"

// Sentinel errors for the failure kinds a message can produce. Processing is
// fail-fast: the first error aborts the remaining segments of the message, but
// rows flushed before the failure stay persisted (no message-level transaction).
var (
	ErrMalformedHeader        = errors.New("message does not begin with an MSH segment")
	ErrUnsupportedMessageType = errors.New("unsupported message type")
	ErrOrderNotFound          = errors.New("procedure order not found")
	ErrEncounterMismatch      = errors.New("encounter does not match order")
	ErrUnknownSegment         = errors.New("segment is misplaced or unknown")
	ErrInvalidEncoding        = errors.New("invalid encapsulated data encoding type")
	ErrCategoryNotConfigured  = errors.New("document category for lab results does not exist")
	ErrDocumentStore          = errors.New("document store failure")
)
