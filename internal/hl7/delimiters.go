package hl7

import (
	"fmt"
	"strings"
)

// SegmentSeparator is fixed by the standard and never read from the message.
const SegmentSeparator = '\r'

// Delimiters holds the separator characters a message declares inline in its
// MSH segment. Resolved once per message and immutable afterwards.
type Delimiters struct {
	Field      byte // MSH byte 3, typically '|'
	Component  byte // MSH byte 4, typically '^'
	Repetition byte // MSH byte 5, typically '~'
}

// ResolveDelimiters reads the separator set from the start of a raw message.
// The message must begin with the MSH tag; the field separator is the byte
// immediately after it, and the component and repetition separators are the
// first two bytes of the MSH encoding-characters field. All separators must
// be distinct from each other and from the segment separator.
func ResolveDelimiters(raw string) (Delimiters, error) {
	if !strings.HasPrefix(raw, "MSH") {
		return Delimiters{}, ErrMalformedHeader
	}
	if len(raw) < 6 {
		return Delimiters{}, fmt.Errorf("%w: header truncated", ErrMalformedHeader)
	}
	d := Delimiters{Field: raw[3], Component: raw[4], Repetition: raw[5]}
	seen := map[byte]bool{SegmentSeparator: true}
	for _, b := range []byte{d.Field, d.Component, d.Repetition} {
		if seen[b] {
			return Delimiters{}, fmt.Errorf("%w: separators are not distinct", ErrMalformedHeader)
		}
		seen[b] = true
	}
	return d, nil
}
