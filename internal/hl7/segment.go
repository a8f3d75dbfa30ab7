package hl7

import "strings"

// Segment is one tokenized message segment. Field index 0 is the 3-character
// segment type tag. Segments are read-only once tokenized.
type Segment struct {
	fields []string
	delims Delimiters
}

// Type returns the segment's 3-character type tag.
func (s Segment) Type() string {
	if len(s.fields) == 0 {
		return ""
	}
	return s.fields[0]
}

// Field returns the raw field at the given index, or "" when absent.
func (s Segment) Field(i int) string {
	if i < 0 || i >= len(s.fields) {
		return ""
	}
	return s.fields[i]
}

// Component returns component j (0-based) of field i, split on the message's
// component separator.
func (s Segment) Component(i, j int) string {
	parts := strings.Split(s.Field(i), string(s.delims.Component))
	if j < 0 || j >= len(parts) {
		return ""
	}
	return parts[j]
}

// Tokenize splits raw message text into its ordered, non-empty segments, each
// split into fields on the message's field separator.
func Tokenize(raw string, delims Delimiters) []Segment {
	var segs []Segment
	for _, line := range strings.Split(raw, string(SegmentSeparator)) {
		if line == "" {
			continue
		}
		segs = append(segs, Segment{
			fields: strings.Split(line, string(delims.Field)),
			delims: delims,
		})
	}
	return segs
}
