package hl7

import "strings"

// ZeroDateTime is returned for timestamps with no digits at all.
const ZeroDateTime = "0000-00-00 00:00:00"

// NormalizeDateTime converts a compact HL7 timestamp (YYYYMMDD[HHMM[SS]],
// possibly with punctuation) to "YYYY-MM-DD" or "YYYY-MM-DD HH:MM:SS".
// Non-digit characters are stripped first. Seconds default to "00" whenever
// minutes are present but seconds are not.
func NormalizeDateTime(s string) string {
	var digits strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	d := digits.String()
	if d == "" {
		return ZeroDateTime
	}
	out := substr(d, 0, 4) + "-" + substr(d, 4, 2) + "-" + substr(d, 6, 2)
	if len(d) <= 8 {
		return out
	}
	out += " " + substr(d, 8, 2) + ":" + substr(d, 10, 2) + ":"
	if len(d) > 12 {
		out += substr(d, 12, 2)
	} else {
		out += "00"
	}
	return out
}

// NormalizeDate returns only the date portion of NormalizeDateTime.
func NormalizeDate(s string) string {
	out := NormalizeDateTime(s)
	if len(out) > 10 {
		out = out[:10]
	}
	return out
}

func substr(s string, start, length int) string {
	if start >= len(s) {
		return ""
	}
	end := start + length
	if end > len(s) {
		end = len(s)
	}
	return s[start:end]
}
