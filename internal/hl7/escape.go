package hl7

import "strings"

// escapePairs are the HL7 v2 escape sequences substituted in field text, in
// substitution order. The \E\ -> backslash pair must stay last: running it
// earlier would let a decoded backslash combine with following text and get
// substituted a second time.
var escapePairs = [...][2]string{
	{`\S\`, "^"},
	{`\F\`, "|"},
	{`\R\`, "~"},
	{`\T\`, "&"},
	{`\X0d\`, "\r"},
	{`\E\`, `\`},
}

// DecodeText replaces HL7 escape sequences in a single field value.
func DecodeText(s string) string {
	for _, p := range escapePairs {
		s = strings.ReplaceAll(s, p[0], p[1])
	}
	return s
}
