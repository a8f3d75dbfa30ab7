package hl7

import (
	"encoding/base64"
	"fmt"
	"strconv"
)

// DecodePayload extracts encapsulated document data according to its declared
// encoding type (OBX-5.4): "Base64", "A" for escape-decoded plain text, or
// "Hex" for consecutive two-character hex pairs. A trailing odd hex nibble is
// silently dropped. Any other encoding type is an error.
func DecodePayload(enctype, src string) ([]byte, error) {
	switch enctype {
	case "Base64":
		data, err := base64.StdEncoding.DecodeString(src)
		if err != nil {
			return nil, fmt.Errorf("%w: Base64: %v", ErrInvalidEncoding, err)
		}
		return data, nil
	case "A":
		return []byte(DecodeText(src)), nil
	case "Hex":
		data := make([]byte, 0, len(src)/2)
		for i := 0; i+1 < len(src); i += 2 {
			b, err := strconv.ParseUint(src[i:i+2], 16, 8)
			if err != nil {
				return nil, fmt.Errorf("%w: Hex: %v", ErrInvalidEncoding, err)
			}
			data = append(data, byte(b))
		}
		return data, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrInvalidEncoding, enctype)
}
