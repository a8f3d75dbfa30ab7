package hl7

// AbnormalFlag maps an OBX-8 abnormal flag code to a word. Codes outside the
// HL7-defined set are lab specific and pass through escape decoding unchanged.
func AbnormalFlag(code string) string {
	switch code {
	case "":
		return "normal"
	case "A":
		return "abnormal"
	case "H":
		return "high"
	case "L":
		return "low"
	case "HH":
		return "critically high"
	case "LL":
		return "critically low"
	}
	return DecodeText(code)
}

// ReportStatus maps an OBR-25 / OBX-11 status code to a word. Unknown codes
// pass through escape decoding unchanged.
func ReportStatus(code string) string {
	switch code {
	case "F":
		return "final"
	case "P":
		return "preliminary"
	case "C":
		return "corrected"
	}
	return DecodeText(code)
}

// MimeType converts a lower case file extension to a media type. The
// extension comes out of OBX-5.1, which is a convention rather than anything
// the HL7 2.3 standard pins down; expect to extend this per lab.
func MimeType(fileext string) string {
	switch fileext {
	case "pdf":
		return "application/pdf"
	case "doc":
		return "application/msword"
	case "rtf":
		return "application/rtf"
	case "txt":
		return "text/plain"
	case "zip":
		return "application/zip"
	}
	return "application/octet-stream"
}
