package parser

import "strings"

// Sanitize strips bytes outside XML 1.0's legal character range so a
// malformed or truncated event payload never aborts decoding. This must
// be idempotent: Sanitize(Sanitize(x)) == Sanitize(x).
func Sanitize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if isLegalXMLChar(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// isLegalXMLChar reports whether r may appear in an XML 1.0 document,
// after also excluding the C0/C1 control ranges Get-WinEvent sometimes
// leaks into message text (U+0000-U+0008, U+000B, U+000C, U+000E-U+001F,
// U+007F-U+009F).
func isLegalXMLChar(r rune) bool {
	switch {
	case r == 0x9, r == 0xA, r == 0xD:
		return true
	case r >= 0x20 && r <= 0x7E:
		return true
	case r >= 0xA0 && r <= 0xD7FF:
		return true
	case r >= 0xE000 && r <= 0xFFFD:
		return true
	case r >= 0x10000 && r <= 0x10FFFF:
		return true
	default:
		return false
	}
}
