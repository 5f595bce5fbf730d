package participants

import (
	"strings"
)

// FormatDate renders an 8-digit YYYYMMDD value as YYYY-MM-DD. Any other
// input reports false and is returned unchanged.
func FormatDate(s string) (string, bool) {
	if len(s) != 8 || !isDigits(s) {
		return s, false
	}
	return s[:4] + "-" + s[4:6] + "-" + s[6:], true
}

// NormalizeDate drops "-" and "/" separators so that 1990-01-15, 1990/01/15
// and 19900115 compare equal.
func NormalizeDate(s string) string {
	return dateSeparators.Replace(strings.TrimSpace(s))
}

var dateSeparators = strings.NewReplacer("-", "", "/", "")

// StripHyphens removes every hyphen from a pension number.
func StripHyphens(s string) string {
	return strings.ReplaceAll(strings.TrimSpace(s), "-", "")
}

// Hyphenate writes a pension number in the NNNN-NNNNNN form used by the event
// queue. Numbers of four digits or fewer are returned as is.
func Hyphenate(s string) string {
	s = StripHyphens(s)
	if len(s) <= 4 {
		return s
	}
	return s[:4] + "-" + s[4:]
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
