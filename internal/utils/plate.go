package utils

import "strings"

// NormalizePlate uppercases a plate reading and strips everything that is
// not a letter or digit, so OCR spacing and casing noise never causes a
// whitelist miss.
func NormalizePlate(plate string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(plate) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}
