package fingerprint

import (
	"strconv"
	"unicode/utf16"
)

// Hash folds s into a 32-bit polynomial rolling hash (h = h*31 + c over the
// UTF-16 code units of s, wrapping on overflow) rendered in base 36.
// Negative hashes keep their sign, e.g. "-1x3k9q".
func Hash(s string) string {
	var h int32
	for _, unit := range utf16.Encode([]rune(s)) {
		h = (h << 5) - h + int32(unit)
	}
	return strconv.FormatInt(int64(h), 36)
}
