package translate

import (
	"strconv"
	"unicode/utf16"
)

// Key derives the cache key for text: a rolling h*31+unit hash over the
// UTF-16 code units of text with 32-bit signed wraparound, rendered in base
// 36. It is cheap and stable, not collision resistant.
func Key(text string) string {
	var h int32
	for _, r := range text {
		if unitLen(r) == 2 {
			hi, lo := utf16.EncodeRune(r)
			h = h*31 + hi
			h = h*31 + lo
			continue
		}
		h = h*31 + r
	}
	return strconv.FormatInt(int64(h), 36)
}

// Length returns the length of text in UTF-16 code units, the unit browser
// clients use when they measure a string.
func Length(text string) int {
	n := 0
	for _, r := range text {
		n += unitLen(r)
	}
	return n
}

// truncateUnits cuts s to at most max UTF-16 code units without splitting a
// surrogate pair.
func truncateUnits(s string, max int) string {
	n := 0
	for i, r := range s {
		w := unitLen(r)
		if n+w > max {
			return s[:i]
		}
		n += w
	}
	return s
}

func unitLen(r rune) int {
	if r >= 0x10000 {
		return 2
	}
	return 1
}
