package tgui

import "strings"

// TruncRunes cuts s to at most n runes, the last one being "…" when something
// was dropped. The cut never splits a UTF-8 sequence.
func TruncRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	seen, cut := 0, 0
	for i := range s {
		if seen == n-1 {
			cut = i
		}
		if seen == n {
			return s[:cut] + "…"
		}
		seen++
	}
	return s
}

// Preview is a one-line digest of a message: whitespace runs collapse to a
// single space, then the result is cut to n runes.
func Preview(s string, n int) string {
	return TruncRunes(strings.Join(strings.Fields(s), " "), n)
}
