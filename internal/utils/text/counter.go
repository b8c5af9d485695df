// Package text has rune-aware string helpers shared by the summarizers.
package text

import "unicode/utf8"

// CountRunes returns the number of Unicode code points in s. Summary limits
// are expressed in characters, not bytes.
func CountRunes(s string) int {
	return utf8.RuneCountInString(s)
}

// Truncate cuts s to at most n runes. It reports whether anything was cut.
func Truncate(s string, n int) (string, bool) {
	if n < 0 {
		n = 0
	}
	if utf8.RuneCountInString(s) <= n {
		return s, false
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos], true
		}
		i++
	}
	return s, false
}
