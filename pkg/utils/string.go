package utils

import "unicode/utf8"

// Truncate shortens s to at most maxLen characters, appending "..." when
// anything was cut. It never splits a multibyte character.
func Truncate(s string, maxLen int) string {
	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}

	n := 0
	for i := range s {
		if n == maxLen {
			return s[:i] + "..."
		}
		n++
	}
	return s
}
