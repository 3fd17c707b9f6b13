// Package strings holds small text helpers shared by CLI output code and
// the discovery scanners.
package strings

import (
	"strings"
)

// DefaultCellMaxLen is the default width of free-text table cells.
const DefaultCellMaxLen = 60

// minTruncateLen leaves room for one character plus "...".
const minTruncateLen = 4

// Truncate flattens s to a single line (any run of whitespace becomes one
// space) and shortens it to at most maxLen runes, ending in "..." when cut.
// maxLen values below 4 are raised to 4.
func Truncate(s string, maxLen int) string {
	if maxLen < minTruncateLen {
		maxLen = minTruncateLen
	}

	s = strings.Join(strings.Fields(s), " ")

	runes := []rune(s)
	if len(runes) > maxLen {
		return string(runes[:maxLen-3]) + "..."
	}
	return s
}
