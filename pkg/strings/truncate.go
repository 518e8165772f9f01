package strings

import (
	"strings"
)

// DefaultCellMaxLen is the default width of free-text cells in report tables.
const DefaultCellMaxLen = 80

// MinTruncateLen is the minimum maxLen value for TruncateCell.
const MinTruncateLen = 4

// TruncateCell flattens s to a single line and shortens it to at most maxLen
// runes, ending in "..." when truncated. Error messages and workload results
// often span lines, which would break table layout.
//
// maxLen is clamped to MinTruncateLen.
func TruncateCell(s string, maxLen int) string {
	if maxLen < MinTruncateLen {
		maxLen = MinTruncateLen
	}

	s = strings.Join(strings.Fields(s), " ")

	runes := []rune(s)
	if len(runes) > maxLen {
		return string(runes[:maxLen-3]) + "..."
	}
	return s
}
