package util

import "fmt"

// DefaultLogMaxLen is the default maximum length for truncated log output (1KB).
const DefaultLogMaxLen = 1024

// TruncateLog truncates long strings for verbose logging so payload dumps
// cannot swamp the rotating proxy log.
func TruncateLog(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + fmt.Sprintf("... [truncated, %d bytes total]", len(s))
}

// TruncateBytes is a convenience wrapper for TruncateLog that accepts []byte
// and uses DefaultLogMaxLen. This simplifies common logging patterns.
func TruncateBytes(b []byte) string {
	return TruncateLog(string(b), DefaultLogMaxLen)
}
