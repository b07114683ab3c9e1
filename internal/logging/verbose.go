package logging

import (
	"os"
	"strings"
)

// IsVerbose checks if the VERTEX_PROXY_VERBOSE environment variable is set.
// Accepts: "1", "true", "yes" (case-insensitive)
func IsVerbose() bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv("VERTEX_PROXY_VERBOSE")))
	return v == "1" || v == "true" || v == "yes"
}
