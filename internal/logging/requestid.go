// Package logging provides request ID propagation, verbose-mode gating, and
// the rotating proxy log writer.
package logging

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync/atomic"
)

type contextKey string

const requestIDKey contextKey = "requestId"

var requestSeq atomic.Uint64

// GenerateRequestID creates a monotonically-unique request ID: an atomic
// sequence number plus a short random hex suffix.
func GenerateRequestID() string {
	b := make([]byte, 4)
	rand.Read(b)
	return fmt.Sprintf("req-%d-%s", requestSeq.Add(1), hex.EncodeToString(b))
}

// WithRequestID injects a request ID into the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// GetRequestID retrieves the request ID from the context.
// Returns empty string if not found.
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}
