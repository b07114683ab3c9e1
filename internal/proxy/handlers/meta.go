package handlers

import (
	"context"

	"github.com/pysugar/vertex-nexus/internal/proxy/dispatch"
)

type metaKey struct{}

// RequestMeta is filled in by handlers as a dispatch progresses so the
// logging middleware can complete the history record afterwards.
type RequestMeta struct {
	Provider      string
	ModelInput    string
	ResolvedModel string
	Region        string
	Error         string
}

// WithMeta installs a fresh RequestMeta on the context.
func WithMeta(ctx context.Context) (context.Context, *RequestMeta) {
	meta := &RequestMeta{}
	return context.WithValue(ctx, metaKey{}, meta), meta
}

// MetaFrom returns the request's meta record, or a throwaway one so handlers
// never nil-check.
func MetaFrom(ctx context.Context) *RequestMeta {
	if meta, ok := ctx.Value(metaKey{}).(*RequestMeta); ok {
		return meta
	}
	return &RequestMeta{}
}

func (m *RequestMeta) noteResult(modelInput string, result *dispatch.Result) {
	m.ModelInput = modelInput
	if result == nil {
		return
	}
	m.Provider = string(result.Provider)
	m.ResolvedModel = result.Canonical
	m.Region = result.Region
}
