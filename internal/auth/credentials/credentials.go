// Package credentials bridges upstream calls to Google Application Default
// Credentials. The proxy core requests a token per call and never caches;
// refresh and reuse live inside the oauth2 token source.
package credentials

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const cloudPlatformScope = "https://www.googleapis.com/auth/cloud-platform"

// Source mints bearer tokens for upstream calls.
type Source interface {
	Token(ctx context.Context) (string, error)
}

// AuthError marks credential failures so the HTTP surface can map them to a
// 500 proxy_error.
type AuthError struct {
	Err error
}

func (e *AuthError) Error() string {
	return "credential provider: " + e.Err.Error()
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// ADCSource resolves Application Default Credentials once and hands out
// fresh access tokens. A GOOGLE_ACCESS_TOKEN environment variable
// short-circuits ADC entirely (tests, air-gapped hosts).
type ADCSource struct {
	mu sync.Mutex
	ts oauth2.TokenSource
}

// NewADCSource returns an ADC-backed source. Credential discovery is lazy so
// construction never fails; the first Token call surfaces problems.
func NewADCSource() *ADCSource {
	return &ADCSource{}
}

// Token returns a bearer access token for the cloud-platform scope.
func (s *ADCSource) Token(ctx context.Context) (string, error) {
	if tok := strings.TrimSpace(os.Getenv("GOOGLE_ACCESS_TOKEN")); tok != "" {
		return tok, nil
	}

	ts, err := s.tokenSource()
	if err != nil {
		return "", &AuthError{Err: err}
	}
	tok, err := ts.Token()
	if err != nil {
		return "", &AuthError{Err: fmt.Errorf("mint access token: %w", err)}
	}
	return tok.AccessToken, nil
}

func (s *ADCSource) tokenSource() (oauth2.TokenSource, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ts != nil {
		return s.ts, nil
	}
	// The token source outlives any single request, so discovery must not
	// bind a request context.
	creds, err := google.FindDefaultCredentials(context.Background(), cloudPlatformScope)
	if err != nil {
		return nil, fmt.Errorf("application default credentials: %w", err)
	}
	s.ts = creds.TokenSource
	return s.ts, nil
}

// StaticSource returns a fixed token. Used by tests and the discovery probe
// when a token is supplied directly.
type StaticSource string

func (s StaticSource) Token(context.Context) (string, error) {
	return string(s), nil
}

// MaskToken keeps only the first and last four characters for log lines.
func MaskToken(tok string) string {
	if len(tok) <= 12 {
		return "****"
	}
	return tok[:4] + "..." + tok[len(tok)-4:]
}
