// Package upstream posts translated request bodies to the Vertex AI
// publisher endpoints, walking the region plan until one region succeeds.
package upstream

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/pysugar/vertex-nexus/internal/auth/credentials"
	"github.com/pysugar/vertex-nexus/internal/catalog"
	"github.com/pysugar/vertex-nexus/internal/logging"
	"github.com/pysugar/vertex-nexus/internal/util"
)

// Class is the failover verdict for one upstream outcome.
type Class int

const (
	ClassSuccess Class = iota
	ClassRetryable
	ClassTerminal
)

// retryableBodyMarkers are capacity-style failures some regions report with
// a 2xx-adjacent status or a generic 4xx.
var retryableBodyMarkers = []string{"capacity", "overloaded", "unavailable"}

// Classify maps an upstream HTTP status and body onto the failover verdict.
// 429/500/503 and capacity-style bodies advance to the next region; any
// other non-2xx stops the loop immediately.
func Classify(status int, body []byte) Class {
	if status >= 200 && status < 300 {
		return ClassSuccess
	}
	switch status {
	case http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusServiceUnavailable:
		return ClassRetryable
	}
	lower := strings.ToLower(string(body))
	for _, marker := range retryableBodyMarkers {
		if strings.Contains(lower, marker) {
			return ClassRetryable
		}
	}
	return ClassTerminal
}

// RegionAttempt records one region's verdict. The slice of attempts is owned
// by the dispatch that produced it and is never persisted.
type RegionAttempt struct {
	Region string
	Start  time.Time
	Class  Class
	Status int
	Err    error
}

// Error is a failed upstream call surfaced to the HTTP layer. Exhausted
// marks the all-regions-retryable case; Transport marks a pre-header
// network failure.
type Error struct {
	Status    int
	Body      string
	Region    string
	Exhausted bool
	Transport bool
}

func (e *Error) Error() string {
	if e.Transport {
		return fmt.Sprintf("upstream transport error in %s: %s", e.Region, e.Body)
	}
	return fmt.Sprintf("upstream returned %d in %s: %s", e.Status, e.Region, e.Body)
}

// HTTPStatus is the status the proxy reports for this error. Transport
// failures have no upstream status and map to 500.
func (e *Error) HTTPStatus() int {
	if e.Transport || e.Status == 0 {
		return http.StatusInternalServerError
	}
	return e.Status
}

// Client posts translated bodies to Vertex publisher endpoints.
type Client struct {
	httpClient *http.Client
	projectID  string
	creds      credentials.Source
}

// NewClient builds an upstream client for one project. The long timeout
// covers streaming responses; per-request contexts cancel earlier.
func NewClient(projectID string, creds credentials.Source) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 10 * time.Minute},
		projectID:  projectID,
		creds:      creds,
	}
}

// SetHTTPClient swaps the transport; tests script upstream behaviour with it.
func (c *Client) SetHTTPClient(hc *http.Client) {
	c.httpClient = hc
}

// publisher is the URL path segment for a provider.
func publisher(provider catalog.Provider) string {
	if provider == catalog.ProviderAnthropic {
		return "anthropic"
	}
	return "google"
}

// action is the model method segment for a provider and mode.
func action(provider catalog.Provider, stream bool) string {
	switch provider {
	case catalog.ProviderAnthropic:
		if stream {
			return "streamRawPredict"
		}
		return "rawPredict"
	case catalog.ProviderImagen:
		return "predict"
	default:
		if stream {
			return "streamGenerateContent"
		}
		return "generateContent"
	}
}

// BuildURL constructs the publisher endpoint for one region. The global
// pseudo-region rides on the region-less host; Gemini streaming asks for
// SSE framing explicitly.
func BuildURL(region, project string, provider catalog.Provider, model string, stream bool) string {
	host := region + "-aiplatform.googleapis.com"
	if region == "global" {
		host = "aiplatform.googleapis.com"
	}
	url := fmt.Sprintf("https://%s/v1/projects/%s/locations/%s/publishers/%s/models/%s:%s",
		host, project, region, publisher(provider), model, action(provider, stream))
	if provider == catalog.ProviderGoogle && stream {
		url += "?alt=sse"
	}
	return url
}

// DoRegion posts the body to a single region. A fresh token is acquired per
// call; the core never caches credentials.
func (c *Client) DoRegion(ctx context.Context, region string, provider catalog.Provider, model string, stream bool, body []byte) (*http.Response, error) {
	token, err := c.creds.Token(ctx)
	if err != nil {
		return nil, err
	}

	url := BuildURL(region, c.projectID, provider, model, stream)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build upstream request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	if logging.IsVerbose() {
		log.Printf("[VERBOSE] 📤 [%s] POST %s body=%s", logging.GetRequestID(ctx), url, util.TruncateBytes(body))
	}
	return c.httpClient.Do(req)
}

// Do walks the region plan in order. It returns the successful response with
// its body unread, the attempt record, and an error when every region was
// retryable (Exhausted) or a region answered with a terminal status.
func (c *Client) Do(ctx context.Context, plan []string, provider catalog.Provider, model string, stream bool, body []byte) (*http.Response, []RegionAttempt, error) {
	requestID := logging.GetRequestID(ctx)
	attempts := make([]RegionAttempt, 0, len(plan))
	var lastErr *Error

	for _, region := range plan {
		// Honour cancellation between regions: a timed-out or abandoned
		// request must not start another attempt.
		if err := ctx.Err(); err != nil {
			return nil, attempts, err
		}

		attempt := RegionAttempt{Region: region, Start: time.Now()}
		resp, err := c.DoRegion(ctx, region, provider, model, stream, body)
		if err != nil {
			var authErr *credentials.AuthError
			if errors.As(err, &authErr) {
				return nil, attempts, err
			}
			if ctx.Err() != nil {
				return nil, attempts, ctx.Err()
			}
			attempt.Class = ClassRetryable
			attempt.Err = err
			attempts = append(attempts, attempt)
			lastErr = &Error{Region: region, Body: err.Error(), Transport: true}
			log.Printf("⚠️ [%s] Region %s transport error: %v", requestID, region, err)
			continue
		}

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			attempt.Class = ClassSuccess
			attempt.Status = resp.StatusCode
			attempts = append(attempts, attempt)
			if len(attempts) > 1 {
				log.Printf("✅ [%s] Region %s succeeded after %d failed attempt(s)", requestID, region, len(attempts)-1)
			}
			return resp, attempts, nil
		}

		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		resp.Body.Close()

		attempt.Status = resp.StatusCode
		attempt.Class = Classify(resp.StatusCode, errBody)
		attempts = append(attempts, attempt)

		if attempt.Class == ClassTerminal {
			log.Printf("❌ [%s] Region %s returned terminal %d: %s", requestID, region, resp.StatusCode, util.TruncateBytes(errBody))
			return nil, attempts, &Error{Status: resp.StatusCode, Body: string(errBody), Region: region}
		}

		lastErr = &Error{Status: resp.StatusCode, Body: string(errBody), Region: region}
		log.Printf("🔄 [%s] Region %s returned %d, trying next region", requestID, region, resp.StatusCode)
	}

	if lastErr == nil {
		return nil, attempts, &Error{Body: "no regions to try", Transport: true, Exhausted: true}
	}
	lastErr.Exhausted = true
	log.Printf("❌ [%s] All %d region(s) exhausted, last error from %s", requestID, len(plan), lastErr.Region)
	return nil, attempts, lastErr
}
