package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/smallbiznis/valora-sleep/internal/domain"
	domainsleep "github.com/smallbiznis/valora-sleep/internal/domain/sleep"
)

// SubmissionHeader carries the gateway's id for one outbound submission.
const SubmissionHeader = "X-Submission-ID"

// maxResponseBytes caps the analysis body; larger answers are refused, never truncated.
const maxResponseBytes = 4 << 20

// Client posts tagged payloads to the external analysis service.
type Client interface {
	Post(ctx context.Context, submissionID string, payload any) (json.RawMessage, error)
}

// HTTPClient is the net/http implementation of Client.
type HTTPClient struct {
	url        string
	httpClient *http.Client
	timeout    time.Duration
	maxBody    int64
}

var _ Client = (*HTTPClient)(nil)

// NewHTTPClient constructs the default Client.
func NewHTTPClient(url string, client *http.Client, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	return &HTTPClient{url: strings.TrimSpace(url), httpClient: client, timeout: timeout, maxBody: maxResponseBytes}
}

// Post sends payload as JSON and returns the response body verbatim.
func (c *HTTPClient) Post(ctx context.Context, submissionID string, payload any) (json.RawMessage, error) {
	if c.url == "" {
		return nil, domain.NewConfigError("ANALYSIS_API_URL")
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode analysis payload: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build analysis request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if submissionID != "" {
		req.Header.Set(SubmissionHeader, submissionID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &domain.TransportError{Op: "analysis", Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody+1))
	if err != nil {
		return nil, &domain.TransportError{Op: "analysis", Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &domainsleep.UpstreamError{Status: resp.StatusCode}
	}
	if int64(len(raw)) > c.maxBody {
		return nil, &domainsleep.UpstreamError{Status: resp.StatusCode, Reason: "response too large"}
	}
	if !json.Valid(raw) {
		return nil, &domainsleep.UpstreamError{Status: resp.StatusCode, Reason: "response is not JSON"}
	}
	return json.RawMessage(raw), nil
}
