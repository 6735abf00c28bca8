package whoop

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/smallbiznis/valora-sleep/internal/domain"
	domainsleep "github.com/smallbiznis/valora-sleep/internal/domain/sleep"
)

// DefaultBaseURL is the provider's developer API root.
const DefaultBaseURL = "https://api.prod.whoop.com/developer/v2"

// DataClient reads sleep records with a bearer token.
type DataClient interface {
	FetchSleepRecords(ctx context.Context, accessToken string, query domainsleep.SleepQuery) (domainsleep.SleepResponsePage, error)
}

// HTTPDataClient is the net/http implementation of DataClient.
type HTTPDataClient struct {
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
}

var _ DataClient = (*HTTPDataClient)(nil)

// NewHTTPDataClient constructs the default DataClient.
func NewHTTPDataClient(baseURL string, client *http.Client, timeout time.Duration) *HTTPDataClient {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	return &HTTPDataClient{baseURL: strings.TrimRight(baseURL, "/"), httpClient: client, timeout: timeout}
}

// FetchSleepRecords loads one page of the sleep collection.
func (c *HTTPDataClient) FetchSleepRecords(ctx context.Context, accessToken string, query domainsleep.SleepQuery) (domainsleep.SleepResponsePage, error) {
	if strings.TrimSpace(accessToken) == "" {
		return domainsleep.SleepResponsePage{}, domainsleep.ErrUnauthorized
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	reqURL := c.baseURL + "/activity/sleep"
	if params := queryValues(query); len(params) > 0 {
		reqURL += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return domainsleep.SleepResponsePage{}, fmt.Errorf("build sleep request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domainsleep.SleepResponsePage{}, &domain.TransportError{Op: "fetch sleep", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return domainsleep.SleepResponsePage{}, &domain.TransportError{Op: "read sleep", Err: err}
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return domainsleep.SleepResponsePage{}, domainsleep.ErrUnauthorized
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return domainsleep.SleepResponsePage{}, &domainsleep.ProviderAPIError{
			Status:      resp.StatusCode,
			Description: errorDescription(body),
		}
	}

	var page domainsleep.SleepResponsePage
	if err := json.Unmarshal(body, &page); err != nil {
		return domainsleep.SleepResponsePage{}, &domainsleep.ProviderAPIError{
			Status:      resp.StatusCode,
			Description: fmt.Sprintf("decode sleep page: %v", err),
		}
	}
	if err := validatePage(page); err != nil {
		return domainsleep.SleepResponsePage{}, err
	}
	return page, nil
}

func queryValues(q domainsleep.SleepQuery) url.Values {
	params := url.Values{}
	if q.Limit > 0 {
		params.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Start != nil {
		params.Set("start", q.Start.UTC().Format(time.RFC3339))
	}
	if q.End != nil {
		params.Set("end", q.End.UTC().Format(time.RFC3339))
	}
	if q.PageToken != "" {
		params.Set("nextToken", q.PageToken)
	}
	return params
}

// validatePage rejects records that claim a score without carrying one.
func validatePage(page domainsleep.SleepResponsePage) error {
	for i, record := range page.Records {
		if record.ScoreState == domainsleep.ScoreStateScored && record.Score == nil {
			return &domainsleep.ProviderAPIError{
				Status:      http.StatusOK,
				Description: fmt.Sprintf("record %d (%s) is SCORED without a score", i, record.ID),
			}
		}
	}
	return nil
}

func errorDescription(body []byte) string {
	var payload struct {
		Error            string `json:"error"`
		ErrorDescription string `json:"error_description"`
		Message          string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		for _, candidate := range []string{payload.ErrorDescription, payload.Message, payload.Error} {
			if strings.TrimSpace(candidate) != "" {
				return candidate
			}
		}
	}
	text := strings.TrimSpace(string(body))
	if len(text) > 200 {
		text = text[:200]
	}
	return text
}

// IsUnauthorized reports whether err means the access token must be refreshed.
func IsUnauthorized(err error) bool {
	return errors.Is(err, domainsleep.ErrUnauthorized)
}
