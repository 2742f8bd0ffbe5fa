package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/amishk599/feedsync/internal/model"
)

// Client talks to the feed API over HTTP JSON. It implements model.Fetcher,
// model.ScrapeClient, model.StatsProvider and model.FeatureGate.
type Client struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewClient creates a client for baseURL. A nil httpClient uses a client with
// a 30s timeout.
func NewClient(baseURL, token string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  httpClient,
	}
}

type jobsResponse struct {
	Jobs  []model.JobRecord `json:"jobs"`
	Stats model.JobStats    `json:"stats"`
}

type triggerResponse struct {
	OperationID string `json:"operationId"`
}

type statusResponse struct {
	Status string `json:"status"`
}

type featureResponse struct {
	Enabled bool `json:"enabled"`
}

// FetchJobs pulls the feed matching params.
func (c *Client) FetchJobs(ctx context.Context, params model.FetchParams) (model.FetchResult, error) {
	var resp jobsResponse
	if err := c.do(ctx, http.MethodGet, "/jobs?"+encodeParams(params), nil, &resp); err != nil {
		return model.FetchResult{}, fmt.Errorf("fetching jobs: %w", err)
	}
	return model.FetchResult{Jobs: resp.Jobs, Stats: resp.Stats}, nil
}

// TriggerScraping starts a scrape and returns its operation ID.
func (c *Client) TriggerScraping(ctx context.Context, req model.ScrapeRequest) (string, error) {
	var resp triggerResponse
	if err := c.do(ctx, http.MethodPost, "/scraping/trigger", req, &resp); err != nil {
		return "", fmt.Errorf("triggering scrape: %w", err)
	}
	if resp.OperationID == "" {
		return "", fmt.Errorf("triggering scrape: response has no operationId")
	}
	return resp.OperationID, nil
}

// GetScrapingStatus reads the status of a scrape operation.
func (c *Client) GetScrapingStatus(ctx context.Context, operationID string) (model.ScrapeStatus, error) {
	var resp statusResponse
	if err := c.do(ctx, http.MethodGet, "/scraping/status/"+url.PathEscape(operationID), nil, &resp); err != nil {
		return "", fmt.Errorf("scrape status for %s: %w", operationID, err)
	}
	status, err := model.ParseScrapeStatus(resp.Status)
	if err != nil {
		return "", fmt.Errorf("scrape status for %s: %w", operationID, err)
	}
	return status, nil
}

// GetJobStats reads the server-side feed counters.
func (c *Client) GetJobStats(ctx context.Context) (model.JobStats, error) {
	var stats model.JobStats
	if err := c.do(ctx, http.MethodGet, "/jobs/stats", nil, &stats); err != nil {
		return model.JobStats{}, fmt.Errorf("fetching job stats: %w", err)
	}
	return stats, nil
}

// CanAccessFeature asks the server whether feature is enabled for the user.
func (c *Client) CanAccessFeature(ctx context.Context, feature string) (bool, error) {
	var resp featureResponse
	if err := c.do(ctx, http.MethodGet, "/features/"+url.PathEscape(feature), nil, &resp); err != nil {
		return false, fmt.Errorf("checking feature %s: %w", feature, err)
	}
	return resp.Enabled, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &model.HTTPError{
			StatusCode: resp.StatusCode,
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
			Err:        fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))),
		}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

func encodeParams(p model.FetchParams) string {
	q := url.Values{}
	if p.Search != "" {
		q.Set("search", p.Search)
	}
	if p.Location != "" {
		q.Set("location", p.Location)
	}
	if p.DateFilter != "" {
		q.Set("dateFilter", p.DateFilter)
	}
	if p.ContactRequired {
		q.Set("contactRequired", "true")
	}
	if p.Limit > 0 {
		q.Set("limit", strconv.Itoa(p.Limit))
	}
	return q.Encode()
}

// parseRetryAfter parses the Retry-After header value into a duration.
// Supports seconds format (e.g. "120"). Returns zero if absent or unparseable.
func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}
	seconds, err := strconv.Atoi(value)
	if err != nil {
		return 0
	}
	return time.Duration(seconds) * time.Second
}
