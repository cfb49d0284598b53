package homepulse

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/golang/snappy"
)

// HTTPDoer is an interface for making HTTP requests.
// It is implemented by *http.Client and can be mocked in tests.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// StateRecord is one raw state-history record as returned by the host's
// history API. State is the raw string; non-numeric states are filtered
// before entering the data model.
type StateRecord struct {
	State       string    `json:"state"`
	LastUpdated time.Time `json:"last_updated"`
}

// HistorySource answers bounded historical-range queries for one entity.
type HistorySource interface {
	// FetchRange returns the raw state history for entityID in [start, end].
	FetchRange(ctx context.Context, entityID string, start, end time.Time) ([]StateRecord, error)
}

// HTTPHistoryClient implements HistorySource against the host's REST history
// endpoint. Requests are retried on transient failures and bounded by the
// configured timeout.
type HTTPHistoryClient struct {
	cfg     HistoryClientConfig
	client  HTTPDoer
	retryer *Retryer
}

var _ HistorySource = (*HTTPHistoryClient)(nil)

// NewHTTPHistoryClient creates a history client, patching invalid config
// fields back to their defaults.
func NewHTTPHistoryClient(cfg HistoryClientConfig) *HTTPHistoryClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	c := &HTTPHistoryClient{cfg: cfg}
	if cfg.HTTPClient != nil {
		c.client = cfg.HTTPClient
	} else {
		c.client = &http.Client{Timeout: cfg.Timeout}
	}
	c.retryer = NewRetryer(RetryConfig{
		MaxAttempts: cfg.MaxRetries,
		RetryIf:     IsRetryable,
	})
	return c
}

// FetchRange issues a history-range query for one entity. The host returns
// one record array per requested entity; only the first array is used.
func (c *HTTPHistoryClient) FetchRange(ctx context.Context, entityID string, start, end time.Time) ([]StateRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	var records []StateRecord
	err := c.retryer.Do(ctx, func(ctx context.Context) error {
		var err error
		records, err = c.fetchOnce(ctx, entityID, start, end)
		return err
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (c *HTTPHistoryClient) fetchOnce(ctx context.Context, entityID string, start, end time.Time) ([]StateRecord, error) {
	endpoint := fmt.Sprintf("%s/api/history/period/%s", c.cfg.BaseURL, url.PathEscape(start.UTC().Format(time.RFC3339)))
	q := url.Values{}
	q.Set("filter_entity_id", entityID)
	q.Set("end_time", end.UTC().Format(time.RFC3339))
	q.Set("minimal_response", "true")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return nil, newFetchError(FetchErrorTypeUnknown, "build history request", entityID, 0, err)
	}
	if c.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Accept-Encoding", "snappy")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, newFetchError(FetchErrorTypeNetwork, "history request failed", entityID, 0, err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, newFetchError(FetchErrorTypeAuth, "history request unauthorized", entityID, resp.StatusCode, nil)
	case resp.StatusCode >= 500:
		return nil, newFetchError(FetchErrorTypeServer, "history request server error", entityID, resp.StatusCode, nil)
	case resp.StatusCode != http.StatusOK:
		return nil, newFetchError(FetchErrorTypeUnknown, "history request failed", entityID, resp.StatusCode, nil)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, newFetchError(FetchErrorTypeNetwork, "read history response", entityID, resp.StatusCode, err)
	}
	if resp.Header.Get("Content-Encoding") == "snappy" {
		body, err = snappy.Decode(nil, body)
		if err != nil {
			return nil, newFetchError(FetchErrorTypeDecode, "decompress history response", entityID, resp.StatusCode, err)
		}
	}

	// The endpoint returns an array of per-entity record arrays.
	var batches [][]StateRecord
	if err := json.Unmarshal(body, &batches); err != nil {
		// Some hosts return a flat array when a single entity is requested.
		var flat []StateRecord
		if err2 := json.Unmarshal(body, &flat); err2 != nil {
			return nil, newFetchError(FetchErrorTypeDecode, "decode history response", entityID, resp.StatusCode, err)
		}
		return flat, nil
	}
	if len(batches) == 0 {
		return []StateRecord{}, nil
	}
	return batches[0], nil
}
