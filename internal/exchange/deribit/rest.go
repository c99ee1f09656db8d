package deribit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"net/url"
	"time"
)

// apiError represents an HTTP-level error from the Deribit REST API.
type apiError struct {
	StatusCode int
	Body       []byte
}

func (e *apiError) Error() string {
	return fmt.Sprintf("deribit api error %d: %s", e.StatusCode, http.StatusText(e.StatusCode))
}

// isRetryable returns true if the error should trigger a retry.
func (e *apiError) isRetryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == 429
}

// restClient is a thin client for the Deribit public REST API.
type restClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger

	maxRetries   int
	retryBackoff time.Duration
}

func newRESTClient(baseURL string, timeout time.Duration, maxRetries int, logger *slog.Logger) *restClient {
	return &restClient{
		baseURL:      baseURL,
		httpClient:   &http.Client{Timeout: timeout},
		logger:       logger,
		maxRetries:   maxRetries,
		retryBackoff: time.Second,
	}
}

func (c *restClient) doRequest(ctx context.Context, path string, query url.Values) ([]byte, error) {
	fullURL := c.baseURL + path
	if len(query) > 0 {
		fullURL += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return nil, &apiError{StatusCode: resp.StatusCode, Body: body}
	}

	return body, nil
}

// doWithRetry performs a request with jittered exponential backoff.
func (c *restClient) doWithRetry(ctx context.Context, path string, query url.Values) ([]byte, error) {
	var lastErr error
	backoff := c.retryBackoff

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			// Add jitter: backoff * (0.5 to 1.5)
			jitter := backoff/2 + time.Duration(rand.Int63n(int64(backoff)))
			c.logger.Debug("retrying request",
				"attempt", attempt,
				"backoff", jitter,
				"path", path,
			)

			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(jitter):
			}

			backoff *= 2
		}

		body, err := c.doRequest(ctx, path, query)
		if err == nil {
			return body, nil
		}

		lastErr = err

		apiErr, ok := err.(*apiError)
		if !ok || !apiErr.isRetryable() {
			return nil, err
		}
	}

	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

func (c *restClient) get(ctx context.Context, path string, query url.Values, result any) error {
	body, err := c.doWithRetry(ctx, path, query)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, result); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	return nil
}

// getInstruments fetches the non-expired option chain for a currency.
func (c *restClient) getInstruments(ctx context.Context, currency string) ([]instrumentWire, error) {
	query := url.Values{}
	query.Set("currency", currency)
	query.Set("kind", "option")
	query.Set("expired", "false")

	var resp struct {
		Result []instrumentWire `json:"result"`
	}
	if err := c.get(ctx, "/public/get_instruments", query, &resp); err != nil {
		return nil, err
	}
	return resp.Result, nil
}

// getTicker fetches the current ticker for one instrument.
func (c *restClient) getTicker(ctx context.Context, instrumentName string) (tickerData, error) {
	query := url.Values{}
	query.Set("instrument_name", instrumentName)

	var resp struct {
		Result tickerData `json:"result"`
	}
	if err := c.get(ctx, "/public/ticker", query, &resp); err != nil {
		return tickerData{}, err
	}
	return resp.Result, nil
}
