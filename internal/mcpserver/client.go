package mcpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Config holds the connection settings for the NyumbaPay platform API.
type Config struct {
	APIURL string // base URL, e.g. "http://localhost:8080"
	APIKey string
}

// Client is a pure HTTP client for the NyumbaPay platform API.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

// NewClient creates a platform API client.
func NewClient(cfg Config) *Client {
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

type apiError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (c *Client) doRequest(ctx context.Context, method, path string, query url.Values, body any) (json.RawMessage, error) {
	u, err := url.Parse(c.cfg.APIURL + path)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if query != nil {
		u.RawQuery = query.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reqBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	// 4xx responses often carry state the model can act on (a flagged
	// transaction, verification_required, ...), so return the body alongside
	// the error and let the handler decide what to show.
	if resp.StatusCode >= 400 {
		var apiErr apiError
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Message != "" {
			return respBody, fmt.Errorf("%s: %s", apiErr.Error, apiErr.Message)
		}
		if resp.StatusCode < 500 {
			return respBody, fmt.Errorf("platform responded %d", resp.StatusCode)
		}
		return nil, fmt.Errorf("platform error (%d): %s", resp.StatusCode, string(respBody))
	}
	return respBody, nil
}

// SubmitPayment submits a payment intent for assessment and processing.
func (c *Client) SubmitPayment(ctx context.Context, body map[string]any) (json.RawMessage, error) {
	return c.doRequest(ctx, http.MethodPost, "/api/v1/payments", nil, body)
}

// GetTransaction returns one transaction by ID.
func (c *Client) GetTransaction(ctx context.Context, id string) (json.RawMessage, error) {
	return c.doRequest(ctx, http.MethodGet, "/api/v1/payments/"+url.PathEscape(id), nil, nil)
}

// ListAlerts returns a user's recent security alerts.
func (c *Client) ListAlerts(ctx context.Context, userID string, limit int) (json.RawMessage, error) {
	q := url.Values{}
	q.Set("userId", userID)
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	return c.doRequest(ctx, http.MethodGet, "/api/v1/alerts", q, nil)
}
