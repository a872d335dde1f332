package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultProviderTimeout bounds one identity-check round trip. Document and
// facial checks run OCR/matching on the provider side and are slow.
const DefaultProviderTimeout = 10 * time.Second

const maxProviderResponseSize = 256 * 1024

// CheckRequest is the input to one identity check. Only the fields relevant
// to the chosen method need to be set.
type CheckRequest struct {
	TransactionID  string `json:"transactionId"`
	UserID         string `json:"userId"`
	Method         Method `json:"method"`
	DocumentType   string `json:"documentType,omitempty"`
	DocumentNumber string `json:"documentNumber,omitempty"`
	Code           string `json:"code,omitempty"` // two-factor challenge response
}

// CheckResult is the provider's verdict for one check.
type CheckResult struct {
	Verified        bool    `json:"verified"`
	ConfidenceScore float64 `json:"confidenceScore"`
	FailureReason   string  `json:"failureReason,omitempty"`
}

// Provider performs identity checks against an external service.
type Provider interface {
	Check(ctx context.Context, req CheckRequest) (*CheckResult, error)
}

// HTTPProvider calls a remote identity-check API over HTTPS.
type HTTPProvider struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewHTTPProvider creates a provider client for the given endpoint.
func NewHTTPProvider(baseURL, apiKey string) *HTTPProvider {
	return &HTTPProvider{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: DefaultProviderTimeout},
	}
}

// Check submits one verification request and returns the provider's verdict.
// Transport and protocol failures are returned as errors; a clean "not
// verified" verdict is not an error.
func (p *HTTPProvider) Check(ctx context.Context, req CheckRequest) (*CheckResult, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode check request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/checks", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build check request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderFailure, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxProviderResponseSize))
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrProviderFailure, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: status %d", ErrProviderFailure, resp.StatusCode)
	}

	var result CheckResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrProviderFailure, err)
	}
	if result.ConfidenceScore < 0 || result.ConfidenceScore > 1 {
		return nil, fmt.Errorf("%w: confidence %.3f out of range", ErrProviderFailure, result.ConfidenceScore)
	}
	return &result, nil
}
