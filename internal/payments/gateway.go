package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/wkarimi/nyumbapay/internal/retry"
)

// DefaultGatewayTimeout bounds one gateway round trip.
const DefaultGatewayTimeout = 15 * time.Second

const maxGatewayResponseSize = 512 * 1024

// ErrGatewayUnavailable wraps transport-level gateway failures. These are
// retryable with the same reference; the idempotency key makes the retry
// safe.
var ErrGatewayUnavailable = errors.New("payment gateway unavailable")

// Location is the coarse geolocation attached to a charge.
type Location struct {
	City    string `json:"city"`
	Country string `json:"country"`
}

// ChargeRequest is everything the gateway needs to process one attempt.
type ChargeRequest struct {
	Reference   string    `json:"reference"`
	AmountCents int64     `json:"amountCents"`
	Currency    string    `json:"currency"`
	Method      Method    `json:"method"`
	Provider    string    `json:"provider,omitempty"`
	DeviceID    string    `json:"deviceId"`
	IPAddress   string    `json:"ipAddress"`
	UserAgent   string    `json:"userAgent"`
	Location    *Location `json:"location,omitempty"`

	// Set only on resubmission after identity verification.
	SecurityToken      string `json:"securityToken,omitempty"`
	VerificationMethod string `json:"verificationMethod,omitempty"`
}

// SecurityChecks is the gateway's own fraud screening verdict.
type SecurityChecks struct {
	Passed               bool   `json:"passed"`
	VerificationRequired bool   `json:"verificationRequired,omitempty"`
	RiskLevel            string `json:"riskLevel,omitempty"`
	FraudDetected        bool   `json:"fraudDetected,omitempty"`
}

// ChargeResult is the gateway's answer for one charge. A clean decline is
// Success=false with no error; errors are reserved for not getting an
// answer at all.
type ChargeResult struct {
	Success        bool           `json:"success"`
	Status         string         `json:"status"`
	ReceiptURL     string         `json:"receiptUrl,omitempty"`
	FailureReason  string         `json:"failureReason,omitempty"`
	SecurityChecks SecurityChecks `json:"securityChecks"`
}

// Gateway processes charges. Implementations must be idempotent on
// Reference: charging the same reference twice must not double-charge.
type Gateway interface {
	Charge(ctx context.Context, req ChargeRequest) (*ChargeResult, error)
}

// HTTPGateway talks to a remote payment gateway over its JSON API.
type HTTPGateway struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewHTTPGateway creates a gateway client for the given endpoint.
func NewHTTPGateway(baseURL, apiKey string) *HTTPGateway {
	return &HTTPGateway{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: DefaultGatewayTimeout},
	}
}

// Charge submits one charge. The reference is passed as an Idempotency-Key
// header so the remote side can collapse retries.
func (g *HTTPGateway) Charge(ctx context.Context, req ChargeRequest) (*ChargeResult, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("encode charge request: %w", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/v1/charges", bytes.NewReader(body))
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("build charge request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+g.apiKey)
	httpReq.Header.Set("Idempotency-Key", req.Reference)

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxGatewayResponseSize))
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrGatewayUnavailable, err)
	}

	switch {
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: status %d", ErrGatewayUnavailable, resp.StatusCode)
	case resp.StatusCode >= 400:
		// The gateway understood us and said no. Retrying won't change
		// its mind.
		return nil, retry.Permanent(fmt.Errorf("gateway rejected charge: status %d", resp.StatusCode))
	}

	var result ChargeResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, retry.Permanent(fmt.Errorf("decode charge response: %w", err))
	}
	return &result, nil
}
