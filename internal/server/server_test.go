package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/wkarimi/nyumbapay/internal/config"
	"github.com/wkarimi/nyumbapay/internal/identity"
	"github.com/wkarimi/nyumbapay/internal/logging"
	"github.com/wkarimi/nyumbapay/internal/payments"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// okGateway approves every charge without talking to a real processor.
type okGateway struct{}

func (okGateway) Charge(ctx context.Context, req payments.ChargeRequest) (*payments.ChargeResult, error) {
	return &payments.ChargeResult{
		Success:    true,
		Status:     "succeeded",
		ReceiptURL: "https://receipts.test/" + req.Reference,
	}, nil
}

// okProvider verifies every identity check.
type okProvider struct{}

func (okProvider) Check(ctx context.Context, req identity.CheckRequest) (*identity.CheckResult, error) {
	return &identity.CheckResult{Verified: true, ConfidenceScore: 0.99}, nil
}

func testConfig() *config.Config {
	return &config.Config{
		Port:        "0",
		Env:         "development",
		LogLevel:    "error",
		TokenSecret:  "0123456789abcdef0123456789abcdef",
		RateLimitRPS: 1000,
	}
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	s, err := New(testConfig(),
		WithLogger(logging.NewWithWriter(io.Discard, "error", "text")),
		WithGateway(okGateway{}),
		WithIdentityProvider(okProvider{}),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func doJSON(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	return w
}

func TestHealthEndpoints(t *testing.T) {
	s := newTestServer(t)

	w := doJSON(t, s, http.MethodGet, "/health", "")
	if w.Code != http.StatusOK {
		t.Errorf("GET /health = %d, want 200", w.Code)
	}

	w = doJSON(t, s, http.MethodGet, "/health/live", "")
	if w.Code != http.StatusOK {
		t.Errorf("GET /health/live = %d, want 200", w.Code)
	}

	// Readiness flips to 200 only once Run has started.
	w = doJSON(t, s, http.MethodGet, "/health/ready", "")
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("GET /health/ready before Run = %d, want 503", w.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t)

	w := doJSON(t, s, http.MethodGet, "/metrics", "")
	if w.Code != http.StatusOK {
		t.Errorf("GET /metrics = %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), "nyumbapay_") {
		t.Errorf("metrics output missing nyumbapay namespace")
	}
}

func TestInfoEndpoint(t *testing.T) {
	s := newTestServer(t)

	w := doJSON(t, s, http.MethodGet, "/api", "")
	if w.Code != http.StatusOK {
		t.Fatalf("GET /api = %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), "NyumbaPay") {
		t.Errorf("info response missing service name")
	}
}

func TestRequestIDHeader(t *testing.T) {
	s := newTestServer(t)

	w := doJSON(t, s, http.MethodGet, "/health/live", "")
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("expected X-Request-ID response header")
	}
}

func TestSubmitPayment_EndToEnd(t *testing.T) {
	s := newTestServer(t)

	accountCreated := time.Now().Add(-365 * 24 * time.Hour).UTC().Format(time.RFC3339)
	body := `{
		"userId": "user-1",
		"amount": 500.00,
		"currency": "USD",
		"type": "booking-fee",
		"method": "card",
		"reference": "ref-e2e-000001",
		"propertyPrice": 100000.00,
		"accountCreatedAt": "` + accountCreated + `"
	}`

	w := doJSON(t, s, http.MethodPost, "/api/v1/payments", body)
	if w.Code != http.StatusOK {
		t.Fatalf("POST /api/v1/payments = %d, body %s", w.Code, w.Body.String())
	}

	var resp struct {
		Transaction struct {
			ID     string  `json:"id"`
			Status string  `json:"status"`
			Amount float64 `json:"amount"`
		} `json:"transaction"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Transaction.Status != "COMPLETED" {
		t.Errorf("status = %s, want COMPLETED", resp.Transaction.Status)
	}
	if resp.Transaction.Amount != 500.00 {
		t.Errorf("amount = %v, want 500.00", resp.Transaction.Amount)
	}

	// The same reference replays the stored result.
	w = doJSON(t, s, http.MethodPost, "/api/v1/payments", body)
	if w.Code != http.StatusOK {
		t.Fatalf("replay = %d, body %s", w.Code, w.Body.String())
	}

	// And the transaction is fetchable.
	w = doJSON(t, s, http.MethodGet, "/api/v1/payments/"+resp.Transaction.ID, "")
	if w.Code != http.StatusOK {
		t.Errorf("GET transaction = %d, want 200", w.Code)
	}
}

func TestSubmitPayment_FraudulentBlocked(t *testing.T) {
	s := newTestServer(t)

	accountCreated := time.Now().Add(-24 * time.Hour).UTC().Format(time.RFC3339)
	body := `{
		"userId": "user-2",
		"amount": 60000.00,
		"currency": "USD",
		"type": "full-payment",
		"method": "card",
		"reference": "ref-e2e-000002",
		"propertyPrice": 50000.00,
		"accountCreatedAt": "` + accountCreated + `"
	}`

	w := doJSON(t, s, http.MethodPost, "/api/v1/payments", body)
	if w.Code != http.StatusForbidden {
		t.Fatalf("POST fraudulent = %d, want 403, body %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), "FLAGGED") {
		t.Errorf("expected FLAGGED status in body: %s", w.Body.String())
	}

	// The blocked payment produced a security alert for the user.
	deadline := time.Now().Add(time.Second)
	for {
		w = doJSON(t, s, http.MethodGet, "/api/v1/alerts?userId=user-2", "")
		if w.Code != http.StatusOK {
			t.Fatalf("GET alerts = %d", w.Code)
		}
		if strings.Contains(w.Body.String(), "fraud-detected") {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("no fraud-detected alert, body %s", w.Body.String())
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestSubmitPayment_InvalidBody(t *testing.T) {
	s := newTestServer(t)

	w := doJSON(t, s, http.MethodPost, "/api/v1/payments", `{"userId":"u1"}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("POST invalid = %d, want 400", w.Code)
	}
}

func TestBehaviorCheckEndpoint(t *testing.T) {
	s := newTestServer(t)

	body := `{"userId":"user-3","actions":[{"type":"login","location":"Nairobi, KE"}]}`
	w := doJSON(t, s, http.MethodPost, "/api/v1/behavior/check", body)
	if w.Code != http.StatusOK {
		t.Fatalf("POST /api/v1/behavior/check = %d, body %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), "report") {
		t.Errorf("expected report in body: %s", w.Body.String())
	}
}

func TestAlertsEndpoint_MissingUser(t *testing.T) {
	s := newTestServer(t)

	w := doJSON(t, s, http.MethodGet, "/api/v1/alerts", "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("GET /api/v1/alerts = %d, want 400", w.Code)
	}
}
