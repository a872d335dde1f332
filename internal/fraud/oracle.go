package fraud

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/wkarimi/nyumbapay/internal/risk"
)

// DefaultOracleTimeout is the hard budget for one oracle round-trip. The
// fallback path must stay cheap, so this is deliberately tight.
const DefaultOracleTimeout = 4 * time.Second

const maxOracleResponseSize = 1 << 20 // 1MB

// OracleClient talks to the natural-language risk-scoring oracle over HTTP.
type OracleClient struct {
	url    string
	apiKey string
	client *http.Client
}

// NewOracleClient creates an oracle client.
// Pass timeout=0 to use DefaultOracleTimeout.
func NewOracleClient(url, apiKey string, timeout time.Duration) *OracleClient {
	if timeout == 0 {
		timeout = DefaultOracleTimeout
	}
	return &OracleClient{
		url:    url,
		apiKey: apiKey,
		client: &http.Client{Timeout: timeout},
	}
}

// oracleRequest is the wire shape sent to the oracle.
type oracleRequest struct {
	Prompt string `json:"prompt"`
}

// oracleResponse is the wire shape returned by the oracle. Output carries
// free-form model text which should contain a JSON object.
type oracleResponse struct {
	Output string `json:"output"`
}

// Score sends the prompt and returns the oracle's raw text output.
func (c *OracleClient) Score(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(oracleRequest{Prompt: prompt})
	if err != nil {
		return "", fmt.Errorf("marshal oracle request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create oracle request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("oracle request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("oracle returned HTTP %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxOracleResponseSize))
	if err != nil {
		return "", fmt.Errorf("read oracle response: %w", err)
	}

	var parsed oracleResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		// Some deployments return the model text directly.
		return string(raw), nil
	}
	return parsed.Output, nil
}

// buildPrompt renders the transaction, user, and optional property facts into
// the scoring request. The demanded JSON shape mirrors risk.Assessment
// exactly; anything else is rejected and the rules fallback takes over.
func buildPrompt(tx risk.TransactionFacts, user risk.UserFacts, property *risk.PropertyFacts) string {
	var b strings.Builder

	b.WriteString("You are a payment fraud analyst for a property rental marketplace.\n")
	b.WriteString("Assess the fraud risk of this transaction.\n\n")

	fmt.Fprintf(&b, "Transaction: amount %.2f %s, type %s, method %s.\n",
		float64(tx.AmountCents)/100, tx.Currency, tx.Type, tx.Method)
	fmt.Fprintf(&b, "User: account created %s (age %d days).\n",
		user.AccountCreatedAt.Format("2006-01-02"), int(user.AccountAge().Hours()/24))
	if property != nil {
		fmt.Fprintf(&b, "Referenced property listed at %.2f %s.\n",
			float64(property.PriceCents)/100, tx.Currency)
	} else {
		b.WriteString("No property reference.\n")
	}

	b.WriteString(`
Respond with ONLY a JSON object in exactly this shape, no other text:
{"riskLevel": "low"|"medium"|"high"|"critical", "riskScore": 0-100, "riskFactors": ["..."], "isLikelyFraud": true|false, "recommendedAction": "proceed"|"review"|"block"}
Score bands: >60 critical, >40 high, >20 medium, otherwise low.
recommendedAction must be block for critical, review for high, proceed otherwise.`)

	return b.String()
}

// extractJSON returns the first balanced {...} substring of s, skipping
// braces inside JSON string literals. Models like to wrap their answer in
// prose or markdown fences; the contract only requires the object itself.
func extractJSON(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}
