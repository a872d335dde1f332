package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

// Handlers holds the handler functions for each MCP tool.
type Handlers struct {
	client *Client
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(client *Client) *Handlers {
	return &Handlers{client: client}
}

// HandleAssessTransaction submits a payment for risk assessment and processing.
func (h *Handlers) HandleAssessTransaction(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	userID := req.GetString("user_id", "")
	if userID == "" {
		return mcp.NewToolResultError("user_id is required"), nil
	}
	reference := req.GetString("reference", "")
	if reference == "" {
		return mcp.NewToolResultError("reference is required"), nil
	}
	amount := req.GetFloat("amount", 0)
	if amount <= 0 {
		return mcp.NewToolResultError("amount must be a positive number"), nil
	}

	body := map[string]any{
		"userId":    userID,
		"amount":    amount,
		"currency":  req.GetString("currency", ""),
		"type":      req.GetString("type", ""),
		"method":    req.GetString("method", ""),
		"reference": reference,
	}
	if v := req.GetString("property_id", ""); v != "" {
		body["propertyId"] = v
	}
	if v := req.GetFloat("property_price", 0); v > 0 {
		body["propertyPrice"] = v
	}
	if v := req.GetString("description", ""); v != "" {
		body["description"] = v
	}

	raw, err := h.client.SubmitPayment(ctx, body)
	if err != nil {
		// A 409 verification_required response still carries the transaction,
		// so show its state rather than a bare failure.
		if raw != nil {
			if text, ferr := formatTransaction(raw); ferr == nil {
				return mcp.NewToolResultText(fmt.Sprintf("%v\n\n%s", err, text)), nil
			}
		}
		return mcp.NewToolResultError(fmt.Sprintf("Payment submission failed: %v", err)), nil
	}

	text, err := formatTransaction(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse transaction: %v", err)), nil
	}
	return mcp.NewToolResultText(text), nil
}

// HandleGetTransaction looks up a transaction by ID.
func (h *Handlers) HandleGetTransaction(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := req.GetString("transaction_id", "")
	if id == "" {
		return mcp.NewToolResultError("transaction_id is required"), nil
	}

	raw, err := h.client.GetTransaction(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get transaction: %v", err)), nil
	}

	text, err := formatTransaction(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse transaction: %v", err)), nil
	}
	return mcp.NewToolResultText(text), nil
}

// HandleListAlerts lists a user's recent security alerts.
func (h *Handlers) HandleListAlerts(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	userID := req.GetString("user_id", "")
	if userID == "" {
		return mcp.NewToolResultError("user_id is required"), nil
	}
	limit := int(req.GetFloat("limit", 20))

	raw, err := h.client.ListAlerts(ctx, userID, limit)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list alerts: %v", err)), nil
	}

	text, err := formatAlertList(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse alerts: %v", err)), nil
	}
	return mcp.NewToolResultText(text), nil
}

func formatTransaction(raw json.RawMessage) (string, error) {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return "", err
	}
	// Responses wrap the transaction as {"transaction": {...}}.
	if tx, ok := m["transaction"].(map[string]any); ok {
		m = tx
	}
	if getString(m, "id") == "" {
		return "", fmt.Errorf("unexpected transaction response format")
	}

	var sb strings.Builder
	sb.WriteString("Transaction:\n")
	sb.WriteString(fmt.Sprintf("  ID: %s\n", getString(m, "id")))
	sb.WriteString(fmt.Sprintf("  Status: %s\n", getString(m, "status")))
	if v, ok := getFloat(m, "amount"); ok {
		sb.WriteString(fmt.Sprintf("  Amount: %.2f %s\n", v, getString(m, "currency")))
	}
	sb.WriteString(fmt.Sprintf("  Type: %s | Method: %s\n", getString(m, "type"), getString(m, "method")))
	sb.WriteString(fmt.Sprintf("  Reference: %s\n", getString(m, "reference")))
	if v := getString(m, "riskLevel"); v != "" {
		sb.WriteString(fmt.Sprintf("  Risk Level: %s\n", v))
	}
	if factors, ok := m["riskFactors"].([]any); ok && len(factors) > 0 {
		sb.WriteString("  Risk Factors:\n")
		for _, f := range factors {
			sb.WriteString(fmt.Sprintf("    - %v\n", f))
		}
	}
	if v := getString(m, "failureReason"); v != "" {
		sb.WriteString(fmt.Sprintf("  Failure Reason: %s\n", v))
	}
	if v := getString(m, "receiptUrl"); v != "" {
		sb.WriteString(fmt.Sprintf("  Receipt: %s\n", v))
	}
	return sb.String(), nil
}

func formatAlertList(raw json.RawMessage) (string, error) {
	var resp struct {
		Alerts []map[string]any `json:"alerts"`
	}
	// Try as {"alerts": [...]}
	if err := json.Unmarshal(raw, &resp); err != nil || resp.Alerts == nil {
		// Try as direct array
		if err := json.Unmarshal(raw, &resp.Alerts); err != nil {
			return "", fmt.Errorf("unexpected alerts response format")
		}
	}

	if len(resp.Alerts) == 0 {
		return "No security alerts for this user.", nil
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Found %d alert(s):\n\n", len(resp.Alerts)))
	for i, a := range resp.Alerts {
		sb.WriteString(fmt.Sprintf("%d. [%s] %s\n", i+1, getString(a, "alertType"), getString(a, "title")))
		if msg := getString(a, "message"); msg != "" {
			sb.WriteString(fmt.Sprintf("   %s\n", msg))
		}
		if ts := getString(a, "createdAt"); ts != "" {
			sb.WriteString(fmt.Sprintf("   At: %s\n", ts))
		}
	}
	return sb.String(), nil
}

// getString extracts a string value from a map, trying multiple key names.
func getString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := m[k].(string); ok {
			return v
		}
	}
	return ""
}

// getFloat extracts a numeric value from a map, trying multiple key names.
func getFloat(m map[string]any, keys ...string) (float64, bool) {
	for _, k := range keys {
		if v, ok := m[k].(float64); ok {
			return v, true
		}
	}
	return 0, false
}
