package mcpserver

import "github.com/mark3labs/mcp-go/mcp"

// Tool definitions for the NyumbaPay MCP server.
// Descriptions are what the LLM reads to decide which tool to use.

var ToolAssessTransaction = mcp.NewTool("assess_transaction",
	mcp.WithDescription(
		"Submit a rental payment to NyumbaPay for risk assessment and processing. "+
			"Returns the transaction's status (COMPLETED, FLAGGED, UNDER_REVIEW, FAILED), "+
			"its risk level, and the risk factors that fired. "+
			"Payments assessed as UNDER_REVIEW need identity verification before they can complete."),
	mcp.WithString("user_id",
		mcp.Required(),
		mcp.Description("The paying user's ID")),
	mcp.WithNumber("amount",
		mcp.Required(),
		mcp.Description("Payment amount in major currency units (e.g. 1500.00)")),
	mcp.WithString("currency",
		mcp.Required(),
		mcp.Description("3-letter ISO currency code (e.g. 'KES', 'USD')")),
	mcp.WithString("type",
		mcp.Required(),
		mcp.Description("Payment purpose"),
		mcp.Enum("full-payment", "rental-deposit", "booking-fee", "subscription")),
	mcp.WithString("method",
		mcp.Required(),
		mcp.Description("Funding method"),
		mcp.Enum("card", "bank-transfer", "mobile-money", "wallet")),
	mcp.WithString("reference",
		mcp.Required(),
		mcp.Description("Idempotency key for this payment (6-64 chars). Reuse it to check on a previous submission.")),
	mcp.WithString("property_id",
		mcp.Description("The rental listing being paid for, if any")),
	mcp.WithNumber("property_price",
		mcp.Description("The listing's price in major units, used by the risk rules")),
	mcp.WithString("description",
		mcp.Description("Free-form payment description")),
)

var ToolGetTransaction = mcp.NewTool("get_transaction",
	mcp.WithDescription(
		"Look up a NyumbaPay transaction by ID. "+
			"Returns its current status, risk level, risk factors, and receipt URL if completed."),
	mcp.WithString("transaction_id",
		mcp.Required(),
		mcp.Description("The transaction ID (e.g. 'txn_...')")),
)

var ToolListAlerts = mcp.NewTool("list_alerts",
	mcp.WithDescription(
		"List recent security alerts raised for a user: blocked fraudulent payments, "+
			"suspicious account activity, verification requests, and unusual sign-ins."),
	mcp.WithString("user_id",
		mcp.Required(),
		mcp.Description("The user whose alerts to list")),
	mcp.WithNumber("limit",
		mcp.Description("Maximum number of alerts to return (default 20)")),
)
