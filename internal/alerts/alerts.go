// Package alerts raises security alerts to users.
//
// Alert content comes from a fixed template catalog keyed by alert type.
// Emission is best-effort: alerts are persisted and handed to a notification
// sink, and a sink outage never propagates back into the payment flow that
// triggered the alert.
package alerts

import (
	"context"
	"errors"
	"time"
)

var (
	ErrAlertNotFound    = errors.New("alert not found")
	ErrUnknownAlertType = errors.New("unknown alert type")
)

// AlertType identifies which template an alert renders.
type AlertType string

const (
	TypeFraudDetected        AlertType = "fraud-detected"
	TypeSuspiciousActivity   AlertType = "suspicious-activity"
	TypeVerificationRequired AlertType = "verification-required"
	TypeUnusualLogin         AlertType = "unusual-login"
)

type template struct {
	Title   string
	Message string
}

// catalog maps alert types to their notification content. Kept as data so
// adding a type or localizing never touches control flow.
var catalog = map[AlertType]template{
	TypeFraudDetected: {
		Title:   "Suspicious Transaction Blocked",
		Message: "We blocked a payment on your account that looked fraudulent. If this was you, please contact support.",
	},
	TypeSuspiciousActivity: {
		Title:   "Unusual Account Activity",
		Message: "We noticed unusual activity on your account. Review your recent actions and update your password if anything looks unfamiliar.",
	},
	TypeVerificationRequired: {
		Title:   "Identity Verification Needed",
		Message: "For your security, this payment needs identity verification before it can continue.",
	},
	TypeUnusualLogin: {
		Title:   "New Sign-In Detected",
		Message: "Your account was accessed from a new location or device. If this wasn't you, secure your account now.",
	},
}

// SecurityAlert is an immutable record of one raised alert.
type SecurityAlert struct {
	ID        string         `json:"id"`
	UserID    string         `json:"userId"`
	Type      AlertType      `json:"alertType"`
	Title     string         `json:"title"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
}

// Store persists emitted alerts.
type Store interface {
	Create(ctx context.Context, a *SecurityAlert) error
	ListByUser(ctx context.Context, userID string, limit int) ([]*SecurityAlert, error)
}

// Sink delivers an alert to the user through some notification channel.
type Sink interface {
	Deliver(ctx context.Context, a *SecurityAlert) error
}
