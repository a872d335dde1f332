// Package identity verifies the person behind a flagged payment.
//
// Verification is delegated to an out-of-process identity-check provider
// (document scan, facial match, or a two-factor challenge). Each call is a
// single attempt; attempts are recorded per transaction and capped. After a
// successful attempt the caller mints a short-lived security token bound to
// the transaction reference, which the resubmitted payment must carry.
package identity

import (
	"context"
	"errors"
	"time"
)

var (
	ErrAttemptNotFound    = errors.New("verification attempt not found")
	ErrAttemptInFlight    = errors.New("verification attempt already in progress for this transaction")
	ErrAttemptCapExceeded = errors.New("verification attempt limit reached")
	ErrUnknownMethod      = errors.New("unknown verification method")
	ErrProviderFailure    = errors.New("identity provider unavailable")
)

// Method identifies how the user proved their identity.
type Method string

const (
	MethodDocument  Method = "document"
	MethodFacial    Method = "facial"
	MethodTwoFactor Method = "two_factor"
)

// Valid reports whether m is a known verification method.
func (m Method) Valid() bool {
	switch m {
	case MethodDocument, MethodFacial, MethodTwoFactor:
		return true
	}
	return false
}

// DefaultAttemptCap is the number of verification attempts allowed per
// transaction before failure becomes final.
const DefaultAttemptCap = 3

// minVerifiedConfidence is the floor below which a provider "verified"
// result is demoted to a failure.
const minVerifiedConfidence = 0.75

// VerificationAttempt records one call to the identity provider.
type VerificationAttempt struct {
	ID              string    `json:"id"`
	TransactionID   string    `json:"transactionId"`
	Method          Method    `json:"method"`
	Verified        bool      `json:"verified"`
	ConfidenceScore float64   `json:"confidenceScore"`
	FailureReason   string    `json:"failureReason,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
}

// Store persists verification attempts.
type Store interface {
	Create(ctx context.Context, a *VerificationAttempt) error
	ListByTransaction(ctx context.Context, transactionID string) ([]*VerificationAttempt, error)
	CountByTransaction(ctx context.Context, transactionID string) (int, error)
}
