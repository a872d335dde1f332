// Package payments drives one payment attempt from submission to a terminal
// state.
//
// The orchestrator composes the fraud analyst, identity verifier, payment
// gateway and alert emitter around a small state machine:
//
//	INITIATED → RISK_EVALUATED → {PROCEEDING | VERIFYING | BLOCKED}
//	VERIFYING → {PROCEEDING | VERIFICATION_FAILED}
//	PROCEEDING → {COMPLETED | FAILED}
//
// CANCELLED is reachable only from RISK_EVALUATED or VERIFYING. BLOCKED,
// COMPLETED, FAILED, VERIFICATION_FAILED and CANCELLED are terminal: a
// terminal transaction is immutable and resubmitting its reference returns
// the stored result.
package payments

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/wkarimi/nyumbapay/internal/pagination"
	"github.com/wkarimi/nyumbapay/internal/risk"
)

var (
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrReferenceExists     = errors.New("reference already in use")
	ErrStatusConflict      = errors.New("transaction state changed concurrently")
	ErrInvalidTransition   = errors.New("invalid state transition")
	ErrTerminalState       = errors.New("transaction is in a terminal state")
	ErrNotVerifying        = errors.New("transaction is not awaiting verification")
	ErrInvalidToken        = errors.New("security token missing or invalid")
	ErrAttemptInFlight     = errors.New("payment attempt already in progress")
)

// State is the orchestrator's internal view of where an attempt stands.
type State string

const (
	StateInitiated          State = "INITIATED"
	StateRiskEvaluated      State = "RISK_EVALUATED"
	StateProceeding         State = "PROCEEDING"
	StateVerifying          State = "VERIFYING"
	StateBlocked            State = "BLOCKED"
	StateVerificationFailed State = "VERIFICATION_FAILED"
	StateCompleted          State = "COMPLETED"
	StateFailed             State = "FAILED"
	StateCancelled          State = "CANCELLED"
)

// Terminal reports whether the state is final for this attempt.
func (s State) Terminal() bool {
	switch s {
	case StateBlocked, StateVerificationFailed, StateCompleted, StateFailed, StateCancelled:
		return true
	}
	return false
}

// transitions is the full set of legal state changes. Anything not listed
// here is rejected before it reaches the store.
var transitions = map[State][]State{
	StateInitiated:     {StateRiskEvaluated},
	StateRiskEvaluated: {StateProceeding, StateVerifying, StateBlocked, StateCancelled},
	StateVerifying:     {StateProceeding, StateVerificationFailed, StateCancelled},
	StateProceeding:    {StateCompleted, StateFailed},
}

// CanTransition reports whether from → to is a legal state change.
func CanTransition(from, to State) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Status is the externally visible transaction status.
type Status string

const (
	StatusPending     Status = "PENDING"
	StatusCompleted   Status = "COMPLETED"
	StatusFailed      Status = "FAILED"
	StatusRefunded    Status = "REFUNDED"
	StatusCancelled   Status = "CANCELLED"
	StatusFlagged     Status = "FLAGGED"
	StatusUnderReview Status = "UNDER_REVIEW"
)

// WireStatus maps an internal state onto the status clients see.
func (s State) WireStatus() Status {
	switch s {
	case StateCompleted:
		return StatusCompleted
	case StateFailed, StateVerificationFailed:
		return StatusFailed
	case StateBlocked:
		return StatusFlagged
	case StateVerifying:
		return StatusUnderReview
	case StateCancelled:
		return StatusCancelled
	default: // INITIATED, RISK_EVALUATED, PROCEEDING
		return StatusPending
	}
}

// Type is the business purpose of a payment.
type Type string

const (
	TypeFullPayment   Type = "full-payment"
	TypeRentalDeposit Type = "rental-deposit"
	TypeBookingFee    Type = "booking-fee"
	TypeSubscription  Type = "subscription"
)

// Valid reports whether t is a known payment type.
func (t Type) Valid() bool {
	switch t {
	case TypeFullPayment, TypeRentalDeposit, TypeBookingFee, TypeSubscription:
		return true
	}
	return false
}

// Method is how the payment is funded.
type Method string

const (
	MethodCard         Method = "card"
	MethodBankTransfer Method = "bank-transfer"
	MethodMobileMoney  Method = "mobile-money"
	MethodWallet       Method = "wallet"
)

// Valid reports whether m is a known payment method.
func (m Method) Valid() bool {
	switch m {
	case MethodCard, MethodBankTransfer, MethodMobileMoney, MethodWallet:
		return true
	}
	return false
}

// canonical returns the method name the risk engine uses.
func (m Method) canonical() string {
	return strings.ReplaceAll(string(m), "-", "_")
}

// Transaction is one payment attempt. Reference is the idempotency key:
// resubmitting the same reference never starts a second attempt.
type Transaction struct {
	ID          string `json:"id"`
	UserID      string `json:"userId"`
	PropertyID  string `json:"propertyId,omitempty"`
	AmountCents int64  `json:"-"`
	Currency    string `json:"currency"`
	Type        Type   `json:"type"`
	Method      Method `json:"method"`
	Provider    string `json:"provider"`
	Reference   string `json:"reference"`
	Description string `json:"description,omitempty"`
	ReceiptURL  string `json:"receiptUrl,omitempty"`

	State         State      `json:"-"`
	RiskLevel     risk.Level `json:"riskLevel,omitempty"`
	RiskFactors   []string   `json:"riskFactors,omitempty"`
	FailureReason string     `json:"failureReason,omitempty"`

	Date      time.Time `json:"date"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// MarshalJSON renders the wire shape: amount in major units and the mapped
// status instead of the internal state.
func (t *Transaction) MarshalJSON() ([]byte, error) {
	type alias Transaction
	return json.Marshal(struct {
		*alias
		Amount float64 `json:"amount"`
		Status Status  `json:"status"`
	}{
		alias:  (*alias)(t),
		Amount: float64(t.AmountCents) / 100,
		Status: t.State.WireStatus(),
	})
}

// Clone returns a deep copy safe to hand outside the store.
func (t *Transaction) Clone() *Transaction {
	cp := *t
	cp.RiskFactors = append([]string(nil), t.RiskFactors...)
	return &cp
}

// Store persists transactions. CompareAndSwapStatus is the single-writer
// guard: it persists the given transaction only if the stored state still
// equals from, returning ErrStatusConflict otherwise.
type Store interface {
	Create(ctx context.Context, tx *Transaction) error
	Get(ctx context.Context, id string) (*Transaction, error)
	Load(ctx context.Context, reference string) (*Transaction, error)
	CompareAndSwapStatus(ctx context.Context, tx *Transaction, from State) error
	ListByUser(ctx context.Context, userID string, limit int, after *pagination.Cursor) ([]*Transaction, error)
}
