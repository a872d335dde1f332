// Package risk implements deterministic rule-based risk scoring for payment
// attempts.
//
// Every payment attempt is evaluated against a fixed set of additive rules
// over transaction, user, and (optional) property facts. Scores range from
// 0 (safe) to 100 (certain fraud) and map onto four bands: low, medium,
// high, critical. The evaluator is pure — no I/O, no clock reads beyond the
// facts it is handed — so it doubles as the mandatory fallback when the
// natural-language scoring oracle is unavailable.
package risk

import (
	"context"
	"fmt"
	"time"
)

// Level is the banded classification of a risk score.
type Level string

const (
	LevelLow      Level = "low"
	LevelMedium   Level = "medium"
	LevelHigh     Level = "high"
	LevelCritical Level = "critical"
)

// Action is the evaluator's recommendation for the payment attempt.
type Action string

const (
	ActionProceed Action = "proceed"
	ActionReview  Action = "review"
	ActionBlock   Action = "block"
)

// Score band boundaries. A score strictly above a boundary falls into the
// next band up.
const (
	ThresholdMedium   = 20
	ThresholdHigh     = 40
	ThresholdCritical = 60
)

// Assessment is the result of scoring a single payment attempt. The JSON
// field names are a wire contract shared with the scoring oracle — they are
// case-sensitive and must not change.
type Assessment struct {
	RiskScore         int      `json:"riskScore"`
	RiskLevel         Level    `json:"riskLevel"`
	RiskFactors       []string `json:"riskFactors"`
	IsLikelyFraud     bool     `json:"isLikelyFraud"`
	RecommendedAction Action   `json:"recommendedAction"`
}

// LevelForScore maps a score onto its band.
func LevelForScore(score int) Level {
	switch {
	case score > ThresholdCritical:
		return LevelCritical
	case score > ThresholdHigh:
		return LevelHigh
	case score > ThresholdMedium:
		return LevelMedium
	default:
		return LevelLow
	}
}

// ActionForLevel maps a band onto the recommended action.
func ActionForLevel(level Level) Action {
	switch level {
	case LevelCritical:
		return ActionBlock
	case LevelHigh:
		return ActionReview
	default:
		return ActionProceed
	}
}

// Validate checks that an assessment is internally consistent: score in
// range, known level and action, and the level/fraud/action invariants hold.
// Used to reject malformed oracle output before it is trusted.
func (a *Assessment) Validate() error {
	if a.RiskScore < 0 || a.RiskScore > 100 {
		return fmt.Errorf("riskScore %d out of range [0,100]", a.RiskScore)
	}
	switch a.RiskLevel {
	case LevelLow, LevelMedium, LevelHigh, LevelCritical:
	default:
		return fmt.Errorf("unknown riskLevel %q", a.RiskLevel)
	}
	switch a.RecommendedAction {
	case ActionProceed, ActionReview, ActionBlock:
	default:
		return fmt.Errorf("unknown recommendedAction %q", a.RecommendedAction)
	}
	if a.RiskLevel != LevelForScore(a.RiskScore) {
		return fmt.Errorf("riskLevel %q does not match score %d", a.RiskLevel, a.RiskScore)
	}
	likelyFraud := a.RiskLevel == LevelHigh || a.RiskLevel == LevelCritical
	if a.IsLikelyFraud != likelyFraud {
		return fmt.Errorf("isLikelyFraud %v inconsistent with level %q", a.IsLikelyFraud, a.RiskLevel)
	}
	if a.RecommendedAction != ActionForLevel(a.RiskLevel) {
		return fmt.Errorf("recommendedAction %q inconsistent with level %q", a.RecommendedAction, a.RiskLevel)
	}
	return nil
}

// TransactionFacts are the payment-attempt inputs to the evaluator.
// Amounts are in minor units (cents).
type TransactionFacts struct {
	AmountCents int64
	Currency    string
	Method      string // canonical method name, e.g. "card", "bank_transfer"
	Type        string // e.g. "rental_deposit", "full_payment"
}

// MethodBankTransfer is the canonical method name the large-amount rule
// treats as safe.
const MethodBankTransfer = "bank_transfer"

// UserFacts are the account inputs to the evaluator.
type UserFacts struct {
	AccountCreatedAt time.Time
	// Now is the evaluation instant; injected so the evaluator stays pure.
	Now time.Time
}

// AccountAge returns how old the account is at evaluation time.
func (u UserFacts) AccountAge() time.Duration {
	return u.Now.Sub(u.AccountCreatedAt)
}

// PropertyFacts describe the referenced listing, when the payment is tied
// to one.
type PropertyFacts struct {
	PriceCents int64
}

// Record is a persisted assessment, kept as an append-only audit trail.
// A reassessment after identity verification produces a second record; the
// original is never overwritten.
type Record struct {
	ID            string     `json:"id"`
	TransactionID string     `json:"transactionId"`
	Source        string     `json:"source"` // "rules" or "oracle"
	Assessment    Assessment `json:"assessment"`
	CreatedAt     time.Time  `json:"createdAt"`
}

// Store persists assessment records for audit.
type Store interface {
	Record(ctx context.Context, rec *Record) error
	ListByTransaction(ctx context.Context, transactionID string, limit int) ([]*Record, error)
}
