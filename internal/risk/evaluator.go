package risk

import "time"

// Rule weights and the dollar thresholds that trigger them, in cents.
const (
	scoreExceedsPropertyPrice = 30
	scoreNewAccountLargeTx    = 25
	scoreLargeNonBankMethod   = 15

	newAccountMaxAge      = 7 * 24 * time.Hour
	largeTxCents          = 10_000_00 // $10,000
	veryLargeTxCents      = 50_000_00 // $50,000
	propertyPriceHeadroom = 1.10      // amount may exceed price by 10%
)

// Factor strings are part of the user-facing contract; they surface verbatim
// in review screens and alert details.
const (
	FactorExceedsPropertyPrice = "Transaction amount significantly exceeds property price"
	FactorNewAccountLargeTx    = "New account making large transaction"
	FactorLargeNonBankMethod   = "Large amount using non-bank transfer method"
)

// Evaluator is the deterministic rule engine. The zero value is ready to use.
type Evaluator struct{}

// NewEvaluator creates a rule-based evaluator.
func NewEvaluator() *Evaluator {
	return &Evaluator{}
}

// Evaluate scores one payment attempt. Each rule fires independently and
// appends its factor in detection order. Never fails.
func (e *Evaluator) Evaluate(tx TransactionFacts, user UserFacts, property *PropertyFacts) Assessment {
	score := 0
	var factors []string

	if property != nil && property.PriceCents > 0 {
		limit := float64(property.PriceCents) * propertyPriceHeadroom
		if float64(tx.AmountCents) > limit {
			score += scoreExceedsPropertyPrice
			factors = append(factors, FactorExceedsPropertyPrice)
		}
	}

	if user.AccountAge() < newAccountMaxAge && tx.AmountCents > largeTxCents {
		score += scoreNewAccountLargeTx
		factors = append(factors, FactorNewAccountLargeTx)
	}

	if tx.AmountCents > veryLargeTxCents && tx.Method != MethodBankTransfer {
		score += scoreLargeNonBankMethod
		factors = append(factors, FactorLargeNonBankMethod)
	}

	if score > 100 {
		score = 100
	}

	level := LevelForScore(score)
	return Assessment{
		RiskScore:         score,
		RiskLevel:         level,
		RiskFactors:       factors,
		IsLikelyFraud:     level == LevelHigh || level == LevelCritical,
		RecommendedAction: ActionForLevel(level),
	}
}
