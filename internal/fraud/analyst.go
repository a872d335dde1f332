// Package fraud wraps the natural-language risk-scoring oracle behind the
// deterministic rule engine's contract.
//
// The oracle is advisory and untrusted: its output is used only when it
// parses into a well-formed, internally consistent assessment. On any other
// outcome — transport error, timeout, non-2xx, unparseable body, shape
// violation — the analyst falls back to the rule engine immediately. There
// are no retries and no blending of partial oracle output; the fallback is
// what bounds end-to-end payment latency.
package fraud

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/wkarimi/nyumbapay/internal/circuitbreaker"
	"github.com/wkarimi/nyumbapay/internal/metrics"
	"github.com/wkarimi/nyumbapay/internal/risk"
)

// Source identifies which engine produced an assessment.
type Source string

const (
	SourceOracle Source = "oracle"
	SourceRules  Source = "rules"
)

// Breaker defaults: three straight oracle failures open the circuit for a
// minute, during which analysis goes straight to the rules.
const (
	breakerThreshold    = 3
	breakerOpenDuration = time.Minute
)

// Analyst produces a risk assessment for every payment attempt. Analyze
// never fails: when the oracle is unusable the deterministic evaluator
// answers instead.
type Analyst struct {
	oracle   *OracleClient // nil disables the oracle entirely
	fallback *risk.Evaluator
	breaker  *circuitbreaker.Breaker
	logger   *slog.Logger
}

// NewAnalyst creates a fraud analyst. oracle may be nil, in which case all
// assessments come from the rule engine.
func NewAnalyst(oracle *OracleClient, fallback *risk.Evaluator, logger *slog.Logger) *Analyst {
	return &Analyst{
		oracle:   oracle,
		fallback: fallback,
		breaker:  circuitbreaker.New("oracle", breakerThreshold, breakerOpenDuration),
		logger:   logger,
	}
}

// Analyze scores one payment attempt. The returned Source tells the caller
// (and the audit trail) which engine produced the number.
func (a *Analyst) Analyze(ctx context.Context, tx risk.TransactionFacts, user risk.UserFacts, property *risk.PropertyFacts) (risk.Assessment, Source) {
	if a.oracle == nil {
		return a.fromRules(tx, user, property, "disabled")
	}
	if !a.breaker.Allow() {
		return a.fromRules(tx, user, property, "breaker_open")
	}

	output, err := a.oracle.Score(ctx, buildPrompt(tx, user, property))
	if err != nil {
		a.breaker.RecordFailure()
		a.logger.Warn("oracle call failed, using rules fallback", "error", err)
		return a.fromRules(tx, user, property, "request")
	}

	assessment, err := parseAssessment(output)
	if err != nil {
		// The oracle answered but not in contract shape. That still counts
		// against the breaker: a misbehaving oracle is an unusable oracle.
		a.breaker.RecordFailure()
		a.logger.Warn("oracle output rejected, using rules fallback", "error", err)
		return a.fromRules(tx, user, property, "parse")
	}

	a.breaker.RecordSuccess()
	metrics.RiskAssessmentsTotal.WithLabelValues(string(assessment.RiskLevel), string(SourceOracle)).Inc()
	return assessment, SourceOracle
}

func (a *Analyst) fromRules(tx risk.TransactionFacts, user risk.UserFacts, property *risk.PropertyFacts, reason string) (risk.Assessment, Source) {
	metrics.OracleFallbacksTotal.WithLabelValues(reason).Inc()
	assessment := a.fallback.Evaluate(tx, user, property)
	metrics.RiskAssessmentsTotal.WithLabelValues(string(assessment.RiskLevel), string(SourceRules)).Inc()
	return assessment, SourceRules
}

// parseAssessment extracts and validates the assessment object from raw
// oracle text.
func parseAssessment(output string) (risk.Assessment, error) {
	obj, ok := extractJSON(output)
	if !ok {
		return risk.Assessment{}, errNoJSONObject
	}

	var a risk.Assessment
	if err := json.Unmarshal([]byte(obj), &a); err != nil {
		return risk.Assessment{}, err
	}
	if err := a.Validate(); err != nil {
		return risk.Assessment{}, err
	}
	return a, nil
}

var errNoJSONObject = errors.New("no JSON object in oracle output")
