package payments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/wkarimi/nyumbapay/internal/alerts"
	"github.com/wkarimi/nyumbapay/internal/behavior"
	"github.com/wkarimi/nyumbapay/internal/fraud"
	"github.com/wkarimi/nyumbapay/internal/identity"
	"github.com/wkarimi/nyumbapay/internal/idgen"
	"github.com/wkarimi/nyumbapay/internal/metrics"
	"github.com/wkarimi/nyumbapay/internal/pagination"
	"github.com/wkarimi/nyumbapay/internal/retry"
	"github.com/wkarimi/nyumbapay/internal/risk"
	"github.com/wkarimi/nyumbapay/internal/syncutil"
	"github.com/wkarimi/nyumbapay/internal/traces"
)

// ErrVerificationRequired is returned when a reference awaiting identity
// verification is resubmitted without a security token.
var ErrVerificationRequired = errors.New("identity verification required")

// Gateway retry policy. Retries reuse the same reference, which the gateway
// treats as an idempotency key, so a timeout that actually landed cannot
// double-charge.
const (
	gatewayMaxAttempts = 3
	gatewayBaseDelay   = 500 * time.Millisecond
)

// SubmitRequest is one payment intent as it arrives from the client,
// already validated and with the amount in minor units.
type SubmitRequest struct {
	UserID      string
	PropertyID  string
	AmountCents int64
	Currency    string
	Type        Type
	Method      Method
	Provider    string
	Reference   string
	Description string

	// Risk facts. PropertyPriceCents is 0 when no listing is referenced.
	PropertyPriceCents int64
	AccountCreatedAt   time.Time

	DeviceID  string
	IPAddress string
	UserAgent string
	Location  *Location

	// Set only on resubmission after identity verification.
	SecurityToken      string
	VerificationMethod string
}

// VerifyOutcome is the result of one identity verification round.
type VerifyOutcome struct {
	Attempt        *identity.VerificationAttempt `json:"attempt"`
	SecurityToken  string                        `json:"securityToken,omitempty"`
	TokenExpiresAt *time.Time                    `json:"tokenExpiresAt,omitempty"`
	Transaction    *Transaction                  `json:"transaction"`
}

// Orchestrator drives payment attempts through the state machine. All state
// changes go through the store's compare-and-swap, and all work for one
// reference happens under that reference's lock, so there is exactly one
// writer per attempt and at most one outstanding gateway call.
type Orchestrator struct {
	store    Store
	analyst  *fraud.Analyst
	verifier *identity.Verifier
	tokens   *identity.TokenIssuer
	gateway  Gateway
	emitter  *alerts.Emitter
	monitor  *behavior.Monitor
	audit    risk.Store
	notify   func(*Transaction)
	logger   *slog.Logger

	locks syncutil.KeyedMutex // serializes work per reference
}

// NewOrchestrator wires the orchestrator. monitor and audit may be nil.
func NewOrchestrator(
	store Store,
	analyst *fraud.Analyst,
	verifier *identity.Verifier,
	tokens *identity.TokenIssuer,
	gateway Gateway,
	emitter *alerts.Emitter,
	logger *slog.Logger,
) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		store:    store,
		analyst:  analyst,
		verifier: verifier,
		tokens:   tokens,
		gateway:  gateway,
		emitter:  emitter,
		logger:   logger,
	}
}

// WithMonitor attaches the behavior monitor.
func (o *Orchestrator) WithMonitor(m *behavior.Monitor) *Orchestrator {
	o.monitor = m
	return o
}

// WithAudit attaches the assessment audit store.
// WithEvents attaches a callback fired after every committed state change.
// The callback receives a copy and may be held across goroutines.
func (o *Orchestrator) WithEvents(fn func(*Transaction)) *Orchestrator {
	o.notify = fn
	return o
}

func (o *Orchestrator) WithAudit(s risk.Store) *Orchestrator {
	o.audit = s
	return o
}

// Submit processes one payment intent. Resubmitting a reference that already
// reached a terminal state returns the stored transaction unchanged; a
// reference awaiting verification needs a security token to continue.
func (o *Orchestrator) Submit(ctx context.Context, req SubmitRequest) (*Transaction, error) {
	ctx, span := traces.StartSpan(ctx, "payments.Submit",
		traces.Reference(req.Reference),
		traces.AmountCents(req.AmountCents),
	)
	defer span.End()

	unlock, err := o.locks.LockContext(ctx, req.Reference)
	if err != nil {
		return nil, err
	}
	defer unlock()

	existing, err := o.store.Load(ctx, req.Reference)
	switch {
	case err == nil:
		return o.resume(ctx, existing, req)
	case errors.Is(err, ErrTransactionNotFound):
		// First time we see this reference.
	default:
		return nil, fmt.Errorf("load transaction: %w", err)
	}

	now := time.Now().UTC()
	tx := &Transaction{
		ID:          idgen.WithPrefix("txn"),
		UserID:      req.UserID,
		PropertyID:  req.PropertyID,
		AmountCents: req.AmountCents,
		Currency:    req.Currency,
		Type:        req.Type,
		Method:      req.Method,
		Provider:    req.Provider,
		Reference:   req.Reference,
		Description: req.Description,
		State:       StateInitiated,
		Date:        now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := o.store.Create(ctx, tx); err != nil {
		return nil, fmt.Errorf("create transaction: %w", err)
	}

	o.observeBehavior(ctx, tx, req.Location)

	assessment, source := o.analyst.Analyze(ctx, riskTransactionFacts(req), riskUserFacts(req, now), riskPropertyFacts(req))
	o.recordAssessment(ctx, tx.ID, assessment, source)
	tx.RiskLevel = assessment.RiskLevel
	tx.RiskFactors = assessment.RiskFactors
	span.SetAttributes(traces.RiskLevel(string(assessment.RiskLevel)), traces.RiskScore(assessment.RiskScore))

	if err := o.transition(ctx, tx, StateInitiated, StateRiskEvaluated); err != nil {
		return nil, err
	}

	switch assessment.RecommendedAction {
	case risk.ActionBlock:
		if err := o.transition(ctx, tx, StateRiskEvaluated, StateBlocked); err != nil {
			return nil, err
		}
		o.emit(ctx, tx.UserID, alerts.TypeFraudDetected, map[string]any{
			"transactionId": tx.ID,
			"riskScore":     assessment.RiskScore,
			"riskFactors":   assessment.RiskFactors,
		})
		metrics.TransactionsTotal.WithLabelValues(string(StatusFlagged)).Inc()
		return tx, nil

	case risk.ActionReview:
		if err := o.transition(ctx, tx, StateRiskEvaluated, StateVerifying); err != nil {
			return nil, err
		}
		o.emit(ctx, tx.UserID, alerts.TypeVerificationRequired, map[string]any{
			"transactionId": tx.ID,
			"riskLevel":     string(assessment.RiskLevel),
		})
		return tx, nil

	default:
		if err := o.transition(ctx, tx, StateRiskEvaluated, StateProceeding); err != nil {
			return nil, err
		}
		return o.charge(ctx, tx, req)
	}
}

// resume handles a reference the store already knows about.
func (o *Orchestrator) resume(ctx context.Context, tx *Transaction, req SubmitRequest) (*Transaction, error) {
	if tx.State.Terminal() {
		// Replay: the stored result is the answer.
		return tx, nil
	}

	switch tx.State {
	case StateVerifying:
		if req.SecurityToken == "" {
			return tx, ErrVerificationRequired
		}
		return o.resumeVerified(ctx, tx, req)
	case StateProceeding:
		// A gateway call for this reference is (or was) outstanding.
		return tx, ErrAttemptInFlight
	default:
		// INITIATED or RISK_EVALUATED left over from an interrupted
		// attempt. The risk decision never happened, so start it over.
		return o.redecide(ctx, tx, req)
	}
}

// resumeVerified continues a VERIFYING transaction whose user passed the
// identity check and came back with the minted token.
func (o *Orchestrator) resumeVerified(ctx context.Context, tx *Transaction, req SubmitRequest) (*Transaction, error) {
	if err := o.tokens.Verify(req.SecurityToken, tx.Reference); err != nil {
		return tx, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	// Reassess for the audit trail. The verification outcome, not the new
	// score, decides whether the attempt continues.
	now := time.Now().UTC()
	assessment, source := o.analyst.Analyze(ctx, riskTransactionFacts(req), riskUserFacts(req, now), riskPropertyFacts(req))
	o.recordAssessment(ctx, tx.ID, assessment, source)
	tx.RiskLevel = assessment.RiskLevel
	tx.RiskFactors = assessment.RiskFactors

	if err := o.transition(ctx, tx, StateVerifying, StateProceeding); err != nil {
		return nil, err
	}
	return o.charge(ctx, tx, req)
}

// redecide re-runs the risk decision for an attempt that was interrupted
// before reaching one.
func (o *Orchestrator) redecide(ctx context.Context, tx *Transaction, req SubmitRequest) (*Transaction, error) {
	if tx.State == StateInitiated {
		if err := o.transition(ctx, tx, StateInitiated, StateRiskEvaluated); err != nil {
			return nil, err
		}
	}

	now := time.Now().UTC()
	assessment, source := o.analyst.Analyze(ctx, riskTransactionFacts(req), riskUserFacts(req, now), riskPropertyFacts(req))
	o.recordAssessment(ctx, tx.ID, assessment, source)
	tx.RiskLevel = assessment.RiskLevel
	tx.RiskFactors = assessment.RiskFactors

	switch assessment.RecommendedAction {
	case risk.ActionBlock:
		if err := o.transition(ctx, tx, StateRiskEvaluated, StateBlocked); err != nil {
			return nil, err
		}
		metrics.TransactionsTotal.WithLabelValues(string(StatusFlagged)).Inc()
		return tx, nil
	case risk.ActionReview:
		if err := o.transition(ctx, tx, StateRiskEvaluated, StateVerifying); err != nil {
			return nil, err
		}
		return tx, nil
	default:
		if err := o.transition(ctx, tx, StateRiskEvaluated, StateProceeding); err != nil {
			return nil, err
		}
		return o.charge(ctx, tx, req)
	}
}

// charge runs the gateway call for a PROCEEDING transaction and lands it in
// COMPLETED or FAILED. Transient gateway failures are retried with the same
// reference; declines are final immediately.
func (o *Orchestrator) charge(ctx context.Context, tx *Transaction, req SubmitRequest) (*Transaction, error) {
	chargeReq := ChargeRequest{
		Reference:          tx.Reference,
		AmountCents:        tx.AmountCents,
		Currency:           tx.Currency,
		Method:             tx.Method,
		Provider:           tx.Provider,
		DeviceID:           req.DeviceID,
		IPAddress:          req.IPAddress,
		UserAgent:          req.UserAgent,
		Location:           req.Location,
		SecurityToken:      req.SecurityToken,
		VerificationMethod: req.VerificationMethod,
	}

	var result *ChargeResult
	timer := time.Now()
	err := retry.Do(ctx, gatewayMaxAttempts, gatewayBaseDelay, func() error {
		var callErr error
		result, callErr = o.gateway.Charge(ctx, chargeReq)
		return callErr
	})
	metrics.GatewayCallDuration.Observe(time.Since(timer).Seconds())

	if err != nil {
		metrics.GatewayCallsTotal.WithLabelValues("error").Inc()
		o.logger.Error("gateway call failed",
			"transaction_id", tx.ID,
			"reference", tx.Reference,
			"error", err)
		tx.FailureReason = "payment could not be processed, please try again"
		if err := o.transition(ctx, tx, StateProceeding, StateFailed); err != nil {
			return nil, err
		}
		metrics.TransactionsTotal.WithLabelValues(string(StatusFailed)).Inc()
		return tx, nil
	}

	if result.SecurityChecks.FraudDetected {
		o.emit(ctx, tx.UserID, alerts.TypeFraudDetected, map[string]any{
			"transactionId": tx.ID,
			"source":        "gateway",
		})
	}

	if result.Success {
		metrics.GatewayCallsTotal.WithLabelValues("success").Inc()
		tx.ReceiptURL = result.ReceiptURL
		if err := o.transition(ctx, tx, StateProceeding, StateCompleted); err != nil {
			return nil, err
		}
		metrics.TransactionsTotal.WithLabelValues(string(StatusCompleted)).Inc()
		return tx, nil
	}

	metrics.GatewayCallsTotal.WithLabelValues("declined").Inc()
	tx.FailureReason = "payment was declined"
	if err := o.transition(ctx, tx, StateProceeding, StateFailed); err != nil {
		return nil, err
	}
	metrics.TransactionsTotal.WithLabelValues(string(StatusFailed)).Inc()
	return tx, nil
}

// Verify runs one identity check for a VERIFYING transaction. A verified
// attempt yields a security token bound to the transaction reference; an
// exhausted attempt cap makes the failure final.
func (o *Orchestrator) Verify(ctx context.Context, transactionID string, creq identity.CheckRequest) (*VerifyOutcome, error) {
	tx, err := o.store.Get(ctx, transactionID)
	if err != nil {
		return nil, err
	}

	unlock, err := o.locks.LockContext(ctx, tx.Reference)
	if err != nil {
		return nil, err
	}
	defer unlock()

	// Re-read under the lock.
	tx, err = o.store.Get(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if tx.State.Terminal() {
		return nil, ErrTerminalState
	}
	if tx.State != StateVerifying {
		return nil, ErrNotVerifying
	}

	creq.TransactionID = tx.ID
	creq.UserID = tx.UserID
	attempt, err := o.verifier.Submit(ctx, creq)
	if errors.Is(err, identity.ErrAttemptCapExceeded) {
		tx.FailureReason = "identity verification failed"
		if terr := o.transition(ctx, tx, StateVerifying, StateVerificationFailed); terr != nil {
			return nil, terr
		}
		metrics.TransactionsTotal.WithLabelValues(string(StatusFailed)).Inc()
		return nil, err
	}
	if err != nil {
		return nil, err
	}

	outcome := &VerifyOutcome{Attempt: attempt, Transaction: tx}
	if attempt.Verified {
		token, expiresAt := o.tokens.Mint(tx.Reference)
		outcome.SecurityToken = token
		outcome.TokenExpiresAt = &expiresAt
		return outcome, nil
	}

	exhausted, err := o.verifier.Exhausted(ctx, tx.ID)
	if err == nil && exhausted {
		tx.FailureReason = "identity verification failed"
		if terr := o.transition(ctx, tx, StateVerifying, StateVerificationFailed); terr != nil {
			return nil, terr
		}
		o.emit(ctx, tx.UserID, alerts.TypeSuspiciousActivity, map[string]any{
			"transactionId": tx.ID,
			"reason":        "verification attempts exhausted",
		})
		metrics.TransactionsTotal.WithLabelValues(string(StatusFailed)).Inc()
	}
	return outcome, nil
}

// Cancel aborts an attempt that has not yet committed to the gateway.
func (o *Orchestrator) Cancel(ctx context.Context, transactionID string) (*Transaction, error) {
	tx, err := o.store.Get(ctx, transactionID)
	if err != nil {
		return nil, err
	}

	unlock, err := o.locks.LockContext(ctx, tx.Reference)
	if err != nil {
		return nil, err
	}
	defer unlock()

	tx, err = o.store.Get(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if tx.State.Terminal() {
		return nil, ErrTerminalState
	}
	if tx.State != StateRiskEvaluated && tx.State != StateVerifying {
		return nil, fmt.Errorf("%w: cannot cancel from %s", ErrInvalidTransition, tx.State)
	}

	from := tx.State
	if err := o.transition(ctx, tx, from, StateCancelled); err != nil {
		return nil, err
	}
	metrics.TransactionsTotal.WithLabelValues(string(StatusCancelled)).Inc()
	return tx, nil
}

// Get returns one transaction by ID.
func (o *Orchestrator) Get(ctx context.Context, id string) (*Transaction, error) {
	return o.store.Get(ctx, id)
}

// ListByUser returns a user's transactions, newest first, starting after the
// optional cursor.
func (o *Orchestrator) ListByUser(ctx context.Context, userID string, limit int, after *pagination.Cursor) ([]*Transaction, error) {
	return o.store.ListByUser(ctx, userID, limit, after)
}

// transition applies one state change through the store's compare-and-swap.
func (o *Orchestrator) transition(ctx context.Context, tx *Transaction, from, to State) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	tx.State = to
	tx.UpdatedAt = time.Now().UTC()
	if err := o.store.CompareAndSwapStatus(ctx, tx, from); err != nil {
		return fmt.Errorf("transition %s -> %s: %w", from, to, err)
	}
	o.logger.Info("transaction state changed",
		"transaction_id", tx.ID,
		"reference", tx.Reference,
		"from", from,
		"to", to)
	if o.notify != nil {
		o.notify(tx.Clone())
	}
	return nil
}

// recordAssessment appends to the audit trail. Best-effort: losing an audit
// row must not fail the payment.
func (o *Orchestrator) recordAssessment(ctx context.Context, transactionID string, a risk.Assessment, source fraud.Source) {
	if o.audit == nil {
		return
	}
	rec := &risk.Record{
		ID:            idgen.WithPrefix("rsk"),
		TransactionID: transactionID,
		Source:        string(source),
		Assessment:    a,
		CreatedAt:     time.Now().UTC(),
	}
	if err := o.audit.Record(ctx, rec); err != nil {
		o.logger.Warn("failed to record assessment", "transaction_id", transactionID, "error", err)
	}
}

// observeBehavior feeds the attempt into the sliding-window monitor and
// raises a suspicious-activity alert if the window looks bad. Never blocks
// the payment.
func (o *Orchestrator) observeBehavior(ctx context.Context, tx *Transaction, loc *Location) {
	if o.monitor == nil {
		return
	}
	action := behavior.Action{
		Type:      behavior.ActionPayment,
		Timestamp: time.Now().UTC(),
		Details:   map[string]string{"transactionId": tx.ID},
	}
	if loc != nil {
		action.Location = loc.City + ", " + loc.Country
	}
	o.monitor.Record(tx.UserID, action)
	report := o.monitor.Check(tx.UserID)
	if report.SuspiciousActivity {
		o.emit(ctx, tx.UserID, alerts.TypeSuspiciousActivity, map[string]any{
			"transactionId":     tx.ID,
			"suspiciousActions": report.SuspiciousActions,
			"riskLevel":         string(report.RiskLevel),
		})
	}
}

func (o *Orchestrator) emit(ctx context.Context, userID string, alertType alerts.AlertType, details map[string]any) {
	if o.emitter == nil {
		return
	}
	o.emitter.Emit(ctx, userID, alertType, details)
}

func riskTransactionFacts(req SubmitRequest) risk.TransactionFacts {
	return risk.TransactionFacts{
		AmountCents: req.AmountCents,
		Currency:    req.Currency,
		Method:      req.Method.canonical(),
		Type:        string(req.Type),
	}
}

func riskUserFacts(req SubmitRequest, now time.Time) risk.UserFacts {
	return risk.UserFacts{AccountCreatedAt: req.AccountCreatedAt, Now: now}
}

func riskPropertyFacts(req SubmitRequest) *risk.PropertyFacts {
	if req.PropertyPriceCents <= 0 {
		return nil
	}
	return &risk.PropertyFacts{PriceCents: req.PropertyPriceCents}
}
