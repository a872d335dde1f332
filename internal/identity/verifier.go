package identity

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/wkarimi/nyumbapay/internal/idgen"
	"github.com/wkarimi/nyumbapay/internal/metrics"
)

// Verifier runs identity checks and records one attempt per call.
//
// At most one attempt may be in flight per transaction; concurrent calls for
// the same transaction get ErrAttemptInFlight rather than queueing, since the
// client should never have two checks open at once.
type Verifier struct {
	provider Provider
	store    Store
	cap      int
	logger   *slog.Logger

	inflight sync.Map // transactionID -> struct{}
}

// NewVerifier creates a verifier with the default attempt cap.
func NewVerifier(provider Provider, store Store, logger *slog.Logger) *Verifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Verifier{
		provider: provider,
		store:    store,
		cap:      DefaultAttemptCap,
		logger:   logger,
	}
}

// Submit runs one identity check for the transaction and records the result.
//
// The caller is responsible for only invoking Submit while the transaction
// is in a verifying state. Returns ErrAttemptCapExceeded once the per-
// transaction cap is reached, at which point verification failure is final.
func (v *Verifier) Submit(ctx context.Context, req CheckRequest) (*VerificationAttempt, error) {
	if !req.Method.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMethod, req.Method)
	}

	if _, loaded := v.inflight.LoadOrStore(req.TransactionID, struct{}{}); loaded {
		return nil, ErrAttemptInFlight
	}
	defer v.inflight.Delete(req.TransactionID)

	count, err := v.store.CountByTransaction(ctx, req.TransactionID)
	if err != nil {
		return nil, fmt.Errorf("count attempts: %w", err)
	}
	if count >= v.cap {
		return nil, ErrAttemptCapExceeded
	}

	attempt := &VerificationAttempt{
		ID:            idgen.WithPrefix("va"),
		TransactionID: req.TransactionID,
		Method:        req.Method,
		CreatedAt:     time.Now().UTC(),
	}

	result, err := v.provider.Check(ctx, req)
	if err != nil {
		attempt.FailureReason = "identity check could not be completed"
		v.logger.Warn("identity check failed",
			"transaction_id", req.TransactionID,
			"method", req.Method,
			"error", err)
	} else {
		attempt.Verified = result.Verified
		attempt.ConfidenceScore = result.ConfidenceScore
		attempt.FailureReason = result.FailureReason
		if result.Verified && result.ConfidenceScore < minVerifiedConfidence {
			attempt.Verified = false
			attempt.FailureReason = "confidence below acceptance threshold"
		}
	}

	if err := v.store.Create(ctx, attempt); err != nil {
		return nil, fmt.Errorf("record attempt: %w", err)
	}

	outcome := "failed"
	if attempt.Verified {
		outcome = "verified"
	}
	metrics.VerificationAttemptsTotal.WithLabelValues(string(req.Method), outcome).Inc()
	return attempt, nil
}

// Attempts returns all recorded attempts for a transaction, oldest first.
func (v *Verifier) Attempts(ctx context.Context, transactionID string) ([]*VerificationAttempt, error) {
	return v.store.ListByTransaction(ctx, transactionID)
}

// Exhausted reports whether the transaction has used up its attempt cap.
func (v *Verifier) Exhausted(ctx context.Context, transactionID string) (bool, error) {
	count, err := v.store.CountByTransaction(ctx, transactionID)
	if err != nil {
		return false, fmt.Errorf("count attempts: %w", err)
	}
	return count >= v.cap, nil
}
