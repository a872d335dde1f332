package alerts

import (
	"context"
	"log/slog"
	"time"

	"github.com/wkarimi/nyumbapay/internal/idgen"
	"github.com/wkarimi/nyumbapay/internal/metrics"
)

// deliverTimeout bounds one sink delivery. Deliveries run detached from the
// caller's request, so this is the only thing stopping a hung sink from
// leaking goroutines.
const deliverTimeout = 10 * time.Second

// Emitter builds alerts from the template catalog and sends them out.
type Emitter struct {
	store  Store
	sink   Sink
	logger *slog.Logger

	// notify, when set, receives each alert after emission. Used by the
	// realtime feed.
	notify func(*SecurityAlert)
}

// NewEmitter creates an alert emitter. sink may be nil, in which case alerts
// are only persisted.
func NewEmitter(store Store, sink Sink, logger *slog.Logger) *Emitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Emitter{store: store, sink: sink, logger: logger}
}

// OnEmit registers a callback invoked for every emitted alert. Must be called
// before the emitter is in use.
func (e *Emitter) OnEmit(fn func(*SecurityAlert)) {
	e.notify = fn
}

// Emit raises an alert for the user. Never returns an error: persistence and
// delivery problems are logged and counted, not propagated, because no
// payment flow should ever fail on account of its own alerting.
func (e *Emitter) Emit(ctx context.Context, userID string, alertType AlertType, details map[string]any) {
	tmpl, ok := catalog[alertType]
	if !ok {
		e.logger.Error("dropping alert with unknown type", "alert_type", alertType, "user_id", userID)
		metrics.AlertDeliveriesTotal.WithLabelValues("dropped").Inc()
		return
	}

	alert := &SecurityAlert{
		ID:        idgen.WithPrefix("alr"),
		UserID:    userID,
		Type:      alertType,
		Title:     tmpl.Title,
		Message:   tmpl.Message,
		Details:   details,
		CreatedAt: time.Now().UTC(),
	}

	if err := e.store.Create(ctx, alert); err != nil {
		e.logger.Error("failed to persist alert", "alert_id", alert.ID, "alert_type", alertType, "error", err)
	}

	if e.notify != nil {
		e.notify(alert)
	}

	if e.sink == nil {
		metrics.AlertDeliveriesTotal.WithLabelValues("skipped").Inc()
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), deliverTimeout)
		defer cancel()

		if err := e.sink.Deliver(ctx, alert); err != nil {
			e.logger.Warn("alert delivery failed",
				"alert_id", alert.ID,
				"alert_type", alertType,
				"user_id", userID,
				"error", err)
			metrics.AlertDeliveriesTotal.WithLabelValues("error").Inc()
			return
		}
		metrics.AlertDeliveriesTotal.WithLabelValues("delivered").Inc()
	}()
}
