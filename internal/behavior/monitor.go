// Package behavior implements sliding-window anomaly detection over user
// account activity.
//
// The monitor watches recent actions per user — profile edits, password
// changes, payment attempts, logins — and flags patterns that suggest an
// account takeover or card-testing run. It runs on a schedule or on demand
// and only ever raises alerts; it never sits in the path of a live payment.
package behavior

import (
	"sync"
	"time"

	"github.com/wkarimi/nyumbapay/internal/risk"
)

// ActionType classifies one user action.
type ActionType string

const (
	ActionProfileUpdate       ActionType = "profile_update"
	ActionPasswordChange      ActionType = "password_change"
	ActionPaymentMethodChange ActionType = "payment_method_change"
	ActionFailedPayment       ActionType = "failed_payment"
	ActionPayment             ActionType = "payment"
	ActionLogin               ActionType = "login"
)

// accountMutating reports whether an action changes account state.
func (t ActionType) accountMutating() bool {
	switch t {
	case ActionProfileUpdate, ActionPasswordChange, ActionPaymentMethodChange:
		return true
	}
	return false
}

// Action is a single entry in a user's activity window.
type Action struct {
	Type      ActionType        `json:"type"`
	Timestamp time.Time         `json:"timestamp"`
	Location  string            `json:"location,omitempty"` // "city, country" as reported by the client
	Details   map[string]string `json:"details,omitempty"`
}

// Report is the monitor's verdict on one user's recent activity.
type Report struct {
	SuspiciousActivity bool       `json:"suspiciousActivity"`
	SuspiciousActions  []string   `json:"suspiciousActions"`
	RiskLevel          risk.Level `json:"riskLevel"` // low, medium, or high; never critical
}

// Window bounds, mirroring the per-key windows the risk engine keeps.
const (
	maxWindowSize  = 500
	windowDuration = 24 * time.Hour
)

// Rule thresholds.
const (
	accountChangeLimit  = 4 // mutating actions at or above this fire the flag
	failedPaymentLimit  = 2 // strictly more than this fires the flag
	distinctPlacesLimit = 3 // strictly more than this fires the flag
)

// Flag strings surface verbatim in alerts and review tooling.
const (
	FlagAccountChanges   = "Multiple account changes in short period"
	FlagFailedPayments   = "Multiple failed payment attempts"
	FlagUnusualLocations = "Access from multiple unusual locations"
)

// Monitor keeps bounded per-user activity windows and evaluates them.
type Monitor struct {
	windows sync.Map // map[string]*userWindow
}

type userWindow struct {
	mu      sync.Mutex
	actions []Action
}

// NewMonitor creates a behavior monitor.
func NewMonitor() *Monitor {
	return &Monitor{}
}

// Record appends an action to the user's window, pruning expired entries
// and capping the window size.
func (m *Monitor) Record(userID string, action Action) {
	if action.Timestamp.IsZero() {
		action.Timestamp = time.Now()
	}

	w := m.window(userID)
	w.mu.Lock()
	defer w.mu.Unlock()

	w.actions = append(w.actions, action)

	cutoff := time.Now().Add(-windowDuration)
	start := 0
	for start < len(w.actions) && w.actions[start].Timestamp.Before(cutoff) {
		start++
	}
	if start > 0 {
		w.actions = w.actions[start:]
	}
	if len(w.actions) > maxWindowSize {
		w.actions = w.actions[len(w.actions)-maxWindowSize:]
	}
}

// Check evaluates the user's current window.
func (m *Monitor) Check(userID string) Report {
	w := m.window(userID)
	w.mu.Lock()
	cutoff := time.Now().Add(-windowDuration)
	recent := make([]Action, 0, len(w.actions))
	for _, a := range w.actions {
		if a.Timestamp.After(cutoff) {
			recent = append(recent, a)
		}
	}
	w.mu.Unlock()

	return Evaluate(recent)
}

// Evaluate runs the rule set over a supplied action list. Pure; callers that
// keep their own activity history can use it directly.
func Evaluate(recent []Action) Report {
	var (
		mutating int
		failed   int
		places   = map[string]struct{}{}
	)
	for _, a := range recent {
		if a.Type.accountMutating() {
			mutating++
		}
		if a.Type == ActionFailedPayment {
			failed++
		}
		if a.Location != "" {
			places[a.Location] = struct{}{}
		}
	}

	var flags []string
	if mutating >= accountChangeLimit {
		flags = append(flags, FlagAccountChanges)
	}
	if failed > failedPaymentLimit {
		flags = append(flags, FlagFailedPayments)
	}
	if len(places) > distinctPlacesLimit {
		flags = append(flags, FlagUnusualLocations)
	}

	level := risk.LevelLow
	switch {
	case len(flags) > 1:
		level = risk.LevelHigh
	case len(flags) == 1:
		level = risk.LevelMedium
	}

	return Report{
		SuspiciousActivity: len(flags) > 0,
		SuspiciousActions:  flags,
		RiskLevel:          level,
	}
}

func (m *Monitor) window(userID string) *userWindow {
	v, _ := m.windows.LoadOrStore(userID, &userWindow{})
	return v.(*userWindow)
}
