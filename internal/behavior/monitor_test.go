package behavior

import (
	"fmt"
	"testing"
	"time"

	"github.com/wkarimi/nyumbapay/internal/risk"
)

func actionsOf(t ActionType, n int) []Action {
	out := make([]Action, n)
	for i := range out {
		out[i] = Action{Type: t, Timestamp: time.Now()}
	}
	return out
}

func TestEvaluate_QuietWindow(t *testing.T) {
	report := Evaluate([]Action{
		{Type: ActionLogin, Timestamp: time.Now(), Location: "Nairobi, KE"},
		{Type: ActionPayment, Timestamp: time.Now(), Location: "Nairobi, KE"},
	})

	if report.SuspiciousActivity {
		t.Errorf("quiet window flagged: %+v", report)
	}
	if report.RiskLevel != risk.LevelLow {
		t.Errorf("expected low, got %s", report.RiskLevel)
	}
}

func TestEvaluate_AccountChangeBurst(t *testing.T) {
	actions := []Action{
		{Type: ActionProfileUpdate, Timestamp: time.Now()},
		{Type: ActionPasswordChange, Timestamp: time.Now()},
		{Type: ActionPaymentMethodChange, Timestamp: time.Now()},
		{Type: ActionProfileUpdate, Timestamp: time.Now()},
	}

	report := Evaluate(actions)

	if !report.SuspiciousActivity {
		t.Fatal("account change burst not flagged")
	}
	if len(report.SuspiciousActions) != 1 || report.SuspiciousActions[0] != FlagAccountChanges {
		t.Errorf("unexpected flags: %v", report.SuspiciousActions)
	}
	if report.RiskLevel != risk.LevelMedium {
		t.Errorf("single flag should be medium, got %s", report.RiskLevel)
	}
}

func TestEvaluate_ThreeChangesBelowThreshold(t *testing.T) {
	report := Evaluate(actionsOf(ActionProfileUpdate, 3))
	if report.SuspiciousActivity {
		t.Errorf("three mutating actions flagged: %v", report.SuspiciousActions)
	}
}

func TestEvaluate_FailedPayments(t *testing.T) {
	// Exactly two failures is tolerated; the third fires.
	if r := Evaluate(actionsOf(ActionFailedPayment, 2)); r.SuspiciousActivity {
		t.Errorf("two failures flagged: %v", r.SuspiciousActions)
	}

	r := Evaluate(actionsOf(ActionFailedPayment, 3))
	if len(r.SuspiciousActions) != 1 || r.SuspiciousActions[0] != FlagFailedPayments {
		t.Errorf("unexpected flags: %v", r.SuspiciousActions)
	}
}

func TestEvaluate_LocationSpread(t *testing.T) {
	var actions []Action
	for i, loc := range []string{"Nairobi, KE", "Lagos, NG", "London, UK", "Moscow, RU"} {
		actions = append(actions, Action{
			Type:      ActionLogin,
			Timestamp: time.Now().Add(-time.Duration(i) * time.Hour),
			Location:  loc,
		})
	}

	r := Evaluate(actions)
	if len(r.SuspiciousActions) != 1 || r.SuspiciousActions[0] != FlagUnusualLocations {
		t.Errorf("unexpected flags: %v", r.SuspiciousActions)
	}
}

func TestEvaluate_MultipleFlagsHigh(t *testing.T) {
	actions := append(actionsOf(ActionPasswordChange, 4), actionsOf(ActionFailedPayment, 3)...)

	r := Evaluate(actions)
	if len(r.SuspiciousActions) != 2 {
		t.Fatalf("expected 2 flags, got %v", r.SuspiciousActions)
	}
	if r.RiskLevel != risk.LevelHigh {
		t.Errorf("expected high, got %s", r.RiskLevel)
	}
}

func TestMonitor_RecordAndCheck(t *testing.T) {
	m := NewMonitor()
	for i := 0; i < 4; i++ {
		m.Record("user1", Action{Type: ActionPaymentMethodChange})
	}

	r := m.Check("user1")
	if !r.SuspiciousActivity {
		t.Errorf("recorded burst not flagged: %+v", r)
	}

	// Other users are unaffected.
	if r := m.Check("user2"); r.SuspiciousActivity {
		t.Errorf("empty window flagged: %+v", r)
	}
}

func TestMonitor_ExpiredActionsIgnored(t *testing.T) {
	m := NewMonitor()
	stale := time.Now().Add(-25 * time.Hour)
	for i := 0; i < 4; i++ {
		m.Record("user1", Action{Type: ActionProfileUpdate, Timestamp: stale})
	}

	if r := m.Check("user1"); r.SuspiciousActivity {
		t.Errorf("stale actions flagged: %+v", r)
	}
}

func TestMonitor_WindowCapped(t *testing.T) {
	m := NewMonitor()
	for i := 0; i < maxWindowSize+100; i++ {
		m.Record("user1", Action{Type: ActionLogin, Location: fmt.Sprintf("city-%d", i%2)})
	}

	w := m.window("user1")
	w.mu.Lock()
	n := len(w.actions)
	w.mu.Unlock()

	if n > maxWindowSize {
		t.Errorf("window grew past cap: %d", n)
	}
}
