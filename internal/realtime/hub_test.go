package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wkarimi/nyumbapay/internal/alerts"
	"github.com/wkarimi/nyumbapay/internal/risk"
)

func testHub(t *testing.T) (*Hub, string, context.CancelFunc) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub(slog.New(slog.DiscardHandler))
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWebSocket))
	t.Cleanup(srv.Close)

	return hub, "ws" + strings.TrimPrefix(srv.URL, "http"), cancel
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) *Event {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, message, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var e Event
	if err := json.Unmarshal(message, &e); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return &e
}

func TestHub_BroadcastAlert(t *testing.T) {
	hub, url, cancel := testHub(t)
	defer cancel()

	conn := dial(t, url)
	time.Sleep(50 * time.Millisecond) // let registration land

	hub.BroadcastAlert(&alerts.SecurityAlert{
		ID:     "alr_1",
		UserID: "user_1",
		Type:   alerts.TypeFraudDetected,
	})

	e := readEvent(t, conn)
	if e.Type != EventAlert || e.UserID != "user_1" {
		t.Errorf("unexpected event: %+v", e)
	}
}

func TestHub_SubscriptionFiltersByUser(t *testing.T) {
	hub, url, cancel := testHub(t)
	defer cancel()

	conn := dial(t, url)
	time.Sleep(50 * time.Millisecond)

	sub, _ := json.Marshal(Subscription{UserIDs: []string{"user_2"}})
	if err := conn.WriteMessage(websocket.TextMessage, sub); err != nil {
		t.Fatalf("write subscription: %v", err)
	}
	time.Sleep(50 * time.Millisecond) // let the filter apply

	hub.BroadcastTransaction("user_1", risk.LevelLow, map[string]string{"id": "txn_1"})
	hub.BroadcastTransaction("user_2", risk.LevelLow, map[string]string{"id": "txn_2"})

	e := readEvent(t, conn)
	if e.UserID != "user_2" {
		t.Errorf("filter leaked event for %q", e.UserID)
	}
}

func TestSubscription_Matches(t *testing.T) {
	tests := []struct {
		name  string
		sub   Subscription
		event Event
		want  bool
	}{
		{"zero subscription matches all", Subscription{}, Event{Type: EventAlert}, true},
		{"event type match", Subscription{EventTypes: []EventType{EventAlert}}, Event{Type: EventAlert}, true},
		{"event type mismatch", Subscription{EventTypes: []EventType{EventAlert}}, Event{Type: EventTransaction}, false},
		{"user match", Subscription{UserIDs: []string{"u1"}}, Event{Type: EventAlert, UserID: "u1"}, true},
		{"user mismatch", Subscription{UserIDs: []string{"u1"}}, Event{Type: EventAlert, UserID: "u2"}, false},
		{"below min risk", Subscription{MinRiskLevel: risk.LevelHigh}, Event{Type: EventTransaction, RiskLevel: risk.LevelMedium}, false},
		{"at min risk", Subscription{MinRiskLevel: risk.LevelHigh}, Event{Type: EventTransaction, RiskLevel: risk.LevelHigh}, true},
		{"min risk ignores unleveled events", Subscription{MinRiskLevel: risk.LevelHigh}, Event{Type: EventAlert}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.sub.matches(&tt.event); got != tt.want {
				t.Errorf("matches = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestHub_ShutdownClosesClients(t *testing.T) {
	hub, url, cancel := testHub(t)

	conn := dial(t, url)
	time.Sleep(50 * time.Millisecond)
	cancel()

	_ = hub
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return // connection closed, as expected
		}
	}
}
