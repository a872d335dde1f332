package alerts

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

type captureSink struct {
	mu     sync.Mutex
	alerts []*SecurityAlert
	err    error
	done   chan struct{}
}

func newCaptureSink() *captureSink {
	return &captureSink{done: make(chan struct{}, 16)}
}

func (s *captureSink) Deliver(_ context.Context, a *SecurityAlert) error {
	s.mu.Lock()
	s.alerts = append(s.alerts, a)
	s.mu.Unlock()
	s.done <- struct{}{}
	return s.err
}

func (s *captureSink) wait(t *testing.T) {
	t.Helper()
	select {
	case <-s.done:
	case <-time.After(2 * time.Second):
		t.Fatal("sink never received the alert")
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestEmit_PersistsAndDelivers(t *testing.T) {
	store := NewMemoryStore()
	sink := newCaptureSink()
	e := NewEmitter(store, sink, discardLogger())

	e.Emit(context.Background(), "user_1", TypeFraudDetected, map[string]any{"transactionId": "txn_1"})
	sink.wait(t)

	list, err := store.ListByUser(context.Background(), "user_1", 10)
	if err != nil || len(list) != 1 {
		t.Fatalf("ListByUser = %v, %v", list, err)
	}

	a := list[0]
	if a.Type != TypeFraudDetected {
		t.Errorf("type = %q", a.Type)
	}
	if a.Title != catalog[TypeFraudDetected].Title || a.Message != catalog[TypeFraudDetected].Message {
		t.Errorf("template not applied: %+v", a)
	}
	if a.Details["transactionId"] != "txn_1" {
		t.Errorf("details lost: %v", a.Details)
	}
	if a.ID == "" || a.CreatedAt.IsZero() {
		t.Errorf("alert missing identity fields: %+v", a)
	}
}

func TestEmit_SinkFailureSwallowed(t *testing.T) {
	store := NewMemoryStore()
	sink := newCaptureSink()
	sink.err = errors.New("notification service down")
	e := NewEmitter(store, sink, discardLogger())

	// Must not panic or propagate anything.
	e.Emit(context.Background(), "user_1", TypeSuspiciousActivity, nil)
	sink.wait(t)

	// The alert is still on record.
	list, _ := store.ListByUser(context.Background(), "user_1", 10)
	if len(list) != 1 {
		t.Errorf("alert not persisted despite sink failure: %d", len(list))
	}
}

func TestEmit_NilSink(t *testing.T) {
	store := NewMemoryStore()
	e := NewEmitter(store, nil, discardLogger())

	e.Emit(context.Background(), "user_1", TypeUnusualLogin, nil)

	list, _ := store.ListByUser(context.Background(), "user_1", 10)
	if len(list) != 1 {
		t.Errorf("alert not persisted with nil sink: %d", len(list))
	}
}

func TestEmit_UnknownTypeDropped(t *testing.T) {
	store := NewMemoryStore()
	e := NewEmitter(store, nil, discardLogger())

	e.Emit(context.Background(), "user_1", AlertType("made-up"), nil)

	list, _ := store.ListByUser(context.Background(), "user_1", 10)
	if len(list) != 0 {
		t.Errorf("unknown alert type was persisted: %v", list)
	}
}

func TestEmit_NotifyCallback(t *testing.T) {
	e := NewEmitter(NewMemoryStore(), nil, discardLogger())

	var got *SecurityAlert
	e.OnEmit(func(a *SecurityAlert) { got = a })

	e.Emit(context.Background(), "user_1", TypeVerificationRequired, nil)
	if got == nil || got.Type != TypeVerificationRequired {
		t.Errorf("callback not invoked: %+v", got)
	}
}

func TestCatalog_CoversAllTypes(t *testing.T) {
	for _, typ := range []AlertType{TypeFraudDetected, TypeSuspiciousActivity, TypeVerificationRequired, TypeUnusualLogin} {
		tmpl, ok := catalog[typ]
		if !ok || tmpl.Title == "" || tmpl.Message == "" {
			t.Errorf("catalog entry for %q incomplete: %+v", typ, tmpl)
		}
	}
}

func TestWebhookSink_SignsPayload(t *testing.T) {
	const secret = "whsec_test"
	var (
		gotSig  string
		gotBody []byte
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSig = r.Header.Get("X-Nyumbapay-Signature")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	sink := NewWebhookSink(srv.URL, secret)
	alert := &SecurityAlert{ID: "alr_1", UserID: "user_1", Type: TypeFraudDetected, CreatedAt: time.Now().UTC()}
	if err := sink.Deliver(context.Background(), alert); err != nil {
		t.Fatalf("Deliver: %v", err)
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(gotBody)
	if want := hex.EncodeToString(mac.Sum(nil)); gotSig != want {
		t.Errorf("signature mismatch: got %q want %q", gotSig, want)
	}

	var decoded SecurityAlert
	if err := json.Unmarshal(gotBody, &decoded); err != nil || decoded.ID != "alr_1" {
		t.Errorf("payload not the alert: %v %v", decoded, err)
	}
}

func TestWebhookSink_Non2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	sink := NewWebhookSink(srv.URL, "")
	err := sink.Deliver(context.Background(), &SecurityAlert{ID: "alr_1"})
	if err == nil {
		t.Error("expected error for 502 response")
	}
}
