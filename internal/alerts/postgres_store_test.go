//go:build integration

package alerts

import (
	"context"
	"testing"
	"time"

	"github.com/wkarimi/nyumbapay/internal/testutil"
)

func TestPostgres_CreateAndListByUser(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	store := NewPostgresStore(db)
	ctx := context.Background()

	base := time.Now().UTC().Truncate(time.Microsecond)
	for i, id := range []string{"alr_pg_1", "alr_pg_2"} {
		a := &SecurityAlert{
			ID:        id,
			UserID:    "user_pg",
			Type:      TypeFraudDetected,
			Title:     "Fraudulent payment blocked",
			Message:   "A payment from your account was blocked.",
			Details:   map[string]any{"transactionId": "txn_" + id},
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		}
		if err := store.Create(ctx, a); err != nil {
			t.Fatalf("Create %s failed: %v", id, err)
		}
	}

	list, err := store.ListByUser(ctx, "user_pg", 10)
	if err != nil {
		t.Fatalf("ListByUser failed: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("len = %d, want 2", len(list))
	}
	// Newest first.
	if list[0].ID != "alr_pg_2" {
		t.Errorf("first alert = %s, want alr_pg_2", list[0].ID)
	}
	if list[0].Details["transactionId"] != "txn_alr_pg_2" {
		t.Errorf("details not preserved: %v", list[0].Details)
	}
}

func TestPostgres_ListByUser_OtherUserEmpty(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	store := NewPostgresStore(db)

	list, err := store.ListByUser(context.Background(), "user_without_alerts", 10)
	if err != nil {
		t.Fatalf("ListByUser failed: %v", err)
	}
	if len(list) != 0 {
		t.Errorf("len = %d, want 0", len(list))
	}
}
