package store

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/notecam/fieldsync/internal/model"
)

// setupTestStore creates a temporary store for testing.
func setupTestStore(t *testing.T) *Store {
	t.Helper()

	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPutGetRemove(t *testing.T) {
	s := setupTestStore(t)

	if _, ok := s.Get("missing"); ok {
		t.Error("expected Get on missing key to report absent")
	}

	if err := s.Put("k", []byte(`{"a":1}`)); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	raw, ok := s.Get("k")
	if !ok || string(raw) != `{"a":1}` {
		t.Errorf("Get returned %q, %v", raw, ok)
	}

	// Put is an upsert.
	if err := s.Put("k", []byte(`{"a":2}`)); err != nil {
		t.Fatalf("second Put failed: %v", err)
	}
	raw, _ = s.Get("k")
	if string(raw) != `{"a":2}` {
		t.Errorf("expected overwritten value, got %q", raw)
	}

	if err := s.Remove("k"); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if _, ok := s.Get("k"); ok {
		t.Error("expected key to be gone after Remove")
	}
}

func TestCollectionsRoundTrip(t *testing.T) {
	s := setupTestStore(t)

	if got := s.Users(); len(got) != 0 {
		t.Errorf("expected empty users, got %d", len(got))
	}

	users := map[string]model.User{
		"jdoe": {Username: "jdoe", Password: "pw", Role: model.RoleEmployee, Name: "Jane Doe"},
	}
	if err := s.PutUsers(users); err != nil {
		t.Fatalf("PutUsers failed: %v", err)
	}
	got := s.Users()
	if len(got) != 1 || got["jdoe"].Name != "Jane Doe" {
		t.Errorf("unexpected users after round trip: %+v", got)
	}

	zones := []model.Zone{{ID: 1, Code: "NF-01", Name: "North Field", Employee: "jdoe", IsActive: true}}
	if err := s.PutAreas(zones); err != nil {
		t.Fatalf("PutAreas failed: %v", err)
	}
	if got := s.Areas(); len(got) != 1 || got[0].Code != "NF-01" {
		t.Errorf("unexpected areas after round trip: %+v", got)
	}
}

func TestCorruptCollectionYieldsEmpty(t *testing.T) {
	s := setupTestStore(t)

	if err := s.Put(ColUsers, []byte("not json")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if got := s.Users(); len(got) != 0 {
		t.Errorf("expected corrupt users collection to read as empty, got %d", len(got))
	}
}

func TestLastSyncTime(t *testing.T) {
	s := setupTestStore(t)

	if got := s.LastSyncTime(); got != nil {
		t.Errorf("expected nil last sync time, got %v", got)
	}

	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	if err := s.SetLastSyncTime(now); err != nil {
		t.Fatalf("SetLastSyncTime failed: %v", err)
	}
	got := s.LastSyncTime()
	if got == nil || !got.Equal(now) {
		t.Errorf("expected %v, got %v", now, got)
	}
}

func TestHistoryCap(t *testing.T) {
	s := setupTestStore(t)

	for i := 0; i < model.SyncHistoryLimit+10; i++ {
		rec := model.CycleRecord{
			Timestamp:   time.Now(),
			Success:     true,
			ItemsSynced: i,
		}
		if err := s.AppendHistory(rec); err != nil {
			t.Fatalf("AppendHistory failed: %v", err)
		}
	}

	history := s.History()
	if len(history) != model.SyncHistoryLimit {
		t.Fatalf("expected history capped at %d, got %d", model.SyncHistoryLimit, len(history))
	}
	// The oldest entries fall off; the newest survives.
	if history[len(history)-1].ItemsSynced != model.SyncHistoryLimit+9 {
		t.Errorf("expected newest record retained, got %d", history[len(history)-1].ItemsSynced)
	}
}

func TestDraftRoundTrip(t *testing.T) {
	s := setupTestStore(t)

	if d := s.Draft("jdoe"); d != nil {
		t.Errorf("expected nil draft, got %+v", d)
	}

	n := 3
	d := model.Draft{Username: "jdoe", Step: 1, AreaCode: "NF-01", NumberBefore: &n}
	if err := s.PutDraft(d); err != nil {
		t.Fatalf("PutDraft failed: %v", err)
	}
	got := s.Draft("jdoe")
	if got == nil || got.AreaCode != "NF-01" || *got.NumberBefore != 3 {
		t.Errorf("unexpected draft: %+v", got)
	}

	if err := s.RemoveDraft("jdoe"); err != nil {
		t.Fatalf("RemoveDraft failed: %v", err)
	}
	if d := s.Draft("jdoe"); d != nil {
		t.Errorf("expected draft gone, got %+v", d)
	}
}

func TestResetProcessing(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	id, err := s.Enqueue(ctx, model.ItemReport, []byte(`{"id":1}`))
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	keep, err := s.Enqueue(ctx, model.ItemReport, []byte(`{"id":2}`))
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if err := s.MarkProcessing(ctx, id); err != nil {
		t.Fatalf("MarkProcessing failed: %v", err)
	}
	if err := s.MarkFailedPermanent(ctx, keep, "gave up"); err != nil {
		t.Fatalf("MarkFailedPermanent failed: %v", err)
	}

	n, err := s.ResetProcessing(ctx)
	if err != nil {
		t.Fatalf("ResetProcessing failed: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 recovered item, got %d", n)
	}

	items, err := s.PendingItems(ctx, time.Now())
	if err != nil {
		t.Fatalf("PendingItems failed: %v", err)
	}
	if len(items) != 1 || items[0].ID != id {
		t.Fatalf("recovered item not pending: %+v", items)
	}
	failed, _ := s.FailedItems(ctx)
	if len(failed) != 1 || failed[0].ID != keep {
		t.Errorf("failed-permanent item was touched: %+v", failed)
	}
}

func TestQueueLifecycle(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	id, err := s.Enqueue(ctx, model.ItemReport, []byte(`{"id":1}`))
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	items, err := s.PendingItems(ctx, time.Now())
	if err != nil {
		t.Fatalf("PendingItems failed: %v", err)
	}
	if len(items) != 1 || items[0].ID != id || items[0].Type != model.ItemReport {
		t.Fatalf("unexpected pending items: %+v", items)
	}

	if err := s.MarkProcessing(ctx, id); err != nil {
		t.Fatalf("MarkProcessing failed: %v", err)
	}
	items, _ = s.PendingItems(ctx, time.Now())
	if len(items) != 0 {
		t.Errorf("processing item still listed as pending")
	}

	// Retry puts it back into pending with a future attempt time.
	next := time.Now().Add(time.Minute)
	if err := s.MarkRetry(ctx, id, 1, next, "transient"); err != nil {
		t.Fatalf("MarkRetry failed: %v", err)
	}
	items, _ = s.PendingItems(ctx, time.Now())
	if len(items) != 0 {
		t.Errorf("item inside backoff window listed as due")
	}
	items, _ = s.PendingItems(ctx, time.Now().Add(2*time.Minute))
	if len(items) != 1 || items[0].Attempts != 1 || items[0].LastError != "transient" {
		t.Fatalf("unexpected item after retry: %+v", items)
	}

	if err := s.MarkFailedPermanent(ctx, id, "gave up"); err != nil {
		t.Fatalf("MarkFailedPermanent failed: %v", err)
	}
	items, _ = s.PendingItems(ctx, time.Now().Add(time.Hour))
	if len(items) != 0 {
		t.Errorf("failed-permanent item still pending")
	}
	failed, err := s.FailedItems(ctx)
	if err != nil {
		t.Fatalf("FailedItems failed: %v", err)
	}
	if len(failed) != 1 || failed[0].LastError != "gave up" {
		t.Fatalf("unexpected failed items: %+v", failed)
	}

	if err := s.DeleteItem(ctx, id); err != nil {
		t.Fatalf("DeleteItem failed: %v", err)
	}
	failed, _ = s.FailedItems(ctx)
	if len(failed) != 0 {
		t.Errorf("item still present after delete")
	}
}

func TestQueueOrderAndLength(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := s.Enqueue(ctx, model.ItemUser, []byte(fmt.Sprintf(`{"n":%d}`, i))); err != nil {
			t.Fatalf("Enqueue failed: %v", err)
		}
	}

	n, err := s.QueueLength(ctx)
	if err != nil {
		t.Fatalf("QueueLength failed: %v", err)
	}
	if n != 3 {
		t.Errorf("expected queue length 3, got %d", n)
	}

	items, _ := s.PendingItems(ctx, time.Now())
	for i := 1; i < len(items); i++ {
		if items[i].ID < items[i-1].ID {
			t.Errorf("pending items not in enqueue order: %+v", items)
		}
	}
}

func TestReopenPersists(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.db")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if err := s.Put("k", []byte(`"v"`)); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if _, err := s.Enqueue(context.Background(), model.ItemPhoto, []byte(`{}`)); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	s2, err := Open(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer s2.Close()

	if raw, ok := s2.Get("k"); !ok || string(raw) != `"v"` {
		t.Errorf("value lost across reopen: %q %v", raw, ok)
	}
	n, _ := s2.QueueLength(context.Background())
	if n != 1 {
		t.Errorf("queue item lost across reopen, length %d", n)
	}
}
