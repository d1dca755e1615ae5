package journal

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"projd/internal/model"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()
	s, err := Open(ctx, filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() }) //nolint:errcheck
	if err := ApplyMigrations(ctx, s.DB()); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	return s
}

func TestApplyMigrationsIsRepeatable(t *testing.T) {
	s := openTestStore(t)
	if err := ApplyMigrations(context.Background(), s.DB()); err != nil {
		t.Fatalf("second migration pass: %v", err)
	}
}

func TestInsertAndListEvents(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	for i, rec := range []model.EventRecord{
		{EventID: "a", EventType: "window", Subtype: "new", Payload: `{"change":"new"}`},
		{EventID: "b", EventType: "window", Subtype: "close"},
		{EventID: "c", EventType: "tick"},
	} {
		rec.ReceivedAt = base.Add(time.Duration(i) * time.Second)
		rec.Status = model.EventDone
		if err := s.InsertEvent(ctx, rec); err != nil {
			t.Fatalf("insert %s: %v", rec.EventID, err)
		}
	}

	got, err := s.ListRecent(ctx, 2, "")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 || got[0].EventID != "c" || got[1].EventID != "b" {
		t.Fatalf("expected newest first [c b], got %+v", got)
	}

	windows, err := s.ListRecent(ctx, 10, "window")
	if err != nil {
		t.Fatalf("list filtered: %v", err)
	}
	if len(windows) != 2 {
		t.Fatalf("expected 2 window events, got %d", len(windows))
	}
	if windows[1].Payload != `{"change":"new"}` {
		t.Fatalf("payload not round-tripped: %q", windows[1].Payload)
	}
	if !windows[1].ReceivedAt.Equal(base) {
		t.Fatalf("timestamp not round-tripped: %v", windows[1].ReceivedAt)
	}
}

func TestUpdateEventStatus(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	rec := model.EventRecord{
		EventID: "a", EventType: "window", Subtype: "new",
		ReceivedAt: time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC),
	}
	if err := s.InsertEvent(ctx, rec); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := s.UpdateEventStatus(ctx, "a", model.EventError, "handler failed"); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, err := s.ListRecent(ctx, 1, "")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if got[0].Status != model.EventError || got[0].ErrorMessage != "handler failed" {
		t.Fatalf("status not updated: %+v", got[0])
	}
	if err := s.UpdateEventStatus(ctx, "missing", model.EventDone, ""); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPruneBefore(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		rec := model.EventRecord{
			EventID:    string(rune('a' + i)),
			EventType:  "window",
			ReceivedAt: base.Add(time.Duration(i) * time.Hour),
		}
		if err := s.InsertEvent(ctx, rec); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}
	pruned, err := s.PruneBefore(ctx, base.Add(2*time.Hour))
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if pruned != 2 {
		t.Fatalf("expected 2 pruned, got %d", pruned)
	}
	rest, err := s.ListRecent(ctx, 10, "")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(rest) != 3 {
		t.Fatalf("expected 3 survivors, got %d", len(rest))
	}
}
