package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/michaelbrown/cadforge/internal/storage"
)

func testStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("opening memory db: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func record(t *testing.T, s *SQLiteStore, id, request string) *storage.CycleRecord {
	t.Helper()
	c := &storage.CycleRecord{ID: id, Request: request, Provider: "ollama", Model: "qwen3:14b"}
	if err := s.RecordRequest(context.Background(), c); err != nil {
		t.Fatalf("RecordRequest: %v", err)
	}
	return c
}

func TestRecordRequestIsPending(t *testing.T) {
	s := testStore(t)
	record(t, s, "abc12345-0000-0000-0000-000000000000", "Create a 50mm cube")

	got, err := s.GetCycle(context.Background(), "abc12345-0000-0000-0000-000000000000")
	if err != nil {
		t.Fatalf("GetCycle: %v", err)
	}
	if got.Status != storage.StatusPending {
		t.Errorf("status = %q, want %q", got.Status, storage.StatusPending)
	}
	if got.Request != "Create a 50mm cube" {
		t.Errorf("request = %q", got.Request)
	}
	if got.CreatedAt.IsZero() {
		t.Error("created_at should not be zero")
	}
	if !got.CompletedAt.IsZero() {
		t.Error("completed_at should be zero for a pending cycle")
	}
	if len(got.Attempts) != 0 {
		t.Errorf("got %d attempts, want 0", len(got.Attempts))
	}
}

func TestCompleteCycleStoresAttempts(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	c := record(t, s, "cyc1", "Create a 50mm cube")

	c.Kind = "script"
	c.Status = storage.StatusSucceeded
	c.Output = "created cube"
	c.Attempts = []storage.AttemptRecord{
		{
			Phase:        "generate",
			Script:       "package main\n\nfunc Run() { panic(\"boom\") }\n",
			ErrorSummary: "panic: boom",
			Warnings:     []string{"Potential file operation on line 3: f := \"file\""},
			Duration:     15 * time.Millisecond,
		},
		{
			Phase:    "repair",
			Script:   "package main\n\nfunc Run() {}\n",
			Success:  true,
			Stdout:   "created cube\n",
			Duration: 3 * time.Millisecond,
		},
	}
	if err := s.CompleteCycle(ctx, c); err != nil {
		t.Fatalf("CompleteCycle: %v", err)
	}

	got, err := s.GetCycle(ctx, "cyc1")
	if err != nil {
		t.Fatalf("GetCycle: %v", err)
	}
	if got.Status != storage.StatusSucceeded {
		t.Errorf("status = %q, want %q", got.Status, storage.StatusSucceeded)
	}
	if got.Kind != "script" {
		t.Errorf("kind = %q, want script", got.Kind)
	}
	if got.CompletedAt.IsZero() {
		t.Error("completed_at should be set")
	}
	if len(got.Attempts) != 2 {
		t.Fatalf("got %d attempts, want 2", len(got.Attempts))
	}
	first, second := got.Attempts[0], got.Attempts[1]
	if first.Success || first.ErrorSummary != "panic: boom" {
		t.Errorf("first attempt = %+v", first)
	}
	if len(first.Warnings) != 1 {
		t.Errorf("first attempt warnings = %v", first.Warnings)
	}
	if first.Duration != 15*time.Millisecond {
		t.Errorf("first attempt duration = %s", first.Duration)
	}
	if !second.Success || second.Phase != "repair" || second.Stdout != "created cube\n" {
		t.Errorf("second attempt = %+v", second)
	}
}

func TestCompleteUnknownCycle(t *testing.T) {
	s := testStore(t)
	err := s.CompleteCycle(context.Background(), &storage.CycleRecord{ID: "ghost", Status: storage.StatusFailed})
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestGetCycleByPrefix(t *testing.T) {
	s := testStore(t)
	record(t, s, "abc12345-0000-0000-0000-000000000000", "r")

	got, err := s.GetCycle(context.Background(), "abc12345")
	if err != nil {
		t.Fatalf("GetCycle by prefix: %v", err)
	}
	if got.ID != "abc12345-0000-0000-0000-000000000000" {
		t.Errorf("got ID %q", got.ID)
	}
}

func TestGetCycleAmbiguousPrefix(t *testing.T) {
	s := testStore(t)
	record(t, s, "abc00000-0000-0000-0000-000000000000", "r1")
	record(t, s, "abc11111-0000-0000-0000-000000000000", "r2")

	_, err := s.GetCycle(context.Background(), "abc")
	if err == nil {
		t.Fatal("expected error for ambiguous prefix")
	}
	if errors.Is(err, storage.ErrNotFound) {
		t.Fatal("ambiguous prefix should not be reported as not found")
	}
}

func TestGetCycleNotFound(t *testing.T) {
	s := testStore(t)
	_, err := s.GetCycle(context.Background(), "nope")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestListCyclesNewestFirst(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i, id := range []string{"aaa", "bbb", "ccc"} {
		c := &storage.CycleRecord{ID: id, Request: id, CreatedAt: base.Add(time.Duration(i) * 500 * time.Millisecond)}
		if err := s.RecordRequest(ctx, c); err != nil {
			t.Fatalf("RecordRequest: %v", err)
		}
	}

	cycles, err := s.ListCycles(ctx, storage.ListOptions{})
	if err != nil {
		t.Fatalf("ListCycles: %v", err)
	}
	if len(cycles) != 3 {
		t.Fatalf("got %d cycles, want 3", len(cycles))
	}
	if cycles[0].ID != "ccc" || cycles[2].ID != "aaa" {
		t.Errorf("order = %s, %s, %s", cycles[0].ID, cycles[1].ID, cycles[2].ID)
	}
}

func TestListCyclesFilterAndLimit(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	for _, id := range []string{"a1", "a2", "a3", "a4"} {
		record(t, s, id, id)
	}
	for _, id := range []string{"a1", "a3"} {
		if err := s.CompleteCycle(ctx, &storage.CycleRecord{ID: id, Status: storage.StatusFailed}); err != nil {
			t.Fatalf("CompleteCycle: %v", err)
		}
	}

	failed, err := s.ListCycles(ctx, storage.ListOptions{Status: storage.StatusFailed})
	if err != nil {
		t.Fatalf("ListCycles: %v", err)
	}
	if len(failed) != 2 {
		t.Errorf("got %d failed cycles, want 2", len(failed))
	}

	limited, err := s.ListCycles(ctx, storage.ListOptions{Limit: 3})
	if err != nil {
		t.Fatalf("ListCycles: %v", err)
	}
	if len(limited) != 3 {
		t.Errorf("got %d cycles, want 3", len(limited))
	}
}

func TestDeleteCycle(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	c := record(t, s, "del1", "r")
	c.Status = storage.StatusSucceeded
	c.Attempts = []storage.AttemptRecord{{Phase: "generate", Script: "package main", Success: true}}
	if err := s.CompleteCycle(ctx, c); err != nil {
		t.Fatalf("CompleteCycle: %v", err)
	}

	if err := s.DeleteCycle(ctx, "del1"); err != nil {
		t.Fatalf("DeleteCycle: %v", err)
	}
	if _, err := s.GetCycle(ctx, "del1"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("GetCycle after delete: %v", err)
	}
	attempts, err := s.loadAttempts(ctx, "del1")
	if err != nil {
		t.Fatalf("loadAttempts: %v", err)
	}
	if len(attempts) != 0 {
		t.Errorf("expected no attempts after delete, got %d", len(attempts))
	}
}
