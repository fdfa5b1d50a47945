package store

import (
	"context"
	"testing"
	"time"

	"github.com/aide-bot/aide/internal/models"
)

func TestInMemoryAppendAndRowsByUser(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	for i, text := range []string{"first", "second"} {
		rec := models.Record{
			Sheet:     models.SheetDiary,
			UserID:    42,
			Username:  "tester",
			Fields:    map[string]string{"text": text},
			CreatedAt: time.Date(2025, 1, 1, 10, i, 0, 0, time.UTC),
		}
		if err := s.AppendRow(ctx, rec); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if err := s.AppendRow(ctx, models.Record{Sheet: models.SheetDiary, UserID: 7, Fields: map[string]string{"text": "other user"}}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	rows, err := s.RowsByUser(ctx, models.SheetDiary, 42)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[0].Fields["text"] != "first" || rows[1].Fields["text"] != "second" {
		t.Errorf("rows not ordered oldest first: %v", rows)
	}
	if rows[0].ID == "" {
		t.Error("expected generated record id")
	}
}

func TestInMemoryPatchLatestRowMergesFields(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	if err := s.AppendRow(ctx, models.Record{
		Sheet:     models.SheetExercises,
		UserID:    1,
		Fields:    map[string]string{"exercise": "Дневник мыслей", "step_1": "запись"},
		CreatedAt: time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC),
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.AppendRow(ctx, models.Record{
		Sheet:     models.SheetExercises,
		UserID:    1,
		Fields:    map[string]string{"exercise": "Дневник мыслей", "step_1": "вторая запись"},
		CreatedAt: time.Date(2025, 1, 1, 11, 0, 0, 0, time.UTC),
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	match := func(r models.Record) bool { return r.Fields["exercise"] == "Дневник мыслей" }
	err := s.PatchLatestRow(ctx, models.SheetExercises, 1, match, map[string]string{"insight": "понял паттерн"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	rows, _ := s.RowsByUser(ctx, models.SheetExercises, 1)
	// Only the newest matching row is patched; sibling fields survive.
	if rows[0].Fields["insight"] != "" {
		t.Error("older row must not be patched")
	}
	if rows[1].Fields["insight"] != "понял паттерн" {
		t.Errorf("expected patched insight, got %q", rows[1].Fields["insight"])
	}
	if rows[1].Fields["step_1"] != "вторая запись" {
		t.Errorf("patch must preserve untouched fields, got %q", rows[1].Fields["step_1"])
	}
}

func TestInMemoryPatchLatestRowNoMatch(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()
	err := s.PatchLatestRow(ctx, models.SheetExercises, 1, nil, map[string]string{"x": "y"})
	if err != ErrNoRows {
		t.Errorf("expected ErrNoRows, got %v", err)
	}
}

func TestInMemoryListUsers(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()
	for _, id := range []int64{1, 2, 1, 3} {
		if err := s.AppendRow(ctx, models.Record{Sheet: models.SheetMessages, UserID: id}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	users, err := s.ListUsers(ctx, models.SheetMessages)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(users) != 3 {
		t.Errorf("expected 3 distinct users, got %v", users)
	}
}

func TestInMemoryProfileRoundTrip(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	if _, err := s.GetProfile(ctx, 5); err != ErrNoRows {
		t.Errorf("expected ErrNoRows for missing profile, got %v", err)
	}

	p := models.Profile{UserID: 5, Name: "Аня", FormOfAddress: models.AddressInformal, Goal: "меньше тревожиться"}
	if err := s.SaveProfile(ctx, p); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, err := s.GetProfile(ctx, 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Name != "Аня" || got.Goal != "меньше тревожиться" {
		t.Errorf("profile round trip mismatch: %+v", got)
	}
}

func TestDetectDSNType(t *testing.T) {
	cases := map[string]string{
		"postgres://u:p@localhost/db": "postgres",
		"postgresql://u:p@host/db":    "postgres",
		"host=localhost user=aide":    "postgres",
		"/var/lib/aide/aide.db":       "sqlite",
		"aide.db":                     "sqlite",
	}
	for dsn, want := range cases {
		if got := DetectDSNType(dsn); got != want {
			t.Errorf("DetectDSNType(%q) = %q, want %q", dsn, got, want)
		}
	}
}
