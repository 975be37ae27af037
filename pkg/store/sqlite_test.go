package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"lesstraveled/pkg/db"
	"lesstraveled/pkg/model"
	"lesstraveled/pkg/segment"
)

// setupTestStore creates a test database and store for each test.
func setupTestStore(t *testing.T) (*SQLiteStore, *db.DB) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")

	d, err := db.Init(dbPath)
	if err != nil {
		t.Fatalf("Failed to init DB: %v", err)
	}
	t.Cleanup(func() { d.Close() })

	return NewSQLiteStore(d, segment.DefaultGap), d
}

func TestSQLiteStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	st, d := setupTestStore(t)

	first, err := st.Load(ctx)
	if err != nil {
		t.Fatalf("Load() on empty db error = %v", err)
	}
	if len(first.Drives) != 0 {
		t.Fatalf("expected empty record, got %d drives", len(first.Drives))
	}

	want := sampleRecord()
	if err := st.Save(ctx, want); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := st.Load(ctx)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if diff := diffRecords(want, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}

	var drives, samples int
	if err := d.QueryRow("SELECT drives, samples FROM history_document WHERE key = ?", FileName).Scan(&drives, &samples); err != nil {
		t.Fatal(err)
	}
	if drives != 2 || samples != 4 {
		t.Errorf("unexpected row metadata drives=%d samples=%d", drives, samples)
	}
}

func TestSQLiteStore_CorruptionRecovery(t *testing.T) {
	ctx := context.Background()
	st, d := setupTestStore(t)

	if _, err := d.Exec("INSERT INTO history_document (key, document) VALUES (?, ?)", FileName, []byte("{{{not json")); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 2; i++ {
		rec, err := st.Load(ctx)
		if err != nil {
			t.Fatalf("Load() #%d error = %v", i, err)
		}
		if len(rec.Drives) != 0 {
			t.Fatalf("Load() #%d expected empty record, got %d drives", i, len(rec.Drives))
		}
	}

	var doc string
	if err := d.QueryRow("SELECT document FROM history_document WHERE key = ?", FileName).Scan(&doc); err != nil {
		t.Fatal(err)
	}
	if doc != `{"drives":[]}` {
		t.Errorf("corrupt row not replaced, got %q", doc)
	}
}

func TestSQLiteStore_LegacyRowMigrates(t *testing.T) {
	ctx := context.Background()
	st, d := setupTestStore(t)

	legacy := `{"visited":[{"latitude":1,"longitude":1,"altitude":0,"time":"2021-01-01T00:00:00Z"}]}`
	if _, err := d.Exec("INSERT INTO history_document (key, document) VALUES (?, ?)", FileName, []byte(legacy)); err != nil {
		t.Fatal(err)
	}

	rec, err := st.Load(ctx)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	want := model.HistoryRecord{Drives: []model.Drive{{
		model.NewSample(1, 1, 0, time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)),
	}}}
	if diff := diffRecords(want, rec); diff != "" {
		t.Errorf("unexpected migrated record (-want +got):\n%s", diff)
	}
}
