package store

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"lesstraveled/pkg/model"
	"lesstraveled/pkg/segment"
)

var t0 = time.Date(2021, 1, 15, 8, 30, 0, 0, time.UTC)

func sampleRecord() model.HistoryRecord {
	return model.HistoryRecord{Drives: []model.Drive{
		{
			model.NewSample(47.6062, -122.3321, 56.2, t0),
			model.NewSample(47.6070, -122.3300, 57.0, t0.Add(10*time.Second)),
			model.NewSample(47.6081, -122.3290, -1.5, t0.Add(20*time.Second+123*time.Millisecond)),
		},
		{
			model.NewSample(-33.8688, 151.2093, 0, t0.Add(48*time.Hour)),
		},
	}}
}

func setupFileStore(t *testing.T) (*FileStore, string) {
	t.Helper()
	dir := t.TempDir()
	return NewFileStore(dir, segment.DefaultGap), filepath.Join(dir, FileName)
}

func diffRecords(want, got model.HistoryRecord) string {
	return cmp.Diff(want, got, cmpopts.EquateEmpty())
}

func TestFileStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	st, path := setupFileStore(t)

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

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{`"drives"`, `"latitude"`, `"longitude"`, `"altitude"`, `"time":"2021-01-15T08:30:00Z"`} {
		if !strings.Contains(string(raw), key) {
			t.Errorf("document missing %s: %s", key, raw)
		}
	}
}

func TestFileStore_MissingFileCreatesEmpty(t *testing.T) {
	ctx := context.Background()
	st, path := setupFileStore(t)

	rec, err := st.Load(ctx)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(rec.Drives) != 0 {
		t.Errorf("expected empty record, got %d drives", len(rec.Drives))
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("empty history was not persisted: %v", err)
	}
	if string(raw) != `{"drives":[]}` {
		t.Errorf("unexpected empty document %q", raw)
	}
}

func TestFileStore_CorruptionRecovery(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		content []byte
	}{
		{"Garbage", []byte{0xde, 0xad, 0xbe, 0xef, 0x00, 0x7b}},
		{"ZeroLength", []byte{}},
		{"Truncated", []byte(`{"drives":[[{"latitude":1,"longitude":2,"altitude":3,"time":"2021-01-`)},
		{"WrongType", []byte(`{"drives":"nope"}`)},
		{"SampleMissingTime", []byte(`{"drives":[[{"latitude":1,"longitude":2,"altitude":3}]]}`)},
		{"Null", []byte(`null`)},
		{"EmptyObject", []byte(`{}`)},
		{"NullDrives", []byte(`{"drives":null}`)},
		{"UnknownShape", []byte(`{"foo":1}`)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st, path := setupFileStore(t)
			if err := os.WriteFile(path, tt.content, 0o644); err != nil {
				t.Fatal(err)
			}

			first, err := st.Load(ctx)
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			if len(first.Drives) != 0 {
				t.Fatalf("expected empty record, got %d drives", len(first.Drives))
			}

			second, err := st.Load(ctx)
			if err != nil {
				t.Fatalf("second Load() error = %v", err)
			}
			if diff := diffRecords(first, second); diff != "" {
				t.Errorf("recovery not idempotent (-first +second):\n%s", diff)
			}

			raw, err := os.ReadFile(path)
			if err != nil {
				t.Fatal(err)
			}
			if string(raw) != `{"drives":[]}` {
				t.Errorf("corrupt file not replaced, got %q", raw)
			}
		})
	}
}

func TestFileStore_UnreadableLeavesFileAlone(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	// A directory where the document should be cannot be read as a file.
	path := filepath.Join(dir, FileName)
	if err := os.Mkdir(path, 0o755); err != nil {
		t.Fatal(err)
	}
	marker := filepath.Join(path, "keep")
	if err := os.WriteFile(marker, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	st := NewFileStore(dir, segment.DefaultGap)
	rec, err := st.Load(ctx)
	if !errors.Is(err, ErrUnreadable) {
		t.Fatalf("expected ErrUnreadable, got %v", err)
	}
	if len(rec.Drives) != 0 {
		t.Errorf("expected empty in-memory record, got %d drives", len(rec.Drives))
	}
	if _, err := os.Stat(marker); err != nil {
		t.Errorf("unreadable history was modified: %v", err)
	}
}

func TestFileStore_LegacyFlatDocumentMigrates(t *testing.T) {
	ctx := context.Background()
	st, path := setupFileStore(t)

	// Numeric times are seconds since 2001-01-01; the third sample is 20 minutes after the second.
	legacy := `{"visited":[
		{"latitude":10,"longitude":10,"altitude":1,"time":632000000},
		{"latitude":10.001,"longitude":10,"altitude":1,"time":632000030},
		{"latitude":11,"longitude":11,"altitude":1,"time":632001230}
	]}`
	if err := os.WriteFile(path, []byte(legacy), 0o644); err != nil {
		t.Fatal(err)
	}

	rec, err := st.Load(ctx)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(rec.Drives) != 2 || len(rec.Drives[0]) != 2 || len(rec.Drives[1]) != 1 {
		t.Fatalf("unexpected segmentation: %+v", rec.Drives)
	}
	wantStart := model.ReferenceEpoch.Add(632000000 * time.Second)
	if !rec.Drives[0][0].Time.Equal(wantStart) {
		t.Errorf("legacy time decoded as %v, want %v", rec.Drives[0][0].Time, wantStart)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(raw), "visited") || !strings.Contains(string(raw), `"drives"`) {
		t.Errorf("legacy document not rewritten: %s", raw)
	}

	again, err := st.Load(ctx)
	if err != nil {
		t.Fatalf("reload error = %v", err)
	}
	if diff := diffRecords(rec, again); diff != "" {
		t.Errorf("migrated record changed on reload (-want +got):\n%s", diff)
	}
}

func TestFileStore_EmptyDrivesNeverPersisted(t *testing.T) {
	ctx := context.Background()
	st, path := setupFileStore(t)

	rec := sampleRecord()
	rec.Drives = append(rec.Drives, model.Drive{})
	if err := st.Save(ctx, rec); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(raw), "[]") {
		t.Errorf("empty drive persisted: %s", raw)
	}

	// Documents written elsewhere with empty drives are cleaned on load.
	if err := os.WriteFile(path, []byte(`{"drives":[[],[{"latitude":1,"longitude":2,"altitude":0,"time":"2021-01-01T00:00:00Z"}],[]]}`), 0o644); err != nil {
		t.Fatal(err)
	}
	got, err := st.Load(ctx)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(got.Drives) != 1 {
		t.Errorf("expected 1 drive after cleanup, got %d", len(got.Drives))
	}
}

func TestFileStore_EncodeFailureSkipsWrite(t *testing.T) {
	ctx := context.Background()
	st, path := setupFileStore(t)

	good := sampleRecord()
	if err := st.Save(ctx, good); err != nil {
		t.Fatal(err)
	}
	before, _ := os.ReadFile(path)

	bad := model.HistoryRecord{Drives: []model.Drive{{model.NewSample(math.NaN(), 0, 0, t0)}}}
	err := st.Save(ctx, bad)
	if !errors.Is(err, ErrEncode) {
		t.Fatalf("expected ErrEncode, got %v", err)
	}

	after, _ := os.ReadFile(path)
	if string(before) != string(after) {
		t.Error("document changed despite encode failure")
	}
}

func TestFileStore_WriteFailureIsReported(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	blocker := filepath.Join(dir, "not-a-dir")
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	st := NewFileStore(blocker, segment.DefaultGap)
	if err := st.Save(ctx, sampleRecord()); err == nil {
		t.Fatal("expected write error when data dir is a file")
	}
}
