package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"lesstraveled/pkg/segment"
	"lesstraveled/pkg/store"
)

func writeConfig(t *testing.T, dir, extra string) string {
	t.Helper()
	cfg := `
log:
    server:
        path: "` + filepath.ToSlash(filepath.Join(dir, "logs", "server.log")) + `"
        level: "debug"
store:
    data_dir: "` + filepath.ToSlash(filepath.Join(dir, "data")) + `"
server:
    enabled: true
    address: "127.0.0.1:0"
` + extra
	path := filepath.Join(dir, "lesstraveled.yaml")
	if err := os.WriteFile(path, []byte(cfg), 0o644); err != nil {
		t.Fatalf("Failed to write temp config: %v", err)
	}
	return path
}

func TestRun(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `
sensor:
    provider: mock
    mock:
        interval: 10ms
`)

	// Cancel quickly to verify the startup and shutdown sequence.
	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	if err := run(ctx, path); err != nil {
		t.Fatalf("run() failed: %v", err)
	}

	// The mock drive was finalized on shutdown.
	st := store.NewFileStore(filepath.Join(dir, "data"), segment.DefaultGap)
	rec, err := st.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if len(rec.Drives) != 1 {
		t.Errorf("expected 1 persisted drive, got %d", len(rec.Drives))
	}
}

func TestRunImport(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "")

	csvPath := filepath.Join(dir, "history.csv")
	csv := strings.Join([]string{
		"latitude,longitude,altitude,time",
		"47.60,-122.30,10,2021-06-01T10:00:00Z",
		"47.61,-122.30,10,2021-06-01T10:01:00Z",
		"47.62,-122.30,10,2021-06-01T12:00:00Z",
	}, "\n")
	if err := os.WriteFile(csvPath, []byte(csv), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := runImport(context.Background(), path, csvPath); err != nil {
		t.Fatalf("runImport() failed: %v", err)
	}

	st := store.NewFileStore(filepath.Join(dir, "data"), segment.DefaultGap)
	rec, err := st.Load(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(rec.Drives) != 2 || rec.SampleCount() != 3 {
		t.Errorf("expected 2 drives with 3 samples, got %d drives with %d samples", len(rec.Drives), rec.SampleCount())
	}
}

func TestShutdownTriggerNeverBlocks(t *testing.T) {
	quit := make(chan os.Signal, 1)
	trigger := shutdownTrigger(quit)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 3; i++ {
			trigger()
		}
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("repeated shutdown requests blocked")
	}
	if len(quit) != 1 {
		t.Fatalf("expected one pending shutdown request, got %d", len(quit))
	}
}
