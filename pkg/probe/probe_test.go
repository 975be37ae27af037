package probe

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestRun(t *testing.T) {
	probes := []Probe{
		{Name: "Pass", Check: func(ctx context.Context) error { return nil }, Critical: true},
		{Name: "Fail", Check: func(ctx context.Context) error { return errors.New("minor issue") }},
		{Name: "HasDeadline", Check: func(ctx context.Context) error {
			if _, ok := ctx.Deadline(); !ok {
				return errors.New("no deadline")
			}
			return nil
		}},
	}

	results := Run(context.Background(), probes)
	if len(results) != 3 {
		t.Fatalf("Expected 3 results, got %d", len(results))
	}
	if results[0].Error != nil {
		t.Errorf("Expected pass, got %v", results[0].Error)
	}
	if results[1].Error == nil {
		t.Error("Expected failure, got nil")
	}
	if results[2].Error != nil {
		t.Errorf("Expected a per-probe deadline: %v", results[2].Error)
	}
}

func TestAnalyzeResults(t *testing.T) {
	boom := errors.New("fail")
	tests := []struct {
		name    string
		results []Result
		wantErr bool
	}{
		{"AllPass", []Result{{Probe: Probe{Name: "P1", Critical: true}}}, false},
		{"CriticalFailure", []Result{{Probe: Probe{Name: "P1", Critical: true}, Error: boom}}, true},
		{"NonCriticalFailure", []Result{{Probe: Probe{Name: "P1"}, Error: boom}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := AnalyzeResults(tt.results)
			if (err != nil) != tt.wantErr {
				t.Errorf("AnalyzeResults() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr && !errors.Is(err, boom) {
				t.Errorf("expected joined error to wrap the probe error")
			}
		})
	}
}

func TestDirWritable(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "data")
	if err := DirWritable(dir)(context.Background()); err != nil {
		t.Fatalf("DirWritable() = %v", err)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("probe left %d files behind", len(entries))
	}

	blocker := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(blocker, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if err := DirWritable(blocker)(context.Background()); err == nil {
		t.Error("expected error for a path that is a file")
	}
}
