package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"lesstraveled/pkg/model"
	"lesstraveled/pkg/segment"
)

// FileStore keeps the history document as a single JSON file.
// It must be the only writer of that file; there is no cross-process locking.
type FileStore struct {
	path   string
	gap    time.Duration
	logger *slog.Logger
}

// NewFileStore creates a store for dataDir/lt-userdata. gap is the
// segmentation threshold used when migrating legacy flat documents.
func NewFileStore(dataDir string, gap time.Duration) *FileStore {
	return NewFileStoreAt(filepath.Join(dataDir, FileName), gap)
}

// NewFileStoreAt creates a store for an explicit file path.
func NewFileStoreAt(path string, gap time.Duration) *FileStore {
	if gap <= 0 {
		gap = segment.DefaultGap
	}
	return &FileStore{
		path:   path,
		gap:    gap,
		logger: slog.With("component", "history_store", "path", path),
	}
}

// Path returns the document location.
func (s *FileStore) Path() string {
	return s.path
}

// Load reads the document. See HistoryStore for the failure contract.
func (s *FileStore) Load(ctx context.Context) (model.HistoryRecord, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		s.logger.Info("No history found, creating empty history")
		return s.reset(ctx)
	}
	if err != nil {
		s.logger.Error("Failed to read history, continuing with empty in-memory history", "error", err)
		return model.Empty(), fmt.Errorf("%w: %v", ErrUnreadable, err)
	}

	res, err := Decode(data, s.gap)
	if err != nil {
		s.logger.Warn("History is corrupt, discarding it", "error", err, "bytes", len(data))
		if rmErr := os.Remove(s.path); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
			s.logger.Error("Failed to remove corrupt history", "error", rmErr)
		}
		return s.reset(ctx)
	}

	if res.NeedsRewrite() {
		s.logger.Info("Rewriting history in current format",
			"migrated_legacy", res.Migrated, "dropped_empty_drives", res.Dropped, "drives", len(res.Record.Drives))
		if err := s.Save(ctx, res.Record); err != nil {
			// Record is still valid in memory; the next Save reconciles.
			s.logger.Warn("Failed to rewrite migrated history", "error", err)
		}
	}

	s.logger.Info("History loaded", "drives", len(res.Record.Drives), "samples", res.Record.SampleCount())
	return res.Record, nil
}

// reset persists and returns an empty record.
func (s *FileStore) reset(ctx context.Context) (model.HistoryRecord, error) {
	rec := model.Empty()
	if err := s.Save(ctx, rec); err != nil {
		return rec, err
	}
	return rec, nil
}

// Save replaces the document. The new content is written to a temporary file
// in the same directory and renamed over the old one.
func (s *FileStore) Save(ctx context.Context, rec model.HistoryRecord) error {
	data, err := Encode(rec)
	if err != nil {
		s.logger.Error("Failed to encode history, skipping write", "error", err)
		return err
	}

	if err := writeFileAtomic(s.path, data); err != nil {
		s.logger.Error("Failed to write history", "error", err)
		return fmt.Errorf("failed to write history: %w", err)
	}

	s.logger.Debug("History saved", "bytes", len(data), "drives", len(rec.Drives))
	return nil
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+"-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
