package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"lesstraveled/pkg/db"
	"lesstraveled/pkg/model"
	"lesstraveled/pkg/segment"
)

// SQLiteStore keeps the history document as a single row, with the same
// whole-document semantics as FileStore.
type SQLiteStore struct {
	db     *db.DB
	key    string
	gap    time.Duration
	logger *slog.Logger
}

// NewSQLiteStore creates a store on an initialized database.
func NewSQLiteStore(d *db.DB, gap time.Duration) *SQLiteStore {
	if gap <= 0 {
		gap = segment.DefaultGap
	}
	return &SQLiteStore{
		db:     d,
		key:    FileName,
		gap:    gap,
		logger: slog.With("component", "history_store", "backend", "sqlite"),
	}
}

// Load reads the document row. See HistoryStore for the failure contract.
func (s *SQLiteStore) Load(ctx context.Context) (model.HistoryRecord, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, "SELECT document FROM history_document WHERE key = ?", s.key).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
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
		if _, delErr := s.db.ExecContext(ctx, "DELETE FROM history_document WHERE key = ?", s.key); delErr != nil {
			s.logger.Error("Failed to delete corrupt history", "error", delErr)
		}
		return s.reset(ctx)
	}

	if res.NeedsRewrite() {
		if err := s.Save(ctx, res.Record); err != nil {
			s.logger.Warn("Failed to rewrite migrated history", "error", err)
		}
	}

	s.logger.Info("History loaded", "drives", len(res.Record.Drives), "samples", res.Record.SampleCount())
	return res.Record, nil
}

func (s *SQLiteStore) reset(ctx context.Context) (model.HistoryRecord, error) {
	rec := model.Empty()
	if err := s.Save(ctx, rec); err != nil {
		return rec, err
	}
	return rec, nil
}

// Save replaces the document row.
func (s *SQLiteStore) Save(ctx context.Context, rec model.HistoryRecord) error {
	data, err := Encode(rec)
	if err != nil {
		s.logger.Error("Failed to encode history, skipping write", "error", err)
		return err
	}

	query := `INSERT OR REPLACE INTO history_document (key, document, drives, samples, updated_at) VALUES (?, ?, ?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, query, s.key, data, len(rec.Drives), rec.SampleCount(), time.Now().UTC()); err != nil {
		s.logger.Error("Failed to write history", "error", err)
		return fmt.Errorf("failed to write history: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close(ctx context.Context) error {
	return s.db.Close()
}
