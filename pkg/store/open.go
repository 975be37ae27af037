package store

import (
	"context"
	"fmt"
	"path/filepath"

	"lesstraveled/pkg/config"
	"lesstraveled/pkg/db"
)

// DBFileName is the database used by the sqlite backend.
const DBFileName = "lesstraveled.db"

// Open builds the configured history store. The returned close function
// flushes pending writes and releases resources; it is safe to call once.
func Open(cfg config.StoreConfig, gap config.Duration) (HistoryStore, func(context.Context) error, error) {
	var (
		st      HistoryStore
		closeFn = func(context.Context) error { return nil }
	)

	switch cfg.Backend {
	case config.BackendFile, "":
		st = NewFileStore(cfg.DataDir, gap.Std())
	case config.BackendSQLite:
		d, err := db.Init(filepath.Join(cfg.DataDir, DBFileName))
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open history database: %w", err)
		}
		sq := NewSQLiteStore(d, gap.Std())
		st = sq
		closeFn = sq.Close
	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}

	if cfg.WriteMode == config.WriteAsync {
		w := NewAsyncWriter(st, cfg.Debounce.Std())
		return w, w.Close, nil
	}
	return st, closeFn, nil
}
