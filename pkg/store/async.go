package store

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"lesstraveled/pkg/model"
)

// AsyncWriter buffers Save calls in front of another store. Only the most
// recent record is kept; it is written at most debounce after the first
// unwritten Save, so a steady sample stream still reaches disk regularly.
// Flush and Close block until the pending record is written.
type AsyncWriter struct {
	next     HistoryStore
	debounce time.Duration
	logger   *slog.Logger

	mu      sync.Mutex
	pending *model.HistoryRecord
	timer   *time.Timer
	closed  bool
	lastErr error

	// serializes writes to next
	writeMu sync.Mutex
}

// NewAsyncWriter wraps next.
func NewAsyncWriter(next HistoryStore, debounce time.Duration) *AsyncWriter {
	return &AsyncWriter{
		next:     next,
		debounce: debounce,
		logger:   slog.With("component", "history_writer"),
	}
}

// Load flushes anything pending and reads through to the wrapped store.
func (w *AsyncWriter) Load(ctx context.Context) (model.HistoryRecord, error) {
	if err := w.Flush(ctx); err != nil {
		w.logger.Warn("Flush before load failed", "error", err)
	}
	return w.next.Load(ctx)
}

// Save queues rec, replacing any record that has not been written yet.
// Write errors surface on the next Flush or via LastError.
func (w *AsyncWriter) Save(ctx context.Context, rec model.HistoryRecord) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrClosed
	}

	cp := rec.Clone()
	w.pending = &cp

	if w.timer == nil {
		w.timer = time.AfterFunc(w.debounce, func() {
			if err := w.flush(context.Background()); err != nil {
				w.logger.Error("Background history write failed", "error", err)
			}
		})
	}
	return nil
}

// Flush writes the pending record, if any.
func (w *AsyncWriter) Flush(ctx context.Context) error {
	return w.flush(ctx)
}

// Close flushes and rejects further saves. The wrapped store is closed too
// when it implements Closer.
func (w *AsyncWriter) Close(ctx context.Context) error {
	w.mu.Lock()
	w.closed = true
	w.mu.Unlock()

	err := w.flush(ctx)
	if c, ok := w.next.(Closer); ok {
		if cerr := c.Close(ctx); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}

// Pending reports whether a record is waiting to be written.
func (w *AsyncWriter) Pending() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.pending != nil
}

// LastError returns the result of the most recent write attempt.
func (w *AsyncWriter) LastError() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastErr
}

func (w *AsyncWriter) flush(ctx context.Context) error {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()

	w.mu.Lock()
	rec := w.pending
	w.pending = nil
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	w.mu.Unlock()

	if rec == nil {
		return nil
	}

	err := w.next.Save(ctx, *rec)

	w.mu.Lock()
	w.lastErr = err
	// Keep the failed record unless something newer arrived meanwhile.
	if err != nil && w.pending == nil {
		w.pending = rec
	}
	w.mu.Unlock()

	return err
}
