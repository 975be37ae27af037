package store

import (
	"context"
	"errors"

	"lesstraveled/pkg/model"
)

// FileName is the fixed name of the history document inside the data directory.
const FileName = "lt-userdata"

var (
	// ErrUnreadable is returned by Load when the document exists but cannot be
	// read for a reason other than corruption. The on-disk copy is left alone.
	ErrUnreadable = errors.New("history unreadable")
	// ErrCorrupt marks a document that exists but does not parse.
	ErrCorrupt = errors.New("history corrupt")
	// ErrEncode is returned by Save when the record cannot be serialized; nothing is written.
	ErrEncode = errors.New("history encode failed")
	// ErrClosed is returned by writers after Close.
	ErrClosed = errors.New("history writer closed")
)

// HistoryStore owns the persisted HistoryRecord.
//
// Load never fails hard: a missing or corrupt document yields a fresh empty
// record that is persisted immediately; any other failure yields an empty
// in-memory record together with an error wrapping ErrUnreadable.
//
// Save replaces the whole document. Failures are reported and the caller's
// in-memory state stays authoritative; the next successful Save reconciles.
type HistoryStore interface {
	Load(ctx context.Context) (model.HistoryRecord, error)
	Save(ctx context.Context, rec model.HistoryRecord) error
}

// Flusher is implemented by stores that buffer writes. Flush blocks until
// every pending document has been written.
type Flusher interface {
	Flush(ctx context.Context) error
}

// Closer releases a store's resources after flushing pending writes.
type Closer interface {
	Close(ctx context.Context) error
}
