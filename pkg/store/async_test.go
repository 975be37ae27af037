package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lesstraveled/pkg/model"
)

// recordingStore captures every Save for assertions.
type recordingStore struct {
	mu     sync.Mutex
	saves  []model.HistoryRecord
	fail   error
	closed bool
}

func (r *recordingStore) Load(ctx context.Context) (model.HistoryRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.saves) == 0 {
		return model.Empty(), nil
	}
	return r.saves[len(r.saves)-1], nil
}

func (r *recordingStore) Save(ctx context.Context, rec model.HistoryRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail != nil {
		return r.fail
	}
	r.saves = append(r.saves, rec)
	return nil
}

func (r *recordingStore) Close(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func (r *recordingStore) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.saves)
}

func recordWith(n int) model.HistoryRecord {
	d := make(model.Drive, n)
	for i := range d {
		d[i] = model.NewSample(float64(i), 0, 0, t0.Add(time.Duration(i)*time.Second))
	}
	return model.HistoryRecord{Drives: []model.Drive{d}}
}

func TestAsyncWriter_LatestWins(t *testing.T) {
	ctx := context.Background()
	next := &recordingStore{}
	w := NewAsyncWriter(next, time.Hour)

	for i := 1; i <= 5; i++ {
		require.NoError(t, w.Save(ctx, recordWith(i)))
	}
	assert.Equal(t, 0, next.count(), "nothing should be written before the debounce elapses")
	assert.True(t, w.Pending())

	require.NoError(t, w.Flush(ctx))
	require.Equal(t, 1, next.count())
	assert.Equal(t, 5, next.saves[0].SampleCount())
	assert.False(t, w.Pending())

	// Flushing with nothing pending is a no-op.
	require.NoError(t, w.Flush(ctx))
	assert.Equal(t, 1, next.count())
}

func TestAsyncWriter_DebouncedWrite(t *testing.T) {
	ctx := context.Background()
	next := &recordingStore{}
	w := NewAsyncWriter(next, 20*time.Millisecond)

	require.NoError(t, w.Save(ctx, recordWith(1)))
	require.NoError(t, w.Save(ctx, recordWith(2)))

	assert.Eventually(t, func() bool { return next.count() == 1 }, time.Second, 5*time.Millisecond)
	next.mu.Lock()
	assert.Equal(t, 2, next.saves[0].SampleCount())
	next.mu.Unlock()
}

func TestAsyncWriter_SaveCopiesRecord(t *testing.T) {
	ctx := context.Background()
	next := &recordingStore{}
	w := NewAsyncWriter(next, time.Hour)

	rec := recordWith(2)
	require.NoError(t, w.Save(ctx, rec))
	rec.Drives[0][0] = model.NewSample(89, 89, 0, t0)

	require.NoError(t, w.Flush(ctx))
	assert.Equal(t, 0.0, next.saves[0].Drives[0][0].Latitude)
}

func TestAsyncWriter_CloseFlushesAndRejects(t *testing.T) {
	ctx := context.Background()
	next := &recordingStore{}
	w := NewAsyncWriter(next, time.Hour)

	require.NoError(t, w.Save(ctx, recordWith(3)))
	require.NoError(t, w.Close(ctx))

	assert.Equal(t, 1, next.count())
	assert.True(t, next.closed)
	assert.ErrorIs(t, w.Save(ctx, recordWith(4)), ErrClosed)
}

func TestAsyncWriter_FailedWriteIsRetried(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("disk full")
	next := &recordingStore{fail: boom}
	w := NewAsyncWriter(next, time.Hour)

	require.NoError(t, w.Save(ctx, recordWith(2)))
	assert.ErrorIs(t, w.Flush(ctx), boom)
	assert.ErrorIs(t, w.LastError(), boom)
	assert.True(t, w.Pending(), "failed record should stay pending")

	next.mu.Lock()
	next.fail = nil
	next.mu.Unlock()

	require.NoError(t, w.Flush(ctx))
	assert.Equal(t, 1, next.count())
	assert.NoError(t, w.LastError())
}

func TestAsyncWriter_LoadFlushesFirst(t *testing.T) {
	ctx := context.Background()
	next := &recordingStore{}
	w := NewAsyncWriter(next, time.Hour)

	require.NoError(t, w.Save(ctx, recordWith(4)))
	rec, err := w.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, rec.SampleCount())
}
