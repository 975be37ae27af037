package geo

import (
	"sync"

	"lesstraveled/pkg/model"
)

// Course is the ground track derived from the most recent samples.
type Course struct {
	Bearing float64 `json:"bearing"`   // Degrees true
	SpeedMS float64 `json:"speed_m_s"` // Meters per second, 0 if unknown
}

// TrackBuffer keeps a rolling window of accepted samples and derives the
// current course from its oldest and newest entries.
type TrackBuffer struct {
	mu         sync.RWMutex
	samples    []model.LocationSample
	windowSize int
}

// NewTrackBuffer creates a new buffer with the specified sample window size.
func NewTrackBuffer(windowSize int) *TrackBuffer {
	if windowSize < 2 {
		windowSize = 2
	}
	return &TrackBuffer{
		windowSize: windowSize,
	}
}

// Push adds a sample and returns the course across the window.
// With fewer than two samples the course is unknown and ok is false.
func (b *TrackBuffer) Push(s model.LocationSample) (c Course, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.samples = append(b.samples, s)
	if len(b.samples) > b.windowSize {
		b.samples = b.samples[1:]
	}

	if len(b.samples) < 2 {
		return Course{}, false
	}

	first, last := b.samples[0], b.samples[len(b.samples)-1]
	c.Bearing = Bearing(PointOf(first), PointOf(last))
	if dt := last.Time.Sub(first.Time).Seconds(); dt > 0 {
		c.SpeedMS = SampleDistance(first, last) / dt
	}
	return c, true
}

// Reset clears the buffer history. Called when a drive ends so courses never
// span two drives.
func (b *TrackBuffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.samples = nil
}
