package segment

import (
	"time"

	"lesstraveled/pkg/model"
)

// DefaultGap is the inactivity threshold that separates two drives.
const DefaultGap = 600 * time.Second

// Segment splits a time-ordered flat sample list into drives. Two consecutive
// samples stay in the same drive iff the time between them is strictly less
// than gap; the sample after a split opens the next drive.
// A non-positive gap falls back to DefaultGap.
func Segment(samples []model.LocationSample, gap time.Duration) []model.Drive {
	if gap <= 0 {
		gap = DefaultGap
	}
	if len(samples) == 0 {
		return nil
	}

	var drives []model.Drive
	current := model.Drive{samples[0]}

	for i := 1; i < len(samples); i++ {
		prev, next := samples[i-1], samples[i]
		if next.Time.Sub(prev.Time) >= gap {
			drives = append(drives, current)
			current = model.Drive{}
		}
		current = append(current, next)
	}

	// Trailing open drive is always flushed.
	return append(drives, current)
}

// Segmenter carries a configured gap so callers can pass the policy around.
type Segmenter struct {
	Gap time.Duration
}

// New returns a Segmenter using gap, or DefaultGap when gap is not positive.
func New(gap time.Duration) Segmenter {
	if gap <= 0 {
		gap = DefaultGap
	}
	return Segmenter{Gap: gap}
}

// Segment applies the segmenter's gap.
func (s Segmenter) Segment(samples []model.LocationSample) []model.Drive {
	return Segment(samples, s.Gap)
}

// Flatten concatenates drives back into one ordered sample list.
func Flatten(drives []model.Drive) []model.LocationSample {
	n := 0
	for _, d := range drives {
		n += len(d)
	}
	out := make([]model.LocationSample, 0, n)
	for _, d := range drives {
		out = append(out, d...)
	}
	return out
}
