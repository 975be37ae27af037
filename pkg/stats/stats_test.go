package stats

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"lesstraveled/pkg/geo"
	"lesstraveled/pkg/model"
)

var t0 = time.Date(2020, 11, 3, 7, 45, 0, 0, time.UTC)

func TestSummarize(t *testing.T) {
	// 100 m legs at 10 s intervals: 10 m/s throughout.
	p := geo.Point{Lat: 40.7128, Lon: -74.0060}
	var d model.Drive
	for i, alt := range []float64{10, 20, 30, 40} {
		d = append(d, model.NewSample(p.Lat, p.Lon, alt, t0.Add(time.Duration(i)*10*time.Second)))
		p = geo.DestinationPoint(p, 100, 0)
	}

	s := Summarize(2, d)
	assert.Equal(t, 2, s.Index)
	assert.Equal(t, 4, s.Samples)
	assert.Equal(t, 30.0, s.DurationS)
	assert.InDelta(t, 300, s.LengthM, 1)
	assert.InDelta(t, 10, s.MeanSpeedMS, 0.05)
	assert.InDelta(t, 10, s.P50SpeedMS, 0.05)
	assert.InDelta(t, 10, s.MaxSpeedMS, 0.05)
	assert.Equal(t, 25.0, s.AltMean)
	assert.InDelta(t, math.Sqrt(500.0/3), s.AltStdDev, 1e-9)
	assert.Equal(t, 10.0, s.AltMin)
	assert.Equal(t, 40.0, s.AltMax)
}

func TestSummarize_Degenerate(t *testing.T) {
	tests := []struct {
		name  string
		drive model.Drive
	}{
		{"Empty", nil},
		{"Single", model.Drive{model.NewSample(1, 2, -3, t0)}},
		{"SameInstant", model.Drive{model.NewSample(1, 2, 3, t0), model.NewSample(1.001, 2, 3, t0)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Summarize(0, tt.drive)
			assert.Equal(t, len(tt.drive), s.Samples)
			assert.Zero(t, s.DurationS)
			assert.Zero(t, s.MeanSpeedMS)
			assert.Zero(t, s.MaxSpeedMS)
			assert.Zero(t, s.AltStdDev)
			assert.False(t, math.IsNaN(s.AltMean))
		})
	}
}

func TestSummarizeAll(t *testing.T) {
	drives := []model.Drive{
		{model.NewSample(0, 0, 0, t0), model.NewSample(0, 0.001, 0, t0.Add(time.Minute))},
		{model.NewSample(1, 1, 0, t0.Add(time.Hour))},
	}

	tot := SummarizeAll(drives)
	assert.Equal(t, 2, tot.Drives)
	assert.Equal(t, 3, tot.Samples)
	assert.Equal(t, 60.0, tot.DurationS)
	assert.Len(t, tot.Summaries, 2)
	assert.Equal(t, 1, tot.Summaries[1].Index)
}
