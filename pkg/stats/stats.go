// Package stats computes per-drive summaries.
package stats

import (
	"sort"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"lesstraveled/pkg/geo"
	"lesstraveled/pkg/model"
)

// Summary describes one drive.
type Summary struct {
	Index       int       `json:"index"`
	Samples     int       `json:"samples"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	DurationS   float64   `json:"duration_s"`
	LengthM     float64   `json:"length_m"`
	MeanSpeedMS float64   `json:"mean_speed_m_s"`
	P50SpeedMS  float64   `json:"p50_speed_m_s"`
	P85SpeedMS  float64   `json:"p85_speed_m_s"`
	MaxSpeedMS  float64   `json:"max_speed_m_s"`
	AltMean     float64   `json:"alt_mean"`
	AltStdDev   float64   `json:"alt_stddev"`
	AltMin      float64   `json:"alt_min"`
	AltMax      float64   `json:"alt_max"`
}

// Totals aggregates all drives.
type Totals struct {
	Drives    int       `json:"drives"`
	Samples   int       `json:"samples"`
	LengthM   float64   `json:"length_m"`
	DurationS float64   `json:"duration_s"`
	Summaries []Summary `json:"summaries"`
}

// Summarize computes the summary of a drive. An empty drive yields a zero
// Summary apart from Index.
func Summarize(index int, d model.Drive) Summary {
	s := Summary{Index: index, Samples: len(d)}
	if len(d) == 0 {
		return s
	}

	s.Start, s.End = d.Start(), d.End()
	s.DurationS = s.End.Sub(s.Start).Seconds()
	s.LengthM = geo.DriveLength(d)
	if s.DurationS > 0 {
		s.MeanSpeedMS = s.LengthM / s.DurationS
	}

	alts := make([]float64, len(d))
	for i, smp := range d {
		alts[i] = smp.Altitude
	}
	s.AltMean, s.AltStdDev = stat.MeanStdDev(alts, nil)
	if len(alts) < 2 {
		s.AltStdDev = 0
	}
	s.AltMin, s.AltMax = floats.Min(alts), floats.Max(alts)

	if speeds := legSpeeds(d); len(speeds) > 0 {
		sort.Float64s(speeds)
		s.P50SpeedMS = stat.Quantile(0.5, stat.Empirical, speeds, nil)
		s.P85SpeedMS = stat.Quantile(0.85, stat.Empirical, speeds, nil)
		s.MaxSpeedMS = speeds[len(speeds)-1]
	}
	return s
}

// SummarizeAll summarizes every drive in order and adds the totals.
func SummarizeAll(drives []model.Drive) Totals {
	t := Totals{Drives: len(drives), Summaries: make([]Summary, 0, len(drives))}
	for i, d := range drives {
		s := Summarize(i, d)
		t.Samples += s.Samples
		t.LengthM += s.LengthM
		t.DurationS += s.DurationS
		t.Summaries = append(t.Summaries, s)
	}
	return t
}

// legSpeeds returns the speed between consecutive samples, skipping legs
// with no elapsed time.
func legSpeeds(d model.Drive) []float64 {
	var out []float64
	for i := 1; i < len(d); i++ {
		dt := d[i].Time.Sub(d[i-1].Time).Seconds()
		if dt <= 0 {
			continue
		}
		out = append(out, geo.SampleDistance(d[i-1], d[i])/dt)
	}
	return out
}
