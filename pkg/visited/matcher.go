package visited

import (
	"iter"

	"lesstraveled/pkg/geo"
	"lesstraveled/pkg/model"
)

// DefaultRadius is the default neighborhood radius in meters.
const DefaultRadius = 25.0

// Matcher decides whether a candidate lies in an already visited neighborhood.
//
// The metric is haversine great-circle distance over latitude and longitude.
// Altitude and time do not participate. A candidate is visited when some
// historical sample is at distance 0 or strictly closer than Radius, so a
// sample exactly Radius away still counts as new ground.
type Matcher struct {
	Radius float64 // Meters; <= 0 matches only exact coordinates
}

// New returns a Matcher with the given radius.
func New(radius float64) Matcher {
	return Matcher{Radius: radius}
}

// Within reports whether a distance falls inside the visited neighborhood.
func (m Matcher) Within(dist float64) bool {
	return dist == 0 || dist < m.Radius
}

// WasVisited scans history once and stops at the first match.
// Neither argument is modified.
func (m Matcher) WasVisited(candidate model.LocationSample, history iter.Seq[model.LocationSample]) bool {
	if history == nil {
		return false
	}
	p := geo.PointOf(candidate)
	for s := range history {
		if m.Within(geo.Distance(p, geo.PointOf(s))) {
			return true
		}
	}
	return false
}

// Nearest returns the distance to the closest historical sample, or ok=false
// when history is empty.
func (m Matcher) Nearest(candidate model.LocationSample, history iter.Seq[model.LocationSample]) (dist float64, ok bool) {
	if history == nil {
		return 0, false
	}
	p := geo.PointOf(candidate)
	for s := range history {
		d := geo.Distance(p, geo.PointOf(s))
		if !ok || d < dist {
			dist, ok = d, true
		}
	}
	return dist, ok
}

// Concat chains several sample sequences, e.g. past drives and the drive in
// progress, without copying them.
func Concat(seqs ...iter.Seq[model.LocationSample]) iter.Seq[model.LocationSample] {
	return func(yield func(model.LocationSample) bool) {
		for _, seq := range seqs {
			if seq == nil {
				continue
			}
			for s := range seq {
				if !yield(s) {
					return
				}
			}
		}
	}
}

// DriveSamples adapts a drive to a sample sequence.
func DriveSamples(d model.Drive) iter.Seq[model.LocationSample] {
	return func(yield func(model.LocationSample) bool) {
		for _, s := range d {
			if !yield(s) {
				return
			}
		}
	}
}
