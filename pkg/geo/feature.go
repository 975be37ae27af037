package geo

import (
	"time"

	"github.com/paulmach/orb"
	orbgeo "github.com/paulmach/orb/geo"
	"github.com/paulmach/orb/geojson"

	"lesstraveled/pkg/model"
)

// LineString converts a drive to an orb geometry (lon/lat order).
func LineString(d model.Drive) orb.LineString {
	ls := make(orb.LineString, len(d))
	for i, s := range d {
		ls[i] = orb.Point{s.Longitude, s.Latitude}
	}
	return ls
}

// DriveLength returns the great-circle length of a drive in meters.
func DriveLength(d model.Drive) float64 {
	if len(d) < 2 {
		return 0
	}
	return orbgeo.LengthHaversine(LineString(d))
}

// DriveFeature builds a GeoJSON feature for one drive. Single-sample drives
// become Points since a LineString needs two positions.
func DriveFeature(index int, d model.Drive) *geojson.Feature {
	var geom orb.Geometry
	if len(d) == 1 {
		geom = orb.Point{d[0].Longitude, d[0].Latitude}
	} else {
		geom = LineString(d)
	}

	f := geojson.NewFeature(geom)
	f.Properties["drive"] = index
	f.Properties["samples"] = len(d)
	f.Properties["start"] = d.Start().Format(time.RFC3339)
	f.Properties["end"] = d.End().Format(time.RFC3339)
	f.Properties["length_m"] = DriveLength(d)
	return f
}

// FeatureCollection converts drives to GeoJSON for map overlays.
// Empty drives are skipped.
func FeatureCollection(drives []model.Drive) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for i, d := range drives {
		if len(d) == 0 {
			continue
		}
		fc.Append(DriveFeature(i, d))
	}
	return fc
}

// Bound returns the bounding box covering every drive, or ok=false if there
// are no samples.
func Bound(drives []model.Drive) (b orb.Bound, ok bool) {
	for _, d := range drives {
		for _, s := range d {
			p := orb.Point{s.Longitude, s.Latitude}
			if !ok {
				b = p.Bound()
				ok = true
				continue
			}
			b = b.Extend(p)
		}
	}
	return b, ok
}
