// Package coverage summarizes recorded history as a set of explored H3 cells.
package coverage

import (
	"fmt"
	"math"
	"sort"

	"github.com/uber/h3-go/v4"

	"lesstraveled/pkg/model"
)

// DefaultResolution gives cells of roughly 0.1 km².
const DefaultResolution = 9

// Cell is one explored hexagon.
type Cell struct {
	Index   string  `json:"index"`
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
	Samples int     `json:"samples"`
}

// Report is the explored-area summary for a record.
type Report struct {
	Resolution int     `json:"resolution"`
	Samples    int     `json:"samples"`
	Cells      int     `json:"cells"`
	Regions    int     `json:"regions"`  // distinct cells four levels coarser
	AreaKm2    float64 `json:"area_km2"` // cells × average hexagon area
	Top        []Cell  `json:"top,omitempty"`
}

// Grid maps samples to H3 cells at a fixed resolution.
type Grid struct {
	res   int
	cells map[h3.Cell]int
	total int
}

// NewGrid creates an empty grid. Resolution must be between 0 and 15.
func NewGrid(resolution int) (*Grid, error) {
	if resolution < 0 || resolution > 15 {
		return nil, fmt.Errorf("invalid h3 resolution %d", resolution)
	}
	return &Grid{res: resolution, cells: make(map[h3.Cell]int)}, nil
}

// CellAt returns the cell containing a sample.
func (g *Grid) CellAt(s model.LocationSample) (h3.Cell, error) {
	c, err := h3.LatLngToCell(h3.NewLatLng(s.Latitude, s.Longitude), g.res)
	if err != nil {
		return 0, fmt.Errorf("failed to index %.6f,%.6f: %w", s.Latitude, s.Longitude, err)
	}
	return c, nil
}

// Add records a sample. It reports whether the sample opened a new cell.
func (g *Grid) Add(s model.LocationSample) (bool, error) {
	c, err := g.CellAt(s)
	if err != nil {
		return false, err
	}
	g.total++
	g.cells[c]++
	return g.cells[c] == 1, nil
}

// AddDrives records every sample of every drive. Samples that cannot be
// indexed are skipped and counted.
func (g *Grid) AddDrives(drives []model.Drive) (skipped int) {
	for _, d := range drives {
		for _, s := range d {
			if _, err := g.Add(s); err != nil {
				skipped++
			}
		}
	}
	return skipped
}

// Explored reports whether the sample's cell already holds history.
func (g *Grid) Explored(s model.LocationSample) bool {
	c, err := g.CellAt(s)
	if err != nil {
		return false
	}
	return g.cells[c] > 0
}

// Len returns the number of distinct cells.
func (g *Grid) Len() int {
	return len(g.cells)
}

// Report summarizes the grid. top limits how many of the busiest cells are listed.
func (g *Grid) Report(top int) Report {
	r := Report{
		Resolution: g.res,
		Samples:    g.total,
		Cells:      len(g.cells),
	}

	if area, err := h3.HexagonAreaAvgKm2(g.res); err == nil {
		r.AreaKm2 = math.Round(area*float64(len(g.cells))*1000) / 1000
	}

	parentRes := max(g.res-4, 0)
	regions := make(map[h3.Cell]struct{})
	for c := range g.cells {
		if p, err := c.Parent(parentRes); err == nil {
			regions[p] = struct{}{}
		}
	}
	r.Regions = len(regions)

	if top > 0 {
		r.Top = g.busiest(top)
	}
	return r
}

func (g *Grid) busiest(n int) []Cell {
	out := make([]Cell, 0, len(g.cells))
	for c, count := range g.cells {
		ll, err := c.LatLng()
		if err != nil {
			continue
		}
		out = append(out, Cell{Index: c.String(), Lat: ll.Lat, Lon: ll.Lng, Samples: count})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Samples != out[j].Samples {
			return out[i].Samples > out[j].Samples
		}
		return out[i].Index < out[j].Index
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}

// Compute builds a grid over drives and returns its report.
func Compute(drives []model.Drive, resolution, top int) (Report, error) {
	g, err := NewGrid(resolution)
	if err != nil {
		return Report{}, err
	}
	g.AddDrives(drives)
	return g.Report(top), nil
}
