// Package importer merges location histories from other sources into the
// history store.
package importer

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"lesstraveled/pkg/model"
	"lesstraveled/pkg/segment"
	"lesstraveled/pkg/store"
)

// Result reports what an import did.
type Result struct {
	Read       int `json:"read"`
	Invalid    int `json:"invalid"`
	Duplicates int `json:"duplicates"`
	Added      int `json:"added"`
	Drives     int `json:"drives"`
}

// ReadFile reads samples from a history document (current or legacy
// format) or from a CSV file with latitude, longitude, altitude and time
// columns. The format is chosen by extension.
func ReadFile(path string, gap time.Duration) ([]model.LocationSample, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open import file: %w", err)
	}
	defer f.Close()

	if strings.EqualFold(filepath.Ext(path), ".csv") {
		return ReadCSV(f)
	}

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read import file: %w", err)
	}
	res, err := store.Decode(data, gap)
	if err != nil {
		return nil, err
	}
	return segment.Flatten(res.Record.Drives), nil
}

// ReadCSV parses samples from CSV. The header names the columns; "lat",
// "lon"/"lng", "alt"/"elevation" are accepted as aliases and the time column
// may hold RFC 3339 text or Unix seconds. Rows without a usable coordinate
// or time are skipped.
func ReadCSV(r io.Reader) ([]model.LocationSample, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	headers, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	// Handle potential BOM (Byte Order Mark) at start of file
	if len(headers) > 0 {
		headers[0] = strings.TrimPrefix(headers[0], "\ufeff")
	}

	idxMap := make(map[string]int)
	for i, h := range headers {
		idxMap[canonicalColumn(h)] = i
	}
	for _, col := range []string{"latitude", "longitude", "time"} {
		if _, ok := idxMap[col]; !ok {
			return nil, fmt.Errorf("csv is missing column %q", col)
		}
	}

	get := func(row []string, col string) string {
		if i, ok := idxMap[col]; ok && i < len(row) {
			return strings.TrimSpace(row[i])
		}
		return ""
	}

	var out []model.LocationSample
	line := 1
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return out, fmt.Errorf("csv read error at line %d: %w", line, err)
		}

		lat, errLat := strconv.ParseFloat(get(row, "latitude"), 64)
		lon, errLon := strconv.ParseFloat(get(row, "longitude"), 64)
		ts, errTime := parseCSVTime(get(row, "time"))
		if errLat != nil || errLon != nil || errTime != nil {
			slog.Debug("Skipping unparseable csv row", "line", line)
			continue
		}
		alt, _ := strconv.ParseFloat(get(row, "altitude"), 64)

		out = append(out, model.NewSample(lat, lon, alt, ts))
	}
	return out, nil
}

func canonicalColumn(h string) string {
	switch h = strings.ToLower(strings.TrimSpace(h)); h {
	case "lat":
		return "latitude"
	case "lon", "lng", "long":
		return "longitude"
	case "alt", "elevation", "ele":
		return "altitude"
	case "timestamp", "date", "datetime":
		return "time"
	}
	return h
}

func parseCSVTime(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, errors.New("empty time")
	}
	if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
		return t, nil
	}
	secs, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("unrecognized time %q", v)
	}
	return time.Unix(0, int64(secs*float64(time.Second))), nil
}

type sampleKey struct {
	lat, lon float64
	t        int64
}

func keyOf(s model.LocationSample) sampleKey {
	return sampleKey{lat: s.Latitude, lon: s.Longitude, t: s.Time.UnixNano()}
}

// Import segments samples into drives and appends them to the stored
// history. Samples already present in the store, repeated within the input,
// or outside the valid coordinate range are skipped. An unreadable store
// aborts the import so the existing document is never overwritten.
func Import(ctx context.Context, st store.HistoryStore, samples []model.LocationSample, gap time.Duration) (Result, error) {
	res := Result{Read: len(samples)}

	rec, err := st.Load(ctx)
	if err != nil {
		return res, fmt.Errorf("failed to load history before import: %w", err)
	}

	seen := make(map[sampleKey]struct{}, rec.SampleCount()+len(samples))
	for s := range rec.Samples() {
		seen[keyOf(s)] = struct{}{}
	}

	fresh := make([]model.LocationSample, 0, len(samples))
	for _, s := range samples {
		if !s.Valid() || s.Time.IsZero() {
			res.Invalid++
			continue
		}
		k := keyOf(s)
		if _, dup := seen[k]; dup {
			res.Duplicates++
			continue
		}
		seen[k] = struct{}{}
		fresh = append(fresh, s)
	}

	if len(fresh) == 0 {
		slog.Info("Nothing to import", "read", res.Read, "duplicates", res.Duplicates, "invalid", res.Invalid)
		return res, nil
	}

	slices.SortStableFunc(fresh, func(a, b model.LocationSample) int {
		return a.Time.Compare(b.Time)
	})
	drives := segment.Segment(fresh, gap)

	rec.Drives = append(rec.Drives, drives...)
	if err := st.Save(ctx, rec); err != nil {
		return res, fmt.Errorf("failed to save imported history: %w", err)
	}
	if f, ok := st.(store.Flusher); ok {
		if err := f.Flush(ctx); err != nil {
			return res, fmt.Errorf("failed to flush imported history: %w", err)
		}
	}

	res.Added = len(fresh)
	res.Drives = len(drives)
	slog.Info("Imported history", "added", res.Added, "drives", res.Drives, "duplicates", res.Duplicates, "invalid", res.Invalid)
	return res, nil
}

// ImportFile reads path and imports its samples.
func ImportFile(ctx context.Context, st store.HistoryStore, path string, gap time.Duration) (Result, error) {
	samples, err := ReadFile(path, gap)
	if err != nil {
		return Result{}, err
	}
	return Import(ctx, st, samples, gap)
}
