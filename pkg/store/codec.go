package store

import (
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"lesstraveled/pkg/model"
	"lesstraveled/pkg/segment"
)

// document is the on-disk shape. "visited" is the flat list written by the
// original single-list format; it is only ever read.
type document struct {
	Drives  []model.Drive          `json:"drives"`
	Visited []model.LocationSample `json:"visited,omitempty"`
}

// DecodeResult describes what Decode had to do to produce a valid record.
type DecodeResult struct {
	Record   model.HistoryRecord
	Migrated bool // legacy flat list was segmented into drives
	Dropped  int  // empty drives removed
}

// NeedsRewrite reports whether the stored bytes differ from the canonical
// encoding of Record and should be replaced.
func (r DecodeResult) NeedsRewrite() bool {
	return r.Migrated || r.Dropped > 0
}

// Encode serializes a record. Empty drives are never written.
func Encode(rec model.HistoryRecord) ([]byte, error) {
	doc := document{Drives: make([]model.Drive, 0, len(rec.Drives))}
	for _, d := range rec.Drives {
		if len(d) > 0 {
			doc.Drives = append(doc.Drives, d)
		}
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncode, err)
	}
	return data, nil
}

// Decode parses a stored document. Any structural problem is reported as
// ErrCorrupt; there is no partial recovery.
func Decode(data []byte, gap time.Duration) (DecodeResult, error) {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return DecodeResult{}, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	// null, {} and documents of some other shape carry neither list.
	if doc.Drives == nil && doc.Visited == nil {
		return DecodeResult{}, fmt.Errorf("%w: no drives or visited list", ErrCorrupt)
	}

	var res DecodeResult
	res.Record = model.Empty()

	for _, d := range doc.Drives {
		if len(d) == 0 {
			res.Dropped++
			continue
		}
		res.Record.Drives = append(res.Record.Drives, d)
	}

	if doc.Drives == nil && doc.Visited != nil {
		flat := slices.Clone(doc.Visited)
		slices.SortStableFunc(flat, func(a, b model.LocationSample) int {
			return a.Time.Compare(b.Time)
		})
		res.Record.Drives = append(res.Record.Drives, segment.Segment(flat, gap)...)
		res.Migrated = true
	}

	return res, nil
}
