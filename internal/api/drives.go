package api

import (
	"log/slog"
	"net/http"
	"strconv"

	"lesstraveled/pkg/coverage"
	"lesstraveled/pkg/geo"
	"lesstraveled/pkg/model"
	"lesstraveled/pkg/stats"
)

// DriveSource provides recorded drives, including the one in progress.
type DriveSource interface {
	Drives() []model.Drive
}

// DrivesHandler serves read-only views of the recorded history.
type DrivesHandler struct {
	source     DriveSource
	resolution int
}

// NewDrivesHandler creates a new DrivesHandler. resolution is the H3
// resolution used by the coverage view.
func NewDrivesHandler(src DriveSource, resolution int) *DrivesHandler {
	return &DrivesHandler{source: src, resolution: resolution}
}

// HandleGeoJSON returns every drive as a GeoJSON FeatureCollection.
// GET /api/drives
func (h *DrivesHandler) HandleGeoJSON(w http.ResponseWriter, r *http.Request) {
	fc := geo.FeatureCollection(h.source.Drives())
	data, err := fc.MarshalJSON()
	if err != nil {
		slog.Error("Failed to encode drives", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to encode drives")
		return
	}
	w.Header().Set("Content-Type", "application/geo+json")
	if _, err := w.Write(data); err != nil {
		slog.Error("Failed to write drives response", "error", err)
	}
}

// HandleSummary returns per-drive statistics.
// GET /api/drives/summary
func (h *DrivesHandler) HandleSummary(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, stats.SummarizeAll(h.source.Drives()))
}

// HandleCoverage returns the explored-cell report. Query parameters:
// res (0-15, default from config) and top (busiest cells listed, default 10).
// GET /api/coverage
func (h *DrivesHandler) HandleCoverage(w http.ResponseWriter, r *http.Request) {
	res := h.resolution
	if v := r.URL.Query().Get("res"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid res")
			return
		}
		res = n
	}
	top := 10
	if v := r.URL.Query().Get("top"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid top")
			return
		}
		top = n
	}

	report, err := coverage.Compute(h.source.Drives(), res, top)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, report)
}
