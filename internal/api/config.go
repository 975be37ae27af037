package api

import (
	"net/http"

	"lesstraveled/pkg/config"
)

// ConfigHandler exposes the effective tracking configuration.
type ConfigHandler struct {
	appCfg *config.Config
}

// NewConfigHandler creates a new ConfigHandler.
func NewConfigHandler(cfg *config.Config) *ConfigHandler {
	return &ConfigHandler{appCfg: cfg}
}

// ConfigResponse represents the config API response.
type ConfigResponse struct {
	Backend            string  `json:"backend"`
	WriteMode          string  `json:"write_mode"`
	DebounceSeconds    float64 `json:"debounce_s"`
	SegmentGapSeconds  float64 `json:"segment_gap_s"`
	MatcherRadiusM     float64 `json:"matcher_radius_m"`
	CoverageResolution int     `json:"coverage_resolution"`
	SensorProvider     string  `json:"sensor_provider"`
}

// HandleConfig returns the configuration in the units the API uses.
// Read-only; the YAML file is the source of truth.
// GET /api/config
func (h *ConfigHandler) HandleConfig(w http.ResponseWriter, r *http.Request) {
	c := h.appCfg
	writeJSON(w, http.StatusOK, ConfigResponse{
		Backend:            c.Store.Backend,
		WriteMode:          c.Store.WriteMode,
		DebounceSeconds:    c.Store.Debounce.Std().Seconds(),
		SegmentGapSeconds:  c.Segment.Gap.Std().Seconds(),
		MatcherRadiusM:     c.Matcher.Radius.Meters(),
		CoverageResolution: c.Coverage.Resolution,
		SensorProvider:     c.Sensor.Provider,
	})
}
