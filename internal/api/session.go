package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"lesstraveled/pkg/model"
	"lesstraveled/pkg/session"
)

// maxSampleBody bounds POST /api/samples payloads.
const maxSampleBody = 4 << 20

// Tracker is the part of a session the API drives.
type Tracker interface {
	ID() string
	Start()
	Stop(ctx context.Context) error
	Observe(ctx context.Context, s model.LocationSample) (bool, error)
	OnAuthorizationChanged(ctx context.Context, state model.AuthorizationState) error
	State() session.State
	Authorization() model.AuthorizationState
	Stats() session.Stats
	Current() model.Drive
	Drives() []model.Drive
}

// SessionHandler exposes session control and sample ingestion.
type SessionHandler struct {
	tracker Tracker
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(t Tracker) *SessionHandler {
	return &SessionHandler{tracker: t}
}

// SessionStatus is the GET /api/session response.
type SessionStatus struct {
	ID            string                   `json:"id"`
	State         session.State            `json:"state"`
	Authorization model.AuthorizationState `json:"authorization"`
	CurrentDrive  int                      `json:"current_drive_samples"`
	Drives        int                      `json:"drives"`
	Stats         session.Stats            `json:"stats"`
}

// IngestResult is the POST /api/samples response.
type IngestResult struct {
	Received int    `json:"received"`
	Accepted int    `json:"accepted"`
	Error    string `json:"error,omitempty"`
}

func (h *SessionHandler) status() SessionStatus {
	return SessionStatus{
		ID:            h.tracker.ID(),
		State:         h.tracker.State(),
		Authorization: h.tracker.Authorization(),
		CurrentDrive:  len(h.tracker.Current()),
		Drives:        len(h.tracker.Drives()),
		Stats:         h.tracker.Stats(),
	}
}

// HandleStatus returns the session state.
// GET /api/session
func (h *SessionHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.status())
}

// HandleStart begins tracking.
// POST /api/session/start
func (h *SessionHandler) HandleStart(w http.ResponseWriter, r *http.Request) {
	h.tracker.Start()
	writeJSON(w, http.StatusOK, h.status())
}

// HandleStop finalizes the current drive.
// POST /api/session/stop
func (h *SessionHandler) HandleStop(w http.ResponseWriter, r *http.Request) {
	if err := h.tracker.Stop(r.Context()); err != nil {
		// The drive is kept in memory; the next save reconciles.
		slog.Warn("Stop could not persist history", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, h.status())
}

// HandleSamples accepts a single fix object or an array of fixes.
// POST /api/samples
func (h *SessionHandler) HandleSamples(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxSampleBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}

	fixes, err := decodeFixes(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res := IngestResult{Received: len(fixes)}
	for _, f := range fixes {
		ok, err := h.tracker.Observe(r.Context(), f.Sample())
		if ok {
			res.Accepted++
		}
		if err != nil && res.Error == "" {
			res.Error = err.Error()
		}
	}

	status := http.StatusOK
	if res.Error != "" {
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, res)
}

func decodeFixes(body []byte) ([]model.Fix, error) {
	var fixes []model.Fix
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &fixes); err != nil {
			return nil, err
		}
	} else {
		var f model.Fix
		if err := json.Unmarshal(trimmed, &f); err != nil {
			return nil, err
		}
		fixes = append(fixes, f)
	}

	for i, f := range fixes {
		if f.Time.IsZero() {
			return nil, fmt.Errorf("fix %d is missing time", i)
		}
	}
	return fixes, nil
}

type authorizationRequest struct {
	State model.AuthorizationState `json:"state"`
}

// HandleAuthorization records a permission change from the platform.
// POST /api/authorization
func (h *SessionHandler) HandleAuthorization(w http.ResponseWriter, r *http.Request) {
	var req authorizationRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 4096)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	switch req.State {
	case model.AuthNotDetermined, model.AuthDenied, model.AuthRestricted, model.AuthWhenInUse, model.AuthAlways:
	default:
		writeError(w, http.StatusBadRequest, "unknown authorization state")
		return
	}

	if err := h.tracker.OnAuthorizationChanged(r.Context(), req.State); err != nil {
		slog.Warn("Authorization change could not persist history", "error", err)
	}
	writeJSON(w, http.StatusOK, h.status())
}
