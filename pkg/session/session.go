package session

import (
	"context"
	"iter"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"lesstraveled/pkg/geo"
	"lesstraveled/pkg/logging"
	"lesstraveled/pkg/model"
	"lesstraveled/pkg/store"
	"lesstraveled/pkg/visited"
)

// State is the tracking state of a session.
type State string

const (
	StateIdle     State = "idle"
	StateTracking State = "tracking"
)

// EventType identifies what a session Event reports.
type EventType string

const (
	EventSample        EventType = "sample"         // a novel sample was accepted
	EventDriveFinished EventType = "drive_finished" // the current drive moved into history
	EventState         EventType = "state"          // tracking started or stopped
)

// Event is delivered to listeners after the session lock is released.
type Event struct {
	Type      EventType             `json:"type"`
	State     State                 `json:"state"`
	Sample    *model.LocationSample `json:"sample,omitempty"`
	Course    *geo.Course           `json:"course,omitempty"`
	Drives    int                   `json:"drives"`
	DriveSize int                   `json:"drive_size"`
}

// Listener receives session events. It must not call back into the session
// synchronously.
type Listener func(Event)

// Stats counts sample outcomes since the session was created.
type Stats struct {
	Accepted     int `json:"accepted"`
	Visited      int `json:"visited"`
	Ignored      int `json:"ignored"`
	SaveFailures int `json:"save_failures"`
}

// Session records novel samples into the current drive and keeps the
// persisted history in step with memory. All entry points are serialized.
type Session struct {
	mu sync.Mutex

	id      string
	store   store.HistoryStore
	matcher visited.Matcher
	track   *geo.TrackBuffer
	logger  *slog.Logger

	past    []model.Drive
	current model.Drive
	state   State
	auth    model.AuthorizationState
	stats   Stats
	loadErr error

	listeners []Listener
}

// New loads the persisted history and returns an idle session.
//
// A store that cannot be read still yields a usable session with empty
// history; the failure is available from LoadError. The next successful
// Save overwrites the unreadable document.
func New(ctx context.Context, st store.HistoryStore, matcher visited.Matcher) *Session {
	id := uuid.NewString()
	s := &Session{
		id:      id,
		store:   st,
		matcher: matcher,
		track:   geo.NewTrackBuffer(5),
		logger:  slog.With("component", "session", "session_id", id),
		state:   StateIdle,
		auth:    model.AuthNotDetermined,
	}

	rec, err := st.Load(ctx)
	if err != nil {
		s.logger.Warn("Starting with empty history", "error", err)
		s.loadErr = err
	}
	s.past = rec.Clone().Drives
	s.logger.Info("Session ready", "drives", len(s.past), "samples", rec.SampleCount(), "radius_m", matcher.Radius)
	return s
}

// ID returns the random identifier attached to this session's log lines.
func (s *Session) ID() string {
	return s.id
}

// LoadError returns the error from the startup load, if any.
func (s *Session) LoadError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadErr
}

// Subscribe registers a listener for session events.
func (s *Session) Subscribe(l Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, l)
}

// Start moves an idle session to tracking with an empty current drive.
// Starting an already tracking session keeps the current drive.
func (s *Session) Start() {
	s.mu.Lock()
	if s.state == StateTracking {
		s.mu.Unlock()
		return
	}
	s.state = StateTracking
	s.current = nil
	s.track.Reset()
	ev := s.eventLocked(EventState)
	s.mu.Unlock()

	s.logger.Info("Tracking started")
	s.emit(ev)
}

// Observe handles one sample from the location sensor. It reports whether
// the sample was accepted as new ground. Samples are ignored while idle,
// while the sensor is not authorized, when they are invalid, and when they
// are older than the last sample of the current drive.
func (s *Session) Observe(ctx context.Context, sample model.LocationSample) (accepted bool, err error) {
	s.mu.Lock()

	switch {
	case s.state != StateTracking:
		s.stats.Ignored++
		s.mu.Unlock()
		logging.Trace(s.logger, "Sample ignored, not tracking")
		return false, nil
	case s.blockedLocked():
		s.stats.Ignored++
		auth := s.auth
		s.mu.Unlock()
		logging.Trace(s.logger, "Sample ignored, not authorized", "auth", auth)
		return false, nil
	case !sample.Valid():
		s.stats.Ignored++
		s.mu.Unlock()
		s.logger.Debug("Sample ignored, invalid coordinate", "lat", sample.Latitude, "lon", sample.Longitude)
		return false, nil
	case len(s.current) > 0 && sample.Time.Before(s.current[len(s.current)-1].Time):
		s.stats.Ignored++
		last := s.current[len(s.current)-1].Time
		s.mu.Unlock()
		s.logger.Debug("Sample ignored, older than the current drive", "time", sample.Time, "last", last)
		return false, nil
	}

	history := visited.Concat(visited.DriveSamples(s.current), s.pastSamplesLocked())
	if s.matcher.WasVisited(sample, history) {
		s.stats.Visited++
		s.mu.Unlock()
		logging.Trace(s.logger, "Sample already visited", "lat", sample.Latitude, "lon", sample.Longitude)
		return false, nil
	}

	s.current = append(s.current, sample)
	s.stats.Accepted++
	err = s.saveLocked(ctx)

	ev := s.eventLocked(EventSample)
	ev.Sample = &sample
	if c, ok := s.track.Push(sample); ok {
		ev.Course = &c
	}
	s.mu.Unlock()

	logging.Trace(s.logger, "Sample accepted", "lat", sample.Latitude, "lon", sample.Longitude, "drive_size", ev.DriveSize)
	s.emit(ev)
	return true, err
}

// Stop finalizes a non-empty current drive into history, persists it and
// returns to idle. A buffered store is flushed so the finished drive is
// durable when Stop returns.
func (s *Session) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateTracking {
		s.mu.Unlock()
		return nil
	}
	events, err := s.stopLocked(ctx)
	s.mu.Unlock()

	for _, ev := range events {
		s.emit(ev)
	}
	return err
}

// OnAuthorizationChanged records the sensor authorization state. Losing
// authorization while tracking stops the session.
func (s *Session) OnAuthorizationChanged(ctx context.Context, state model.AuthorizationState) error {
	s.mu.Lock()
	prev := s.auth
	s.auth = state
	s.logger.Info("Authorization changed", "from", prev, "to", state)

	if !s.blockedLocked() || s.state != StateTracking {
		s.mu.Unlock()
		return nil
	}

	s.logger.Warn("Location access revoked while tracking, stopping")
	events, err := s.stopLocked(ctx)
	s.mu.Unlock()

	for _, ev := range events {
		s.emit(ev)
	}
	return err
}

// State returns the current tracking state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Authorization returns the last reported authorization state.
func (s *Session) Authorization() model.AuthorizationState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.auth
}

// Stats returns sample counters.
func (s *Session) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// Drives returns a copy of the past drives followed by the in-progress
// drive when it is non-empty.
func (s *Session) Drives() []model.Drive {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recordLocked().Clone().Drives
}

// Current returns a copy of the in-progress drive.
func (s *Session) Current() model.Drive {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current.Clone()
}

func (s *Session) stopLocked(ctx context.Context) ([]Event, error) {
	var (
		events []Event
		err    error
	)

	if len(s.current) > 0 {
		size := len(s.current)
		s.past = append(s.past, s.current)
		s.current = nil
		err = s.saveLocked(ctx)

		ev := s.eventLocked(EventDriveFinished)
		ev.DriveSize = size
		events = append(events, ev)
		s.logger.Info("Drive finished", "samples", size, "drives", len(s.past))
	}

	if f, ok := s.store.(store.Flusher); ok {
		if ferr := f.Flush(ctx); ferr != nil && err == nil {
			err = ferr
		}
	}

	s.state = StateIdle
	s.track.Reset()
	events = append(events, s.eventLocked(EventState))
	s.logger.Info("Tracking stopped")
	return events, err
}

// saveLocked persists past drives plus the in-progress drive. A failure
// leaves memory authoritative; the next Save rewrites everything.
func (s *Session) saveLocked(ctx context.Context) error {
	if err := s.store.Save(ctx, s.recordLocked()); err != nil {
		s.stats.SaveFailures++
		s.logger.Error("Failed to persist history", "error", err)
		return err
	}
	return nil
}

func (s *Session) recordLocked() model.HistoryRecord {
	drives := make([]model.Drive, 0, len(s.past)+1)
	drives = append(drives, s.past...)
	if len(s.current) > 0 {
		drives = append(drives, s.current)
	}
	return model.HistoryRecord{Drives: drives}
}

func (s *Session) pastSamplesLocked() iter.Seq[model.LocationSample] {
	return model.HistoryRecord{Drives: s.past}.Samples()
}

// blockedLocked reports whether the platform has refused location access.
// An undetermined state does not block, so HTTP ingestion works without a gate.
func (s *Session) blockedLocked() bool {
	return s.auth == model.AuthDenied || s.auth == model.AuthRestricted
}

func (s *Session) eventLocked(t EventType) Event {
	return Event{
		Type:      t,
		State:     s.state,
		Drives:    len(s.past),
		DriveSize: len(s.current),
	}
}

func (s *Session) emit(ev Event) {
	s.mu.Lock()
	listeners := append([]Listener(nil), s.listeners...)
	s.mu.Unlock()
	for _, l := range listeners {
		l(ev)
	}
}
