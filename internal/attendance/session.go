// Package attendance turns match results into attendance events, recording each
// identity at most once per session.
package attendance

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kozaktomas/face-attendance/internal/matcher"
)

// State is the lifecycle state of a session.
type State int

const (
	// Idle means no identity has been recorded yet.
	Idle State = iota
	// Active means at least one identity has been recorded.
	Active
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Active:
		return "active"
	default:
		return "invalid"
	}
}

// Event records that an identity was confirmed present during a session.
type Event struct {
	ID         uuid.UUID `json:"id"`
	SessionID  uuid.UUID `json:"session_id"`
	Name       string    `json:"name"`
	Timestamp  time.Time `json:"timestamp"`
	Distance   float64   `json:"distance"`
	Confidence float64   `json:"confidence"`
}

// Session tracks which identities were already recorded in one continuous run.
// It is safe for concurrent use.
type Session struct {
	id        uuid.UUID
	now       func() time.Time
	startedAt time.Time

	mu       sync.Mutex
	recorded map[string]struct{}
	events   []Event
	ended    bool
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithClock sets the time source used for event timestamps.
func WithClock(now func() time.Time) SessionOption {
	return func(s *Session) { s.now = now }
}

// WithID sets the session identifier instead of generating one.
func WithID(id uuid.UUID) SessionOption {
	return func(s *Session) { s.id = id }
}

// NewSession starts an idle session.
func NewSession(opts ...SessionOption) *Session {
	s := &Session{
		id:       uuid.New(),
		now:      time.Now,
		recorded: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.startedAt = s.now()
	return s
}

// ID returns the session identifier.
func (s *Session) ID() uuid.UUID { return s.id }

// StartedAt returns when the session was created.
func (s *Session) StartedAt() time.Time { return s.startedAt }

// State returns Idle until the first identity is recorded, Active afterwards.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.events) == 0 {
		return Idle
	}
	return Active
}

// Observe feeds one match result into the session. It returns the emitted
// event and true when res is classified and its name has not been recorded in
// this session yet. Unclassified results and repeated names are ignored, as is
// everything observed after End.
func (s *Session) Observe(res matcher.Result) (Event, bool) {
	if !res.Classified {
		return Event{}, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ended {
		return Event{}, false
	}
	if _, seen := s.recorded[res.Name]; seen {
		return Event{}, false
	}

	ev := Event{
		ID:         uuid.New(),
		SessionID:  s.id,
		Name:       res.Name,
		Timestamp:  s.now(),
		Distance:   res.Distance,
		Confidence: res.Confidence(),
	}
	s.recorded[res.Name] = struct{}{}
	s.events = append(s.events, ev)
	return ev, true
}

// HasRecorded reports whether name already has an event in this session.
func (s *Session) HasRecorded(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.recorded[name]
	return ok
}

// Events returns the events emitted so far, oldest first.
func (s *Session) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}

// Recorded returns the recorded names in the order they were first seen.
func (s *Session) Recorded() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, len(s.events))
	for i, ev := range s.events {
		names[i] = ev.Name
	}
	return names
}

// End closes the session. Later observations emit nothing. It returns the
// session's events and is safe to call more than once.
func (s *Session) End() []Event {
	s.mu.Lock()
	s.ended = true
	s.mu.Unlock()
	return s.Events()
}

// Ended reports whether End has been called.
func (s *Session) Ended() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ended
}
