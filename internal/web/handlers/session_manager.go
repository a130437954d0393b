package handlers

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kozaktomas/face-attendance/internal/attendance"
	"github.com/kozaktomas/face-attendance/internal/constants"
	"github.com/kozaktomas/face-attendance/internal/logger"
	"github.com/kozaktomas/face-attendance/internal/metrics"
	"github.com/kozaktomas/face-attendance/internal/recognition"
)

// SessionOptions configures the attendance sessions opened over HTTP.
type SessionOptions struct {
	ConfirmFrames int
	MinConfidence float64
	IdleTimeout   time.Duration
	Sink          attendance.Sink
	Metrics       *metrics.Metrics
	Logger        *logger.Logger
}

// AttendanceSession is an attendance run fed frame by frame over HTTP.
type AttendanceSession struct {
	EventBroadcaster

	runner        *recognition.Runner
	confirmFrames int
	minConfidence float64

	seenMu   sync.Mutex
	lastSeen time.Time
}

// ID returns the session identifier.
func (s *AttendanceSession) ID() uuid.UUID {
	return s.runner.Session().ID()
}

func (s *AttendanceSession) touch(now time.Time) {
	s.seenMu.Lock()
	s.lastSeen = now
	s.seenMu.Unlock()
}

func (s *AttendanceSession) idleSince() time.Time {
	s.seenMu.Lock()
	defer s.seenMu.Unlock()
	return s.lastSeen
}

// SessionResponse describes an attendance session.
type SessionResponse struct {
	ID            uuid.UUID          `json:"id"`
	State         string             `json:"state"`
	StartedAt     time.Time          `json:"started_at"`
	ConfirmFrames int                `json:"confirm_frames"`
	MinConfidence float64            `json:"min_confidence"`
	Ended         bool               `json:"ended"`
	Recorded      []string           `json:"recorded"`
	Events        []attendance.Event `json:"events"`
}

// Info returns a point-in-time view of the session.
func (s *AttendanceSession) Info() SessionResponse {
	sess := s.runner.Session()
	return SessionResponse{
		ID:            sess.ID(),
		State:         sess.State().String(),
		StartedAt:     sess.StartedAt(),
		ConfirmFrames: s.confirmFrames,
		MinConfidence: s.minConfidence,
		Ended:         sess.Ended(),
		Recorded:      sess.Recorded(),
		Events:        sess.Events(),
	}
}

// OutcomeResponse is the JSON form of one processed frame.
type OutcomeResponse struct {
	Seq       int               `json:"seq"`
	Result    ResultResponse    `json:"result"`
	Confirmed bool              `json:"confirmed"`
	Event     *attendance.Event `json:"event,omitempty"`
	Error     string            `json:"error,omitempty"`
}

func newOutcomeResponse(out recognition.Outcome) OutcomeResponse {
	resp := OutcomeResponse{
		Seq:       out.Seq,
		Result:    newResultResponse(out.Result),
		Confirmed: out.Confirmed,
		Event:     out.Event,
	}
	if out.Err != nil {
		resp.Error = out.Err.Error()
	}
	return resp
}

// Observe processes one frame and notifies the listeners.
func (s *AttendanceSession) Observe(ctx context.Context, f recognition.Frame) recognition.Outcome {
	out := s.runner.Process(ctx, f)
	s.SendEvent(SessionEvent{Type: EventResult, Data: newOutcomeResponse(out)})
	if out.Event != nil {
		s.SendEvent(SessionEvent{Type: EventAttendance, Message: out.Event.Name + " recorded", Data: out.Event})
	}
	return out
}

func (s *AttendanceSession) end() []attendance.Event {
	events := s.runner.Session().End()
	s.Close(SessionEvent{Type: EventEnded, Data: s.Info()})
	return events
}

// SessionManager owns the open attendance sessions.
type SessionManager struct {
	svc  *recognition.Service
	opts SessionOptions
	now  func() time.Time

	sessions map[uuid.UUID]*AttendanceSession
	mu       sync.RWMutex

	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewSessionManager creates a new session manager.
func NewSessionManager(svc *recognition.Service, opts SessionOptions) *SessionManager {
	if opts.ConfirmFrames == 0 {
		opts.ConfirmFrames = constants.DefaultConfirmFrames
	}
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = constants.SessionIdleTimeout
	}
	if opts.Logger == nil {
		opts.Logger = logger.Nop()
	}
	return &SessionManager{
		svc:      svc,
		opts:     opts,
		now:      time.Now,
		sessions: make(map[uuid.UUID]*AttendanceSession),
		stopCh:   make(chan struct{}),
	}
}

// Create opens a session. Zero confirmFrames and nil minConfidence select
// the manager defaults.
func (m *SessionManager) Create(confirmFrames int, minConfidence *float64) (*AttendanceSession, error) {
	if confirmFrames == 0 {
		confirmFrames = m.opts.ConfirmFrames
	}
	conf := m.opts.MinConfidence
	if minConfidence != nil {
		conf = *minConfidence
	}
	confirmer, err := recognition.NewConfirmer(confirmFrames, conf)
	if err != nil {
		return nil, err
	}

	runner := recognition.NewRunner(m.svc, recognition.ModeAttend, confirmer,
		recognition.WithSession(attendance.NewSession()),
		recognition.WithSink(m.opts.Sink),
		recognition.WithRunnerLogger(m.opts.Logger),
		recognition.WithRunnerMetrics(m.opts.Metrics),
	)
	s := &AttendanceSession{
		runner:        runner,
		confirmFrames: confirmFrames,
		minConfidence: conf,
		lastSeen:      m.now(),
	}

	m.mu.Lock()
	m.sessions[s.ID()] = s
	m.mu.Unlock()

	m.opts.Metrics.SessionOpened()
	m.opts.Logger.Info("attendance session opened", "session", s.ID(), "confirm_frames", confirmFrames)
	return s, nil
}

// Get returns the open session with id, or nil.
func (m *SessionManager) Get(id uuid.UUID) *AttendanceSession {
	m.mu.RLock()
	s := m.sessions[id]
	m.mu.RUnlock()
	if s != nil {
		s.touch(m.now())
	}
	return s
}

// End closes the session and returns its events in recording order.
func (m *SessionManager) End(id uuid.UUID) ([]attendance.Event, bool) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return nil, false
	}

	events := s.end()
	m.opts.Metrics.SessionClosed()
	m.opts.Logger.Info("attendance session ended", "session", id, "events", len(events))
	return events, true
}

// Len returns the number of open sessions.
func (m *SessionManager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Sweep ends the sessions idle for longer than the idle timeout.
func (m *SessionManager) Sweep() int {
	cutoff := m.now().Add(-m.opts.IdleTimeout)

	m.mu.RLock()
	var idle []uuid.UUID
	for id, s := range m.sessions {
		if s.idleSince().Before(cutoff) {
			idle = append(idle, id)
		}
	}
	m.mu.RUnlock()

	ended := 0
	for _, id := range idle {
		if _, ok := m.End(id); ok {
			ended++
		}
	}
	return ended
}

// StartCleanup sweeps idle sessions every interval until Stop is called.
func (m *SessionManager) StartCleanup(interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-m.stopCh:
				return
			case <-ticker.C:
				if n := m.Sweep(); n > 0 {
					m.opts.Logger.Info("idle attendance sessions ended", "count", n)
				}
			}
		}
	}()
}

// Stop halts the cleanup loop and ends every open session.
func (m *SessionManager) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })

	m.mu.RLock()
	ids := make([]uuid.UUID, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.RUnlock()

	for _, id := range ids {
		m.End(id)
	}
}
