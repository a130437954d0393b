package recognition

import (
	"context"
	"fmt"
	"sync"

	"github.com/kozaktomas/face-attendance/internal/attendance"
	"github.com/kozaktomas/face-attendance/internal/face"
	"github.com/kozaktomas/face-attendance/internal/logger"
	"github.com/kozaktomas/face-attendance/internal/matcher"
	"github.com/kozaktomas/face-attendance/internal/metrics"
)

// Mode selects what the runner does with identified frames.
type Mode int

const (
	// ModeRecognize only reports results.
	ModeRecognize Mode = iota
	// ModeAttend records confirmed identities in an attendance session.
	ModeAttend
)

func (m Mode) String() string {
	if m == ModeAttend {
		return "attend"
	}
	return "recognize"
}

// Frame is one capture. Either Image or Embedding must be set; a precomputed
// Embedding skips extraction. A non-empty EnrollAs enrolls the frame's face
// under that name instead of identifying it.
type Frame struct {
	Image     []byte
	Embedding []float32
	EnrollAs  string
}

// Outcome is the runner's verdict for one frame.
type Outcome struct {
	Seq       int
	Result    matcher.Result
	Confirmed bool
	Event     *attendance.Event
	Enrolled  *face.Record
	Err       error
}

// Runner drives frames through extraction, identification, confirmation and,
// in ModeAttend, the attendance session. Process is safe for concurrent use;
// frames are handled one at a time.
type Runner struct {
	svc     *Service
	mode    Mode
	session *attendance.Session
	sink    attendance.Sink
	metrics *metrics.Metrics
	log     *logger.Logger

	mu        sync.Mutex
	confirmer *Confirmer
	seq       int
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithSession records events in s instead of a fresh session.
func WithSession(s *attendance.Session) RunnerOption {
	return func(r *Runner) { r.session = s }
}

// WithSink stores every attendance event in sink.
func WithSink(sink attendance.Sink) RunnerOption {
	return func(r *Runner) { r.sink = sink }
}

// WithRunnerLogger sets the runner logger.
func WithRunnerLogger(l *logger.Logger) RunnerOption {
	return func(r *Runner) { r.log = l }
}

// WithRunnerMetrics counts attendance events.
func WithRunnerMetrics(m *metrics.Metrics) RunnerOption {
	return func(r *Runner) { r.metrics = m }
}

// NewRunner creates a runner. The confirmer decides when a streak of frames
// confirms an identity.
func NewRunner(svc *Service, mode Mode, confirmer *Confirmer, opts ...RunnerOption) *Runner {
	r := &Runner{
		svc:       svc,
		mode:      mode,
		confirmer: confirmer,
		log:       logger.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.session == nil && mode == ModeAttend {
		r.session = attendance.NewSession()
	}
	return r
}

// Mode returns the runner mode.
func (r *Runner) Mode() Mode { return r.mode }

// Session returns the attendance session, nil in ModeRecognize.
func (r *Runner) Session() *attendance.Session { return r.session }

// Run processes frames until the channel is closed or ctx is cancelled, handing
// every outcome to handle. Cancellation is checked between frames; an
// enrollment already in progress completes first.
func (r *Runner) Run(ctx context.Context, frames <-chan Frame, handle func(Outcome)) error {
	r.log.Info("capture loop started", "mode", r.mode)
	defer r.log.Info("capture loop stopped", "mode", r.mode)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case f, ok := <-frames:
			if !ok {
				return nil
			}
			if err := ctx.Err(); err != nil {
				return err
			}
			out := r.Process(ctx, f)
			if handle != nil {
				handle(out)
			}
		}
	}
}

// Process handles a single frame. Per-frame failures, such as
// extractor.ErrNoFaceDetected, are reported in Outcome.Err. Enrollment frames
// ignore cancellation of ctx.
func (r *Runner) Process(ctx context.Context, f Frame) Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.seq++
	out := Outcome{Seq: r.seq, Result: matcher.UnknownResult()}
	if f.EnrollAs != "" {
		ctx = context.WithoutCancel(ctx)
	}

	emb := f.Embedding
	if emb == nil {
		var err error
		if emb, err = r.svc.Extract(ctx, f.Image); err != nil {
			out.Err = err
			r.confirmer.Reset()
			return out
		}
	}

	if f.EnrollAs != "" {
		rec, err := r.svc.Enroll(ctx, f.EnrollAs, emb)
		if err != nil {
			out.Err = fmt.Errorf("enrolling %q: %w", f.EnrollAs, err)
			return out
		}
		out.Enrolled = &rec
		return out
	}

	res, err := r.svc.Identify(ctx, emb)
	if err != nil {
		out.Err = err
		r.confirmer.Reset()
		return out
	}
	out.Result = res
	out.Confirmed = r.confirmer.Observe(res)

	if r.mode != ModeAttend || !out.Confirmed {
		return out
	}
	ev, ok := r.session.Observe(res)
	if !ok {
		return out
	}
	out.Event = &ev
	r.metrics.IncAttendance()
	r.log.Info("attendance recorded", "name", ev.Name, "session", ev.SessionID, "confidence", ev.Confidence)

	if r.sink != nil {
		if err := r.sink.Record(context.WithoutCancel(ctx), ev); err != nil {
			out.Err = fmt.Errorf("storing attendance event: %w", err)
			r.log.Error("failed to store attendance event", "name", ev.Name, "error", err)
		}
	}
	return out
}
