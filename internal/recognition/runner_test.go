package recognition

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kozaktomas/face-attendance/internal/attendance"
	"github.com/kozaktomas/face-attendance/internal/extractor"
)

func mustConfirmer(t *testing.T, frames int) *Confirmer {
	t.Helper()
	c, err := NewConfirmer(frames, 0.9)
	require.NoError(t, err)
	return c
}

func feed(frames ...Frame) <-chan Frame {
	ch := make(chan Frame, len(frames))
	for _, f := range frames {
		ch <- f
	}
	close(ch)
	return ch
}

func TestRunner_AttendRecordsEachIdentityOnce(t *testing.T) {
	ctx := context.Background()
	ex := fakeExtractor{"alice": {1, 0}, "bob": {0, 1}}
	svc := newTestService(t, 0.1, WithExtractor(ex))
	_, err := svc.Enroll(ctx, "Alice", []float32{1, 0})
	require.NoError(t, err)
	_, err = svc.Enroll(ctx, "Bob", []float32{0, 1})
	require.NoError(t, err)

	var mu sync.Mutex
	var stored []string
	sink := attendance.SinkFunc(func(_ context.Context, ev attendance.Event) error {
		mu.Lock()
		defer mu.Unlock()
		stored = append(stored, ev.Name)
		return nil
	})

	r := NewRunner(svc, ModeAttend, mustConfirmer(t, 2), WithSink(sink))
	var outcomes []Outcome
	err = r.Run(ctx, feed(
		Frame{Image: []byte("alice")},
		Frame{Image: []byte("alice")}, // confirms Alice
		Frame{Image: []byte("alice")},
		Frame{Image: []byte("alice")}, // confirms again, already recorded
		Frame{Image: []byte("nobody")},
		Frame{Image: []byte("bob")},
		Frame{Image: []byte("bob")}, // confirms Bob
	), func(o Outcome) { outcomes = append(outcomes, o) })
	require.NoError(t, err)
	require.Len(t, outcomes, 7)

	assert.NotNil(t, outcomes[1].Event)
	assert.True(t, outcomes[3].Confirmed)
	assert.Nil(t, outcomes[3].Event)
	assert.ErrorIs(t, outcomes[4].Err, extractor.ErrNoFaceDetected)
	assert.NotNil(t, outcomes[6].Event)
	assert.Equal(t, 7, outcomes[6].Seq)

	assert.Equal(t, []string{"Alice", "Bob"}, r.Session().Recorded())
	assert.Equal(t, []string{"Alice", "Bob"}, stored)
}

func TestRunner_RecognizeModeHasNoSession(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, 0.1)
	_, err := svc.Enroll(ctx, "Alice", []float32{1, 0})
	require.NoError(t, err)

	r := NewRunner(svc, ModeRecognize, mustConfirmer(t, 1))
	out := r.Process(ctx, Frame{Embedding: []float32{1, 0}})
	require.NoError(t, out.Err)
	assert.True(t, out.Confirmed)
	assert.Nil(t, out.Event)
	assert.Nil(t, r.Session())
	assert.Equal(t, "recognize", r.Mode().String())
}

func TestRunner_EnrollFrame(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, 0.1, WithExtractor(fakeExtractor{"carol": {0.3, 0.4}}))
	r := NewRunner(svc, ModeAttend, mustConfirmer(t, 1))

	out := r.Process(ctx, Frame{Image: []byte("carol"), EnrollAs: "Carol"})
	require.NoError(t, out.Err)
	require.NotNil(t, out.Enrolled)
	assert.Equal(t, "Carol", out.Enrolled.Name)

	out = r.Process(ctx, Frame{Image: []byte("carol")})
	require.NoError(t, out.Err)
	assert.Equal(t, "Carol", out.Result.Name)
	require.NotNil(t, out.Event)
}

func TestRunner_SinkFailureIsReported(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, 0.1)
	_, err := svc.Enroll(ctx, "Alice", []float32{1, 0})
	require.NoError(t, err)

	boom := errors.New("db down")
	r := NewRunner(svc, ModeAttend, mustConfirmer(t, 1), WithSink(attendance.SinkFunc(func(context.Context, attendance.Event) error {
		return boom
	})))
	out := r.Process(ctx, Frame{Embedding: []float32{1, 0}})
	assert.ErrorIs(t, out.Err, boom)
	assert.NotNil(t, out.Event, "the session keeps the event")
}

func TestRunner_StopsOnCancel(t *testing.T) {
	svc := newTestService(t, 0.1)
	r := NewRunner(svc, ModeRecognize, mustConfirmer(t, 1))

	ctx, cancel := context.WithCancel(context.Background())
	frames := make(chan Frame)
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx, frames, nil) }()

	frames <- Frame{Embedding: []float32{1}}
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("runner did not stop")
	}
}

// blockingExtractor holds extraction until released so cancellation can race an enrollment.
type blockingExtractor struct {
	started chan struct{}
	release chan struct{}
}

func (b *blockingExtractor) Extract(context.Context, []byte) ([]float32, error) {
	close(b.started)
	<-b.release
	return []float32{1, 1}, nil
}

func TestRunner_CancelDoesNotInterruptEnroll(t *testing.T) {
	ex := &blockingExtractor{started: make(chan struct{}), release: make(chan struct{})}
	svc := newTestService(t, 0.1, WithExtractor(ex))
	r := NewRunner(svc, ModeAttend, mustConfirmer(t, 1))

	ctx, cancel := context.WithCancel(context.Background())
	frames := make(chan Frame, 1)
	frames <- Frame{Image: []byte("dave"), EnrollAs: "Dave"}

	var outcomes []Outcome
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx, frames, func(o Outcome) { outcomes = append(outcomes, o) }) }()

	<-ex.started
	cancel()
	close(ex.release)

	err := <-done
	assert.ErrorIs(t, err, context.Canceled)
	require.Len(t, outcomes, 1)
	require.NoError(t, outcomes[0].Err)
	assert.Equal(t, 1, svc.Gallery().Len())
}
