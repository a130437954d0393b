package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kozaktomas/face-attendance/internal/attendance"
)

// AttendanceRepository stores attendance events. It implements attendance.Sink.
type AttendanceRepository struct {
	pool *Pool
}

var _ attendance.Sink = (*AttendanceRepository)(nil)

// NewAttendanceRepository creates a new PostgreSQL attendance repository
func NewAttendanceRepository(pool *Pool) *AttendanceRepository {
	return &AttendanceRepository{pool: pool}
}

// Record inserts an event. Re-recording the same identity in the same session
// is a no-op.
func (r *AttendanceRepository) Record(ctx context.Context, ev attendance.Event) error {
	query := `
		INSERT INTO attendance_events (id, session_id, name, recorded_at, distance, confidence)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (session_id, name) DO NOTHING
	`
	_, err := r.pool.Exec(ctx, query, ev.ID, ev.SessionID, ev.Name, ev.Timestamp, ev.Distance, ev.Confidence)
	if err != nil {
		return fmt.Errorf("record attendance event: %w", err)
	}
	return nil
}

// ListBySession returns a session's events in the order they were recorded.
func (r *AttendanceRepository) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]attendance.Event, error) {
	query := `
		SELECT id, session_id, name, recorded_at, distance, confidence
		FROM attendance_events
		WHERE session_id = $1
		ORDER BY recorded_at, name
	`
	return r.list(ctx, query, sessionID)
}

// ListSince returns every event recorded at or after since, oldest first.
func (r *AttendanceRepository) ListSince(ctx context.Context, since time.Time) ([]attendance.Event, error) {
	query := `
		SELECT id, session_id, name, recorded_at, distance, confidence
		FROM attendance_events
		WHERE recorded_at >= $1
		ORDER BY recorded_at, name
	`
	return r.list(ctx, query, since)
}

// CountByName returns how many sessions recorded each identity.
func (r *AttendanceRepository) CountByName(ctx context.Context) (map[string]int, error) {
	rows, err := r.pool.Query(ctx, "SELECT name, COUNT(*) FROM attendance_events GROUP BY name")
	if err != nil {
		return nil, fmt.Errorf("count attendance: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var name string
		var n int
		if err := rows.Scan(&name, &n); err != nil {
			return nil, fmt.Errorf("scan attendance count: %w", err)
		}
		counts[name] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attendance counts: %w", err)
	}
	return counts, nil
}

func (r *AttendanceRepository) list(ctx context.Context, query string, arg any) ([]attendance.Event, error) {
	rows, err := r.pool.Query(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("query attendance events: %w", err)
	}
	defer rows.Close()

	var events []attendance.Event
	for rows.Next() {
		var ev attendance.Event
		if err := rows.Scan(&ev.ID, &ev.SessionID, &ev.Name, &ev.Timestamp, &ev.Distance, &ev.Confidence); err != nil {
			return nil, fmt.Errorf("scan attendance event: %w", err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attendance events: %w", err)
	}
	return events, nil
}
