package postgres

import (
	"context"
	"fmt"

	"github.com/pgvector/pgvector-go"

	"github.com/kozaktomas/face-attendance/internal/face"
	"github.com/kozaktomas/face-attendance/internal/matcher"
)

// GalleryMirror keeps a queryable copy of the gallery in PostgreSQL. The gallery
// file stays the source of truth; the mirror is replaced wholesale on push.
type GalleryMirror struct {
	pool *Pool
}

// NewGalleryMirror creates a new gallery mirror
func NewGalleryMirror(pool *Pool) *GalleryMirror {
	return &GalleryMirror{pool: pool}
}

// Replace swaps the mirrored records for records in one transaction.
// progress, when non-nil, is called after each inserted record.
func (m *GalleryMirror) Replace(ctx context.Context, records []face.Record, progress func()) error {
	tx, err := m.pool.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM gallery_records"); err != nil {
		return fmt.Errorf("clear gallery mirror: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO gallery_records (position, name, embedding, dim)
		VALUES ($1, $2, $3, $4)
	`)
	if err != nil {
		return fmt.Errorf("prepare statement: %w", err)
	}
	defer stmt.Close()

	for i, rec := range records {
		vec := pgvector.NewVector(rec.Embedding)
		if _, err := stmt.ExecContext(ctx, i, rec.Name, vec, rec.Dim()); err != nil {
			return fmt.Errorf("insert record %d (%s): %w", i, rec.Name, err)
		}
		if progress != nil {
			progress()
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Records returns the mirrored records in gallery order.
func (m *GalleryMirror) Records(ctx context.Context) ([]face.Record, error) {
	rows, err := m.pool.Query(ctx, "SELECT name, embedding FROM gallery_records ORDER BY position")
	if err != nil {
		return nil, fmt.Errorf("query gallery mirror: %w", err)
	}
	defer rows.Close()

	var records []face.Record
	for rows.Next() {
		var rec face.Record
		var vec pgvector.Vector
		if err := rows.Scan(&rec.Name, &vec); err != nil {
			return nil, fmt.Errorf("scan gallery record: %w", err)
		}
		rec.Embedding = vec.Slice()
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate gallery records: %w", err)
	}
	return records, nil
}

// Count returns the number of mirrored records.
func (m *GalleryMirror) Count(ctx context.Context) (int, error) {
	var count int
	if err := m.pool.QueryRow(ctx, "SELECT COUNT(*) FROM gallery_records").Scan(&count); err != nil {
		return 0, fmt.Errorf("count gallery records: %w", err)
	}
	return count, nil
}

// FindSimilar returns up to limit mirrored records ordered by cosine distance to
// embedding. Only records of the same dimensionality are compared.
func (m *GalleryMirror) FindSimilar(ctx context.Context, embedding []float32, limit int) ([]matcher.Candidate, error) {
	query := `
		SELECT position, name, embedding <=> $1::vector AS distance
		FROM gallery_records
		WHERE dim = $2
		ORDER BY distance, position
		LIMIT $3
	`
	rows, err := m.pool.Query(ctx, query, pgvector.NewVector(embedding), len(embedding), limit)
	if err != nil {
		return nil, fmt.Errorf("query similar records: %w", err)
	}
	defer rows.Close()

	var out []matcher.Candidate
	for rows.Next() {
		var c matcher.Candidate
		if err := rows.Scan(&c.Index, &c.Name, &c.Distance); err != nil {
			return nil, fmt.Errorf("scan similar record: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate similar records: %w", err)
	}
	return out, nil
}
