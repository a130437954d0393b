// Package gallery persists enrolled face embeddings and serves consistent
// read-only snapshots of them to the matcher.
package gallery

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"slices"
	"sync"
	"time"

	"github.com/kozaktomas/face-attendance/internal/face"
	"github.com/kozaktomas/face-attendance/internal/logger"
	"github.com/kozaktomas/face-attendance/internal/matcher"
)

// Reader provides read-only access to the gallery.
type Reader interface {
	// Snapshot returns the current records. The slice is shared and must not be modified.
	Snapshot() []face.Record
	// Records returns a deep copy of the current records.
	Records() []face.Record
	// Len returns the number of records.
	Len() int
	// Dim returns the established embedding length, 0 for an empty gallery.
	Dim() int
	// Names returns the distinct identity names in first-enrolled order.
	Names() []string
	// Nearest returns up to k records closest to probe.
	Nearest(probe []float32, k int) ([]matcher.Candidate, error)
}

// Writer provides write access to the gallery.
type Writer interface {
	Reader

	// Enroll appends a record and persists the gallery.
	Enroll(ctx context.Context, name string, embedding []float32) (face.Record, error)
	// Remove deletes every record whose name folds to the same value as name.
	Remove(ctx context.Context, name string) (int, error)
}

var _ Writer = (*Store)(nil)

// snapshot is an immutable generation of the gallery.
type snapshot struct {
	records []face.Record
	dim     int

	indexOnce sync.Once
	index     *Index
}

func newSnapshot(records []face.Record) *snapshot {
	s := &snapshot{records: slices.Clip(records)}
	if len(records) > 0 {
		s.dim = records[0].Dim()
	}
	return s
}

func (s *snapshot) getIndex() *Index {
	s.indexOnce.Do(func() {
		s.index = NewIndex(s.records)
	})
	return s.index
}

// Store owns the gallery for the lifetime of the process.
//
// Readers take the current snapshot under a read lock. Mutators are serialized,
// build the next snapshot, persist it, and only then publish it under the write
// lock, so a failed write leaves both disk and memory as they were.
type Store struct {
	path     string
	fsys     FileSystem
	compress bool
	log      *logger.Logger
	onChange func(records int)

	writeMu sync.Mutex // serializes mutators
	mu      sync.RWMutex
	snap    *snapshot
}

// Option configures a Store.
type Option func(*Store)

// WithFileSystem replaces the local file system, mainly for tests.
func WithFileSystem(fsys FileSystem) Option {
	return func(s *Store) { s.fsys = fsys }
}

// WithCompression stores the gallery payload zstd-compressed.
func WithCompression(enabled bool) Option {
	return func(s *Store) { s.compress = enabled }
}

// WithLogger sets the store logger.
func WithLogger(l *logger.Logger) Option {
	return func(s *Store) { s.log = l }
}

// WithChangeHook registers a callback invoked with the record count after every
// published change (load, enroll, remove).
func WithChangeHook(fn func(records int)) Option {
	return func(s *Store) { s.onChange = fn }
}

// New creates an empty store bound to path without touching the disk.
func New(path string, opts ...Option) *Store {
	s := &Store{
		path: path,
		fsys: LocalFS{},
		log:  logger.Nop(),
		snap: newSnapshot(nil),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open creates a store and loads the gallery from path.
func Open(path string, opts ...Option) (*Store, error) {
	s := New(path, opts...)
	if err := s.Load(); err != nil {
		return nil, err
	}
	return s, nil
}

// Path returns the gallery file location.
func (s *Store) Path() string {
	return s.path
}

// Load reads the gallery file, replacing the in-memory gallery.
// A missing file yields an empty gallery.
func (s *Store) Load() error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	data, err := s.fsys.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		s.log.Info("gallery file not found, starting empty", "path", s.path)
		s.publish(newSnapshot(nil))
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading gallery %s: %w", s.path, err)
	}

	records, err := Unmarshal(data)
	if err != nil {
		return fmt.Errorf("loading gallery %s: %w", s.path, err)
	}

	next := newSnapshot(records)
	s.publish(next)
	s.log.Info("gallery loaded", "path", s.path, "records", len(records), "dim", next.dim)
	return nil
}

// Enroll validates and appends a new record, then persists the whole gallery.
//
// The first enrollment fixes the gallery's dimensionality. Cancelling ctx has
// no effect once the write has started.
func (s *Store) Enroll(ctx context.Context, name string, embedding []float32) (face.Record, error) {
	if err := ctx.Err(); err != nil {
		return face.Record{}, err
	}
	if err := face.ValidateName(name); err != nil {
		return face.Record{}, err
	}
	if err := face.ValidateEmbedding(embedding); err != nil {
		return face.Record{}, err
	}
	if face.IsZero(embedding) {
		return face.Record{}, fmt.Errorf("%w: zero vector", face.ErrInvalidEmbedding)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	cur := s.current()
	if cur.dim != 0 && len(embedding) != cur.dim {
		return face.Record{}, &InvalidEmbeddingError{Expected: cur.dim, Actual: len(embedding)}
	}

	rec := face.Record{Name: face.CleanName(name), Embedding: slices.Clone(embedding)}
	next := newSnapshot(append(cur.records, rec)) // cur.records is clipped, append copies

	start := time.Now()
	if err := s.persist(next.records); err != nil {
		return face.Record{}, err
	}
	s.publish(next)

	s.log.Info("identity enrolled", "name", rec.Name, "records", len(next.records), "dim", next.dim,
		"flush", time.Since(start))
	return rec.Clone(), nil
}

// Remove deletes every record whose folded name equals the folded name argument
// and persists the result. Returns ErrNotFound when nothing matched.
func (s *Store) Remove(ctx context.Context, name string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	target := face.FoldName(name)

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	cur := s.current()
	kept := make([]face.Record, 0, len(cur.records))
	for _, r := range cur.records {
		if face.FoldName(r.Name) != target {
			kept = append(kept, r)
		}
	}
	removed := len(cur.records) - len(kept)
	if removed == 0 {
		return 0, fmt.Errorf("%w: %q", ErrNotFound, name)
	}

	if err := s.persist(kept); err != nil {
		return 0, err
	}
	s.publish(newSnapshot(kept))

	s.log.Info("identity removed", "name", name, "removed", removed, "records", len(kept))
	return removed, nil
}

func (s *Store) persist(records []face.Record) error {
	data, err := Marshal(records, EncodeOptions{Compress: s.compress})
	if err != nil {
		return fmt.Errorf("encoding gallery: %w", err)
	}
	if err := WriteFileAtomic(s.fsys, s.path, data); err != nil {
		return fmt.Errorf("saving gallery %s: %w", s.path, err)
	}
	return nil
}

func (s *Store) publish(next *snapshot) {
	s.mu.Lock()
	s.snap = next
	s.mu.Unlock()

	if s.onChange != nil {
		s.onChange(len(next.records))
	}
}

func (s *Store) current() *snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

// Snapshot returns the current records as a read-only view.
func (s *Store) Snapshot() []face.Record {
	return s.current().records
}

// Records returns a deep copy of the current records.
func (s *Store) Records() []face.Record {
	cur := s.current()
	out := make([]face.Record, len(cur.records))
	for i, r := range cur.records {
		out[i] = r.Clone()
	}
	return out
}

// Len returns the number of records.
func (s *Store) Len() int {
	return len(s.current().records)
}

// Dim returns the established embedding length.
func (s *Store) Dim() int {
	return s.current().dim
}

// Names returns the distinct identity names in first-enrolled order.
func (s *Store) Names() []string {
	cur := s.current()
	seen := make(map[string]struct{}, len(cur.records))
	var names []string
	for _, r := range cur.records {
		if _, ok := seen[r.Name]; ok {
			continue
		}
		seen[r.Name] = struct{}{}
		names = append(names, r.Name)
	}
	return names
}

// Nearest returns up to k records closest to probe using the snapshot's HNSW index.
func (s *Store) Nearest(probe []float32, k int) ([]matcher.Candidate, error) {
	cur := s.current()
	if len(cur.records) == 0 {
		return nil, nil
	}
	if err := face.ValidateEmbedding(probe); err != nil {
		return nil, err
	}
	if len(probe) != cur.dim {
		return nil, &InvalidEmbeddingError{Expected: cur.dim, Actual: len(probe)}
	}
	if face.IsZero(probe) {
		return nil, fmt.Errorf("%w: zero vector", face.ErrInvalidEmbedding)
	}
	return cur.getIndex().Search(probe, k), nil
}
