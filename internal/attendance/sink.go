package attendance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Sink stores attendance events outside the process.
type Sink interface {
	Record(ctx context.Context, ev Event) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, ev Event) error

func (f SinkFunc) Record(ctx context.Context, ev Event) error { return f(ctx, ev) }

// Tee fans an event out to several sinks, attempting all of them.
type Tee []Sink

func (t Tee) Record(ctx context.Context, ev Event) error {
	var errs []error
	for _, s := range t {
		if err := s.Record(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// FileLog appends events to a file, one JSON object per line.
type FileLog struct {
	mu   sync.Mutex
	file *os.File
	enc  *json.Encoder
}

// OpenFileLog opens (or creates) the log at path for appending.
func OpenFileLog(path string) (*FileLog, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating attendance log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening attendance log: %w", err)
	}
	return &FileLog{file: f, enc: json.NewEncoder(f)}, nil
}

// Record appends ev and syncs the file.
func (l *FileLog) Record(_ context.Context, ev Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.enc.Encode(ev); err != nil {
		return fmt.Errorf("writing attendance event: %w", err)
	}
	if err := l.file.Sync(); err != nil {
		return fmt.Errorf("syncing attendance log: %w", err)
	}
	return nil
}

// Close closes the underlying file.
func (l *FileLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Close()
}

// ReadFileLog reads every event from a log written by FileLog.
func ReadFileLog(path string) ([]Event, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var events []Event
	dec := json.NewDecoder(f)
	for dec.More() {
		var ev Event
		if err := dec.Decode(&ev); err != nil {
			return nil, fmt.Errorf("decoding attendance event %d: %w", len(events)+1, err)
		}
		events = append(events, ev)
	}
	return events, nil
}
