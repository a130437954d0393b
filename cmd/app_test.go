package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kozaktomas/face-attendance/internal/attendance"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestReadEmbeddingFile(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		content string
		want    []float32
		wantErr bool
	}{
		{"array", `[0.5, -1, 2]`, []float32{0.5, -1, 2}, false},
		{"wrapped", `{"embedding": [1, 0]}`, []float32{1, 0}, false},
		{"wrapped without embedding", `{"name": "x"}`, nil, true},
		{"not json", `nope`, nil, true},
	}

	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, dir, fmt.Sprintf("emb%d.json", i), tt.content)
			got, err := readEmbeddingFile(path)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := readEmbeddingFile(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)
}

func TestListImages(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "b.JPG", "x")
	writeFile(t, dir, "a.png", "x")
	writeFile(t, dir, "notes.txt", "x")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.jpg"), 0o755))

	files, err := listImages(dir, []string{".jpg", ".png"})
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "a.png"), filepath.Join(dir, "b.JPG")}, files)

	_, err = listImages(filepath.Join(dir, "missing"), []string{".jpg"})
	assert.Error(t, err)
}

func TestSummarize(t *testing.T) {
	s1, s2 := uuid.New(), uuid.New()
	t0 := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	events := []attendance.Event{
		{SessionID: s1, Name: "Bob", Timestamp: t0},
		{SessionID: s1, Name: "Alice", Timestamp: t0.Add(time.Minute)},
		{SessionID: s2, Name: "Alice", Timestamp: t0.Add(time.Hour)},
		{SessionID: s2, Name: "Carol", Timestamp: t0.Add(2 * time.Hour)},
	}

	out := summarize(events)

	assert.Equal(t, 4, out.Events)
	assert.Equal(t, 2, out.Sessions)
	require.Len(t, out.People, 3)
	assert.Equal(t, AttendanceCount{Name: "Alice", Count: 2, LastAt: t0.Add(time.Hour)}, out.People[0])
	assert.Equal(t, "Bob", out.People[1].Name)
	assert.Equal(t, "Carol", out.People[2].Name)
}

func TestSummarize_Empty(t *testing.T) {
	out := summarize(nil)
	assert.Zero(t, out.Events)
	assert.NotNil(t, out.People)
}
