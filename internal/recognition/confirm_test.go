package recognition

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kozaktomas/face-attendance/internal/face"
	"github.com/kozaktomas/face-attendance/internal/matcher"
)

func hit(name string, distance float64) matcher.Result {
	return matcher.Result{Name: name, Distance: distance, Classified: true}
}

func TestConfirmer_RequiresConsecutiveFrames(t *testing.T) {
	c, err := NewConfirmer(3, 0.9)
	require.NoError(t, err)

	assert.False(t, c.Observe(hit("Alice", 0.05)))
	assert.False(t, c.Observe(hit("Alice", 0.05)))
	name, streak := c.Streak()
	assert.Equal(t, "Alice", name)
	assert.Equal(t, 2, streak)

	assert.True(t, c.Observe(hit("Alice", 0.05)))
	_, streak = c.Streak()
	assert.Zero(t, streak, "streak restarts after confirmation")
}

func TestConfirmer_ResetConditions(t *testing.T) {
	tests := []struct {
		name      string
		interrupt matcher.Result
	}{
		{"unclassified", matcher.Result{Name: face.Unknown, Distance: 0.8}},
		{"low confidence", hit("Alice", 0.2)},
		{"different name", hit("Bob", 0.01)},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c, err := NewConfirmer(2, 0.9)
			require.NoError(t, err)

			assert.False(t, c.Observe(hit("Alice", 0.05)))
			assert.False(t, c.Observe(tc.interrupt))
			assert.False(t, c.Observe(hit("Alice", 0.05)))
			assert.True(t, c.Observe(hit("Alice", 0.05)))
		})
	}
}

func TestConfirmer_SingleFrame(t *testing.T) {
	c, err := NewConfirmer(1, 0)
	require.NoError(t, err)
	assert.True(t, c.Observe(hit("Alice", 0.35)))
	assert.False(t, c.Observe(matcher.UnknownResult()))
}

func TestNewConfirmer_Validation(t *testing.T) {
	_, err := NewConfirmer(0, 0.9)
	assert.Error(t, err)
	_, err = NewConfirmer(1, 1.1)
	assert.Error(t, err)
	_, err = NewConfirmer(1, -0.1)
	assert.Error(t, err)
}
