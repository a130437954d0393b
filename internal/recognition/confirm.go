package recognition

import (
	"fmt"
	"math"

	"github.com/kozaktomas/face-attendance/internal/matcher"
)

// Confirmer requires an identity to be seen in a number of consecutive frames,
// each with at least a minimum confidence, before it is confirmed.
// It is not safe for concurrent use.
type Confirmer struct {
	frames        int
	minConfidence float64

	name   string
	streak int
}

// NewConfirmer creates a confirmer. frames of 1 confirms on the first qualifying frame.
func NewConfirmer(frames int, minConfidence float64) (*Confirmer, error) {
	if frames < 1 {
		return nil, fmt.Errorf("confirmation frames must be at least 1, got %d", frames)
	}
	if minConfidence < 0 || minConfidence > 1 || math.IsNaN(minConfidence) {
		return nil, fmt.Errorf("minimum confidence must be within [0, 1], got %v", minConfidence)
	}
	return &Confirmer{frames: frames, minConfidence: minConfidence}, nil
}

// Observe feeds one result and reports whether it completes a streak.
// Unclassified, low confidence or different-name results restart the streak;
// a completed streak starts over as well.
func (c *Confirmer) Observe(res matcher.Result) bool {
	if !res.Classified || res.Confidence() < c.minConfidence {
		c.Reset()
		return false
	}
	if res.Name != c.name {
		c.name = res.Name
		c.streak = 0
	}
	c.streak++
	if c.streak < c.frames {
		return false
	}
	c.Reset()
	return true
}

// Streak returns the current candidate name and how many frames it has been seen.
func (c *Confirmer) Streak() (string, int) {
	return c.name, c.streak
}

// Reset drops the current streak.
func (c *Confirmer) Reset() {
	c.name = ""
	c.streak = 0
}
