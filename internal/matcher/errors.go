package matcher

import (
	"errors"
	"fmt"
)

// ErrInvalidThreshold is returned when the threshold is negative, NaN or infinite.
var ErrInvalidThreshold = errors.New("invalid threshold")

// DimensionMismatchError reports a probe whose length differs from a gallery record.
type DimensionMismatchError struct {
	Index    int // gallery position of the offending record
	Expected int // probe length
	Actual   int // record length
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("dimension mismatch at record %d: probe has %d values, record has %d", e.Index, e.Expected, e.Actual)
}
