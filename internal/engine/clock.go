package engine

import (
	"sync/atomic"
	"time"

	"github.com/roach88/growth/internal/date"
)

// Clock supplies the local calendar date. All day arithmetic in the engine
// goes through it.
type Clock interface {
	Today() date.Date
}

// SystemClock reads the wall clock in Location (nil means time.Local).
type SystemClock struct {
	Location *time.Location
}

// Today implements Clock.
func (c SystemClock) Today() date.Date {
	return date.Today(c.Location)
}

// sequence stamps published events with a strictly increasing number so
// subscribers can order them.
type sequence struct {
	seq atomic.Int64
}

// next returns the next sequence number.
func (s *sequence) next() int64 {
	return s.seq.Add(1)
}
