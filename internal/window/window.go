// Package window selects a contiguous, time-ordered slice of points by
// percentage bounds over the point set.
package window

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/AhmedBakrXI/GeoMap/internal/model"
)

var ErrInvalidBounds = errors.New("invalid window bounds")

// Bounds is a percentage range over the time-ordered points, both ends inclusive.
type Bounds struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Full covers every point.
var Full = Bounds{Start: 0, End: 100}

// Validate rejects values outside [0,100], NaN, and Start > End.
func (b Bounds) Validate() error {
	if math.IsNaN(b.Start) || math.IsNaN(b.End) {
		return fmt.Errorf("%w: NaN", ErrInvalidBounds)
	}
	if b.Start < 0 || b.Start > 100 || b.End < 0 || b.End > 100 {
		return fmt.Errorf("%w: start=%g end=%g must be within [0,100]", ErrInvalidBounds, b.Start, b.End)
	}
	if b.Start > b.End {
		return fmt.Errorf("%w: start=%g greater than end=%g", ErrInvalidBounds, b.Start, b.End)
	}
	return nil
}

// Clamp pulls both ends into [0,100]. A start past the end collapses onto the end.
func (b Bounds) Clamp() Bounds {
	b.Start = clamp(b.Start)
	b.End = clamp(b.End)
	if b.Start > b.End {
		b.Start = b.End
	}
	return b
}

func clamp(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 100:
		return 100
	}
	return v
}

// Filter drops points without a timestamp, orders the rest by time
// (ties keep their input order) and returns the inclusive slice between
// round(start/100*(n-1)) and round(end/100*(n-1)). The input is not modified.
func Filter(points []model.Record, startPct, endPct float64) []model.Record {
	return Bounds{Start: startPct, End: endPct}.Apply(points)
}

// Apply is Filter with b as the bounds.
func (b Bounds) Apply(points []model.Record) []model.Record {
	sorted := Sorted(points)
	if len(sorted) == 0 {
		return []model.Record{}
	}

	b = b.Clamp()
	last := float64(len(sorted) - 1)
	lo := int(math.Round(b.Start / 100 * last))
	hi := int(math.Round(b.End / 100 * last))

	out := make([]model.Record, hi-lo+1)
	copy(out, sorted[lo:hi+1])
	return out
}

// Sorted returns the timed points ordered by time ascending. Timestamps are
// compared as strings, which orders ISO-8601 values of a uniform format.
func Sorted(points []model.Record) []model.Record {
	timed := make([]model.Record, 0, len(points))
	for _, p := range points {
		if p.HasTime() {
			timed = append(timed, p)
		}
	}
	sort.SliceStable(timed, func(i, j int) bool {
		return *timed[i].Time < *timed[j].Time
	})
	return timed
}

// Range returns the first and last timestamps of an ordered window,
// or false for an empty one.
func Range(window []model.Record) (first, last string, ok bool) {
	if len(window) == 0 {
		return "", "", false
	}
	return window[0].TimeString(), window[len(window)-1].TimeString(), true
}
