// Package aligner resolves, for a reference instant, the record of a device
// stream whose timestamp is nearest to it.
package aligner

import (
	"errors"
	"sort"
	"time"

	"github.com/waterwatch/dashboard/services/api/models"
)

// ErrEmptyInput is returned when there are no candidate records to align.
var ErrEmptyInput = errors.New("aligner: no candidate records")

// Aligner finds nearest-timestamp records, optionally bounded by a maximum
// allowed deviation.
type Aligner struct {
	tolerance time.Duration
	bounded   bool
}

// Option configures an Aligner.
type Option func(*Aligner)

// WithTolerance bounds the allowed deviation. A best candidate further than
// d from the reference is reported as no match.
func WithTolerance(d time.Duration) Option {
	return func(a *Aligner) {
		if d < 0 {
			d = -d
		}
		a.tolerance = d
		a.bounded = true
	}
}

// New creates an Aligner. Without options every non-empty input has a match.
func New(opts ...Option) *Aligner {
	a := &Aligner{}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Tolerance reports the configured bound and whether one is set.
func (a *Aligner) Tolerance() (time.Duration, bool) {
	return a.tolerance, a.bounded
}

// Closest returns the record minimizing |timestamp - target|. Among equally
// distant records the first one in slice order wins. ok is false when the
// best deviation exceeds the tolerance.
func (a *Aligner) Closest(target time.Time, records []models.Record) (models.Record, bool, error) {
	if len(records) == 0 {
		return models.Record{}, false, ErrEmptyInput
	}

	best := 0
	minDiff := absDuration(records[0].DeviceTime.Sub(target))
	for i := 1; i < len(records); i++ {
		diff := absDuration(records[i].DeviceTime.Sub(target))
		if diff < minDiff {
			best = i
			minDiff = diff
		}
	}

	return a.accept(records[best], minDiff)
}

// ClosestInStream is Closest for a stream sorted by descending timestamp.
// It runs in O(log n) and returns the same record Closest would for the
// same slice.
func (a *Aligner) ClosestInStream(target time.Time, stream []models.Record) (models.Record, bool, error) {
	n := len(stream)
	if n == 0 {
		return models.Record{}, false, ErrEmptyInput
	}

	// first index at or before target
	at := sort.Search(n, func(i int) bool {
		return !stream[i].DeviceTime.After(target)
	})

	best := -1
	var minDiff time.Duration

	if at > 0 {
		// lowest index sharing the timestamp of the nearest later record
		ts := stream[at-1].DeviceTime
		j := sort.Search(n, func(i int) bool {
			return !stream[i].DeviceTime.After(ts)
		})
		best = j
		minDiff = absDuration(ts.Sub(target))
	}

	if at < n {
		diff := absDuration(stream[at].DeviceTime.Sub(target))
		if best < 0 || diff < minDiff {
			best = at
			minDiff = diff
		}
	}

	return a.accept(stream[best], minDiff)
}

func (a *Aligner) accept(r models.Record, diff time.Duration) (models.Record, bool, error) {
	if a.bounded && diff > a.tolerance {
		return models.Record{}, false, nil
	}
	return r, true, nil
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
