package partition

import "math"

// SizeTracker accumulates estimated bucket sizes for a candidate layout.
type SizeTracker struct {
	sizes []int64
	total int64
	max   int64
}

// NewSizeTracker creates a new bucket size tracker.
func NewSizeTracker(capacity int) *SizeTracker {
	return &SizeTracker{sizes: make([]int64, 0, capacity)}
}

// Add records the estimated size of the next bucket.
func (s *SizeTracker) Add(rows int64) {
	if rows < 0 {
		rows = 0
	}
	s.sizes = append(s.sizes, rows)
	s.total += rows
	if rows > s.max {
		s.max = rows
	}
}

// AddFraction records a bucket holding frac of rows, rounded to whole rows.
func (s *SizeTracker) AddFraction(rows float64, frac float64) {
	s.Add(int64(math.Round(rows * frac)))
}

// Sizes returns the recorded sizes in insertion order.
func (s *SizeTracker) Sizes() []int64 {
	return s.sizes
}

// Count returns the number of buckets tracked.
func (s *SizeTracker) Count() int {
	return len(s.sizes)
}

// Total returns the sum of all bucket sizes.
func (s *SizeTracker) Total() int64 {
	return s.total
}

// Max returns the largest bucket size.
func (s *SizeTracker) Max() int64 {
	return s.max
}

// Mean returns the mean bucket size.
func (s *SizeTracker) Mean() float64 {
	if len(s.sizes) == 0 {
		return 0
	}
	return float64(s.total) / float64(len(s.sizes))
}

// Skew returns max/mean. An empty or all-zero layout has skew 1.
func (s *SizeTracker) Skew() float64 {
	mean := s.Mean()
	if mean == 0 {
		return 1
	}
	return float64(s.max) / mean
}
