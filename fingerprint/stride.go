package fingerprint

import (
	"fmt"
	"math/rand"
)

// Stride controls the offset, in spectrogram frames, between consecutive
// fingerprint windows. A Stride is stateful across calls within one
// partitioning run; it must not be shared across concurrent runs.
type Stride interface {
	// Next returns the offset in frames from the start of the previous
	// window to the start of the next one. Must be positive.
	Next() int
}

// FixedStride advances by a constant number of frames.
type FixedStride struct {
	step int
}

// NewFixedStride creates a fixed-step stride.
func NewFixedStride(step int) (*FixedStride, error) {
	if step <= 0 {
		return nil, fmt.Errorf("fingerprint: stride step must be positive, got %d", step)
	}
	return &FixedStride{step: step}, nil
}

// Next implements Stride.
func (s *FixedStride) Next() int { return s.step }

// RandomStride advances by a bounded random number of frames per step.
// The sequence is deterministic for a given seed, which keeps insertion
// reproducible when that matters.
type RandomStride struct {
	min, max int
	rng      *rand.Rand
}

// NewRandomStride creates a stride drawing uniformly from [min, max].
func NewRandomStride(min, max int, seed int64) (*RandomStride, error) {
	if min <= 0 || max < min {
		return nil, fmt.Errorf("fingerprint: invalid random stride bounds [%d, %d]", min, max)
	}
	return &RandomStride{
		min: min,
		max: max,
		rng: rand.New(rand.NewSource(seed)),
	}, nil
}

// Next implements Stride.
func (s *RandomStride) Next() int {
	return s.min + s.rng.Intn(s.max-s.min+1)
}
