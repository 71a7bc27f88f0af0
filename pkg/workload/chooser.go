package workload

import (
	"math/rand/v2"
)

const (
	// DefaultMinParameter and DefaultMaxParameter bound the uniform draw.
	DefaultMinParameter = 1
	DefaultMaxParameter = 10_000_000
)

// UniformChooser draws parameters uniformly from [Min, Max].
type UniformChooser struct {
	Min  int
	Max  int
	Rand *rand.Rand // nil uses the global source
}

// NewUniformChooser clamps the bounds to at least 1 and swaps them if reversed.
func NewUniformChooser(lo, hi int) *UniformChooser {
	if lo < 1 {
		lo = 1
	}
	if hi < 1 {
		hi = 1
	}
	if hi < lo {
		lo, hi = hi, lo
	}
	return &UniformChooser{Min: lo, Max: hi}
}

func (u *UniformChooser) ChooseParameter() int {
	span := u.Max - u.Min + 1
	if u.Rand != nil {
		return u.Min + u.Rand.IntN(span)
	}
	return u.Min + rand.IntN(span)
}

// FixedChooser always returns the same parameter.
type FixedChooser int

func (f FixedChooser) ChooseParameter() int { return int(f) }
