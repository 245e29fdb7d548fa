// Package generators implements the filtered noise source.
package generators

import (
	"math/rand"
	"time"
)

// Coefficient is the leaky integrator coefficient k. Each step moves the filter memory toward
// the new white draw by k/(1+k), which biases the spectrum toward low frequencies and gives a
// soft brownian-like timbre. Larger values sound brighter and closer to white noise.
const Coefficient = 0.02

// Source is a uniform random source. *rand.Rand satisfies it.
type Source interface {
	// Float64 returns a pseudo-random number in [0.0, 1.0).
	Float64() float64
}

// NewSource returns a Source seeded with seed. A zero seed uses the current time.
func NewSource(seed int64) Source {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return rand.New(rand.NewSource(seed))
}

// FilterState is the memory of the leaky integrator.
type FilterState struct {
	// Last is the previous filter output, always in [-1, 1].
	Last float64
}

// Saturated reports whether the integrator is pinned at either bound.
func (s FilterState) Saturated() bool {
	return s.Last <= -1 || s.Last >= 1
}

// White draws a uniform sample in [-1, 1] from src.
func White(src Source) float64 {
	return src.Float64()*2 - 1
}

// Step performs one update of the leaky integrator with coefficient k and clamps the result
// to [-1, 1].
func Step(last, white, k float64) float64 {
	return clamp((last + k*white) / (1 + k))
}

// NextSample draws one white sample from src, advances the filter and returns the filter
// output scaled by volume along with the new state.
func NextSample(src Source, state FilterState, volume float64) (float32, FilterState) {
	state.Last = Step(state.Last, White(src), Coefficient)
	return float32(state.Last * volume), state
}

// FillBuffer fills buf with consecutive samples, threading the filter state through every
// slot, and returns the state after the last one. It is equivalent to calling NextSample
// len(buf) times.
func FillBuffer(src Source, state FilterState, volume float64, buf []float32) FilterState {
	for i := range buf {
		buf[i], state = NextSample(src, state, volume)
	}
	return state
}

func clamp(x float64) float64 {
	if x < -1 {
		return -1
	}
	if x > +1 {
		return +1
	}
	return x
}
