package generators_test

import (
	"math"
	"math/rand"
	"testing"

	"github.com/faiface/nois/generators"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// constSource always returns the same draw.
type constSource float64

func (c constSource) Float64() float64 { return float64(c) }

// seqSource replays a fixed sequence of draws in [0, 1).
type seqSource struct {
	draws []float64
	pos   int
}

func (s *seqSource) Float64() float64 {
	v := s.draws[s.pos%len(s.draws)]
	s.pos++
	return v
}

func TestStepStaysInRange(t *testing.T) {
	for i := 0; i < 10000; i++ {
		last := rand.Float64()*2 - 1
		white := rand.Float64()*2 - 1
		next := generators.Step(last, white, generators.Coefficient)
		if next < -1 || next > 1 {
			t.Fatalf("step out of range: last=%v white=%v next=%v", last, white, next)
		}
	}
}

func TestStepExtremalDrawsDoNotDrift(t *testing.T) {
	for _, white := range []float64{-1, 1} {
		last := 0.0
		for i := 0; i < 100000; i++ {
			last = generators.Step(last, white, generators.Coefficient)
			require.LessOrEqual(t, math.Abs(last), 1.0)
		}
		// the integrator converges toward the draw without crossing it
		assert.InDelta(t, white, last, 1e-9)
	}
}

func TestStepClampsOutOfRangeState(t *testing.T) {
	assert.Equal(t, 1.0, generators.Step(5, 1, generators.Coefficient))
	assert.Equal(t, -1.0, generators.Step(-5, -1, generators.Coefficient))
}

func TestStepFormula(t *testing.T) {
	k := generators.Coefficient
	assert.InDelta(t, (0.5+k*0.25)/(1+k), generators.Step(0.5, 0.25, k), 1e-15)
}

func TestWhiteRange(t *testing.T) {
	assert.Equal(t, -1.0, generators.White(constSource(0)))
	assert.Equal(t, 0.0, generators.White(constSource(0.5)))
	assert.InDelta(t, 1.0, generators.White(constSource(0.9999999999)), 1e-9)
}

func TestNextSampleScalesByVolume(t *testing.T) {
	state := generators.FilterState{Last: 0.5}
	sample, next := generators.NextSample(constSource(1), state, 0.5)
	assert.InDelta(t, next.Last*0.5, float64(sample), 1e-7)

	silent, _ := generators.NextSample(constSource(1), state, 0)
	assert.Equal(t, float32(0), silent)
}

func TestFillBufferMatchesNextSample(t *testing.T) {
	draws := []float64{0.1, 0.9, 0.4, 0.7, 0.2, 0.55, 0.05}

	buf := make([]float32, 64)
	got := generators.FillBuffer(&seqSource{draws: draws}, generators.FilterState{}, 0.8, buf)

	src := &seqSource{draws: draws}
	state := generators.FilterState{}
	for i := range buf {
		var sample float32
		sample, state = generators.NextSample(src, state, 0.8)
		require.Equal(t, sample, buf[i], "sample %d", i)
	}
	assert.Equal(t, state, got)
}

func TestFillBufferDeterministic(t *testing.T) {
	a := make([]float32, 1024)
	b := make([]float32, 1024)
	sa := generators.FillBuffer(generators.NewSource(42), generators.FilterState{}, 1, a)
	sb := generators.FillBuffer(generators.NewSource(42), generators.FilterState{}, 1, b)

	assert.Equal(t, a, b)
	assert.Equal(t, sa, sb)
}

func TestFillBufferUnitVolumeIsFilterOutput(t *testing.T) {
	buf := make([]float32, 128)
	state := generators.FillBuffer(generators.NewSource(7), generators.FilterState{}, 1, buf)
	assert.Equal(t, float32(state.Last), buf[len(buf)-1])
	for _, s := range buf {
		require.LessOrEqual(t, math.Abs(float64(s)), 1.0)
	}
}

func TestSaturated(t *testing.T) {
	assert.True(t, generators.FilterState{Last: 1}.Saturated())
	assert.True(t, generators.FilterState{Last: -1}.Saturated())
	assert.False(t, generators.FilterState{Last: 0.999}.Saturated())
}
