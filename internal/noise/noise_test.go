package noise

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
	"gonum.org/v1/gonum/stat"
)

func TestModel_ZeroParamsPassesTruth(t *testing.T) {
	m := NewModel(Params{})
	truth := r3.Vec{X: 1, Y: -2, Z: 9.81}

	out, err := m.Apply(NewSource(1), truth, 4*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, truth, out)
}

func TestModel_NonPositiveDt(t *testing.T) {
	m := NewModel(Params{NoiseDensity: 1, RandomWalk: 1, Tau: 10})
	src := NewSource(1)
	truth := r3.Vec{X: 1}

	for _, dt := range []time.Duration{0, -time.Millisecond} {
		out, err := m.Apply(src, truth, dt)
		assert.ErrorIs(t, err, ErrClockNonMonotonic)
		assert.Equal(t, truth, out)

		v, err := m.ApplyScalar(src, 3, dt)
		assert.ErrorIs(t, err, ErrClockNonMonotonic)
		assert.Equal(t, 3.0, v)
	}
	assert.Equal(t, r3.Vec{}, m.Bias())
}

func TestModel_SameSeedSameSequence(t *testing.T) {
	p := Params{NoiseDensity: 0.01, RandomWalk: 0.1, Tau: 100}
	a, b := NewModel(p), NewModel(p)
	srcA, srcB := NewSource(42), NewSource(42)

	for i := 0; i < 100; i++ {
		va, err := a.Apply(srcA, r3.Vec{}, 10*time.Millisecond)
		require.NoError(t, err)
		vb, err := b.Apply(srcB, r3.Vec{}, 10*time.Millisecond)
		require.NoError(t, err)
		require.Equal(t, va, vb)
	}
}

func TestModel_BiasStaysWithinStationaryBound(t *testing.T) {
	p := Params{RandomWalk: 1, Tau: 10}
	m := NewModel(p)
	src := NewSource(7)
	dt := 10 * time.Millisecond

	const steps = 200_000
	xs := make([]float64, 0, steps)
	limit := 6 * p.RandomWalk * math.Sqrt(p.Tau)
	for i := 0; i < steps; i++ {
		_, err := m.Apply(src, r3.Vec{}, dt)
		require.NoError(t, err)
		b := m.Bias()
		require.False(t, math.IsNaN(b.X))
		require.Less(t, r3.Norm(b), limit, "step %d", i)
		xs = append(xs, b.X)
	}

	want := p.StationaryStdDev()
	got := stat.StdDev(xs, nil)
	assert.InDelta(t, want, got, 0.3*want)
	assert.InDelta(t, 0, stat.Mean(xs, nil), want)
}

func TestModel_WhiteNoiseScalesWithDt(t *testing.T) {
	p := Params{NoiseDensity: 0.02}
	m := NewModel(p)
	src := NewSource(3)
	dt := 4 * time.Millisecond

	xs := make([]float64, 0, 20_000)
	for i := 0; i < cap(xs); i++ {
		v, err := m.ApplyScalar(src, 0, dt)
		require.NoError(t, err)
		xs = append(xs, v)
	}

	want := p.NoiseDensity / math.Sqrt(dt.Seconds())
	assert.InDelta(t, want, stat.StdDev(xs, nil), 0.05*want)
}

func TestModel_Reset(t *testing.T) {
	m := NewModel(Params{RandomWalk: 1})
	_, err := m.Apply(NewSource(1), r3.Vec{}, time.Second)
	require.NoError(t, err)
	require.NotEqual(t, r3.Vec{}, m.Bias())

	m.Reset()
	assert.Equal(t, r3.Vec{}, m.Bias())
}

func TestParams_Validate(t *testing.T) {
	assert.NoError(t, Params{NoiseDensity: 1, RandomWalk: 1, Tau: 0}.Validate())
	assert.ErrorIs(t, Params{NoiseDensity: -1}.Validate(), ErrInvalidParams)
	assert.ErrorIs(t, Params{RandomWalk: math.NaN()}.Validate(), ErrInvalidParams)
	assert.ErrorIs(t, Params{Tau: math.Inf(1)}.Validate(), ErrInvalidParams)
	assert.ErrorIs(t, Params{NoiseDensity: 1, Tau: -1}.Validate(), ErrInvalidParams)
}

func TestParams_StationaryStdDev(t *testing.T) {
	assert.InDelta(t, 2.0*math.Sqrt(30), Params{RandomWalk: 2, Tau: 60}.StationaryStdDev(), 1e-12)
	assert.Zero(t, Params{RandomWalk: 2}.StationaryStdDev())
}
