// Package noise models the stochastic error of simulated sensors: a first
// order Gauss-Markov bias with random walk plus white measurement noise, and
// the minimum-interval gates that throttle each telemetry stream.
package noise

import (
	"errors"
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/spatial/r3"
)

var (
	// ErrSuppressed reports that a sample was withheld by its rate gate.
	ErrSuppressed = errors.New("sample suppressed")
	// ErrClockNonMonotonic reports a sample whose time did not advance.
	ErrClockNonMonotonic = errors.New("clock non-monotonic")
	// ErrInvalidParams is returned by Params.Validate.
	ErrInvalidParams = errors.New("invalid noise parameters")
)

// Params configures one noise model. Densities are per axis and use the
// usual units of the quantity per sqrt(Hz); Tau is in seconds and zero
// disables bias decay.
type Params struct {
	NoiseDensity float64 `json:"noiseDensity" mapstructure:"noiseDensity"`
	RandomWalk   float64 `json:"randomWalk" mapstructure:"randomWalk"`
	Tau          float64 `json:"tau" mapstructure:"tau"`
}

// Validate rejects negative densities, a negative Tau and non-finite values.
func (p Params) Validate() error {
	for name, v := range map[string]float64{
		"noiseDensity": p.NoiseDensity,
		"randomWalk":   p.RandomWalk,
		"tau":          p.Tau,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: %s is not finite", ErrInvalidParams, name)
		}
	}
	if p.NoiseDensity < 0 || p.RandomWalk < 0 {
		return fmt.Errorf("%w: densities must not be negative", ErrInvalidParams)
	}
	if p.Tau < 0 {
		return fmt.Errorf("%w: tau %g is negative", ErrInvalidParams, p.Tau)
	}
	return nil
}

// StationaryStdDev is the long-run standard deviation of the bias per axis.
// It is zero when the bias does not decay (the walk is unbounded).
func (p Params) StationaryStdDev() float64 {
	if p.Tau <= 0 {
		return 0
	}
	return p.RandomWalk * math.Sqrt(p.Tau/2)
}

// Model is the per-stream noise state. It is not safe for concurrent use;
// each stream owns its model.
type Model struct {
	params Params
	bias   r3.Vec
}

// NewModel creates a model with zero initial bias.
func NewModel(p Params) *Model {
	return &Model{params: p}
}

// Params returns the model configuration.
func (m *Model) Params() Params {
	return m.params
}

// Bias returns the current bias vector.
func (m *Model) Bias() r3.Vec {
	return m.bias
}

// Reset zeroes the bias.
func (m *Model) Reset() {
	m.bias = r3.Vec{}
}

// Apply corrupts truth for a sample dt after the previous one.
func (m *Model) Apply(src *Source, truth r3.Vec, dt time.Duration) (r3.Vec, error) {
	if dt <= 0 {
		return truth, fmt.Errorf("%w: dt=%s", ErrClockNonMonotonic, dt)
	}
	s := dt.Seconds()

	if m.params.Tau > 0 {
		m.bias = r3.Scale(math.Exp(-s/m.params.Tau), m.bias)
	}
	if m.params.RandomWalk > 0 {
		m.bias = r3.Add(m.bias, r3.Scale(math.Sqrt(s)*m.params.RandomWalk, src.Vec()))
	}

	out := r3.Add(truth, m.bias)
	if m.params.NoiseDensity > 0 {
		out = r3.Add(out, r3.Scale(m.params.NoiseDensity/math.Sqrt(s), src.Vec()))
	}
	return out, nil
}

// ApplyScalar corrupts a scalar quantity using the first axis of the model.
func (m *Model) ApplyScalar(src *Source, truth float64, dt time.Duration) (float64, error) {
	if dt <= 0 {
		return truth, fmt.Errorf("%w: dt=%s", ErrClockNonMonotonic, dt)
	}
	s := dt.Seconds()

	if m.params.Tau > 0 {
		m.bias.X *= math.Exp(-s / m.params.Tau)
	}
	m.bias.X += math.Sqrt(s) * m.params.RandomWalk * src.Gaussian()
	return truth + m.bias.X + m.params.NoiseDensity/math.Sqrt(s)*src.Gaussian(), nil
}
