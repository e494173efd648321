package noise

import (
	"math/rand/v2"

	"gonum.org/v1/gonum/spatial/r3"
	"gonum.org/v1/gonum/stat/distuv"
)

// Source is the seedable standard-normal generator shared by every model of
// a pipeline. It is not safe for concurrent use.
type Source struct {
	normal distuv.Normal
}

// NewSource creates a generator from a seed. Equal seeds give equal sequences.
func NewSource(seed uint64) *Source {
	return &Source{
		normal: distuv.Normal{
			Mu:    0,
			Sigma: 1,
			Src:   rand.NewPCG(seed, seed^0x9e3779b97f4a7c15),
		},
	}
}

// Gaussian draws one N(0,1) sample.
func (s *Source) Gaussian() float64 {
	return s.normal.Rand()
}

// Vec draws an N(0,I) vector.
func (s *Source) Vec() r3.Vec {
	return r3.Vec{X: s.normal.Rand(), Y: s.normal.Rand(), Z: s.normal.Rand()}
}
