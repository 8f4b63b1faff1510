package neighbor

import (
	"math/rand"

	"github.com/hayate/erabu/internal/models"
)

// Functor converts descriptors into small hash codes by testing the sign of
// projections onto random hyperplanes. Vectors are centered on the corpus
// mean first, which spreads codes evenly over the buckets.
//
// The bit at index 0 is the most significant bit of the code.
type Functor struct {
	bits   int
	mean   []float32
	planes [][]float32
}

// trainFunctor learns the corpus mean and draws bits random hyperplanes
// from a seeded generator. Deterministic for a fixed seed.
func trainFunctor(vectors map[string][]float32, bits int, seed int64) (*Functor, error) {
	if len(vectors) == 0 {
		return nil, models.ErrInsufficientData
	}
	var dims int
	for _, v := range vectors {
		dims = len(v)
		break
	}

	mean := make([]float32, dims)
	for _, v := range vectors {
		if len(v) != dims {
			return nil, models.NewDimensionMismatch(dims, len(v), nil)
		}
		for i, x := range v {
			mean[i] += x
		}
	}
	inv := float32(1) / float32(len(vectors))
	for i := range mean {
		mean[i] *= inv
	}

	rng := rand.New(rand.NewSource(seed))
	planes := make([][]float32, bits)
	for b := range planes {
		plane := make([]float32, dims)
		for i := range plane {
			plane[i] = float32(rng.NormFloat64())
		}
		planes[b] = plane
	}

	return &Functor{bits: bits, mean: mean, planes: planes}, nil
}

// Hash returns the code for vec.
func (f *Functor) Hash(vec []float32) (uint64, error) {
	if len(vec) != len(f.mean) {
		return 0, models.NewDimensionMismatch(len(f.mean), len(vec), nil)
	}
	var code uint64
	for b, plane := range f.planes {
		var dot float64
		for i, x := range vec {
			dot += float64((x - f.mean[i]) * plane[i])
		}
		if dot >= 0 {
			code |= 1 << uint(f.bits-1-b)
		}
	}
	return code, nil
}

// Bits returns the code length in bits.
func (f *Functor) Bits() int {
	return f.bits
}
