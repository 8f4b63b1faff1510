// Package classifier provides the per-session adjudication classifier.
//
// A model is trained synchronously from the session's accumulated example
// set, applied across the whole descriptor store, and discarded with the
// session. Models are never written to disk.
package classifier

import (
	"context"
	"math"
	"math/rand"

	"github.com/hayate/erabu/internal/models"
)

// Config holds training hyperparameters.
type Config struct {
	LearningRate float64
	Epochs       int
	L2Penalty    float64
	RandomSeed   int64
}

// Model is a trained binary classifier over the descriptor vector space.
type Model struct {
	weights []float64
	bias    float64
	dims    int
}

// Train fits a logistic-regression model on the labeled vectors.
// Both sets must be non-empty or ErrInsufficientData is returned.
// Training is deterministic for fixed inputs and seed.
func Train(ctx context.Context, positives, negatives [][]float32, cfg Config) (*Model, error) {
	if len(positives) == 0 || len(negatives) == 0 {
		return nil, models.ErrInsufficientData
	}
	dims := len(positives[0])
	for _, v := range append(append([][]float32{}, positives...), negatives...) {
		if len(v) != dims {
			return nil, models.NewDimensionMismatch(dims, len(v), nil)
		}
	}

	type example struct {
		vec   []float32
		label float64
	}
	examples := make([]example, 0, len(positives)+len(negatives))
	for _, v := range positives {
		examples = append(examples, example{vec: v, label: 1})
	}
	for _, v := range negatives {
		examples = append(examples, example{vec: v, label: 0})
	}

	rng := rand.New(rand.NewSource(cfg.RandomSeed))
	m := &Model{weights: make([]float64, dims), dims: dims}
	for i := range m.weights {
		m.weights[i] = rng.NormFloat64() * 0.01
	}

	n := float64(len(examples))
	grad := make([]float64, dims)
	for epoch := 0; epoch < cfg.Epochs; epoch++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for i := range grad {
			grad[i] = 0
		}
		var gradBias float64
		for _, ex := range examples {
			err := m.scoreFloat(ex.vec) - ex.label
			for i, x := range ex.vec {
				grad[i] += err * float64(x)
			}
			gradBias += err
		}
		for i := range m.weights {
			m.weights[i] -= cfg.LearningRate * (grad[i]/n + cfg.L2Penalty*m.weights[i])
		}
		m.bias -= cfg.LearningRate * gradBias / n
	}
	return m, nil
}

// Score returns a probability-like relevance score in [0, 1].
func (m *Model) Score(vec []float32) (float64, error) {
	if len(vec) != m.dims {
		return 0, models.NewDimensionMismatch(m.dims, len(vec), nil)
	}
	return m.scoreFloat(vec), nil
}

// Dimensions returns the model's input dimensionality.
func (m *Model) Dimensions() int { return m.dims }

func (m *Model) scoreFloat(vec []float32) float64 {
	z := m.bias
	for i, x := range vec {
		z += m.weights[i] * float64(x)
	}
	return 1 / (1 + math.Exp(-z))
}
