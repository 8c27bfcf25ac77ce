// Package random is the placeholder inference: one uniform draw per label,
// scaled to sum to one. Image and biomarker input are accepted and ignored.
package random

import (
	"context"

	"gonum.org/v1/gonum/floats"

	"biomark/domain/subtype"
	"biomark/ports"
)

// Name identifies events produced by this predictor
const Name = "random"

// Predictor implements ports.Predictor with random probabilities
type Predictor struct {
	rng ports.RNGPort
}

var _ ports.Predictor = (*Predictor)(nil)

// New creates a random predictor
func New(rng ports.RNGPort) *Predictor {
	return &Predictor{rng: rng}
}

// Name implements ports.Predictor
func (p *Predictor) Name() string { return Name }

// Predict implements ports.Predictor
func (p *Predictor) Predict(ctx context.Context, _ ports.PredictionRequest) (subtype.Probabilities, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r := p.rng.Stream("predict")
	values := make([]float64, len(subtype.Labels))
	for i := range values {
		values[i] = r.Float64()
	}
	return Normalize(values)
}

// Normalize scales non-negative values so they sum to one. An all-zero
// vector becomes the uniform distribution.
func Normalize(values []float64) (subtype.Probabilities, error) {
	out := make([]float64, len(values))
	copy(out, values)
	total := floats.Sum(out)
	if total <= 0 {
		for i := range out {
			out[i] = 1 / float64(len(out))
		}
		return subtype.FromSlice(out)
	}
	floats.Scale(1/total, out)
	return subtype.FromSlice(out)
}
