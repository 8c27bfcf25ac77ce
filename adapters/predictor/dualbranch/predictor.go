// Package dualbranch is a small two-branch scorer: an image branch over
// average-pooled pixels and a biomarker branch over encoded readings, fused
// by a dense softmax head. Without a weights file it runs on random weights,
// so its output carries no diagnostic meaning.
package dualbranch

import (
	"context"
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"biomark/domain/biomarker"
	"biomark/domain/subtype"
	"biomark/internal"
	"biomark/internal/imaging"
	"biomark/ports"
)

// Name identifies events produced by this predictor
const Name = "dualbranch"

// Predictor implements ports.Predictor with the dual-branch scorer
type Predictor struct {
	weights  *Weights
	fromFile bool
}

var _ ports.Predictor = (*Predictor)(nil)

// New loads weights from path. A missing file is not an error: the scorer
// falls back to freshly initialized weights and logs a warning. A present
// but malformed file is an error.
func New(path string, rng ports.RNGPort, logger *internal.Logger) (*Predictor, error) {
	if logger == nil {
		logger = internal.DefaultLogger
	}
	markers := len(biomarker.Markers)

	if path != "" {
		w, err := LoadWeights(path)
		switch {
		case err == nil:
			if err := w.Validate(markers); err != nil {
				return nil, fmt.Errorf("invalid weights in %s: %w", path, err)
			}
			logger.Info("[DualBranch] loaded weights from %s", path)
			return &Predictor{weights: w, fromFile: true}, nil
		case errors.Is(err, ErrWeightsNotFound):
			logger.Warn("[DualBranch] %v, using randomly initialized weights", err)
		default:
			return nil, err
		}
	}

	return &Predictor{weights: RandomWeights(rng.Stream("dualbranch-init"), markers)}, nil
}

// NewWithWeights builds a predictor from in-memory weights
func NewWithWeights(w *Weights) (*Predictor, error) {
	if err := w.Validate(len(biomarker.Markers)); err != nil {
		return nil, err
	}
	return &Predictor{weights: w, fromFile: true}, nil
}

// Name implements ports.Predictor
func (p *Predictor) Name() string { return Name }

// Pretrained reports whether weights came from a file
func (p *Predictor) Pretrained() bool { return p.fromFile }

// Predict implements ports.Predictor
func (p *Predictor) Predict(ctx context.Context, req ports.PredictionRequest) (subtype.Probabilities, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	imageFeatures := make([]float64, ImageFeatures)
	if req.Image != nil {
		imageFeatures = imaging.Pool(imaging.Preprocess(req.Image), PoolGrid)
	}

	imageBranch := relu(p.weights.Image.forward(mat.NewVecDense(ImageFeatures, imageFeatures)))
	markerInput := EncodeBiomarkers(req.Biomarkers)
	markerBranch := relu(p.weights.Biomarker.forward(mat.NewVecDense(len(markerInput), markerInput)))

	fused := make([]float64, 0, 2*BranchUnits)
	fused = append(fused, imageBranch.RawVector().Data...)
	fused = append(fused, markerBranch.RawVector().Data...)

	logits := p.weights.Head.forward(mat.NewVecDense(len(fused), fused))
	return subtype.FromSlice(Softmax(logits.RawVector().Data))
}

// EncodeBiomarkers lays readings out in panel order: one-hot intensity,
// percentage/100 and a present flag per marker
func EncodeBiomarkers(readings biomarker.Readings) []float64 {
	out := make([]float64, len(biomarker.Markers)*MarkerFeatures)
	for i, m := range biomarker.Markers {
		r, ok := readings[m]
		if !ok {
			continue
		}
		base := i * MarkerFeatures
		if r.Intensity.Valid() {
			out[base+r.Intensity.Score()] = 1
		}
		if r.Percentage != nil {
			out[base+4] = *r.Percentage / 100
		}
		out[base+5] = 1
	}
	return out
}

// Softmax returns exp-normalized values, shifted by the maximum for stability
func Softmax(logits []float64) []float64 {
	out := make([]float64, len(logits))
	shift := floats.Max(logits)
	for i, v := range logits {
		out[i] = math.Exp(v - shift)
	}
	floats.Scale(1/floats.Sum(out), out)
	return out
}

func relu(v *mat.VecDense) *mat.VecDense {
	for i := 0; i < v.Len(); i++ {
		if v.AtVec(i) < 0 {
			v.SetVec(i, 0)
		}
	}
	return v
}
