package dualbranch

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"math/rand"
	"os"

	"gonum.org/v1/gonum/mat"
)

// Layer dimensions
const (
	PoolGrid       = 8
	ImageFeatures  = PoolGrid * PoolGrid * 3
	MarkerFeatures = 6 // one-hot intensity (4), percentage, present flag
	BranchUnits    = 16
	OutputClasses  = 4
)

// ErrWeightsNotFound is returned when the weights file does not exist
var ErrWeightsNotFound = errors.New("model weights not found")

// Dense is one fully connected layer: out = W·in + b
type Dense struct {
	Rows int       `json:"rows"`
	Cols int       `json:"cols"`
	W    []float64 `json:"weights"`
	B    []float64 `json:"bias"`
}

// Weights holds both branches and the fusion head
type Weights struct {
	Image     Dense `json:"image_branch"`
	Biomarker Dense `json:"biomarker_branch"`
	Head      Dense `json:"head"`
}

func (d Dense) validate(name string, rows, cols int) error {
	if d.Rows != rows || d.Cols != cols {
		return fmt.Errorf("%s: expected %dx%d, got %dx%d", name, rows, cols, d.Rows, d.Cols)
	}
	if len(d.W) != rows*cols {
		return fmt.Errorf("%s: expected %d weights, got %d", name, rows*cols, len(d.W))
	}
	if len(d.B) != rows {
		return fmt.Errorf("%s: expected %d biases, got %d", name, rows, len(d.B))
	}
	return nil
}

// Validate checks the layer shapes against the architecture
func (w *Weights) Validate(markerCount int) error {
	if err := w.Image.validate("image_branch", BranchUnits, ImageFeatures); err != nil {
		return err
	}
	if err := w.Biomarker.validate("biomarker_branch", BranchUnits, markerCount*MarkerFeatures); err != nil {
		return err
	}
	return w.Head.validate("head", OutputClasses, 2*BranchUnits)
}

// LoadWeights reads weights from a JSON file
func LoadWeights(path string) (*Weights, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrWeightsNotFound, path)
		}
		return nil, fmt.Errorf("read weights: %w", err)
	}
	var w Weights
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, fmt.Errorf("decode weights %s: %w", path, err)
	}
	return &w, nil
}

// SaveWeights writes weights as JSON
func SaveWeights(path string, w *Weights) error {
	raw, err := json.Marshal(w)
	if err != nil {
		return fmt.Errorf("encode weights: %w", err)
	}
	return os.WriteFile(path, raw, 0o644)
}

// RandomWeights initializes every layer with He-scaled normal draws and zero bias
func RandomWeights(r *rand.Rand, markerCount int) *Weights {
	return &Weights{
		Image:     randomDense(r, BranchUnits, ImageFeatures),
		Biomarker: randomDense(r, BranchUnits, markerCount*MarkerFeatures),
		Head:      randomDense(r, OutputClasses, 2*BranchUnits),
	}
}

func randomDense(r *rand.Rand, rows, cols int) Dense {
	scale := math.Sqrt(2 / float64(cols))
	w := make([]float64, rows*cols)
	for i := range w {
		w[i] = r.NormFloat64() * scale
	}
	return Dense{Rows: rows, Cols: cols, W: w, B: make([]float64, rows)}
}

// forward computes W·x + b
func (d Dense) forward(x *mat.VecDense) *mat.VecDense {
	w := mat.NewDense(d.Rows, d.Cols, d.W)
	var out mat.VecDense
	out.MulVec(w, x)
	out.AddVec(&out, mat.NewVecDense(d.Rows, d.B))
	return &out
}
