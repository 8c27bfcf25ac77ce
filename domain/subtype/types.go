package subtype

import (
	"fmt"
	"math"
	"strings"

	"biomark/domain/core"
)

// Label is one of the four histological subtypes the dashboard reports on
type Label string

const (
	TNBC Label = "TNBC"
	IDC  Label = "IDC"
	MBC  Label = "MBC"
	ILC  Label = "ILC"
)

// Labels lists the closed label set in its fixed display order. Every ordered
// traversal (charts, exports, tie-breaks) uses this order.
var Labels = []Label{TNBC, IDC, MBC, ILC}

// Tolerance is the allowed deviation of a probability sum from one
const Tolerance = 1e-9

// Info describes a subtype for display
type Info struct {
	Label       Label  `json:"label"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Color       string `json:"color"`
}

var catalog = map[Label]Info{
	TNBC: {TNBC, "Triple Negative Breast Cancer", "Lacks ER, PR, and HER2 expression. Aggressive subtype with limited targeted therapy.", "#2E7D32"},
	IDC:  {IDC, "Invasive Ductal Carcinoma", "Most common breast cancer type. Originates in milk ducts.", "#4CAF50"},
	MBC:  {MBC, "Metaplastic Breast Carcinoma", "Rare, aggressive subtype with mixed epithelial and mesenchymal features.", "#FFD700"},
	ILC:  {ILC, "Invasive Lobular Carcinoma", "Originates in milk lobules. Often hormone receptor positive.", "#B8860B"},
}

// Describe returns display information for a label
func Describe(l Label) Info {
	return catalog[l]
}

// Catalog returns display information for every label in order
func Catalog() []Info {
	out := make([]Info, 0, len(Labels))
	for _, l := range Labels {
		out = append(out, catalog[l])
	}
	return out
}

// Index returns the position of l in Labels, or -1
func Index(l Label) int {
	for i, candidate := range Labels {
		if candidate == l {
			return i
		}
	}
	return -1
}

// Valid reports whether l belongs to the closed label set
func (l Label) Valid() bool {
	return Index(l) >= 0
}

// String returns the label abbreviation
func (l Label) String() string {
	return string(l)
}

// ParseLabel parses a label case-insensitively
func ParseLabel(s string) (Label, error) {
	l := Label(strings.ToUpper(strings.TrimSpace(s)))
	if !l.Valid() {
		return "", fmt.Errorf("%w: %q", core.ErrUnknownLabel, s)
	}
	return l, nil
}

// Probabilities maps each label to its probability
type Probabilities map[Label]float64

// FromSlice builds a mapping from values given in Labels order
func FromSlice(values []float64) (Probabilities, error) {
	if len(values) != len(Labels) {
		return nil, fmt.Errorf("%w: expected %d values, got %d", core.ErrInvalidProbabilities, len(Labels), len(values))
	}
	p := make(Probabilities, len(Labels))
	for i, l := range Labels {
		p[l] = values[i]
	}
	return p, nil
}

// Slice returns the values in Labels order
func (p Probabilities) Slice() []float64 {
	out := make([]float64, len(Labels))
	for i, l := range Labels {
		out[i] = p[l]
	}
	return out
}

// Validate checks that p covers exactly the label set, every value lies in
// [0,1] and the values sum to one within Tolerance.
func (p Probabilities) Validate() error {
	if len(p) != len(Labels) {
		return fmt.Errorf("%w: expected %d labels, got %d", core.ErrInvalidProbabilities, len(Labels), len(p))
	}
	sum := 0.0
	for l, v := range p {
		if !l.Valid() {
			return fmt.Errorf("%w: %q", core.ErrUnknownLabel, string(l))
		}
		if math.IsNaN(v) || v < 0 || v > 1 {
			return fmt.Errorf("%w: %s=%g outside [0,1]", core.ErrInvalidProbabilities, l, v)
		}
		sum += v
	}
	if math.Abs(sum-1) > Tolerance {
		return fmt.Errorf("%w: sum is %g", core.ErrInvalidProbabilities, sum)
	}
	return nil
}

// Top returns the highest-probability label and its probability. Ties go to
// the label that comes first in Labels.
func (p Probabilities) Top() (Label, float64) {
	var best Label
	bestValue := -1.0
	for _, l := range Labels {
		v, ok := p[l]
		if !ok {
			continue
		}
		if v > bestValue {
			best, bestValue = l, v
		}
	}
	if bestValue < 0 {
		return "", 0
	}
	return best, bestValue
}

// Entry is one (label, probability) pair
type Entry struct {
	Label       Label   `json:"label"`
	Probability float64 `json:"probability"`
}

// Ordered returns the entries in Labels order
func (p Probabilities) Ordered() []Entry {
	out := make([]Entry, 0, len(Labels))
	for _, l := range Labels {
		out = append(out, Entry{Label: l, Probability: p[l]})
	}
	return out
}

// Clone returns an independent copy
func (p Probabilities) Clone() Probabilities {
	if p == nil {
		return nil
	}
	out := make(Probabilities, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}
