package patient

import (
	"fmt"
	"math"
	"strings"

	"biomark/domain/core"
)

// NodalStatus is the regional lymph node category
type NodalStatus string

const (
	N0 NodalStatus = "N0"
	N1 NodalStatus = "N1"
	N2 NodalStatus = "N2"
	N3 NodalStatus = "N3"
)

// NodalStatuses lists the accepted categories
var NodalStatuses = []NodalStatus{N0, N1, N2, N3}

// ParseNodalStatus accepts "N1", "n1" or "1". Empty means not provided.
func ParseNodalStatus(s string) (NodalStatus, error) {
	key := strings.ToUpper(strings.TrimSpace(s))
	if key == "" {
		return "", nil
	}
	if !strings.HasPrefix(key, "N") {
		key = "N" + key
	}
	for _, n := range NodalStatuses {
		if string(n) == key {
			return n, nil
		}
	}
	return "", core.NewValidationError("nodal_status", fmt.Sprintf("unknown category %q", s))
}

// Attributes are the optional clinical fields entered with a prediction.
// Zero values mean "not provided".
type Attributes struct {
	Age         int         `json:"age,omitempty"`
	TumorSizeMM float64     `json:"tumor_size_mm,omitempty"`
	Grade       int         `json:"grade,omitempty"`
	NodalStatus NodalStatus `json:"nodal_status,omitempty"`
}

// Validate range-checks provided fields
func (a Attributes) Validate() error {
	if a.Age < 0 || a.Age > 120 {
		return core.NewRangeError("age", float64(a.Age), 0, 120)
	}
	if math.IsNaN(a.TumorSizeMM) || a.TumorSizeMM < 0 || a.TumorSizeMM > 500 {
		return core.NewRangeError("tumor_size_mm", a.TumorSizeMM, 0, 500)
	}
	if a.Grade != 0 && (a.Grade < 1 || a.Grade > 3) {
		return core.NewRangeError("grade", float64(a.Grade), 1, 3)
	}
	if a.NodalStatus != "" {
		if _, err := ParseNodalStatus(string(a.NodalStatus)); err != nil {
			return err
		}
	}
	return nil
}

// IsEmpty reports whether no attribute was provided
func (a Attributes) IsEmpty() bool {
	return a == Attributes{}
}

// Fields returns labeled display values for the provided attributes
func (a Attributes) Fields() [][2]string {
	var out [][2]string
	if a.Age > 0 {
		out = append(out, [2]string{"Patient Age", fmt.Sprintf("%d", a.Age)})
	}
	if a.TumorSizeMM > 0 {
		out = append(out, [2]string{"Tumor Size", fmt.Sprintf("%g mm", a.TumorSizeMM)})
	}
	if a.Grade > 0 {
		out = append(out, [2]string{"Histological Grade", fmt.Sprintf("%d", a.Grade)})
	}
	if a.NodalStatus != "" {
		out = append(out, [2]string{"Nodal Status", string(a.NodalStatus)})
	}
	return out
}
