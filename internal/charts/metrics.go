package charts

import (
	"biomark/domain/subtype"
)

// ClassMetrics holds evaluation figures for one subtype
type ClassMetrics struct {
	Label     subtype.Label `json:"label"`
	Precision float64       `json:"precision"`
	Recall    float64       `json:"recall"`
	F1        float64       `json:"f1"`
	Support   int           `json:"support"`
}

// ModelMetrics is the static performance table shown on the dashboard.
// The figures are illustrative; no evaluation run produced them.
type ModelMetrics struct {
	Classes  []ClassMetrics `json:"classes"`
	Accuracy float64        `json:"accuracy"`
	MacroF1  float64        `json:"macro_f1"`
	Note     string         `json:"note"`
}

var cannedMetrics = []struct {
	label             subtype.Label
	precision, recall float64
	support           int
}{
	{subtype.TNBC, 0.92, 0.89, 142},
	{subtype.IDC, 0.94, 0.96, 311},
	{subtype.MBC, 0.81, 0.77, 58},
	{subtype.ILC, 0.87, 0.85, 119},
}

// Metrics returns the canned table with F1 derived from precision and recall
func Metrics() ModelMetrics {
	out := ModelMetrics{Note: "Illustrative figures for demonstration. Not derived from a clinical evaluation."}
	var correct float64
	var total int
	for _, c := range cannedMetrics {
		f1 := 0.0
		if c.precision+c.recall > 0 {
			f1 = 2 * c.precision * c.recall / (c.precision + c.recall)
		}
		out.Classes = append(out.Classes, ClassMetrics{
			Label:     c.label,
			Precision: c.precision,
			Recall:    c.recall,
			F1:        f1,
			Support:   c.support,
		})
		out.MacroF1 += f1
		correct += c.recall * float64(c.support)
		total += c.support
	}
	out.MacroF1 /= float64(len(cannedMetrics))
	out.Accuracy = correct / float64(total)
	return out
}

// MetricsChart renders the per-subtype metrics as a grouped bar chart
func MetricsChart(m ModelMetrics) Spec {
	labels := make([]string, len(m.Classes))
	precision := make([]float64, len(m.Classes))
	recall := make([]float64, len(m.Classes))
	f1 := make([]float64, len(m.Classes))
	for i, c := range m.Classes {
		labels[i] = string(c.Label)
		precision[i], recall[i], f1[i] = c.Precision, c.Recall, c.F1
	}
	return Spec{
		Type:   TypeBar,
		Title:  "Model Performance by Subtype",
		Labels: labels,
		Series: []Series{
			{Name: "Precision", Values: precision},
			{Name: "Recall", Values: recall},
			{Name: "F1", Values: f1},
		},
		Colors: []string{"#1B5E20", "#4CAF50", "#FFD700"},
		YAxis:  "Score",
		Max:    1,
	}
}
