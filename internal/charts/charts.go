// Package charts builds renderer-agnostic chart specifications for the
// dashboard. Every function is pure; the browser draws the result.
package charts

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"biomark/domain/prediction"
	"biomark/domain/subtype"
)

// Chart types understood by the dashboard script
const (
	TypeBar       = "bar"
	TypePie       = "pie"
	TypeRadar     = "radar"
	TypeGauge     = "gauge"
	TypeHistogram = "histogram"
)

// Series is one named run of values aligned with Spec.Labels
type Series struct {
	Name   string    `json:"name"`
	Values []float64 `json:"values"`
}

// Band colors a value range on a gauge
type Band struct {
	From  float64 `json:"from"`
	To    float64 `json:"to"`
	Color string  `json:"color"`
}

// Spec describes one chart
type Spec struct {
	Type       string   `json:"type"`
	Title      string   `json:"title"`
	Labels     []string `json:"labels"`
	Series     []Series `json:"series"`
	Colors     []string `json:"colors,omitempty"`
	XAxis      string   `json:"x_axis,omitempty"`
	YAxis      string   `json:"y_axis,omitempty"`
	Horizontal bool     `json:"horizontal,omitempty"`
	Min        float64  `json:"min"`
	Max        float64  `json:"max"`
	Bands      []Band   `json:"bands,omitempty"`
}

// Set is every chart the dashboard shows for a session
type Set struct {
	Probabilities *Spec `json:"probabilities,omitempty"`
	Radar         *Spec `json:"radar,omitempty"`
	Gauge         *Spec `json:"gauge,omitempty"`
	Distribution  *Spec `json:"distribution,omitempty"`
	Confidence    *Spec `json:"confidence,omitempty"`
}

// HistogramBins is the number of confidence buckets over [0,1]
const HistogramBins = 10

// Build returns the chart set for the latest prediction and the events in view.
// A nil latest prediction yields no per-prediction charts.
func Build(latest *prediction.Event, events []prediction.Event) Set {
	var set Set
	if latest != nil {
		bar := ProbabilityBar(latest.Probabilities)
		radar := ProbabilityRadar(latest.Probabilities)
		gauge := ConfidenceGauge(latest.Confidence)
		set.Probabilities, set.Radar, set.Gauge = &bar, &radar, &gauge
	}
	if len(events) > 0 {
		pie := LabelDistribution(prediction.Summarize(events))
		hist := ConfidenceHistogram(events, HistogramBins)
		set.Distribution, set.Confidence = &pie, &hist
	}
	return set
}

func labelAxis() ([]string, []string) {
	labels := make([]string, len(subtype.Labels))
	colors := make([]string, len(subtype.Labels))
	for i, l := range subtype.Labels {
		labels[i] = string(l)
		colors[i] = subtype.Describe(l).Color
	}
	return labels, colors
}

// ProbabilityBar is the horizontal per-subtype probability chart
func ProbabilityBar(p subtype.Probabilities) Spec {
	labels, colors := labelAxis()
	return Spec{
		Type:       TypeBar,
		Title:      "Subtype Probability Distribution",
		Labels:     labels,
		Series:     []Series{{Name: "Probability", Values: p.Slice()}},
		Colors:     colors,
		XAxis:      "Confidence Score",
		YAxis:      "Cancer Subtype",
		Horizontal: true,
		Max:        1,
	}
}

// ProbabilityRadar plots the same probabilities on a closed polygon
func ProbabilityRadar(p subtype.Probabilities) Spec {
	labels, colors := labelAxis()
	return Spec{
		Type:   TypeRadar,
		Title:  "Subtype Profile",
		Labels: labels,
		Series: []Series{{Name: "Probability", Values: p.Slice()}},
		Colors: colors[:1],
		Max:    1,
	}
}

// ConfidenceGauge shows the top-label confidence against fixed bands
func ConfidenceGauge(confidence float64) Spec {
	return Spec{
		Type:   TypeGauge,
		Title:  "Prediction Confidence",
		Labels: []string{"Confidence"},
		Series: []Series{{Name: "Confidence", Values: []float64{confidence}}},
		Max:    1,
		Bands: []Band{
			{From: 0, To: 0.5, Color: "#FFCDD2"},
			{From: 0.5, To: 0.75, Color: "#FFF59D"},
			{From: 0.75, To: 1, Color: "#C8E6C9"},
		},
	}
}

// LabelDistribution is the pie of predicted labels across a summary
func LabelDistribution(s prediction.Summary) Spec {
	labels, colors := labelAxis()
	counts := make([]float64, len(subtype.Labels))
	for i, l := range subtype.Labels {
		counts[i] = float64(s.LabelCounts[l])
	}
	return Spec{
		Type:   TypePie,
		Title:  "Predicted Subtypes",
		Labels: labels,
		Series: []Series{{Name: "Predictions", Values: counts}},
		Colors: colors,
		Max:    floats.Sum(counts),
	}
}

// ConfidenceHistogram buckets top-label confidences into equal-width bins
// over [0,1]
func ConfidenceHistogram(events []prediction.Event, bins int) Spec {
	if bins < 1 {
		bins = HistogramBins
	}
	dividers := make([]float64, bins+1)
	floats.Span(dividers, 0, 1)
	// stat.Histogram excludes the upper bound; a confidence of exactly 1 must land in the last bin
	dividers[bins] = math.Nextafter(1, 2)

	x := make([]float64, len(events))
	for i, e := range events {
		x[i] = e.Confidence
	}
	sort.Float64s(x)
	counts := stat.Histogram(nil, dividers, x, nil)

	labels := make([]string, bins)
	for i := range labels {
		labels[i] = bucketLabel(float64(i)/float64(bins), float64(i+1)/float64(bins))
	}
	return Spec{
		Type:   TypeHistogram,
		Title:  "Confidence Distribution",
		Labels: labels,
		Series: []Series{{Name: "Predictions", Values: counts}},
		Colors: []string{"#2E7D32"},
		XAxis:  "Confidence",
		YAxis:  "Predictions",
		Max:    float64(len(events)),
	}
}

func bucketLabel(from, to float64) string {
	return fmt.Sprintf("%.0f-%.0f%%", from*100, to*100)
}
