package report

import (
	"fmt"
	"strings"

	"biomark/domain/biomarker"
	"biomark/domain/core"
	"biomark/domain/prediction"
	"biomark/domain/subtype"
	"biomark/models"
)

// Field is one labeled value in a report
type Field struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// Document is the flattened report for one prediction. The same document
// backs the on-screen view and every export format.
type Document struct {
	Title         string                `json:"title"`
	EventID       core.EventID          `json:"event_id"`
	AnalysisDate  core.Timestamp        `json:"analysis_date"`
	TopPrediction subtype.Label         `json:"top_prediction"`
	Confidence    float64               `json:"confidence"`
	Fields        []Field               `json:"fields"`
	Probabilities []subtype.Entry       `json:"all_predictions"`
	Biomarkers    []biomarker.Reading   `json:"biomarkers"`
	Event         prediction.Event      `json:"-"`
	Raw           subtype.Probabilities `json:"-"`
}

// DefaultTitle heads every rendered report
const DefaultTitle = "Biomarker Analysis Report"

// Assemble merges a prediction with the submitted form into a report document.
// Values recorded on the event win; the form fills in readings and patient
// attributes the event does not carry. The output depends only on the inputs.
func Assemble(event *prediction.Event, form models.AnalysisForm) (Document, error) {
	if event == nil {
		return Document{}, core.ErrNoPrediction
	}

	readings := event.Biomarkers.Clone()
	if readings == nil {
		readings = biomarker.Readings{}
	}
	for m, r := range form.Biomarkers {
		if _, ok := readings[m]; !ok {
			readings[m] = r
		}
	}
	patient := event.Patient
	if patient.IsEmpty() {
		patient = form.Patient
	}

	sorted := readings.Sorted()
	doc := Document{
		Title:         DefaultTitle,
		EventID:       event.ID,
		AnalysisDate:  event.Timestamp,
		TopPrediction: event.Label,
		Confidence:    event.Confidence,
		Probabilities: event.Probabilities.Ordered(),
		Biomarkers:    sorted,
		Event:         event.Clone(),
		Raw:           event.Probabilities.Clone(),
	}

	add := func(label, value string) {
		doc.Fields = append(doc.Fields, Field{Label: label, Value: value})
	}

	add("Analysis Date", event.Timestamp.Display())
	add("Biomarker(s)", markerList(sorted))
	for _, r := range sorted {
		prefix := ""
		if len(sorted) > 1 {
			prefix = string(r.Marker) + " "
		}
		add(prefix+"Intensity", r.Intensity.String())
		if r.Pattern != "" {
			add(prefix+"Staining Pattern", string(r.Pattern))
		}
		if r.Percentage != nil {
			add(prefix+"Percentage", r.PercentageText())
		}
	}
	for _, kv := range patient.Fields() {
		add(kv[0], kv[1])
	}
	if event.Image.Filename != "" {
		add("Image", fmt.Sprintf("%s (%dx%d %s)", event.Image.Filename, event.Image.Width, event.Image.Height, event.Image.Format))
	}
	if event.Predictor != "" {
		add("Predictor", event.Predictor)
	}
	add("Top Prediction", string(event.Label))
	add("Confidence", Percent(event.Confidence))
	for _, e := range doc.Probabilities {
		add(string(e.Label)+" Probability", Percent(e.Probability))
	}

	return doc, nil
}

// Percent formats a probability the way the dashboard shows it
func Percent(p float64) string {
	return fmt.Sprintf("%.1f%%", p*100)
}

func markerList(readings []biomarker.Reading) string {
	if len(readings) == 0 {
		return "None"
	}
	names := make([]string, len(readings))
	for i, r := range readings {
		names[i] = string(r.Marker)
	}
	return strings.Join(names, ", ")
}
