package prediction

import (
	"fmt"
	"math"
	"time"

	"biomark/domain/biomarker"
	"biomark/domain/core"
	"biomark/domain/patient"
	"biomark/domain/subtype"
)

// ImageMeta describes the image a prediction was requested for
type ImageMeta struct {
	Filename  string    `json:"filename"`
	Format    string    `json:"format"`
	Width     int       `json:"width"`
	Height    int       `json:"height"`
	SizeBytes int64     `json:"size_bytes"`
	Checksum  core.Hash `json:"checksum"`
}

// Event is one prediction. It is created when a prediction is requested and
// never modified afterwards; History stores and hands out deep copies.
type Event struct {
	ID            core.EventID          `json:"id"`
	Timestamp     core.Timestamp        `json:"timestamp"`
	Label         subtype.Label         `json:"predicted_label"`
	Confidence    float64               `json:"confidence"`
	Probabilities subtype.Probabilities `json:"probabilities"`
	Biomarkers    biomarker.Readings    `json:"biomarkers"`
	Patient       patient.Attributes    `json:"patient"`
	Image         ImageMeta             `json:"image"`
	Predictor     string                `json:"predictor"`
}

// Input carries everything except the model output
type Input struct {
	Biomarkers biomarker.Readings
	Patient    patient.Attributes
	Image      ImageMeta
	Predictor  string
}

// NewEvent builds an event from a probability mapping. The predicted label and
// confidence are derived from the mapping.
func NewEvent(probs subtype.Probabilities, in Input, at time.Time) (Event, error) {
	if err := probs.Validate(); err != nil {
		return Event{}, err
	}
	label, confidence := probs.Top()
	e := Event{
		ID:            core.NewEventID(),
		Timestamp:     core.NewTimestamp(at),
		Label:         label,
		Confidence:    confidence,
		Probabilities: probs.Clone(),
		Biomarkers:    in.Biomarkers.Clone(),
		Patient:       in.Patient,
		Image:         in.Image,
		Predictor:     in.Predictor,
	}
	if e.Biomarkers == nil {
		e.Biomarkers = biomarker.Readings{}
	}
	if err := e.Validate(); err != nil {
		return Event{}, err
	}
	return e, nil
}

// Validate checks that the event is well formed
func (e Event) Validate() error {
	if e.ID.String() == "" {
		return core.NewValidationError("id", "missing")
	}
	if e.Timestamp.IsZero() {
		return core.NewValidationError("timestamp", "missing")
	}
	if !e.Label.Valid() {
		return fmt.Errorf("%w: %q", core.ErrUnknownLabel, string(e.Label))
	}
	if err := e.Probabilities.Validate(); err != nil {
		return err
	}
	if math.Abs(e.Probabilities[e.Label]-e.Confidence) > subtype.Tolerance {
		return core.NewValidationError("confidence", "does not match the predicted label's probability")
	}
	if err := e.Biomarkers.Validate(); err != nil {
		return err
	}
	return e.Patient.Validate()
}

// Clone returns a deep copy
func (e Event) Clone() Event {
	e.Probabilities = e.Probabilities.Clone()
	e.Biomarkers = e.Biomarkers.Clone()
	return e
}
