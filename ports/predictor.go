package ports

import (
	"context"
	"image"

	"biomark/domain/biomarker"
	"biomark/domain/patient"
	"biomark/domain/subtype"
)

// PredictionRequest is everything a predictor may look at. The random
// predictor ignores all of it.
type PredictionRequest struct {
	Image      image.Image
	ImageData  []byte
	Biomarkers biomarker.Readings
	Patient    patient.Attributes
}

// Predictor produces a probability for each subtype label
type Predictor interface {
	// Name identifies the predictor on recorded events
	Name() string

	// Predict returns a mapping over every label summing to one
	Predict(ctx context.Context, req PredictionRequest) (subtype.Probabilities, error)
}
