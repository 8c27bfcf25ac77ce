package models

import (
	"biomark/domain/biomarker"
	"biomark/domain/patient"
)

// AnalysisForm is the biomarker and patient input submitted with a
// prediction request
type AnalysisForm struct {
	Biomarkers biomarker.Readings `json:"biomarkers"`
	Patient    patient.Attributes `json:"patient"`
}

// Validate checks every reading and patient attribute
func (f AnalysisForm) Validate() error {
	if err := f.Biomarkers.Validate(); err != nil {
		return err
	}
	return f.Patient.Validate()
}

// Primary returns the first reading in panel order
func (f AnalysisForm) Primary() (biomarker.Reading, bool) {
	sorted := f.Biomarkers.Sorted()
	if len(sorted) == 0 {
		return biomarker.Reading{}, false
	}
	return sorted[0], true
}

// Clone deep-copies the form
func (f AnalysisForm) Clone() AnalysisForm {
	return AnalysisForm{
		Biomarkers: f.Biomarkers.Clone(),
		Patient:    f.Patient,
	}
}
