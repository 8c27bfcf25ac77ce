package ui

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"

	"biomark/domain/biomarker"
	"biomark/domain/core"
	"biomark/domain/patient"
	"biomark/internal/errors"
	"biomark/models"
)

// ReadingRequest is one biomarker reading in a JSON predict request
type ReadingRequest struct {
	Marker     string   `json:"marker" binding:"required"`
	Intensity  string   `json:"intensity" binding:"required"`
	Pattern    string   `json:"pattern"`
	Percentage *float64 `json:"percentage" binding:"omitempty,gte=0,lte=100"`
}

// PatientRequest carries optional patient attributes
type PatientRequest struct {
	Age         int     `json:"age" binding:"omitempty,gte=0,lte=120"`
	TumorSizeMM float64 `json:"tumor_size_mm" binding:"omitempty,gte=0,lte=500"`
	Grade       int     `json:"grade" binding:"omitempty,gte=1,lte=3"`
	NodalStatus string  `json:"nodal_status"`
}

// PredictRequest is the JSON body of POST /api/predict
type PredictRequest struct {
	Biomarkers []ReadingRequest `json:"biomarkers" binding:"dive"`
	Patient    PatientRequest   `json:"patient"`
}

// predictForm is the dashboard form: one intensity, pattern and percentage
// applied to every selected marker
type predictForm struct {
	Biomarkers  []string `form:"biomarker"`
	Intensity   string   `form:"intensity"`
	Pattern     string   `form:"staining_pattern"`
	Percentage  string   `form:"percentage"`
	Age         string   `form:"age"`
	TumorSizeMM string   `form:"tumor_size_mm"`
	Grade       string   `form:"grade"`
	NodalStatus string   `form:"nodal_status"`
}

// bindPredictRequest accepts either a JSON body or a form post
func bindPredictRequest(c *gin.Context) (models.AnalysisForm, error) {
	if c.ContentType() == binding.MIMEJSON {
		var req PredictRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			return models.AnalysisForm{}, errors.WithCode(errors.CodeValidationError, err)
		}
		return req.toForm()
	}

	var f predictForm
	if err := c.ShouldBind(&f); err != nil {
		return models.AnalysisForm{}, errors.WithCode(errors.CodeInvalidInput, err)
	}
	req, err := f.toRequest()
	if err != nil {
		return models.AnalysisForm{}, err
	}
	if err := binding.Validator.ValidateStruct(&req); err != nil {
		return models.AnalysisForm{}, errors.WithCode(errors.CodeValidationError, err)
	}
	return req.toForm()
}

func (f predictForm) toRequest() (PredictRequest, error) {
	var req PredictRequest
	pct, err := optionalFloat("percentage", f.Percentage)
	if err != nil {
		return req, err
	}
	intensity := f.Intensity
	if intensity == "" {
		intensity = biomarker.Moderate.String()
	}
	for _, m := range f.Biomarkers {
		if strings.TrimSpace(m) == "" {
			continue
		}
		req.Biomarkers = append(req.Biomarkers, ReadingRequest{
			Marker:     m,
			Intensity:  intensity,
			Pattern:    f.Pattern,
			Percentage: pct,
		})
	}

	age, err := optionalInt("age", f.Age)
	if err != nil {
		return req, err
	}
	grade, err := optionalInt("grade", f.Grade)
	if err != nil {
		return req, err
	}
	size, err := optionalFloat("tumor_size_mm", f.TumorSizeMM)
	if err != nil {
		return req, err
	}
	req.Patient = PatientRequest{Age: age, Grade: grade, NodalStatus: f.NodalStatus}
	if size != nil {
		req.Patient.TumorSizeMM = *size
	}
	return req, nil
}

// toForm maps the request onto domain values
func (r PredictRequest) toForm() (models.AnalysisForm, error) {
	form := models.AnalysisForm{Biomarkers: biomarker.Readings{}}
	for _, rr := range r.Biomarkers {
		marker, err := biomarker.ParseMarker(rr.Marker)
		if err != nil {
			return form, errors.Wrap(err, "invalid biomarker")
		}
		if _, dup := form.Biomarkers[marker]; dup {
			return form, errors.Wrap(core.NewValidationError("biomarkers", fmt.Sprintf("%s listed twice", marker)), "invalid biomarker")
		}
		intensity, err := biomarker.ParseIntensity(rr.Intensity)
		if err != nil {
			return form, errors.Wrap(err, "invalid intensity")
		}
		pattern, err := biomarker.ParsePattern(rr.Pattern)
		if err != nil {
			return form, errors.Wrap(err, "invalid staining pattern")
		}
		form.Biomarkers[marker] = biomarker.Reading{
			Marker:     marker,
			Intensity:  intensity,
			Pattern:    pattern,
			Percentage: rr.Percentage,
		}
	}

	nodal, err := patient.ParseNodalStatus(r.Patient.NodalStatus)
	if err != nil {
		return form, errors.Wrap(err, "invalid nodal status")
	}
	form.Patient = patient.Attributes{
		Age:         r.Patient.Age,
		TumorSizeMM: r.Patient.TumorSizeMM,
		Grade:       r.Patient.Grade,
		NodalStatus: nodal,
	}
	return form, nil
}

func optionalFloat(field, s string) (*float64, error) {
	s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "%"))
	if s == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, errors.Wrap(core.NewValidationError(field, "not a number"), "invalid form")
	}
	return &v, nil
}

func optionalInt(field, s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, errors.Wrap(core.NewValidationError(field, "not a whole number"), "invalid form")
	}
	return v, nil
}

// windowParam reads ?window=N; missing or non-positive means all events
func windowParam(c *gin.Context) (int, error) {
	raw := c.Query("window")
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, errors.InvalidInput("window must be a non-negative integer")
	}
	return n, nil
}
