package app

import (
	"bytes"
	"context"
	stderrors "errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"biomark/adapters/rng"
	"biomark/domain/biomarker"
	"biomark/domain/core"
	"biomark/domain/subtype"
	"biomark/internal"
	"biomark/internal/errors"
	"biomark/models"
	"biomark/ports"
)

type mockPredictor struct {
	mock.Mock
}

func (m *mockPredictor) Name() string { return "mock" }

func (m *mockPredictor) Predict(ctx context.Context, req ports.PredictionRequest) (subtype.Probabilities, error) {
	args := m.Called(ctx, req)
	if p, ok := args.Get(0).(subtype.Probabilities); ok {
		return p, args.Error(1)
	}
	return nil, args.Error(1)
}

var fixedTime = time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 32, 24))
	for y := 0; y < 24; y++ {
		for x := 0; x < 32; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 8), G: 120, B: uint8(y * 10), A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func ki67Form() models.AnalysisForm {
	return models.AnalysisForm{
		Biomarkers: biomarker.Readings{
			biomarker.Ki67: {Marker: biomarker.Ki67, Intensity: biomarker.Strong, Percentage: biomarker.Percent(80)},
		},
	}
}

func probs(values ...float64) subtype.Probabilities {
	p, _ := subtype.FromSlice(values)
	return p
}

func newService(t *testing.T, p ports.Predictor, opts AnalysisOptions) *AnalysisService {
	t.Helper()
	logger := internal.NewLoggerTo(io.Discard, internal.LogLevelError)
	return NewAnalysisService(p, rng.NewSource(7), logger, opts).WithClock(func() time.Time { return fixedTime })
}

func newSession() *models.Session {
	return models.NewSession(core.NewSessionID(), 0, fixedTime)
}

func TestPredictWithoutImage(t *testing.T) {
	predictor := new(mockPredictor)
	svc := newService(t, predictor, DefaultAnalysisOptions())
	sess := newSession()

	result, err := svc.Predict(context.Background(), sess, ki67Form())

	require.Error(t, err)
	assert.Nil(t, result)
	assert.Equal(t, errors.CodeNoImage, errors.GetCode(err))
	assert.Equal(t, 0, sess.HistoryLen())
	_, ok := sess.LastPrediction()
	assert.False(t, ok)
	assert.Nil(t, svc.Charts(sess, 0).Probabilities)
	predictor.AssertNotCalled(t, "Predict", mock.Anything, mock.Anything)
}

func TestPredictRecordsOneEvent(t *testing.T) {
	predictor := new(mockPredictor)
	predictor.On("Predict", mock.Anything, mock.MatchedBy(func(req ports.PredictionRequest) bool {
		return req.Image != nil && req.Biomarkers[biomarker.Ki67].Intensity == biomarker.Strong
	})).Return(probs(0.1, 0.6, 0.2, 0.1), nil).Once()

	svc := newService(t, predictor, DefaultAnalysisOptions())
	sess := newSession()
	_, err := svc.Upload(context.Background(), sess, "slide.png", pngBytes(t))
	require.NoError(t, err)

	result, err := svc.Predict(context.Background(), sess, ki67Form())
	require.NoError(t, err)

	assert.Equal(t, 1, sess.HistoryLen())
	assert.Equal(t, subtype.IDC, result.Event.Label)
	assert.InDelta(t, 0.6, result.Event.Confidence, 1e-12)
	assert.Equal(t, ki67Form().Biomarkers, result.Event.Biomarkers)
	assert.Equal(t, "slide.png", result.Event.Image.Filename)
	assert.Equal(t, "mock", result.Event.Predictor)

	sum := 0.0
	for _, l := range subtype.Labels {
		sum += result.Event.Probabilities[l]
	}
	assert.InDelta(t, 1.0, sum, 1e-9)
	require.NotNil(t, result.Charts.Probabilities)
	assert.NotEmpty(t, sess.Heatmap())
	predictor.AssertExpectations(t)
}

func TestPredictRejectsInvalidForm(t *testing.T) {
	predictor := new(mockPredictor)
	svc := newService(t, predictor, DefaultAnalysisOptions())
	sess := newSession()
	_, err := svc.Upload(context.Background(), sess, "slide.png", pngBytes(t))
	require.NoError(t, err)

	form := models.AnalysisForm{Biomarkers: biomarker.Readings{
		biomarker.Ki67: {Marker: biomarker.Ki67, Intensity: biomarker.Strong, Percentage: biomarker.Percent(140)},
	}}
	_, err = svc.Predict(context.Background(), sess, form)
	require.Error(t, err)
	assert.Equal(t, errors.CodeValidationError, errors.GetCode(err))
	assert.Equal(t, 0, sess.HistoryLen())
}

func TestPredictorFailureLeavesHistoryUnchanged(t *testing.T) {
	predictor := new(mockPredictor)
	predictor.On("Predict", mock.Anything, mock.Anything).Return(nil, stderrors.New("connection refused"))

	svc := newService(t, predictor, DefaultAnalysisOptions())
	sess := newSession()
	_, err := svc.Upload(context.Background(), sess, "slide.png", pngBytes(t))
	require.NoError(t, err)

	_, err = svc.Predict(context.Background(), sess, ki67Form())
	require.Error(t, err)
	assert.Equal(t, errors.CodeExternalService, errors.GetCode(err))
	assert.Equal(t, 0, sess.HistoryLen())
}

func TestSimulatedLatencyHonorsCancellation(t *testing.T) {
	predictor := new(mockPredictor)
	opts := DefaultAnalysisOptions()
	opts.SimulatedLatency = time.Hour
	svc := newService(t, predictor, opts)
	sess := newSession()
	_, err := svc.Upload(context.Background(), sess, "slide.png", pngBytes(t))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = svc.Predict(ctx, sess, ki67Form())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 0, sess.HistoryLen())
}

func TestUploadRejectsMismatchedExtension(t *testing.T) {
	svc := newService(t, new(mockPredictor), DefaultAnalysisOptions())
	sess := newSession()

	_, err := svc.Upload(context.Background(), sess, "slide.jpg", pngBytes(t))
	require.Error(t, err)
	assert.Equal(t, errors.CodeUnsupportedMedia, errors.GetCode(err))
	assert.Nil(t, sess.Image())
}

func TestReportRequiresPrediction(t *testing.T) {
	svc := newService(t, new(mockPredictor), DefaultAnalysisOptions())
	sess := newSession()

	_, err := svc.Report(sess, models.AnalysisForm{})
	assert.Equal(t, errors.CodeNoPrediction, errors.GetCode(err))

	_, err = svc.Heatmap(sess)
	assert.Equal(t, errors.CodeNoPrediction, errors.GetCode(err))

	var buf bytes.Buffer
	_, err = svc.ExportReportPDF(&buf, sess)
	assert.Equal(t, errors.CodeNoPrediction, errors.GetCode(err))
}

func TestDashboardAndExports(t *testing.T) {
	predictor := new(mockPredictor)
	predictor.On("Predict", mock.Anything, mock.Anything).Return(probs(0.9, 0.05, 0.03, 0.02), nil).Once()
	predictor.On("Predict", mock.Anything, mock.Anything).Return(probs(0.1, 0.5, 0.2, 0.2), nil).Once()
	predictor.On("Predict", mock.Anything, mock.Anything).Return(probs(0.1, 0.1, 0.7, 0.1), nil).Once()

	svc := newService(t, predictor, DefaultAnalysisOptions())
	sess := newSession()
	_, err := svc.Upload(context.Background(), sess, "slide.png", pngBytes(t))
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, err := svc.Predict(context.Background(), sess, ki67Form())
		require.NoError(t, err)
	}

	view := svc.Dashboard(sess, 0)
	assert.Equal(t, 3, view.Summary.Count)
	assert.InDelta(t, 0.7, view.Summary.MeanConfidence, 1e-6)
	require.NotNil(t, view.Latest)
	assert.Equal(t, subtype.MBC, view.Latest.Label)
	assert.True(t, view.HasHeatmap)
	assert.Equal(t, "mock", view.Predictor)

	windowed := svc.Dashboard(sess, 2)
	assert.Len(t, windowed.Events, 2)
	assert.InDelta(t, 0.6, windowed.Summary.MeanConfidence, 1e-6)

	profile, err := svc.Profile(sess, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, profile.Confidence.Count)
	assert.InDelta(t, 0.7, profile.Confidence.Median, 1e-6)
	assert.Equal(t, 0, profile.LowConfidence)
	assert.Len(t, profile.ByLabel, 3)

	doc, err := svc.Report(sess, sess.LastForm())
	require.NoError(t, err)
	assert.Equal(t, subtype.MBC, doc.TopPrediction)

	var pdf bytes.Buffer
	stats, err := svc.ExportReportPDF(&pdf, sess)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Pages)
	assert.True(t, stats.HeatmapDrawn)

	var csv bytes.Buffer
	require.NoError(t, svc.ExportHistoryCSV(&csv, sess, 0))
	assert.Contains(t, csv.String(), "predicted_label")

	var bundle bytes.Buffer
	entries, err := svc.ExportBundle(context.Background(), &bundle, sess)
	require.NoError(t, err)
	assert.Len(t, entries, 5)
}
