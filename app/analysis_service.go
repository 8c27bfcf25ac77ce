package app

import (
	"context"
	"io"
	"time"

	"biomark/domain/biomarker"
	"biomark/domain/patient"
	"biomark/domain/prediction"
	"biomark/domain/subtype"
	"biomark/internal"
	"biomark/internal/charts"
	"biomark/internal/errors"
	"biomark/internal/events"
	"biomark/internal/imaging"
	"biomark/internal/profiling"
	"biomark/internal/report"
	"biomark/models"
	"biomark/ports"
)

// AnalysisOptions tunes the analysis workflow
type AnalysisOptions struct {
	MaxUploadBytes   int64
	MaxUploadPixels  int64
	SimulatedLatency time.Duration
	PDFMaxPages      int
	Heatmap          imaging.HeatmapOptions
}

// DefaultAnalysisOptions returns the options used when nothing is configured
func DefaultAnalysisOptions() AnalysisOptions {
	return AnalysisOptions{
		MaxUploadBytes:  20 << 20,
		MaxUploadPixels: imaging.DefaultMaxPixels,
		PDFMaxPages:     3,
		Heatmap:         imaging.DefaultHeatmapOptions(),
	}
}

// AnalysisService orchestrates upload, prediction, dashboard and export for a session
type AnalysisService struct {
	predictor ports.Predictor
	rngPort   ports.RNGPort
	logger    *internal.Logger
	opts      AnalysisOptions
	analyzer  *profiling.DistributionAnalyzer
	hub       *events.Hub
	now       func() time.Time
}

// PredictionResult is returned after a successful prediction
type PredictionResult struct {
	Event   prediction.Event   `json:"event"`
	Subtype subtype.Info       `json:"subtype"`
	Summary prediction.Summary `json:"summary"`
	Charts  charts.Set         `json:"charts"`
}

// DashboardView is everything the dashboard page renders
type DashboardView struct {
	Status      models.SessionStatus  `json:"status"`
	Latest      *prediction.Event     `json:"latest,omitempty"`
	LatestInfo  *subtype.Info         `json:"latest_subtype,omitempty"`
	Form        models.AnalysisForm   `json:"form"`
	Summary     prediction.Summary    `json:"summary"`
	Events      []prediction.Event    `json:"events"`
	Charts      charts.Set            `json:"charts"`
	Window      int                   `json:"window"`
	Predictor   string                `json:"predictor"`
	Catalog     []subtype.Info        `json:"catalog"`
	Markers     []biomarker.Marker    `json:"markers"`
	Intensities []biomarker.Intensity `json:"intensities"`
	Patterns    []biomarker.Pattern   `json:"patterns"`
	Nodal       []patient.NodalStatus `json:"nodal_statuses"`
	HasHeatmap  bool                  `json:"has_heatmap"`
}

// NewAnalysisService creates an analysis service
func NewAnalysisService(predictor ports.Predictor, rngPort ports.RNGPort, logger *internal.Logger, opts AnalysisOptions) *AnalysisService {
	if logger == nil {
		logger = internal.NewDefaultLogger()
	}
	if opts.Heatmap.Size == 0 {
		opts.Heatmap = imaging.DefaultHeatmapOptions()
	}
	return &AnalysisService{
		predictor: predictor,
		rngPort:   rngPort,
		logger:    logger,
		opts:      opts,
		analyzer:  profiling.NewDistributionAnalyzer(),
		hub:       events.NewHub(logger),
		now:       time.Now,
	}
}

// WithClock replaces the time source, for tests
func (s *AnalysisService) WithClock(now func() time.Time) *AnalysisService {
	s.now = now
	return s
}

// Events returns the hub new predictions are published on
func (s *AnalysisService) Events() *events.Hub {
	return s.hub
}

// PredictorName reports which backend produces predictions
func (s *AnalysisService) PredictorName() string {
	return s.predictor.Name()
}

// Upload decodes an image and makes it the session's current image.
// A rejected upload leaves the previous image in place.
func (s *AnalysisService) Upload(ctx context.Context, sess *models.Session, filename string, data []byte) (*imaging.Upload, error) {
	release := sess.BeginAction()
	defer release()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	upload, err := imaging.Decode(filename, data, imaging.Limits{MaxBytes: s.opts.MaxUploadBytes, MaxPixels: s.opts.MaxUploadPixels})
	if err != nil {
		s.logger.Warn("[Analysis] session %s rejected upload %q: %v", sess.ID, filename, err)
		return nil, errors.Wrap(err, "image upload rejected")
	}
	sess.SetImage(upload)
	s.logger.Info("[Analysis] session %s uploaded %s (%dx%d %s, %d bytes)", sess.ID, upload.Filename, upload.Width, upload.Height, upload.Format, upload.Size)
	return upload, nil
}

// ClearImage drops the session's current image
func (s *AnalysisService) ClearImage(sess *models.Session) {
	release := sess.BeginAction()
	defer release()
	sess.ClearImage()
}

// Predict runs the predictor on the session's image and the submitted form,
// records exactly one event and renders the heatmap. Without an image it fails
// with NO_IMAGE and the session is left unchanged.
func (s *AnalysisService) Predict(ctx context.Context, sess *models.Session, form models.AnalysisForm) (*PredictionResult, error) {
	release := sess.BeginAction()
	defer release()

	upload := sess.Image()
	if upload == nil {
		return nil, errors.NoImage()
	}
	if err := form.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid analysis form")
	}

	if err := s.simulateLatency(ctx); err != nil {
		return nil, err
	}

	start := s.now()
	probs, err := s.predictor.Predict(ctx, ports.PredictionRequest{
		Image:      upload.Image,
		ImageData:  upload.Data,
		Biomarkers: form.Biomarkers,
		Patient:    form.Patient,
	})
	if err != nil {
		s.logger.Error("[Analysis] %s predictor failed for session %s: %v", s.predictor.Name(), sess.ID, err)
		if errors.IsAppError(err) {
			return nil, err
		}
		return nil, errors.ExternalServiceError(s.predictor.Name(), err)
	}

	event, err := prediction.NewEvent(probs, prediction.Input{
		Biomarkers: form.Biomarkers,
		Patient:    form.Patient,
		Image:      upload.Meta(),
		Predictor:  s.predictor.Name(),
	}, s.now())
	if err != nil {
		return nil, errors.Wrapf(err, "%s predictor returned an invalid result", s.predictor.Name())
	}

	heatmap, err := imaging.EncodePNG(imaging.Heatmap(s.rngPort.Stream("heatmap"), upload.Image, s.opts.Heatmap))
	if err != nil {
		return nil, errors.Wrap(err, "render heatmap")
	}

	summary, err := sess.Record(event, form, heatmap)
	if err != nil {
		return nil, errors.Wrap(err, "record prediction")
	}

	s.logger.Info("[Analysis] session %s predicted %s (%.1f%%) via %s in %v", sess.ID, event.Label, event.Confidence*100, event.Predictor, s.now().Sub(start))
	s.logger.Debug("[Analysis] session %s history=%d mean_confidence=%.4f", sess.ID, summary.Count, summary.MeanConfidence)
	s.hub.PublishPrediction(sess.ID.String(), event)

	return &PredictionResult{
		Event:   event,
		Subtype: subtype.Describe(event.Label),
		Summary: summary,
		Charts:  charts.Build(&event, sess.Events(0)),
	}, nil
}

func (s *AnalysisService) simulateLatency(ctx context.Context) error {
	if s.opts.SimulatedLatency <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(s.opts.SimulatedLatency)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// LastPrediction returns the most recent prediction
func (s *AnalysisService) LastPrediction(sess *models.Session) (prediction.Event, error) {
	e, ok := sess.LastPrediction()
	if !ok {
		return prediction.Event{}, errors.NoPrediction()
	}
	return e, nil
}

// History returns the last window events, all of them when window <= 0
func (s *AnalysisService) History(sess *models.Session, window int) []prediction.Event {
	return sess.Events(window)
}

// Summary aggregates the last window events
func (s *AnalysisService) Summary(sess *models.Session, window int) prediction.Summary {
	return sess.Summarize(window)
}

// Profile describes the shape of the confidence distribution over the last
// window events
func (s *AnalysisService) Profile(sess *models.Session, window int) (profiling.Profile, error) {
	profile, err := s.analyzer.ProfileEvents(sess.Events(window))
	if err != nil {
		return profile, errors.Wrap(err, "profile confidence")
	}
	return profile, nil
}

// Dashboard builds the dashboard view-model over the last window events
func (s *AnalysisService) Dashboard(sess *models.Session, window int) DashboardView {
	events := sess.Events(window)
	view := DashboardView{
		Status:      sess.GetStatus(),
		Form:        sess.LastForm(),
		Summary:     prediction.Summarize(events),
		Events:      events,
		Window:      window,
		Predictor:   s.predictor.Name(),
		Catalog:     subtype.Catalog(),
		Markers:     biomarker.Markers,
		Intensities: biomarker.Intensities,
		Patterns:    biomarker.Patterns,
		Nodal:       patient.NodalStatuses,
		HasHeatmap:  len(sess.Heatmap()) > 0,
	}
	if latest, ok := sess.LastPrediction(); ok {
		info := subtype.Describe(latest.Label)
		view.Latest = &latest
		view.LatestInfo = &info
	}
	view.Charts = charts.Build(view.Latest, events)
	return view
}

// Charts returns the chart set for the session
func (s *AnalysisService) Charts(sess *models.Session, window int) charts.Set {
	var latest *prediction.Event
	if e, ok := sess.LastPrediction(); ok {
		latest = &e
	}
	return charts.Build(latest, sess.Events(window))
}

// Heatmap returns the PNG rendered for the latest prediction
func (s *AnalysisService) Heatmap(sess *models.Session) ([]byte, error) {
	png := sess.Heatmap()
	if len(png) == 0 {
		return nil, errors.NoPrediction()
	}
	return png, nil
}

// Report assembles the report for the latest prediction. form supplements
// what the prediction recorded.
func (s *AnalysisService) Report(sess *models.Session, form models.AnalysisForm) (report.Document, error) {
	e, ok := sess.LastPrediction()
	if !ok {
		return report.Document{}, errors.NoPrediction()
	}
	return report.Assemble(&e, form)
}

// ExportHistoryCSV writes the last window events as CSV
func (s *AnalysisService) ExportHistoryCSV(w io.Writer, sess *models.Session, window int) error {
	return report.WriteHistoryCSV(w, sess.Events(window))
}

// ExportHistoryXLSX writes the last window events as a workbook
func (s *AnalysisService) ExportHistoryXLSX(w io.Writer, sess *models.Session, window int) error {
	return report.WriteHistoryXLSX(w, sess.Events(window))
}

// ExportReportPDF renders the latest report as a PDF
func (s *AnalysisService) ExportReportPDF(w io.Writer, sess *models.Session) (report.PDFStats, error) {
	doc, err := s.Report(sess, sess.LastForm())
	if err != nil {
		return report.PDFStats{}, err
	}
	stats, err := report.WriteReportPDF(w, doc, s.pdfOptions(sess))
	if err != nil {
		return stats, errors.Wrap(err, "render report pdf")
	}
	if stats.Omitted > 0 {
		s.logger.Warn("[Analysis] session %s report truncated: %d fields omitted after %d pages", sess.ID, stats.Omitted, stats.Pages)
	}
	return stats, nil
}

// ExportBundle writes every export for the session into one zip archive
func (s *AnalysisService) ExportBundle(ctx context.Context, w io.Writer, sess *models.Session) ([]report.BundleEntry, error) {
	doc, err := s.Report(sess, sess.LastForm())
	if err != nil {
		return nil, err
	}
	entries, err := report.WriteBundle(ctx, w, doc, sess.Events(0), s.pdfOptions(sess))
	if err != nil {
		return nil, errors.Wrap(err, "build export bundle")
	}
	s.logger.Debug("[Analysis] session %s exported bundle with %d files", sess.ID, len(entries))
	return entries, nil
}

func (s *AnalysisService) pdfOptions(sess *models.Session) report.PDFOptions {
	return report.PDFOptions{MaxPages: s.opts.PDFMaxPages, Heatmap: sess.Heatmap()}
}
