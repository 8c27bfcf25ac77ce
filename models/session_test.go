package models

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"biomark/domain/biomarker"
	"biomark/domain/core"
	"biomark/domain/patient"
	"biomark/domain/prediction"
	"biomark/domain/subtype"
	"biomark/internal/imaging"
)

var epoch = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

func newEvent(t *testing.T, top subtype.Label) prediction.Event {
	t.Helper()
	probs := subtype.Probabilities{subtype.TNBC: 0.1, subtype.IDC: 0.1, subtype.MBC: 0.1, subtype.ILC: 0.1}
	probs[top] = 0.7
	e, err := prediction.NewEvent(probs, prediction.Input{Predictor: "test"}, epoch)
	require.NoError(t, err)
	return e
}

func ki67Form() AnalysisForm {
	return AnalysisForm{
		Biomarkers: biomarker.Readings{
			biomarker.Ki67: {Marker: biomarker.Ki67, Intensity: biomarker.Strong, Percentage: biomarker.Percent(80)},
		},
		Patient: patient.Attributes{Age: 54},
	}
}

func TestNewSessionIsEmpty(t *testing.T) {
	s := NewSession(core.NewSessionID(), 0, epoch)

	status := s.GetStatus()
	assert.False(t, status.HasImage)
	assert.False(t, status.HasPrediction)
	assert.Equal(t, 0, status.HistoryCount)
	assert.Equal(t, epoch, status.LastSeen)

	_, ok := s.LastPrediction()
	assert.False(t, ok)
	assert.Empty(t, s.Events(0))
}

func TestSessionImageLifecycle(t *testing.T) {
	s := NewSession(core.NewSessionID(), 0, epoch)
	s.SetImage(&imaging.Upload{Filename: "a.png", Format: "png", Width: 4, Height: 4})
	require.NotNil(t, s.Image())
	assert.Equal(t, "a.png", s.GetStatus().Image.Filename)

	s.SetImage(&imaging.Upload{Filename: "b.png", Format: "png"})
	assert.Equal(t, "b.png", s.Image().Filename)

	s.ClearImage()
	assert.Nil(t, s.Image())
	assert.Nil(t, s.GetStatus().Image)
}

func TestRecordUpdatesLatestAndHistory(t *testing.T) {
	s := NewSession(core.NewSessionID(), 0, epoch)
	form := ki67Form()

	summary, err := s.Record(newEvent(t, subtype.IDC), form, []byte("png"))
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Count)

	second := newEvent(t, subtype.ILC)
	summary, err = s.Record(second, AnalysisForm{}, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Count)

	last, ok := s.LastPrediction()
	require.True(t, ok)
	assert.Equal(t, second.ID, last.ID)
	assert.Empty(t, s.LastForm().Biomarkers)
	assert.Nil(t, s.Heatmap())
	assert.Equal(t, 2, s.HistoryLen())
	assert.Len(t, s.Events(1), 1)
	assert.Equal(t, second.ID, s.Events(1)[0].ID)
}

func TestRecordCopiesForm(t *testing.T) {
	s := NewSession(core.NewSessionID(), 0, epoch)
	form := ki67Form()
	_, err := s.Record(newEvent(t, subtype.IDC), form, nil)
	require.NoError(t, err)

	delete(form.Biomarkers, biomarker.Ki67)
	assert.Contains(t, s.LastForm().Biomarkers, biomarker.Ki67)
}

func TestRecordRejectsInvalidEvent(t *testing.T) {
	s := NewSession(core.NewSessionID(), 0, epoch)
	_, err := s.Record(prediction.Event{}, AnalysisForm{}, nil)
	assert.Error(t, err)
	assert.Equal(t, 0, s.HistoryLen())
	_, ok := s.LastPrediction()
	assert.False(t, ok)
}

func TestHistoryCap(t *testing.T) {
	s := NewSession(core.NewSessionID(), 2, epoch)
	for _, l := range []subtype.Label{subtype.TNBC, subtype.IDC, subtype.MBC} {
		_, err := s.Record(newEvent(t, l), AnalysisForm{}, nil)
		require.NoError(t, err)
	}
	status := s.GetStatus()
	assert.Equal(t, 2, status.HistoryCount)
	assert.Equal(t, 2, status.HistoryLimit)
	assert.Equal(t, subtype.IDC, s.Events(0)[0].Label)
}

func TestTouchIsMonotonic(t *testing.T) {
	s := NewSession(core.NewSessionID(), 0, epoch)
	s.Touch(epoch.Add(time.Minute))
	s.Touch(epoch)
	assert.Equal(t, epoch.Add(time.Minute), s.LastSeen())
}

func TestBeginActionSerializes(t *testing.T) {
	s := NewSession(core.NewSessionID(), 0, epoch)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release := s.BeginAction()
			defer release()
			_, err := s.Record(newEvent(t, subtype.MBC), AnalysisForm{}, nil)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, 20, s.HistoryLen())
}

func TestAnalysisFormValidate(t *testing.T) {
	tests := []struct {
		name    string
		form    AnalysisForm
		wantErr bool
	}{
		{name: "empty form", form: AnalysisForm{}},
		{name: "valid reading", form: ki67Form()},
		{
			name: "percentage out of range",
			form: AnalysisForm{Biomarkers: biomarker.Readings{
				biomarker.HER2: {Marker: biomarker.HER2, Intensity: biomarker.Weak, Percentage: biomarker.Percent(120)},
			}},
			wantErr: true,
		},
		{
			name:    "age out of range",
			form:    AnalysisForm{Patient: patient.Attributes{Age: 140}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.form.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestAnalysisFormPrimary(t *testing.T) {
	_, ok := AnalysisForm{}.Primary()
	assert.False(t, ok)

	form := AnalysisForm{Biomarkers: biomarker.Readings{
		biomarker.ER:   {Marker: biomarker.ER, Intensity: biomarker.Moderate},
		biomarker.Ki67: {Marker: biomarker.Ki67, Intensity: biomarker.Strong},
	}}
	primary, ok := form.Primary()
	require.True(t, ok)
	assert.Equal(t, biomarker.Ki67, primary.Marker)
}
