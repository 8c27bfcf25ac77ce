package models

import (
	"sync"
	"time"

	"biomark/domain/core"
	"biomark/domain/prediction"
	"biomark/internal/imaging"
)

// Session is the state of one user connection: the current upload, the most
// recent prediction and the prediction history. It lives in memory only and
// is discarded when the session ends.
type Session struct {
	ID        core.SessionID
	CreatedAt time.Time

	action sync.Mutex
	mu     sync.RWMutex

	lastSeen time.Time
	image    *imaging.Upload
	last     *prediction.Event
	form     AnalysisForm
	heatmap  []byte
	history  *prediction.History
}

// NewSession creates an empty session. maxEvents caps the retained history,
// 0 meaning unbounded.
func NewSession(id core.SessionID, maxEvents int, now time.Time) *Session {
	return &Session{
		ID:        id,
		CreatedAt: now,
		lastSeen:  now,
		history:   prediction.NewHistory(maxEvents),
	}
}

// BeginAction serializes user actions on this session. The returned function
// releases the action slot.
func (s *Session) BeginAction() func() {
	s.action.Lock()
	return s.action.Unlock
}

// Touch records activity
func (s *Session) Touch(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if now.After(s.lastSeen) {
		s.lastSeen = now
	}
}

// LastSeen returns the time of the last activity
func (s *Session) LastSeen() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastSeen
}

// SetImage replaces the current upload wholesale
func (s *Session) SetImage(u *imaging.Upload) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.image = u
}

// ClearImage drops the current upload
func (s *Session) ClearImage() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.image = nil
}

// Image returns the current upload or nil
func (s *Session) Image() *imaging.Upload {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.image
}

// Record appends a prediction to the history and makes it the latest one,
// together with the form it was requested with and its heatmap.
func (s *Session) Record(e prediction.Event, form AnalysisForm, heatmap []byte) (prediction.Summary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	summary, err := s.history.Record(e)
	if err != nil {
		return summary, err
	}
	latest := e.Clone()
	s.last = &latest
	s.form = form.Clone()
	s.heatmap = heatmap
	return summary, nil
}

// LastPrediction returns a copy of the most recent prediction
func (s *Session) LastPrediction() (prediction.Event, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.last == nil {
		return prediction.Event{}, false
	}
	return s.last.Clone(), true
}

// LastForm returns the form submitted with the most recent prediction
func (s *Session) LastForm() AnalysisForm {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.form.Clone()
}

// Heatmap returns the PNG rendered for the most recent prediction
func (s *Session) Heatmap() []byte {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.heatmap
}

// Events returns the last window events, or all of them when window <= 0
func (s *Session) Events(window int) []prediction.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.history.Recent(window)
}

// Summarize aggregates the last window events
func (s *Session) Summarize(window int) prediction.Summary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.history.Summarize(window)
}

// HistoryLen returns the number of retained events
func (s *Session) HistoryLen() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.history.Len()
}

// SessionStatus is a point-in-time view of a session
type SessionStatus struct {
	ID            string                `json:"id"`
	CreatedAt     time.Time             `json:"created_at"`
	LastSeen      time.Time             `json:"last_seen"`
	HasImage      bool                  `json:"has_image"`
	Image         *prediction.ImageMeta `json:"image,omitempty"`
	HasPrediction bool                  `json:"has_prediction"`
	HistoryCount  int                   `json:"history_count"`
	HistoryLimit  int                   `json:"history_limit"`
}

// GetStatus returns a snapshot of the current session status
func (s *Session) GetStatus() SessionStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	status := SessionStatus{
		ID:            s.ID.String(),
		CreatedAt:     s.CreatedAt,
		LastSeen:      s.lastSeen,
		HasImage:      s.image != nil,
		HasPrediction: s.last != nil,
		HistoryCount:  s.history.Len(),
		HistoryLimit:  s.history.MaxEvents(),
	}
	if s.image != nil {
		meta := s.image.Meta()
		status.Image = &meta
	}
	return status
}
