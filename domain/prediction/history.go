package prediction

import (
	"github.com/montanaflynn/stats"

	"biomark/domain/core"
	"biomark/domain/subtype"
)

// Summary holds aggregate statistics over a sequence of events. It is always
// computed from the events, never edited in place.
type Summary struct {
	Count             int                   `json:"count"`
	MeanConfidence    float64               `json:"mean_confidence"`
	StdDevConfidence  float64               `json:"stddev_confidence"`
	MinConfidence     float64               `json:"min_confidence"`
	MaxConfidence     float64               `json:"max_confidence"`
	ModalLabel        subtype.Label         `json:"modal_label,omitempty"`
	LabelCounts       map[subtype.Label]int `json:"label_counts"`
	MeanProbabilities subtype.Probabilities `json:"mean_probabilities,omitempty"`
	FirstAt           *core.Timestamp       `json:"first_at,omitempty"`
	LastAt            *core.Timestamp       `json:"last_at,omitempty"`
}

// Clone returns a copy that shares no maps or pointers with s
func (s Summary) Clone() Summary {
	out := s
	if s.LabelCounts != nil {
		out.LabelCounts = make(map[subtype.Label]int, len(s.LabelCounts))
		for k, v := range s.LabelCounts {
			out.LabelCounts[k] = v
		}
	}
	out.MeanProbabilities = s.MeanProbabilities.Clone()
	if s.FirstAt != nil {
		first := *s.FirstAt
		out.FirstAt = &first
	}
	if s.LastAt != nil {
		last := *s.LastAt
		out.LastAt = &last
	}
	return out
}

// History is a session's ordered, append-only list of prediction events.
// Insertion order is chronological order. It is not safe for concurrent use;
// the owning session serializes access.
type History struct {
	events    []Event
	summary   Summary
	maxEvents int
}

// NewHistory creates an empty history. maxEvents <= 0 keeps every event;
// otherwise the oldest events are evicted once the cap is exceeded.
func NewHistory(maxEvents int) *History {
	if maxEvents < 0 {
		maxEvents = 0
	}
	return &History{
		summary:   Summarize(nil),
		maxEvents: maxEvents,
	}
}

// Record appends an event and recomputes the summary. Malformed events are
// rejected without touching the history.
func (h *History) Record(e Event) (Summary, error) {
	if err := e.Validate(); err != nil {
		return h.summary.Clone(), err
	}
	h.events = append(h.events, e.Clone())
	if h.maxEvents > 0 && len(h.events) > h.maxEvents {
		h.events = append([]Event(nil), h.events[len(h.events)-h.maxEvents:]...)
	}
	h.summary = Summarize(h.events)
	return h.summary.Clone(), nil
}

// Summary returns the summary over every retained event
func (h *History) Summary() Summary {
	return h.summary.Clone()
}

// Summarize aggregates the most recent window events. A window <= 0 or
// larger than the history covers every event.
func (h *History) Summarize(window int) Summary {
	if window <= 0 || window >= len(h.events) {
		return h.summary.Clone()
	}
	return Summarize(h.events[len(h.events)-window:])
}

// Len returns the number of retained events
func (h *History) Len() int {
	return len(h.events)
}

// MaxEvents returns the retention cap, 0 meaning unbounded
func (h *History) MaxEvents() int {
	return h.maxEvents
}

// Events returns copies of every event in chronological order
func (h *History) Events() []Event {
	return h.Recent(0)
}

// Recent returns copies of the last n events in chronological order; n <= 0
// returns all of them.
func (h *History) Recent(n int) []Event {
	start := 0
	if n > 0 && n < len(h.events) {
		start = len(h.events) - n
	}
	out := make([]Event, 0, len(h.events)-start)
	for _, e := range h.events[start:] {
		out = append(out, e.Clone())
	}
	return out
}

// Find returns a copy of the event with the given ID
func (h *History) Find(id core.EventID) (Event, error) {
	for _, e := range h.events {
		if e.ID == id {
			return e.Clone(), nil
		}
	}
	return Event{}, core.NewNotFoundError("prediction event", id.String())
}

// Last returns a copy of the most recent event
func (h *History) Last() (Event, bool) {
	if len(h.events) == 0 {
		return Event{}, false
	}
	return h.events[len(h.events)-1].Clone(), true
}

// Summarize computes a summary from scratch. The modal label is the first
// label to reach the maximum count when scanning in chronological order.
func Summarize(events []Event) Summary {
	s := Summary{
		Count:       len(events),
		LabelCounts: make(map[subtype.Label]int, len(subtype.Labels)),
	}
	for _, l := range subtype.Labels {
		s.LabelCounts[l] = 0
	}
	if len(events) == 0 {
		return s
	}

	confidences := make([]float64, len(events))
	perLabel := make(map[subtype.Label][]float64, len(subtype.Labels))
	best := 0
	for i, e := range events {
		confidences[i] = e.Confidence
		s.LabelCounts[e.Label]++
		if c := s.LabelCounts[e.Label]; c > best {
			best = c
			s.ModalLabel = e.Label
		}
		for _, l := range subtype.Labels {
			perLabel[l] = append(perLabel[l], e.Probabilities[l])
		}
	}

	// Inputs are non-empty here, which is the only error case of these helpers.
	s.MeanConfidence, _ = stats.Mean(confidences)
	s.StdDevConfidence, _ = stats.StandardDeviation(confidences)
	s.MinConfidence, _ = stats.Min(confidences)
	s.MaxConfidence, _ = stats.Max(confidences)

	s.MeanProbabilities = make(subtype.Probabilities, len(subtype.Labels))
	for _, l := range subtype.Labels {
		s.MeanProbabilities[l], _ = stats.Mean(perLabel[l])
	}

	first := events[0].Timestamp
	last := events[len(events)-1].Timestamp
	s.FirstAt, s.LastAt = &first, &last
	return s
}
