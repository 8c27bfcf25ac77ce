package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"biomark/domain/biomarker"
	"biomark/domain/core"
	"biomark/domain/prediction"
	"biomark/domain/subtype"
)

// HistoryHeader is the fixed column layout of the tabular history export
var HistoryHeader = func() []string {
	h := []string{"event_id", "timestamp", "predicted_label", "confidence"}
	for _, l := range subtype.Labels {
		h = append(h, "prob_"+string(l))
	}
	return append(h, "biomarkers", "patient", "image", "predictor")
}()

// HistoryRow is one parsed row of the tabular export
type HistoryRow struct {
	EventID       core.EventID
	Timestamp     core.Timestamp
	Label         subtype.Label
	Confidence    float64
	Probabilities subtype.Probabilities
	Biomarkers    string
	Patient       string
	Image         string
	Predictor     string
}

// formatFloat uses the shortest representation that parses back to the same value
func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// HistoryRecord renders one event as a row of HistoryHeader columns
func HistoryRecord(e prediction.Event) []string {
	row := []string{
		e.ID.String(),
		e.Timestamp.String(),
		string(e.Label),
		formatFloat(e.Confidence),
	}
	for _, l := range subtype.Labels {
		row = append(row, formatFloat(e.Probabilities[l]))
	}
	return append(row,
		readingsText(e.Biomarkers),
		patientText(e),
		e.Image.Filename,
		e.Predictor,
	)
}

// WriteHistoryCSV writes one row per event, oldest first
func WriteHistoryCSV(w io.Writer, events []prediction.Event) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(HistoryHeader); err != nil {
		return err
	}
	for _, e := range events {
		if err := cw.Write(HistoryRecord(e)); err != nil {
			return fmt.Errorf("write event %s: %w", e.ID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadHistoryCSV parses a WriteHistoryCSV export
func ReadHistoryCSV(r io.Reader) ([]HistoryRow, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(HistoryHeader)
	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read history csv: %w", err)
	}
	return parseHistoryRecords("csv", records)
}

// parseHistoryRecords checks the header row and parses the rest
func parseHistoryRecords(source string, records [][]string) ([]HistoryRow, error) {
	if len(records) == 0 {
		return nil, core.NewValidationError(source, "missing header")
	}
	if len(records[0]) < len(HistoryHeader) {
		return nil, core.NewValidationError(source, fmt.Sprintf("header has %d columns, expected %d", len(records[0]), len(HistoryHeader)))
	}
	for i, h := range HistoryHeader {
		if records[0][i] != h {
			return nil, core.NewValidationError(source, fmt.Sprintf("column %d is %q, expected %q", i+1, records[0][i], h))
		}
	}

	rows := make([]HistoryRow, 0, len(records)-1)
	for n, rec := range records[1:] {
		// spreadsheet readers trim trailing empty cells
		for len(rec) < len(HistoryHeader) {
			rec = append(rec, "")
		}
		row, err := parseHistoryRecord(rec)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", n+2, err)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func parseHistoryRecord(rec []string) (HistoryRow, error) {
	id, err := core.ParseEventID(rec[0])
	if err != nil {
		return HistoryRow{}, err
	}
	ts, err := parseRowTimestamp(rec[1])
	if err != nil {
		return HistoryRow{}, err
	}
	label, err := subtype.ParseLabel(rec[2])
	if err != nil {
		return HistoryRow{}, err
	}
	confidence, err := strconv.ParseFloat(rec[3], 64)
	if err != nil {
		return HistoryRow{}, core.NewValidationError("confidence", err.Error())
	}
	values := make([]float64, len(subtype.Labels))
	for i := range subtype.Labels {
		if values[i], err = strconv.ParseFloat(rec[4+i], 64); err != nil {
			return HistoryRow{}, core.NewValidationError("probability", err.Error())
		}
	}
	probs, err := subtype.FromSlice(values)
	if err != nil {
		return HistoryRow{}, err
	}
	rest := rec[4+len(subtype.Labels):]
	return HistoryRow{
		EventID:       id,
		Timestamp:     ts,
		Label:         label,
		Confidence:    confidence,
		Probabilities: probs,
		Biomarkers:    rest[0],
		Patient:       rest[1],
		Image:         rest[2],
		Predictor:     rest[3],
	}, nil
}

// parseRowTimestamp accepts RFC3339 and the report display layout (read as UTC)
func parseRowTimestamp(s string) (core.Timestamp, error) {
	if ts, err := core.ParseTimestamp(s); err == nil {
		return ts, nil
	}
	tm, err := time.ParseInLocation(core.DisplayLayout, s, time.UTC)
	if err != nil {
		return core.Timestamp{}, core.NewValidationError("timestamp", fmt.Sprintf("unrecognized %q", s))
	}
	return core.NewTimestamp(tm), nil
}

// readingsText renders readings as "Ki-67 Strong (3+) Nuclear 80%; HER2 ..."
func readingsText(rs biomarker.Readings) string {
	parts := make([]string, 0, len(rs))
	for _, r := range rs.Sorted() {
		p := []string{string(r.Marker), r.Intensity.String()}
		if r.Pattern != "" {
			p = append(p, string(r.Pattern))
		}
		if r.Percentage != nil {
			p = append(p, r.PercentageText())
		}
		parts = append(parts, strings.Join(p, " "))
	}
	return strings.Join(parts, "; ")
}

func patientText(e prediction.Event) string {
	fields := e.Patient.Fields()
	parts := make([]string, len(fields))
	for i, kv := range fields {
		parts[i] = kv[0] + ": " + kv[1]
	}
	return strings.Join(parts, "; ")
}
