package report

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"biomark/domain/prediction"
	"biomark/domain/subtype"
)

const (
	historySheet = "History"
	summarySheet = "Summary"
)

// WriteHistoryXLSX writes the history rows to a "History" sheet and the
// aggregate statistics to a "Summary" sheet
func WriteHistoryXLSX(w io.Writer, events []prediction.Event) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", historySheet); err != nil {
		return err
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}

	// Header row
	for i, h := range HistoryHeader {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(historySheet, cell, h); err != nil {
			return err
		}
	}
	last, _ := excelize.CoordinatesToCellName(len(HistoryHeader), 1)
	if err := f.SetCellStyle(historySheet, "A1", last, bold); err != nil {
		return err
	}

	// Data rows; numeric columns stay numeric
	for r, e := range events {
		rowIdx := r + 2
		for c, v := range xlsxRow(e) {
			cell, _ := excelize.CoordinatesToCellName(c+1, rowIdx)
			if err := f.SetCellValue(historySheet, cell, v); err != nil {
				return err
			}
		}
	}

	if _, err := f.NewSheet(summarySheet); err != nil {
		return err
	}
	for r, kv := range summaryRows(prediction.Summarize(events)) {
		for c, v := range kv {
			cell, _ := excelize.CoordinatesToCellName(c+1, r+1)
			if err := f.SetCellValue(summarySheet, cell, v); err != nil {
				return err
			}
		}
	}
	if err := f.SetCellStyle(summarySheet, "A1", "B1", bold); err != nil {
		return err
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

// ReadHistoryXLSX parses the "History" sheet of a WriteHistoryXLSX export
func ReadHistoryXLSX(r io.Reader) ([]HistoryRow, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	rows, err := f.GetRows(historySheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("read %s sheet: %w", historySheet, err)
	}
	return parseHistoryRecords("xlsx", rows)
}

func xlsxRow(e prediction.Event) []interface{} {
	row := []interface{}{
		e.ID.String(),
		e.Timestamp.String(),
		string(e.Label),
		e.Confidence,
	}
	for _, l := range subtype.Labels {
		row = append(row, e.Probabilities[l])
	}
	return append(row, readingsText(e.Biomarkers), patientText(e), e.Image.Filename, e.Predictor)
}

func summaryRows(s prediction.Summary) [][]interface{} {
	rows := [][]interface{}{
		{"Metric", "Value"},
		{"Predictions", s.Count},
		{"Mean Confidence", s.MeanConfidence},
		{"Std Dev Confidence", s.StdDevConfidence},
		{"Min Confidence", s.MinConfidence},
		{"Max Confidence", s.MaxConfidence},
		{"Modal Label", string(s.ModalLabel)},
	}
	for _, l := range subtype.Labels {
		rows = append(rows, []interface{}{string(l) + " Count", s.LabelCounts[l]})
	}
	for _, l := range subtype.Labels {
		rows = append(rows, []interface{}{"Mean " + string(l) + " Probability", s.MeanProbabilities[l]})
	}
	if s.FirstAt != nil && s.LastAt != nil {
		rows = append(rows,
			[]interface{}{"First Prediction", s.FirstAt.Display()},
			[]interface{}{"Last Prediction", s.LastAt.Display()},
		)
	}
	return rows
}
