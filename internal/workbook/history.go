// Package workbook reads question banks from and writes test history to
// Excel workbooks.
package workbook

import (
	"fmt"
	"time"

	"github.com/stemsi/exprep-backend/internal/model"
	"github.com/xuri/excelize/v2"
)

const historySheet = "History"

var historyHeaders = []string{
	"Session ID", "Exam Code", "Exam Name", "Status", "Started At", "Submitted At",
	"Time Limit (s)", "Questions", "Answered", "Score", "Passed",
}

// ExportHistory renders history entries as an xlsx workbook.
func ExportHistory(entries []model.TestHistoryEntry) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), historySheet); err != nil {
		return nil, fmt.Errorf("name sheet: %w", err)
	}

	if err := writeRow(f, historySheet, 1, toAny(historyHeaders)); err != nil {
		return nil, err
	}
	for i, e := range entries {
		if err := writeRow(f, historySheet, i+2, historyRow(e)); err != nil {
			return nil, err
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func historyRow(e model.TestHistoryEntry) []any {
	row := []any{
		e.ID.String(), e.ExamCode, e.ExamName, string(e.Status),
		e.StartedAt.UTC().Format(time.RFC3339), "",
		e.TimeLimitSeconds, e.TotalQuestions, e.AnsweredCount, "", "",
	}
	if e.SubmittedAt != nil {
		row[5] = e.SubmittedAt.UTC().Format(time.RFC3339)
	}
	if e.Score != nil {
		row[9] = *e.Score
	}
	if e.Passed != nil {
		row[10] = *e.Passed
	}
	return row
}

func writeRow(f *excelize.File, sheet string, row int, values []any) error {
	for col, v := range values {
		cell, err := excelize.CoordinatesToCellName(col+1, row)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, cell, v); err != nil {
			return fmt.Errorf("set %s: %w", cell, err)
		}
	}
	return nil
}

func toAny(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}
