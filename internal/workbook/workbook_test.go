package workbook

import (
	"bytes"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stemsi/exprep-backend/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func sheet(t *testing.T, rows [][]any) *bytes.Buffer {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	for r, row := range rows {
		require.NoError(t, writeRow(f, "Sheet1", r+1, row))
	}
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf
}

func TestReadQuestionBank(t *testing.T) {
	buf := sheet(t, [][]any{
		{"exam_code", "exam_name", "objective", "type", "text", "options", "correct", "explanation"},
		{"AZ-900", "Azure Fundamentals", "cloud", "single_choice", "What is IaaS?", "A|B|C", "1", "Infra"},
		{"AZ-900", "", "cloud", "multiple_choice", "Pick two", "A|B|C", "2,0", ""},
		{"AZ-900", "", "", "single_choice", "Broken", "A|B", "5", ""},
		{"", "", "", "true_false", "No exam", "True|False", "0", ""},
	})

	bank, rowErrs, err := ReadQuestionBank(buf)
	require.NoError(t, err)

	require.Len(t, bank.Exams, 1)
	assert.Equal(t, ExamID("AZ-900"), bank.Exams[0].ID)
	assert.Equal(t, "Azure Fundamentals", bank.Exams[0].Name)

	require.Len(t, bank.Questions, 2)
	assert.Equal(t, []string{"A", "B", "C"}, bank.Questions[0].Options)
	assert.Equal(t, []int{1}, bank.Questions[0].CorrectAnswers)
	require.NotNil(t, bank.Questions[0].Explanation)
	assert.Equal(t, []int{0, 2}, bank.Questions[1].CorrectAnswers)
	assert.Nil(t, bank.Questions[1].Explanation)

	require.Len(t, rowErrs, 2)
	assert.Equal(t, 4, rowErrs[0].Row)
	assert.Equal(t, 5, rowErrs[1].Row)
}

func TestReadQuestionBankStableIDs(t *testing.T) {
	rows := [][]any{
		{"exam_code", "type", "text", "options", "correct"},
		{"X", "true_false", "Sky is blue", "True|False", "0"},
	}
	first, _, err := ReadQuestionBank(sheet(t, rows))
	require.NoError(t, err)
	second, _, err := ReadQuestionBank(sheet(t, rows))
	require.NoError(t, err)
	assert.Equal(t, first.Questions[0].ID, second.Questions[0].ID)
}

func TestReadQuestionBankMissingColumn(t *testing.T) {
	_, _, err := ReadQuestionBank(sheet(t, [][]any{{"exam_code", "text"}, {"X", "Q"}}))
	assert.ErrorContains(t, err, "missing column")
}

func TestExportHistory(t *testing.T) {
	started := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	submitted := started.Add(30 * time.Minute)
	score, passed := 70.0, true
	entries := []model.TestHistoryEntry{
		{ID: uuid.New(), ExamCode: "AZ-900", ExamName: "Azure", Status: model.TestStatusSubmitted,
			StartedAt: started, SubmittedAt: &submitted, TimeLimitSeconds: 3600,
			TotalQuestions: 10, AnsweredCount: 9, Score: &score, Passed: &passed},
		{ID: uuid.New(), ExamCode: "AZ-900", Status: model.TestStatusActive, StartedAt: started},
	}

	data, err := ExportHistory(entries)
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{historySheet}, f.GetSheetList())
	rows, err := f.GetRows(historySheet)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, historyHeaders, rows[0])
	assert.Equal(t, "submitted", rows[1][3])
	assert.Equal(t, "70", rows[1][9])
	assert.Equal(t, "TRUE", rows[1][10])
}
