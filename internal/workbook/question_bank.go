package workbook

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/stemsi/exprep-backend/internal/model"
	"github.com/xuri/excelize/v2"
)

// Column headers of a question bank sheet. Matching is case-insensitive.
const (
	ColExamCode    = "exam_code"
	ColExamName    = "exam_name"
	ColObjective   = "objective"
	ColQuestionID  = "question_id"
	ColType        = "type"
	ColText        = "text"
	ColOptions     = "options"
	ColCorrect     = "correct"
	ColExplanation = "explanation"
)

var requiredColumns = []string{ColExamCode, ColType, ColText, ColOptions, ColCorrect}

// Bank is a parsed question bank workbook.
type Bank struct {
	Exams     []model.Exam
	Questions []model.Question
}

// RowError describes a row that could not be imported.
type RowError struct {
	Row     int    `json:"row"`
	Message string `json:"message"`
}

func (e RowError) Error() string {
	return fmt.Sprintf("row %d: %s", e.Row, e.Message)
}

// ReadQuestionBank parses the first sheet of an xlsx workbook. Exam ids are
// derived from the exam code and question ids from the exam and text unless
// given, so importing the same sheet twice yields the same ids. Options are
// separated by "|" and correct answers are zero-based option indices
// separated by ",".
func ReadQuestionBank(r io.Reader) (*Bank, []RowError, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil, fmt.Errorf("workbook has no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, nil, fmt.Errorf("read rows: %w", err)
	}
	if len(rows) < 2 {
		return nil, nil, fmt.Errorf("workbook needs a header row and at least one question")
	}

	header := make(map[string]int, len(rows[0]))
	for i, h := range rows[0] {
		header[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, col := range requiredColumns {
		if _, ok := header[col]; !ok {
			return nil, nil, fmt.Errorf("missing column %q", col)
		}
	}

	bank := &Bank{}
	exams := make(map[string]int)
	var rowErrs []RowError

	for i, record := range rows[1:] {
		rowNum := i + 2
		cell := func(col string) string {
			idx, ok := header[col]
			if !ok || idx >= len(record) {
				return ""
			}
			return strings.TrimSpace(record[idx])
		}

		code := cell(ColExamCode)
		if code == "" {
			rowErrs = append(rowErrs, RowError{Row: rowNum, Message: "exam_code is empty"})
			continue
		}
		pos, ok := exams[code]
		if !ok {
			name := cell(ColExamName)
			if name == "" {
				name = code
			}
			pos = len(bank.Exams)
			exams[code] = pos
			bank.Exams = append(bank.Exams, model.Exam{ID: ExamID(code), Code: code, Name: name})
		}

		q, err := parseQuestion(bank.Exams[pos].ID, cell)
		if err != nil {
			rowErrs = append(rowErrs, RowError{Row: rowNum, Message: err.Error()})
			continue
		}
		bank.Questions = append(bank.Questions, q)
	}
	return bank, rowErrs, nil
}

// ExamID derives a stable exam id from its code.
func ExamID(code string) uuid.UUID {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("exprep:exam:"+code))
}

func parseQuestion(examID uuid.UUID, cell func(string) string) (model.Question, error) {
	q := model.Question{
		ExamID: examID,
		Text:   cell(ColText),
		Type:   model.QuestionType(strings.ToLower(cell(ColType))),
	}
	if q.Text == "" {
		return q, fmt.Errorf("text is empty")
	}
	switch q.Type {
	case model.QuestionTypeSingleChoice, model.QuestionTypeMultipleChoice, model.QuestionTypeTrueFalse:
	default:
		return q, fmt.Errorf("unknown question type %q", q.Type)
	}

	for _, opt := range strings.Split(cell(ColOptions), "|") {
		if opt = strings.TrimSpace(opt); opt != "" {
			q.Options = append(q.Options, opt)
		}
	}
	if len(q.Options) < 2 {
		return q, fmt.Errorf("need at least two options")
	}

	for _, raw := range strings.Split(cell(ColCorrect), ",") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		idx, err := strconv.Atoi(raw)
		if err != nil || idx < 0 || idx >= len(q.Options) {
			return q, fmt.Errorf("invalid correct answer %q", raw)
		}
		q.CorrectAnswers = append(q.CorrectAnswers, idx)
	}
	q.CorrectAnswers = model.NormalizeSelection(q.CorrectAnswers)
	if len(q.CorrectAnswers) == 0 {
		return q, fmt.Errorf("correct is empty")
	}
	if q.Type != model.QuestionTypeMultipleChoice && len(q.CorrectAnswers) != 1 {
		return q, fmt.Errorf("%s questions take exactly one correct answer", q.Type)
	}

	if raw := cell(ColQuestionID); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return q, fmt.Errorf("invalid question_id: %v", err)
		}
		q.ID = id
	} else {
		q.ID = uuid.NewSHA1(examID, []byte(q.Text))
	}

	objective := cell(ColObjective)
	if objective == "" {
		objective = "general"
	}
	q.ObjectiveID = uuid.NewSHA1(examID, []byte("objective:"+objective))

	if exp := cell(ColExplanation); exp != "" {
		q.Explanation = &exp
	}
	return q, nil
}
