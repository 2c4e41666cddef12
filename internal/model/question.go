package model

import (
	"slices"

	"github.com/google/uuid"
)

type QuestionType string

const (
	QuestionTypeSingleChoice   QuestionType = "single_choice"
	QuestionTypeMultipleChoice QuestionType = "multiple_choice"
	QuestionTypeTrueFalse      QuestionType = "true_false"
)

// Question represents a single bank question.
// CorrectAnswers and Explanation are only populated when the reader was
// asked to include answers.
type Question struct {
	ID             uuid.UUID    `json:"id"`
	ExamID         uuid.UUID    `json:"exam_id"`
	ObjectiveID    uuid.UUID    `json:"objective_id"`
	Text           string       `json:"text"`
	Type           QuestionType `json:"type"`
	Options        []string     `json:"options"`
	CorrectAnswers []int        `json:"correct_answers,omitempty"`
	Explanation    *string      `json:"explanation,omitempty"`
}

// Redacted returns a copy without correctness data or explanation.
func (q Question) Redacted() Question {
	q.Options = slices.Clone(q.Options)
	q.CorrectAnswers = nil
	q.Explanation = nil
	return q
}
