package grading

import (
	"github.com/google/uuid"
	"github.com/stemsi/exprep-backend/internal/model"
)

// AnswerKey maps a question id to its correct option indices. A question
// missing from the key could not be resolved in the bank.
type AnswerKey map[uuid.UUID][]int

// KeyFromQuestions builds an AnswerKey from questions read with answers.
func KeyFromQuestions(questions []model.Question) AnswerKey {
	key := make(AnswerKey, len(questions))
	for _, q := range questions {
		key[q.ID] = q.CorrectAnswers
	}
	return key
}

// Score grades recorded answers against key.
//
// Positions with no selection are unanswered. Positions whose question is
// missing from key are incorrect. The denominator is totalQuestions as
// captured at creation, never the length of order.
func Score(order model.QuestionOrder, totalQuestions int, passingScore float64, answers model.PositionAnswers, key AnswerKey) model.TestOutcome {
	var out model.TestOutcome

	for pos, qid := range order {
		selected := answers[pos]
		if len(selected) == 0 {
			out.UnansweredCount++
			continue
		}
		correct, ok := key[qid]
		if ok && Validate(correct, selected) {
			out.CorrectCount++
		} else {
			out.IncorrectCount++
		}
	}

	if totalQuestions > 0 {
		out.Score = float64(out.CorrectCount) * 100 / float64(totalQuestions)
	}
	out.Passed = out.Score >= passingScore
	return out
}
