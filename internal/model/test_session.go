package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// TestStatus enumerates test session states.
type TestStatus string

const (
	TestStatusActive    TestStatus = "active"
	TestStatusPaused    TestStatus = "paused"
	TestStatusSubmitted TestStatus = "submitted"
	TestStatusExpired   TestStatus = "expired"
	TestStatusAbandoned TestStatus = "abandoned"
)

// TestSession is a timed, graded attempt. Answers are keyed by position in
// QuestionsOrder so the record never carries correctness data.
type TestSession struct {
	ID                   uuid.UUID       `json:"id"`
	UserID               uuid.UUID       `json:"user_id"`
	ExamID               uuid.UUID       `json:"exam_id"`
	Status               TestStatus      `json:"status"`
	TimeLimitSeconds     int             `json:"time_limit_seconds"`
	TotalQuestions       int             `json:"total_questions"`
	PassingScore         float64         `json:"passing_score"`
	QuestionsOrder       QuestionOrder   `json:"questions_order"`
	CurrentQuestionIndex int             `json:"current_question_index"`
	AnsweredCount        int             `json:"answered_count"`
	FlaggedCount         int             `json:"flagged_count"`
	Answers              PositionAnswers `json:"answers"`
	Flagged              PositionSet     `json:"flagged"`
	StartedAt            time.Time       `json:"started_at"`
	LastActivityAt       time.Time       `json:"last_activity_at"`
	SubmittedAt          *time.Time      `json:"submitted_at,omitempty"`
	ExpiresAt            time.Time       `json:"expires_at"`
	TimeRemainingSeconds int             `json:"time_remaining_seconds"`

	Score           *float64 `json:"score,omitempty"`
	CorrectCount    *int     `json:"correct_count,omitempty"`
	IncorrectCount  *int     `json:"incorrect_count,omitempty"`
	UnansweredCount *int     `json:"unanswered_count,omitempty"`
	Passed          *bool    `json:"passed,omitempty"`

	LastAutoSaveAt *time.Time `json:"last_auto_save_at,omitempty"`
	AutoSaveCount  int        `json:"auto_save_count"`

	Corrupted []string `json:"-"`
}

// EnsureCollections replaces nil collections with empty ones.
func (s *TestSession) EnsureCollections() {
	if s.QuestionsOrder == nil {
		s.QuestionsOrder = QuestionOrder{}
	}
	if s.Answers == nil {
		s.Answers = PositionAnswers{}
	}
	if s.Flagged == nil {
		s.Flagged = PositionSet{}
	}
}

// RemainingAt returns the seconds left on the clock at now, never negative.
func (s *TestSession) RemainingAt(now time.Time) int {
	left := int(s.ExpiresAt.Sub(now) / time.Second)
	if left < 0 {
		return 0
	}
	return left
}

// HasResults reports whether the session was graded.
func (s *TestSession) HasResults() bool {
	return s.Status == TestStatusSubmitted || s.Status == TestStatusExpired
}

// IsTerminal reports whether the session accepts no further progress.
func (s *TestSession) IsTerminal() bool {
	return s.HasResults() || s.Status == TestStatusAbandoned
}

// ApplyResults stores a grading outcome and closes the session with status.
func (s *TestSession) ApplyResults(r TestOutcome, status TestStatus, now time.Time) {
	score, correct, incorrect, unanswered, passed := r.Score, r.CorrectCount, r.IncorrectCount, r.UnansweredCount, r.Passed
	s.Score = &score
	s.CorrectCount = &correct
	s.IncorrectCount = &incorrect
	s.UnansweredCount = &unanswered
	s.Passed = &passed
	s.Status = status
	s.SubmittedAt = &now
	s.LastActivityAt = now
}

// TestOutcome is the result of grading a test session.
type TestOutcome struct {
	Score           float64 `json:"score"`
	CorrectCount    int     `json:"correct_count"`
	IncorrectCount  int     `json:"incorrect_count"`
	UnansweredCount int     `json:"unanswered_count"`
	Passed          bool    `json:"passed"`
}

// TestResults is the results bundle exposed once a test session is graded.
type TestResults struct {
	SessionID        uuid.UUID  `json:"session_id"`
	ExamID           uuid.UUID  `json:"exam_id"`
	Status           TestStatus `json:"status"`
	TotalQuestions   int        `json:"total_questions"`
	PassingScore     float64    `json:"passing_score"`
	StartedAt        time.Time  `json:"started_at"`
	SubmittedAt      time.Time  `json:"submitted_at"`
	TimeTakenSeconds int        `json:"time_taken_seconds"`
	TestOutcome
}

// FlagToggle marks or unmarks a single position.
type FlagToggle struct {
	QuestionID    *uuid.UUID `json:"question_id"`
	QuestionIndex int        `json:"question_index" binding:"min=0"`
	Flagged       bool       `json:"flagged"`
}

// TestProgressPatch is an auto-save checkpoint. Answers are merged per
// position; an empty selection clears the position.
type TestProgressPatch struct {
	CurrentQuestionIndex *int            `json:"current_question_index" binding:"omitempty,min=0"`
	Answers              PositionAnswers `json:"answers"`
	Flag                 *FlagToggle     `json:"flag"`
	TimeRemainingSeconds *int            `json:"time_remaining_seconds" binding:"omitempty,min=0"`
}

// CreateTestSessionRequest is the payload for starting a test session.
type CreateTestSessionRequest struct {
	ExamID           uuid.UUID       `json:"exam_id" binding:"required"`
	QuestionIDs      json.RawMessage `json:"question_ids" binding:"required"`
	TimeLimitSeconds int             `json:"time_limit_seconds" binding:"required,min=1"`
	PassingScore     float64         `json:"passing_score" binding:"min=0,max=100"`
}

// SaveAnswerRequest upserts the answer at one position.
type SaveAnswerRequest struct {
	QuestionID    *uuid.UUID `json:"question_id"`
	QuestionIndex int        `json:"question_index" binding:"min=0"`
	Selected      []int      `json:"selected" binding:"dive,min=0"`
	TimeSpent     int        `json:"time_spent" binding:"min=0"`
}

// TestHistoryEntry is one row of a user's test history.
type TestHistoryEntry struct {
	ID               uuid.UUID    `json:"id"`
	ExamID           uuid.UUID    `json:"exam_id"`
	ExamCode         string       `json:"exam_code"`
	ExamName         string       `json:"exam_name"`
	Status           TestStatus   `json:"status"`
	TotalQuestions   int          `json:"total_questions"`
	AnsweredCount    int          `json:"answered_count"`
	TimeLimitSeconds int          `json:"time_limit_seconds"`
	StartedAt        time.Time    `json:"started_at"`
	SubmittedAt      *time.Time   `json:"submitted_at,omitempty"`
	Score            *float64     `json:"score,omitempty"`
	Passed           *bool        `json:"passed,omitempty"`
	Details          *TestSession `json:"details,omitempty"`
}

// TestHistoryFilter narrows a history listing.
type TestHistoryFilter struct {
	ExamID         *uuid.UUID
	Limit          int
	Offset         int
	IncludeDetails bool
}
