package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// StudyStatus enumerates study session states.
type StudyStatus string

const (
	StudyStatusActive    StudyStatus = "active"
	StudyStatusPaused    StudyStatus = "paused"
	StudyStatusCompleted StudyStatus = "completed"
	StudyStatusAbandoned StudyStatus = "abandoned"
)

// StudyMode selects how a study session picks and orders its questions.
type StudyMode string

const (
	StudyModeSequential StudyMode = "sequential"
	StudyModeRandom     StudyMode = "random"
	StudyModeFlagged    StudyMode = "flagged"
	StudyModeIncorrect  StudyMode = "incorrect"
	StudyModeWeakAreas  StudyMode = "weak_areas"
)

// Valid reports whether m is a known mode.
func (m StudyMode) Valid() bool {
	switch m {
	case StudyModeSequential, StudyModeRandom, StudyModeFlagged, StudyModeIncorrect, StudyModeWeakAreas:
		return true
	}
	return false
}

// StudySettings holds per-session display preferences.
type StudySettings struct {
	ShowExplanations bool `json:"show_explanations"`
	ShowTimer        bool `json:"show_timer"`
	AutoAdvance      bool `json:"auto_advance"`
}

// DefaultStudySettings is applied when a caller supplies none.
var DefaultStudySettings = StudySettings{ShowExplanations: true, ShowTimer: false, AutoAdvance: false}

// StudySession is an untimed practice attempt.
type StudySession struct {
	ID                   uuid.UUID     `json:"id"`
	UserID               uuid.UUID     `json:"user_id"`
	ExamID               uuid.UUID     `json:"exam_id"`
	Status               StudyStatus   `json:"status"`
	Mode                 StudyMode     `json:"mode"`
	QuestionsOrder       QuestionOrder `json:"questions_order"`
	CurrentQuestionIndex int           `json:"current_question_index"`
	CorrectAnswers       int           `json:"correct_answers"`
	IncorrectAnswers     int           `json:"incorrect_answers"`
	SkippedAnswers       int           `json:"skipped_answers"`
	Answers              StudyAnswers  `json:"answers"`
	Bookmarks            IDSet         `json:"bookmarks"`
	Flags                IDSet         `json:"flags"`
	StartedAt            time.Time     `json:"started_at"`
	LastActivityAt       time.Time     `json:"last_activity_at"`
	CompletedAt          *time.Time    `json:"completed_at,omitempty"`
	TimeSpentSeconds     int           `json:"time_spent_seconds"`
	Settings             StudySettings `json:"settings"`

	// Corrupted lists stored collections that failed to decode and were
	// replaced with empty values.
	Corrupted []string `json:"-"`
}

// EnsureCollections replaces nil collections with empty ones.
func (s *StudySession) EnsureCollections() {
	if s.QuestionsOrder == nil {
		s.QuestionsOrder = QuestionOrder{}
	}
	if s.Answers == nil {
		s.Answers = StudyAnswers{}
	}
	if s.Bookmarks == nil {
		s.Bookmarks = IDSet{}
	}
	if s.Flags == nil {
		s.Flags = IDSet{}
	}
}

// IsTerminal reports whether the session was closed.
func (s *StudySession) IsTerminal() bool {
	return s.Status == StudyStatusCompleted || s.Status == StudyStatusAbandoned
}

// StudyProgressPatch is a partial study progress update. Nil fields are
// left untouched.
type StudyProgressPatch struct {
	CurrentQuestionIndex *int         `json:"current_question_index" binding:"omitempty,min=0"`
	Answers              StudyAnswers `json:"answers"`
	CorrectAnswers       *int         `json:"correct_answers" binding:"omitempty,min=0"`
	IncorrectAnswers     *int         `json:"incorrect_answers" binding:"omitempty,min=0"`
	SkippedAnswers       *int         `json:"skipped_answers" binding:"omitempty,min=0"`
	Bookmarks            IDSet        `json:"bookmarks"`
	Flags                IDSet        `json:"flags"`
	TimeSpentSeconds     *int         `json:"time_spent_seconds" binding:"omitempty,min=0"`
}

// Apply writes the patch onto s and refreshes its activity timestamp.
func (p StudyProgressPatch) Apply(s *StudySession, now time.Time) {
	s.EnsureCollections()
	if p.CurrentQuestionIndex != nil {
		s.CurrentQuestionIndex = *p.CurrentQuestionIndex
	}
	if p.Answers != nil {
		s.Answers.Merge(p.Answers)
	}
	if p.CorrectAnswers != nil {
		s.CorrectAnswers = *p.CorrectAnswers
	}
	if p.IncorrectAnswers != nil {
		s.IncorrectAnswers = *p.IncorrectAnswers
	}
	if p.SkippedAnswers != nil {
		s.SkippedAnswers = *p.SkippedAnswers
	}
	if p.Bookmarks != nil {
		s.Bookmarks = p.Bookmarks
	}
	if p.Flags != nil {
		s.Flags = p.Flags
	}
	if p.TimeSpentSeconds != nil {
		s.TimeSpentSeconds = *p.TimeSpentSeconds
	}
	s.LastActivityAt = now
}

// CreateStudySessionRequest is the payload for starting a study session.
type CreateStudySessionRequest struct {
	ExamID       uuid.UUID       `json:"exam_id" binding:"required"`
	Mode         StudyMode       `json:"mode" binding:"required,study_mode"`
	QuestionIDs  json.RawMessage `json:"question_ids" binding:"required"`
	MaxQuestions *int            `json:"max_questions" binding:"omitempty,min=1"`
	Settings     *StudySettings  `json:"settings"`
}

// StudyAnswerRequest records one answer and asks for immediate feedback.
type StudyAnswerRequest struct {
	QuestionID uuid.UUID `json:"question_id" binding:"required"`
	Selected   []int     `json:"selected" binding:"required,min=1,dive,min=0"`
	TimeSpent  int       `json:"time_spent" binding:"min=0"`
}

// StudyFeedback is returned after a study answer is recorded.
type StudyFeedback struct {
	QuestionID     uuid.UUID     `json:"question_id"`
	Correct        bool          `json:"correct"`
	CorrectAnswers []int         `json:"correct_answers"`
	Explanation    *string       `json:"explanation,omitempty"`
	Session        *StudySession `json:"session"`
}
