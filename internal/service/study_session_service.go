package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exprep-backend/internal/events"
	"github.com/stemsi/exprep-backend/internal/grading"
	"github.com/stemsi/exprep-backend/internal/model"
	"github.com/stemsi/exprep-backend/internal/repository"
)

// StudySessionService manages untimed practice sessions.
type StudySessionService struct {
	store   StudySessionStore
	bank    QuestionBank
	events  EventPublisher
	clock   Clock
	log     zerolog.Logger
	shuffle func(model.QuestionOrder)
}

// NewStudySessionService creates a new StudySessionService.
func NewStudySessionService(store StudySessionStore, bank QuestionBank, publisher EventPublisher, clock Clock, log zerolog.Logger) *StudySessionService {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	if clock == nil {
		clock = SystemClock
	}
	return &StudySessionService{
		store:   store,
		bank:    bank,
		events:  publisher,
		clock:   clock,
		log:     log.With().Str("component", "study_session_service").Logger(),
		shuffle: shuffleOrder,
	}
}

// StudyCreateInput describes a new study session.
type StudyCreateInput struct {
	UserID       uuid.UUID
	ExamID       uuid.UUID
	Mode         model.StudyMode
	QuestionIDs  []uuid.UUID
	MaxQuestions *int
	Settings     *model.StudySettings
}

// Create snapshots the question order and persists a fresh session.
// The list is truncated to MaxQuestions before random mode shuffles it.
func (s *StudySessionService) Create(ctx context.Context, in StudyCreateInput) (*model.StudySession, error) {
	if len(in.QuestionIDs) == 0 {
		return nil, ErrEmptyQuestionList
	}
	if !in.Mode.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownStudyMode, in.Mode)
	}
	if in.MaxQuestions != nil && *in.MaxQuestions < 1 {
		return nil, fmt.Errorf("%w: max questions must be positive", ErrInvalidInput)
	}

	order := make(model.QuestionOrder, len(in.QuestionIDs))
	copy(order, in.QuestionIDs)
	if in.MaxQuestions != nil && *in.MaxQuestions < len(order) {
		order = order[:*in.MaxQuestions]
	}
	if in.Mode == model.StudyModeRandom {
		s.shuffle(order)
	}

	settings := model.DefaultStudySettings
	if in.Settings != nil {
		settings = *in.Settings
	}

	now := s.clock.Now()
	sess := &model.StudySession{
		ID:             uuid.New(),
		UserID:         in.UserID,
		ExamID:         in.ExamID,
		Status:         model.StudyStatusActive,
		Mode:           in.Mode,
		QuestionsOrder: order,
		StartedAt:      now,
		LastActivityAt: now,
		Settings:       settings,
	}
	sess.EnsureCollections()

	if err := s.store.CreateStudy(ctx, sess); err != nil {
		return nil, storeErr("create study session", err)
	}

	s.log.Info().
		Str("session_id", sess.ID.String()).
		Str("user_id", sess.UserID.String()).
		Str("mode", string(sess.Mode)).
		Int("questions", len(order)).
		Msg("Study session created")
	return sess, nil
}

// Get returns a session by id.
func (s *StudySessionService) Get(ctx context.Context, id uuid.UUID) (*model.StudySession, error) {
	sess, err := s.store.GetStudy(ctx, id)
	if err != nil {
		return nil, storeErr("get study session", err)
	}
	s.reportCorruption(sess)
	return sess, nil
}

// GetActive returns the most recently touched open session for the user,
// optionally scoped to one exam. It returns nil when there is none.
func (s *StudySessionService) GetActive(ctx context.Context, userID uuid.UUID, examID *uuid.UUID) (*model.StudySession, error) {
	sess, err := s.store.ActiveStudy(ctx, userID, examID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, storeErr("get active study session", err)
	}
	s.reportCorruption(sess)
	return sess, nil
}

// UpdateProgress applies a partial progress update.
func (s *StudySessionService) UpdateProgress(ctx context.Context, id uuid.UUID, patch model.StudyProgressPatch) (*model.StudySession, error) {
	now := s.clock.Now()
	sess, err := s.store.UpdateStudy(ctx, id, func(sess *model.StudySession) error {
		if err := s.intact(sess); err != nil {
			return err
		}
		patch.Apply(sess, now)
		return nil
	})
	if err != nil {
		return nil, storeErr("update study progress", err)
	}
	return sess, nil
}

// StudyAnswerInput is one answer submitted for immediate feedback.
type StudyAnswerInput struct {
	QuestionID uuid.UUID
	Selected   []int
	TimeSpent  int
}

// RecordAnswer grades a single answer, stores it and adjusts the running
// counters. Answering the same question again moves it between counters.
func (s *StudySessionService) RecordAnswer(ctx context.Context, id uuid.UUID, in StudyAnswerInput) (*model.StudyFeedback, error) {
	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.intact(current); err != nil {
		return nil, err
	}
	if !current.QuestionsOrder.Contains(in.QuestionID) {
		return nil, ErrQuestionNotInOrder
	}

	questions, err := s.bank.GetByIDs(ctx, []uuid.UUID{in.QuestionID}, true)
	if err != nil {
		return nil, fmt.Errorf("load question: %w", err)
	}
	if len(questions) == 0 {
		return nil, ErrQuestionNotFound
	}
	q := questions[0]

	selected := model.NormalizeSelection(in.Selected)
	correct := grading.Validate(q.CorrectAnswers, selected)
	now := s.clock.Now()

	sess, err := s.store.UpdateStudy(ctx, id, func(sess *model.StudySession) error {
		if err := s.intact(sess); err != nil {
			return err
		}
		if sess.Status != model.StudyStatusActive {
			return ErrSessionNotActive
		}
		sess.EnsureCollections()
		if prev, ok := sess.Answers[in.QuestionID]; ok {
			if prev.Correct {
				sess.CorrectAnswers--
			} else {
				sess.IncorrectAnswers--
			}
		}
		if correct {
			sess.CorrectAnswers++
		} else {
			sess.IncorrectAnswers++
		}
		sess.Answers[in.QuestionID] = model.StudyAnswer{
			Selected:   selected,
			Correct:    correct,
			TimeSpent:  in.TimeSpent,
			AnsweredAt: now,
		}
		sess.TimeSpentSeconds += in.TimeSpent
		sess.LastActivityAt = now
		return nil
	})
	if err != nil {
		return nil, storeErr("record study answer", err)
	}

	feedback := &model.StudyFeedback{
		QuestionID:     q.ID,
		Correct:        correct,
		CorrectAnswers: q.CorrectAnswers,
		Session:        sess,
	}
	if sess.Settings.ShowExplanations {
		feedback.Explanation = q.Explanation
	}
	return feedback, nil
}

// Complete closes the session as completed. Calling it again re-stamps the
// timestamps.
func (s *StudySessionService) Complete(ctx context.Context, id uuid.UUID) (*model.StudySession, error) {
	return s.close(ctx, id, model.StudyStatusCompleted, events.TypeStudyCompleted)
}

// Abandon closes the session as abandoned.
func (s *StudySessionService) Abandon(ctx context.Context, id uuid.UUID) (*model.StudySession, error) {
	return s.close(ctx, id, model.StudyStatusAbandoned, events.TypeStudyAbandoned)
}

func (s *StudySessionService) close(ctx context.Context, id uuid.UUID, status model.StudyStatus, evt events.Type) (*model.StudySession, error) {
	now := s.clock.Now()
	sess, err := s.store.UpdateStudy(ctx, id, func(sess *model.StudySession) error {
		sess.Status = status
		sess.CompletedAt = &now
		sess.LastActivityAt = now
		return nil
	})
	if err != nil {
		return nil, storeErr("close study session", err)
	}

	s.publish(ctx, events.New(evt, sess.ID, sess.UserID, sess.ExamID, now, map[string]any{
		"correct_answers":   sess.CorrectAnswers,
		"incorrect_answers": sess.IncorrectAnswers,
		"answered":          len(sess.Answers),
		"total_questions":   len(sess.QuestionsOrder),
	}))
	return sess, nil
}

// Pause suspends an active session.
func (s *StudySessionService) Pause(ctx context.Context, id uuid.UUID) (*model.StudySession, error) {
	now := s.clock.Now()
	sess, err := s.store.UpdateStudy(ctx, id, func(sess *model.StudySession) error {
		if sess.Status != model.StudyStatusActive {
			return ErrSessionNotActive
		}
		sess.Status = model.StudyStatusPaused
		sess.LastActivityAt = now
		return nil
	})
	if err != nil {
		return nil, storeErr("pause study session", err)
	}
	return sess, nil
}

// Resume reactivates a paused session that is still within the resume window.
func (s *StudySessionService) Resume(ctx context.Context, id uuid.UUID) (*model.StudySession, error) {
	now := s.clock.Now()
	sess, err := s.store.UpdateStudy(ctx, id, func(sess *model.StudySession) error {
		if sess.Status != model.StudyStatusPaused {
			return ErrSessionNotPaused
		}
		if !model.IsResumable(sess.LastActivityAt, now) {
			return ErrSessionStale
		}
		sess.Status = model.StudyStatusActive
		sess.LastActivityAt = now
		return nil
	})
	if err != nil {
		return nil, storeErr("resume study session", err)
	}
	return sess, nil
}

// GetQuestions resolves the session order to full questions, including
// correct answers and explanations. Questions that no longer exist are
// skipped. A corrupted order yields an empty list.
func (s *StudySessionService) GetQuestions(ctx context.Context, id uuid.UUID) ([]model.Question, error) {
	sess, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(sess.QuestionsOrder) == 0 {
		return []model.Question{}, nil
	}

	questions, err := s.bank.GetByIDs(ctx, sess.QuestionsOrder, true)
	if err != nil {
		return nil, fmt.Errorf("load questions: %w", err)
	}
	if dropped := len(sess.QuestionsOrder) - len(questions); dropped > 0 {
		s.log.Warn().
			Str("session_id", sess.ID.String()).
			Int("dropped", dropped).
			Msg("Unresolvable questions skipped")
	}
	return questions, nil
}

func (s *StudySessionService) reportCorruption(sess *model.StudySession) {
	if len(sess.Corrupted) == 0 {
		return
	}
	s.log.Error().
		Str("session_id", sess.ID.String()).
		Strs("fields", sess.Corrupted).
		Msg("Stored collections failed to decode, using empty values")
}

func (s *StudySessionService) intact(sess *model.StudySession) error {
	if len(sess.Corrupted) == 0 {
		return nil
	}
	s.log.Error().
		Str("session_id", sess.ID.String()).
		Strs("fields", sess.Corrupted).
		Msg("Refusing to write session with corrupted collections")
	return ErrCorruptedSession
}

func (s *StudySessionService) publish(ctx context.Context, evt events.Event) {
	if err := s.events.Publish(ctx, evt); err != nil {
		s.log.Warn().Err(err).
			Str("event_type", string(evt.Type)).
			Str("session_id", evt.SessionID.String()).
			Msg("Event publish failed")
	}
}
