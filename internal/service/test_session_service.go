package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exprep-backend/internal/events"
	"github.com/stemsi/exprep-backend/internal/grading"
	"github.com/stemsi/exprep-backend/internal/model"
	"github.com/stemsi/exprep-backend/internal/response"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

// TestSessionService manages timed, graded sessions.
type TestSessionService struct {
	store     TestSessionStore
	bank      QuestionBank
	scheduler DeadlineScheduler
	events    EventPublisher
	clock     Clock
	log       zerolog.Logger
	shuffle   func(model.QuestionOrder)
}

// NewTestSessionService creates a new TestSessionService. A nil scheduler
// leaves expiry entirely to ExpireDue sweeps.
func NewTestSessionService(
	store TestSessionStore,
	bank QuestionBank,
	scheduler DeadlineScheduler,
	publisher EventPublisher,
	clock Clock,
	log zerolog.Logger,
) *TestSessionService {
	if scheduler == nil {
		scheduler = nopScheduler{}
	}
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	if clock == nil {
		clock = SystemClock
	}
	return &TestSessionService{
		store:     store,
		bank:      bank,
		scheduler: scheduler,
		events:    publisher,
		clock:     clock,
		log:       log.With().Str("component", "test_session_service").Logger(),
		shuffle:   shuffleOrder,
	}
}

// TestCreateInput describes a new test session.
type TestCreateInput struct {
	UserID           uuid.UUID
	ExamID           uuid.UUID
	QuestionIDs      []uuid.UUID
	TimeLimitSeconds int
	PassingScore     float64
}

// Create shuffles the question order once and persists a fresh session.
func (s *TestSessionService) Create(ctx context.Context, in TestCreateInput) (*model.TestSession, error) {
	if len(in.QuestionIDs) == 0 {
		return nil, ErrEmptyQuestionList
	}
	if in.TimeLimitSeconds <= 0 {
		return nil, fmt.Errorf("%w: time limit must be positive", ErrInvalidInput)
	}
	if in.PassingScore < 0 || in.PassingScore > 100 {
		return nil, fmt.Errorf("%w: passing score must be between 0 and 100", ErrInvalidInput)
	}

	order := make(model.QuestionOrder, len(in.QuestionIDs))
	copy(order, in.QuestionIDs)
	s.shuffle(order)

	now := s.clock.Now()
	sess := &model.TestSession{
		ID:                   uuid.New(),
		UserID:               in.UserID,
		ExamID:               in.ExamID,
		Status:               model.TestStatusActive,
		TimeLimitSeconds:     in.TimeLimitSeconds,
		TotalQuestions:       len(order),
		PassingScore:         in.PassingScore,
		QuestionsOrder:       order,
		StartedAt:            now,
		LastActivityAt:       now,
		ExpiresAt:            now.Add(time.Duration(in.TimeLimitSeconds) * time.Second),
		TimeRemainingSeconds: in.TimeLimitSeconds,
	}
	sess.EnsureCollections()

	if err := s.store.CreateTest(ctx, sess); err != nil {
		return nil, storeErr("create test session", err)
	}
	s.schedule(ctx, sess)

	s.log.Info().
		Str("session_id", sess.ID.String()).
		Str("user_id", sess.UserID.String()).
		Int("questions", sess.TotalQuestions).
		Int("time_limit", sess.TimeLimitSeconds).
		Msg("Test session created")
	return sess, nil
}

// Get returns a session by id.
func (s *TestSessionService) Get(ctx context.Context, id uuid.UUID) (*model.TestSession, error) {
	sess, err := s.store.GetTest(ctx, id)
	if err != nil {
		return nil, storeErr("get test session", err)
	}
	s.reportCorruption(sess)
	return sess, nil
}

// UpdateProgress records an auto-save checkpoint. Every successful call
// increments AutoSaveCount by one.
func (s *TestSessionService) UpdateProgress(ctx context.Context, id uuid.UUID, patch model.TestProgressPatch) (*model.TestSession, error) {
	now := s.clock.Now()
	sess, err := s.store.UpdateTest(ctx, id, func(sess *model.TestSession) error {
		if err := s.intact(sess); err != nil {
			return err
		}
		return applyTestPatch(sess, patch, now)
	})
	if err != nil {
		return nil, storeErr("update test progress", err)
	}
	return sess, nil
}

// MergeAnswers upserts the given positions inside one transaction.
func (s *TestSessionService) MergeAnswers(ctx context.Context, id uuid.UUID, answers model.PositionAnswers) (*model.TestSession, error) {
	return s.UpdateProgress(ctx, id, model.TestProgressPatch{Answers: answers})
}

// SaveAnswerInput is a single positional answer.
type SaveAnswerInput struct {
	QuestionID    *uuid.UUID
	QuestionIndex int
	Selected      []int
}

// SaveAnswer upserts the answer at QuestionIndex. When QuestionID is set it
// must be the question at that position.
func (s *TestSessionService) SaveAnswer(ctx context.Context, id uuid.UUID, in SaveAnswerInput) (*model.TestSession, error) {
	now := s.clock.Now()
	sess, err := s.store.UpdateTest(ctx, id, func(sess *model.TestSession) error {
		if err := s.intact(sess); err != nil {
			return err
		}
		if err := checkPosition(sess, in.QuestionID, in.QuestionIndex); err != nil {
			return err
		}
		return applyTestPatch(sess, model.TestProgressPatch{
			Answers: model.PositionAnswers{in.QuestionIndex: in.Selected},
		}, now)
	})
	if err != nil {
		return nil, storeErr("save answer", err)
	}
	return sess, nil
}

func applyTestPatch(sess *model.TestSession, patch model.TestProgressPatch, now time.Time) error {
	if sess.Status != model.TestStatusActive {
		return ErrSessionNotActive
	}
	sess.EnsureCollections()

	for pos := range patch.Answers {
		if pos < 0 || pos >= len(sess.QuestionsOrder) {
			return fmt.Errorf("%w: %d", ErrPositionOutOfRange, pos)
		}
	}
	if patch.Flag != nil {
		if err := checkPosition(sess, patch.Flag.QuestionID, patch.Flag.QuestionIndex); err != nil {
			return err
		}
	}

	if patch.CurrentQuestionIndex != nil {
		sess.CurrentQuestionIndex = *patch.CurrentQuestionIndex
	}
	if patch.Answers != nil {
		sess.Answers.Merge(patch.Answers)
		sess.AnsweredCount = len(sess.Answers)
	}
	if patch.Flag != nil {
		sess.Flagged.Set(patch.Flag.QuestionIndex, patch.Flag.Flagged)
		sess.FlaggedCount = len(sess.Flagged)
	}
	if patch.TimeRemainingSeconds != nil {
		// The client clock may lag but never extends the deadline.
		sess.TimeRemainingSeconds = max(0, min(*patch.TimeRemainingSeconds, sess.RemainingAt(now)))
	}

	sess.AutoSaveCount++
	sess.LastAutoSaveAt = &now
	sess.LastActivityAt = now
	return nil
}

func checkPosition(sess *model.TestSession, questionID *uuid.UUID, index int) error {
	at, ok := sess.QuestionsOrder.At(index)
	if !ok {
		return fmt.Errorf("%w: %d", ErrPositionOutOfRange, index)
	}
	if questionID != nil && *questionID != at {
		return ErrQuestionMismatch
	}
	return nil
}

// Submit grades the session and closes it as submitted. Results are
// written once; a graded session cannot be submitted again.
func (s *TestSessionService) Submit(ctx context.Context, id uuid.UUID) (*model.TestResults, error) {
	return s.grade(ctx, id, model.TestStatusSubmitted, events.TypeTestSubmitted)
}

// Expire grades the session exactly as Submit would and closes it as expired.
func (s *TestSessionService) Expire(ctx context.Context, id uuid.UUID) (*model.TestResults, error) {
	return s.grade(ctx, id, model.TestStatusExpired, events.TypeTestExpired)
}

func (s *TestSessionService) grade(ctx context.Context, id uuid.UUID, status model.TestStatus, evt events.Type) (*model.TestResults, error) {
	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := gradable(current); err != nil {
		return nil, err
	}
	if err := s.intact(current); err != nil {
		return nil, err
	}

	key, err := s.answerKey(ctx, current.QuestionsOrder)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	sess, err := s.store.UpdateTest(ctx, id, func(sess *model.TestSession) error {
		if err := gradable(sess); err != nil {
			return err
		}
		if err := s.intact(sess); err != nil {
			return err
		}
		outcome := grading.Score(sess.QuestionsOrder, sess.TotalQuestions, sess.PassingScore, sess.Answers, key)
		switch {
		case status == model.TestStatusExpired:
			sess.TimeRemainingSeconds = 0
		case sess.Status == model.TestStatusPaused:
			// The clock stopped at pause; ExpiresAt is stale until resume.
		default:
			sess.TimeRemainingSeconds = sess.RemainingAt(now)
		}
		sess.ApplyResults(outcome, status, now)
		return nil
	})
	if err != nil {
		return nil, storeErr("grade test session", err)
	}

	s.cancelSchedule(ctx, sess.ID)
	results := resultsOf(sess)

	s.log.Info().
		Str("session_id", sess.ID.String()).
		Str("status", string(sess.Status)).
		Float64("score", results.Score).
		Int("correct", results.CorrectCount).
		Int("total", results.TotalQuestions).
		Msg("Test session graded")

	s.publish(ctx, events.New(evt, sess.ID, sess.UserID, sess.ExamID, now, map[string]any{
		"score":            results.Score,
		"passed":           results.Passed,
		"correct_count":    results.CorrectCount,
		"incorrect_count":  results.IncorrectCount,
		"unanswered_count": results.UnansweredCount,
	}))
	return results, nil
}

func gradable(sess *model.TestSession) error {
	switch {
	case sess.HasResults():
		return ErrAlreadyGraded
	case sess.Status == model.TestStatusAbandoned:
		return ErrSessionNotActive
	}
	return nil
}

// answerKey reads the correct answers for the whole order in one batch.
func (s *TestSessionService) answerKey(ctx context.Context, order model.QuestionOrder) (grading.AnswerKey, error) {
	if len(order) == 0 {
		return grading.AnswerKey{}, nil
	}
	questions, err := s.bank.GetByIDs(ctx, order, true)
	if err != nil {
		return nil, fmt.Errorf("load answer key: %w", err)
	}
	return grading.KeyFromQuestions(questions), nil
}

// GetResults returns the results bundle of a submitted or expired session.
func (s *TestSessionService) GetResults(ctx context.Context, id uuid.UUID) (*model.TestResults, error) {
	sess, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !sess.HasResults() || sess.Score == nil {
		return nil, ErrResultsUnavailable
	}
	return resultsOf(sess), nil
}

func resultsOf(sess *model.TestSession) *model.TestResults {
	r := &model.TestResults{
		SessionID:      sess.ID,
		ExamID:         sess.ExamID,
		Status:         sess.Status,
		TotalQuestions: sess.TotalQuestions,
		PassingScore:   sess.PassingScore,
		StartedAt:      sess.StartedAt,
	}
	if sess.SubmittedAt != nil {
		r.SubmittedAt = *sess.SubmittedAt
		r.TimeTakenSeconds = min(max(sess.TimeLimitSeconds-sess.TimeRemainingSeconds, 0), sess.TimeLimitSeconds)
	}
	if sess.Score != nil {
		r.Score = *sess.Score
	}
	if sess.CorrectCount != nil {
		r.CorrectCount = *sess.CorrectCount
	}
	if sess.IncorrectCount != nil {
		r.IncorrectCount = *sess.IncorrectCount
	}
	if sess.UnansweredCount != nil {
		r.UnansweredCount = *sess.UnansweredCount
	}
	if sess.Passed != nil {
		r.Passed = *sess.Passed
	}
	return r
}

// GetQuestions resolves the session order without correct answers or
// explanations, whatever the session status.
func (s *TestSessionService) GetQuestions(ctx context.Context, id uuid.UUID) ([]model.Question, error) {
	sess, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(sess.QuestionsOrder) == 0 {
		return []model.Question{}, nil
	}

	questions, err := s.bank.GetByIDs(ctx, sess.QuestionsOrder, false)
	if err != nil {
		return nil, fmt.Errorf("load questions: %w", err)
	}
	for i := range questions {
		questions[i] = questions[i].Redacted()
	}
	return questions, nil
}

// HistoryQuery selects a page of a user's test history.
type HistoryQuery struct {
	Page           int
	Limit          int
	ExamID         *uuid.UUID
	IncludeDetails bool
}

// GetUserHistory lists a user's test sessions, most recent first.
func (s *TestSessionService) GetUserHistory(ctx context.Context, userID uuid.UUID, q HistoryQuery) ([]model.TestHistoryEntry, *response.Pagination, error) {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Limit < 1 {
		q.Limit = defaultHistoryLimit
	}
	if q.Limit > maxHistoryLimit {
		q.Limit = maxHistoryLimit
	}

	entries, total, err := s.store.ListTestHistory(ctx, userID, model.TestHistoryFilter{
		ExamID:         q.ExamID,
		Limit:          q.Limit,
		Offset:         (q.Page - 1) * q.Limit,
		IncludeDetails: q.IncludeDetails,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("list test history: %w", err)
	}
	if entries == nil {
		entries = []model.TestHistoryEntry{}
	}
	return entries, response.NewPagination(q.Page, q.Limit, total), nil
}

// CollectHistory pages through a user's history and returns at most limit
// entries, most recent first.
func (s *TestSessionService) CollectHistory(ctx context.Context, userID uuid.UUID, examID *uuid.UUID, limit int) ([]model.TestHistoryEntry, error) {
	out := []model.TestHistoryEntry{}
	for page := 1; len(out) < limit; page++ {
		entries, pagination, err := s.GetUserHistory(ctx, userID, HistoryQuery{Page: page, Limit: maxHistoryLimit, ExamID: examID})
		if err != nil {
			return nil, err
		}
		out = append(out, entries...)
		if !pagination.HasMore || len(entries) == 0 {
			break
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ExpireDue expires up to limit active sessions whose deadline has passed.
// It returns how many sessions it expired.
func (s *TestSessionService) ExpireDue(ctx context.Context, limit int) (int, error) {
	ids, err := s.store.ListDueTests(ctx, s.clock.Now(), limit)
	if err != nil {
		return 0, fmt.Errorf("list due sessions: %w", err)
	}

	expired := 0
	for _, id := range ids {
		if _, err := s.Expire(ctx, id); err != nil {
			if errors.Is(err, ErrInvalidState) || errors.Is(err, ErrNotFound) {
				continue
			}
			return expired, err
		}
		expired++
	}
	return expired, nil
}

// Pause stops the clock of an active session.
func (s *TestSessionService) Pause(ctx context.Context, id uuid.UUID) (*model.TestSession, error) {
	now := s.clock.Now()
	sess, err := s.store.UpdateTest(ctx, id, func(sess *model.TestSession) error {
		if sess.Status != model.TestStatusActive {
			return ErrSessionNotActive
		}
		sess.TimeRemainingSeconds = sess.RemainingAt(now)
		sess.Status = model.TestStatusPaused
		sess.LastActivityAt = now
		return nil
	})
	if err != nil {
		return nil, storeErr("pause test session", err)
	}
	s.cancelSchedule(ctx, sess.ID)
	return sess, nil
}

// Resume restarts the clock of a paused session with the time it had left.
func (s *TestSessionService) Resume(ctx context.Context, id uuid.UUID) (*model.TestSession, error) {
	now := s.clock.Now()
	sess, err := s.store.UpdateTest(ctx, id, func(sess *model.TestSession) error {
		if sess.Status != model.TestStatusPaused {
			return ErrSessionNotPaused
		}
		if !model.IsResumable(sess.LastActivityAt, now) {
			return ErrSessionStale
		}
		sess.Status = model.TestStatusActive
		sess.ExpiresAt = now.Add(time.Duration(sess.TimeRemainingSeconds) * time.Second)
		sess.LastActivityAt = now
		return nil
	})
	if err != nil {
		return nil, storeErr("resume test session", err)
	}
	s.schedule(ctx, sess)
	return sess, nil
}

// Abandon closes an ungraded session without results.
func (s *TestSessionService) Abandon(ctx context.Context, id uuid.UUID) (*model.TestSession, error) {
	now := s.clock.Now()
	sess, err := s.store.UpdateTest(ctx, id, func(sess *model.TestSession) error {
		switch {
		case sess.HasResults():
			return ErrAlreadyGraded
		case sess.Status == model.TestStatusAbandoned:
			return ErrSessionNotActive
		}
		sess.Status = model.TestStatusAbandoned
		sess.LastActivityAt = now
		return nil
	})
	if err != nil {
		return nil, storeErr("abandon test session", err)
	}
	s.cancelSchedule(ctx, sess.ID)
	s.publish(ctx, events.New(events.TypeTestAbandoned, sess.ID, sess.UserID, sess.ExamID, now, nil))
	return sess, nil
}

func (s *TestSessionService) schedule(ctx context.Context, sess *model.TestSession) {
	if err := s.scheduler.Schedule(ctx, sess.ID, sess.ExpiresAt); err != nil {
		s.log.Warn().Err(err).Str("session_id", sess.ID.String()).Msg("Deadline schedule failed")
	}
}

func (s *TestSessionService) cancelSchedule(ctx context.Context, id uuid.UUID) {
	if err := s.scheduler.Cancel(ctx, id); err != nil {
		s.log.Warn().Err(err).Str("session_id", id.String()).Msg("Deadline cancel failed")
	}
}

func (s *TestSessionService) reportCorruption(sess *model.TestSession) {
	if len(sess.Corrupted) == 0 {
		return
	}
	s.log.Error().
		Str("session_id", sess.ID.String()).
		Strs("fields", sess.Corrupted).
		Msg("Stored collections failed to decode, using empty values")
}

// intact refuses to modify or grade a session whose stored collections
// failed to decode.
func (s *TestSessionService) intact(sess *model.TestSession) error {
	if len(sess.Corrupted) == 0 {
		return nil
	}
	s.log.Error().
		Str("session_id", sess.ID.String()).
		Strs("fields", sess.Corrupted).
		Msg("Refusing to write session with corrupted collections")
	return ErrCorruptedSession
}

func (s *TestSessionService) publish(ctx context.Context, evt events.Event) {
	if err := s.events.Publish(ctx, evt); err != nil {
		s.log.Warn().Err(err).
			Str("event_type", string(evt.Type)).
			Str("session_id", evt.SessionID.String()).
			Msg("Event publish failed")
	}
}
