// Package memory is an in-process implementation of the session stores and
// question bank. It enforces the same constraints as the PostgreSQL schema.
package memory

import (
	"context"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stemsi/exprep-backend/internal/model"
	"github.com/stemsi/exprep-backend/internal/repository"
)

// Store holds exams, questions and sessions in memory. All methods are safe
// for concurrent use; updates are serialized.
type Store struct {
	mu        sync.Mutex
	exams     map[uuid.UUID]model.Exam
	questions map[uuid.UUID]model.Question
	study     map[uuid.UUID]*model.StudySession
	tests     map[uuid.UUID]*model.TestSession
}

func NewStore() *Store {
	return &Store{
		exams:     make(map[uuid.UUID]model.Exam),
		questions: make(map[uuid.UUID]model.Question),
		study:     make(map[uuid.UUID]*model.StudySession),
		tests:     make(map[uuid.UUID]*model.TestSession),
	}
}

// ─── Question bank ──────────────────────────────────────────────────

// SaveExam inserts or replaces an exam.
func (s *Store) SaveExam(e model.Exam) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.exams[e.ID] = e
}

// SaveQuestion inserts or replaces a question.
func (s *Store) SaveQuestion(q model.Question) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.questions[q.ID] = cloneQuestion(q)
}

// DeleteQuestion removes a question from the bank.
func (s *Store) DeleteQuestion(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.questions, id)
}

func (s *Store) GetByIDs(_ context.Context, ids []uuid.UUID, includeAnswers bool) ([]model.Question, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]model.Question, 0, len(ids))
	for _, id := range ids {
		q, ok := s.questions[id]
		if !ok {
			continue
		}
		if includeAnswers {
			out = append(out, cloneQuestion(q))
		} else {
			out = append(out, q.Redacted())
		}
	}
	return out, nil
}

// ListExams returns every exam ordered by code.
func (s *Store) ListExams(_ context.Context) ([]model.Exam, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	exams := slices.Collect(maps.Values(s.exams))
	sort.Slice(exams, func(i, j int) bool { return exams[i].Code < exams[j].Code })
	return exams, nil
}

// ListByExam returns every question of an exam with answers.
func (s *Store) ListByExam(_ context.Context, examID uuid.UUID) ([]model.Question, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []model.Question
	for _, q := range s.questions {
		if q.ExamID == examID {
			out = append(out, cloneQuestion(q))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return out, nil
}

// ─── Study sessions ─────────────────────────────────────────────────

func (s *Store) CreateStudy(_ context.Context, sess *model.StudySession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess.Status == model.StudyStatusActive && s.activeStudyExists(sess.UserID, sess.ExamID, sess.ID) {
		return repository.ErrActiveSessionExists
	}
	s.study[sess.ID] = cloneStudy(sess)
	return nil
}

func (s *Store) GetStudy(_ context.Context, id uuid.UUID) (*model.StudySession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.study[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return cloneStudy(sess), nil
}

func (s *Store) ActiveStudy(_ context.Context, userID uuid.UUID, examID *uuid.UUID) (*model.StudySession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var best *model.StudySession
	for _, sess := range s.study {
		if sess.UserID != userID {
			continue
		}
		if examID != nil && sess.ExamID != *examID {
			continue
		}
		if sess.Status != model.StudyStatusActive && sess.Status != model.StudyStatusPaused {
			continue
		}
		if best == nil || sess.LastActivityAt.After(best.LastActivityAt) {
			best = sess
		}
	}
	if best == nil {
		return nil, repository.ErrNotFound
	}
	return cloneStudy(best), nil
}

func (s *Store) UpdateStudy(_ context.Context, id uuid.UUID, fn func(*model.StudySession) error) (*model.StudySession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.study[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	next := cloneStudy(cur)
	if err := fn(next); err != nil {
		return nil, err
	}
	if next.Status == model.StudyStatusActive && s.activeStudyExists(next.UserID, next.ExamID, next.ID) {
		return nil, repository.ErrActiveSessionExists
	}
	s.study[id] = next
	return cloneStudy(next), nil
}

func (s *Store) activeStudyExists(userID, examID, except uuid.UUID) bool {
	for id, sess := range s.study {
		if id != except && sess.UserID == userID && sess.ExamID == examID && sess.Status == model.StudyStatusActive {
			return true
		}
	}
	return false
}

// ─── Test sessions ──────────────────────────────────────────────────

func (s *Store) CreateTest(_ context.Context, sess *model.TestSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess.Status == model.TestStatusActive && s.activeTestExists(sess.UserID, sess.ExamID, sess.ID) {
		return repository.ErrActiveSessionExists
	}
	s.tests[sess.ID] = cloneTest(sess)
	return nil
}

func (s *Store) GetTest(_ context.Context, id uuid.UUID) (*model.TestSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.tests[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return cloneTest(sess), nil
}

func (s *Store) UpdateTest(_ context.Context, id uuid.UUID, fn func(*model.TestSession) error) (*model.TestSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.tests[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	next := cloneTest(cur)
	if err := fn(next); err != nil {
		return nil, err
	}
	if next.Status == model.TestStatusActive && s.activeTestExists(next.UserID, next.ExamID, next.ID) {
		return nil, repository.ErrActiveSessionExists
	}
	s.tests[id] = next
	return cloneTest(next), nil
}

func (s *Store) ListTestHistory(_ context.Context, userID uuid.UUID, filter model.TestHistoryFilter) ([]model.TestHistoryEntry, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var matched []*model.TestSession
	for _, sess := range s.tests {
		if sess.UserID != userID {
			continue
		}
		if filter.ExamID != nil && sess.ExamID != *filter.ExamID {
			continue
		}
		matched = append(matched, sess)
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].StartedAt.After(matched[j].StartedAt)
	})

	total := len(matched)
	start := min(filter.Offset, total)
	end := total
	if filter.Limit > 0 {
		end = min(start+filter.Limit, total)
	}

	entries := make([]model.TestHistoryEntry, 0, end-start)
	for _, sess := range matched[start:end] {
		exam := s.exams[sess.ExamID]
		entry := model.TestHistoryEntry{
			ID:               sess.ID,
			ExamID:           sess.ExamID,
			ExamCode:         exam.Code,
			ExamName:         exam.Name,
			Status:           sess.Status,
			TotalQuestions:   sess.TotalQuestions,
			AnsweredCount:    sess.AnsweredCount,
			TimeLimitSeconds: sess.TimeLimitSeconds,
			StartedAt:        sess.StartedAt,
			SubmittedAt:      cloneTime(sess.SubmittedAt),
			Score:            clonePtr(sess.Score),
			Passed:           clonePtr(sess.Passed),
		}
		if filter.IncludeDetails {
			entry.Details = cloneTest(sess)
		}
		entries = append(entries, entry)
	}
	return entries, total, nil
}

func (s *Store) ListDueTests(_ context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var due []*model.TestSession
	for _, sess := range s.tests {
		if sess.Status == model.TestStatusActive && !sess.ExpiresAt.After(now) {
			due = append(due, sess)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].ExpiresAt.Before(due[j].ExpiresAt) })
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}

	ids := make([]uuid.UUID, len(due))
	for i, sess := range due {
		ids[i] = sess.ID
	}
	return ids, nil
}

func (s *Store) activeTestExists(userID, examID, except uuid.UUID) bool {
	for id, sess := range s.tests {
		if id != except && sess.UserID == userID && sess.ExamID == examID && sess.Status == model.TestStatusActive {
			return true
		}
	}
	return false
}

// ─── Copies ─────────────────────────────────────────────────────────

func cloneQuestion(q model.Question) model.Question {
	q.Options = slices.Clone(q.Options)
	q.CorrectAnswers = slices.Clone(q.CorrectAnswers)
	if q.Explanation != nil {
		e := *q.Explanation
		q.Explanation = &e
	}
	return q
}

func cloneStudy(src *model.StudySession) *model.StudySession {
	dst := *src
	dst.QuestionsOrder = slices.Clone(src.QuestionsOrder)
	dst.Answers = make(model.StudyAnswers, len(src.Answers))
	for id, a := range src.Answers {
		a.Selected = slices.Clone(a.Selected)
		dst.Answers[id] = a
	}
	dst.Bookmarks = maps.Clone(src.Bookmarks)
	dst.Flags = maps.Clone(src.Flags)
	dst.CompletedAt = cloneTime(src.CompletedAt)
	dst.Corrupted = slices.Clone(src.Corrupted)
	dst.EnsureCollections()
	return &dst
}

func cloneTest(src *model.TestSession) *model.TestSession {
	dst := *src
	dst.QuestionsOrder = slices.Clone(src.QuestionsOrder)
	dst.Answers = make(model.PositionAnswers, len(src.Answers))
	for pos, sel := range src.Answers {
		dst.Answers[pos] = slices.Clone(sel)
	}
	dst.Flagged = maps.Clone(src.Flagged)
	dst.SubmittedAt = cloneTime(src.SubmittedAt)
	dst.LastAutoSaveAt = cloneTime(src.LastAutoSaveAt)
	dst.Score = clonePtr(src.Score)
	dst.CorrectCount = clonePtr(src.CorrectCount)
	dst.IncorrectCount = clonePtr(src.IncorrectCount)
	dst.UnansweredCount = clonePtr(src.UnansweredCount)
	dst.Passed = clonePtr(src.Passed)
	dst.Corrupted = slices.Clone(src.Corrupted)
	dst.EnsureCollections()
	return &dst
}

func cloneTime(t *time.Time) *time.Time {
	return clonePtr(t)
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
