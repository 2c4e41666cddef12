package service

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"github.com/stemsi/exprep-backend/internal/events"
	"github.com/stemsi/exprep-backend/internal/model"
)

// QuestionBank resolves question ids. Results follow the order of ids,
// unresolvable ids are omitted, and correctness data is stripped unless
// includeAnswers is set.
type QuestionBank interface {
	GetByIDs(ctx context.Context, ids []uuid.UUID, includeAnswers bool) ([]model.Question, error)
}

// StudySessionStore persists study sessions. UpdateStudy runs fn inside a
// read-modify-write transaction; an error from fn aborts the write.
type StudySessionStore interface {
	CreateStudy(ctx context.Context, s *model.StudySession) error
	GetStudy(ctx context.Context, id uuid.UUID) (*model.StudySession, error)
	ActiveStudy(ctx context.Context, userID uuid.UUID, examID *uuid.UUID) (*model.StudySession, error)
	UpdateStudy(ctx context.Context, id uuid.UUID, fn func(*model.StudySession) error) (*model.StudySession, error)
}

// TestSessionStore persists test sessions.
type TestSessionStore interface {
	CreateTest(ctx context.Context, s *model.TestSession) error
	GetTest(ctx context.Context, id uuid.UUID) (*model.TestSession, error)
	UpdateTest(ctx context.Context, id uuid.UUID, fn func(*model.TestSession) error) (*model.TestSession, error)
	ListTestHistory(ctx context.Context, userID uuid.UUID, filter model.TestHistoryFilter) ([]model.TestHistoryEntry, int, error)
	ListDueTests(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error)
}

// DeadlineScheduler tracks when active test sessions run out of time.
type DeadlineScheduler interface {
	Schedule(ctx context.Context, sessionID uuid.UUID, deadline time.Time) error
	Cancel(ctx context.Context, sessionID uuid.UUID) error
}

type nopScheduler struct{}

func (nopScheduler) Schedule(context.Context, uuid.UUID, time.Time) error { return nil }
func (nopScheduler) Cancel(context.Context, uuid.UUID) error              { return nil }

// ParseQuestionIDs decodes a serialized question id list.
func ParseQuestionIDs(raw json.RawMessage) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	if err := json.Unmarshal(raw, &ids); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedQuestions, err)
	}
	if len(ids) == 0 {
		return nil, ErrEmptyQuestionList
	}
	return ids, nil
}

func shuffleOrder(order model.QuestionOrder) {
	rand.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
}

// EventPublisher delivers lifecycle events after a state change commits.
type EventPublisher interface {
	Publish(ctx context.Context, evt events.Event) error
}
