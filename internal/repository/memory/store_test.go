package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stemsi/exprep-backend/internal/model"
	"github.com/stemsi/exprep-backend/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func testSession(user, exam uuid.UUID) *model.TestSession {
	s := &model.TestSession{
		ID:             uuid.New(),
		UserID:         user,
		ExamID:         exam,
		Status:         model.TestStatusActive,
		QuestionsOrder: model.QuestionOrder{uuid.New(), uuid.New()},
		StartedAt:      t0,
		ExpiresAt:      t0.Add(time.Minute),
	}
	s.EnsureCollections()
	return s
}

func TestGetByIDsKeepsOrderAndRedacts(t *testing.T) {
	s := NewStore()
	exp := "why"
	a := model.Question{ID: uuid.New(), Options: []string{"x"}, CorrectAnswers: []int{0}, Explanation: &exp}
	b := model.Question{ID: uuid.New(), Options: []string{"y"}, CorrectAnswers: []int{0}}
	s.SaveQuestion(a)
	s.SaveQuestion(b)

	got, err := s.GetByIDs(context.Background(), []uuid.UUID{b.ID, uuid.New(), a.ID}, false)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, b.ID, got[0].ID)
	assert.Equal(t, a.ID, got[1].ID)
	assert.Nil(t, got[1].CorrectAnswers)
	assert.Nil(t, got[1].Explanation)

	got, err = s.GetByIDs(context.Background(), []uuid.UUID{a.ID}, true)
	require.NoError(t, err)
	assert.Equal(t, []int{0}, got[0].CorrectAnswers)
}

func TestReturnedSessionsAreCopies(t *testing.T) {
	s := NewStore()
	sess := testSession(uuid.New(), uuid.New())
	require.NoError(t, s.CreateTest(context.Background(), sess))

	got, err := s.GetTest(context.Background(), sess.ID)
	require.NoError(t, err)
	got.Answers[0] = []int{1}
	got.QuestionsOrder[0] = uuid.Nil

	again, err := s.GetTest(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Empty(t, again.Answers)
	assert.Equal(t, sess.QuestionsOrder[0], again.QuestionsOrder[0])
}

func TestUpdateAbortsOnError(t *testing.T) {
	s := NewStore()
	sess := testSession(uuid.New(), uuid.New())
	require.NoError(t, s.CreateTest(context.Background(), sess))

	boom := errors.New("boom")
	_, err := s.UpdateTest(context.Background(), sess.ID, func(ts *model.TestSession) error {
		ts.AutoSaveCount = 7
		return boom
	})
	assert.ErrorIs(t, err, boom)

	got, err := s.GetTest(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Zero(t, got.AutoSaveCount)

	_, err = s.UpdateTest(context.Background(), uuid.New(), func(*model.TestSession) error { return nil })
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestActiveTestUniqueness(t *testing.T) {
	s := NewStore()
	user, exam := uuid.New(), uuid.New()
	ctx := context.Background()

	first := testSession(user, exam)
	require.NoError(t, s.CreateTest(ctx, first))
	assert.ErrorIs(t, s.CreateTest(ctx, testSession(user, exam)), repository.ErrActiveSessionExists)

	_, err := s.UpdateTest(ctx, first.ID, func(ts *model.TestSession) error {
		ts.Status = model.TestStatusSubmitted
		return nil
	})
	require.NoError(t, err)
	assert.NoError(t, s.CreateTest(ctx, testSession(user, exam)))
}

func TestActiveStudyPicksMostRecent(t *testing.T) {
	s := NewStore()
	user := uuid.New()
	ctx := context.Background()

	older := &model.StudySession{ID: uuid.New(), UserID: user, ExamID: uuid.New(), Status: model.StudyStatusPaused, LastActivityAt: t0}
	newer := &model.StudySession{ID: uuid.New(), UserID: user, ExamID: uuid.New(), Status: model.StudyStatusActive, LastActivityAt: t0.Add(time.Hour)}
	closed := &model.StudySession{ID: uuid.New(), UserID: user, ExamID: uuid.New(), Status: model.StudyStatusCompleted, LastActivityAt: t0.Add(2 * time.Hour)}
	for _, sess := range []*model.StudySession{older, newer, closed} {
		require.NoError(t, s.CreateStudy(ctx, sess))
	}

	got, err := s.ActiveStudy(ctx, user, nil)
	require.NoError(t, err)
	assert.Equal(t, newer.ID, got.ID)

	got, err = s.ActiveStudy(ctx, user, &older.ExamID)
	require.NoError(t, err)
	assert.Equal(t, older.ID, got.ID)

	_, err = s.ActiveStudy(ctx, user, &closed.ExamID)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestListDueTests(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	late := testSession(uuid.New(), uuid.New())
	late.ExpiresAt = t0.Add(2 * time.Minute)
	early := testSession(uuid.New(), uuid.New())
	early.ExpiresAt = t0.Add(time.Minute)
	future := testSession(uuid.New(), uuid.New())
	future.ExpiresAt = t0.Add(time.Hour)
	paused := testSession(uuid.New(), uuid.New())
	paused.Status = model.TestStatusPaused
	for _, sess := range []*model.TestSession{late, early, future, paused} {
		require.NoError(t, s.CreateTest(ctx, sess))
	}

	due, err := s.ListDueTests(ctx, t0.Add(10*time.Minute), 10)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{early.ID, late.ID}, due)

	due, err = s.ListDueTests(ctx, t0.Add(10*time.Minute), 1)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{early.ID}, due)
}
