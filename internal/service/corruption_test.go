package service

import (
	"context"
	"slices"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exprep-backend/internal/model"
	"github.com/stemsi/exprep-backend/internal/repository/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// corruptStore reads sessions the way the PostgreSQL store does when the
// listed JSONB columns fail to decode: the collection comes back empty and
// is named in Corrupted.
type corruptStore struct {
	*memory.Store
	fields []string
}

func (c corruptStore) has(field string) bool { return slices.Contains(c.fields, field) }

func (c corruptStore) corruptTest(sess *model.TestSession) {
	if c.has(model.FieldQuestionsOrder) {
		sess.QuestionsOrder = model.QuestionOrder{}
	}
	if c.has(model.FieldAnswers) {
		sess.Answers = model.PositionAnswers{}
	}
	sess.Corrupted = slices.Clone(c.fields)
}

func (c corruptStore) corruptStudy(sess *model.StudySession) {
	if c.has(model.FieldQuestionsOrder) {
		sess.QuestionsOrder = model.QuestionOrder{}
	}
	if c.has(model.FieldAnswers) {
		sess.Answers = model.StudyAnswers{}
	}
	sess.Corrupted = slices.Clone(c.fields)
}

func (c corruptStore) GetTest(ctx context.Context, id uuid.UUID) (*model.TestSession, error) {
	sess, err := c.Store.GetTest(ctx, id)
	if err != nil {
		return nil, err
	}
	c.corruptTest(sess)
	return sess, nil
}

func (c corruptStore) UpdateTest(ctx context.Context, id uuid.UUID, fn func(*model.TestSession) error) (*model.TestSession, error) {
	return c.Store.UpdateTest(ctx, id, func(sess *model.TestSession) error {
		c.corruptTest(sess)
		return fn(sess)
	})
}

func (c corruptStore) GetStudy(ctx context.Context, id uuid.UUID) (*model.StudySession, error) {
	sess, err := c.Store.GetStudy(ctx, id)
	if err != nil {
		return nil, err
	}
	c.corruptStudy(sess)
	return sess, nil
}

func (c corruptStore) UpdateStudy(ctx context.Context, id uuid.UUID, fn func(*model.StudySession) error) (*model.StudySession, error) {
	return c.Store.UpdateStudy(ctx, id, func(sess *model.StudySession) error {
		c.corruptStudy(sess)
		return fn(sess)
	})
}

func (f *fixture) corruptTestService(fields ...string) *TestSessionService {
	store := corruptStore{Store: f.store, fields: fields}
	return NewTestSessionService(store, f.store, f.scheduler, f.events, f.clock, zerolog.Nop())
}

func (f *fixture) corruptStudyService(fields ...string) *StudySessionService {
	store := corruptStore{Store: f.store, fields: fields}
	return NewStudySessionService(store, f.store, f.events, f.clock, zerolog.Nop())
}

func TestTestCorruptedAnswersRefuseWrites(t *testing.T) {
	f := newFixture(t)
	sess := f.newTest(t)
	ctx := context.Background()
	f.answerFirst(t, sess.ID, 2)

	svc := f.corruptTestService(model.FieldAnswers)

	_, err := svc.MergeAnswers(ctx, sess.ID, model.PositionAnswers{3: {0}})
	assert.ErrorIs(t, err, ErrCorruptedSession)
	assert.ErrorIs(t, err, ErrInvalidState)

	_, err = svc.SaveAnswer(ctx, sess.ID, SaveAnswerInput{QuestionIndex: 3, Selected: []int{0}})
	assert.ErrorIs(t, err, ErrCorruptedSession)

	_, err = svc.Submit(ctx, sess.ID)
	assert.ErrorIs(t, err, ErrCorruptedSession)
	_, err = svc.Expire(ctx, sess.ID)
	assert.ErrorIs(t, err, ErrCorruptedSession)
	_, err = svc.GetResults(ctx, sess.ID)
	assert.ErrorIs(t, err, ErrResultsUnavailable)

	stored, err := f.store.GetTest(ctx, sess.ID)
	require.NoError(t, err)
	assert.Len(t, stored.Answers, 2)
	assert.Equal(t, 1, stored.AutoSaveCount)
	assert.Equal(t, model.TestStatusActive, stored.Status)
	assert.Nil(t, stored.Score)
	assert.Empty(t, f.events.Types())
}

func TestTestCorruptedOrderFailsClosed(t *testing.T) {
	f := newFixture(t)
	sess := f.newTest(t)
	ctx := context.Background()

	svc := f.corruptTestService(model.FieldQuestionsOrder)

	questions, err := svc.GetQuestions(ctx, sess.ID)
	require.NoError(t, err)
	assert.Empty(t, questions)

	_, err = svc.Submit(ctx, sess.ID)
	assert.ErrorIs(t, err, ErrCorruptedSession)

	// Closing out the session only touches its status.
	abandoned, err := svc.Abandon(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TestStatusAbandoned, abandoned.Status)
}

func TestStudyCorruptedAnswersRefuseWrites(t *testing.T) {
	f := newFixture(t)
	sess := f.newStudy(t, model.StudyModeSequential)
	ctx := context.Background()

	_, err := f.study.RecordAnswer(ctx, sess.ID, StudyAnswerInput{QuestionID: f.questions[0], Selected: []int{0}})
	require.NoError(t, err)

	svc := f.corruptStudyService(model.FieldAnswers)

	idx := 2
	_, err = svc.UpdateProgress(ctx, sess.ID, model.StudyProgressPatch{CurrentQuestionIndex: &idx})
	assert.ErrorIs(t, err, ErrCorruptedSession)

	_, err = svc.RecordAnswer(ctx, sess.ID, StudyAnswerInput{QuestionID: f.questions[1], Selected: []int{0}})
	assert.ErrorIs(t, err, ErrCorruptedSession)

	stored, err := f.store.GetStudy(ctx, sess.ID)
	require.NoError(t, err)
	assert.Len(t, stored.Answers, 1)
	assert.Equal(t, 1, stored.CorrectAnswers)
	assert.Zero(t, stored.CurrentQuestionIndex)
}

func TestStudyCorruptedOrderYieldsNoQuestions(t *testing.T) {
	f := newFixture(t)
	sess := f.newStudy(t, model.StudyModeSequential)

	questions, err := f.corruptStudyService(model.FieldQuestionsOrder).GetQuestions(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Empty(t, questions)
}
