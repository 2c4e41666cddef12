package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stemsi/exprep-backend/internal/events"
	"github.com/stemsi/exprep-backend/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (f *fixture) newStudy(t *testing.T, mode model.StudyMode) *model.StudySession {
	t.Helper()
	sess, err := f.study.Create(context.Background(), StudyCreateInput{
		UserID:      f.userID,
		ExamID:      f.examID,
		Mode:        mode,
		QuestionIDs: f.questions,
	})
	require.NoError(t, err)
	return sess
}

func TestStudyCreateSequential(t *testing.T) {
	f := newFixture(t)
	sess := f.newStudy(t, model.StudyModeSequential)

	assert.Equal(t, model.StudyStatusActive, sess.Status)
	assert.Equal(t, model.QuestionOrder(f.questions), sess.QuestionsOrder)
	assert.Equal(t, t0, sess.StartedAt)
	assert.Equal(t, t0, sess.LastActivityAt)
	assert.Equal(t, model.DefaultStudySettings, sess.Settings)
	assert.Empty(t, sess.Answers)
	assert.Zero(t, sess.CorrectAnswers)

	stored, err := f.study.Get(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Equal(t, sess.QuestionsOrder, stored.QuestionsOrder)
}

func TestStudyCreateRandomTruncatesThenShuffles(t *testing.T) {
	f := newFixture(t)
	f.study.shuffle = reverse
	limit := 3

	sess, err := f.study.Create(context.Background(), StudyCreateInput{
		UserID:       f.userID,
		ExamID:       f.examID,
		Mode:         model.StudyModeRandom,
		QuestionIDs:  f.questions,
		MaxQuestions: &limit,
	})
	require.NoError(t, err)
	assert.Equal(t, model.QuestionOrder{f.questions[2], f.questions[1], f.questions[0]}, sess.QuestionsOrder)
}

func TestStudyCreateRejectsInput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	zero := 0

	_, err := f.study.Create(ctx, StudyCreateInput{UserID: f.userID, ExamID: f.examID, Mode: model.StudyModeSequential})
	assert.ErrorIs(t, err, ErrEmptyQuestionList)

	_, err = f.study.Create(ctx, StudyCreateInput{UserID: f.userID, ExamID: f.examID, Mode: "cram", QuestionIDs: f.questions})
	assert.ErrorIs(t, err, ErrUnknownStudyMode)

	_, err = f.study.Create(ctx, StudyCreateInput{UserID: f.userID, ExamID: f.examID, Mode: model.StudyModeSequential, QuestionIDs: f.questions, MaxQuestions: &zero})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestStudyOneActivePerExam(t *testing.T) {
	f := newFixture(t)
	first := f.newStudy(t, model.StudyModeSequential)

	_, err := f.study.Create(context.Background(), StudyCreateInput{
		UserID: f.userID, ExamID: f.examID, Mode: model.StudyModeSequential, QuestionIDs: f.questions,
	})
	assert.ErrorIs(t, err, ErrActiveSessionExists)

	// A paused session does not block a new one.
	_, err = f.study.Pause(context.Background(), first.ID)
	require.NoError(t, err)
	f.newStudy(t, model.StudyModeSequential)

	// But the paused one cannot be resumed while the other is active.
	_, err = f.study.Resume(context.Background(), first.ID)
	assert.ErrorIs(t, err, ErrActiveSessionExists)
}

func TestStudyRecordAnswerMovesCounters(t *testing.T) {
	f := newFixture(t)
	sess := f.newStudy(t, model.StudyModeSequential)
	ctx := context.Background()
	qid := f.questions[0]

	fb, err := f.study.RecordAnswer(ctx, sess.ID, StudyAnswerInput{QuestionID: qid, Selected: []int{2}, TimeSpent: 10})
	require.NoError(t, err)
	assert.False(t, fb.Correct)
	assert.Equal(t, []int{0}, fb.CorrectAnswers)
	require.NotNil(t, fb.Explanation)
	assert.Equal(t, 0, fb.Session.CorrectAnswers)
	assert.Equal(t, 1, fb.Session.IncorrectAnswers)

	fb, err = f.study.RecordAnswer(ctx, sess.ID, StudyAnswerInput{QuestionID: qid, Selected: []int{0}, TimeSpent: 5})
	require.NoError(t, err)
	assert.True(t, fb.Correct)
	assert.Equal(t, 1, fb.Session.CorrectAnswers)
	assert.Equal(t, 0, fb.Session.IncorrectAnswers)
	assert.Equal(t, 15, fb.Session.TimeSpentSeconds)
	assert.Len(t, fb.Session.Answers, 1)
}

func TestStudyRecordAnswerMultipleChoiceIgnoresOrder(t *testing.T) {
	f := newFixture(t)
	sess := f.newStudy(t, model.StudyModeSequential)

	fb, err := f.study.RecordAnswer(context.Background(), sess.ID, StudyAnswerInput{
		QuestionID: f.questions[4], Selected: []int{2, 1, 2},
	})
	require.NoError(t, err)
	assert.True(t, fb.Correct)
	assert.Equal(t, []int{1, 2}, fb.Session.Answers[f.questions[4]].Selected)
}

func TestStudyRecordAnswerHidesExplanation(t *testing.T) {
	f := newFixture(t)
	sess, err := f.study.Create(context.Background(), StudyCreateInput{
		UserID: f.userID, ExamID: f.examID, Mode: model.StudyModeSequential, QuestionIDs: f.questions,
		Settings: &model.StudySettings{ShowExplanations: false},
	})
	require.NoError(t, err)

	fb, err := f.study.RecordAnswer(context.Background(), sess.ID, StudyAnswerInput{QuestionID: f.questions[0], Selected: []int{0}})
	require.NoError(t, err)
	assert.Nil(t, fb.Explanation)
}

func TestStudyRecordAnswerErrors(t *testing.T) {
	f := newFixture(t)
	sess := f.newStudy(t, model.StudyModeSequential)
	ctx := context.Background()

	_, err := f.study.RecordAnswer(ctx, sess.ID, StudyAnswerInput{QuestionID: uuid.New(), Selected: []int{0}})
	assert.ErrorIs(t, err, ErrQuestionNotInOrder)

	f.store.DeleteQuestion(f.questions[1])
	_, err = f.study.RecordAnswer(ctx, sess.ID, StudyAnswerInput{QuestionID: f.questions[1], Selected: []int{0}})
	assert.ErrorIs(t, err, ErrQuestionNotFound)

	_, err = f.study.RecordAnswer(ctx, uuid.New(), StudyAnswerInput{QuestionID: f.questions[0], Selected: []int{0}})
	assert.ErrorIs(t, err, ErrSessionNotFound)

	_, err = f.study.Complete(ctx, sess.ID)
	require.NoError(t, err)
	_, err = f.study.RecordAnswer(ctx, sess.ID, StudyAnswerInput{QuestionID: f.questions[0], Selected: []int{0}})
	assert.ErrorIs(t, err, ErrSessionNotActive)
}

func TestStudyUpdateProgress(t *testing.T) {
	f := newFixture(t)
	sess := f.newStudy(t, model.StudyModeSequential)
	f.clock.Advance(time.Minute)

	idx, spent := 3, 120
	updated, err := f.study.UpdateProgress(context.Background(), sess.ID, model.StudyProgressPatch{
		CurrentQuestionIndex: &idx,
		TimeSpentSeconds:     &spent,
		Bookmarks:            model.NewIDSet(f.questions[1]),
	})
	require.NoError(t, err)
	assert.Equal(t, 3, updated.CurrentQuestionIndex)
	assert.Equal(t, 120, updated.TimeSpentSeconds)
	assert.True(t, updated.Bookmarks.Has(f.questions[1]))
	assert.Equal(t, t0.Add(time.Minute), updated.LastActivityAt)
	assert.Equal(t, sess.QuestionsOrder, updated.QuestionsOrder)
}

func TestStudyGetActive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	none, err := f.study.GetActive(ctx, f.userID, nil)
	require.NoError(t, err)
	assert.Nil(t, none)

	sess := f.newStudy(t, model.StudyModeSequential)
	got, err := f.study.GetActive(ctx, f.userID, &f.examID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, sess.ID, got.ID)

	other := uuid.New()
	got, err = f.study.GetActive(ctx, f.userID, &other)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestStudyCompleteAndAbandon(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sess := f.newStudy(t, model.StudyModeSequential)

	f.clock.Advance(10 * time.Minute)
	done, err := f.study.Complete(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StudyStatusCompleted, done.Status)
	require.NotNil(t, done.CompletedAt)
	assert.Equal(t, t0.Add(10*time.Minute), *done.CompletedAt)

	// Completing again re-stamps the timestamps.
	f.clock.Advance(time.Minute)
	again, err := f.study.Complete(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, t0.Add(11*time.Minute), *again.CompletedAt)

	other := f.newStudy(t, model.StudyModeSequential)
	abandoned, err := f.study.Abandon(ctx, other.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StudyStatusAbandoned, abandoned.Status)

	assert.Equal(t, []events.Type{
		events.TypeStudyCompleted,
		events.TypeStudyCompleted,
		events.TypeStudyAbandoned,
	}, f.events.Types())
}

func TestStudyPauseResume(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sess := f.newStudy(t, model.StudyModeSequential)

	_, err := f.study.Resume(ctx, sess.ID)
	assert.ErrorIs(t, err, ErrSessionNotPaused)

	paused, err := f.study.Pause(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StudyStatusPaused, paused.Status)

	_, err = f.study.Pause(ctx, sess.ID)
	assert.ErrorIs(t, err, ErrSessionNotActive)

	f.clock.Advance(model.ResumeWindow - time.Second)
	resumed, err := f.study.Resume(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StudyStatusActive, resumed.Status)
}

func TestStudyResumeStale(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sess := f.newStudy(t, model.StudyModeSequential)

	_, err := f.study.Pause(ctx, sess.ID)
	require.NoError(t, err)
	f.clock.Advance(model.ResumeWindow)

	_, err = f.study.Resume(ctx, sess.ID)
	assert.ErrorIs(t, err, ErrSessionStale)
}

func TestStudyGetQuestionsIncludesAnswers(t *testing.T) {
	f := newFixture(t)
	sess := f.newStudy(t, model.StudyModeSequential)
	f.store.DeleteQuestion(f.questions[2])

	questions, err := f.study.GetQuestions(context.Background(), sess.ID)
	require.NoError(t, err)
	require.Len(t, questions, 4)
	assert.Equal(t, f.questions[0], questions[0].ID)
	assert.Equal(t, f.questions[3], questions[2].ID)
	assert.Equal(t, []int{0}, questions[0].CorrectAnswers)
	assert.NotNil(t, questions[0].Explanation)
}
