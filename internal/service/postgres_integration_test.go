//go:build integration

package service

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/stemsi/exprep-backend/internal/model"
	"github.com/stemsi/exprep-backend/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pgFixture struct {
	pool      *pgxpool.Pool
	examID    uuid.UUID
	questions []uuid.UUID
	study     *StudySessionService
	test      *TestSessionService
}

func newPGFixture(t *testing.T) *pgFixture {
	t.Helper()
	url := os.Getenv("DATABASE_URL")
	if url == "" {
		t.Skip("DATABASE_URL not set")
	}

	m, err := migrate.New("file://../../migrations", url)
	require.NoError(t, err)
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		t.Fatalf("migrate up: %v", err)
	}
	m.Close()

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, url)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	f := &pgFixture{pool: pool}
	exam := model.Exam{ID: uuid.New(), Code: "SVC-" + uuid.NewString()[:8], Name: "Service integration"}
	require.NoError(t, repository.NewExamRepository(pool).Upsert(ctx, &exam))
	f.examID = exam.ID

	questions := repository.NewQuestionRepository(pool)
	for range 3 {
		q := model.Question{
			ID:             uuid.New(),
			ExamID:         exam.ID,
			ObjectiveID:    uuid.New(),
			Text:           "q",
			Type:           model.QuestionTypeSingleChoice,
			Options:        []string{"a", "b"},
			CorrectAnswers: []int{1},
		}
		require.NoError(t, questions.Upsert(ctx, &q))
		f.questions = append(f.questions, q.ID)
	}

	log := zerolog.Nop()
	f.study = NewStudySessionService(repository.NewStudySessionRepository(pool), questions, nil, nil, log)
	f.test = NewTestSessionService(repository.NewTestSessionRepository(pool), questions, nil, nil, nil, log)
	return f
}

func (f *pgFixture) newTest(t *testing.T) *model.TestSession {
	t.Helper()
	sess, err := f.test.Create(context.Background(), TestCreateInput{
		UserID:           uuid.New(),
		ExamID:           f.examID,
		QuestionIDs:      f.questions,
		TimeLimitSeconds: 600,
		PassingScore:     50,
	})
	require.NoError(t, err)
	return sess
}

func (f *pgFixture) rawColumn(t *testing.T, table, column string, id uuid.UUID) string {
	t.Helper()
	var raw string
	err := f.pool.QueryRow(context.Background(),
		`SELECT `+column+`::text FROM `+table+` WHERE id = $1`, id).Scan(&raw)
	require.NoError(t, err)
	return raw
}

func TestPostgresCorruptedTestAnswersAreNotOverwritten(t *testing.T) {
	f := newPGFixture(t)
	ctx := context.Background()
	sess := f.newTest(t)

	_, err := f.test.MergeAnswers(ctx, sess.ID, model.PositionAnswers{0: {1}})
	require.NoError(t, err)
	_, err = f.pool.Exec(ctx, `UPDATE test_sessions SET answers = '"oops"' WHERE id = $1`, sess.ID)
	require.NoError(t, err)

	_, err = f.test.MergeAnswers(ctx, sess.ID, model.PositionAnswers{1: {1}})
	assert.ErrorIs(t, err, ErrCorruptedSession)
	_, err = f.test.Submit(ctx, sess.ID)
	assert.ErrorIs(t, err, ErrCorruptedSession)

	got, err := f.test.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.AutoSaveCount)
	assert.Nil(t, got.Score)
	assert.Equal(t, `"oops"`, f.rawColumn(t, "test_sessions", "answers", sess.ID))

	abandoned, err := f.test.Abandon(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TestStatusAbandoned, abandoned.Status)
	assert.Equal(t, `"oops"`, f.rawColumn(t, "test_sessions", "answers", sess.ID))
}

func TestPostgresCorruptedTestOrderFailsClosed(t *testing.T) {
	f := newPGFixture(t)
	ctx := context.Background()
	sess := f.newTest(t)

	_, err := f.pool.Exec(ctx, `UPDATE test_sessions SET questions_order = '{"x": 1}' WHERE id = $1`, sess.ID)
	require.NoError(t, err)

	questions, err := f.test.GetQuestions(ctx, sess.ID)
	require.NoError(t, err)
	assert.Empty(t, questions)

	_, err = f.test.Submit(ctx, sess.ID)
	assert.ErrorIs(t, err, ErrCorruptedSession)
	_, err = f.test.GetResults(ctx, sess.ID)
	assert.ErrorIs(t, err, ErrResultsUnavailable)
}

func TestPostgresCorruptedStudyBookmarksAreNotOverwritten(t *testing.T) {
	f := newPGFixture(t)
	ctx := context.Background()

	sess, err := f.study.Create(ctx, StudyCreateInput{
		UserID:      uuid.New(),
		ExamID:      f.examID,
		Mode:        model.StudyModeSequential,
		QuestionIDs: f.questions,
	})
	require.NoError(t, err)
	_, err = f.pool.Exec(ctx, `UPDATE study_sessions SET bookmarks = '"bad"' WHERE id = $1`, sess.ID)
	require.NoError(t, err)

	idx := 1
	_, err = f.study.UpdateProgress(ctx, sess.ID, model.StudyProgressPatch{CurrentQuestionIndex: &idx})
	assert.ErrorIs(t, err, ErrCorruptedSession)

	completed, err := f.study.Complete(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StudyStatusCompleted, completed.Status)
	assert.Equal(t, `"bad"`, f.rawColumn(t, "study_sessions", "bookmarks", sess.ID))
}
