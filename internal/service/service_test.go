package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exprep-backend/internal/events"
	"github.com/stemsi/exprep-backend/internal/model"
	"github.com/stemsi/exprep-backend/internal/repository/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time         { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

type recordingScheduler struct {
	scheduled map[uuid.UUID]time.Time
	cancelled []uuid.UUID
}

func newRecordingScheduler() *recordingScheduler {
	return &recordingScheduler{scheduled: map[uuid.UUID]time.Time{}}
}

func (r *recordingScheduler) Schedule(_ context.Context, id uuid.UUID, deadline time.Time) error {
	r.scheduled[id] = deadline
	return nil
}

func (r *recordingScheduler) Cancel(_ context.Context, id uuid.UUID) error {
	delete(r.scheduled, id)
	r.cancelled = append(r.cancelled, id)
	return nil
}

// fixture is a memory-backed bank of five single-choice questions whose
// correct answer is option 0, except the last which needs {1, 2}.
type fixture struct {
	store     *memory.Store
	clock     *fakeClock
	events    *events.Recorder
	scheduler *recordingScheduler
	examID    uuid.UUID
	userID    uuid.UUID
	questions []uuid.UUID
	study     *StudySessionService
	test      *TestSessionService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:     memory.NewStore(),
		clock:     &fakeClock{now: t0},
		events:    events.NewRecorder(),
		scheduler: newRecordingScheduler(),
		examID:    uuid.New(),
		userID:    uuid.New(),
	}
	f.store.SaveExam(model.Exam{ID: f.examID, Code: "AZ-900", Name: "Azure Fundamentals"})
	explanation := "see docs"
	for i := range 5 {
		q := model.Question{
			ID:             uuid.New(),
			ExamID:         f.examID,
			Text:           "question",
			Type:           model.QuestionTypeSingleChoice,
			Options:        []string{"a", "b", "c", "d"},
			CorrectAnswers: []int{0},
			Explanation:    &explanation,
		}
		if i == 4 {
			q.Type = model.QuestionTypeMultipleChoice
			q.CorrectAnswers = []int{1, 2}
		}
		f.store.SaveQuestion(q)
		f.questions = append(f.questions, q.ID)
	}

	log := zerolog.Nop()
	f.study = NewStudySessionService(f.store, f.store, f.events, f.clock, log)
	f.test = NewTestSessionService(f.store, f.store, f.scheduler, f.events, f.clock, log)
	return f
}

// reverse is a deterministic stand-in for the random shuffle.
func reverse(order model.QuestionOrder) {
	for i, j := 0, len(order)-1; i < j; i, j = i+1, j-1 {
		order[i], order[j] = order[j], order[i]
	}
}

func TestParseQuestionIDs(t *testing.T) {
	id := uuid.New()
	ids, err := ParseQuestionIDs(json.RawMessage(`["` + id.String() + `"]`))
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{id}, ids)

	for name, raw := range map[string]string{
		"not a list":   `{"a":1}`,
		"bad uuid":     `["nope"]`,
		"not json":     `[`,
		"string value": `"abc"`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ParseQuestionIDs(json.RawMessage(raw))
			assert.ErrorIs(t, err, ErrMalformedQuestions)
			assert.ErrorIs(t, err, ErrInvalidInput)
		})
	}

	_, err = ParseQuestionIDs(json.RawMessage(`[]`))
	assert.ErrorIs(t, err, ErrEmptyQuestionList)
}

func TestShuffleOrderIsPermutation(t *testing.T) {
	order := make(model.QuestionOrder, 50)
	for i := range order {
		order[i] = uuid.New()
	}
	shuffled := append(model.QuestionOrder(nil), order...)
	shuffleOrder(shuffled)

	assert.ElementsMatch(t, order, shuffled)
}

func TestErrorCategories(t *testing.T) {
	cases := map[error]error{
		ErrEmptyQuestionList:   ErrInvalidInput,
		ErrPositionOutOfRange:  ErrInvalidInput,
		ErrSessionNotFound:     ErrNotFound,
		ErrQuestionNotFound:    ErrNotFound,
		ErrActiveSessionExists: ErrInvalidState,
		ErrAlreadyGraded:       ErrInvalidState,
		ErrResultsUnavailable:  ErrInvalidState,
		ErrCorruptedSession:    ErrInvalidState,
	}
	for err, category := range cases {
		assert.ErrorIs(t, err, category, err.Error())
	}
}
