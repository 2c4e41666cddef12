package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exprep-backend/internal/model"
)

const studyActiveIndex = "study_sessions_one_active_idx"

const studyColumns = `id, user_id, exam_id, status, mode, questions_order,
	current_question_index, correct_answers, incorrect_answers, skipped_answers,
	answers, bookmarks, flags, started_at, last_activity_at, completed_at,
	time_spent_seconds, settings`

// StudySessionRepository persists study sessions in PostgreSQL.
type StudySessionRepository struct {
	pool *pgxpool.Pool
}

// NewStudySessionRepository creates a new StudySessionRepository.
func NewStudySessionRepository(pool *pgxpool.Pool) *StudySessionRepository {
	return &StudySessionRepository{pool: pool}
}

// CreateStudy inserts a new session. A second active session for the same
// user and exam is rejected by the partial unique index.
func (r *StudySessionRepository) CreateStudy(ctx context.Context, s *model.StudySession) error {
	s.EnsureCollections()
	order, err := encodeField(model.FieldQuestionsOrder, s.QuestionsOrder)
	if err != nil {
		return err
	}
	answers, bookmarks, flags, settings, err := encodeStudyMutable(s, nil)
	if err != nil {
		return err
	}

	_, err = r.pool.Exec(ctx,
		`INSERT INTO study_sessions (`+studyColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`,
		s.ID, s.UserID, s.ExamID, s.Status, s.Mode, order,
		s.CurrentQuestionIndex, s.CorrectAnswers, s.IncorrectAnswers, s.SkippedAnswers,
		answers, bookmarks, flags, s.StartedAt, s.LastActivityAt, s.CompletedAt,
		s.TimeSpentSeconds, settings,
	)
	return translateWriteErr(err, studyActiveIndex)
}

// GetStudy retrieves a session by id.
func (r *StudySessionRepository) GetStudy(ctx context.Context, id uuid.UUID) (*model.StudySession, error) {
	return scanStudy(r.pool.QueryRow(ctx,
		`SELECT `+studyColumns+` FROM study_sessions WHERE id = $1`, id))
}

// ActiveStudy returns the most recently touched active or paused session.
func (r *StudySessionRepository) ActiveStudy(ctx context.Context, userID uuid.UUID, examID *uuid.UUID) (*model.StudySession, error) {
	return scanStudy(r.pool.QueryRow(ctx,
		`SELECT `+studyColumns+`
		 FROM study_sessions
		 WHERE user_id = $1
		   AND status IN ('active', 'paused')
		   AND ($2::uuid IS NULL OR exam_id = $2)
		 ORDER BY last_activity_at DESC
		 LIMIT 1`, userID, examID))
}

// UpdateStudy locks the row, applies fn and writes the result back in one
// transaction. questions_order is never rewritten, and collections that
// failed to decode keep their stored value.
func (r *StudySessionRepository) UpdateStudy(ctx context.Context, id uuid.UUID, fn func(*model.StudySession) error) (*model.StudySession, error) {
	var updated *model.StudySession

	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		s, err := scanStudy(tx.QueryRow(ctx,
			`SELECT `+studyColumns+` FROM study_sessions WHERE id = $1 FOR UPDATE`, id))
		if err != nil {
			return err
		}
		if err := fn(s); err != nil {
			return err
		}

		answers, bookmarks, flags, settings, err := encodeStudyMutable(s, s.Corrupted)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx,
			`UPDATE study_sessions
			 SET status = $2, current_question_index = $3, correct_answers = $4,
			     incorrect_answers = $5, skipped_answers = $6,
			     answers = COALESCE($7::jsonb, answers),
			     bookmarks = COALESCE($8::jsonb, bookmarks),
			     flags = COALESCE($9::jsonb, flags), last_activity_at = $10,
			     completed_at = $11, time_spent_seconds = $12,
			     settings = COALESCE($13::jsonb, settings)
			 WHERE id = $1`,
			s.ID, s.Status, s.CurrentQuestionIndex, s.CorrectAnswers,
			s.IncorrectAnswers, s.SkippedAnswers, answers,
			bookmarks, flags, s.LastActivityAt,
			s.CompletedAt, s.TimeSpentSeconds, settings,
		)
		if err != nil {
			return err
		}
		updated = s
		return nil
	})
	if err != nil {
		return nil, translateWriteErr(err, studyActiveIndex)
	}
	return updated, nil
}

// encodeStudyMutable encodes the writable collections. Fields listed in
// skip encode as NULL.
func encodeStudyMutable(s *model.StudySession, skip []string) (answers, bookmarks, flags, settings []byte, err error) {
	s.EnsureCollections()
	if answers, err = encodeMutable(skip, model.FieldAnswers, s.Answers); err != nil {
		return
	}
	if bookmarks, err = encodeMutable(skip, model.FieldBookmarks, s.Bookmarks); err != nil {
		return
	}
	if flags, err = encodeMutable(skip, model.FieldFlags, s.Flags); err != nil {
		return
	}
	settings, err = encodeMutable(skip, model.FieldSettings, s.Settings)
	return
}

func scanStudy(row pgx.Row) (*model.StudySession, error) {
	var (
		s                                    model.StudySession
		order, answers, bookmarks, flags, st []byte
	)
	err := row.Scan(
		&s.ID, &s.UserID, &s.ExamID, &s.Status, &s.Mode, &order,
		&s.CurrentQuestionIndex, &s.CorrectAnswers, &s.IncorrectAnswers, &s.SkippedAnswers,
		&answers, &bookmarks, &flags, &s.StartedAt, &s.LastActivityAt, &s.CompletedAt,
		&s.TimeSpentSeconds, &st,
	)
	if err != nil {
		return nil, notFound(err)
	}

	s.QuestionsOrder = decodeField[model.QuestionOrder](&s.Corrupted, model.FieldQuestionsOrder, order)
	s.Answers = decodeField[model.StudyAnswers](&s.Corrupted, model.FieldAnswers, answers)
	s.Bookmarks = decodeField[model.IDSet](&s.Corrupted, model.FieldBookmarks, bookmarks)
	s.Flags = decodeField[model.IDSet](&s.Corrupted, model.FieldFlags, flags)
	s.Settings = model.DefaultStudySettings
	if len(st) > 0 {
		s.Settings = decodeField[model.StudySettings](&s.Corrupted, model.FieldSettings, st)
	}
	s.EnsureCollections()
	return &s, nil
}
