package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exprep-backend/internal/model"
)

const testActiveIndex = "test_sessions_one_active_idx"

const testColumns = `id, user_id, exam_id, status, time_limit_seconds, total_questions,
	passing_score, questions_order, current_question_index, answered_count,
	flagged_count, answers, flagged, started_at, last_activity_at, submitted_at,
	expires_at, time_remaining_seconds, score, correct_count, incorrect_count,
	unanswered_count, passed, last_auto_save_at, auto_save_count`

// TestSessionRepository persists test sessions in PostgreSQL.
type TestSessionRepository struct {
	pool *pgxpool.Pool
}

// NewTestSessionRepository creates a new TestSessionRepository.
func NewTestSessionRepository(pool *pgxpool.Pool) *TestSessionRepository {
	return &TestSessionRepository{pool: pool}
}

// CreateTest inserts a new session.
func (r *TestSessionRepository) CreateTest(ctx context.Context, s *model.TestSession) error {
	s.EnsureCollections()
	order, err := encodeField(model.FieldQuestionsOrder, s.QuestionsOrder)
	if err != nil {
		return err
	}
	answers, flagged, err := encodeTestMutable(s, nil)
	if err != nil {
		return err
	}

	_, err = r.pool.Exec(ctx,
		`INSERT INTO test_sessions (`+testColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15,
		         $16, $17, $18, $19, $20, $21, $22, $23, $24, $25)`,
		s.ID, s.UserID, s.ExamID, s.Status, s.TimeLimitSeconds, s.TotalQuestions,
		s.PassingScore, order, s.CurrentQuestionIndex, s.AnsweredCount,
		s.FlaggedCount, answers, flagged, s.StartedAt, s.LastActivityAt, s.SubmittedAt,
		s.ExpiresAt, s.TimeRemainingSeconds, s.Score, s.CorrectCount, s.IncorrectCount,
		s.UnansweredCount, s.Passed, s.LastAutoSaveAt, s.AutoSaveCount,
	)
	return translateWriteErr(err, testActiveIndex)
}

// GetTest retrieves a session by id.
func (r *TestSessionRepository) GetTest(ctx context.Context, id uuid.UUID) (*model.TestSession, error) {
	return scanTest(r.pool.QueryRow(ctx,
		`SELECT `+testColumns+` FROM test_sessions WHERE id = $1`, id))
}

// UpdateTest locks the row, applies fn and writes the result back in one
// transaction. questions_order and total_questions are never rewritten, and
// collections that failed to decode keep their stored value.
func (r *TestSessionRepository) UpdateTest(ctx context.Context, id uuid.UUID, fn func(*model.TestSession) error) (*model.TestSession, error) {
	var updated *model.TestSession

	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		s, err := scanTest(tx.QueryRow(ctx,
			`SELECT `+testColumns+` FROM test_sessions WHERE id = $1 FOR UPDATE`, id))
		if err != nil {
			return err
		}
		if err := fn(s); err != nil {
			return err
		}

		answers, flagged, err := encodeTestMutable(s, s.Corrupted)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx,
			`UPDATE test_sessions
			 SET status = $2, current_question_index = $3, answered_count = $4,
			     flagged_count = $5, answers = COALESCE($6::jsonb, answers),
			     flagged = COALESCE($7::jsonb, flagged), last_activity_at = $8,
			     submitted_at = $9, expires_at = $10, time_remaining_seconds = $11,
			     score = $12, correct_count = $13, incorrect_count = $14,
			     unanswered_count = $15, passed = $16, last_auto_save_at = $17,
			     auto_save_count = $18
			 WHERE id = $1`,
			s.ID, s.Status, s.CurrentQuestionIndex, s.AnsweredCount,
			s.FlaggedCount, answers, flagged, s.LastActivityAt,
			s.SubmittedAt, s.ExpiresAt, s.TimeRemainingSeconds,
			s.Score, s.CorrectCount, s.IncorrectCount,
			s.UnansweredCount, s.Passed, s.LastAutoSaveAt,
			s.AutoSaveCount,
		)
		if err != nil {
			return err
		}
		updated = s
		return nil
	})
	if err != nil {
		return nil, translateWriteErr(err, testActiveIndex)
	}
	return updated, nil
}

// ListTestHistory returns one page of a user's sessions joined with exam
// metadata, most recent start first, and the total number of matches.
func (r *TestSessionRepository) ListTestHistory(ctx context.Context, userID uuid.UUID, filter model.TestHistoryFilter) ([]model.TestHistoryEntry, int, error) {
	var total int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM test_sessions
		 WHERE user_id = $1 AND ($2::uuid IS NULL OR exam_id = $2)`,
		userID, filter.ExamID,
	).Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT `+qualify("ts", testColumns)+`, e.code, e.name
		 FROM test_sessions ts
		 JOIN exams e ON e.id = ts.exam_id
		 WHERE ts.user_id = $1 AND ($2::uuid IS NULL OR ts.exam_id = $2)
		 ORDER BY ts.started_at DESC
		 LIMIT $3 OFFSET $4`,
		userID, filter.ExamID, filter.Limit, filter.Offset,
	)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var entries []model.TestHistoryEntry
	for rows.Next() {
		var code, name string
		s, err := scanTest(rows, &code, &name)
		if err != nil {
			return nil, 0, err
		}
		entry := model.TestHistoryEntry{
			ID:               s.ID,
			ExamID:           s.ExamID,
			ExamCode:         code,
			ExamName:         name,
			Status:           s.Status,
			TotalQuestions:   s.TotalQuestions,
			AnsweredCount:    s.AnsweredCount,
			TimeLimitSeconds: s.TimeLimitSeconds,
			StartedAt:        s.StartedAt,
			SubmittedAt:      s.SubmittedAt,
			Score:            s.Score,
			Passed:           s.Passed,
		}
		if filter.IncludeDetails {
			entry.Details = s
		}
		entries = append(entries, entry)
	}
	return entries, total, rows.Err()
}

// ListDueTests returns active sessions whose deadline is at or before now,
// earliest first.
func (r *TestSessionRepository) ListDueTests(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id FROM test_sessions
		 WHERE status = 'active' AND expires_at <= $1
		 ORDER BY expires_at
		 LIMIT $2`, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func encodeTestMutable(s *model.TestSession, skip []string) (answers, flagged []byte, err error) {
	s.EnsureCollections()
	if answers, err = encodeMutable(skip, model.FieldAnswers, s.Answers); err != nil {
		return
	}
	flagged, err = encodeMutable(skip, model.FieldFlagged, s.Flagged)
	return
}

func scanTest(row pgx.Row, extra ...any) (*model.TestSession, error) {
	var (
		s                       model.TestSession
		order, answers, flagged []byte
	)
	dest := []any{
		&s.ID, &s.UserID, &s.ExamID, &s.Status, &s.TimeLimitSeconds, &s.TotalQuestions,
		&s.PassingScore, &order, &s.CurrentQuestionIndex, &s.AnsweredCount,
		&s.FlaggedCount, &answers, &flagged, &s.StartedAt, &s.LastActivityAt, &s.SubmittedAt,
		&s.ExpiresAt, &s.TimeRemainingSeconds, &s.Score, &s.CorrectCount, &s.IncorrectCount,
		&s.UnansweredCount, &s.Passed, &s.LastAutoSaveAt, &s.AutoSaveCount,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, notFound(err)
	}

	s.QuestionsOrder = decodeField[model.QuestionOrder](&s.Corrupted, model.FieldQuestionsOrder, order)
	s.Answers = decodeField[model.PositionAnswers](&s.Corrupted, model.FieldAnswers, answers)
	s.Flagged = decodeField[model.PositionSet](&s.Corrupted, model.FieldFlagged, flagged)
	s.EnsureCollections()
	return &s, nil
}
