package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exprep-backend/internal/model"
)

// QuestionRepository handles question bank access.
type QuestionRepository struct {
	pool *pgxpool.Pool
}

// NewQuestionRepository creates a new QuestionRepository.
func NewQuestionRepository(pool *pgxpool.Pool) *QuestionRepository {
	return &QuestionRepository{pool: pool}
}

const questionColumns = `id, exam_id, objective_id, text, type, options, correct_answers, explanation`

// GetByIDs resolves ids in one query and returns the questions in the order
// of ids. Missing ids are skipped. Without includeAnswers the correct
// answers and explanation are left out.
func (r *QuestionRepository) GetByIDs(ctx context.Context, ids []uuid.UUID, includeAnswers bool) ([]model.Question, error) {
	if len(ids) == 0 {
		return []model.Question{}, nil
	}

	rows, err := r.pool.Query(ctx,
		`SELECT `+questionColumns+` FROM questions WHERE id = ANY($1::uuid[])`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byID := make(map[uuid.UUID]model.Question, len(ids))
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, err
		}
		byID[q.ID] = q
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]model.Question, 0, len(ids))
	for _, id := range ids {
		q, ok := byID[id]
		if !ok {
			continue
		}
		if !includeAnswers {
			q = q.Redacted()
		}
		out = append(out, q)
	}
	return out, nil
}

// ListByExam returns every question of an exam with answers.
func (r *QuestionRepository) ListByExam(ctx context.Context, examID uuid.UUID) ([]model.Question, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+questionColumns+` FROM questions WHERE exam_id = $1 ORDER BY id`, examID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var questions []model.Question
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, err
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

// Upsert inserts or replaces a question.
func (r *QuestionRepository) Upsert(ctx context.Context, q *model.Question) error {
	options, err := json.Marshal(q.Options)
	if err != nil {
		return fmt.Errorf("encode options: %w", err)
	}
	correct, err := json.Marshal(q.CorrectAnswers)
	if err != nil {
		return fmt.Errorf("encode correct answers: %w", err)
	}

	_, err = r.pool.Exec(ctx,
		`INSERT INTO questions (`+questionColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (id) DO UPDATE
		 SET exam_id = EXCLUDED.exam_id, objective_id = EXCLUDED.objective_id,
		     text = EXCLUDED.text, type = EXCLUDED.type, options = EXCLUDED.options,
		     correct_answers = EXCLUDED.correct_answers, explanation = EXCLUDED.explanation,
		     updated_at = NOW()`,
		q.ID, q.ExamID, q.ObjectiveID, q.Text, q.Type, options, correct, q.Explanation,
	)
	return err
}

func scanQuestion(row pgx.Row) (model.Question, error) {
	var (
		q       model.Question
		options []byte
		correct []byte
	)
	if err := row.Scan(&q.ID, &q.ExamID, &q.ObjectiveID, &q.Text, &q.Type, &options, &correct, &q.Explanation); err != nil {
		return q, err
	}
	if err := model.DecodeCollection(options, &q.Options); err != nil {
		return q, fmt.Errorf("question %s options: %w", q.ID, err)
	}
	if err := model.DecodeCollection(correct, &q.CorrectAnswers); err != nil {
		return q, fmt.Errorf("question %s correct answers: %w", q.ID, err)
	}
	return q, nil
}
