package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exprep-backend/internal/model"
)

// ExamRepository handles exam data access.
type ExamRepository struct {
	pool *pgxpool.Pool
}

// NewExamRepository creates a new ExamRepository.
func NewExamRepository(pool *pgxpool.Pool) *ExamRepository {
	return &ExamRepository{pool: pool}
}

// GetByID retrieves an exam by its UUID.
func (r *ExamRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Exam, error) {
	e := &model.Exam{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, code, name, created_at FROM exams WHERE id = $1`, id,
	).Scan(&e.ID, &e.Code, &e.Name, &e.CreatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return e, nil
}

// ListExams returns every exam ordered by code.
func (r *ExamRepository) ListExams(ctx context.Context) ([]model.Exam, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, code, name, created_at FROM exams ORDER BY code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var exams []model.Exam
	for rows.Next() {
		var e model.Exam
		if err := rows.Scan(&e.ID, &e.Code, &e.Name, &e.CreatedAt); err != nil {
			return nil, err
		}
		exams = append(exams, e)
	}
	return exams, rows.Err()
}

// Upsert inserts an exam or updates its code and name.
func (r *ExamRepository) Upsert(ctx context.Context, e *model.Exam) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO exams (id, code, name)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (id) DO UPDATE SET code = EXCLUDED.code, name = EXCLUDED.name
		 RETURNING created_at`,
		e.ID, e.Code, e.Name,
	).Scan(&e.CreatedAt)
}
