// Package cache keeps hot question bank data and test deadlines in Redis.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exprep-backend/internal/config"
	"github.com/stemsi/exprep-backend/internal/model"
)

// QuestionSource is the authoritative question bank behind the cache.
type QuestionSource interface {
	GetByIDs(ctx context.Context, ids []uuid.UUID, includeAnswers bool) ([]model.Question, error)
	ListByExam(ctx context.Context, examID uuid.UUID) ([]model.Question, error)
}

// ExamLister lists the exams whose questions are prewarmed at startup.
type ExamLister interface {
	ListExams(ctx context.Context) ([]model.Exam, error)
}

// QuestionCache is a read-through Redis cache in front of a QuestionSource.
// Entries are stored with answers and redacted on the way out, so one hash
// serves both the study and test readers.
type QuestionCache struct {
	rdb    redis.Cmdable
	source QuestionSource
	ttl    time.Duration
	log    zerolog.Logger
}

// NewQuestionCache creates a new QuestionCache. A zero ttl keeps entries
// until they are invalidated.
func NewQuestionCache(rdb redis.Cmdable, source QuestionSource, ttl time.Duration, log zerolog.Logger) *QuestionCache {
	return &QuestionCache{
		rdb:    rdb,
		source: source,
		ttl:    ttl,
		log:    log.With().Str("component", "question_cache").Logger(),
	}
}

// GetByIDs returns the questions in the order of ids, skipping ids that
// resolve nowhere. Misses are loaded from the source and backfilled. Redis
// failures fall back to the source.
func (c *QuestionCache) GetByIDs(ctx context.Context, ids []uuid.UUID, includeAnswers bool) ([]model.Question, error) {
	if len(ids) == 0 {
		return []model.Question{}, nil
	}

	found, missing, err := c.lookup(ctx, ids)
	if err != nil {
		c.log.Warn().Err(err).Msg("Cache read failed, using source")
		return c.source.GetByIDs(ctx, ids, includeAnswers)
	}

	if len(missing) > 0 {
		loaded, err := c.source.GetByIDs(ctx, missing, true)
		if err != nil {
			return nil, fmt.Errorf("load questions: %w", err)
		}
		for _, q := range loaded {
			found[q.ID] = q
		}
		if err := c.store(ctx, loaded); err != nil {
			c.log.Warn().Err(err).Int("count", len(loaded)).Msg("Cache backfill failed")
		}
	}

	return assemble(ids, found, includeAnswers), nil
}

func (c *QuestionCache) lookup(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]model.Question, []uuid.UUID, error) {
	fields := make([]string, len(ids))
	for i, id := range ids {
		fields[i] = id.String()
	}

	values, err := c.rdb.HMGet(ctx, config.CacheKey.QuestionBankKey(), fields...).Result()
	if err != nil {
		return nil, nil, err
	}

	found := make(map[uuid.UUID]model.Question, len(ids))
	var missing []uuid.UUID
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			missing = append(missing, ids[i])
			continue
		}
		var q model.Question
		if err := json.Unmarshal([]byte(raw), &q); err != nil {
			c.log.Warn().Err(err).Str("question_id", fields[i]).Msg("Dropping undecodable cache entry")
			missing = append(missing, ids[i])
			continue
		}
		found[ids[i]] = q
	}
	return found, missing, nil
}

func (c *QuestionCache) store(ctx context.Context, questions []model.Question) error {
	if len(questions) == 0 {
		return nil
	}
	values, err := encodeQuestions(questions)
	if err != nil {
		return err
	}

	key := config.CacheKey.QuestionBankKey()
	pipe := c.rdb.Pipeline()
	pipe.HSet(ctx, key, values)
	for _, q := range questions {
		pipe.SAdd(ctx, config.CacheKey.ExamQuestionsKey(q.ExamID.String()), q.ID.String())
	}
	if c.ttl > 0 {
		pipe.Expire(ctx, key, c.ttl)
	}
	_, err = pipe.Exec(ctx)
	return err
}

// WarmExam loads every question of an exam into the cache.
func (c *QuestionCache) WarmExam(ctx context.Context, examID uuid.UUID) (int, error) {
	questions, err := c.source.ListByExam(ctx, examID)
	if err != nil {
		return 0, fmt.Errorf("list questions: %w", err)
	}
	if err := c.store(ctx, questions); err != nil {
		return 0, fmt.Errorf("cache to redis: %w", err)
	}

	c.log.Debug().
		Str("exam_id", examID.String()).
		Int("questions", len(questions)).
		Msg("Cache warmed")
	return len(questions), nil
}

// Prewarm warms every exam listed by exams. Failing exams are skipped.
func (c *QuestionCache) Prewarm(ctx context.Context, exams ExamLister) error {
	list, err := exams.ListExams(ctx)
	if err != nil {
		return fmt.Errorf("list exams: %w", err)
	}
	if len(list) == 0 {
		c.log.Info().Msg("No exams to prewarm")
		return nil
	}

	c.log.Info().Int("count", len(list)).Msg("Prewarming question cache...")

	warmed := 0
	for _, e := range list {
		if _, err := c.WarmExam(ctx, e.ID); err != nil {
			c.log.Warn().Err(err).Str("exam_id", e.ID.String()).Msg("Failed to warm exam, skipping")
			continue
		}
		warmed++
	}

	c.log.Info().Int("warmed", warmed).Int("total", len(list)).Msg("Prewarming complete")
	return nil
}

// InvalidateExam drops every cached question of an exam.
func (c *QuestionCache) InvalidateExam(ctx context.Context, examID uuid.UUID) error {
	setKey := config.CacheKey.ExamQuestionsKey(examID.String())
	ids, err := c.rdb.SMembers(ctx, setKey).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("read exam questions: %w", err)
	}

	pipe := c.rdb.Pipeline()
	if len(ids) > 0 {
		pipe.HDel(ctx, config.CacheKey.QuestionBankKey(), ids...)
	}
	pipe.Del(ctx, setKey)
	_, err = pipe.Exec(ctx)
	return err
}

func encodeQuestions(questions []model.Question) (map[string]any, error) {
	values := make(map[string]any, len(questions))
	for _, q := range questions {
		raw, err := json.Marshal(q)
		if err != nil {
			return nil, fmt.Errorf("marshal question %s: %w", q.ID, err)
		}
		values[q.ID.String()] = string(raw)
	}
	return values, nil
}

// assemble orders found by ids, dropping unresolved ids and redacting
// unless includeAnswers is set.
func assemble(ids []uuid.UUID, found map[uuid.UUID]model.Question, includeAnswers bool) []model.Question {
	out := make([]model.Question, 0, len(ids))
	for _, id := range ids {
		q, ok := found[id]
		if !ok {
			continue
		}
		if !includeAnswers {
			q = q.Redacted()
		}
		out = append(out, q)
	}
	return out
}
