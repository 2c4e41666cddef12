// Package app wires stores, caches, publishers and services from config.
package app

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/stemsi/exprep-backend/internal/cache"
	"github.com/stemsi/exprep-backend/internal/config"
	"github.com/stemsi/exprep-backend/internal/database"
	"github.com/stemsi/exprep-backend/internal/events"
	"github.com/stemsi/exprep-backend/internal/handler"
	"github.com/stemsi/exprep-backend/internal/model"
	"github.com/stemsi/exprep-backend/internal/repository"
	"github.com/stemsi/exprep-backend/internal/repository/memory"
	"github.com/stemsi/exprep-backend/internal/service"
	"github.com/stemsi/exprep-backend/internal/worker"
)

// BankWriter imports exams and questions into the bank.
type BankWriter interface {
	UpsertExam(ctx context.Context, e *model.Exam) error
	UpsertQuestion(ctx context.Context, q *model.Question) error
}

// App holds the wired components.
type App struct {
	Study *service.StudySessionService
	Test  *service.TestSessionService

	Bank  BankWriter
	Exams cache.ExamLister
	// Cache is nil with the memory driver.
	Cache *cache.QuestionCache
	// Deadlines is nil with the memory driver.
	Deadlines *cache.DeadlineScheduler
	Events    events.Publisher
	Checks    map[string]handler.PingFunc

	closers []func()
}

// New connects to the configured backends and builds the services.
func New(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*App, error) {
	a := &App{Checks: map[string]handler.PingFunc{}}

	publisher, err := a.newPublisher(ctx, cfg, log)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Events = publisher

	switch cfg.StoreDriver {
	case config.StoreDriverMemory:
		a.wireMemory(log)
	case config.StoreDriverPostgres:
		if err := a.wirePostgres(ctx, cfg, log); err != nil {
			a.Close()
			return nil, err
		}
	default:
		a.Close()
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}

	log.Info().
		Str("store", cfg.StoreDriver).
		Bool("events", cfg.EventsEnabled).
		Msg("Application wired")
	return a, nil
}

func (a *App) wireMemory(log zerolog.Logger) {
	store := memory.NewStore()
	a.Bank = memoryBank{store}
	a.Exams = store
	a.Study = service.NewStudySessionService(store, store, a.Events, nil, log)
	a.Test = service.NewTestSessionService(store, store, nil, a.Events, nil, log)
}

func (a *App) wirePostgres(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	a.closers = append(a.closers, pool.Close)
	a.Checks["postgres"] = pool.Ping

	rdb, err := database.NewRedisClient(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	a.closers = append(a.closers, func() { _ = rdb.Close() })
	a.Checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }

	examRepo := repository.NewExamRepository(pool)
	questionRepo := repository.NewQuestionRepository(pool)
	studyRepo := repository.NewStudySessionRepository(pool)
	testRepo := repository.NewTestSessionRepository(pool)

	a.Cache = cache.NewQuestionCache(rdb, questionRepo, cfg.QuestionCacheTTL, log)
	a.Deadlines = cache.NewDeadlineScheduler(rdb)
	a.Bank = pgBank{exams: examRepo, questions: questionRepo, cache: a.Cache}
	a.Exams = examRepo

	a.Study = service.NewStudySessionService(studyRepo, a.Cache, a.Events, nil, log)
	a.Test = service.NewTestSessionService(testRepo, a.Cache, a.Deadlines, a.Events, nil, log)
	return nil
}

func (a *App) newPublisher(ctx context.Context, cfg *config.Config, log zerolog.Logger) (events.Publisher, error) {
	if !cfg.EventsEnabled {
		return events.NopPublisher{}, nil
	}

	switch cfg.EventsPublisher {
	case config.PublisherKafka:
		pub, err := events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.EventsTopic, log)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() { _ = pub.Close() })
		return pub, nil
	case config.PublisherGoChannel:
		pub, ch := events.NewGoChannelPublisher(cfg.EventsTopic, log)
		go func() {
			if err := events.LogSubscriber(ctx, ch, cfg.EventsTopic, log); err != nil {
				log.Error().Err(err).Msg("Event log subscriber stopped")
			}
		}()
		a.closers = append(a.closers, func() { _ = pub.Close() })
		return pub, nil
	}
	return nil, fmt.Errorf("unknown events publisher %q", cfg.EventsPublisher)
}

// Prewarm loads the question bank into the cache. It is a no-op with the
// memory driver.
func (a *App) Prewarm(ctx context.Context) error {
	if a.Cache == nil {
		return nil
	}
	return a.Cache.Prewarm(ctx, a.Exams)
}

// ExpiryWorker builds the worker that closes timed-out test sessions.
func (a *App) ExpiryWorker(cfg *config.Config, log zerolog.Logger) *worker.ExpiryWorker {
	var queue worker.DeadlineQueue
	if a.Deadlines != nil {
		queue = a.Deadlines
	}
	return worker.NewExpiryWorker(a.Test, queue, cfg.ExpiryPoll, cfg.ExpiryBatchSize, log)
}

// Close releases connections in reverse order of acquisition.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

type memoryBank struct{ store *memory.Store }

func (b memoryBank) UpsertExam(_ context.Context, e *model.Exam) error {
	b.store.SaveExam(*e)
	return nil
}

func (b memoryBank) UpsertQuestion(_ context.Context, q *model.Question) error {
	b.store.SaveQuestion(*q)
	return nil
}

// pgBank writes through to PostgreSQL and drops stale cache entries.
type pgBank struct {
	exams     *repository.ExamRepository
	questions *repository.QuestionRepository
	cache     *cache.QuestionCache
}

func (b pgBank) UpsertExam(ctx context.Context, e *model.Exam) error {
	return b.exams.Upsert(ctx, e)
}

func (b pgBank) UpsertQuestion(ctx context.Context, q *model.Question) error {
	if err := b.questions.Upsert(ctx, q); err != nil {
		return err
	}
	return b.cache.InvalidateExam(ctx, q.ExamID)
}
