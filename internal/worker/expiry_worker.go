package worker

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exprep-backend/internal/model"
	"github.com/stemsi/exprep-backend/internal/service"
)

// ReconcileEvery is how many ticks pass between full database sweeps.
const ReconcileEvery = 12

// Expirer closes test sessions whose time ran out.
type Expirer interface {
	Expire(ctx context.Context, id uuid.UUID) (*model.TestResults, error)
	ExpireDue(ctx context.Context, limit int) (int, error)
}

// DeadlineQueue exposes due deadlines. Claim must succeed for exactly one
// caller per entry.
type DeadlineQueue interface {
	Due(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error)
	Claim(ctx context.Context, sessionID uuid.UUID) (bool, error)
}

// ExpiryWorker expires test sessions past their deadline. It drains the
// deadline queue on every tick and periodically sweeps the store for
// sessions the queue missed.
type ExpiryWorker struct {
	expirer   Expirer
	queue     DeadlineQueue
	interval  time.Duration
	batchSize int
	now       func() time.Time
	log       zerolog.Logger
}

// NewExpiryWorker creates a new ExpiryWorker. A nil queue relies on sweeps
// alone.
func NewExpiryWorker(expirer Expirer, queue DeadlineQueue, interval time.Duration, batchSize int, log zerolog.Logger) *ExpiryWorker {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	return &ExpiryWorker{
		expirer:   expirer,
		queue:     queue,
		interval:  interval,
		batchSize: batchSize,
		now:       time.Now,
		log:       log.With().Str("component", "expiry_worker").Logger(),
	}
}

func (w *ExpiryWorker) Start(ctx context.Context) {
	w.log.Info().Dur("interval", w.interval).Msg("ExpiryWorker started")

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.sweep(ctx)
	for tick := 1; ; tick++ {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("ExpiryWorker stopped")
			return
		case <-ticker.C:
			w.drain(ctx)
			if w.queue == nil || tick%ReconcileEvery == 0 {
				w.sweep(ctx)
			}
		}
	}
}

// drain expires every claimed due entry and returns how many it expired.
func (w *ExpiryWorker) drain(ctx context.Context) int {
	if w.queue == nil {
		return 0
	}

	ids, err := w.queue.Due(ctx, w.now(), w.batchSize)
	if err != nil {
		if ctx.Err() == nil {
			w.log.Error().Err(err).Msg("Reading due deadlines failed")
		}
		return 0
	}

	expired := 0
	for _, id := range ids {
		claimed, err := w.queue.Claim(ctx, id)
		if err != nil {
			w.log.Error().Err(err).Str("session_id", id.String()).Msg("Claim failed")
			continue
		}
		if !claimed {
			continue
		}

		if _, err := w.expirer.Expire(ctx, id); err != nil {
			if errors.Is(err, service.ErrInvalidState) || errors.Is(err, service.ErrNotFound) {
				continue
			}
			w.log.Error().Err(err).Str("session_id", id.String()).Msg("Expire failed")
			continue
		}
		expired++
	}

	if expired > 0 {
		w.log.Info().Int("expired", expired).Msg("Expired due test sessions")
	}
	return expired
}

func (w *ExpiryWorker) sweep(ctx context.Context) int {
	n, err := w.expirer.ExpireDue(ctx, w.batchSize)
	if err != nil {
		if ctx.Err() == nil {
			w.log.Error().Err(err).Msg("Expiry sweep failed")
		}
		return n
	}
	if n > 0 {
		w.log.Info().Int("expired", n).Msg("Expiry sweep closed sessions")
	}
	return n
}
