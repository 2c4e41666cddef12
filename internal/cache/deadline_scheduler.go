package cache

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stemsi/exprep-backend/internal/config"
)

// DeadlineScheduler tracks test session deadlines in a Redis sorted set
// scored by unix seconds.
type DeadlineScheduler struct {
	rdb redis.Cmdable
	key string
}

// NewDeadlineScheduler creates a new DeadlineScheduler.
func NewDeadlineScheduler(rdb redis.Cmdable) *DeadlineScheduler {
	return &DeadlineScheduler{rdb: rdb, key: config.WorkerKey.TestDeadlines}
}

// Schedule records or moves the deadline of a session.
func (d *DeadlineScheduler) Schedule(ctx context.Context, sessionID uuid.UUID, deadline time.Time) error {
	return d.rdb.ZAdd(ctx, d.key, redis.Z{
		Score:  float64(deadline.Unix()),
		Member: sessionID.String(),
	}).Err()
}

// Cancel forgets a session's deadline.
func (d *DeadlineScheduler) Cancel(ctx context.Context, sessionID uuid.UUID) error {
	return d.rdb.ZRem(ctx, d.key, sessionID.String()).Err()
}

// Due returns up to limit sessions whose deadline is at or before now.
func (d *DeadlineScheduler) Due(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	members, err := d.rdb.ZRangeByScore(ctx, d.key, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(now.Unix(), 10),
		Count: int64(limit),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("read deadlines: %w", err)
	}

	ids := make([]uuid.UUID, 0, len(members))
	for _, m := range members {
		id, err := uuid.Parse(m)
		if err != nil {
			d.rdb.ZRem(ctx, d.key, m)
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Claim removes a due entry and reports whether this caller removed it.
// Only the claiming worker expires the session.
func (d *DeadlineScheduler) Claim(ctx context.Context, sessionID uuid.UUID) (bool, error) {
	n, err := d.rdb.ZRem(ctx, d.key, sessionID.String()).Result()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
