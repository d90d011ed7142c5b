// Package redisad stores collection resume state in Redis: the next
// cursor plus the review ids already written, keyed per (source, app).
// Checkpoints are cleared when a run finishes cleanly and kept on error
// so the next run can resume.
package redisad

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"review_collector/internal/adapters/observability"
	"review_collector/internal/domain"
)

type Store struct {
	c   *redis.Client
	ttl time.Duration
}

func New(addr, pass string, db int, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Store{
		c:   redis.NewClient(&redis.Options{Addr: addr, Password: pass, DB: db}),
		ttl: ttl,
	}
}

func key(src domain.Source, appID string) string {
	return fmt.Sprintf("checkpoint:%s:%s", src, appID)
}

func (s *Store) Load(ctx context.Context, src domain.Source, appID string) (domain.Checkpoint, bool, error) {
	b, err := s.c.Get(ctx, key(src, appID)).Bytes()
	if err == redis.Nil {
		observability.ObserveCheckpoint("miss")
		return domain.Checkpoint{}, false, nil
	}
	if err != nil {
		return domain.Checkpoint{}, false, err
	}
	var cp domain.Checkpoint
	if err := json.Unmarshal(b, &cp); err != nil {
		return domain.Checkpoint{}, false, fmt.Errorf("decode checkpoint: %w", err)
	}
	observability.ObserveCheckpoint("hit")
	return cp, true, nil
}

func (s *Store) Save(ctx context.Context, src domain.Source, appID string, cp domain.Checkpoint) error {
	b, err := json.Marshal(cp)
	if err != nil {
		return err
	}
	observability.ObserveCheckpoint("save")
	return s.c.Set(ctx, key(src, appID), b, s.ttl).Err()
}

func (s *Store) Clear(ctx context.Context, src domain.Source, appID string) error {
	observability.ObserveCheckpoint("clear")
	return s.c.Del(ctx, key(src, appID)).Err()
}
