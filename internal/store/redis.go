package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"livepreview/internal/models"

	"github.com/redis/go-redis/v9"
)

const (
	redisKeyPrefix     = "preview:"
	redisUpdateRetries = 16
)

// RedisStore keeps one JSON document per preview. Updates use optimistic
// WATCH/MULTI transactions and retry when another writer wins the race.
type RedisStore struct {
	rdb *redis.Client
}

func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

type redisGetter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func redisKey(id string) string {
	return redisKeyPrefix + id
}

func (s *RedisStore) Insert(ctx context.Context, p *models.Preview) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode preview %s: %w", p.ID, err)
	}
	ok, err := s.rdb.SetNX(ctx, redisKey(p.ID), raw, 0).Result()
	if err != nil {
		return fmt.Errorf("insert preview %s: %w", p.ID, err)
	}
	if !ok {
		return ErrDuplicateKey
	}
	return nil
}

func (s *RedisStore) Read(ctx context.Context, id string) (*models.Preview, error) {
	return s.get(ctx, s.rdb, id)
}

func (s *RedisStore) Update(ctx context.Context, id string, patch Patch) (*models.Preview, error) {
	key := redisKey(id)
	var out *models.Preview

	txf := func(tx *redis.Tx) error {
		rec, err := s.get(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := apply(rec, patch, now()); err != nil {
			return err
		}
		raw, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, raw, 0)
			return nil
		})
		if err == nil {
			out = rec
		}
		return err
	}

	for i := 0; i < redisUpdateRetries; i++ {
		err := s.rdb.Watch(ctx, txf, key)
		if err == nil {
			return out, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrConflict) {
			return nil, err
		}
		return nil, fmt.Errorf("update preview %s: %w", id, err)
	}
	return nil, fmt.Errorf("update preview %s: too many concurrent writers", id)
}

func (s *RedisStore) get(ctx context.Context, c redisGetter, id string) (*models.Preview, error) {
	raw, err := c.Get(ctx, redisKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read preview %s: %w", id, err)
	}
	var rec models.Preview
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("decode preview %s: %w", id, err)
	}
	return &rec, nil
}
