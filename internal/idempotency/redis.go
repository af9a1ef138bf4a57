package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "idempotency:v1:"

type redisRecord struct {
	Token       string    `json:"token"`
	Status      int       `json:"status"`
	Body        []byte    `json:"body,omitempty"`
	ClaimedAt   time.Time `json:"claimed_at"`
	FinalizedAt time.Time `json:"finalized_at"`
}

func (r redisRecord) record(key string) Record {
	return Record{Key: key, Token: r.Token, Status: r.Status, Body: r.Body, ClaimedAt: r.ClaimedAt, FinalizedAt: r.FinalizedAt}
}

// RedisStore keeps records in Redis under the idempotency:v1: prefix. Records
// expire after ttl; a zero ttl keeps them forever.
type RedisStore struct {
	cache *redis.Client
	ttl   time.Duration
}

// NewRedisStore returns a RedisStore whose records expire after ttl.
func NewRedisStore(cache *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{cache: cache, ttl: ttl}
}

// Claim reserves the key with SETNX. A stale pending record is taken over
// inside a WATCH transaction so two reclaimers cannot both win.
func (s *RedisStore) Claim(ctx context.Context, key, token string, now, staleBefore time.Time) (bool, Record, error) {
	cacheKey := redisKeyPrefix + key
	pending, err := json.Marshal(redisRecord{Token: token, Status: StatusPending, ClaimedAt: now})
	if err != nil {
		return false, Record{}, err
	}

	ok, err := s.cache.SetNX(ctx, cacheKey, pending, s.ttl).Result()
	if err != nil {
		return false, Record{}, fmt.Errorf("reserve key: %w", err)
	}
	if ok {
		return true, Record{}, nil
	}

	var (
		claimed  bool
		existing Record
	)
	err = s.cache.Watch(ctx, func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, cacheKey).Bytes()
		if errors.Is(err, redis.Nil) {
			// Expired between SETNX and GET; claim it fresh.
			claimed = true
		} else if err != nil {
			return err
		} else {
			var stored redisRecord
			if err := json.Unmarshal(raw, &stored); err != nil {
				return fmt.Errorf("decode stored record: %w", err)
			}
			existing = stored.record(key)
			claimed = existing.Pending() && !staleBefore.IsZero() && existing.ClaimedAt.Before(staleBefore)
		}
		if !claimed {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, cacheKey, pending, s.ttl)
			return nil
		})
		return err
	}, cacheKey)
	if errors.Is(err, redis.TxFailedErr) {
		// Another request touched the key first; it owns the claim.
		rec, getErr := s.get(ctx, key)
		if getErr != nil {
			return false, Record{}, getErr
		}
		return false, rec, nil
	}
	if err != nil {
		return false, Record{}, err
	}
	if claimed {
		return true, Record{}, nil
	}
	return false, existing, nil
}

func (s *RedisStore) get(ctx context.Context, key string) (Record, error) {
	raw, err := s.cache.Get(ctx, redisKeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return Record{Key: key, Status: StatusPending}, nil
	}
	if err != nil {
		return Record{}, err
	}
	var stored redisRecord
	if err := json.Unmarshal(raw, &stored); err != nil {
		return Record{}, fmt.Errorf("decode stored record: %w", err)
	}
	return stored.record(key), nil
}

// Finalize swaps the pending record for the terminal one inside a WATCH
// transaction, so a concurrent reclaim makes it fail with ErrClaimLost.
func (s *RedisStore) Finalize(ctx context.Context, key, token string, status int, body []byte, now time.Time) error {
	cacheKey := redisKeyPrefix + key
	err := s.cache.Watch(ctx, func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, cacheKey).Bytes()
		if errors.Is(err, redis.Nil) {
			return ErrClaimLost
		}
		if err != nil {
			return err
		}
		var current redisRecord
		if err := json.Unmarshal(raw, &current); err != nil {
			return fmt.Errorf("decode stored record: %w", err)
		}
		if current.Status != StatusPending || current.Token != token {
			return ErrClaimLost
		}

		payload, err := json.Marshal(redisRecord{
			Token:       token,
			Status:      status,
			Body:        body,
			ClaimedAt:   current.ClaimedAt,
			FinalizedAt: now,
		})
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, cacheKey, payload, s.ttl)
			return nil
		})
		return err
	}, cacheKey)
	if errors.Is(err, redis.TxFailedErr) {
		return ErrClaimLost
	}
	return err
}
