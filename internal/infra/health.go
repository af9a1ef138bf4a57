package infra

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// Check results reported by the health endpoint.
const (
	StatusOK       = "ok"
	StatusDisabled = "disabled"
)

// CheckPostgres pings the pool. A nil pool reports StatusDisabled; a failure
// reports the error text.
func CheckPostgres(ctx context.Context, db *pgxpool.Pool) string {
	if db == nil {
		return StatusDisabled
	}
	if err := db.Ping(ctx); err != nil {
		return err.Error()
	}
	return StatusOK
}

// CheckRedis pings the client with the same conventions as CheckPostgres.
func CheckRedis(ctx context.Context, cache *redis.Client) string {
	if cache == nil {
		return StatusDisabled
	}
	if err := cache.Ping(ctx).Err(); err != nil {
		return err.Error()
	}
	return StatusOK
}

// Healthy reports whether every check result is ok or disabled.
func Healthy(results ...string) bool {
	for _, r := range results {
		if r != StatusOK && r != StatusDisabled {
			return false
		}
	}
	return true
}
