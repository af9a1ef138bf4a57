package idempotency

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Schema creates the idempotency_keys table.
//
//go:embed schema.sql
var Schema string

// PostgresStore keeps records in the idempotency_keys table next to the ledger.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore returns a PostgresStore on db. The table is created by
// Schema.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

// Claim is one conditional insert. The DO UPDATE branch only fires for a stale
// pending record, so RETURNING yields a row exactly when this caller owns the
// key.
func (s *PostgresStore) Claim(ctx context.Context, key, token string, now, staleBefore time.Time) (bool, Record, error) {
	var stale *time.Time
	if !staleBefore.IsZero() {
		stale = &staleBefore
	}
	const claim = `
        INSERT INTO idempotency_keys (idempotency_key, response_status, claimed_at, claim_token)
        VALUES ($1, 0, $2, $4)
        ON CONFLICT (idempotency_key) DO UPDATE
        SET claimed_at = EXCLUDED.claimed_at, claim_token = EXCLUDED.claim_token
        WHERE idempotency_keys.response_status = 0
          AND $3::timestamptz IS NOT NULL
          AND idempotency_keys.claimed_at < $3::timestamptz
        RETURNING idempotency_key`
	var claimedKey string
	err := s.db.QueryRow(ctx, claim, key, now, stale, token).Scan(&claimedKey)
	if err == nil {
		return true, Record{}, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return false, Record{}, err
	}

	rec, err := s.Get(ctx, key)
	if err != nil {
		return false, Record{}, fmt.Errorf("load existing record: %w", err)
	}
	return false, rec, nil
}

// Get loads the record for key.
func (s *PostgresStore) Get(ctx context.Context, key string) (Record, error) {
	const query = `
        SELECT idempotency_key, claim_token, response_status, response_body, claimed_at, finalized_at
        FROM idempotency_keys WHERE idempotency_key = $1`
	var (
		rec         Record
		finalizedAt *time.Time
	)
	if err := s.db.QueryRow(ctx, query, key).Scan(&rec.Key, &rec.Token, &rec.Status, &rec.Body, &rec.ClaimedAt, &finalizedAt); err != nil {
		return Record{}, err
	}
	if finalizedAt != nil {
		rec.FinalizedAt = finalizedAt.UTC()
	}
	rec.ClaimedAt = rec.ClaimedAt.UTC()
	return rec, nil
}

// Finalize is a single conditional update on the pending row holding token.
func (s *PostgresStore) Finalize(ctx context.Context, key, token string, status int, body []byte, now time.Time) error {
	const query = `
        UPDATE idempotency_keys
        SET response_status = $3, response_body = $4, finalized_at = $5
        WHERE idempotency_key = $1 AND claim_token = $2 AND response_status = 0`
	tag, err := s.db.Exec(ctx, query, key, token, status, body, now)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrClaimLost
	}
	return nil
}

// Prune deletes finalized records finalized before olderThan. Pending records
// are never removed.
func (s *PostgresStore) Prune(ctx context.Context, olderThan time.Time) (int64, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM idempotency_keys WHERE response_status <> 0 AND finalized_at < $1`, olderThan)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
