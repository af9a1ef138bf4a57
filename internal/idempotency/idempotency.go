// Package idempotency makes retried mutating requests execute at most once.
//
// A key moves from absent to pending (status 0) when a request claims it, and
// from pending to finalized when the executor stores its response. Finalized
// keys replay the stored response verbatim. A pending key rejects duplicates
// until it is finalized or, when a lease is configured, until the claim is
// older than the lease and another request reclaims it.
//
// Every claim carries a fresh token and only the holder of the current token
// may finalize. An executor that outlived its lease loses the key to the
// reclaimer, so the lease must exceed the longest expected request.
package idempotency

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/playvault/wallet_ledger/internal/ledger"
)

// MaxKeyLength bounds the length of an idempotency key in bytes.
const MaxKeyLength = 255

// StatusPending marks a claimed record whose response is not stored yet.
const StatusPending = 0

var (
	// ErrInvalidKey occurs when a key is empty after trimming or too long.
	ErrInvalidKey = &ledger.Error{Kind: ledger.KindInvalidIdempotencyKey, Message: "idempotency key must be between 1 and 255 characters"}

	// ErrConflict occurs when an identical request is still in flight.
	ErrConflict = &ledger.Error{Kind: ledger.KindIdempotencyConflict, Message: "a request with this idempotency key is already being processed"}

	// ErrClaimLost occurs when Finalize is called with a token that no longer
	// owns a pending record: the key was reclaimed or already finalized.
	ErrClaimLost = errors.New("idempotency claim no longer held")
)

// Record is the persisted state of one key.
type Record struct {
	Key         string
	Token       string
	Status      int
	Body        []byte
	ClaimedAt   time.Time
	FinalizedAt time.Time
}

// Pending reports whether the record is claimed but not finalized.
func (r Record) Pending() bool { return r.Status == StatusPending }

// Store persists records. Implementations must make Claim atomic.
type Store interface {
	// Claim inserts a pending record for key holding token, stamped with now.
	// If a record exists and is pending with ClaimedAt before staleBefore, it
	// is re-stamped with the new token and reclaimed. A zero staleBefore
	// disables reclaiming. When the key is not claimed, the existing record is
	// returned.
	Claim(ctx context.Context, key, token string, now, staleBefore time.Time) (claimed bool, existing Record, err error)
	// Finalize stores the terminal response for key if the record is pending
	// and still holds token. Otherwise it returns ErrClaimLost and changes
	// nothing.
	Finalize(ctx context.Context, key, token string, status int, body []byte, now time.Time) error
}

// State is the result of a claim attempt.
type State int

const (
	// Claimed means the caller is the exclusive executor for the key.
	Claimed State = iota + 1
	// Duplicate means the key is finalized and its response must be replayed.
	Duplicate
	// Conflict means an identical request is in flight.
	Conflict
)

func (s State) String() string {
	switch s {
	case Claimed:
		return "claimed"
	case Duplicate:
		return "replayed"
	case Conflict:
		return "conflict"
	default:
		return "unknown"
	}
}

// Outcome is returned by Claim. Token is set for Claimed only; Status and
// Body for Duplicate only.
type Outcome struct {
	State  State
	Token  string
	Status int
	Body   []byte
}

// Coordinator runs the claim/finalize protocol over a Store.
type Coordinator struct {
	store Store
	lease time.Duration
	now   func() time.Time
}

// Option customizes a Coordinator.
type Option func(*Coordinator)

// WithLease lets a pending claim older than lease be reclaimed. Zero or a
// negative duration keeps pending keys blocked until finalized.
func WithLease(lease time.Duration) Option {
	return func(c *Coordinator) { c.lease = lease }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

// NewCoordinator builds a Coordinator over store. Without WithLease pending
// keys are never reclaimed.
func NewCoordinator(store Store, opts ...Option) *Coordinator {
	c := &Coordinator{store: store, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NormalizeKey trims surrounding whitespace and validates the length.
func NormalizeKey(raw string) (string, error) {
	key := strings.TrimSpace(raw)
	if key == "" || len(key) > MaxKeyLength {
		return "", ErrInvalidKey
	}
	return key, nil
}

// Claim validates key and attempts to become its executor.
func (c *Coordinator) Claim(ctx context.Context, key string) (Outcome, error) {
	key, err := NormalizeKey(key)
	if err != nil {
		return Outcome{}, err
	}

	now := c.now().UTC()
	var staleBefore time.Time
	if c.lease > 0 {
		staleBefore = now.Add(-c.lease)
	}

	token := uuid.NewString()
	claimed, existing, err := c.store.Claim(ctx, key, token, now, staleBefore)
	if err != nil {
		return Outcome{}, fmt.Errorf("claim idempotency key: %w", err)
	}
	switch {
	case claimed:
		return Outcome{State: Claimed, Token: token}, nil
	case existing.Pending():
		return Outcome{State: Conflict}, nil
	default:
		return Outcome{State: Duplicate, Status: existing.Status, Body: existing.Body}, nil
	}
}

// Finalize stores the terminal response of a key claimed with token. It
// returns an error wrapping ErrClaimLost when the claim was superseded.
func (c *Coordinator) Finalize(ctx context.Context, key, token string, status int, body []byte) error {
	key, err := NormalizeKey(key)
	if err != nil {
		return err
	}
	if status == StatusPending {
		return fmt.Errorf("finalize %q: status %d is reserved for pending records", key, status)
	}
	if err := c.store.Finalize(ctx, key, token, status, body, c.now().UTC()); err != nil {
		return fmt.Errorf("finalize idempotency key: %w", err)
	}
	return nil
}
