package ledger

import (
	"context"
	"errors"
)

// Kind classifies a failure so transports can map it to a stable status without
// inspecting error messages.
type Kind int

const (
	KindInternal Kind = iota
	KindInvalidRequest
	KindInvalidAmount
	KindWalletNotFound
	KindInsufficientBalance
	KindIdempotencyConflict
	KindInvalidIdempotencyKey
)

// Code returns the external error code for the kind.
func (k Kind) Code() string {
	switch k {
	case KindInvalidRequest:
		return "INVALID_REQUEST"
	case KindInvalidAmount:
		return "INVALID_AMOUNT"
	case KindWalletNotFound:
		return "WALLET_NOT_FOUND"
	case KindInsufficientBalance:
		return "INSUFFICIENT_BALANCE"
	case KindIdempotencyConflict:
		return "IDEMPOTENCY_CONFLICT"
	case KindInvalidIdempotencyKey:
		return "INVALID_IDEMPOTENCY_KEY"
	default:
		return "INTERNAL"
	}
}

// Error is a business-rule failure carrying its Kind.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string { return e.Message }

var (
	// ErrInvalidAmount occurs when an amount is zero, negative or not an integer.
	ErrInvalidAmount = &Error{Kind: KindInvalidAmount, Message: "amount must be a positive integer"}

	// ErrWalletNotFound occurs when either counterparty of an operation has no wallet
	// for the requested asset.
	ErrWalletNotFound = &Error{Kind: KindWalletNotFound, Message: "wallet not found"}

	// ErrInsufficientBalance occurs when the source wallet cannot cover the amount.
	ErrInsufficientBalance = &Error{Kind: KindInsufficientBalance, Message: "insufficient balance"}

	// ErrBalanceOverflow occurs when a transfer would push a balance outside the
	// int64 range. It is an invalid amount for the caller.
	ErrBalanceOverflow = &Error{Kind: KindInvalidAmount, Message: "amount would overflow the wallet balance"}
)

// KindOf reports the Kind of err, or KindInternal when err carries none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Tx is a single atomic unit of work. Every mutation made through a Tx becomes
// visible together on commit or not at all.
type Tx interface {
	// FindWallet resolves a wallet without locking it.
	FindWallet(ctx context.Context, ownerID string, ownerType OwnerType, assetCode string) (Wallet, error)
	// LockWallet acquires an exclusive row lock and returns the locked state.
	LockWallet(ctx context.Context, id int64) (Wallet, error)
	// AdjustBalance adds delta to the wallet balance and returns the new balance.
	AdjustBalance(ctx context.Context, id int64, delta int64) (int64, error)
	// AppendEntry writes an immutable ledger row.
	AppendEntry(ctx context.Context, entry Entry) error
}

// Store defines the contract implemented by ledger backends (e.g. Postgres).
type Store interface {
	WithinTx(ctx context.Context, fn func(tx Tx) error) error
	FindWallet(ctx context.Context, ownerID string, ownerType OwnerType, assetCode string) (Wallet, error)
	Balances(ctx context.Context, ownerID string, ownerType OwnerType) ([]AssetBalance, error)
	Entries(ctx context.Context, walletID int64, page Page) ([]Entry, error)
}

// Registry provisions reference data and wallets. Used by seeding and tests.
type Registry interface {
	EnsureAssetType(ctx context.Context, code string) (AssetType, error)
	EnsureWallet(ctx context.Context, ownerID string, ownerType OwnerType, assetCode string) (Wallet, bool, error)
}

// Journal exposes the full ledger for audits.
type Journal interface {
	Wallets(ctx context.Context) ([]Wallet, error)
	Journal(ctx context.Context) ([]Entry, error)
}
