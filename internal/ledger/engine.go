package ledger

import (
	"context"
	"fmt"
	"math"
)

// lockOrder returns the pair in ascending order. Every transfer acquires row
// locks in this order, which is what keeps crossing transfers from deadlocking.
func lockOrder(a, b int64) (int64, int64) {
	if a <= b {
		return a, b
	}
	return b, a
}

// Execute performs a double-entry transfer inside tx: it locks both wallets in
// ascending ID order, verifies the source can cover the amount and that neither
// balance leaves the int64 range, moves the value
// and appends a debit and a credit entry for t.TransactionID.
//
// Execute never commits; the caller owns tx and must roll it back on error.
func Execute(ctx context.Context, tx Tx, t Transfer) (TransactionResult, error) {
	if t.Amount <= 0 {
		return TransactionResult{}, ErrInvalidAmount
	}

	firstID, secondID := lockOrder(t.FromWalletID, t.ToWalletID)

	first, err := tx.LockWallet(ctx, firstID)
	if err != nil {
		return TransactionResult{}, err
	}
	second := first
	if secondID != firstID {
		if second, err = tx.LockWallet(ctx, secondID); err != nil {
			return TransactionResult{}, err
		}
	}

	from, to := first, second
	if from.ID != t.FromWalletID {
		from, to = second, first
	}
	if !from.AllowsOverdraft() && from.Balance < t.Amount {
		return TransactionResult{}, ErrInsufficientBalance
	}
	// A self-transfer nets to zero and cannot overflow.
	if from.ID != to.ID && (from.Balance < math.MinInt64+t.Amount || to.Balance > math.MaxInt64-t.Amount) {
		return TransactionResult{}, ErrBalanceOverflow
	}

	fromAfter, err := tx.AdjustBalance(ctx, t.FromWalletID, -t.Amount)
	if err != nil {
		return TransactionResult{}, fmt.Errorf("debit wallet %d: %w", t.FromWalletID, err)
	}
	toAfter, err := tx.AdjustBalance(ctx, t.ToWalletID, t.Amount)
	if err != nil {
		return TransactionResult{}, fmt.Errorf("credit wallet %d: %w", t.ToWalletID, err)
	}

	debit := Entry{
		TransactionID: t.TransactionID,
		WalletID:      t.FromWalletID,
		Amount:        -t.Amount,
		EntryType:     EntryDebit,
		BalanceAfter:  fromAfter,
		Description:   t.Description,
		Metadata:      t.Metadata,
	}
	if err := tx.AppendEntry(ctx, debit); err != nil {
		return TransactionResult{}, fmt.Errorf("append debit: %w", err)
	}

	credit := debit
	credit.WalletID = t.ToWalletID
	credit.Amount = t.Amount
	credit.EntryType = EntryCredit
	credit.BalanceAfter = toAfter
	if err := tx.AppendEntry(ctx, credit); err != nil {
		return TransactionResult{}, fmt.Errorf("append credit: %w", err)
	}

	return TransactionResult{TransactionID: t.TransactionID, FromBalance: fromAfter, ToBalance: toAfter}, nil
}
