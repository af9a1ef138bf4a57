package ledger

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// Fund credits w from the treasury wallet of the same asset through the
// transfer engine, so the journal stays balanced. Used by seeding and tests.
func Fund(ctx context.Context, s Store, w Wallet, amount int64, description string) (TransactionResult, error) {
	var result TransactionResult
	err := s.WithinTx(ctx, func(tx Tx) error {
		treasury, err := tx.FindWallet(ctx, TreasuryOwnerID, OwnerSystem, w.AssetCode)
		if err != nil {
			return fmt.Errorf("treasury wallet for %s: %w", w.AssetCode, err)
		}
		result, err = Execute(ctx, tx, Transfer{
			TransactionID: uuid.NewString(),
			FromWalletID:  treasury.ID,
			ToWalletID:    w.ID,
			Amount:        amount,
			Description:   description,
			Metadata:      map[string]any{"type": "grant"},
		})
		return err
	})
	return result, err
}
