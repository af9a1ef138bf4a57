package wallet

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/playvault/wallet_ledger/internal/ledger"
	"github.com/playvault/wallet_ledger/internal/metrics"
	"github.com/playvault/wallet_ledger/internal/notification"
)

// Service exposes wallet operations backed by the ledger.
type Service struct {
	store    ledger.Store
	notifier notification.Notifier
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// NewService builds a wallet service. notifier, m and logger may be nil.
func NewService(store ledger.Store, notifier notification.Notifier, m *metrics.Metrics, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, notifier: notifier, metrics: m, logger: logger}
}

// operation is one policy over the transfer engine: a fixed system
// counterparty and a fixed direction.
type operation struct {
	name         string
	kind         string
	userID       string
	assetCode    string
	amount       int64
	counterparty string
	// debitUser is true when value flows from the user to the counterparty.
	debitUser   bool
	description string
	metadata    map[string]any
}

// TopUp credits purchased value to the user's wallet from the treasury.
func (s *Service) TopUp(ctx context.Context, in TopUpInput) (Result, error) {
	return s.run(ctx, operation{
		name:         "topup",
		kind:         notification.KindTopUp,
		userID:       in.UserID,
		assetCode:    in.AssetCode,
		amount:       in.Amount,
		counterparty: ledger.TreasuryOwnerID,
		description:  fmt.Sprintf("Top-up: purchased %d %s", in.Amount, in.AssetCode),
		metadata:     map[string]any{"type": "topup", "payment_ref": in.PaymentRef},
	})
}

// Bonus credits granted value to the user's wallet from the treasury.
func (s *Service) Bonus(ctx context.Context, in BonusInput) (Result, error) {
	reason := in.Reason
	if reason == "" {
		reason = "incentive"
	}
	return s.run(ctx, operation{
		name:         "bonus",
		kind:         notification.KindBonus,
		userID:       in.UserID,
		assetCode:    in.AssetCode,
		amount:       in.Amount,
		counterparty: ledger.TreasuryOwnerID,
		description:  fmt.Sprintf("Bonus: %s - %d %s", reason, in.Amount, in.AssetCode),
		metadata:     map[string]any{"type": "bonus", "reason": in.Reason},
	})
}

// Spend debits the user's wallet into revenue.
func (s *Service) Spend(ctx context.Context, in SpendInput) (Result, error) {
	description := in.Description
	if description == "" {
		description = fmt.Sprintf("Spend: %d %s", in.Amount, in.AssetCode)
	}
	return s.run(ctx, operation{
		name:         "spend",
		kind:         notification.KindSpend,
		userID:       in.UserID,
		assetCode:    in.AssetCode,
		amount:       in.Amount,
		counterparty: ledger.RevenueOwnerID,
		debitUser:    true,
		description:  description,
		metadata:     map[string]any{"type": "spend"},
	})
}

func (s *Service) run(ctx context.Context, op operation) (Result, error) {
	start := time.Now()
	res, err := s.execute(ctx, op)
	outcome := "ok"
	if err != nil {
		outcome = ledger.KindOf(err).Code()
	}
	s.metrics.ObserveOperation(op.name, outcome, time.Since(start))
	if err != nil {
		return Result{}, err
	}

	s.notify(ctx, op, res)
	return res, nil
}

func (s *Service) execute(ctx context.Context, op operation) (Result, error) {
	if op.amount <= 0 {
		return Result{}, ledger.ErrInvalidAmount
	}

	var res Result
	err := s.store.WithinTx(ctx, func(tx ledger.Tx) error {
		user, err := tx.FindWallet(ctx, op.userID, ledger.OwnerUser, op.assetCode)
		if err != nil {
			return err
		}
		system, err := tx.FindWallet(ctx, op.counterparty, ledger.OwnerSystem, op.assetCode)
		if err != nil {
			return err
		}

		transfer := ledger.Transfer{
			TransactionID: uuid.NewString(),
			FromWalletID:  system.ID,
			ToWalletID:    user.ID,
			Amount:        op.amount,
			Description:   op.description,
			Metadata:      op.metadata,
		}
		if op.debitUser {
			// Fail fast on the unlocked read; the engine re-checks under the lock.
			if user.Balance < op.amount {
				return ledger.ErrInsufficientBalance
			}
			transfer.FromWalletID, transfer.ToWalletID = user.ID, system.ID
		}

		result, err := ledger.Execute(ctx, tx, transfer)
		if err != nil {
			return err
		}
		res = Result{TransactionID: result.TransactionID, NewBalance: result.ToBalance}
		if op.debitUser {
			res.NewBalance = result.FromBalance
		}
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	return res, nil
}

func (s *Service) notify(ctx context.Context, op operation, res Result) {
	if s.notifier == nil {
		return
	}
	verb := "received"
	if op.debitUser {
		verb = "spent"
	}
	err := s.notifier.Send(ctx, notification.Message{
		Kind:          op.kind,
		Destination:   op.userID,
		TransactionID: res.TransactionID,
		Body:          fmt.Sprintf("You %s %d %s, new balance %d", verb, op.amount, op.assetCode, res.NewBalance),
	})
	if err != nil {
		s.logger.WarnContext(ctx, "notification failed", slog.String("transaction_id", res.TransactionID), slog.Any("error", err))
	}
}

// GetBalance returns the balance of a user's wallet for one asset.
func (s *Service) GetBalance(ctx context.Context, userID, assetCode string) (int64, error) {
	w, err := s.store.FindWallet(ctx, userID, ledger.OwnerUser, assetCode)
	if err != nil {
		return 0, err
	}
	return w.Balance, nil
}

// GetAllBalances returns every balance of a user ordered by asset code.
func (s *Service) GetAllBalances(ctx context.Context, userID string) ([]ledger.AssetBalance, error) {
	return s.store.Balances(ctx, userID, ledger.OwnerUser)
}

// History returns a page of a user's ledger entries for one asset, newest first.
func (s *Service) History(ctx context.Context, userID, assetCode string, page ledger.Page) ([]ledger.Entry, error) {
	w, err := s.store.FindWallet(ctx, userID, ledger.OwnerUser, assetCode)
	if err != nil {
		return nil, err
	}
	return s.store.Entries(ctx, w.ID, page)
}
