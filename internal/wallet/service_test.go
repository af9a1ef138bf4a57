package wallet

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/playvault/wallet_ledger/internal/ledger"
	"github.com/playvault/wallet_ledger/internal/logging"
	"github.com/playvault/wallet_ledger/internal/metrics"
	"github.com/playvault/wallet_ledger/internal/notification"
)

type recordingNotifier struct {
	mu       sync.Mutex
	messages []notification.Message
}

func (n *recordingNotifier) Send(_ context.Context, m notification.Message) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, m)
	return nil
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.messages)
}

func newTestService(t *testing.T) (*Service, *ledger.MemoryStore, *recordingNotifier) {
	t.Helper()
	ctx := context.Background()
	store := ledger.NewInMemory()
	for _, asset := range []string{"GOLD_COINS", "DIAMONDS"} {
		if _, err := store.EnsureAssetType(ctx, asset); err != nil {
			t.Fatalf("ensure asset: %v", err)
		}
		for _, owner := range []string{ledger.TreasuryOwnerID, ledger.RevenueOwnerID} {
			if _, _, err := store.EnsureWallet(ctx, owner, ledger.OwnerSystem, asset); err != nil {
				t.Fatalf("ensure system wallet: %v", err)
			}
		}
	}
	if _, _, err := store.EnsureWallet(ctx, "user-1", ledger.OwnerUser, "GOLD_COINS"); err != nil {
		t.Fatalf("ensure user wallet: %v", err)
	}
	notifier := &recordingNotifier{}
	return NewService(store, notifier, nil, logging.Discard()), store, notifier
}

func journal(t *testing.T, store *ledger.MemoryStore) []ledger.Entry {
	t.Helper()
	entries, err := store.Journal(context.Background())
	if err != nil {
		t.Fatalf("journal: %v", err)
	}
	return entries
}

func TestTopUpFromZero(t *testing.T) {
	svc, store, notifier := newTestService(t)
	ctx := context.Background()

	res, err := svc.TopUp(ctx, TopUpInput{UserID: "user-1", AssetCode: "GOLD_COINS", Amount: 100, PaymentRef: "pay_1"})
	if err != nil {
		t.Fatalf("top up: %v", err)
	}
	if res.NewBalance != 100 || res.TransactionID == "" {
		t.Fatalf("unexpected result: %+v", res)
	}

	entries := journal(t, store)
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	debit, credit := entries[0], entries[1]
	if debit.Amount != -100 || debit.BalanceAfter != -100 || debit.EntryType != ledger.EntryDebit {
		t.Fatalf("unexpected treasury entry: %+v", debit)
	}
	if credit.Amount != 100 || credit.BalanceAfter != 100 || credit.EntryType != ledger.EntryCredit {
		t.Fatalf("unexpected user entry: %+v", credit)
	}
	if credit.TransactionID != res.TransactionID || debit.TransactionID != res.TransactionID {
		t.Fatalf("entries not tagged with transaction %s", res.TransactionID)
	}
	if credit.Description != "Top-up: purchased 100 GOLD_COINS" {
		t.Fatalf("unexpected description %q", credit.Description)
	}
	if credit.Metadata["payment_ref"] != "pay_1" || credit.Metadata["type"] != "topup" {
		t.Fatalf("unexpected metadata %v", credit.Metadata)
	}
	if notifier.count() != 1 {
		t.Fatalf("expected one notification, got %d", notifier.count())
	}
}

func TestSpendInsufficientBalanceLeavesBalance(t *testing.T) {
	svc, store, notifier := newTestService(t)
	ctx := context.Background()
	if _, err := svc.TopUp(ctx, TopUpInput{UserID: "user-1", AssetCode: "GOLD_COINS", Amount: 50}); err != nil {
		t.Fatalf("top up: %v", err)
	}

	_, err := svc.Spend(ctx, SpendInput{UserID: "user-1", AssetCode: "GOLD_COINS", Amount: 80})
	if !errors.Is(err, ledger.ErrInsufficientBalance) {
		t.Fatalf("expected insufficient balance, got %v", err)
	}
	balance, err := svc.GetBalance(ctx, "user-1", "GOLD_COINS")
	if err != nil {
		t.Fatalf("get balance: %v", err)
	}
	if balance != 50 {
		t.Fatalf("expected balance 50, got %d", balance)
	}
	if len(journal(t, store)) != 2 {
		t.Fatalf("failed spend wrote entries")
	}
	if notifier.count() != 1 {
		t.Fatalf("failed spend must not notify")
	}
}

func TestSpendMovesValueToRevenue(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()
	if _, err := svc.TopUp(ctx, TopUpInput{UserID: "user-1", AssetCode: "GOLD_COINS", Amount: 50}); err != nil {
		t.Fatalf("top up: %v", err)
	}
	res, err := svc.Spend(ctx, SpendInput{UserID: "user-1", AssetCode: "GOLD_COINS", Amount: 30})
	if err != nil {
		t.Fatalf("spend: %v", err)
	}
	if res.NewBalance != 20 {
		t.Fatalf("expected new balance 20, got %d", res.NewBalance)
	}
	revenue, err := store.FindWallet(ctx, ledger.RevenueOwnerID, ledger.OwnerSystem, "GOLD_COINS")
	if err != nil {
		t.Fatalf("find revenue: %v", err)
	}
	if revenue.Balance != 30 {
		t.Fatalf("expected revenue 30, got %d", revenue.Balance)
	}
	entries := journal(t, store)
	if got := entries[len(entries)-1].Description; got != "Spend: 30 GOLD_COINS" {
		t.Fatalf("unexpected default description %q", got)
	}
}

func TestBonusWithoutWalletFails(t *testing.T) {
	svc, store, _ := newTestService(t)
	_, err := svc.Bonus(context.Background(), BonusInput{UserID: "user-1", AssetCode: "DIAMONDS", Amount: 10, Reason: "welcome"})
	if ledger.KindOf(err) != ledger.KindWalletNotFound {
		t.Fatalf("expected wallet not found, got %v", err)
	}
	if len(journal(t, store)) != 0 {
		t.Fatalf("failed bonus wrote entries")
	}
}

func TestBonusDescription(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()
	if _, err := svc.Bonus(ctx, BonusInput{UserID: "user-1", AssetCode: "GOLD_COINS", Amount: 5}); err != nil {
		t.Fatalf("bonus: %v", err)
	}
	if _, err := svc.Bonus(ctx, BonusInput{UserID: "user-1", AssetCode: "GOLD_COINS", Amount: 7, Reason: "streak"}); err != nil {
		t.Fatalf("bonus: %v", err)
	}
	entries := journal(t, store)
	if got := entries[1].Description; got != "Bonus: incentive - 5 GOLD_COINS" {
		t.Fatalf("unexpected default bonus description %q", got)
	}
	if got := entries[3].Description; got != "Bonus: streak - 7 GOLD_COINS" {
		t.Fatalf("unexpected bonus description %q", got)
	}
}

func TestOperationsRejectNonPositiveAmounts(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	for _, amount := range []int64{0, -1} {
		if _, err := svc.TopUp(ctx, TopUpInput{UserID: "user-1", AssetCode: "GOLD_COINS", Amount: amount}); !errors.Is(err, ledger.ErrInvalidAmount) {
			t.Fatalf("top up %d: expected invalid amount, got %v", amount, err)
		}
		if _, err := svc.Spend(ctx, SpendInput{UserID: "user-1", AssetCode: "GOLD_COINS", Amount: amount}); !errors.Is(err, ledger.ErrInvalidAmount) {
			t.Fatalf("spend %d: expected invalid amount, got %v", amount, err)
		}
	}
}

func TestTopUpOverflowIsInvalidAmount(t *testing.T) {
	svc, store, notifier := newTestService(t)
	ctx := context.Background()
	if _, err := svc.TopUp(ctx, TopUpInput{UserID: "user-1", AssetCode: "GOLD_COINS", Amount: 100}); err != nil {
		t.Fatalf("top up: %v", err)
	}

	_, err := svc.TopUp(ctx, TopUpInput{UserID: "user-1", AssetCode: "GOLD_COINS", Amount: math.MaxInt64})
	if ledger.KindOf(err) != ledger.KindInvalidAmount {
		t.Fatalf("expected invalid amount, got %v", err)
	}
	balance, err := svc.GetBalance(ctx, "user-1", "GOLD_COINS")
	if err != nil || balance != 100 {
		t.Fatalf("expected balance 100, got %d (%v)", balance, err)
	}
	if len(journal(t, store)) != 2 || notifier.count() != 1 {
		t.Fatalf("rejected top up left a trace")
	}
}

func TestConcurrentSpendsNeverOverdraw(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()
	if _, err := svc.TopUp(ctx, TopUpInput{UserID: "user-1", AssetCode: "GOLD_COINS", Amount: 100}); err != nil {
		t.Fatalf("top up: %v", err)
	}

	const workers = 20
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Spend(ctx, SpendInput{UserID: "user-1", AssetCode: "GOLD_COINS", Amount: 15})
			if err != nil && !errors.Is(err, ledger.ErrInsufficientBalance) {
				t.Errorf("spend: %v", err)
				return
			}
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if succeeded != 6 {
		t.Fatalf("expected 6 successful spends of 15 from 100, got %d", succeeded)
	}
	balance, _ := svc.GetBalance(ctx, "user-1", "GOLD_COINS")
	if balance != 10 {
		t.Fatalf("expected remaining balance 10, got %d", balance)
	}
	report, err := ledger.AuditJournal(ctx, store)
	if err != nil {
		t.Fatalf("audit: %v", err)
	}
	if !report.OK() {
		t.Fatalf("audit violations: %v", report.Violations)
	}
}

func TestBalancesAndHistory(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()
	if _, _, err := store.EnsureWallet(ctx, "user-1", ledger.OwnerUser, "DIAMONDS"); err != nil {
		t.Fatalf("ensure wallet: %v", err)
	}
	if _, err := svc.TopUp(ctx, TopUpInput{UserID: "user-1", AssetCode: "GOLD_COINS", Amount: 40}); err != nil {
		t.Fatalf("top up: %v", err)
	}
	if _, err := svc.Spend(ctx, SpendInput{UserID: "user-1", AssetCode: "GOLD_COINS", Amount: 15, Description: "sword"}); err != nil {
		t.Fatalf("spend: %v", err)
	}

	balances, err := svc.GetAllBalances(ctx, "user-1")
	if err != nil {
		t.Fatalf("balances: %v", err)
	}
	if len(balances) != 2 || balances[0].AssetCode != "DIAMONDS" || balances[1].Balance != 25 {
		t.Fatalf("unexpected balances: %+v", balances)
	}

	history, err := svc.History(ctx, "user-1", "GOLD_COINS", ledger.Page{})
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 2 || history[0].Description != "sword" || history[0].Amount != -15 {
		t.Fatalf("unexpected history: %+v", history)
	}
	if _, err := svc.History(ctx, "ghost", "GOLD_COINS", ledger.Page{}); ledger.KindOf(err) != ledger.KindWalletNotFound {
		t.Fatalf("expected wallet not found for unknown user, got %v", err)
	}
}

func TestOperationMetrics(t *testing.T) {
	store := ledger.NewInMemory()
	m := metrics.New()
	svc := NewService(store, nil, m, logging.Discard())
	_, _ = svc.Spend(context.Background(), SpendInput{UserID: "nobody", AssetCode: "GOLD_COINS", Amount: 1})

	count, err := testutil.GatherAndCount(m.Registry(), "wallet_ledger_wallet_operations_total")
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected one operation series, got %d", count)
	}
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{in: "100", want: 100},
		{in: "100.0", want: 100},
		{in: "1e3", want: 1000},
		{in: "1.5", wantErr: true},
		{in: "", wantErr: true},
		{in: "1e30", wantErr: true},
	}
	for _, tc := range tests {
		got, err := parseAmount(json.Number(tc.in))
		if tc.wantErr {
			if !errors.Is(err, ledger.ErrInvalidAmount) {
				t.Fatalf("%q: expected invalid amount, got %d, %v", tc.in, got, err)
			}
			continue
		}
		if err != nil || got != tc.want {
			t.Fatalf("%q: expected %d, got %d, %v", tc.in, tc.want, got, err)
		}
	}
}

func TestValidateRequest(t *testing.T) {
	err := validateRequest(&TopUpRequest{Amount: "10"})
	if ledger.KindOf(err) != ledger.KindInvalidRequest {
		t.Fatalf("expected invalid request, got %v", err)
	}
	if want := "assetCode is required; userId is required"; err.Error() != want {
		t.Fatalf("expected %q, got %q", want, err.Error())
	}
	if err := validateRequest(&TopUpRequest{UserID: "u", AssetCode: "GOLD_COINS"}); err != nil {
		t.Fatalf("expected valid request, got %v", err)
	}
}
