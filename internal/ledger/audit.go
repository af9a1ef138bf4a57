package ledger

import (
	"context"
	"fmt"
)

// Violation describes one broken ledger invariant.
type Violation struct {
	TransactionID string
	WalletID      int64
	EntryID       int64
	Reason        string
}

func (v Violation) String() string {
	switch {
	case v.TransactionID != "":
		return fmt.Sprintf("transaction %s: %s", v.TransactionID, v.Reason)
	case v.EntryID != 0:
		return fmt.Sprintf("wallet %d entry %d: %s", v.WalletID, v.EntryID, v.Reason)
	default:
		return fmt.Sprintf("wallet %d: %s", v.WalletID, v.Reason)
	}
}

// Report summarizes an audit run.
type Report struct {
	Wallets      int
	Entries      int
	Transactions int
	Violations   []Violation
}

// OK reports whether the audit found no violations.
func (r Report) OK() bool { return len(r.Violations) == 0 }

// Audit replays entries in creation order and checks that every transaction is
// a balanced debit/credit pair, that every balanceAfter matches the running
// balance of its wallet, and that the running balance ends at the stored
// balance. Wallets are assumed to open at zero.
func Audit(wallets []Wallet, entries []Entry) Report {
	report := Report{Wallets: len(wallets), Entries: len(entries)}

	known := make(map[int64]Wallet, len(wallets))
	for _, w := range wallets {
		known[w.ID] = w
	}

	type txSummary struct {
		sum     int64
		debits  int
		credits int
	}
	txs := make(map[string]*txSummary)
	var txOrder []string
	running := make(map[int64]int64, len(wallets))

	for _, e := range entries {
		sum, ok := txs[e.TransactionID]
		if !ok {
			sum = &txSummary{}
			txs[e.TransactionID] = sum
			txOrder = append(txOrder, e.TransactionID)
		}
		sum.sum += e.Amount
		switch {
		case e.EntryType == EntryDebit && e.Amount < 0:
			sum.debits++
		case e.EntryType == EntryCredit && e.Amount > 0:
			sum.credits++
		default:
			report.Violations = append(report.Violations, Violation{
				WalletID: e.WalletID,
				EntryID:  e.ID,
				Reason:   fmt.Sprintf("%s entry with amount %d", e.EntryType, e.Amount),
			})
		}

		if _, ok := known[e.WalletID]; !ok {
			report.Violations = append(report.Violations, Violation{WalletID: e.WalletID, EntryID: e.ID, Reason: "entry references unknown wallet"})
			continue
		}
		running[e.WalletID] += e.Amount
		if running[e.WalletID] != e.BalanceAfter {
			report.Violations = append(report.Violations, Violation{
				WalletID: e.WalletID,
				EntryID:  e.ID,
				Reason:   fmt.Sprintf("balance_after %d, replayed %d", e.BalanceAfter, running[e.WalletID]),
			})
		}
	}

	report.Transactions = len(txOrder)
	for _, id := range txOrder {
		sum := txs[id]
		if sum.sum != 0 || sum.debits != 1 || sum.credits != 1 {
			report.Violations = append(report.Violations, Violation{
				TransactionID: id,
				Reason:        fmt.Sprintf("sum=%d debits=%d credits=%d", sum.sum, sum.debits, sum.credits),
			})
		}
	}

	for _, w := range wallets {
		if running[w.ID] != w.Balance {
			report.Violations = append(report.Violations, Violation{
				WalletID: w.ID,
				Reason:   fmt.Sprintf("stored balance %d, replayed %d", w.Balance, running[w.ID]),
			})
		}
	}
	return report
}

// AuditJournal loads the full journal and audits it.
func AuditJournal(ctx context.Context, j Journal) (Report, error) {
	wallets, err := j.Wallets(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("load wallets: %w", err)
	}
	entries, err := j.Journal(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("load entries: %w", err)
	}
	return Audit(wallets, entries), nil
}
