package ledger

import "time"

// OwnerType distinguishes end-user wallets from system counterparties.
type OwnerType string

const (
	OwnerUser   OwnerType = "user"
	OwnerSystem OwnerType = "system"
)

const (
	// TreasuryOwnerID issues value for top-ups and bonuses.
	TreasuryOwnerID = "system:treasury"
	// RevenueOwnerID collects value from spends.
	RevenueOwnerID = "system:revenue"
)

// EntryType is the accounting side of a ledger entry.
type EntryType string

const (
	EntryDebit  EntryType = "debit"
	EntryCredit EntryType = "credit"
)

// AssetType is immutable reference data identified externally by Code.
type AssetType struct {
	ID   int64
	Code string
}

// Wallet is one balance of one asset for one owner.
type Wallet struct {
	ID          int64
	OwnerID     string
	OwnerType   OwnerType
	AssetTypeID int64
	AssetCode   string
	Balance     int64
	UpdatedAt   time.Time
}

// AllowsOverdraft reports whether the wallet may hold a negative balance.
// System wallets are issuance and collection sinks, not bounded pools.
func (w Wallet) AllowsOverdraft() bool {
	return w.OwnerType == OwnerSystem
}

// Entry is one side of a balance change. Entries are append-only.
type Entry struct {
	ID            int64
	TransactionID string
	WalletID      int64
	Amount        int64
	EntryType     EntryType
	BalanceAfter  int64
	Description   string
	Metadata      map[string]any
	CreatedAt     time.Time
}

// AssetBalance pairs an asset code with a wallet balance.
type AssetBalance struct {
	AssetCode string
	Balance   int64
}

// Transfer describes a two-party movement of value.
type Transfer struct {
	TransactionID string
	FromWalletID  int64
	ToWalletID    int64
	Amount        int64
	Description   string
	Metadata      map[string]any
}

// TransactionResult captures the outcome of a ledger posting.
type TransactionResult struct {
	TransactionID string
	FromBalance   int64
	ToBalance     int64
}

// Page bounds list queries.
type Page struct {
	Limit  int
	Offset int
}

const (
	defaultPageLimit = 50
	maxPageLimit     = 500
)

func (p Page) normalized() Page {
	if p.Limit <= 0 {
		p.Limit = defaultPageLimit
	}
	if p.Limit > maxPageLimit {
		p.Limit = maxPageLimit
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}
