package wallet

// TopUpInput credits purchased value from the treasury.
type TopUpInput struct {
	UserID     string
	AssetCode  string
	Amount     int64
	PaymentRef string
}

// BonusInput credits granted value from the treasury.
type BonusInput struct {
	UserID    string
	AssetCode string
	Amount    int64
	Reason    string
}

// SpendInput debits value from a user wallet into revenue.
type SpendInput struct {
	UserID      string
	AssetCode   string
	Amount      int64
	Description string
}

// Result is returned by every mutating operation.
type Result struct {
	TransactionID string
	NewBalance    int64
}
