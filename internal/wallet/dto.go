package wallet

import (
	"encoding/json"
	"math"
	"strings"
	"time"

	"github.com/playvault/wallet_ledger/internal/ledger"
)

// TopUpRequest is the body of POST /wallet/topup.
type TopUpRequest struct {
	UserID     string      `json:"userId" validate:"required,max=255"`
	AssetCode  string      `json:"assetCode" validate:"required,max=64"`
	Amount     json.Number `json:"amount"`
	PaymentRef string      `json:"paymentRef" validate:"max=255"`
}

// BonusRequest is the body of POST /wallet/bonus.
type BonusRequest struct {
	UserID    string      `json:"userId" validate:"required,max=255"`
	AssetCode string      `json:"assetCode" validate:"required,max=64"`
	Amount    json.Number `json:"amount"`
	Reason    string      `json:"reason" validate:"max=255"`
}

// SpendRequest is the body of POST /wallet/spend.
type SpendRequest struct {
	UserID      string      `json:"userId" validate:"required,max=255"`
	AssetCode   string      `json:"assetCode" validate:"required,max=64"`
	Amount      json.Number `json:"amount"`
	Description string      `json:"description" validate:"max=500"`
}

// OperationResponse is returned by every mutating endpoint.
type OperationResponse struct {
	TransactionID string `json:"transactionId"`
	NewBalance    int64  `json:"newBalance"`
}

// BalanceResponse is returned when a single asset is requested.
type BalanceResponse struct {
	UserID    string `json:"userId"`
	AssetCode string `json:"assetCode"`
	Balance   int64  `json:"balance"`
}

// AssetBalanceResponse is one element of BalancesResponse.
type AssetBalanceResponse struct {
	AssetCode string `json:"assetCode"`
	Balance   int64  `json:"balance"`
}

// BalancesResponse lists every balance of a user.
type BalancesResponse struct {
	UserID   string                 `json:"userId"`
	Balances []AssetBalanceResponse `json:"balances"`
}

// EntryResponse is one ledger entry in a history page.
type EntryResponse struct {
	ID            int64          `json:"id"`
	TransactionID string         `json:"transactionId"`
	Amount        int64          `json:"amount"`
	EntryType     string         `json:"entryType"`
	BalanceAfter  int64          `json:"balanceAfter"`
	Description   string         `json:"description"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	CreatedAt     time.Time      `json:"createdAt"`
}

// HistoryResponse is returned by GET /wallet/history/:userId.
type HistoryResponse struct {
	UserID    string          `json:"userId"`
	AssetCode string          `json:"assetCode"`
	Entries   []EntryResponse `json:"entries"`
}

// parseAmount accepts numbers with an integral value, so 100 and 100.0 are
// equivalent while 1.5 is rejected.
func parseAmount(n json.Number) (int64, error) {
	raw := strings.TrimSpace(n.String())
	if raw == "" {
		return 0, ledger.ErrInvalidAmount
	}
	if v, err := n.Int64(); err == nil {
		return v, nil
	}
	f, err := n.Float64()
	if err != nil || f != math.Trunc(f) || f >= math.MaxInt64 || f < math.MinInt64 {
		return 0, ledger.ErrInvalidAmount
	}
	return int64(f), nil
}

func toEntryResponses(entries []ledger.Entry) []EntryResponse {
	out := make([]EntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, EntryResponse{
			ID:            e.ID,
			TransactionID: e.TransactionID,
			Amount:        e.Amount,
			EntryType:     string(e.EntryType),
			BalanceAfter:  e.BalanceAfter,
			Description:   e.Description,
			Metadata:      e.Metadata,
			CreatedAt:     e.CreatedAt,
		})
	}
	return out
}
