package wallet

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/playvault/wallet_ledger/internal/ledger"
)

// Handler exposes wallet HTTP endpoints. Errors are returned as-is and
// rendered by the application error handler.
type Handler struct {
	service *Service
}

// NewHandler builds a wallet HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func decode(c *fiber.Ctx, req any) error {
	if err := c.BodyParser(req); err != nil {
		return &ledger.Error{Kind: ledger.KindInvalidRequest, Message: "malformed request body"}
	}
	return validateRequest(req)
}

// TopUp handles POST /wallet/topup.
func (h *Handler) TopUp(c *fiber.Ctx) error {
	var req TopUpRequest
	if err := decode(c, &req); err != nil {
		return err
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		return err
	}
	res, err := h.service.TopUp(c.UserContext(), TopUpInput{
		UserID:     req.UserID,
		AssetCode:  req.AssetCode,
		Amount:     amount,
		PaymentRef: req.PaymentRef,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(OperationResponse{TransactionID: res.TransactionID, NewBalance: res.NewBalance})
}

// Bonus handles POST /wallet/bonus.
func (h *Handler) Bonus(c *fiber.Ctx) error {
	var req BonusRequest
	if err := decode(c, &req); err != nil {
		return err
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		return err
	}
	res, err := h.service.Bonus(c.UserContext(), BonusInput{
		UserID:    req.UserID,
		AssetCode: req.AssetCode,
		Amount:    amount,
		Reason:    req.Reason,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(OperationResponse{TransactionID: res.TransactionID, NewBalance: res.NewBalance})
}

// Spend handles POST /wallet/spend.
func (h *Handler) Spend(c *fiber.Ctx) error {
	var req SpendRequest
	if err := decode(c, &req); err != nil {
		return err
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		return err
	}
	res, err := h.service.Spend(c.UserContext(), SpendInput{
		UserID:      req.UserID,
		AssetCode:   req.AssetCode,
		Amount:      amount,
		Description: req.Description,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(OperationResponse{TransactionID: res.TransactionID, NewBalance: res.NewBalance})
}

// Balance handles GET /wallet/balance/:userId. With ?asset= it returns one
// balance, otherwise every balance of the user.
func (h *Handler) Balance(c *fiber.Ctx) error {
	userID := c.Params("userId")
	asset := strings.TrimSpace(c.Query("asset"))
	if asset != "" {
		balance, err := h.service.GetBalance(c.UserContext(), userID, asset)
		if err != nil {
			return err
		}
		return c.JSON(BalanceResponse{UserID: userID, AssetCode: asset, Balance: balance})
	}

	balances, err := h.service.GetAllBalances(c.UserContext(), userID)
	if err != nil {
		return err
	}
	out := BalancesResponse{UserID: userID, Balances: make([]AssetBalanceResponse, 0, len(balances))}
	for _, b := range balances {
		out.Balances = append(out.Balances, AssetBalanceResponse{AssetCode: b.AssetCode, Balance: b.Balance})
	}
	return c.JSON(out)
}

// History handles GET /wallet/history/:userId?asset=&limit=&offset=.
func (h *Handler) History(c *fiber.Ctx) error {
	userID := c.Params("userId")
	asset := strings.TrimSpace(c.Query("asset"))
	if asset == "" {
		return &ledger.Error{Kind: ledger.KindInvalidRequest, Message: "asset query parameter is required"}
	}
	page := ledger.Page{Limit: c.QueryInt("limit"), Offset: c.QueryInt("offset")}
	entries, err := h.service.History(c.UserContext(), userID, asset, page)
	if err != nil {
		return err
	}
	return c.JSON(HistoryResponse{UserID: userID, AssetCode: asset, Entries: toEntryResponses(entries)})
}
