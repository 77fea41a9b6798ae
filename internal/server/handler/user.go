package handler

import (
	"log/slog"
	"net/http"

	"github.com/yesnolabs/venue/internal/domain"
	"github.com/yesnolabs/venue/internal/money"
)

// UserHandler serves per-user read endpoints: balance, positions, orders and
// ledger history.
type UserHandler struct {
	accounts  domain.AccountStore
	positions domain.PositionStore
	orders    domain.OrderStore
	ledger    domain.LedgerStore
	logger    *slog.Logger
}

// NewUserHandler creates a UserHandler.
func NewUserHandler(accounts domain.AccountStore, positions domain.PositionStore, orders domain.OrderStore, ledger domain.LedgerStore, logger *slog.Logger) *UserHandler {
	return &UserHandler{
		accounts:  accounts,
		positions: positions,
		orders:    orders,
		ledger:    ledger,
		logger:    logger.With(slog.String("handler", "user")),
	}
}

type positionResponse struct {
	ID        string  `json:"id"`
	MarketID  string  `json:"market_id"`
	Outcome   string  `json:"outcome"`
	Shares    float64 `json:"shares"`
	AvgPrice  float64 `json:"avg_price"`
	Payout    float64 `json:"payout"`
	Status    string  `json:"status"`
	CreatedAt string  `json:"created_at"`
}

func toPositionResponse(p domain.Position) positionResponse {
	return positionResponse{
		ID:        p.ID,
		MarketID:  p.MarketID,
		Outcome:   string(p.Outcome),
		Shares:    p.Shares,
		AvgPrice:  p.AvgPrice,
		Payout:    p.Payout.Dollars(),
		Status:    string(p.Status),
		CreatedAt: p.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
	}
}

// GetBalance returns the user's account balance.
// GET /api/users/{id}/balance
func (h *UserHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	acct, err := h.accounts.GetByID(r.Context(), pathParam(r, "id"))
	if err != nil {
		writeEngineError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user_id": acct.ID,
		"name":    acct.Name,
		"balance": acct.Balance.Dollars(),
	})
}

// ListPositions returns the user's positions, open and closed, newest first.
// GET /api/users/{id}/positions
func (h *UserHandler) ListPositions(w http.ResponseWriter, r *http.Request) {
	userID := pathParam(r, "id")
	opts := parseListOpts(r)

	positions, err := h.positions.ListByUser(r.Context(), userID, opts)
	if err != nil {
		writeEngineError(w, h.logger, r, err)
		return
	}

	out := make([]positionResponse, 0, len(positions))
	for _, p := range positions {
		out = append(out, toPositionResponse(p))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user_id":   userID,
		"positions": out,
		"count":     len(out),
	})
}

// ListOrders returns the user's order history, newest first.
// GET /api/users/{id}/orders
func (h *UserHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	userID := pathParam(r, "id")
	opts := parseListOpts(r)

	orders, err := h.orders.ListByUser(r.Context(), userID, opts)
	if err != nil {
		writeEngineError(w, h.logger, r, err)
		return
	}

	out := make([]orderResponse, 0, len(orders))
	for _, o := range orders {
		out = append(out, toOrderResponse(o))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user_id": userID,
		"orders":  out,
		"count":   len(out),
	})
}

// ListLedger returns the user's ledger entries, newest first.
// GET /api/users/{id}/ledger
func (h *UserHandler) ListLedger(w http.ResponseWriter, r *http.Request) {
	userID := pathParam(r, "id")
	opts := parseListOpts(r)

	entries, err := h.ledger.ListByAccount(r.Context(), userID, opts)
	if err != nil {
		writeEngineError(w, h.logger, r, err)
		return
	}

	type entryResponse struct {
		ID        int64   `json:"id"`
		Kind      string  `json:"kind"`
		Amount    float64 `json:"amount"`
		OrderID   string  `json:"order_id,omitempty"`
		Reason    string  `json:"reason,omitempty"`
		CreatedAt string  `json:"created_at"`
	}
	out := make([]entryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, entryResponse{
			ID:        e.ID,
			Kind:      string(e.Kind),
			Amount:    e.Amount.Dollars(),
			OrderID:   e.OrderID,
			Reason:    e.Reason,
			CreatedAt: e.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user_id": userID,
		"entries": out,
		"count":   len(out),
	})
}

// CreateUser provisions a user account, optionally with an opening balance.
// Calling it again for an existing ID returns the stored account unchanged
// apart from the name.
// POST /api/users
func (h *UserHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID      string  `json:"id"`
		Name    string  `json:"name"`
		Balance float64 `json:"balance"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.ID == "" {
		writeError(w, http.StatusBadRequest, "id is required")
		return
	}
	if req.Balance < 0 {
		writeEngineError(w, h.logger, r, domain.ErrInvalidAmount)
		return
	}

	acct, err := h.accounts.Ensure(r.Context(), domain.Account{
		ID:      req.ID,
		Name:    req.Name,
		Balance: money.FromDollars(req.Balance),
	})
	if err != nil {
		writeEngineError(w, h.logger, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"user_id": acct.ID,
		"name":    acct.Name,
		"balance": acct.Balance.Dollars(),
	})
}
