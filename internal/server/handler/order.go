package handler

import (
	"log/slog"
	"net/http"

	"github.com/yesnolabs/venue/internal/domain"
	"github.com/yesnolabs/venue/internal/engine"
)

// OrderHandler exposes order lookup and cancellation.
type OrderHandler struct {
	engine *engine.Engine
	orders domain.OrderStore
	logger *slog.Logger
}

// NewOrderHandler creates an OrderHandler.
func NewOrderHandler(eng *engine.Engine, orders domain.OrderStore, logger *slog.Logger) *OrderHandler {
	return &OrderHandler{
		engine: eng,
		orders: orders,
		logger: logger.With(slog.String("handler", "order")),
	}
}

type orderResponse struct {
	ID              string   `json:"id"`
	UserID          string   `json:"user_id"`
	MarketID        string   `json:"market_id"`
	Outcome         string   `json:"outcome"`
	Side            string   `json:"side"`
	Type            string   `json:"type"`
	Status          string   `json:"status"`
	Amount          float64  `json:"amount"`
	LimitPrice      *float64 `json:"limit_price,omitempty"`
	FilledShares    float64  `json:"filled_shares"`
	RemainingShares float64  `json:"remaining_shares"`
	FeeDeducted     float64  `json:"fee_deducted"`
	CreatedAt       string   `json:"created_at"`
}

func toOrderResponse(o domain.Order) orderResponse {
	resp := orderResponse{
		ID:              o.ID,
		UserID:          o.UserID,
		MarketID:        o.MarketID,
		Outcome:         string(o.Outcome),
		Side:            string(o.Side),
		Type:            string(o.Type),
		Status:          string(o.Status),
		Amount:          o.Amount.Dollars(),
		FilledShares:    o.FilledShares,
		RemainingShares: o.RemainingShares(),
		FeeDeducted:     o.FeeDeducted.Dollars(),
		CreatedAt:       o.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
	}
	if o.LimitPrice != nil {
		p := *o.LimitPrice
		resp.LimitPrice = &p
	}
	return resp
}

// GetOrder returns a single order by ID.
// GET /api/orders/{id}
func (h *OrderHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.GetByID(r.Context(), pathParam(r, "id"))
	if err != nil {
		writeEngineError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(o))
}

// CancelOrder cancels a resting limit order and refunds its unfilled
// remainder.
// DELETE /api/orders/{id}
func (h *OrderHandler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	orderID := pathParam(r, "id")

	if err := h.engine.CancelOrder(r.Context(), orderID); err != nil {
		writeEngineError(w, h.logger, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"order_id": orderID,
		"status":   domain.OrderStatusCanceled,
	})
}
