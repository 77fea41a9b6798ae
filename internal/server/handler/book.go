package handler

import (
	"log/slog"
	"net/http"

	"github.com/yesnolabs/venue/internal/book"
	"github.com/yesnolabs/venue/internal/domain"
)

// BookHandler serves the aggregated order book endpoint.
type BookHandler struct {
	agg    *book.Aggregator
	logger *slog.Logger
}

// NewBookHandler creates a BookHandler.
func NewBookHandler(agg *book.Aggregator, logger *slog.Logger) *BookHandler {
	return &BookHandler{
		agg:    agg,
		logger: logger.With(slog.String("handler", "book")),
	}
}

type bookLevelResponse struct {
	Price      float64 `json:"price"`
	Quantity   float64 `json:"quantity"`
	Notional   float64 `json:"notional"`
	OrderCount int     `json:"order_count"`
	Synthetic  bool    `json:"synthetic"`
}

func toLevelResponses(levels []domain.BookLevel) []bookLevelResponse {
	out := make([]bookLevelResponse, 0, len(levels))
	for _, lvl := range levels {
		out = append(out, bookLevelResponse{
			Price:      lvl.Price,
			Quantity:   lvl.Quantity,
			Notional:   lvl.Notional.Dollars(),
			OrderCount: lvl.OrderCount,
			Synthetic:  lvl.Synthetic(),
		})
	}
	return out
}

// GetOrderBook returns the merged view of resting limit orders and AMM
// virtual depth.
// GET /api/markets/{id}/orderbook
func (h *BookHandler) GetOrderBook(w http.ResponseWriter, r *http.Request) {
	marketID := pathParam(r, "id")

	ob, err := h.agg.Get(r.Context(), marketID)
	if err != nil {
		writeEngineError(w, h.logger, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"market_id":     ob.MarketID,
		"bids":          toLevelResponses(ob.Bids),
		"asks":          toLevelResponses(ob.Asks),
		"spread":        ob.Spread,
		"current_price": ob.CurrentPrice,
		"generated_at":  ob.GeneratedAt,
	})
}
