package handler

import (
	"log/slog"
	"net/http"

	"github.com/yesnolabs/venue/internal/domain"
	"github.com/yesnolabs/venue/internal/engine"
)

// ResolveHandler exposes the admin settlement endpoint.
type ResolveHandler struct {
	engine *engine.Engine
	logger *slog.Logger
}

// NewResolveHandler creates a ResolveHandler.
func NewResolveHandler(eng *engine.Engine, logger *slog.Logger) *ResolveHandler {
	return &ResolveHandler{
		engine: eng,
		logger: logger.With(slog.String("handler", "resolve")),
	}
}

type resolveRequest struct {
	Outcome string `json:"outcome"`
}

// Resolve settles a market to the given outcome and pays out winners.
// Resolving an already-resolved market replays the stored summary.
// POST /api/markets/{id}/resolve
func (h *ResolveHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	marketID := pathParam(r, "id")

	var req resolveRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	outcome, err := domain.ParseOutcome(req.Outcome)
	if err != nil {
		writeEngineError(w, h.logger, r, err)
		return
	}

	summary, err := h.engine.Resolve(r.Context(), marketID, outcome)
	if err != nil {
		writeEngineError(w, h.logger, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"market_id":         summary.MarketID,
		"outcome":           summary.Outcome,
		"positions_settled": summary.PositionsSettled,
		"winning_positions": summary.WinningPositions,
		"total_payout":      summary.TotalPayout.Dollars(),
		"orders_canceled":   summary.OrdersCanceled,
		"replayed":          summary.Replayed,
	})
}
