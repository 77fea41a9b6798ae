package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/yesnolabs/venue/internal/domain"
	"github.com/yesnolabs/venue/internal/engine"
	"github.com/yesnolabs/venue/internal/money"
)

// LiquidityHandler exposes the admin pool adjustment endpoint.
type LiquidityHandler struct {
	engine *engine.Engine
	logger *slog.Logger
}

// NewLiquidityHandler creates a LiquidityHandler.
func NewLiquidityHandler(eng *engine.Engine, logger *slog.Logger) *LiquidityHandler {
	return &LiquidityHandler{
		engine: eng,
		logger: logger.With(slog.String("handler", "liquidity")),
	}
}

type liquidityRequest struct {
	Action string  `json:"action"`
	Amount float64 `json:"amount"`
	Reason string  `json:"reason"`
}

type liquidityResponse struct {
	MarketID   string  `json:"market_id"`
	Action     string  `json:"action"`
	AmountYes  float64 `json:"amount_yes"`
	AmountNo   float64 `json:"amount_no"`
	ReserveYes float64 `json:"reserve_yes"`
	ReserveNo  float64 `json:"reserve_no"`
}

// Adjust injects into or withdraws from a market's AMM pool.
// POST /api/markets/{id}/liquidity
func (h *LiquidityHandler) Adjust(w http.ResponseWriter, r *http.Request) {
	marketID := pathParam(r, "id")

	var req liquidityRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Amount <= 0 {
		writeEngineError(w, h.logger, r, domain.ErrInvalidAmount)
		return
	}
	amount := money.FromDollars(req.Amount)

	var (
		res domain.LiquidityResult
		err error
	)
	action := strings.ToLower(req.Action)
	switch action {
	case "inject":
		res, err = h.engine.InjectLiquidity(r.Context(), marketID, amount, req.Reason)
	case "withdraw":
		res, err = h.engine.WithdrawLiquidity(r.Context(), marketID, amount, req.Reason)
	default:
		writeError(w, http.StatusBadRequest, "action must be \"inject\" or \"withdraw\"")
		return
	}
	if err != nil {
		writeEngineError(w, h.logger, r, err)
		return
	}

	writeJSON(w, http.StatusOK, liquidityResponse{
		MarketID:   marketID,
		Action:     action,
		AmountYes:  res.AmountYes.Dollars(),
		AmountNo:   res.AmountNo.Dollars(),
		ReserveYes: res.NewReserves.Yes.Dollars(),
		ReserveNo:  res.NewReserves.No.Dollars(),
	})
}
