package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/yesnolabs/venue/internal/domain"
	"github.com/yesnolabs/venue/internal/engine"
	"github.com/yesnolabs/venue/internal/money"
)

// TradeHandler serves buy, sell, and quote endpoints.
type TradeHandler struct {
	engine *engine.Engine
	logger *slog.Logger
}

// NewTradeHandler creates a TradeHandler.
func NewTradeHandler(eng *engine.Engine, logger *slog.Logger) *TradeHandler {
	return &TradeHandler{
		engine: eng,
		logger: logger.With(slog.String("handler", "trade")),
	}
}

type buyRequest struct {
	UserID     string   `json:"user_id"`
	Outcome    string   `json:"outcome"`
	Amount     float64  `json:"amount"`
	OrderType  string   `json:"order_type"`
	LimitPrice *float64 `json:"limit_price"`
}

type tradeResponse struct {
	OrderID     string  `json:"order_id"`
	Shares      float64 `json:"shares"`
	ExecPrice   float64 `json:"exec_price,omitempty"`
	FeeDeducted float64 `json:"fee_deducted"`
	NetReturn   float64 `json:"net_return,omitempty"`
	NewBalance  float64 `json:"new_balance"`
	ReserveYes  float64 `json:"reserve_yes"`
	ReserveNo   float64 `json:"reserve_no"`
}

func toTradeResponse(res domain.TradeResult) tradeResponse {
	return tradeResponse{
		OrderID:     res.OrderID,
		Shares:      res.Shares,
		ExecPrice:   res.ExecPrice,
		FeeDeducted: res.FeeDeducted.Dollars(),
		NetReturn:   res.NetReturn.Dollars(),
		NewBalance:  res.NewBalance.Dollars(),
		ReserveYes:  res.NewReserves.Yes.Dollars(),
		ReserveNo:   res.NewReserves.No.Dollars(),
	}
}

// Buy executes a market buy or rests a limit buy.
// POST /api/markets/{id}/buy
func (h *TradeHandler) Buy(w http.ResponseWriter, r *http.Request) {
	marketID := pathParam(r, "id")

	var req buyRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	outcome, err := domain.ParseOutcome(req.Outcome)
	if err != nil {
		writeEngineError(w, h.logger, r, err)
		return
	}

	gross := money.FromDollars(req.Amount)

	var res domain.TradeResult
	switch strings.ToUpper(req.OrderType) {
	case "", string(domain.OrderTypeMarket):
		res, err = h.engine.Buy(r.Context(), req.UserID, marketID, outcome, gross)
	case string(domain.OrderTypeLimit):
		if req.LimitPrice == nil {
			writeError(w, http.StatusBadRequest, "limit_price is required for LIMIT orders")
			return
		}
		res, err = h.engine.PlaceLimitBuy(r.Context(), req.UserID, marketID, outcome, gross, *req.LimitPrice)
	default:
		writeError(w, http.StatusBadRequest, "order_type must be MARKET or LIMIT")
		return
	}
	if err != nil {
		writeEngineError(w, h.logger, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toTradeResponse(res))
}

type sellRequest struct {
	UserID  string  `json:"user_id"`
	Outcome string  `json:"outcome"`
	Shares  float64 `json:"shares"`
}

// Sell sells shares from an open position back to the pool.
// POST /api/markets/{id}/sell
func (h *TradeHandler) Sell(w http.ResponseWriter, r *http.Request) {
	marketID := pathParam(r, "id")

	var req sellRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	outcome, err := domain.ParseOutcome(req.Outcome)
	if err != nil {
		writeEngineError(w, h.logger, r, err)
		return
	}

	res, err := h.engine.Sell(r.Context(), req.UserID, marketID, outcome, req.Shares)
	if err != nil {
		writeEngineError(w, h.logger, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toTradeResponse(res))
}

// Quote prices a hypothetical buy without committing anything.
// GET /api/markets/{id}/quote?outcome=YES&amount=100
func (h *TradeHandler) Quote(w http.ResponseWriter, r *http.Request) {
	marketID := pathParam(r, "id")
	q := r.URL.Query()

	outcome, err := domain.ParseOutcome(q.Get("outcome"))
	if err != nil {
		writeEngineError(w, h.logger, r, err)
		return
	}

	amount, err := parseDollars(q.Get("amount"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "amount must be a positive number")
		return
	}

	quote, err := h.engine.Quote(r.Context(), marketID, outcome, amount)
	if err != nil {
		writeEngineError(w, h.logger, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"market_id":        quote.MarketID,
		"outcome":          string(quote.Outcome),
		"amount":           quote.Amount.Dollars(),
		"current_price":    quote.CurrentPrice,
		"execution_price":  quote.ExecutionPrice,
		"slippage_percent": quote.SlippagePercent,
		"shares":           quote.Shares,
	})
}
