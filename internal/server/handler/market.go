package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/yesnolabs/venue/internal/amm"
	"github.com/yesnolabs/venue/internal/domain"
	"github.com/yesnolabs/venue/internal/engine"
	"github.com/yesnolabs/venue/internal/money"
)

// BatchPriceReader reads cached prices for many markets at once. The Redis
// price cache implements it; list responses fall back to computing prices
// from reserves when the cache misses.
type BatchPriceReader interface {
	GetPrices(ctx context.Context, marketIDs []string) (map[string]float64, error)
}

// MarketHandler serves market creation and market read endpoints.
type MarketHandler struct {
	engine  *engine.Engine
	markets domain.MarketStore
	prices  BatchPriceReader
	logger  *slog.Logger
}

// NewMarketHandler creates a MarketHandler. prices may be nil.
func NewMarketHandler(eng *engine.Engine, markets domain.MarketStore, prices BatchPriceReader, logger *slog.Logger) *MarketHandler {
	return &MarketHandler{
		engine:  eng,
		markets: markets,
		prices:  prices,
		logger:  logger.With(slog.String("handler", "market")),
	}
}

type marketResponse struct {
	ID              string    `json:"id"`
	Question        string    `json:"question"`
	YesPrice        float64   `json:"yes_price"`
	NoPrice         float64   `json:"no_price"`
	ReserveYes      float64   `json:"reserve_yes"`
	ReserveNo       float64   `json:"reserve_no"`
	TotalVolume     float64   `json:"total_volume"`
	FeeRate         float64   `json:"fee_rate"`
	Status          string    `json:"status"`
	ResolvedOutcome *string   `json:"resolved_outcome,omitempty"`
	ClosesAt        time.Time `json:"closes_at"`
	CreatedAt       time.Time `json:"created_at"`
}

func toMarketResponse(m *domain.Market, yesPrice float64) marketResponse {
	resp := marketResponse{
		ID:          m.ID,
		Question:    m.Question,
		YesPrice:    yesPrice,
		NoPrice:     1 - yesPrice,
		ReserveYes:  m.ReserveYes.Dollars(),
		ReserveNo:   m.ReserveNo.Dollars(),
		TotalVolume: m.TotalVolume.Dollars(),
		FeeRate:     m.FeeRate,
		Status:      string(m.Status),
		ClosesAt:    m.ClosesAt,
		CreatedAt:   m.CreatedAt,
	}
	if m.ResolvedOutcome != nil {
		s := string(*m.ResolvedOutcome)
		resp.ResolvedOutcome = &s
	}
	return resp
}

type createMarketRequest struct {
	Question   string    `json:"question"`
	FeeRate    *float64  `json:"fee_rate"`
	ClosesAt   time.Time `json:"closes_at"`
	ReserveYes float64   `json:"reserve_yes"`
	ReserveNo  float64   `json:"reserve_no"`
	Seed       float64   `json:"seed"`
}

// CreateMarket provisions a new market.
// POST /api/markets
func (h *MarketHandler) CreateMarket(defaultFeeRate float64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createMarketRequest
		if err := decodeBody(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
			return
		}

		feeRate := defaultFeeRate
		if req.FeeRate != nil {
			feeRate = *req.FeeRate
		}

		m, err := h.engine.CreateMarket(r.Context(), engine.CreateMarketParams{
			Question:   req.Question,
			FeeRate:    feeRate,
			ClosesAt:   req.ClosesAt,
			ReserveYes: money.FromDollars(req.ReserveYes),
			ReserveNo:  money.FromDollars(req.ReserveNo),
			Seed:       money.FromDollars(req.Seed),
		})
		if err != nil {
			writeEngineError(w, h.logger, r, err)
			return
		}

		yesPrice := amm.FromMarket(&m).Price(domain.OutcomeYes)
		writeJSON(w, http.StatusCreated, toMarketResponse(&m, yesPrice))
	}
}

// ListMarkets returns markets filtered by status (default OPEN).
// GET /api/markets?status=&limit=&offset=
func (h *MarketHandler) ListMarkets(w http.ResponseWriter, r *http.Request) {
	status := domain.MarketStatus(r.URL.Query().Get("status"))
	if status == "" {
		status = domain.MarketStatusOpen
	}

	markets, err := h.markets.ListByStatus(r.Context(), status, parseListOpts(r))
	if err != nil {
		writeEngineError(w, h.logger, r, err)
		return
	}

	// Prefer cached prices; compute from reserves on a miss.
	var cached map[string]float64
	if h.prices != nil {
		ids := make([]string, len(markets))
		for i := range markets {
			ids[i] = markets[i].ID
		}
		if got, err := h.prices.GetPrices(r.Context(), ids); err == nil {
			cached = got
		}
	}

	out := make([]marketResponse, 0, len(markets))
	for i := range markets {
		m := &markets[i]
		yesPrice, ok := cached[m.ID]
		if !ok {
			yesPrice = amm.FromMarket(m).Price(domain.OutcomeYes)
		}
		out = append(out, toMarketResponse(m, yesPrice))
	}

	writeJSON(w, http.StatusOK, map[string]any{"markets": out})
}

// GetMarket returns a single market with live prices.
// GET /api/markets/{id}
func (h *MarketHandler) GetMarket(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")

	m, err := h.markets.GetByID(r.Context(), id)
	if err != nil {
		writeEngineError(w, h.logger, r, err)
		return
	}

	yesPrice := amm.FromMarket(&m).Price(domain.OutcomeYes)
	writeJSON(w, http.StatusOK, toMarketResponse(&m, yesPrice))
}
