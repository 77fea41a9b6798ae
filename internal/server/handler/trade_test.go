package handler_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yesnolabs/venue/internal/domain"
	"github.com/yesnolabs/venue/internal/engine"
	"github.com/yesnolabs/venue/internal/money"
	"github.com/yesnolabs/venue/internal/server/handler"
	"github.com/yesnolabs/venue/internal/store/memory"
)

func newTestEngine(t *testing.T) (*engine.Engine, *memory.Store) {
	t.Helper()

	store := memory.NewStore()
	sys := domain.SystemAccounts{
		Custody:   "sys:custody",
		Fee:       "sys:fee",
		Liquidity: "sys:liquidity",
	}

	ctx := context.Background()
	accounts := store.Accounts()
	for _, id := range []string{sys.Custody, sys.Fee} {
		_, err := accounts.Ensure(ctx, domain.Account{ID: id, System: true})
		require.NoError(t, err)
	}
	_, err := accounts.Ensure(ctx, domain.Account{
		ID: sys.Liquidity, System: true, Balance: money.FromDollars(100000),
	})
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return engine.New(store, store.Markets(), store.Positions(), sys, engine.DefaultConfig(), logger), store
}

func openMarket(t *testing.T, eng *engine.Engine) domain.Market {
	t.Helper()
	m, err := eng.CreateMarket(context.Background(), engine.CreateMarketParams{
		Question:   "Will the launch happen this quarter?",
		FeeRate:    0.02,
		ClosesAt:   time.Now().UTC().Add(24 * time.Hour),
		ReserveYes: money.FromDollars(500),
		ReserveNo:  money.FromDollars(500),
	})
	require.NoError(t, err)
	return m
}

func postJSON(t *testing.T, h http.HandlerFunc, path, marketID, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.SetPathValue("id", marketID)
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

func TestBuyEndpoint(t *testing.T) {
	eng, store := newTestEngine(t)
	m := openMarket(t, eng)

	_, err := store.Accounts().Ensure(context.Background(), domain.Account{
		ID: "alice", Balance: money.FromDollars(1000),
	})
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := handler.NewTradeHandler(eng, logger)

	rec := postJSON(t, h.Buy, "/api/markets/"+m.ID+"/buy", m.ID,
		`{"user_id":"alice","outcome":"YES","amount":100}`)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		OrderID     string  `json:"order_id"`
		Shares      float64 `json:"shares"`
		FeeDeducted float64 `json:"fee_deducted"`
		NewBalance  float64 `json:"new_balance"`
		ReserveYes  float64 `json:"reserve_yes"`
		ReserveNo   float64 `json:"reserve_no"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	assert.NotEmpty(t, resp.OrderID)
	assert.InDelta(t, 2.0, resp.FeeDeducted, 1e-9)
	assert.InDelta(t, 900.0, resp.NewBalance, 1e-9)
	assert.InDelta(t, 598.0, resp.ReserveYes, 1e-9)
	assert.InDelta(t, 500.0, resp.ReserveNo, 1e-9)
	assert.Greater(t, resp.Shares, 0.0)
}

func TestBuyEndpointErrors(t *testing.T) {
	eng, store := newTestEngine(t)
	m := openMarket(t, eng)

	_, err := store.Accounts().Ensure(context.Background(), domain.Account{
		ID: "bob", Balance: money.FromDollars(10),
	})
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := handler.NewTradeHandler(eng, logger)

	tests := []struct {
		name     string
		marketID string
		body     string
		want     int
	}{
		{"missing user", m.ID, `{"outcome":"YES","amount":100}`, http.StatusBadRequest},
		{"bad outcome", m.ID, `{"user_id":"bob","outcome":"MAYBE","amount":100}`, http.StatusBadRequest},
		{"zero amount", m.ID, `{"user_id":"bob","outcome":"YES","amount":0}`, http.StatusBadRequest},
		{"insufficient balance", m.ID, `{"user_id":"bob","outcome":"YES","amount":100}`, http.StatusBadRequest},
		{"unknown market", "mkt_missing", `{"user_id":"bob","outcome":"YES","amount":5}`, http.StatusNotFound},
		{"limit without price", m.ID, `{"user_id":"bob","outcome":"YES","amount":5,"order_type":"LIMIT"}`, http.StatusBadRequest},
		{"bad order type", m.ID, `{"user_id":"bob","outcome":"YES","amount":5,"order_type":"STOP"}`, http.StatusBadRequest},
		{"unknown field", m.ID, `{"user_id":"bob","outcome":"YES","amount":5,"leverage":10}`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := postJSON(t, h.Buy, "/api/markets/"+tt.marketID+"/buy", tt.marketID, tt.body)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}
}

func TestSellEndpoint(t *testing.T) {
	eng, store := newTestEngine(t)
	m := openMarket(t, eng)
	ctx := context.Background()

	_, err := store.Accounts().Ensure(ctx, domain.Account{
		ID: "alice", Balance: money.FromDollars(1000),
	})
	require.NoError(t, err)

	buy, err := eng.Buy(ctx, "alice", m.ID, domain.OutcomeYes, money.FromDollars(100))
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := handler.NewTradeHandler(eng, logger)

	body, _ := json.Marshal(map[string]any{
		"user_id": "alice", "outcome": "YES", "shares": buy.Shares,
	})
	rec := postJSON(t, h.Sell, "/api/markets/"+m.ID+"/sell", m.ID, string(body))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		NetReturn float64 `json:"net_return"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Greater(t, resp.NetReturn, 0.0)
	assert.Less(t, resp.NetReturn, 100.0)

	// The position was closed by the full sell.
	rec = postJSON(t, h.Sell, "/api/markets/"+m.ID+"/sell", m.ID, string(body))
	assert.Equal(t, http.StatusNotFound, rec.Code, rec.Body.String())
}

func TestQuoteEndpoint(t *testing.T) {
	eng, _ := newTestEngine(t)
	m := openMarket(t, eng)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := handler.NewTradeHandler(eng, logger)

	req := httptest.NewRequest(http.MethodGet, "/api/markets/"+m.ID+"/quote?outcome=YES&amount=100", nil)
	req.SetPathValue("id", m.ID)
	rec := httptest.NewRecorder()
	h.Quote(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		MarketID       string  `json:"market_id"`
		CurrentPrice   float64 `json:"current_price"`
		ExecutionPrice float64 `json:"execution_price"`
		Shares         float64 `json:"shares"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, m.ID, resp.MarketID)
	assert.InDelta(t, 0.5, resp.CurrentPrice, 1e-9)
	assert.Greater(t, resp.ExecutionPrice, resp.CurrentPrice)
	assert.Greater(t, resp.Shares, 0.0)

	t.Run("bad amount", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/markets/"+m.ID+"/quote?outcome=YES&amount=-1", nil)
		req.SetPathValue("id", m.ID)
		rec := httptest.NewRecorder()
		h.Quote(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestCreateMarketEndpoint(t *testing.T) {
	eng, _ := newTestEngine(t)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := handler.NewMarketHandler(eng, nil, nil, logger)

	body := `{"question":"Will BTC close above 100k?","closes_at":"2027-01-01T00:00:00Z","reserve_yes":500,"reserve_no":500}`
	req := httptest.NewRequest(http.MethodPost, "/api/markets", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.CreateMarket(0.02)(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp struct {
		ID       string  `json:"id"`
		YesPrice float64 `json:"yes_price"`
		NoPrice  float64 `json:"no_price"`
		FeeRate  float64 `json:"fee_rate"`
		Status   string  `json:"status"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.ID)
	assert.InDelta(t, 0.5, resp.YesPrice, 1e-9)
	assert.InDelta(t, 0.5, resp.NoPrice, 1e-9)
	assert.Equal(t, 0.02, resp.FeeRate)
	assert.Equal(t, string(domain.MarketStatusOpen), resp.Status)
}
