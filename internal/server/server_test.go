package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/theta/internal/clients/ai"
	"github.com/aristath/theta/internal/clients/marketdata"
	"github.com/aristath/theta/internal/database"
	"github.com/aristath/theta/internal/domain"
	"github.com/aristath/theta/internal/events"
	"github.com/aristath/theta/internal/scheduler"
	"github.com/aristath/theta/internal/store"
	"github.com/aristath/theta/internal/trader"
)

// noDataProvider answers every market data call with ErrNoData.
type noDataProvider struct{}

func (noDataProvider) GetQuote(context.Context, string) (*marketdata.Quote, error) {
	return nil, marketdata.ErrNoData
}

func (noDataProvider) GetOptionPremium(context.Context, string, float64, string, string) (*marketdata.OptionQuote, error) {
	return nil, marketdata.ErrNoData
}

func (noDataProvider) GetTrendingTickers(context.Context) ([]string, error) { return nil, nil }

func (noDataProvider) GetMostActiveTickers(context.Context) ([]string, error) { return nil, nil }

func (noDataProvider) GetDailyCloses(context.Context, string, int) ([]float64, error) {
	return nil, nil
}

func newTestServer(t *testing.T) (*Server, *store.Store, *events.Bus) {
	t.Helper()
	log := zerolog.Nop()

	db, err := database.New(database.Config{Path: filepath.Join(t.TempDir(), "trader.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	st, err := store.New(db, log)
	require.NoError(t, err)

	md := marketdata.NewClient(noDataProvider{}, log)
	aiClient := ai.NewClient(ai.Config{}, log)
	bus := events.NewBus()
	sched := scheduler.New(time.UTC, log)
	eng := trader.New(st, md, aiClient, bus, nil, sched, log)

	srv := New(Config{
		Port:    0,
		DevMode: true,
		Log:     log,
		Store:   st,
		Trader:  eng,
		Bus:     bus,
	})
	return srv, st, bus
}

func doJSON(t *testing.T, srv *Server, method, path, body string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	var decoded map[string]interface{}
	if strings.HasPrefix(rec.Body.String(), "{") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decoded))
	}
	return rec, decoded
}

func openTestTrade(t *testing.T, st *store.Store) int64 {
	t.Helper()
	id, err := st.Trades.Insert(domain.TradeDraft{
		Ticker:            "AAPL",
		Strategy:          domain.StrategyShortPut,
		Sector:            "Technology",
		Strike:            180,
		Expiry:            "2026-04-17",
		DTE:               30,
		Contracts:         1,
		EntryPrice:        2.50,
		EntryDate:         "2026-03-03",
		MaxProfit:         250,
		MaxLoss:           17750,
		StopLossPrice:     7.50,
		ProfitTargetPrice: 1.25,
	})
	require.NoError(t, err)
	return id
}

func TestHealth(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rec, body := doJSON(t, srv, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", body["status"])
}

func TestStatus(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rec, body := doJSON(t, srv, http.MethodGet, "/api/status", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, body["enabled"])
	assert.Equal(t, float64(0), body["open_positions"])
}

func TestEnableDisable(t *testing.T) {
	srv, st, _ := newTestServer(t)

	rec, body := doJSON(t, srv, http.MethodPost, "/api/autonomous/enable", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["enabled"])

	enabled, err := st.Settings.GetBool("enabled", false)
	require.NoError(t, err)
	assert.True(t, enabled)

	rec, body = doJSON(t, srv, http.MethodPost, "/api/autonomous/disable", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, body["enabled"])

	enabled, err = st.Settings.GetBool("enabled", false)
	require.NoError(t, err)
	assert.False(t, enabled)
}

func TestRunPhaseValidation(t *testing.T) {
	srv, _, _ := newTestServer(t)

	for _, path := range []string{"/api/autonomous/phase/0", "/api/autonomous/phase/6", "/api/autonomous/phase/abc"} {
		rec, _ := doJSON(t, srv, http.MethodPost, path, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code, path)
	}

	rec, body := doJSON(t, srv, http.MethodPost, "/api/autonomous/phase/4", "")
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "triggered", body["status"])
}

func TestConfigRoundTrip(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rec, _ := doJSON(t, srv, http.MethodGet, "/api/config", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	var settings map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &settings))
	assert.Contains(t, settings, "max_positions")

	rec, body := doJSON(t, srv, http.MethodPut, "/api/config", `{"max_positions":"7"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), body["updated"])

	rec, _ = doJSON(t, srv, http.MethodGet, "/api/config", "")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &settings))
	assert.Equal(t, "7", settings["max_positions"])
}

func TestConfigRejectsBadBody(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rec, _ := doJSON(t, srv, http.MethodPut, "/api/config", `"not an object"`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = doJSON(t, srv, http.MethodPut, "/api/config", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListTrades(t *testing.T) {
	srv, st, _ := newTestServer(t)
	openTestTrade(t, st)

	rec, _ := doJSON(t, srv, http.MethodGet, "/api/trades?status=open", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	var trades []domain.Trade
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &trades))
	require.Len(t, trades, 1)
	assert.Equal(t, "AAPL", trades[0].Ticker)

	rec, _ = doJSON(t, srv, http.MethodGet, "/api/trades?status=closed", "")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &trades))
	assert.Empty(t, trades)
}

func TestGetTrade(t *testing.T) {
	srv, st, _ := newTestServer(t)
	id := openTestTrade(t, st)

	rec, body := doJSON(t, srv, http.MethodGet, "/api/trades/999", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, body = doJSON(t, srv, http.MethodGet, "/api/trades/1", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	trade := body["trade"].(map[string]interface{})
	assert.Equal(t, float64(id), trade["id"])
	assert.Equal(t, "AAPL", trade["ticker"])
}

func TestTradeReviews(t *testing.T) {
	srv, st, _ := newTestServer(t)
	id := openTestTrade(t, st)

	rec, _ := doJSON(t, srv, http.MethodGet, "/api/trades/999/reviews", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = doJSON(t, srv, http.MethodGet, "/api/trades/1/reviews", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	require.NoError(t, st.Reviews.Insert(domain.TradeReview{
		TradeID:      id,
		Lesson:       "Premium was too thin for the risk taken",
		ShouldRepeat: false,
		ModelUsed:    "claude-sonnet-4",
	}))

	rec, _ = doJSON(t, srv, http.MethodGet, "/api/trades/1/reviews", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	var reviews []domain.TradeReview
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &reviews))
	require.Len(t, reviews, 1)
	assert.Equal(t, id, reviews[0].TradeID)
	assert.Equal(t, "Premium was too thin for the risk taken", reviews[0].Lesson)
}

func TestCloseTrade(t *testing.T) {
	srv, st, _ := newTestServer(t)
	id := openTestTrade(t, st)

	rec, _ := doJSON(t, srv, http.MethodPost, "/api/trades/999/close", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, body := doJSON(t, srv, http.MethodPost, "/api/trades/1/close", `{"reason":"manual"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "closed", body["status"])

	trade, err := st.Trades.Get(id)
	require.NoError(t, err)
	assert.False(t, trade.IsOpen())

	// Closing twice conflicts.
	rec, _ = doJSON(t, srv, http.MethodPost, "/api/trades/1/close", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestScans(t *testing.T) {
	srv, st, _ := newTestServer(t)

	rec, _ := doJSON(t, srv, http.MethodGet, "/api/scans/latest", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	_, err := st.Scans.Upsert(domain.MarketScan{
		ScanDate:   "2026-03-03",
		MarketMood: domain.MoodBullish,
	})
	require.NoError(t, err)

	rec, body := doJSON(t, srv, http.MethodGet, "/api/scans/latest", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "2026-03-03", body["scan_date"])

	rec, _ = doJSON(t, srv, http.MethodGet, "/api/scans/2026-03-03", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = doJSON(t, srv, http.MethodGet, "/api/scans/2020-01-01", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMetricsAndEquity(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rec, _ := doJSON(t, srv, http.MethodGet, "/api/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = doJSON(t, srv, http.MethodGet, "/api/equity", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestEventsStream(t *testing.T) {
	srv, _, bus := newTestServer(t)

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/api/events/stream", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		srv.stream.ServeHTTP(rec, req)
		close(done)
	}()

	time.Sleep(100 * time.Millisecond)
	bus.Publish(&events.LogData{Message: "hello", Timestamp: time.Now().Format(time.RFC3339)})
	time.Sleep(200 * time.Millisecond)
	cancel()
	<-done

	body := rec.Body.String()
	assert.Contains(t, body, `"type":"connected"`)
	assert.Contains(t, body, `"type":"autonomous-log"`)
	assert.Contains(t, body, "hello")
}

func TestEventsStreamTypeFilter(t *testing.T) {
	srv, _, bus := newTestServer(t)

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/api/events/stream?types=autonomous-trade", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		srv.stream.ServeHTTP(rec, req)
		close(done)
	}()

	time.Sleep(100 * time.Millisecond)
	bus.Publish(&events.LogData{Message: "filtered out", Timestamp: time.Now().Format(time.RFC3339)})
	time.Sleep(200 * time.Millisecond)
	cancel()
	<-done

	body := rec.Body.String()
	assert.Contains(t, body, `"type":"connected"`)
	assert.NotContains(t, body, "filtered out")
}
