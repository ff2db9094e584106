package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/theta/internal/domain"
)

func insertOpenTrade(t *testing.T, st *Store, ticker string) int64 {
	t.Helper()
	id, err := st.Trades.Insert(domain.TradeDraft{
		Ticker:            ticker,
		Strategy:          domain.StrategyShortPut,
		Sector:            "Technology",
		Strike:            180,
		Expiry:            "2026-04-17",
		DTE:               45,
		Contracts:         1,
		EntryPrice:        2.00,
		EntryDate:         "2026-03-03",
		StopLossPrice:     6.00,
		ProfitTargetPrice: 1.00,
	})
	require.NoError(t, err)
	return id
}

func TestCloseWritesExitFieldsOnce(t *testing.T) {
	st := newTestStore(t)
	id := insertOpenTrade(t, st, "AAPL")

	require.NoError(t, st.Trades.Close(id, domain.ExitData{
		ExitPrice:  1.00,
		ExitDate:   "2026-03-10",
		ExitReason: domain.ExitProfitTarget,
		PnLDollars: 100,
		PnLPercent: 50,
	}))

	trade, err := st.Trades.Get(id)
	require.NoError(t, err)
	assert.Equal(t, domain.TradeStatusClosed, trade.Status)
	require.NotNil(t, trade.ExitReason)
	assert.Equal(t, domain.ExitProfitTarget, *trade.ExitReason)
	require.NotNil(t, trade.PnLDollars)
	assert.InDelta(t, 100.0, *trade.PnLDollars, 0.001)
}

func TestCloseRejectsClosedTrade(t *testing.T) {
	st := newTestStore(t)
	id := insertOpenTrade(t, st, "MSFT")

	require.NoError(t, st.Trades.Close(id, domain.ExitData{
		ExitPrice:  1.00,
		ExitDate:   "2026-03-10",
		ExitReason: domain.ExitProfitTarget,
		PnLDollars: 100,
		PnLPercent: 50,
	}))

	// A second close must not overwrite the recorded exit.
	err := st.Trades.Close(id, domain.ExitData{
		ExitPrice:  9.99,
		ExitDate:   "2026-03-11",
		ExitReason: domain.ExitStopLoss,
		PnLDollars: -799,
	})
	require.Error(t, err)

	trade, err := st.Trades.Get(id)
	require.NoError(t, err)
	require.NotNil(t, trade.ExitReason)
	assert.Equal(t, domain.ExitProfitTarget, *trade.ExitReason)
	require.NotNil(t, trade.ExitPrice)
	assert.InDelta(t, 1.00, *trade.ExitPrice, 0.001)
}

func TestCloseUnknownTradeErrors(t *testing.T) {
	st := newTestStore(t)
	assert.Error(t, st.Trades.Close(999, domain.ExitData{ExitReason: domain.ExitManual}))
}

func TestGetOpenExcludesClosedTrades(t *testing.T) {
	st := newTestStore(t)
	keep := insertOpenTrade(t, st, "AAPL")
	gone := insertOpenTrade(t, st, "XOM")

	require.NoError(t, st.Trades.Close(gone, domain.ExitData{
		ExitPrice:  0.50,
		ExitDate:   "2026-03-10",
		ExitReason: domain.ExitManual,
	}))

	open, err := st.Trades.GetOpen()
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, keep, open[0].ID)

	count, err := st.Trades.CountOpen()
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
