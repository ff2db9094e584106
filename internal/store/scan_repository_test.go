package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/theta/internal/domain"
)

func TestScanUpsertKeepsOneRowPerDate(t *testing.T) {
	st := newTestStore(t)

	first, err := st.Scans.Upsert(domain.MarketScan{
		ScanDate:        "2026-03-03",
		MarketMood:      domain.MoodBullish,
		TrendingTickers: []string{"AAPL", "NVDA"},
	})
	require.NoError(t, err)

	second, err := st.Scans.Upsert(domain.MarketScan{
		ScanDate:        "2026-03-03",
		MarketMood:      domain.MoodBearish,
		TrendingTickers: []string{"XOM"},
	})
	require.NoError(t, err)
	assert.Equal(t, first, second, "same date resolves to the same row")

	scan, err := st.Scans.GetByDate("2026-03-03")
	require.NoError(t, err)
	require.NotNil(t, scan)
	assert.Equal(t, domain.MoodBearish, scan.MarketMood)
	assert.Equal(t, []string{"XOM"}, scan.TrendingTickers)
}

func TestScanGetByDateMissingReturnsNil(t *testing.T) {
	st := newTestStore(t)

	scan, err := st.Scans.GetByDate("2020-01-01")
	require.NoError(t, err)
	assert.Nil(t, scan)
}

func TestScanGetLatestPrefersNewestDate(t *testing.T) {
	st := newTestStore(t)

	_, err := st.Scans.Upsert(domain.MarketScan{ScanDate: "2026-03-02", MarketMood: domain.MoodNeutral})
	require.NoError(t, err)
	_, err = st.Scans.Upsert(domain.MarketScan{ScanDate: "2026-03-03", MarketMood: domain.MoodBullish})
	require.NoError(t, err)

	scan, err := st.Scans.GetLatest()
	require.NoError(t, err)
	require.NotNil(t, scan)
	assert.Equal(t, "2026-03-03", scan.ScanDate)
}

func TestScanUpdatePicksReplacesSelection(t *testing.T) {
	st := newTestStore(t)

	_, err := st.Scans.Upsert(domain.MarketScan{ScanDate: "2026-03-03", MarketMood: domain.MoodNeutral})
	require.NoError(t, err)

	picks := []domain.TradePick{{
		Ticker:           "JPM",
		Strategy:         domain.StrategyCreditSpread,
		Strike:           195,
		DTE:              35,
		Contracts:        1,
		EstimatedPremium: 1.10,
	}}
	require.NoError(t, st.Scans.UpdatePicks("2026-03-03", picks, "claude-sonnet-4"))

	scan, err := st.Scans.GetByDate("2026-03-03")
	require.NoError(t, err)
	require.NotNil(t, scan)
	require.Len(t, scan.SelectedPicks, 1)
	assert.Equal(t, "JPM", scan.SelectedPicks[0].Ticker)
	assert.Equal(t, "claude-sonnet-4", scan.AnalysisModel)
}
