package trader

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/theta/internal/clients/ai"
	"github.com/aristath/theta/internal/clients/marketdata"
	"github.com/aristath/theta/internal/clients/quotestream"
	"github.com/aristath/theta/internal/database"
	"github.com/aristath/theta/internal/domain"
	"github.com/aristath/theta/internal/events"
	"github.com/aristath/theta/internal/scheduler"
	"github.com/aristath/theta/internal/store"
)

// fakeProvider serves canned market data keyed by symbol.
type fakeProvider struct {
	quotes     map[string]*marketdata.Quote
	options    map[string]*marketdata.OptionQuote
	trending   []string
	mostActive []string
	closes     []float64
}

func (f *fakeProvider) GetQuote(_ context.Context, symbol string) (*marketdata.Quote, error) {
	if q, ok := f.quotes[symbol]; ok {
		return q, nil
	}
	return nil, marketdata.ErrNoData
}

func (f *fakeProvider) GetOptionPremium(_ context.Context, symbol string, _ float64, _, _ string) (*marketdata.OptionQuote, error) {
	if o, ok := f.options[symbol]; ok {
		return o, nil
	}
	return nil, marketdata.ErrNoData
}

func (f *fakeProvider) GetTrendingTickers(_ context.Context) ([]string, error) {
	return f.trending, nil
}

func (f *fakeProvider) GetMostActiveTickers(_ context.Context) ([]string, error) {
	return f.mostActive, nil
}

func (f *fakeProvider) GetDailyCloses(_ context.Context, _ string, _ int) ([]float64, error) {
	return f.closes, nil
}

// tradingTuesday is a weekday morning inside market hours, exchange time.
var tradingTuesday = time.Date(2026, 3, 3, 10, 0, 0, 0, time.UTC)

func newTestService(t *testing.T, now time.Time) (*Service, *fakeProvider) {
	t.Helper()
	log := zerolog.Nop()

	db, err := database.New(database.Config{Path: filepath.Join(t.TempDir(), "trader.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	st, err := store.New(db, log)
	require.NoError(t, err)

	provider := &fakeProvider{
		quotes:  map[string]*marketdata.Quote{},
		options: map[string]*marketdata.OptionQuote{},
	}
	md := marketdata.NewClient(provider, log)
	aiClient := ai.NewClient(ai.Config{}, log)
	bus := events.NewBus()
	sched := scheduler.New(now.Location(), log)

	s := New(st, md, aiClient, bus, nil, sched, log)
	s.loc = now.Location()
	s.now = func() time.Time { return now }
	return s, provider
}

func seedScanWithPicks(t *testing.T, s *Service, picks []domain.TradePick) {
	t.Helper()
	_, err := s.store.Scans.Upsert(domain.MarketScan{
		ScanDate:      s.today(),
		MarketMood:    domain.MoodNeutral,
		SelectedPicks: picks,
	})
	require.NoError(t, err)
}

func spreadPick(ticker string, dte int) domain.TradePick {
	return domain.TradePick{
		Ticker:           ticker,
		Strategy:         domain.StrategyCreditSpread,
		Strike:           100,
		DTE:              dte,
		Contracts:        1,
		EstimatedPremium: 1.20,
		SpreadWidth:      5,
		StrikeSell:       100,
		StrikeBuy:        95,
		Confidence:       70,
	}
}

func quoteFor(price float64) *marketdata.Quote {
	return &marketdata.Quote{Price: price, ChangePercent: 0.5, RangePosition: 40}
}

func openTestTrade(t *testing.T, s *Service, draft domain.TradeDraft) int64 {
	t.Helper()
	if draft.Contracts == 0 {
		draft.Contracts = 1
	}
	if draft.EntryDate == "" {
		draft.EntryDate = s.today()
	}
	id, err := s.store.Trades.Insert(draft)
	require.NoError(t, err)
	return id
}

func TestExecuteOpensPicksWithComputedTriggers(t *testing.T) {
	s, provider := newTestService(t, tradingTuesday)
	provider.quotes["AAPL"] = quoteFor(180)
	provider.quotes["JPM"] = quoteFor(195)
	provider.quotes["XOM"] = quoteFor(110)

	seedScanWithPicks(t, s, []domain.TradePick{
		spreadPick("AAPL", 35), spreadPick("JPM", 35), spreadPick("XOM", 35),
	})

	require.NoError(t, s.runExecute(context.Background()))

	open, err := s.store.Trades.GetOpen()
	require.NoError(t, err)
	require.Len(t, open, 3)

	sectors := map[string]int{}
	for _, trade := range open {
		sectors[trade.Sector]++
		assert.InDelta(t, 3.60, trade.StopLossPrice, 0.001)
		assert.InDelta(t, 0.60, trade.ProfitTargetPrice, 0.001)
		require.NotNil(t, trade.MaxLoss)
		require.NotNil(t, trade.MaxProfit)
		assert.InDelta(t, 380.0, *trade.MaxLoss, 0.001)
		assert.InDelta(t, 120.0, *trade.MaxProfit, 0.001)
		assert.Greater(t, trade.StopLossPrice, trade.EntryPrice)
		assert.Greater(t, trade.EntryPrice, trade.ProfitTargetPrice)
		assert.Greater(t, trade.ProfitTargetPrice, 0.0)
	}
	assert.Len(t, sectors, 3, "three distinct sectors")
}

func TestExecuteMarginCapBlocksEverything(t *testing.T) {
	s, provider := newTestService(t, tradingTuesday)
	provider.quotes["AAPL"] = quoteFor(180)

	// Four covered calls at strike 172.50 commit $69,000 of margin, 69% of
	// the paper balance against the 70% cap.
	for _, ticker := range []string{"XOM", "JPM", "WMT", "PFE"} {
		openTestTrade(t, s, domain.TradeDraft{
			Ticker: ticker, Strategy: domain.StrategyCoveredCall, Sector: SectorFor(ticker),
			Strike: 172.50, Expiry: "2026-04-17", DTE: 45, EntryPrice: 2.00,
			StopLossPrice: 6.00, ProfitTargetPrice: 1.00,
		})
	}

	// One more spread would add $2,000, breaching the cap.
	pick := spreadPick("AAPL", 35)
	pick.SpreadWidth = 21.2
	pick.StrikeSell = 100
	pick.StrikeBuy = 78.8
	seedScanWithPicks(t, s, []domain.TradePick{pick})

	skipped := make(chan *events.Event, 1)
	s.bus.Subscribe(events.AutonomousProgress, func(e *events.Event) {
		if data, ok := e.Data.(*events.ProgressData); ok && data.Status == events.PhaseSkipped {
			select {
			case skipped <- e:
			default:
			}
		}
	})

	require.NoError(t, s.runExecute(context.Background()))

	count, err := s.store.Trades.CountOpen()
	require.NoError(t, err)
	assert.Equal(t, 4, count, "no new trade opened")

	select {
	case e := <-skipped:
		data := e.Data.(*events.ProgressData)
		assert.Contains(t, data.Message, "margin cap")
	case <-time.After(2 * time.Second):
		t.Fatal("expected a skipped progress event")
	}

	cfg := s.store.LoadTradingConfig()
	open, _ := s.store.Trades.GetOpen()
	margin := PortfolioMargin(open, cfg.PaperBalance, cfg.MaxMarginPct)
	assert.LessOrEqual(t, margin.Total, cfg.PaperBalance*cfg.MaxMarginPct/100)
}

func TestExecuteDuplicateAndSectorSkips(t *testing.T) {
	s, provider := newTestService(t, tradingTuesday)
	for _, ticker := range []string{"AAPL", "MSFT", "NVDA", "JPM"} {
		provider.quotes[ticker] = quoteFor(150)
	}

	openTestTrade(t, s, domain.TradeDraft{
		Ticker: "AAPL", Strategy: domain.StrategyShortPut, Sector: "Tech",
		Strike: 170, Expiry: "2026-04-17", DTE: 45, EntryPrice: 2.00,
		StopLossPrice: 6.00, ProfitTargetPrice: 1.00,
	})
	openTestTrade(t, s, domain.TradeDraft{
		Ticker: "MSFT", Strategy: domain.StrategyCreditSpread, Sector: "Tech",
		Strike: 400, Expiry: "2026-04-17", DTE: 45, EntryPrice: 1.50,
		StopLossPrice: 4.50, ProfitTargetPrice: 0.75,
	})

	seedScanWithPicks(t, s, []domain.TradePick{
		spreadPick("AAPL", 35), // duplicate ticker
		spreadPick("NVDA", 35), // Tech, sector cap reached
		spreadPick("JPM", 35),  // Finance, opens
	})

	require.NoError(t, s.runExecute(context.Background()))

	open, err := s.store.Trades.GetOpen()
	require.NoError(t, err)
	require.Len(t, open, 3)

	tickers := map[string]bool{}
	sectors := map[string]int{}
	for _, trade := range open {
		assert.False(t, tickers[trade.Ticker], "no duplicate open tickers")
		tickers[trade.Ticker] = true
		sectors[trade.Sector]++
	}
	assert.True(t, tickers["JPM"], "JPM opened")
	assert.False(t, tickers["NVDA"], "NVDA blocked by sector cap")
	for sector, count := range sectors {
		assert.LessOrEqual(t, count, 2, "sector %s over cap", sector)
	}
}

func TestExecuteIsIdempotentAcrossRuns(t *testing.T) {
	s, provider := newTestService(t, tradingTuesday)
	provider.quotes["AAPL"] = quoteFor(180)
	provider.quotes["JPM"] = quoteFor(195)

	seedScanWithPicks(t, s, []domain.TradePick{spreadPick("AAPL", 35), spreadPick("JPM", 35)})

	require.NoError(t, s.runExecute(context.Background()))
	require.NoError(t, s.runExecute(context.Background()))

	count, err := s.store.Trades.CountOpen()
	require.NoError(t, err)
	assert.Equal(t, 2, count, "second run opens nothing new")
}

func TestExecutePositionCapSkips(t *testing.T) {
	s, provider := newTestService(t, tradingTuesday)
	provider.quotes["AAPL"] = quoteFor(180)

	for i, ticker := range []string{"JPM", "XOM", "WMT", "PFE", "CAT"} {
		openTestTrade(t, s, domain.TradeDraft{
			Ticker: ticker, Strategy: domain.StrategyCreditSpread, Sector: SectorFor(ticker),
			Strike: 100 + float64(i), Expiry: "2026-04-17", DTE: 45, EntryPrice: 1.20,
			StopLossPrice: 3.60, ProfitTargetPrice: 0.60,
		})
	}
	seedScanWithPicks(t, s, []domain.TradePick{spreadPick("AAPL", 35)})

	require.NoError(t, s.runExecute(context.Background()))

	count, err := s.store.Trades.CountOpen()
	require.NoError(t, err)
	assert.Equal(t, 5, count, "position cap holds")
}

func floatPtr(v float64) *float64 { return &v }

func TestExecuteRecordsEntryGreeks(t *testing.T) {
	s, provider := newTestService(t, tradingTuesday)
	provider.quotes["AAPL"] = quoteFor(180)
	provider.options["AAPL"] = &marketdata.OptionQuote{
		Bid: 1.15, Ask: 1.25, Mid: 1.20,
		IV:    floatPtr(0.32),
		Delta: floatPtr(-0.21),
	}

	seedScanWithPicks(t, s, []domain.TradePick{spreadPick("AAPL", 35)})

	require.NoError(t, s.runExecute(context.Background()))

	open, err := s.store.Trades.GetOpen()
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.InDelta(t, 1.20, open[0].EntryPrice, 0.001, "mid preferred over the estimate")
	require.NotNil(t, open[0].EntryIV)
	assert.InDelta(t, 0.32, *open[0].EntryIV, 0.001)
	require.NotNil(t, open[0].EntryDelta)
	assert.InDelta(t, -0.21, *open[0].EntryDelta, 0.001)
}

func TestExecuteLeavesGreeksEmptyWithoutOptionQuote(t *testing.T) {
	s, provider := newTestService(t, tradingTuesday)
	provider.quotes["AAPL"] = quoteFor(180)

	seedScanWithPicks(t, s, []domain.TradePick{spreadPick("AAPL", 35)})

	require.NoError(t, s.runExecute(context.Background()))

	open, err := s.store.Trades.GetOpen()
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.InDelta(t, 1.20, open[0].EntryPrice, 0.001, "falls back to the estimate")
	assert.Nil(t, open[0].EntryIV)
	assert.Nil(t, open[0].EntryDelta)
}

func TestExecuteAbortsWithoutScan(t *testing.T) {
	s, _ := newTestService(t, tradingTuesday)

	err := s.runExecute(context.Background())
	require.Error(t, err)
	assert.Equal(t, "no scan for today, aborting execution", err.Error())
	assert.NotContains(t, err.Error(), "%!w")
}

func TestMonitorStopLossBeatsProfitTarget(t *testing.T) {
	s, provider := newTestService(t, tradingTuesday)
	id := openTestTrade(t, s, domain.TradeDraft{
		Ticker: "AAPL", Strategy: domain.StrategyShortPut, Sector: "Tech",
		Strike: 170, Expiry: "2026-04-17", DTE: 45, EntryPrice: 1.00,
		StopLossPrice: 3.00, ProfitTargetPrice: 0.50,
	})
	provider.options["AAPL"] = &marketdata.OptionQuote{Bid: 3.00, Ask: 3.10, Mid: 3.05}
	provider.quotes["AAPL"] = quoteFor(150)

	require.NoError(t, s.MonitorTick())

	trade, err := s.store.Trades.Get(id)
	require.NoError(t, err)
	require.NotNil(t, trade.ExitReason)
	assert.Equal(t, domain.ExitStopLoss, *trade.ExitReason)
	require.NotNil(t, trade.PnLDollars)
	assert.InDelta(t, -205.0, *trade.PnLDollars, 0.001)
	assert.Equal(t, domain.TradeStatusClosed, trade.Status)
}

func TestMonitorDTEManagementBeatsProfitTarget(t *testing.T) {
	s, provider := newTestService(t, tradingTuesday)
	expiry := tradingTuesday.AddDate(0, 0, 21).Format("2006-01-02")
	id := openTestTrade(t, s, domain.TradeDraft{
		Ticker: "MSFT", Strategy: domain.StrategyShortPut, Sector: "Tech",
		Strike: 400, Expiry: expiry, DTE: 21, EntryPrice: 1.00,
		StopLossPrice: 3.00, ProfitTargetPrice: 0.50,
	})
	// Profitable and past the target, but DTE management takes precedence.
	provider.options["MSFT"] = &marketdata.OptionQuote{Bid: 0.38, Ask: 0.42, Mid: 0.40}
	provider.quotes["MSFT"] = quoteFor(410)

	received := make(chan *events.Event, 1)
	s.bus.Subscribe(events.AutonomousTrade, func(e *events.Event) {
		select {
		case received <- e:
		default:
		}
	})

	require.NoError(t, s.MonitorTick())

	trade, err := s.store.Trades.Get(id)
	require.NoError(t, err)
	require.NotNil(t, trade.ExitReason)
	assert.Equal(t, domain.ExitDTEManage, *trade.ExitReason)

	select {
	case e := <-received:
		data := e.Data.(*events.TradeData)
		assert.Equal(t, events.TradeDTEManage, data.Action)
		assert.Equal(t, id, data.TradeID)
	case <-time.After(2 * time.Second):
		t.Fatal("expected a trade broadcast")
	}
}

func TestMonitorDTEManagementRecordsPnL(t *testing.T) {
	s, provider := newTestService(t, tradingTuesday)
	expiry := tradingTuesday.AddDate(0, 0, 21).Format("2006-01-02")
	id := openTestTrade(t, s, domain.TradeDraft{
		Ticker: "XOM", Strategy: domain.StrategyShortPut, Sector: "Energy",
		Strike: 110, Expiry: expiry, DTE: 21, EntryPrice: 1.00,
		StopLossPrice: 3.00, ProfitTargetPrice: 0.50,
	})
	provider.options["XOM"] = &marketdata.OptionQuote{Bid: 0.78, Ask: 0.82, Mid: 0.80}
	provider.quotes["XOM"] = quoteFor(112)

	require.NoError(t, s.MonitorTick())

	trade, err := s.store.Trades.Get(id)
	require.NoError(t, err)
	require.NotNil(t, trade.ExitReason)
	assert.Equal(t, domain.ExitDTEManage, *trade.ExitReason)
	require.NotNil(t, trade.PnLPercent)
	assert.InDelta(t, 20.0, *trade.PnLPercent, 0.001)
}

func TestMonitorSkipsOutsideMarketHours(t *testing.T) {
	evening := time.Date(2026, 3, 3, 18, 0, 0, 0, time.UTC)
	s, provider := newTestService(t, evening)
	id := openTestTrade(t, s, domain.TradeDraft{
		Ticker: "AAPL", Strategy: domain.StrategyShortPut, Sector: "Tech",
		Strike: 170, Expiry: "2026-04-17", DTE: 45, EntryPrice: 1.00,
		StopLossPrice: 3.00, ProfitTargetPrice: 0.50,
	})
	provider.options["AAPL"] = &marketdata.OptionQuote{Mid: 5.00}

	require.NoError(t, s.MonitorTick())

	trade, err := s.store.Trades.Get(id)
	require.NoError(t, err)
	assert.True(t, trade.IsOpen(), "nothing evaluated after hours")
}

func TestMonitorSkipsTradeWithoutQuote(t *testing.T) {
	s, _ := newTestService(t, tradingTuesday)
	id := openTestTrade(t, s, domain.TradeDraft{
		Ticker: "AAPL", Strategy: domain.StrategyShortPut, Sector: "Tech",
		Strike: 170, Expiry: "2026-04-17", DTE: 45, EntryPrice: 1.00,
		StopLossPrice: 3.00, ProfitTargetPrice: 0.50,
	})

	require.NoError(t, s.MonitorTick())

	trade, err := s.store.Trades.Get(id)
	require.NoError(t, err)
	assert.True(t, trade.IsOpen(), "missing premium leaves the trade open")
}

func TestMonitorReadsStreamedContractTick(t *testing.T) {
	s, _ := newTestService(t, tradingTuesday)
	s.quotes = quotestream.NewCache()
	id := openTestTrade(t, s, domain.TradeDraft{
		Ticker: "AAPL", Strategy: domain.StrategyShortPut, Sector: "Tech",
		Strike: 170, Expiry: "2026-04-17", DTE: 45, EntryPrice: 1.00,
		StopLossPrice: 3.00, ProfitTargetPrice: 0.50,
	})
	trade, err := s.store.Trades.Get(id)
	require.NoError(t, err)

	// A stale mark under the plain ticker must not shadow the contract tick.
	s.quotes.Put(quotestream.Tick{Symbol: "AAPL", Last: 0.40})
	s.quotes.Put(quotestream.Tick{Symbol: ContractSymbol(trade), Last: 3.20})

	require.NoError(t, s.MonitorTick())

	trade, err = s.store.Trades.Get(id)
	require.NoError(t, err)
	require.NotNil(t, trade.ExitReason)
	assert.Equal(t, domain.ExitStopLoss, *trade.ExitReason)
	require.NotNil(t, trade.ExitPrice)
	assert.InDelta(t, 3.20, *trade.ExitPrice, 0.001, "streamed contract mark used, no REST quote existed")
}

func TestContractSymbolCarriesStrikeAndRight(t *testing.T) {
	trade := &domain.Trade{
		Ticker: "AAPL", Strategy: domain.StrategyShortPut,
		Strike: 172.5, Expiry: "2026-04-17",
	}
	assert.Equal(t, "AAPL:2026-04-17:172.50:put", ContractSymbol(trade))

	trade.Strategy = domain.StrategyCoveredCall
	assert.Equal(t, "AAPL:2026-04-17:172.50:call", ContractSymbol(trade))
}

func TestClosedTradeOutcomeScoresActiveRules(t *testing.T) {
	s, _ := newTestService(t, tradingTuesday)
	ruleID, err := s.store.Rules.Insert(domain.LearnedRule{
		RuleText: "Avoid earnings weeks on single names",
	})
	require.NoError(t, err)

	winner := &domain.Trade{ID: 1, Ticker: "AAPL", PnLDollars: floatPtr(120)}
	s.scoreActiveRules(winner)

	rules, err := s.store.Rules.GetActive()
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, ruleID, rules[0].ID)
	assert.Equal(t, 1, rules[0].TimesApplied)
	assert.Equal(t, 1, rules[0].TimesHelpful)
	assert.InDelta(t, 0.55, rules[0].Confidence, 0.001, "helpful ratio 1.0 drifts confidence up")

	loser := &domain.Trade{ID: 2, Ticker: "XOM", PnLDollars: floatPtr(-80)}
	s.scoreActiveRules(loser)

	rules, err = s.store.Rules.GetActive()
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, 2, rules[0].TimesApplied)
	assert.Equal(t, 1, rules[0].TimesHelpful)
	assert.InDelta(t, 0.55, rules[0].Confidence, 0.001, "ratio 0.5 sits in the dead band")
}

func TestEndOfDayClosesExpiredWorthless(t *testing.T) {
	afterClose := time.Date(2026, 3, 3, 16, 1, 0, 0, time.UTC)
	s, _ := newTestService(t, afterClose)
	id := openTestTrade(t, s, domain.TradeDraft{
		Ticker: "AAPL", Strategy: domain.StrategyShortPut, Sector: "Tech",
		Strike: 170, Expiry: afterClose.Format("2006-01-02"), DTE: 0,
		EntryPrice: 1.50, Contracts: 2,
		StopLossPrice: 4.50, ProfitTargetPrice: 0.75,
	})

	require.NoError(t, s.runEndOfDay(context.Background()))

	trade, err := s.store.Trades.Get(id)
	require.NoError(t, err)
	require.NotNil(t, trade.ExitReason)
	assert.Equal(t, domain.ExitExpiry, *trade.ExitReason)
	require.NotNil(t, trade.ExitPrice)
	assert.Zero(t, *trade.ExitPrice)
	require.NotNil(t, trade.PnLDollars)
	assert.InDelta(t, 300.0, *trade.PnLDollars, 0.001, "full credit kept")

	summary, err := s.store.Summaries.GetByDate(s.today())
	require.NoError(t, err)
	require.NotNil(t, summary)
	assert.Equal(t, 1, summary.TradesClosed)
	assert.Equal(t, 1, summary.Wins)
}

func TestEndOfDayLeavesUnquotableDTETradeOpen(t *testing.T) {
	afterClose := time.Date(2026, 3, 3, 16, 1, 0, 0, time.UTC)
	s, _ := newTestService(t, afterClose)
	expiry := afterClose.AddDate(0, 0, 15).Format("2006-01-02")
	id := openTestTrade(t, s, domain.TradeDraft{
		Ticker: "MSFT", Strategy: domain.StrategyShortPut, Sector: "Tech",
		Strike: 400, Expiry: expiry, DTE: 15, EntryPrice: 1.00,
		StopLossPrice: 3.00, ProfitTargetPrice: 0.50,
	})

	require.NoError(t, s.runEndOfDay(context.Background()))

	trade, err := s.store.Trades.Get(id)
	require.NoError(t, err)
	assert.True(t, trade.IsOpen(), "no after-hours premium leaves the position open")
}

func TestManualCloseWithoutQuoteRecordsZero(t *testing.T) {
	s, _ := newTestService(t, tradingTuesday)
	id := openTestTrade(t, s, domain.TradeDraft{
		Ticker: "AAPL", Strategy: domain.StrategyShortPut, Sector: "Tech",
		Strike: 170, Expiry: "2026-04-17", DTE: 45, EntryPrice: 1.00,
		StopLossPrice: 3.00, ProfitTargetPrice: 0.50,
	})

	require.NoError(t, s.ManualClose(id, ""))

	trade, err := s.store.Trades.Get(id)
	require.NoError(t, err)
	require.NotNil(t, trade.ExitReason)
	assert.Equal(t, domain.ExitManual, *trade.ExitReason)
	require.NotNil(t, trade.ExitPrice)
	assert.Zero(t, *trade.ExitPrice)

	assert.Error(t, s.ManualClose(id, ""), "closed trades stay closed")
}

func TestRunPhaseRejectsUnknownPhase(t *testing.T) {
	s, _ := newTestService(t, tradingTuesday)
	assert.Error(t, s.RunPhase(0))
	assert.Error(t, s.RunPhase(6))
}

func TestTriggerPhaseDispatchesImmediately(t *testing.T) {
	s, _ := newTestService(t, tradingTuesday)
	assert.Error(t, s.TriggerPhase(0))
	assert.Error(t, s.TriggerPhase(6))

	// No scan seeded, so reaching the execution phase surfaces its error.
	err := s.TriggerPhase(PhaseExecute)
	require.Error(t, err)
	assert.Equal(t, "no scan for today, aborting execution", err.Error())
}

func TestWeekdayCronSpec(t *testing.T) {
	spec, err := weekdayCronSpec("09:31")
	require.NoError(t, err)
	assert.Equal(t, "0 31 9 * * MON-FRI", spec)

	_, err = weekdayCronSpec("noon")
	assert.Error(t, err)
	_, err = weekdayCronSpec("25:00")
	assert.Error(t, err)
}

func TestIsMarketHours(t *testing.T) {
	tests := []struct {
		name string
		t    time.Time
		want bool
	}{
		{"weekday mid-session", time.Date(2026, 3, 3, 12, 0, 0, 0, time.UTC), true},
		{"open boundary", time.Date(2026, 3, 3, 9, 30, 0, 0, time.UTC), true},
		{"close boundary", time.Date(2026, 3, 3, 16, 0, 0, 0, time.UTC), true},
		{"before open", time.Date(2026, 3, 3, 9, 29, 0, 0, time.UTC), false},
		{"after close", time.Date(2026, 3, 3, 16, 1, 0, 0, time.UTC), false},
		{"saturday", time.Date(2026, 3, 7, 12, 0, 0, 0, time.UTC), false},
		{"sunday", time.Date(2026, 3, 8, 12, 0, 0, 0, time.UTC), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsMarketHours(tt.t))
		})
	}
}
