// Package domain provides core domain models and types for the autonomous
// options trader: trades, market scans, reviews, summaries, and learned rules.
package domain

// Strategy represents an options strategy the engine is allowed to trade.
type Strategy string

const (
	StrategyShortPut     Strategy = "short_put"
	StrategyCreditSpread Strategy = "credit_spread"
	StrategyCoveredCall  Strategy = "covered_call"
)

// TradeStatus represents the lifecycle state of a trade.
type TradeStatus string

const (
	TradeStatusOpen      TradeStatus = "open"
	TradeStatusClosed    TradeStatus = "closed"
	TradeStatusCancelled TradeStatus = "cancelled"
)

// ExitReason explains why a position was closed.
type ExitReason string

const (
	ExitProfitTarget ExitReason = "profit_target"
	ExitStopLoss     ExitReason = "stop_loss"
	ExitDTEManage    ExitReason = "dte_manage"
	ExitExpiry       ExitReason = "expiry"
	ExitManual       ExitReason = "manual"
)

// MarketMood is the overall sentiment reading from the morning scan.
type MarketMood string

const (
	MoodBullish MarketMood = "bullish"
	MoodBearish MarketMood = "bearish"
	MoodNeutral MarketMood = "neutral"
	MoodMixed   MarketMood = "mixed"
)

// RuleCategory classifies a learned rule.
type RuleCategory string

const (
	RuleCategoryEntry   RuleCategory = "entry"
	RuleCategoryExit    RuleCategory = "exit"
	RuleCategoryRisk    RuleCategory = "risk"
	RuleCategorySector  RuleCategory = "sector"
	RuleCategoryTiming  RuleCategory = "timing"
	RuleCategoryGeneral RuleCategory = "general"
)

// Trade is a single short-premium options position opened by the engine.
// Dates are ISO-8601 strings in the market time zone. Exit fields stay nil
// while the trade is open and become immutable once it closes.
type Trade struct {
	ID       int64    `json:"id"`
	Ticker   string   `json:"ticker"`
	Strategy Strategy `json:"strategy"`
	// Direction is always "short" for this engine.
	Direction string `json:"direction"`
	Sector    string `json:"sector"`

	Strike      float64  `json:"strike"`
	StrikeSell  *float64 `json:"strike_sell,omitempty"`
	StrikeBuy   *float64 `json:"strike_buy,omitempty"`
	SpreadWidth *float64 `json:"spread_width,omitempty"`
	Expiry      string   `json:"expiry"`
	DTE         int      `json:"dte"`
	Contracts   int      `json:"contracts"`

	EntryPrice float64  `json:"entry_price"`
	EntryDate  string   `json:"entry_date"`
	EntrySpot  *float64 `json:"entry_spot,omitempty"`
	EntryIV    *float64 `json:"entry_iv,omitempty"`
	EntryDelta *float64 `json:"entry_delta,omitempty"`

	ExitPrice  *float64    `json:"exit_price,omitempty"`
	ExitDate   *string     `json:"exit_date,omitempty"`
	ExitSpot   *float64    `json:"exit_spot,omitempty"`
	ExitReason *ExitReason `json:"exit_reason,omitempty"`

	PnLDollars *float64 `json:"pnl_dollars,omitempty"`
	PnLPercent *float64 `json:"pnl_percent,omitempty"`
	MaxProfit  *float64 `json:"max_profit,omitempty"`
	MaxLoss    *float64 `json:"max_loss,omitempty"`

	MarketScanID *int64   `json:"market_scan_id,omitempty"`
	AIRationale  *string  `json:"ai_rationale,omitempty"`
	AIConfidence *float64 `json:"ai_confidence,omitempty"`
	ModelUsed    *string  `json:"model_used,omitempty"`

	StopLossPrice     float64 `json:"stop_loss_price"`
	ProfitTargetPrice float64 `json:"profit_target_price"`

	Status    TradeStatus `json:"status"`
	CreatedAt int64       `json:"created_at"`
}

// IsOpen reports whether the trade still has an open position.
func (t *Trade) IsOpen() bool {
	return t.Status == TradeStatusOpen
}

// TradeDraft carries everything needed to insert a new open trade.
type TradeDraft struct {
	Ticker            string
	Strategy          Strategy
	Sector            string
	Strike            float64
	StrikeSell        *float64
	StrikeBuy         *float64
	SpreadWidth       *float64
	Expiry            string
	DTE               int
	Contracts         int
	EntryPrice        float64
	EntryDate         string
	EntrySpot         *float64
	EntryIV           *float64
	EntryDelta        *float64
	MaxProfit         float64
	MaxLoss           float64
	MarketScanID      *int64
	AIRationale       string
	AIConfidence      float64
	ModelUsed         string
	StopLossPrice     float64
	ProfitTargetPrice float64
}

// ExitData carries the fields written when a trade closes.
type ExitData struct {
	ExitPrice  float64
	ExitDate   string
	ExitSpot   *float64
	ExitReason ExitReason
	PnLDollars float64
	PnLPercent float64
}

// TradePick is one trade candidate parsed from the analysis model's response.
type TradePick struct {
	Ticker           string   `json:"ticker"`
	Strategy         Strategy `json:"strategy"`
	Strike           float64  `json:"strike"`
	Expiry           string   `json:"expiry"`
	DTE              int      `json:"dte"`
	Contracts        int      `json:"contracts"`
	EstimatedPremium float64  `json:"estimated_premium"`
	SpreadWidth      float64  `json:"spread_width"`
	StrikeSell       float64  `json:"strike_sell"`
	StrikeBuy        float64  `json:"strike_buy"`
	Confidence       float64  `json:"confidence"`
	Sector           string   `json:"sector"`
	Rationale        string   `json:"rationale"`
}

// MarketScan is the daily sentiment record. Exactly one scan exists per
// trading date; re-running the morning phase replaces it.
type MarketScan struct {
	ID              int64             `json:"id"`
	ScanDate        string            `json:"scan_date"`
	MarketMood      MarketMood        `json:"market_mood"`
	TrendingTickers []string          `json:"trending_tickers"`
	SectorMomentum  map[string]string `json:"sector_momentum"`
	CautionFlags    []string          `json:"caution_flags"`
	RawResponse     string            `json:"raw_response"`
	Citations       []string          `json:"citations"`
	VIX             *float64          `json:"vix,omitempty"`
	SPYPrice        *float64          `json:"spy_price,omitempty"`
	SPYChangePct    *float64          `json:"spy_change_pct,omitempty"`
	CandidatePool   []string          `json:"candidate_pool"`
	SelectedPicks   []TradePick       `json:"selected_picks"`
	ScanModel       string            `json:"scan_model"`
	AnalysisModel   string            `json:"analysis_model"`
	CreatedAt       int64             `json:"created_at"`
}

// TradeReview is the post-close analysis of a single trade. Append-only,
// at most one per trade.
type TradeReview struct {
	ID           int64  `json:"id"`
	TradeID      int64  `json:"trade_id"`
	RawReview    string `json:"raw_review"`
	Lesson       string `json:"lesson"`
	WhatWorked   string `json:"what_worked"`
	WhatFailed   string `json:"what_failed"`
	ShouldRepeat bool   `json:"should_repeat"`
	ModelUsed    string `json:"model_used"`
	CreatedAt    int64  `json:"created_at"`
}

// DailySummary is the end-of-day account record, upserted by date.
type DailySummary struct {
	ID            int64   `json:"id"`
	SummaryDate   string  `json:"summary_date"`
	TradesOpened  int     `json:"trades_opened"`
	TradesClosed  int     `json:"trades_closed"`
	Wins          int     `json:"wins"`
	Losses        int     `json:"losses"`
	TotalPnL      float64 `json:"total_pnl"`
	AccountValue  float64 `json:"account_value"`
	CapitalAtRisk float64 `json:"capital_at_risk"`
	Reflection    string  `json:"reflection"`
	CreatedAt     int64   `json:"created_at"`
}

// LearnedRule is a heuristic distilled from trade reviews. Confidence starts
// at 0.5 and drifts with the helpful ratio as the rule is applied.
type LearnedRule struct {
	ID             int64        `json:"id"`
	RuleText       string       `json:"rule_text"`
	Category       RuleCategory `json:"category"`
	SourceTradeIDs []int64      `json:"source_trade_ids"`
	Confidence     float64      `json:"confidence"`
	TimesApplied   int          `json:"times_applied"`
	TimesHelpful   int          `json:"times_helpful"`
	Active         bool         `json:"active"`
	CreatedAt      int64        `json:"created_at"`
}

// EquityPoint is one point on the equity curve, keyed by exit date.
type EquityPoint struct {
	Date  string  `json:"date"`
	Value float64 `json:"value"`
	PnL   float64 `json:"pnl"`
}

// EquityCurve is the derived account-value series.
type EquityCurve struct {
	StartingBalance float64       `json:"starting_balance"`
	CurrentValue    float64       `json:"current_value"`
	Points          []EquityPoint `json:"points"`
}

// StrategyStats is the per-strategy slice of the performance metrics.
type StrategyStats struct {
	Trades int     `json:"trades"`
	Wins   int     `json:"wins"`
	PnL    float64 `json:"pnl"`
}

// TickerStats is the per-ticker slice of the performance metrics.
type TickerStats struct {
	Trades int     `json:"trades"`
	Wins   int     `json:"wins"`
	PnL    float64 `json:"pnl"`
}

// PerformanceMetrics summarizes closed-trade performance over a window.
type PerformanceMetrics struct {
	TotalTrades  int                      `json:"total_trades"`
	Wins         int                      `json:"wins"`
	Losses       int                      `json:"losses"`
	WinRate      float64                  `json:"win_rate"`
	TotalPnL     float64                  `json:"total_pnl"`
	AvgWin       float64                  `json:"avg_win"`
	AvgLoss      float64                  `json:"avg_loss"`
	ProfitFactor float64                  `json:"profit_factor"`
	SharpeRatio  float64                  `json:"sharpe_ratio"`
	ByStrategy   map[string]StrategyStats `json:"by_strategy"`
	ByTicker     map[string]TickerStats   `json:"by_ticker"`
	BestTrade    *Trade                   `json:"best_trade,omitempty"`
	WorstTrade   *Trade                   `json:"worst_trade,omitempty"`
	DailyPnL     []EquityPoint            `json:"daily_pnl"`
}
