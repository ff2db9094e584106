package trader

import (
	"fmt"
	"sort"
	"strings"

	"github.com/aristath/theta/internal/clients/marketdata"
	"github.com/aristath/theta/internal/domain"
	"github.com/aristath/theta/internal/store"
)

// Candidate is one ticker offered to the analysis model, with the quote
// data fetched for it.
type Candidate struct {
	Ticker        string
	Sector        string
	Price         float64
	ChangePercent float64
	RangePosition float64
}

// TechnicalContext carries index-level indicator readings for the scan
// prompt. Zero values mean the reading was unavailable.
type TechnicalContext struct {
	RSI14 float64
	SMA20 float64
	SMA50 float64
}

// buildScanPrompt produces the morning sentiment prompt. Deterministic for
// a given set of inputs.
func buildScanPrompt(spy *marketdata.Quote, vix float64, tech TechnicalContext, trending, mostActive []string) string {
	var b strings.Builder
	b.WriteString("You are a market analyst preparing a pre-market briefing for an options income trader.\n\n")
	b.WriteString("## CURRENT MARKET DATA\n")
	if spy != nil {
		fmt.Fprintf(&b, "SPY: $%.2f (%+.2f%% today)\n", spy.Price, spy.ChangePercent)
	} else {
		b.WriteString("SPY: unavailable\n")
	}
	if vix > 0 {
		fmt.Fprintf(&b, "VIX: %.2f\n", vix)
	} else {
		b.WriteString("VIX: unavailable\n")
	}
	if tech.RSI14 > 0 {
		fmt.Fprintf(&b, "SPY RSI(14): %.1f\n", tech.RSI14)
	}
	if tech.SMA20 > 0 && tech.SMA50 > 0 {
		fmt.Fprintf(&b, "SPY SMA(20): %.2f, SMA(50): %.2f\n", tech.SMA20, tech.SMA50)
	}
	if len(trending) > 0 {
		fmt.Fprintf(&b, "Trending tickers: %s\n", strings.Join(trending, ", "))
	}
	if len(mostActive) > 0 {
		fmt.Fprintf(&b, "Most active tickers: %s\n", strings.Join(mostActive, ", "))
	}
	b.WriteString("\nSearch for today's market-moving news, earnings, and macro events. ")
	b.WriteString("Then answer using EXACTLY this format:\n\n")
	b.WriteString("===MARKET_MOOD===\n")
	b.WriteString("bullish|bearish|neutral|mixed\n")
	b.WriteString("===END_MOOD===\n")
	b.WriteString("===TRENDING_TICKERS===\n")
	b.WriteString("AAA, BBB, CCC\n")
	b.WriteString("===END_TICKERS===\n")
	b.WriteString("===SECTOR_MOMENTUM===\n")
	b.WriteString("Technology: bullish\n")
	b.WriteString("Finance: neutral\n")
	b.WriteString("===END_SECTORS===\n")
	b.WriteString("===CAUTION_FLAGS===\n")
	b.WriteString("- one caution per line\n")
	b.WriteString("===END_CAUTIONS===\n")
	b.WriteString("===NARRATIVE===\n")
	b.WriteString("A short narrative of the session ahead.\n")
	b.WriteString("===END_NARRATIVE===\n")
	return b.String()
}

// buildSelectionPrompt produces the trade-selection prompt for the analysis
// model. Candidates are emitted in the order given; callers shuffle before
// calling so determinism holds per input.
func buildSelectionPrompt(scan *domain.MarketScan, candidates []Candidate, perfContext string, cfg store.TradingConfig, margin MarginState) string {
	var b strings.Builder
	b.WriteString("You are an options income trader selecting today's positions. ")
	b.WriteString("You sell premium: short puts, credit spreads, covered calls.\n\n")

	b.WriteString("## MARKET CONTEXT\n")
	if scan != nil {
		fmt.Fprintf(&b, "Mood: %s\n", scan.MarketMood)
		if len(scan.SectorMomentum) > 0 {
			b.WriteString("Sector momentum:\n")
			for _, sector := range sortedKeys(scan.SectorMomentum) {
				fmt.Fprintf(&b, "  %s: %s\n", sector, scan.SectorMomentum[sector])
			}
		}
		for _, flag := range scan.CautionFlags {
			fmt.Fprintf(&b, "CAUTION: %s\n", flag)
		}
	}

	b.WriteString("\n## CANDIDATES\n")
	for _, c := range candidates {
		fmt.Fprintf(&b, "%s (%s): $%.2f, %+.2f%% today, %.0f%% of 52-week range\n",
			c.Ticker, c.Sector, c.Price, c.ChangePercent, c.RangePosition)
	}

	b.WriteString("\n")
	b.WriteString(perfContext)

	b.WriteString("\n## CONSTRAINTS\n")
	fmt.Fprintf(&b, "- Allowed strategies: %s\n", strings.Join(cfg.AllowedStrategies, ", "))
	fmt.Fprintf(&b, "- DTE between %d and %d days\n", cfg.MinDTE, cfg.MaxDTE)
	fmt.Fprintf(&b, "- Spread width at least $%.0f for credit spreads\n", cfg.MinSpreadWidth)
	b.WriteString("- Prefer credit spreads: at least 3 of your 5 picks must be credit_spread\n")
	b.WriteString("- Diversify: picks must span at least 3 sectors, no more than 2 per sector\n")
	fmt.Fprintf(&b, "- Preserve capital: $%.0f margin already committed of $%.0f allowed, $%.0f headroom remains. Do not exhaust it\n",
		margin.Total, margin.MaxAllowed, margin.Available)

	b.WriteString("\nSelect up to 5 trades. Answer using EXACTLY this format, one block per trade:\n\n")
	b.WriteString("===TRADE_1===\n")
	b.WriteString("TICKER: AAA\n")
	b.WriteString("STRATEGY: credit_spread\n")
	b.WriteString("STRIKE: 180\n")
	b.WriteString("EXPIRY: YYYY-MM-DD\n")
	b.WriteString("DTE: 38\n")
	b.WriteString("CONTRACTS: 1\n")
	b.WriteString("ESTIMATED_PREMIUM: 1.20\n")
	b.WriteString("SPREAD_WIDTH: 5\n")
	b.WriteString("STRIKE_SELL: 180\n")
	b.WriteString("STRIKE_BUY: 175\n")
	b.WriteString("CONFIDENCE: 78\n")
	b.WriteString("SECTOR: Tech\n")
	b.WriteString("RATIONALE: one or two sentences\n")
	b.WriteString("===END_TRADE_1===\n")
	return b.String()
}

// buildReviewPrompt produces the post-close review prompt for one trade.
func buildReviewPrompt(trade *domain.Trade, scan *domain.MarketScan) string {
	var b strings.Builder
	b.WriteString("Review this closed options trade and extract what to learn from it.\n\n")
	b.WriteString("## TRADE\n")
	fmt.Fprintf(&b, "%s %s, strike %.2f, expiry %s, %d contract(s)\n",
		trade.Ticker, trade.Strategy, trade.Strike, trade.Expiry, trade.Contracts)
	fmt.Fprintf(&b, "Entry: $%.2f premium on %s", trade.EntryPrice, trade.EntryDate)
	if trade.EntrySpot != nil {
		fmt.Fprintf(&b, " (spot $%.2f)", *trade.EntrySpot)
	}
	b.WriteString("\n")
	if trade.ExitPrice != nil && trade.ExitDate != nil {
		fmt.Fprintf(&b, "Exit: $%.2f premium on %s", *trade.ExitPrice, *trade.ExitDate)
		if trade.ExitSpot != nil {
			fmt.Fprintf(&b, " (spot $%.2f)", *trade.ExitSpot)
		}
		b.WriteString("\n")
	}
	if trade.ExitReason != nil {
		fmt.Fprintf(&b, "Exit reason: %s\n", *trade.ExitReason)
	}
	if trade.PnLDollars != nil && trade.PnLPercent != nil {
		fmt.Fprintf(&b, "P&L: $%.2f (%.1f%%)\n", *trade.PnLDollars, *trade.PnLPercent)
	}
	if trade.AIRationale != nil && *trade.AIRationale != "" {
		fmt.Fprintf(&b, "Entry rationale: %s\n", *trade.AIRationale)
	}
	if scan != nil {
		fmt.Fprintf(&b, "Market mood at entry: %s\n", scan.MarketMood)
	}
	b.WriteString("\nAnswer using EXACTLY this format:\n\n")
	b.WriteString("===REVIEW===\n")
	b.WriteString("WHAT_WORKED: ...\n")
	b.WriteString("WHAT_FAILED: ...\n")
	b.WriteString("LESSON: ...\n")
	b.WriteString("SHOULD_REPEAT: YES|NO\n")
	b.WriteString("NEW_RULE: a general rule for future trades, or NONE\n")
	b.WriteString("RULE_CATEGORY: entry|exit|risk|sector|timing|general\n")
	b.WriteString("FULL_REVIEW: ...\n")
	b.WriteString("===END_REVIEW===\n")
	return b.String()
}

// buildReflectionPrompt produces the end-of-day reflection prompt.
func buildReflectionPrompt(date, perfContext string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Write a trading-journal reflection for %s.\n\n", date)
	b.WriteString(perfContext)
	b.WriteString("\nIn 3 to 5 sentences: what went well, what to change tomorrow, ")
	b.WriteString("and one concrete adjustment to position sizing or strategy mix. Plain text only.\n")
	return b.String()
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
