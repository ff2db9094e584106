package trader

import (
	"time"

	"github.com/aristath/theta/internal/domain"
)

// fallbackTradeRisk covers strategies without a closed-form margin estimate.
const fallbackTradeRisk = 5000.0

// MarginState is the portfolio margin snapshot used for capital checks.
type MarginState struct {
	Total        float64 `json:"total"`
	PctOfBalance float64 `json:"pct_of_balance"`
	MaxAllowed   float64 `json:"max_allowed"`
	Available    float64 `json:"available"`
	CapPct       float64 `json:"cap_pct"`
	OpenCount    int     `json:"open_count"`
}

// TradeRisk estimates the capital a position commits.
//
// short_put uses the broker-style 20% margin approximation, credit_spread
// the net maximum loss, covered_call the share notional.
func TradeRisk(strategy domain.Strategy, strike, spreadWidth, entryPrice float64, contracts int) float64 {
	if contracts <= 0 {
		contracts = 1
	}
	n := float64(contracts)
	switch strategy {
	case domain.StrategyShortPut:
		return strike * 0.20 * 100 * n
	case domain.StrategyCreditSpread:
		risk := (spreadWidth - entryPrice) * 100 * n
		if risk < 0 {
			return 0
		}
		return risk
	case domain.StrategyCoveredCall:
		return strike * 100 * n
	default:
		return fallbackTradeRisk
	}
}

// MaxProfit is the premium collected. Identical across the short strategies.
func MaxProfit(entryPrice float64, contracts int) float64 {
	if contracts <= 0 {
		contracts = 1
	}
	return entryPrice * 100 * float64(contracts)
}

// MaxLoss is the worst-case loss per strategy. spot is only consulted for
// covered calls.
func MaxLoss(strategy domain.Strategy, strike, spreadWidth, entryPrice, spot float64, contracts int) float64 {
	if contracts <= 0 {
		contracts = 1
	}
	n := float64(contracts)
	switch strategy {
	case domain.StrategyShortPut:
		return (strike - entryPrice) * 100 * n
	case domain.StrategyCreditSpread:
		return (spreadWidth - entryPrice) * 100 * n
	case domain.StrategyCoveredCall:
		return spot * 100 * n
	default:
		return fallbackTradeRisk
	}
}

// StopLossPrice is the premium level that triggers a stop. Short premium
// expands on an adverse move, so the stop sits above entry.
func StopLossPrice(entryPrice, multiplier float64) float64 {
	return entryPrice * (1 + multiplier)
}

// ProfitTargetPrice is the premium level that books the target profit.
func ProfitTargetPrice(entryPrice, targetPct float64) float64 {
	return entryPrice * (1 - targetPct/100)
}

// openTradeRisk recomputes TradeRisk for a stored open trade.
func openTradeRisk(t *domain.Trade) float64 {
	width := 0.0
	if t.SpreadWidth != nil {
		width = *t.SpreadWidth
	}
	return TradeRisk(t.Strategy, t.Strike, width, t.EntryPrice, t.Contracts)
}

// PortfolioMargin sums per-trade risk across open trades and relates it to
// the account balance and the configured cap.
func PortfolioMargin(open []domain.Trade, balance, capPct float64) MarginState {
	total := 0.0
	for i := range open {
		total += openTradeRisk(&open[i])
	}
	state := MarginState{
		Total:      total,
		CapPct:     capPct,
		MaxAllowed: balance * capPct / 100,
		OpenCount:  len(open),
	}
	if balance > 0 {
		state.PctOfBalance = total / balance * 100
	}
	state.Available = state.MaxAllowed - total
	if state.Available < 0 {
		state.Available = 0
	}
	return state
}

// DaysToExpiry counts whole days from now to the expiry date's market close,
// clipped at 0. Expiry is an ISO date in the market time zone.
func DaysToExpiry(expiry string, now time.Time) int {
	exp, err := time.ParseInLocation("2006-01-02", expiry, now.Location())
	if err != nil {
		return 0
	}
	// Expiration settles at the 16:00 close.
	close := time.Date(exp.Year(), exp.Month(), exp.Day(), 16, 0, 0, 0, now.Location())
	if !close.After(now) {
		return 0
	}
	return int(close.Sub(now).Hours() / 24)
}
