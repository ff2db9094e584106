package trader

import (
	"context"
	"fmt"
	"time"

	"github.com/aristath/theta/internal/clients/quotestream"
	"github.com/aristath/theta/internal/domain"
	"github.com/aristath/theta/internal/events"
)

// marginWarnRatio triggers the soft margin health warning.
const marginWarnRatio = 0.90

// MonitorTick evaluates every open position once. Ticks outside market
// hours return immediately; ticks that arrive while the previous one is
// still running are dropped.
func (s *Service) MonitorTick() error {
	now := s.now()
	if !IsMarketHours(now) {
		return nil
	}
	if !s.monitorBusy.CompareAndSwap(false, true) {
		s.log.Warn().Msg("Previous monitor tick still running, dropping tick")
		return nil
	}
	defer s.monitorBusy.Store(false)

	s.lastTick.Store(now.Format(time.RFC3339))

	open, err := s.store.Trades.GetOpen()
	if err != nil {
		return fmt.Errorf("loading open trades: %w", err)
	}
	if len(open) == 0 {
		return nil
	}

	ctx := context.Background()
	for i := range open {
		s.monitorTrade(ctx, &open[i], now)
	}

	s.checkMarginHealth(open)
	return nil
}

// monitorTrade evaluates one position against a single price snapshot.
/// Triggers are strictly ordered: stop-loss, then DTE management, then
// profit target.
func (s *Service) monitorTrade(ctx context.Context, trade *domain.Trade, now time.Time) {
	current, ok := s.currentPremium(ctx, trade)
	if !ok {
		s.log.Debug().Int64("trade_id", trade.ID).Str("ticker", trade.Ticker).Msg("No current premium, skipping this tick")
		return
	}

	pnlPerContract := (trade.EntryPrice - current) * 100
	pnlPercent := 0.0
	if trade.EntryPrice > 0 {
		pnlPercent = (trade.EntryPrice - current) / trade.EntryPrice * 100
	}

	var exitSpot *float64
	if q, err := s.md.GetQuote(ctx, trade.Ticker); err == nil && q != nil {
		exitSpot = &q.Price
	}

	if current >= trade.StopLossPrice {
		if err := s.closeTrade(trade, current, exitSpot, domain.ExitStopLoss, events.TradeStopLoss); err != nil {
			s.log.Error().Err(err).Int64("trade_id", trade.ID).Msg("Stop-loss close failed")
		}
		return
	}

	dte := DaysToExpiry(trade.Expiry, now)
	if dte > 0 && dte <= s.manageDTE() {
		if err := s.closeTrade(trade, current, exitSpot, domain.ExitDTEManage, events.TradeDTEManage); err != nil {
			s.log.Error().Err(err).Int64("trade_id", trade.ID).Msg("DTE-management close failed")
		}
		return
	}

	if current <= trade.ProfitTargetPrice {
		if err := s.closeTrade(trade, current, exitSpot, domain.ExitProfitTarget, events.TradeProfitTarget); err != nil {
			s.log.Error().Err(err).Int64("trade_id", trade.ID).Msg("Profit-target close failed")
		}
		return
	}

	s.bus.Publish(&events.PositionUpdateData{
		TradeID:        trade.ID,
		CurrentPrice:   current,
		PnLPerContract: pnlPerContract,
		PnLPercent:     pnlPercent,
		PnLTotal:       pnlPerContract * float64(trade.Contracts),
	})
}

// currentPremium reads the streamed tick when fresh, falling back to a
// REST option quote.
func (s *Service) currentPremium(ctx context.Context, trade *domain.Trade) (float64, bool) {
	if s.quotes != nil {
		if tick, ok := s.quotes.Get(ContractSymbol(trade), quoteFreshness); ok && tick.Last > 0 {
			return tick.Last, true
		}
	}
	opt, err := s.md.GetOptionPremium(ctx, trade.Ticker, trade.Strike, trade.Expiry, optionRight(trade.Strategy))
	if err != nil || opt == nil {
		return 0, false
	}
	if opt.Mid > 0 {
		return opt.Mid, true
	}
	if opt.Ask > 0 {
		return opt.Ask, true
	}
	return 0, false
}

// ContractSymbol is the stream identifier for the option contract a trade
// is short.
func ContractSymbol(trade *domain.Trade) string {
	return quotestream.ContractSymbol(trade.Ticker, trade.Expiry, trade.Strike, optionRight(trade.Strategy))
}

func (s *Service) manageDTE() int {
	dte, _ := s.store.Settings.GetInt("manage_dte", 21)
	return dte
}

// checkMarginHealth logs when margin utilization crosses 90% of the cap.
func (s *Service) checkMarginHealth(open []domain.Trade) {
	cfg := s.store.LoadTradingConfig()
	margin := PortfolioMargin(open, cfg.PaperBalance, cfg.MaxMarginPct)
	if margin.MaxAllowed > 0 && margin.Total >= margin.MaxAllowed*marginWarnRatio {
		s.log.Warn().
			Float64("margin_total", margin.Total).
			Float64("max_allowed", margin.MaxAllowed).
			Float64("pct_of_balance", margin.PctOfBalance).
			Msg("Portfolio margin above 90% of cap")
	}
}
