package trader

import (
	"context"
	"fmt"
	"time"

	"github.com/aristath/theta/internal/domain"
	"github.com/aristath/theta/internal/events"
)

// runEndOfDay is Phase 4: close expired positions, manage positions inside
// the DTE threshold, and upsert today's summary. Acts as the after-hours
// safety net behind the monitor.
func (s *Service) runEndOfDay(ctx context.Context) error {
	s.emitProgress(PhaseEndOfDay, events.PhaseStarting, "End-of-day review")

	open, err := s.store.Trades.GetOpen()
	if err != nil {
		s.emitProgress(PhaseEndOfDay, events.PhaseError, "Failed to load open trades")
		return fmt.Errorf("loading open trades: %w", err)
	}

	now := s.now()
	manageDTE := s.manageDTE()
	closed := 0

	for i := range open {
		trade := &open[i]
		dte := DaysToExpiry(trade.Expiry, now)

		if dte <= 0 {
			// Expired worthless: the full credit is kept.
			if err := s.closeTrade(trade, 0, nil, domain.ExitExpiry, events.TradeClosed); err != nil {
				s.log.Error().Err(err).Int64("trade_id", trade.ID).Msg("Expiry close failed")
				continue
			}
			closed++
			continue
		}

		if dte <= manageDTE {
			current, ok := s.currentPremium(ctx, trade)
			if !ok {
				// No price after hours; the position stays open for the
				// monitor or tomorrow's review.
				s.log.Warn().Int64("trade_id", trade.ID).Str("ticker", trade.Ticker).
					Msg("No premium for DTE management, leaving open")
				continue
			}
			var exitSpot *float64
			if q, err := s.md.GetQuote(ctx, trade.Ticker); err == nil && q != nil {
				exitSpot = &q.Price
			}
			if err := s.closeTrade(trade, current, exitSpot, domain.ExitDTEManage, events.TradeDTEManage); err != nil {
				s.log.Error().Err(err).Int64("trade_id", trade.ID).Msg("DTE-management close failed")
				continue
			}
			closed++
		}
	}

	if err := s.writeDailySummary(); err != nil {
		s.emitProgress(PhaseEndOfDay, events.PhaseError, "Failed to write daily summary")
		return err
	}

	s.emitProgress(PhaseEndOfDay, events.PhaseComplete, fmt.Sprintf("Closed %d positions", closed))
	return nil
}

// writeDailySummary upserts today's account record from the day's trades.
func (s *Service) writeDailySummary() error {
	today := s.today()

	openedToday, err := s.store.Trades.GetOpenedOn(today)
	if err != nil {
		return fmt.Errorf("loading trades opened today: %w", err)
	}
	closedToday, err := s.store.Trades.GetClosedOn(today)
	if err != nil {
		return fmt.Errorf("loading trades closed today: %w", err)
	}

	wins, losses := 0, 0
	totalPnL := 0.0
	for i := range closedToday {
		if closedToday[i].PnLDollars == nil {
			continue
		}
		pnl := *closedToday[i].PnLDollars
		totalPnL += pnl
		if pnl >= 0 {
			wins++
		} else {
			losses++
		}
	}

	value, err := s.store.AccountValue()
	if err != nil {
		return fmt.Errorf("computing account value: %w", err)
	}

	stillOpen, err := s.store.Trades.GetOpen()
	if err != nil {
		return fmt.Errorf("loading open trades: %w", err)
	}
	atRisk := 0.0
	for i := range stillOpen {
		atRisk += openTradeRisk(&stillOpen[i])
	}

	summary := domain.DailySummary{
		SummaryDate:   today,
		TradesOpened:  len(openedToday),
		TradesClosed:  len(closedToday),
		Wins:          wins,
		Losses:        losses,
		TotalPnL:      totalPnL,
		AccountValue:  value,
		CapitalAtRisk: atRisk,
		CreatedAt:     time.Now().Unix(),
	}
	if err := s.store.Summaries.Upsert(summary); err != nil {
		return fmt.Errorf("upserting daily summary: %w", err)
	}
	return nil
}
