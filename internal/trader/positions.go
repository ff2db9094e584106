package trader

import (
	"fmt"

	"github.com/aristath/theta/internal/domain"
	"github.com/aristath/theta/internal/events"
)

// closeTrade records the exit for an open trade and broadcasts it. Short
// premium P&L is credit received minus cost to close.
func (s *Service) closeTrade(trade *domain.Trade, exitPrice float64, exitSpot *float64, reason domain.ExitReason, action events.TradeAction) error {
	pnlDollars := (trade.EntryPrice - exitPrice) * 100 * float64(trade.Contracts)
	pnlPercent := 0.0
	if trade.EntryPrice > 0 {
		pnlPercent = (trade.EntryPrice - exitPrice) / trade.EntryPrice * 100
	}

	exit := domain.ExitData{
		ExitPrice:  exitPrice,
		ExitDate:   s.today(),
		ExitSpot:   exitSpot,
		ExitReason: reason,
		PnLDollars: pnlDollars,
		PnLPercent: pnlPercent,
	}
	if err := s.store.Trades.Close(trade.ID, exit); err != nil {
		return fmt.Errorf("closing trade %d: %w", trade.ID, err)
	}

	closed, _ := s.store.Trades.Get(trade.ID)
	s.bus.Publish(&events.TradeData{Action: action, TradeID: trade.ID, Trade: closed})
	s.log.Info().
		Int64("trade_id", trade.ID).
		Str("ticker", trade.Ticker).
		Str("reason", string(reason)).
		Float64("exit_price", exitPrice).
		Float64("pnl", pnlDollars).
		Msg("Position closed")
	return nil
}
