package trader

import (
	"context"
	"fmt"

	"github.com/aristath/theta/internal/clients/marketdata"
	"github.com/aristath/theta/internal/domain"
	"github.com/aristath/theta/internal/events"
	"github.com/aristath/theta/internal/store"
)

// minViablePremium filters out picks whose credit is noise.
const minViablePremium = 0.05

// runExecute is Phase 3: open positions from today's picks, enforcing the
// duplicate, sector, position, risk-budget, and margin caps. Every insert
// is a commitment; a failure mid-loop leaves exactly the trades opened so
// far.
func (s *Service) runExecute(ctx context.Context) error {
	s.emitProgress(PhaseExecute, events.PhaseStarting, "Trade execution")

	scan, err := s.store.Scans.GetByDate(s.today())
	if err != nil {
		s.emitProgress(PhaseExecute, events.PhaseError, "No market scan for today")
		return fmt.Errorf("loading today's scan: %w", err)
	}
	if scan == nil {
		s.emitProgress(PhaseExecute, events.PhaseError, "No market scan for today")
		return fmt.Errorf("no scan for today, aborting execution")
	}

	picks := scan.SelectedPicks
	if len(picks) == 0 {
		s.log.Info().Msg("No picks on scan, re-running analysis")
		if err := s.runAnalyze(ctx); err != nil {
			s.emitProgress(PhaseExecute, events.PhaseError, "Analysis re-run failed")
			return err
		}
		if scan, err = s.store.Scans.GetByDate(s.today()); err != nil {
			s.emitProgress(PhaseExecute, events.PhaseError, "Scan disappeared during analysis")
			return fmt.Errorf("reloading scan: %w", err)
		}
		if scan == nil {
			s.emitProgress(PhaseExecute, events.PhaseError, "Scan disappeared during analysis")
			return fmt.Errorf("scan missing after analysis re-run")
		}
		picks = scan.SelectedPicks
	}
	if len(picks) == 0 {
		s.emitProgress(PhaseExecute, events.PhaseSkipped, "No trade picks today")
		return nil
	}

	cfg := s.store.LoadTradingConfig()
	open, err := s.store.Trades.GetOpen()
	if err != nil {
		s.emitProgress(PhaseExecute, events.PhaseError, "Failed to load open trades")
		return fmt.Errorf("loading open trades: %w", err)
	}

	slots := cfg.MaxPositions - len(open)
	if slots <= 0 {
		s.emitProgress(PhaseExecute, events.PhaseSkipped,
			fmt.Sprintf("Position cap reached (%d open)", len(open)))
		return nil
	}

	riskBudget := cfg.PaperBalance * cfg.MaxDailyRiskPct / 100
	margin := PortfolioMargin(open, cfg.PaperBalance, cfg.MaxMarginPct)
	if margin.PctOfBalance >= cfg.MaxMarginPct {
		s.emitProgress(PhaseExecute, events.PhaseSkipped,
			fmt.Sprintf("Margin cap reached (%.1f%% of %.0f%%)", margin.PctOfBalance, cfg.MaxMarginPct))
		return nil
	}

	openTickers := map[string]bool{}
	sectorCounts := map[string]int{}
	for i := range open {
		openTickers[open[i].Ticker] = true
		sectorCounts[open[i].Sector]++
	}

	capitalUsed := 0.0
	opened := 0
	marginSkips := 0

	for _, pick := range picks {
		if opened >= slots {
			break
		}
		sector := SectorFor(pick.Ticker)

		if openTickers[pick.Ticker] {
			s.log.Info().Str("ticker", pick.Ticker).Msg("Skipping pick, ticker already open")
			continue
		}
		if sectorCounts[sector] >= cfg.MaxPerSector {
			s.log.Info().Str("ticker", pick.Ticker).Str("sector", sector).Msg("Skipping pick, sector cap reached")
			continue
		}

		quote, err := s.md.GetQuote(ctx, pick.Ticker)
		if err != nil || quote == nil || quote.Price <= 0 {
			s.log.Warn().Err(err).Str("ticker", pick.Ticker).Msg("Skipping pick, no quote")
			continue
		}

		if reason := s.validatePick(&pick, cfg); reason != "" {
			s.log.Info().Str("ticker", pick.Ticker).Str("reason", reason).Msg("Skipping pick, validation failed")
			continue
		}

		premium, opt := s.resolvePremium(ctx, &pick)
		if premium <= minViablePremium {
			s.log.Info().Str("ticker", pick.Ticker).Float64("premium", premium).Msg("Skipping pick, premium too small")
			continue
		}

		risk := TradeRisk(pick.Strategy, pick.Strike, pick.SpreadWidth, premium, pick.Contracts)
		if capitalUsed+risk > riskBudget {
			s.log.Info().Str("ticker", pick.Ticker).Float64("risk", risk).
				Float64("budget_left", riskBudget-capitalUsed).Msg("Skipping pick, daily risk budget exhausted")
			continue
		}
		if margin.Total+capitalUsed+risk > margin.MaxAllowed {
			s.log.Info().Str("ticker", pick.Ticker).Float64("risk", risk).Msg("Skipping pick, would breach margin cap")
			marginSkips++
			continue
		}

		draft := s.buildDraft(&pick, sector, premium, quote.Price, scan.ID, cfg)
		if opt != nil {
			draft.EntryIV = opt.IV
			draft.EntryDelta = opt.Delta
		}
		id, err := s.store.Trades.Insert(draft)
		if err != nil {
			s.log.Error().Err(err).Str("ticker", pick.Ticker).Msg("Trade insert failed, skipping pick")
			continue
		}

		openTickers[pick.Ticker] = true
		sectorCounts[sector]++
		capitalUsed += risk
		opened++

		trade, _ := s.store.Trades.Get(id)
		s.bus.Publish(&events.TradeData{Action: events.TradeOpened, TradeID: id, Trade: trade})
		s.log.Info().Int64("trade_id", id).Str("ticker", pick.Ticker).
			Str("strategy", string(pick.Strategy)).Float64("premium", premium).Msg("Position opened")
	}

	if opened == 0 {
		message := "No picks opened"
		if marginSkips > 0 {
			message = "No picks opened, margin cap preserved"
		}
		s.emitProgress(PhaseExecute, events.PhaseSkipped, message)
		return nil
	}
	s.emitProgress(PhaseExecute, events.PhaseComplete,
		fmt.Sprintf("Opened %d of %d picks", opened, len(picks)))
	return nil
}

// validatePick returns a skip reason, or "" when the pick is tradeable.
func (s *Service) validatePick(pick *domain.TradePick, cfg store.TradingConfig) string {
	if !cfg.StrategyAllowed(pick.Strategy) {
		return fmt.Sprintf("strategy %s not allowed", pick.Strategy)
	}

	dte := pick.DTE
	if pick.Expiry != "" {
		dte = DaysToExpiry(pick.Expiry, s.now())
	} else if dte > 0 {
		pick.Expiry = s.now().AddDate(0, 0, dte).Format(dateLayout)
	}
	pick.DTE = dte
	if dte < cfg.MinDTE || dte > cfg.MaxDTE {
		return fmt.Sprintf("dte %d outside [%d, %d]", dte, cfg.MinDTE, cfg.MaxDTE)
	}

	if pick.Strategy == domain.StrategyCreditSpread {
		if pick.SpreadWidth == 0 && pick.StrikeSell > 0 && pick.StrikeBuy > 0 {
			pick.SpreadWidth = pick.StrikeSell - pick.StrikeBuy
			if pick.SpreadWidth < 0 {
				pick.SpreadWidth = -pick.SpreadWidth
			}
		}
		if pick.SpreadWidth < cfg.MinSpreadWidth {
			return fmt.Sprintf("spread width %.2f below minimum %.2f", pick.SpreadWidth, cfg.MinSpreadWidth)
		}
	}
	return ""
}

// resolvePremium prefers the live mid, then the ask, then the model's
// estimate. The option quote, when one was obtained, rides along so the
// entry greeks can be recorded.
func (s *Service) resolvePremium(ctx context.Context, pick *domain.TradePick) (float64, *marketdata.OptionQuote) {
	opt, err := s.md.GetOptionPremium(ctx, pick.Ticker, pick.Strike, pick.Expiry, optionRight(pick.Strategy))
	if err == nil && opt != nil {
		if opt.Mid > 0 {
			return opt.Mid, opt
		}
		if opt.Ask > 0 {
			return opt.Ask, opt
		}
	}
	return pick.EstimatedPremium, nil
}

// buildDraft assembles the insertable trade from a validated pick.
func (s *Service) buildDraft(pick *domain.TradePick, sector string, premium, spot float64, scanID int64, cfg store.TradingConfig) domain.TradeDraft {
	draft := domain.TradeDraft{
		Ticker:            pick.Ticker,
		Strategy:          pick.Strategy,
		Sector:            sector,
		Strike:            pick.Strike,
		Expiry:            pick.Expiry,
		DTE:               pick.DTE,
		Contracts:         pick.Contracts,
		EntryPrice:        premium,
		EntryDate:         s.today(),
		EntrySpot:         &spot,
		MaxProfit:         MaxProfit(premium, pick.Contracts),
		MaxLoss:           MaxLoss(pick.Strategy, pick.Strike, pick.SpreadWidth, premium, spot, pick.Contracts),
		AIRationale:       pick.Rationale,
		AIConfidence:      pick.Confidence,
		ModelUsed:         cfg.DeepseekModel,
		StopLossPrice:     StopLossPrice(premium, cfg.StopLossMultiplier),
		ProfitTargetPrice: ProfitTargetPrice(premium, cfg.ProfitTargetPct),
	}
	if scanID > 0 {
		draft.MarketScanID = &scanID
	}
	if pick.StrikeSell > 0 {
		draft.StrikeSell = &pick.StrikeSell
	}
	if pick.StrikeBuy > 0 {
		draft.StrikeBuy = &pick.StrikeBuy
	}
	if pick.SpreadWidth > 0 {
		draft.SpreadWidth = &pick.SpreadWidth
	}
	return draft
}
