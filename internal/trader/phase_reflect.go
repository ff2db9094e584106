package trader

import (
	"context"
	"fmt"
	"time"

	"github.com/aristath/theta/internal/domain"
	"github.com/aristath/theta/internal/events"
)

// runReflect is Phase 5: review every trade closed today, distill new
// rules, prune weak ones on Fridays, and write the daily reflection.
func (s *Service) runReflect(ctx context.Context) error {
	s.emitProgress(PhaseReflect, events.PhaseStarting, "Self-reflection")

	today := s.today()
	closedToday, err := s.store.Trades.GetClosedOn(today)
	if err != nil {
		s.emitProgress(PhaseReflect, events.PhaseError, "Failed to load closed trades")
		return fmt.Errorf("loading closed trades: %w", err)
	}

	cfg := s.store.LoadTradingConfig()
	reviewed := 0
	for i := range closedToday {
		trade := &closedToday[i]
		has, err := s.store.Reviews.HasReview(trade.ID)
		if err != nil {
			s.log.Warn().Err(err).Int64("trade_id", trade.ID).Msg("Review lookup failed, skipping")
			continue
		}
		if has {
			continue
		}
		if err := s.reviewTrade(ctx, trade, cfg.DeepseekModel); err != nil {
			s.log.Error().Err(err).Int64("trade_id", trade.ID).Msg("Trade review failed")
			continue
		}
		reviewed++
	}

	if s.now().Weekday() == time.Friday {
		if err := s.pruneRules(); err != nil {
			s.log.Warn().Err(err).Msg("Weekly rule prune failed")
		}
	}

	if err := s.writeReflection(ctx, today, cfg.DeepseekModel); err != nil {
		s.log.Warn().Err(err).Msg("Daily reflection failed")
	}

	s.emitProgress(PhaseReflect, events.PhaseComplete, fmt.Sprintf("Reviewed %d trades", reviewed))
	return nil
}

// reviewTrade asks the analysis model to critique one closed trade and
// persists the review, plus any rule it distilled.
func (s *Service) reviewTrade(ctx context.Context, trade *domain.Trade, model string) error {
	var scan *domain.MarketScan
	if trade.MarketScanID != nil {
		scan, _ = s.store.Scans.GetByDate(trade.EntryDate)
	}

	prompt := buildReviewPrompt(trade, scan)
	response, err := s.ai.Call(ctx, prompt, model, 2048)
	if err != nil {
		return fmt.Errorf("calling analysis model: %w", err)
	}

	parsed := parseReviewResponse(response)
	review := domain.TradeReview{
		TradeID:      trade.ID,
		RawReview:    response,
		Lesson:       parsed.Lesson,
		WhatWorked:   parsed.WhatWorked,
		WhatFailed:   parsed.WhatFailed,
		ShouldRepeat: parsed.ShouldRepeat,
		ModelUsed:    model,
		CreatedAt:    time.Now().Unix(),
	}
	if err := s.store.Reviews.Insert(review); err != nil {
		return fmt.Errorf("inserting review: %w", err)
	}

	// Rules in force when this trade ran get credited or debited by its
	// outcome. The rule distilled below does not score against its own
	// source trade.
	s.scoreActiveRules(trade)

	if parsed.NewRule != "" {
		rule := domain.LearnedRule{
			RuleText:       parsed.NewRule,
			Category:       parsed.RuleCategory,
			SourceTradeIDs: []int64{trade.ID},
			Confidence:     0.5,
			Active:         true,
			CreatedAt:      time.Now().Unix(),
		}
		if _, err := s.store.Rules.Insert(rule); err != nil {
			s.log.Warn().Err(err).Int64("trade_id", trade.ID).Msg("Failed to save learned rule")
		} else {
			s.log.Info().Str("category", string(parsed.RuleCategory)).Str("rule", parsed.NewRule).Msg("Learned new rule")
		}
	}
	return nil
}

// scoreActiveRules records one application of every active rule against a
// closed trade, helpful when the trade ended at or above breakeven.
func (s *Service) scoreActiveRules(trade *domain.Trade) {
	rules, err := s.store.Rules.GetActive()
	if err != nil {
		s.log.Warn().Err(err).Msg("Loading active rules for scoring failed")
		return
	}
	won := trade.PnLDollars != nil && *trade.PnLDollars >= 0
	for _, rule := range rules {
		if err := s.store.Rules.UpdateEffectiveness(rule.ID, won); err != nil {
			s.log.Warn().Err(err).Int64("rule_id", rule.ID).Msg("Rule effectiveness update failed")
		}
	}
}

// writeReflection generates the day's journal entry onto the summary.
func (s *Service) writeReflection(ctx context.Context, date, model string) error {
	perfContext, err := s.store.BuildPerformanceContext()
	if err != nil {
		return fmt.Errorf("building performance context: %w", err)
	}

	prompt := buildReflectionPrompt(date, perfContext)
	reflection, err := s.ai.Call(ctx, prompt, model, 1024)
	if err != nil {
		return fmt.Errorf("calling analysis model: %w", err)
	}

	// The reflection lands on today's summary row; create it if the
	// end-of-day phase has not run yet.
	if summary, err := s.store.Summaries.GetByDate(date); err == nil && summary == nil {
		if err := s.writeDailySummary(); err != nil {
			return err
		}
	}
	if err := s.store.Summaries.UpdateReflection(date, reflection); err != nil {
		return fmt.Errorf("saving reflection: %w", err)
	}
	return nil
}
