package trader

import (
	"context"
	"fmt"
	"math/rand"

	"github.com/aristath/theta/internal/events"
)

// maxCandidatePool caps how many tickers are quoted and offered to the
// analysis model.
const maxCandidatePool = 40

// runAnalyze is Phase 2: assemble the candidate pool, quote it, and ask
// the analysis model for trade picks. Picks are persisted onto today's
// scan; an empty pick set is a valid outcome.
func (s *Service) runAnalyze(ctx context.Context) error {
	s.emitProgress(PhaseAnalyze, events.PhaseStarting, "Trade analysis")

	scan, err := s.store.Scans.GetByDate(s.today())
	if err != nil {
		s.emitProgress(PhaseAnalyze, events.PhaseError, "Failed to load market scan")
		return fmt.Errorf("loading market scan: %w", err)
	}
	if scan == nil {
		s.log.Info().Msg("No scan for today, running intel phase first")
		if err := s.runIntel(ctx); err != nil {
			s.emitProgress(PhaseAnalyze, events.PhaseError, "Intel phase failed")
			return err
		}
		if scan, err = s.store.Scans.GetByDate(s.today()); err != nil || scan == nil {
			s.emitProgress(PhaseAnalyze, events.PhaseError, "Scan still missing after intel phase")
			return fmt.Errorf("scan missing after intel phase: %w", err)
		}
	}

	s.emitProgress(PhaseAnalyze, events.PhaseCandidates, "Building candidate pool")
	pool := buildCandidatePool(scan.TrendingTickers)
	if err := s.store.Scans.UpdateCandidatePool(scan.ScanDate, pool); err != nil {
		s.log.Warn().Err(err).Msg("Failed to persist candidate pool")
	}

	s.emitProgress(PhaseAnalyze, events.PhaseData, fmt.Sprintf("Quoting %d candidates", len(pool)))
	quotes := s.md.BatchQuotes(ctx, pool)
	candidates := make([]Candidate, 0, len(quotes))
	for _, ticker := range pool {
		q, ok := quotes[ticker]
		if !ok || q == nil || q.Price <= 0 {
			continue
		}
		candidates = append(candidates, Candidate{
			Ticker:        ticker,
			Sector:        SectorFor(ticker),
			Price:         q.Price,
			ChangePercent: q.ChangePercent,
			RangePosition: q.RangePosition,
		})
	}
	if len(candidates) == 0 {
		s.emitProgress(PhaseAnalyze, events.PhaseSkipped, "No quotable candidates")
		return nil
	}

	perfContext, err := s.store.BuildPerformanceContext()
	if err != nil {
		s.log.Warn().Err(err).Msg("Performance context unavailable, analyzing without it")
		perfContext = ""
	}

	cfg := s.store.LoadTradingConfig()
	open, err := s.store.Trades.GetOpen()
	if err != nil {
		s.emitProgress(PhaseAnalyze, events.PhaseError, "Failed to load open trades")
		return fmt.Errorf("loading open trades: %w", err)
	}
	margin := PortfolioMargin(open, cfg.PaperBalance, cfg.MaxMarginPct)

	prompt := buildSelectionPrompt(scan, candidates, perfContext, cfg, margin)

	s.emitProgress(PhaseAnalyze, events.PhaseAI, "Calling analysis model")
	response, err := s.ai.Call(ctx, prompt, cfg.DeepseekModel, 8192)
	if err != nil {
		s.emitProgress(PhaseAnalyze, events.PhaseError, "Analysis model failed")
		return fmt.Errorf("calling analysis model: %w", err)
	}

	picks := parseSelectionResponse(response)
	if err := s.store.Scans.UpdatePicks(scan.ScanDate, picks, cfg.DeepseekModel); err != nil {
		s.emitProgress(PhaseAnalyze, events.PhaseError, "Failed to persist picks")
		return fmt.Errorf("persisting picks: %w", err)
	}

	s.emitProgress(PhaseAnalyze, events.PhaseComplete, fmt.Sprintf("%d picks selected", len(picks)))
	return nil
}

// buildCandidatePool unions the scan's trending tickers with the curated
// universe, shuffles, and truncates.
func buildCandidatePool(trending []string) []string {
	pool := mergeTickers(trending, curatedTickers())
	rand.Shuffle(len(pool), func(i, j int) {
		pool[i], pool[j] = pool[j], pool[i]
	})
	if len(pool) > maxCandidatePool {
		pool = pool[:maxCandidatePool]
	}
	return pool
}
