package trader

import (
	"context"
	"fmt"
	"time"

	"github.com/aristath/theta/internal/clients/ai"
	"github.com/aristath/theta/internal/domain"
	"github.com/aristath/theta/internal/events"
)

// runIntel is Phase 1: gather pre-market context, call the search model,
// and persist today's MarketScan. Missing market data degrades the scan
// instead of failing it.
func (s *Service) runIntel(ctx context.Context) error {
	s.emitProgress(PhaseIntel, events.PhaseStarting, "Morning market scan")

	s.emitProgress(PhaseIntel, events.PhaseFetching, "Fetching index data")
	var vix float64
	spy, err := s.md.GetQuote(ctx, "SPY")
	if err != nil {
		s.log.Warn().Err(err).Msg("SPY quote unavailable, scanning without it")
		spy = nil
	}
	if q, err := s.md.GetQuote(ctx, "VIX"); err == nil && q != nil {
		vix = q.Price
	} else {
		s.log.Warn().Err(err).Msg("VIX unavailable, scanning without it")
	}
	tech := buildTechnicalContext(ctx, s.md, s.log)

	s.emitProgress(PhaseIntel, events.PhaseDiscovery, "Fetching trending tickers")
	trending, err := s.md.GetTrendingTickers(ctx)
	if err != nil {
		s.log.Warn().Err(err).Msg("Trending tickers unavailable")
	}
	mostActive, err := s.md.GetMostActiveTickers(ctx)
	if err != nil {
		s.log.Warn().Err(err).Msg("Most-active tickers unavailable")
	}

	cfg := s.store.LoadTradingConfig()
	prompt := buildScanPrompt(spy, vix, tech, trending, mostActive)

	s.emitProgress(PhaseIntel, events.PhaseGrok, "Calling search model")
	var rawText string
	var citations []string
	result, err := s.ai.CallWithSearch(ctx, prompt, ai.SearchOptions{
		Model:     cfg.GrokModel,
		MaxTokens: 4096,
		XSearch:   true,
		WebSearch: true,
	})
	if err != nil {
		// Degraded scan: neutral mood, empty lists, still persisted so the
		// later phases have a record to work from.
		s.log.Error().Err(err).Msg("Search model failed, recording degraded scan")
	} else {
		rawText = result.Text
		citations = result.Citations
	}

	parsed := parseScanResponse(rawText)

	scan := domain.MarketScan{
		ScanDate:        s.today(),
		MarketMood:      parsed.MarketMood,
		TrendingTickers: mergeTickers(parsed.TrendingTickers, trending),
		SectorMomentum:  parsed.SectorMomentum,
		CautionFlags:    parsed.CautionFlags,
		RawResponse:     rawText,
		Citations:       citations,
		ScanModel:       cfg.GrokModel,
		CreatedAt:       time.Now().Unix(),
	}
	if spy != nil {
		scan.SPYPrice = &spy.Price
		scan.SPYChangePct = &spy.ChangePercent
	}
	if vix > 0 {
		scan.VIX = &vix
	}

	if _, err := s.store.Scans.Upsert(scan); err != nil {
		s.emitProgress(PhaseIntel, events.PhaseError, "Failed to persist market scan")
		return fmt.Errorf("persisting market scan: %w", err)
	}

	s.emitProgress(PhaseIntel, events.PhaseComplete,
		fmt.Sprintf("Scan recorded: mood %s, %d trending tickers", scan.MarketMood, len(scan.TrendingTickers)))
	return nil
}

// mergeTickers unions two ticker lists preserving first-seen order.
func mergeTickers(primary, secondary []string) []string {
	seen := map[string]bool{}
	var merged []string
	for _, list := range [][]string{primary, secondary} {
		for _, t := range list {
			if t != "" && !seen[t] {
				seen[t] = true
				merged = append(merged, t)
			}
		}
	}
	return merged
}
