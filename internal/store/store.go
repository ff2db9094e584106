package store

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/aristath/theta/internal/database"
	"github.com/aristath/theta/internal/domain"
)

// Store aggregates the repositories over the single trader database. It is
// the only shared mutable resource in the engine; every other component
// holds value copies returned from its queries.
type Store struct {
	Trades    *TradeRepository
	Scans     *ScanRepository
	Reviews   *ReviewRepository
	Summaries *SummaryRepository
	Rules     *RuleRepository
	Settings  *SettingsRepository
	Reporting *ReportingRepository

	db    *database.DB
	log   zerolog.Logger
	ready bool
}

// New opens the store over an already-connected database: applies the
// schema, seeds default settings, and wires the repositories. A migration
// failure leaves the store not ready; the trader refuses to enable on a
// store that is not ready.
func New(db *database.DB, log zerolog.Logger) (*Store, error) {
	log = log.With().Str("component", "store").Logger()

	s := &Store{
		Trades:    NewTradeRepository(db.Conn(), log),
		Scans:     NewScanRepository(db.Conn(), log),
		Reviews:   NewReviewRepository(db.Conn(), log),
		Summaries: NewSummaryRepository(db.Conn(), log),
		Rules:     NewRuleRepository(db.Conn(), log),
		Settings:  NewSettingsRepository(db.Conn(), log),
		Reporting: NewReportingRepository(db.Conn(), log),
		db:        db,
		log:       log,
	}

	if err := db.Migrate(); err != nil {
		return s, fmt.Errorf("store initialization failed: %w", err)
	}
	if err := s.Settings.SeedDefaults(); err != nil {
		return s, fmt.Errorf("store initialization failed: %w", err)
	}

	s.ready = true
	return s, nil
}

// IsReady reports whether the store initialized successfully. Predicates
// the monitor and reporting.
func (s *Store) IsReady() bool {
	return s != nil && s.ready
}

// DB exposes the underlying database wrapper for maintenance operations
// (WAL checkpoints, backups, health checks).
func (s *Store) DB() *database.DB {
	return s.db
}

// BuildPerformanceContext returns the pre-formatted multi-section text blob
// injected into analysis prompts: recent performance, strategy breakdown,
// and active learned rules. Deterministic given the store contents.
func (s *Store) BuildPerformanceContext() (string, error) {
	metrics, err := s.Reporting.PerformanceMetrics(30)
	if err != nil {
		return "", fmt.Errorf("failed to build performance context: %w", err)
	}

	var b strings.Builder

	b.WriteString("## RECENT PERFORMANCE (30 days)\n")
	if metrics.TotalTrades == 0 {
		b.WriteString("No closed trades yet.\n")
	} else {
		fmt.Fprintf(&b, "Trades: %d | Win rate: %.1f%% | Total P&L: $%.2f\n",
			metrics.TotalTrades, metrics.WinRate, metrics.TotalPnL)
		fmt.Fprintf(&b, "Avg win: $%.2f | Avg loss: $%.2f | Profit factor: %.2f\n",
			metrics.AvgWin, metrics.AvgLoss, metrics.ProfitFactor)

		if len(metrics.ByStrategy) > 0 {
			b.WriteString("\n## BY STRATEGY\n")
			for _, strategy := range []string{"short_put", "credit_spread", "covered_call"} {
				ss, ok := metrics.ByStrategy[strategy]
				if !ok {
					continue
				}
				fmt.Fprintf(&b, "- %s: %d trades, %d wins, $%.2f\n",
					strategy, ss.Trades, ss.Wins, ss.PnL)
			}
		}

		if metrics.BestTrade != nil && metrics.BestTrade.PnLDollars != nil {
			fmt.Fprintf(&b, "\nBest trade: %s %s $%.2f\n",
				metrics.BestTrade.Ticker, metrics.BestTrade.Strategy, *metrics.BestTrade.PnLDollars)
		}
		if metrics.WorstTrade != nil && metrics.WorstTrade.PnLDollars != nil {
			fmt.Fprintf(&b, "Worst trade: %s %s $%.2f\n",
				metrics.WorstTrade.Ticker, metrics.WorstTrade.Strategy, *metrics.WorstTrade.PnLDollars)
		}
	}

	rules, err := s.Rules.GetActive()
	if err != nil {
		return "", fmt.Errorf("failed to build performance context: %w", err)
	}
	if len(rules) > 0 {
		b.WriteString("\n## LEARNED RULES (apply these)\n")
		for _, rule := range rules {
			fmt.Fprintf(&b, "- [%s, confidence %.2f] %s\n",
				rule.Category, rule.Confidence, rule.RuleText)
		}
	}

	return b.String(), nil
}

// PaperBalance reads the configured starting paper balance.
func (s *Store) PaperBalance() float64 {
	balance, err := s.Settings.GetFloat("paper_balance", 100000)
	if err != nil {
		s.log.Warn().Err(err).Msg("Failed to read paper balance, using default")
		return 100000
	}
	return balance
}

// AccountValue is the paper balance plus all realized P&L.
func (s *Store) AccountValue() (float64, error) {
	curve, err := s.Reporting.EquityCurve(s.PaperBalance())
	if err != nil {
		return 0, err
	}
	return curve.CurrentValue, nil
}

// TradingConfig is the read-only snapshot of the runtime tunables taken at
// the start of each phase invocation.
type TradingConfig struct {
	PaperBalance       float64
	MaxPositions       int
	MaxDailyRiskPct    float64
	MaxMarginPct       float64
	MaxPerSector       int
	StopLossMultiplier float64
	ProfitTargetPct    float64
	MinDTE             int
	MaxDTE             int
	ManageDTE          int
	AllowedStrategies  []string
	MinSpreadWidth     float64
	MonitorIntervalSec int
	DeepseekModel      string
	GrokModel          string
}

// LoadTradingConfig reads the current tunables into a snapshot. Missing or
// unparseable keys fall back to defaults.
func (s *Store) LoadTradingConfig() TradingConfig {
	cfg := TradingConfig{}
	cfg.PaperBalance, _ = s.Settings.GetFloat("paper_balance", 100000)
	cfg.MaxPositions, _ = s.Settings.GetInt("max_positions", 5)
	cfg.MaxDailyRiskPct, _ = s.Settings.GetFloat("max_daily_risk_pct", 20)
	cfg.MaxMarginPct, _ = s.Settings.GetFloat("max_margin_pct", 70)
	cfg.MaxPerSector, _ = s.Settings.GetInt("max_per_sector", 2)
	cfg.StopLossMultiplier, _ = s.Settings.GetFloat("stop_loss_multiplier", 2)
	cfg.ProfitTargetPct, _ = s.Settings.GetFloat("profit_target_pct", 50)
	cfg.MinDTE, _ = s.Settings.GetInt("min_dte", 1)
	cfg.MaxDTE, _ = s.Settings.GetInt("max_dte", 45)
	cfg.ManageDTE, _ = s.Settings.GetInt("manage_dte", 21)
	cfg.AllowedStrategies, _ = s.Settings.GetStringList("allowed_strategies",
		[]string{string(domain.StrategyShortPut), string(domain.StrategyCreditSpread), string(domain.StrategyCoveredCall)})
	cfg.MinSpreadWidth, _ = s.Settings.GetFloat("min_spread_width", 5)
	cfg.MonitorIntervalSec, _ = s.Settings.GetInt("monitor_interval_sec", 30)
	cfg.DeepseekModel = s.SettingOr("deepseek_model", "deepseek-r1:70b")
	cfg.GrokModel = s.SettingOr("grok_model", "grok-4")
	return cfg
}

// StrategyAllowed reports whether the strategy is in the allowed list.
func (c TradingConfig) StrategyAllowed(strategy domain.Strategy) bool {
	for _, allowed := range c.AllowedStrategies {
		if allowed == string(strategy) {
			return true
		}
	}
	return false
}

// SettingOr reads a string setting, falling back when absent or empty.
func (s *Store) SettingOr(key, fallback string) string {
	value, err := s.Settings.Get(key)
	if err != nil || value == nil || *value == "" {
		return fallback
	}
	return *value
}
