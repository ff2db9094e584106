package store

import (
	"database/sql"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/stat"

	"github.com/aristath/theta/internal/domain"
)

// ReportingRepository serves the read-mostly analytics queries: performance
// metrics, the equity curve, and the prompt-ready performance context.
type ReportingRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewReportingRepository creates a new reporting repository.
func NewReportingRepository(db *sql.DB, log zerolog.Logger) *ReportingRepository {
	return &ReportingRepository{
		db:  db,
		log: log.With().Str("repo", "reporting").Logger(),
	}
}

// PerformanceMetrics summarizes closed trades over the trailing window.
func (r *ReportingRepository) PerformanceMetrics(days int) (*domain.PerformanceMetrics, error) {
	cutoff := time.Now().AddDate(0, 0, -days).Format("2006-01-02")

	query := "SELECT " + tradeColumns + ` FROM trades
		WHERE status = 'closed' AND exit_date >= ?
		ORDER BY exit_date ASC, id ASC`

	rows, err := r.db.Query(query, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to query closed trades: %w", err)
	}
	defer rows.Close()

	var trades []domain.Trade
	for rows.Next() {
		trade, err := scanTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trade: %w", err)
		}
		trades = append(trades, trade)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating trades: %w", err)
	}

	return computeMetrics(trades), nil
}

// computeMetrics derives the metrics from a chronologically ordered slice
// of closed trades.
func computeMetrics(trades []domain.Trade) *domain.PerformanceMetrics {
	m := &domain.PerformanceMetrics{
		ByStrategy: make(map[string]domain.StrategyStats),
		ByTicker:   make(map[string]domain.TickerStats),
	}

	var grossWin, grossLoss float64
	dailyPnL := make(map[string]float64)
	var dates []string

	for i := range trades {
		t := trades[i]
		if t.PnLDollars == nil {
			continue
		}
		pnl := *t.PnLDollars
		m.TotalTrades++
		m.TotalPnL += pnl

		win := pnl > 0
		if win {
			m.Wins++
			grossWin += pnl
		} else {
			m.Losses++
			grossLoss += math.Abs(pnl)
		}

		ss := m.ByStrategy[string(t.Strategy)]
		ss.Trades++
		ss.PnL += pnl
		if win {
			ss.Wins++
		}
		m.ByStrategy[string(t.Strategy)] = ss

		ts := m.ByTicker[t.Ticker]
		ts.Trades++
		ts.PnL += pnl
		if win {
			ts.Wins++
		}
		m.ByTicker[t.Ticker] = ts

		if m.BestTrade == nil || pnl > *m.BestTrade.PnLDollars {
			m.BestTrade = &trades[i]
		}
		if m.WorstTrade == nil || pnl < *m.WorstTrade.PnLDollars {
			m.WorstTrade = &trades[i]
		}

		if t.ExitDate != nil {
			if _, seen := dailyPnL[*t.ExitDate]; !seen {
				dates = append(dates, *t.ExitDate)
			}
			dailyPnL[*t.ExitDate] += pnl
		}
	}

	if m.TotalTrades > 0 {
		m.WinRate = float64(m.Wins) / float64(m.TotalTrades) * 100
	}
	if m.Wins > 0 {
		m.AvgWin = grossWin / float64(m.Wins)
	}
	if m.Losses > 0 {
		m.AvgLoss = grossLoss / float64(m.Losses)
	}
	if grossLoss > 0 {
		m.ProfitFactor = grossWin / grossLoss
	} else if grossWin > 0 {
		m.ProfitFactor = math.Inf(1)
	}

	series := make([]float64, 0, len(dates))
	for _, date := range dates {
		pnl := dailyPnL[date]
		m.DailyPnL = append(m.DailyPnL, domain.EquityPoint{Date: date, PnL: pnl})
		series = append(series, pnl)
	}
	m.SharpeRatio = sharpeRatio(series)

	return m
}

// sharpeRatio is an annualized mean-over-stddev of the per-day P&L series.
// Returns 0 when the series is too short or flat to be meaningful.
func sharpeRatio(dailyPnL []float64) float64 {
	if len(dailyPnL) < 2 {
		return 0
	}
	mean, std := stat.MeanStdDev(dailyPnL, nil)
	if std == 0 {
		return 0
	}
	return mean / std * math.Sqrt(252)
}

// EquityCurve returns the account-value series: starting balance plus
// cumulative per-close-date P&L, ordered by exit date.
func (r *ReportingRepository) EquityCurve(startingBalance float64) (*domain.EquityCurve, error) {
	query := `
		SELECT exit_date, SUM(pnl_dollars)
		FROM trades
		WHERE status = 'closed' AND exit_date IS NOT NULL AND pnl_dollars IS NOT NULL
		GROUP BY exit_date
		ORDER BY exit_date ASC
	`

	rows, err := r.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query equity curve: %w", err)
	}
	defer rows.Close()

	curve := &domain.EquityCurve{
		StartingBalance: startingBalance,
		CurrentValue:    startingBalance,
	}

	running := startingBalance
	for rows.Next() {
		var date string
		var pnl float64
		if err := rows.Scan(&date, &pnl); err != nil {
			return nil, fmt.Errorf("failed to scan equity point: %w", err)
		}
		running += pnl
		curve.Points = append(curve.Points, domain.EquityPoint{
			Date:  date,
			Value: running,
			PnL:   pnl,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating equity points: %w", err)
	}

	curve.CurrentValue = running
	return curve, nil
}
