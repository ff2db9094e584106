package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/theta/internal/domain"
)

const summaryColumns = `id, summary_date, trades_opened, trades_closed, wins, losses,
	total_pnl, account_value, capital_at_risk, reflection, created_at`

// SummaryRepository handles daily summary database operations, upserted by
// date at end of day.
type SummaryRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewSummaryRepository creates a new daily summary repository.
func NewSummaryRepository(db *sql.DB, log zerolog.Logger) *SummaryRepository {
	return &SummaryRepository{
		db:  db,
		log: log.With().Str("repo", "daily_summary").Logger(),
	}
}

// Upsert writes the summary for its date, replacing any existing record.
func (r *SummaryRepository) Upsert(summary domain.DailySummary) error {
	query := `
		INSERT INTO daily_summaries
		(summary_date, trades_opened, trades_closed, wins, losses, total_pnl,
		 account_value, capital_at_risk, reflection, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(summary_date) DO UPDATE SET
			trades_opened = excluded.trades_opened,
			trades_closed = excluded.trades_closed,
			wins = excluded.wins,
			losses = excluded.losses,
			total_pnl = excluded.total_pnl,
			account_value = excluded.account_value,
			capital_at_risk = excluded.capital_at_risk,
			reflection = excluded.reflection
	`

	_, err := r.db.Exec(query,
		summary.SummaryDate,
		summary.TradesOpened,
		summary.TradesClosed,
		summary.Wins,
		summary.Losses,
		summary.TotalPnL,
		summary.AccountValue,
		summary.CapitalAtRisk,
		summary.Reflection,
		time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert daily summary for %s: %w", summary.SummaryDate, err)
	}

	r.log.Info().
		Str("summary_date", summary.SummaryDate).
		Float64("total_pnl", summary.TotalPnL).
		Msg("Daily summary saved")

	return nil
}

// UpdateReflection writes only the reflection text on an existing summary.
func (r *SummaryRepository) UpdateReflection(date, reflection string) error {
	_, err := r.db.Exec(
		"UPDATE daily_summaries SET reflection = ? WHERE summary_date = ?",
		reflection, date,
	)
	if err != nil {
		return fmt.Errorf("failed to update reflection for %s: %w", date, err)
	}
	return nil
}

// GetByDate retrieves the summary for a date. Returns (nil, nil) when absent.
func (r *SummaryRepository) GetByDate(date string) (*domain.DailySummary, error) {
	query := "SELECT " + summaryColumns + " FROM daily_summaries WHERE summary_date = ?"

	summary, err := r.scanSummary(r.db.QueryRow(query, date))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get daily summary for %s: %w", date, err)
	}

	return &summary, nil
}

// GetRecent retrieves the most recent summaries, newest first.
func (r *SummaryRepository) GetRecent(limit int) ([]domain.DailySummary, error) {
	query := "SELECT " + summaryColumns + ` FROM daily_summaries
		ORDER BY summary_date DESC
		LIMIT ?`

	rows, err := r.db.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get daily summaries: %w", err)
	}
	defer rows.Close()

	var summaries []domain.DailySummary
	for rows.Next() {
		summary, err := r.scanSummary(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan daily summary: %w", err)
		}
		summaries = append(summaries, summary)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating daily summaries: %w", err)
	}

	return summaries, nil
}

func (r *SummaryRepository) scanSummary(row rowScanner) (domain.DailySummary, error) {
	var s domain.DailySummary
	err := row.Scan(
		&s.ID,
		&s.SummaryDate,
		&s.TradesOpened,
		&s.TradesClosed,
		&s.Wins,
		&s.Losses,
		&s.TotalPnL,
		&s.AccountValue,
		&s.CapitalAtRisk,
		&s.Reflection,
		&s.CreatedAt,
	)
	return s, err
}
