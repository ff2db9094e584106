// Package store provides repository implementations over the trader
// database: trades, market scans, reviews, summaries, learned rules, and
// runtime settings. All records are owned by this package; callers receive
// value copies.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/theta/internal/domain"
)

// tradeColumns is the list of columns for the trades table.
// Used to avoid SELECT * which can break when schema changes.
// Column order must match scanTrade().
const tradeColumns = `id, ticker, strategy, direction, sector, strike, strike_sell, strike_buy,
	spread_width, expiry, dte, contracts, entry_price, entry_date, entry_spot, entry_iv,
	entry_delta, exit_price, exit_date, exit_spot, exit_reason, pnl_dollars, pnl_percent,
	max_profit, max_loss, market_scan_id, ai_rationale, ai_confidence, model_used,
	stop_loss_price, profit_target_price, status, created_at`

// TradeRepository handles trade database operations.
type TradeRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewTradeRepository creates a new trade repository.
func NewTradeRepository(db *sql.DB, log zerolog.Logger) *TradeRepository {
	return &TradeRepository{
		db:  db,
		log: log.With().Str("repo", "trade").Logger(),
	}
}

// Insert creates a new open trade from a draft and returns its id.
func (r *TradeRepository) Insert(draft domain.TradeDraft) (int64, error) {
	query := `
		INSERT INTO trades
		(ticker, strategy, direction, sector, strike, strike_sell, strike_buy, spread_width,
		 expiry, dte, contracts, entry_price, entry_date, entry_spot, entry_iv, entry_delta,
		 max_profit, max_loss, market_scan_id, ai_rationale, ai_confidence, model_used,
		 stop_loss_price, profit_target_price, status, created_at)
		VALUES (?, ?, 'short', ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 'open', ?)
	`

	result, err := r.db.Exec(query,
		strings.ToUpper(strings.TrimSpace(draft.Ticker)),
		string(draft.Strategy),
		draft.Sector,
		draft.Strike,
		nullFloat64Ptr(draft.StrikeSell),
		nullFloat64Ptr(draft.StrikeBuy),
		nullFloat64Ptr(draft.SpreadWidth),
		draft.Expiry,
		draft.DTE,
		draft.Contracts,
		draft.EntryPrice,
		draft.EntryDate,
		nullFloat64Ptr(draft.EntrySpot),
		nullFloat64Ptr(draft.EntryIV),
		nullFloat64Ptr(draft.EntryDelta),
		draft.MaxProfit,
		draft.MaxLoss,
		nullInt64Ptr(draft.MarketScanID),
		nullString(draft.AIRationale),
		draft.AIConfidence,
		nullString(draft.ModelUsed),
		draft.StopLossPrice,
		draft.ProfitTargetPrice,
		time.Now().Unix(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert trade: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get inserted trade id: %w", err)
	}

	r.log.Info().
		Int64("trade_id", id).
		Str("ticker", draft.Ticker).
		Str("strategy", string(draft.Strategy)).
		Float64("entry_price", draft.EntryPrice).
		Msg("Trade opened")

	return id, nil
}

// Close records the exit of an open trade. Closing an already-closed trade
// is a no-op so a trade never transitions back to open or double-writes
// its exit fields.
func (r *TradeRepository) Close(id int64, exit domain.ExitData) error {
	query := `
		UPDATE trades
		SET exit_price = ?, exit_date = ?, exit_spot = ?, exit_reason = ?,
		    pnl_dollars = ?, pnl_percent = ?, status = 'closed'
		WHERE id = ? AND status = 'open'
	`

	result, err := r.db.Exec(query,
		exit.ExitPrice,
		exit.ExitDate,
		nullFloat64Ptr(exit.ExitSpot),
		string(exit.ExitReason),
		exit.PnLDollars,
		exit.PnLPercent,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to close trade %d: %w", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check close result for trade %d: %w", id, err)
	}
	if affected == 0 {
		return fmt.Errorf("trade %d is not open", id)
	}

	r.log.Info().
		Int64("trade_id", id).
		Str("exit_reason", string(exit.ExitReason)).
		Float64("pnl_dollars", exit.PnLDollars).
		Msg("Trade closed")

	return nil
}

// Get retrieves a single trade by id. Returns (nil, nil) when not found.
func (r *TradeRepository) Get(id int64) (*domain.Trade, error) {
	query := "SELECT " + tradeColumns + " FROM trades WHERE id = ?"

	trade, err := scanTrade(r.db.QueryRow(query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get trade %d: %w", id, err)
	}

	return &trade, nil
}

// GetOpen retrieves all open trades, oldest first.
func (r *TradeRepository) GetOpen() ([]domain.Trade, error) {
	query := "SELECT " + tradeColumns + " FROM trades WHERE status = 'open' ORDER BY id ASC"
	return r.queryTrades(query)
}

// GetClosed retrieves closed trades, most recently closed first.
func (r *TradeRepository) GetClosed(limit int) ([]domain.Trade, error) {
	query := "SELECT " + tradeColumns + ` FROM trades
		WHERE status = 'closed'
		ORDER BY exit_date DESC, id DESC
		LIMIT ?`
	return r.queryTrades(query, limit)
}

// GetClosedSince retrieves trades closed on or after the given ISO date.
func (r *TradeRepository) GetClosedSince(date string) ([]domain.Trade, error) {
	query := "SELECT " + tradeColumns + ` FROM trades
		WHERE status = 'closed' AND exit_date >= ?
		ORDER BY exit_date ASC, id ASC`
	return r.queryTrades(query, date)
}

// GetClosedOn retrieves trades closed on exactly the given ISO date.
func (r *TradeRepository) GetClosedOn(date string) ([]domain.Trade, error) {
	query := "SELECT " + tradeColumns + ` FROM trades
		WHERE status = 'closed' AND exit_date = ?
		ORDER BY id ASC`
	return r.queryTrades(query, date)
}

// GetAll retrieves all trades regardless of status, most recent first.
func (r *TradeRepository) GetAll(limit int) ([]domain.Trade, error) {
	query := "SELECT " + tradeColumns + " FROM trades ORDER BY id DESC LIMIT ?"
	return r.queryTrades(query, limit)
}

// GetByTicker retrieves trades for a ticker, most recent first.
func (r *TradeRepository) GetByTicker(ticker string, limit int) ([]domain.Trade, error) {
	query := "SELECT " + tradeColumns + ` FROM trades
		WHERE ticker = ?
		ORDER BY id DESC
		LIMIT ?`
	return r.queryTrades(query, strings.ToUpper(strings.TrimSpace(ticker)), limit)
}

// GetOpenedOn retrieves trades entered on the given ISO date.
func (r *TradeRepository) GetOpenedOn(date string) ([]domain.Trade, error) {
	query := "SELECT " + tradeColumns + ` FROM trades
		WHERE entry_date = ?
		ORDER BY id ASC`
	return r.queryTrades(query, date)
}

// CountOpen returns the number of open trades.
func (r *TradeRepository) CountOpen() (int, error) {
	var count int
	err := r.db.QueryRow("SELECT COUNT(*) FROM trades WHERE status = 'open'").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count open trades: %w", err)
	}
	return count, nil
}

func (r *TradeRepository) queryTrades(query string, args ...interface{}) ([]domain.Trade, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query trades: %w", err)
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

	return trades, nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTrade(row rowScanner) (domain.Trade, error) {
	var t domain.Trade
	var strikeSell, strikeBuy, spreadWidth sql.NullFloat64
	var entrySpot, entryIV, entryDelta sql.NullFloat64
	var exitPrice, exitSpot, pnlDollars, pnlPercent sql.NullFloat64
	var maxProfit, maxLoss, aiConfidence sql.NullFloat64
	var exitDate, exitReason, aiRationale, modelUsed sql.NullString
	var marketScanID sql.NullInt64
	var strategy, status string

	err := row.Scan(
		&t.ID,
		&t.Ticker,
		&strategy,
		&t.Direction,
		&t.Sector,
		&t.Strike,
		&strikeSell,
		&strikeBuy,
		&spreadWidth,
		&t.Expiry,
		&t.DTE,
		&t.Contracts,
		&t.EntryPrice,
		&t.EntryDate,
		&entrySpot,
		&entryIV,
		&entryDelta,
		&exitPrice,
		&exitDate,
		&exitSpot,
		&exitReason,
		&pnlDollars,
		&pnlPercent,
		&maxProfit,
		&maxLoss,
		&marketScanID,
		&aiRationale,
		&aiConfidence,
		&modelUsed,
		&t.StopLossPrice,
		&t.ProfitTargetPrice,
		&status,
		&t.CreatedAt,
	)
	if err != nil {
		return t, err
	}

	t.Strategy = domain.Strategy(strategy)
	t.Status = domain.TradeStatus(status)
	t.Ticker = strings.ToUpper(strings.TrimSpace(t.Ticker))

	t.StrikeSell = float64PtrFromNull(strikeSell)
	t.StrikeBuy = float64PtrFromNull(strikeBuy)
	t.SpreadWidth = float64PtrFromNull(spreadWidth)
	t.EntrySpot = float64PtrFromNull(entrySpot)
	t.EntryIV = float64PtrFromNull(entryIV)
	t.EntryDelta = float64PtrFromNull(entryDelta)
	t.ExitPrice = float64PtrFromNull(exitPrice)
	t.ExitSpot = float64PtrFromNull(exitSpot)
	t.PnLDollars = float64PtrFromNull(pnlDollars)
	t.PnLPercent = float64PtrFromNull(pnlPercent)
	t.MaxProfit = float64PtrFromNull(maxProfit)
	t.MaxLoss = float64PtrFromNull(maxLoss)

	if exitDate.Valid {
		t.ExitDate = &exitDate.String
	}
	if exitReason.Valid {
		reason := domain.ExitReason(exitReason.String)
		t.ExitReason = &reason
	}
	if aiRationale.Valid {
		t.AIRationale = &aiRationale.String
	}
	if aiConfidence.Valid {
		t.AIConfidence = &aiConfidence.Float64
	}
	if modelUsed.Valid {
		t.ModelUsed = &modelUsed.String
	}
	if marketScanID.Valid {
		t.MarketScanID = &marketScanID.Int64
	}

	return t, nil
}

// Helper functions

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{Valid: false}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullFloat64Ptr(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{Valid: false}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func nullInt64Ptr(i *int64) sql.NullInt64 {
	if i == nil {
		return sql.NullInt64{Valid: false}
	}
	return sql.NullInt64{Int64: *i, Valid: true}
}

func float64PtrFromNull(f sql.NullFloat64) *float64 {
	if !f.Valid {
		return nil
	}
	v := f.Float64
	return &v
}
