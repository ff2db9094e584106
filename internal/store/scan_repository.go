package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/theta/internal/domain"
)

const scanColumns = `id, scan_date, market_mood, trending_tickers, sector_momentum, caution_flags,
	raw_response, citations, vix, spy_price, spy_change_pct, candidate_pool, selected_picks,
	scan_model, analysis_model, created_at`

// ScanRepository handles market scan database operations. List and map
// fields are stored as JSON text columns.
type ScanRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewScanRepository creates a new market scan repository.
func NewScanRepository(db *sql.DB, log zerolog.Logger) *ScanRepository {
	return &ScanRepository{
		db:  db,
		log: log.With().Str("repo", "market_scan").Logger(),
	}
}

// Upsert writes the scan for its date, replacing any existing record.
// Exactly one scan exists per date.
func (r *ScanRepository) Upsert(scan domain.MarketScan) (int64, error) {
	trending := marshalJSON(scan.TrendingTickers, "[]")
	momentum := marshalJSON(scan.SectorMomentum, "{}")
	cautions := marshalJSON(scan.CautionFlags, "[]")
	citations := marshalJSON(scan.Citations, "[]")
	pool := marshalJSON(scan.CandidatePool, "[]")
	picks := marshalJSON(scan.SelectedPicks, "[]")

	query := `
		INSERT INTO market_scans
		(scan_date, market_mood, trending_tickers, sector_momentum, caution_flags,
		 raw_response, citations, vix, spy_price, spy_change_pct, candidate_pool, selected_picks,
		 scan_model, analysis_model, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(scan_date) DO UPDATE SET
			market_mood = excluded.market_mood,
			trending_tickers = excluded.trending_tickers,
			sector_momentum = excluded.sector_momentum,
			caution_flags = excluded.caution_flags,
			raw_response = excluded.raw_response,
			citations = excluded.citations,
			vix = excluded.vix,
			spy_price = excluded.spy_price,
			spy_change_pct = excluded.spy_change_pct,
			candidate_pool = excluded.candidate_pool,
			selected_picks = excluded.selected_picks,
			scan_model = excluded.scan_model,
			analysis_model = excluded.analysis_model
	`

	_, err := r.db.Exec(query,
		scan.ScanDate,
		string(scan.MarketMood),
		trending,
		momentum,
		cautions,
		scan.RawResponse,
		citations,
		nullFloat64Ptr(scan.VIX),
		nullFloat64Ptr(scan.SPYPrice),
		nullFloat64Ptr(scan.SPYChangePct),
		pool,
		picks,
		scan.ScanModel,
		scan.AnalysisModel,
		time.Now().Unix(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to upsert market scan for %s: %w", scan.ScanDate, err)
	}

	var id int64
	err = r.db.QueryRow("SELECT id FROM market_scans WHERE scan_date = ?", scan.ScanDate).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to read back market scan id for %s: %w", scan.ScanDate, err)
	}

	r.log.Info().
		Str("scan_date", scan.ScanDate).
		Str("mood", string(scan.MarketMood)).
		Int("trending", len(scan.TrendingTickers)).
		Msg("Market scan saved")

	return id, nil
}

// UpdatePicks replaces only the selected picks and analysis model on an
// existing scan. Used when the analysis phase re-runs for a date.
func (r *ScanRepository) UpdatePicks(scanDate string, picks []domain.TradePick, analysisModel string) error {
	query := `
		UPDATE market_scans
		SET selected_picks = ?, analysis_model = ?
		WHERE scan_date = ?
	`
	_, err := r.db.Exec(query, marshalJSON(picks, "[]"), analysisModel, scanDate)
	if err != nil {
		return fmt.Errorf("failed to update picks for %s: %w", scanDate, err)
	}
	return nil
}

// UpdateCandidatePool replaces only the candidate pool on an existing scan.
func (r *ScanRepository) UpdateCandidatePool(scanDate string, pool []string) error {
	query := `UPDATE market_scans SET candidate_pool = ? WHERE scan_date = ?`
	_, err := r.db.Exec(query, marshalJSON(pool, "[]"), scanDate)
	if err != nil {
		return fmt.Errorf("failed to update candidate pool for %s: %w", scanDate, err)
	}
	return nil
}

// GetByDate retrieves the scan for a date. Returns (nil, nil) when absent.
func (r *ScanRepository) GetByDate(date string) (*domain.MarketScan, error) {
	query := "SELECT " + scanColumns + " FROM market_scans WHERE scan_date = ?"

	scan, err := r.scanScan(r.db.QueryRow(query, date))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get market scan for %s: %w", date, err)
	}

	return &scan, nil
}

// GetLatest retrieves the most recent scan. Returns (nil, nil) when the
// table is empty.
func (r *ScanRepository) GetLatest() (*domain.MarketScan, error) {
	query := "SELECT " + scanColumns + " FROM market_scans ORDER BY scan_date DESC LIMIT 1"

	scan, err := r.scanScan(r.db.QueryRow(query))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest market scan: %w", err)
	}

	return &scan, nil
}

func (r *ScanRepository) scanScan(row rowScanner) (domain.MarketScan, error) {
	var s domain.MarketScan
	var mood, trending, momentum, cautions, citations, pool, picks string
	var vix, spyPrice, spyChange sql.NullFloat64

	err := row.Scan(
		&s.ID,
		&s.ScanDate,
		&mood,
		&trending,
		&momentum,
		&cautions,
		&s.RawResponse,
		&citations,
		&vix,
		&spyPrice,
		&spyChange,
		&pool,
		&picks,
		&s.ScanModel,
		&s.AnalysisModel,
		&s.CreatedAt,
	)
	if err != nil {
		return s, err
	}

	s.MarketMood = domain.MarketMood(mood)
	s.VIX = float64PtrFromNull(vix)
	s.SPYPrice = float64PtrFromNull(spyPrice)
	s.SPYChangePct = float64PtrFromNull(spyChange)

	// JSON columns are written by this repository; a decode failure means
	// hand-edited data, which we log and tolerate with empty values.
	unmarshalJSON(trending, &s.TrendingTickers, r.log)
	unmarshalJSON(momentum, &s.SectorMomentum, r.log)
	unmarshalJSON(cautions, &s.CautionFlags, r.log)
	unmarshalJSON(citations, &s.Citations, r.log)
	unmarshalJSON(pool, &s.CandidatePool, r.log)
	unmarshalJSON(picks, &s.SelectedPicks, r.log)

	return s, nil
}

func marshalJSON(v interface{}, fallback string) string {
	data, err := json.Marshal(v)
	if err != nil || v == nil {
		return fallback
	}
	s := string(data)
	if s == "null" {
		return fallback
	}
	return s
}

func unmarshalJSON(data string, v interface{}, log zerolog.Logger) {
	if data == "" {
		return
	}
	if err := json.Unmarshal([]byte(data), v); err != nil {
		log.Warn().Err(err).Str("data", data).Msg("Failed to decode JSON column")
	}
}
