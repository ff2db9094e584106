package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/theta/internal/domain"
)

const reviewColumns = `id, trade_id, raw_review, lesson, what_worked, what_failed,
	should_repeat, model_used, created_at`

// ReviewRepository handles trade review database operations. Reviews are
// append-only with at most one per trade.
type ReviewRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewReviewRepository creates a new trade review repository.
func NewReviewRepository(db *sql.DB, log zerolog.Logger) *ReviewRepository {
	return &ReviewRepository{
		db:  db,
		log: log.With().Str("repo", "trade_review").Logger(),
	}
}

// Insert stores a review for a trade. If the trade already has a review the
// insert is skipped silently.
func (r *ReviewRepository) Insert(review domain.TradeReview) error {
	exists, err := r.HasReview(review.TradeID)
	if err != nil {
		return err
	}
	if exists {
		r.log.Debug().
			Int64("trade_id", review.TradeID).
			Msg("Trade already reviewed, skipping")
		return nil
	}

	query := `
		INSERT INTO trade_reviews
		(trade_id, raw_review, lesson, what_worked, what_failed, should_repeat, model_used, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.Exec(query,
		review.TradeID,
		review.RawReview,
		review.Lesson,
		review.WhatWorked,
		review.WhatFailed,
		boolToInt(review.ShouldRepeat),
		review.ModelUsed,
		time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert review for trade %d: %w", review.TradeID, err)
	}

	r.log.Info().Int64("trade_id", review.TradeID).Msg("Trade review saved")
	return nil
}

// HasReview reports whether the trade already has a review.
func (r *ReviewRepository) HasReview(tradeID int64) (bool, error) {
	var exists int
	err := r.db.QueryRow("SELECT 1 FROM trade_reviews WHERE trade_id = ? LIMIT 1", tradeID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check review existence for trade %d: %w", tradeID, err)
	}
	return true, nil
}

// GetByTrade retrieves the reviews for a trade, oldest first.
func (r *ReviewRepository) GetByTrade(tradeID int64) ([]domain.TradeReview, error) {
	query := "SELECT " + reviewColumns + " FROM trade_reviews WHERE trade_id = ? ORDER BY id ASC"

	rows, err := r.db.Query(query, tradeID)
	if err != nil {
		return nil, fmt.Errorf("failed to get reviews for trade %d: %w", tradeID, err)
	}
	defer rows.Close()

	var reviews []domain.TradeReview
	for rows.Next() {
		var rv domain.TradeReview
		var shouldRepeat int
		err := rows.Scan(
			&rv.ID,
			&rv.TradeID,
			&rv.RawReview,
			&rv.Lesson,
			&rv.WhatWorked,
			&rv.WhatFailed,
			&shouldRepeat,
			&rv.ModelUsed,
			&rv.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan review: %w", err)
		}
		rv.ShouldRepeat = shouldRepeat != 0
		reviews = append(reviews, rv)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating reviews: %w", err)
	}

	return reviews, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
