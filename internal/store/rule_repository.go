package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/theta/internal/domain"
)

const ruleColumns = `id, rule_text, category, source_trade_ids, confidence,
	times_applied, times_helpful, active, created_at`

// Pruning thresholds: a rule applied at least this many times with less
// than minHelpfulRatio helpfulness is deactivated.
const (
	pruneMinApplications = 10
	pruneHelpfulRatio    = 0.25
)

// RuleRepository handles learned rule database operations. Rules start at
// confidence 0.5 and drift with their helpful ratio as they are applied.
type RuleRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRuleRepository creates a new learned rule repository.
func NewRuleRepository(db *sql.DB, log zerolog.Logger) *RuleRepository {
	return &RuleRepository{
		db:  db,
		log: log.With().Str("repo", "learned_rule").Logger(),
	}
}

// Insert stores a new learned rule and returns its id. Confidence defaults
// to 0.5 when the draft leaves it zero.
func (r *RuleRepository) Insert(rule domain.LearnedRule) (int64, error) {
	confidence := rule.Confidence
	if confidence == 0 {
		confidence = 0.5
	}
	category := rule.Category
	if category == "" {
		category = domain.RuleCategoryGeneral
	}

	query := `
		INSERT INTO learned_rules
		(rule_text, category, source_trade_ids, confidence, times_applied, times_helpful, active, created_at)
		VALUES (?, ?, ?, ?, 0, 0, 1, ?)
	`

	result, err := r.db.Exec(query,
		rule.RuleText,
		string(category),
		marshalJSON(rule.SourceTradeIDs, "[]"),
		confidence,
		time.Now().Unix(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert learned rule: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get inserted rule id: %w", err)
	}

	r.log.Info().
		Int64("rule_id", id).
		Str("category", string(category)).
		Msg("Learned rule saved")

	return id, nil
}

// GetActive retrieves all active rules, highest confidence first.
func (r *RuleRepository) GetActive() ([]domain.LearnedRule, error) {
	query := "SELECT " + ruleColumns + ` FROM learned_rules
		WHERE active = 1
		ORDER BY confidence DESC, id ASC`

	rows, err := r.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to get active rules: %w", err)
	}
	defer rows.Close()

	var rules []domain.LearnedRule
	for rows.Next() {
		rule, err := r.scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan rule: %w", err)
		}
		rules = append(rules, rule)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rules: %w", err)
	}

	return rules, nil
}

// UpdateEffectiveness records one application of a rule. The helpful counter
// moves with wasHelpful and confidence drifts by 0.05 toward the observed
// helpful ratio: up when the ratio is at least 0.7, down when at most 0.3.
func (r *RuleRepository) UpdateEffectiveness(id int64, wasHelpful bool) error {
	var applied, helpful int
	var confidence float64
	err := r.db.QueryRow(
		"SELECT times_applied, times_helpful, confidence FROM learned_rules WHERE id = ?",
		id,
	).Scan(&applied, &helpful, &confidence)
	if err != nil {
		return fmt.Errorf("failed to load rule %d: %w", id, err)
	}

	applied++
	if wasHelpful {
		helpful++
	}

	ratio := float64(helpful) / float64(applied)
	switch {
	case ratio >= 0.7:
		confidence = min(1.0, confidence+0.05)
	case ratio <= 0.3:
		confidence = max(0.0, confidence-0.05)
	}

	_, err = r.db.Exec(`
		UPDATE learned_rules
		SET times_applied = ?, times_helpful = ?, confidence = ?
		WHERE id = ?
	`, applied, helpful, confidence, id)
	if err != nil {
		return fmt.Errorf("failed to update rule %d effectiveness: %w", id, err)
	}

	return nil
}

// PruneWeak deactivates rules that have been applied enough times to judge
// and have proven unhelpful. Returns the number of rules deactivated.
func (r *RuleRepository) PruneWeak() (int, error) {
	query := `
		UPDATE learned_rules
		SET active = 0
		WHERE active = 1
		  AND times_applied >= ?
		  AND CAST(times_helpful AS REAL) / times_applied < ?
	`

	result, err := r.db.Exec(query, pruneMinApplications, pruneHelpfulRatio)
	if err != nil {
		return 0, fmt.Errorf("failed to prune weak rules: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count pruned rules: %w", err)
	}

	if affected > 0 {
		r.log.Info().Int64("pruned", affected).Msg("Weak rules deactivated")
	}

	return int(affected), nil
}

func (r *RuleRepository) scanRule(row rowScanner) (domain.LearnedRule, error) {
	var rule domain.LearnedRule
	var category, sourceIDs string
	var active int

	err := row.Scan(
		&rule.ID,
		&rule.RuleText,
		&category,
		&sourceIDs,
		&rule.Confidence,
		&rule.TimesApplied,
		&rule.TimesHelpful,
		&active,
		&rule.CreatedAt,
	)
	if err != nil {
		return rule, err
	}

	rule.Category = domain.RuleCategory(category)
	rule.Active = active != 0
	unmarshalJSON(sourceIDs, &rule.SourceTradeIDs, r.log)

	return rule, nil
}
