package store

import (
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/theta/internal/database"
	"github.com/aristath/theta/internal/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := database.New(database.Config{Path: filepath.Join(t.TempDir(), "trader.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	st, err := New(db, zerolog.Nop())
	require.NoError(t, err)
	return st
}

func activeRule(t *testing.T, st *Store, id int64) domain.LearnedRule {
	t.Helper()
	rules, err := st.Rules.GetActive()
	require.NoError(t, err)
	for _, rule := range rules {
		if rule.ID == id {
			return rule
		}
	}
	t.Fatalf("rule %d not active", id)
	return domain.LearnedRule{}
}

func TestRuleInsertDefaults(t *testing.T) {
	st := newTestStore(t)

	id, err := st.Rules.Insert(domain.LearnedRule{RuleText: "Skip tickers within three days of earnings"})
	require.NoError(t, err)

	rule := activeRule(t, st, id)
	assert.Equal(t, domain.RuleCategoryGeneral, rule.Category)
	assert.InDelta(t, 0.5, rule.Confidence, 0.001)
	assert.Zero(t, rule.TimesApplied)
	assert.Zero(t, rule.TimesHelpful)
	assert.True(t, rule.Active)
}

func TestUpdateEffectivenessDriftsConfidenceUp(t *testing.T) {
	st := newTestStore(t)
	id, err := st.Rules.Insert(domain.LearnedRule{RuleText: "Prefer spreads over naked puts in high VIX"})
	require.NoError(t, err)

	// Every application helpful keeps the ratio at 1.0, above the 0.7 gate.
	require.NoError(t, st.Rules.UpdateEffectiveness(id, true))
	rule := activeRule(t, st, id)
	assert.Equal(t, 1, rule.TimesApplied)
	assert.Equal(t, 1, rule.TimesHelpful)
	assert.InDelta(t, 0.55, rule.Confidence, 0.001)

	require.NoError(t, st.Rules.UpdateEffectiveness(id, true))
	rule = activeRule(t, st, id)
	assert.InDelta(t, 0.60, rule.Confidence, 0.001)
}

func TestUpdateEffectivenessDriftsConfidenceDown(t *testing.T) {
	st := newTestStore(t)
	id, err := st.Rules.Insert(domain.LearnedRule{RuleText: "Chase momentum names on Fridays"})
	require.NoError(t, err)

	require.NoError(t, st.Rules.UpdateEffectiveness(id, false))
	rule := activeRule(t, st, id)
	assert.Equal(t, 1, rule.TimesApplied)
	assert.Zero(t, rule.TimesHelpful)
	assert.InDelta(t, 0.45, rule.Confidence, 0.001, "ratio 0.0 is at or below the 0.3 gate")
}

func TestUpdateEffectivenessDeadBandHoldsConfidence(t *testing.T) {
	st := newTestStore(t)
	id, err := st.Rules.Insert(domain.LearnedRule{RuleText: "Take profit early into FOMC weeks"})
	require.NoError(t, err)

	// One helpful, one not: ratio 0.5 sits between the gates.
	require.NoError(t, st.Rules.UpdateEffectiveness(id, true))
	require.NoError(t, st.Rules.UpdateEffectiveness(id, false))

	rule := activeRule(t, st, id)
	assert.Equal(t, 2, rule.TimesApplied)
	assert.Equal(t, 1, rule.TimesHelpful)
	assert.InDelta(t, 0.55, rule.Confidence, 0.001, "only the first application moved it")
}

func TestUpdateEffectivenessClampsConfidence(t *testing.T) {
	st := newTestStore(t)

	high, err := st.Rules.Insert(domain.LearnedRule{RuleText: "Sell puts only on index ETFs", Confidence: 0.98})
	require.NoError(t, err)
	require.NoError(t, st.Rules.UpdateEffectiveness(high, true))
	require.NoError(t, st.Rules.UpdateEffectiveness(high, true))
	assert.InDelta(t, 1.0, activeRule(t, st, high).Confidence, 0.001)

	low, err := st.Rules.Insert(domain.LearnedRule{RuleText: "Double up after a loss", Confidence: 0.07})
	require.NoError(t, err)
	require.NoError(t, st.Rules.UpdateEffectiveness(low, false))
	require.NoError(t, st.Rules.UpdateEffectiveness(low, false))
	assert.InDelta(t, 0.0, activeRule(t, st, low).Confidence, 0.001)
}

func TestPruneWeakDeactivatesProvenUnhelpfulRules(t *testing.T) {
	st := newTestStore(t)

	weak, err := st.Rules.Insert(domain.LearnedRule{RuleText: "Fade every gap up"})
	require.NoError(t, err)
	young, err := st.Rules.Insert(domain.LearnedRule{RuleText: "Size down into December"})
	require.NoError(t, err)

	// Ten applications with two helpful: ratio 0.2, below the 0.25 cutoff.
	for i := 0; i < 10; i++ {
		require.NoError(t, st.Rules.UpdateEffectiveness(weak, i < 2))
	}
	// Nine equally bad applications stay under the ten-application gate.
	for i := 0; i < 9; i++ {
		require.NoError(t, st.Rules.UpdateEffectiveness(young, i < 1))
	}

	pruned, err := st.Rules.PruneWeak()
	require.NoError(t, err)
	assert.Equal(t, 1, pruned)

	rules, err := st.Rules.GetActive()
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, young, rules[0].ID)

	// A second pass finds nothing new.
	pruned, err = st.Rules.PruneWeak()
	require.NoError(t, err)
	assert.Zero(t, pruned)
}

func TestPruneWeakSparesHelpfulRules(t *testing.T) {
	st := newTestStore(t)
	id, err := st.Rules.Insert(domain.LearnedRule{RuleText: "Keep DTE between 30 and 45"})
	require.NoError(t, err)

	// Exactly the 0.25 ratio at twelve applications survives the strict cutoff.
	for i := 0; i < 12; i++ {
		require.NoError(t, st.Rules.UpdateEffectiveness(id, i < 3))
	}

	pruned, err := st.Rules.PruneWeak()
	require.NoError(t, err)
	assert.Zero(t, pruned)

	rule := activeRule(t, st, id)
	assert.Equal(t, 12, rule.TimesApplied)
	assert.Equal(t, 3, rule.TimesHelpful)
}
