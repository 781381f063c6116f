package rulesdb

import (
	"context"
	"errors"
	"testing"

	"rulebase/core"
	"rulebase/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestDatabase_AddAndGet(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	res, err := db.Add(ctx, newTestRule("CR-DB-1", "1.0.0"))
	require.NoError(t, err)
	assert.True(t, res.Activated)
	assert.False(t, res.Duplicate)

	got, err := db.Get("CR-DB-1")
	require.NoError(t, err)
	assert.Equal(t, "1.0.0", got.Version)
	assert.True(t, db.IsActive("CR-DB-1"))
}

func TestDatabase_AddDuplicateIsSoft(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	_, err := db.Add(ctx, newTestRule("CR-DB-2", "1.0.0"))
	require.NoError(t, err)

	res, err := db.Add(ctx, newTestRule("CR-DB-2", "1.0.0"))
	require.NoError(t, err)
	assert.True(t, res.Duplicate)
	assert.Len(t, db.History("CR-DB-2"), 1)
}

func TestDatabase_AddRejectsInvalidRule(t *testing.T) {
	db := setupTestDB(t)
	r := newTestRule("BAD-1", "1.0.0")

	_, err := db.Add(context.Background(), r)
	var schemaErr *core.SchemaError
	require.True(t, errors.As(err, &schemaErr))
	assert.Equal(t, "rule_id", schemaErr.Field)
}

func TestDatabase_BlockingConflictIsNeverIndexed(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	_, err := db.Add(ctx, newTestRule("CR-X-1", "1.0.0"))
	require.NoError(t, err)

	candidate := newTestRule("CR-X-2", "1.0.0")
	candidate.ConflictsWith = []string{"CR-X-1"}
	_, err = db.Add(ctx, candidate)

	var conflictErr *core.ConflictError
	require.True(t, errors.As(err, &conflictErr))
	assert.Equal(t, "CR-X-2", conflictErr.RuleID)
	assert.Equal(t, "conflict", core.ErrorKind(err))

	assert.False(t, db.IsActive("CR-X-2"))
	_, err = db.Get("CR-X-2")
	assert.ErrorIs(t, err, core.ErrRuleNotFound)

	results, err := db.Search(ctx, core.SearchFilter{})
	require.NoError(t, err)
	for _, r := range results {
		assert.NotEqual(t, "CR-X-2", r.Rule.RuleID)
	}
}

func TestDatabase_ScopeOverlapIsWarningOnly(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	_, err := db.Add(ctx, newTestRule("CR-O-1", "1.0.0"))
	require.NoError(t, err)
	res, err := db.Add(ctx, newTestRule("CR-O-2", "1.0.0"))
	require.NoError(t, err)

	require.Equal(t, 1, countByType(res.Conflicts, ConflictScopeOverlap))
	assert.Equal(t, core.SeverityWarning, res.Conflicts[0].Severity)
	assert.True(t, db.IsActive("CR-O-2"))
}

func TestDatabase_UpdateBumpsVersion(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	_, err := db.Add(ctx, newTestRule("CR-U-1", "1.0.0"))
	require.NoError(t, err)

	changed := newTestRule("CR-U-1", "1.0.0")
	changed.Description = "Updated description"
	res, err := db.Update(ctx, changed)
	require.NoError(t, err)
	assert.Equal(t, "1.0.1", res.Rule.Version)

	latest, err := db.Get("CR-U-1")
	require.NoError(t, err)
	assert.Equal(t, "Updated description", latest.Description)

	old, err := db.GetVersion("CR-U-1", "1.0.0")
	require.NoError(t, err)
	assert.Equal(t, "Test rule CR-U-1", old.Description)
	assert.Len(t, db.History("CR-U-1"), 2)
}

func TestDatabase_UpdateKeepsHigherExplicitVersion(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	_, err := db.Add(ctx, newTestRule("CR-U-2", "1.0.0"))
	require.NoError(t, err)

	res, err := db.Update(ctx, newTestRule("CR-U-2", "2.0.0"))
	require.NoError(t, err)
	assert.Equal(t, "2.0.0", res.Rule.Version)
}

func TestDatabase_UpdateUnknownRule(t *testing.T) {
	db := setupTestDB(t)
	_, err := db.Update(context.Background(), newTestRule("CR-U-404", "1.0.0"))
	assert.ErrorIs(t, err, core.ErrRuleNotFound)
}

func TestDatabase_MergeAppendsConditions(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	_, err := db.Add(ctx, newTestRule("CR-M-1", "1.0.0"))
	require.NoError(t, err)

	partial := &core.Rule{
		RuleID: "CR-M-1",
		Tags:   []string{"extra"},
		Rules: []core.Condition{
			{Condition: "second_rule", Guideline: "Name things clearly", Priority: 7},
		},
	}
	res, err := db.Merge(ctx, partial)
	require.NoError(t, err)
	assert.Equal(t, "1.0.1", res.Rule.Version)
	require.Len(t, res.Rule.Rules, 2)
	assert.Equal(t, "main_rule", res.Rule.Rules[0].Condition)
	assert.Equal(t, "second_rule", res.Rule.Rules[1].Condition)
	assert.ElementsMatch(t, []string{"test", "extra"}, res.Rule.Tags)
	assert.Equal(t, "Rule CR-M-1", res.Rule.Name)
}

func TestDatabase_MergeOnMissingRuleAdds(t *testing.T) {
	db := setupTestDB(t)
	res, err := db.Merge(context.Background(), newTestRule("CR-M-2", "1.0.0"))
	require.NoError(t, err)
	assert.Equal(t, "1.0.0", res.Rule.Version)
	assert.True(t, db.IsActive("CR-M-2"))
}

func TestDatabase_MergeUnchangedIsDuplicate(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	_, err := db.Add(ctx, newTestRule("CR-M-3", "1.0.0"))
	require.NoError(t, err)

	res, err := db.Merge(ctx, newTestRule("CR-M-3", "1.0.0"))
	require.NoError(t, err)
	assert.True(t, res.Duplicate)
	assert.Equal(t, "1.0.0", res.Rule.Version)
	assert.Len(t, db.History("CR-M-3"), 1)

	// an explicitly newer version is stored even with identical content
	res, err = db.Merge(ctx, newTestRule("CR-M-3", "1.1.0"))
	require.NoError(t, err)
	assert.False(t, res.Duplicate)
	assert.Equal(t, "1.1.0", res.Rule.Version)
}

func TestDatabase_DeactivateAndActivate(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	_, err := db.Add(ctx, newTestRule("CR-A-9", "1.0.0"))
	require.NoError(t, err)

	require.NoError(t, db.Deactivate(ctx, "CR-A-9"))
	assert.False(t, db.IsActive("CR-A-9"))

	results, err := db.Search(ctx, core.SearchFilter{})
	require.NoError(t, err)
	assert.Empty(t, results)

	got, err := db.GetVersion("CR-A-9", "1.0.0")
	require.NoError(t, err)
	assert.False(t, got.Active)

	require.NoError(t, db.Activate(ctx, "CR-A-9"))
	assert.True(t, db.IsActive("CR-A-9"))

	assert.ErrorIs(t, db.Deactivate(ctx, "CR-NOPE"), core.ErrRuleNotFound)
}

func TestDatabase_RecordUsageRunningMean(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	_, err := db.Add(ctx, newTestRule("CR-R-1", "1.0.0"))
	require.NoError(t, err)

	require.NoError(t, db.RecordUsage(ctx, "CR-R-1", true))
	require.NoError(t, db.RecordUsage(ctx, "CR-R-1", false))

	got, err := db.Get("CR-R-1")
	require.NoError(t, err)
	assert.Equal(t, 2, got.UsageCount)
	assert.InDelta(t, 0.5, got.SuccessRate, 1e-9)
}

func TestDatabase_LoadRestoresPersistedVersions(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	logger := zap.NewNop().Sugar()

	store, err := storage.NewFileStore(dir, logger)
	require.NoError(t, err)
	db, err := New(store, &Options{Logger: logger})
	require.NoError(t, err)
	require.NoError(t, db.Load(ctx))

	_, err = db.Add(ctx, newTestRule("CR-L-1", "1.0.0"))
	require.NoError(t, err)
	_, err = db.Add(ctx, newTestRule("CR-L-1", "1.1.0"))
	require.NoError(t, err)
	require.NoError(t, db.Deactivate(ctx, "CR-L-1"))

	reopened, err := storage.NewFileStore(dir, logger)
	require.NoError(t, err)
	db2, err := New(reopened, nil)
	require.NoError(t, err)
	require.NoError(t, db2.Load(ctx))

	latest, err := db2.Get("CR-L-1")
	require.NoError(t, err)
	assert.Equal(t, "1.1.0", latest.Version)
	assert.False(t, latest.Active)
	assert.False(t, db2.IsActive("CR-L-1"))
	assert.Len(t, db2.History("CR-L-1"), 2)
}

func TestDatabase_SearchRespectsCanceledContext(t *testing.T) {
	db := setupTestDB(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := db.Search(ctx, core.SearchFilter{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDatabase_StatsOverLatestVersions(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	_, err := db.Add(ctx, newTestRule("CR-ST-1", "1.0.0"))
	require.NoError(t, err)
	_, err = db.Add(ctx, newTestRule("CR-ST-1", "1.1.0"))
	require.NoError(t, err)

	other := newTestRule("CR-ST-2", "1.0.0")
	other.Languages = []string{"go"}
	other.Domains = []string{"cli"}
	other.RuleType = core.RuleTypeSecurity
	_, err = db.Add(ctx, other)
	require.NoError(t, err)
	require.NoError(t, db.RecordUsage(ctx, "CR-ST-2", true))

	st := db.Stats(StatsFilter{})
	assert.Equal(t, 2, st.TotalRules)
	assert.Equal(t, 3, st.TotalVersions)
	assert.Equal(t, 2, st.ActiveRules)
	assert.Equal(t, 2, st.Languages)
	assert.Equal(t, map[string]int{"CR-ST-1": 2, "CR-ST-2": 1}, st.VersionDistribution)
	assert.Equal(t, 1, st.RulesByType["security"])
	assert.Equal(t, 1, st.Usage.TotalUsage)
	assert.Equal(t, "Rule CR-ST-2 (1 uses)", st.Usage.MostUsedRule)

	filtered := db.Stats(StatsFilter{Languages: []string{"go"}})
	assert.Equal(t, 1, filtered.TotalRules)
	assert.Equal(t, 1, filtered.RulesByLanguage["go"])
}

func TestDatabase_AvailableTags(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	assert.Empty(t, db.AvailableTags().Tags)

	a := newTestRule("CR-TG-1", "1.0.0")
	a.Tags = []string{"Naming", "clarity"}
	b := newTestRule("CR-TG-2", "1.0.0")
	b.Languages = []string{"Go"}
	b.Domains = []string{"cli"}
	b.RuleType = core.RuleTypeSecurity
	b.Active = false
	for _, r := range []*core.Rule{a, b} {
		_, err := db.Add(ctx, r)
		require.NoError(t, err)
	}

	tags := db.AvailableTags()
	assert.Equal(t, []string{"clarity", "naming"}, tags.Tags)
	assert.Equal(t, []string{"python"}, tags.Languages)
	assert.Equal(t, []string{"web"}, tags.Domains)
	assert.Equal(t, []string{"style"}, tags.RuleTypes)

	require.NoError(t, db.Activate(ctx, "CR-TG-2"))
	tags = db.AvailableTags()
	assert.Equal(t, []string{"go", "python"}, tags.Languages)
	assert.Equal(t, []string{"security", "style"}, tags.RuleTypes)
}

func TestDatabase_RebuildPurgesSearchCache(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	_, err := db.Add(ctx, newTestRule("CR-PC-1", "1.0.0"))
	require.NoError(t, err)
	_, err = db.Search(ctx, core.SearchFilter{Languages: []string{"python"}})
	require.NoError(t, err)
	require.Equal(t, 1, db.searcher.cache.Len())

	_, err = db.Add(ctx, newTestRule("CR-PC-2", "1.0.0"))
	require.NoError(t, err)
	assert.Zero(t, db.searcher.cache.Len())
}
