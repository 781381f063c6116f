package rulesdb

import (
	"context"
	"testing"

	"rulebase/core"
	"rulebase/storage"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// newTestRule returns a valid active rule with a single condition
func newTestRule(id, version string) *core.Rule {
	r := &core.Rule{
		RuleID:       id,
		Name:         "Rule " + id,
		Description:  "Test rule " + id,
		Version:      version,
		RuleType:     core.RuleTypeStyle,
		Languages:    []string{"python"},
		Domains:      []string{"web"},
		ContentTypes: []core.ContentType{core.ContentTypeCode},
		Tags:         []string{"test"},
		Rules: []core.Condition{
			{Condition: "main_rule", Guideline: "Keep functions small", Priority: 8},
		},
		Active: true,
	}
	r.ApplyDefaults()
	return r
}

// setupTestDB returns an empty database backed by a temp-dir file store
func setupTestDB(t *testing.T) *Database {
	t.Helper()
	store, err := storage.NewFileStore(t.TempDir(), zap.NewNop().Sugar())
	require.NoError(t, err)

	db, err := New(store, &Options{Logger: zap.NewNop().Sugar(), SearchCacheSize: 16})
	require.NoError(t, err)
	require.NoError(t, db.Load(context.Background()))
	return db
}
