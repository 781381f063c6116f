package rulesdb

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"rulebase/core"
	"rulebase/metrics"
	"rulebase/storage"

	"go.uber.org/zap"
)

// DefaultSearchCacheSize is the number of cached search result sets
const DefaultSearchCacheSize = 256

// Options configures a Database.
type Options struct {
	Logger          *zap.SugaredLogger
	SearchCacheSize int
	// Publisher, when set, receives every newly active latest version
	Publisher storage.RulePublisher
}

// AddResult describes the outcome of Add.
type AddResult struct {
	Rule      *core.Rule `json:"rule"`
	Duplicate bool       `json:"duplicate"`
	Activated bool       `json:"activated"`
	Conflicts []Conflict `json:"conflicts,omitempty"`
}

// Database ties the version manager, conflict detector, index and searcher to a store.
// Mutations are serialized by a single writer lock; searches read the current index
// generation without locking.
type Database struct {
	writeMu   sync.Mutex
	store     storage.RuleVersionStore
	versions  *VersionManager
	detector  *ConflictDetector
	index     *Index
	searcher  *Searcher
	publisher storage.RulePublisher
	logger    *zap.SugaredLogger
}

// New creates a database over store. Call Load to populate it from persisted versions.
func New(store storage.RuleVersionStore, opts *Options) (*Database, error) {
	if opts == nil {
		opts = &Options{SearchCacheSize: DefaultSearchCacheSize}
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	index := NewIndex()
	searcher, err := NewSearcher(index, opts.SearchCacheSize)
	if err != nil {
		return nil, err
	}
	return &Database{
		store:     store,
		versions:  NewVersionManager(logger),
		detector:  NewConflictDetector(),
		index:     index,
		searcher:  searcher,
		publisher: opts.Publisher,
		logger:    logger,
	}, nil
}

// Load registers every persisted version, rebuilds the index and reports corpus conflicts.
func (db *Database) Load(ctx context.Context) error {
	db.writeMu.Lock()
	defer db.writeMu.Unlock()

	rules, err := db.store.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to load rules: %w", err)
	}

	loaded := 0
	for _, r := range rules {
		r.ApplyDefaults()
		if err := r.Validate(); err != nil {
			db.logger.Warnw("Skipping invalid stored rule", "rule_id", r.RuleID, "version", r.Version, "error", err)
			continue
		}
		if ok, _ := db.versions.Register(r); ok {
			loaded++
		}
	}
	db.rebuildLocked()

	conflicts := db.detector.DetectAll(db.index.ActiveRules())
	for _, c := range conflicts {
		metrics.ConflictsDetected.WithLabelValues(string(c.Type)).Inc()
	}
	db.logger.Infow("Rule database loaded",
		"versions", loaded,
		"rules", len(db.versions.IDs()),
		"active", len(db.index.ActiveIDs()),
		"conflicts", len(conflicts))
	return nil
}

// Add validates, screens and stores a new rule version.
// Error-severity conflicts return a *core.ConflictError and nothing is stored.
// Re-adding an existing (rule_id, version) is reported as Duplicate with a nil error.
func (db *Database) Add(ctx context.Context, rule *core.Rule) (*AddResult, error) {
	db.writeMu.Lock()
	defer db.writeMu.Unlock()
	return db.addLocked(ctx, rule.Clone())
}

func (db *Database) addLocked(ctx context.Context, rule *core.Rule) (*AddResult, error) {
	rule.ApplyDefaults()
	if err := rule.Validate(); err != nil {
		metrics.RulesAdded.WithLabelValues("invalid").Inc()
		return nil, err
	}

	if existing, ok := db.versions.Version(rule.RuleID, rule.Version); ok {
		metrics.RulesAdded.WithLabelValues("duplicate").Inc()
		db.logger.Debugw("Rule version already registered", "rule_id", rule.RuleID, "version", rule.Version)
		return &AddResult{Rule: existing.Clone(), Duplicate: true}, nil
	}

	conflicts := db.detector.Detect(rule, db.index.ActiveRules())
	for _, c := range conflicts {
		metrics.ConflictsDetected.WithLabelValues(string(c.Type)).Inc()
	}
	if blocking := Blocking(conflicts); len(blocking) > 0 {
		metrics.RulesAdded.WithLabelValues("conflict").Inc()
		db.logger.Warnw("Rule rejected due to conflicts", "rule_id", rule.RuleID, "conflicts", len(blocking))
		return nil, &core.ConflictError{RuleID: rule.RuleID, Conflicts: toSummaries(blocking)}
	}

	if err := db.store.SaveVersion(ctx, rule); err != nil {
		if errors.Is(err, storage.ErrDuplicateVersion) {
			metrics.RulesAdded.WithLabelValues("duplicate").Inc()
			return nil, &core.DuplicateVersionError{RuleID: rule.RuleID, Version: rule.Version}
		}
		metrics.RulesAdded.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("failed to persist rule %s: %w", rule.Key(), err)
	}

	if _, err := db.versions.Register(rule); err != nil {
		return nil, err
	}

	latest, _ := db.versions.Latest(rule.RuleID)
	isLatest := latest.Version == rule.Version
	if isLatest {
		db.rebuildLocked()
		db.publish(ctx, rule)
	}

	metrics.RulesAdded.WithLabelValues("added").Inc()
	db.logger.Infow("Rule added", "rule_id", rule.RuleID, "version", rule.Version,
		"latest", isLatest, "warnings", len(conflicts))

	return &AddResult{
		Rule:      rule.Clone(),
		Activated: isLatest && rule.Active,
		Conflicts: conflicts,
	}, nil
}

// Update mints a new version of an existing rule. When the supplied version is not
// greater than the current latest, the patch component of the latest is bumped.
func (db *Database) Update(ctx context.Context, rule *core.Rule) (*AddResult, error) {
	db.writeMu.Lock()
	defer db.writeMu.Unlock()

	current, ok := db.versions.Latest(rule.RuleID)
	if !ok {
		return nil, fmt.Errorf("%s: %w", rule.RuleID, core.ErrRuleNotFound)
	}
	next := rule.Clone()
	db.prepareNextVersion(next, current)
	return db.addLocked(ctx, next)
}

// Merge folds a partial document into the latest version of its rule and stores the
// result as a new version. When the rule does not exist yet the partial is added as is.
func (db *Database) Merge(ctx context.Context, partial *core.Rule) (*AddResult, error) {
	db.writeMu.Lock()
	defer db.writeMu.Unlock()

	current, ok := db.versions.Latest(partial.RuleID)
	if !ok {
		return db.addLocked(ctx, partial.Clone())
	}
	merged := MergeRules(current, partial)
	if partial.Version == "" || CompareVersions(partial.Version, current.Version) <= 0 {
		// nothing new to fold in: keep the latest version instead of minting a copy
		same := merged.Clone()
		same.Version = current.Version
		same.ApplyDefaults()
		if storage.ContentHash(same) == storage.ContentHash(current) {
			metrics.RulesAdded.WithLabelValues("duplicate").Inc()
			db.logger.Debugw("Merge left rule unchanged", "rule_id", current.RuleID, "version", current.Version)
			return &AddResult{Rule: current.Clone(), Duplicate: true}, nil
		}
	}
	merged.Version = partial.Version
	db.prepareNextVersion(merged, current)
	return db.addLocked(ctx, merged)
}

func (db *Database) prepareNextVersion(next, current *core.Rule) {
	if next.Version == "" || CompareVersions(next.Version, current.Version) <= 0 {
		v := NextVersion(current.Version)
		for {
			if _, taken := db.versions.Version(next.RuleID, v); !taken {
				break
			}
			v = NextVersion(v)
		}
		next.Version = v
	}
	next.CreatedAt = current.CreatedAt
	next.UpdatedAt = time.Now().UTC()
}

// Deactivate removes the rule's latest version from the live index. The version stays
// retrievable by explicit lookup.
func (db *Database) Deactivate(ctx context.Context, ruleID string) error {
	return db.mutateLatest(ctx, ruleID, func(r *core.Rule) { r.Active = false })
}

// Activate returns a deactivated latest version to the live index.
func (db *Database) Activate(ctx context.Context, ruleID string) error {
	return db.mutateLatest(ctx, ruleID, func(r *core.Rule) { r.Active = true })
}

// RecordUsage increments the usage counter of the latest version and folds success into
// its running success rate.
func (db *Database) RecordUsage(ctx context.Context, ruleID string, success bool) error {
	return db.mutateLatest(ctx, ruleID, func(r *core.Rule) {
		outcome := 0.0
		if success {
			outcome = 1.0
		}
		r.SuccessRate = (r.SuccessRate*float64(r.UsageCount) + outcome) / float64(r.UsageCount+1)
		r.UsageCount++
	})
}

func (db *Database) mutateLatest(ctx context.Context, ruleID string, mutate func(*core.Rule)) error {
	db.writeMu.Lock()
	defer db.writeMu.Unlock()

	current, ok := db.versions.Latest(ruleID)
	if !ok {
		return fmt.Errorf("%s: %w", ruleID, core.ErrRuleNotFound)
	}
	updated := current.Clone()
	mutate(updated)
	updated.UpdatedAt = time.Now().UTC()

	if err := db.store.UpdateVersion(ctx, updated); err != nil {
		return fmt.Errorf("failed to update rule %s: %w", updated.Key(), err)
	}
	db.versions.Replace(updated)
	db.rebuildLocked()
	if updated.Active {
		db.publish(ctx, updated)
	} else if db.publisher != nil {
		if err := db.publisher.Remove(ctx, ruleID); err != nil {
			db.logger.Warnw("Failed to remove rule from cache", "rule_id", ruleID, "error", err)
		}
	}
	return nil
}

// rebuildLocked builds a new index generation from the latest version of every rule.
func (db *Database) rebuildLocked() {
	gen := db.index.Rebuild(db.versions.LatestAll())
	// cached results are keyed by generation, so none of them can be hit again
	db.searcher.Purge()
	metrics.IndexRebuilds.Inc()
	metrics.ActiveRules.Set(float64(len(db.index.ActiveIDs())))
	db.logger.Debugw("Index rebuilt", "generation", gen)
}

func (db *Database) publish(ctx context.Context, rule *core.Rule) {
	if db.publisher == nil || !rule.Active {
		return
	}
	if err := db.publisher.Publish(ctx, rule); err != nil {
		db.logger.Warnw("Failed to publish rule to cache", "rule_id", rule.RuleID, "error", err)
	}
}

// Get returns a copy of the latest version of ruleID.
func (db *Database) Get(ruleID string) (*core.Rule, error) {
	r, ok := db.versions.Latest(ruleID)
	if !ok {
		return nil, fmt.Errorf("%s: %w", ruleID, core.ErrRuleNotFound)
	}
	return r.Clone(), nil
}

// GetVersion returns a copy of a specific version, active or not.
func (db *Database) GetVersion(ruleID, version string) (*core.Rule, error) {
	if _, ok := db.versions.Latest(ruleID); !ok {
		return nil, fmt.Errorf("%s: %w", ruleID, core.ErrRuleNotFound)
	}
	r, ok := db.versions.Version(ruleID, version)
	if !ok {
		return nil, fmt.Errorf("%s@%s: %w", ruleID, version, core.ErrVersionNotFound)
	}
	return r.Clone(), nil
}

// History returns copies of every version of ruleID, oldest first.
func (db *Database) History(ruleID string) []*core.Rule {
	history := db.versions.History(ruleID)
	out := make([]*core.Rule, 0, len(history))
	for _, r := range history {
		out = append(out, r.Clone())
	}
	return out
}

// Rules returns copies of the latest version of every rule, sorted by identifier.
func (db *Database) Rules() []*core.Rule {
	latest := db.versions.LatestAll()
	out := make([]*core.Rule, 0, len(latest))
	for _, r := range latest {
		out = append(out, r.Clone())
	}
	return out
}

// AllVersions returns copies of every registered version, grouped by identifier.
func (db *Database) AllVersions() []*core.Rule {
	var out []*core.Rule
	for _, id := range db.versions.IDs() {
		out = append(out, db.History(id)...)
	}
	return out
}

// ActiveRules returns copies of the rules in the current index generation.
func (db *Database) ActiveRules() []*core.Rule {
	active := db.index.ActiveRules()
	out := make([]*core.Rule, 0, len(active))
	for _, r := range active {
		out = append(out, r.Clone())
	}
	return out
}

// IsActive reports whether ruleID is in the live index.
func (db *Database) IsActive(ruleID string) bool {
	return db.index.IsActive(ruleID)
}

// Conflicts rescans the active corpus.
func (db *Database) Conflicts() []Conflict {
	return db.detector.DetectAll(db.index.ActiveRules())
}

// Search ranks active rules against filter.
func (db *Database) Search(ctx context.Context, filter core.SearchFilter) ([]SearchResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return db.searcher.Search(filter)
}

// Stats aggregates over the latest version of each rule.
func (db *Database) Stats(filter StatsFilter) Stats {
	return computeStats(db.versions.LatestAll(), db.versions.VersionCounts(), filter)
}

// AvailableTags lists the keys the live index currently holds, grouped by dimension.
func (db *Database) AvailableTags() AvailableTags {
	languages, domains, types, tags := db.index.Keys()
	return AvailableTags{Languages: languages, Domains: domains, RuleTypes: types, Tags: tags}
}

// Close closes the underlying store.
func (db *Database) Close() error {
	return db.store.Close()
}
