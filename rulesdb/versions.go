package rulesdb

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"rulebase/core"

	"go.uber.org/zap"
	"golang.org/x/mod/semver"
)

// VersionManager keeps the ordered version history of every rule identifier.
// Stored versions are never edited in place.
type VersionManager struct {
	mu       sync.RWMutex
	versions map[string][]*core.Rule
	latest   map[string]string
	logger   *zap.SugaredLogger
}

// NewVersionManager creates an empty version manager
func NewVersionManager(logger *zap.SugaredLogger) *VersionManager {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &VersionManager{
		versions: make(map[string][]*core.Rule),
		latest:   make(map[string]string),
		logger:   logger,
	}
}

// Register appends rule to its identifier's history.
// A duplicate (rule_id, version) is a soft failure: false and a *core.DuplicateVersionError.
func (vm *VersionManager) Register(rule *core.Rule) (bool, error) {
	vm.mu.Lock()
	defer vm.mu.Unlock()

	history := vm.versions[rule.RuleID]
	for _, existing := range history {
		if existing.Version == rule.Version {
			vm.logger.Debugw("Version already registered", "rule_id", rule.RuleID, "version", rule.Version)
			return false, &core.DuplicateVersionError{RuleID: rule.RuleID, Version: rule.Version}
		}
	}

	history = append(history, rule)
	sort.SliceStable(history, func(i, j int) bool {
		return CompareVersions(history[i].Version, history[j].Version) < 0
	})
	vm.versions[rule.RuleID] = history

	if cur, ok := vm.latest[rule.RuleID]; !ok || CompareVersions(rule.Version, cur) > 0 {
		vm.latest[rule.RuleID] = rule.Version
	}
	return true, nil
}

// Replace swaps a stored version for an updated copy with the same (rule_id, version).
// Used for bookkeeping fields (active flag, usage counters) that are not part of the content.
func (vm *VersionManager) Replace(rule *core.Rule) bool {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	for i, existing := range vm.versions[rule.RuleID] {
		if existing.Version == rule.Version {
			vm.versions[rule.RuleID][i] = rule
			return true
		}
	}
	return false
}

// Latest returns the latest version of id.
func (vm *VersionManager) Latest(id string) (*core.Rule, bool) {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	v, ok := vm.latest[id]
	if !ok {
		return nil, false
	}
	return vm.find(id, v)
}

// Version returns a specific version of id.
func (vm *VersionManager) Version(id, version string) (*core.Rule, bool) {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.find(id, version)
}

func (vm *VersionManager) find(id, version string) (*core.Rule, bool) {
	for _, r := range vm.versions[id] {
		if r.Version == version {
			return r, true
		}
	}
	return nil, false
}

// History returns all versions of id in ascending version order.
func (vm *VersionManager) History(id string) []*core.Rule {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return append([]*core.Rule(nil), vm.versions[id]...)
}

// IDs returns every registered identifier, sorted.
func (vm *VersionManager) IDs() []string {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	ids := make([]string, 0, len(vm.versions))
	for id := range vm.versions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// LatestAll returns the latest version of every identifier, sorted by id.
func (vm *VersionManager) LatestAll() []*core.Rule {
	ids := vm.IDs()
	out := make([]*core.Rule, 0, len(ids))
	for _, id := range ids {
		if r, ok := vm.Latest(id); ok {
			out = append(out, r)
		}
	}
	return out
}

// VersionCounts returns the number of versions per identifier.
func (vm *VersionManager) VersionCounts() map[string]int {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	counts := make(map[string]int, len(vm.versions))
	for id, h := range vm.versions {
		counts[id] = len(h)
	}
	return counts
}

func canonicalSemver(v string) string {
	v = strings.TrimSpace(v)
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	return v
}

// CompareVersions orders two version strings by semantic version, falling back to
// lexicographic order when either side does not parse.
func CompareVersions(a, b string) int {
	ca, cb := canonicalSemver(a), canonicalSemver(b)
	if semver.IsValid(ca) && semver.IsValid(cb) {
		if c := semver.Compare(ca, cb); c != 0 {
			return c
		}
	}
	return strings.Compare(a, b)
}

// NextVersion bumps the patch component of a semantic version. Versions that do not
// parse get a unix-timestamp suffix instead.
func NextVersion(current string) string {
	return nextVersionAt(current, time.Now())
}

func nextVersionAt(current string, now time.Time) string {
	canon := canonicalSemver(current)
	if semver.IsValid(canon) && semver.Prerelease(canon) == "" && semver.Build(canon) == "" {
		parts := strings.SplitN(strings.TrimPrefix(canon, "v"), ".", 3)
		for len(parts) < 3 {
			parts = append(parts, "0")
		}
		if patch, err := strconv.Atoi(parts[2]); err == nil {
			return fmt.Sprintf("%s.%s.%d", parts[0], parts[1], patch+1)
		}
	}
	return fmt.Sprintf("%s.%d", current, now.Unix())
}
