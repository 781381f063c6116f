package rulesdb

import (
	"errors"
	"testing"
	"time"

	"rulebase/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersionManager_LatestFollowsSemver(t *testing.T) {
	vm := NewVersionManager(nil)
	for _, v := range []string{"1.0.0", "1.2.0", "1.1.0"} {
		ok, err := vm.Register(newTestRule("CR-V-1", v))
		require.NoError(t, err)
		require.True(t, ok)
	}

	latest, ok := vm.Latest("CR-V-1")
	require.True(t, ok)
	assert.Equal(t, "1.2.0", latest.Version)

	var versions []string
	for _, r := range vm.History("CR-V-1") {
		versions = append(versions, r.Version)
	}
	assert.Equal(t, []string{"1.0.0", "1.1.0", "1.2.0"}, versions)
}

func TestVersionManager_DuplicateIsSoftFailure(t *testing.T) {
	vm := NewVersionManager(nil)
	ok, err := vm.Register(newTestRule("CR-V-2", "1.0.0"))
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = vm.Register(newTestRule("CR-V-2", "1.0.0"))
	assert.False(t, ok)
	var dup *core.DuplicateVersionError
	assert.True(t, errors.As(err, &dup))
	assert.Len(t, vm.History("CR-V-2"), 1)
}

func TestVersionManager_NumericOrderingBeatsLexicographic(t *testing.T) {
	vm := NewVersionManager(nil)
	_, _ = vm.Register(newTestRule("CR-V-3", "1.9.0"))
	_, _ = vm.Register(newTestRule("CR-V-3", "1.10.0"))

	latest, ok := vm.Latest("CR-V-3")
	require.True(t, ok)
	assert.Equal(t, "1.10.0", latest.Version)
}

func TestVersionManager_MalformedVersionsFallBackToStrings(t *testing.T) {
	vm := NewVersionManager(nil)
	_, _ = vm.Register(newTestRule("CR-V-4", "draft-a"))
	_, _ = vm.Register(newTestRule("CR-V-4", "draft-b"))

	latest, ok := vm.Latest("CR-V-4")
	require.True(t, ok)
	assert.Equal(t, "draft-b", latest.Version)
}

func TestVersionManager_MissingLookups(t *testing.T) {
	vm := NewVersionManager(nil)
	_, ok := vm.Latest("CR-NONE")
	assert.False(t, ok)
	_, ok = vm.Version("CR-NONE", "1.0.0")
	assert.False(t, ok)
	assert.Empty(t, vm.History("CR-NONE"))
}

func TestCompareVersions(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"1.0.0", "1.0.1", -1},
		{"2.0.0", "1.9.9", 1},
		{"1.0.0", "1.0.0", 0},
		{"v1.2.0", "1.1.0", 1},
		{"abc", "abd", -1},
		{"1.0.0-beta", "1.0.0", -1},
	}
	for _, tt := range tests {
		t.Run(tt.a+"_"+tt.b, func(t *testing.T) {
			assert.Equal(t, tt.want, CompareVersions(tt.a, tt.b))
		})
	}
}

func TestNextVersion(t *testing.T) {
	now := time.Unix(1700000000, 0)
	assert.Equal(t, "1.0.1", nextVersionAt("1.0.0", now))
	assert.Equal(t, "2.3.10", nextVersionAt("2.3.9", now))
	assert.Equal(t, "1.0.1", nextVersionAt("1.0", now))
	assert.Equal(t, "draft.1700000000", nextVersionAt("draft", now))
	assert.Equal(t, "1.0.0-rc1.1700000000", nextVersionAt("1.0.0-rc1", now))
}
