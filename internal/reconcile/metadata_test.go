package reconcile

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNameSuffixMatch(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		want bool
	}{
		{"identical", "Sporting BV Academy 2012B", "Sporting BV Academy 2012B", true},
		{"club prefix dropped", "Sporting Blue Valley SBV Academy 2012B", "SBV Academy 2012B", true},
		{"reversed argument order", "SBV Academy 2012B", "Sporting Blue Valley SBV Academy 2012B", true},
		{"case folded", "KC FUSION 2012B", "kc fusion 2012b", true},
		{"doubled prefix stripped", "Sporting Sporting KC 2013B", "Sporting KC 2013B", true},
		{"mid-word tail is not a suffix", "KS Rush 2012B", "sh 2012B", false},
		{"different squads", "KC Fusion 2012B", "KC Athletics 2012B", false},
		{"empty name never matches", "", "KC Fusion 2012B", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, nameSuffixMatch(tt.a, tt.b))
		})
	}
}

func TestColorConflict(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		want bool
	}{
		{"different colors", "KC Athletics Red", "KC Athletics Blue", true},
		{"same color", "KC Athletics Red", "Athletics Red", false},
		{"one side uncolored", "KC Athletics Red", "KC Athletics", false},
		{"neither colored", "KC Athletics", "Athletics", false},
		{"two-word color versus subset", "Rush Navy Blue", "Rush Blue", true},
		{"case insensitive", "Rush RED", "Rush red", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, colorConflict(tt.a, tt.b))
		})
	}
}

func TestLevelConflict(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		want bool
	}{
		{"different levels", "KC Fusion ECNL", "KC Fusion ECRL", true},
		{"elite versus premier", "Rush Elite 2012B", "Rush Premier 2012B", true},
		{"same level", "Rush Elite 2012B", "Rush Elite", false},
		{"one side unleveled", "Rush Elite 2012B", "Rush 2012B", false},
		{"color is not a level", "Rush Red 2012B", "Rush Blue 2012B", false},
		{"bracketed marker", "KC Fusion (ECNL)", "KC Fusion ECNL", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, levelConflict(tt.a, tt.b))
		})
	}
}

func TestHasWordSuffix(t *testing.T) {
	assert.True(t, hasWordSuffix("kc fusion 2012b", "fusion 2012b"))
	assert.True(t, hasWordSuffix("fusion 2012b", "fusion 2012b"))
	assert.False(t, hasWordSuffix("ks rush 2012b", "sh 2012b"))
	assert.False(t, hasWordSuffix("fusion", "kc fusion"))
}

func TestReconcileResultSummary(t *testing.T) {
	r := &Result{Operator: "teamDedupe", DryRun: true, Groups: 3, Examined: 7, SoftDeleted: 2}
	assert.Equal(t,
		"op=teamDedupe mode=dry-run groups=3 examined=7 updated=0 deleted=2 purged=0 repointed=0 restored=0 skipped=0 remaining=0 errors=0",
		r.Summary())

	r.DryRun = false
	r.AddErrorf("merge %d into %d: boom", 9, 4)
	assert.Contains(t, r.Summary(), "mode=execute")
	assert.Contains(t, r.Summary(), "errors=1")
	assert.Equal(t, []string{"merge 9 into 4: boom"}, r.Errors)
}
