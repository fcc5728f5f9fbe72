package normalizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSeason = 2026

func TestStripDuplicatePrefix(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"no duplication", "One FC 2014B", "One FC 2014B"},
		{"two-word duplicate prefix", "One FC One FC 2014B", "One FC 2014B"},
		{"single-word duplicate", "Storm Storm Blue", "Storm Blue"},
		{"case-insensitive match", "STORM storm Blue", "storm Blue"},
		{"triple single word reaches fixpoint", "A A A B", "A B"},
		{"already stripped is stable", "A B", "A B"},
		{"two-word beats single-word", "FC FC FC FC United", "FC United"},
		{"empty", "", ""},
		{"whitespace normalized", "  One   FC  2014B ", "One FC 2014B"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StripDuplicatePrefix(tt.in))
		})
	}
}

func TestStripDuplicatePrefixIdempotent(t *testing.T) {
	inputs := []string{
		"A A B", "One FC One FC 2014B", "Storm Storm Storm 15B", "Plain Name",
	}
	for _, in := range inputs {
		once := StripDuplicatePrefix(in)
		assert.Equal(t, once, StripDuplicatePrefix(once), "input %q", in)
	}
}

func TestExtractIdentityBirthYear(t *testing.T) {
	n := New(testSeason)

	tests := []struct {
		name string
		raw  string
		want int
	}{
		{"four digit with B", "One FC 2014B", 2014},
		{"four digit with space B", "Storm 2015 B", 2015},
		{"bare four digit", "Wolves 2014", 2014},
		{"two digit with B", "Rush 15B", 2015},
		{"B then two digit", "Rush B15", 2015},
		{"G then two digit", "Fusion G12", 2012},
		{"trailing standalone two digit", "Sporting Blue 14", 2014},
		{"level word plus two digit", "United Premier 14", 2014},
		{"academy plus two digit", "Rovers Academy 09", 2009},
		{"suffix U-age", "Storm FC (U11 Boys)", 2015},
		{"inline U-age", "Storm U12 White", 2014},
		{"four digit out of range ignored", "Founded 2001 FC U13", 2013},
		{"old year rejected", "Classics 90", 0},
		{"no year at all", "Blue Thunder", 0},
		{"U-age out of range", "Adults U23", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := n.ExtractIdentity(tt.raw)
			assert.Equal(t, tt.want, got.BirthYear, "raw=%q", tt.raw)
		})
	}
}

func TestExtractIdentityGender(t *testing.T) {
	n := New(testSeason)

	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"B marker", "One FC 2014B", "M"},
		{"G marker", "One FC 2014G", "F"},
		{"two digit B", "Rush 15B", "M"},
		{"B prefix", "Rush B15", "M"},
		{"suffix Boys", "Storm FC 2015 (U11 Boys)", "M"},
		{"suffix Girls", "Storm FC 2015 (U11 Girls)", "F"},
		{"inline Girls", "Girls United 2013", "F"},
		{"ambiguous", "Blue Thunder", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := n.ExtractIdentity(tt.raw)
			assert.Equal(t, tt.want, got.Gender, "raw=%q", tt.raw)
		})
	}
}

func TestExtractIdentityDuplicatePrefixScenario(t *testing.T) {
	// Two raw spellings of the same team must land on one identity.
	n := New(testSeason)

	a := n.ExtractIdentity("One FC One FC 2014B")
	b := n.ExtractIdentity("One FC 2014B")

	require.Equal(t, "one fc 2014b", a.CanonicalName)
	assert.Equal(t, a, b)
	assert.Equal(t, 2014, a.BirthYear)
	assert.Equal(t, "M", a.Gender)
}

func TestExtractIdentityIdempotent(t *testing.T) {
	n := New(testSeason)

	inputs := []string{
		"One FC One FC 2014B",
		"Storm FC 2015 (U11 Boys)",
		"  Sporting   Blue 14 ",
		"Rush B15",
		"Plain Name",
		"United Premier 14",
	}
	for _, raw := range inputs {
		first := n.ExtractIdentity(raw)
		second := n.ExtractIdentity(first.CanonicalName)
		assert.Equal(t, first.CanonicalName, second.CanonicalName, "raw=%q", raw)
		assert.Equal(t, first.BirthYear, second.BirthYear, "raw=%q", raw)
	}
}

func TestExtractIdentityConflict(t *testing.T) {
	n := New(testSeason)

	tests := []struct {
		name         string
		raw          string
		wantYear     int
		wantConflict bool
	}{
		{"name and suffix agree", "Storm 2014 (U12 Boys)", 2014, false},
		{"name and suffix disagree", "Storm 2014 (U11 Boys)", 2014, true},
		{"suffix only", "Storm (U11 Boys)", 2015, false},
		{"name only", "Storm 2014", 2014, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := n.ExtractIdentity(tt.raw)
			assert.Equal(t, tt.wantYear, got.BirthYear)
			assert.Equal(t, tt.wantConflict, got.BirthYearConflict)
		})
	}
}

func TestCanonicalName(t *testing.T) {
	n := New(testSeason)

	tests := []struct {
		in   string
		want string
	}{
		{"One FC 2014B", "one fc 2014b"},
		{"  Storm   FC 2015 (U11 Boys) ", "storm fc 2015"},
		{"STORM Storm FC", "storm fc"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, n.CanonicalName(tt.in), "in=%q", tt.in)
	}
}

func TestParseDivision(t *testing.T) {
	n := New(testSeason)

	tests := []struct {
		div        string
		wantGender string
		wantAge    int
	}{
		{"U11 Boys", "M", 11},
		{"Girls U-13", "F", 13},
		{"U15 Premier", "", 15},
		{"Open", "", 0},
	}
	for _, tt := range tests {
		t.Run(tt.div, func(t *testing.T) {
			d := n.ParseDivision(tt.div)
			assert.Equal(t, tt.wantGender, d.Gender)
			assert.Equal(t, tt.wantAge, d.AgeGroup)
		})
	}
}

func TestBirthYearForAge(t *testing.T) {
	n := New(testSeason)
	assert.Equal(t, 2015, n.BirthYearForAge(11))
	assert.Equal(t, 0, n.BirthYearForAge(0))
}
