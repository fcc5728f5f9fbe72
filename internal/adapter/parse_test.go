package adapter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseUSDateTime(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want time.Time
	}{
		{"slash date", "9/14/2025", time.Date(2025, 9, 14, 0, 0, 0, 0, time.UTC)},
		{"slash date with time", "9/14/2025 3:30 PM", time.Date(2025, 9, 14, 15, 30, 0, 0, time.UTC)},
		{"padded slash date", "09/04/2025", time.Date(2025, 9, 4, 0, 0, 0, 0, time.UTC)},
		{"short month", "Sep 14, 2025", time.Date(2025, 9, 14, 0, 0, 0, 0, time.UTC)},
		{"long month with time", "September 14, 2025 9:00 AM", time.Date(2025, 9, 14, 9, 0, 0, 0, time.UTC)},
		{"weekday prefix", "Sun 9/14/2025", time.Date(2025, 9, 14, 0, 0, 0, 0, time.UTC)},
		{"full weekday", "Sunday, September 14, 2025", time.Date(2025, 9, 14, 0, 0, 0, 0, time.UTC)},
		{"iso date", "2025-09-14", time.Date(2025, 9, 14, 0, 0, 0, 0, time.UTC)},
		{"extra whitespace", "  9/14/2025   3:30 PM ", time.Date(2025, 9, 14, 15, 30, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseUSDateTime(tt.in)
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "want %v, got %v", tt.want, got)
		})
	}
}

func TestParseUSDateTimeRejects(t *testing.T) {
	for _, in := range []string{"", "TBD", "14.09.2025", "next saturday"} {
		_, err := ParseUSDateTime(in)
		assert.Error(t, err, "input %q", in)
	}
}

func TestParseDashScore(t *testing.T) {
	n := func(v int) *int { return &v }

	tests := []struct {
		name string
		in   string
		home *int
		away *int
	}{
		{"plain", "2-1", n(2), n(1)},
		{"spaced", "2 - 1", n(2), n(1)},
		{"nil-nil draw", "0 - 0", n(0), n(0)},
		{"double digits", "10-2", n(10), n(2)},
		{"en dash", "3 – 2", n(3), n(2)},
		{"blank means unplayed", "", nil, nil},
		{"vs means unplayed", "vs", nil, nil},
		{"tbd means unplayed", "TBD", nil, nil},
		{"postponed marker", "PPD", nil, nil},
		{"half-filled", "3-", nil, nil},
		{"negative rejected", "3--2", nil, nil},
		{"time is not a score", "3:30 PM", nil, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			home, away, err := ParseDashScore(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.home, home)
			assert.Equal(t, tt.away, away)
		})
	}
}

func TestExtractTimeText(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"9/14/2025 3:30 PM", "3:30 PM"},
		{"3:30 pm", "3:30 pm"},
		{"Sunday, September 14, 2025", ""},
		{"kickoff 10:05", "10:05"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ExtractTimeText(tt.in), "input %q", tt.in)
	}
}

func TestStateFromEventName(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"paren code", "Heartland Invitational 2025 (KS)", "KS"},
		{"paren non-state ignored", "Sporting Cup (FC)", ""},
		{"spelled out", "Missouri State Cup 2025", "MO"},
		{"arkansas not kansas", "Arkansas Premier League", "AR"},
		{"kansas alone", "Kansas Youth Cup", "KS"},
		{"code wins over word", "Nebraska Shootout (IA)", "IA"},
		{"nothing", "Champions Cup", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StateFromEventName(tt.in))
		})
	}
}

func TestEventYear(t *testing.T) {
	assert.Equal(t, 2025, EventYear("KC Champions Cup 2025"))
	assert.Equal(t, 2025, EventYear("2025/26 Fall League"))
	assert.Equal(t, 0, EventYear("Champions Cup"))
	assert.Equal(t, 0, EventYear("Est. 1999 Invitational"))
}

func TestCleanTeamName(t *testing.T) {
	assert.Equal(t, "One FC 2014B", CleanTeamName("  One   FC\n2014B "))
	assert.Equal(t, "", CleanTeamName("   "))
}
