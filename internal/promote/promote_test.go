package promote

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func n(v int) *int { return &v }

func d(y int, m time.Month, day int) time.Time {
	return time.Date(y, m, day, 0, 0, 0, 0, time.UTC)
}

func TestComposeScores(t *testing.T) {
	today := d(2026, 4, 1)

	tests := []struct {
		name      string
		home      *int
		away      *int
		matchDate time.Time
		wantHome  *int
		wantAway  *int
	}{
		{"both nil", nil, nil, d(2026, 3, 1), nil, nil},
		{"home only becomes pair null", n(2), nil, d(2026, 3, 1), nil, nil},
		{"away only becomes pair null", nil, n(1), d(2026, 3, 1), nil, nil},
		{"played result kept", n(3), n(2), d(2026, 3, 1), n(3), n(2)},
		{"past zero-zero is a real draw", n(0), n(0), d(2026, 3, 1), n(0), n(0)},
		{"future zero-zero is the scheduled artifact", n(0), n(0), d(2026, 5, 1), nil, nil},
		{"today zero-zero not yet played", n(0), n(0), d(2026, 4, 1), nil, nil},
		{"future real score kept", n(0), n(3), d(2026, 5, 1), n(0), n(3)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			home, away := composeScores(tt.home, tt.away, tt.matchDate, today)
			assert.Equal(t, tt.wantHome, home)
			assert.Equal(t, tt.wantAway, away)
		})
	}
}

func TestApplyOutcome(t *testing.T) {
	p := &Promoter{events: make(map[string]eventRef)}
	result := &Result{}

	id := int64(7)
	p.applyOutcome(result, &outcome{
		action:        "inserted",
		teamsCreated:  2,
		eventCreated:  true,
		eventCacheKey: "leagues|gotsport|55",
		eventCacheRef: eventRef{leagueID: &id},
	})
	p.applyOutcome(result, &outcome{action: "merged"})
	p.applyOutcome(result, &outcome{action: "updated"})

	assert.Equal(t, 1, result.Inserted)
	assert.Equal(t, 1, result.Merged)
	assert.Equal(t, 1, result.Updated)
	assert.Equal(t, 2, result.TeamsCreated)
	assert.Equal(t, 1, result.EventsCreated)
	assert.Contains(t, p.events, "leagues|gotsport|55")
}

func TestResultSummary(t *testing.T) {
	r := &Result{Scanned: 10, Inserted: 6, Updated: 2, Merged: 1, TeamsCreated: 4, Failed: 1}
	r.AddErrorf("row %d: %s", 3, "boom")
	assert.Equal(t,
		"scanned=10 inserted=6 updated=2 merged=1 teams=4 events=0 failed=1 errors=1",
		r.Summary())
	assert.Equal(t, []string{"row 3: boom"}, r.Errors)
}
