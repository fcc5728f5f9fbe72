package scraper

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MGMAppDev/soccerview-pipeline/internal/adapter"
)

func n(v int) *int { return &v }

// testEngine builds an engine around an adapter without a database; the
// policy methods under test never touch the pool.
func testEngine(t *testing.T, ad *adapter.Adapter, now time.Time) *Engine {
	t.Helper()
	return &Engine{
		ad:     ad,
		logger: discardLogger(),
		now:    func() time.Time { return now },
	}
}

func gotsportEngine(t *testing.T, now time.Time) *Engine {
	t.Helper()
	ad, err := adapter.Load("gotsport", 2026)
	require.NoError(t, err)
	return testEngine(t, ad, now)
}

func TestFinalizeMatchesPolicy(t *testing.T) {
	now := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	e := gotsportEngine(t, now)
	ev := adapter.Event{
		ID:   "32412",
		Name: "Heartland Invitational 2025 (KS)",
		Type: adapter.EventTournament,
	}

	matches := []adapter.RawMatch{
		{MatchNumber: "101", Date: date(2026, 3, 20), HomeTeam: "Sporting Blue", AwayTeam: "KC Fusion", HomeScore: n(2), AwayScore: n(1)},
		{MatchNumber: "102", Date: date(2026, 4, 10), HomeTeam: "Sporting Blue", AwayTeam: "Legends FC"},
		// Duplicate key within the run.
		{MatchNumber: "101", Date: date(2026, 3, 20), HomeTeam: "Sporting Blue", AwayTeam: "KC Fusion"},
		// Predates the adapter's floor.
		{MatchNumber: "103", Date: date(2019, 6, 1), HomeTeam: "Old A", AwayTeam: "Old B"},
		// Placeholder opponent.
		{MatchNumber: "104", Date: date(2026, 4, 5), HomeTeam: "Sporting Blue", AwayTeam: "Winner Group A"},
	}

	out := e.finalizeMatches(ev, matches)
	require.Len(t, out, 2)

	first := out[0]
	assert.Equal(t, "gotsport-32412-101", first.SourceKey)
	assert.Equal(t, "32412", first.EventID)
	assert.Equal(t, "Heartland Invitational 2025 (KS)", first.EventName)
	assert.Equal(t, adapter.EventTournament, first.EventType)
	assert.Equal(t, "KS", first.State, "state inferred from the event name")
	assert.Equal(t, "completed", first.Status, "past match with both scores")

	second := out[1]
	assert.Equal(t, "gotsport-32412-102", second.SourceKey)
	assert.Equal(t, "scheduled", second.Status, "future match stays scheduled")
}

func TestFinalizeMatchesEventTypeFallback(t *testing.T) {
	now := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	e := gotsportEngine(t, now)

	out := e.finalizeMatches(
		adapter.Event{ID: "555", Name: "Spring Shootout 2026 (MO)"},
		[]adapter.RawMatch{{MatchNumber: "1", Date: date(2026, 5, 2), HomeTeam: "A", AwayTeam: "B"}},
	)
	require.Len(t, out, 1)
	assert.Equal(t, adapter.EventTournament, out[0].EventType)
	assert.Equal(t, "MO", out[0].State)
}

func TestFinalizeMatchesKeepsExplicitSourceKey(t *testing.T) {
	now := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	e := gotsportEngine(t, now)

	out := e.finalizeMatches(
		adapter.Event{ID: "1", Name: "Cup (KS)"},
		[]adapter.RawMatch{{
			MatchNumber: "9", SourceKey: "gotsport-custom-key",
			Date: date(2026, 5, 2), HomeTeam: "A", AwayTeam: "B",
		}},
	)
	require.Len(t, out, 1)
	assert.Equal(t, "gotsport-custom-key", out[0].SourceKey)
}

func TestFinalizeMatchesPastWithoutScoresStaysScheduled(t *testing.T) {
	now := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	e := gotsportEngine(t, now)

	out := e.finalizeMatches(
		adapter.Event{ID: "1", Name: "Cup (KS)"},
		[]adapter.RawMatch{{MatchNumber: "9", Date: date(2026, 3, 1), HomeTeam: "A", AwayTeam: "B"}},
	)
	require.Len(t, out, 1)
	assert.Equal(t, "scheduled", out[0].Status,
		"no score means the result is unknown, not played")
}

func TestMapRow(t *testing.T) {
	e := gotsportEngine(t, time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC))

	m, ok := e.mapRow([]string{
		"101", "Saturday, March 21, 2026 9:00 AM", "Kansas Rush  Elite",
		"2 - 1", "Toca FC", "Swope Park Field 3", "U12 Boys Premier",
	})
	require.True(t, ok)
	assert.Equal(t, "101", m.MatchNumber)
	assert.Equal(t, time.Date(2026, 3, 21, 9, 0, 0, 0, time.UTC), m.Date)
	assert.Equal(t, "9:00 AM", m.TimeText)
	assert.Equal(t, "Kansas Rush Elite", m.HomeTeam, "whitespace collapsed")
	assert.Equal(t, "Toca FC", m.AwayTeam)
	assert.Equal(t, n(2), m.HomeScore)
	assert.Equal(t, n(1), m.AwayScore)
	assert.Equal(t, "Swope Park Field 3", m.Venue)
	assert.Equal(t, "U12 Boys Premier", m.Division)
	assert.Equal(t, "M", m.Gender)
	assert.Equal(t, 12, m.AgeGroup)
}

func TestMapRowDropsNonMatchRows(t *testing.T) {
	e := gotsportEngine(t, time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC))

	tests := []struct {
		name  string
		cells []string
	}{
		{"header row", []string{"Match", "Date/Time", "Home", "Score", "Away", "Venue", "Division"}},
		{"missing match number", []string{"", "3/21/2026 9:00 AM", "A", "", "B", "", ""}},
		{"missing home team", []string{"101", "3/21/2026 9:00 AM", "", "", "B", "", ""}},
		{"missing away team", []string{"101", "3/21/2026 9:00 AM", "A", "", "", "", ""}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := e.mapRow(tt.cells)
			assert.False(t, ok)
		})
	}
}

func TestMapRowUnplayedMatchHasNilScores(t *testing.T) {
	e := gotsportEngine(t, time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC))

	m, ok := e.mapRow([]string{"102", "4/10/2026 2:00 PM", "A", "", "B", "", "U11 Girls"})
	require.True(t, ok)
	assert.Nil(t, m.HomeScore)
	assert.Nil(t, m.AwayScore)
	assert.Equal(t, "F", m.Gender)
}

func TestResolveEventsExplicitID(t *testing.T) {
	e := gotsportEngine(t, time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC))

	events := e.resolveEvents(context.Background(), Options{EventID: "90210"})
	require.Len(t, events, 1)
	assert.Equal(t, "90210", events[0].ID)
	assert.Equal(t, adapter.EventTournament, events[0].Type)
}

func TestActiveEvents(t *testing.T) {
	events := []adapter.Event{
		{ID: "a", Year: 2026},
		{ID: "b", Year: 2025},
		{ID: "c", Year: 2024},
		{ID: "d", Year: 0},
	}
	out := activeEvents(events, 2026)
	ids := make([]string, len(out))
	for i, ev := range out {
		ids[i] = ev.ID
	}
	assert.Equal(t, []string{"a", "b", "d"}, ids,
		"last season and unknown years stay, older drop")
}

func TestStagingRecords(t *testing.T) {
	recs := stagingRecords("gotsport", []adapter.RawMatch{{
		SourceKey: "gotsport-1-101",
		HomeTeam:  "A", AwayTeam: "B",
		HomeScore: n(3), AwayScore: n(0),
		Date: date(2026, 3, 21), TimeText: "9:00 AM",
		Venue: "Field 1", Division: "U12 Boys",
		EventID: "1", EventName: "Cup", EventType: adapter.EventTournament,
		Status: "completed", State: "KS",
	}})
	require.Len(t, recs, 1)

	r := recs[0]
	assert.Equal(t, "gotsport", r.SourcePlatform)
	assert.Equal(t, "gotsport-1-101", r.SourceMatchKey)
	assert.Equal(t, "A", r.HomeTeamName)
	assert.Equal(t, "B", r.AwayTeamName)
	assert.Equal(t, n(3), r.HomeScore)
	assert.Equal(t, date(2026, 3, 21), r.MatchDate)
	assert.Equal(t, "tournament", r.EventType)
	assert.Equal(t, "completed", r.Status)
	assert.Equal(t, "KS", r.State)
}

func TestNilEmpty(t *testing.T) {
	assert.Nil(t, nilEmpty(""))
	assert.Equal(t, "x", nilEmpty("x"))
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
