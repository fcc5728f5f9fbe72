package adapter

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadBuiltins(t *testing.T) {
	assert.Equal(t, []string{"gotsport", "heartland", "playmetrics"}, IDs())

	for _, id := range IDs() {
		a, err := Load(id, 2026)
		require.NoError(t, err, "adapter %s", id)
		assert.Equal(t, id, a.ID)
		assert.Equal(t, id, a.Platform)
	}

	_, err := Load("nosuch", 2026)
	assert.ErrorContains(t, err, "unknown adapter")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(a *Adapter)
		wantErr string
	}{
		{"missing platform", func(a *Adapter) { a.Platform = "" }, "Platform"},
		{"missing key template", func(a *Adapter) { a.MatchKeyTemplate = "" }, "MatchKeyTemplate"},
		{"no user agents", func(a *Adapter) { a.UserAgents = nil }, "UserAgents"},
		{"zero retries", func(a *Adapter) { a.Limits.MaxRetries = 0 }, "MaxRetries"},
		{"inverted jitter window", func(a *Adapter) { a.Limits.RequestDelayMax = time.Second; a.Limits.RequestDelayMin = 2 * time.Second }, "RequestDelayMax"},
		{"missing parse hooks", func(a *Adapter) { a.ParseDate = nil }, "ParseDate"},
		{"missing checkpoint", func(a *Adapter) { a.CheckpointFile = "" }, "CheckpointFile"},
		{"default algorithm needs group regex", func(a *Adapter) { a.GroupLinkExpr = nil }, "GroupLinkExpr"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := GotSport(2026)
			tt.mutate(a)
			assert.ErrorContains(t, validate(a), tt.wantErr)
		})
	}

	// A custom ScrapeEvent lifts the default-algorithm requirements.
	h := Heartland(2026)
	assert.Nil(t, h.GroupLinkExpr)
	assert.NoError(t, validate(h))
}

func TestKeyTemplates(t *testing.T) {
	g := GotSport(2026)
	assert.Equal(t, "gotsport-32412-101", g.MatchKey("32412", "101"))
	assert.Equal(t, "gotsport-", g.KeyPrefix())

	h := Heartland(2026)
	assert.Equal(t, "heartland-cal-spring-2026-20260315-deadbeef", h.MatchKey("spring-2026", "20260315-deadbeef"))
	assert.Equal(t, "heartland-cal-", h.KeyPrefix())

	assert.Equal(t, "x-1-2", ExpandMatchKey("{source}-{eventId}-{matchNumber}", "x", "1", "2"))
}

func TestURLTemplates(t *testing.T) {
	g := GotSport(2026)
	assert.Equal(t, "https://system.gotsport.com/org_event/events/32412", g.EventURL("32412"))
	assert.Equal(t, "https://system.gotsport.com/org_event/events/32412/schedules?group=110", g.ScheduleURL("32412", "110"))
}

func TestIsPlaceholder(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"TBD", true},
		{"tba", true},
		{"", true},
		{"Winner Group A", true},
		{"Loser Semifinal 1", true},
		{"1st Place Pool B", true},
		{"One FC 2014B", false},
		{"Winners FC", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, isPlaceholder(tt.in), "input %q", tt.in)
	}
}

// --------------------------------------------------------------------------
// Heartland calendar hook
// --------------------------------------------------------------------------

type stubEngine struct {
	pages map[string]string
	fail  map[string]error
}

func (s *stubEngine) FetchPage(_ context.Context, url string) (string, error) {
	if err, ok := s.fail[url]; ok {
		return "", err
	}
	page, ok := s.pages[url]
	if !ok {
		return "", ErrNotFound
	}
	return page, nil
}

func (s *stubEngine) DiscoverEventsFromDB(context.Context, int, int) ([]Event, error) {
	return nil, nil
}

func (s *stubEngine) Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

const marchCalendar = `
<table>
<tr><th>Date</th><th>Time</th><th>Division</th><th>Home</th><th>Score</th><th>Away</th><th>Field</th></tr>
<tr><td>3/15/2026</td><td>8:00 AM</td><td>U12 Boys Premier</td><td>One FC 2014B</td><td>2 - 1</td><td>Storm 14B</td><td>Swope Park 7</td></tr>
<tr><td>3/15/2026</td><td>9:30 AM</td><td>U13 Girls</td><td>Fusion G13</td><td></td><td>Rush 13G</td><td>Swope Park 8</td></tr>
<tr><td>3/16/2026</td><td colspan="6">Fields closed for weather</td></tr>
</table>`

func TestHeartlandSeason(t *testing.T) {
	year, months, err := heartlandSeason("fall-2025")
	require.NoError(t, err)
	assert.Equal(t, 2025, year)
	assert.Equal(t, []int{8, 9, 10, 11}, months)

	year, months, err = heartlandSeason("spring-2026")
	require.NoError(t, err)
	assert.Equal(t, 2026, year)
	assert.Equal(t, []int{3, 4, 5, 6}, months)

	for _, id := range []string{"winter-2026", "fall", "fall-1999", ""} {
		_, _, err := heartlandSeason(id)
		assert.Error(t, err, "id %q", id)
	}
}

func TestHeartlandCalendarScrape(t *testing.T) {
	a := Heartland(2026)
	ev := Event{ID: "spring-2026", Name: "Heartland League Spring 2026", Type: EventLeague, Year: 2026, State: "KS"}

	// Only March is published; April through June 404 and are skipped.
	eng := &stubEngine{pages: map[string]string{
		a.ScheduleURL(ev.ID, "2026-03"): marchCalendar,
	}}

	matches, err := a.ScrapeEvent(context.Background(), eng, ev)
	require.NoError(t, err)
	require.Len(t, matches, 2, "weather row and header must be dropped")

	m := matches[0]
	assert.Equal(t, "One FC 2014B", m.HomeTeam)
	assert.Equal(t, "Storm 14B", m.AwayTeam)
	require.NotNil(t, m.HomeScore)
	require.NotNil(t, m.AwayScore)
	assert.Equal(t, 2, *m.HomeScore)
	assert.Equal(t, 1, *m.AwayScore)
	assert.Equal(t, "8:00 AM", m.TimeText)
	assert.Equal(t, "Swope Park 7", m.Venue)
	assert.Equal(t, "U12 Boys Premier", m.Division)
	assert.Equal(t, "M", m.Gender)
	assert.Equal(t, 12, m.AgeGroup)
	assert.True(t, time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC).Equal(m.Date))

	// Content-derived match numbers are stable across runs.
	again, err := a.ScrapeEvent(context.Background(), eng, ev)
	require.NoError(t, err)
	assert.Equal(t, m.MatchNumber, again[0].MatchNumber)
	assert.NotEqual(t, matches[0].MatchNumber, matches[1].MatchNumber)

	// Unplayed rows stage with nil scores.
	assert.Nil(t, matches[1].HomeScore)
	assert.Nil(t, matches[1].AwayScore)
}

func TestHeartlandCalendarScrapeError(t *testing.T) {
	a := Heartland(2026)
	ev := Event{ID: "fall-2025", Type: EventLeague}

	eng := &stubEngine{fail: map[string]error{
		a.ScheduleURL(ev.ID, "2025-09"): fmt.Errorf("status 500"),
	}}

	_, err := a.ScrapeEvent(context.Background(), eng, ev)
	assert.ErrorContains(t, err, "fetch calendar 2025-09")
}
