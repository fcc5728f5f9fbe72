package scraper

import (
	"context"
	"fmt"

	"github.com/MGMAppDev/soccerview-pipeline/internal/adapter"
	"github.com/MGMAppDev/soccerview-pipeline/internal/config"
)

// Default windows for universal database discovery: an event is worth
// re-scraping while its matches fall inside [today-lookback, today+forward].
const (
	defaultLookbackDays = 180
	defaultForwardDays  = 90
)

// DiscoverEventsFromDB finds events this platform has produced before:
// leagues and tournaments with live matches in the date window, plus
// staging_events rows scraped recently enough to still be in season. This
// is what lets a nightly run follow the season without a hand-kept list;
// it works identically for every adapter, which is why brand-new sources
// need either a seed list or an explicit event id to bootstrap.
func (e *Engine) DiscoverEventsFromDB(ctx context.Context, lookbackDays, forwardDays int) ([]adapter.Event, error) {
	now := e.now()
	from := now.AddDate(0, 0, -lookbackDays)
	to := now.AddDate(0, 0, forwardDays)

	var events []adapter.Event
	seen := make(map[string]bool)

	rows, err := e.pool.Query(ctx, `
		SELECT l.source_event_id, l.name, 'league', COALESCE(l.state, '')
		FROM `+config.LeaguesTable+` l
		WHERE l.source_platform = $1
		  AND EXISTS (
			SELECT 1 FROM `+config.MatchesTable+` m
			WHERE m.league_id = l.id
			  AND m.deleted_at IS NULL
			  AND m.match_date BETWEEN $2 AND $3)
		UNION ALL
		SELECT t.source_event_id, t.name, 'tournament', COALESCE(t.state, '')
		FROM `+config.TournamentsTable+` t
		WHERE t.source_platform = $1
		  AND EXISTS (
			SELECT 1 FROM `+config.MatchesTable+` m
			WHERE m.tournament_id = t.id
			  AND m.deleted_at IS NULL
			  AND m.match_date BETWEEN $2 AND $3)
		ORDER BY 1`,
		e.ad.Platform, from, to)
	if err != nil {
		return nil, fmt.Errorf("discover production events: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id, name, evType, state string
		if err := rows.Scan(&id, &name, &evType, &state); err != nil {
			return events, fmt.Errorf("scan discovered event: %w", err)
		}
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		events = append(events, adapter.Event{
			ID:    id,
			Name:  name,
			Type:  adapter.EventType(evType),
			Year:  adapter.EventYear(name),
			State: state,
		})
	}
	if err := rows.Err(); err != nil {
		return events, fmt.Errorf("discover production events: %w", err)
	}

	// Staged-but-unpromoted events would be invisible above; the staging
	// ledger covers the gap.
	staged, err := e.pool.Query(ctx, `
		SELECT source_event_id, COALESCE(name, ''), COALESCE(event_type, ''),
		       COALESCE(state, ''), COALESCE(year, 0)
		FROM `+config.StagingEventsTable+`
		WHERE source_platform = $1 AND last_scraped_at >= $2
		ORDER BY source_event_id`,
		e.ad.Platform, from)
	if err != nil {
		return events, fmt.Errorf("discover staged events: %w", err)
	}
	defer staged.Close()

	for staged.Next() {
		var (
			ev   adapter.Event
			year int
		)
		var evType string
		if err := staged.Scan(&ev.ID, &ev.Name, &evType, &ev.State, &year); err != nil {
			return events, fmt.Errorf("scan staged event: %w", err)
		}
		if ev.ID == "" || seen[ev.ID] {
			continue
		}
		seen[ev.ID] = true
		ev.Type = adapter.EventType(evType)
		ev.Year = year
		if ev.Year == 0 {
			ev.Year = adapter.EventYear(ev.Name)
		}
		events = append(events, ev)
	}
	if err := staged.Err(); err != nil {
		return events, fmt.Errorf("discover staged events: %w", err)
	}

	return events, nil
}
