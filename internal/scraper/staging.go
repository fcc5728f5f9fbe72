package scraper

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/MGMAppDev/soccerview-pipeline/internal/adapter"
	"github.com/MGMAppDev/soccerview-pipeline/internal/config"
	"github.com/MGMAppDev/soccerview-pipeline/internal/intake"
)

// stagingBatchSize bounds the multi-row INSERT; 500 rows keeps the
// statement comfortably under parameter limits (16 binds per row).
const stagingBatchSize = 500

const stagingColumns = 16

// stageMatches bulk-inserts finalized rows into staging_games. Keys seen in
// a previous run are skipped here; merging re-scraped data into production
// is promotion's job, not staging's.
func (e *Engine) stageMatches(ctx context.Context, matches []adapter.RawMatch) (int, error) {
	staged := 0
	for start := 0; start < len(matches); start += stagingBatchSize {
		end := min(start+stagingBatchSize, len(matches))
		n, err := e.stageBatch(ctx, matches[start:end])
		staged += n
		if err != nil {
			return staged, err
		}
	}
	return staged, nil
}

func (e *Engine) stageBatch(ctx context.Context, batch []adapter.RawMatch) (int, error) {
	var (
		sb   strings.Builder
		args = make([]any, 0, len(batch)*stagingColumns)
	)
	sb.WriteString(`INSERT INTO ` + config.StagingGamesTable + ` (
		source_platform, source_match_key, home_team_name, away_team_name,
		home_score, away_score, match_date, match_time, venue, division,
		event_name, event_source_id, event_type, status, state, raw_data,
		processed, scraped_at) VALUES `)

	for i, m := range batch {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteByte('(')
		for j := 1; j <= stagingColumns; j++ {
			if j > 1 {
				sb.WriteByte(',')
			}
			fmt.Fprintf(&sb, "$%d", i*stagingColumns+j)
		}
		sb.WriteString(", false, NOW())")

		raw, err := json.Marshal(map[string]any{
			"runId":       e.runID,
			"matchNumber": m.MatchNumber,
			"columns":     m.Columns,
		})
		if err != nil {
			return 0, fmt.Errorf("marshal raw data for %s: %w", m.SourceKey, err)
		}

		args = append(args,
			e.ad.Platform, m.SourceKey, m.HomeTeam, m.AwayTeam,
			m.HomeScore, m.AwayScore, m.Date, nilEmpty(m.TimeText),
			nilEmpty(m.Venue), nilEmpty(m.Division),
			nilEmpty(m.EventName), m.EventID, string(m.EventType),
			m.Status, nilEmpty(m.State), raw)
	}
	sb.WriteString(` ON CONFLICT (source_match_key) DO NOTHING`)

	tag, err := e.pool.Exec(ctx, sb.String(), args...)
	if err != nil {
		return 0, fmt.Errorf("stage batch: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// recordEvent upserts the staging_events ledger row for one scraped event.
// Blank re-scrapes never erase a previously learned name or state.
func (e *Engine) recordEvent(ctx context.Context, ev adapter.Event, matchesFound int) error {
	evType := ev.Type
	if evType == "" {
		evType = e.ad.DefaultEventType
	}
	_, err := e.pool.Exec(ctx, `
		INSERT INTO `+config.StagingEventsTable+` (
			source_platform, source_event_id, name, event_type, state, year,
			matches_found, last_scraped_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		ON CONFLICT (source_platform, source_event_id) DO UPDATE SET
			name            = COALESCE(NULLIF(EXCLUDED.name, ''), `+config.StagingEventsTable+`.name),
			event_type      = EXCLUDED.event_type,
			state           = COALESCE(NULLIF(EXCLUDED.state, ''), `+config.StagingEventsTable+`.state),
			year            = CASE WHEN EXCLUDED.year > 0 THEN EXCLUDED.year ELSE `+config.StagingEventsTable+`.year END,
			matches_found   = EXCLUDED.matches_found,
			last_scraped_at = NOW()`,
		e.ad.Platform, ev.ID, ev.Name, string(evType), nilEmpty(ev.State), ev.Year, matchesFound)
	if err != nil {
		return fmt.Errorf("record staging event %s: %w", ev.ID, err)
	}
	return nil
}

// stagingRecords converts parsed matches to the intake view so dry runs can
// preview the validator's verdicts before anything is staged.
func stagingRecords(platform string, matches []adapter.RawMatch) []intake.Record {
	recs := make([]intake.Record, len(matches))
	for i, m := range matches {
		recs[i] = intake.Record{
			SourcePlatform: platform,
			SourceMatchKey: m.SourceKey,
			HomeTeamName:   m.HomeTeam,
			AwayTeamName:   m.AwayTeam,
			HomeScore:      m.HomeScore,
			AwayScore:      m.AwayScore,
			MatchDate:      m.Date,
			MatchTime:      m.TimeText,
			Venue:          m.Venue,
			Division:       m.Division,
			EventName:      m.EventName,
			EventSourceID:  m.EventID,
			EventType:      string(m.EventType),
			Status:         m.Status,
			State:          m.State,
		}
	}
	return recs
}

// nilEmpty converts empty strings to nil for nullable columns.
func nilEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
