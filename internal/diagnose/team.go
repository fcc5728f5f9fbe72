package diagnose

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/MGMAppDev/soccerview-pipeline/internal/config"
	"github.com/MGMAppDev/soccerview-pipeline/internal/registry"
)

// TeamSummary is one row of a name search.
type TeamSummary struct {
	ID            int64
	DisplayName   string
	BirthYear     *int
	Gender        *string
	State         *string
	MatchesPlayed int
}

// SearchTeams finds live teams whose display or canonical name contains
// the query, most active first.
func (d *Doctor) SearchTeams(ctx context.Context, name string) ([]TeamSummary, error) {
	rows, err := d.pool.Query(ctx, `
		SELECT id, display_name, birth_year, gender, state, matches_played
		FROM `+config.TeamsTable+`
		WHERE merged_into IS NULL
		  AND (display_name ILIKE '%' || $1 || '%'
		       OR canonical_name ILIKE '%' || $1 || '%')
		ORDER BY matches_played DESC, display_name
		LIMIT 25`, name)
	if err != nil {
		return nil, fmt.Errorf("search teams: %w", err)
	}
	defer rows.Close()

	var out []TeamSummary
	for rows.Next() {
		var s TeamSummary
		if err := rows.Scan(&s.ID, &s.DisplayName, &s.BirthYear, &s.Gender,
			&s.State, &s.MatchesPlayed); err != nil {
			return out, fmt.Errorf("scan team summary: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// MatchLine is one recent match from the reported team's perspective.
type MatchLine struct {
	Date     time.Time
	Opponent string
	Home     bool
	Score    string // goals for-against, empty when unplayed
	Status   string
	Platform string
}

// TeamReport is everything diagnose knows about one team.
type TeamReport struct {
	TeamSummary
	CanonicalName string
	Status        string
	MergedInto    *int64

	Wins, Losses, Draws int
	ActualPlayed        int // live scored matches counted right now

	NationalRank   *int
	StateRank      *int
	RegionalRank   *int
	GotsportPoints *float64
	EloRating      *float64

	DataQualityFlags []string
	Aliases          []string
	SourceKeys       []string
	RecentMatches    []MatchLine

	Findings []Finding
}

// Report assembles the full picture for one team id, merged or live.
func (d *Doctor) Report(ctx context.Context, id int64) (*TeamReport, error) {
	r := &TeamReport{}
	err := d.pool.QueryRow(ctx, `
		SELECT t.id, t.display_name, t.canonical_name, t.birth_year, t.gender,
		       t.state, t.status, t.merged_into,
		       t.matches_played, t.wins, t.losses, t.draws,
		       t.national_rank, t.state_rank, t.regional_rank,
		       t.gotsport_points, t.elo_rating, t.data_quality_flags,
		       COALESCE(c.aliases, '{}'::text[])
		FROM `+config.TeamsTable+` t
		LEFT JOIN `+config.CanonicalTeamsTable+` c ON c.team_id = t.id
		WHERE t.id = $1`, id).Scan(
		&r.ID, &r.DisplayName, &r.CanonicalName, &r.BirthYear, &r.Gender,
		&r.State, &r.Status, &r.MergedInto,
		&r.MatchesPlayed, &r.Wins, &r.Losses, &r.Draws,
		&r.NationalRank, &r.StateRank, &r.RegionalRank,
		&r.GotsportPoints, &r.EloRating, &r.DataQualityFlags, &r.Aliases)
	if err == pgx.ErrNoRows {
		return nil, fmt.Errorf("team %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("load team %d: %w", id, err)
	}

	if err := d.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM `+config.MatchesTable+`
		WHERE (home_team_id = $1 OR away_team_id = $1)
		  AND deleted_at IS NULL AND home_score IS NOT NULL`, id,
	).Scan(&r.ActualPlayed); err != nil {
		return nil, fmt.Errorf("count matches for team %d: %w", id, err)
	}

	if err := d.loadSourceKeys(ctx, r); err != nil {
		return nil, err
	}
	if err := d.loadRecentMatches(ctx, r); err != nil {
		return nil, err
	}
	if err := d.teamFindings(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

func (d *Doctor) loadSourceKeys(ctx context.Context, r *TeamReport) error {
	rows, err := d.pool.Query(ctx, `
		SELECT source_platform || ':' || source_entity_key
		FROM `+config.SourceEntityMapTable+`
		WHERE source_entity_type = $1 AND production_id = $2
		ORDER BY 1`, registry.EntityTeam, r.ID)
	if err != nil {
		return fmt.Errorf("load source keys for team %d: %w", r.ID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return fmt.Errorf("scan source key: %w", err)
		}
		r.SourceKeys = append(r.SourceKeys, key)
	}
	return rows.Err()
}

func (d *Doctor) loadRecentMatches(ctx context.Context, r *TeamReport) error {
	rows, err := d.pool.Query(ctx, `
		SELECT m.match_date, m.status, m.source_platform,
		       m.home_team_id = $1 AS is_home,
		       CASE WHEN m.home_team_id = $1
		            THEN away.display_name ELSE home.display_name END,
		       m.home_score, m.away_score
		FROM `+config.MatchesTable+` m
		JOIN `+config.TeamsTable+` home ON home.id = m.home_team_id
		JOIN `+config.TeamsTable+` away ON away.id = m.away_team_id
		WHERE (m.home_team_id = $1 OR m.away_team_id = $1)
		  AND m.deleted_at IS NULL
		ORDER BY m.match_date DESC
		LIMIT 10`, r.ID)
	if err != nil {
		return fmt.Errorf("load matches for team %d: %w", r.ID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			line       MatchLine
			home, away *int
		)
		if err := rows.Scan(&line.Date, &line.Status, &line.Platform,
			&line.Home, &line.Opponent, &home, &away); err != nil {
			return fmt.Errorf("scan match line: %w", err)
		}
		if home != nil && away != nil {
			goalsFor, goalsAgainst := *home, *away
			if !line.Home {
				goalsFor, goalsAgainst = goalsAgainst, goalsFor
			}
			line.Score = fmt.Sprintf("%d-%d", goalsFor, goalsAgainst)
		}
		r.RecentMatches = append(r.RecentMatches, line)
	}
	return rows.Err()
}

// teamFindings flags the anomalies visible on one team and names the
// command that repairs each.
func (d *Doctor) teamFindings(ctx context.Context, r *TeamReport) error {
	if r.MergedInto != nil {
		r.Findings = append(r.Findings, Finding{
			Check: "merged", Severity: SeverityWarning,
			Message:    fmt.Sprintf("team was merged into %d", *r.MergedInto),
			Suggestion: fmt.Sprintf("run: soccerview-pipeline diagnose --team-id %d", *r.MergedInto),
		})
		return nil
	}

	if r.BirthYear == nil || r.Gender == nil {
		r.Findings = append(r.Findings, Finding{
			Check: "null-metadata", Severity: SeverityWarning,
			Message:    "birth year or gender is missing",
			Suggestion: "run: soccerview-pipeline reconcile metadata --execute",
		})
	}
	if r.MatchesPlayed != r.ActualPlayed {
		r.Findings = append(r.Findings, Finding{
			Check: "cached-stats", Severity: SeverityWarning,
			Message: fmt.Sprintf("cached matches_played=%d but %d live scored matches exist",
				r.MatchesPlayed, r.ActualPlayed),
			Suggestion: "run: soccerview-pipeline reconcile metadata --execute",
		})
	}
	if len(r.SourceKeys) == 0 && r.MatchesPlayed > 0 {
		r.Findings = append(r.Findings, Finding{
			Check: "unmapped", Severity: SeverityWarning,
			Message:    "no source platform maps to this team",
			Suggestion: "run: soccerview-pipeline reconcile metadata --execute",
		})
	}

	var twins int
	err := d.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM `+config.TeamsTable+` o
		WHERE o.merged_into IS NULL AND o.id <> $1
		  AND o.canonical_name = $2
		  AND o.birth_year IS NOT DISTINCT FROM $3
		  AND o.gender IS NOT DISTINCT FROM $4`,
		r.ID, r.CanonicalName, r.BirthYear, r.Gender).Scan(&twins)
	if err != nil {
		return fmt.Errorf("count identity twins for team %d: %w", r.ID, err)
	}
	if twins > 0 {
		r.Findings = append(r.Findings, Finding{
			Check: "duplicate-teams", Severity: SeverityWarning,
			Message:    fmt.Sprintf("%d other live teams share this identity", twins),
			Suggestion: "run: soccerview-pipeline reconcile dedupe --execute",
		})
	}
	return nil
}
