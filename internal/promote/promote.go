// Package promote converts validated staging rows into production teams and
// matches. Each row promotes inside its own authorized transaction: teams
// resolve through the source entity map and the canonical registry before a
// new one is created, events upsert by source id, and match inserts merge
// on both the source key and the semantic key (date, home, away). A failing
// row is reported and left unprocessed; it never poisons the batch.
package promote

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/MGMAppDev/soccerview-pipeline/internal/audit"
	"github.com/MGMAppDev/soccerview-pipeline/internal/config"
	"github.com/MGMAppDev/soccerview-pipeline/internal/db"
	"github.com/MGMAppDev/soccerview-pipeline/internal/normalizer"
	"github.com/MGMAppDev/soccerview-pipeline/internal/registry"
)

const promoteBatchSize = 500

// changedBy tag on audit rows written by promotion merges.
const changedBy = "promote"

// Promoter drives staging-to-production promotion.
type Promoter struct {
	pool   *db.Pool
	norm   *normalizer.Normalizer
	logger *slog.Logger

	now func() time.Time

	// events caches resolved event ids for the run; entries are added only
	// after their transaction commits.
	events map[string]eventRef
}

type eventRef struct {
	leagueID     *int64
	tournamentID *int64
}

// stagingRow is one unprocessed staging_games row as promotion reads it.
type stagingRow struct {
	id            int64
	platform      string
	sourceKey     string
	homeName      string
	awayName      string
	homeScore     *int
	awayScore     *int
	date          time.Time
	timeText      string
	venue         string
	division      string
	eventName     string
	eventSourceID string
	eventType     string
	state         string
}

// outcome collects what one row's transaction did, applied to the result
// only after commit.
type outcome struct {
	action        string // "inserted" | "updated" | "merged"
	teamsCreated  int
	eventCreated  bool
	eventCacheKey string
	eventCacheRef eventRef
}

// New builds a promoter for the resolved season.
func New(pool *db.Pool, seasonYear int, logger *slog.Logger) *Promoter {
	return &Promoter{
		pool:   pool,
		norm:   normalizer.New(seasonYear),
		logger: logger,
		now:    time.Now,
		events: make(map[string]eventRef),
	}
}

// ProcessStaging promotes unprocessed staging rows, oldest first, up to
// limit (0 = no limit), fetching batchSize rows per query (0 = default).
// Rows that fail stay unprocessed and are reported in the result; the
// next run retries them.
func (p *Promoter) ProcessStaging(ctx context.Context, batchSize, limit int) (*Result, error) {
	result := &Result{}
	if batchSize <= 0 {
		batchSize = promoteBatchSize
	}

	var (
		cursorAt time.Time
		cursorID int64
	)
	for {
		batch := batchSize
		if limit > 0 && limit-result.Scanned < batch {
			batch = limit - result.Scanned
		}
		if batch <= 0 {
			break
		}

		rows, lastAt, lastID, err := p.fetchRows(ctx, cursorAt, cursorID, batch)
		if err != nil {
			return result, fmt.Errorf("fetch staging batch: %w", err)
		}
		if len(rows) == 0 {
			break
		}
		cursorAt, cursorID = lastAt, lastID

		for _, row := range rows {
			if err := ctx.Err(); err != nil {
				return result, err
			}
			result.Scanned++

			out, err := p.promoteRow(ctx, row)
			if err != nil {
				result.Failed++
				result.AddErrorf("row %d (%s): %v", row.id, row.sourceKey, err)
				p.logger.Error("promotion failed",
					"id", row.id, "key", row.sourceKey, "error", err)
				continue
			}
			p.applyOutcome(result, out)
		}

		if limit > 0 && result.Scanned >= limit {
			break
		}
	}

	p.logger.Info("promotion finished", "summary", result.Summary())
	return result, nil
}

func (p *Promoter) applyOutcome(result *Result, out *outcome) {
	switch out.action {
	case "inserted":
		result.Inserted++
	case "updated":
		result.Updated++
	case "merged":
		result.Merged++
	}
	result.TeamsCreated += out.teamsCreated
	if out.eventCreated {
		result.EventsCreated++
	}
	if out.eventCacheKey != "" {
		p.events[out.eventCacheKey] = out.eventCacheRef
	}
}

const selectUnprocessed = `
	SELECT id, source_platform, source_match_key,
	       COALESCE(home_team_name, ''), COALESCE(away_team_name, ''),
	       home_score, away_score, match_date,
	       COALESCE(match_time, ''), COALESCE(venue, ''), COALESCE(division, ''),
	       COALESCE(event_name, ''), COALESCE(event_source_id, ''),
	       COALESCE(event_type, ''), COALESCE(state, '')
	FROM ` + config.StagingGamesTable + `
	WHERE NOT processed
	  AND (scraped_at, id) > ($1, $2)
	ORDER BY scraped_at, id
	LIMIT $3`

func (p *Promoter) fetchRows(ctx context.Context, afterAt time.Time, afterID int64, limit int) ([]stagingRow, time.Time, int64, error) {
	rows, err := p.pool.Query(ctx, selectUnprocessed, afterAt, afterID, limit)
	if err != nil {
		return nil, afterAt, afterID, err
	}
	defer rows.Close()

	var out []stagingRow
	for rows.Next() {
		var (
			r    stagingRow
			date *time.Time
		)
		if err := rows.Scan(&r.id, &r.platform, &r.sourceKey,
			&r.homeName, &r.awayName, &r.homeScore, &r.awayScore, &date,
			&r.timeText, &r.venue, &r.division,
			&r.eventName, &r.eventSourceID, &r.eventType, &r.state); err != nil {
			return out, afterAt, afterID, fmt.Errorf("scan staging row: %w", err)
		}
		if date != nil {
			r.date = *date
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return out, afterAt, afterID, err
	}

	if len(out) > 0 {
		last := out[len(out)-1]
		// The cursor needs the real scraped_at of the last row; re-read it
		// by id since the batch query does not return it.
		if err := p.pool.QueryRow(ctx,
			`SELECT scraped_at FROM `+config.StagingGamesTable+` WHERE id = $1`,
			last.id).Scan(&afterAt); err != nil {
			return out, afterAt, afterID, fmt.Errorf("read cursor: %w", err)
		}
		afterID = last.id
	}
	return out, afterAt, afterID, nil
}

// promoteRow runs one staging row's full promotion transaction.
func (p *Promoter) promoteRow(ctx context.Context, row stagingRow) (*outcome, error) {
	out := &outcome{}

	err := db.WithPipelineTx(ctx, p.pool, func(tx pgx.Tx) error {
		homeID, homeCreated, err := p.resolveTeam(ctx, tx, row.platform, row.homeName, row.state)
		if err != nil {
			return fmt.Errorf("resolve home team: %w", err)
		}
		awayID, awayCreated, err := p.resolveTeam(ctx, tx, row.platform, row.awayName, row.state)
		if err != nil {
			return fmt.Errorf("resolve away team: %w", err)
		}
		if homeCreated {
			out.teamsCreated++
		}
		if awayCreated {
			out.teamsCreated++
		}
		if homeID == awayID {
			// Normalization collapsed both names onto one team; the row
			// cannot become a live match.
			return fmt.Errorf("home and away resolve to the same team %d", homeID)
		}

		ref, created, cacheKey, err := p.resolveEvent(ctx, tx, row)
		if err != nil {
			return fmt.Errorf("resolve event: %w", err)
		}
		out.eventCreated = created
		out.eventCacheKey = cacheKey
		out.eventCacheRef = ref

		hs, as := composeScores(row.homeScore, row.awayScore, row.date, p.today())

		merged, err := p.mergeSemanticDuplicate(ctx, tx, row, homeID, awayID, hs, as, ref)
		if err != nil {
			return err
		}
		if merged {
			out.action = "merged"
		} else {
			inserted, err := p.upsertMatch(ctx, tx, row, homeID, awayID, hs, as, ref)
			if err != nil {
				return err
			}
			out.action = "updated"
			if inserted {
				out.action = "inserted"
				if hs != nil && as != nil {
					if err := p.bumpTeamStats(ctx, tx, homeID, *hs, *as); err != nil {
						return err
					}
					if err := p.bumpTeamStats(ctx, tx, awayID, *as, *hs); err != nil {
						return err
					}
				}
			}
		}

		if _, err := tx.Exec(ctx,
			`UPDATE `+config.StagingGamesTable+` SET processed = true WHERE id = $1`,
			row.id); err != nil {
			return fmt.Errorf("mark processed: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// resolveTeam maps one raw team name to a production team id. The source
// entity map binds a platform's spelling permanently; the canonical
// registry catches the same team arriving from a new platform or spelling;
// only then is a team created. Teams without a birth year are still
// created and flagged, so reconciliation can absorb them later.
func (p *Promoter) resolveTeam(ctx context.Context, tx pgx.Tx, platform, rawName, state string) (int64, bool, error) {
	ident := p.norm.ExtractIdentity(rawName)

	if id, ok, err := registry.FindSourceEntity(ctx, tx, platform, registry.EntityTeam, rawName); err != nil {
		return 0, false, err
	} else if ok {
		return id, false, nil
	}

	if id, ok, err := registry.FindTeam(ctx, tx, rawName, ident, state); err != nil {
		return 0, false, err
	} else if ok {
		if err := registry.Register(ctx, tx, id, ident, rawName, state); err != nil {
			return 0, false, err
		}
		if err := registry.BindSourceEntity(ctx, tx, platform, registry.EntityTeam, rawName, id); err != nil {
			return 0, false, err
		}
		return id, false, nil
	}

	flags := []string{}
	if ident.BirthYear == 0 {
		flags = append(flags, "needs_birth_year_review")
	}
	if ident.BirthYearConflict {
		flags = append(flags, "birth_year_conflict")
	}

	var id int64
	err := tx.QueryRow(ctx, `
		INSERT INTO `+config.TeamsTable+` (
			display_name, canonical_name, birth_year, gender, state,
			status, data_quality_flags, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, 'active', $6, NOW(), NOW())
		RETURNING id`,
		rawName, ident.CanonicalName, nilZero(ident.BirthYear),
		nilEmpty(ident.Gender), nilEmpty(state), flags).Scan(&id)
	if err != nil {
		return 0, false, fmt.Errorf("create team %q: %w", rawName, err)
	}

	if err := registry.Register(ctx, tx, id, ident, rawName, state); err != nil {
		return 0, false, err
	}
	if err := registry.BindSourceEntity(ctx, tx, platform, registry.EntityTeam, rawName, id); err != nil {
		return 0, false, err
	}
	return id, true, nil
}

// resolveEvent upserts the row's league or tournament by source id. The
// returned cache key is committed to the run cache only after the row's
// transaction commits.
func (p *Promoter) resolveEvent(ctx context.Context, tx pgx.Tx, row stagingRow) (eventRef, bool, string, error) {
	if row.eventSourceID == "" {
		return eventRef{}, false, "", errors.New("staging row has no event source id")
	}

	table := config.TournamentsTable
	if row.eventType == "league" {
		table = config.LeaguesTable
	}
	cacheKey := table + "|" + row.platform + "|" + row.eventSourceID
	if ref, ok := p.events[cacheKey]; ok {
		return ref, false, "", nil
	}

	var (
		id       int64
		inserted bool
	)
	err := tx.QueryRow(ctx, `
		INSERT INTO `+table+` (
			name, source_platform, source_event_id, state, created_at, updated_at)
		VALUES (NULLIF($1, ''), $2, $3, NULLIF($4, ''), NOW(), NOW())
		ON CONFLICT (source_platform, source_event_id) DO UPDATE SET
			name       = COALESCE(`+table+`.name, EXCLUDED.name),
			state      = COALESCE(`+table+`.state, EXCLUDED.state),
			updated_at = NOW()
		RETURNING id, (xmax = 0) AS inserted`,
		row.eventName, row.platform, row.eventSourceID, row.state).Scan(&id, &inserted)
	if err != nil {
		return eventRef{}, false, "", fmt.Errorf("upsert %s %s: %w", table, row.eventSourceID, err)
	}

	var ref eventRef
	if table == config.LeaguesTable {
		ref.leagueID = &id
	} else {
		ref.tournamentID = &id
	}
	return ref, inserted, cacheKey, nil
}

// composeScores enforces the score-pair contract: both null or both real.
// A (0, 0) on a match that has not been played yet is the scheduled-zero
// artifact, not a result, and becomes null.
func composeScores(home, away *int, matchDate, today time.Time) (*int, *int) {
	if home == nil || away == nil {
		return nil, nil
	}
	if *home == 0 && *away == 0 && !matchDate.Before(today) {
		return nil, nil
	}
	return home, away
}

// mergeSemanticDuplicate absorbs the row into an existing live match for
// the same (date, home, away) arriving under a different source key. The
// winning scores prefer real results over null and over scheduled zeros;
// missing event linkage is filled. The incoming key is bound to the
// surviving match so future re-scrapes land on it directly.
func (p *Promoter) mergeSemanticDuplicate(ctx context.Context, tx pgx.Tx, row stagingRow, homeID, awayID int64, hs, as *int, ref eventRef) (bool, error) {
	var (
		existingID  int64
		existingKey string
		oldHome     *int
		oldAway     *int
	)
	err := tx.QueryRow(ctx, `
		SELECT id, source_match_key, home_score, away_score
		FROM `+config.MatchesTable+`
		WHERE match_date = $1 AND home_team_id = $2 AND away_team_id = $3
		  AND deleted_at IS NULL
		  AND source_match_key <> $4
		LIMIT 1`,
		row.date, homeID, awayID, row.sourceKey).
		Scan(&existingID, &existingKey, &oldHome, &oldAway)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("semantic duplicate check: %w", err)
	}

	_, err = tx.Exec(ctx, `
		UPDATE `+config.MatchesTable+` SET
			home_score = CASE
				WHEN $2::int IS NULL THEN home_score
				WHEN home_score IS NULL
				  OR (home_score = 0 AND away_score = 0 AND ($2 <> 0 OR $3 <> 0))
				THEN $2
				ELSE home_score END,
			away_score = CASE
				WHEN $3::int IS NULL THEN away_score
				WHEN away_score IS NULL
				  OR (home_score = 0 AND away_score = 0 AND ($2 <> 0 OR $3 <> 0))
				THEN $3
				ELSE away_score END,
			league_id = CASE
				WHEN league_id IS NULL AND tournament_id IS NULL THEN $4
				ELSE league_id END,
			tournament_id = CASE
				WHEN league_id IS NULL AND tournament_id IS NULL THEN $5
				ELSE tournament_id END,
			status = CASE
				WHEN home_score IS NOT NULL OR $2::int IS NOT NULL THEN 'completed'
				ELSE 'scheduled' END,
			updated_at = NOW()
		WHERE id = $1`,
		existingID, hs, as, ref.leagueID, ref.tournamentID)
	if err != nil {
		return false, fmt.Errorf("merge into match %d: %w", existingID, err)
	}

	if err := registry.BindSourceEntity(ctx, tx, row.platform, registry.EntityMatch, row.sourceKey, existingID); err != nil {
		return false, err
	}

	err = audit.Record(ctx, tx, audit.Entry{
		TableName: config.MatchesTable,
		RecordID:  existingID,
		Action:    audit.ActionUpdate,
		OldData: map[string]any{
			"source_match_key": existingKey,
			"home_score":       oldHome,
			"away_score":       oldAway,
		},
		NewData: map[string]any{
			"merged_source_match_key": row.sourceKey,
			"source_platform":         row.platform,
			"home_score":              hs,
			"away_score":              as,
		},
		ChangedBy: changedBy,
	})
	if err != nil {
		return false, err
	}

	p.logger.Info("semantic duplicate merged",
		"match", existingID, "kept_key", existingKey, "incoming_key", row.sourceKey)
	return true, nil
}

// upsertMatch inserts the match or merges a re-scrape onto its existing row
// by source key. A soft-deleted row keeps its deleted_at: re-scraping a
// match that reconciliation removed must not resurrect it.
func (p *Promoter) upsertMatch(ctx context.Context, tx pgx.Tx, row stagingRow, homeID, awayID int64, hs, as *int, ref eventRef) (bool, error) {
	status := "scheduled"
	if hs != nil && as != nil {
		status = "completed"
	}

	var (
		id       int64
		inserted bool
	)
	err := tx.QueryRow(ctx, `
		INSERT INTO `+config.MatchesTable+` (
			match_date, match_time, home_team_id, away_team_id,
			home_score, away_score, league_id, tournament_id,
			venue, division, status, source_platform, source_match_key,
			created_at, updated_at)
		VALUES ($1, NULLIF($2, ''), $3, $4, $5, $6, $7, $8,
			NULLIF($9, ''), NULLIF($10, ''), $11, $12, $13, NOW(), NOW())
		ON CONFLICT (source_match_key) DO UPDATE SET
			home_score = CASE
				WHEN EXCLUDED.home_score IS NULL THEN `+config.MatchesTable+`.home_score
				WHEN `+config.MatchesTable+`.home_score IS NULL
				  OR (`+config.MatchesTable+`.home_score = 0
				      AND `+config.MatchesTable+`.away_score = 0
				      AND (EXCLUDED.home_score <> 0 OR EXCLUDED.away_score <> 0))
				THEN EXCLUDED.home_score
				ELSE `+config.MatchesTable+`.home_score END,
			away_score = CASE
				WHEN EXCLUDED.away_score IS NULL THEN `+config.MatchesTable+`.away_score
				WHEN `+config.MatchesTable+`.away_score IS NULL
				  OR (`+config.MatchesTable+`.home_score = 0
				      AND `+config.MatchesTable+`.away_score = 0
				      AND (EXCLUDED.home_score <> 0 OR EXCLUDED.away_score <> 0))
				THEN EXCLUDED.away_score
				ELSE `+config.MatchesTable+`.away_score END,
			match_time = COALESCE(`+config.MatchesTable+`.match_time, EXCLUDED.match_time),
			venue      = COALESCE(`+config.MatchesTable+`.venue, EXCLUDED.venue),
			division   = COALESCE(`+config.MatchesTable+`.division, EXCLUDED.division),
			league_id = CASE
				WHEN `+config.MatchesTable+`.league_id IS NULL
				 AND `+config.MatchesTable+`.tournament_id IS NULL
				THEN EXCLUDED.league_id
				ELSE `+config.MatchesTable+`.league_id END,
			tournament_id = CASE
				WHEN `+config.MatchesTable+`.league_id IS NULL
				 AND `+config.MatchesTable+`.tournament_id IS NULL
				THEN EXCLUDED.tournament_id
				ELSE `+config.MatchesTable+`.tournament_id END,
			status = CASE
				WHEN `+config.MatchesTable+`.home_score IS NOT NULL
				  OR EXCLUDED.home_score IS NOT NULL
				THEN 'completed'
				ELSE 'scheduled' END,
			updated_at = NOW()
		RETURNING id, (xmax = 0) AS inserted`,
		row.date, row.timeText, homeID, awayID, hs, as,
		ref.leagueID, ref.tournamentID, row.venue, row.division,
		status, row.platform, row.sourceKey).Scan(&id, &inserted)
	if err != nil {
		return false, fmt.Errorf("upsert match %s: %w", row.sourceKey, err)
	}

	if err := registry.BindSourceEntity(ctx, tx, row.platform, registry.EntityMatch, row.sourceKey, id); err != nil {
		return false, err
	}
	return inserted, nil
}

// bumpTeamStats advances a team's cached record for one newly inserted
// completed match, from the team's own perspective. Merge-path score
// changes are not counted here; the metadata operator's stat recompute is
// the corrective for those.
func (p *Promoter) bumpTeamStats(ctx context.Context, tx pgx.Tx, teamID int64, goalsFor, goalsAgainst int) error {
	_, err := tx.Exec(ctx, `
		UPDATE `+config.TeamsTable+` SET
			matches_played = matches_played + 1,
			wins   = wins   + CASE WHEN $2 > $3 THEN 1 ELSE 0 END,
			losses = losses + CASE WHEN $2 < $3 THEN 1 ELSE 0 END,
			draws  = draws  + CASE WHEN $2 = $3 THEN 1 ELSE 0 END,
			updated_at = NOW()
		WHERE id = $1`,
		teamID, goalsFor, goalsAgainst)
	if err != nil {
		return fmt.Errorf("bump stats for team %d: %w", teamID, err)
	}
	return nil
}

func (p *Promoter) today() time.Time {
	now := p.now()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
}

// nilZero converts 0 to nil for nullable integer columns.
func nilZero(v int) any {
	if v == 0 {
		return nil
	}
	return v
}

// nilEmpty converts empty strings to nil for nullable columns.
func nilEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
