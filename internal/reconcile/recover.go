package reconcile

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/MGMAppDev/soccerview-pipeline/internal/audit"
	"github.com/MGMAppDev/soccerview-pipeline/internal/config"
)

const recoverChangedBy = "recovery"

// RecoverOptions select which audited deletions to undo.
type RecoverOptions struct {
	// Table defaults to the matches table.
	Table string
	// ChangedBy names the operator whose deletions to recover.
	ChangedBy string
	From, To  time.Time
	DryRun    bool
}

// Recover undoes audited deletions: it reads the audit log for DELETE and
// MERGE actions by the named operator inside the window and brings the
// rows back. Matches that would collide with a live row on their semantic
// key are not resurrected; instead the live row absorbs any score the
// dead row knew and the live row lacked. Safe to run repeatedly.
func (r *Reconciler) Recover(ctx context.Context, opts RecoverOptions) (*Result, error) {
	if opts.Table == "" {
		opts.Table = config.MatchesTable
	}
	result := &Result{Operator: "recovery", DryRun: opts.DryRun}

	if opts.ChangedBy == "" {
		return result, fmt.Errorf("recovery requires the operator name whose deletions to undo")
	}
	if opts.From.IsZero() || opts.To.IsZero() || opts.To.Before(opts.From) {
		return result, fmt.Errorf("recovery requires a valid time window")
	}

	err := r.runTx(ctx, opts.DryRun, func(tx pgx.Tx) error {
		deletions, err := audit.Deletions(ctx, tx, opts.Table, opts.ChangedBy, opts.From, opts.To)
		if err != nil {
			return err
		}
		result.Examined = len(deletions)
		if len(deletions) == 0 {
			return nil
		}

		switch opts.Table {
		case config.MatchesTable:
			return r.recoverMatches(ctx, tx, result, deletions)
		case config.TeamsTable:
			return r.recoverTeams(ctx, tx, result, deletions)
		default:
			return fmt.Errorf("recovery does not cover table %q", opts.Table)
		}
	})
	if err != nil {
		return result, err
	}

	if !opts.DryRun {
		r.refreshViews(ctx)
	}
	r.logger.Info("recovery finished",
		"table", opts.Table, "changed_by", opts.ChangedBy, "summary", result.Summary())
	return result, nil
}

// matchImage is the audited to_jsonb shape of a match row, as much of it
// as reinsertion needs.
type matchImage struct {
	ID             int64   `json:"id"`
	SourcePlatform string  `json:"source_platform"`
	SourceMatchKey string  `json:"source_match_key"`
	MatchDate      string  `json:"match_date"`
	MatchTime      *string `json:"match_time"`
	HomeTeamID     int64   `json:"home_team_id"`
	AwayTeamID     int64   `json:"away_team_id"`
	HomeScore      *int    `json:"home_score"`
	AwayScore      *int    `json:"away_score"`
	Status         string  `json:"status"`
	Venue          *string `json:"venue"`
	Division       *string `json:"division"`
	LeagueID       *int64  `json:"league_id"`
	TournamentID   *int64  `json:"tournament_id"`
}

// auditDateLayouts cover the jsonb date shapes to_jsonb produces for
// date, timestamp, and timestamptz columns.
var auditDateLayouts = []string{"2006-01-02", "2006-01-02T15:04:05", time.RFC3339}

func parseAuditDate(s string) (time.Time, error) {
	for _, layout := range auditDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized audit date %q", s)
}

func (r *Reconciler) recoverMatches(ctx context.Context, tx pgx.Tx, result *Result, deletions []audit.Deletion) error {
	ids := make([]int64, 0, len(deletions))
	images := make(map[int64]matchImage, len(deletions))
	for _, d := range deletions {
		var img matchImage
		if err := json.Unmarshal(d.OldData, &img); err != nil {
			result.AddErrorf("decode audited match %d: %v", d.RecordID, err)
			continue
		}
		ids = append(ids, d.RecordID)
		images[d.RecordID] = img
	}

	// Rows the audit log knows but the table lost entirely come back
	// first, soft-deleted, so the restore logic below treats every
	// recovery the same way.
	missing, err := r.missingIDs(ctx, tx, ids)
	if err != nil {
		return err
	}
	for _, id := range missing {
		img := images[id]
		matchDate, err := parseAuditDate(img.MatchDate)
		if err != nil {
			result.AddErrorf("audited match %d has unusable date %q", id, img.MatchDate)
			continue
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO `+config.MatchesTable+` (
				id, source_platform, source_match_key, match_date, match_time,
				home_team_id, away_team_id, home_score, away_score, status,
				venue, division, league_id, tournament_id,
				deleted_at, deletion_reason, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
				NOW(), 'recovery staging', NOW(), NOW())
			ON CONFLICT (source_match_key) DO NOTHING`,
			id, img.SourcePlatform, img.SourceMatchKey, matchDate, img.MatchTime,
			img.HomeTeamID, img.AwayTeamID, img.HomeScore, img.AwayScore,
			img.Status, img.Venue, img.Division, img.LeagueID, img.TournamentID)
		if err != nil {
			return fmt.Errorf("reinsert match %d: %w", id, err)
		}
	}

	// Teams may have merged since the deletion; follow the pointer so the
	// restored rows land on live teams.
	for _, side := range []string{"home_team_id", "away_team_id"} {
		if _, err := tx.Exec(ctx, `
			UPDATE `+config.MatchesTable+` m
			SET `+side+` = t.merged_into, updated_at = NOW()
			FROM `+config.TeamsTable+` t
			WHERE m.id = ANY($1) AND m.deleted_at IS NOT NULL
			  AND t.id = m.`+side+` AND t.merged_into IS NOT NULL`, ids); err != nil {
			return fmt.Errorf("repoint %s on recovered matches: %w", side, err)
		}
	}

	// Restore every dead row whose semantic key is free, best row per key.
	tag, err := tx.Exec(ctx, `
		WITH candidates AS (
			SELECT DISTINCT ON (m.match_date, m.home_team_id, m.away_team_id) m.id
			FROM `+config.MatchesTable+` m
			WHERE m.id = ANY($1) AND m.deleted_at IS NOT NULL
			  AND m.home_team_id <> m.away_team_id
			  AND NOT EXISTS (
				SELECT 1 FROM `+config.MatchesTable+` live
				WHERE live.deleted_at IS NULL
				  AND live.match_date = m.match_date
				  AND live.home_team_id = m.home_team_id
				  AND live.away_team_id = m.away_team_id)
			ORDER BY m.match_date, m.home_team_id, m.away_team_id,
			         (m.home_score IS NOT NULL) DESC, m.created_at ASC
		),
		audited AS (
			INSERT INTO `+config.AuditLogTable+`
				(table_name, record_id, action, new_data, changed_by, changed_at)
			SELECT '`+config.MatchesTable+`', m.id, 'INSERT',
			       to_jsonb(m) || jsonb_build_object('deleted_at', NULL, 'deletion_reason', NULL),
			       '`+recoverChangedBy+`', NOW()
			FROM `+config.MatchesTable+` m JOIN candidates c ON c.id = m.id
			RETURNING 1
		)
		UPDATE `+config.MatchesTable+` m SET
			deleted_at = NULL, deletion_reason = NULL, updated_at = NOW()
		FROM candidates c WHERE m.id = c.id`, ids)
	if err != nil {
		return fmt.Errorf("restore matches: %w", err)
	}
	result.Restored = int(tag.RowsAffected())

	// A dead row losing its key to a live one can still contribute its
	// score when the live row has none or only a placeholder 0-0.
	tag, err = tx.Exec(ctx, `
		WITH gains AS (
			SELECT DISTINCT ON (live.id)
			       live.id AS live_id, m.id AS dead_id,
			       m.home_score AS home, m.away_score AS away
			FROM `+config.MatchesTable+` m
			JOIN `+config.MatchesTable+` live ON live.deleted_at IS NULL
				AND live.match_date = m.match_date
				AND live.home_team_id = m.home_team_id
				AND live.away_team_id = m.away_team_id
			WHERE m.id = ANY($1) AND m.deleted_at IS NOT NULL
			  AND m.home_score IS NOT NULL
			  AND (live.home_score IS NULL
			       OR (live.home_score = 0 AND live.away_score = 0
			           AND (m.home_score <> 0 OR m.away_score <> 0)))
			ORDER BY live.id, m.created_at ASC
		),
		audited AS (
			INSERT INTO `+config.AuditLogTable+`
				(table_name, record_id, action, old_data, new_data, changed_by, changed_at)
			SELECT '`+config.MatchesTable+`', live.id, 'UPDATE', to_jsonb(live),
			       jsonb_build_object('home_score', g.home, 'away_score', g.away,
			                          'recovered_from', g.dead_id),
			       '`+recoverChangedBy+`', NOW()
			FROM gains g JOIN `+config.MatchesTable+` live ON live.id = g.live_id
			RETURNING 1
		)
		UPDATE `+config.MatchesTable+` live SET
			home_score = g.home, away_score = g.away,
			status = 'completed', updated_at = NOW()
		FROM gains g WHERE live.id = g.live_id`, ids)
	if err != nil {
		return fmt.Errorf("merge recovered scores: %w", err)
	}
	result.Updated = int(tag.RowsAffected())

	if err := tx.QueryRow(ctx, `
		SELECT COUNT(*) FROM `+config.MatchesTable+`
		WHERE id = ANY($1) AND deleted_at IS NOT NULL`, ids,
	).Scan(&result.Skipped); err != nil {
		return fmt.Errorf("count unrecovered matches: %w", err)
	}
	return nil
}

// recoverTeams un-merges audited team merges whose identity slot is still
// free. Matches re-pointed by the merge stay where they are; only the
// team row itself comes back.
func (r *Reconciler) recoverTeams(ctx context.Context, tx pgx.Tx, result *Result, deletions []audit.Deletion) error {
	ids := make([]int64, 0, len(deletions))
	for _, d := range deletions {
		ids = append(ids, d.RecordID)
	}

	tag, err := tx.Exec(ctx, `
		WITH candidates AS (
			SELECT t.id
			FROM `+config.TeamsTable+` t
			WHERE t.id = ANY($1) AND t.merged_into IS NOT NULL
			  AND NOT EXISTS (
				SELECT 1 FROM `+config.TeamsTable+` live
				WHERE live.merged_into IS NULL
				  AND live.canonical_name = t.canonical_name
				  AND live.birth_year IS NOT DISTINCT FROM t.birth_year
				  AND live.gender IS NOT DISTINCT FROM t.gender
				  AND live.state IS NOT DISTINCT FROM t.state)
		),
		audited AS (
			INSERT INTO `+config.AuditLogTable+`
				(table_name, record_id, action, old_data, new_data, changed_by, changed_at)
			SELECT '`+config.TeamsTable+`', t.id, 'INSERT', to_jsonb(t),
			       jsonb_build_object('merged_into', NULL, 'status', 'active'),
			       '`+recoverChangedBy+`', NOW()
			FROM `+config.TeamsTable+` t JOIN candidates c ON c.id = t.id
			RETURNING 1
		)
		UPDATE `+config.TeamsTable+` t SET
			merged_into = NULL, merged_at = NULL, merge_reason = NULL,
			status = 'active', updated_at = NOW()
		FROM candidates c WHERE t.id = c.id`, ids)
	if err != nil {
		return fmt.Errorf("restore teams: %w", err)
	}
	result.Restored = int(tag.RowsAffected())

	if err := tx.QueryRow(ctx, `
		SELECT COUNT(*) FROM `+config.TeamsTable+`
		WHERE id = ANY($1) AND merged_into IS NOT NULL`, ids,
	).Scan(&result.Skipped); err != nil {
		return fmt.Errorf("count unrecovered teams: %w", err)
	}
	return nil
}

func (r *Reconciler) missingIDs(ctx context.Context, tx pgx.Tx, ids []int64) ([]int64, error) {
	rows, err := tx.Query(ctx, `
		SELECT u.id
		FROM unnest($1::bigint[]) AS u(id)
		LEFT JOIN `+config.MatchesTable+` m ON m.id = u.id
		WHERE m.id IS NULL`, ids)
	if err != nil {
		return nil, fmt.Errorf("find hard-deleted matches: %w", err)
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return out, fmt.Errorf("scan hard-deleted match id: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
