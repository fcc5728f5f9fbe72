package reconcile

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/MGMAppDev/soccerview-pipeline/internal/config"
	"github.com/MGMAppDev/soccerview-pipeline/internal/db"
	"github.com/MGMAppDev/soccerview-pipeline/internal/registry"
)

const mergeChangedBy = "teamMerge"

// MergeOptions control the duplicate-team merge operator.
type MergeOptions struct {
	// ByDisplayName groups on the raw display name instead of the
	// canonical name; catches duplicates the normalizer missed.
	ByDisplayName bool
	DryRun        bool
}

// keeperOrder ranks a duplicate group: most matches first, then best
// national rank, then strongest rating, with creation time as the
// deterministic tiebreak. Index 0 after this ordering is the keeper.
const keeperOrder = `matches_played DESC, national_rank ASC NULLS LAST,
	elo_rating DESC NULLS LAST, created_at ASC`

// MergeDuplicates merges live teams sharing the same identity. Each group
// merges in its own transaction; a group that fails falls back to one
// loser-keeper pair at a time so a single conflicting row cannot block the
// whole group. Dry run lists the groups without touching anything.
func (r *Reconciler) MergeDuplicates(ctx context.Context, opts MergeOptions) (*Result, error) {
	result := &Result{Operator: "teamDedupe", DryRun: opts.DryRun}

	groups, err := r.duplicateGroups(ctx, opts.ByDisplayName)
	if err != nil {
		return result, err
	}
	result.Groups = len(groups)

	for _, g := range groups {
		result.Examined += len(g.ids)
		if opts.DryRun {
			r.logger.Info("duplicate group",
				"name", g.name, "birth_year", g.birthYear, "gender", g.gender,
				"keeper", g.ids[0], "losers", g.ids[1:])
			continue
		}

		var counts mergeCounts
		err := db.WithPipelineTx(ctx, r.pool, func(tx pgx.Tx) error {
			var err error
			counts, err = r.mergeGroup(ctx, tx, g.ids, "duplicate identity")
			return err
		})
		if err == nil {
			counts.apply(result)
			continue
		}

		r.logger.Warn("group merge failed, retrying pairwise",
			"keeper", g.ids[0], "error", err)
		for _, loser := range g.ids[1:] {
			pair := []int64{g.ids[0], loser}
			err := db.WithPipelineTx(ctx, r.pool, func(tx pgx.Tx) error {
				var err error
				counts, err = r.mergeGroup(ctx, tx, pair, "duplicate identity")
				return err
			})
			if err != nil {
				result.AddErrorf("merge %d into %d: %v", loser, g.ids[0], err)
				r.logger.Error("pair merge failed",
					"loser", loser, "keeper", g.ids[0], "error", err)
				continue
			}
			counts.apply(result)
		}
	}

	if !opts.DryRun {
		r.refreshViews(ctx)
	}
	r.logger.Info("dedupe finished", "summary", result.Summary())
	return result, nil
}

// mergeCounts is what one committed merge transaction changed.
type mergeCounts struct {
	softDeleted int
	hardDeleted int
	repointed   int
}

func (c mergeCounts) apply(result *Result) {
	result.SoftDeleted += c.softDeleted
	result.HardDeleted += c.hardDeleted
	result.Repointed += c.repointed
}

type dupGroup struct {
	name      string
	birthYear *int
	gender    *string
	ids       []int64 // keeper first
}

func (r *Reconciler) duplicateGroups(ctx context.Context, byDisplayName bool) ([]dupGroup, error) {
	nameCol := "canonical_name"
	if byDisplayName {
		nameCol = "display_name"
	}

	rows, err := r.pool.Query(ctx, `
		SELECT `+nameCol+`, birth_year, gender,
		       array_agg(id ORDER BY `+keeperOrder+`) AS ids
		FROM `+config.TeamsTable+`
		WHERE merged_into IS NULL
		GROUP BY `+nameCol+`, birth_year, gender
		HAVING COUNT(*) > 1
		ORDER BY `+nameCol+`, birth_year, gender`)
	if err != nil {
		return nil, fmt.Errorf("find duplicate groups: %w", err)
	}
	defer rows.Close()

	var groups []dupGroup
	for rows.Next() {
		var g dupGroup
		if err := rows.Scan(&g.name, &g.birthYear, &g.gender, &g.ids); err != nil {
			return groups, fmt.Errorf("scan duplicate group: %w", err)
		}
		groups = append(groups, g)
	}
	if err := rows.Err(); err != nil {
		return groups, fmt.Errorf("find duplicate groups: %w", err)
	}
	return groups, nil
}

// rankTeams orders arbitrary team ids by the keeper ranking. Used when a
// merge pair arrives from outside the grouping query (metadata collisions).
func (r *Reconciler) rankTeams(ctx context.Context, ids []int64) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id FROM `+config.TeamsTable+`
		WHERE id = ANY($1) AND merged_into IS NULL
		ORDER BY `+keeperOrder, ids)
	if err != nil {
		return nil, fmt.Errorf("rank teams: %w", err)
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return out, fmt.Errorf("scan ranked team: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// mergeGroup folds losers into the keeper inside the caller's transaction:
// preserve best ranks on the keeper, soft-delete matches that would
// collide or fold into an intra-squad pairing after re-pointing, re-point
// surviving matches and dependent tables, drop loser rank history, rebuild
// the keeper's cached record, then soft-delete the losers. ids[0] is the
// keeper. Counts are returned so the caller only applies them when the
// transaction commits.
func (r *Reconciler) mergeGroup(ctx context.Context, tx pgx.Tx, ids []int64, reason string) (mergeCounts, error) {
	var c mergeCounts
	keeper, losers := ids[0], ids[1:]

	if _, err := tx.Exec(ctx, `
		CREATE TEMP TABLE merge_map (
			loser_id  BIGINT PRIMARY KEY,
			keeper_id BIGINT NOT NULL
		) ON COMMIT DROP`); err != nil {
		return c, fmt.Errorf("create merge map: %w", err)
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO merge_map SELECT unnest($1::bigint[]), $2`,
		losers, keeper); err != nil {
		return c, fmt.Errorf("fill merge map: %w", err)
	}

	// Keeper acquires the best rank and points across the group. LEAST and
	// GREATEST skip NULLs, which is exactly the merge we want.
	if _, err := tx.Exec(ctx, `
		UPDATE `+config.TeamsTable+` k SET
			national_rank   = LEAST(k.national_rank, l.national_rank),
			state_rank      = LEAST(k.state_rank, l.state_rank),
			regional_rank   = LEAST(k.regional_rank, l.regional_rank),
			gotsport_points = GREATEST(k.gotsport_points, l.gotsport_points),
			updated_at      = NOW()
		FROM (
			SELECT MIN(national_rank) AS national_rank,
			       MIN(state_rank) AS state_rank,
			       MIN(regional_rank) AS regional_rank,
			       MAX(gotsport_points) AS gotsport_points
			FROM `+config.TeamsTable+`
			WHERE id IN (SELECT loser_id FROM merge_map)
		) l
		WHERE k.id = $1`, keeper); err != nil {
		return c, fmt.Errorf("preserve ranks: %w", err)
	}

	// Simulate the re-point and soft-delete every match that would collide
	// on (date, home, away) afterwards. Keeper-owned rows win, then rows
	// with a real score, then the oldest.
	tag, err := tx.Exec(ctx, `
		WITH remapped AS (
			SELECT m.id, m.match_date,
			       COALESCE(hm.keeper_id, m.home_team_id) AS new_home,
			       COALESCE(am.keeper_id, m.away_team_id) AS new_away,
			       (hm.loser_id IS NOT NULL OR am.loser_id IS NOT NULL) AS is_loser_match,
			       (m.home_score IS NOT NULL) AS has_score,
			       m.created_at
			FROM `+config.MatchesTable+` m
			LEFT JOIN merge_map hm ON hm.loser_id = m.home_team_id
			LEFT JOIN merge_map am ON am.loser_id = m.away_team_id
			WHERE m.deleted_at IS NULL
			  AND (hm.loser_id IS NOT NULL OR am.loser_id IS NOT NULL
			       OR m.home_team_id = $1 OR m.away_team_id = $1)
		),
		ranked AS (
			SELECT id, ROW_NUMBER() OVER (
				PARTITION BY match_date, new_home, new_away
				ORDER BY is_loser_match ASC, has_score DESC, created_at ASC
			) AS rn
			FROM remapped
		),
		doomed AS (SELECT id FROM ranked WHERE rn > 1),
		audited AS (
			INSERT INTO `+config.AuditLogTable+`
				(table_name, record_id, action, old_data, changed_by, changed_at)
			SELECT '`+config.MatchesTable+`', m.id, 'DELETE', to_jsonb(m), '`+mergeChangedBy+`', NOW()
			FROM `+config.MatchesTable+` m JOIN doomed d ON d.id = m.id
			RETURNING 1
		)
		UPDATE `+config.MatchesTable+` m SET
			deleted_at = NOW(),
			deletion_reason = 'semantic duplicate: team merge',
			updated_at = NOW()
		FROM doomed d WHERE m.id = d.id`, keeper)
	if err != nil {
		return c, fmt.Errorf("soft-delete colliding matches: %w", err)
	}
	c.softDeleted += int(tag.RowsAffected())

	// Matches whose two sides fold into the same keeper are not games.
	tag, err = tx.Exec(ctx, `
		WITH squad AS (
			SELECT m.id
			FROM `+config.MatchesTable+` m
			LEFT JOIN merge_map hm ON hm.loser_id = m.home_team_id
			LEFT JOIN merge_map am ON am.loser_id = m.away_team_id
			WHERE m.deleted_at IS NULL
			  AND (hm.loser_id IS NOT NULL OR am.loser_id IS NOT NULL)
			  AND COALESCE(hm.keeper_id, m.home_team_id) = COALESCE(am.keeper_id, m.away_team_id)
		),
		audited AS (
			INSERT INTO `+config.AuditLogTable+`
				(table_name, record_id, action, old_data, changed_by, changed_at)
			SELECT '`+config.MatchesTable+`', m.id, 'DELETE', to_jsonb(m), '`+mergeChangedBy+`', NOW()
			FROM `+config.MatchesTable+` m JOIN squad s ON s.id = m.id
			RETURNING 1
		)
		UPDATE `+config.MatchesTable+` m SET
			deleted_at = NOW(),
			deletion_reason = 'intra-squad: team merge',
			updated_at = NOW()
		FROM squad s WHERE m.id = s.id`)
	if err != nil {
		return c, fmt.Errorf("purge intra-squad matches: %w", err)
	}
	c.softDeleted += int(tag.RowsAffected())

	// Re-point surviving matches.
	tag, err = tx.Exec(ctx, `
		UPDATE `+config.MatchesTable+` m
		SET home_team_id = mm.keeper_id, updated_at = NOW()
		FROM merge_map mm
		WHERE m.home_team_id = mm.loser_id AND m.deleted_at IS NULL`)
	if err != nil {
		return c, fmt.Errorf("repoint home matches: %w", err)
	}
	c.repointed += int(tag.RowsAffected())

	tag, err = tx.Exec(ctx, `
		UPDATE `+config.MatchesTable+` m
		SET away_team_id = mm.keeper_id, updated_at = NOW()
		FROM merge_map mm
		WHERE m.away_team_id = mm.loser_id AND m.deleted_at IS NULL`)
	if err != nil {
		return c, fmt.Errorf("repoint away matches: %w", err)
	}
	c.repointed += int(tag.RowsAffected())

	// Fold loser aliases into the keeper's registry row, then retire the
	// loser rows so the registry only ever points at live teams.
	if _, err := tx.Exec(ctx, `
		UPDATE `+config.CanonicalTeamsTable+` SET
			aliases = ARRAY(
				SELECT DISTINCT a FROM unnest(
					aliases || (
						SELECT COALESCE(array_agg(la), '{}'::text[])
						FROM `+config.CanonicalTeamsTable+` c, unnest(c.aliases) la
						WHERE c.team_id IN (SELECT loser_id FROM merge_map)
					)
				) a),
			updated_at = NOW()
		WHERE team_id = $1`, keeper); err != nil {
		return c, fmt.Errorf("fold aliases: %w", err)
	}
	if _, err := tx.Exec(ctx, `
		DELETE FROM `+config.CanonicalTeamsTable+`
		WHERE team_id IN (SELECT loser_id FROM merge_map)`); err != nil {
		return c, fmt.Errorf("retire loser registry rows: %w", err)
	}

	n, err := registry.RepointSourceEntities(ctx, tx, registry.EntityTeam, losers, keeper)
	if err != nil {
		return c, err
	}
	c.repointed += int(n)

	// Standings: drop loser rows where the keeper already stands, re-point
	// the rest.
	tag, err = tx.Exec(ctx, `
		DELETE FROM `+config.LeagueStandingsTable+` ls
		USING merge_map mm
		WHERE ls.team_id = mm.loser_id
		  AND EXISTS (
			SELECT 1 FROM `+config.LeagueStandingsTable+` k
			WHERE k.team_id = mm.keeper_id AND k.league_id = ls.league_id)`)
	if err != nil {
		return c, fmt.Errorf("drop conflicting standings: %w", err)
	}
	c.hardDeleted += int(tag.RowsAffected())

	tag, err = tx.Exec(ctx, `
		UPDATE `+config.LeagueStandingsTable+` ls
		SET team_id = mm.keeper_id
		FROM merge_map mm
		WHERE ls.team_id = mm.loser_id`)
	if err != nil {
		return c, fmt.Errorf("repoint standings: %w", err)
	}
	c.repointed += int(tag.RowsAffected())

	// Loser rank history goes; the keeper's own history plus the rank
	// preservation above carry the group's best standing forward.
	tag, err = tx.Exec(ctx, `
		WITH audited AS (
			INSERT INTO `+config.AuditLogTable+`
				(table_name, record_id, action, old_data, changed_by, changed_at)
			SELECT '`+config.RankHistoryTable+`', rh.team_id, 'DELETE', to_jsonb(rh), '`+mergeChangedBy+`', NOW()
			FROM `+config.RankHistoryTable+` rh
			WHERE rh.team_id IN (SELECT loser_id FROM merge_map)
			RETURNING 1
		)
		DELETE FROM `+config.RankHistoryTable+`
		WHERE team_id IN (SELECT loser_id FROM merge_map)`)
	if err != nil {
		return c, fmt.Errorf("drop loser rank history: %w", err)
	}
	c.hardDeleted += int(tag.RowsAffected())

	if err := r.recomputeTeamStats(ctx, tx, keeper); err != nil {
		return c, err
	}

	// Soft-delete the losers last, with the full pre-merge image audited.
	tag, err = tx.Exec(ctx, `
		WITH audited AS (
			INSERT INTO `+config.AuditLogTable+`
				(table_name, record_id, action, old_data, new_data, changed_by, changed_at)
			SELECT '`+config.TeamsTable+`', t.id, 'MERGE', to_jsonb(t),
			       jsonb_build_object('merged_into', $1::bigint), '`+mergeChangedBy+`', NOW()
			FROM `+config.TeamsTable+` t
			WHERE t.id IN (SELECT loser_id FROM merge_map)
			RETURNING 1
		)
		UPDATE `+config.TeamsTable+` SET
			merged_into  = $1,
			merged_at    = NOW(),
			merge_reason = $2,
			status       = 'merged',
			updated_at   = NOW()
		WHERE id IN (SELECT loser_id FROM merge_map)`, keeper, reason)
	if err != nil {
		return c, fmt.Errorf("soft-delete losers: %w", err)
	}
	c.softDeleted += int(tag.RowsAffected())

	return c, nil
}

// recomputeTeamStats rebuilds one team's cached record from its live
// completed matches.
func (r *Reconciler) recomputeTeamStats(ctx context.Context, tx pgx.Tx, teamID int64) error {
	_, err := tx.Exec(ctx, `
		UPDATE `+config.TeamsTable+` t SET
			matches_played = s.played,
			wins   = s.wins,
			losses = s.losses,
			draws  = s.draws,
			updated_at = NOW()
		FROM (
			SELECT
				COUNT(*) AS played,
				COUNT(*) FILTER (WHERE (m.home_team_id = $1 AND m.home_score > m.away_score)
				                    OR (m.away_team_id = $1 AND m.away_score > m.home_score)) AS wins,
				COUNT(*) FILTER (WHERE (m.home_team_id = $1 AND m.home_score < m.away_score)
				                    OR (m.away_team_id = $1 AND m.away_score < m.home_score)) AS losses,
				COUNT(*) FILTER (WHERE m.home_score = m.away_score) AS draws
			FROM `+config.MatchesTable+` m
			WHERE (m.home_team_id = $1 OR m.away_team_id = $1)
			  AND m.deleted_at IS NULL
			  AND m.home_score IS NOT NULL
		) s
		WHERE t.id = $1`, teamID)
	if err != nil {
		return fmt.Errorf("recompute stats for team %d: %w", teamID, err)
	}
	return nil
}
