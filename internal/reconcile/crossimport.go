package reconcile

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/MGMAppDev/soccerview-pipeline/internal/config"
)

const crossChangedBy = "crossImport"

// CrossImportOptions control the cross-import duplicate absorber.
type CrossImportOptions struct {
	// MinSimilarity is the trigram threshold the two opponent names must
	// clear. Zero means the 0.3 default.
	MinSimilarity float64
	DryRun        bool
}

// Score compatibility per pair orientation. One side may be missing its
// result entirely; a present result must agree.
const (
	straightScores = `(l.home_score IS NULL OR s.home_score IS NULL
		OR (l.home_score = s.home_score AND l.away_score = s.away_score))`
	flippedScores = `(l.home_score IS NULL OR s.home_score IS NULL
		OR (l.home_score = s.away_score AND l.away_score = s.home_score))`
)

// The legacy and scraper rows describe the same event when their linkage
// agrees, or when the legacy import carries no linkage at all.
const sameEvent = `((l.league_id IS NOT NULL AND l.league_id = s.league_id)
		OR (l.tournament_id IS NOT NULL AND l.tournament_id = s.tournament_id)
		OR (l.league_id IS NULL AND l.tournament_id IS NULL))`

// crossArms enumerates the four ways one real-world game can appear twice
// when the two imports resolved an opponent to different team rows: the
// shared team sits on the same side or on opposite sides.
var crossArms = []struct {
	shared     string
	legacyOpp  string
	scraperOpp string
	scores     string
}{
	{"l.home_team_id = s.home_team_id", "l.away_team_id", "s.away_team_id", straightScores},
	{"l.away_team_id = s.away_team_id", "l.home_team_id", "s.home_team_id", straightScores},
	{"l.home_team_id = s.away_team_id", "l.away_team_id", "s.home_team_id", flippedScores},
	{"l.away_team_id = s.home_team_id", "l.home_team_id", "s.away_team_id", flippedScores},
}

// AbsorbCrossImports soft-deletes legacy-archive matches that duplicate a
// scraped match of the same game. Candidate pairs come from a 4-way union
// on same-date, same-event matches sharing a team with compatible scores;
// the differing opponents must agree on birth year and gender and clear
// the name-similarity threshold. Each legacy match is absorbed at most
// once.
func (r *Reconciler) AbsorbCrossImports(ctx context.Context, opts CrossImportOptions) (*Result, error) {
	result := &Result{Operator: "crossImport", DryRun: opts.DryRun}
	if opts.MinSimilarity == 0 {
		opts.MinSimilarity = 0.3
	}

	err := r.runTx(ctx, opts.DryRun, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
			CREATE TEMP TABLE cross_pairs (
				legacy_id   BIGINT NOT NULL,
				scraper_id  BIGINT NOT NULL,
				legacy_opp  BIGINT NOT NULL,
				scraper_opp BIGINT NOT NULL
			) ON COMMIT DROP`); err != nil {
			return fmt.Errorf("create cross pairs table: %w", err)
		}

		arms := make([]string, 0, len(crossArms))
		for _, a := range crossArms {
			arms = append(arms, fmt.Sprintf(`
			SELECT l.id, s.id, %s, %s
			FROM %s l
			JOIN %s s ON s.match_date = l.match_date
				AND %s
				AND s.source_platform <> $1
				AND s.deleted_at IS NULL
				AND %s
				AND %s
			WHERE l.source_platform = $1 AND l.deleted_at IS NULL`,
				a.legacyOpp, a.scraperOpp,
				config.MatchesTable, config.MatchesTable,
				a.shared, sameEvent, a.scores))
		}
		tag, err := tx.Exec(ctx,
			`INSERT INTO cross_pairs (legacy_id, scraper_id, legacy_opp, scraper_opp)`+
				strings.Join(arms, "\n\t\t\tUNION ALL"),
			config.PlatformArchive)
		if err != nil {
			return fmt.Errorf("collect cross-import pairs: %w", err)
		}
		result.Examined = int(tag.RowsAffected())

		// Opponents that contradict each other, or whose names do not
		// resemble one another, are different games.
		tag, err = tx.Exec(ctx, `
			DELETE FROM cross_pairs cp
			USING `+config.TeamsTable+` lo, `+config.TeamsTable+` so
			WHERE lo.id = cp.legacy_opp AND so.id = cp.scraper_opp
			  AND NOT (
				(lo.birth_year IS NULL OR so.birth_year IS NULL
				 OR lo.birth_year = so.birth_year)
				AND (lo.gender IS NULL OR so.gender IS NULL
				     OR lo.gender = so.gender)
				AND similarity(lower(lo.display_name), lower(so.display_name)) >= $1
			  )`, opts.MinSimilarity)
		if err != nil {
			return fmt.Errorf("filter incompatible opponents: %w", err)
		}
		result.Skipped = int(tag.RowsAffected())

		// One absorption per legacy match, lowest scraper id wins the tie.
		if _, err := tx.Exec(ctx, `
			DELETE FROM cross_pairs cp
			WHERE cp.ctid NOT IN (
				SELECT DISTINCT ON (legacy_id) ctid
				FROM cross_pairs
				ORDER BY legacy_id, scraper_id)`); err != nil {
			return fmt.Errorf("dedup cross-import pairs: %w", err)
		}
		if err := tx.QueryRow(ctx,
			`SELECT COUNT(*) FROM cross_pairs`).Scan(&result.Groups); err != nil {
			return fmt.Errorf("count cross-import pairs: %w", err)
		}

		tag, err = tx.Exec(ctx, `
			WITH audited AS (
				INSERT INTO `+config.AuditLogTable+`
					(table_name, record_id, action, old_data, new_data, changed_by, changed_at)
				SELECT '`+config.MatchesTable+`', m.id, 'DELETE', to_jsonb(m),
				       jsonb_build_object('kept_match_id', cp.scraper_id),
				       '`+crossChangedBy+`', NOW()
				FROM `+config.MatchesTable+` m
				JOIN cross_pairs cp ON cp.legacy_id = m.id
				RETURNING 1
			)
			UPDATE `+config.MatchesTable+` m SET
				deleted_at = NOW(),
				deletion_reason = 'cross-import duplicate',
				updated_at = NOW()
			FROM cross_pairs cp WHERE m.id = cp.legacy_id`)
		if err != nil {
			return fmt.Errorf("absorb legacy matches: %w", err)
		}
		result.SoftDeleted = int(tag.RowsAffected())
		return nil
	})
	if err != nil {
		return result, err
	}

	if !opts.DryRun {
		r.refreshViews(ctx)
	}
	r.logger.Info("cross-import absorption finished", "summary", result.Summary())
	return result, nil
}
