package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/MGMAppDev/soccerview-pipeline/internal/config"
)

const scoreChangedBy = "scoreCorrection"

// ScoreOptions control the scheduled-zero score correction operator.
type ScoreOptions struct {
	DryRun bool
}

// CorrectScores repairs matches stored with a 0-0 score that never
// happened. Staging is the arbiter where it still holds the match's key:
// null staging scores mean the game was scheduled, non-zero staging
// scores mean the real result was lost. Future-dated leftovers are
// scheduled by definition. Whatever remains is a real goalless draw or
// needs manual review, reported per platform.
func (r *Reconciler) CorrectScores(ctx context.Context, opts ScoreOptions) (*Result, error) {
	result := &Result{Operator: "scoreCorrection", DryRun: opts.DryRun}
	today := r.now().Truncate(24 * time.Hour)

	err := r.runTx(ctx, opts.DryRun, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx, `
			SELECT COUNT(*) FROM `+config.MatchesTable+`
			WHERE deleted_at IS NULL AND home_score = 0 AND away_score = 0`,
		).Scan(&result.Examined); err != nil {
			return fmt.Errorf("count zero-zero matches: %w", err)
		}

		// Staging says the game was never played.
		tag, err := tx.Exec(ctx, `
			WITH target AS (
				SELECT m.id
				FROM `+config.MatchesTable+` m
				JOIN `+config.StagingGamesTable+` s
					ON s.source_match_key = m.source_match_key
				WHERE m.deleted_at IS NULL
				  AND m.home_score = 0 AND m.away_score = 0
				  AND s.home_score IS NULL AND s.away_score IS NULL
			),
			audited AS (
				INSERT INTO `+config.AuditLogTable+`
					(table_name, record_id, action, old_data, new_data, changed_by, changed_at)
				SELECT '`+config.MatchesTable+`', m.id, 'UPDATE', to_jsonb(m),
				       jsonb_build_object('home_score', NULL, 'away_score', NULL, 'status', 'scheduled'),
				       '`+scoreChangedBy+`', NOW()
				FROM `+config.MatchesTable+` m JOIN target t ON t.id = m.id
				RETURNING 1
			)
			UPDATE `+config.MatchesTable+` m SET
				home_score = NULL, away_score = NULL,
				status = 'scheduled', updated_at = NOW()
			FROM target t WHERE m.id = t.id`)
		if err != nil {
			return fmt.Errorf("null scores from staging: %w", err)
		}
		result.Updated += int(tag.RowsAffected())

		// Staging holds the real result.
		tag, err = tx.Exec(ctx, `
			WITH target AS (
				SELECT m.id, s.home_score AS home, s.away_score AS away
				FROM `+config.MatchesTable+` m
				JOIN `+config.StagingGamesTable+` s
					ON s.source_match_key = m.source_match_key
				WHERE m.deleted_at IS NULL
				  AND m.home_score = 0 AND m.away_score = 0
				  AND s.home_score IS NOT NULL AND s.away_score IS NOT NULL
				  AND (s.home_score <> 0 OR s.away_score <> 0)
			),
			audited AS (
				INSERT INTO `+config.AuditLogTable+`
					(table_name, record_id, action, old_data, new_data, changed_by, changed_at)
				SELECT '`+config.MatchesTable+`', m.id, 'UPDATE', to_jsonb(m),
				       jsonb_build_object('home_score', t.home, 'away_score', t.away),
				       '`+scoreChangedBy+`', NOW()
				FROM `+config.MatchesTable+` m JOIN target t ON t.id = m.id
				RETURNING 1
			)
			UPDATE `+config.MatchesTable+` m SET
				home_score = t.home, away_score = t.away,
				status = 'completed', updated_at = NOW()
			FROM target t WHERE m.id = t.id`)
		if err != nil {
			return fmt.Errorf("restore scores from staging: %w", err)
		}
		result.Updated += int(tag.RowsAffected())

		// A future 0-0 is a schedule artifact regardless of staging.
		tag, err = tx.Exec(ctx, `
			WITH target AS (
				SELECT m.id
				FROM `+config.MatchesTable+` m
				WHERE m.deleted_at IS NULL
				  AND m.home_score = 0 AND m.away_score = 0
				  AND m.match_date > $1
			),
			audited AS (
				INSERT INTO `+config.AuditLogTable+`
					(table_name, record_id, action, old_data, new_data, changed_by, changed_at)
				SELECT '`+config.MatchesTable+`', m.id, 'UPDATE', to_jsonb(m),
				       jsonb_build_object('home_score', NULL, 'away_score', NULL, 'status', 'scheduled'),
				       '`+scoreChangedBy+`', NOW()
				FROM `+config.MatchesTable+` m JOIN target t ON t.id = m.id
				RETURNING 1
			)
			UPDATE `+config.MatchesTable+` m SET
				home_score = NULL, away_score = NULL,
				status = 'scheduled', updated_at = NOW()
			FROM target t WHERE m.id = t.id`, today)
		if err != nil {
			return fmt.Errorf("null future scores: %w", err)
		}
		result.Updated += int(tag.RowsAffected())

		return r.reportRemainingZeros(ctx, tx, result)
	})
	if err != nil {
		return result, err
	}

	if !opts.DryRun {
		r.refreshViews(ctx)
	}
	r.logger.Info("score correction finished", "summary", result.Summary())
	return result, nil
}

// reportRemainingZeros logs the 0-0 matches the operator could not decide
// about, grouped by platform. These are either real goalless draws or
// rows whose staging evidence is gone.
func (r *Reconciler) reportRemainingZeros(ctx context.Context, tx pgx.Tx, result *Result) error {
	rows, err := tx.Query(ctx, `
		SELECT source_platform, COUNT(*)
		FROM `+config.MatchesTable+`
		WHERE deleted_at IS NULL AND home_score = 0 AND away_score = 0
		GROUP BY source_platform
		ORDER BY COUNT(*) DESC`)
	if err != nil {
		return fmt.Errorf("count remaining zero-zero matches: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			platform string
			count    int
		)
		if err := rows.Scan(&platform, &count); err != nil {
			return fmt.Errorf("scan remaining zero-zero count: %w", err)
		}
		result.Remaining += count
		r.logger.Info("zero-zero matches left for review",
			"platform", platform, "count", count)
	}
	return rows.Err()
}
