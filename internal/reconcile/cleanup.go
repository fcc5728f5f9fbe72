package reconcile

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/MGMAppDev/soccerview-pipeline/internal/config"
)

const cleanupChangedBy = "cleanup"

// impossibleYearFloor is the lowest year cleanup will ever treat as
// garbage. Next season's fixtures are legitimately dated a year ahead,
// so the effective cutoff also stays two years past the current one.
const impossibleYearFloor = 2027

// CleanupOptions control the impossible-date cleanup operator.
type CleanupOptions struct {
	DryRun bool
}

// CleanupImpossibleDates soft-deletes matches dated absurdly far in the
// future that no league or tournament claims. Linked matches survive:
// an event taking credit for a fixture beats a date heuristic.
func (r *Reconciler) CleanupImpossibleDates(ctx context.Context, opts CleanupOptions) (*Result, error) {
	result := &Result{Operator: "cleanup", DryRun: opts.DryRun}

	cutoff := impossibleYearFloor
	if y := r.now().Year() + 2; y > cutoff {
		cutoff = y
	}

	err := r.runTx(ctx, opts.DryRun, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx, `
			SELECT COUNT(*) FROM `+config.MatchesTable+`
			WHERE deleted_at IS NULL
			  AND EXTRACT(YEAR FROM match_date) >= $1`, cutoff,
		).Scan(&result.Examined); err != nil {
			return fmt.Errorf("count far-future matches: %w", err)
		}

		tag, err := tx.Exec(ctx, `
			WITH garbage AS (
				SELECT id FROM `+config.MatchesTable+`
				WHERE deleted_at IS NULL
				  AND EXTRACT(YEAR FROM match_date) >= $1
				  AND league_id IS NULL AND tournament_id IS NULL
			),
			audited AS (
				INSERT INTO `+config.AuditLogTable+`
					(table_name, record_id, action, old_data, changed_by, changed_at)
				SELECT '`+config.MatchesTable+`', m.id, 'DELETE', to_jsonb(m),
				       '`+cleanupChangedBy+`', NOW()
				FROM `+config.MatchesTable+` m JOIN garbage g ON g.id = m.id
				RETURNING 1
			)
			UPDATE `+config.MatchesTable+` m SET
				deleted_at = NOW(),
				deletion_reason = 'impossible date',
				updated_at = NOW()
			FROM garbage g WHERE m.id = g.id`, cutoff)
		if err != nil {
			return fmt.Errorf("soft-delete far-future matches: %w", err)
		}
		result.SoftDeleted = int(tag.RowsAffected())
		result.Remaining = result.Examined - result.SoftDeleted
		return nil
	})
	if err != nil {
		return result, err
	}

	if !opts.DryRun {
		r.refreshViews(ctx)
	}
	r.logger.Info("cleanup finished", "cutoff_year", cutoff, "summary", result.Summary())
	return result, nil
}
