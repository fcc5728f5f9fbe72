package reconcile

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/MGMAppDev/soccerview-pipeline/internal/config"
)

// SnapshotOptions control the rank-history snapshot operator.
type SnapshotOptions struct {
	DryRun bool
}

// SnapshotRanks writes today's rank-history row for every live team that
// carries any ranking signal. Re-running on the same day refreshes the
// day's row instead of stacking a second one; the merge operator relies
// on this history surviving for keepers.
func (r *Reconciler) SnapshotRanks(ctx context.Context, opts SnapshotOptions) (*Result, error) {
	result := &Result{Operator: "rankSnapshot", DryRun: opts.DryRun}
	today := r.now()

	err := r.runTx(ctx, opts.DryRun, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `
			INSERT INTO `+config.RankHistoryTable+` (
				team_id, national_rank, state_rank, regional_rank,
				gotsport_points, elo_rating, snapshot_date, created_at)
			SELECT id, national_rank, state_rank, regional_rank,
			       gotsport_points, elo_rating, $1::date, NOW()
			FROM `+config.TeamsTable+`
			WHERE merged_into IS NULL
			  AND (national_rank IS NOT NULL OR state_rank IS NOT NULL
			       OR regional_rank IS NOT NULL OR gotsport_points IS NOT NULL)
			ON CONFLICT (team_id, snapshot_date) DO UPDATE SET
				national_rank   = EXCLUDED.national_rank,
				state_rank      = EXCLUDED.state_rank,
				regional_rank   = EXCLUDED.regional_rank,
				gotsport_points = EXCLUDED.gotsport_points,
				elo_rating      = EXCLUDED.elo_rating
			RETURNING (xmax = 0) AS inserted`, today)
		if err != nil {
			return fmt.Errorf("snapshot ranks: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var inserted bool
			if err := rows.Scan(&inserted); err != nil {
				return fmt.Errorf("scan snapshot row: %w", err)
			}
			result.Examined++
			if !inserted {
				result.Updated++
			}
		}
		return rows.Err()
	})
	if err != nil {
		return result, err
	}

	if !opts.DryRun {
		r.refreshViews(ctx)
	}
	r.logger.Info("rank snapshot finished",
		"snapshot_date", today.Format("2006-01-02"),
		"new", result.Examined-result.Updated, "summary", result.Summary())
	return result, nil
}
