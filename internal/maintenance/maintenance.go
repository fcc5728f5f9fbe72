// Package maintenance holds the housekeeping jobs the pipeline runs
// between batches: materialized-view refresh after reconciliation and a
// retention sweep over the rejected-row pile. Everything here is invoked
// from the CLI or from an operator's completion path; nothing schedules
// itself.
package maintenance

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/MGMAppDev/soccerview-pipeline/internal/config"
	"github.com/MGMAppDev/soccerview-pipeline/internal/db"
)

// pipelineViews are the read-side materialized views derived from teams
// and matches, in dependency order.
var pipelineViews = []string{
	"mv_team_rankings",
	"mv_league_standings",
}

// RefreshPipelineViews refreshes the pipeline's materialized views. Uses
// CONCURRENTLY so readers keep working during the rebuild.
func RefreshPipelineViews(ctx context.Context, pool *db.Pool, logger *slog.Logger) error {
	for _, v := range pipelineViews {
		start := time.Now()
		_, err := pool.Exec(ctx, "REFRESH MATERIALIZED VIEW CONCURRENTLY "+v)
		dur := time.Since(start).Round(time.Millisecond)

		if err != nil {
			logger.Warn("view refresh failed", "view", v, "duration", dur, "error", err)
			return fmt.Errorf("refresh %s: %w", v, err)
		}
		logger.Info("view refreshed", "view", v, "duration", dur)
	}
	return nil
}

// PurgeRejected deletes rejected staging rows older than the retention
// window. The rejected pile is forensic, not operational; it only needs
// to live long enough for someone to look.
func PurgeRejected(ctx context.Context, pool *db.Pool, olderThanDays int, logger *slog.Logger) (int, error) {
	if olderThanDays <= 0 {
		return 0, fmt.Errorf("purge retention must be positive, got %d days", olderThanDays)
	}

	tag, err := pool.Exec(ctx, `
		DELETE FROM `+config.StagingRejectedTable+`
		WHERE rejected_at < NOW() - $1 * INTERVAL '1 day'`, olderThanDays)
	if err != nil {
		return 0, fmt.Errorf("purge rejected rows: %w", err)
	}

	purged := int(tag.RowsAffected())
	logger.Info("rejected rows purged", "older_than_days", olderThanDays, "purged", purged)
	return purged, nil
}
