package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/MGMAppDev/soccerview-pipeline/internal/config"
)

// WriteProbe verifies the configured credentials can write the staging
// tables before a scrape run starts. Inserts then deletes a marker row under
// a throwaway source key inside one short-timeout transaction. A failure here
// is fatal for the engine: hours of scraping with nothing persisted is the
// worst possible outcome.
func WriteProbe(ctx context.Context, pool *Pool, platform string, timeout time.Duration) error {
	probeKey := fmt.Sprintf("%s-_probe-%s", platform, uuid.NewString())

	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("write probe: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, fmt.Sprintf("SET LOCAL statement_timeout = %d", timeout.Milliseconds())); err != nil {
		return fmt.Errorf("write probe: set timeout: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO `+config.StagingGamesTable+`
			(source_platform, source_match_key, home_team_name, away_team_name, raw_data, processed, scraped_at)
		VALUES ($1, $2, '_probe', '_probe', '{}', true, NOW())`,
		platform, probeKey)
	if err != nil {
		return fmt.Errorf("write probe: insert: %w", err)
	}

	tag, err := tx.Exec(ctx, `
		DELETE FROM `+config.StagingGamesTable+` WHERE source_match_key = $1`, probeKey)
	if err != nil {
		return fmt.Errorf("write probe: delete: %w", err)
	}
	if tag.RowsAffected() != 1 {
		return fmt.Errorf("write probe: expected to delete 1 marker row, deleted %d", tag.RowsAffected())
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("write probe: commit: %w", err)
	}
	return nil
}
