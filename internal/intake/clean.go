package intake

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/MGMAppDev/soccerview-pipeline/internal/config"
	"github.com/MGMAppDev/soccerview-pipeline/internal/db"
)

const cleanBatchSize = 500

// CleanResult tracks counts and errors from one cleaning pass.
type CleanResult struct {
	Scanned  int
	Valid    int
	Fixed    int
	Rejected int
	Codes    map[string]int // rejection code -> count, including secondary codes
	Errors   []string
}

// AddErrorf records a formatted error message.
func (r *CleanResult) AddErrorf(format string, args ...interface{}) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

// Summary returns a human-readable summary of the pass.
func (r *CleanResult) Summary() string {
	return fmt.Sprintf("scanned=%d valid=%d fixed=%d rejected=%d errors=%d",
		r.Scanned, r.Valid, r.Fixed, r.Rejected, len(r.Errors))
}

const selectUnprocessed = `
	SELECT id, source_platform, source_match_key,
	       COALESCE(home_team_name, ''), COALESCE(away_team_name, ''),
	       home_score, away_score, match_date,
	       COALESCE(match_time, ''), COALESCE(venue, ''), COALESCE(division, ''),
	       COALESCE(event_name, ''), COALESCE(event_source_id, ''),
	       COALESCE(event_type, ''), COALESCE(status, ''), COALESCE(state, '')
	FROM ` + config.StagingGamesTable + `
	WHERE NOT processed
	  AND (scraped_at, id) > ($1, $2)
	ORDER BY scraped_at, id
	LIMIT $3`

// CleanStagingGames validates unprocessed staging rows in batches: auto-fix
// repairs are written back in place, rejected rows move to staging_rejected
// with their codes, and valid rows are left for promotion. With dryRun the
// verdicts are counted but nothing is written.
//
// Staging tables sit outside the write-protection gate, so no pipeline
// authorization is taken here.
func CleanStagingGames(ctx context.Context, pool *db.Pool, v *Validator, limit int, dryRun bool, logger *slog.Logger) (*CleanResult, error) {
	result := &CleanResult{Codes: make(map[string]int)}

	var (
		cursorAt time.Time
		cursorID int64
	)
	for {
		batch := cleanBatchSize
		if limit > 0 && limit-result.Scanned < batch {
			batch = limit - result.Scanned
		}
		if batch <= 0 {
			break
		}

		recs, lastAt, lastID, err := fetchBatch(ctx, pool, cursorAt, cursorID, batch)
		if err != nil {
			return result, fmt.Errorf("fetch staging batch: %w", err)
		}
		if len(recs) == 0 {
			break
		}
		cursorAt, cursorID = lastAt, lastID

		for _, rec := range recs {
			result.Scanned++
			res := v.ValidateRecord(rec)

			if len(res.Fixes) > 0 {
				result.Fixed++
				if !dryRun {
					if err := applyFix(ctx, pool, res.Record); err != nil {
						result.AddErrorf("fix row %d: %v", rec.ID, err)
						logger.Error("apply fix failed", "id", rec.ID, "error", err)
						continue
					}
				}
				logger.Info("source key repaired", "id", rec.ID, "fixes", res.Fixes)
			}

			if res.Valid {
				result.Valid++
				continue
			}

			result.Rejected++
			for _, rej := range res.Rejections {
				result.Codes[rej.Code]++
			}
			if dryRun {
				continue
			}
			if err := rejectRow(ctx, pool, rec.ID, res.Rejections); err != nil {
				result.AddErrorf("reject row %d: %v", rec.ID, err)
				logger.Error("reject row failed", "id", rec.ID, "error", err)
				continue
			}
			logger.Info("row rejected",
				"id", rec.ID, "key", res.Record.SourceMatchKey,
				"code", res.Rejections[0].Code, "rejections", len(res.Rejections))
		}

		if limit > 0 && result.Scanned >= limit {
			break
		}
	}

	return result, nil
}

func fetchBatch(ctx context.Context, pool *db.Pool, cursorAt time.Time, cursorID int64, limit int) (recs []Record, lastAt time.Time, lastID int64, err error) {
	rows, err := pool.Query(ctx, selectUnprocessed, cursorAt, cursorID, limit)
	if err != nil {
		return nil, lastAt, lastID, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			rec  Record
			date *time.Time
		)
		err := rows.Scan(&rec.ID, &rec.SourcePlatform, &rec.SourceMatchKey,
			&rec.HomeTeamName, &rec.AwayTeamName,
			&rec.HomeScore, &rec.AwayScore, &date,
			&rec.MatchTime, &rec.Venue, &rec.Division,
			&rec.EventName, &rec.EventSourceID,
			&rec.EventType, &rec.Status, &rec.State)
		if err != nil {
			return recs, lastAt, lastID, err
		}
		if date != nil {
			rec.MatchDate = *date
		}
		recs = append(recs, rec)
		lastID = rec.ID
	}
	if err := rows.Err(); err != nil {
		return recs, lastAt, lastID, err
	}

	// The cursor needs the raw scraped_at of the last row; re-read it
	// rather than carrying another column through every Record.
	if len(recs) > 0 {
		err = pool.QueryRow(ctx,
			`SELECT scraped_at FROM `+config.StagingGamesTable+` WHERE id = $1`,
			lastID).Scan(&lastAt)
	}
	return recs, lastAt, lastID, err
}

func applyFix(ctx context.Context, pool *db.Pool, rec Record) error {
	_, err := pool.Exec(ctx,
		`UPDATE `+config.StagingGamesTable+` SET source_match_key = $1 WHERE id = $2`,
		rec.SourceMatchKey, rec.ID)
	return err
}

// rejectRow moves one row to staging_rejected inside a transaction. The
// first rejection code becomes the primary; all reasons are joined so
// nothing is lost.
func rejectRow(ctx context.Context, pool *db.Pool, id int64, rejections []Rejection) error {
	reasons := make([]string, len(rejections))
	for i, rej := range rejections {
		reasons[i] = rej.Reason
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO `+config.StagingRejectedTable+` (
			source_platform, source_match_key, home_team_name, away_team_name,
			home_score, away_score, match_date, match_time, venue, division,
			event_name, event_source_id, event_type, status, state, raw_data,
			rejection_code, rejection_reason, rejected_at)
		SELECT source_platform, source_match_key, home_team_name, away_team_name,
			home_score, away_score, match_date, match_time, venue, division,
			event_name, event_source_id, event_type, status, state, raw_data,
			$2, $3, NOW()
		FROM `+config.StagingGamesTable+` WHERE id = $1`,
		id, rejections[0].Code, strings.Join(reasons, "; "))
	if err != nil {
		return fmt.Errorf("copy to rejected: %w", err)
	}

	if _, err := tx.Exec(ctx,
		`DELETE FROM `+config.StagingGamesTable+` WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete staged row: %w", err)
	}

	return tx.Commit(ctx)
}
