package intake

import (
	"context"
	"fmt"
	"time"

	"github.com/MGMAppDev/soccerview-pipeline/internal/db"
)

// ReportResult summarizes a read-only validation sweep over staging.
type ReportResult struct {
	Scanned   int
	Clean     int
	WouldFix  int
	WouldDrop int
	Codes     map[string]int
}

// Summary returns a human-readable summary of the sweep.
func (r *ReportResult) Summary() string {
	return fmt.Sprintf("scanned=%d clean=%d would_fix=%d would_drop=%d codes=%d",
		r.Scanned, r.Clean, r.WouldFix, r.WouldDrop, len(r.Codes))
}

// Report validates every unprocessed staging row without touching any of
// them and tallies what a cleaning pass would do. Same batching as
// CleanStagingGames; limit <= 0 sweeps everything.
func Report(ctx context.Context, pool *db.Pool, v *Validator, limit int) (*ReportResult, error) {
	result := &ReportResult{Codes: make(map[string]int)}

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
			switch {
			case !res.Valid:
				result.WouldDrop++
				for _, rej := range res.Rejections {
					result.Codes[rej.Code]++
				}
			case len(res.Fixes) > 0:
				result.WouldFix++
			default:
				result.Clean++
			}
		}

		if limit > 0 && result.Scanned >= limit {
			break
		}
	}

	return result, nil
}
