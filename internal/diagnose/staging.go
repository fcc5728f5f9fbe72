package diagnose

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/MGMAppDev/soccerview-pipeline/internal/config"
)

// PlatformStatus is per-platform staging state: how much is staged, how
// much of it promotion has not consumed yet, and how the rejected pile
// looks.
type PlatformStatus struct {
	Platform      string
	Staged        int
	Pending       int
	OldestPending *time.Time
	LastScraped   *time.Time
	Rejected      int
}

// StagingStatus summarizes the staging tables by platform.
func (d *Doctor) StagingStatus(ctx context.Context) ([]PlatformStatus, error) {
	byPlatform := make(map[string]*PlatformStatus)
	get := func(platform string) *PlatformStatus {
		s, ok := byPlatform[platform]
		if !ok {
			s = &PlatformStatus{Platform: platform}
			byPlatform[platform] = s
		}
		return s
	}

	rows, err := d.pool.Query(ctx, `
		SELECT source_platform,
		       COUNT(*),
		       COUNT(*) FILTER (WHERE NOT processed),
		       MIN(scraped_at) FILTER (WHERE NOT processed),
		       MAX(scraped_at)
		FROM `+config.StagingGamesTable+`
		GROUP BY source_platform`)
	if err != nil {
		return nil, fmt.Errorf("staging status: %w", err)
	}
	for rows.Next() {
		var (
			platform string
			staged   int
			pending  int
			oldest   *time.Time
			newest   *time.Time
		)
		if err := rows.Scan(&platform, &staged, &pending, &oldest, &newest); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan staging status: %w", err)
		}
		s := get(platform)
		s.Staged = staged
		s.Pending = pending
		s.OldestPending = oldest
		s.LastScraped = newest
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("staging status: %w", err)
	}

	rows, err = d.pool.Query(ctx, `
		SELECT source_platform, COUNT(*)
		FROM `+config.StagingRejectedTable+`
		GROUP BY source_platform`)
	if err != nil {
		return nil, fmt.Errorf("rejected status: %w", err)
	}
	for rows.Next() {
		var (
			platform string
			rejected int
		)
		if err := rows.Scan(&platform, &rejected); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan rejected status: %w", err)
		}
		get(platform).Rejected = rejected
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rejected status: %w", err)
	}

	out := make([]PlatformStatus, 0, len(byPlatform))
	for _, s := range byPlatform {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Platform < out[j].Platform })
	return out, nil
}
