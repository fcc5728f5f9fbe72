// Package diagnose reads the production and staging tables and reports on
// their health. Every anomaly names the exact command that repairs it.
// Nothing in this package ever writes.
package diagnose

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/MGMAppDev/soccerview-pipeline/internal/config"
	"github.com/MGMAppDev/soccerview-pipeline/internal/db"
)

// Finding severities.
const (
	SeverityOK       = "ok"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// Health thresholds.
const (
	coverageWarnBelow = 0.80
	orphanWarnAbove   = 0.10
	backlogWarnAfter  = 24 * time.Hour
)

// Finding is one health-check observation. Suggestion holds the command
// that fixes the anomaly and is empty when there is nothing to do.
type Finding struct {
	Check      string
	Severity   string
	Message    string
	Suggestion string
}

// Doctor runs read-only diagnostics against one pool.
type Doctor struct {
	pool   *db.Pool
	logger *slog.Logger
	now    func() time.Time
}

func New(pool *db.Pool, logger *slog.Logger) *Doctor {
	return &Doctor{pool: pool, logger: logger, now: time.Now}
}

// HealthCheck runs every check and returns the findings in a fixed order.
func (d *Doctor) HealthCheck(ctx context.Context) ([]Finding, error) {
	checks := []func(context.Context) (Finding, error){
		d.checkWriteProtection,
		d.checkRegistryCoverage,
		d.checkDuplicateGroups,
		d.checkNullMetadata,
		d.checkStatMismatches,
		d.checkStagingBacklog,
		d.checkOrphanRate,
		d.checkZeroZeroScores,
		d.checkImpossibleDates,
	}

	findings := make([]Finding, 0, len(checks))
	for _, check := range checks {
		f, err := check(ctx)
		if err != nil {
			return findings, err
		}
		findings = append(findings, f)
	}
	return findings, nil
}

func (d *Doctor) checkWriteProtection(ctx context.Context) (Finding, error) {
	enabled, err := db.WriteProtectionEnabled(ctx, d.pool)
	if err != nil {
		return Finding{}, fmt.Errorf("check write protection: %w", err)
	}
	f := Finding{Check: "write-protection", Severity: SeverityOK,
		Message: "write protection enabled"}
	if !enabled {
		f.Severity = SeverityCritical
		f.Message = "write protection is DISABLED; any connection can mutate teams and matches"
		f.Suggestion = "re-enable protection in the database before unattended runs"
	}
	return f, nil
}

func (d *Doctor) checkRegistryCoverage(ctx context.Context) (Finding, error) {
	var covered, total int
	err := d.pool.QueryRow(ctx, `
		SELECT COUNT(c.team_id), COUNT(*)
		FROM `+config.TeamsTable+` t
		LEFT JOIN `+config.CanonicalTeamsTable+` c ON c.team_id = t.id
		WHERE t.merged_into IS NULL`).Scan(&covered, &total)
	if err != nil {
		return Finding{}, fmt.Errorf("check registry coverage: %w", err)
	}

	f := Finding{Check: "registry-coverage", Severity: SeverityOK}
	if total == 0 {
		f.Message = "no live teams yet"
		return f, nil
	}
	rate := float64(covered) / float64(total)
	f.Message = fmt.Sprintf("%d of %d live teams registered (%.1f%%)",
		covered, total, rate*100)
	if rate < coverageWarnBelow {
		f.Severity = SeverityWarning
		f.Suggestion = "run: soccerview-pipeline reconcile metadata --execute"
	}
	return f, nil
}

func (d *Doctor) checkDuplicateGroups(ctx context.Context) (Finding, error) {
	var groups int
	err := d.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM (
			SELECT 1 FROM `+config.TeamsTable+`
			WHERE merged_into IS NULL
			GROUP BY canonical_name, birth_year, gender
			HAVING COUNT(*) > 1
		) g`).Scan(&groups)
	if err != nil {
		return Finding{}, fmt.Errorf("check duplicate groups: %w", err)
	}

	f := Finding{Check: "duplicate-teams", Severity: SeverityOK,
		Message: "no duplicate identity groups"}
	if groups > 0 {
		f.Severity = SeverityWarning
		f.Message = fmt.Sprintf("%d groups of teams share an identity", groups)
		f.Suggestion = "run: soccerview-pipeline reconcile dedupe --execute"
	}
	return f, nil
}

func (d *Doctor) checkNullMetadata(ctx context.Context) (Finding, error) {
	var nullYear, nullGender int
	err := d.pool.QueryRow(ctx, `
		SELECT COUNT(*) FILTER (WHERE birth_year IS NULL),
		       COUNT(*) FILTER (WHERE gender IS NULL)
		FROM `+config.TeamsTable+`
		WHERE merged_into IS NULL`).Scan(&nullYear, &nullGender)
	if err != nil {
		return Finding{}, fmt.Errorf("check null metadata: %w", err)
	}

	f := Finding{Check: "null-metadata", Severity: SeverityOK,
		Message: "every live team has birth year and gender"}
	if nullYear > 0 || nullGender > 0 {
		f.Severity = SeverityWarning
		f.Message = fmt.Sprintf("%d teams missing birth_year, %d missing gender",
			nullYear, nullGender)
		f.Suggestion = "run: soccerview-pipeline reconcile metadata --execute"
	}
	return f, nil
}

func (d *Doctor) checkStatMismatches(ctx context.Context) (Finding, error) {
	var mismatched int
	err := d.pool.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM `+config.TeamsTable+` t
		LEFT JOIN (
			SELECT team_id, COUNT(*) AS played
			FROM (
				SELECT home_team_id AS team_id FROM `+config.MatchesTable+`
				WHERE deleted_at IS NULL AND home_score IS NOT NULL
				UNION ALL
				SELECT away_team_id FROM `+config.MatchesTable+`
				WHERE deleted_at IS NULL AND home_score IS NOT NULL
			) sides GROUP BY team_id
		) s ON s.team_id = t.id
		WHERE t.merged_into IS NULL
		  AND t.matches_played IS DISTINCT FROM COALESCE(s.played, 0)`,
	).Scan(&mismatched)
	if err != nil {
		return Finding{}, fmt.Errorf("check stat mismatches: %w", err)
	}

	f := Finding{Check: "cached-stats", Severity: SeverityOK,
		Message: "cached match counts agree with the matches table"}
	if mismatched > 0 {
		f.Severity = SeverityWarning
		f.Message = fmt.Sprintf("%d teams cache a match count the matches table contradicts", mismatched)
		f.Suggestion = "run: soccerview-pipeline reconcile metadata --execute"
	}
	return f, nil
}

func (d *Doctor) checkStagingBacklog(ctx context.Context) (Finding, error) {
	var (
		pending int
		oldest  *time.Time
	)
	err := d.pool.QueryRow(ctx, `
		SELECT COUNT(*), MIN(scraped_at)
		FROM `+config.StagingGamesTable+`
		WHERE NOT processed`).Scan(&pending, &oldest)
	if err != nil {
		return Finding{}, fmt.Errorf("check staging backlog: %w", err)
	}

	f := Finding{Check: "staging-backlog", Severity: SeverityOK,
		Message: "no staged rows awaiting promotion"}
	if pending > 0 {
		age := d.now().Sub(*oldest)
		f.Message = fmt.Sprintf("%d staged rows awaiting promotion, oldest %s",
			pending, age.Round(time.Minute))
		if age > backlogWarnAfter {
			f.Severity = SeverityWarning
			f.Suggestion = "run: soccerview-pipeline promote --process-staging"
		}
	}
	return f, nil
}

func (d *Doctor) checkOrphanRate(ctx context.Context) (Finding, error) {
	var orphans, total int
	err := d.pool.QueryRow(ctx, `
		SELECT COUNT(*) FILTER (WHERE matches_played = 0
			AND (national_rank IS NOT NULL OR state_rank IS NOT NULL
			     OR regional_rank IS NOT NULL OR gotsport_points IS NOT NULL)),
		       COUNT(*)
		FROM `+config.TeamsTable+`
		WHERE merged_into IS NULL`).Scan(&orphans, &total)
	if err != nil {
		return Finding{}, fmt.Errorf("check orphan rate: %w", err)
	}

	f := Finding{Check: "orphan-teams", Severity: SeverityOK}
	if total == 0 {
		f.Message = "no live teams yet"
		return f, nil
	}
	rate := float64(orphans) / float64(total)
	f.Message = fmt.Sprintf("%d of %d live teams are ranked but play no matches (%.1f%%)",
		orphans, total, rate*100)
	if rate > orphanWarnAbove {
		f.Severity = SeverityWarning
		f.Suggestion = "run: soccerview-pipeline reconcile metadata --execute"
	}
	return f, nil
}

func (d *Doctor) checkZeroZeroScores(ctx context.Context) (Finding, error) {
	var future, past int
	err := d.pool.QueryRow(ctx, `
		SELECT COUNT(*) FILTER (WHERE match_date > NOW()),
		       COUNT(*) FILTER (WHERE match_date <= NOW())
		FROM `+config.MatchesTable+`
		WHERE deleted_at IS NULL AND home_score = 0 AND away_score = 0`,
	).Scan(&future, &past)
	if err != nil {
		return Finding{}, fmt.Errorf("check zero-zero scores: %w", err)
	}

	f := Finding{Check: "zero-zero-scores", Severity: SeverityOK,
		Message: fmt.Sprintf("%d goalless draws on played dates", past)}
	if future > 0 {
		f.Severity = SeverityWarning
		f.Message = fmt.Sprintf("%d future matches carry a 0-0 score they cannot have", future)
		f.Suggestion = "run: soccerview-pipeline reconcile scores --execute"
	}
	return f, nil
}

func (d *Doctor) checkImpossibleDates(ctx context.Context) (Finding, error) {
	cutoff := 2027
	if y := d.now().Year() + 2; y > cutoff {
		cutoff = y
	}
	var unlinked int
	err := d.pool.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM `+config.MatchesTable+`
		WHERE deleted_at IS NULL
		  AND EXTRACT(YEAR FROM match_date) >= $1
		  AND league_id IS NULL AND tournament_id IS NULL`, cutoff,
	).Scan(&unlinked)
	if err != nil {
		return Finding{}, fmt.Errorf("check impossible dates: %w", err)
	}

	f := Finding{Check: "impossible-dates", Severity: SeverityOK,
		Message: "no unlinked far-future matches"}
	if unlinked > 0 {
		f.Severity = SeverityWarning
		f.Message = fmt.Sprintf("%d unlinked matches dated %d or later", unlinked, cutoff)
		f.Suggestion = "run: soccerview-pipeline reconcile cleanup --execute"
	}
	return f, nil
}
