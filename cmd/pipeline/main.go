// Command pipeline is the SoccerView match-data pipeline CLI.
//
// Usage:
//
//	soccerview-pipeline scrape --adapter gotsport --active-only
//	soccerview-pipeline scrape --adapter heartland --event 12345 --resume
//	soccerview-pipeline validate --clean-staging --limit 5000
//	soccerview-pipeline promote --process-staging --batch-size 500
//	soccerview-pipeline reconcile dedupe --execute
//	soccerview-pipeline reconcile recover --changed-by teamMerge --from 2026-08-01
//	soccerview-pipeline diagnose --health-check
//	soccerview-pipeline ci-check write-auth --fail-on-violations
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/MGMAppDev/soccerview-pipeline/internal/adapter"
	"github.com/MGMAppDev/soccerview-pipeline/internal/authcheck"
	"github.com/MGMAppDev/soccerview-pipeline/internal/config"
	"github.com/MGMAppDev/soccerview-pipeline/internal/db"
	"github.com/MGMAppDev/soccerview-pipeline/internal/diagnose"
	"github.com/MGMAppDev/soccerview-pipeline/internal/intake"
	"github.com/MGMAppDev/soccerview-pipeline/internal/maintenance"
	"github.com/MGMAppDev/soccerview-pipeline/internal/normalizer"
	"github.com/MGMAppDev/soccerview-pipeline/internal/promote"
	"github.com/MGMAppDev/soccerview-pipeline/internal/reconcile"
	"github.com/MGMAppDev/soccerview-pipeline/internal/scraper"
)

var logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

func main() {
	// Load .env if present
	_ = godotenv.Load(".env")

	root := &cobra.Command{
		Use:   "soccerview-pipeline",
		Short: "SoccerView match-data ingestion and reconciliation CLI",
	}

	root.AddCommand(scrapeCmd())
	root.AddCommand(validateCmd())
	root.AddCommand(promoteCmd())
	root.AddCommand(reconcileCmd())
	root.AddCommand(diagnoseCmd())
	root.AddCommand(ciCheckCmd())
	root.AddCommand(maintenanceCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// --------------------------------------------------------------------------
// scrape command
// --------------------------------------------------------------------------

func scrapeCmd() *cobra.Command {
	var (
		adapterID  string
		eventID    string
		activeOnly bool
		resume     bool
		dryRun     bool
	)
	cmd := &cobra.Command{
		Use:   "scrape",
		Short: "Scrape one platform into staging",
		RunE: func(cmd *cobra.Command, args []string) error {
			if adapterID == "" {
				return fmt.Errorf("--adapter is required (have: %s)", strings.Join(adapter.IDs(), ", "))
			}
			return runPipeline(func(ctx context.Context, cfg *config.Config, pool *db.Pool) error {
				season := pool.ResolveSeasonYear(ctx)
				ad, err := adapter.Load(adapterID, season)
				if err != nil {
					return err
				}
				eng, err := scraper.New(ad, pool, cfg, season, logger)
				if err != nil {
					return err
				}

				start := time.Now()
				stats, runErr := eng.Run(ctx, scraper.Options{
					EventID:    eventID,
					ActiveOnly: activeOnly,
					Resume:     resume,
					DryRun:     dryRun,
				})
				if stats != nil {
					if path, err := stats.WriteFile(cfg.CheckpointDir); err != nil {
						logger.Warn("stats dump failed", "error", err)
					} else {
						logger.Info("stats written", "path", path)
					}
					logger.Info("Scrape finished",
						"adapter", adapterID,
						"duration", time.Since(start).Round(time.Second),
						"summary", stats.Summary())
					for _, e := range stats.Errors {
						logger.Error("scrape error", "error", e)
					}
				}
				return runErr
			})
		},
	}
	cmd.Flags().StringVar(&adapterID, "adapter", "", "Adapter ID ("+strings.Join(adapter.IDs(), ", ")+")")
	cmd.Flags().StringVar(&eventID, "event", "", "Scrape exactly this event, skip discovery")
	cmd.Flags().BoolVar(&activeOnly, "active-only", false, "Drop events older than last season")
	cmd.Flags().BoolVar(&resume, "resume", false, "Continue from the previous run's checkpoint")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Fetch and validate, stage nothing")
	return cmd
}

// --------------------------------------------------------------------------
// validate command
// --------------------------------------------------------------------------

func validateCmd() *cobra.Command {
	var (
		report       bool
		cleanStaging bool
		dryRun       bool
		limit        int
	)
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate staged rows: report on them or clean them",
		RunE: func(cmd *cobra.Command, args []string) error {
			if report == cleanStaging {
				return fmt.Errorf("exactly one of --report or --clean-staging is required")
			}
			return runPipeline(func(ctx context.Context, cfg *config.Config, pool *db.Pool) error {
				season := pool.ResolveSeasonYear(ctx)
				policy, err := config.DefaultValidatorPolicy(season)
				if err != nil {
					return err
				}
				v := intake.NewValidator(policy, normalizer.New(season))

				if report {
					res, err := intake.Report(ctx, pool, v, limit)
					if res != nil {
						logger.Info("Validation report", "summary", res.Summary())
						logCodes(res.Codes)
					}
					return err
				}

				start := time.Now()
				res, err := intake.CleanStagingGames(ctx, pool, v, limit, dryRun, logger)
				if res != nil {
					logger.Info("Staging clean finished",
						"duration", time.Since(start).Round(time.Second),
						"dry_run", dryRun, "summary", res.Summary())
					logCodes(res.Codes)
					for _, e := range res.Errors {
						logger.Error("clean error", "error", e)
					}
				}
				return err
			})
		},
	}
	cmd.Flags().BoolVar(&report, "report", false, "Read-only sweep: tally codes, change nothing")
	cmd.Flags().BoolVar(&cleanStaging, "clean-staging", false, "Fix or reject invalid staged rows")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Count verdicts without writing them")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum rows to scan (0 = all)")
	return cmd
}

func logCodes(codes map[string]int) {
	keys := make([]string, 0, len(codes))
	for c := range codes {
		keys = append(keys, c)
	}
	sort.Strings(keys)
	for _, c := range keys {
		logger.Info("rejection code", "code", c, "count", codes[c])
	}
}

// --------------------------------------------------------------------------
// promote command
// --------------------------------------------------------------------------

func promoteCmd() *cobra.Command {
	var (
		processStaging bool
		batchSize      int
		limit          int
	)
	cmd := &cobra.Command{
		Use:   "promote",
		Short: "Promote validated staging rows into production",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !processStaging {
				return fmt.Errorf("--process-staging is required")
			}
			return runPipeline(func(ctx context.Context, cfg *config.Config, pool *db.Pool) error {
				season := pool.ResolveSeasonYear(ctx)
				p := promote.New(pool, season, logger)

				start := time.Now()
				res, err := p.ProcessStaging(ctx, batchSize, limit)
				if res != nil {
					logger.Info("Promotion finished",
						"duration", time.Since(start).Round(time.Second),
						"summary", res.Summary())
					for _, e := range res.Errors {
						logger.Error("promotion error", "error", e)
					}
				}
				return err
			})
		},
	}
	cmd.Flags().BoolVar(&processStaging, "process-staging", false, "Promote unprocessed staging rows")
	cmd.Flags().IntVar(&batchSize, "batch-size", 0, "Rows fetched per batch (0 = default)")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum rows to promote (0 = all)")
	return cmd
}

// --------------------------------------------------------------------------
// reconcile command
// --------------------------------------------------------------------------

func reconcileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Bulk-SQL reconciliation operators (dry-run by default)",
	}
	cmd.AddCommand(reconcileDedupeCmd())
	cmd.AddCommand(reconcileMetadataCmd())
	cmd.AddCommand(reconcileScoresCmd())
	cmd.AddCommand(reconcileCrossImportCmd())
	cmd.AddCommand(reconcileRecoverCmd())
	cmd.AddCommand(reconcileCleanupCmd())
	cmd.AddCommand(reconcileRankSnapshotCmd())
	return cmd
}

// reconcileMode adds the shared dry-run/execute flags and returns a
// resolver for them. Operators preview by default; --execute commits.
func reconcileMode(cmd *cobra.Command) func() (bool, error) {
	var execute, dryRun bool
	cmd.Flags().BoolVar(&execute, "execute", false, "Commit changes instead of previewing them")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Preview only (the default)")
	return func() (bool, error) {
		if execute && dryRun {
			return false, fmt.Errorf("--dry-run and --execute are mutually exclusive")
		}
		return !execute, nil
	}
}

// runReconcile is shared plumbing for every operator subcommand.
func runReconcile(fn func(ctx context.Context, r *reconcile.Reconciler) (*reconcile.Result, error)) error {
	return runPipeline(func(ctx context.Context, cfg *config.Config, pool *db.Pool) error {
		season := pool.ResolveSeasonYear(ctx)
		start := time.Now()
		res, err := fn(ctx, reconcile.New(pool, season, logger))
		if res != nil {
			logger.Info("Reconcile finished",
				"duration", time.Since(start).Round(time.Second),
				"summary", res.Summary())
			for _, e := range res.Errors {
				logger.Error("reconcile error", "error", e)
			}
		}
		return err
	})
}

func reconcileDedupeCmd() *cobra.Command {
	var byDisplayName bool
	cmd := &cobra.Command{
		Use:   "dedupe",
		Short: "Merge live teams sharing one identity",
	}
	mode := reconcileMode(cmd)
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		dry, err := mode()
		if err != nil {
			return err
		}
		return runReconcile(func(ctx context.Context, r *reconcile.Reconciler) (*reconcile.Result, error) {
			return r.MergeDuplicates(ctx, reconcile.MergeOptions{
				ByDisplayName: byDisplayName,
				DryRun:        dry,
			})
		})
	}
	cmd.Flags().BoolVar(&byDisplayName, "by-display-name", false, "Group on raw display names instead of canonical names")
	return cmd
}

func reconcileMetadataCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "metadata",
		Short: "Fill NULL metadata, absorb orphans, rebuild cached stats",
	}
	mode := reconcileMode(cmd)
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		dry, err := mode()
		if err != nil {
			return err
		}
		return runReconcile(func(ctx context.Context, r *reconcile.Reconciler) (*reconcile.Result, error) {
			return r.RepairMetadata(ctx, reconcile.MetadataOptions{DryRun: dry})
		})
	}
	return cmd
}

func reconcileScoresCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scores",
		Short: "Repair the scheduled 0-0 score anti-pattern",
	}
	mode := reconcileMode(cmd)
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		dry, err := mode()
		if err != nil {
			return err
		}
		return runReconcile(func(ctx context.Context, r *reconcile.Reconciler) (*reconcile.Result, error) {
			return r.CorrectScores(ctx, reconcile.ScoreOptions{DryRun: dry})
		})
	}
	return cmd
}

func reconcileCrossImportCmd() *cobra.Command {
	var minSimilarity float64
	cmd := &cobra.Command{
		Use:   "cross-import",
		Short: "Absorb legacy-archive duplicates of scraped matches",
	}
	mode := reconcileMode(cmd)
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		dry, err := mode()
		if err != nil {
			return err
		}
		return runReconcile(func(ctx context.Context, r *reconcile.Reconciler) (*reconcile.Result, error) {
			return r.AbsorbCrossImports(ctx, reconcile.CrossImportOptions{
				MinSimilarity: minSimilarity,
				DryRun:        dry,
			})
		})
	}
	cmd.Flags().Float64Var(&minSimilarity, "min-similarity", 0.3, "Trigram similarity the opponent names must clear")
	return cmd
}

func reconcileRecoverCmd() *cobra.Command {
	var (
		table     string
		changedBy string
		fromStr   string
		toStr     string
	)
	cmd := &cobra.Command{
		Use:   "recover",
		Short: "Bring back audited deletions",
	}
	mode := reconcileMode(cmd)
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		dry, err := mode()
		if err != nil {
			return err
		}
		if changedBy == "" {
			return fmt.Errorf("--changed-by is required (e.g. teamMerge, crossImport, cleanup)")
		}
		from, to, err := parseWindow(fromStr, toStr)
		if err != nil {
			return err
		}
		return runReconcile(func(ctx context.Context, r *reconcile.Reconciler) (*reconcile.Result, error) {
			return r.Recover(ctx, reconcile.RecoverOptions{
				Table:     table,
				ChangedBy: changedBy,
				From:      from,
				To:        to,
				DryRun:    dry,
			})
		})
	}
	cmd.Flags().StringVar(&table, "table", config.MatchesTable, "Table to recover ("+config.MatchesTable+" or "+config.TeamsTable+")")
	cmd.Flags().StringVar(&changedBy, "changed-by", "", "Operator whose deletions to undo")
	cmd.Flags().StringVar(&fromStr, "from", "", "Window start, YYYY-MM-DD (default 7 days ago)")
	cmd.Flags().StringVar(&toStr, "to", "", "Window end, YYYY-MM-DD inclusive (default now)")
	return cmd
}

// parseWindow turns the --from/--to date flags into a [from, to] range,
// defaulting to the last seven days. The end date is inclusive.
func parseWindow(fromStr, toStr string) (time.Time, time.Time, error) {
	now := time.Now()
	from := now.AddDate(0, 0, -7)
	to := now

	if fromStr != "" {
		t, err := time.Parse("2006-01-02", fromStr)
		if err != nil {
			return from, to, fmt.Errorf("bad --from date %q: %w", fromStr, err)
		}
		from = t
	}
	if toStr != "" {
		t, err := time.Parse("2006-01-02", toStr)
		if err != nil {
			return from, to, fmt.Errorf("bad --to date %q: %w", toStr, err)
		}
		to = t.AddDate(0, 0, 1).Add(-time.Second)
	}
	return from, to, nil
}

func reconcileCleanupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Soft-delete unlinked matches with impossible dates",
	}
	mode := reconcileMode(cmd)
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		dry, err := mode()
		if err != nil {
			return err
		}
		return runReconcile(func(ctx context.Context, r *reconcile.Reconciler) (*reconcile.Result, error) {
			return r.CleanupImpossibleDates(ctx, reconcile.CleanupOptions{DryRun: dry})
		})
	}
	return cmd
}

func reconcileRankSnapshotCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rank-snapshot",
		Short: "Snapshot every ranked team's standing for today",
	}
	mode := reconcileMode(cmd)
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		dry, err := mode()
		if err != nil {
			return err
		}
		return runReconcile(func(ctx context.Context, r *reconcile.Reconciler) (*reconcile.Result, error) {
			return r.SnapshotRanks(ctx, reconcile.SnapshotOptions{DryRun: dry})
		})
	}
	return cmd
}

// --------------------------------------------------------------------------
// diagnose command
// --------------------------------------------------------------------------

func diagnoseCmd() *cobra.Command {
	var (
		teamName      string
		teamID        int64
		healthCheck   bool
		stagingStatus bool
	)
	cmd := &cobra.Command{
		Use:   "diagnose",
		Short: "Read-only health and team reports",
		RunE: func(cmd *cobra.Command, args []string) error {
			modes := 0
			if teamName != "" {
				modes++
			}
			if teamID != 0 {
				modes++
			}
			if healthCheck {
				modes++
			}
			if stagingStatus {
				modes++
			}
			if modes != 1 {
				return fmt.Errorf("exactly one of --team, --team-id, --health-check or --staging-status is required")
			}
			return runPipeline(func(ctx context.Context, cfg *config.Config, pool *db.Pool) error {
				d := diagnose.New(pool, logger)
				switch {
				case healthCheck:
					return runHealthCheck(ctx, d)
				case stagingStatus:
					return runStagingStatus(ctx, d)
				case teamID != 0:
					return printTeamReport(ctx, d, teamID)
				default:
					return runTeamSearch(ctx, d, teamName)
				}
			})
		},
	}
	cmd.Flags().StringVar(&teamName, "team", "", "Report on teams matching this name")
	cmd.Flags().Int64Var(&teamID, "team-id", 0, "Report on one team by id")
	cmd.Flags().BoolVar(&healthCheck, "health-check", false, "Run every data-health check")
	cmd.Flags().BoolVar(&stagingStatus, "staging-status", false, "Summarize staging by platform")
	return cmd
}

func runHealthCheck(ctx context.Context, d *diagnose.Doctor) error {
	findings, err := d.HealthCheck(ctx)
	if err != nil {
		return err
	}
	anomalies := 0
	for _, f := range findings {
		attrs := []any{"check", f.Check, "message", f.Message}
		if f.Suggestion != "" {
			attrs = append(attrs, "suggestion", f.Suggestion)
		}
		switch f.Severity {
		case diagnose.SeverityOK:
			logger.Info("health", attrs...)
		case diagnose.SeverityWarning:
			anomalies++
			logger.Warn("health", attrs...)
		default:
			anomalies++
			logger.Error("health", attrs...)
		}
	}
	logger.Info("Health check finished", "checks", len(findings), "anomalies", anomalies)
	return nil
}

func runStagingStatus(ctx context.Context, d *diagnose.Doctor) error {
	statuses, err := d.StagingStatus(ctx)
	if err != nil {
		return err
	}
	if len(statuses) == 0 {
		logger.Info("staging is empty")
		return nil
	}
	for _, s := range statuses {
		attrs := []any{
			"platform", s.Platform,
			"staged", s.Staged, "pending", s.Pending, "rejected", s.Rejected,
		}
		if s.OldestPending != nil {
			attrs = append(attrs, "oldest_pending", s.OldestPending.Format(time.RFC3339))
		}
		if s.LastScraped != nil {
			attrs = append(attrs, "last_scraped", s.LastScraped.Format(time.RFC3339))
		}
		logger.Info("staging", attrs...)
	}
	return nil
}

func runTeamSearch(ctx context.Context, d *diagnose.Doctor, name string) error {
	teams, err := d.SearchTeams(ctx, name)
	if err != nil {
		return err
	}
	switch len(teams) {
	case 0:
		logger.Info("no live teams match", "query", name)
		return nil
	case 1:
		return printTeamReport(ctx, d, teams[0].ID)
	default:
		for _, t := range teams {
			logger.Info("team",
				"id", t.ID, "name", t.DisplayName,
				"birth_year", intOrDash(t.BirthYear), "gender", strOrDash(t.Gender),
				"state", strOrDash(t.State), "matches", t.MatchesPlayed)
		}
		logger.Info("narrow the search or rerun with --team-id", "matches", len(teams))
		return nil
	}
}

func printTeamReport(ctx context.Context, d *diagnose.Doctor, id int64) error {
	r, err := d.Report(ctx, id)
	if err != nil {
		return err
	}
	logger.Info("team",
		"id", r.ID, "name", r.DisplayName, "canonical", r.CanonicalName,
		"birth_year", intOrDash(r.BirthYear), "gender", strOrDash(r.Gender),
		"state", strOrDash(r.State), "status", r.Status)
	logger.Info("record",
		"played", r.MatchesPlayed, "wins", r.Wins, "losses", r.Losses,
		"draws", r.Draws, "actual_played", r.ActualPlayed)
	logger.Info("standing",
		"national_rank", intOrDash(r.NationalRank),
		"state_rank", intOrDash(r.StateRank),
		"regional_rank", intOrDash(r.RegionalRank))
	if len(r.Aliases) > 0 {
		logger.Info("aliases", "names", strings.Join(r.Aliases, "; "))
	}
	if len(r.SourceKeys) > 0 {
		logger.Info("source keys", "keys", strings.Join(r.SourceKeys, ", "))
	}
	if len(r.DataQualityFlags) > 0 {
		logger.Info("quality flags", "flags", strings.Join(r.DataQualityFlags, ", "))
	}
	for _, m := range r.RecentMatches {
		side := "away"
		if m.Home {
			side = "home"
		}
		score := m.Score
		if score == "" {
			score = "-"
		}
		logger.Info("match",
			"date", m.Date.Format("2006-01-02"), "opponent", m.Opponent,
			"side", side, "score", score, "status", m.Status, "platform", m.Platform)
	}
	for _, f := range r.Findings {
		logger.Warn("finding", "check", f.Check, "message", f.Message, "suggestion", f.Suggestion)
	}
	return nil
}

func intOrDash(v *int) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%d", *v)
}

func strOrDash(v *string) string {
	if v == nil || *v == "" {
		return "-"
	}
	return *v
}

// --------------------------------------------------------------------------
// ci-check command
// --------------------------------------------------------------------------

func ciCheckCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ci-check",
		Short: "Static checks for CI",
	}
	cmd.AddCommand(ciCheckWriteAuthCmd())
	return cmd
}

func ciCheckWriteAuthCmd() *cobra.Command {
	var (
		roots            []string
		allowlist        []string
		failOnViolations bool
	)
	cmd := &cobra.Command{
		Use:   "write-auth",
		Short: "Find protected-table writes that skip the write-auth gate",
		RunE: func(cmd *cobra.Command, args []string) error {
			violations, err := authcheck.Scan(authcheck.Options{
				Roots:     roots,
				Allowlist: allowlist,
			})
			if err != nil {
				return err
			}
			for _, v := range violations {
				logger.Error("unauthorized write",
					"path", v.Path, "line", v.Line, "matched", v.Matched)
			}
			logger.Info("Write-auth scan finished",
				"roots", strings.Join(roots, ","), "violations", len(violations))
			if failOnViolations && len(violations) > 0 {
				return fmt.Errorf("%d files write protected tables without authorization", len(violations))
			}
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&roots, "root", []string{"."}, "Directories to scan")
	cmd.Flags().StringSliceVar(&allowlist, "allow", nil, "Files exempt from the check")
	cmd.Flags().BoolVar(&failOnViolations, "fail-on-violations", false, "Exit non-zero when violations exist")
	return cmd
}

// --------------------------------------------------------------------------
// maintenance command
// --------------------------------------------------------------------------

func maintenanceCmd() *cobra.Command {
	var (
		refreshViews  bool
		purgeRejected int
	)
	cmd := &cobra.Command{
		Use:   "maintenance",
		Short: "Housekeeping: view refresh and retention sweeps",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !refreshViews && purgeRejected == 0 {
				return fmt.Errorf("nothing to do: pass --refresh-views and/or --purge-rejected N")
			}
			return runPipeline(func(ctx context.Context, cfg *config.Config, pool *db.Pool) error {
				if refreshViews {
					if err := maintenance.RefreshPipelineViews(ctx, pool, logger); err != nil {
						return err
					}
				}
				if purgeRejected > 0 {
					if _, err := maintenance.PurgeRejected(ctx, pool, purgeRejected, logger); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&refreshViews, "refresh-views", false, "Refresh the pipeline's materialized views")
	cmd.Flags().IntVar(&purgeRejected, "purge-rejected", 0, "Purge rejected staging rows older than N days")
	return cmd
}

// --------------------------------------------------------------------------
// Shared setup
// --------------------------------------------------------------------------

// runPipeline handles config loading, DB connection, and context
// cancellation.
func runPipeline(fn func(ctx context.Context, cfg *config.Config, pool *db.Pool) error) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	pool, err := db.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer pool.Close()

	return fn(ctx, cfg, pool)
}
