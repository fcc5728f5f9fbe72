// Package reconcile holds the bulk-SQL operators that keep production data
// consistent after promotion: duplicate-team merges, NULL-metadata repair
// and orphan absorption, scheduled-zero score correction, cross-import
// duplicate absorption, audit-log recovery, impossible-date cleanup, and
// rank snapshots. Every operator defaults to dry-run, takes the write-auth
// grant per transaction, and writes audit rows for each destructive change.
package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/MGMAppDev/soccerview-pipeline/internal/db"
	"github.com/MGMAppDev/soccerview-pipeline/internal/maintenance"
	"github.com/MGMAppDev/soccerview-pipeline/internal/normalizer"
)

// Reconciler runs the reconciliation operators against one pool.
type Reconciler struct {
	pool   *db.Pool
	norm   *normalizer.Normalizer
	logger *slog.Logger
	now    func() time.Time
}

// New builds a reconciler for the resolved season.
func New(pool *db.Pool, seasonYear int, logger *slog.Logger) *Reconciler {
	return &Reconciler{
		pool:   pool,
		norm:   normalizer.New(seasonYear),
		logger: logger,
		now:    time.Now,
	}
}

// runTx dispatches to the committing or the always-rollback transaction
// wrapper. Operators run their whole job through this, so a dry run
// reports the exact counts an execute run would produce.
func (r *Reconciler) runTx(ctx context.Context, dryRun bool, fn func(tx pgx.Tx) error) error {
	if dryRun {
		return db.WithPipelineTxPreview(ctx, r.pool, fn)
	}
	return db.WithPipelineTx(ctx, r.pool, fn)
}

// refreshViews keeps the read-side views current after an execute run.
// A failure is not fatal: the views rebuild on the next pass.
func (r *Reconciler) refreshViews(ctx context.Context) {
	if err := maintenance.RefreshPipelineViews(ctx, r.pool, r.logger); err != nil {
		r.logger.Warn("view refresh after reconciliation failed", "error", err)
	}
}

// Result tracks one operator run. Operators use the fields that apply to
// them; Summary prints them all so run logs stay grep-able across jobs.
type Result struct {
	Operator string
	DryRun   bool

	Groups      int // merge groups or candidate pair-sets examined
	Examined    int // rows inspected
	Updated     int // rows mutated in place
	SoftDeleted int // rows soft-deleted
	HardDeleted int // dependent rows removed (rank history, standings)
	Repointed   int // foreign keys moved to a keeper
	Restored    int // rows brought back by recovery
	Skipped     int
	Remaining   int // rows left for manual review

	Errors []string
}

// AddErrorf records a formatted error message.
func (r *Result) AddErrorf(format string, args ...interface{}) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

// Summary returns a human-readable summary of the run.
func (r *Result) Summary() string {
	mode := "execute"
	if r.DryRun {
		mode = "dry-run"
	}
	return fmt.Sprintf(
		"op=%s mode=%s groups=%d examined=%d updated=%d deleted=%d purged=%d repointed=%d restored=%d skipped=%d remaining=%d errors=%d",
		r.Operator, mode, r.Groups, r.Examined, r.Updated, r.SoftDeleted,
		r.HardDeleted, r.Repointed, r.Restored, r.Skipped, r.Remaining, len(r.Errors))
}
