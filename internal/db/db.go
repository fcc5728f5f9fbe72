// Package db provides a pgxpool-based connection pool with prepared statement
// registration, the staging write probe, and the pipeline write-authorization
// helpers.
package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MGMAppDev/soccerview-pipeline/internal/config"
)

// Pool wraps pgxpool.Pool with application-specific helpers.
type Pool struct {
	*pgxpool.Pool
}

// Querier is the query surface shared by *pgxpool.Pool, *pgxpool.Conn, and
// pgx.Tx. Registry lookups take it so promotion can run them inside its own
// transactions.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// New creates and validates a new connection pool. Every connection gets the
// configured statement timeout and the pipeline's prepared statements.
func New(ctx context.Context, cfg *config.Config) (*Pool, error) {
	return newPool(ctx, cfg, cfg.DatabaseURL)
}

// NewServiceRole opens a pool on the read-side service-role credentials.
// Falls back to the primary URL when none is configured.
func NewServiceRole(ctx context.Context, cfg *config.Config) (*Pool, error) {
	url := cfg.ServiceRoleURL
	if url == "" {
		url = cfg.DatabaseURL
	}
	return newPool(ctx, cfg, url)
}

func newPool(ctx context.Context, cfg *config.Config, url string) (*Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}

	poolCfg.MinConns = int32(cfg.DBPoolMinConns)
	poolCfg.MaxConns = int32(cfg.DBPoolMaxConns)
	poolCfg.MaxConnLifetime = cfg.DBPoolMaxLife
	poolCfg.MaxConnIdleTime = 5 * time.Minute

	// Reconciliation bulk SQL runs for minutes on large merge groups, so the
	// timeout is set connection-wide here; fast paths narrow it with SET LOCAL.
	timeoutMS := cfg.StatementTimeout.Milliseconds()

	poolCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		if _, err := conn.Exec(ctx, fmt.Sprintf("SET statement_timeout = %d", timeoutMS)); err != nil {
			return fmt.Errorf("set statement timeout: %w", err)
		}
		return registerPreparedStatements(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	// Verify connectivity
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Pool{Pool: pool}, nil
}

// HealthCheck runs a trivial query to verify the database is reachable.
func (p *Pool) HealthCheck(ctx context.Context) error {
	var n int
	return p.QueryRow(ctx, "health_check").Scan(&n)
}

// ResolveSeasonYear reads the current season from the seasons table, falling
// back to the compiled-in constant when no row is marked current.
func (p *Pool) ResolveSeasonYear(ctx context.Context) int {
	var year int
	err := p.QueryRow(ctx, "current_season").Scan(&year)
	if err != nil {
		return config.FallbackSeasonYear
	}
	return year
}

// registerPreparedStatements registers the statements the pipeline's hot
// paths reuse on every connection. Bulk reconciliation SQL is not prepared;
// it runs once per job.
func registerPreparedStatements(ctx context.Context, conn *pgx.Conn) error {
	stmts := map[string]string{
		// Health
		"health_check": "SELECT 1",

		// Season resolution
		"current_season": "SELECT season_year FROM " + config.SeasonsTable + " WHERE is_current = true LIMIT 1",

		// Registry lookups (promotion hot path)
		"canonical_find": `SELECT team_id FROM ` + config.CanonicalTeamsTable + `
			WHERE canonical_name = $1
			  AND birth_year IS NOT DISTINCT FROM $2
			  AND gender IS NOT DISTINCT FROM $3
			  AND state IS NOT DISTINCT FROM $4`,
		"canonical_find_any_state": `SELECT team_id FROM ` + config.CanonicalTeamsTable + `
			WHERE canonical_name = $1
			  AND birth_year IS NOT DISTINCT FROM $2
			  AND gender IS NOT DISTINCT FROM $3
			LIMIT 1`,
		"canonical_find_alias": `SELECT team_id FROM ` + config.CanonicalTeamsTable + `
			WHERE birth_year IS NOT DISTINCT FROM $2
			  AND gender IS NOT DISTINCT FROM $3
			  AND $1 = ANY(aliases)
			LIMIT 1`,
		"source_entity_find": `SELECT production_id FROM ` + config.SourceEntityMapTable + `
			WHERE source_platform = $1 AND source_entity_type = $2 AND source_entity_key = $3`,

		// Write-auth gate
		"authorize_write":         "SELECT authorize_pipeline_write()",
		"revoke_write":            "SELECT revoke_pipeline_write()",
		"write_protection_status": "SELECT is_write_protection_enabled()",
	}

	for name, sql := range stmts {
		if _, err := conn.Prepare(ctx, name, sql); err != nil {
			return fmt.Errorf("prepare %q: %w", name, err)
		}
	}
	return nil
}
