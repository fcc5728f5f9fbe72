package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// The write-authorization grant is connection-scoped. Triggers on the
// protected tables (teams, matches) reject mutations unless the session
// called authorize_pipeline_write() or global protection is disabled. The
// wrappers below reserve one connection for the duration of the callback so
// the grant never leaks to pooled neighbours.

// WithPipelineAuth acquires a connection, authorizes pipeline writes on it,
// runs fn, then revokes and releases. Use for multi-statement work that
// manages its own transactions.
func WithPipelineAuth(ctx context.Context, pool *Pool, fn func(conn *pgxpool.Conn) error) error {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "authorize_write"); err != nil {
		return fmt.Errorf("authorize pipeline write: %w", err)
	}
	defer func() {
		// Best effort; the grant dies with the connection anyway.
		_, _ = conn.Exec(ctx, "revoke_write")
	}()

	return fn(conn)
}

// WithPipelineTx runs fn inside a single authorized transaction: BEGIN,
// authorize, fn, COMMIT — ROLLBACK on error. The grant clears at transaction
// end on the database side.
func WithPipelineTx(ctx context.Context, pool *Pool, fn func(tx pgx.Tx) error) error {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	if _, err := tx.Exec(ctx, "SELECT authorize_pipeline_write()"); err != nil {
		_ = tx.Rollback(ctx)
		return fmt.Errorf("authorize pipeline write: %w", err)
	}

	if err := fn(tx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// WithPipelineTxPreview runs fn like WithPipelineTx but always rolls the
// transaction back. Dry-run operators use it to observe the exact row
// counts a real run would produce without committing anything.
func WithPipelineTxPreview(ctx context.Context, pool *Pool, fn func(tx pgx.Tx) error) error {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, "SELECT authorize_pipeline_write()"); err != nil {
		return fmt.Errorf("authorize pipeline write: %w", err)
	}
	return fn(tx)
}

// WriteProtectionEnabled reports the global protection flag. False means the
// break-glass switch is thrown and triggers admit all writers.
func WriteProtectionEnabled(ctx context.Context, pool *Pool) (bool, error) {
	var enabled bool
	if err := pool.QueryRow(ctx, "write_protection_status").Scan(&enabled); err != nil {
		return false, fmt.Errorf("read write protection status: %w", err)
	}
	return enabled, nil
}
