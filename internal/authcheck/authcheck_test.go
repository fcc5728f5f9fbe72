package authcheck

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func violationPaths(violations []Violation) []string {
	out := make([]string, len(violations))
	for i, v := range violations {
		out[i] = filepath.Base(v.Path)
	}
	return out
}

func TestScanFlagsUnauthorizedWrites(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "seed.sql", "UPDATE teams SET elo_rating = 1200;\n")
	writeFile(t, dir, "authorized.sql",
		"SELECT authorize_pipeline_write();\nUPDATE teams SET elo_rating = 1200;\n")
	writeFile(t, dir, "staging.sql",
		"UPDATE staging_games SET processed = TRUE;\n")
	writeFile(t, dir, "notes.md", "DELETE FROM matches -- not a script\n")

	violations, err := Scan(Options{Roots: []string{dir}})
	require.NoError(t, err)
	assert.Equal(t, []string{"seed.sql"}, violationPaths(violations))
	assert.Equal(t, 1, violations[0].Line)
	assert.Equal(t, "UPDATE teams", violations[0].Matched)
}

func TestScanGoSources(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "tool.go",
		"package main\n\nfunc run() {\n\tpool.Exec(ctx, `DELETE FROM `+config.MatchesTable+` WHERE id = $1`, id)\n}\n")
	writeFile(t, dir, "wrapped.go",
		"package main\n\nfunc run() {\n\tdb.WithPipelineTx(ctx, pool, func(tx pgx.Tx) error {\n\t\t_, err := tx.Exec(ctx, `UPDATE `+config.TeamsTable+` SET wins = 0`)\n\t\treturn err\n\t})\n}\n")
	writeFile(t, dir, "operator.go",
		"package main\n\nfunc run() {\n\treturn r.runTx(ctx, dryRun, func(tx pgx.Tx) error {\n\t\t_, err := tx.Exec(ctx, `UPDATE `+config.TeamsTable+` SET wins = 0`)\n\t\treturn err\n\t})\n}\n")
	writeFile(t, dir, "skip_test.go",
		"package main\n\nconst q = `UPDATE `+config.TeamsTable+` SET wins = 0`\n")

	violations, err := Scan(Options{Roots: []string{dir}})
	require.NoError(t, err)
	assert.Equal(t, []string{"tool.go"}, violationPaths(violations))
	assert.Equal(t, 4, violations[0].Line)
}

func TestScanSkipsHiddenAndUnderscoreDirs(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "_archive/old.sql", "DELETE FROM matches;\n")
	writeFile(t, dir, ".cache/tmp.sql", "DELETE FROM matches;\n")
	writeFile(t, dir, "vendor/dep.sql", "DELETE FROM matches;\n")
	writeFile(t, dir, "scripts/live.sql", "DELETE FROM matches WHERE id = 0;\n")

	violations, err := Scan(Options{Roots: []string{dir}})
	require.NoError(t, err)
	assert.Equal(t, []string{"live.sql"}, violationPaths(violations))
}

func TestScanAllowlist(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "legacy.sh",
		"#!/bin/sh\npsql -c \"DELETE FROM matches WHERE id = 1\"\n")
	writeFile(t, dir, "scripts/fixup.sql", "UPDATE matches SET status = 'completed';\n")

	violations, err := Scan(Options{
		Roots:     []string{dir},
		Allowlist: []string{"legacy.sh", "scripts/fixup.sql"},
	})
	require.NoError(t, err)
	assert.Empty(t, violations)
}

func TestScanReportsLineOfFirstHit(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "multi.sql",
		"-- maintenance\n\nDELETE   FROM matches WHERE id < 0;\nUPDATE teams SET wins = 0;\n")

	violations, err := Scan(Options{Roots: []string{dir}})
	require.NoError(t, err)
	require.Len(t, violations, 1)
	assert.Equal(t, 3, violations[0].Line)
	assert.Equal(t, "DELETE FROM matches", violations[0].Matched)
}
