// Package registry resolves source-side identities to production ids: the
// canonical team registry (normalized name + birth year + gender + state,
// with collected aliases) and the source entity map that pins every
// platform key to the production row it first landed in.
package registry

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/MGMAppDev/soccerview-pipeline/internal/config"
	"github.com/MGMAppDev/soccerview-pipeline/internal/db"
	"github.com/MGMAppDev/soccerview-pipeline/internal/normalizer"
)

// Entity types in the source entity map.
const (
	EntityTeam  = "team"
	EntityMatch = "match"
)

// IdentityColumns is the registry's unique identity tuple, the arbiter for
// every canonical_teams upsert. The backing index is UNIQUE NULLS NOT
// DISTINCT over these four columns; team_id carries no uniqueness, a team
// may hold one registry row per state it has appeared under.
const IdentityColumns = "(canonical_name, birth_year, gender, state)"

// FindTeam looks a team up by normalized identity, widening the search at
// each step: exact identity first, then identity regardless of state (a
// team traveling to an out-of-state tournament is still the same team),
// then the raw source spelling against collected aliases. Uses prepared
// statements because this is promotion's hottest path.
func FindTeam(ctx context.Context, q db.Querier, rawName string, ident normalizer.Identity, state string) (int64, bool, error) {
	var id int64

	err := q.QueryRow(ctx, "canonical_find",
		ident.CanonicalName, nilZero(ident.BirthYear), nilEmpty(ident.Gender), nilEmpty(state)).Scan(&id)
	if err == nil {
		return id, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, false, fmt.Errorf("find canonical team: %w", err)
	}

	err = q.QueryRow(ctx, "canonical_find_any_state",
		ident.CanonicalName, nilZero(ident.BirthYear), nilEmpty(ident.Gender)).Scan(&id)
	if err == nil {
		return id, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, false, fmt.Errorf("find canonical team any state: %w", err)
	}

	err = q.QueryRow(ctx, "canonical_find_alias",
		rawName, nilZero(ident.BirthYear), nilEmpty(ident.Gender)).Scan(&id)
	if err == nil {
		return id, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, false, fmt.Errorf("find team by alias: %w", err)
	}
	return 0, false, nil
}

// Register upserts a team's canonical registry row and collects the raw
// source spelling as an alias. A spelling landing on an already-registered
// identity appends itself to that row's aliases and leaves the existing
// team binding alone; re-registering the same spelling is a no-op, so
// promotion can call this on every resolved team.
func Register(ctx context.Context, q db.Querier, teamID int64, ident normalizer.Identity, rawName, state string) error {
	_, err := q.Exec(ctx, `
		INSERT INTO `+config.CanonicalTeamsTable+` (
			team_id, canonical_name, birth_year, gender, state, aliases,
			created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, ARRAY[$6::text], NOW(), NOW())
		ON CONFLICT `+IdentityColumns+` DO UPDATE SET
			aliases = CASE
				WHEN $6 = ANY(`+config.CanonicalTeamsTable+`.aliases)
				THEN `+config.CanonicalTeamsTable+`.aliases
				ELSE array_append(`+config.CanonicalTeamsTable+`.aliases, $6)
			END,
			updated_at = NOW()`,
		teamID, ident.CanonicalName, nilZero(ident.BirthYear),
		nilEmpty(ident.Gender), nilEmpty(state), rawName)
	if err != nil {
		return fmt.Errorf("register canonical team %d: %w", teamID, err)
	}
	return nil
}

// FindSourceEntity resolves a platform key to its production id.
func FindSourceEntity(ctx context.Context, q db.Querier, platform, entityType, key string) (int64, bool, error) {
	var id int64
	err := q.QueryRow(ctx, "source_entity_find", platform, entityType, key).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("find source entity %s/%s: %w", entityType, key, err)
	}
	return id, true, nil
}

// BindSourceEntity pins a platform key to a production id. The first
// binding wins; a key that already points somewhere is left alone, because
// re-pointing is a merge decision, not an ingest decision.
func BindSourceEntity(ctx context.Context, q db.Querier, platform, entityType, key string, productionID int64) error {
	_, err := q.Exec(ctx, `
		INSERT INTO `+config.SourceEntityMapTable+` (
			source_platform, source_entity_type, source_entity_key,
			production_id, created_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (source_platform, source_entity_type, source_entity_key)
		DO NOTHING`,
		platform, entityType, key, productionID)
	if err != nil {
		return fmt.Errorf("bind source entity %s/%s: %w", entityType, key, err)
	}
	return nil
}

// RepointSourceEntities moves every mapping from the losing production ids
// onto the keeper. Returns the number of re-pointed mappings.
func RepointSourceEntities(ctx context.Context, q db.Querier, entityType string, losers []int64, keeper int64) (int64, error) {
	tag, err := q.Exec(ctx, `
		UPDATE `+config.SourceEntityMapTable+`
		SET production_id = $1
		WHERE source_entity_type = $2 AND production_id = ANY($3)`,
		keeper, entityType, losers)
	if err != nil {
		return 0, fmt.Errorf("repoint %s entities: %w", entityType, err)
	}
	return tag.RowsAffected(), nil
}

// nilZero converts 0 to nil for nullable integer columns.
func nilZero(v int) any {
	if v == 0 {
		return nil
	}
	return v
}

// nilEmpty converts empty strings to nil for nullable columns.
func nilEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
