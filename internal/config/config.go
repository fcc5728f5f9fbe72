// Package config provides centralized configuration loaded from environment
// variables. Shared by every pipeline command.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// --------------------------------------------------------------------------
// Season
// --------------------------------------------------------------------------

// FallbackSeasonYear is used when the seasons table has no current row.
// The authoritative value comes from ResolveSeasonYear at startup.
const FallbackSeasonYear = 2026

// Valid birth-year window relative to the season year. A U7 player in the
// current season was born season-7; the oldest premier bracket is U19.
const (
	MinPlayerAge = 7
	MaxPlayerAge = 19
)

// BirthYearBounds returns the inclusive [min, max] valid birth years for a
// season. Teams outside the window are flagged invalid_birth_year.
func BirthYearBounds(seasonYear int) (min, max int) {
	return seasonYear - MaxPlayerAge, seasonYear - MinPlayerAge
}

// --------------------------------------------------------------------------
// Table names — single source of truth, matches the production DDL
// --------------------------------------------------------------------------

const (
	TeamsTable           = "teams"
	MatchesTable         = "matches"
	LeaguesTable         = "leagues"
	TournamentsTable     = "tournaments"
	CanonicalTeamsTable  = "canonical_teams"
	SourceEntityMapTable = "source_entity_map"
	StagingGamesTable    = "staging_games"
	StagingEventsTable   = "staging_events"
	StagingRejectedTable = "staging_rejected"
	AuditLogTable        = "audit_log"
	RankHistoryTable     = "rank_history"
	LeagueStandingsTable = "league_standings"
	SeasonsTable         = "seasons"
)

// --------------------------------------------------------------------------
// Source platforms
// --------------------------------------------------------------------------

const (
	PlatformGotSport    = "gotsport"
	PlatformHeartland   = "heartland"
	PlatformPlayMetrics = "playmetrics"
	PlatformArchive     = "archive" // legacy import rows; no live adapter
)

// KnownPlatforms is the closed set accepted by the intake validator.
var KnownPlatforms = []string{
	PlatformGotSport,
	PlatformHeartland,
	PlatformPlayMetrics,
	PlatformArchive,
}

// --------------------------------------------------------------------------
// Validator policy
// --------------------------------------------------------------------------

// ValidatorPolicy holds the intake validator's tunable knobs. The recreational
// pattern list and date bounds are policy, not code: operators adjust them per
// season without touching the validator.
type ValidatorPolicy struct {
	KnownPlatforms []string
	MinMatchDate   time.Time // rows earlier are PAST_DATE rejects
	MaxMatchDate   time.Time // rows later are FUTURE_DATE rejects
	Recreational   []*regexp.Regexp
	SeasonYear     int
}

// DefaultRecreationalPatterns match source keys and event names that identify
// recreational or non-premier play. Calendar events that merely mention rec
// teams are NOT matched; only these explicit markers reject.
var DefaultRecreationalPatterns = []string{
	`(?i)recreational`,
	`(?i)[-_ ]rec[-_ ]league`,
	`(?i)\brec\b[-_ ]?(?:league|division|div)`,
	`(?i)non[-_ ]?premier`,
}

// DefaultValidatorPolicy builds the standard policy for a season.
// RECREATIONAL_PATTERNS overrides the pattern list (comma-separated regexes).
func DefaultValidatorPolicy(seasonYear int) (ValidatorPolicy, error) {
	patterns := envList("RECREATIONAL_PATTERNS", DefaultRecreationalPatterns)
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return ValidatorPolicy{}, fmt.Errorf("compile recreational pattern %q: %w", p, err)
		}
		compiled = append(compiled, re)
	}
	return ValidatorPolicy{
		KnownPlatforms: KnownPlatforms,
		MinMatchDate:   time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
		MaxMatchDate:   time.Date(2027, 12, 31, 23, 59, 59, 0, time.UTC),
		Recreational:   compiled,
		SeasonYear:     seasonYear,
	}, nil
}

// --------------------------------------------------------------------------
// Config struct — populated from environment variables
// --------------------------------------------------------------------------

type Config struct {
	// Database
	DatabaseURL    string
	DBPoolMinConns int
	DBPoolMaxConns int
	DBPoolMaxLife  time.Duration

	// Statement timeouts. Probes fail fast; reconciliation bulk SQL can run
	// for minutes on large merge groups.
	ProbeTimeout     time.Duration
	StatementTimeout time.Duration

	// Optional service-role URL for read-side diagnostics.
	ServiceRoleURL string

	// Scraper
	CheckpointDir string

	// External command that renders JavaScript pages for SPA sources:
	// invoked as `cmd <url> <user-agent>`, prints the rendered HTML to
	// stdout. Empty disables SPA adapters.
	JSFetcherCmd string

	Environment string // development, staging, production
	Debug       bool
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (*Config, error) {
	dbURL := envOr("DATABASE_URL", envOr("SOCCERVIEW_DATABASE_URL", ""))
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL or SOCCERVIEW_DATABASE_URL must be set")
	}

	return &Config{
		DatabaseURL:    dbURL,
		DBPoolMinConns: envInt("DB_POOL_MIN_CONNS", 2),
		DBPoolMaxConns: envInt("DB_POOL_MAX_CONNS", 10),
		DBPoolMaxLife:  time.Duration(envInt("DB_POOL_MAX_LIFE_MINUTES", 30)) * time.Minute,

		ProbeTimeout:     time.Duration(envInt("DB_PROBE_TIMEOUT_SECONDS", 30)) * time.Second,
		StatementTimeout: time.Duration(envInt("DB_STATEMENT_TIMEOUT_MINUTES", 10)) * time.Minute,

		ServiceRoleURL: envOr("SERVICE_ROLE_DATABASE_URL", ""),

		CheckpointDir: envOr("CHECKPOINT_DIR", ".checkpoints"),
		JSFetcherCmd:  envOr("JS_FETCHER_CMD", ""),

		Environment: envOr("ENVIRONMENT", "development"),
		Debug:       envBool("DEBUG", false),
	}, nil
}

// IsProduction returns true if running in production environment.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// --------------------------------------------------------------------------
// Env helpers
// --------------------------------------------------------------------------

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return fallback
}

func envList(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return fallback
}
