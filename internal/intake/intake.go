// Package intake validates staged rows before promotion. The validator is
// pure policy over data: no database access, so scrapers can preview
// verdicts on rows they are about to stage, and the same rules run
// identically in batch cleaning.
package intake

import (
	"fmt"
	"strings"
	"time"

	"github.com/MGMAppDev/soccerview-pipeline/internal/config"
	"github.com/MGMAppDev/soccerview-pipeline/internal/normalizer"
)

// Record mirrors one staging_games row.
type Record struct {
	ID             int64
	SourcePlatform string
	SourceMatchKey string
	HomeTeamName   string
	AwayTeamName   string
	HomeScore      *int
	AwayScore      *int
	MatchDate      time.Time // zero = missing
	MatchTime      string
	Venue          string
	Division       string
	EventName      string
	EventSourceID  string
	EventType      string
	Status         string
	State          string
}

// Rejection codes. The date codes carry the era they were introduced with;
// the actual bounds live in the validator policy.
const (
	CodeEmptyHomeTeam    = "EMPTY_HOME_TEAM"
	CodeEmptyAwayTeam    = "EMPTY_AWAY_TEAM"
	CodeSameTeam         = "SAME_TEAM"
	CodeInvalidDate      = "INVALID_DATE"
	CodePastDate         = "PAST_DATE_2020"
	CodeFutureDate       = "FUTURE_DATE_2027"
	CodeUnknownPlatform  = "UNKNOWN_PLATFORM"
	CodeInvalidBirthYear = "INVALID_BIRTH_YEAR"
	CodeRecreational     = "RECREATIONAL_LEVEL"
)

// Rejection pairs a machine code with a human-readable reason.
type Rejection struct {
	Code   string
	Reason string
}

// Result is the verdict on one record.
type Result struct {
	Valid      bool
	Rejections []Rejection
	Fixes      []string // descriptions of auto-repairs applied
	Record     Record   // post-fix view of the row
}

func (r *Result) reject(code, reason string) {
	r.Rejections = append(r.Rejections, Rejection{Code: code, Reason: reason})
}

// Validator applies the intake policy to staged rows.
type Validator struct {
	policy    config.ValidatorPolicy
	norm      *normalizer.Normalizer
	platforms map[string]bool

	// Loose birth-year acceptance window. Wider than the team-level flag
	// window: intake only rejects rows no interpretation could save.
	minYear, maxYear int
}

// NewValidator builds a validator over a policy and a season-anchored
// normalizer.
func NewValidator(policy config.ValidatorPolicy, norm *normalizer.Normalizer) *Validator {
	platforms := make(map[string]bool, len(policy.KnownPlatforms))
	for _, p := range policy.KnownPlatforms {
		platforms[p] = true
	}
	return &Validator{
		policy:    policy,
		norm:      norm,
		platforms: platforms,
		minYear:   policy.SeasonYear - 20,
		maxYear:   policy.SeasonYear - 5,
	}
}

// ValidateRecord checks one staged row. Every violated rule is reported,
// not just the first, so one pass shows operators the full damage.
func (v *Validator) ValidateRecord(rec Record) Result {
	res := Result{Record: rec}

	if fixed, desc := fixSourceKey(rec.SourceMatchKey); desc != "" {
		res.Record.SourceMatchKey = fixed
		res.Fixes = append(res.Fixes, desc)
	}

	home := strings.TrimSpace(rec.HomeTeamName)
	away := strings.TrimSpace(rec.AwayTeamName)
	if home == "" {
		res.reject(CodeEmptyHomeTeam, "home team name is empty")
	}
	if away == "" {
		res.reject(CodeEmptyAwayTeam, "away team name is empty")
	}
	if home != "" && strings.EqualFold(home, away) {
		res.reject(CodeSameTeam, fmt.Sprintf("team plays itself: %q", home))
	}

	switch {
	case rec.MatchDate.IsZero():
		res.reject(CodeInvalidDate, "match date is missing")
	case rec.MatchDate.Before(v.policy.MinMatchDate):
		res.reject(CodePastDate, fmt.Sprintf("match date %s predates %s",
			rec.MatchDate.Format("2006-01-02"), v.policy.MinMatchDate.Format("2006-01-02")))
	case rec.MatchDate.After(v.policy.MaxMatchDate):
		res.reject(CodeFutureDate, fmt.Sprintf("match date %s is past %s",
			rec.MatchDate.Format("2006-01-02"), v.policy.MaxMatchDate.Format("2006-01-02")))
	}

	if !v.platforms[rec.SourcePlatform] {
		res.reject(CodeUnknownPlatform, fmt.Sprintf("unknown source platform %q", rec.SourcePlatform))
	}

	for _, name := range []string{home, away} {
		if name == "" {
			continue
		}
		if y := v.impossibleBirthYear(name); y != 0 {
			res.reject(CodeInvalidBirthYear, fmt.Sprintf("%q carries impossible birth year %d", name, y))
		}
	}

	if marker := v.recreationalMarker(res.Record); marker != "" {
		res.reject(CodeRecreational, "recreational play: "+marker)
	}

	res.Valid = len(res.Rejections) == 0
	return res
}

// impossibleBirthYear reports the year that makes a name unpromotable: the
// strict extractor found nothing AND the only year token present is outside
// any plausible player age. Names with no year at all pass (identity stays
// unknown until reconciliation); names the strict extractor understood pass
// by definition.
func (v *Validator) impossibleBirthYear(name string) int {
	if v.norm.ExtractIdentity(name).BirthYear != 0 {
		return 0
	}
	y := normalizer.LooseBirthYear(name)
	if y == 0 || (y >= v.minYear && y <= v.maxYear) {
		return 0
	}
	return y
}

// recreationalMarker returns a description of the first policy pattern that
// matches the row, or "" when none do. Only the source key, event name, and
// division are checked: team names mentioning "rec" are not evidence.
func (v *Validator) recreationalMarker(rec Record) string {
	fields := []struct{ name, value string }{
		{"source key", rec.SourceMatchKey},
		{"event", rec.EventName},
		{"division", rec.Division},
	}
	for _, f := range fields {
		if f.value == "" {
			continue
		}
		for _, re := range v.policy.Recreational {
			if re.MatchString(f.value) {
				return fmt.Sprintf("%s %q matches %s", f.name, f.value, re.String())
			}
		}
	}
	return ""
}

// fixSourceKey repairs the one corruption scrapers actually produce: keys
// with junk whitespace or embedded control characters from sloppy cell
// extraction. The key is cut at the first control character, then trimmed.
func fixSourceKey(key string) (fixed, desc string) {
	fixed = key
	if i := strings.IndexAny(fixed, "\n\t\r"); i >= 0 {
		fixed = fixed[:i]
	}
	fixed = strings.TrimSpace(fixed)
	if fixed == key {
		return key, ""
	}
	return fixed, fmt.Sprintf("source key repaired %q -> %q", key, fixed)
}

// BatchResult aggregates verdicts over a batch of records.
type BatchResult struct {
	Valid      []Record
	Rejected   []Result
	FixedCount int
}

// ValidateBatch validates a slice of records and splits it into promotable
// rows and rejects.
func (v *Validator) ValidateBatch(recs []Record) BatchResult {
	var out BatchResult
	for _, rec := range recs {
		res := v.ValidateRecord(rec)
		if len(res.Fixes) > 0 {
			out.FixedCount++
		}
		if res.Valid {
			out.Valid = append(out.Valid, res.Record)
		} else {
			out.Rejected = append(out.Rejected, res)
		}
	}
	return out
}
