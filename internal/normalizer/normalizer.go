// Package normalizer extracts canonical identity from raw team name strings.
//
// Scraped feeds disagree about everything: casing, whitespace, duplicated
// club prefixes, where the birth year hides ("2014B", "15B", "U11", "Premier
// 14"). Everything here is pure and deterministic so the same raw string
// always resolves to the same identity, and normalizing twice changes
// nothing.
package normalizer

import (
	"regexp"
	"strings"

	"github.com/MGMAppDev/soccerview-pipeline/internal/config"
)

// Identity is the canonical view of one raw team name.
type Identity struct {
	CanonicalName string
	BirthYear     int    // 0 = unknown
	Gender        string // "M", "F", "" = unknown

	// BirthYearConflict is set when the main name and the parenthesized
	// suffix yield different birth years. The normalizer never guesses
	// between them; reconciliation flags the team for review.
	BirthYearConflict bool
}

// Normalizer holds the season anchor and compiled patterns. Safe for
// concurrent use.
type Normalizer struct {
	seasonYear   int
	minBirthYear int
	maxBirthYear int

	fourDigit      *regexp.Regexp
	twoDigitThenBG *regexp.Regexp
	bgThenTwoDigit *regexp.Regexp
	trailingTwo    *regexp.Regexp
	levelTwoDigit  *regexp.Regexp
	uAge           *regexp.Regexp
	boysGirls      *regexp.Regexp
	parenSuffix    *regexp.Regexp
	whitespace     *regexp.Regexp
}

// New builds a Normalizer anchored to a season year. The valid birth-year
// window follows the season (U7 through U19).
func New(seasonYear int) *Normalizer {
	min, max := config.BirthYearBounds(seasonYear)
	return &Normalizer{
		seasonYear:   seasonYear,
		minBirthYear: min,
		maxBirthYear: max,

		fourDigit:      regexp.MustCompile(`\b(20\d{2})([BbGg])?\b`),
		twoDigitThenBG: regexp.MustCompile(`\b(\d{2})([BbGg])\b`),
		bgThenTwoDigit: regexp.MustCompile(`\b([BbGg])(\d{2})\b`),
		trailingTwo:    regexp.MustCompile(`\b(\d{2})$`),
		levelTwoDigit:  regexp.MustCompile(`(?i)\b(?:premier|academy|nal|npl|ecnl|ecrl|elite|select)\s+(\d{2})\b`),
		uAge:           regexp.MustCompile(`(?i)\bU-?(\d{1,2})\b`),
		boysGirls:      regexp.MustCompile(`(?i)\b(boys|girls)\b`),
		parenSuffix:    regexp.MustCompile(`^(.*?)\s*\(([^()]*)\)\s*$`),
		whitespace:     regexp.MustCompile(`\s+`),
	}
}

// SeasonYear returns the season anchor the normalizer was built with.
func (n *Normalizer) SeasonYear() int { return n.seasonYear }

// ExtractIdentity derives the canonical name, birth year, and gender from a
// raw team name. Idempotent: feeding the canonical name back in returns the
// same identity.
func (n *Normalizer) ExtractIdentity(raw string) Identity {
	trimmed := strings.TrimSpace(raw)
	stripped := StripDuplicatePrefix(trimmed)
	main, suffix := n.splitParenSuffix(stripped)
	if main == "" {
		main = suffix
		suffix = ""
	}

	nameYear := n.birthYearFromName(main)
	suffixYear := n.birthYearFromSuffix(suffix)

	birthYear := nameYear
	if birthYear == 0 {
		birthYear = suffixYear
	}
	if birthYear == 0 {
		birthYear = n.uAgeYear(main)
	}

	return Identity{
		CanonicalName:     n.canonicalize(main),
		BirthYear:         birthYear,
		Gender:            n.extractGender(main, suffix),
		BirthYearConflict: nameYear != 0 && suffixYear != 0 && nameYear != suffixYear,
	}
}

// CanonicalName returns only the normalized name for a raw string.
func (n *Normalizer) CanonicalName(raw string) string {
	trimmed := strings.TrimSpace(raw)
	stripped := StripDuplicatePrefix(trimmed)
	main, suffix := n.splitParenSuffix(stripped)
	if main == "" {
		main = suffix
	}
	return n.canonicalize(main)
}

func (n *Normalizer) canonicalize(name string) string {
	return n.whitespace.ReplaceAllString(strings.ToLower(strings.TrimSpace(name)), " ")
}

// splitParenSuffix splits "Storm FC 2015 (U11 Boys)" into the main name and
// the suffix content. Names without a trailing parenthesized group return the
// whole string and "".
func (n *Normalizer) splitParenSuffix(name string) (main, suffix string) {
	m := n.parenSuffix.FindStringSubmatch(name)
	if m == nil {
		return name, ""
	}
	return strings.TrimSpace(m[1]), strings.TrimSpace(m[2])
}

// StripDuplicatePrefix collapses the duplicated leading words a scraper bug
// produces ("One FC One FC 2014B"). Two-word prefixes collapse before
// single-word ones, and the pass repeats until the name is stable so the
// result is a fixpoint.
func StripDuplicatePrefix(name string) string {
	for {
		words := strings.Fields(name)
		switch {
		case len(words) >= 4 &&
			strings.EqualFold(words[0], words[2]) &&
			strings.EqualFold(words[1], words[3]):
			words = words[2:]
		case len(words) >= 2 && strings.EqualFold(words[0], words[1]):
			words = words[1:]
		default:
			return strings.Join(words, " ")
		}
		name = strings.Join(words, " ")
	}
}

// --------------------------------------------------------------------------
// Birth year
// --------------------------------------------------------------------------

// birthYearFromName applies the name-side extraction rules in priority
// order; the first hit wins.
func (n *Normalizer) birthYearFromName(name string) int {
	// 1. Full 4-digit year: "2014B", "2015 B", "2014". All candidates are
	// scanned so a club founding year ("Founded 2001") cannot shadow the
	// real one.
	for _, m := range n.fourDigit.FindAllStringSubmatch(name, -1) {
		if y := atoi(m[1]); n.inRange(y) {
			return y
		}
	}

	// 2. 2-digit year adjacent to B/G: "15B", "B15"
	if m := n.twoDigitThenBG.FindStringSubmatch(name); m != nil {
		if y := expandTwoDigit(atoi(m[1])); n.inRange(y) {
			return y
		}
	}
	if m := n.bgThenTwoDigit.FindStringSubmatch(name); m != nil {
		if y := expandTwoDigit(atoi(m[2])); n.inRange(y) {
			return y
		}
	}

	// 3. Trailing standalone 2-digit year: "Sporting Blue 14"
	if m := n.trailingTwo.FindStringSubmatch(strings.TrimSpace(name)); m != nil {
		if y := expandTwoDigit(atoi(m[1])); n.inRange(y) {
			return y
		}
	}

	// 4. Level word followed by 2-digit year: "Premier 14", "Academy 09"
	if m := n.levelTwoDigit.FindStringSubmatch(name); m != nil {
		if y := expandTwoDigit(atoi(m[1])); n.inRange(y) {
			return y
		}
	}

	return 0
}

// birthYearFromSuffix resolves "(U11 Boys)" style suffixes: U{age} maps to
// seasonYear - age.
func (n *Normalizer) birthYearFromSuffix(suffix string) int {
	if suffix == "" {
		return 0
	}
	if y := n.uAgeYear(suffix); y != 0 {
		return y
	}
	// A suffix may also carry a literal year: "(2014 Boys)"
	if m := n.fourDigit.FindStringSubmatch(suffix); m != nil {
		if y := atoi(m[1]); n.inRange(y) {
			return y
		}
	}
	return 0
}

// uAgeYear converts a U{age} marker to a birth year via the season anchor.
func (n *Normalizer) uAgeYear(s string) int {
	m := n.uAge.FindStringSubmatch(s)
	if m == nil {
		return 0
	}
	age := atoi(m[1])
	if age < config.MinPlayerAge || age > config.MaxPlayerAge {
		return 0
	}
	return n.seasonYear - age
}

func (n *Normalizer) inRange(year int) bool {
	return year >= n.minBirthYear && year <= n.maxBirthYear
}

// expandTwoDigit maps a 2-digit year to a century: dd <= 30 lands in the
// 2000s, everything else in the 1900s (and gets filtered by the range check).
func expandTwoDigit(dd int) int {
	if dd <= 30 {
		return 2000 + dd
	}
	return 1900 + dd
}

var looseYear = regexp.MustCompile(`\b((?:19|20)\d{2})[BbGg]?\b`)

// LooseBirthYear finds the first 4-digit year token in a raw name with no
// range filtering. The intake validator consults it only when strict
// extraction finds nothing, to catch names whose only year is impossible
// ("Classics 1990 Boys") while leaving founding-year names alone.
func LooseBirthYear(raw string) int {
	m := looseYear.FindStringSubmatch(raw)
	if m == nil {
		return 0
	}
	return atoi(m[1])
}

// --------------------------------------------------------------------------
// Gender
// --------------------------------------------------------------------------

// extractGender resolves gender from suffix words first, then inline words,
// then digit-adjacent B/G markers. Returns "" when nothing matches.
func (n *Normalizer) extractGender(name, suffix string) string {
	if g := n.boysGirlsGender(suffix); g != "" {
		return g
	}
	if g := n.boysGirlsGender(name); g != "" {
		return g
	}

	for _, m := range n.fourDigit.FindAllStringSubmatch(name, -1) {
		if m[2] != "" {
			return bgGender(m[2])
		}
	}
	if m := n.twoDigitThenBG.FindStringSubmatch(name); m != nil {
		return bgGender(m[2])
	}
	if m := n.bgThenTwoDigit.FindStringSubmatch(name); m != nil {
		return bgGender(m[1])
	}
	return ""
}

func (n *Normalizer) boysGirlsGender(s string) string {
	if s == "" {
		return ""
	}
	m := n.boysGirls.FindStringSubmatch(s)
	if m == nil {
		return ""
	}
	if strings.EqualFold(m[1], "boys") {
		return "M"
	}
	return "F"
}

func bgGender(marker string) string {
	if strings.EqualFold(marker, "b") {
		return "M"
	}
	return "F"
}

// --------------------------------------------------------------------------
// Division parsing (shared by adapter hooks)
// --------------------------------------------------------------------------

// Division is the parsed view of a schedule page's division cell.
type Division struct {
	Gender   string // "M", "F", ""
	AgeGroup int    // U-number, 0 = unknown
}

// ParseDivision parses strings like "U11 Boys Premier" or "Girls U-13".
func (n *Normalizer) ParseDivision(div string) Division {
	var d Division
	if m := n.uAge.FindStringSubmatch(div); m != nil {
		if age := atoi(m[1]); age >= config.MinPlayerAge && age <= config.MaxPlayerAge {
			d.AgeGroup = age
		}
	}
	d.Gender = n.boysGirlsGender(div)
	return d
}

// BirthYearForAge maps a U-age to a birth year under this season.
func (n *Normalizer) BirthYearForAge(age int) int {
	if age == 0 {
		return 0
	}
	return n.seasonYear - age
}

func atoi(s string) int {
	v := 0
	for _, c := range s {
		v = v*10 + int(c-'0')
	}
	return v
}
