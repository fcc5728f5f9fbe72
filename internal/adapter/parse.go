package adapter

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// DefaultUserAgents is the rotation pool adapters start from. The engine
// picks one at random per request and re-picks after a 429.
var DefaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:121.0) Gecko/20100101 Firefox/121.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.2 Safari/605.1.15",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
}

// --------------------------------------------------------------------------
// Dates and scores
// --------------------------------------------------------------------------

// usDateLayouts covers every date format the sources have been seen to
// print. Ordered longest-first so a timestamped cell never half-parses.
var usDateLayouts = []string{
	"Monday, January 2, 2006 3:04 PM",
	"Monday, January 2, 2006",
	"January 2, 2006 3:04 PM",
	"January 2, 2006",
	"Jan 2, 2006 3:04 PM",
	"Jan 2, 2006",
	"Mon 1/2/2006 3:04 PM",
	"Mon 1/2/2006",
	"1/2/2006 3:04 PM",
	"1/2/2006",
	"2006-01-02",
}

// ParseUSDateTime reads a schedule cell in any of the US date formats the
// sources use, with or without a time of day.
func ParseUSDateTime(s string) (time.Time, error) {
	s = strings.Join(strings.Fields(s), " ")
	if s == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}
	for _, layout := range usDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}

var scoreDashes = strings.NewReplacer("–", "-", "—", "-")

// ParseDashScore reads a "2 - 1" style score cell. Anything that is not two
// non-negative integers around a dash (blank cells, "vs", "TBD", "PPD")
// means the match has not been played: that maps to nil scores, not an
// error.
func ParseDashScore(s string) (home, away *int, err error) {
	s = scoreDashes.Replace(strings.TrimSpace(s))
	parts := strings.SplitN(s, "-", 2)
	if len(parts) != 2 {
		return nil, nil, nil
	}
	h, herr := strconv.Atoi(strings.TrimSpace(parts[0]))
	a, aerr := strconv.Atoi(strings.TrimSpace(parts[1]))
	if herr != nil || aerr != nil || h < 0 || a < 0 {
		return nil, nil, nil
	}
	return &h, &a, nil
}

var timeText = regexp.MustCompile(`(?i)\b\d{1,2}:\d{2}(?:\s*[AP]M)?`)

// ExtractTimeText pulls the kickoff time out of a combined date/time cell,
// formatted as printed. Empty when the cell carries no time.
func ExtractTimeText(s string) string {
	return strings.TrimSpace(timeText.FindString(s))
}

// --------------------------------------------------------------------------
// Names and events
// --------------------------------------------------------------------------

// CleanTeamName collapses runs of whitespace left behind by markup
// stripping. Identity extraction happens later, at promotion.
func CleanTeamName(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

var stateParen = regexp.MustCompile(`\(([A-Z]{2})\)`)

// stateWords resolves spelled-out state names in event titles. Ordered:
// "arkansas" must be checked before "kansas", which it contains.
var stateWords = []struct {
	name, code string
}{
	{"arkansas", "AR"},
	{"kansas", "KS"},
	{"missouri", "MO"},
	{"nebraska", "NE"},
	{"iowa", "IA"},
	{"oklahoma", "OK"},
	{"colorado", "CO"},
	{"illinois", "IL"},
	{"minnesota", "MN"},
	{"south dakota", "SD"},
	{"north dakota", "ND"},
	{"wisconsin", "WI"},
	{"texas", "TX"},
	{"tennessee", "TN"},
	{"kentucky", "KY"},
	{"indiana", "IN"},
}

var usStates = map[string]bool{
	"AL": true, "AK": true, "AZ": true, "AR": true, "CA": true, "CO": true,
	"CT": true, "DE": true, "DC": true, "FL": true, "GA": true, "HI": true,
	"ID": true, "IL": true, "IN": true, "IA": true, "KS": true, "KY": true,
	"LA": true, "ME": true, "MD": true, "MA": true, "MI": true, "MN": true,
	"MS": true, "MO": true, "MT": true, "NE": true, "NV": true, "NH": true,
	"NJ": true, "NM": true, "NY": true, "NC": true, "ND": true, "OH": true,
	"OK": true, "OR": true, "PA": true, "RI": true, "SC": true, "SD": true,
	"TN": true, "TX": true, "UT": true, "VT": true, "VA": true, "WA": true,
	"WV": true, "WI": true, "WY": true,
}

// StateFromEventName guesses the US state from an event title: a "(KS)"
// style suffix first, then spelled-out state names. Empty when neither
// appears.
func StateFromEventName(name string) string {
	if m := stateParen.FindStringSubmatch(name); m != nil && usStates[m[1]] {
		return m[1]
	}
	lower := strings.ToLower(name)
	for _, sw := range stateWords {
		if strings.Contains(lower, sw.name) {
			return sw.code
		}
	}
	return ""
}

var yearToken = regexp.MustCompile(`\b(20\d\d)\b`)

// EventYear pulls the first 20xx year out of an event title, 0 if none.
func EventYear(name string) int {
	m := yearToken.FindStringSubmatch(name)
	if m == nil {
		return 0
	}
	y, _ := strconv.Atoi(m[1])
	return y
}
